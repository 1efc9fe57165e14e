// Package client is the dashboard-side connection to the daemon's control
// socket. Calls are synchronous: one request line out, one response line
// back, matched by id.
package client

import (
	"bufio"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"sync"
	"time"

	"github.com/loopdeck/loopdeck/internal/protocol"
)

// ErrNotConnected indicates a call on a closed or never-opened client.
var ErrNotConnected = errors.New("not connected to daemon")

// DaemonError wraps an error string returned by the daemon, keeping it
// distinguishable from transport failures.
type DaemonError struct {
	Type    string
	Message string
}

func (e *DaemonError) Error() string {
	return fmt.Sprintf("daemon rejected %s: %s", e.Type, e.Message)
}

// Client is a synchronous control-socket client. Safe for concurrent use;
// calls are serialized over the single connection.
type Client struct {
	socketPath     string
	requestTimeout time.Duration

	mu        sync.Mutex
	conn      net.Conn
	reader    *bufio.Reader
	requestID int
}

// New creates a client for the given socket path. No connection is made
// until Connect.
func New(socketPath string) *Client {
	return &Client{
		socketPath:     socketPath,
		requestTimeout: 30 * time.Second,
	}
}

// Connect dials the daemon socket.
func (c *Client) Connect() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.conn != nil {
		return nil
	}
	conn, err := net.DialTimeout("unix", c.socketPath, 10*time.Second)
	if err != nil {
		return fmt.Errorf("failed to connect to daemon at %s: %w", c.socketPath, err)
	}
	c.conn = conn
	c.reader = bufio.NewReader(conn)
	return nil
}

// Close tears the connection down.
func (c *Client) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.conn == nil {
		return nil
	}
	err := c.conn.Close()
	c.conn = nil
	c.reader = nil
	return err
}

// call sends one request and decodes the matching response payload into
// out (when out is non-nil).
func (c *Client) call(reqType string, payload interface{}, out interface{}) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.conn == nil {
		return ErrNotConnected
	}

	c.requestID++
	req := protocol.Request{
		ID:   fmt.Sprintf("req_%d", c.requestID),
		Type: reqType,
	}
	if payload != nil {
		data, err := json.Marshal(payload)
		if err != nil {
			return fmt.Errorf("failed to encode request payload: %w", err)
		}
		req.Payload = data
	}

	line, err := json.Marshal(req)
	if err != nil {
		return fmt.Errorf("failed to encode request: %w", err)
	}
	line = append(line, '\n')

	deadline := time.Now().Add(c.requestTimeout)
	c.conn.SetDeadline(deadline)
	defer c.conn.SetDeadline(time.Time{})

	if _, err := c.conn.Write(line); err != nil {
		return fmt.Errorf("failed to send request: %w", err)
	}

	respLine, err := c.reader.ReadBytes('\n')
	if err != nil {
		return fmt.Errorf("failed to read response: %w", err)
	}

	var resp protocol.Response
	if err := json.Unmarshal(respLine, &resp); err != nil {
		return fmt.Errorf("malformed response: %w", err)
	}
	if resp.ID != req.ID {
		return fmt.Errorf("response id mismatch: sent %s, got %s", req.ID, resp.ID)
	}
	if !resp.OK {
		return &DaemonError{Type: reqType, Message: resp.Error}
	}
	if out != nil && len(resp.Payload) > 0 {
		if err := json.Unmarshal(resp.Payload, out); err != nil {
			return fmt.Errorf("failed to decode response payload: %w", err)
		}
	}
	return nil
}
