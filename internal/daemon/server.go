package daemon

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"net"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/loopdeck/loopdeck/internal/logger"
	"github.com/loopdeck/loopdeck/internal/loop"
	"github.com/loopdeck/loopdeck/internal/mailbox"
	"github.com/loopdeck/loopdeck/internal/protocol"
	"github.com/loopdeck/loopdeck/internal/store"
)

// maxLineBytes bounds a single request line; encoded plugin packages are
// the largest payload and stay well under this.
const maxLineBytes = 4 * 1024 * 1024

// Server is the unix socket control server. One goroutine per connection
// reads newline-delimited JSON requests; all handlers run under a single
// mutex so the extension host and loop registry see serialized mutation.
type Server struct {
	socketPath string
	host       *ExtensionHost
	loops      *loop.Registry
	mail       *mailbox.Mailbox
	store      *store.Store
	listener   net.Listener

	handleMu sync.Mutex

	mu       sync.Mutex
	running  bool
	stopChan chan struct{}
	stopOnce sync.Once
}

// NewServer creates a control server bound to the given socket path.
func NewServer(socketPath string, host *ExtensionHost, loops *loop.Registry,
	mail *mailbox.Mailbox, s *store.Store) *Server {
	return &Server{
		socketPath: socketPath,
		host:       host,
		loops:      loops,
		mail:       mail,
		store:      s,
		stopChan:   make(chan struct{}),
	}
}

// Start listens on the unix socket and begins accepting connections.
func (s *Server) Start(ctx context.Context) error {
	s.mu.Lock()
	if s.running {
		s.mu.Unlock()
		return fmt.Errorf("server is already running")
	}
	s.running = true
	s.mu.Unlock()

	absPath, err := filepath.Abs(s.socketPath)
	if err != nil {
		return fmt.Errorf("failed to resolve socket path: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(absPath), 0755); err != nil {
		return fmt.Errorf("failed to create socket directory: %w", err)
	}
	if err := os.Remove(absPath); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("failed to remove stale socket file: %w", err)
	}

	listener, err := net.Listen("unix", absPath)
	if err != nil {
		return fmt.Errorf("failed to listen on unix socket %s: %w", absPath, err)
	}
	s.listener = listener

	if err := os.Chmod(absPath, 0600); err != nil {
		logger.Warn("Failed to set socket permissions: %v", err)
	}

	go s.acceptLoop(ctx)

	logger.Info("Control socket listening on %s", absPath)
	return nil
}

// Stop closes the listener and removes the socket file.
func (s *Server) Stop() {
	s.stopOnce.Do(func() {
		logger.Info("Stopping control socket server...")
		close(s.stopChan)

		if s.listener != nil {
			if err := s.listener.Close(); err != nil {
				logger.Error("Error closing socket listener: %v", err)
			}
		}

		if absPath, err := filepath.Abs(s.socketPath); err == nil {
			if removeErr := os.Remove(absPath); removeErr != nil && !os.IsNotExist(removeErr) {
				logger.Warn("Failed to remove socket file %s: %v", absPath, removeErr)
			}
		}

		s.mu.Lock()
		s.running = false
		s.mu.Unlock()
	})
}

// IsRunning reports whether the server is accepting connections.
func (s *Server) IsRunning() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.running
}

func (s *Server) acceptLoop(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			logger.Info("Accept loop stopped via context cancellation")
			return
		case <-s.stopChan:
			return
		default:
			if ul, ok := s.listener.(*net.UnixListener); ok {
				ul.SetDeadline(time.Now().Add(1 * time.Second))
			}

			conn, err := s.listener.Accept()
			if err != nil {
				if netErr, ok := err.(net.Error); ok && netErr.Timeout() {
					continue
				}
				select {
				case <-s.stopChan:
					return
				default:
				}
				logger.Error("Error accepting connection: %v", err)
				continue
			}

			go s.serveConn(conn)
		}
	}
}

// serveConn reads requests line by line until the peer hangs up.
func (s *Server) serveConn(conn net.Conn) {
	defer conn.Close()

	scanner := bufio.NewScanner(conn)
	scanner.Buffer(make([]byte, 64*1024), maxLineBytes)
	writer := bufio.NewWriter(conn)

	for scanner.Scan() {
		line := scanner.Bytes()
		if len(line) == 0 {
			continue
		}

		var req protocol.Request
		resp := protocol.Response{}
		if err := json.Unmarshal(line, &req); err != nil {
			resp.Type = "error"
			resp.Error = fmt.Sprintf("malformed request: %v", err)
		} else {
			resp = s.dispatch(req)
		}

		data, err := json.Marshal(resp)
		if err != nil {
			logger.Error("Failed to encode response: %v", err)
			return
		}
		data = append(data, '\n')
		if _, err := writer.Write(data); err != nil {
			logger.Warn("Failed to write response: %v", err)
			return
		}
		if err := writer.Flush(); err != nil {
			return
		}
	}
	if err := scanner.Err(); err != nil {
		logger.Warn("Connection read error: %v", err)
	}
}
