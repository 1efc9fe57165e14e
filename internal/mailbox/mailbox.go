// Package mailbox is the filesystem-backed message spool between operators,
// loops and the daemon. Messages are JSON files written atomically via
// temp-file rename; a watcher delivers inbound messages as they land.
package mailbox

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/loopdeck/loopdeck/internal/logger"
)

// Message is one mailbox entry.
type Message struct {
	ID        string `json:"id"`
	From      string `json:"from"`
	To        string `json:"to"`
	Subject   string `json:"subject"`
	Body      string `json:"body"`
	CreatedAt int64  `json:"created_at"`
}

// Mailbox stores messages as files under a spool directory.
type Mailbox struct {
	dir string
}

// Open creates the spool directory if needed and returns the mailbox.
func Open(dir string) (*Mailbox, error) {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create mailbox directory: %w", err)
	}
	return &Mailbox{dir: dir}, nil
}

// Dir returns the spool directory.
func (m *Mailbox) Dir() string { return m.dir }

// Put writes a message atomically: the file appears under its final name
// only once fully written.
func (m *Mailbox) Put(msg Message) error {
	if msg.ID == "" {
		msg.ID = fmt.Sprintf("%d-%s", time.Now().UnixNano(), msg.To)
	}
	if msg.CreatedAt == 0 {
		msg.CreatedAt = time.Now().Unix()
	}
	data, err := json.MarshalIndent(msg, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to encode message: %w", err)
	}

	final := filepath.Join(m.dir, msg.ID+".json")
	tmp := final + ".tmp"
	if err := os.WriteFile(tmp, data, 0644); err != nil {
		return fmt.Errorf("failed to write message: %w", err)
	}
	if err := os.Rename(tmp, final); err != nil {
		os.Remove(tmp)
		return fmt.Errorf("failed to publish message: %w", err)
	}
	return nil
}

// List returns all messages sorted by file name (which sorts by creation
// time for Put-generated ids).
func (m *Mailbox) List() ([]Message, error) {
	entries, err := os.ReadDir(m.dir)
	if err != nil {
		return nil, fmt.Errorf("failed to read mailbox directory: %w", err)
	}

	names := make([]string, 0, len(entries))
	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), ".json") {
			continue
		}
		names = append(names, entry.Name())
	}
	sort.Strings(names)

	messages := make([]Message, 0, len(names))
	for _, name := range names {
		msg, err := m.read(filepath.Join(m.dir, name))
		if err != nil {
			logger.Warn("Skipping unreadable mailbox message %s: %v", name, err)
			continue
		}
		messages = append(messages, msg)
	}
	return messages, nil
}

// Delete removes a message by id.
func (m *Mailbox) Delete(id string) error {
	if err := os.Remove(filepath.Join(m.dir, id+".json")); err != nil {
		return fmt.Errorf("failed to delete message %s: %w", id, err)
	}
	return nil
}

func (m *Mailbox) read(path string) (Message, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Message{}, err
	}
	var msg Message
	if err := json.Unmarshal(data, &msg); err != nil {
		return Message{}, fmt.Errorf("malformed message file: %w", err)
	}
	return msg, nil
}

// Watch delivers messages as their files land in the spool directory,
// until stop is closed. Partial writes are invisible: Put renames from a
// .tmp path and the watcher ignores non-.json names.
func (m *Mailbox) Watch(stop <-chan struct{}, deliver func(Message)) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("failed to create mailbox watcher: %w", err)
	}
	if err := watcher.Add(m.dir); err != nil {
		watcher.Close()
		return fmt.Errorf("failed to watch mailbox directory: %w", err)
	}

	go func() {
		defer watcher.Close()
		for {
			select {
			case <-stop:
				return
			case event, ok := <-watcher.Events:
				if !ok {
					return
				}
				if !event.Has(fsnotify.Create) && !event.Has(fsnotify.Rename) {
					continue
				}
				if !strings.HasSuffix(event.Name, ".json") {
					continue
				}
				msg, err := m.read(event.Name)
				if err != nil {
					logger.Warn("Ignoring mailbox event for %s: %v", event.Name, err)
					continue
				}
				deliver(msg)
			case err, ok := <-watcher.Errors:
				if !ok {
					return
				}
				logger.Error("Mailbox watcher error: %v", err)
			}
		}
	}()
	return nil
}
