// Package lockfile enforces a single running loopdeck daemon per
// configuration via a PID-stamped lock file with stale-lock recovery.
package lockfile

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"
)

// ErrLocked indicates another daemon holds the lock.
var ErrLocked = errors.New("daemon is already running")

// staleAfter is how old a lock may be before it is reclaimed even when the
// recorded process still appears alive.
const staleAfter = time.Hour

// Lockfile is a file-based exclusive lock.
type Lockfile struct {
	path   string
	file   *os.File
	locked bool
}

// New creates a lockfile instance for the given path.
func New(path string) *Lockfile {
	return &Lockfile{path: path}
}

// TryAcquire attempts to take the lock, reclaiming stale locks left by dead
// daemons.
func (l *Lockfile) TryAcquire() error {
	if err := os.MkdirAll(filepath.Dir(l.path), 0755); err != nil {
		return fmt.Errorf("failed to create lockfile directory: %w", err)
	}

	file, err := os.OpenFile(l.path, os.O_CREATE|os.O_WRONLY|os.O_EXCL, 0644)
	if os.IsExist(err) {
		stale, reason := l.isStale()
		if !stale {
			return fmt.Errorf("%w: %s", ErrLocked, reason)
		}
		if err := os.Remove(l.path); err != nil {
			return fmt.Errorf("failed to remove stale lockfile (%s): %w", reason, err)
		}
		file, err = os.OpenFile(l.path, os.O_CREATE|os.O_WRONLY|os.O_EXCL, 0644)
		if err != nil {
			return fmt.Errorf("failed to recreate lockfile: %w", err)
		}
	} else if err != nil {
		return fmt.Errorf("failed to create lockfile: %w", err)
	}

	l.file = file
	l.locked = true

	content := fmt.Sprintf("%d\n%s\n", os.Getpid(), time.Now().Format(time.RFC3339))
	if _, err := l.file.WriteString(content); err != nil {
		l.Release()
		return fmt.Errorf("failed to write lockfile: %w", err)
	}
	if err := l.file.Sync(); err != nil {
		l.Release()
		return fmt.Errorf("failed to sync lockfile: %w", err)
	}
	return nil
}

// isStale reports whether the existing lock belongs to a dead or ancient
// daemon, with a human-readable reason either way.
func (l *Lockfile) isStale() (bool, string) {
	data, err := os.ReadFile(l.path)
	if err != nil {
		return true, "cannot read lockfile"
	}
	lines := strings.Split(strings.TrimSpace(string(data)), "\n")
	pid, err := strconv.Atoi(strings.TrimSpace(lines[0]))
	if err != nil {
		return true, "invalid PID in lockfile"
	}

	if running, reason := isProcessRunning(pid); !running {
		return true, reason
	}

	if len(lines) >= 2 {
		if stamp, err := time.Parse(time.RFC3339, strings.TrimSpace(lines[1])); err == nil {
			if time.Since(stamp) > staleAfter {
				return true, "lockfile is older than 1 hour"
			}
		}
	}
	return false, fmt.Sprintf("held by PID %d", pid)
}

// Release drops the lock and removes the file.
func (l *Lockfile) Release() error {
	if !l.locked {
		return nil
	}
	var err error
	if l.file != nil {
		err = l.file.Close()
		l.file = nil
	}
	if removeErr := os.Remove(l.path); removeErr != nil && !os.IsNotExist(removeErr) {
		if err == nil {
			err = fmt.Errorf("failed to remove lockfile: %w", removeErr)
		}
	}
	l.locked = false
	return err
}

// Locked reports whether this instance holds the lock.
func (l *Lockfile) Locked() bool {
	return l.locked
}

// Path returns the lockfile path.
func (l *Lockfile) Path() string {
	return l.path
}
