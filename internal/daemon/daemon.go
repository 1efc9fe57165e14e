// Package daemon wires the control-plane pieces together: the extension
// host, loop registry, filesystem mailbox, SQLite store and the unix
// socket server, plus process-level bookkeeping (lock file, pid file,
// signal handling).
package daemon

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/loopdeck/loopdeck/internal/config"
	"github.com/loopdeck/loopdeck/internal/lockfile"
	"github.com/loopdeck/loopdeck/internal/logger"
	"github.com/loopdeck/loopdeck/internal/loop"
	"github.com/loopdeck/loopdeck/internal/mailbox"
	"github.com/loopdeck/loopdeck/internal/pidfile"
	"github.com/loopdeck/loopdeck/internal/store"
)

// Daemon is the long-running loopdeck control-plane process.
type Daemon struct {
	cfg    *config.Config
	lock   *lockfile.Lockfile
	pid    *pidfile.Pidfile
	store  *store.Store
	mail   *mailbox.Mailbox
	loops  *loop.Registry
	host   *ExtensionHost
	server *Server

	watchStop chan struct{}
}

// New builds a daemon from configuration. Nothing is started yet.
func New(cfg *config.Config) (*Daemon, error) {
	hostAPI, err := cfg.HostAPIVersion()
	if err != nil {
		return nil, fmt.Errorf("invalid host API version: %w", err)
	}

	st, err := store.Open(cfg.Daemon.DatabasePath)
	if err != nil {
		return nil, fmt.Errorf("failed to open store: %w", err)
	}

	mail, err := mailbox.Open(cfg.Mailbox.Dir)
	if err != nil {
		st.Close()
		return nil, fmt.Errorf("failed to open mailbox: %w", err)
	}

	host, err := NewExtensionHost(hostAPI, cfg.SignerTable(), cfg.SandboxPolicy(), st)
	if err != nil {
		st.Close()
		return nil, fmt.Errorf("failed to create extension host: %w", err)
	}

	loops := loop.NewRegistry(st)

	d := &Daemon{
		cfg:       cfg,
		lock:      lockfile.New(cfg.Daemon.LockFile),
		pid:       pidfile.New(cfg.Daemon.PidFile),
		store:     st,
		mail:      mail,
		loops:     loops,
		host:      host,
		watchStop: make(chan struct{}),
	}
	d.server = NewServer(cfg.Daemon.SocketPath, host, loops, mail, st)
	return d, nil
}

// Start acquires the daemon lock, writes the pid file, restricts the
// process where supported and brings up the socket server and mailbox
// watcher.
func (d *Daemon) Start(ctx context.Context) error {
	if err := d.lock.TryAcquire(); err != nil {
		return fmt.Errorf("failed to acquire daemon lock: %w", err)
	}
	if err := d.pid.Write(); err != nil {
		d.lock.Release()
		return fmt.Errorf("failed to write pid file: %w", err)
	}

	if d.cfg.Daemon.Landlock {
		if err := restrictSelf(d.cfg); err != nil {
			logger.Warn("Filesystem self-restriction unavailable: %v", err)
		} else {
			logger.Info("Filesystem self-restriction applied")
		}
	}

	if err := d.server.Start(ctx); err != nil {
		d.pid.Remove()
		d.lock.Release()
		return err
	}

	if err := d.mail.Watch(d.watchStop, func(msg mailbox.Message) {
		logger.Info("Mailbox message %s: %s -> %s (%s)", msg.ID, msg.From, msg.To, msg.Subject)
	}); err != nil {
		logger.Warn("Mailbox watcher not started: %v", err)
	}

	logger.Info("Daemon started (pid %d)", os.Getpid())
	return nil
}

// Stop shuts everything down in reverse order of Start.
func (d *Daemon) Stop() {
	close(d.watchStop)
	d.server.Stop()
	if err := d.store.Close(); err != nil {
		logger.Error("Error closing store: %v", err)
	}
	if err := d.pid.Remove(); err != nil {
		logger.Warn("Failed to remove pid file: %v", err)
	}
	if err := d.lock.Release(); err != nil {
		logger.Warn("Failed to release daemon lock: %v", err)
	}
	logger.Info("Daemon stopped")
}

// Run starts the daemon and blocks until the context is cancelled or an
// interrupt/terminate signal arrives.
func (d *Daemon) Run(ctx context.Context) error {
	if err := d.Start(ctx); err != nil {
		return err
	}
	defer d.Stop()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(sigChan)

	select {
	case <-ctx.Done():
		logger.Info("Shutting down: context cancelled")
	case sig := <-sigChan:
		logger.Info("Shutting down: received %v", sig)
	}
	return nil
}

// Host exposes the extension host for in-process callers.
func (d *Daemon) Host() *ExtensionHost {
	return d.host
}

// Loops exposes the loop registry for in-process callers.
func (d *Daemon) Loops() *loop.Registry {
	return d.loops
}
