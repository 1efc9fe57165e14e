//go:build linux

package daemon

import (
	"fmt"
	"os"
	"path/filepath"

	landlock "github.com/landlock-lsm/go-landlock/landlock"

	"github.com/loopdeck/loopdeck/internal/config"
	"github.com/loopdeck/loopdeck/internal/logger"
)

// restrictSelf confines the daemon's filesystem view using Landlock. The
// read and write roots come from the sandbox policy; the daemon's own
// state paths are always writable. Best effort: kernels without Landlock
// degrade to no restriction.
func restrictSelf(cfg *config.Config) error {
	policy := cfg.SandboxPolicy()

	roDirs := []string{"/usr", "/bin", "/lib", "/lib64", "/etc"}
	roDirs = append(roDirs, policy.AllowedReadRoots...)

	rwDirs := []string{
		filepath.Dir(cfg.Daemon.DatabasePath),
		filepath.Dir(cfg.Daemon.SocketPath),
		filepath.Dir(cfg.Daemon.PidFile),
		filepath.Dir(cfg.Daemon.LockFile),
		cfg.Mailbox.Dir,
		os.TempDir(),
	}
	if cfg.Daemon.LogPath != "" {
		rwDirs = append(rwDirs, filepath.Dir(cfg.Daemon.LogPath))
	}
	rwDirs = append(rwDirs, policy.AllowedWriteRoots...)

	rules := make([]landlock.Rule, 0, len(roDirs)+len(rwDirs))
	for _, path := range roDirs {
		if path = existingAbs(path); path != "" {
			rules = append(rules, landlock.RODirs(path))
		}
	}
	for _, path := range rwDirs {
		if path = existingAbs(path); path != "" {
			rules = append(rules, landlock.RWDirs(path))
		}
	}

	if err := landlock.V6.BestEffort().RestrictPaths(rules...); err != nil {
		return fmt.Errorf("landlock restriction failed: %w", err)
	}
	logger.Debug("Landlock rules applied: %d read-only, %d read-write", len(roDirs), len(rwDirs))
	return nil
}

// existingAbs resolves a path and drops it when it does not exist, since
// Landlock rejects rules for missing paths.
func existingAbs(path string) string {
	if path == "" {
		return ""
	}
	absPath, err := filepath.Abs(path)
	if err != nil {
		return ""
	}
	if _, err := os.Stat(absPath); err != nil {
		return ""
	}
	return absPath
}
