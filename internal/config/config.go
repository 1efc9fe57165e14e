// Package config loads the loopdeck YAML configuration file shared by the
// daemon and the dashboard.
package config

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"

	"github.com/loopdeck/loopdeck/internal/extension"
	"github.com/loopdeck/loopdeck/internal/sandbox"
)

// DefaultConfigPath is where Load looks when no explicit path is given.
const DefaultConfigPath = "~/.loopdeck/config.yaml"

// DaemonConfig configures the daemon process.
type DaemonConfig struct {
	SocketPath   string `yaml:"socket_path" validate:"required"`
	PidFile      string `yaml:"pid_file" validate:"required"`
	LockFile     string `yaml:"lock_file" validate:"required"`
	DatabasePath string `yaml:"database_path" validate:"required"`
	LogPath      string `yaml:"log_path"`
	LogLevel     string `yaml:"log_level" validate:"omitempty,oneof=debug info warn error none"`
	// Landlock restricts the daemon's own filesystem view to the sandbox
	// policy roots on Linux. Best effort: older kernels degrade gracefully.
	Landlock bool `yaml:"landlock"`
}

// MailboxConfig configures the filesystem-backed mailbox.
type MailboxConfig struct {
	Dir string `yaml:"dir" validate:"required"`
}

// SandboxConfig seeds the extension sandbox policy.
type SandboxConfig struct {
	RequireGrantForFilesystem *bool    `yaml:"require_grant_for_filesystem"`
	RequireGrantForProcess    *bool    `yaml:"require_grant_for_process"`
	AllowedReadRoots          []string `yaml:"allowed_read_roots"`
	AllowedWriteRoots         []string `yaml:"allowed_write_roots"`
	BlockedPathPrefixes       []string `yaml:"blocked_path_prefixes"`
	AllowedProgramPrefixes    []string `yaml:"allowed_program_prefixes"`
}

// SignerConfig names one trusted extension signer. The shared secret is
// never stored in the config file; KeyEnv names the environment variable
// holding it.
type SignerConfig struct {
	ID     string `yaml:"id" validate:"required"`
	KeyEnv string `yaml:"key_env" validate:"required"`
}

// ExtensionsConfig configures the extension host.
type ExtensionsConfig struct {
	HostAPI string         `yaml:"host_api" validate:"required"`
	Signers []SignerConfig `yaml:"signers" validate:"dive"`
}

// Config is the full loopdeck configuration.
type Config struct {
	Daemon     DaemonConfig     `yaml:"daemon"`
	Mailbox    MailboxConfig    `yaml:"mailbox"`
	Sandbox    SandboxConfig    `yaml:"sandbox"`
	Extensions ExtensionsConfig `yaml:"extensions"`
}

// Default returns the configuration used when no file exists.
func Default() *Config {
	base := baseDir()
	return &Config{
		Daemon: DaemonConfig{
			SocketPath:   filepath.Join(base, "daemon.sock"),
			PidFile:      filepath.Join(base, "daemon.pid"),
			LockFile:     filepath.Join(base, "daemon.lock"),
			DatabasePath: filepath.Join(base, "loopdeck.db"),
			LogPath:      filepath.Join(base, "loopdeck.log"),
			LogLevel:     "info",
		},
		Mailbox: MailboxConfig{
			Dir: filepath.Join(base, "mailbox"),
		},
		Extensions: ExtensionsConfig{
			HostAPI: "1.0",
		},
	}
}

// Load reads and validates the configuration. A missing file yields the
// defaults; a malformed or invalid file is an error.
func Load(path string) (*Config, error) {
	cfg := Default()

	path = expandHome(path)
	if path == "" {
		path = expandHome(DefaultConfigPath)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return cfg, nil
		}
		return nil, fmt.Errorf("failed to read config file %s: %w", path, err)
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config file %s: %w", path, err)
	}

	if v := os.Getenv("LOOPDECK_SOCKET"); v != "" {
		cfg.Daemon.SocketPath = v
	}
	if v := os.Getenv("LOOPDECK_DB"); v != "" {
		cfg.Daemon.DatabasePath = v
	}
	if v := os.Getenv("LOOPDECK_LOG_LEVEL"); v != "" {
		cfg.Daemon.LogLevel = v
	}

	if err := validator.New().Struct(cfg); err != nil {
		return nil, fmt.Errorf("invalid configuration in %s: %w", path, err)
	}
	return cfg, nil
}

// SandboxPolicy materializes the sandbox policy from the config. The
// require-grant flags default to true when unset.
func (c *Config) SandboxPolicy() *sandbox.Policy {
	policy := sandbox.DefaultPolicy()
	if c.Sandbox.RequireGrantForFilesystem != nil {
		policy.RequireExplicitGrantForFilesystem = *c.Sandbox.RequireGrantForFilesystem
	}
	if c.Sandbox.RequireGrantForProcess != nil {
		policy.RequireExplicitGrantForProcess = *c.Sandbox.RequireGrantForProcess
	}
	policy.AllowedReadRoots = append([]string(nil), c.Sandbox.AllowedReadRoots...)
	policy.AllowedWriteRoots = append([]string(nil), c.Sandbox.AllowedWriteRoots...)
	policy.BlockedPathPrefixes = append([]string(nil), c.Sandbox.BlockedPathPrefixes...)
	policy.AllowedProgramPrefixes = append([]string(nil), c.Sandbox.AllowedProgramPrefixes...)
	return policy
}

// HostAPIVersion parses the configured extension host API version.
func (c *Config) HostAPIVersion() (extension.HostAPIVersion, error) {
	return extension.ParseHostAPIVersion(c.Extensions.HostAPI)
}

// SignerTable builds the trusted-signer table by resolving each signer's
// key environment variable. Signers whose variable is unset are skipped
// rather than trusted with an empty secret.
func (c *Config) SignerTable() *extension.SignerTable {
	table := extension.NewSignerTable()
	for _, signer := range c.Extensions.Signers {
		secret := os.Getenv(signer.KeyEnv)
		if secret == "" {
			continue
		}
		table.Trust(signer.ID, secret)
	}
	return table
}

func baseDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ".loopdeck"
	}
	return filepath.Join(home, ".loopdeck")
}

func expandHome(path string) string {
	if len(path) >= 2 && path[:2] == "~/" {
		home, err := os.UserHomeDir()
		if err == nil {
			return filepath.Join(home, path[2:])
		}
	}
	return path
}
