// Package extension implements the dashboard's extension trust subsystem:
// the signed package format, signature verification against a trusted-signer
// table, and the lifecycle registry that drives installed plugins through
// discovered/installed/enabled/running states with an append-only event log.
package extension

import (
	"fmt"

	"github.com/loopdeck/loopdeck/internal/logger"
)

// ManagedPlugin wraps a verified package with its lifecycle state. Created
// by Manager.Discover, mutated in place by lifecycle calls, removed by
// Uninstall.
type ManagedPlugin struct {
	Package      *Package
	State        LifecycleState
	DiscoveredAt *int64
	InstalledAt  *int64
	EnabledAt    *int64
	RunningAt    *int64
	LastError    string
}

// ID returns the plugin's normalized identity key.
func (p *ManagedPlugin) ID() string {
	return NormalizeIdentifier(p.Package.Manifest.PluginID)
}

// LifecycleEvent is one append-only audit record of a registry mutation.
// Events are never edited or deleted; ordering is insertion order.
type LifecycleEvent struct {
	PluginID  string
	Action    string
	Timestamp int64
	Detail    string
}

// Manager is the extension package registry. It provides no internal
// locking: the owning host serializes access (see the daemon's extension
// host, which wraps it in a mutex).
type Manager struct {
	hostAPI HostAPIVersion
	signers *SignerTable
	plugins map[string]*ManagedPlugin
	events  []LifecycleEvent
}

// NewManager creates a registry for a host exposing the given API version,
// trusting the signers in the table.
func NewManager(hostAPI HostAPIVersion, signers *SignerTable) *Manager {
	if signers == nil {
		signers = NewSignerTable()
	}
	return &Manager{
		hostAPI: hostAPI,
		signers: signers,
		plugins: make(map[string]*ManagedPlugin),
	}
}

// HostAPI returns the host API version this registry validates against.
func (m *Manager) HostAPI() HostAPIVersion { return m.hostAPI }

// Discover validates a submitted package and registers it in state
// discovered. Three gates run in order so callers can tell malformed input
// (ErrInvalidPackageSchema, ErrInvalidPluginID, ErrInvalidPackage) apart
// from trust failures (ErrUntrustedSigner, ErrSignatureMismatch) and
// compatibility failures (ErrHostIncompatible). A duplicate normalized id
// fails with ErrAlreadyExists and leaves the registry unchanged.
func (m *Manager) Discover(pkg *Package, now int64) (*ManagedPlugin, error) {
	if err := validateShape(pkg); err != nil {
		return nil, err
	}
	if err := VerifyPluginPackage(pkg, m.signers); err != nil {
		return nil, err
	}
	if err := EnsureHostCompatibility(m.hostAPI, pkg.Manifest.MinHostAPI, pkg.Manifest.MaxHostAPI); err != nil {
		return nil, err
	}

	id := NormalizeIdentifier(pkg.Manifest.PluginID)
	if _, ok := m.plugins[id]; ok {
		return nil, fmt.Errorf("%w: %s", ErrAlreadyExists, id)
	}

	discoveredAt := now
	plugin := &ManagedPlugin{
		Package:      pkg,
		State:        StateDiscovered,
		DiscoveredAt: &discoveredAt,
	}
	m.plugins[id] = plugin
	m.appendEvent(id, "discover", now, fmt.Sprintf("discovered package version %s signed by %s",
		pkg.Manifest.Version, NormalizeIdentifier(pkg.Signature.Signer)))
	logger.Info("Discovered extension %s (version %s)", id, pkg.Manifest.Version)
	return plugin, nil
}

// Install moves a discovered plugin to installed.
func (m *Manager) Install(pluginID string, now int64) error {
	plugin, err := m.get(pluginID)
	if err != nil {
		return err
	}
	next, err := transition(plugin.State, callInstall)
	if err != nil {
		plugin.LastError = err.Error()
		return err
	}
	plugin.State = next
	installedAt := now
	plugin.InstalledAt = &installedAt
	plugin.LastError = ""
	m.appendEvent(plugin.ID(), "install", now, "package installed")
	return nil
}

// SetEnabled enables a discovered or installed plugin, or collapses an
// enabled or running plugin back to installed.
func (m *Manager) SetEnabled(pluginID string, enabled bool, now int64) error {
	plugin, err := m.get(pluginID)
	if err != nil {
		return err
	}
	call := callEnable
	if !enabled {
		call = callDisable
	}
	next, err := transition(plugin.State, call)
	if err != nil {
		plugin.LastError = err.Error()
		return err
	}
	plugin.State = next
	plugin.LastError = ""
	if enabled {
		enabledAt := now
		plugin.EnabledAt = &enabledAt
		m.appendEvent(plugin.ID(), "enable", now, "extension enabled")
	} else {
		plugin.RunningAt = nil
		m.appendEvent(plugin.ID(), "disable", now, "extension disabled")
	}
	return nil
}

// SetRunning starts an enabled plugin or stops a running one.
func (m *Manager) SetRunning(pluginID string, running bool, now int64) error {
	plugin, err := m.get(pluginID)
	if err != nil {
		return err
	}
	call := callStart
	if !running {
		call = callStop
	}
	next, err := transition(plugin.State, call)
	if err != nil {
		plugin.LastError = err.Error()
		return err
	}
	plugin.State = next
	plugin.LastError = ""
	if running {
		runningAt := now
		plugin.RunningAt = &runningAt
		m.appendEvent(plugin.ID(), "start", now, "extension started")
	} else {
		plugin.RunningAt = nil
		m.appendEvent(plugin.ID(), "stop", now, "extension stopped")
	}
	return nil
}

// Uninstall removes a plugin from the registry. Valid from any state.
func (m *Manager) Uninstall(pluginID string, now int64) error {
	plugin, err := m.get(pluginID)
	if err != nil {
		return err
	}
	id := plugin.ID()
	delete(m.plugins, id)
	m.appendEvent(id, "uninstall", now, "extension uninstalled")
	logger.Info("Uninstalled extension %s", id)
	return nil
}

// Get returns the managed plugin for a (possibly un-normalized) id.
func (m *Manager) Get(pluginID string) (*ManagedPlugin, error) {
	return m.get(pluginID)
}

// List returns all managed plugins in unspecified order.
func (m *Manager) List() []*ManagedPlugin {
	out := make([]*ManagedPlugin, 0, len(m.plugins))
	for _, p := range m.plugins {
		out = append(out, p)
	}
	return out
}

// Events returns a copy of the append-only lifecycle event log.
func (m *Manager) Events() []LifecycleEvent {
	out := make([]LifecycleEvent, len(m.events))
	copy(out, m.events)
	return out
}

func (m *Manager) get(pluginID string) (*ManagedPlugin, error) {
	plugin, ok := m.plugins[NormalizeIdentifier(pluginID)]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, NormalizeIdentifier(pluginID))
	}
	return plugin, nil
}

func (m *Manager) appendEvent(pluginID, action string, now int64, detail string) {
	m.events = append(m.events, LifecycleEvent{
		PluginID:  pluginID,
		Action:    action,
		Timestamp: now,
		Detail:    detail,
	})
}
