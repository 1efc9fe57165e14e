package daemon

import (
	"fmt"
	"time"

	"github.com/loopdeck/loopdeck/internal/extension"
	"github.com/loopdeck/loopdeck/internal/logger"
	"github.com/loopdeck/loopdeck/internal/sandbox"
	"github.com/loopdeck/loopdeck/internal/store"
)

// ExtensionHost owns the package manager, the grant registry and the
// sandbox policy. The manager and registry provide no locking of their own;
// the host is the single serialization boundary for both (callers go
// through the daemon's handler mutex).
type ExtensionHost struct {
	manager *extension.Manager
	grants  *sandbox.GrantRegistry
	policy  *sandbox.Policy
	store   *store.Store
	now     func() int64
}

// NewExtensionHost builds the host. When persisted grants exist in the
// store they are loaded into the registry.
func NewExtensionHost(hostAPI extension.HostAPIVersion, signers *extension.SignerTable,
	policy *sandbox.Policy, s *store.Store) (*ExtensionHost, error) {
	grants := sandbox.NewGrantRegistry()
	if s != nil {
		loaded, err := s.LoadGrants()
		if err != nil {
			return nil, fmt.Errorf("failed to load persisted grants: %w", err)
		}
		grants = loaded
	}
	if policy == nil {
		policy = sandbox.DefaultPolicy()
	}
	return &ExtensionHost{
		manager: extension.NewManager(hostAPI, signers),
		grants:  grants,
		policy:  policy,
		store:   s,
		now:     func() int64 { return time.Now().Unix() },
	}, nil
}

// Discover validates and registers a package, mirroring the lifecycle event
// into the durable log.
func (h *ExtensionHost) Discover(pkg *extension.Package) (*extension.ManagedPlugin, error) {
	plugin, err := h.manager.Discover(pkg, h.now())
	if err != nil {
		return nil, err
	}
	h.mirrorLatestEvent()
	return plugin, nil
}

// Install installs a discovered extension.
func (h *ExtensionHost) Install(pluginID string) error {
	if err := h.manager.Install(pluginID, h.now()); err != nil {
		return err
	}
	h.mirrorLatestEvent()
	return nil
}

// SetEnabled enables or disables an extension.
func (h *ExtensionHost) SetEnabled(pluginID string, enabled bool) error {
	if err := h.manager.SetEnabled(pluginID, enabled, h.now()); err != nil {
		return err
	}
	h.mirrorLatestEvent()
	return nil
}

// SetRunning starts or stops an extension.
func (h *ExtensionHost) SetRunning(pluginID string, running bool) error {
	if err := h.manager.SetRunning(pluginID, running, h.now()); err != nil {
		return err
	}
	h.mirrorLatestEvent()
	return nil
}

// Uninstall removes an extension from the registry.
func (h *ExtensionHost) Uninstall(pluginID string) error {
	if err := h.manager.Uninstall(pluginID, h.now()); err != nil {
		return err
	}
	h.mirrorLatestEvent()
	return nil
}

// Get returns one managed extension.
func (h *ExtensionHost) Get(pluginID string) (*extension.ManagedPlugin, error) {
	return h.manager.Get(pluginID)
}

// List returns all managed extensions.
func (h *ExtensionHost) List() []*extension.ManagedPlugin {
	return h.manager.List()
}

// Events returns the in-memory lifecycle event log.
func (h *ExtensionHost) Events() []extension.LifecycleEvent {
	return h.manager.Events()
}

// AddGrant records a grant in the registry and persists its normalized
// form so reloads and revocations match.
func (h *ExtensionHost) AddGrant(g sandbox.Grant) error {
	g.ExtensionID = sandbox.NormalizeSubject(g.ExtensionID)
	g.Scope = sandbox.NormalizeSubject(g.Scope)
	h.grants.Grant(g)
	if h.store != nil {
		return h.store.SaveGrant(g)
	}
	return nil
}

// RevokeGrant removes matching grants from the registry and the store.
func (h *ExtensionHost) RevokeGrant(extensionID string, capability sandbox.Capability, scope string) (int, error) {
	removed := h.grants.Revoke(extensionID, capability, scope)
	if removed > 0 && h.store != nil {
		err := h.store.DeleteGrants(
			sandbox.NormalizeSubject(extensionID), capability, sandbox.NormalizeSubject(scope))
		if err != nil {
			return removed, err
		}
	}
	return removed, nil
}

// Grants lists all grants.
func (h *ExtensionHost) Grants() []sandbox.Grant {
	return h.grants.Grants()
}

// Authorize evaluates one runtime intent for an extension. Permissions are
// sourced from the extension's currently-declared manifest on every call;
// an unknown or non-running extension gets an empty permission set, which
// the engine denies for anything permission-gated. The audit record is
// appended to the durable audit log before returning.
func (h *ExtensionHost) Authorize(extensionID string, intent sandbox.Intent) sandbox.Decision {
	var perms []extension.Permission
	if plugin, err := h.manager.Get(extensionID); err == nil {
		perms = plugin.Package.Manifest.RequiredPermissions
	}

	decision, audit := sandbox.Evaluate(sandbox.Request{
		ExtensionID: extensionID,
		Permissions: perms,
		NowEpochS:   h.now(),
		Intent:      intent,
	}, h.policy, h.grants)

	if h.store != nil {
		if err := h.store.AppendAudit(audit, h.now()); err != nil {
			logger.Error("Failed to persist sandbox audit record: %v", err)
		}
	}
	if !decision.Allowed {
		logger.Info("Sandbox denied %s for %s: %s", audit.Intent, audit.ExtensionID, decision.Reason)
	}
	return decision
}

// Policy returns the active sandbox policy.
func (h *ExtensionHost) Policy() *sandbox.Policy {
	return h.policy
}

// mirrorLatestEvent copies the newest in-memory lifecycle event into the
// durable extension_events table.
func (h *ExtensionHost) mirrorLatestEvent() {
	if h.store == nil {
		return
	}
	events := h.manager.Events()
	if len(events) == 0 {
		return
	}
	ev := events[len(events)-1]
	if err := h.store.AppendExtensionEvent(ev.PluginID, ev.Action, ev.Timestamp, ev.Detail); err != nil {
		logger.Error("Failed to mirror lifecycle event: %v", err)
	}
}
