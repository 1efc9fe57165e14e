package client

import (
	"encoding/json"

	"github.com/loopdeck/loopdeck/internal/protocol"
)

// Ping checks daemon liveness.
func (c *Client) Ping() error {
	return c.call(protocol.TypePing, nil, nil)
}

// Loops lists all loops.
func (c *Client) Loops() ([]protocol.LoopInfo, error) {
	var loops []protocol.LoopInfo
	if err := c.call(protocol.TypeLoopList, nil, &loops); err != nil {
		return nil, err
	}
	return loops, nil
}

// NewLoop creates a loop.
func (c *Client) NewLoop(id, name string) (protocol.LoopInfo, error) {
	var info protocol.LoopInfo
	err := c.call(protocol.TypeLoopNew, protocol.LoopNew{ID: id, Name: name}, &info)
	return info, err
}

// StopLoop pauses a loop.
func (c *Client) StopLoop(id string) error {
	return c.call(protocol.TypeLoopStop, protocol.LoopRef{ID: id}, nil)
}

// KillLoop marks a loop dead.
func (c *Client) KillLoop(id string) error {
	return c.call(protocol.TypeLoopKill, protocol.LoopRef{ID: id}, nil)
}

// DeleteLoop removes a loop record.
func (c *Client) DeleteLoop(id string) error {
	return c.call(protocol.TypeLoopDelete, protocol.LoopRef{ID: id}, nil)
}

// ResumeLoop marks a loop running.
func (c *Client) ResumeLoop(id string) error {
	return c.call(protocol.TypeLoopResume, protocol.LoopRef{ID: id}, nil)
}

// DiscoverExtension submits an encoded plugin package for validation and
// registration.
func (c *Client) DiscoverExtension(encodedPackage []byte) (protocol.ExtensionInfo, error) {
	var info protocol.ExtensionInfo
	err := c.call(protocol.TypeExtensionDiscover,
		protocol.ExtensionDiscover{Package: json.RawMessage(encodedPackage)}, &info)
	return info, err
}

// InstallExtension installs a discovered extension.
func (c *Client) InstallExtension(pluginID string) error {
	return c.call(protocol.TypeExtensionInstall, protocol.ExtensionRef{PluginID: pluginID}, nil)
}

// EnableExtension enables an installed extension.
func (c *Client) EnableExtension(pluginID string) error {
	return c.call(protocol.TypeExtensionEnable, protocol.ExtensionRef{PluginID: pluginID}, nil)
}

// DisableExtension disables an extension.
func (c *Client) DisableExtension(pluginID string) error {
	return c.call(protocol.TypeExtensionDisable, protocol.ExtensionRef{PluginID: pluginID}, nil)
}

// StartExtension starts an enabled extension.
func (c *Client) StartExtension(pluginID string) error {
	return c.call(protocol.TypeExtensionStart, protocol.ExtensionRef{PluginID: pluginID}, nil)
}

// StopExtension stops a running extension.
func (c *Client) StopExtension(pluginID string) error {
	return c.call(protocol.TypeExtensionStop, protocol.ExtensionRef{PluginID: pluginID}, nil)
}

// UninstallExtension removes an extension in any state.
func (c *Client) UninstallExtension(pluginID string) error {
	return c.call(protocol.TypeExtensionUninstall, protocol.ExtensionRef{PluginID: pluginID}, nil)
}

// Extensions lists all managed extensions.
func (c *Client) Extensions() ([]protocol.ExtensionInfo, error) {
	var infos []protocol.ExtensionInfo
	if err := c.call(protocol.TypeExtensionList, nil, &infos); err != nil {
		return nil, err
	}
	return infos, nil
}

// ExtensionEvents returns the lifecycle event log.
func (c *Client) ExtensionEvents() ([]protocol.ExtensionEvent, error) {
	var events []protocol.ExtensionEvent
	if err := c.call(protocol.TypeExtensionEvents, nil, &events); err != nil {
		return nil, err
	}
	return events, nil
}

// AddGrant records a sandbox grant.
func (c *Client) AddGrant(spec protocol.GrantSpec) error {
	return c.call(protocol.TypeGrantAdd, spec, nil)
}

// RevokeGrant removes grants matching the spec's extension id, capability
// and scope. Returns how many were removed.
func (c *Client) RevokeGrant(spec protocol.GrantSpec) (int, error) {
	var result struct {
		Removed int `json:"removed"`
	}
	if err := c.call(protocol.TypeGrantRevoke, spec, &result); err != nil {
		return 0, err
	}
	return result.Removed, nil
}

// Grants lists all sandbox grants.
func (c *Client) Grants() ([]protocol.GrantSpec, error) {
	var grants []protocol.GrantSpec
	if err := c.call(protocol.TypeGrantList, nil, &grants); err != nil {
		return nil, err
	}
	return grants, nil
}

// CheckSandbox asks the daemon to evaluate one intent for an extension.
func (c *Client) CheckSandbox(check protocol.SandboxCheck) (protocol.SandboxVerdict, error) {
	var verdict protocol.SandboxVerdict
	err := c.call(protocol.TypeSandboxCheck, check, &verdict)
	return verdict, err
}

// RecentAudit returns the newest audit entries, newest first.
func (c *Client) RecentAudit(limit int) ([]protocol.AuditEntry, error) {
	var entries []protocol.AuditEntry
	if err := c.call(protocol.TypeAuditRecent, protocol.AuditQuery{Limit: limit}, &entries); err != nil {
		return nil, err
	}
	return entries, nil
}

// SendMessage posts a mailbox message.
func (c *Client) SendMessage(from, to, subject, body string) error {
	return c.call(protocol.TypeMailboxSend, protocol.MailboxSend{
		From: from, To: to, Subject: subject, Body: body,
	}, nil)
}

// Messages lists mailbox messages.
func (c *Client) Messages() ([]protocol.MailboxEntry, error) {
	var messages []protocol.MailboxEntry
	if err := c.call(protocol.TypeMailboxList, nil, &messages); err != nil {
		return nil, err
	}
	return messages, nil
}
