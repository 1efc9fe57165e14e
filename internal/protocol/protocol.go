// Package protocol defines the JSON-line message envelope and payloads
// exchanged between the dashboard (and ops tooling) and the daemon over the
// unix control socket.
package protocol

import "encoding/json"

// Message type constants.
const (
	// Connection lifecycle
	TypePing = "ping"
	TypePong = "pong"

	// Loop control
	TypeLoopList   = "loop_list"
	TypeLoopNew    = "loop_new"
	TypeLoopStop   = "loop_stop"
	TypeLoopKill   = "loop_kill"
	TypeLoopDelete = "loop_delete"
	TypeLoopResume = "loop_resume"

	// Extension lifecycle
	TypeExtensionDiscover  = "extension_discover"
	TypeExtensionInstall   = "extension_install"
	TypeExtensionEnable    = "extension_enable"
	TypeExtensionDisable   = "extension_disable"
	TypeExtensionStart     = "extension_start"
	TypeExtensionStop      = "extension_stop"
	TypeExtensionUninstall = "extension_uninstall"
	TypeExtensionList      = "extension_list"
	TypeExtensionEvents    = "extension_events"

	// Sandbox control
	TypeGrantAdd     = "grant_add"
	TypeGrantRevoke  = "grant_revoke"
	TypeGrantList    = "grant_list"
	TypeSandboxCheck = "sandbox_check"
	TypeAuditRecent  = "audit_recent"

	// Mailbox
	TypeMailboxSend = "mailbox_send"
	TypeMailboxList = "mailbox_list"
)

// Request is one client call.
type Request struct {
	ID      string          `json:"id"`
	Type    string          `json:"type"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

// Response answers one request, matched by ID.
type Response struct {
	ID      string          `json:"id"`
	Type    string          `json:"type"`
	OK      bool            `json:"ok"`
	Error   string          `json:"error,omitempty"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

// LoopRef identifies one loop.
type LoopRef struct {
	ID string `json:"id"`
}

// LoopNew creates a loop.
type LoopNew struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

// LoopInfo describes one loop in list responses.
type LoopInfo struct {
	ID        string `json:"id"`
	Name      string `json:"name"`
	State     string `json:"state"`
	CreatedAt int64  `json:"created_at"`
	UpdatedAt int64  `json:"updated_at"`
}

// ExtensionRef identifies one extension.
type ExtensionRef struct {
	PluginID string `json:"plugin_id"`
}

// ExtensionDiscover submits an encoded plugin package.
type ExtensionDiscover struct {
	// Package is the JSON wire form produced by the package encoder.
	Package json.RawMessage `json:"package"`
}

// ExtensionInfo describes one managed extension.
type ExtensionInfo struct {
	PluginID    string   `json:"plugin_id"`
	Name        string   `json:"name"`
	Version     string   `json:"version"`
	State       string   `json:"state"`
	Permissions []string `json:"permissions"`
	LastError   string   `json:"last_error,omitempty"`
}

// ExtensionEvent is one lifecycle event row.
type ExtensionEvent struct {
	PluginID  string `json:"plugin_id"`
	Action    string `json:"action"`
	Timestamp int64  `json:"timestamp"`
	Detail    string `json:"detail,omitempty"`
}

// GrantSpec describes one sandbox grant for add/revoke/list.
type GrantSpec struct {
	ExtensionID     string `json:"extension_id"`
	Capability      string `json:"capability"`
	Scope           string `json:"scope"`
	GrantedBy       string `json:"granted_by,omitempty"`
	Reason          string `json:"reason,omitempty"`
	ExpiresAtEpochS *int64 `json:"expires_at_epoch_s,omitempty"`
}

// SandboxCheck asks the daemon to evaluate one intent for an extension.
type SandboxCheck struct {
	ExtensionID string   `json:"extension_id"`
	Intent      string   `json:"intent"` // read_file, write_file, spawn_process, palette
	Path        string   `json:"path,omitempty"`
	Program     string   `json:"program,omitempty"`
	Args        []string `json:"args,omitempty"`
	Command     string   `json:"command,omitempty"`
}

// SandboxVerdict is the decision returned for a SandboxCheck.
type SandboxVerdict struct {
	Allowed    bool   `json:"allowed"`
	Reason     string `json:"reason"`
	Capability string `json:"capability,omitempty"`
	GrantScope string `json:"grant_scope,omitempty"`
}

// AuditQuery limits audit listing.
type AuditQuery struct {
	Limit int `json:"limit"`
}

// AuditEntry is one audit row in responses.
type AuditEntry struct {
	ExtensionID string `json:"extension_id"`
	Intent      string `json:"intent"`
	Allowed     bool   `json:"allowed"`
	Reason      string `json:"reason"`
	Capability  string `json:"capability,omitempty"`
	GrantScope  string `json:"grant_scope,omitempty"`
}

// MailboxSend posts a message.
type MailboxSend struct {
	From    string `json:"from"`
	To      string `json:"to"`
	Subject string `json:"subject"`
	Body    string `json:"body"`
}

// MailboxEntry is one message in list responses.
type MailboxEntry struct {
	ID        string `json:"id"`
	From      string `json:"from"`
	To        string `json:"to"`
	Subject   string `json:"subject"`
	Body      string `json:"body"`
	CreatedAt int64  `json:"created_at"`
}
