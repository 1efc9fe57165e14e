package daemon

import (
	"encoding/json"
	"fmt"

	"github.com/loopdeck/loopdeck/internal/extension"
	"github.com/loopdeck/loopdeck/internal/mailbox"
	"github.com/loopdeck/loopdeck/internal/protocol"
	"github.com/loopdeck/loopdeck/internal/sandbox"
)

// dispatch routes one request to its handler. Handlers run serialized.
func (s *Server) dispatch(req protocol.Request) protocol.Response {
	s.handleMu.Lock()
	defer s.handleMu.Unlock()

	payload, err := s.handle(req)
	resp := protocol.Response{ID: req.ID, Type: req.Type}
	if err != nil {
		resp.Error = err.Error()
		return resp
	}
	resp.OK = true
	resp.Payload = payload
	return resp
}

func (s *Server) handle(req protocol.Request) (json.RawMessage, error) {
	switch req.Type {
	case protocol.TypePing:
		return json.Marshal(map[string]string{"status": protocol.TypePong})

	case protocol.TypeLoopList:
		return s.handleLoopList()
	case protocol.TypeLoopNew:
		return s.handleLoopNew(req.Payload)
	case protocol.TypeLoopStop, protocol.TypeLoopKill, protocol.TypeLoopDelete, protocol.TypeLoopResume:
		return s.handleLoopVerb(req.Type, req.Payload)

	case protocol.TypeExtensionDiscover:
		return s.handleExtensionDiscover(req.Payload)
	case protocol.TypeExtensionInstall, protocol.TypeExtensionEnable, protocol.TypeExtensionDisable,
		protocol.TypeExtensionStart, protocol.TypeExtensionStop, protocol.TypeExtensionUninstall:
		return s.handleExtensionVerb(req.Type, req.Payload)
	case protocol.TypeExtensionList:
		return s.handleExtensionList()
	case protocol.TypeExtensionEvents:
		return s.handleExtensionEvents()

	case protocol.TypeGrantAdd:
		return s.handleGrantAdd(req.Payload)
	case protocol.TypeGrantRevoke:
		return s.handleGrantRevoke(req.Payload)
	case protocol.TypeGrantList:
		return s.handleGrantList()
	case protocol.TypeSandboxCheck:
		return s.handleSandboxCheck(req.Payload)
	case protocol.TypeAuditRecent:
		return s.handleAuditRecent(req.Payload)

	case protocol.TypeMailboxSend:
		return s.handleMailboxSend(req.Payload)
	case protocol.TypeMailboxList:
		return s.handleMailboxList()

	default:
		return nil, fmt.Errorf("unknown request type: %s", req.Type)
	}
}

func (s *Server) handleLoopList() (json.RawMessage, error) {
	records, err := s.loops.List()
	if err != nil {
		return nil, err
	}
	infos := make([]protocol.LoopInfo, 0, len(records))
	for _, rec := range records {
		infos = append(infos, protocol.LoopInfo{
			ID:        rec.ID,
			Name:      rec.Name,
			State:     rec.State,
			CreatedAt: rec.CreatedAt,
			UpdatedAt: rec.UpdatedAt,
		})
	}
	return json.Marshal(infos)
}

func (s *Server) handleLoopNew(payload json.RawMessage) (json.RawMessage, error) {
	var p protocol.LoopNew
	if err := json.Unmarshal(payload, &p); err != nil {
		return nil, fmt.Errorf("invalid loop_new payload: %w", err)
	}
	rec, err := s.loops.New(p.ID, p.Name)
	if err != nil {
		return nil, err
	}
	return json.Marshal(protocol.LoopInfo{
		ID:        rec.ID,
		Name:      rec.Name,
		State:     rec.State,
		CreatedAt: rec.CreatedAt,
		UpdatedAt: rec.UpdatedAt,
	})
}

func (s *Server) handleLoopVerb(reqType string, payload json.RawMessage) (json.RawMessage, error) {
	var ref protocol.LoopRef
	if err := json.Unmarshal(payload, &ref); err != nil {
		return nil, fmt.Errorf("invalid loop payload: %w", err)
	}

	var err error
	switch reqType {
	case protocol.TypeLoopStop:
		err = s.loops.Stop(ref.ID)
	case protocol.TypeLoopKill:
		err = s.loops.Kill(ref.ID)
	case protocol.TypeLoopDelete:
		err = s.loops.Delete(ref.ID)
	case protocol.TypeLoopResume:
		err = s.loops.Resume(ref.ID)
	}
	if err != nil {
		return nil, err
	}
	return nil, nil
}

func (s *Server) handleExtensionDiscover(payload json.RawMessage) (json.RawMessage, error) {
	var p protocol.ExtensionDiscover
	if err := json.Unmarshal(payload, &p); err != nil {
		return nil, fmt.Errorf("invalid extension_discover payload: %w", err)
	}
	pkg, err := extension.DecodePluginPackage(p.Package)
	if err != nil {
		return nil, err
	}
	plugin, err := s.host.Discover(pkg)
	if err != nil {
		return nil, err
	}
	return json.Marshal(extensionInfo(plugin))
}

func (s *Server) handleExtensionVerb(reqType string, payload json.RawMessage) (json.RawMessage, error) {
	var ref protocol.ExtensionRef
	if err := json.Unmarshal(payload, &ref); err != nil {
		return nil, fmt.Errorf("invalid extension payload: %w", err)
	}

	var err error
	switch reqType {
	case protocol.TypeExtensionInstall:
		err = s.host.Install(ref.PluginID)
	case protocol.TypeExtensionEnable:
		err = s.host.SetEnabled(ref.PluginID, true)
	case protocol.TypeExtensionDisable:
		err = s.host.SetEnabled(ref.PluginID, false)
	case protocol.TypeExtensionStart:
		err = s.host.SetRunning(ref.PluginID, true)
	case protocol.TypeExtensionStop:
		err = s.host.SetRunning(ref.PluginID, false)
	case protocol.TypeExtensionUninstall:
		err = s.host.Uninstall(ref.PluginID)
	}
	if err != nil {
		return nil, err
	}
	return nil, nil
}

func (s *Server) handleExtensionList() (json.RawMessage, error) {
	plugins := s.host.List()
	infos := make([]protocol.ExtensionInfo, 0, len(plugins))
	for _, plugin := range plugins {
		infos = append(infos, extensionInfo(plugin))
	}
	return json.Marshal(infos)
}

func (s *Server) handleExtensionEvents() (json.RawMessage, error) {
	events := s.host.Events()
	out := make([]protocol.ExtensionEvent, 0, len(events))
	for _, ev := range events {
		out = append(out, protocol.ExtensionEvent{
			PluginID:  ev.PluginID,
			Action:    ev.Action,
			Timestamp: ev.Timestamp,
			Detail:    ev.Detail,
		})
	}
	return json.Marshal(out)
}

func (s *Server) handleGrantAdd(payload json.RawMessage) (json.RawMessage, error) {
	var p protocol.GrantSpec
	if err := json.Unmarshal(payload, &p); err != nil {
		return nil, fmt.Errorf("invalid grant_add payload: %w", err)
	}
	capability, err := sandbox.ParseCapability(p.Capability)
	if err != nil {
		return nil, err
	}
	return nil, s.host.AddGrant(sandbox.Grant{
		ExtensionID:     p.ExtensionID,
		Capability:      capability,
		Scope:           p.Scope,
		GrantedBy:       p.GrantedBy,
		Reason:          p.Reason,
		ExpiresAtEpochS: p.ExpiresAtEpochS,
	})
}

func (s *Server) handleGrantRevoke(payload json.RawMessage) (json.RawMessage, error) {
	var p protocol.GrantSpec
	if err := json.Unmarshal(payload, &p); err != nil {
		return nil, fmt.Errorf("invalid grant_revoke payload: %w", err)
	}
	capability, err := sandbox.ParseCapability(p.Capability)
	if err != nil {
		return nil, err
	}
	removed, err := s.host.RevokeGrant(p.ExtensionID, capability, p.Scope)
	if err != nil {
		return nil, err
	}
	return json.Marshal(map[string]int{"removed": removed})
}

func (s *Server) handleGrantList() (json.RawMessage, error) {
	grants := s.host.Grants()
	out := make([]protocol.GrantSpec, 0, len(grants))
	for _, g := range grants {
		out = append(out, protocol.GrantSpec{
			ExtensionID:     g.ExtensionID,
			Capability:      g.Capability.String(),
			Scope:           g.Scope,
			GrantedBy:       g.GrantedBy,
			Reason:          g.Reason,
			ExpiresAtEpochS: g.ExpiresAtEpochS,
		})
	}
	return json.Marshal(out)
}

func (s *Server) handleSandboxCheck(payload json.RawMessage) (json.RawMessage, error) {
	var p protocol.SandboxCheck
	if err := json.Unmarshal(payload, &p); err != nil {
		return nil, fmt.Errorf("invalid sandbox_check payload: %w", err)
	}
	intent, err := intentFromCheck(p)
	if err != nil {
		return nil, err
	}

	decision := s.host.Authorize(p.ExtensionID, intent)
	verdict := protocol.SandboxVerdict{
		Allowed:    decision.Allowed,
		Reason:     decision.Reason,
		GrantScope: decision.GrantScope,
	}
	if decision.Capability != sandbox.CapabilityNone {
		verdict.Capability = decision.Capability.String()
	}
	return json.Marshal(verdict)
}

func (s *Server) handleAuditRecent(payload json.RawMessage) (json.RawMessage, error) {
	var q protocol.AuditQuery
	if len(payload) > 0 {
		if err := json.Unmarshal(payload, &q); err != nil {
			return nil, fmt.Errorf("invalid audit_recent payload: %w", err)
		}
	}
	records, err := s.store.RecentAudit(q.Limit)
	if err != nil {
		return nil, err
	}
	out := make([]protocol.AuditEntry, 0, len(records))
	for _, rec := range records {
		out = append(out, protocol.AuditEntry{
			ExtensionID: rec.ExtensionID,
			Intent:      rec.Intent,
			Allowed:     rec.Allowed,
			Reason:      rec.Reason,
			Capability:  rec.Capability,
			GrantScope:  rec.GrantScope,
		})
	}
	return json.Marshal(out)
}

func (s *Server) handleMailboxSend(payload json.RawMessage) (json.RawMessage, error) {
	var p protocol.MailboxSend
	if err := json.Unmarshal(payload, &p); err != nil {
		return nil, fmt.Errorf("invalid mailbox_send payload: %w", err)
	}
	return nil, s.mail.Put(mailbox.Message{
		From:    p.From,
		To:      p.To,
		Subject: p.Subject,
		Body:    p.Body,
	})
}

func (s *Server) handleMailboxList() (json.RawMessage, error) {
	messages, err := s.mail.List()
	if err != nil {
		return nil, err
	}
	out := make([]protocol.MailboxEntry, 0, len(messages))
	for _, msg := range messages {
		out = append(out, protocol.MailboxEntry{
			ID:        msg.ID,
			From:      msg.From,
			To:        msg.To,
			Subject:   msg.Subject,
			Body:      msg.Body,
			CreatedAt: msg.CreatedAt,
		})
	}
	return json.Marshal(out)
}

// intentFromCheck converts the wire form into a typed sandbox intent.
func intentFromCheck(p protocol.SandboxCheck) (sandbox.Intent, error) {
	switch p.Intent {
	case "read_file":
		return sandbox.ReadFile{Path: p.Path}, nil
	case "write_file":
		return sandbox.WriteFile{Path: p.Path}, nil
	case "spawn_process":
		return sandbox.SpawnProcess{Program: p.Program, Args: p.Args}, nil
	case "palette":
		return sandbox.RunPaletteCommand{Command: p.Command}, nil
	default:
		return nil, fmt.Errorf("unknown intent kind: %q", p.Intent)
	}
}

func extensionInfo(plugin *extension.ManagedPlugin) protocol.ExtensionInfo {
	manifest := plugin.Package.Manifest
	perms := make([]string, 0, len(manifest.RequiredPermissions))
	for _, p := range manifest.RequiredPermissions {
		perms = append(perms, p.String())
	}
	return protocol.ExtensionInfo{
		PluginID:    plugin.ID(),
		Name:        manifest.Name,
		Version:     manifest.Version,
		State:       plugin.State.String(),
		Permissions: perms,
		LastError:   plugin.LastError,
	}
}
