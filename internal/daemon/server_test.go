package daemon

import (
	"encoding/json"
	"path/filepath"
	"testing"

	"github.com/loopdeck/loopdeck/internal/extension"
	"github.com/loopdeck/loopdeck/internal/loop"
	"github.com/loopdeck/loopdeck/internal/mailbox"
	"github.com/loopdeck/loopdeck/internal/protocol"
	"github.com/loopdeck/loopdeck/internal/store"
)

func testServer(t *testing.T) *Server {
	t.Helper()

	dir := t.TempDir()
	st, err := store.Open(filepath.Join(dir, "test.db"))
	if err != nil {
		t.Fatalf("Open failed: %v", err)
	}
	t.Cleanup(func() { st.Close() })

	mail, err := mailbox.Open(filepath.Join(dir, "mailbox"))
	if err != nil {
		t.Fatalf("mailbox.Open failed: %v", err)
	}

	signers := extension.NewSignerTable()
	signers.Trust("forge-team", "super-secret")
	host, err := NewExtensionHost(extension.HostAPIVersion{Major: 1, Minor: 4}, signers, nil, st)
	if err != nil {
		t.Fatalf("NewExtensionHost failed: %v", err)
	}

	return NewServer(filepath.Join(dir, "test.sock"), host, loop.NewRegistry(st), mail, st)
}

func call(t *testing.T, s *Server, reqType string, payload interface{}) protocol.Response {
	t.Helper()

	var raw json.RawMessage
	if payload != nil {
		data, err := json.Marshal(payload)
		if err != nil {
			t.Fatalf("marshal payload: %v", err)
		}
		raw = data
	}
	return s.dispatch(protocol.Request{ID: "req-1", Type: reqType, Payload: raw})
}

func TestDispatchPing(t *testing.T) {
	s := testServer(t)

	resp := call(t, s, protocol.TypePing, nil)
	if !resp.OK {
		t.Fatalf("ping failed: %s", resp.Error)
	}
	if resp.ID != "req-1" || resp.Type != protocol.TypePing {
		t.Errorf("response envelope mismatch: %+v", resp)
	}
}

func TestDispatchUnknownType(t *testing.T) {
	s := testServer(t)

	resp := call(t, s, "bogus", nil)
	if resp.OK {
		t.Fatal("expected error for unknown request type")
	}
	if resp.Error == "" {
		t.Error("expected error message")
	}
}

func TestDispatchExtensionFlow(t *testing.T) {
	s := testServer(t)

	encoded, err := extension.EncodePluginPackage(signedPackage())
	if err != nil {
		t.Fatalf("EncodePluginPackage failed: %v", err)
	}

	resp := call(t, s, protocol.TypeExtensionDiscover, protocol.ExtensionDiscover{Package: encoded})
	if !resp.OK {
		t.Fatalf("discover failed: %s", resp.Error)
	}
	var info protocol.ExtensionInfo
	if err := json.Unmarshal(resp.Payload, &info); err != nil {
		t.Fatalf("unmarshal discover payload: %v", err)
	}
	if info.PluginID != "plugin-alpha" || info.State != "discovered" {
		t.Errorf("unexpected extension info: %+v", info)
	}

	ref := protocol.ExtensionRef{PluginID: "plugin-alpha"}
	for _, reqType := range []string{
		protocol.TypeExtensionInstall,
		protocol.TypeExtensionEnable,
		protocol.TypeExtensionStart,
	} {
		if resp := call(t, s, reqType, ref); !resp.OK {
			t.Fatalf("%s failed: %s", reqType, resp.Error)
		}
	}

	resp = call(t, s, protocol.TypeExtensionList, nil)
	if !resp.OK {
		t.Fatalf("list failed: %s", resp.Error)
	}
	var infos []protocol.ExtensionInfo
	if err := json.Unmarshal(resp.Payload, &infos); err != nil {
		t.Fatalf("unmarshal list payload: %v", err)
	}
	if len(infos) != 1 || infos[0].State != "running" {
		t.Errorf("expected one running extension, got %+v", infos)
	}
}

func TestDispatchExtensionInvalidTransition(t *testing.T) {
	s := testServer(t)

	encoded, err := extension.EncodePluginPackage(signedPackage())
	if err != nil {
		t.Fatalf("EncodePluginPackage failed: %v", err)
	}
	if resp := call(t, s, protocol.TypeExtensionDiscover, protocol.ExtensionDiscover{Package: encoded}); !resp.OK {
		t.Fatalf("discover failed: %s", resp.Error)
	}

	// Start straight from discovered must fail.
	resp := call(t, s, protocol.TypeExtensionStart, protocol.ExtensionRef{PluginID: "plugin-alpha"})
	if resp.OK {
		t.Fatal("expected invalid transition error")
	}
}

func TestDispatchSandboxCheck(t *testing.T) {
	s := testServer(t)

	encoded, err := extension.EncodePluginPackage(signedPackage())
	if err != nil {
		t.Fatalf("EncodePluginPackage failed: %v", err)
	}
	if resp := call(t, s, protocol.TypeExtensionDiscover, protocol.ExtensionDiscover{Package: encoded}); !resp.OK {
		t.Fatalf("discover failed: %s", resp.Error)
	}

	resp := call(t, s, protocol.TypeGrantAdd, protocol.GrantSpec{
		ExtensionID: "plugin-alpha",
		Capability:  "FilesystemRead",
		Scope:       "./logs",
	})
	if !resp.OK {
		t.Fatalf("grant_add failed: %s", resp.Error)
	}

	resp = call(t, s, protocol.TypeSandboxCheck, protocol.SandboxCheck{
		ExtensionID: "plugin-alpha",
		Intent:      "read_file",
		Path:        "./logs/run.log",
	})
	if !resp.OK {
		t.Fatalf("sandbox_check failed: %s", resp.Error)
	}
	var verdict protocol.SandboxVerdict
	if err := json.Unmarshal(resp.Payload, &verdict); err != nil {
		t.Fatalf("unmarshal verdict: %v", err)
	}
	if !verdict.Allowed {
		t.Errorf("expected allow, got deny: %s", verdict.Reason)
	}

	resp = call(t, s, protocol.TypeAuditRecent, protocol.AuditQuery{Limit: 5})
	if !resp.OK {
		t.Fatalf("audit_recent failed: %s", resp.Error)
	}
	var entries []protocol.AuditEntry
	if err := json.Unmarshal(resp.Payload, &entries); err != nil {
		t.Fatalf("unmarshal audit payload: %v", err)
	}
	if len(entries) != 1 || !entries[0].Allowed {
		t.Errorf("expected one allowed audit entry, got %+v", entries)
	}
}

func TestDispatchLoopAndMailbox(t *testing.T) {
	s := testServer(t)

	resp := call(t, s, protocol.TypeLoopNew, protocol.LoopNew{ID: "loop-1", Name: "builder"})
	if !resp.OK {
		t.Fatalf("loop_new failed: %s", resp.Error)
	}
	if resp := call(t, s, protocol.TypeLoopStop, protocol.LoopRef{ID: "loop-1"}); !resp.OK {
		t.Fatalf("loop_stop failed: %s", resp.Error)
	}

	resp = call(t, s, protocol.TypeLoopList, nil)
	if !resp.OK {
		t.Fatalf("loop_list failed: %s", resp.Error)
	}
	var loops []protocol.LoopInfo
	if err := json.Unmarshal(resp.Payload, &loops); err != nil {
		t.Fatalf("unmarshal loop list: %v", err)
	}
	if len(loops) != 1 || loops[0].State != "paused" {
		t.Errorf("expected one paused loop, got %+v", loops)
	}

	resp = call(t, s, protocol.TypeMailboxSend, protocol.MailboxSend{
		From: "dash", To: "loop-1", Subject: "hello", Body: "start work",
	})
	if !resp.OK {
		t.Fatalf("mailbox_send failed: %s", resp.Error)
	}
	resp = call(t, s, protocol.TypeMailboxList, nil)
	if !resp.OK {
		t.Fatalf("mailbox_list failed: %s", resp.Error)
	}
	var messages []protocol.MailboxEntry
	if err := json.Unmarshal(resp.Payload, &messages); err != nil {
		t.Fatalf("unmarshal mailbox list: %v", err)
	}
	if len(messages) != 1 || messages[0].Subject != "hello" {
		t.Errorf("expected one message, got %+v", messages)
	}
}
