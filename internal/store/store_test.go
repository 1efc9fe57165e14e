package store

import (
	"path/filepath"
	"testing"

	"github.com/loopdeck/loopdeck/internal/sandbox"
)

func testStore(t *testing.T) *Store {
	t.Helper()
	s, err := Open(filepath.Join(t.TempDir(), "loopdeck.db"))
	if err != nil {
		t.Fatalf("failed to open store: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func TestLoops(t *testing.T) {
	s := testStore(t)

	loop := LoopRecord{ID: "loop-1", Name: "triage", State: "idle", CreatedAt: 10, UpdatedAt: 10}
	if err := s.SaveLoop(loop); err != nil {
		t.Fatalf("save: %v", err)
	}

	loop.State = "running"
	loop.UpdatedAt = 20
	if err := s.SaveLoop(loop); err != nil {
		t.Fatalf("update: %v", err)
	}

	got, err := s.GetLoop("loop-1")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if got == nil || got.State != "running" || got.UpdatedAt != 20 {
		t.Errorf("unexpected loop %+v", got)
	}

	loops, err := s.ListLoops()
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(loops) != 1 {
		t.Fatalf("expected 1 loop, got %d", len(loops))
	}

	removed, err := s.DeleteLoop("loop-1")
	if err != nil || !removed {
		t.Fatalf("delete: removed=%v err=%v", removed, err)
	}
	if got, _ := s.GetLoop("loop-1"); got != nil {
		t.Error("expected loop to be gone")
	}
	if removed, _ := s.DeleteLoop("loop-1"); removed {
		t.Error("expected second delete to report not found")
	}
}

func TestExtensionEvents(t *testing.T) {
	s := testStore(t)

	for i, action := range []string{"discover", "install", "enable"} {
		if err := s.AppendExtensionEvent("plugin-alpha", action, int64(i), "detail"); err != nil {
			t.Fatalf("append: %v", err)
		}
	}
	if err := s.AppendExtensionEvent("plugin-beta", "discover", 5, ""); err != nil {
		t.Fatalf("append: %v", err)
	}

	events, err := s.ListExtensionEvents("plugin-alpha")
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(events) != 3 {
		t.Fatalf("expected 3 events, got %d", len(events))
	}
	if events[0].Action != "discover" || events[2].Action != "enable" {
		t.Errorf("events out of order: %+v", events)
	}

	all, err := s.ListExtensionEvents("")
	if err != nil {
		t.Fatalf("list all: %v", err)
	}
	if len(all) != 4 {
		t.Errorf("expected 4 events, got %d", len(all))
	}
}

func TestGrantsRoundTrip(t *testing.T) {
	s := testStore(t)

	expiry := int64(5000)
	grants := []sandbox.Grant{
		{ExtensionID: "plugin-alpha", Capability: sandbox.CapabilityFilesystemRead,
			Scope: "./logs", GrantedBy: "operator", Reason: "log inspection"},
		{ExtensionID: "plugin-alpha", Capability: sandbox.CapabilityProcessSpawn,
			Scope: "git", ExpiresAtEpochS: &expiry},
	}
	for _, g := range grants {
		if err := s.SaveGrant(g); err != nil {
			t.Fatalf("save grant: %v", err)
		}
	}

	registry, err := s.LoadGrants()
	if err != nil {
		t.Fatalf("load grants: %v", err)
	}
	loaded := registry.Grants()
	if len(loaded) != 2 {
		t.Fatalf("expected 2 grants, got %d", len(loaded))
	}
	if loaded[0].Scope != "./logs" || loaded[0].GrantedBy != "operator" {
		t.Errorf("unexpected grant %+v", loaded[0])
	}
	if loaded[1].ExpiresAtEpochS == nil || *loaded[1].ExpiresAtEpochS != expiry {
		t.Errorf("expected expiry %d, got %v", expiry, loaded[1].ExpiresAtEpochS)
	}

	if err := s.DeleteGrants("plugin-alpha", sandbox.CapabilityFilesystemRead, "./logs"); err != nil {
		t.Fatalf("delete grants: %v", err)
	}
	registry, err = s.LoadGrants()
	if err != nil {
		t.Fatalf("reload grants: %v", err)
	}
	if len(registry.Grants()) != 1 {
		t.Errorf("expected 1 remaining grant, got %d", len(registry.Grants()))
	}
}

func TestAuditLog(t *testing.T) {
	s := testStore(t)

	records := []sandbox.AuditRecord{
		{ExtensionID: "plugin-alpha", Intent: "read_file(./logs/a)", Allowed: true,
			Reason: "grant", Capability: "FilesystemRead", GrantScope: "./logs"},
		{ExtensionID: "plugin-alpha", Intent: "write_file(/etc/x)", Allowed: false,
			Reason: "blocked", Capability: "FilesystemWrite"},
	}
	for i, rec := range records {
		if err := s.AppendAudit(rec, int64(100+i)); err != nil {
			t.Fatalf("append audit: %v", err)
		}
	}

	recent, err := s.RecentAudit(10)
	if err != nil {
		t.Fatalf("recent: %v", err)
	}
	if len(recent) != 2 {
		t.Fatalf("expected 2 records, got %d", len(recent))
	}
	// Newest first.
	if recent[0].Intent != "write_file(/etc/x)" || recent[0].Allowed {
		t.Errorf("unexpected newest record %+v", recent[0])
	}
	if recent[1].Capability != "FilesystemRead" || recent[1].GrantScope != "./logs" {
		t.Errorf("unexpected record %+v", recent[1])
	}
}
