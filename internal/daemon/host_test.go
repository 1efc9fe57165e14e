package daemon

import (
	"errors"
	"path/filepath"
	"testing"

	"github.com/loopdeck/loopdeck/internal/extension"
	"github.com/loopdeck/loopdeck/internal/sandbox"
	"github.com/loopdeck/loopdeck/internal/store"
)

func testHost(t *testing.T) (*ExtensionHost, *store.Store) {
	t.Helper()

	st, err := store.Open(filepath.Join(t.TempDir(), "test.db"))
	if err != nil {
		t.Fatalf("Open failed: %v", err)
	}
	t.Cleanup(func() { st.Close() })

	signers := extension.NewSignerTable()
	signers.Trust("forge-team", "super-secret")

	host, err := NewExtensionHost(extension.HostAPIVersion{Major: 1, Minor: 4}, signers, nil, st)
	if err != nil {
		t.Fatalf("NewExtensionHost failed: %v", err)
	}
	host.now = func() int64 { return 1000 }
	return host, st
}

func signedPackage() *extension.Package {
	pkg := &extension.Package{
		SchemaVersion: extension.SupportedSchemaVersion,
		Manifest: extension.Manifest{
			PluginID:            "plugin-alpha",
			Name:                "Plugin Alpha",
			Version:             "0.1.0",
			Description:         "test extension",
			Entrypoint:          "main",
			RequiredPermissions: []extension.Permission{extension.PermissionReadState},
			MinHostAPI:          extension.HostAPIVersion{Major: 1, Minor: 0},
			MaxHostAPI:          extension.HostAPIVersion{Major: 1, Minor: 9},
		},
		Artifacts: []extension.Artifact{
			{Path: "plugin.wasm", Digest: "abc", SizeBytes: 42},
		},
		Signature: extension.Signature{
			Signer:    "forge-team",
			Algorithm: extension.SignatureAlgorithm,
		},
	}
	extension.SignPluginPackage(pkg, "super-secret")
	return pkg
}

func TestHostLifecycleMirrorsEvents(t *testing.T) {
	host, st := testHost(t)

	if _, err := host.Discover(signedPackage()); err != nil {
		t.Fatalf("Discover failed: %v", err)
	}
	if err := host.Install("plugin-alpha"); err != nil {
		t.Fatalf("Install failed: %v", err)
	}
	if err := host.SetEnabled("plugin-alpha", true); err != nil {
		t.Fatalf("Enable failed: %v", err)
	}
	if err := host.SetRunning("plugin-alpha", true); err != nil {
		t.Fatalf("Start failed: %v", err)
	}

	rows, err := st.ListExtensionEvents("plugin-alpha")
	if err != nil {
		t.Fatalf("ListExtensionEvents failed: %v", err)
	}
	wantActions := []string{"discover", "install", "enable", "start"}
	if len(rows) != len(wantActions) {
		t.Fatalf("expected %d persisted events, got %d", len(wantActions), len(rows))
	}
	for i, action := range wantActions {
		if rows[i].Action != action {
			t.Errorf("event %d: expected action %q, got %q", i, action, rows[i].Action)
		}
	}
}

func TestHostRejectsUnknownExtension(t *testing.T) {
	host, _ := testHost(t)

	if err := host.Install("nobody"); !errors.Is(err, extension.ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
}

func TestHostGrantPersistence(t *testing.T) {
	host, st := testHost(t)

	grant := sandbox.Grant{
		ExtensionID: "Plugin-Alpha",
		Capability:  sandbox.CapabilityFilesystemRead,
		Scope:       `.\Logs`,
		GrantedBy:   "operator",
	}
	if err := host.AddGrant(grant); err != nil {
		t.Fatalf("AddGrant failed: %v", err)
	}

	// The persisted row carries the normalized key.
	reloaded, err := st.LoadGrants()
	if err != nil {
		t.Fatalf("LoadGrants failed: %v", err)
	}
	grants := reloaded.Grants()
	if len(grants) != 1 {
		t.Fatalf("expected 1 persisted grant, got %d", len(grants))
	}
	if grants[0].ExtensionID != "plugin-alpha" || grants[0].Scope != "./logs" {
		t.Errorf("persisted grant not normalized: %+v", grants[0])
	}

	removed, err := host.RevokeGrant("plugin-alpha", sandbox.CapabilityFilesystemRead, "./logs")
	if err != nil {
		t.Fatalf("RevokeGrant failed: %v", err)
	}
	if removed != 1 {
		t.Errorf("expected 1 grant removed, got %d", removed)
	}

	reloaded, err = st.LoadGrants()
	if err != nil {
		t.Fatalf("LoadGrants after revoke failed: %v", err)
	}
	if len(reloaded.Grants()) != 0 {
		t.Errorf("expected no persisted grants after revoke")
	}
}

func TestHostAuthorizePersistsAudit(t *testing.T) {
	host, st := testHost(t)

	if _, err := host.Discover(signedPackage()); err != nil {
		t.Fatalf("Discover failed: %v", err)
	}

	decision := host.Authorize("plugin-alpha", sandbox.ReadFile{Path: "./logs/run.log"})
	if decision.Allowed {
		t.Fatalf("expected denial without a grant, got allow: %s", decision.Reason)
	}

	if err := host.AddGrant(sandbox.Grant{
		ExtensionID: "plugin-alpha",
		Capability:  sandbox.CapabilityFilesystemRead,
		Scope:       "./logs",
	}); err != nil {
		t.Fatalf("AddGrant failed: %v", err)
	}

	decision = host.Authorize("plugin-alpha", sandbox.ReadFile{Path: "./logs/run.log"})
	if !decision.Allowed {
		t.Fatalf("expected allow with grant, got denial: %s", decision.Reason)
	}

	records, err := st.RecentAudit(10)
	if err != nil {
		t.Fatalf("RecentAudit failed: %v", err)
	}
	if len(records) != 2 {
		t.Fatalf("expected 2 audit records, got %d", len(records))
	}
	// Newest first.
	if !records[0].Allowed || records[1].Allowed {
		t.Errorf("expected newest record allowed and oldest denied: %+v", records)
	}
	if records[0].Intent != "read_file(./logs/run.log)" {
		t.Errorf("unexpected audit intent: %q", records[0].Intent)
	}
}

func TestHostAuthorizeUnknownExtensionHasNoPermissions(t *testing.T) {
	host, _ := testHost(t)

	decision := host.Authorize("ghost", sandbox.RunPaletteCommand{Command: "loop stop abc"})
	if decision.Allowed {
		t.Errorf("expected denial for unknown extension, got allow: %s", decision.Reason)
	}
}
