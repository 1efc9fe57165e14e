package sandbox

import (
	"testing"

	"github.com/loopdeck/loopdeck/internal/extension"
)

func TestGrantExpiry(t *testing.T) {
	t.Run("expiry boundary is inclusive", func(t *testing.T) {
		grants := NewGrantRegistry()
		grants.Grant(Grant{
			ExtensionID:     "plugin-alpha",
			Capability:      CapabilityFilesystemRead,
			Scope:           "./logs",
			ExpiresAtEpochS: epoch(2000),
		})

		req := request(ReadFile{Path: "./logs/run.log"})
		req.NowEpochS = 2000
		decision, _ := Evaluate(req, DefaultPolicy(), grants)
		if !decision.Allowed {
			t.Errorf("expected allow at now == expiry, got %q", decision.Reason)
		}

		req.NowEpochS = 2001
		decision, _ = Evaluate(req, DefaultPolicy(), grants)
		if decision.Allowed {
			t.Error("expected deny at now == expiry+1")
		}
	})

	t.Run("no expiry never expires", func(t *testing.T) {
		grants := NewGrantRegistry()
		grants.Grant(Grant{
			ExtensionID: "plugin-alpha",
			Capability:  CapabilityFilesystemRead,
			Scope:       "./logs",
		})
		req := request(ReadFile{Path: "./logs/run.log"})
		req.NowEpochS = 1 << 40
		decision, _ := Evaluate(req, DefaultPolicy(), grants)
		if !decision.Allowed {
			t.Errorf("expected allow, got %q", decision.Reason)
		}
	})

	t.Run("expired grant is skipped in favor of a live one", func(t *testing.T) {
		grants := NewGrantRegistry()
		grants.Grant(Grant{
			ExtensionID:     "plugin-alpha",
			Capability:      CapabilityFilesystemRead,
			Scope:           "./logs",
			ExpiresAtEpochS: epoch(10),
		})
		grants.Grant(Grant{
			ExtensionID: "plugin-alpha",
			Capability:  CapabilityFilesystemRead,
			Scope:       "./logs/archive",
		})
		decision, _ := Evaluate(request(ReadFile{Path: "./logs/archive/old.log"}), DefaultPolicy(), grants)
		if !decision.Allowed {
			t.Errorf("expected the live grant to match, got %q", decision.Reason)
		}
		if decision.GrantScope != "./logs/archive" {
			t.Errorf("expected scope ./logs/archive, got %q", decision.GrantScope)
		}
	})
}

func TestGrantRegistryRevoke(t *testing.T) {
	grants := NewGrantRegistry()
	grants.Grant(Grant{ExtensionID: "plugin-alpha", Capability: CapabilityFilesystemRead, Scope: "./logs"})
	grants.Grant(Grant{ExtensionID: "plugin-alpha", Capability: CapabilityProcessSpawn, Scope: "git"})

	if removed := grants.Revoke("plugin-alpha", CapabilityFilesystemRead, "./LOGS"); removed != 1 {
		t.Fatalf("expected 1 removed grant, got %d", removed)
	}
	if len(grants.Grants()) != 1 {
		t.Fatalf("expected 1 remaining grant, got %d", len(grants.Grants()))
	}

	decision, _ := Evaluate(request(ReadFile{Path: "./logs/run.log"}), DefaultPolicy(), grants)
	if decision.Allowed {
		t.Error("expected deny after revocation")
	}
	decision, _ = Evaluate(request(SpawnProcess{Program: "git"},
		extension.PermissionExecuteShell), DefaultPolicy(), grants)
	if !decision.Allowed {
		t.Errorf("unrelated grant must survive revocation, got %q", decision.Reason)
	}
}

func TestGrantScopeNormalization(t *testing.T) {
	grants := NewGrantRegistry()
	grants.Grant(Grant{
		ExtensionID: "Plugin-Alpha",
		Capability:  CapabilityFilesystemRead,
		Scope:       `  .\Logs  `,
	})
	stored := grants.Grants()[0]
	if stored.ExtensionID != "plugin-alpha" {
		t.Errorf("expected normalized extension id, got %q", stored.ExtensionID)
	}
	if stored.Scope != "./logs" {
		t.Errorf("expected normalized scope, got %q", stored.Scope)
	}
}
