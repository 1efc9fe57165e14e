package extension

import (
	"errors"
	"testing"
)

func TestNormalizeIdentifier(t *testing.T) {
	cases := []struct {
		name string
		in   string
		want string
	}{
		{"already normalized", "plugin-alpha", "plugin-alpha"},
		{"uppercase", "Plugin-Alpha", "plugin-alpha"},
		{"whitespace and symbols", "  My Plugin! v2  ", "my-plugin-v2"},
		{"collapses separators", "a--b__c", "a-b-c"},
		{"trims separators", "--alpha--", "alpha"},
		{"empty", "", ""},
		{"only separators", "___", ""},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := NormalizeIdentifier(tc.in); got != tc.want {
				t.Errorf("NormalizeIdentifier(%q) = %q, want %q", tc.in, got, tc.want)
			}
		})
	}
}

func TestValidateShape(t *testing.T) {
	t.Run("accepts well-formed package", func(t *testing.T) {
		pkg := testPackage()
		SignPluginPackage(pkg, "trusted-key")
		if err := validateShape(pkg); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
	})

	t.Run("rejects wrong schema version", func(t *testing.T) {
		pkg := testPackage()
		SignPluginPackage(pkg, "trusted-key")
		pkg.SchemaVersion = 2
		if err := validateShape(pkg); !errors.Is(err, ErrInvalidPackageSchema) {
			t.Errorf("expected ErrInvalidPackageSchema, got %v", err)
		}
	})

	t.Run("rejects blank plugin id", func(t *testing.T) {
		pkg := testPackage()
		SignPluginPackage(pkg, "trusted-key")
		pkg.Manifest.PluginID = "  --  "
		if err := validateShape(pkg); !errors.Is(err, ErrInvalidPluginID) {
			t.Errorf("expected ErrInvalidPluginID, got %v", err)
		}
	})

	t.Run("rejects blank entrypoint", func(t *testing.T) {
		pkg := testPackage()
		SignPluginPackage(pkg, "trusted-key")
		pkg.Manifest.Entrypoint = ""
		if err := validateShape(pkg); !errors.Is(err, ErrInvalidPackage) {
			t.Errorf("expected ErrInvalidPackage, got %v", err)
		}
	})

	t.Run("rejects blank version", func(t *testing.T) {
		pkg := testPackage()
		SignPluginPackage(pkg, "trusted-key")
		pkg.Manifest.Version = "   "
		if err := validateShape(pkg); !errors.Is(err, ErrInvalidPackage) {
			t.Errorf("expected ErrInvalidPackage, got %v", err)
		}
	})

	t.Run("rejects missing signature value", func(t *testing.T) {
		pkg := testPackage()
		if err := validateShape(pkg); !errors.Is(err, ErrInvalidPackage) {
			t.Errorf("expected ErrInvalidPackage, got %v", err)
		}
	})

	t.Run("rejects package without artifacts", func(t *testing.T) {
		pkg := testPackage()
		SignPluginPackage(pkg, "trusted-key")
		pkg.Artifacts = nil
		if err := validateShape(pkg); !errors.Is(err, ErrInvalidPackage) {
			t.Errorf("expected ErrInvalidPackage, got %v", err)
		}
	})
}

func TestHostAPIVersion(t *testing.T) {
	t.Run("string round trip", func(t *testing.T) {
		v, err := ParseHostAPIVersion("1.2")
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if v.Major != 1 || v.Minor != 2 {
			t.Errorf("expected 1.2, got %v", v)
		}
		if v.String() != "1.2" {
			t.Errorf("expected \"1.2\", got %q", v.String())
		}
	})

	t.Run("rejects malformed versions", func(t *testing.T) {
		for _, raw := range []string{"", "1", "1.2.3", "a.b", "-1.0"} {
			if _, err := ParseHostAPIVersion(raw); err == nil {
				t.Errorf("expected error for %q", raw)
			}
		}
	})

	t.Run("compatibility is a closed interval", func(t *testing.T) {
		min := HostAPIVersion{Major: 1, Minor: 0}
		max := HostAPIVersion{Major: 1, Minor: 9}
		cases := []struct {
			host HostAPIVersion
			ok   bool
		}{
			{HostAPIVersion{1, 0}, true},  // lower boundary
			{HostAPIVersion{1, 2}, true},  // inside
			{HostAPIVersion{1, 9}, true},  // upper boundary
			{HostAPIVersion{0, 9}, false}, // below
			{HostAPIVersion{1, 10}, false},
			{HostAPIVersion{2, 0}, false},
		}
		for _, tc := range cases {
			err := EnsureHostCompatibility(tc.host, min, max)
			if tc.ok && err != nil {
				t.Errorf("host %v: unexpected error: %v", tc.host, err)
			}
			if !tc.ok && !errors.Is(err, ErrHostIncompatible) {
				t.Errorf("host %v: expected ErrHostIncompatible, got %v", tc.host, err)
			}
		}
	})

	t.Run("major dominates minor", func(t *testing.T) {
		a := HostAPIVersion{Major: 2, Minor: 0}
		b := HostAPIVersion{Major: 1, Minor: 99}
		if a.Compare(b) != 1 || b.Compare(a) != -1 {
			t.Errorf("expected 2.0 > 1.99")
		}
	})
}

func TestPermissionLabels(t *testing.T) {
	labels := map[Permission]string{
		PermissionReadState:     "ReadState",
		PermissionWriteState:    "WriteState",
		PermissionControlLoops:  "ControlLoops",
		PermissionNetworkAccess: "NetworkAccess",
		PermissionExecuteShell:  "ExecuteShell",
	}
	for perm, label := range labels {
		if perm.String() != label {
			t.Errorf("expected %q, got %q", label, perm.String())
		}
		parsed, err := ParsePermission(label)
		if err != nil {
			t.Errorf("unexpected error parsing %q: %v", label, err)
		}
		if parsed != perm {
			t.Errorf("round trip mismatch for %q", label)
		}
	}

	if _, err := ParsePermission("Root"); err == nil {
		t.Error("expected error for unknown label")
	}
}

// testPackage returns an unsigned, otherwise valid package matching the
// standard fixture used across this package's tests.
func testPackage() *Package {
	return &Package{
		SchemaVersion: SupportedSchemaVersion,
		Manifest: Manifest{
			PluginID:            "plugin-alpha",
			Name:                "Plugin Alpha",
			Version:             "0.1.0",
			Description:         "test extension",
			Entrypoint:          "main",
			RequiredPermissions: []Permission{PermissionReadState, PermissionWriteState},
			MinHostAPI:          HostAPIVersion{Major: 1, Minor: 0},
			MaxHostAPI:          HostAPIVersion{Major: 1, Minor: 9},
		},
		Artifacts: []Artifact{
			{Path: "plugin.wasm", Digest: "abc", SizeBytes: 42},
		},
		Signature: Signature{
			Signer:    "forge-team",
			Algorithm: SignatureAlgorithm,
		},
	}
}
