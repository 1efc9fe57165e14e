package extension

import (
	"errors"
	"regexp"
	"testing"
)

func TestSignPluginPackage(t *testing.T) {
	t.Run("produces 16 lowercase hex chars", func(t *testing.T) {
		pkg := testPackage()
		SignPluginPackage(pkg, "trusted-key")
		if ok, _ := regexp.MatchString(`^[0-9a-f]{16}$`, pkg.Signature.Value); !ok {
			t.Errorf("unexpected signature value %q", pkg.Signature.Value)
		}
		if pkg.Signature.Algorithm != SignatureAlgorithm {
			t.Errorf("expected algorithm %q, got %q", SignatureAlgorithm, pkg.Signature.Algorithm)
		}
	})

	t.Run("verify succeeds with the signing key", func(t *testing.T) {
		pkg := testPackage()
		SignPluginPackage(pkg, "trusted-key")
		signers := NewSignerTable()
		signers.Trust("forge-team", "trusted-key")
		if err := VerifyPluginPackage(pkg, signers); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
	})

	t.Run("verify fails with a different key", func(t *testing.T) {
		pkg := testPackage()
		SignPluginPackage(pkg, "trusted-key")
		signers := NewSignerTable()
		signers.Trust("forge-team", "other-key")
		if err := VerifyPluginPackage(pkg, signers); !errors.Is(err, ErrSignatureMismatch) {
			t.Errorf("expected ErrSignatureMismatch, got %v", err)
		}
	})

	t.Run("verify fails for unknown signer", func(t *testing.T) {
		pkg := testPackage()
		SignPluginPackage(pkg, "trusted-key")
		if err := VerifyPluginPackage(pkg, NewSignerTable()); !errors.Is(err, ErrUntrustedSigner) {
			t.Errorf("expected ErrUntrustedSigner, got %v", err)
		}
	})

	t.Run("signer lookup normalizes the identity", func(t *testing.T) {
		pkg := testPackage()
		pkg.Signature.Signer = "Forge Team"
		SignPluginPackage(pkg, "trusted-key")
		signers := NewSignerTable()
		signers.Trust("forge-team", "trusted-key")
		if err := VerifyPluginPackage(pkg, signers); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
	})
}

func TestCanonicalPayloadDeterminism(t *testing.T) {
	t.Run("permission order is irrelevant", func(t *testing.T) {
		a := testPackage()
		b := testPackage()
		b.Manifest.RequiredPermissions = []Permission{PermissionWriteState, PermissionReadState, PermissionReadState}
		if CanonicalPayload(a, "k") != CanonicalPayload(b, "k") {
			t.Error("expected identical payloads for reordered permissions")
		}
	})

	t.Run("artifact order is irrelevant", func(t *testing.T) {
		a := testPackage()
		a.Artifacts = append(a.Artifacts, Artifact{Path: "assets/icon.png", Digest: "DEF", SizeBytes: 7})
		b := testPackage()
		b.Artifacts = []Artifact{
			{Path: "assets/icon.png", Digest: "def", SizeBytes: 7},
			{Path: "plugin.wasm", Digest: "abc", SizeBytes: 42},
		}
		if CanonicalPayload(a, "k") != CanonicalPayload(b, "k") {
			t.Error("expected identical payloads for reordered artifacts")
		}
	})

	t.Run("whitespace-equivalent text fields hash alike", func(t *testing.T) {
		a := testPackage()
		b := testPackage()
		b.Manifest.Name = "  Plugin Alpha  "
		b.Manifest.Version = " 0.1.0 "
		if CanonicalPayload(a, "k") != CanonicalPayload(b, "k") {
			t.Error("expected identical payloads for whitespace-padded fields")
		}
	})

	t.Run("semantic changes alter the payload", func(t *testing.T) {
		base := CanonicalPayload(testPackage(), "k")

		pkg := testPackage()
		pkg.Manifest.Version = "0.2.0"
		if CanonicalPayload(pkg, "k") == base {
			t.Error("version change should alter the payload")
		}

		pkg = testPackage()
		pkg.Artifacts[0].SizeBytes = 43
		if CanonicalPayload(pkg, "k") == base {
			t.Error("artifact size change should alter the payload")
		}

		if CanonicalPayload(testPackage(), "k2") == base {
			t.Error("key change should alter the payload")
		}
	})

	t.Run("re-signing after a change yields a different value", func(t *testing.T) {
		pkg := testPackage()
		SignPluginPackage(pkg, "trusted-key")
		first := pkg.Signature.Value
		pkg.Manifest.Description = "changed"
		SignPluginPackage(pkg, "trusted-key")
		if pkg.Signature.Value == first {
			t.Error("expected different signature after semantic change")
		}
	})
}

func TestSignerTable(t *testing.T) {
	t.Run("revoked signer is no longer trusted", func(t *testing.T) {
		pkg := testPackage()
		SignPluginPackage(pkg, "trusted-key")
		signers := NewSignerTable()
		signers.Trust("forge-team", "trusted-key")
		signers.Revoke("forge-team")
		if err := VerifyPluginPackage(pkg, signers); !errors.Is(err, ErrUntrustedSigner) {
			t.Errorf("expected ErrUntrustedSigner, got %v", err)
		}
	})

	t.Run("re-trusting replaces the secret", func(t *testing.T) {
		pkg := testPackage()
		SignPluginPackage(pkg, "new-key")
		signers := NewSignerTable()
		signers.Trust("forge-team", "old-key")
		signers.Trust("forge-team", "new-key")
		if err := VerifyPluginPackage(pkg, signers); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
	})
}
