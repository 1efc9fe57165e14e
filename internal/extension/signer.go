package extension

import (
	"fmt"
	"hash/fnv"
	"sort"
	"strings"

	"github.com/loopdeck/loopdeck/internal/securemem"
)

// SignatureAlgorithm is the label stamped into signatures produced here.
// The digest is a 64-bit FNV-1a over the canonical payload, keyed only by a
// shared per-signer secret. It detects corruption and unknown signers; it is
// not collision-resistant and is no defense against a leaked secret.
const SignatureAlgorithm = "fnv1a-64"

// CanonicalPayload builds the deterministic string that signing and
// verification both hash. Equivalent packages (re-ordered permissions or
// artifacts, whitespace-padded text fields) always produce the same payload;
// any semantic change produces a different one.
func CanonicalPayload(pkg *Package, signerSecret string) string {
	m := &pkg.Manifest

	labels := make([]string, 0, len(m.RequiredPermissions))
	seen := make(map[string]struct{}, len(m.RequiredPermissions))
	for _, p := range m.RequiredPermissions {
		label := p.String()
		if _, ok := seen[label]; ok {
			continue
		}
		seen[label] = struct{}{}
		labels = append(labels, label)
	}
	sort.Strings(labels)

	artifacts := make([]string, 0, len(pkg.Artifacts))
	for _, a := range pkg.Artifacts {
		artifacts = append(artifacts, fmt.Sprintf("%s:%s:%d",
			a.Path, strings.ToLower(a.Digest), a.SizeBytes))
	}
	sort.Strings(artifacts)

	fields := []string{
		NormalizeIdentifier(m.PluginID),
		strings.TrimSpace(m.Name),
		strings.TrimSpace(m.Version),
		strings.TrimSpace(m.Description),
		NormalizeIdentifier(m.Entrypoint),
		strings.Join(labels, ","),
		m.MinHostAPI.String(),
		m.MaxHostAPI.String(),
		strings.Join(artifacts, ";"),
		strings.TrimSpace(signerSecret),
	}
	return strings.Join(fields, "|")
}

// signatureDigest hashes the canonical payload into 16 lowercase hex chars.
func signatureDigest(payload string) string {
	h := fnv.New64a()
	h.Write([]byte(payload))
	return fmt.Sprintf("%016x", h.Sum64())
}

// SignPluginPackage computes the canonical digest for pkg under signerSecret
// and stamps it into the signature block. This is the only way to produce a
// package that passes verification; it is packaging/CI tooling, not a key
// management scheme.
func SignPluginPackage(pkg *Package, signerSecret string) {
	pkg.Signature.Value = signatureDigest(CanonicalPayload(pkg, signerSecret))
	if pkg.Signature.Algorithm == "" {
		pkg.Signature.Algorithm = SignatureAlgorithm
	}
}

// SignerTable maps normalized signer ids to their shared secrets. Secrets
// live in memguard-protected buffers so they are not readable from a plain
// heap dump.
type SignerTable struct {
	secrets map[string]*securemem.String
}

// NewSignerTable creates an empty trusted-signer table.
func NewSignerTable() *SignerTable {
	return &SignerTable{secrets: make(map[string]*securemem.String)}
}

// Trust registers a signer secret, replacing any previous secret for the
// same normalized signer id.
func (t *SignerTable) Trust(signer, secret string) {
	id := NormalizeIdentifier(signer)
	if id == "" {
		return
	}
	if prev, ok := t.secrets[id]; ok {
		prev.Destroy()
	}
	t.secrets[id] = securemem.NewString(secret)
}

// Revoke removes a signer from the table.
func (t *SignerTable) Revoke(signer string) {
	id := NormalizeIdentifier(signer)
	if s, ok := t.secrets[id]; ok {
		s.Destroy()
		delete(t.secrets, id)
	}
}

// secretFor returns the plaintext secret for a normalized signer id.
func (t *SignerTable) secretFor(signer string) (string, bool) {
	s, ok := t.secrets[NormalizeIdentifier(signer)]
	if !ok {
		return "", false
	}
	return s.String(), true
}

// VerifyPluginPackage is the second discovery gate: it resolves the signer
// against the trusted table and recomputes the canonical digest. Returns
// ErrUntrustedSigner or ErrSignatureMismatch.
func VerifyPluginPackage(pkg *Package, signers *SignerTable) error {
	secret, ok := signers.secretFor(pkg.Signature.Signer)
	if !ok {
		return fmt.Errorf("%w: %q", ErrUntrustedSigner, pkg.Signature.Signer)
	}
	expected := signatureDigest(CanonicalPayload(pkg, secret))
	if expected != strings.ToLower(strings.TrimSpace(pkg.Signature.Value)) {
		return fmt.Errorf("%w for plugin %q", ErrSignatureMismatch, pkg.Manifest.PluginID)
	}
	return nil
}
