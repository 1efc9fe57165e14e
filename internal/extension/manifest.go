package extension

import (
	"fmt"
	"strings"
)

// SupportedSchemaVersion is the only package schema this host understands.
const SupportedSchemaVersion = 1

// Manifest describes a distributable dashboard extension.
type Manifest struct {
	PluginID            string
	Name                string
	Version             string
	Description         string
	Entrypoint          string
	RequiredPermissions []Permission
	MinHostAPI          HostAPIVersion
	MaxHostAPI          HostAPIVersion
}

// Artifact is one content file carried by a package.
type Artifact struct {
	Path      string
	Digest    string
	SizeBytes int64
}

// Signature is the trust block of a package. Value is produced by
// SignPluginPackage and verified during discovery.
type Signature struct {
	Signer    string
	Algorithm string
	Value     string
}

// Package is the unit of distribution: one manifest, one or more artifacts
// and a signature. Immutable once constructed, except for Signature.Value,
// which the signer stamps in.
type Package struct {
	SchemaVersion int
	Manifest      Manifest
	Artifacts     []Artifact
	Signature     Signature
}

// NormalizeIdentifier canonicalizes plugin ids, entrypoints and signer names:
// lowercase alphanumeric runs joined by single hyphens, with leading and
// trailing hyphens trimmed. Everything non-alphanumeric is a separator.
func NormalizeIdentifier(raw string) string {
	var b strings.Builder
	pending := false
	for _, r := range strings.ToLower(strings.TrimSpace(raw)) {
		isAlnum := (r >= 'a' && r <= 'z') || (r >= '0' && r <= '9')
		if !isAlnum {
			pending = b.Len() > 0
			continue
		}
		if pending {
			b.WriteByte('-')
			pending = false
		}
		b.WriteRune(r)
	}
	return b.String()
}

// validateShape is the first discovery gate: structural checks only, no
// trust decisions. Returns ErrInvalidPackageSchema, ErrInvalidPluginID or
// ErrInvalidPackage.
func validateShape(pkg *Package) error {
	if pkg == nil {
		return fmt.Errorf("%w: package is nil", ErrInvalidPackage)
	}
	if pkg.SchemaVersion != SupportedSchemaVersion {
		return fmt.Errorf("%w: got %d, supported %d",
			ErrInvalidPackageSchema, pkg.SchemaVersion, SupportedSchemaVersion)
	}
	if NormalizeIdentifier(pkg.Manifest.PluginID) == "" {
		return fmt.Errorf("%w: plugin id normalizes to empty", ErrInvalidPluginID)
	}
	if NormalizeIdentifier(pkg.Manifest.Entrypoint) == "" {
		return fmt.Errorf("%w: entrypoint normalizes to empty", ErrInvalidPackage)
	}
	if strings.TrimSpace(pkg.Manifest.Version) == "" {
		return fmt.Errorf("%w: version is blank", ErrInvalidPackage)
	}
	if strings.TrimSpace(pkg.Signature.Signer) == "" {
		return fmt.Errorf("%w: signer is blank", ErrInvalidPackage)
	}
	if strings.TrimSpace(pkg.Signature.Value) == "" {
		return fmt.Errorf("%w: signature value is blank", ErrInvalidPackage)
	}
	if len(pkg.Artifacts) == 0 {
		return fmt.Errorf("%w: package has no artifacts", ErrInvalidPackage)
	}
	return nil
}
