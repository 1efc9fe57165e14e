package extension

import (
	"encoding/json"
	"fmt"
)

// Wire representation of a plugin package. Pointer fields let strict
// decoding distinguish "absent" from "zero". Unknown extra fields are
// ignored on decode.
type wirePackage struct {
	SchemaVersion *int           `json:"schema_version"`
	Manifest      *wireManifest  `json:"manifest"`
	Artifacts     []wireArtifact `json:"artifacts"`
	Signature     *wireSignature `json:"signature"`
}

type wireManifest struct {
	PluginID            *string  `json:"plugin_id"`
	Name                *string  `json:"name"`
	Version             *string  `json:"version"`
	Description         *string  `json:"description"`
	Entrypoint          *string  `json:"entrypoint"`
	RequiredPermissions []string `json:"required_permissions"`
	MinHostAPI          *string  `json:"min_host_api"`
	MaxHostAPI          *string  `json:"max_host_api"`
}

type wireArtifact struct {
	Path      *string `json:"path"`
	Digest    *string `json:"digest"`
	SizeBytes *int64  `json:"size_bytes"`
}

type wireSignature struct {
	Signer    *string `json:"signer"`
	Algorithm *string `json:"algorithm"`
	Value     *string `json:"value"`
}

// EncodePluginPackage renders a package into its JSON wire format.
// Encode followed by DecodePluginPackage is lossless for every field except
// the ordering of set-like collections.
func EncodePluginPackage(pkg *Package) ([]byte, error) {
	if pkg == nil {
		return nil, fmt.Errorf("%w: package is nil", ErrInvalidPackage)
	}
	labels := make([]string, 0, len(pkg.Manifest.RequiredPermissions))
	for _, p := range DedupePermissions(pkg.Manifest.RequiredPermissions) {
		labels = append(labels, p.String())
	}
	artifacts := make([]wireArtifact, 0, len(pkg.Artifacts))
	for i := range pkg.Artifacts {
		a := pkg.Artifacts[i]
		artifacts = append(artifacts, wireArtifact{
			Path:      &a.Path,
			Digest:    &a.Digest,
			SizeBytes: &a.SizeBytes,
		})
	}
	minAPI := pkg.Manifest.MinHostAPI.String()
	maxAPI := pkg.Manifest.MaxHostAPI.String()
	wp := wirePackage{
		SchemaVersion: &pkg.SchemaVersion,
		Manifest: &wireManifest{
			PluginID:            &pkg.Manifest.PluginID,
			Name:                &pkg.Manifest.Name,
			Version:             &pkg.Manifest.Version,
			Description:         &pkg.Manifest.Description,
			Entrypoint:          &pkg.Manifest.Entrypoint,
			RequiredPermissions: labels,
			MinHostAPI:          &minAPI,
			MaxHostAPI:          &maxAPI,
		},
		Artifacts: artifacts,
		Signature: &wireSignature{
			Signer:    &pkg.Signature.Signer,
			Algorithm: &pkg.Signature.Algorithm,
			Value:     &pkg.Signature.Value,
		},
	}
	data, err := json.MarshalIndent(wp, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("failed to encode plugin package: %w", err)
	}
	return data, nil
}

// DecodePluginPackage parses the JSON wire format strictly: any missing or
// wrong-typed required field fails with ErrInvalidPackage.
func DecodePluginPackage(data []byte) (*Package, error) {
	var wp wirePackage
	if err := json.Unmarshal(data, &wp); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidPackage, err)
	}
	if wp.SchemaVersion == nil {
		return nil, fmt.Errorf("%w: missing schema_version", ErrInvalidPackage)
	}
	if wp.Manifest == nil {
		return nil, fmt.Errorf("%w: missing manifest", ErrInvalidPackage)
	}
	// An absent key decodes to a nil slice, a present-but-empty key to an
	// empty one. Only the former is a missing field.
	if wp.Artifacts == nil {
		return nil, fmt.Errorf("%w: missing artifacts", ErrInvalidPackage)
	}
	if wp.Signature == nil {
		return nil, fmt.Errorf("%w: missing signature", ErrInvalidPackage)
	}
	m := wp.Manifest
	for field, v := range map[string]*string{
		"manifest.plugin_id":    m.PluginID,
		"manifest.name":         m.Name,
		"manifest.version":      m.Version,
		"manifest.description":  m.Description,
		"manifest.entrypoint":   m.Entrypoint,
		"manifest.min_host_api": m.MinHostAPI,
		"manifest.max_host_api": m.MaxHostAPI,
	} {
		if v == nil {
			return nil, fmt.Errorf("%w: missing %s", ErrInvalidPackage, field)
		}
	}
	if m.RequiredPermissions == nil {
		return nil, fmt.Errorf("%w: missing manifest.required_permissions", ErrInvalidPackage)
	}
	perms := make([]Permission, 0, len(m.RequiredPermissions))
	for _, label := range m.RequiredPermissions {
		p, err := ParsePermission(label)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrInvalidPackage, err)
		}
		perms = append(perms, p)
	}
	minAPI, err := ParseHostAPIVersion(*m.MinHostAPI)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidPackage, err)
	}
	maxAPI, err := ParseHostAPIVersion(*m.MaxHostAPI)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidPackage, err)
	}
	artifacts := make([]Artifact, 0, len(wp.Artifacts))
	for i, wa := range wp.Artifacts {
		if wa.Path == nil || wa.Digest == nil || wa.SizeBytes == nil {
			return nil, fmt.Errorf("%w: artifact %d has missing fields", ErrInvalidPackage, i)
		}
		artifacts = append(artifacts, Artifact{
			Path:      *wa.Path,
			Digest:    *wa.Digest,
			SizeBytes: *wa.SizeBytes,
		})
	}
	sig := wp.Signature
	if sig.Signer == nil || sig.Algorithm == nil || sig.Value == nil {
		return nil, fmt.Errorf("%w: signature has missing fields", ErrInvalidPackage)
	}
	return &Package{
		SchemaVersion: *wp.SchemaVersion,
		Manifest: Manifest{
			PluginID:            *m.PluginID,
			Name:                *m.Name,
			Version:             *m.Version,
			Description:         *m.Description,
			Entrypoint:          *m.Entrypoint,
			RequiredPermissions: DedupePermissions(perms),
			MinHostAPI:          minAPI,
			MaxHostAPI:          maxAPI,
		},
		Artifacts: artifacts,
		Signature: Signature{
			Signer:    *sig.Signer,
			Algorithm: *sig.Algorithm,
			Value:     *sig.Value,
		},
	}, nil
}
