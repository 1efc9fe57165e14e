package sandbox

import "strings"

// Policy is the process-wide sandbox enforcement configuration. It is
// read-only during evaluation; the engine never mutates it.
type Policy struct {
	// RequireExplicitGrantForFilesystem demands a live FilesystemRead or
	// FilesystemWrite grant on top of the policy root checks.
	RequireExplicitGrantForFilesystem bool
	// RequireExplicitGrantForProcess demands a live ProcessSpawn grant on
	// top of the program-prefix check.
	RequireExplicitGrantForProcess bool
	// AllowedReadRoots are path prefixes readable by extensions. Empty
	// means no root restriction.
	AllowedReadRoots []string
	// AllowedWriteRoots are path prefixes writable by extensions. Empty
	// means no root restriction.
	AllowedWriteRoots []string
	// BlockedPathPrefixes are checked before allowed roots and cannot be
	// overridden by any grant.
	BlockedPathPrefixes []string
	// AllowedProgramPrefixes restrict spawnable program names. Empty means
	// no restriction.
	AllowedProgramPrefixes []string
}

// DefaultPolicy returns the deny-by-default policy: filesystem and process
// capabilities both require explicit grants, with no roots configured.
func DefaultPolicy() *Policy {
	return &Policy{
		RequireExplicitGrantForFilesystem: true,
		RequireExplicitGrantForProcess:    true,
	}
}

// blockedBy returns the first blocked prefix the normalized path starts
// with, or "" when none apply.
func (p *Policy) blockedBy(path string) string {
	for _, prefix := range p.BlockedPathPrefixes {
		if prefix = NormalizeSubject(prefix); prefix != "" && strings.HasPrefix(path, prefix) {
			return prefix
		}
	}
	return ""
}

// insideRoots reports whether the normalized path starts with one of the
// given roots. An empty root list means no restriction.
func insideRoots(path string, roots []string) bool {
	if len(roots) == 0 {
		return true
	}
	for _, root := range roots {
		if root = NormalizeSubject(root); root != "" && strings.HasPrefix(path, root) {
			return true
		}
	}
	return false
}
