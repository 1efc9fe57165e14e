package sandbox

import "strings"

// Grant is one explicit, scoped, optionally time-limited authorization
// issued to one extension for one capability. Grants are immutable once
// created; the registry adds and removes them but never edits in place.
type Grant struct {
	ExtensionID string
	Capability  Capability
	// Scope is a normalized path or program-name prefix. A grant authorizes
	// only subjects that start with it. This is a coarse string prefix, not
	// a path-hierarchy match.
	Scope     string
	GrantedBy string
	Reason    string
	// ExpiresAtEpochS, when non-nil, is the last second the grant is live:
	// the grant authorizes at now == expiry and denies at now == expiry+1.
	ExpiresAtEpochS *int64
}

// Expired reports whether the grant is past its expiry at the given time.
// Grants with no expiry never expire.
func (g *Grant) Expired(nowEpochS int64) bool {
	return g.ExpiresAtEpochS != nil && nowEpochS > *g.ExpiresAtEpochS
}

// NormalizeSubject canonicalizes paths, program names and extension ids
// for prefix matching: trimmed, case-folded, backslashes to forward
// slashes. Grant keys are stored in this form.
func NormalizeSubject(s string) string {
	return strings.ReplaceAll(strings.ToLower(strings.TrimSpace(s)), "\\", "/")
}

// GrantRegistry holds the live grants for all extensions. Like the package
// manager it provides no internal locking; the owning host serializes
// mutation, and read-only evaluation may run concurrently as long as no
// writer is active.
type GrantRegistry struct {
	grants []Grant
}

// NewGrantRegistry creates an empty registry.
func NewGrantRegistry() *GrantRegistry {
	return &GrantRegistry{}
}

// Grant adds a grant, normalizing its extension id and scope.
func (r *GrantRegistry) Grant(g Grant) {
	g.ExtensionID = NormalizeSubject(g.ExtensionID)
	g.Scope = NormalizeSubject(g.Scope)
	r.grants = append(r.grants, g)
}

// Revoke removes every grant matching extension id, capability and scope.
// Returns the number of grants removed.
func (r *GrantRegistry) Revoke(extensionID string, capability Capability, scope string) int {
	extensionID = NormalizeSubject(extensionID)
	scope = NormalizeSubject(scope)
	kept := r.grants[:0]
	removed := 0
	for _, g := range r.grants {
		if g.ExtensionID == extensionID && g.Capability == capability && g.Scope == scope {
			removed++
			continue
		}
		kept = append(kept, g)
	}
	r.grants = kept
	return removed
}

// Grants returns a copy of all grants, expired ones included.
func (r *GrantRegistry) Grants() []Grant {
	out := make([]Grant, len(r.grants))
	copy(out, r.grants)
	return out
}

// matchingGrant finds a live grant for the extension and capability whose
// scope is a prefix of the normalized subject. Returns nil when none match.
func (r *GrantRegistry) matchingGrant(extensionID string, capability Capability, subject string, nowEpochS int64) *Grant {
	extensionID = NormalizeSubject(extensionID)
	subject = NormalizeSubject(subject)
	for i := range r.grants {
		g := &r.grants[i]
		if g.ExtensionID != extensionID || g.Capability != capability {
			continue
		}
		if g.Expired(nowEpochS) {
			continue
		}
		if strings.HasPrefix(subject, g.Scope) {
			return g
		}
	}
	return nil
}
