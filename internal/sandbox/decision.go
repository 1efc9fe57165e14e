package sandbox

// Decision is the immutable result of one evaluation.
type Decision struct {
	Allowed bool
	// Reason is a human-readable explanation of the decision.
	Reason string
	// Capability is the capability involved, CapabilityNone when none was.
	Capability Capability
	// GrantScope is the scope of the grant that matched, "" when no grant
	// was consulted or required.
	GrantScope string
}

// AuditRecord is the structured twin of a Decision, including who asked and
// what for. The engine keeps no audit history; callers append records to
// whatever durable log the surrounding system maintains.
type AuditRecord struct {
	ExtensionID string
	Intent      string
	Allowed     bool
	Reason      string
	Capability  string
	GrantScope  string
}
