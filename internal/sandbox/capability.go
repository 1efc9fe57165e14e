// Package sandbox implements the runtime authorization engine for dashboard
// extensions: an enforcement policy, explicit scoped capability grants, and
// a pure decision function that evaluates one intent at a time. Denials are
// decisions, not errors; every evaluation produces an audit record on the
// same path as the decision.
package sandbox

import "fmt"

// Capability is a sandbox-enforced permission category, distinct from the
// manifest-level permissions an extension declares.
type Capability int

const (
	// CapabilityNone marks decisions where no capability was involved.
	CapabilityNone Capability = iota
	// CapabilityFilesystemRead covers file read access.
	CapabilityFilesystemRead
	// CapabilityFilesystemWrite covers file write access.
	CapabilityFilesystemWrite
	// CapabilityProcessSpawn covers spawning external processes.
	CapabilityProcessSpawn
)

// String returns the capability's audit label.
func (c Capability) String() string {
	switch c {
	case CapabilityNone:
		return ""
	case CapabilityFilesystemRead:
		return "FilesystemRead"
	case CapabilityFilesystemWrite:
		return "FilesystemWrite"
	case CapabilityProcessSpawn:
		return "ProcessSpawn"
	default:
		return fmt.Sprintf("Capability(%d)", int(c))
	}
}

// ParseCapability parses an audit label back into a Capability.
func ParseCapability(label string) (Capability, error) {
	switch label {
	case "FilesystemRead":
		return CapabilityFilesystemRead, nil
	case "FilesystemWrite":
		return CapabilityFilesystemWrite, nil
	case "ProcessSpawn":
		return CapabilityProcessSpawn, nil
	default:
		return CapabilityNone, fmt.Errorf("unknown capability label %q", label)
	}
}
