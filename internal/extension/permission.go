package extension

import "fmt"

// Permission is a capability tag an extension declares in its manifest.
// The set is closed; the sandbox and the package codec both depend on the
// exact string labels below.
type Permission int

const (
	// PermissionReadState allows reading dashboard and loop state.
	PermissionReadState Permission = iota
	// PermissionWriteState allows mutating dashboard-owned state.
	PermissionWriteState
	// PermissionControlLoops allows issuing loop control verbs.
	PermissionControlLoops
	// PermissionNetworkAccess allows outbound network use.
	PermissionNetworkAccess
	// PermissionExecuteShell allows spawning processes and exec palette commands.
	PermissionExecuteShell
)

// String returns the wire label of the permission.
func (p Permission) String() string {
	switch p {
	case PermissionReadState:
		return "ReadState"
	case PermissionWriteState:
		return "WriteState"
	case PermissionControlLoops:
		return "ControlLoops"
	case PermissionNetworkAccess:
		return "NetworkAccess"
	case PermissionExecuteShell:
		return "ExecuteShell"
	default:
		return fmt.Sprintf("Permission(%d)", int(p))
	}
}

// ParsePermission parses a wire label back into a Permission.
func ParsePermission(label string) (Permission, error) {
	switch label {
	case "ReadState":
		return PermissionReadState, nil
	case "WriteState":
		return PermissionWriteState, nil
	case "ControlLoops":
		return PermissionControlLoops, nil
	case "NetworkAccess":
		return PermissionNetworkAccess, nil
	case "ExecuteShell":
		return PermissionExecuteShell, nil
	default:
		return 0, fmt.Errorf("unknown permission label %q", label)
	}
}

// HasPermission reports whether perms contains p.
func HasPermission(perms []Permission, p Permission) bool {
	for _, candidate := range perms {
		if candidate == p {
			return true
		}
	}
	return false
}

// DedupePermissions returns perms with duplicates removed, preserving the
// first occurrence order.
func DedupePermissions(perms []Permission) []Permission {
	seen := make(map[Permission]struct{}, len(perms))
	out := make([]Permission, 0, len(perms))
	for _, p := range perms {
		if _, ok := seen[p]; ok {
			continue
		}
		seen[p] = struct{}{}
		out = append(out, p)
	}
	return out
}
