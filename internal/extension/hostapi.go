package extension

import (
	"fmt"
	"strconv"
	"strings"
)

// HostAPIVersion identifies the dashboard's extension-facing interface.
// Versions are compared lexicographically: major first, then minor.
type HostAPIVersion struct {
	Major int
	Minor int
}

// String renders the version as "major.minor", the wire representation.
func (v HostAPIVersion) String() string {
	return fmt.Sprintf("%d.%d", v.Major, v.Minor)
}

// Compare returns -1, 0 or 1 as v is ordered before, equal to or after other.
func (v HostAPIVersion) Compare(other HostAPIVersion) int {
	if v.Major != other.Major {
		if v.Major < other.Major {
			return -1
		}
		return 1
	}
	if v.Minor != other.Minor {
		if v.Minor < other.Minor {
			return -1
		}
		return 1
	}
	return 0
}

// ParseHostAPIVersion parses a "major.minor" string.
func ParseHostAPIVersion(s string) (HostAPIVersion, error) {
	parts := strings.Split(strings.TrimSpace(s), ".")
	if len(parts) != 2 {
		return HostAPIVersion{}, fmt.Errorf("invalid host API version %q", s)
	}
	major, err := strconv.Atoi(parts[0])
	if err != nil {
		return HostAPIVersion{}, fmt.Errorf("invalid host API major version %q: %w", parts[0], err)
	}
	minor, err := strconv.Atoi(parts[1])
	if err != nil {
		return HostAPIVersion{}, fmt.Errorf("invalid host API minor version %q: %w", parts[1], err)
	}
	if major < 0 || minor < 0 {
		return HostAPIVersion{}, fmt.Errorf("host API version components must be non-negative: %q", s)
	}
	return HostAPIVersion{Major: major, Minor: minor}, nil
}

// EnsureHostCompatibility checks that host falls inside the closed interval
// [min, max] declared by a manifest.
func EnsureHostCompatibility(host, min, max HostAPIVersion) error {
	if host.Compare(min) < 0 || host.Compare(max) > 0 {
		return fmt.Errorf("%w: host %s outside manifest bounds [%s, %s]",
			ErrHostIncompatible, host, min, max)
	}
	return nil
}
