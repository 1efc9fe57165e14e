//go:build !linux

package daemon

import (
	"fmt"

	"github.com/loopdeck/loopdeck/internal/config"
)

// restrictSelf is Linux-only; other platforms run unrestricted.
func restrictSelf(_ *config.Config) error {
	return fmt.Errorf("filesystem self-restriction is only supported on linux")
}
