package sandbox

import (
	"fmt"
	"strings"

	"github.com/loopdeck/loopdeck/internal/extension"
)

// Intent is one runtime action an extension wants to perform. The set of
// implementations is closed: ReadFile, WriteFile, SpawnProcess and
// RunPaletteCommand.
type Intent interface {
	// Describe renders the intent for audit records.
	Describe() string

	sealed()
}

// ReadFile asks to read the file at Path.
type ReadFile struct {
	Path string
}

// WriteFile asks to write the file at Path.
type WriteFile struct {
	Path string
}

// SpawnProcess asks to start Program with Args.
type SpawnProcess struct {
	Program string
	Args    []string
}

// RunPaletteCommand asks to execute a dashboard command-palette entry.
type RunPaletteCommand struct {
	Command string
}

func (i ReadFile) Describe() string  { return fmt.Sprintf("read_file(%s)", i.Path) }
func (i WriteFile) Describe() string { return fmt.Sprintf("write_file(%s)", i.Path) }
func (i SpawnProcess) Describe() string {
	if len(i.Args) == 0 {
		return fmt.Sprintf("spawn_process(%s)", i.Program)
	}
	return fmt.Sprintf("spawn_process(%s %s)", i.Program, strings.Join(i.Args, " "))
}
func (i RunPaletteCommand) Describe() string { return fmt.Sprintf("palette(%s)", i.Command) }

func (ReadFile) sealed()          {}
func (WriteFile) sealed()         {}
func (SpawnProcess) sealed()      {}
func (RunPaletteCommand) sealed() {}

// Request is one sandbox evaluation: which extension, what permissions its
// manifest currently declares, the caller-supplied clock, and the intent.
// The engine never looks the extension up anywhere; the caller must source
// Permissions from the managed plugin's manifest on every attempt.
type Request struct {
	ExtensionID string
	Permissions []extension.Permission
	NowEpochS   int64
	Intent      Intent
}
