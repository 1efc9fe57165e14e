package sandbox

import (
	"fmt"
	"strings"

	"github.com/loopdeck/loopdeck/internal/extension"
)

// loopControlVerbs are palette command prefixes that drive the agent-loop
// scheduler and therefore require the ControlLoops permission.
var loopControlVerbs = []string{"loop stop", "loop kill", "loop delete", "loop resume", "loop new"}

// Evaluate runs one intent through the sandbox. It is a pure function of
// its arguments: no I/O, no clock, no registry lookups beyond the grant
// match. It never returns an error; refusal is Allowed=false with a reason.
// Safe for concurrent use while no goroutine mutates policy or grants.
func Evaluate(req Request, policy *Policy, grants *GrantRegistry) (Decision, AuditRecord) {
	e := evaluator{req: req, policy: policy, grants: grants}
	if policy == nil {
		e.policy = DefaultPolicy()
	}
	if grants == nil {
		e.grants = NewGrantRegistry()
	}

	switch intent := req.Intent.(type) {
	case ReadFile:
		return e.evaluateReadFile(intent.Path)
	case WriteFile:
		return e.evaluateWriteFile(intent.Path)
	case SpawnProcess:
		return e.evaluateSpawnProcess(intent.Program)
	case RunPaletteCommand:
		return e.evaluatePaletteCommand(intent.Command)
	default:
		return e.deny("unrecognized intent", CapabilityNone)
	}
}

type evaluator struct {
	req    Request
	policy *Policy
	grants *GrantRegistry
}

func (e *evaluator) evaluateReadFile(path string) (Decision, AuditRecord) {
	path = NormalizeSubject(path)
	if path == "" {
		return e.deny("empty path", CapabilityFilesystemRead)
	}
	if blocked := e.policy.blockedBy(path); blocked != "" {
		return e.deny(fmt.Sprintf("path is under blocked prefix %q", blocked), CapabilityFilesystemRead)
	}
	if !insideRoots(path, e.policy.AllowedReadRoots) {
		return e.deny("path is outside the allowed read roots", CapabilityFilesystemRead)
	}
	if e.policy.RequireExplicitGrantForFilesystem {
		grant := e.grants.matchingGrant(e.req.ExtensionID, CapabilityFilesystemRead, path, e.req.NowEpochS)
		if grant == nil {
			return e.deny("no live FilesystemRead grant covers this path", CapabilityFilesystemRead)
		}
		return e.allow(fmt.Sprintf("read allowed by grant scoped to %q", grant.Scope),
			CapabilityFilesystemRead, grant.Scope)
	}
	return e.allow("read allowed by policy roots", CapabilityFilesystemRead, "")
}

func (e *evaluator) evaluateWriteFile(path string) (Decision, AuditRecord) {
	path = NormalizeSubject(path)
	if path == "" {
		return e.deny("empty path", CapabilityFilesystemWrite)
	}
	if blocked := e.policy.blockedBy(path); blocked != "" {
		return e.deny(fmt.Sprintf("path is under blocked prefix %q", blocked), CapabilityFilesystemWrite)
	}
	if !insideRoots(path, e.policy.AllowedWriteRoots) {
		return e.deny("path is outside the allowed write roots", CapabilityFilesystemWrite)
	}
	// A grant never substitutes for the declared permission.
	if !extension.HasPermission(e.req.Permissions, extension.PermissionWriteState) {
		return e.deny("extension does not declare the WriteState permission", CapabilityFilesystemWrite)
	}
	if e.policy.RequireExplicitGrantForFilesystem {
		grant := e.grants.matchingGrant(e.req.ExtensionID, CapabilityFilesystemWrite, path, e.req.NowEpochS)
		if grant == nil {
			return e.deny("no live FilesystemWrite grant covers this path", CapabilityFilesystemWrite)
		}
		return e.allow(fmt.Sprintf("write allowed by grant scoped to %q", grant.Scope),
			CapabilityFilesystemWrite, grant.Scope)
	}
	return e.allow("write allowed by policy roots", CapabilityFilesystemWrite, "")
}

func (e *evaluator) evaluateSpawnProcess(program string) (Decision, AuditRecord) {
	program = NormalizeSubject(program)
	if program == "" {
		return e.deny("empty program name", CapabilityProcessSpawn)
	}
	if !extension.HasPermission(e.req.Permissions, extension.PermissionExecuteShell) {
		return e.deny("extension does not declare the ExecuteShell permission", CapabilityProcessSpawn)
	}
	if !insideRoots(program, e.policy.AllowedProgramPrefixes) {
		return e.deny("program is outside the allowed program prefixes", CapabilityProcessSpawn)
	}
	if e.policy.RequireExplicitGrantForProcess {
		grant := e.grants.matchingGrant(e.req.ExtensionID, CapabilityProcessSpawn, program, e.req.NowEpochS)
		if grant == nil {
			return e.deny("no live ProcessSpawn grant covers this program", CapabilityProcessSpawn)
		}
		return e.allow(fmt.Sprintf("spawn allowed by grant scoped to %q", grant.Scope),
			CapabilityProcessSpawn, grant.Scope)
	}
	return e.allow("spawn allowed by policy prefixes", CapabilityProcessSpawn, "")
}

// evaluatePaletteCommand gates the dashboard's command palette. Exec
// commands are rewritten into a process-spawn evaluation; loop control
// verbs require ControlLoops; everything else is a read-only or navigation
// action and passes unconditionally.
func (e *evaluator) evaluatePaletteCommand(command string) (Decision, AuditRecord) {
	command = strings.ToLower(strings.TrimSpace(command))
	fields := strings.Fields(command)

	if len(fields) > 0 && fields[0] == "exec" {
		if !extension.HasPermission(e.req.Permissions, extension.PermissionExecuteShell) {
			return e.deny("exec palette commands require the ExecuteShell permission", CapabilityProcessSpawn)
		}
		program := ""
		if len(fields) > 1 {
			program = fields[1]
		}
		return e.evaluateSpawnProcess(program)
	}

	for _, verb := range loopControlVerbs {
		if strings.HasPrefix(command, verb) {
			if !extension.HasPermission(e.req.Permissions, extension.PermissionControlLoops) {
				return e.deny(fmt.Sprintf("%q requires the ControlLoops permission", verb), CapabilityNone)
			}
			return e.allow("loop control permitted by declared permissions", CapabilityNone, "")
		}
	}

	return e.allow("palette command has no sandbox restrictions", CapabilityNone, "")
}

// allow and deny are the only terminal calls in the engine, so the decision
// and its audit twin can never disagree.
func (e *evaluator) allow(reason string, capability Capability, grantScope string) (Decision, AuditRecord) {
	return e.finish(true, reason, capability, grantScope)
}

func (e *evaluator) deny(reason string, capability Capability) (Decision, AuditRecord) {
	return e.finish(false, reason, capability, "")
}

func (e *evaluator) finish(allowed bool, reason string, capability Capability, grantScope string) (Decision, AuditRecord) {
	decision := Decision{
		Allowed:    allowed,
		Reason:     reason,
		Capability: capability,
		GrantScope: grantScope,
	}
	intent := ""
	if e.req.Intent != nil {
		intent = e.req.Intent.Describe()
	}
	audit := AuditRecord{
		ExtensionID: NormalizeSubject(e.req.ExtensionID),
		Intent:      intent,
		Allowed:     allowed,
		Reason:      reason,
		Capability:  capability.String(),
		GrantScope:  grantScope,
	}
	return decision, audit
}
