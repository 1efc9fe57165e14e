package tui

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/loopdeck/loopdeck/internal/client"
	"github.com/loopdeck/loopdeck/internal/protocol"
)

var nowEpochS = func() int64 { return time.Now().Unix() }

// runPaletteCommand executes one palette submission. Operator commands run
// directly; "as <extension> <command>" first asks the daemon's sandbox for
// a verdict and only proceeds when allowed.
func runPaletteCommand(c *client.Client, command string) (string, error) {
	fields := strings.Fields(command)
	if len(fields) == 0 {
		return "", nil
	}

	switch fields[0] {
	case "loop":
		return runLoopCommand(c, fields[1:])
	case "ext":
		return runExtensionCommand(c, fields[1:])
	case "grant":
		return runGrantCommand(c, fields[1:])
	case "send":
		return runSendCommand(c, fields[1:])
	case "as":
		return runAsExtension(c, fields[1:])
	default:
		return "", fmt.Errorf("unknown command %q", fields[0])
	}
}

func runLoopCommand(c *client.Client, args []string) (string, error) {
	if len(args) < 2 {
		return "", fmt.Errorf("usage: loop new|stop|kill|delete|resume <id> [name]")
	}
	verb, id := args[0], args[1]
	switch verb {
	case "new":
		name := id
		if len(args) > 2 {
			name = strings.Join(args[2:], " ")
		}
		info, err := c.NewLoop(id, name)
		if err != nil {
			return "", err
		}
		return fmt.Sprintf("created loop %s (%s)", info.ID, info.State), nil
	case "stop":
		return "stopped " + id, c.StopLoop(id)
	case "kill":
		return "killed " + id, c.KillLoop(id)
	case "delete":
		return "deleted " + id, c.DeleteLoop(id)
	case "resume":
		return "resumed " + id, c.ResumeLoop(id)
	default:
		return "", fmt.Errorf("unknown loop verb %q", verb)
	}
}

func runExtensionCommand(c *client.Client, args []string) (string, error) {
	if len(args) < 2 {
		return "", fmt.Errorf("usage: ext install|enable|disable|start|stop|uninstall <plugin-id>")
	}
	verb, id := args[0], args[1]
	var err error
	switch verb {
	case "install":
		err = c.InstallExtension(id)
	case "enable":
		err = c.EnableExtension(id)
	case "disable":
		err = c.DisableExtension(id)
	case "start":
		err = c.StartExtension(id)
	case "stop":
		err = c.StopExtension(id)
	case "uninstall":
		err = c.UninstallExtension(id)
	default:
		return "", fmt.Errorf("unknown ext verb %q", verb)
	}
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("%s %s", verb, id), nil
}

func runGrantCommand(c *client.Client, args []string) (string, error) {
	if len(args) == 0 {
		return "", fmt.Errorf("usage: grant add|revoke|list ...")
	}
	switch args[0] {
	case "list":
		grants, err := c.Grants()
		if err != nil {
			return "", err
		}
		if len(grants) == 0 {
			return "no grants", nil
		}
		parts := make([]string, 0, len(grants))
		for _, g := range grants {
			parts = append(parts, fmt.Sprintf("%s %s %s", g.ExtensionID, g.Capability, g.Scope))
		}
		return strings.Join(parts, "; "), nil
	case "add":
		spec, err := parseGrantSpec(args[1:])
		if err != nil {
			return "", err
		}
		if err := c.AddGrant(spec); err != nil {
			return "", err
		}
		return fmt.Sprintf("granted %s %s on %s", spec.ExtensionID, spec.Capability, spec.Scope), nil
	case "revoke":
		spec, err := parseGrantSpec(args[1:])
		if err != nil {
			return "", err
		}
		removed, err := c.RevokeGrant(spec)
		if err != nil {
			return "", err
		}
		return fmt.Sprintf("revoked %d grant(s)", removed), nil
	default:
		return "", fmt.Errorf("unknown grant verb %q", args[0])
	}
}

// parseGrantSpec parses "<extension> <capability> <scope> [ttl-seconds]".
// A TTL becomes an absolute expiry so the daemon stores a fixed deadline
// rather than a duration.
func parseGrantSpec(args []string) (protocol.GrantSpec, error) {
	if len(args) < 3 {
		return protocol.GrantSpec{}, fmt.Errorf("usage: grant add|revoke <extension> <capability> <scope> [ttl-seconds]")
	}
	spec := protocol.GrantSpec{
		ExtensionID: args[0],
		Capability:  args[1],
		Scope:       args[2],
		GrantedBy:   "operator",
	}
	if len(args) > 3 {
		ttl, err := strconv.ParseInt(args[3], 10, 64)
		if err != nil || ttl <= 0 {
			return protocol.GrantSpec{}, fmt.Errorf("invalid ttl %q: want positive seconds", args[3])
		}
		expires := nowEpochS() + ttl
		spec.ExpiresAtEpochS = &expires
	}
	return spec, nil
}

func runSendCommand(c *client.Client, args []string) (string, error) {
	if len(args) < 3 {
		return "", fmt.Errorf("usage: send <to> <subject> <body...>")
	}
	to, subject := args[0], args[1]
	body := strings.Join(args[2:], " ")
	if err := c.SendMessage("dashboard", to, subject, body); err != nil {
		return "", err
	}
	return "sent to " + to, nil
}

// runAsExtension evaluates a palette command on behalf of an extension.
// The sandbox verdict is authoritative: a denial stops here, an allowance
// executes operator commands and reports pass-through ones.
func runAsExtension(c *client.Client, args []string) (string, error) {
	if len(args) < 2 {
		return "", fmt.Errorf("usage: as <extension> <command...>")
	}
	extensionID := args[0]
	delegated := strings.Join(args[1:], " ")

	verdict, err := c.CheckSandbox(protocol.SandboxCheck{
		ExtensionID: extensionID,
		Intent:      "palette",
		Command:     delegated,
	})
	if err != nil {
		return "", err
	}
	if !verdict.Allowed {
		return "", fmt.Errorf("sandbox denied %q for %s: %s", delegated, extensionID, verdict.Reason)
	}

	if isOperatorCommand(delegated) {
		output, err := runPaletteCommand(c, delegated)
		if err != nil {
			return "", err
		}
		return fmt.Sprintf("allowed for %s: %s", extensionID, output), nil
	}
	return fmt.Sprintf("allowed %q for %s", delegated, extensionID), nil
}

// isOperatorCommand reports whether a delegated palette command maps onto
// a dashboard operation this client can perform itself.
func isOperatorCommand(command string) bool {
	fields := strings.Fields(command)
	if len(fields) == 0 {
		return false
	}
	switch fields[0] {
	case "loop", "ext", "grant", "send":
		return true
	}
	return false
}
