package extension

import "fmt"

// LifecycleState is the installation state of a managed plugin.
type LifecycleState int

const (
	// StateDiscovered means the package passed validation and trust checks
	// but is not yet installed.
	StateDiscovered LifecycleState = iota
	// StateInstalled means the plugin is installed but not enabled.
	StateInstalled
	// StateEnabled means the plugin is enabled but not running.
	StateEnabled
	// StateRunning means the plugin is actively running in the dashboard.
	StateRunning
)

// String returns a human-readable state name.
func (s LifecycleState) String() string {
	switch s {
	case StateDiscovered:
		return "discovered"
	case StateInstalled:
		return "installed"
	case StateEnabled:
		return "enabled"
	case StateRunning:
		return "running"
	default:
		return fmt.Sprintf("LifecycleState(%d)", int(s))
	}
}

// lifecycleCall identifies one mutation of the state machine.
type lifecycleCall int

const (
	callInstall lifecycleCall = iota
	callEnable
	callDisable
	callStart
	callStop
)

func (c lifecycleCall) String() string {
	switch c {
	case callInstall:
		return "install"
	case callEnable:
		return "enable"
	case callDisable:
		return "disable"
	case callStart:
		return "start"
	case callStop:
		return "stop"
	default:
		return fmt.Sprintf("lifecycleCall(%d)", int(c))
	}
}

// transitions maps each call to its valid-from set and its result state.
// Uninstall is absent: it is valid from any state and removes the record.
var transitions = map[lifecycleCall]struct {
	from []LifecycleState
	to   LifecycleState
}{
	callInstall: {from: []LifecycleState{StateDiscovered}, to: StateInstalled},
	callEnable:  {from: []LifecycleState{StateDiscovered, StateInstalled}, to: StateEnabled},
	callDisable: {from: []LifecycleState{StateEnabled, StateRunning}, to: StateInstalled},
	callStart:   {from: []LifecycleState{StateEnabled}, to: StateRunning},
	callStop:    {from: []LifecycleState{StateRunning}, to: StateEnabled},
}

// transition is the pure state-machine step: it returns the new state, or
// ErrInvalidStateTransition when current is not in the call's valid-from set.
func transition(current LifecycleState, call lifecycleCall) (LifecycleState, error) {
	rule, ok := transitions[call]
	if !ok {
		return current, fmt.Errorf("%w: unknown call %s", ErrInvalidStateTransition, call)
	}
	for _, from := range rule.from {
		if current == from {
			return rule.to, nil
		}
	}
	return current, fmt.Errorf("%w: cannot %s from state %s",
		ErrInvalidStateTransition, call, current)
}
