package server

// State represents the lifecycle state of the daemon.
// Valid transitions:
//
//	Starting     -> Ready, Stopped
//	Ready        -> ShuttingDown
//	ShuttingDown -> Stopped
//	Stopped      -> (terminal)
//
// Starting -> Stopped covers startup failure (missing default theme,
// unusable base directory); the process exits non-zero without ever
// accepting a command.
type State string

const (
	// StateStarting indicates the server is loading the engine and
	// provisioning its base directory.
	StateStarting State = "starting"
	// StateReady indicates the server is accepting control commands.
	StateReady State = "ready"
	// StateShuttingDown indicates the server is draining sessions and
	// refuses new ones.
	StateShuttingDown State = "shutting_down"
	// StateStopped indicates all resources are released.
	StateStopped State = "stopped"
)

// validTransitions defines the allowed state transitions.
// The key is the current state, the value is a set of valid target states.
var validTransitions = map[State]map[State]bool{
	StateStarting: {
		StateReady:   true,
		StateStopped: true,
	},
	StateReady: {
		StateShuttingDown: true,
	},
	StateShuttingDown: {
		StateStopped: true,
	},
	StateStopped: {},
}

// String returns the string representation of the State.
func (s State) String() string {
	return string(s)
}

// IsValid returns true if this is a recognized State value.
func (s State) IsValid() bool {
	_, ok := validTransitions[s]
	return ok
}

// IsTerminal returns true if the state has no outgoing transitions.
func (s State) IsTerminal() bool {
	return s == StateStopped
}

// CanTransitionTo returns true if transitioning from the current state to
// the target state is valid.
func (s State) CanTransitionTo(target State) bool {
	allowed, ok := validTransitions[s]
	if !ok {
		return false
	}
	return allowed[target]
}
