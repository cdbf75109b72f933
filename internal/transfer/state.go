package transfer

import "fmt"

// State is the lifecycle state of a single download
type State int32

const (
	StatePaused State = iota
	StateRunning
	StateComplete
	StateStopped
	StateError
)

var stateNames = map[State]string{
	StatePaused:   "paused",
	StateRunning:  "running",
	StateComplete: "complete",
	StateStopped:  "stopped",
	StateError:    "error",
}

// String returns the lower-case name of the state
func (s State) String() string {
	if name, ok := stateNames[s]; ok {
		return name
	}
	return fmt.Sprintf("state(%d)", int32(s))
}

// MarshalText implements encoding.TextMarshaler
func (s State) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler
func (s *State) UnmarshalText(text []byte) error {
	parsed, err := ParseState(string(text))
	if err != nil {
		return err
	}
	*s = parsed
	return nil
}

// ParseState converts a state name back into a State
func ParseState(name string) (State, error) {
	for state, n := range stateNames {
		if n == name {
			return state, nil
		}
	}
	return StatePaused, fmt.Errorf("unknown transfer state: %q", name)
}

// IsTerminal reports whether the state ends an attempt
func (s State) IsTerminal() bool {
	return s == StateComplete || s == StateStopped || s == StateError
}

// Outcome tells the caller what a control request actually did
type Outcome int

const (
	OutcomeIgnored Outcome = iota
	OutcomeStarted
	OutcomeResumed
	OutcomePaused
	OutcomeStopped
)

func (o Outcome) String() string {
	switch o {
	case OutcomeStarted:
		return "started"
	case OutcomeResumed:
		return "resumed"
	case OutcomePaused:
		return "paused"
	case OutcomeStopped:
		return "stopped"
	default:
		return "ignored"
	}
}

// Accepted reports whether the request changed anything
func (o Outcome) Accepted() bool {
	return o != OutcomeIgnored
}

// transitions lists the states each state may move to.
// A fresh attempt re-enters StatePaused from a terminal state without going through this table.
var transitions = map[State][]State{
	StatePaused:   {StateRunning, StateStopped, StateError},
	StateRunning:  {StatePaused, StateComplete, StateStopped, StateError},
	StateComplete: {},
	StateStopped:  {},
	StateError:    {},
}

// canTransition validates a move in the state machine
func canTransition(from, to State) bool {
	for _, allowed := range transitions[from] {
		if allowed == to {
			return true
		}
	}
	return false
}
