package session

// State is a session's lifecycle position.
type State int

const (
	StateConnecting State = iota
	StateActive
	StateGenerating
	StateClosing
	StateClosed
)

var stateNames = [...]string{
	StateConnecting: "CONNECTING",
	StateActive:     "ACTIVE",
	StateGenerating: "GENERATING",
	StateClosing:    "CLOSING",
	StateClosed:     "CLOSED",
}

func (s State) String() string {
	if s < 0 || int(s) >= len(stateNames) {
		return "UNKNOWN"
	}
	return stateNames[s]
}

var transitions = map[State][]State{
	StateConnecting: {StateActive, StateClosing},
	StateActive:     {StateGenerating, StateClosing},
	StateGenerating: {StateActive, StateClosing},
	StateClosing:    {StateClosed},
}

// CanTransition reports whether the lifecycle allows moving from one state
// to another.
func CanTransition(from, to State) bool {
	for _, s := range transitions[from] {
		if s == to {
			return true
		}
	}
	return false
}

// IsTerminal reports whether s admits no further transitions.
func IsTerminal(s State) bool {
	return len(transitions[s]) == 0
}
