package play

// State is the lifecycle state of a play. The string value doubles as the
// on-disk directory name holding plays in that state.
type State string

const (
	StateNew            State = "new"
	StatePendingOpening State = "pending_opening"
	StateOpen           State = "open"
	StatePendingClosing State = "pending_closing"
	StateClosed         State = "closed"
	StateExpired        State = "expired"
)

// States lists every lifecycle state in forward order.
func States() []State {
	return []State{StateNew, StatePendingOpening, StateOpen, StatePendingClosing, StateClosed, StateExpired}
}

func (s State) String() string { return string(s) }

func (s State) Valid() bool {
	switch s {
	case StateNew, StatePendingOpening, StateOpen, StatePendingClosing, StateClosed, StateExpired:
		return true
	}
	return false
}

// Terminal reports whether no further transition leaves this state.
func (s State) Terminal() bool {
	return s == StateClosed || s == StateExpired
}

// transitions enumerates the legal lifecycle edges. Forward-only except for
// the two timeout reverts (pending_opening→new, pending_closing→open).
var transitions = map[State][]State{
	StateNew:            {StatePendingOpening, StateExpired},
	StatePendingOpening: {StateOpen, StateNew, StateExpired},
	StateOpen:           {StatePendingClosing, StateExpired},
	StatePendingClosing: {StateClosed, StateOpen},
	StateClosed:         {},
	StateExpired:        {},
}

// CanTransition reports whether from→to is a legal lifecycle edge.
func CanTransition(from, to State) bool {
	for _, next := range transitions[from] {
		if next == to {
			return true
		}
	}
	return false
}
