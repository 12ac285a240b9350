package watch

import "time"

// State is the notifier's phase.
type State int

const (
	StateIdle State = iota
	StateDebouncing
	StateSyncing
	StateRetrying
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateDebouncing:
		return "debouncing"
	case StateSyncing:
		return "syncing"
	case StateRetrying:
		return "retrying"
	}
	return "unknown"
}

// Transition is one state change. Err is set when leaving syncing on failure.
type Transition struct {
	From State
	To   State
	At   time.Time
	Err  error
}
