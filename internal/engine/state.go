package engine

// State is the phase of the current pass.
type State int

const (
	StateIdle State = iota
	StateClassifying
	StatePartitioning
	StateExecuting
	StateCompleted
	StateFailed
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateClassifying:
		return "classifying"
	case StatePartitioning:
		return "partitioning"
	case StateExecuting:
		return "executing"
	case StateCompleted:
		return "completed"
	case StateFailed:
		return "failed"
	}
	return "unknown"
}

// State returns the phase of the running pass, or how the last one ended.
func (e *Engine) State() State {
	e.stateMu.RLock()
	defer e.stateMu.RUnlock()
	return e.state
}

// OnStateChange registers fn to be called on every phase transition.
func (e *Engine) OnStateChange(fn func(from, to State)) {
	e.stateMu.Lock()
	defer e.stateMu.Unlock()
	e.onState = fn
}

func (e *Engine) setState(to State) {
	e.stateMu.Lock()
	from := e.state
	e.state = to
	fn := e.onState
	e.stateMu.Unlock()

	if from != to && fn != nil {
		fn(from, to)
	}
}
