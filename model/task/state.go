package task

// State represents the current lifecycle state of a task. States only move
// forward: Waiting -> Ready -> Dispatched -> Completed | Failed.
type State string

const (
	StateWaiting    State = "waiting"
	StateReady      State = "ready"
	StateDispatched State = "dispatched"
	StateCompleted  State = "completed"
	StateFailed     State = "failed"
)

// IsTerminal reports whether the state is Completed or Failed.
func (s State) IsTerminal() bool {
	return s == StateCompleted || s == StateFailed
}

// rank orders states along the lifecycle so that transitions can be verified
// to be forward-only.
func (s State) rank() int {
	switch s {
	case StateWaiting:
		return 0
	case StateReady:
		return 1
	case StateDispatched:
		return 2
	case StateCompleted, StateFailed:
		return 3
	}
	return -1
}

// CanTransition reports whether moving from s to next respects the
// forward-only lifecycle.
func (s State) CanTransition(next State) bool {
	if s.IsTerminal() {
		return false
	}
	return next.rank() > s.rank()
}
