package session

// State is the lifecycle position of the most recent session.
type State int

const (
	StateIdle State = iota
	StateSubmitting
	StateStreaming
	StateCompleted
	StateFailed
	StateCancelled
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateSubmitting:
		return "submitting"
	case StateStreaming:
		return "streaming"
	case StateCompleted:
		return "completed"
	case StateFailed:
		return "failed"
	case StateCancelled:
		return "cancelled"
	default:
		return "unknown"
	}
}

// Active reports whether a session in this state is still running.
func (s State) Active() bool {
	return s == StateSubmitting || s == StateStreaming
}
