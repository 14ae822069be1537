package driver

// State is the job state machine's position. One session walks
// Idle → AwaitingStatus → Starting → Streaming → AwaitingCompletion →
// Acknowledging → Done, with Failed reachable from any non-terminal state.
type State int

const (
	StateIdle State = iota
	StateAwaitingStatus
	StateStarting
	StateStreaming
	StateAwaitingCompletion
	StateAcknowledging
	StateDone
	StateFailed
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "Idle"
	case StateAwaitingStatus:
		return "AwaitingStatus"
	case StateStarting:
		return "Starting"
	case StateStreaming:
		return "Streaming"
	case StateAwaitingCompletion:
		return "AwaitingCompletion"
	case StateAcknowledging:
		return "Acknowledging"
	case StateDone:
		return "Done"
	case StateFailed:
		return "Failed"
	default:
		return "Unknown"
	}
}
