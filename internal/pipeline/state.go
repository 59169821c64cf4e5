package pipeline

// State is the lifecycle stage of a Pipeline.
type State int32

const (
	StateConnecting State = iota
	StateStreaming
	StateDraining
	StateStopped
)

// String returns the state name.
func (s State) String() string {
	switch s {
	case StateConnecting:
		return "connecting"
	case StateStreaming:
		return "streaming"
	case StateDraining:
		return "draining"
	case StateStopped:
		return "stopped"
	default:
		return "unknown"
	}
}
