package connection

// State is the process-wide connectivity value. Disconnected and Connected
// are stable; Connecting and Reconnecting are transient.
type State int

const (
	Disconnected State = iota
	Connecting
	Connected
	Reconnecting
)

// String returns the string representation of a State.
func (s State) String() string {
	switch s {
	case Disconnected:
		return "disconnected"
	case Connecting:
		return "connecting"
	case Connected:
		return "connected"
	case Reconnecting:
		return "reconnecting"
	default:
		return "unknown"
	}
}

// StateChange is published on the bus for every transition so dependents
// can react without polling.
type StateChange struct {
	Old State
	New State
}
