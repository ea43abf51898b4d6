package mpv

// ConnState is the client's connection lifecycle state.
type ConnState int

const (
	Disconnected ConnState = iota
	Connecting             // dialing, then re-subscribing the observed properties
	Connected
	Closed
)

func (s ConnState) String() string {
	switch s {
	case Disconnected:
		return "disconnected"
	case Connecting:
		return "connecting"
	case Connected:
		return "connected"
	case Closed:
		return "closed"
	}
	return "unknown"
}

// validTransition is the transition table of the connection state machine.
// Closed is terminal and reachable from every other state.
func validTransition(from, to ConnState) bool {
	if from == Closed {
		return false
	}
	switch to {
	case Closed:
		return true
	case Connecting:
		return from == Disconnected
	case Connected:
		return from == Connecting
	case Disconnected:
		return from == Connecting || from == Connected
	}
	return false
}
