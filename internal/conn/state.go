package conn

// State describes the transport link lifecycle.
type State int

const (
	// StateDisconnected means no transport is live and none is being attempted.
	StateDisconnected State = iota
	// StateConnecting means the first dial for a session is in flight.
	StateConnecting
	// StateConnected means frames can be sent and received.
	StateConnected
	// StateReconnecting means the link dropped and a backoff retry is scheduled.
	StateReconnecting
	// StateFailed means the consecutive-failure budget is exhausted. The
	// subsystem keeps accepting local actions; an explicit Connect re-enters
	// the state machine. This is the degraded-mode signal.
	StateFailed
)

func (s State) String() string {
	switch s {
	case StateDisconnected:
		return "disconnected"
	case StateConnecting:
		return "connecting"
	case StateConnected:
		return "connected"
	case StateReconnecting:
		return "reconnecting"
	case StateFailed:
		return "failed"
	default:
		return "unknown"
	}
}

// live reports whether a connection attempt or link is in progress.
func (s State) live() bool {
	return s == StateConnecting || s == StateConnected || s == StateReconnecting
}
