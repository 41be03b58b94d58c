package call

import "fmt"

// State is the lifecycle of a call session. Caller path:
// Idle → Calling → Connecting → Active → Ended. Callee path:
// Idle → Ringing → Connecting → Active → Ended. Ringing falls back to
// Idle on decline or ring timeout; every state can reach Ended on media
// failure, a terminal peer message, or an explicit local end.
type State int

const (
	StateIdle State = iota
	StateCalling
	StateRinging
	StateConnecting
	StateActive
	StateEnded
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateCalling:
		return "calling"
	case StateRinging:
		return "ringing"
	case StateConnecting:
		return "connecting"
	case StateActive:
		return "active"
	case StateEnded:
		return "ended"
	}
	return fmt.Sprintf("state(%d)", int(s))
}
