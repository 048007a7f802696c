package app

// State represents the current application state.
type State int

const (
	StateStarting State = iota // Initial open in flight
	StateChat                  // Engine running; the channel may be open, degraded or closed
	StateEnded                 // Engine torn down (logout, unauthenticated session)
)

func (s State) String() string {
	switch s {
	case StateStarting:
		return "starting"
	case StateChat:
		return "chat"
	case StateEnded:
		return "ended"
	default:
		return "unknown"
	}
}
