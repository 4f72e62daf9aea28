package download

// State is the phase a tile task is in.
type State int

const (
	StateRequesting State = iota
	StateRedirecting
	StateAuthenticating
	StateSaving
	StateDone
)

func (s State) String() string {
	switch s {
	case StateRequesting:
		return "requesting"
	case StateRedirecting:
		return "redirecting"
	case StateAuthenticating:
		return "authenticating"
	case StateSaving:
		return "saving"
	case StateDone:
		return "done"
	default:
		return "unknown"
	}
}
