package domain

// SessionState tracks a chat session through key distribution.
//
// Requested -> Distributing -> Active -> Terminated, with Failed as the
// terminal state of an initiation that never distributed anything.
type SessionState int

const (
	SessionRequested SessionState = iota
	SessionDistributing
	SessionActive
	SessionFailed
	SessionTerminated
)

func (s SessionState) String() string {
	switch s {
	case SessionRequested:
		return "requested"
	case SessionDistributing:
		return "distributing"
	case SessionActive:
		return "active"
	case SessionFailed:
		return "failed"
	case SessionTerminated:
		return "terminated"
	default:
		return "unknown"
	}
}
