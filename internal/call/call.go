// Package call implements the client-side call-session core: polling a
// backend for active consultation rooms, arbitrating a single incoming-call
// notification, and driving the lifecycle of at most one live media session.
// It is independent of any rendering layer; hosts observe it through
// snapshots and callbacks.
package call

import "errors"

var (
	// ErrRoomNotFound means the call room does not exist yet. Expected
	// during polling, never logged as a failure.
	ErrRoomNotFound = errors.New("call room not found")

	// ErrCallInProgress guards initiate/accept while a call is not idle.
	// Callers treat it as a no-op, not a failure.
	ErrCallInProgress = errors.New("call already in progress")

	// ErrNotConnected is returned by media intents outside a connected call.
	ErrNotConnected = errors.New("no connected call")
)

type Phase int

const (
	PhaseIdle Phase = iota
	PhaseConnecting
	PhaseConnected
	PhaseDisconnecting
)

func (p Phase) String() string {
	switch p {
	case PhaseIdle:
		return "idle"
	case PhaseConnecting:
		return "connecting"
	case PhaseConnected:
		return "connected"
	case PhaseDisconnecting:
		return "disconnecting"
	default:
		return "unknown"
	}
}

// DisconnectReason is the neutral form of a transport's disconnect cause.
// Transport adapters map their own reason codes into it at the boundary so
// the controller never sees transport-specific enums.
type DisconnectReason int

const (
	DisconnectLocalLeave DisconnectReason = iota
	DisconnectRemoteOrNetwork
)

func (r DisconnectReason) String() string {
	if r == DisconnectLocalLeave {
		return "local_leave"
	}
	return "remote_or_network"
}

type Role string

const (
	RolePatient Role = "patient"
	RoleDoctor  Role = "doctor"
)

// Other returns the counterparty role, i.e. who the caller would be.
func (r Role) Other() Role {
	if r == RoleDoctor {
		return RolePatient
	}
	return RoleDoctor
}
