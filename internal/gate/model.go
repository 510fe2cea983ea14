package gate

import (
	"time"
)

// Decision is the outcome of an admission check.
type Decision string

const (
	// DecisionProceed lets the inbound message continue downstream.
	DecisionProceed Decision = "PROCEED"
	// DecisionWait suspends processing until the pending request resolves.
	DecisionWait Decision = "WAIT"
	// DecisionBlocked drops the message after an owner denial.
	DecisionBlocked Decision = "BLOCKED"
)

// GrantSource records how an active session came to exist.
type GrantSource string

const (
	// GrantOwner marks sessions approved explicitly by the owner.
	GrantOwner GrantSource = "owner"
	// GrantAutoTimeout marks sessions promoted when the owner did not answer in time.
	GrantAutoTimeout GrantSource = "auto-timeout"
)

// PendingRequest is an admission waiting on the owner's decision. The
// decision channel resolves exactly once: whichever of the owner decision or
// the timeout deletes the request first gets to send on it.
type PendingRequest struct {
	Principal   string
	DisplayName string
	RequestedAt time.Time

	decision chan Decision
	timer    *time.Timer
}

func newPendingRequest(principal, displayName string, requestedAt time.Time) *PendingRequest {
	return &PendingRequest{
		Principal:   principal,
		DisplayName: displayName,
		RequestedAt: requestedAt,
		decision:    make(chan Decision, 1),
	}
}

// Session is a time-bounded grant to exchange messages.
type Session struct {
	Principal   string
	DisplayName string
	GrantedAt   time.Time
	GrantedBy   GrantSource
}

// SessionInfo is the read-only view returned to callers.
type SessionInfo struct {
	Principal   string      `json:"principal"`
	DisplayName string      `json:"display_name"`
	GrantedAt   time.Time   `json:"granted_at"`
	GrantedBy   GrantSource `json:"granted_by"`
	ExpiresAt   time.Time   `json:"expires_at"`
}

// Stats is a point-in-time snapshot of the gate's state.
type Stats struct {
	ActiveSessions  int `json:"active_sessions"`
	PendingRequests int `json:"pending_requests"`
}
