package domain

import (
	"errors"
	"time"
)

// ErrPendingExists is returned when a merchant already has a pending validation request.
var ErrPendingExists = errors.New("validation: merchant already has a pending request")

// Result is the state of a validation request.
type Result string

const (
	ResultPending  Result = "pending"
	ResultApproved Result = "approved"
	ResultRejected Result = "rejected"
	ResultExpired  Result = "expired"
)

// IsTerminal reports whether r can no longer change.
func (r Result) IsTerminal() bool {
	return r == ResultApproved || r == ResultRejected || r == ResultExpired
}

// CanTransition reports whether a request in state r may move to next.
// Only pending requests move, and only to a terminal state.
func (r Result) CanTransition(next Result) bool {
	return r == ResultPending && next.IsTerminal()
}

// Type is the kind of verification asked of the agent.
type Type string

const (
	TypeIdentity    Type = "identity"
	TypeDevice      Type = "device"
	TypeLocation    Type = "location"
	TypeTransaction Type = "transaction"
	TypeEscalation  Type = "escalation"
)

// Request is a human validation request raised on escalation.
type Request struct {
	ID            string
	Code          string
	MerchantID    string
	Type          Type
	Result        Result
	Reason        string
	DecisionLogID string
	ValidatorID   string
	Notes         string
	ExpiresAt     time.Time
	ValidatedAt   *time.Time
	CreatedAt     time.Time
}

// ExpiredAt reports whether the request is past its expiry at now.
func (r *Request) ExpiredAt(now time.Time) bool {
	return !r.ExpiresAt.After(now)
}

// Remaining returns the time left before expiry, never negative.
func (r *Request) Remaining(now time.Time) time.Duration {
	d := r.ExpiresAt.Sub(now)
	if d < 0 {
		return 0
	}
	return d
}
