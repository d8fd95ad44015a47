package domain

import "time"

// Decision is the routing outcome of a trust evaluation.
type Decision string

const (
	DecisionDirect    Decision = "DIRECT"
	DecisionChallenge Decision = "CHALLENGE"
	DecisionEscalate  Decision = "ESCALATE"
	DecisionRegister  Decision = "REGISTER"
)

// Valid reports whether d is one of the known decisions.
func (d Decision) Valid() bool {
	switch d {
	case DecisionDirect, DecisionChallenge, DecisionEscalate, DecisionRegister:
		return true
	}
	return false
}

// ReasonCode explains a score penalty or a failed step.
type ReasonCode string

const (
	ReasonNewDevice                ReasonCode = "NEW_DEVICE"
	ReasonUnusualLocation          ReasonCode = "UNUSUAL_LOCATION"
	ReasonUnusualTime              ReasonCode = "UNUSUAL_TIME"
	ReasonManyFails                ReasonCode = "MANY_FAILS"
	ReasonWrongAnswer              ReasonCode = "WRONG_ANSWER"
	ReasonNoStoredAnswer           ReasonCode = "NO_STORED_ANSWER"
	ReasonTranscriptionUnavailable ReasonCode = "TRANSCRIPTION_UNAVAILABLE"
	ReasonLowConfidence            ReasonCode = "LOW_CONFIDENCE"
	ReasonValidationExpired        ReasonCode = "VALIDATION_EXPIRED"
)

// Outcome is the lifecycle state of a decision log entry.
type Outcome string

const (
	OutcomePending Outcome = "pending"
	OutcomeSuccess Outcome = "success"
	OutcomeFailed  Outcome = "failed"
)

// IsTerminal reports whether o can no longer change.
func (o Outcome) IsTerminal() bool {
	return o == OutcomeSuccess || o == OutcomeFailed
}

// DecisionLogEntry records one authentication attempt. Written pending at decision time and
// resolved exactly once.
type DecisionLogEntry struct {
	ID                string
	MerchantID        string // empty when the phone matched no merchant
	SubmittedPhone    string
	DeviceFingerprint string
	Latitude          *float64
	Longitude         *float64
	TrustScore        int
	Decision          Decision
	ReasonCodes       []ReasonCode
	Outcome           Outcome
	HourBucket        int
	CreatedAt         time.Time
	ResolvedAt        *time.Time
}

// HasReason reports whether code is among the entry's reason codes.
func (e *DecisionLogEntry) HasReason(code ReasonCode) bool {
	for _, c := range e.ReasonCodes {
		if c == code {
			return true
		}
	}
	return false
}

// AgentAction values.
const (
	ActionApprove = "approve"
	ActionReject  = "reject"
	ActionExpire  = "expire"
)

// AgentAction is the audit row of one agent decision on a validation request.
type AgentAction struct {
	ID                  string
	AgentID             string
	ValidationRequestID string
	Action              string
	Notes               string
	CreatedAt           time.Time
}
