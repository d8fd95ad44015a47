// Package telemetry emits authentication domain events to the event stream and OTel logs.
package telemetry

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
)

// EventType names a domain event.
type EventType string

const (
	EventDecisionMade        EventType = "decision_made"
	EventChallengeResolved   EventType = "challenge_resolved"
	EventValidationRequested EventType = "validation_requested"
	EventValidationResolved  EventType = "validation_resolved"
)

// Source is the default value of Event.Source.
const Source = "voice-auth"

// Event is one domain event. Serialized as JSON on the Kafka topic.
type Event struct {
	ID                string         `json:"id"`
	Type              EventType      `json:"eventType"`
	Source            string         `json:"source"`
	MerchantID        string         `json:"merchantId,omitempty"`
	DeviceFingerprint string         `json:"deviceFingerprint,omitempty"`
	DecisionLogID     string         `json:"decisionLogId,omitempty"`
	ValidationID      string         `json:"validationId,omitempty"`
	Decision          string         `json:"decision,omitempty"`
	TrustScore        *int           `json:"trustScore,omitempty"`
	Outcome           string         `json:"outcome,omitempty"`
	ReasonCodes       []string       `json:"reasonCodes,omitempty"`
	AgentID           string         `json:"agentId,omitempty"`
	Metadata          map[string]any `json:"metadata,omitempty"`
	CreatedAt         time.Time      `json:"createdAt"`
}

// NewEvent returns an event of type t with ID, Source and CreatedAt set.
func NewEvent(t EventType) *Event {
	return &Event{ID: uuid.New().String(), Type: t, Source: Source, CreatedAt: time.Now().UTC()}
}

// WithScore sets TrustScore and returns e.
func (e *Event) WithScore(score int) *Event {
	e.TrustScore = &score
	return e
}

// EventEmitter emits events. Best-effort; callers log and ignore errors.
type EventEmitter interface {
	Emit(ctx context.Context, event *Event) error
}

// Multi emits to every non-nil emitter and joins their errors.
type Multi []EventEmitter

// Emit implements EventEmitter.
func (m Multi) Emit(ctx context.Context, event *Event) error {
	var errs []error
	for _, em := range m {
		if em == nil {
			continue
		}
		if err := em.Emit(ctx, event); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
