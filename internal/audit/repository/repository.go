package repository

import (
	"context"
	"time"

	"merchant-voice-auth/internal/audit/domain"
)

// DecisionRepository persists decision log entries.
type DecisionRepository interface {
	// Append writes a new entry. The entry must have ID set.
	Append(ctx context.Context, e *domain.DecisionLogEntry) error
	// Resolve sets a terminal outcome on a pending entry and appends reason when non-empty.
	// It returns false when the entry does not exist or is already resolved.
	Resolve(ctx context.Context, id string, outcome domain.Outcome, reason domain.ReasonCode, at time.Time) (bool, error)
	// GetByID returns the entry for id, or nil if not found.
	GetByID(ctx context.Context, id string) (*domain.DecisionLogEntry, error)
	// CountFailuresSince counts failed entries of the merchant created at or after since.
	CountFailuresSince(ctx context.Context, merchantID string, since time.Time) (int, error)
	// LatestPending returns the newest pending entry for the merchant and device, or nil.
	LatestPending(ctx context.Context, merchantID, fingerprint string) (*domain.DecisionLogEntry, error)
}

// AgentActionRepository persists agent action audit rows.
type AgentActionRepository interface {
	AppendAgentAction(ctx context.Context, a *domain.AgentAction) error
	ListByRequest(ctx context.Context, validationRequestID string) ([]*domain.AgentAction, error)
}
