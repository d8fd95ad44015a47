package repository

import (
	"context"
	"time"

	"merchant-voice-auth/internal/validation/domain"
)

// Repository defines persistence for validation requests.
type Repository interface {
	// Create inserts r. It returns domain.ErrPendingExists if the merchant already has a pending request.
	Create(ctx context.Context, r *domain.Request) error
	// GetByID returns the request for id, or nil if not found.
	GetByID(ctx context.Context, id string) (*domain.Request, error)
	// GetPending returns the merchant's pending request that has not expired at now, or nil.
	GetPending(ctx context.Context, merchantID string, now time.Time) (*domain.Request, error)
	// Decide moves the newest pending, unexpired request with code to approved or rejected in one
	// conditional update. It returns nil when no request matched.
	Decide(ctx context.Context, code, agentID string, approved bool, notes string, now time.Time) (*domain.Request, error)
	// ExpireDue marks pending requests past their expiry as expired and returns them.
	// An empty merchantID sweeps all merchants.
	ExpireDue(ctx context.Context, merchantID string, now time.Time) ([]*domain.Request, error)
}

// DefaultTTL is how long a validation request stays approvable.
const DefaultTTL = 30 * time.Minute
