package repository

import (
	"context"
	"time"

	"merchant-voice-auth/internal/device/domain"
)

// Repository defines persistence for device trust records.
type Repository interface {
	// Get returns the record for (merchantID, fingerprint), or nil if not found.
	Get(ctx context.Context, merchantID, fingerprint string) (*domain.TrustRecord, error)
	// Upsert creates the record with first_seen = last_seen = at, or moves last_seen to at.
	// It never clears a revocation.
	Upsert(ctx context.Context, merchantID, fingerprint string, at time.Time) (*domain.TrustRecord, error)
	// Revoke marks the record revoked. Missing records are a no-op.
	Revoke(ctx context.Context, merchantID, fingerprint string, at time.Time) error
	ListByMerchant(ctx context.Context, merchantID string) ([]*domain.TrustRecord, error)
}
