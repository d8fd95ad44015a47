package repository

import (
	"context"

	"merchant-voice-auth/internal/socialanswer/domain"
)

// Repository reads stored social answers.
type Repository interface {
	// Get returns the record for (merchantID, challengeKey), or nil if not found.
	Get(ctx context.Context, merchantID, challengeKey string) (*domain.Record, error)
	// ListKeys returns the challenge keys enrolled for the merchant, sorted.
	ListKeys(ctx context.Context, merchantID string) ([]string, error)
}
