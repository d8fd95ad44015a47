package repository

import (
	"context"

	"merchant-voice-auth/internal/agent/domain"
)

// Repository defines read access to human validation agents.
type Repository interface {
	ListActive(ctx context.Context) ([]*domain.Agent, error)
}
