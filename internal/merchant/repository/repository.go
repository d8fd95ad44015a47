package repository

import (
	"context"

	"merchant-voice-auth/internal/merchant/domain"
)

// Repository defines read access to merchants and their locations.
// Lookups return (nil, nil) when the record does not exist.
type Repository interface {
	GetByID(ctx context.Context, id string) (*domain.Merchant, error)
	GetByPhone(ctx context.Context, phone string) (*domain.Merchant, error)
	GetLocation(ctx context.Context, id string) (*domain.Location, error)
}
