package repository

import (
	"context"
	"sync"

	"merchant-voice-auth/internal/merchant/domain"
)

// MemoryRepository is an in-memory Repository used by tests and the database-less dev mode.
type MemoryRepository struct {
	mu        sync.RWMutex
	merchants map[string]*domain.Merchant
	locations map[string]*domain.Location
}

// NewMemoryRepository returns an empty in-memory merchant repository.
func NewMemoryRepository() *MemoryRepository {
	return &MemoryRepository{
		merchants: make(map[string]*domain.Merchant),
		locations: make(map[string]*domain.Location),
	}
}

// PutMerchant stores a copy of m.
func (r *MemoryRepository) PutMerchant(m *domain.Merchant) {
	r.mu.Lock()
	defer r.mu.Unlock()
	c := *m
	r.merchants[m.ID] = &c
}

// PutLocation stores a copy of l.
func (r *MemoryRepository) PutLocation(l *domain.Location) {
	r.mu.Lock()
	defer r.mu.Unlock()
	c := *l
	r.locations[l.ID] = &c
}

func (r *MemoryRepository) GetByID(ctx context.Context, id string) (*domain.Merchant, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if m, ok := r.merchants[id]; ok {
		c := *m
		return &c, nil
	}
	return nil, nil
}

func (r *MemoryRepository) GetByPhone(ctx context.Context, phone string) (*domain.Merchant, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	for _, m := range r.merchants {
		if m.Phone == phone {
			c := *m
			return &c, nil
		}
	}
	return nil, nil
}

func (r *MemoryRepository) GetLocation(ctx context.Context, id string) (*domain.Location, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if l, ok := r.locations[id]; ok {
		c := *l
		return &c, nil
	}
	return nil, nil
}
