package repository

import (
	"context"
	"sync"
	"time"

	"merchant-voice-auth/internal/validation/domain"
)

// MemoryRepository is an in-memory Repository. A single mutex serializes the pending check
// with the insert and the conditional decide.
type MemoryRepository struct {
	mu       sync.Mutex
	requests map[string]*domain.Request
}

// NewMemoryRepository returns an empty in-memory validation repository.
func NewMemoryRepository() *MemoryRepository {
	return &MemoryRepository{requests: make(map[string]*domain.Request)}
}

func (m *MemoryRepository) Create(ctx context.Context, r *domain.Request) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if r.Result == domain.ResultPending {
		for _, existing := range m.requests {
			if existing.MerchantID == r.MerchantID && existing.Result == domain.ResultPending {
				return domain.ErrPendingExists
			}
		}
	}
	c := *r
	m.requests[r.ID] = &c
	return nil
}

func (m *MemoryRepository) GetByID(ctx context.Context, id string) (*domain.Request, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if r, ok := m.requests[id]; ok {
		c := *r
		return &c, nil
	}
	return nil, nil
}

func (m *MemoryRepository) GetPending(ctx context.Context, merchantID string, now time.Time) (*domain.Request, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var found *domain.Request
	for _, r := range m.requests {
		if r.MerchantID != merchantID || r.Result != domain.ResultPending || r.ExpiredAt(now) {
			continue
		}
		if found == nil || r.CreatedAt.After(found.CreatedAt) {
			found = r
		}
	}
	if found == nil {
		return nil, nil
	}
	c := *found
	return &c, nil
}

func (m *MemoryRepository) Decide(ctx context.Context, code, agentID string, approved bool, notes string, now time.Time) (*domain.Request, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var target *domain.Request
	for _, r := range m.requests {
		if r.Code != code || r.Result != domain.ResultPending || r.ExpiredAt(now) {
			continue
		}
		if target == nil || r.CreatedAt.After(target.CreatedAt) {
			target = r
		}
	}
	if target == nil {
		return nil, nil
	}
	target.Result = domain.ResultRejected
	if approved {
		target.Result = domain.ResultApproved
	}
	target.ValidatorID = agentID
	target.Notes = notes
	at := now
	target.ValidatedAt = &at
	c := *target
	return &c, nil
}

func (m *MemoryRepository) ExpireDue(ctx context.Context, merchantID string, now time.Time) ([]*domain.Request, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*domain.Request
	for _, r := range m.requests {
		if r.Result != domain.ResultPending || !r.ExpiredAt(now) {
			continue
		}
		if merchantID != "" && r.MerchantID != merchantID {
			continue
		}
		r.Result = domain.ResultExpired
		at := now
		r.ValidatedAt = &at
		c := *r
		out = append(out, &c)
	}
	return out, nil
}
