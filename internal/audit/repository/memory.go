package repository

import (
	"context"
	"sync"
	"time"

	"merchant-voice-auth/internal/audit/domain"
)

// MemoryRepository is an in-memory DecisionRepository and AgentActionRepository.
type MemoryRepository struct {
	mu        sync.Mutex
	decisions map[string]*domain.DecisionLogEntry
	order     []string
	actions   []*domain.AgentAction
}

// NewMemoryRepository returns an empty in-memory audit repository.
func NewMemoryRepository() *MemoryRepository {
	return &MemoryRepository{decisions: make(map[string]*domain.DecisionLogEntry)}
}

func (r *MemoryRepository) Append(ctx context.Context, e *domain.DecisionLogEntry) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	c := copyEntry(e)
	if c.Outcome == "" {
		c.Outcome = domain.OutcomePending
	}
	r.decisions[c.ID] = c
	r.order = append(r.order, c.ID)
	return nil
}

func (r *MemoryRepository) Resolve(ctx context.Context, id string, outcome domain.Outcome, reason domain.ReasonCode, at time.Time) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	e, ok := r.decisions[id]
	if !ok || e.Outcome != domain.OutcomePending {
		return false, nil
	}
	e.Outcome = outcome
	e.ResolvedAt = &at
	if reason != "" {
		e.ReasonCodes = append(e.ReasonCodes, reason)
	}
	return true, nil
}

func (r *MemoryRepository) GetByID(ctx context.Context, id string) (*domain.DecisionLogEntry, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if e, ok := r.decisions[id]; ok {
		return copyEntry(e), nil
	}
	return nil, nil
}

// All returns copies of every decision log entry in insertion order.
func (r *MemoryRepository) All() []*domain.DecisionLogEntry {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]*domain.DecisionLogEntry, 0, len(r.order))
	for _, id := range r.order {
		out = append(out, copyEntry(r.decisions[id]))
	}
	return out
}

func (r *MemoryRepository) CountFailuresSince(ctx context.Context, merchantID string, since time.Time) (int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	n := 0
	for _, e := range r.decisions {
		if e.MerchantID == merchantID && e.Outcome == domain.OutcomeFailed && !e.CreatedAt.Before(since) {
			n++
		}
	}
	return n, nil
}

func (r *MemoryRepository) LatestPending(ctx context.Context, merchantID, fingerprint string) (*domain.DecisionLogEntry, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var latest *domain.DecisionLogEntry
	for _, id := range r.order {
		e := r.decisions[id]
		if e.MerchantID != merchantID || e.DeviceFingerprint != fingerprint || e.Outcome != domain.OutcomePending {
			continue
		}
		if latest == nil || !e.CreatedAt.Before(latest.CreatedAt) {
			latest = e
		}
	}
	if latest == nil {
		return nil, nil
	}
	return copyEntry(latest), nil
}

func (r *MemoryRepository) AppendAgentAction(ctx context.Context, a *domain.AgentAction) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	c := *a
	r.actions = append(r.actions, &c)
	return nil
}

func (r *MemoryRepository) ListByRequest(ctx context.Context, validationRequestID string) ([]*domain.AgentAction, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []*domain.AgentAction
	for _, a := range r.actions {
		if a.ValidationRequestID == validationRequestID {
			c := *a
			out = append(out, &c)
		}
	}
	return out, nil
}

func copyEntry(e *domain.DecisionLogEntry) *domain.DecisionLogEntry {
	c := *e
	c.ReasonCodes = append([]domain.ReasonCode(nil), e.ReasonCodes...)
	return &c
}
