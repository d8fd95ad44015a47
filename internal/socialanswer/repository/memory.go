package repository

import (
	"context"
	"sort"
	"sync"

	"merchant-voice-auth/internal/socialanswer/domain"
)

// MemoryRepository is an in-memory Repository.
type MemoryRepository struct {
	mu      sync.RWMutex
	records map[string]map[string]*domain.Record
}

// NewMemoryRepository returns a repository holding the given records.
func NewMemoryRepository(records ...*domain.Record) *MemoryRepository {
	r := &MemoryRepository{records: make(map[string]map[string]*domain.Record)}
	for _, rec := range records {
		r.Put(rec)
	}
	return r
}

// Put stores or replaces a record.
func (r *MemoryRepository) Put(rec *domain.Record) {
	r.mu.Lock()
	defer r.mu.Unlock()
	byKey, ok := r.records[rec.MerchantID]
	if !ok {
		byKey = make(map[string]*domain.Record)
		r.records[rec.MerchantID] = byKey
	}
	c := *rec
	byKey[rec.ChallengeKey] = &c
}

func (r *MemoryRepository) Get(ctx context.Context, merchantID, challengeKey string) (*domain.Record, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if rec, ok := r.records[merchantID][challengeKey]; ok {
		c := *rec
		return &c, nil
	}
	return nil, nil
}

func (r *MemoryRepository) ListKeys(ctx context.Context, merchantID string) ([]string, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var keys []string
	for k := range r.records[merchantID] {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys, nil
}
