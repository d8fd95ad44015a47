package repository

import (
	"context"
	"sort"
	"sync"
	"time"

	"merchant-voice-auth/internal/device/domain"
)

type trustKey struct{ merchantID, fingerprint string }

// MemoryRepository is an in-memory Repository.
type MemoryRepository struct {
	mu      sync.Mutex
	records map[trustKey]*domain.TrustRecord
}

// NewMemoryRepository returns an empty in-memory device trust repository.
func NewMemoryRepository() *MemoryRepository {
	return &MemoryRepository{records: make(map[trustKey]*domain.TrustRecord)}
}

func (r *MemoryRepository) Get(ctx context.Context, merchantID, fingerprint string) (*domain.TrustRecord, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if d, ok := r.records[trustKey{merchantID, fingerprint}]; ok {
		c := *d
		return &c, nil
	}
	return nil, nil
}

func (r *MemoryRepository) Upsert(ctx context.Context, merchantID, fingerprint string, at time.Time) (*domain.TrustRecord, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	k := trustKey{merchantID, fingerprint}
	d, ok := r.records[k]
	if !ok {
		d = &domain.TrustRecord{MerchantID: merchantID, Fingerprint: fingerprint, FirstSeen: at}
		r.records[k] = d
	}
	d.LastSeen = at
	c := *d
	return &c, nil
}

func (r *MemoryRepository) Revoke(ctx context.Context, merchantID, fingerprint string, at time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if d, ok := r.records[trustKey{merchantID, fingerprint}]; ok && !d.Revoked {
		d.Revoked = true
		d.RevokedAt = &at
	}
	return nil
}

func (r *MemoryRepository) ListByMerchant(ctx context.Context, merchantID string) ([]*domain.TrustRecord, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []*domain.TrustRecord
	for k, d := range r.records {
		if k.merchantID == merchantID {
			c := *d
			out = append(out, &c)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].LastSeen.After(out[j].LastSeen) })
	return out, nil
}
