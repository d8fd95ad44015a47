package repository

import (
	"context"
	"testing"
	"time"
)

func TestMemoryRepository_UpsertIsIdempotent(t *testing.T) {
	r := NewMemoryRepository()
	ctx := context.Background()
	t0 := time.Date(2026, 3, 1, 8, 0, 0, 0, time.UTC)

	if _, err := r.Upsert(ctx, "m-1", "fp-1", t0); err != nil {
		t.Fatalf("Upsert: %v", err)
	}
	d, err := r.Upsert(ctx, "m-1", "fp-1", t0.Add(time.Hour))
	if err != nil {
		t.Fatalf("Upsert: %v", err)
	}
	if !d.FirstSeen.Equal(t0) {
		t.Errorf("FirstSeen = %v, want %v", d.FirstSeen, t0)
	}
	if !d.LastSeen.Equal(t0.Add(time.Hour)) {
		t.Errorf("LastSeen = %v, want %v", d.LastSeen, t0.Add(time.Hour))
	}
	list, _ := r.ListByMerchant(ctx, "m-1")
	if len(list) != 1 {
		t.Errorf("records = %d, want 1", len(list))
	}
}

func TestMemoryRepository_RevokeIsSticky(t *testing.T) {
	r := NewMemoryRepository()
	ctx := context.Background()
	now := time.Now().UTC()
	_, _ = r.Upsert(ctx, "m-1", "fp-1", now)
	if err := r.Revoke(ctx, "m-1", "fp-1", now); err != nil {
		t.Fatalf("Revoke: %v", err)
	}
	d, _ := r.Upsert(ctx, "m-1", "fp-1", now.Add(time.Minute))
	if d.IsTrusted() {
		t.Error("upsert must not clear a revocation")
	}
	if d.RevokedAt == nil {
		t.Error("RevokedAt should be set")
	}
}

func TestMemoryRepository_GetMissing(t *testing.T) {
	r := NewMemoryRepository()
	d, err := r.Get(context.Background(), "m-1", "nope")
	if err != nil || d != nil {
		t.Errorf("Get = %v, %v; want nil, nil", d, err)
	}
}
