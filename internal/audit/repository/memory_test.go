package repository

import (
	"context"
	"testing"
	"time"

	"merchant-voice-auth/internal/audit/domain"
)

func TestMemoryRepository_ResolveOnce(t *testing.T) {
	r := NewMemoryRepository()
	ctx := context.Background()
	now := time.Now().UTC()
	_ = r.Append(ctx, &domain.DecisionLogEntry{ID: "d-1", MerchantID: "m-1", Decision: domain.DecisionChallenge, CreatedAt: now})

	ok, err := r.Resolve(ctx, "d-1", domain.OutcomeFailed, domain.ReasonWrongAnswer, now)
	if err != nil || !ok {
		t.Fatalf("first Resolve = %v, %v; want true, nil", ok, err)
	}
	ok, _ = r.Resolve(ctx, "d-1", domain.OutcomeSuccess, "", now)
	if ok {
		t.Error("second Resolve should not change a terminal entry")
	}
	e, _ := r.GetByID(ctx, "d-1")
	if e.Outcome != domain.OutcomeFailed {
		t.Errorf("Outcome = %q, want %q", e.Outcome, domain.OutcomeFailed)
	}
	if !e.HasReason(domain.ReasonWrongAnswer) {
		t.Errorf("ReasonCodes = %v, want WRONG_ANSWER", e.ReasonCodes)
	}
	if ok, _ := r.Resolve(ctx, "missing", domain.OutcomeFailed, "", now); ok {
		t.Error("Resolve on a missing entry should return false")
	}
}

func TestMemoryRepository_CountFailuresSince(t *testing.T) {
	r := NewMemoryRepository()
	ctx := context.Background()
	now := time.Now().UTC()
	entries := []struct {
		id      string
		at      time.Time
		outcome domain.Outcome
	}{
		{"d-1", now.Add(-40 * 24 * time.Hour), domain.OutcomeFailed},
		{"d-2", now.Add(-2 * 24 * time.Hour), domain.OutcomeFailed},
		{"d-3", now.Add(-time.Hour), domain.OutcomeFailed},
		{"d-4", now.Add(-time.Hour), domain.OutcomeSuccess},
	}
	for _, e := range entries {
		_ = r.Append(ctx, &domain.DecisionLogEntry{ID: e.id, MerchantID: "m-1", CreatedAt: e.at, Outcome: e.outcome})
	}
	n, err := r.CountFailuresSince(ctx, "m-1", now.Add(-30*24*time.Hour))
	if err != nil {
		t.Fatalf("CountFailuresSince: %v", err)
	}
	if n != 2 {
		t.Errorf("failures = %d, want 2", n)
	}
}

func TestMemoryRepository_LatestPending(t *testing.T) {
	r := NewMemoryRepository()
	ctx := context.Background()
	now := time.Now().UTC()
	_ = r.Append(ctx, &domain.DecisionLogEntry{ID: "old", MerchantID: "m-1", DeviceFingerprint: "fp", CreatedAt: now.Add(-time.Minute)})
	_ = r.Append(ctx, &domain.DecisionLogEntry{ID: "new", MerchantID: "m-1", DeviceFingerprint: "fp", CreatedAt: now})
	_ = r.Append(ctx, &domain.DecisionLogEntry{ID: "other", MerchantID: "m-1", DeviceFingerprint: "fp-2", CreatedAt: now.Add(time.Minute)})

	e, err := r.LatestPending(ctx, "m-1", "fp")
	if err != nil || e == nil {
		t.Fatalf("LatestPending = %v, %v", e, err)
	}
	if e.ID != "new" {
		t.Errorf("ID = %q, want %q", e.ID, "new")
	}
	_, _ = r.Resolve(ctx, "new", domain.OutcomeSuccess, "", now)
	e, _ = r.LatestPending(ctx, "m-1", "fp")
	if e == nil || e.ID != "old" {
		t.Errorf("after resolve LatestPending = %v, want old", e)
	}
}
