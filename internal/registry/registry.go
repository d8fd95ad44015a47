// Package registry records device trust and authentication decisions.
package registry

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"merchant-voice-auth/internal/audit"
	auditdomain "merchant-voice-auth/internal/audit/domain"
	auditrepo "merchant-voice-auth/internal/audit/repository"
	devicedomain "merchant-voice-auth/internal/device/domain"
	devicerepo "merchant-voice-auth/internal/device/repository"
)

// Registry is the audit and device trust store used by scoring, challenges and escalation.
type Registry struct {
	devices   devicerepo.Repository
	decisions auditrepo.DecisionRepository
	actions   audit.ActionLogger
	logger    *slog.Logger
	nowF      func() time.Time
}

// New returns a Registry. actions may be nil when agent actions are not recorded.
func New(devices devicerepo.Repository, decisions auditrepo.DecisionRepository, actions audit.ActionLogger, logger *slog.Logger) *Registry {
	if logger == nil {
		logger = slog.Default()
	}
	return &Registry{
		devices:   devices,
		decisions: decisions,
		actions:   actions,
		logger:    logger,
		nowF:      func() time.Time { return time.Now().UTC() },
	}
}

// UpsertDevice records a successful authentication from fingerprint. Idempotent.
func (r *Registry) UpsertDevice(ctx context.Context, merchantID, fingerprint string) (*devicedomain.TrustRecord, error) {
	if merchantID == "" || fingerprint == "" {
		return nil, fmt.Errorf("registry: merchant id and fingerprint are required")
	}
	d, err := r.devices.Upsert(ctx, merchantID, fingerprint, r.nowF())
	if err != nil {
		return nil, fmt.Errorf("registry: upsert device: %w", err)
	}
	return d, nil
}

// IsTrustedDevice reports whether fingerprint is a non-revoked known device of the merchant.
func (r *Registry) IsTrustedDevice(ctx context.Context, merchantID, fingerprint string) (bool, error) {
	d, err := r.devices.Get(ctx, merchantID, fingerprint)
	if err != nil {
		return false, fmt.Errorf("registry: get device: %w", err)
	}
	return d.IsTrusted(), nil
}

// RevokeDevice marks the device revoked. Later upserts do not restore trust.
func (r *Registry) RevokeDevice(ctx context.Context, merchantID, fingerprint string) error {
	if err := r.devices.Revoke(ctx, merchantID, fingerprint, r.nowF()); err != nil {
		return fmt.Errorf("registry: revoke device: %w", err)
	}
	return nil
}

// ListDevices returns every trust record of the merchant.
func (r *Registry) ListDevices(ctx context.Context, merchantID string) ([]*devicedomain.TrustRecord, error) {
	return r.devices.ListByMerchant(ctx, merchantID)
}

// AppendDecision writes a pending decision log entry and returns it with ID and CreatedAt set.
func (r *Registry) AppendDecision(ctx context.Context, e *auditdomain.DecisionLogEntry) (*auditdomain.DecisionLogEntry, error) {
	if e.ID == "" {
		e.ID = uuid.New().String()
	}
	if e.CreatedAt.IsZero() {
		e.CreatedAt = r.nowF()
	}
	e.Outcome = auditdomain.OutcomePending
	if err := r.decisions.Append(ctx, e); err != nil {
		return nil, fmt.Errorf("registry: append decision: %w", err)
	}
	return e, nil
}

// ResolveDecision sets the terminal outcome of a pending entry. It returns false if the entry was
// already resolved or does not exist; the stored outcome is then unchanged.
func (r *Registry) ResolveDecision(ctx context.Context, id string, outcome auditdomain.Outcome, reason auditdomain.ReasonCode) (bool, error) {
	if id == "" {
		return false, nil
	}
	if !outcome.IsTerminal() {
		return false, fmt.Errorf("registry: outcome %q is not terminal", outcome)
	}
	ok, err := r.decisions.Resolve(ctx, id, outcome, reason, r.nowF())
	if err != nil {
		return false, fmt.Errorf("registry: resolve decision: %w", err)
	}
	if !ok {
		r.logger.Debug("registry: decision already resolved", "decision_log_id", id, "outcome", outcome)
	}
	return ok, nil
}

// GetDecision returns the entry for id, or nil if not found.
func (r *Registry) GetDecision(ctx context.Context, id string) (*auditdomain.DecisionLogEntry, error) {
	return r.decisions.GetByID(ctx, id)
}

// CountFailuresSince counts failed attempts of the merchant since the given instant.
func (r *Registry) CountFailuresSince(ctx context.Context, merchantID string, since time.Time) (int, error) {
	return r.decisions.CountFailuresSince(ctx, merchantID, since)
}

// LatestPendingDecision returns the newest unresolved entry for the merchant and device, or nil.
func (r *Registry) LatestPendingDecision(ctx context.Context, merchantID, fingerprint string) (*auditdomain.DecisionLogEntry, error) {
	return r.decisions.LatestPending(ctx, merchantID, fingerprint)
}

// AppendAgentAction records one agent decision. Best-effort.
func (r *Registry) AppendAgentAction(ctx context.Context, agentID, validationRequestID, action, notes string) {
	if r.actions == nil {
		return
	}
	r.actions.LogAgentAction(ctx, agentID, validationRequestID, action, notes)
}
