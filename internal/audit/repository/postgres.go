package repository

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"

	"merchant-voice-auth/internal/audit/domain"
	"merchant-voice-auth/internal/db"
)

const decisionColumns = `id, COALESCE(merchant_id, ''), submitted_phone, device_fingerprint, latitude, longitude,
	trust_score, decision, reason_codes, outcome, hour_bucket, created_at, resolved_at`

type PostgresRepository struct {
	db db.DBTX
}

// NewPostgresRepository returns a decision log and agent action repository backed by the given pool.
func NewPostgresRepository(conn db.DBTX) *PostgresRepository {
	return &PostgresRepository{db: conn}
}

// Append inserts the entry. An empty MerchantID is stored as NULL.
func (r *PostgresRepository) Append(ctx context.Context, e *domain.DecisionLogEntry) error {
	var merchantID *string
	if e.MerchantID != "" {
		merchantID = &e.MerchantID
	}
	outcome := e.Outcome
	if outcome == "" {
		outcome = domain.OutcomePending
	}
	_, err := r.db.Exec(ctx, `
		INSERT INTO decision_logs (id, merchant_id, submitted_phone, device_fingerprint, latitude, longitude,
			trust_score, decision, reason_codes, outcome, hour_bucket, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)`,
		e.ID, merchantID, e.SubmittedPhone, e.DeviceFingerprint, e.Latitude, e.Longitude,
		e.TrustScore, string(e.Decision), reasonStrings(e.ReasonCodes), string(outcome), e.HourBucket, e.CreatedAt)
	return err
}

// Resolve updates the entry only while it is still pending.
func (r *PostgresRepository) Resolve(ctx context.Context, id string, outcome domain.Outcome, reason domain.ReasonCode, at time.Time) (bool, error) {
	tag, err := r.db.Exec(ctx, `
		UPDATE decision_logs
		SET outcome = $2, resolved_at = $3,
			reason_codes = CASE WHEN $4::text = '' THEN reason_codes ELSE array_append(reason_codes, $4::text) END
		WHERE id = $1 AND outcome = 'pending'`,
		id, string(outcome), at, string(reason))
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() == 1, nil
}

// GetByID returns the entry for id, or nil if not found.
// It returns an error only for database failures, not for missing rows.
func (r *PostgresRepository) GetByID(ctx context.Context, id string) (*domain.DecisionLogEntry, error) {
	row := r.db.QueryRow(ctx, `SELECT `+decisionColumns+` FROM decision_logs WHERE id = $1`, id)
	return scanDecision(row)
}

func (r *PostgresRepository) CountFailuresSince(ctx context.Context, merchantID string, since time.Time) (int, error) {
	var n int
	err := r.db.QueryRow(ctx, `
		SELECT count(*) FROM decision_logs
		WHERE merchant_id = $1 AND outcome = 'failed' AND created_at >= $2`, merchantID, since).Scan(&n)
	return n, err
}

func (r *PostgresRepository) LatestPending(ctx context.Context, merchantID, fingerprint string) (*domain.DecisionLogEntry, error) {
	row := r.db.QueryRow(ctx, `SELECT `+decisionColumns+` FROM decision_logs
		WHERE merchant_id = $1 AND device_fingerprint = $2 AND outcome = 'pending'
		ORDER BY created_at DESC LIMIT 1`, merchantID, fingerprint)
	return scanDecision(row)
}

func (r *PostgresRepository) AppendAgentAction(ctx context.Context, a *domain.AgentAction) error {
	var notes *string
	if a.Notes != "" {
		notes = &a.Notes
	}
	_, err := r.db.Exec(ctx, `
		INSERT INTO agent_actions (id, agent_id, validation_request_id, action, notes, created_at)
		VALUES ($1, $2, $3, $4, $5, $6)`,
		a.ID, a.AgentID, a.ValidationRequestID, a.Action, notes, a.CreatedAt)
	return err
}

func (r *PostgresRepository) ListByRequest(ctx context.Context, validationRequestID string) ([]*domain.AgentAction, error) {
	rows, err := r.db.Query(ctx, `
		SELECT id, agent_id, validation_request_id, action, COALESCE(notes, ''), created_at
		FROM agent_actions WHERE validation_request_id = $1 ORDER BY created_at`, validationRequestID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []*domain.AgentAction
	for rows.Next() {
		var a domain.AgentAction
		if err := rows.Scan(&a.ID, &a.AgentID, &a.ValidationRequestID, &a.Action, &a.Notes, &a.CreatedAt); err != nil {
			return nil, err
		}
		out = append(out, &a)
	}
	return out, rows.Err()
}

func scanDecision(row pgx.Row) (*domain.DecisionLogEntry, error) {
	var (
		e        domain.DecisionLogEntry
		decision string
		outcome  string
		reasons  []string
	)
	err := row.Scan(&e.ID, &e.MerchantID, &e.SubmittedPhone, &e.DeviceFingerprint, &e.Latitude, &e.Longitude,
		&e.TrustScore, &decision, &reasons, &outcome, &e.HourBucket, &e.CreatedAt, &e.ResolvedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	e.Decision = domain.Decision(decision)
	e.Outcome = domain.Outcome(outcome)
	for _, s := range reasons {
		e.ReasonCodes = append(e.ReasonCodes, domain.ReasonCode(s))
	}
	return &e, nil
}

func reasonStrings(codes []domain.ReasonCode) []string {
	out := make([]string, len(codes))
	for i, c := range codes {
		out[i] = string(c)
	}
	return out
}
