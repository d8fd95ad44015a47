package repository

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"

	"merchant-voice-auth/internal/db"
	"merchant-voice-auth/internal/validation/domain"
)

const requestColumns = `id, code, merchant_id, validation_type, result, reason, COALESCE(decision_log_id, ''),
	COALESCE(validator_id, ''), COALESCE(notes, ''), expires_at, validated_at, created_at`

type PostgresRepository struct {
	db db.DBTX
}

// NewPostgresRepository returns a validation request repository backed by the given pool.
func NewPostgresRepository(conn db.DBTX) *PostgresRepository {
	return &PostgresRepository{db: conn}
}

// Create inserts r. The partial unique index on pending rows turns a second pending request
// for the same merchant into domain.ErrPendingExists.
func (r *PostgresRepository) Create(ctx context.Context, req *domain.Request) error {
	var logID *string
	if req.DecisionLogID != "" {
		logID = &req.DecisionLogID
	}
	_, err := r.db.Exec(ctx, `
		INSERT INTO validation_requests (id, code, merchant_id, validation_type, result, reason,
			decision_log_id, expires_at, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`,
		req.ID, req.Code, req.MerchantID, string(req.Type), string(req.Result), req.Reason,
		logID, req.ExpiresAt, req.CreatedAt)
	if db.IsUniqueViolation(err) {
		return domain.ErrPendingExists
	}
	return err
}

// GetByID returns the request for id, or nil if not found.
// It returns an error only for database failures, not for missing rows.
func (r *PostgresRepository) GetByID(ctx context.Context, id string) (*domain.Request, error) {
	return scanRequest(r.db.QueryRow(ctx, `SELECT `+requestColumns+` FROM validation_requests WHERE id = $1`, id))
}

func (r *PostgresRepository) GetPending(ctx context.Context, merchantID string, now time.Time) (*domain.Request, error) {
	return scanRequest(r.db.QueryRow(ctx, `SELECT `+requestColumns+` FROM validation_requests
		WHERE merchant_id = $1 AND result = 'pending' AND expires_at > $2
		ORDER BY created_at DESC LIMIT 1`, merchantID, now))
}

// Decide is a single statement: concurrent callers with the same code see at most one winner.
func (r *PostgresRepository) Decide(ctx context.Context, code, agentID string, approved bool, notes string, now time.Time) (*domain.Request, error) {
	result := domain.ResultRejected
	if approved {
		result = domain.ResultApproved
	}
	var notesArg *string
	if notes != "" {
		notesArg = &notes
	}
	return scanRequest(r.db.QueryRow(ctx, `
		UPDATE validation_requests
		SET result = $2, validator_id = $3, notes = $4, validated_at = $5
		WHERE id = (
			SELECT id FROM validation_requests
			WHERE code = $1 AND result = 'pending' AND expires_at > $5
			ORDER BY created_at DESC LIMIT 1
		) AND result = 'pending' AND expires_at > $5
		RETURNING `+requestColumns, code, string(result), agentID, notesArg, now))
}

func (r *PostgresRepository) ExpireDue(ctx context.Context, merchantID string, now time.Time) ([]*domain.Request, error) {
	rows, err := r.db.Query(ctx, `
		UPDATE validation_requests SET result = 'expired', validated_at = $1
		WHERE result = 'pending' AND expires_at <= $1 AND ($2 = '' OR merchant_id = $2)
		RETURNING `+requestColumns, now, merchantID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []*domain.Request
	for rows.Next() {
		req, err := scanRequest(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, req)
	}
	return out, rows.Err()
}

func scanRequest(row pgx.Row) (*domain.Request, error) {
	var (
		req    domain.Request
		typ    string
		result string
	)
	err := row.Scan(&req.ID, &req.Code, &req.MerchantID, &typ, &result, &req.Reason, &req.DecisionLogID,
		&req.ValidatorID, &req.Notes, &req.ExpiresAt, &req.ValidatedAt, &req.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	req.Type = domain.Type(typ)
	req.Result = domain.Result(result)
	return &req, nil
}
