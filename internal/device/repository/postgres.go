package repository

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"

	"merchant-voice-auth/internal/db"
	"merchant-voice-auth/internal/device/domain"
)

const trustColumns = `merchant_id, fingerprint, first_seen, last_seen, revoked, revoked_at`

type PostgresRepository struct {
	db db.DBTX
}

// NewPostgresRepository returns a device trust repository backed by the given pool.
func NewPostgresRepository(conn db.DBTX) *PostgresRepository {
	return &PostgresRepository{db: conn}
}

// Get returns the trust record, or nil if not found.
// It returns an error only for database failures, not for missing rows.
func (r *PostgresRepository) Get(ctx context.Context, merchantID, fingerprint string) (*domain.TrustRecord, error) {
	row := r.db.QueryRow(ctx, `SELECT `+trustColumns+` FROM device_trust WHERE merchant_id = $1 AND fingerprint = $2`,
		merchantID, fingerprint)
	d, err := scanTrust(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	return d, err
}

// Upsert inserts the record or refreshes last_seen on conflict.
func (r *PostgresRepository) Upsert(ctx context.Context, merchantID, fingerprint string, at time.Time) (*domain.TrustRecord, error) {
	row := r.db.QueryRow(ctx, `
		INSERT INTO device_trust (merchant_id, fingerprint, first_seen, last_seen, revoked)
		VALUES ($1, $2, $3, $3, false)
		ON CONFLICT (merchant_id, fingerprint)
		DO UPDATE SET last_seen = EXCLUDED.last_seen
		RETURNING `+trustColumns, merchantID, fingerprint, at)
	return scanTrust(row)
}

// Revoke sets revoked and revoked_at for the record.
func (r *PostgresRepository) Revoke(ctx context.Context, merchantID, fingerprint string, at time.Time) error {
	_, err := r.db.Exec(ctx, `
		UPDATE device_trust SET revoked = true, revoked_at = $3
		WHERE merchant_id = $1 AND fingerprint = $2 AND NOT revoked`, merchantID, fingerprint, at)
	return err
}

// ListByMerchant returns all records of the merchant, newest activity first.
func (r *PostgresRepository) ListByMerchant(ctx context.Context, merchantID string) ([]*domain.TrustRecord, error) {
	rows, err := r.db.Query(ctx, `SELECT `+trustColumns+` FROM device_trust WHERE merchant_id = $1 ORDER BY last_seen DESC`, merchantID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []*domain.TrustRecord
	for rows.Next() {
		d, err := scanTrust(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, d)
	}
	return out, rows.Err()
}

func scanTrust(row pgx.Row) (*domain.TrustRecord, error) {
	var d domain.TrustRecord
	if err := row.Scan(&d.MerchantID, &d.Fingerprint, &d.FirstSeen, &d.LastSeen, &d.Revoked, &d.RevokedAt); err != nil {
		return nil, err
	}
	return &d, nil
}
