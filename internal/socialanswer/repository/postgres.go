package repository

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"

	"merchant-voice-auth/internal/db"
	"merchant-voice-auth/internal/socialanswer/domain"
)

type PostgresRepository struct {
	db db.DBTX
}

// NewPostgresRepository returns a social answer repository backed by the given pool.
func NewPostgresRepository(conn db.DBTX) *PostgresRepository {
	return &PostgresRepository{db: conn}
}

// Get returns the record, or nil if not found.
func (r *PostgresRepository) Get(ctx context.Context, merchantID, challengeKey string) (*domain.Record, error) {
	var rec domain.Record
	err := r.db.QueryRow(ctx, `
		SELECT merchant_id, challenge_key, salt, answer_hash, COALESCE(legacy_answer, '')
		FROM social_answers WHERE merchant_id = $1 AND challenge_key = $2`, merchantID, challengeKey).
		Scan(&rec.MerchantID, &rec.ChallengeKey, &rec.Salt, &rec.AnswerHash, &rec.LegacyAnswer)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	return &rec, nil
}

func (r *PostgresRepository) ListKeys(ctx context.Context, merchantID string) ([]string, error) {
	rows, err := r.db.Query(ctx, `SELECT challenge_key FROM social_answers WHERE merchant_id = $1 ORDER BY challenge_key`, merchantID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var keys []string
	for rows.Next() {
		var k string
		if err := rows.Scan(&k); err != nil {
			return nil, err
		}
		keys = append(keys, k)
	}
	return keys, rows.Err()
}
