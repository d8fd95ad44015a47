package repository

import (
	"context"

	"merchant-voice-auth/internal/agent/domain"
	"merchant-voice-auth/internal/db"
)

type PostgresRepository struct {
	db db.DBTX
}

// NewPostgresRepository returns an agent repository backed by the given pool.
func NewPostgresRepository(conn db.DBTX) *PostgresRepository {
	return &PostgresRepository{db: conn}
}

// ListActive returns all agents that can currently receive escalations.
func (r *PostgresRepository) ListActive(ctx context.Context) ([]*domain.Agent, error) {
	rows, err := r.db.Query(ctx, `SELECT id, name, phone, active FROM agents WHERE active ORDER BY id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []*domain.Agent
	for rows.Next() {
		var a domain.Agent
		if err := rows.Scan(&a.ID, &a.Name, &a.Phone, &a.Active); err != nil {
			return nil, err
		}
		out = append(out, &a)
	}
	return out, rows.Err()
}
