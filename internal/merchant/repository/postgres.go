package repository

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"

	"merchant-voice-auth/internal/db"
	"merchant-voice-auth/internal/merchant/domain"
)

const merchantColumns = `id, display_name, phone, persona, preferred_language, COALESCE(location_id, ''), created_at`

type PostgresRepository struct {
	db db.DBTX
}

// NewPostgresRepository returns a merchant repository backed by the given pool.
func NewPostgresRepository(conn db.DBTX) *PostgresRepository {
	return &PostgresRepository{db: conn}
}

// GetByID returns the merchant for id, or nil if not found.
// It returns an error only for database failures, not for missing rows.
func (r *PostgresRepository) GetByID(ctx context.Context, id string) (*domain.Merchant, error) {
	row := r.db.QueryRow(ctx, `SELECT `+merchantColumns+` FROM merchants WHERE id = $1`, id)
	return scanMerchant(row)
}

// GetByPhone returns the merchant whose canonical phone equals phone, or nil if not found.
func (r *PostgresRepository) GetByPhone(ctx context.Context, phone string) (*domain.Merchant, error) {
	row := r.db.QueryRow(ctx, `SELECT `+merchantColumns+` FROM merchants WHERE phone = $1 LIMIT 1`, phone)
	return scanMerchant(row)
}

// GetLocation returns the location for id, or nil if not found.
func (r *PostgresRepository) GetLocation(ctx context.Context, id string) (*domain.Location, error) {
	var l domain.Location
	err := r.db.QueryRow(ctx, `SELECT id, name, latitude, longitude FROM locations WHERE id = $1`, id).
		Scan(&l.ID, &l.Name, &l.Latitude, &l.Longitude)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	return &l, nil
}

func scanMerchant(row pgx.Row) (*domain.Merchant, error) {
	var m domain.Merchant
	err := row.Scan(&m.ID, &m.DisplayName, &m.Phone, &m.Persona, &m.PreferredLanguage, &m.LocationID, &m.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	return &m, nil
}
