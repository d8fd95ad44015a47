package repository_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/pashagolub/pgxmock/v3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"merchant-voice-auth/internal/merchant/repository"
)

func TestGetByPhone(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	r := repository.NewPostgresRepository(mock)
	ctx := context.Background()
	columns := []string{"id", "display_name", "phone", "persona", "preferred_language", "location_id", "created_at"}

	t.Run("found", func(t *testing.T) {
		mock.ExpectQuery("SELECT id, display_name, phone").
			WithArgs("+22507010001").
			WillReturnRows(pgxmock.NewRows(columns).
				AddRow("m-1", "Awa Traoré", "+22507010001", "awa", "fr", "loc-1", time.Now()))

		m, err := r.GetByPhone(ctx, "+22507010001")
		require.NoError(t, err)
		require.NotNil(t, m)
		assert.Equal(t, "m-1", m.ID)
		assert.Equal(t, "loc-1", m.LocationID)
	})

	t.Run("not found", func(t *testing.T) {
		mock.ExpectQuery("SELECT id, display_name, phone").
			WithArgs("+22500000000").
			WillReturnError(pgx.ErrNoRows)

		m, err := r.GetByPhone(ctx, "+22500000000")
		require.NoError(t, err)
		assert.Nil(t, m)
	})

	t.Run("database error", func(t *testing.T) {
		mock.ExpectQuery("SELECT id, display_name, phone").
			WithArgs("+22511111111").
			WillReturnError(errors.New("db down"))

		_, err := r.GetByPhone(ctx, "+22511111111")
		assert.Error(t, err)
	})

	require.NoError(t, mock.ExpectationsWereMet())
}

func TestGetLocation(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	r := repository.NewPostgresRepository(mock)
	lat, lng := 5.3364, -4.0267
	mock.ExpectQuery("SELECT id, name, latitude, longitude FROM locations").
		WithArgs("loc-1").
		WillReturnRows(pgxmock.NewRows([]string{"id", "name", "latitude", "longitude"}).
			AddRow("loc-1", "Marché d'Adjamé", &lat, &lng))

	l, err := r.GetLocation(context.Background(), "loc-1")
	require.NoError(t, err)
	require.NotNil(t, l)
	assert.True(t, l.HasCoordinates())
	assert.InDelta(t, 5.3364, *l.Latitude, 1e-9)
	require.NoError(t, mock.ExpectationsWereMet())
}
