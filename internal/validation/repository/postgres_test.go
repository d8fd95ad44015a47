package repository_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/pashagolub/pgxmock/v3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"merchant-voice-auth/internal/validation/domain"
	"merchant-voice-auth/internal/validation/repository"
)

var requestCols = []string{"id", "code", "merchant_id", "validation_type", "result", "reason", "decision_log_id",
	"validator_id", "notes", "expires_at", "validated_at", "created_at"}

func TestPostgresCreate_PendingConflict(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	now := time.Now().UTC()
	req := &domain.Request{
		ID: "vr-2", Code: "123456", MerchantID: "m-1", Type: domain.TypeEscalation,
		Result: domain.ResultPending, ExpiresAt: now.Add(repository.DefaultTTL), CreatedAt: now,
	}
	mock.ExpectExec("INSERT INTO validation_requests").
		WithArgs("vr-2", "123456", "m-1", "escalation", "pending", "", (*string)(nil), req.ExpiresAt, now).
		WillReturnError(&pgconn.PgError{Code: "23505"})

	err = repository.NewPostgresRepository(mock).Create(context.Background(), req)
	assert.True(t, errors.Is(err, domain.ErrPendingExists), "err = %v", err)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresDecide(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()
	r := repository.NewPostgresRepository(mock)
	ctx := context.Background()
	now := time.Now().UTC()

	mock.ExpectQuery("UPDATE validation_requests").
		WithArgs("482913", "approved", "agent-1", (*string)(nil), now).
		WillReturnRows(pgxmock.NewRows(requestCols).AddRow(
			"vr-1", "482913", "m-1", "escalation", "approved", "score 35", "d-1",
			"agent-1", "", now.Add(20*time.Minute), &now, now.Add(-10*time.Minute)))

	got, err := r.Decide(ctx, "482913", "agent-1", true, "", now)
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, domain.ResultApproved, got.Result)
	assert.Equal(t, "d-1", got.DecisionLogID)

	mock.ExpectQuery("UPDATE validation_requests").
		WithArgs("482913", "rejected", "agent-2", (*string)(nil), now).
		WillReturnError(pgx.ErrNoRows)
	got, err = r.Decide(ctx, "482913", "agent-2", false, "", now)
	require.NoError(t, err)
	assert.Nil(t, got, "second decision must find no pending row")

	require.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresExpireDue(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()
	now := time.Now().UTC()

	mock.ExpectQuery("UPDATE validation_requests SET result = 'expired'").
		WithArgs(now, "").
		WillReturnRows(pgxmock.NewRows(requestCols).AddRow(
			"vr-1", "111111", "m-1", "escalation", "expired", "", "d-1",
			"", "", now.Add(-time.Minute), &now, now.Add(-31*time.Minute)))

	out, err := repository.NewPostgresRepository(mock).ExpireDue(context.Background(), "", now)
	require.NoError(t, err)
	require.Len(t, out, 1)
	assert.Equal(t, domain.ResultExpired, out[0].Result)
	require.NoError(t, mock.ExpectationsWereMet())
}
