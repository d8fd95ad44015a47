package repository_test

import (
	"context"
	"testing"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/pashagolub/pgxmock/v3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"merchant-voice-auth/internal/audit/domain"
	"merchant-voice-auth/internal/audit/repository"
)

var decisionCols = []string{"id", "merchant_id", "submitted_phone", "device_fingerprint", "latitude", "longitude",
	"trust_score", "decision", "reason_codes", "outcome", "hour_bucket", "created_at", "resolved_at"}

func TestPostgresAppend(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	now := time.Now().UTC()
	e := &domain.DecisionLogEntry{
		ID: "d-1", SubmittedPhone: "+22599999999", DeviceFingerprint: "fp",
		TrustScore: 0, Decision: domain.DecisionRegister, HourBucket: 10, CreatedAt: now,
	}
	mock.ExpectExec("INSERT INTO decision_logs").
		WithArgs("d-1", (*string)(nil), "+22599999999", "fp", (*float64)(nil), (*float64)(nil),
			0, "REGISTER", []string{}, "pending", 10, now).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))

	require.NoError(t, repository.NewPostgresRepository(mock).Append(context.Background(), e))
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresResolve(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()
	r := repository.NewPostgresRepository(mock)
	ctx := context.Background()
	at := time.Now().UTC()

	mock.ExpectExec("UPDATE decision_logs").
		WithArgs("d-1", "failed", at, "WRONG_ANSWER").
		WillReturnResult(pgxmock.NewResult("UPDATE", 1))
	ok, err := r.Resolve(ctx, "d-1", domain.OutcomeFailed, domain.ReasonWrongAnswer, at)
	require.NoError(t, err)
	assert.True(t, ok)

	mock.ExpectExec("UPDATE decision_logs").
		WithArgs("d-1", "success", at, "").
		WillReturnResult(pgxmock.NewResult("UPDATE", 0))
	ok, err = r.Resolve(ctx, "d-1", domain.OutcomeSuccess, "", at)
	require.NoError(t, err)
	assert.False(t, ok, "already resolved entry must not be updated")

	require.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresLatestPending(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()
	r := repository.NewPostgresRepository(mock)
	ctx := context.Background()
	now := time.Now().UTC()

	mock.ExpectQuery("SELECT id").
		WithArgs("m-1", "fp").
		WillReturnRows(pgxmock.NewRows(decisionCols).AddRow(
			"d-1", "m-1", "+22507010001", "fp", (*float64)(nil), (*float64)(nil),
			55, "CHALLENGE", []string{"NEW_DEVICE"}, "pending", 9, now, (*time.Time)(nil)))

	e, err := r.LatestPending(ctx, "m-1", "fp")
	require.NoError(t, err)
	require.NotNil(t, e)
	assert.Equal(t, domain.DecisionChallenge, e.Decision)
	assert.Equal(t, domain.OutcomePending, e.Outcome)
	assert.True(t, e.HasReason(domain.ReasonNewDevice))

	mock.ExpectQuery("SELECT id").
		WithArgs("m-1", "fp-2").
		WillReturnError(pgx.ErrNoRows)
	e, err = r.LatestPending(ctx, "m-1", "fp-2")
	require.NoError(t, err)
	assert.Nil(t, e)

	require.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresCountFailuresSince(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()
	since := time.Now().Add(-30 * 24 * time.Hour)

	mock.ExpectQuery("SELECT count").
		WithArgs("m-1", since).
		WillReturnRows(pgxmock.NewRows([]string{"count"}).AddRow(3))

	n, err := repository.NewPostgresRepository(mock).CountFailuresSince(context.Background(), "m-1", since)
	require.NoError(t, err)
	assert.Equal(t, 3, n)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresAppendAgentAction(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()
	now := time.Now().UTC()

	mock.ExpectExec("INSERT INTO agent_actions").
		WithArgs("a-1", "agent-1", "vr-1", "approve", (*string)(nil), now).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))

	err = repository.NewPostgresRepository(mock).AppendAgentAction(context.Background(), &domain.AgentAction{
		ID: "a-1", AgentID: "agent-1", ValidationRequestID: "vr-1", Action: domain.ActionApprove, CreatedAt: now,
	})
	require.NoError(t, err)
	require.NoError(t, mock.ExpectationsWereMet())
}
