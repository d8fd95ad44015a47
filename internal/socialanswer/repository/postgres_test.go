package repository_test

import (
	"context"
	"testing"

	"github.com/jackc/pgx/v5"
	"github.com/pashagolub/pgxmock/v3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"merchant-voice-auth/internal/socialanswer/repository"
)

func TestPostgresGet(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()
	r := repository.NewPostgresRepository(mock)
	ctx := context.Background()

	mock.ExpectQuery("SELECT merchant_id, challenge_key").
		WithArgs("m-1", "mother_name").
		WillReturnRows(pgxmock.NewRows([]string{"merchant_id", "challenge_key", "salt", "answer_hash", "legacy_answer"}).
			AddRow("m-1", "mother_name", "s4lt", "abc123", ""))
	rec, err := r.Get(ctx, "m-1", "mother_name")
	require.NoError(t, err)
	require.NotNil(t, rec)
	assert.Equal(t, "s4lt", rec.Salt)
	assert.Empty(t, rec.LegacyAnswer)

	mock.ExpectQuery("SELECT merchant_id, challenge_key").
		WithArgs("m-1", "first_market").
		WillReturnError(pgx.ErrNoRows)
	rec, err = r.Get(ctx, "m-1", "first_market")
	require.NoError(t, err)
	assert.Nil(t, rec)

	require.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresListKeys(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	mock.ExpectQuery("SELECT challenge_key FROM social_answers").
		WithArgs("m-1").
		WillReturnRows(pgxmock.NewRows([]string{"challenge_key"}).AddRow("first_market").AddRow("mother_name"))

	keys, err := repository.NewPostgresRepository(mock).ListKeys(context.Background(), "m-1")
	require.NoError(t, err)
	assert.Equal(t, []string{"first_market", "mother_name"}, keys)
	require.NoError(t, mock.ExpectationsWereMet())
}
