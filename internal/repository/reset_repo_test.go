package repository

import (
	"context"
	"testing"
	"time"

	"account_service/internal/model"

	"github.com/jackc/pgx/v5"
	"github.com/pashagolub/pgxmock/v3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newResetRepoMock(t *testing.T) (pgxmock.PgxPoolIface, PasswordResetRepository) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	t.Cleanup(mock.Close)
	return mock, NewPasswordResetRepository(mock)
}

func TestPasswordResetRepository_Create(t *testing.T) {
	mock, repo := newResetRepoMock(t)

	reset := &model.PasswordReset{
		TokenHash: "abc123",
		UserID:    1,
		ExpiresAt: time.Now().Add(time.Hour),
	}

	mock.ExpectExec("INSERT INTO password_resets").
		WithArgs(reset.TokenHash, reset.UserID, reset.ExpiresAt).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))

	err := repo.Create(context.Background(), reset)

	assert.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPasswordResetRepository_Consume(t *testing.T) {
	mock, repo := newResetRepoMock(t)

	mock.ExpectQuery("DELETE FROM password_resets").
		WithArgs("abc123").
		WillReturnRows(pgxmock.NewRows([]string{"user_id"}).AddRow(1))

	userID, found, err := repo.Consume(context.Background(), "abc123")

	assert.NoError(t, err)
	assert.True(t, found)
	assert.Equal(t, 1, userID)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPasswordResetRepository_Consume_AlreadyUsed(t *testing.T) {
	mock, repo := newResetRepoMock(t)

	// The row was deleted by the first consumption (or never existed)
	mock.ExpectQuery("DELETE FROM password_resets").
		WithArgs("abc123").
		WillReturnError(pgx.ErrNoRows)

	userID, found, err := repo.Consume(context.Background(), "abc123")

	assert.NoError(t, err)
	assert.False(t, found)
	assert.Zero(t, userID)
	assert.NoError(t, mock.ExpectationsWereMet())
}
