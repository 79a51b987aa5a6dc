package repository

import (
	"context"
	"testing"
	"time"

	"account_service/internal/model"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/pashagolub/pgxmock/v3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newUserRepoMock(t *testing.T) (pgxmock.PgxPoolIface, UserRepository) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	t.Cleanup(mock.Close)
	return mock, NewUserRepository(mock)
}

func userColumns() []string {
	return []string{"id", "email", "name", "password_hash", "role", "balance", "created_at"}
}

func TestUserRepository_Create(t *testing.T) {
	mock, repo := newUserRepoMock(t)

	user := &model.User{
		Email:        "alice@example.com",
		Name:         "Alice",
		PasswordHash: "hash",
		Role:         model.RoleUser,
		CreatedAt:    time.Now(),
	}

	mock.ExpectQuery("INSERT INTO users").
		WithArgs(user.Email, user.Name, user.PasswordHash, user.Role, user.Balance, user.CreatedAt).
		WillReturnRows(pgxmock.NewRows([]string{"id"}).AddRow(7))

	err := repo.Create(context.Background(), user)

	assert.NoError(t, err)
	assert.Equal(t, 7, user.ID)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestUserRepository_Create_DuplicateEmail(t *testing.T) {
	mock, repo := newUserRepoMock(t)

	user := &model.User{Email: "alice@example.com", Name: "Alice", PasswordHash: "hash", Role: model.RoleUser}

	mock.ExpectQuery("INSERT INTO users").
		WithArgs(user.Email, user.Name, user.PasswordHash, user.Role, user.Balance, user.CreatedAt).
		WillReturnError(&pgconn.PgError{Code: pgUniqueViolation})

	err := repo.Create(context.Background(), user)

	assert.ErrorIs(t, err, ErrDuplicateEmail)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestUserRepository_FindByEmail_NotFound(t *testing.T) {
	mock, repo := newUserRepoMock(t)

	mock.ExpectQuery("SELECT id, email, name, password_hash, role, balance, created_at FROM users WHERE email").
		WithArgs("missing@example.com").
		WillReturnError(pgx.ErrNoRows)

	user, err := repo.FindByEmail(context.Background(), "missing@example.com")

	assert.NoError(t, err)
	assert.Nil(t, user)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestUserRepository_FindByEmail(t *testing.T) {
	mock, repo := newUserRepoMock(t)

	created := time.Now()
	mock.ExpectQuery("SELECT id, email, name, password_hash, role, balance, created_at FROM users WHERE email").
		WithArgs("alice@example.com").
		WillReturnRows(pgxmock.NewRows(userColumns()).
			AddRow(1, "alice@example.com", "Alice", "hash", model.RoleUser, int64(1000), created))

	user, err := repo.FindByEmail(context.Background(), "alice@example.com")

	require.NoError(t, err)
	require.NotNil(t, user)
	assert.Equal(t, 1, user.ID)
	assert.Equal(t, int64(1000), user.Balance)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestUserRepository_UpdateProfile_DuplicateEmail(t *testing.T) {
	mock, repo := newUserRepoMock(t)

	email := "taken@example.com"
	mock.ExpectQuery("UPDATE users SET email").
		WithArgs(email, 1).
		WillReturnError(&pgconn.PgError{Code: pgUniqueViolation})

	user, err := repo.UpdateProfile(context.Background(), 1, model.UpdateUserRequest{Email: &email})

	assert.ErrorIs(t, err, ErrDuplicateEmail)
	assert.Nil(t, user)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestUserRepository_ReserveBalance(t *testing.T) {
	mock, repo := newUserRepoMock(t)

	mock.ExpectExec("UPDATE users SET balance = balance -").
		WithArgs(int64(500), 1).
		WillReturnResult(pgxmock.NewResult("UPDATE", 1))

	reserved, err := repo.ReserveBalance(context.Background(), 1, 500)

	assert.NoError(t, err)
	assert.True(t, reserved)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestUserRepository_ReserveBalance_Insufficient(t *testing.T) {
	mock, repo := newUserRepoMock(t)

	// The conditional update matches no row when funds are short
	mock.ExpectExec("UPDATE users SET balance = balance -").
		WithArgs(int64(10_000_000), 1).
		WillReturnResult(pgxmock.NewResult("UPDATE", 0))

	reserved, err := repo.ReserveBalance(context.Background(), 1, 10_000_000)

	assert.NoError(t, err)
	assert.False(t, reserved)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestUserRepository_Delete_NotFound(t *testing.T) {
	mock, repo := newUserRepoMock(t)

	mock.ExpectExec("DELETE FROM users").
		WithArgs(42).
		WillReturnResult(pgxmock.NewResult("DELETE", 0))

	err := repo.Delete(context.Background(), 42)

	assert.Error(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}
