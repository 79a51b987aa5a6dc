package service

import (
	"context"
	"errors"
	"testing"

	"account_service/internal/model"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestUserService_GetProfile_NotFound(t *testing.T) {
	userRepo := &fakeUserRepo{
		findByIDFn: func(ctx context.Context, id int) (*model.User, error) {
			return nil, nil
		},
	}
	svc := NewUserService(userRepo, &fakeSessionStore{})

	_, err := svc.GetProfile(context.Background(), 404)

	assert.ErrorIs(t, err, ErrUserNotFound)
}

func TestUserService_DeleteAccount_RevokesAllSessions(t *testing.T) {
	deleted := false
	userRepo := &fakeUserRepo{
		deleteFn: func(ctx context.Context, id int) error {
			assert.Equal(t, 7, id)
			deleted = true
			return nil
		},
	}
	revokedUser := 0
	sessions := &fakeSessionStore{
		revokeAllFn: func(ctx context.Context, userID int) error {
			assert.True(t, deleted, "sessions are revoked after the account row is gone")
			revokedUser = userID
			return nil
		},
	}
	svc := NewUserService(userRepo, sessions)

	err := svc.DeleteAccount(context.Background(), 7)

	require.NoError(t, err)
	assert.Equal(t, 7, revokedUser, "every session of the deleted user must be revoked")
}

func TestUserService_DeleteAccount_DeleteFails(t *testing.T) {
	userRepo := &fakeUserRepo{
		deleteFn: func(ctx context.Context, id int) error {
			return errors.New("store unavailable")
		},
	}
	sessions := &fakeSessionStore{
		revokeAllFn: func(ctx context.Context, userID int) error {
			t.Fatal("sessions must not be revoked when the deletion failed")
			return nil
		},
	}
	svc := NewUserService(userRepo, sessions)

	err := svc.DeleteAccount(context.Background(), 7)

	assert.Error(t, err)
}

func TestUserService_ListUsers_ClampsPaging(t *testing.T) {
	userRepo := &fakeUserRepo{
		listFn: func(ctx context.Context, page, limit int) ([]model.User, int64, error) {
			assert.Equal(t, 1, page)
			assert.Equal(t, 20, limit)
			return nil, 0, nil
		},
	}
	svc := NewUserService(userRepo, &fakeSessionStore{})

	result, err := svc.ListUsers(context.Background(), -3, 5000)

	require.NoError(t, err)
	assert.Equal(t, 1, result.Page)
	assert.Equal(t, 20, result.Limit)
}
