package service

import (
	"context"
	"errors"
	"fmt"

	"account_service/internal/model"
	"account_service/internal/repository"
	"account_service/internal/session"
)

const searchResultLimit = 10

// UserService provides profile and account management
type UserService interface {
	GetProfile(ctx context.Context, userID int) (*model.User, error)
	UpdateProfile(ctx context.Context, userID int, req model.UpdateUserRequest) (*model.User, error)
	DeleteAccount(ctx context.Context, userID int) error
	ListUsers(ctx context.Context, page, limit int) (*model.UserListPage, error)
	SearchUsers(ctx context.Context, query string) ([]model.UserSummary, error)
}

type userService struct {
	userRepo repository.UserRepository
	sessions session.Store
}

// NewUserService creates a new UserService
func NewUserService(userRepo repository.UserRepository, sessions session.Store) UserService {
	return &userService{userRepo: userRepo, sessions: sessions}
}

// GetProfile returns the acting user's record
func (s *userService) GetProfile(ctx context.Context, userID int) (*model.User, error) {
	user, err := s.userRepo.FindByID(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to load profile: %w", err)
	}
	if user == nil {
		return nil, ErrUserNotFound
	}
	return user, nil
}

// UpdateProfile applies a partial update to the acting user's record
func (s *userService) UpdateProfile(ctx context.Context, userID int, req model.UpdateUserRequest) (*model.User, error) {
	user, err := s.userRepo.UpdateProfile(ctx, userID, req)
	if err != nil {
		if errors.Is(err, repository.ErrDuplicateEmail) {
			return nil, ErrUserAlreadyExists
		}
		return nil, fmt.Errorf("failed to update profile: %w", err)
	}
	if user == nil {
		return nil, ErrUserNotFound
	}
	return user, nil
}

// DeleteAccount removes the user and revokes every session they hold.
// Payments and pending reset requests cascade in the store.
func (s *userService) DeleteAccount(ctx context.Context, userID int) error {
	if err := s.userRepo.Delete(ctx, userID); err != nil {
		return fmt.Errorf("failed to delete account: %w", err)
	}
	if err := s.sessions.RevokeAll(ctx, userID); err != nil {
		return fmt.Errorf("failed to revoke sessions after deletion: %w", err)
	}
	return nil
}

// ListUsers returns a page of users for admins
func (s *userService) ListUsers(ctx context.Context, page, limit int) (*model.UserListPage, error) {
	if page < 1 {
		page = 1
	}
	if limit < 1 || limit > 100 {
		limit = 20
	}
	users, total, err := s.userRepo.List(ctx, page, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list users: %w", err)
	}
	return &model.UserListPage{Users: users, Total: total, Page: page, Limit: limit}, nil
}

// SearchUsers finds users by name or email fragment
func (s *userService) SearchUsers(ctx context.Context, query string) ([]model.UserSummary, error) {
	results, err := s.userRepo.Search(ctx, query, searchResultLimit)
	if err != nil {
		return nil, fmt.Errorf("failed to search users: %w", err)
	}
	return results, nil
}
