package repository

import (
	"context"
	"errors"
	"fmt"

	"account_service/internal/model"

	"github.com/jackc/pgx/v5"
)

// PasswordResetRepository persists single-use password reset requests
type PasswordResetRepository interface {
	Create(ctx context.Context, reset *model.PasswordReset) error
	Consume(ctx context.Context, tokenHash string) (int, bool, error)
}

type passwordResetRepository struct {
	db DB
}

// NewPasswordResetRepository creates a new PasswordResetRepository
func NewPasswordResetRepository(db DB) PasswordResetRepository {
	return &passwordResetRepository{db: db}
}

// Create stores a reset request keyed by the token's hash
func (r *passwordResetRepository) Create(ctx context.Context, reset *model.PasswordReset) error {
	sql := `INSERT INTO password_resets (token_hash, user_id, expires_at) VALUES ($1, $2, $3)`
	if _, err := r.db.Exec(ctx, sql, reset.TokenHash, reset.UserID, reset.ExpiresAt); err != nil {
		return fmt.Errorf("failed to create password reset: %w", err)
	}
	return nil
}

// Consume deletes an unexpired reset row and returns its user id. The single
// DELETE ... RETURNING makes consumption atomic: a token presented twice
// matches no row the second time, whichever request got there first.
func (r *passwordResetRepository) Consume(ctx context.Context, tokenHash string) (int, bool, error) {
	sql := `DELETE FROM password_resets WHERE token_hash = $1 AND expires_at > NOW() RETURNING user_id`
	var userID int
	err := r.db.QueryRow(ctx, sql, tokenHash).Scan(&userID)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return 0, false, nil // Absent, expired, or already consumed
		}
		return 0, false, fmt.Errorf("failed to consume password reset: %w", err)
	}
	return userID, true, nil
}
