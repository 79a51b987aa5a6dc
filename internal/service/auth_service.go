package service

import (
	"context"
	"errors"
	"fmt"
	"os"
	"time"

	"account_service/internal/mailer"
	"account_service/internal/metrics"
	"account_service/internal/model"
	"account_service/internal/repository"
	"account_service/internal/session"
	"account_service/internal/utils"

	"github.com/rs/zerolog/log"
)

var (
	ErrUserAlreadyExists  = errors.New("user with this email already exists")
	ErrUserNotFound       = errors.New("user not found")
	ErrInvalidCredentials = errors.New("invalid email or password")
	ErrInvalidResetToken  = errors.New("invalid or expired reset token")
)

const resetTokenTTL = time.Hour

// AuthService provides authentication related services
type AuthService interface {
	Register(ctx context.Context, req model.CreateUserRequest) (*model.User, error)
	Login(ctx context.Context, email, password string) (*model.User, string, error)
	Logout(ctx context.Context, token string) error
	RequestPasswordReset(ctx context.Context, email string) error
	ResetPassword(ctx context.Context, token, newPassword string) error
}

type authService struct {
	userRepo   repository.UserRepository
	resetRepo  repository.PasswordResetRepository
	sessions   session.Store
	mail       mailer.Mailer
	sessionTTL time.Duration
	dummyHash  string
}

// NewAuthService creates a new AuthService
func NewAuthService(userRepo repository.UserRepository, resetRepo repository.PasswordResetRepository,
	sessions session.Store, mail mailer.Mailer, sessionTTL time.Duration) (AuthService, error) {
	// The dummy hash gives the unknown-identity login path the same bcrypt
	// cost as the known-identity path, so response latency does not reveal
	// whether an email is registered.
	dummyHash, err := utils.HashPassword("account-service-dummy-credential")
	if err != nil {
		return nil, fmt.Errorf("failed to precompute dummy hash: %w", err)
	}
	return &authService{
		userRepo:   userRepo,
		resetRepo:  resetRepo,
		sessions:   sessions,
		mail:       mail,
		sessionTTL: sessionTTL,
		dummyHash:  dummyHash,
	}, nil
}

// Register creates a new user account. Email uniqueness is enforced by the
// store's constraint, not a prior read, so concurrent registrations with the
// same email produce exactly one account.
func (s *authService) Register(ctx context.Context, req model.CreateUserRequest) (*model.User, error) {
	hashedPassword, err := utils.HashPassword(req.Password)
	if err != nil {
		return nil, fmt.Errorf("failed to hash password: %w", err)
	}

	userRole := req.Role
	if userRole == "" {
		userRole = model.RoleUser // Default role
	}

	// Check for initial admin setup via environment variable
	initialAdminEmail := os.Getenv("INITIAL_ADMIN_EMAIL")
	if initialAdminEmail != "" && req.Email == initialAdminEmail {
		userRole = model.RoleAdmin
		log.Info().Str("email", req.Email).Msg("registering user as admin via INITIAL_ADMIN_EMAIL")
	}

	user := &model.User{
		Email:        req.Email,
		Name:         req.Name,
		PasswordHash: hashedPassword,
		Role:         userRole,
		CreatedAt:    time.Now(),
	}

	if err := s.userRepo.Create(ctx, user); err != nil {
		if errors.Is(err, repository.ErrDuplicateEmail) {
			return nil, ErrUserAlreadyExists
		}
		return nil, fmt.Errorf("failed to create user in repository: %w", err)
	}

	return user, nil
}

// Login authenticates a user and issues a session token
func (s *authService) Login(ctx context.Context, email, password string) (*model.User, string, error) {
	user, err := s.userRepo.FindByEmail(ctx, email)
	if err != nil {
		return nil, "", fmt.Errorf("error finding user by email: %w", err)
	}
	if user == nil {
		// Burn the same bcrypt cost as a real comparison before failing
		utils.CheckPasswordHash(password, s.dummyHash)
		metrics.LoginsTotal.WithLabelValues("failed").Inc()
		return nil, "", ErrInvalidCredentials
	}

	if !utils.CheckPasswordHash(password, user.PasswordHash) {
		metrics.LoginsTotal.WithLabelValues("failed").Inc()
		return nil, "", ErrInvalidCredentials
	}

	token, err := s.sessions.Issue(ctx, user.ID, user.Role, s.sessionTTL)
	if err != nil {
		return nil, "", fmt.Errorf("failed to issue session: %w", err)
	}

	metrics.LoginsTotal.WithLabelValues("succeeded").Inc()
	return user, token, nil
}

// Logout revokes the presented session token
func (s *authService) Logout(ctx context.Context, token string) error {
	if err := s.sessions.Revoke(ctx, token); err != nil {
		return fmt.Errorf("failed to revoke session: %w", err)
	}
	return nil
}

// RequestPasswordReset creates a reset request and triggers delivery when
// the email exists. It returns nil either way so callers cannot enumerate
// accounts through this endpoint.
func (s *authService) RequestPasswordReset(ctx context.Context, email string) error {
	user, err := s.userRepo.FindByEmail(ctx, email)
	if err != nil {
		return fmt.Errorf("error finding user by email: %w", err)
	}
	if user == nil {
		return nil // Same outcome as success; no enumeration
	}

	token, err := utils.GenerateToken()
	if err != nil {
		return fmt.Errorf("failed to generate reset token: %w", err)
	}

	reset := &model.PasswordReset{
		TokenHash: utils.HashToken(token),
		UserID:    user.ID,
		ExpiresAt: time.Now().Add(resetTokenTTL),
	}
	if err := s.resetRepo.Create(ctx, reset); err != nil {
		return fmt.Errorf("failed to store reset request: %w", err)
	}

	if err := s.mail.SendPasswordReset(ctx, user.Email, token); err != nil {
		// Delivery is best-effort; the request itself already succeeded
		log.Error().Err(err).Int("user_id", user.ID).Msg("failed to send password reset email")
	}
	return nil
}

// ResetPassword consumes a reset token, replaces the secret hash, and
// revokes every live session of the user. Consumption is atomic in the
// store, so a token presented twice fails the second time.
func (s *authService) ResetPassword(ctx context.Context, token, newPassword string) error {
	userID, found, err := s.resetRepo.Consume(ctx, utils.HashToken(token))
	if err != nil {
		return fmt.Errorf("failed to consume reset token: %w", err)
	}
	if !found {
		return ErrInvalidResetToken
	}

	hashedPassword, err := utils.HashPassword(newPassword)
	if err != nil {
		return fmt.Errorf("failed to hash new password: %w", err)
	}
	if err := s.userRepo.UpdatePasswordHash(ctx, userID, hashedPassword); err != nil {
		return fmt.Errorf("failed to update password hash: %w", err)
	}

	// The secret changed; nothing issued under the old one stays valid
	if err := s.sessions.RevokeAll(ctx, userID); err != nil {
		return fmt.Errorf("failed to revoke sessions after reset: %w", err)
	}
	return nil
}
