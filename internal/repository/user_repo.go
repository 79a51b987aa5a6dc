package repository

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"account_service/internal/model"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

// pgUniqueViolation is the Postgres error code for unique_violation
const pgUniqueViolation = "23505"

// ErrDuplicateEmail is returned when the email uniqueness constraint fires.
// Duplicates are detected by the constraint itself, not by a read-then-write
// check, so two concurrent registrations cannot both succeed.
var ErrDuplicateEmail = errors.New("email already in use")

// DB is the subset of pgxpool.Pool the repositories use, so tests can
// substitute a pgxmock pool.
type DB interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

var _ DB = (*pgxpool.Pool)(nil)

// UserRepository defines operations for user data
type UserRepository interface {
	Create(ctx context.Context, user *model.User) error
	FindByEmail(ctx context.Context, email string) (*model.User, error)
	FindByID(ctx context.Context, id int) (*model.User, error)
	UpdateProfile(ctx context.Context, id int, req model.UpdateUserRequest) (*model.User, error)
	UpdatePasswordHash(ctx context.Context, id int, hash string) error
	Delete(ctx context.Context, id int) error
	List(ctx context.Context, page, limit int) ([]model.User, int64, error)
	Search(ctx context.Context, query string, limit int) ([]model.UserSummary, error)
	ReserveBalance(ctx context.Context, id int, amount int64) (bool, error)
	CreditBalance(ctx context.Context, id int, amount int64) error
}

type userRepository struct {
	db DB
}

// NewUserRepository creates a new UserRepository
func NewUserRepository(db DB) UserRepository {
	return &userRepository{db: db}
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == pgUniqueViolation
}

// Create inserts a new user into the database
func (r *userRepository) Create(ctx context.Context, user *model.User) error {
	sql := `INSERT INTO users (email, name, password_hash, role, balance, created_at)
            VALUES ($1, $2, $3, $4, $5, $6) RETURNING id`
	err := r.db.QueryRow(ctx, sql, user.Email, user.Name, user.PasswordHash, user.Role, user.Balance, user.CreatedAt).Scan(&user.ID)
	if err != nil {
		if isUniqueViolation(err) {
			return ErrDuplicateEmail
		}
		return fmt.Errorf("failed to create user: %w", err)
	}
	return nil
}

// FindByEmail retrieves a user by their email
func (r *userRepository) FindByEmail(ctx context.Context, email string) (*model.User, error) {
	user := &model.User{}
	sql := `SELECT id, email, name, password_hash, role, balance, created_at FROM users WHERE email = $1`
	err := r.db.QueryRow(ctx, sql, email).Scan(&user.ID, &user.Email, &user.Name, &user.PasswordHash, &user.Role, &user.Balance, &user.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil // User not found is not an error for this method's contract, service layer handles it
		}
		return nil, fmt.Errorf("failed to find user by email: %w", err)
	}
	return user, nil
}

// FindByID retrieves a user by their ID
func (r *userRepository) FindByID(ctx context.Context, id int) (*model.User, error) {
	user := &model.User{}
	sql := `SELECT id, email, name, password_hash, role, balance, created_at FROM users WHERE id = $1`
	err := r.db.QueryRow(ctx, sql, id).Scan(&user.ID, &user.Email, &user.Name, &user.PasswordHash, &user.Role, &user.Balance, &user.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil // User not found
		}
		return nil, fmt.Errorf("failed to find user by ID: %w", err)
	}
	return user, nil
}

// UpdateProfile applies a partial update and returns the updated user
func (r *userRepository) UpdateProfile(ctx context.Context, id int, req model.UpdateUserRequest) (*model.User, error) {
	var setClauses []string
	args := []interface{}{}
	argCount := 1

	if req.Name != nil {
		setClauses = append(setClauses, fmt.Sprintf("name = $%d", argCount))
		args = append(args, *req.Name)
		argCount++
	}
	if req.Email != nil {
		setClauses = append(setClauses, fmt.Sprintf("email = $%d", argCount))
		args = append(args, *req.Email)
		argCount++
	}
	if len(setClauses) == 0 {
		return r.FindByID(ctx, id)
	}

	sql := fmt.Sprintf(`UPDATE users SET %s WHERE id = $%d
            RETURNING id, email, name, password_hash, role, balance, created_at`,
		strings.Join(setClauses, ", "), argCount)
	args = append(args, id)

	user := &model.User{}
	err := r.db.QueryRow(ctx, sql, args...).Scan(&user.ID, &user.Email, &user.Name, &user.PasswordHash, &user.Role, &user.Balance, &user.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil // User not found
		}
		if isUniqueViolation(err) {
			return nil, ErrDuplicateEmail
		}
		return nil, fmt.Errorf("failed to update user: %w", err)
	}
	return user, nil
}

// UpdatePasswordHash replaces the stored secret hash
func (r *userRepository) UpdatePasswordHash(ctx context.Context, id int, hash string) error {
	sql := `UPDATE users SET password_hash = $1 WHERE id = $2`
	cmdTag, err := r.db.Exec(ctx, sql, hash, id)
	if err != nil {
		return fmt.Errorf("failed to update password hash: %w", err)
	}
	if cmdTag.RowsAffected() == 0 {
		return fmt.Errorf("user not found for password update")
	}
	return nil
}

// Delete removes a user; payments and reset rows cascade via FK
func (r *userRepository) Delete(ctx context.Context, id int) error {
	sql := `DELETE FROM users WHERE id = $1`
	cmdTag, err := r.db.Exec(ctx, sql, id)
	if err != nil {
		return fmt.Errorf("failed to delete user: %w", err)
	}
	if cmdTag.RowsAffected() == 0 {
		return fmt.Errorf("user not found for deletion")
	}
	return nil
}

// List returns a page of users plus the total count
func (r *userRepository) List(ctx context.Context, page, limit int) ([]model.User, int64, error) {
	offset := (page - 1) * limit
	sql := `SELECT id, email, name, password_hash, role, balance, created_at FROM users
            ORDER BY created_at DESC LIMIT $1 OFFSET $2`
	rows, err := r.db.Query(ctx, sql, limit, offset)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to query users: %w", err)
	}
	defer rows.Close()

	var users []model.User
	for rows.Next() {
		var u model.User
		if err := rows.Scan(&u.ID, &u.Email, &u.Name, &u.PasswordHash, &u.Role, &u.Balance, &u.CreatedAt); err != nil {
			return nil, 0, fmt.Errorf("failed to scan user row: %w", err)
		}
		users = append(users, u)
	}
	if err = rows.Err(); err != nil {
		return nil, 0, fmt.Errorf("error iterating user rows: %w", err)
	}

	var total int64
	if err := r.db.QueryRow(ctx, `SELECT COUNT(*) FROM users`).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("failed to count users: %w", err)
	}
	return users, total, nil
}

// Search finds users by name or email, case-insensitive. The query string is
// always bound as a parameter, never spliced into the SQL.
func (r *userRepository) Search(ctx context.Context, query string, limit int) ([]model.UserSummary, error) {
	sql := `SELECT id, name, email FROM users
            WHERE name ILIKE '%' || $1 || '%' OR email ILIKE '%' || $1 || '%'
            ORDER BY name LIMIT $2`
	rows, err := r.db.Query(ctx, sql, query, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to search users: %w", err)
	}
	defer rows.Close()

	var results []model.UserSummary
	for rows.Next() {
		var u model.UserSummary
		if err := rows.Scan(&u.ID, &u.Name, &u.Email); err != nil {
			return nil, fmt.Errorf("failed to scan user summary row: %w", err)
		}
		results = append(results, u)
	}
	if err = rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating user summary rows: %w", err)
	}
	return results, nil
}

// ReserveBalance atomically debits the user's balance if funds suffice.
// Returns false when the conditional update matched no row (insufficient
// funds or missing user). The single-statement compare-and-decrement is what
// keeps concurrent charges from losing updates.
func (r *userRepository) ReserveBalance(ctx context.Context, id int, amount int64) (bool, error) {
	sql := `UPDATE users SET balance = balance - $1 WHERE id = $2 AND balance >= $1`
	cmdTag, err := r.db.Exec(ctx, sql, amount, id)
	if err != nil {
		return false, fmt.Errorf("failed to reserve balance: %w", err)
	}
	return cmdTag.RowsAffected() == 1, nil
}

// CreditBalance atomically credits the user's balance
func (r *userRepository) CreditBalance(ctx context.Context, id int, amount int64) error {
	sql := `UPDATE users SET balance = balance + $1 WHERE id = $2`
	cmdTag, err := r.db.Exec(ctx, sql, amount, id)
	if err != nil {
		return fmt.Errorf("failed to credit balance: %w", err)
	}
	if cmdTag.RowsAffected() == 0 {
		return fmt.Errorf("user not found for balance credit")
	}
	return nil
}
