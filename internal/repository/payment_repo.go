package repository

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"account_service/internal/model"

	"github.com/jackc/pgx/v5"
)

// PaymentRepository defines operations for payment data
type PaymentRepository interface {
	CreateIdempotent(ctx context.Context, p *model.Payment) (bool, *model.Payment, error)
	FindByID(ctx context.Context, id string) (*model.Payment, error)
	FindByUser(ctx context.Context, userID int) ([]model.Payment, error)
	FindAll(ctx context.Context, filters model.AdminPaymentFilters) ([]model.Payment, error)
	MarkReserved(ctx context.Context, id string) (bool, error)
	MarkSucceeded(ctx context.Context, id string, gatewayChargeID string) (*model.Payment, error)
	MarkDeclined(ctx context.Context, id string) error
	MarkRefunded(ctx context.Context, id string, gatewayRefundID string) (bool, error)
	AccumulateDailyTotal(ctx context.Context, day time.Time, amount int64) error
	DailyTotals(ctx context.Context, since time.Time) ([]model.DailyTotal, error)
}

type paymentRepository struct {
	db DB
}

// NewPaymentRepository creates a new PaymentRepository
func NewPaymentRepository(db DB) PaymentRepository {
	return &paymentRepository{db: db}
}

const paymentColumns = `id, user_id, amount, currency, status, idempotency_key,
            gateway_charge_id, gateway_refund_id, refunded_at, created_at, updated_at`

func scanPayment(row pgx.Row) (*model.Payment, error) {
	p := &model.Payment{}
	err := row.Scan(
		&p.ID, &p.UserID, &p.Amount, &p.Currency, &p.Status, &p.IdempotencyKey,
		&p.GatewayChargeID, &p.GatewayRefundID, &p.RefundedAt, &p.CreatedAt, &p.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return p, nil
}

// CreateIdempotent inserts a pending payment keyed by its idempotency key.
// When the key already exists the existing row is returned instead and no
// new row is written; the uniqueness constraint carries the whole guarantee,
// so two concurrent requests with the same key produce exactly one row.
func (r *paymentRepository) CreateIdempotent(ctx context.Context, p *model.Payment) (bool, *model.Payment, error) {
	sql := `INSERT INTO payments (id, user_id, amount, currency, status, idempotency_key, created_at, updated_at)
            VALUES ($1, $2, $3, $4, $5, $6, NOW(), NOW())
            ON CONFLICT (idempotency_key) DO NOTHING
            RETURNING created_at, updated_at`
	err := r.db.QueryRow(ctx, sql, p.ID, p.UserID, p.Amount, p.Currency, p.Status, p.IdempotencyKey).Scan(&p.CreatedAt, &p.UpdatedAt)
	if err == nil {
		return true, p, nil
	}
	if !errors.Is(err, pgx.ErrNoRows) {
		return false, nil, fmt.Errorf("failed to create payment: %w", err)
	}

	// Conflict path: fetch the row the earlier request created
	existing, err := r.findByIdempotencyKey(ctx, p.IdempotencyKey)
	if err != nil {
		return false, nil, err
	}
	if existing == nil {
		return false, nil, fmt.Errorf("payment vanished after idempotency conflict")
	}
	return false, existing, nil
}

func (r *paymentRepository) findByIdempotencyKey(ctx context.Context, key string) (*model.Payment, error) {
	sql := `SELECT ` + paymentColumns + ` FROM payments WHERE idempotency_key = $1`
	p, err := scanPayment(r.db.QueryRow(ctx, sql, key))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to find payment by idempotency key: %w", err)
	}
	return p, nil
}

// FindByID retrieves a payment by its ID
func (r *paymentRepository) FindByID(ctx context.Context, id string) (*model.Payment, error) {
	sql := `SELECT ` + paymentColumns + ` FROM payments WHERE id = $1`
	p, err := scanPayment(r.db.QueryRow(ctx, sql, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil // Not found
		}
		return nil, fmt.Errorf("failed to find payment by ID: %w", err)
	}
	return p, nil
}

// FindByUser retrieves all payments belonging to a user
func (r *paymentRepository) FindByUser(ctx context.Context, userID int) ([]model.Payment, error) {
	sql := `SELECT ` + paymentColumns + ` FROM payments WHERE user_id = $1 ORDER BY created_at DESC`
	rows, err := r.db.Query(ctx, sql, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to query payments by user: %w", err)
	}
	defer rows.Close()
	return collectPayments(rows)
}

// FindAll retrieves all payments with optional filters for admin
func (r *paymentRepository) FindAll(ctx context.Context, filters model.AdminPaymentFilters) ([]model.Payment, error) {
	var queryBuilder strings.Builder
	queryBuilder.WriteString(`SELECT ` + paymentColumns + ` FROM payments`)

	args := []interface{}{}
	argCount := 1
	var conditions []string

	if filters.UserID != nil {
		conditions = append(conditions, fmt.Sprintf("user_id = $%d", argCount))
		args = append(args, *filters.UserID)
		argCount++
	}
	if filters.Status != nil && *filters.Status != "" {
		conditions = append(conditions, fmt.Sprintf("status = $%d", argCount))
		args = append(args, *filters.Status)
		argCount++
	}
	if filters.Currency != nil && *filters.Currency != "" {
		conditions = append(conditions, fmt.Sprintf("currency = $%d", argCount))
		args = append(args, *filters.Currency)
		argCount++
	}
	if filters.StartDate != nil {
		conditions = append(conditions, fmt.Sprintf("created_at >= $%d", argCount))
		args = append(args, *filters.StartDate)
		argCount++
	}
	if filters.EndDate != nil {
		conditions = append(conditions, fmt.Sprintf("created_at <= $%d", argCount))
		args = append(args, *filters.EndDate)
		argCount++
	}

	if len(conditions) > 0 {
		queryBuilder.WriteString(" WHERE " + strings.Join(conditions, " AND "))
	}
	queryBuilder.WriteString(" ORDER BY created_at DESC")

	rows, err := r.db.Query(ctx, queryBuilder.String(), args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query payments: %w", err)
	}
	defer rows.Close()
	return collectPayments(rows)
}

func collectPayments(rows pgx.Rows) ([]model.Payment, error) {
	var payments []model.Payment
	for rows.Next() {
		var p model.Payment
		if err := rows.Scan(
			&p.ID, &p.UserID, &p.Amount, &p.Currency, &p.Status, &p.IdempotencyKey,
			&p.GatewayChargeID, &p.GatewayRefundID, &p.RefundedAt, &p.CreatedAt, &p.UpdatedAt,
		); err != nil {
			return nil, fmt.Errorf("failed to scan payment row: %w", err)
		}
		payments = append(payments, p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating payment rows: %w", err)
	}
	return payments, nil
}

// MarkReserved transitions pending -> reserved, recording that the funds are
// held. The status guard serializes concurrent retries of the same key: only
// one caller observes RowsAffected == 1 and keeps its reserve.
func (r *paymentRepository) MarkReserved(ctx context.Context, id string) (bool, error) {
	sql := `UPDATE payments SET status = $1 WHERE id = $2 AND status = $3`
	cmdTag, err := r.db.Exec(ctx, sql, model.PaymentStatusReserved, id, model.PaymentStatusPending)
	if err != nil {
		return false, fmt.Errorf("failed to mark payment reserved: %w", err)
	}
	return cmdTag.RowsAffected() == 1, nil
}

// MarkSucceeded transitions reserved -> succeeded, recording the gateway
// charge id. Returns the payment only when this call performed the
// transition, so the synchronous path and a webhook delivery confirming the
// same charge count it exactly once between them.
func (r *paymentRepository) MarkSucceeded(ctx context.Context, id string, gatewayChargeID string) (*model.Payment, error) {
	sql := `UPDATE payments SET status = $1, gateway_charge_id = COALESCE(gateway_charge_id, $2)
            WHERE id = $3 AND status = $4
            RETURNING ` + paymentColumns
	p, err := scanPayment(r.db.QueryRow(ctx, sql, model.PaymentStatusSucceeded, gatewayChargeID, id, model.PaymentStatusReserved))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil // Unknown payment or already confirmed
		}
		return nil, fmt.Errorf("failed to mark payment succeeded: %w", err)
	}
	return p, nil
}

// MarkDeclined flips status to declined
func (r *paymentRepository) MarkDeclined(ctx context.Context, id string) error {
	sql := `UPDATE payments SET status = $1 WHERE id = $2`
	cmdTag, err := r.db.Exec(ctx, sql, model.PaymentStatusDeclined, id)
	if err != nil {
		return fmt.Errorf("failed to mark payment declined: %w", err)
	}
	if cmdTag.RowsAffected() == 0 {
		return fmt.Errorf("payment not found for status update")
	}
	return nil
}

// MarkRefunded transitions succeeded -> refunded. The status guard in the
// WHERE clause serializes concurrent refunds of the same payment: only one
// caller observes RowsAffected == 1.
func (r *paymentRepository) MarkRefunded(ctx context.Context, id string, gatewayRefundID string) (bool, error) {
	sql := `UPDATE payments SET status = $1, gateway_refund_id = $2, refunded_at = NOW()
            WHERE id = $3 AND status = $4`
	cmdTag, err := r.db.Exec(ctx, sql, model.PaymentStatusRefunded, gatewayRefundID, id, model.PaymentStatusSucceeded)
	if err != nil {
		return false, fmt.Errorf("failed to mark payment refunded: %w", err)
	}
	return cmdTag.RowsAffected() == 1, nil
}

// AccumulateDailyTotal adds to the day's running total in one statement.
// Reading the total into handler memory and writing it back is exactly the
// lost-update pattern this upsert exists to prevent.
func (r *paymentRepository) AccumulateDailyTotal(ctx context.Context, day time.Time, amount int64) error {
	sql := `INSERT INTO daily_totals (day, amount) VALUES ($1, $2)
            ON CONFLICT (day) DO UPDATE SET amount = daily_totals.amount + EXCLUDED.amount`
	if _, err := r.db.Exec(ctx, sql, day.Format("2006-01-02"), amount); err != nil {
		return fmt.Errorf("failed to accumulate daily total: %w", err)
	}
	return nil
}

// DailyTotals returns per-day totals since the given date
func (r *paymentRepository) DailyTotals(ctx context.Context, since time.Time) ([]model.DailyTotal, error) {
	sql := `SELECT day, amount FROM daily_totals WHERE day >= $1 ORDER BY day DESC`
	rows, err := r.db.Query(ctx, sql, since.Format("2006-01-02"))
	if err != nil {
		return nil, fmt.Errorf("failed to query daily totals: %w", err)
	}
	defer rows.Close()

	var totals []model.DailyTotal
	for rows.Next() {
		var t model.DailyTotal
		if err := rows.Scan(&t.Day, &t.Amount); err != nil {
			return nil, fmt.Errorf("failed to scan daily total row: %w", err)
		}
		totals = append(totals, t)
	}
	if err = rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating daily total rows: %w", err)
	}
	return totals, nil
}
