package service

import (
	"bytes"
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"strconv"
	"time"

	"account_service/internal/gateway"
	"account_service/internal/metrics"
	"account_service/internal/model"
	"account_service/internal/repository"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
)

var (
	ErrPaymentNotFound     = errors.New("payment not found")
	ErrForbidden           = errors.New("you do not have access to this payment")
	ErrInsufficientFunds   = errors.New("insufficient funds")
	ErrPaymentDeclined     = errors.New("payment declined")
	ErrNotRefundable       = errors.New("payment is not refundable")
	ErrIdempotencyConflict = errors.New("idempotency key already used with different parameters")
	ErrGatewayTimeout      = errors.New("payment gateway timed out; retry with the same idempotency key")
	ErrGatewayUnavailable  = errors.New("payment gateway unavailable")
)

const webhookEventChargeSucceeded = "charge.succeeded"

// PaymentService provides charge, refund, and reporting operations
type PaymentService interface {
	Charge(ctx context.Context, userID int, req model.ChargeRequest) (*model.Payment, error)
	Refund(ctx context.Context, paymentID string, actorID int, actorRole string) (*model.Payment, error)
	GetUserPayments(ctx context.Context, userID int) ([]model.Payment, error)
	GetAllPaymentsAdmin(ctx context.Context, filters model.AdminPaymentFilters) ([]model.Payment, error)
	ExportPaymentsCSVAdmin(ctx context.Context, filters model.AdminPaymentFilters) (*bytes.Buffer, error)
	DailyTotals(ctx context.Context, days int) ([]model.DailyTotal, error)
	HandleWebhookEvent(ctx context.Context, event model.WebhookEvent) error
}

type paymentService struct {
	paymentRepo repository.PaymentRepository
	userRepo    repository.UserRepository
	gw          gateway.Client
}

// NewPaymentService creates a new PaymentService
func NewPaymentService(paymentRepo repository.PaymentRepository, userRepo repository.UserRepository, gw gateway.Client) PaymentService {
	return &paymentService{paymentRepo: paymentRepo, userRepo: userRepo, gw: gw}
}

// Charge executes a charge at most once per idempotency key.
//
// Flow: record the attempt keyed by the idempotency key, reserve the funds
// with an atomic conditional debit, record the reserve with a conditional
// pending->reserved transition, then call the gateway. A definitive decline
// releases the reserve; a timeout leaves the row reserved so a retry with
// the same key re-drives the gateway call (the key travels to the gateway
// too, so the retry cannot double-charge). A retry of a row still pending
// means the earlier attempt never recorded a reserve, so it reserves again.
func (s *paymentService) Charge(ctx context.Context, userID int, req model.ChargeRequest) (*model.Payment, error) {
	attempt := &model.Payment{
		ID:             uuid.NewString(),
		UserID:         userID,
		Amount:         req.Amount,
		Currency:       req.Currency,
		Status:         model.PaymentStatusPending,
		IdempotencyKey: req.IdempotencyKey,
	}

	created, payment, err := s.paymentRepo.CreateIdempotent(ctx, attempt)
	if err != nil {
		return nil, fmt.Errorf("failed to record charge attempt: %w", err)
	}

	if !created {
		// Replay path: the key was seen before
		if payment.UserID != userID || payment.Amount != req.Amount || payment.Currency != req.Currency {
			return nil, ErrIdempotencyConflict
		}
		switch payment.Status {
		case model.PaymentStatusSucceeded, model.PaymentStatusRefunded:
			return payment, nil // Already charged; never hit the gateway again
		case model.PaymentStatusDeclined:
			return nil, ErrPaymentDeclined
		}
		// Pending or reserved: fall through to the reserve step, which is a
		// no-op when the earlier attempt already recorded its reserve.
	}

	if payment.Status == model.PaymentStatusPending {
		reserved, err := s.userRepo.ReserveBalance(ctx, userID, req.Amount)
		if err != nil {
			// No funds held; the row stays pending and a retry reserves again
			return nil, fmt.Errorf("failed to reserve balance: %w", err)
		}
		if !reserved {
			metrics.ChargesTotal.WithLabelValues("insufficient_funds").Inc()
			if err := s.paymentRepo.MarkDeclined(ctx, payment.ID); err != nil {
				log.Error().Err(err).Str("payment_id", payment.ID).Msg("failed to mark payment declined")
			}
			return nil, ErrInsufficientFunds
		}
		transitioned, err := s.paymentRepo.MarkReserved(ctx, payment.ID)
		if err != nil {
			// Funds are held but the row does not say so; release them so the
			// pending row and the balance agree before the caller retries
			if crediterr := s.userRepo.CreditBalance(ctx, userID, req.Amount); crediterr != nil {
				log.Error().Err(crediterr).Str("payment_id", payment.ID).Msg("failed to release unrecorded reserve")
			}
			return nil, fmt.Errorf("failed to record reserve: %w", err)
		}
		if !transitioned {
			// A concurrent retry recorded its reserve first; release ours.
			// The gateway call below stays safe under the shared key.
			if err := s.userRepo.CreditBalance(ctx, userID, req.Amount); err != nil {
				log.Error().Err(err).Str("payment_id", payment.ID).Msg("failed to release duplicate reserve")
			}
		}
		payment.Status = model.PaymentStatusReserved
	}

	result, err := s.gw.Charge(ctx, gateway.ChargeParams{
		Amount:         req.Amount,
		Currency:       req.Currency,
		PaymentToken:   req.PaymentToken,
		IdempotencyKey: req.IdempotencyKey,
	})
	if err != nil {
		switch {
		case errors.Is(err, gateway.ErrDeclined):
			// Definitive outcome: release the reserve
			metrics.ChargesTotal.WithLabelValues("declined").Inc()
			if err := s.userRepo.CreditBalance(ctx, userID, req.Amount); err != nil {
				log.Error().Err(err).Str("payment_id", payment.ID).Msg("failed to release reserve after decline")
			}
			if err := s.paymentRepo.MarkDeclined(ctx, payment.ID); err != nil {
				log.Error().Err(err).Str("payment_id", payment.ID).Msg("failed to mark payment declined")
			}
			return nil, ErrPaymentDeclined
		case errors.Is(err, gateway.ErrTimeout):
			// Ambiguous outcome: keep the reserve and the reserved row; the
			// webhook can still confirm the charge if it was captured
			metrics.ChargesTotal.WithLabelValues("timeout").Inc()
			return nil, ErrGatewayTimeout
		default:
			metrics.ChargesTotal.WithLabelValues("upstream_error").Inc()
			log.Error().Err(err).Str("payment_id", payment.ID).Msg("gateway charge failed")
			return nil, ErrGatewayUnavailable
		}
	}

	confirmed, err := s.paymentRepo.MarkSucceeded(ctx, payment.ID, result.ChargeID)
	if err != nil {
		return nil, fmt.Errorf("charge captured but failed to record: %w", err)
	}
	metrics.ChargesTotal.WithLabelValues("succeeded").Inc()

	if confirmed != nil {
		// This call won the reserved->succeeded transition, so it owns the
		// daily-total accumulate. The charge is already captured; a failed
		// accumulate is logged rather than surfaced as a charge failure.
		day := time.Now().UTC().Truncate(24 * time.Hour)
		if err := s.paymentRepo.AccumulateDailyTotal(ctx, day, confirmed.Amount); err != nil {
			log.Error().Err(err).Str("payment_id", payment.ID).Msg("failed to accumulate daily total")
		}
		return confirmed, nil
	}

	// A webhook delivery confirmed the charge first
	payment.Status = model.PaymentStatusSucceeded
	payment.GatewayChargeID = &result.ChargeID
	return payment, nil
}

// Refund refunds a succeeded payment. Only an admin or the owning user may
// refund; the conditional succeeded->refunded transition in the store makes
// sure concurrent refunds credit the balance at most once.
func (s *paymentService) Refund(ctx context.Context, paymentID string, actorID int, actorRole string) (*model.Payment, error) {
	payment, err := s.paymentRepo.FindByID(ctx, paymentID)
	if err != nil {
		return nil, fmt.Errorf("failed to load payment: %w", err)
	}
	if payment == nil {
		return nil, ErrPaymentNotFound
	}
	if actorRole != model.RoleAdmin && payment.UserID != actorID {
		return nil, ErrForbidden
	}
	if payment.Status != model.PaymentStatusSucceeded || payment.GatewayChargeID == nil {
		return nil, ErrNotRefundable
	}

	// The payment id doubles as the refund's idempotency key: a retry after
	// a timed-out refund cannot refund twice at the gateway
	result, err := s.gw.Refund(ctx, *payment.GatewayChargeID, payment.Amount, payment.ID)
	if err != nil {
		switch {
		case errors.Is(err, gateway.ErrTimeout):
			metrics.RefundsTotal.WithLabelValues("timeout").Inc()
			return nil, ErrGatewayTimeout
		case errors.Is(err, gateway.ErrDeclined):
			metrics.RefundsTotal.WithLabelValues("declined").Inc()
			return nil, ErrNotRefundable
		default:
			metrics.RefundsTotal.WithLabelValues("upstream_error").Inc()
			log.Error().Err(err).Str("payment_id", paymentID).Msg("gateway refund failed")
			return nil, ErrGatewayUnavailable
		}
	}

	transitioned, err := s.paymentRepo.MarkRefunded(ctx, paymentID, result.RefundID)
	if err != nil {
		return nil, fmt.Errorf("refund issued but failed to record: %w", err)
	}
	if !transitioned {
		// A concurrent refund won the transition; do not credit twice
		return nil, ErrNotRefundable
	}

	if err := s.userRepo.CreditBalance(ctx, payment.UserID, payment.Amount); err != nil {
		return nil, fmt.Errorf("refund recorded but failed to credit balance: %w", err)
	}
	metrics.RefundsTotal.WithLabelValues("succeeded").Inc()

	payment.Status = model.PaymentStatusRefunded
	payment.GatewayRefundID = &result.RefundID
	return payment, nil
}

// GetUserPayments returns the caller's payment history
func (s *paymentService) GetUserPayments(ctx context.Context, userID int) ([]model.Payment, error) {
	payments, err := s.paymentRepo.FindByUser(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to load payments: %w", err)
	}
	return payments, nil
}

// GetAllPaymentsAdmin returns payments matching the admin filters
func (s *paymentService) GetAllPaymentsAdmin(ctx context.Context, filters model.AdminPaymentFilters) ([]model.Payment, error) {
	payments, err := s.paymentRepo.FindAll(ctx, filters)
	if err != nil {
		return nil, fmt.Errorf("failed to load payments: %w", err)
	}
	return payments, nil
}

// ExportPaymentsCSVAdmin renders matching payments as CSV in memory. The
// format and columns are fixed; nothing filesystem-related is involved.
func (s *paymentService) ExportPaymentsCSVAdmin(ctx context.Context, filters model.AdminPaymentFilters) (*bytes.Buffer, error) {
	payments, err := s.paymentRepo.FindAll(ctx, filters)
	if err != nil {
		return nil, fmt.Errorf("failed to load payments for export: %w", err)
	}

	buf := &bytes.Buffer{}
	writer := csv.NewWriter(buf)

	header := []string{"ID", "UserID", "Amount", "Currency", "Status", "GatewayChargeID", "CreatedAt"}
	if err := writer.Write(header); err != nil {
		return nil, fmt.Errorf("failed to write CSV header: %w", err)
	}

	for _, p := range payments {
		chargeID := ""
		if p.GatewayChargeID != nil {
			chargeID = *p.GatewayChargeID
		}
		record := []string{
			p.ID,
			strconv.Itoa(p.UserID),
			strconv.FormatInt(p.Amount, 10),
			p.Currency,
			p.Status,
			chargeID,
			p.CreatedAt.Format(time.RFC3339),
		}
		if err := writer.Write(record); err != nil {
			return nil, fmt.Errorf("failed to write CSV record: %w", err)
		}
	}

	writer.Flush()
	if err := writer.Error(); err != nil {
		return nil, fmt.Errorf("failed to flush CSV writer: %w", err)
	}
	return buf, nil
}

// DailyTotals returns accumulated per-day charge totals for the last N days
func (s *paymentService) DailyTotals(ctx context.Context, days int) ([]model.DailyTotal, error) {
	if days < 1 || days > 365 {
		days = 30
	}
	since := time.Now().UTC().AddDate(0, 0, -days)
	totals, err := s.paymentRepo.DailyTotals(ctx, since)
	if err != nil {
		return nil, fmt.Errorf("failed to load daily totals: %w", err)
	}
	return totals, nil
}

// HandleWebhookEvent applies a verified gateway event. Confirmation is keyed
// by the payment id the event carries (the row of a timed-out charge never
// learned its gateway charge id) and records the charge id as a side effect.
// Confirmation and the daily-total accumulate are both single-statement
// store updates, so a replayed event, or an event racing the synchronous
// success path, neither double-confirms nor double-counts.
func (s *paymentService) HandleWebhookEvent(ctx context.Context, event model.WebhookEvent) error {
	switch event.Type {
	case webhookEventChargeSucceeded:
		payment, err := s.paymentRepo.MarkSucceeded(ctx, event.Data.PaymentID, event.Data.ChargeID)
		if err != nil {
			metrics.WebhookEventsTotal.WithLabelValues("error").Inc()
			return fmt.Errorf("failed to confirm charge: %w", err)
		}
		if payment == nil {
			// Unknown payment or already confirmed; nothing to do
			metrics.WebhookEventsTotal.WithLabelValues("ignored").Inc()
			return nil
		}
		day := time.Now().UTC().Truncate(24 * time.Hour)
		if err := s.paymentRepo.AccumulateDailyTotal(ctx, day, payment.Amount); err != nil {
			metrics.WebhookEventsTotal.WithLabelValues("error").Inc()
			return fmt.Errorf("failed to accumulate daily total: %w", err)
		}
		metrics.WebhookEventsTotal.WithLabelValues("applied").Inc()
		return nil
	default:
		metrics.WebhookEventsTotal.WithLabelValues("ignored").Inc()
		return nil
	}
}
