package model

import "time"

// Payment status lifecycle: pending (recorded, funds not yet reserved) ->
// reserved (funds held, gateway outcome unknown) -> succeeded | declined,
// and succeeded -> refunded. A timed-out gateway call leaves 'reserved'.
const (
	PaymentStatusPending   = "pending"
	PaymentStatusReserved  = "reserved"
	PaymentStatusSucceeded = "succeeded"
	PaymentStatusDeclined  = "declined"
	PaymentStatusRefunded  = "refunded"
)

// Payment is a single charge against a user's balance, keyed by the caller's
// idempotency key so a replayed request never charges twice.
type Payment struct {
	ID              string     `json:"id"` // UUID
	UserID          int        `json:"user_id"`
	Amount          int64      `json:"amount"` // In cents
	Currency        string     `json:"currency"`
	Status          string     `json:"status"`
	IdempotencyKey  string     `json:"-"`
	GatewayChargeID *string    `json:"gateway_charge_id,omitempty"`
	GatewayRefundID *string    `json:"gateway_refund_id,omitempty"`
	RefundedAt      *time.Time `json:"refunded_at,omitempty"`
	CreatedAt       time.Time  `json:"created_at"`
	UpdatedAt       time.Time  `json:"updated_at"`
}

// ChargeRequest is the client payload for POST /payments/charge.
// PaymentToken is an opaque token minted by the gateway's own tokenization;
// raw card data never reaches this service.
type ChargeRequest struct {
	Amount         int64  `json:"amount" binding:"required,gt=0"`
	Currency       string `json:"currency" binding:"required,oneof=USD EUR GBP"`
	IdempotencyKey string `json:"idempotency_key" binding:"required,min=8,max=128"`
	PaymentToken   string `json:"payment_token" binding:"required"`
}

// RefundRequest is the client payload for POST /payments/refund
type RefundRequest struct {
	PaymentID string `json:"payment_id" binding:"required,uuid"`
}

// AdminPaymentFilters contains filter parameters for admin payment queries
type AdminPaymentFilters struct {
	UserID    *int
	Status    *string
	Currency  *string
	StartDate *time.Time
	EndDate   *time.Time
}

// DailyTotal is the per-day accumulated amount of succeeded charges
type DailyTotal struct {
	Day    time.Time `json:"day"`
	Amount int64     `json:"amount"`
}

// WebhookEvent is the gateway's event envelope, parsed only after the
// signature over the raw body has been verified.
type WebhookEvent struct {
	Type string           `json:"type"`
	Data WebhookEventData `json:"data"`
}

type WebhookEventData struct {
	ChargeID  string `json:"charge_id"`
	PaymentID string `json:"payment_id"`
	Amount    int64  `json:"amount"`
	Currency  string `json:"currency"`
}
