package gateway

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"
)

var (
	// ErrDeclined is a definitive decline from the gateway; retrying the
	// same charge will not succeed.
	ErrDeclined = errors.New("charge declined by gateway")
	// ErrTimeout means the outcome is unknown; the caller may retry with
	// the same idempotency key.
	ErrTimeout = errors.New("gateway request timed out")
)

// Client talks to the external payment gateway. Charges are tokenized: only
// an opaque payment token is sent, never card data.
type Client interface {
	Charge(ctx context.Context, req ChargeParams) (*ChargeResult, error)
	Refund(ctx context.Context, gatewayChargeID string, amount int64, idempotencyKey string) (*RefundResult, error)
}

// ChargeParams are the fields forwarded to the gateway for a charge
type ChargeParams struct {
	Amount         int64  `json:"amount"`
	Currency       string `json:"currency"`
	PaymentToken   string `json:"payment_token"`
	IdempotencyKey string `json:"-"`
}

// ChargeResult is the gateway's answer to a successful charge
type ChargeResult struct {
	ChargeID string `json:"charge_id"`
	Status   string `json:"status"`
}

// RefundResult is the gateway's answer to a successful refund
type RefundResult struct {
	RefundID string `json:"refund_id"`
}

type httpClient struct {
	baseURL string
	apiKey  string
	client  *http.Client
}

// NewHTTPClient creates a gateway client with a bounded request timeout so a
// hung gateway cannot hold a charge open indefinitely.
func NewHTTPClient(baseURL, apiKey string, timeout time.Duration) Client {
	return &httpClient{
		baseURL: baseURL,
		apiKey:  apiKey,
		client:  &http.Client{Timeout: timeout},
	}
}

type gatewayError struct {
	Error string `json:"error"`
}

func (c *httpClient) post(ctx context.Context, path, idempotencyKey string, body, out interface{}) error {
	payload, err := json.Marshal(body)
	if err != nil {
		return fmt.Errorf("failed to encode gateway request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("failed to build gateway request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+c.apiKey)
	if idempotencyKey != "" {
		req.Header.Set("Idempotency-Key", idempotencyKey)
	}

	resp, err := c.client.Do(req)
	if err != nil {
		// A transport timeout leaves the charge outcome unknown; report it
		// distinctly from a decline so the caller can retry the same key.
		var netErr interface{ Timeout() bool }
		if errors.As(err, &netErr) && netErr.Timeout() {
			return ErrTimeout
		}
		if errors.Is(err, context.DeadlineExceeded) {
			return ErrTimeout
		}
		return fmt.Errorf("gateway request failed: %w", err)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusPaymentRequired || resp.StatusCode == http.StatusUnprocessableEntity:
		return ErrDeclined
	case resp.StatusCode >= 500:
		return fmt.Errorf("gateway unavailable: status %d", resp.StatusCode)
	case resp.StatusCode >= 400:
		var ge gatewayError
		_ = json.NewDecoder(resp.Body).Decode(&ge)
		return fmt.Errorf("gateway rejected request: status %d: %s", resp.StatusCode, ge.Error)
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("failed to decode gateway response: %w", err)
	}
	return nil
}

// Charge submits a tokenized charge, passing the caller's idempotency key
// through so a retry after timeout cannot double-charge.
func (c *httpClient) Charge(ctx context.Context, req ChargeParams) (*ChargeResult, error) {
	var result ChargeResult
	if err := c.post(ctx, "/v1/charges", req.IdempotencyKey, req, &result); err != nil {
		return nil, err
	}
	return &result, nil
}

// Refund refunds a previously captured charge. The idempotency key travels
// with the request so a retry after a timed-out refund cannot refund twice.
func (c *httpClient) Refund(ctx context.Context, gatewayChargeID string, amount int64, idempotencyKey string) (*RefundResult, error) {
	body := map[string]interface{}{
		"charge_id": gatewayChargeID,
		"amount":    amount,
	}
	var result RefundResult
	if err := c.post(ctx, "/v1/refunds", idempotencyKey, body, &result); err != nil {
		return nil, err
	}
	return &result, nil
}

// SignBody computes the hex HMAC-SHA256 the gateway attaches to webhook
// deliveries.
func SignBody(secret []byte, body []byte) string {
	mac := hmac.New(sha256.New, secret)
	mac.Write(body)
	return hex.EncodeToString(mac.Sum(nil))
}

// VerifySignature checks the gateway's HMAC-SHA256 signature over the raw
// webhook body. Comparison is constant-time. The payload must not be parsed
// before this check passes.
func VerifySignature(secret []byte, body []byte, signatureHex string) bool {
	mac := hmac.New(sha256.New, secret)
	mac.Write(body)
	expected := mac.Sum(nil)

	received, err := hex.DecodeString(signatureHex)
	if err != nil {
		return false
	}
	return hmac.Equal(expected, received)
}
