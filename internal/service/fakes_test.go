package service

import (
	"context"
	"time"

	"account_service/internal/gateway"
	"account_service/internal/model"
)

// Function-field fakes for the service collaborators. Tests override only
// the calls they care about; unset fields mean "not expected to be called".

type fakeUserRepo struct {
	createFn             func(ctx context.Context, user *model.User) error
	findByEmailFn        func(ctx context.Context, email string) (*model.User, error)
	findByIDFn           func(ctx context.Context, id int) (*model.User, error)
	updateProfileFn      func(ctx context.Context, id int, req model.UpdateUserRequest) (*model.User, error)
	updatePasswordHashFn func(ctx context.Context, id int, hash string) error
	deleteFn             func(ctx context.Context, id int) error
	listFn               func(ctx context.Context, page, limit int) ([]model.User, int64, error)
	searchFn             func(ctx context.Context, query string, limit int) ([]model.UserSummary, error)
	reserveBalanceFn     func(ctx context.Context, id int, amount int64) (bool, error)
	creditBalanceFn      func(ctx context.Context, id int, amount int64) error
}

func (f *fakeUserRepo) Create(ctx context.Context, user *model.User) error {
	return f.createFn(ctx, user)
}
func (f *fakeUserRepo) FindByEmail(ctx context.Context, email string) (*model.User, error) {
	return f.findByEmailFn(ctx, email)
}
func (f *fakeUserRepo) FindByID(ctx context.Context, id int) (*model.User, error) {
	return f.findByIDFn(ctx, id)
}
func (f *fakeUserRepo) UpdateProfile(ctx context.Context, id int, req model.UpdateUserRequest) (*model.User, error) {
	return f.updateProfileFn(ctx, id, req)
}
func (f *fakeUserRepo) UpdatePasswordHash(ctx context.Context, id int, hash string) error {
	return f.updatePasswordHashFn(ctx, id, hash)
}
func (f *fakeUserRepo) Delete(ctx context.Context, id int) error {
	return f.deleteFn(ctx, id)
}
func (f *fakeUserRepo) List(ctx context.Context, page, limit int) ([]model.User, int64, error) {
	return f.listFn(ctx, page, limit)
}
func (f *fakeUserRepo) Search(ctx context.Context, query string, limit int) ([]model.UserSummary, error) {
	return f.searchFn(ctx, query, limit)
}
func (f *fakeUserRepo) ReserveBalance(ctx context.Context, id int, amount int64) (bool, error) {
	return f.reserveBalanceFn(ctx, id, amount)
}
func (f *fakeUserRepo) CreditBalance(ctx context.Context, id int, amount int64) error {
	return f.creditBalanceFn(ctx, id, amount)
}

type fakePaymentRepo struct {
	createIdempotentFn        func(ctx context.Context, p *model.Payment) (bool, *model.Payment, error)
	findByIDFn                func(ctx context.Context, id string) (*model.Payment, error)
	findByUserFn              func(ctx context.Context, userID int) ([]model.Payment, error)
	findAllFn                 func(ctx context.Context, filters model.AdminPaymentFilters) ([]model.Payment, error)
	markReservedFn         func(ctx context.Context, id string) (bool, error)
	markSucceededFn        func(ctx context.Context, id string, gatewayChargeID string) (*model.Payment, error)
	markDeclinedFn         func(ctx context.Context, id string) error
	markRefundedFn         func(ctx context.Context, id string, gatewayRefundID string) (bool, error)
	accumulateDailyTotalFn func(ctx context.Context, day time.Time, amount int64) error
	dailyTotalsFn          func(ctx context.Context, since time.Time) ([]model.DailyTotal, error)
}

func (f *fakePaymentRepo) CreateIdempotent(ctx context.Context, p *model.Payment) (bool, *model.Payment, error) {
	return f.createIdempotentFn(ctx, p)
}
func (f *fakePaymentRepo) FindByID(ctx context.Context, id string) (*model.Payment, error) {
	return f.findByIDFn(ctx, id)
}
func (f *fakePaymentRepo) FindByUser(ctx context.Context, userID int) ([]model.Payment, error) {
	return f.findByUserFn(ctx, userID)
}
func (f *fakePaymentRepo) FindAll(ctx context.Context, filters model.AdminPaymentFilters) ([]model.Payment, error) {
	return f.findAllFn(ctx, filters)
}
func (f *fakePaymentRepo) MarkReserved(ctx context.Context, id string) (bool, error) {
	return f.markReservedFn(ctx, id)
}
func (f *fakePaymentRepo) MarkSucceeded(ctx context.Context, id string, gatewayChargeID string) (*model.Payment, error) {
	return f.markSucceededFn(ctx, id, gatewayChargeID)
}
func (f *fakePaymentRepo) MarkDeclined(ctx context.Context, id string) error {
	return f.markDeclinedFn(ctx, id)
}
func (f *fakePaymentRepo) MarkRefunded(ctx context.Context, id string, gatewayRefundID string) (bool, error) {
	return f.markRefundedFn(ctx, id, gatewayRefundID)
}
func (f *fakePaymentRepo) AccumulateDailyTotal(ctx context.Context, day time.Time, amount int64) error {
	return f.accumulateDailyTotalFn(ctx, day, amount)
}
func (f *fakePaymentRepo) DailyTotals(ctx context.Context, since time.Time) ([]model.DailyTotal, error) {
	return f.dailyTotalsFn(ctx, since)
}

type fakeResetRepo struct {
	createFn  func(ctx context.Context, reset *model.PasswordReset) error
	consumeFn func(ctx context.Context, tokenHash string) (int, bool, error)
}

func (f *fakeResetRepo) Create(ctx context.Context, reset *model.PasswordReset) error {
	return f.createFn(ctx, reset)
}
func (f *fakeResetRepo) Consume(ctx context.Context, tokenHash string) (int, bool, error) {
	return f.consumeFn(ctx, tokenHash)
}

type fakeSessionStore struct {
	issueFn     func(ctx context.Context, userID int, role string, ttl time.Duration) (string, error)
	resolveFn   func(ctx context.Context, token string) (*model.Session, error)
	revokeFn    func(ctx context.Context, token string) error
	revokeAllFn func(ctx context.Context, userID int) error
}

func (f *fakeSessionStore) Issue(ctx context.Context, userID int, role string, ttl time.Duration) (string, error) {
	return f.issueFn(ctx, userID, role, ttl)
}
func (f *fakeSessionStore) Resolve(ctx context.Context, token string) (*model.Session, error) {
	return f.resolveFn(ctx, token)
}
func (f *fakeSessionStore) Revoke(ctx context.Context, token string) error {
	return f.revokeFn(ctx, token)
}
func (f *fakeSessionStore) RevokeAll(ctx context.Context, userID int) error {
	return f.revokeAllFn(ctx, userID)
}

type fakeMailer struct {
	sent []string
}

func (f *fakeMailer) SendPasswordReset(ctx context.Context, email, token string) error {
	f.sent = append(f.sent, email)
	return nil
}

type fakeGateway struct {
	chargeFn func(ctx context.Context, req gateway.ChargeParams) (*gateway.ChargeResult, error)
	refundFn func(ctx context.Context, gatewayChargeID string, amount int64, idempotencyKey string) (*gateway.RefundResult, error)
}

func (f *fakeGateway) Charge(ctx context.Context, req gateway.ChargeParams) (*gateway.ChargeResult, error) {
	return f.chargeFn(ctx, req)
}
func (f *fakeGateway) Refund(ctx context.Context, gatewayChargeID string, amount int64, idempotencyKey string) (*gateway.RefundResult, error) {
	return f.refundFn(ctx, gatewayChargeID, amount, idempotencyKey)
}
