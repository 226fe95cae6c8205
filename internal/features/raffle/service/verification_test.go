package service

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	apperrors "raffle-backend/internal/common/errors"
	"raffle-backend/internal/features/raffle/models"
	"raffle-backend/internal/service/notifications"
)

func submit(t *testing.T, env *testEnv, buyer int64, den, number int) *models.PendingPayment {
	t.Helper()
	p, err := env.engine.Raffle.SubmitPayment(context.Background(), buyer, den, number, "receipt #"+string(rune('A'+number)))
	require.NoError(t, err)
	return p
}

func TestVerify_CommitsTicket(t *testing.T) {
	env := newTestEnv(t, smallSettings())
	ctx := context.Background()
	p := submit(t, env, 10, 100, 2)

	res, err := env.engine.Verification.Verify(ctx, p.ID, testAdmin)
	require.NoError(t, err)
	assert.Equal(t, models.PaymentVerified, res.Payment.Status)
	assert.Equal(t, testAdmin, res.Payment.ReviewedBy)
	assert.Equal(t, res.Purchase.Sale.ID, res.Payment.SaleID)

	ticket, err := env.store.GetTicket(ctx, 100, 2)
	require.NoError(t, err)
	assert.Equal(t, models.TicketSold, ticket.State)
	assert.Equal(t, int64(10), ticket.Owner)

	pending, err := env.engine.Verification.ListPending(ctx, testAdmin)
	require.NoError(t, err)
	assert.Empty(t, pending)
}

func TestVerify_RequiresAdmin(t *testing.T) {
	env := newTestEnv(t, smallSettings())
	ctx := context.Background()
	p := submit(t, env, 10, 100, 2)

	_, err := env.engine.Verification.Verify(ctx, p.ID, 10)
	assert.True(t, apperrors.Is(err, apperrors.ErrCodeUnauthorized))
	_, err = env.engine.Verification.Reject(ctx, p.ID, 10, "nope")
	assert.True(t, apperrors.Is(err, apperrors.ErrCodeUnauthorized))
	_, err = env.engine.Verification.ListPending(ctx, 10)
	assert.True(t, apperrors.Is(err, apperrors.ErrCodeUnauthorized))

	stored, err := env.store.GetPayment(ctx, p.ID)
	require.NoError(t, err)
	assert.Equal(t, models.PaymentPending, stored.Status)
}

func TestVerify_TwiceFails(t *testing.T) {
	env := newTestEnv(t, smallSettings())
	ctx := context.Background()
	p := submit(t, env, 10, 100, 2)

	_, err := env.engine.Verification.Verify(ctx, p.ID, testAdmin)
	require.NoError(t, err)

	_, err = env.engine.Verification.Verify(ctx, p.ID, testAdmin)
	assert.True(t, apperrors.Is(err, apperrors.ErrCodePaymentNotPending))

	_, err = env.engine.Verification.Verify(ctx, "missing", testAdmin)
	assert.True(t, apperrors.Is(err, apperrors.ErrCodePaymentNotFound))
}

func TestVerify_TicketSoldMeanwhile(t *testing.T) {
	env := newTestEnv(t, smallSettings())
	ctx := context.Background()

	first := submit(t, env, 10, 100, 3)
	second := submit(t, env, 11, 100, 3)

	_, err := env.engine.Verification.Verify(ctx, first.ID, testAdmin)
	require.NoError(t, err)

	_, err = env.engine.Verification.Verify(ctx, second.ID, testAdmin)
	assert.True(t, apperrors.Is(err, apperrors.ErrCodeTicketNoLongerAvailable))

	stored, err := env.store.GetPayment(ctx, second.ID)
	require.NoError(t, err)
	assert.Equal(t, models.PaymentRejected, stored.Status)
	assert.Equal(t, models.RejectReasonTicketUnavailable, stored.RejectReason)

	rejected := env.events.ofType(notifications.EventPaymentRejected)
	require.Len(t, rejected, 1)
	assert.Equal(t, int64(11), rejected[0].UserID)
}

func TestVerifyByTicket(t *testing.T) {
	env := newTestEnv(t, smallSettings())
	ctx := context.Background()
	submit(t, env, 10, 200, 4)

	_, err := env.engine.Verification.VerifyByTicket(ctx, testAdmin, 10, 5, 200)
	assert.True(t, apperrors.Is(err, apperrors.ErrCodePaymentNotFound))

	res, err := env.engine.Verification.VerifyByTicket(ctx, testAdmin, 10, 4, 200)
	require.NoError(t, err)
	assert.Equal(t, 4, res.Purchase.Sale.Number)
}

func TestReject(t *testing.T) {
	env := newTestEnv(t, smallSettings())
	ctx := context.Background()
	p := submit(t, env, 10, 100, 1)

	updated, err := env.engine.Verification.Reject(ctx, p.ID, testAdmin, "wrong amount")
	require.NoError(t, err)
	assert.Equal(t, models.PaymentRejected, updated.Status)
	assert.Equal(t, "wrong amount", updated.RejectReason)

	ticket, err := env.store.GetTicket(ctx, 100, 1)
	require.NoError(t, err)
	assert.Equal(t, models.TicketAvailable, ticket.State)

	_, err = env.engine.Verification.Verify(ctx, p.ID, testAdmin)
	assert.True(t, apperrors.Is(err, apperrors.ErrCodePaymentNotPending))
}

type failingCompleter struct{}

func (failingCompleter) CompleteSale(context.Context, models.SaleRequest) (*PurchaseOutcome, error) {
	return nil, apperrors.NewStoreUnavailableError("commit sale", errors.New("connection refused"))
}

func TestVerify_StoreFailureRevertsToPending(t *testing.T) {
	env := newTestEnv(t, smallSettings())
	ctx := context.Background()
	p := submit(t, env, 10, 100, 2)

	gate := NewVerificationGate(env.store, failingCompleter{}, []int64{testAdmin}, nil)
	_, err := gate.Verify(ctx, p.ID, testAdmin)
	assert.True(t, apperrors.Is(err, apperrors.ErrCodeStoreUnavailable))

	stored, err := env.store.GetPayment(ctx, p.ID)
	require.NoError(t, err)
	assert.Equal(t, models.PaymentPending, stored.Status)
}

type roundMissingCompleter struct{}

func (roundMissingCompleter) CompleteSale(_ context.Context, req models.SaleRequest) (*PurchaseOutcome, error) {
	return nil, apperrors.NewNotAvailableError(req.Denomination)
}

func TestVerify_MissingRoundRevertsToPending(t *testing.T) {
	env := newTestEnv(t, smallSettings())
	ctx := context.Background()
	p := submit(t, env, 10, 100, 2)

	gate := NewVerificationGate(env.store, roundMissingCompleter{}, []int64{testAdmin}, nil)
	_, err := gate.Verify(ctx, p.ID, testAdmin)
	assert.True(t, apperrors.Is(err, apperrors.ErrCodeNotAvailable))

	stored, err := env.store.GetPayment(ctx, p.ID)
	require.NoError(t, err)
	assert.Equal(t, models.PaymentPending, stored.Status)
	assert.Empty(t, stored.RejectReason)

	// Once the round is back the same payment verifies normally.
	res, err := env.engine.Verification.Verify(ctx, p.ID, testAdmin)
	require.NoError(t, err)
	assert.Equal(t, 2, res.Purchase.Sale.Number)
}

func TestSubmitPayment_Validation(t *testing.T) {
	env := newTestEnv(t, smallSettings())
	ctx := context.Background()

	_, err := env.engine.Raffle.SubmitPayment(ctx, 1, 300, 1, "proof")
	assert.True(t, apperrors.Is(err, apperrors.ErrCodeInvalidDenomination))

	_, err = env.engine.Raffle.SubmitPayment(ctx, 1, 100, 9, "proof")
	assert.True(t, apperrors.Is(err, apperrors.ErrCodeValidation))

	_, err = env.engine.Raffle.SubmitPayment(ctx, 1, 100, 1, "   ")
	assert.True(t, apperrors.Is(err, apperrors.ErrCodeValidation))

	env.buy(t, 100, 1, 2)
	_, err = env.engine.Raffle.SubmitPayment(ctx, 1, 100, 1, "proof")
	assert.True(t, apperrors.Is(err, apperrors.ErrCodeConflict))

	p, err := env.engine.Raffle.SubmitPayment(ctx, 1, 100, 2, "  proof  ")
	require.NoError(t, err)
	assert.Equal(t, "proof", p.ProofRef)
	assert.Equal(t, models.PaymentPending, p.Status)
	assert.Len(t, env.events.ofType(notifications.EventPaymentSubmitted), 1)
}
