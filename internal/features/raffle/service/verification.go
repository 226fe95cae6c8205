package service

import (
	"context"
	"errors"
	"time"

	"github.com/rs/zerolog"

	apperrors "raffle-backend/internal/common/errors"
	"raffle-backend/internal/common/logger"
	"raffle-backend/internal/common/metrics"
	"raffle-backend/internal/common/validation"
	"raffle-backend/internal/features/raffle/models"
	"raffle-backend/internal/features/raffle/repository"
	"raffle-backend/internal/service/notifications"
)

// VerificationResult is returned to the approving admin.
type VerificationResult struct {
	Payment  *models.PendingPayment `json:"payment"`
	Purchase *PurchaseOutcome       `json:"purchase"`
}

// VerificationGate turns pending payments into sales under admin authority.
type VerificationGate struct {
	payments  repository.PaymentRepository
	completer SaleCompleter
	admins    map[int64]struct{}
	publisher notifications.Publisher
	log       zerolog.Logger
}

func NewVerificationGate(payments repository.PaymentRepository, completer SaleCompleter, adminIDs []int64, publisher notifications.Publisher) *VerificationGate {
	admins := make(map[int64]struct{}, len(adminIDs))
	for _, id := range adminIDs {
		admins[id] = struct{}{}
	}
	return &VerificationGate{
		payments:  payments,
		completer: completer,
		admins:    admins,
		publisher: publisher,
		log:       logger.Component("verification"),
	}
}

func (g *VerificationGate) IsAdmin(userID int64) bool {
	_, ok := g.admins[userID]
	return ok
}

func (g *VerificationGate) authorize(approverID int64, action string) error {
	if g.IsAdmin(approverID) {
		return nil
	}
	g.log.Warn().Int64("user_id", approverID).Str("action", action).Msg("Unauthorized admin action attempt")
	return apperrors.NewUnauthorizedError("admin access required").WithUserID(approverID)
}

// Verify approves a pending payment and commits its ticket. Two admins cannot
// both verify one payment. If the ticket was sold meanwhile the payment is
// rejected; any other failure puts the payment back to pending.
func (g *VerificationGate) Verify(ctx context.Context, paymentID string, approverID int64) (*VerificationResult, error) {
	if err := g.authorize(approverID, "verify"); err != nil {
		return nil, err
	}
	payment, err := g.getPending(ctx, paymentID)
	if err != nil {
		return nil, err
	}

	now := time.Now().UTC()
	if _, err := g.transition(ctx, paymentID, models.PaymentPending, models.PaymentUpdate{
		Status:     models.PaymentVerified,
		ReviewedBy: approverID,
		ReviewedAt: &now,
	}); err != nil {
		return nil, err
	}

	purchase, err := g.completer.CompleteSale(ctx, models.SaleRequest{
		Denomination: payment.Denomination,
		Number:       payment.Number,
		BuyerID:      payment.BuyerID,
	})
	if err != nil {
		// A missing round during rollover is transient, so only a sold ticket rejects the payment.
		if apperrors.Is(err, apperrors.ErrCodeConflict) {
			return nil, g.rejectUnavailable(ctx, payment, approverID, now)
		}
		if _, revertErr := g.payments.TransitionPayment(ctx, paymentID, models.PaymentVerified, models.PaymentUpdate{
			Status: models.PaymentPending,
		}); revertErr != nil {
			g.log.Error().Err(revertErr).Str("payment_id", paymentID).Msg("Failed to revert payment to pending")
		}
		return nil, err
	}

	updated, err := g.payments.TransitionPayment(ctx, paymentID, models.PaymentVerified, models.PaymentUpdate{
		Status:     models.PaymentVerified,
		ReviewedBy: approverID,
		ReviewedAt: &now,
		SaleID:     purchase.Sale.ID,
	})
	if err != nil {
		// The sale is committed; only the back-reference is missing.
		g.log.Warn().Err(err).Str("payment_id", paymentID).Str("sale_id", purchase.Sale.ID).Msg("Failed to attach sale to payment")
		payment.Status = models.PaymentVerified
		payment.ReviewedBy = approverID
		payment.ReviewedAt = &now
		updated = payment
	}

	g.log.Info().
		Str("payment_id", paymentID).
		Int64("approver_id", approverID).
		Int64("buyer_id", payment.BuyerID).
		Int("denomination", payment.Denomination).
		Int("ticket_number", payment.Number).
		Msg("Payment verified")
	return &VerificationResult{Payment: updated, Purchase: purchase}, nil
}

// VerifyByTicket verifies the oldest pending payment matching the buyer and ticket.
func (g *VerificationGate) VerifyByTicket(ctx context.Context, approverID, buyerID int64, number, den int) (*VerificationResult, error) {
	if err := g.authorize(approverID, "verify"); err != nil {
		return nil, err
	}
	pending, err := g.payments.ListPending(ctx)
	if err != nil {
		return nil, storeError("list pending payments", err)
	}
	for _, p := range pending {
		if p.BuyerID == buyerID && p.Number == number && p.Denomination == den {
			return g.Verify(ctx, p.ID, approverID)
		}
	}
	return nil, apperrors.New(apperrors.ErrCodePaymentNotFound, "No pending payment for this ticket").
		WithDetail("buyer_id", buyerID).
		WithDetail("ticket_number", number).
		WithDetail("denomination", den)
}

// Reject declines a pending payment without touching the pool.
func (g *VerificationGate) Reject(ctx context.Context, paymentID string, approverID int64, reason string) (*models.PendingPayment, error) {
	if err := g.authorize(approverID, "reject"); err != nil {
		return nil, err
	}
	reason, err := validation.RejectReason(reason)
	if err != nil {
		return nil, apperrors.NewValidationError("reason", err.Error())
	}
	now := time.Now().UTC()
	updated, err := g.transition(ctx, paymentID, models.PaymentPending, models.PaymentUpdate{
		Status:       models.PaymentRejected,
		ReviewedBy:   approverID,
		ReviewedAt:   &now,
		RejectReason: reason,
	})
	if err != nil {
		return nil, err
	}
	g.log.Info().Str("payment_id", paymentID).Int64("approver_id", approverID).Str("reason", reason).Msg("Payment rejected")
	g.notifyRejected(ctx, updated)
	return updated, nil
}

func (g *VerificationGate) ListPending(ctx context.Context, approverID int64) ([]*models.PendingPayment, error) {
	if err := g.authorize(approverID, "list payments"); err != nil {
		return nil, err
	}
	pending, err := g.payments.ListPending(ctx)
	if err != nil {
		return nil, storeError("list pending payments", err)
	}
	metrics.SetPendingPayments(len(pending))
	return pending, nil
}

func (g *VerificationGate) getPending(ctx context.Context, id string) (*models.PendingPayment, error) {
	payment, err := g.payments.GetPayment(ctx, id)
	if errors.Is(err, repository.ErrNotFound) {
		return nil, apperrors.NewPaymentNotFoundError(id)
	}
	if err != nil {
		return nil, storeError("get payment", err)
	}
	if payment.Status != models.PaymentPending {
		return nil, apperrors.NewPaymentNotPendingError(id, string(payment.Status))
	}
	return payment, nil
}

func (g *VerificationGate) transition(ctx context.Context, id string, from models.PaymentStatus, update models.PaymentUpdate) (*models.PendingPayment, error) {
	updated, err := g.payments.TransitionPayment(ctx, id, from, update)
	switch {
	case err == nil:
		return updated, nil
	case errors.Is(err, repository.ErrNotFound):
		return nil, apperrors.NewPaymentNotFoundError(id)
	case errors.Is(err, repository.ErrConflict):
		current, getErr := g.payments.GetPayment(ctx, id)
		status := "no longer pending"
		if getErr == nil {
			status = string(current.Status)
		}
		return nil, apperrors.NewPaymentNotPendingError(id, status)
	default:
		return nil, storeError("update payment", err)
	}
}

func (g *VerificationGate) rejectUnavailable(ctx context.Context, payment *models.PendingPayment, approverID int64, at time.Time) error {
	updated, err := g.payments.TransitionPayment(ctx, payment.ID, models.PaymentVerified, models.PaymentUpdate{
		Status:       models.PaymentRejected,
		ReviewedBy:   approverID,
		ReviewedAt:   &at,
		RejectReason: models.RejectReasonTicketUnavailable,
	})
	if err != nil {
		g.log.Error().Err(err).Str("payment_id", payment.ID).Msg("Failed to reject payment for sold ticket")
	} else {
		g.notifyRejected(ctx, updated)
	}
	g.log.Warn().
		Str("payment_id", payment.ID).
		Int("denomination", payment.Denomination).
		Int("ticket_number", payment.Number).
		Msg("Verified payment lost its ticket")
	return apperrors.NewTicketNoLongerAvailableError(payment.Denomination, payment.Number).
		WithDetail("payment_id", payment.ID)
}

func (g *VerificationGate) notifyRejected(ctx context.Context, p *models.PendingPayment) {
	publish(ctx, g.publisher, g.log, notifications.Event{
		Type:         notifications.EventPaymentRejected,
		UserID:       p.BuyerID,
		Denomination: p.Denomination,
		TicketNumber: p.Number,
		PaymentID:    p.ID,
		Reason:       p.RejectReason,
	})
}
