package service

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	apperrors "raffle-backend/internal/common/errors"
	"raffle-backend/internal/common/logger"
	"raffle-backend/internal/common/validation"
	"raffle-backend/internal/features/raffle/models"
	"raffle-backend/internal/features/raffle/repository"
	"raffle-backend/internal/service/notifications"
)

// PurchaseOutcome reports a committed sale and everything it triggered.
type PurchaseOutcome struct {
	Sale          *models.Sale  `json:"sale"`
	PurchaseCount int64         `json:"purchase_count"`
	Loyalty       *BonusOutcome `json:"loyalty,omitempty"`
	Draw          *models.Draw  `json:"draw,omitempty"`
}

// UserHistory is a user's tickets in live rounds plus archived ones.
type UserHistory struct {
	Active   []*models.Sale `json:"active"`
	Archived []*models.Sale `json:"archived"`
	Draws    []*models.Draw `json:"recent_draws"`
}

// RaffleService orchestrates a purchase: commit, loyalty check, draw trigger.
type RaffleService struct {
	store     repository.RaffleRepository
	settings  models.Settings
	alloc     *AllocationService
	bonus     *BonusEngine
	draws     *DrawEngine
	archive   Archiver
	publisher notifications.Publisher
	payment   models.PaymentInstructions
	log       zerolog.Logger
}

func NewRaffleService(store repository.RaffleRepository, settings models.Settings, alloc *AllocationService, bonus *BonusEngine, draws *DrawEngine, archive Archiver, publisher notifications.Publisher, payment models.PaymentInstructions) *RaffleService {
	return &RaffleService{
		store:     store,
		settings:  settings,
		alloc:     alloc,
		bonus:     bonus,
		draws:     draws,
		archive:   archive,
		publisher: publisher,
		payment:   payment,
		log:       logger.Component("raffle"),
	}
}

// CompleteSale commits a sale, then evaluates loyalty and the draw trigger.
// Failures after the commit are logged and never undo the sale.
func (s *RaffleService) CompleteSale(ctx context.Context, req models.SaleRequest) (*PurchaseOutcome, error) {
	res, err := s.alloc.CommitSale(ctx, req)
	if err != nil {
		return nil, err
	}
	publish(ctx, s.publisher, s.log, notifications.Event{
		Type:         notifications.EventTicketActivated,
		UserID:       res.Sale.BuyerID,
		Denomination: res.Sale.Denomination,
		TicketNumber: res.Sale.Number,
		RoundID:      res.Sale.RoundID,
		Reason:       string(res.Sale.FreeReason),
	})

	out := &PurchaseOutcome{Sale: res.Sale, PurchaseCount: res.PurchaseCount}
	s.afterCommit(ctx, out)
	return out, nil
}

// ClaimReferralBonus grants the referral ticket and runs the post-commit checks.
func (s *RaffleService) ClaimReferralBonus(ctx context.Context, buyerID int64) (*PurchaseOutcome, error) {
	bonus, err := s.bonus.ClaimReferralBonus(ctx, buyerID)
	if err != nil {
		return nil, err
	}
	out := &PurchaseOutcome{Sale: bonus.Sale, PurchaseCount: bonus.PurchaseCount}
	s.afterCommit(ctx, out)
	return out, nil
}

func (s *RaffleService) afterCommit(ctx context.Context, out *PurchaseOutcome) {
	sale := out.Sale
	// With a threshold of 1 a loyalty ticket would earn another one forever.
	if sale.FreeReason != models.FreeReasonLoyalty || s.settings.LoyaltyThreshold > 1 {
		loyalty, err := s.bonus.MaybeAwardLoyalty(ctx, sale.BuyerID, sale.Denomination, out.PurchaseCount)
		if err != nil {
			s.log.Error().
				Err(err).
				Int64("buyer_id", sale.BuyerID).
				Int("denomination", sale.Denomination).
				Int64("purchase_count", out.PurchaseCount).
				Msg("Loyalty bonus could not be awarded")
		}
		out.Loyalty = loyalty
	}

	draw, err := s.draws.CheckAndDraw(ctx, sale.Denomination)
	if err != nil {
		s.log.Error().Err(err).Int("denomination", sale.Denomination).Msg("Draw check failed")
	}
	out.Draw = draw
}

// SubmitPayment records a buyer's payment proof for one ticket. The ticket must
// be available now, but nothing is reserved until an admin verifies the payment.
func (s *RaffleService) SubmitPayment(ctx context.Context, buyerID int64, den, number int, proofRef string) (*models.PendingPayment, error) {
	if err := validateDenomination(s.settings, den); err != nil {
		return nil, err
	}
	if !s.settings.IsValidNumber(number) {
		return nil, apperrors.NewValidationError("ticket_number", "out of range")
	}
	proofRef, err := validation.ProofRef(proofRef)
	if err != nil {
		return nil, apperrors.NewValidationError("proof_ref", err.Error())
	}

	ticket, err := s.store.GetTicket(ctx, den, number)
	if errors.Is(err, repository.ErrNotFound) {
		return nil, apperrors.NewNotAvailableError(den)
	}
	if err != nil {
		return nil, storeError("get ticket", err)
	}
	if ticket.State != models.TicketAvailable {
		return nil, apperrors.NewConflictError("ticket", "already sold").
			WithDetail("denomination", den).
			WithDetail("ticket_number", number)
	}

	payment := &models.PendingPayment{
		ID:           uuid.NewString(),
		BuyerID:      buyerID,
		Denomination: den,
		Number:       number,
		ProofRef:     proofRef,
		Status:       models.PaymentPending,
		Timestamp:    time.Now().UTC(),
	}
	if err := s.store.CreatePayment(ctx, payment); err != nil {
		return nil, storeError("create payment", err)
	}

	s.log.Info().
		Str("payment_id", payment.ID).
		Int64("buyer_id", buyerID).
		Int("denomination", den).
		Int("ticket_number", number).
		Msg("Payment submitted for verification")
	publish(ctx, s.publisher, s.log, notifications.Event{
		Type:         notifications.EventPaymentSubmitted,
		UserID:       buyerID,
		Denomination: den,
		TicketNumber: number,
		PaymentID:    payment.ID,
		ProofRef:     proofRef,
	})
	return payment, nil
}

// History returns the user's tickets. Archive failures degrade to live data only.
func (s *RaffleService) History(ctx context.Context, userID int64) (*UserHistory, error) {
	active, err := s.store.ListUserSales(ctx, userID)
	if err != nil {
		return nil, storeError("list user sales", err)
	}
	h := &UserHistory{Active: active}
	if s.archive != nil {
		archived, err := s.archive.ListUserSales(ctx, userID, ArchivedSalesLimit)
		if err != nil {
			s.log.Warn().Err(err).Int64("user_id", userID).Msg("Archived sales unavailable")
		} else {
			h.Archived = archived
		}
	}
	draws, err := s.draws.RecentDraws(ctx, 0, DefaultDrawsLimit)
	if err != nil {
		return nil, err
	}
	h.Draws = draws
	return h, nil
}

// PaymentInstructions tells buyers where to send the money.
func (s *RaffleService) PaymentInstructions() models.PaymentInstructions {
	return s.payment
}

func (s *RaffleService) Settings() models.Settings {
	return s.settings.Clone()
}
