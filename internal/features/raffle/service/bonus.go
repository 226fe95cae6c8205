package service

import (
	"context"
	"errors"

	"github.com/rs/zerolog"

	apperrors "raffle-backend/internal/common/errors"
	"raffle-backend/internal/common/logger"
	"raffle-backend/internal/common/metrics"
	"raffle-backend/internal/common/validation"
	"raffle-backend/internal/features/raffle/models"
	"raffle-backend/internal/features/raffle/repository"
	"raffle-backend/internal/service/notifications"
)

// BonusOutcome describes what a bonus evaluation did.
type BonusOutcome struct {
	Reason        models.FreeReason `json:"reason"`
	Awarded       bool              `json:"awarded"`
	Shortfall     bool              `json:"shortfall"`
	Count         int               `json:"count,omitempty"`
	Sale          *models.Sale      `json:"sale,omitempty"`
	PurchaseCount int64             `json:"purchase_count,omitempty"`
}

// BonusEngine awards loyalty and referral tickets through the allocation path.
type BonusEngine struct {
	alloc     *AllocationService
	accounts  repository.AccountRepository
	settings  models.Settings
	publisher notifications.Publisher
	log       zerolog.Logger
}

func NewBonusEngine(alloc *AllocationService, accounts repository.AccountRepository, settings models.Settings, publisher notifications.Publisher) *BonusEngine {
	return &BonusEngine{
		alloc:     alloc,
		accounts:  accounts,
		settings:  settings,
		publisher: publisher,
		log:       logger.Component("bonus"),
	}
}

// MaybeAwardLoyalty grants a free ticket when purchaseCount is a multiple of the
// loyalty threshold. purchaseCount must come from the commit that produced it, so
// every multiple is observed by exactly one caller. A loyalty ticket that itself
// lands on the next multiple earns another one, except with a threshold of 1.
// It returns nil when no bonus is due; Sale and PurchaseCount describe the last award.
func (b *BonusEngine) MaybeAwardLoyalty(ctx context.Context, buyerID int64, den int, purchaseCount int64) (*BonusOutcome, error) {
	threshold := int64(b.settings.LoyaltyThreshold)
	if purchaseCount <= 0 || purchaseCount%threshold != 0 {
		return nil, nil
	}

	var out *BonusOutcome
	for {
		step, err := b.awardLoyalty(ctx, buyerID, den, purchaseCount)
		if err != nil {
			return out, err
		}
		if out == nil {
			out = step
		} else if step.Awarded {
			out.Sale = step.Sale
			out.PurchaseCount = step.PurchaseCount
		} else {
			out.Shortfall = step.Shortfall
		}
		if step.Awarded {
			out.Count++
		}

		if !step.Awarded || threshold == 1 || step.PurchaseCount%threshold != 0 {
			return out, nil
		}
		b.log.Info().
			Int64("buyer_id", buyerID).
			Int("denomination", den).
			Int64("purchase_count", step.PurchaseCount).
			Msg("Loyalty ticket reached the next threshold")
		purchaseCount = step.PurchaseCount
	}
}

func (b *BonusEngine) awardLoyalty(ctx context.Context, buyerID int64, den int, purchaseCount int64) (*BonusOutcome, error) {
	res, err := b.awardFree(ctx, buyerID, den, models.FreeReasonLoyalty, models.CommitOptions{})
	switch {
	case err == nil:
		metrics.RecordBonus(string(models.FreeReasonLoyalty), "awarded")
		publish(ctx, b.publisher, b.log, notifications.Event{
			Type:         notifications.EventLoyaltyAwarded,
			UserID:       buyerID,
			Denomination: den,
			TicketNumber: res.Sale.Number,
			RoundID:      res.Sale.RoundID,
		})
		return &BonusOutcome{
			Reason:        models.FreeReasonLoyalty,
			Awarded:       true,
			Sale:          res.Sale,
			PurchaseCount: res.PurchaseCount,
		}, nil
	case apperrors.Is(err, apperrors.ErrCodeNotAvailable):
		metrics.RecordBonus(string(models.FreeReasonLoyalty), "shortfall")
		b.log.Warn().
			Int64("buyer_id", buyerID).
			Int("denomination", den).
			Int64("purchase_count", purchaseCount).
			Msg("Loyalty bonus earned but pool is empty")
		publish(ctx, b.publisher, b.log, notifications.Event{
			Type:         notifications.EventLoyaltyShortfall,
			UserID:       buyerID,
			Denomination: den,
		})
		return &BonusOutcome{Reason: models.FreeReasonLoyalty, Shortfall: true}, nil
	default:
		metrics.RecordBonus(string(models.FreeReasonLoyalty), "failed")
		return nil, err
	}
}

// ClaimReferralBonus grants the one-time referral ticket. The claimed flag is
// written in the same batch as the ticket, so a failed attempt can be retried.
func (b *BonusEngine) ClaimReferralBonus(ctx context.Context, buyerID int64) (*BonusOutcome, error) {
	acc, err := b.accounts.GetAccount(ctx, buyerID)
	if errors.Is(err, repository.ErrNotFound) {
		return nil, apperrors.NewNotFoundError("account", buyerID)
	}
	if err != nil {
		return nil, storeError("get account", err)
	}
	if acc.ReferralBonusClaimed {
		return nil, apperrors.NewAlreadyClaimedError(buyerID)
	}
	required := int64(b.settings.ReferralThreshold)
	if acc.ReferralCount < required {
		return nil, apperrors.NewNotEligibleError(acc.ReferralCount, required)
	}

	den := b.settings.ReferralBonusDenomination
	res, err := b.awardFree(ctx, buyerID, den, models.FreeReasonReferral, models.CommitOptions{ClaimReferral: true})
	if err != nil {
		outcome := "failed"
		if apperrors.Is(err, apperrors.ErrCodeNotAvailable) {
			outcome = "shortfall"
		}
		metrics.RecordBonus(string(models.FreeReasonReferral), outcome)
		return nil, err
	}

	metrics.RecordBonus(string(models.FreeReasonReferral), "awarded")
	b.log.Info().
		Int64("buyer_id", buyerID).
		Int("denomination", den).
		Int("ticket_number", res.Sale.Number).
		Msg("Referral bonus claimed")
	publish(ctx, b.publisher, b.log, notifications.Event{
		Type:         notifications.EventReferralAwarded,
		UserID:       buyerID,
		Denomination: den,
		TicketNumber: res.Sale.Number,
		RoundID:      res.Sale.RoundID,
	})
	return &BonusOutcome{
		Reason:        models.FreeReasonReferral,
		Awarded:       true,
		Sale:          res.Sale,
		PurchaseCount: res.PurchaseCount,
	}, nil
}

// awardFree commits a random free ticket, re-selecting after conflicts.
func (b *BonusEngine) awardFree(ctx context.Context, buyerID int64, den int, reason models.FreeReason, opts models.CommitOptions) (*models.CommitResult, error) {
	var lastErr error
	for attempt := 0; attempt < MaxBonusAttempts; attempt++ {
		number, err := b.alloc.SelectRandomAvailable(ctx, den)
		if err != nil {
			return nil, err
		}
		res, err := b.alloc.commit(ctx, models.SaleRequest{
			Denomination: den,
			Number:       number,
			BuyerID:      buyerID,
			IsFree:       true,
			FreeReason:   reason,
		}, opts)
		if err == nil {
			return res, nil
		}
		if !apperrors.Is(err, apperrors.ErrCodeConflict) {
			return nil, err
		}
		lastErr = err
		b.log.Debug().
			Int64("buyer_id", buyerID).
			Int("denomination", den).
			Int("ticket_number", number).
			Int("attempt", attempt+1).
			Msg("Bonus ticket taken concurrently, selecting another")
	}
	return nil, lastErr
}

// RecordReferral credits the owner of referrerCode with one referral. Unknown
// codes and self-referrals are ignored.
func (b *BonusEngine) RecordReferral(ctx context.Context, newUserID int64, referrerCode string) error {
	if !validation.IsReferralCode(referrerCode) {
		return nil
	}
	referrerID, err := b.accounts.FindByReferralCode(ctx, referrerCode)
	if errors.Is(err, repository.ErrNotFound) {
		b.log.Debug().Str("code", referrerCode).Int64("user_id", newUserID).Msg("Unknown referral code ignored")
		return nil
	}
	if err != nil {
		return storeError("find referral code", err)
	}
	if referrerID == newUserID {
		return nil
	}

	count, err := b.accounts.IncrementReferralCount(ctx, referrerID)
	if err != nil {
		return storeError("increment referral count", err)
	}
	b.log.Info().
		Int64("referrer_id", referrerID).
		Int64("user_id", newUserID).
		Int64("referral_count", count).
		Msg("Referral recorded")
	return nil
}
