package service

import (
	"context"
	"errors"
	"time"

	"github.com/rs/zerolog"

	apperrors "raffle-backend/internal/common/errors"
	"raffle-backend/internal/common/logger"
	"raffle-backend/internal/common/validation"
	"raffle-backend/internal/features/raffle/models"
	"raffle-backend/internal/features/raffle/repository"
)

// Profile is what the chat platform tells us about a user.
type Profile struct {
	ID        int64
	Username  string
	FirstName string
}

type AccountService struct {
	accounts repository.AccountRepository
	bonus    *BonusEngine
	log      zerolog.Logger
}

func NewAccountService(accounts repository.AccountRepository, bonus *BonusEngine) *AccountService {
	return &AccountService{
		accounts: accounts,
		bonus:    bonus,
		log:      logger.Component("accounts"),
	}
}

// GetOrCreate returns the user's account, creating it on first contact. A
// referral code only counts when the account is created.
func (s *AccountService) GetOrCreate(ctx context.Context, profile Profile, referrerCode string) (*models.Account, bool, error) {
	if profile.ID == 0 {
		return nil, false, apperrors.NewValidationError("user_id", "required")
	}

	acc := &models.Account{
		ID:           profile.ID,
		Username:     validation.Username(profile.Username),
		FirstName:    validation.FirstName(profile.FirstName),
		ReferralCode: models.ReferralCodeFor(profile.ID),
		CreatedAt:    time.Now().UTC(),
	}
	if validation.IsReferralCode(referrerCode) {
		if referrerID, err := s.accounts.FindByReferralCode(ctx, referrerCode); err == nil && referrerID != profile.ID {
			acc.ReferredBy = referrerID
		}
	}

	created, err := s.accounts.CreateAccount(ctx, acc)
	if err != nil {
		return nil, false, storeError("create account", err)
	}
	if created {
		s.log.Info().Int64("user_id", profile.ID).Int64("referred_by", acc.ReferredBy).Msg("Account created")
		if acc.ReferredBy != 0 {
			if err := s.bonus.RecordReferral(ctx, profile.ID, referrerCode); err != nil {
				s.log.Error().Err(err).Int64("user_id", profile.ID).Msg("Failed to record referral")
			}
		}
	}

	stored, err := s.Get(ctx, profile.ID)
	if err != nil {
		return nil, false, err
	}
	return stored, created, nil
}

func (s *AccountService) Get(ctx context.Context, userID int64) (*models.Account, error) {
	acc, err := s.accounts.GetAccount(ctx, userID)
	if errors.Is(err, repository.ErrNotFound) {
		return nil, apperrors.NewNotFoundError("account", userID)
	}
	if err != nil {
		return nil, storeError("get account", err)
	}
	return acc, nil
}
