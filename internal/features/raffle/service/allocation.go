package service

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	apperrors "raffle-backend/internal/common/errors"
	"raffle-backend/internal/common/logger"
	"raffle-backend/internal/common/metrics"
	"raffle-backend/internal/features/raffle/models"
	"raffle-backend/internal/utils/random"
)

// AllocationService is the only path that moves a ticket from available to sold.
type AllocationService struct {
	repo     allocationStore
	settings models.Settings
	rng      random.Source
	log      zerolog.Logger
}

func NewAllocationService(repo allocationStore, settings models.Settings, rng random.Source) *AllocationService {
	return &AllocationService{
		repo:     repo,
		settings: settings,
		rng:      rng,
		log:      logger.Component("allocation"),
	}
}

// CommitSale sells one ticket of the active round. It fails with CONFLICT when
// the ticket is not available and is never retried on the same number.
func (s *AllocationService) CommitSale(ctx context.Context, req models.SaleRequest) (*models.CommitResult, error) {
	return s.commit(ctx, req, models.CommitOptions{})
}

func (s *AllocationService) commit(ctx context.Context, req models.SaleRequest, opts models.CommitOptions) (*models.CommitResult, error) {
	if err := s.validate(req); err != nil {
		return nil, err
	}

	sale := &models.Sale{
		ID:           uuid.NewString(),
		Denomination: req.Denomination,
		Number:       req.Number,
		BuyerID:      req.BuyerID,
		Timestamp:    time.Now().UTC(),
		IsFree:       req.IsFree,
		FreeReason:   req.FreeReason,
	}

	start := time.Now()
	res, err := s.repo.CommitSale(ctx, sale, opts)
	if err != nil {
		mapped := commitError(req, err)
		if apperrors.Is(mapped, apperrors.ErrCodeConflict) {
			metrics.RecordConflict(req.Denomination)
		}
		s.log.Debug().
			Err(err).
			Int("denomination", req.Denomination).
			Int("ticket_number", req.Number).
			Int64("buyer_id", req.BuyerID).
			Msg("Ticket commit rejected")
		return nil, mapped
	}

	metrics.RecordSale(req.Denomination, string(req.FreeReason), time.Since(start))
	s.log.Info().
		Str("sale_id", sale.ID).
		Int("denomination", sale.Denomination).
		Int64("round_id", sale.RoundID).
		Int("ticket_number", sale.Number).
		Int64("buyer_id", sale.BuyerID).
		Str("free_reason", string(sale.FreeReason)).
		Int64("purchase_count", res.PurchaseCount).
		Msg("Ticket sold")
	return res, nil
}

func (s *AllocationService) validate(req models.SaleRequest) error {
	if err := validateDenomination(s.settings, req.Denomination); err != nil {
		return err
	}
	if !s.settings.IsValidNumber(req.Number) {
		return apperrors.NewValidationError("ticket_number", "out of range")
	}
	if req.BuyerID == 0 {
		return apperrors.NewValidationError("buyer_id", "required")
	}
	if req.IsFree != (req.FreeReason != models.FreeReasonNone) {
		return apperrors.NewValidationError("free_reason", "must be set exactly for free tickets")
	}
	return nil
}

// SelectRandomAvailable picks a uniformly random available number. The result
// may be stale by the time it is committed; the commit resolves that.
func (s *AllocationService) SelectRandomAvailable(ctx context.Context, den int) (int, error) {
	if err := validateDenomination(s.settings, den); err != nil {
		return 0, err
	}
	numbers, err := s.repo.ListAvailable(ctx, den)
	if err != nil {
		return 0, storeError("list available", err)
	}
	n, ok, err := random.Pick(s.rng, numbers)
	if err != nil {
		return 0, apperrors.Wrap(err, apperrors.ErrCodeInternal, "random selection failed")
	}
	if !ok {
		return 0, apperrors.NewNotAvailableError(den)
	}
	return n, nil
}
