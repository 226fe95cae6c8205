package service

import (
	"errors"

	apperrors "raffle-backend/internal/common/errors"
	"raffle-backend/internal/features/raffle/models"
	"raffle-backend/internal/features/raffle/repository"
)

// storeError maps repository failures that have no domain meaning for op.
func storeError(op string, err error) error {
	if err == nil {
		return nil
	}
	if apperrors.IsAppError(err) {
		return err
	}
	return apperrors.NewStoreUnavailableError(op, err)
}

// commitError maps a failed ticket commit to the allocation taxonomy.
func commitError(req models.SaleRequest, err error) error {
	switch {
	case errors.Is(err, repository.ErrConflict):
		return apperrors.NewConflictError("ticket", "not available").
			WithDetail("denomination", req.Denomination).
			WithDetail("ticket_number", req.Number)
	case errors.Is(err, repository.ErrNotFound):
		return apperrors.NewNotAvailableError(req.Denomination).
			WithDetail("ticket_number", req.Number)
	case errors.Is(err, repository.ErrAlreadyClaimed):
		return apperrors.NewAlreadyClaimedError(req.BuyerID)
	default:
		return storeError("commit sale", err)
	}
}

func validateDenomination(settings models.Settings, den int) error {
	if !settings.IsDenomination(den) {
		return apperrors.NewInvalidDenominationError(den)
	}
	return nil
}
