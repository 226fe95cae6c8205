package service

import (
	"context"

	"raffle-backend/internal/features/raffle/models"
	"raffle-backend/internal/features/raffle/repository"
)

// Archiver keeps completed rounds after their live records are removed.
type Archiver interface {
	ArchiveRound(ctx context.Context, draw *models.Draw, sales []*models.Sale) error
	ListUserSales(ctx context.Context, userID int64, limit int) ([]*models.Sale, error)
}

// DrawLister is implemented by archives that can list past draws.
type DrawLister interface {
	ListDraws(ctx context.Context, den, limit int) ([]*models.Draw, error)
}

// SaleCompleter commits a sale and runs everything that follows a commit.
type SaleCompleter interface {
	CompleteSale(ctx context.Context, req models.SaleRequest) (*PurchaseOutcome, error)
}

type allocationStore interface {
	repository.PoolRepository
	repository.SaleRepository
}

type drawStore interface {
	repository.PoolRepository
	repository.SaleRepository
	repository.DrawRepository
}
