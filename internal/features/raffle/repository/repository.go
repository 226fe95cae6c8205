package repository

import (
	"context"
	"errors"

	"raffle-backend/internal/features/raffle/models"
)

var (
	ErrNotFound       = errors.New("record not found")
	ErrConflict       = errors.New("concurrent modification or ticket not available")
	ErrDrawExists     = errors.New("draw already exists for round")
	ErrAlreadyClaimed = errors.New("referral bonus already claimed")
)

// PoolRepository stores the ticket pools of every denomination.
type PoolRepository interface {
	// InitializeRound replaces an incomplete or missing round with poolSize
	// available tickets under a fresh round id. A complete round is left untouched.
	InitializeRound(ctx context.Context, den, poolSize int) (roundID int64, created bool, err error)
	CurrentRound(ctx context.Context, den int) (int64, error)
	RoundStats(ctx context.Context, den int) (*models.PoolStats, error)
	// ListAvailable returns the available ticket numbers of the active round in ascending order.
	ListAvailable(ctx context.Context, den int) ([]int, error)
	GetTicket(ctx context.Context, den, number int) (*models.Ticket, error)
	// DeleteRound removes the tickets and sale records of a round. Missing records are ignored.
	DeleteRound(ctx context.Context, den int, roundID int64) error
}

// SaleRepository owns the Available to Sold transition.
type SaleRepository interface {
	// CommitSale sells a ticket of the active round to sale.BuyerID. The ticket
	// update, the sale record and the buyer's purchase counter are written in one
	// batch; ErrConflict is returned if the ticket is not available.
	CommitSale(ctx context.Context, sale *models.Sale, opts models.CommitOptions) (*models.CommitResult, error)
	ListRoundSales(ctx context.Context, den int, roundID int64) ([]*models.Sale, error)
	ListUserSales(ctx context.Context, userID int64) ([]*models.Sale, error)
}

type AccountRepository interface {
	// CreateAccount stores a new account. created is false if it already existed.
	CreateAccount(ctx context.Context, account *models.Account) (created bool, err error)
	GetAccount(ctx context.Context, userID int64) (*models.Account, error)
	FindByReferralCode(ctx context.Context, code string) (int64, error)
	IncrementReferralCount(ctx context.Context, userID int64) (int64, error)
}

type PaymentRepository interface {
	CreatePayment(ctx context.Context, payment *models.PendingPayment) error
	GetPayment(ctx context.Context, id string) (*models.PendingPayment, error)
	// ListPending returns pending payments, oldest first.
	ListPending(ctx context.Context) ([]*models.PendingPayment, error)
	// TransitionPayment applies update only if the payment is currently in status from.
	TransitionPayment(ctx context.Context, id string, from models.PaymentStatus, update models.PaymentUpdate) (*models.PendingPayment, error)
}

type DrawRepository interface {
	// CreateDraw stores the draw and credits every winner's balance in one batch.
	// ErrDrawExists is returned if the round already has a draw.
	CreateDraw(ctx context.Context, draw *models.Draw) error
	GetDraw(ctx context.Context, den int, roundID int64) (*models.Draw, error)
	ListDraws(ctx context.Context, den int, limit int) ([]*models.Draw, error)
}

// RaffleRepository is implemented by every store driver.
type RaffleRepository interface {
	PoolRepository
	SaleRepository
	AccountRepository
	PaymentRepository
	DrawRepository
	Ping(ctx context.Context) error
}
