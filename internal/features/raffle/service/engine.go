package service

import (
	"fmt"

	"raffle-backend/internal/features/raffle/models"
	"raffle-backend/internal/features/raffle/repository"
	"raffle-backend/internal/service/notifications"
	"raffle-backend/internal/utils/random"
)

// Options carries the optional collaborators of the engine.
type Options struct {
	Publisher notifications.Publisher
	Archive   Archiver
	Rand      random.Source
	AdminIDs  []int64
	Payment   models.PaymentInstructions
}

// Engine wires every raffle component around one store.
type Engine struct {
	Settings     models.Settings
	Pool         *PoolService
	Allocation   *AllocationService
	Bonus        *BonusEngine
	Draws        *DrawEngine
	Raffle       *RaffleService
	Accounts     *AccountService
	Verification *VerificationGate
}

func NewEngine(store repository.RaffleRepository, settings models.Settings, opts Options) (*Engine, error) {
	settings = settings.Clone()
	if err := settings.Validate(); err != nil {
		return nil, fmt.Errorf("invalid raffle settings: %w", err)
	}
	if opts.Publisher == nil {
		opts.Publisher = notifications.Nop{}
	}
	if opts.Rand == nil {
		opts.Rand = random.Crypto()
	}

	pool := NewPoolService(store, settings, opts.Publisher)
	alloc := NewAllocationService(store, settings, opts.Rand)
	bonus := NewBonusEngine(alloc, store, settings, opts.Publisher)
	draws := NewDrawEngine(store, pool, opts.Archive, settings, opts.Rand, opts.Publisher)
	raffle := NewRaffleService(store, settings, alloc, bonus, draws, opts.Archive, opts.Publisher, opts.Payment)

	return &Engine{
		Settings:     settings,
		Pool:         pool,
		Allocation:   alloc,
		Bonus:        bonus,
		Draws:        draws,
		Raffle:       raffle,
		Accounts:     NewAccountService(store, bonus),
		Verification: NewVerificationGate(store, raffle, opts.AdminIDs, opts.Publisher),
	}, nil
}
