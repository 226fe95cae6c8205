package service

import (
	"context"
	"errors"
	"fmt"
	"iter"

	"github.com/rs/zerolog"

	"raffle-backend/internal/common/logger"
	"raffle-backend/internal/features/raffle/models"
	"raffle-backend/internal/features/raffle/repository"
	"raffle-backend/internal/service/notifications"
)

// PoolService manages the per-denomination ticket pools and their rounds.
type PoolService struct {
	repo      repository.PoolRepository
	settings  models.Settings
	publisher notifications.Publisher
	log       zerolog.Logger
}

func NewPoolService(repo repository.PoolRepository, settings models.Settings, publisher notifications.Publisher) *PoolService {
	return &PoolService{
		repo:      repo,
		settings:  settings,
		publisher: publisher,
		log:       logger.Component("pool"),
	}
}

// InitializeRound makes sure den has a complete round. A complete round is left as is.
func (s *PoolService) InitializeRound(ctx context.Context, den int) (*models.PoolStats, error) {
	if err := validateDenomination(s.settings, den); err != nil {
		return nil, err
	}
	roundID, created, err := s.repo.InitializeRound(ctx, den, s.settings.PoolSize)
	if err != nil {
		return nil, storeError("initialize round", err)
	}
	if created {
		s.log.Info().
			Int("denomination", den).
			Int64("round_id", roundID).
			Int("pool_size", s.settings.PoolSize).
			Msg("New round started")
		publish(ctx, s.publisher, s.log, notifications.Event{
			Type:         notifications.EventRoundStarted,
			Denomination: den,
			RoundID:      roundID,
		})
	}
	return s.Stats(ctx, den)
}

// InitializeAll initializes every configured denomination and reports all failures.
func (s *PoolService) InitializeAll(ctx context.Context) error {
	var errs []error
	for _, den := range s.settings.Denominations {
		if _, err := s.InitializeRound(ctx, den); err != nil {
			errs = append(errs, fmt.Errorf("denomination %d: %w", den, err))
		}
	}
	return errors.Join(errs...)
}

// ListAvailable yields the available ticket numbers of the active round in
// ascending order. Every range over the sequence reads the store again.
func (s *PoolService) ListAvailable(ctx context.Context, den int) iter.Seq2[int, error] {
	return func(yield func(int, error) bool) {
		if err := validateDenomination(s.settings, den); err != nil {
			yield(0, err)
			return
		}
		numbers, err := s.repo.ListAvailable(ctx, den)
		if err != nil {
			yield(0, storeError("list available", err))
			return
		}
		for _, n := range numbers {
			if !yield(n, nil) {
				return
			}
		}
	}
}

// AvailableNumbers collects ListAvailable into a slice.
func (s *PoolService) AvailableNumbers(ctx context.Context, den int) ([]int, error) {
	var out []int
	for n, err := range s.ListAvailable(ctx, den) {
		if err != nil {
			return nil, err
		}
		out = append(out, n)
	}
	return out, nil
}

func (s *PoolService) Stats(ctx context.Context, den int) (*models.PoolStats, error) {
	if err := validateDenomination(s.settings, den); err != nil {
		return nil, err
	}
	stats, err := s.repo.RoundStats(ctx, den)
	if err != nil {
		return nil, storeError("round stats", err)
	}
	stats.PoolSize = s.settings.PoolSize
	return stats, nil
}

func (s *PoolService) AllStats(ctx context.Context) ([]*models.PoolStats, error) {
	out := make([]*models.PoolStats, 0, len(s.settings.Denominations))
	for _, den := range s.settings.Denominations {
		stats, err := s.Stats(ctx, den)
		if err != nil {
			return nil, err
		}
		out = append(out, stats)
	}
	return out, nil
}

func publish(ctx context.Context, p notifications.Publisher, log zerolog.Logger, evt notifications.Event) {
	if p == nil {
		return
	}
	if err := p.Publish(ctx, evt); err != nil {
		log.Warn().Err(err).Str("event", string(evt.Type)).Msg("Failed to publish event")
	}
}
