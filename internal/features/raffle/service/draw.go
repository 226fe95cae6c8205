package service

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	apperrors "raffle-backend/internal/common/errors"
	"raffle-backend/internal/common/logger"
	"raffle-backend/internal/common/metrics"
	"raffle-backend/internal/features/raffle/models"
	"raffle-backend/internal/features/raffle/repository"
	"raffle-backend/internal/service/notifications"
	"raffle-backend/internal/utils/random"
)

// DrawEngine detects sold-out pools, selects winners and rolls pools over.
type DrawEngine struct {
	store     drawStore
	pool      *PoolService
	archive   Archiver
	settings  models.Settings
	rng       random.Source
	publisher notifications.Publisher
	log       zerolog.Logger
}

func NewDrawEngine(store drawStore, pool *PoolService, archive Archiver, settings models.Settings, rng random.Source, publisher notifications.Publisher) *DrawEngine {
	return &DrawEngine{
		store:     store,
		pool:      pool,
		archive:   archive,
		settings:  settings,
		rng:       rng,
		publisher: publisher,
		log:       logger.Component("draw"),
	}
}

// SelectWinners shuffles the round's sales and walks them greedily, skipping any
// record whose ticket number or buyer already won. Prizes follow rank order.
func SelectWinners(den int, sales []*models.Sale, settings models.Settings, rng random.Source) ([]models.Winner, error) {
	if len(sales) < settings.MinDrawEntries {
		return nil, apperrors.NewInsufficientEntriesError(den, len(sales), settings.MinDrawEntries)
	}

	// Stores list sales in no particular order; fix one so a seeded source is reproducible.
	entries := slices.Clone(sales)
	slices.SortFunc(entries, func(a, b *models.Sale) int {
		if c := a.Timestamp.Compare(b.Timestamp); c != 0 {
			return c
		}
		return a.Number - b.Number
	})
	if err := random.ShuffleWith(rng, entries); err != nil {
		return nil, apperrors.Wrap(err, apperrors.ErrCodeInternal, "shuffle failed")
	}

	usedNumbers := make(map[int]bool, settings.WinnersPerDraw)
	usedBuyers := make(map[int64]bool, settings.WinnersPerDraw)
	winners := make([]models.Winner, 0, settings.WinnersPerDraw)
	for _, sale := range entries {
		if len(winners) == settings.WinnersPerDraw {
			break
		}
		if usedNumbers[sale.Number] || usedBuyers[sale.BuyerID] {
			continue
		}
		usedNumbers[sale.Number] = true
		usedBuyers[sale.BuyerID] = true
		rank := len(winners) + 1
		winners = append(winners, models.Winner{
			Rank:         rank,
			TicketNumber: sale.Number,
			BuyerID:      sale.BuyerID,
			SaleID:       sale.ID,
			Prize:        settings.Prize(den, rank),
		})
	}
	return winners, nil
}

// CheckAndDraw runs the draw when the active round is sold out and has no draw
// yet. A round that already has a draw is rolled over instead. It returns the
// draw only to the caller that created it.
func (e *DrawEngine) CheckAndDraw(ctx context.Context, den int) (*models.Draw, error) {
	stats, err := e.pool.Stats(ctx, den)
	if err != nil {
		return nil, err
	}
	if stats.RoundID == 0 {
		return nil, nil
	}

	_, err = e.store.GetDraw(ctx, den, stats.RoundID)
	switch {
	case err == nil:
		return nil, e.Rollover(ctx, den, stats.RoundID)
	case !errors.Is(err, repository.ErrNotFound):
		return nil, storeError("get draw", err)
	}

	if !stats.SoldOut() {
		return nil, nil
	}
	return e.runDraw(ctx, den, stats.RoundID, false)
}

// ForceDraw draws the active round regardless of how many tickets are sold.
func (e *DrawEngine) ForceDraw(ctx context.Context, den int) (*models.Draw, error) {
	stats, err := e.pool.Stats(ctx, den)
	if err != nil {
		return nil, err
	}
	if stats.RoundID == 0 {
		return nil, apperrors.NewNotAvailableError(den)
	}
	if _, err := e.store.GetDraw(ctx, den, stats.RoundID); err == nil {
		return nil, apperrors.NewConflictError("draw", "round already drawn")
	} else if !errors.Is(err, repository.ErrNotFound) {
		return nil, storeError("get draw", err)
	}

	draw, err := e.runDraw(ctx, den, stats.RoundID, true)
	if err != nil {
		return nil, err
	}
	if draw == nil {
		return nil, apperrors.NewConflictError("draw", "round already drawn")
	}
	return draw, nil
}

func (e *DrawEngine) runDraw(ctx context.Context, den int, roundID int64, forced bool) (*models.Draw, error) {
	sales, err := e.store.ListRoundSales(ctx, den, roundID)
	if err != nil {
		return nil, e.postpone(ctx, den, roundID, storeError("list round sales", err))
	}

	winners, err := SelectWinners(den, sales, e.settings, e.rng)
	if err != nil {
		return nil, e.postpone(ctx, den, roundID, err)
	}

	draw := &models.Draw{
		ID:           uuid.NewString(),
		Denomination: den,
		RoundID:      roundID,
		Timestamp:    time.Now().UTC(),
		Entries:      len(sales),
		Winners:      winners,
		Forced:       forced,
	}
	if err := e.store.CreateDraw(ctx, draw); err != nil {
		if errors.Is(err, repository.ErrDrawExists) {
			metrics.RecordDraw(den, "duplicate")
			e.log.Debug().Int("denomination", den).Int64("round_id", roundID).Msg("Draw already created by another caller")
			return nil, nil
		}
		return nil, e.postpone(ctx, den, roundID, storeError("create draw", err))
	}

	metrics.RecordDraw(den, "completed")
	e.log.Info().
		Str("draw_id", draw.ID).
		Int("denomination", den).
		Int64("round_id", roundID).
		Int("entries", draw.Entries).
		Int("winners", len(winners)).
		Int64("total_prize", draw.TotalPrize()).
		Bool("forced", forced).
		Msg("Draw completed")

	publish(ctx, e.publisher, e.log, notifications.Event{
		Type:         notifications.EventDrawCompleted,
		Denomination: den,
		RoundID:      roundID,
		Winners:      winners,
	})
	for _, w := range winners {
		publish(ctx, e.publisher, e.log, notifications.Event{
			Type:         notifications.EventPrizeWon,
			UserID:       w.BuyerID,
			Denomination: den,
			TicketNumber: w.TicketNumber,
			RoundID:      roundID,
			Amount:       w.Prize,
			Rank:         w.Rank,
		})
	}

	if err := e.Rollover(ctx, den, roundID); err != nil {
		// The reconciler retries the rollover.
		e.log.Error().Err(err).Int("denomination", den).Int64("round_id", roundID).Msg("Rollover failed after draw")
	}
	return draw, nil
}

func (e *DrawEngine) postpone(ctx context.Context, den int, roundID int64, cause error) error {
	outcome := "failed"
	if apperrors.Is(cause, apperrors.ErrCodeInsufficientEntries) {
		outcome = "insufficient"
	}
	metrics.RecordDraw(den, outcome)
	e.log.Error().
		Err(cause).
		Int("denomination", den).
		Int64("round_id", roundID).
		Msg("Draw postponed")
	publish(ctx, e.publisher, e.log, notifications.Event{
		Type:         notifications.EventDrawPostponed,
		Denomination: den,
		RoundID:      roundID,
		Reason:       cause.Error(),
	})
	return cause
}

// Rollover archives a drawn round, removes its tickets and sales and starts a
// new round. Each step tolerates having run before, so a crashed rollover is
// completed by running it again.
func (e *DrawEngine) Rollover(ctx context.Context, den int, roundID int64) error {
	draw, err := e.store.GetDraw(ctx, den, roundID)
	if errors.Is(err, repository.ErrNotFound) {
		return fmt.Errorf("rollover of round %d/%d without a draw", den, roundID)
	}
	if err != nil {
		return storeError("get draw", err)
	}

	if e.archive != nil {
		sales, err := e.store.ListRoundSales(ctx, den, roundID)
		if err != nil {
			return storeError("list round sales", err)
		}
		if err := e.archive.ArchiveRound(ctx, draw, sales); err != nil {
			return apperrors.NewDatabaseError("archive round", err)
		}
	}

	if err := e.store.DeleteRound(ctx, den, roundID); err != nil {
		return storeError("delete round", err)
	}
	stats, err := e.pool.InitializeRound(ctx, den)
	if err != nil {
		return err
	}

	metrics.RecordRollover(den)
	e.log.Info().
		Int("denomination", den).
		Int64("previous_round_id", roundID).
		Int64("round_id", stats.RoundID).
		Msg("Pool rolled over")
	return nil
}

// Reconcile repairs a denomination after crashes: it recreates a missing
// round, finishes pending rollovers and runs overdue draws.
func (e *DrawEngine) Reconcile(ctx context.Context, den int) error {
	if _, err := e.pool.InitializeRound(ctx, den); err != nil {
		return err
	}
	_, err := e.CheckAndDraw(ctx, den)
	return err
}

// RecentDraws lists the latest draws, newest first. den 0 means all denominations.
func (e *DrawEngine) RecentDraws(ctx context.Context, den, limit int) ([]*models.Draw, error) {
	if den != 0 {
		if err := validateDenomination(e.settings, den); err != nil {
			return nil, err
		}
	}
	if limit <= 0 {
		limit = DefaultDrawsLimit
	}
	draws, err := e.store.ListDraws(ctx, den, limit)
	if err != nil {
		return nil, storeError("list draws", err)
	}
	return draws, nil
}

// ArchivedDraws lists draws kept in the long-term archive, newest first. It is
// empty when no archive is configured.
func (e *DrawEngine) ArchivedDraws(ctx context.Context, den, limit int) ([]*models.Draw, error) {
	if den != 0 {
		if err := validateDenomination(e.settings, den); err != nil {
			return nil, err
		}
	}
	lister, ok := e.archive.(DrawLister)
	if !ok {
		return []*models.Draw{}, nil
	}
	if limit <= 0 {
		limit = DefaultDrawsLimit
	}
	draws, err := lister.ListDraws(ctx, den, limit)
	if err != nil {
		return nil, storeError("list archived draws", err)
	}
	return draws, nil
}
