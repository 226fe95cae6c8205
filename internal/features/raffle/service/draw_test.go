package service

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	apperrors "raffle-backend/internal/common/errors"
	"raffle-backend/internal/features/raffle/models"
	"raffle-backend/internal/service/notifications"
	"raffle-backend/internal/utils/random"
)

func salesFor(buyers ...int64) []*models.Sale {
	base := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	sales := make([]*models.Sale, len(buyers))
	for i, b := range buyers {
		sales[i] = &models.Sale{
			ID:           fmt.Sprintf("sale-%d", i+1),
			Denomination: 100,
			Number:       i + 1,
			BuyerID:      b,
			Timestamp:    base.Add(time.Duration(i) * time.Second),
		}
	}
	return sales
}

func TestSelectWinners_DistinctBuyersAndNumbers(t *testing.T) {
	settings := models.DefaultSettings()
	sales := salesFor(1, 1, 1, 1, 2, 3, 1)

	for seed := uint64(0); seed < 50; seed++ {
		winners, err := SelectWinners(100, sales, settings, random.NewSeeded(seed))
		require.NoError(t, err)
		require.Len(t, winners, 3)

		buyers := map[int64]bool{}
		numbers := map[int]bool{}
		for i, w := range winners {
			assert.Equal(t, i+1, w.Rank)
			assert.Equal(t, settings.Rewards[100][i], w.Prize)
			assert.False(t, buyers[w.BuyerID], "buyer %d won twice", w.BuyerID)
			assert.False(t, numbers[w.TicketNumber], "ticket %d won twice", w.TicketNumber)
			buyers[w.BuyerID] = true
			numbers[w.TicketNumber] = true
		}
		assert.Equal(t, map[int64]bool{1: true, 2: true, 3: true}, buyers)
	}
}

func TestSelectWinners_SeededIsReproducible(t *testing.T) {
	settings := models.DefaultSettings()
	sales := salesFor(1, 2, 3, 4, 5, 6, 7, 8)

	first, err := SelectWinners(100, sales, settings, random.NewSeeded(99))
	require.NoError(t, err)

	// Input order does not matter.
	reversed := make([]*models.Sale, len(sales))
	for i, s := range sales {
		reversed[len(sales)-1-i] = s
	}
	second, err := SelectWinners(100, reversed, settings, random.NewSeeded(99))
	require.NoError(t, err)
	assert.Equal(t, first, second)
}

func TestSelectWinners_FewerDistinctBuyersThanPrizes(t *testing.T) {
	winners, err := SelectWinners(100, salesFor(1, 1, 2, 2), models.DefaultSettings(), random.NewSeeded(1))
	require.NoError(t, err)
	assert.Len(t, winners, 2)
}

func TestSelectWinners_InsufficientEntries(t *testing.T) {
	_, err := SelectWinners(100, salesFor(1, 2), models.DefaultSettings(), random.NewSeeded(1))
	assert.True(t, apperrors.Is(err, apperrors.ErrCodeInsufficientEntries))
}

// Fresh round of 100: the 100th sale triggers exactly one draw and a new round.
func TestScenario_SellOutTriggersDrawAndRollover(t *testing.T) {
	env := newTestEnv(t, models.DefaultSettings())
	ctx := context.Background()

	before, err := env.engine.Pool.Stats(ctx, 100)
	require.NoError(t, err)

	for n := 1; n <= 99; n++ {
		out := env.buy(t, 100, n, int64(1000+n))
		assert.Nil(t, out.Draw)
	}
	_, err = env.store.GetDraw(ctx, 100, before.RoundID)
	require.Error(t, err)

	out := env.buy(t, 100, 100, 1100)
	require.NotNil(t, out.Draw)
	draw := out.Draw
	assert.Equal(t, before.RoundID, draw.RoundID)
	assert.Equal(t, 100, draw.Entries)
	require.Len(t, draw.Winners, 3)
	assert.Equal(t, []int64{5000, 2000, 1000}, []int64{draw.Winners[0].Prize, draw.Winners[1].Prize, draw.Winners[2].Prize})

	after, err := env.engine.Pool.Stats(ctx, 100)
	require.NoError(t, err)
	assert.Greater(t, after.RoundID, before.RoundID)
	assert.Equal(t, 100, after.Available)
	assert.Zero(t, after.Sold)

	history, err := env.engine.Draws.RecentDraws(ctx, 100, 0)
	require.NoError(t, err)
	assert.Len(t, history, 1)

	assert.Len(t, env.events.ofType(notifications.EventPrizeWon), 3)
	assert.Len(t, env.events.ofType(notifications.EventDrawCompleted), 1)
}

// Two sales and a forced draw: no record, pool untouched.
func TestScenario_ForcedDrawWithTooFewEntries(t *testing.T) {
	env := newTestEnv(t, models.DefaultSettings())
	ctx := context.Background()

	env.buy(t, 100, 10, 1)
	env.buy(t, 100, 20, 2)
	before, err := env.engine.Pool.Stats(ctx, 100)
	require.NoError(t, err)

	_, err = env.engine.Draws.ForceDraw(ctx, 100)
	assert.True(t, apperrors.Is(err, apperrors.ErrCodeInsufficientEntries))

	_, err = env.store.GetDraw(ctx, 100, before.RoundID)
	assert.Error(t, err)

	after, err := env.engine.Pool.Stats(ctx, 100)
	require.NoError(t, err)
	assert.Equal(t, before, after)
	assert.Len(t, env.events.ofType(notifications.EventDrawPostponed), 1)
}

func TestForceDraw_CompletesPartialRound(t *testing.T) {
	env := newTestEnv(t, smallSettings())
	ctx := context.Background()

	env.buy(t, 200, 1, 1)
	env.buy(t, 200, 2, 2)
	env.buy(t, 200, 3, 3)
	before, err := env.engine.Pool.Stats(ctx, 200)
	require.NoError(t, err)

	draw, err := env.engine.Draws.ForceDraw(ctx, 200)
	require.NoError(t, err)
	assert.True(t, draw.Forced)
	assert.Len(t, draw.Winners, 3)

	after, err := env.engine.Pool.Stats(ctx, 200)
	require.NoError(t, err)
	assert.NotEqual(t, before.RoundID, after.RoundID)
	assert.Equal(t, 5, after.Available)
}

func TestCheckAndDraw_FinishesInterruptedRollover(t *testing.T) {
	env := newTestEnv(t, smallSettings())
	ctx := context.Background()

	stats, err := env.engine.Pool.Stats(ctx, 100)
	require.NoError(t, err)
	// A draw was stored but the process died before the rollover.
	require.NoError(t, env.store.CreateDraw(ctx, &models.Draw{ID: "d", Denomination: 100, RoundID: stats.RoundID}))

	draw, err := env.engine.Draws.CheckAndDraw(ctx, 100)
	require.NoError(t, err)
	assert.Nil(t, draw)

	after, err := env.engine.Pool.Stats(ctx, 100)
	require.NoError(t, err)
	assert.Greater(t, after.RoundID, stats.RoundID)

	_, err = env.engine.Allocation.CommitSale(ctx, models.SaleRequest{Denomination: 100, Number: 1, BuyerID: 1})
	assert.NoError(t, err)
}

func TestCheckAndDraw_NotSoldOut(t *testing.T) {
	env := newTestEnv(t, smallSettings())
	env.buy(t, 100, 1, 1)

	draw, err := env.engine.Draws.CheckAndDraw(context.Background(), 100)
	require.NoError(t, err)
	assert.Nil(t, draw)
}

type recordingArchive struct {
	draws []*models.Draw
	sales map[string][]*models.Sale
}

func (a *recordingArchive) ArchiveRound(_ context.Context, draw *models.Draw, sales []*models.Sale) error {
	if a.sales == nil {
		a.sales = map[string][]*models.Sale{}
	}
	a.draws = append(a.draws, draw)
	a.sales[draw.ID] = sales
	return nil
}

func (a *recordingArchive) ListUserSales(_ context.Context, userID int64, _ int) ([]*models.Sale, error) {
	var out []*models.Sale
	for _, sales := range a.sales {
		for _, s := range sales {
			if s.BuyerID == userID {
				out = append(out, s)
			}
		}
	}
	return out, nil
}

func (a *recordingArchive) ListDraws(_ context.Context, den, limit int) ([]*models.Draw, error) {
	var out []*models.Draw
	for i := len(a.draws) - 1; i >= 0 && len(out) < limit; i-- {
		if den == 0 || a.draws[i].Denomination == den {
			out = append(out, a.draws[i])
		}
	}
	return out, nil
}

func TestRollover_ArchivesRound(t *testing.T) {
	store := newTestEnv(t, smallSettings()).store
	archive := &recordingArchive{}
	engine, err := NewEngine(store, smallSettings(), Options{Archive: archive, Rand: random.NewSeeded(3)})
	require.NoError(t, err)
	ctx := context.Background()

	for n := 1; n <= 5; n++ {
		_, err := engine.Raffle.CompleteSale(ctx, models.SaleRequest{Denomination: 100, Number: n, BuyerID: int64(n)})
		require.NoError(t, err)
	}

	require.Len(t, archive.draws, 1)
	assert.Len(t, archive.sales[archive.draws[0].ID], 5)

	history, err := engine.Raffle.History(ctx, 3)
	require.NoError(t, err)
	assert.Empty(t, history.Active)
	assert.Len(t, history.Archived, 1)

	archived, err := engine.Draws.ArchivedDraws(ctx, 100, 0)
	require.NoError(t, err)
	require.Len(t, archived, 1)
	assert.Equal(t, archive.draws[0].ID, archived[0].ID)
}

func TestArchivedDraws_WithoutArchive(t *testing.T) {
	env := newTestEnv(t, smallSettings())

	draws, err := env.engine.Draws.ArchivedDraws(context.Background(), 0, 10)
	require.NoError(t, err)
	assert.Empty(t, draws)

	_, err = env.engine.Draws.ArchivedDraws(context.Background(), 150, 10)
	assert.Error(t, err)
}

func TestReconcile_RecreatesMissingRound(t *testing.T) {
	env := newTestEnv(t, smallSettings())
	ctx := context.Background()

	stats, err := env.engine.Pool.Stats(ctx, 100)
	require.NoError(t, err)
	require.NoError(t, env.store.DeleteRound(ctx, 100, stats.RoundID))

	require.NoError(t, env.engine.Draws.Reconcile(ctx, 100))

	after, err := env.engine.Pool.Stats(ctx, 100)
	require.NoError(t, err)
	assert.Equal(t, 5, after.Available)
}
