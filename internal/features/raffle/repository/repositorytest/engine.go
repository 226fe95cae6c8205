package repositorytest

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	apperrors "raffle-backend/internal/common/errors"
	"raffle-backend/internal/features/raffle/models"
	"raffle-backend/internal/features/raffle/repository"
	"raffle-backend/internal/features/raffle/service"
	"raffle-backend/internal/utils/random"
)

func engineSettings() models.Settings {
	return models.Settings{
		Denominations: []int{den, 200},
		PoolSize:      poolSize,
		Rewards: map[int][]int64{
			den: {500, 200, 100},
			200: {1000, 400, 200},
		},
		LoyaltyThreshold:          1000,
		ReferralThreshold:         2,
		ReferralBonusDenomination: 200,
		MinDrawEntries:            3,
		WinnersPerDraw:            3,
	}
}

func newEngine(t *testing.T, repo repository.RaffleRepository, settings models.Settings) *service.Engine {
	t.Helper()
	engine, err := service.NewEngine(repo, settings, service.Options{Rand: random.NewSeeded(11)})
	require.NoError(t, err)
	require.NoError(t, engine.Pool.InitializeAll(context.Background()))
	return engine
}

// testSoldSetMatchesSales mixes paid, loyalty and referral commits with
// rejected ones, then checks that sold tickets and sale records agree.
func testSoldSetMatchesSales(t *testing.T, repo repository.RaffleRepository) {
	ctx := context.Background()
	settings := engineSettings()
	settings.PoolSize = 10
	settings.LoyaltyThreshold = 2
	settings.ReferralThreshold = 1
	settings.ReferralBonusDenomination = den
	engine := newEngine(t, repo, settings)

	buy := func(number int, buyer int64) (*service.PurchaseOutcome, error) {
		return engine.Raffle.CompleteSale(ctx, models.SaleRequest{Denomination: den, Number: number, BuyerID: buyer})
	}

	_, err := buy(1, 1)
	require.NoError(t, err)
	out, err := buy(2, 1)
	require.NoError(t, err)
	require.NotNil(t, out.Loyalty)
	require.True(t, out.Loyalty.Awarded)

	_, err = buy(1, 2)
	assert.True(t, apperrors.Is(err, apperrors.ErrCodeConflict))
	available, err := engine.Pool.AvailableNumbers(ctx, den)
	require.NoError(t, err)
	_, err = buy(available[0], 2)
	require.NoError(t, err)

	_, err = repo.CreateAccount(ctx, &models.Account{ID: 3, ReferralCode: models.ReferralCodeFor(3), CreatedAt: time.Now()})
	require.NoError(t, err)
	_, err = repo.IncrementReferralCount(ctx, 3)
	require.NoError(t, err)
	_, err = engine.Raffle.ClaimReferralBonus(ctx, 3)
	require.NoError(t, err)
	_, err = engine.Raffle.ClaimReferralBonus(ctx, 3)
	assert.True(t, apperrors.Is(err, apperrors.ErrCodeAlreadyClaimed))

	round, err := repo.CurrentRound(ctx, den)
	require.NoError(t, err)
	sales, err := repo.ListRoundSales(ctx, den, round)
	require.NoError(t, err)
	require.Len(t, sales, 5)

	recorded := make(map[int]*models.Sale, len(sales))
	reasons := make(map[models.FreeReason]int)
	for _, sale := range sales {
		require.NotContains(t, recorded, sale.Number, "ticket %d has two sale records", sale.Number)
		recorded[sale.Number] = sale
		reasons[sale.FreeReason]++
	}
	assert.Equal(t, map[models.FreeReason]int{"": 3, models.FreeReasonLoyalty: 1, models.FreeReasonReferral: 1}, reasons)

	for n := 1; n <= settings.PoolSize; n++ {
		ticket, err := repo.GetTicket(ctx, den, n)
		require.NoError(t, err)
		sale, ok := recorded[n]
		if !ok {
			assert.Equal(t, models.TicketAvailable, ticket.State, "ticket %d", n)
			continue
		}
		assert.Equal(t, models.TicketSold, ticket.State, "ticket %d", n)
		assert.Equal(t, sale.ID, ticket.SaleID)
		assert.Equal(t, sale.BuyerID, ticket.Owner)
		assert.Equal(t, sale.IsFree, ticket.IsFree)
		assert.Equal(t, sale.FreeReason, ticket.FreeReason)
	}
}

// testConcurrentSellOut sells every ticket of a round at once, repeatedly.
// Each round gets exactly one draw and is replaced by a full one.
func testConcurrentSellOut(t *testing.T, repo repository.RaffleRepository) {
	ctx := context.Background()
	engine := newEngine(t, repo, engineSettings())

	const rounds = 5
	for r := 0; r < rounds; r++ {
		before, err := repo.CurrentRound(ctx, den)
		require.NoError(t, err)

		var (
			wg    sync.WaitGroup
			mu    sync.Mutex
			draws []*models.Draw
			errs  []error
		)
		for n := 1; n <= poolSize; n++ {
			wg.Add(1)
			go func(n int) {
				defer wg.Done()
				out, err := engine.Raffle.CompleteSale(ctx, models.SaleRequest{
					Denomination: den,
					Number:       n,
					BuyerID:      int64(r*100 + n),
				})
				mu.Lock()
				defer mu.Unlock()
				if err != nil {
					errs = append(errs, err)
					return
				}
				if out.Draw != nil {
					draws = append(draws, out.Draw)
				}
			}(n)
		}
		wg.Wait()

		require.Empty(t, errs, "round %d", r)
		require.Len(t, draws, 1, "round %d", r)
		assert.Equal(t, before, draws[0].RoundID)
		assert.Equal(t, poolSize, draws[0].Entries)

		stats, err := engine.Pool.Stats(ctx, den)
		require.NoError(t, err)
		assert.Greater(t, stats.RoundID, before)
		assert.Equal(t, poolSize, stats.Available)
		assert.Zero(t, stats.Sold)
	}

	recorded, err := repo.ListDraws(ctx, den, rounds*2)
	require.NoError(t, err)
	assert.Len(t, recorded, rounds)
}

func testConcurrentReferralClaimOnce(t *testing.T, repo repository.RaffleRepository) {
	ctx := context.Background()
	engine := newEngine(t, repo, engineSettings())

	_, err := repo.CreateAccount(ctx, &models.Account{ID: 9, ReferralCode: models.ReferralCodeFor(9), CreatedAt: time.Now()})
	require.NoError(t, err)
	for i := 0; i < 2; i++ {
		_, err := repo.IncrementReferralCount(ctx, 9)
		require.NoError(t, err)
	}

	const claimers = 8
	var (
		wg         sync.WaitGroup
		mu         sync.Mutex
		awarded    int
		unexpected []error
	)
	for i := 0; i < claimers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := engine.Raffle.ClaimReferralBonus(ctx, 9)
			mu.Lock()
			defer mu.Unlock()
			switch {
			case err == nil:
				awarded++
			case apperrors.Is(err, apperrors.ErrCodeAlreadyClaimed):
			default:
				unexpected = append(unexpected, err)
			}
		}()
	}
	wg.Wait()

	assert.Empty(t, unexpected)
	assert.Equal(t, 1, awarded)

	stats, err := engine.Pool.Stats(ctx, 200)
	require.NoError(t, err)
	assert.Equal(t, 1, stats.Sold)

	mine, err := repo.ListUserSales(ctx, 9)
	require.NoError(t, err)
	require.Len(t, mine, 1)
	assert.Equal(t, models.FreeReasonReferral, mine[0].FreeReason)
}

// testConcurrentReferralCommit races claiming commits for one user on
// different tickets. Only one may carry the claim.
func testConcurrentReferralCommit(t *testing.T, repo repository.RaffleRepository) {
	ctx := context.Background()
	_, _, err := repo.InitializeRound(ctx, den, poolSize)
	require.NoError(t, err)
	_, err = repo.CreateAccount(ctx, &models.Account{ID: 9, ReferralCode: models.ReferralCodeFor(9), CreatedAt: time.Now()})
	require.NoError(t, err)

	var (
		wg        sync.WaitGroup
		mu        sync.Mutex
		successes int
	)
	for n := 1; n <= poolSize; n++ {
		wg.Add(1)
		go func(n int) {
			defer wg.Done()
			sale := newSale(fmt.Sprintf("claim-%d", n), n, 9, time.Now())
			_, err := repo.CommitSale(ctx, sale, models.CommitOptions{ClaimReferral: true})
			mu.Lock()
			defer mu.Unlock()
			if err == nil {
				successes++
				return
			}
			lost := errors.Is(err, repository.ErrAlreadyClaimed) || errors.Is(err, repository.ErrConflict)
			assert.True(t, lost, "unexpected error: %v", err)
		}(n)
	}
	wg.Wait()

	assert.Equal(t, 1, successes)
	stats, err := repo.RoundStats(ctx, den)
	require.NoError(t, err)
	assert.Equal(t, 1, stats.Sold)
}

// testConcurrentSameBuyerCounter checks that parallel purchases by one buyer
// each observe a distinct counter value and none is lost.
func testConcurrentSameBuyerCounter(t *testing.T, repo repository.RaffleRepository) {
	ctx := context.Background()
	const tickets = 30
	_, _, err := repo.InitializeRound(ctx, den, tickets)
	require.NoError(t, err)
	_, err = repo.CreateAccount(ctx, &models.Account{ID: 77, ReferralCode: models.ReferralCodeFor(77), CreatedAt: time.Now()})
	require.NoError(t, err)

	var (
		wg     sync.WaitGroup
		mu     sync.Mutex
		counts = make(map[int64]bool, tickets)
	)
	for n := 1; n <= tickets; n++ {
		wg.Add(1)
		go func(n int) {
			defer wg.Done()
			res, err := repo.CommitSale(ctx, newSale(fmt.Sprintf("same-%d", n), n, 77, time.Now()), models.CommitOptions{})
			if !assert.NoError(t, err) {
				return
			}
			mu.Lock()
			defer mu.Unlock()
			assert.False(t, counts[res.PurchaseCount], "count %d observed twice", res.PurchaseCount)
			counts[res.PurchaseCount] = true
		}(n)
	}
	wg.Wait()

	for c := int64(1); c <= tickets; c++ {
		assert.True(t, counts[c], "count %d never observed", c)
	}
	acc, err := repo.GetAccount(ctx, 77)
	require.NoError(t, err)
	assert.Equal(t, int64(tickets), acc.PurchaseCount(den))

	mine, err := repo.ListUserSales(ctx, 77)
	require.NoError(t, err)
	assert.Len(t, mine, tickets)
}
