// Package repositorytest holds behaviour checks shared by every store driver.
package repositorytest

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"raffle-backend/internal/features/raffle/models"
	"raffle-backend/internal/features/raffle/repository"
)

const (
	den      = 100
	poolSize = 5
)

// Run exercises a fresh repository from newRepo for each subtest.
func Run(t *testing.T, newRepo func(t *testing.T) repository.RaffleRepository) {
	t.Run("InitializeRoundIsIdempotent", func(t *testing.T) { testInitializeRound(t, newRepo(t)) })
	t.Run("CommitSale", func(t *testing.T) { testCommitSale(t, newRepo(t)) })
	t.Run("ConcurrentCommitSingleWinner", func(t *testing.T) { testConcurrentCommit(t, newRepo(t)) })
	t.Run("CommitAfterDrawConflicts", func(t *testing.T) { testCommitAfterDraw(t, newRepo(t)) })
	t.Run("ReferralClaimOnce", func(t *testing.T) { testReferralClaim(t, newRepo(t)) })
	t.Run("Accounts", func(t *testing.T) { testAccounts(t, newRepo(t)) })
	t.Run("PaymentTransitions", func(t *testing.T) { testPayments(t, newRepo(t)) })
	t.Run("Draws", func(t *testing.T) { testDraws(t, newRepo(t)) })
	t.Run("DeleteRound", func(t *testing.T) { testDeleteRound(t, newRepo(t)) })
	t.Run("ConcurrentReferralCommit", func(t *testing.T) { testConcurrentReferralCommit(t, newRepo(t)) })
	t.Run("ConcurrentSameBuyerCounter", func(t *testing.T) { testConcurrentSameBuyerCounter(t, newRepo(t)) })
	t.Run("SoldSetMatchesSales", func(t *testing.T) { testSoldSetMatchesSales(t, newRepo(t)) })
	t.Run("ConcurrentSellOutOneDraw", func(t *testing.T) { testConcurrentSellOut(t, newRepo(t)) })
	t.Run("ConcurrentReferralClaimOnce", func(t *testing.T) { testConcurrentReferralClaimOnce(t, newRepo(t)) })
}

func newSale(id string, number int, buyer int64, at time.Time) *models.Sale {
	return &models.Sale{ID: id, Denomination: den, Number: number, BuyerID: buyer, Timestamp: at}
}

func testInitializeRound(t *testing.T, repo repository.RaffleRepository) {
	ctx := context.Background()

	cur, err := repo.CurrentRound(ctx, den)
	require.NoError(t, err)
	assert.Zero(t, cur)

	round, created, err := repo.InitializeRound(ctx, den, poolSize)
	require.NoError(t, err)
	assert.True(t, created)
	assert.NotZero(t, round)

	again, created, err := repo.InitializeRound(ctx, den, poolSize)
	require.NoError(t, err)
	assert.False(t, created)
	assert.Equal(t, round, again)

	stats, err := repo.RoundStats(ctx, den)
	require.NoError(t, err)
	assert.Equal(t, round, stats.RoundID)
	assert.Equal(t, poolSize, stats.Available)
	assert.Zero(t, stats.Sold)

	numbers, err := repo.ListAvailable(ctx, den)
	require.NoError(t, err)
	assert.Equal(t, []int{1, 2, 3, 4, 5}, numbers)

	ticket, err := repo.GetTicket(ctx, den, 3)
	require.NoError(t, err)
	assert.Equal(t, models.TicketAvailable, ticket.State)
	assert.Equal(t, round, ticket.RoundID)

	_, err = repo.GetTicket(ctx, den, poolSize+1)
	assert.ErrorIs(t, err, repository.ErrNotFound)
}

func testCommitSale(t *testing.T, repo repository.RaffleRepository) {
	ctx := context.Background()
	round, _, err := repo.InitializeRound(ctx, den, poolSize)
	require.NoError(t, err)

	now := time.Now().UTC().Truncate(time.Millisecond)
	res, err := repo.CommitSale(ctx, newSale("s1", 2, 42, now), models.CommitOptions{})
	require.NoError(t, err)
	assert.Equal(t, int64(1), res.PurchaseCount)
	assert.Equal(t, round, res.Sale.RoundID)

	res, err = repo.CommitSale(ctx, newSale("s2", 4, 42, now.Add(time.Second)), models.CommitOptions{})
	require.NoError(t, err)
	assert.Equal(t, int64(2), res.PurchaseCount)

	_, err = repo.CommitSale(ctx, newSale("s3", 2, 7, now), models.CommitOptions{})
	assert.ErrorIs(t, err, repository.ErrConflict)

	_, err = repo.CommitSale(ctx, newSale("s4", poolSize+1, 7, now), models.CommitOptions{})
	assert.ErrorIs(t, err, repository.ErrNotFound)

	ticket, err := repo.GetTicket(ctx, den, 2)
	require.NoError(t, err)
	assert.Equal(t, models.TicketSold, ticket.State)
	assert.Equal(t, int64(42), ticket.Owner)
	assert.Equal(t, "s1", ticket.SaleID)
	require.NotNil(t, ticket.SoldAt)

	numbers, err := repo.ListAvailable(ctx, den)
	require.NoError(t, err)
	assert.Equal(t, []int{1, 3, 5}, numbers)

	sales, err := repo.ListRoundSales(ctx, den, round)
	require.NoError(t, err)
	require.Len(t, sales, 2)
	assert.Equal(t, "s1", sales[0].ID)
	assert.Equal(t, "s2", sales[1].ID)

	mine, err := repo.ListUserSales(ctx, 42)
	require.NoError(t, err)
	assert.Len(t, mine, 2)

	stats, err := repo.RoundStats(ctx, den)
	require.NoError(t, err)
	assert.Equal(t, 2, stats.Sold)
	assert.Equal(t, 3, stats.Available)
}

func testConcurrentCommit(t *testing.T, repo repository.RaffleRepository) {
	ctx := context.Background()
	_, _, err := repo.InitializeRound(ctx, den, poolSize)
	require.NoError(t, err)

	const buyers = 8
	var (
		wg        sync.WaitGroup
		mu        sync.Mutex
		successes int
		conflicts int
	)
	for i := 0; i < buyers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			sale := newSale(fmt.Sprintf("race-%d", i), 1, int64(100+i), time.Now())
			_, err := repo.CommitSale(ctx, sale, models.CommitOptions{})
			mu.Lock()
			defer mu.Unlock()
			switch {
			case err == nil:
				successes++
			case assert.ErrorIs(t, err, repository.ErrConflict):
				conflicts++
			}
		}(i)
	}
	wg.Wait()

	assert.Equal(t, 1, successes)
	assert.Equal(t, buyers-1, conflicts)

	stats, err := repo.RoundStats(ctx, den)
	require.NoError(t, err)
	assert.Equal(t, 1, stats.Sold)
}

func testCommitAfterDraw(t *testing.T, repo repository.RaffleRepository) {
	ctx := context.Background()
	round, _, err := repo.InitializeRound(ctx, den, poolSize)
	require.NoError(t, err)

	require.NoError(t, repo.CreateDraw(ctx, &models.Draw{ID: "d1", Denomination: den, RoundID: round, Timestamp: time.Now()}))

	_, err = repo.CommitSale(ctx, newSale("late", 1, 1, time.Now()), models.CommitOptions{})
	assert.ErrorIs(t, err, repository.ErrConflict)
}

func testReferralClaim(t *testing.T, repo repository.RaffleRepository) {
	ctx := context.Background()
	_, _, err := repo.InitializeRound(ctx, den, poolSize)
	require.NoError(t, err)
	_, err = repo.CreateAccount(ctx, &models.Account{ID: 9, ReferralCode: models.ReferralCodeFor(9), CreatedAt: time.Now()})
	require.NoError(t, err)

	claim := models.CommitOptions{ClaimReferral: true}
	_, err = repo.CommitSale(ctx, newSale("r1", 1, 9, time.Now()), claim)
	require.NoError(t, err)

	_, err = repo.CommitSale(ctx, newSale("r2", 2, 9, time.Now()), claim)
	assert.ErrorIs(t, err, repository.ErrAlreadyClaimed)

	ticket, err := repo.GetTicket(ctx, den, 2)
	require.NoError(t, err)
	assert.Equal(t, models.TicketAvailable, ticket.State)

	acc, err := repo.GetAccount(ctx, 9)
	require.NoError(t, err)
	assert.True(t, acc.ReferralBonusClaimed)
	assert.Equal(t, int64(1), acc.PurchaseCount(den))
}

func testAccounts(t *testing.T, repo repository.RaffleRepository) {
	ctx := context.Background()

	_, err := repo.GetAccount(ctx, 1)
	assert.ErrorIs(t, err, repository.ErrNotFound)

	acc := &models.Account{
		ID:           1,
		Username:     "alice",
		FirstName:    "Alice",
		ReferralCode: models.ReferralCodeFor(1),
		CreatedAt:    time.Now().UTC().Truncate(time.Millisecond),
	}
	created, err := repo.CreateAccount(ctx, acc)
	require.NoError(t, err)
	assert.True(t, created)

	created, err = repo.CreateAccount(ctx, acc)
	require.NoError(t, err)
	assert.False(t, created)

	id, err := repo.FindByReferralCode(ctx, acc.ReferralCode)
	require.NoError(t, err)
	assert.Equal(t, int64(1), id)

	_, err = repo.FindByReferralCode(ctx, "ref_missing")
	assert.ErrorIs(t, err, repository.ErrNotFound)

	count, err := repo.IncrementReferralCount(ctx, 1)
	require.NoError(t, err)
	assert.Equal(t, int64(1), count)
	count, err = repo.IncrementReferralCount(ctx, 1)
	require.NoError(t, err)
	assert.Equal(t, int64(2), count)

	got, err := repo.GetAccount(ctx, 1)
	require.NoError(t, err)
	assert.Equal(t, "alice", got.Username)
	assert.Equal(t, int64(2), got.ReferralCount)
	assert.False(t, got.ReferralBonusClaimed)
	assert.True(t, acc.CreatedAt.Equal(got.CreatedAt))
}

func testPayments(t *testing.T, repo repository.RaffleRepository) {
	ctx := context.Background()
	base := time.Now().UTC()

	older := &models.PendingPayment{ID: "p1", BuyerID: 1, Denomination: den, Number: 1, Status: models.PaymentPending, Timestamp: base}
	newer := &models.PendingPayment{ID: "p2", BuyerID: 2, Denomination: den, Number: 2, Status: models.PaymentPending, Timestamp: base.Add(time.Minute)}
	require.NoError(t, repo.CreatePayment(ctx, newer))
	require.NoError(t, repo.CreatePayment(ctx, older))
	assert.ErrorIs(t, repo.CreatePayment(ctx, older), repository.ErrConflict)

	pending, err := repo.ListPending(ctx)
	require.NoError(t, err)
	require.Len(t, pending, 2)
	assert.Equal(t, "p1", pending[0].ID)
	assert.Equal(t, "p2", pending[1].ID)

	reviewed := base.Add(time.Hour)
	updated, err := repo.TransitionPayment(ctx, "p1", models.PaymentPending, models.PaymentUpdate{
		Status:     models.PaymentVerified,
		ReviewedBy: 77,
		ReviewedAt: &reviewed,
		SaleID:     "s1",
	})
	require.NoError(t, err)
	assert.Equal(t, models.PaymentVerified, updated.Status)
	assert.Equal(t, "s1", updated.SaleID)

	_, err = repo.TransitionPayment(ctx, "p1", models.PaymentPending, models.PaymentUpdate{Status: models.PaymentRejected})
	assert.ErrorIs(t, err, repository.ErrConflict)

	_, err = repo.TransitionPayment(ctx, "missing", models.PaymentPending, models.PaymentUpdate{Status: models.PaymentRejected})
	assert.ErrorIs(t, err, repository.ErrNotFound)

	pending, err = repo.ListPending(ctx)
	require.NoError(t, err)
	require.Len(t, pending, 1)
	assert.Equal(t, "p2", pending[0].ID)

	got, err := repo.GetPayment(ctx, "p1")
	require.NoError(t, err)
	assert.Equal(t, int64(77), got.ReviewedBy)
}

func testDraws(t *testing.T, repo repository.RaffleRepository) {
	ctx := context.Background()
	_, err := repo.CreateAccount(ctx, &models.Account{ID: 5, ReferralCode: models.ReferralCodeFor(5), CreatedAt: time.Now()})
	require.NoError(t, err)

	draw := &models.Draw{
		ID:           "d1",
		Denomination: den,
		RoundID:      1,
		Timestamp:    time.Now().UTC(),
		Entries:      5,
		Winners: []models.Winner{
			{Rank: 1, TicketNumber: 3, BuyerID: 5, SaleID: "a", Prize: 5000},
			{Rank: 2, TicketNumber: 1, BuyerID: 6, SaleID: "b", Prize: 2000},
		},
	}
	require.NoError(t, repo.CreateDraw(ctx, draw))
	assert.ErrorIs(t, repo.CreateDraw(ctx, draw), repository.ErrDrawExists)

	got, err := repo.GetDraw(ctx, den, 1)
	require.NoError(t, err)
	assert.Equal(t, draw.Winners, got.Winners)

	_, err = repo.GetDraw(ctx, den, 2)
	assert.ErrorIs(t, err, repository.ErrNotFound)

	acc, err := repo.GetAccount(ctx, 5)
	require.NoError(t, err)
	assert.Equal(t, int64(5000), acc.Balance)

	require.NoError(t, repo.CreateDraw(ctx, &models.Draw{ID: "d2", Denomination: 200, RoundID: 1, Timestamp: time.Now().UTC().Add(time.Second)}))

	all, err := repo.ListDraws(ctx, 0, 10)
	require.NoError(t, err)
	require.Len(t, all, 2)
	assert.Equal(t, "d2", all[0].ID)

	only, err := repo.ListDraws(ctx, den, 10)
	require.NoError(t, err)
	require.Len(t, only, 1)
	assert.Equal(t, "d1", only[0].ID)
}

func testDeleteRound(t *testing.T, repo repository.RaffleRepository) {
	ctx := context.Background()
	round, _, err := repo.InitializeRound(ctx, den, poolSize)
	require.NoError(t, err)
	_, err = repo.CommitSale(ctx, newSale("gone", 1, 3, time.Now()), models.CommitOptions{})
	require.NoError(t, err)

	require.NoError(t, repo.DeleteRound(ctx, den, round))
	require.NoError(t, repo.DeleteRound(ctx, den, round))

	sales, err := repo.ListRoundSales(ctx, den, round)
	require.NoError(t, err)
	assert.Empty(t, sales)
	mine, err := repo.ListUserSales(ctx, 3)
	require.NoError(t, err)
	assert.Empty(t, mine)

	next, created, err := repo.InitializeRound(ctx, den, poolSize)
	require.NoError(t, err)
	assert.True(t, created)
	assert.Greater(t, next, round)

	stats, err := repo.RoundStats(ctx, den)
	require.NoError(t, err)
	assert.Equal(t, poolSize, stats.Available)
}
