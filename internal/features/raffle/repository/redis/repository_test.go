package redis

import (
	"context"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"raffle-backend/internal/features/raffle/models"
	"raffle-backend/internal/features/raffle/repository"
	"raffle-backend/internal/features/raffle/repository/repositorytest"
)

func newTestRepository(t *testing.T) (*redisRepository, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return NewRedisRaffleRepository(client).(*redisRepository), mr
}

func TestRepository(t *testing.T) {
	repositorytest.Run(t, func(t *testing.T) repository.RaffleRepository {
		repo, _ := newTestRepository(t)
		return repo
	})
}

func TestInitializeRound_ReplacesIncompleteRound(t *testing.T) {
	repo, mr := newTestRepository(t)
	ctx := context.Background()

	round, _, err := repo.InitializeRound(ctx, 100, 3)
	require.NoError(t, err)

	// Simulate a crash that left the round short of tickets.
	mr.SRem(makeAvailableKey(100, round), "2")
	mr.Del(makeTicketKey(100, round, 2))

	next, created, err := repo.InitializeRound(ctx, 100, 3)
	require.NoError(t, err)
	assert.True(t, created)
	assert.NotEqual(t, round, next)
	assert.False(t, mr.Exists(makeTicketKey(100, round, 1)))

	numbers, err := repo.ListAvailable(ctx, 100)
	require.NoError(t, err)
	assert.Equal(t, []int{1, 2, 3}, numbers)
}

func TestCommitSale_WritesPurchaseCounter(t *testing.T) {
	repo, mr := newTestRepository(t)
	ctx := context.Background()

	_, _, err := repo.InitializeRound(ctx, 200, 2)
	require.NoError(t, err)

	_, err = repo.CommitSale(ctx, &models.Sale{ID: "x", Denomination: 200, Number: 2, BuyerID: 11}, models.CommitOptions{})
	require.NoError(t, err)

	assert.Equal(t, "1", mr.HGet(makeUserPurchasesKey(11), "200"))
	ok, err := mr.SIsMember(makeUserSalesKey(11), "x")
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestListDraws_CapsHistory(t *testing.T) {
	repo, _ := newTestRepository(t)
	ctx := context.Background()

	for i := int64(1); i <= 3; i++ {
		require.NoError(t, repo.CreateDraw(ctx, &models.Draw{ID: string(rune('a' + i)), Denomination: 100, RoundID: i}))
	}

	draws, err := repo.ListDraws(ctx, 100, 2)
	require.NoError(t, err)
	require.Len(t, draws, 2)
	assert.Equal(t, int64(3), draws[0].RoundID)
	assert.Equal(t, int64(2), draws[1].RoundID)
}
