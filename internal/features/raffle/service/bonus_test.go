package service

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	apperrors "raffle-backend/internal/common/errors"
	"raffle-backend/internal/features/raffle/models"
	"raffle-backend/internal/service/notifications"
)

func TestLoyalty_AwardedOnThreshold(t *testing.T) {
	env := newTestEnv(t, smallSettings())

	assert.Nil(t, env.buy(t, 100, 1, 42).Loyalty)
	assert.Nil(t, env.buy(t, 100, 2, 42).Loyalty)

	out := env.buy(t, 100, 3, 42)
	require.NotNil(t, out.Loyalty)
	assert.True(t, out.Loyalty.Awarded)
	assert.Equal(t, models.FreeReasonLoyalty, out.Loyalty.Reason)
	require.NotNil(t, out.Loyalty.Sale)
	assert.True(t, out.Loyalty.Sale.IsFree)
	assert.Contains(t, []int{4, 5}, out.Loyalty.Sale.Number)
	// The free ticket is counted as a purchase.
	assert.Equal(t, int64(4), out.Loyalty.PurchaseCount)

	sales, err := env.store.ListUserSales(context.Background(), 42)
	require.NoError(t, err)
	assert.Len(t, sales, 4)
	assert.Len(t, env.events.ofType(notifications.EventLoyaltyAwarded), 1)
}

func TestLoyalty_NotDueOffThreshold(t *testing.T) {
	env := newTestEnv(t, smallSettings())
	ctx := context.Background()

	for _, count := range []int64{0, 1, 2, 4, 5} {
		out, err := env.engine.Bonus.MaybeAwardLoyalty(ctx, 1, 100, count)
		require.NoError(t, err)
		assert.Nil(t, out, "count %d", count)
	}
}

func TestLoyalty_ExactlyOncePerMultiple(t *testing.T) {
	settings := smallSettings()
	settings.PoolSize = 20
	env := newTestEnv(t, settings)

	awarded := 0
	for i := 0; i < 6; i++ {
		available, err := env.engine.Pool.AvailableNumbers(context.Background(), 100)
		require.NoError(t, err)
		if out := env.buy(t, 100, available[0], 7); out.Loyalty != nil && out.Loyalty.Awarded {
			awarded++
		}
	}
	// Counters 3 and 6 each earn one ticket. Free tickets never chain.
	assert.Equal(t, 2, awarded)

	stats, err := env.engine.Pool.Stats(context.Background(), 100)
	require.NoError(t, err)
	assert.Equal(t, 8, stats.Sold)
}

func TestLoyalty_FreeTicketLandingOnMultipleEarnsAnother(t *testing.T) {
	settings := smallSettings()
	settings.PoolSize = 20
	env := newTestEnv(t, settings)
	ctx := context.Background()

	env.buy(t, 100, 1, 7)
	env.buy(t, 100, 2, 7)
	// The commit observing count 3 has not evaluated loyalty yet when
	// two more purchases land.
	res, err := env.engine.Allocation.CommitSale(ctx, models.SaleRequest{Denomination: 100, Number: 3, BuyerID: 7})
	require.NoError(t, err)
	require.Equal(t, int64(3), res.PurchaseCount)
	assert.Nil(t, env.buy(t, 100, 4, 7).Loyalty)
	assert.Nil(t, env.buy(t, 100, 5, 7).Loyalty)

	out, err := env.engine.Bonus.MaybeAwardLoyalty(ctx, 7, 100, res.PurchaseCount)
	require.NoError(t, err)
	require.NotNil(t, out)
	assert.True(t, out.Awarded)
	assert.Equal(t, 2, out.Count)
	assert.Equal(t, int64(7), out.PurchaseCount)

	sales, err := env.store.ListUserSales(ctx, 7)
	require.NoError(t, err)
	assert.Len(t, sales, 7)
	free := 0
	for _, sale := range sales {
		if sale.FreeReason == models.FreeReasonLoyalty {
			free++
		}
	}
	assert.Equal(t, 2, free)
	assert.Len(t, env.events.ofType(notifications.EventLoyaltyAwarded), 2)
}

func TestLoyalty_ThresholdOneDoesNotChain(t *testing.T) {
	settings := smallSettings()
	settings.LoyaltyThreshold = 1
	settings.PoolSize = 20
	env := newTestEnv(t, settings)

	out := env.buy(t, 100, 1, 7)
	require.NotNil(t, out.Loyalty)
	assert.Equal(t, 1, out.Loyalty.Count)
	assert.Equal(t, int64(2), out.Loyalty.PurchaseCount)

	stats, err := env.engine.Pool.Stats(context.Background(), 100)
	require.NoError(t, err)
	assert.Equal(t, 2, stats.Sold)
}

func TestLoyalty_ShortfallWhenPoolEmpty(t *testing.T) {
	env := newTestEnv(t, smallSettings())
	ctx := context.Background()

	for n := 1; n <= 5; n++ {
		_, err := env.engine.Allocation.CommitSale(ctx, models.SaleRequest{Denomination: 100, Number: n, BuyerID: int64(n)})
		require.NoError(t, err)
	}

	out, err := env.engine.Bonus.MaybeAwardLoyalty(ctx, 1, 100, 3)
	require.NoError(t, err)
	require.NotNil(t, out)
	assert.True(t, out.Shortfall)
	assert.False(t, out.Awarded)
	assert.Len(t, env.events.ofType(notifications.EventLoyaltyShortfall), 1)
}

func TestReferral_ClaimFlow(t *testing.T) {
	env := newTestEnv(t, smallSettings())
	ctx := context.Background()

	_, _, err := env.engine.Accounts.GetOrCreate(ctx, Profile{ID: 1, Username: "owner"}, "")
	require.NoError(t, err)

	_, err = env.engine.Raffle.ClaimReferralBonus(ctx, 1)
	assert.True(t, apperrors.Is(err, apperrors.ErrCodeNotEligible))

	code := models.ReferralCodeFor(1)
	for id := int64(2); id <= 3; id++ {
		_, _, err := env.engine.Accounts.GetOrCreate(ctx, Profile{ID: id}, code)
		require.NoError(t, err)
	}

	out, err := env.engine.Raffle.ClaimReferralBonus(ctx, 1)
	require.NoError(t, err)
	assert.Equal(t, 200, out.Sale.Denomination)
	assert.Equal(t, models.FreeReasonReferral, out.Sale.FreeReason)

	_, err = env.engine.Raffle.ClaimReferralBonus(ctx, 1)
	assert.True(t, apperrors.Is(err, apperrors.ErrCodeAlreadyClaimed))

	stats, err := env.engine.Pool.Stats(ctx, 200)
	require.NoError(t, err)
	assert.Equal(t, 1, stats.Sold)
}

func TestReferral_UnknownAccount(t *testing.T) {
	env := newTestEnv(t, smallSettings())

	_, err := env.engine.Bonus.ClaimReferralBonus(context.Background(), 404)
	assert.True(t, apperrors.Is(err, apperrors.ErrCodeNotFound))
}

func TestRecordReferral_IgnoresUnknownAndSelf(t *testing.T) {
	env := newTestEnv(t, smallSettings())
	ctx := context.Background()

	_, _, err := env.engine.Accounts.GetOrCreate(ctx, Profile{ID: 5}, "")
	require.NoError(t, err)

	require.NoError(t, env.engine.Bonus.RecordReferral(ctx, 6, "ref_unknown"))
	require.NoError(t, env.engine.Bonus.RecordReferral(ctx, 5, models.ReferralCodeFor(5)))
	require.NoError(t, env.engine.Bonus.RecordReferral(ctx, 6, ""))

	acc, err := env.engine.Accounts.Get(ctx, 5)
	require.NoError(t, err)
	assert.Zero(t, acc.ReferralCount)
}
