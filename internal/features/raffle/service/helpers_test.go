package service

import (
	"context"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"

	"raffle-backend/internal/features/raffle/models"
	"raffle-backend/internal/features/raffle/repository/memory"
	"raffle-backend/internal/service/notifications"
	"raffle-backend/internal/utils/random"
)

const testAdmin int64 = 999

type recordingPublisher struct {
	mu     sync.Mutex
	events []notifications.Event
}

func (p *recordingPublisher) Publish(_ context.Context, evt notifications.Event) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, evt)
	return nil
}

func (p *recordingPublisher) ofType(t notifications.EventType) []notifications.Event {
	p.mu.Lock()
	defer p.mu.Unlock()
	var out []notifications.Event
	for _, e := range p.events {
		if e.Type == t {
			out = append(out, e)
		}
	}
	return out
}

// smallSettings keeps pools tiny so tests can sell them out quickly.
func smallSettings() models.Settings {
	return models.Settings{
		Denominations: []int{100, 200},
		PoolSize:      5,
		Rewards: map[int][]int64{
			100: {500, 200, 100},
			200: {1000, 400, 200},
		},
		LoyaltyThreshold:          3,
		ReferralThreshold:         2,
		ReferralBonusDenomination: 200,
		MinDrawEntries:            3,
		WinnersPerDraw:            3,
	}
}

type testEnv struct {
	engine *Engine
	store  *memory.Repository
	events *recordingPublisher
}

func newTestEnv(t *testing.T, settings models.Settings) *testEnv {
	t.Helper()
	store := memory.New()
	events := &recordingPublisher{}
	engine, err := NewEngine(store, settings, Options{
		Publisher: events,
		Rand:      random.NewSeeded(7),
		AdminIDs:  []int64{testAdmin},
	})
	require.NoError(t, err)
	require.NoError(t, engine.Pool.InitializeAll(context.Background()))
	return &testEnv{engine: engine, store: store, events: events}
}

func (e *testEnv) buy(t *testing.T, den, number int, buyer int64) *PurchaseOutcome {
	t.Helper()
	out, err := e.engine.Raffle.CompleteSale(context.Background(), models.SaleRequest{
		Denomination: den,
		Number:       number,
		BuyerID:      buyer,
	})
	require.NoError(t, err)
	return out
}
