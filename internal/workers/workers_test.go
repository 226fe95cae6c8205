package workers

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"raffle-backend/internal/service/notifications"
)

type recordingDeliverer struct {
	mu     sync.Mutex
	events []notifications.Event
	fail   bool
}

func (d *recordingDeliverer) Deliver(_ context.Context, evt notifications.Event) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.events = append(d.events, evt)
	if d.fail {
		return errors.New("telegram down")
	}
	return nil
}

func newStreamWorker(t *testing.T, d Deliverer) (*RedisStreamWorker, *redis.Client) {
	t.Helper()
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })

	w := NewRedisStreamWorker(rdb, d)
	w.block = 50 * time.Millisecond
	require.NoError(t, w.ensureGroup(context.Background()))
	return w, rdb
}

func TestRedisStreamWorker_DeliversAndAcks(t *testing.T) {
	ctx := context.Background()
	d := &recordingDeliverer{}
	w, rdb := newStreamWorker(t, d)

	pub := notifications.NewRedisPublisher(rdb)
	require.NoError(t, pub.Publish(ctx, notifications.Event{Type: notifications.EventTicketActivated, UserID: 42, Denomination: 100, TicketNumber: 7}))
	require.NoError(t, pub.Publish(ctx, notifications.Event{Type: notifications.EventRoundStarted, Denomination: 200}))

	n, err := w.poll(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, n)
	require.Len(t, d.events, 2)
	assert.Equal(t, notifications.EventTicketActivated, d.events[0].Type)
	assert.Equal(t, int64(42), d.events[0].UserID)
	assert.Equal(t, 7, d.events[0].TicketNumber)

	pending, err := rdb.XPending(ctx, notifications.StreamKey, consumerGroup).Result()
	require.NoError(t, err)
	assert.Zero(t, pending.Count)

	n, err = w.poll(ctx)
	require.NoError(t, err)
	assert.Zero(t, n)
}

func TestRedisStreamWorker_AcksFailedAndMalformed(t *testing.T) {
	ctx := context.Background()
	d := &recordingDeliverer{fail: true}
	w, rdb := newStreamWorker(t, d)

	require.NoError(t, rdb.XAdd(ctx, &redis.XAddArgs{
		Stream: notifications.StreamKey,
		Values: map[string]interface{}{"user_id": "1"},
	}).Err())
	require.NoError(t, notifications.NewRedisPublisher(rdb).Publish(ctx, notifications.Event{Type: notifications.EventPrizeWon, UserID: 5, Rank: 1}))

	n, err := w.poll(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, n)
	assert.Len(t, d.events, 1)

	pending, err := rdb.XPending(ctx, notifications.StreamKey, consumerGroup).Result()
	require.NoError(t, err)
	assert.Zero(t, pending.Count)
}

func TestRedisStreamWorker_StopsOnCancel(t *testing.T) {
	w, _ := newStreamWorker(t, &recordingDeliverer{})
	ctx, cancel := context.WithCancel(context.Background())

	done := make(chan struct{})
	go func() {
		w.Start(ctx)
		close(done)
	}()
	cancel()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("worker did not stop")
	}
}

type recordingReconciler struct {
	mu   sync.Mutex
	dens []int
	fail map[int]bool
}

func (r *recordingReconciler) Reconcile(_ context.Context, den int) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.dens = append(r.dens, den)
	if r.fail[den] {
		return errors.New("store unavailable")
	}
	return nil
}

func (r *recordingReconciler) calls() []int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]int(nil), r.dens...)
}

func TestDrawReconciler_RunOnceContinuesPastFailures(t *testing.T) {
	rec := &recordingReconciler{fail: map[int]bool{100: true}}
	NewDrawReconciler(rec, []int{100, 200, 300}, time.Minute).RunOnce(context.Background())

	assert.Equal(t, []int{100, 200, 300}, rec.calls())
}

func TestDrawReconciler_StartRunsImmediately(t *testing.T) {
	rec := &recordingReconciler{}
	r := NewDrawReconciler(rec, []int{100}, time.Hour)

	require.NoError(t, r.Start(context.Background()))
	t.Cleanup(func() { _ = r.Stop() })

	assert.Eventually(t, func() bool { return len(rec.calls()) >= 1 }, 2*time.Second, 10*time.Millisecond)
}
