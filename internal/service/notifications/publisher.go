package notifications

import (
	"context"
	"time"

	"github.com/redis/go-redis/v9"
)

// StreamKey is the Redis stream carrying raffle events to the delivery worker.
const StreamKey = "raffle:events"

const streamMaxLen = 10000

// Publisher hands events to the delivery pipeline. Implementations must not block on delivery.
type Publisher interface {
	Publish(ctx context.Context, evt Event) error
}

// RedisPublisher appends events to a capped Redis stream.
type RedisPublisher struct {
	rdb redis.UniversalClient
}

func NewRedisPublisher(rdb redis.UniversalClient) *RedisPublisher {
	return &RedisPublisher{rdb: rdb}
}

func (p *RedisPublisher) Publish(ctx context.Context, evt Event) error {
	if evt.Timestamp.IsZero() {
		evt.Timestamp = time.Now().UTC()
	}
	return p.rdb.XAdd(ctx, &redis.XAddArgs{
		Stream: StreamKey,
		MaxLen: streamMaxLen,
		Approx: true,
		Values: evt.Values(),
	}).Err()
}

// Nop drops every event.
type Nop struct{}

func (Nop) Publish(context.Context, Event) error { return nil }
