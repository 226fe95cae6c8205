package workers

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"raffle-backend/internal/common/logger"
	"raffle-backend/internal/service/notifications"
)

const (
	consumerGroup = "raffle_notifiers"
	consumerName  = "raffle_worker_1"
	readBatch     = 16
)

// Deliverer sends a decoded event to its recipients.
type Deliverer interface {
	Deliver(ctx context.Context, evt notifications.Event) error
}

// RedisStreamWorker drains the raffle event stream and hands events to the notifier.
type RedisStreamWorker struct {
	rdb       redis.UniversalClient
	deliverer Deliverer
	block     time.Duration
	log       zerolog.Logger
}

func NewRedisStreamWorker(rdb redis.UniversalClient, deliverer Deliverer) *RedisStreamWorker {
	return &RedisStreamWorker{
		rdb:       rdb,
		deliverer: deliverer,
		block:     5 * time.Second,
		log:       logger.Component("stream_worker"),
	}
}

// Start consumes the stream until ctx is cancelled.
func (w *RedisStreamWorker) Start(ctx context.Context) {
	if err := w.ensureGroup(ctx); err != nil {
		w.log.Error().Err(err).Msg("Failed to create consumer group")
	}
	w.log.Info().Str("stream", notifications.StreamKey).Msg("Starting Redis stream worker")

	for {
		select {
		case <-ctx.Done():
			w.log.Info().Msg("Stopping Redis stream worker")
			return
		default:
		}

		if _, err := w.poll(ctx); err != nil {
			if ctx.Err() != nil {
				continue
			}
			w.log.Error().Err(err).Msg("Error reading from stream")
			select {
			case <-ctx.Done():
			case <-time.After(time.Second):
			}
		}
	}
}

func (w *RedisStreamWorker) ensureGroup(ctx context.Context) error {
	err := w.rdb.XGroupCreateMkStream(ctx, notifications.StreamKey, consumerGroup, "$").Err()
	if err != nil && !strings.HasPrefix(err.Error(), "BUSYGROUP") {
		return err
	}
	return nil
}

// poll reads one batch, delivers it and acknowledges every message. It returns
// the number of messages handled.
func (w *RedisStreamWorker) poll(ctx context.Context) (int, error) {
	streams, err := w.rdb.XReadGroup(ctx, &redis.XReadGroupArgs{
		Group:    consumerGroup,
		Consumer: consumerName,
		Streams:  []string{notifications.StreamKey, ">"},
		Count:    readBatch,
		Block:    w.block,
	}).Result()
	if errors.Is(err, redis.Nil) {
		return 0, nil
	}
	if err != nil {
		return 0, err
	}

	handled := 0
	for _, stream := range streams {
		for _, msg := range stream.Messages {
			w.process(ctx, msg)
			if err := w.rdb.XAck(ctx, notifications.StreamKey, consumerGroup, msg.ID).Err(); err != nil {
				w.log.Warn().Err(err).Str("message_id", msg.ID).Msg("Failed to ack message")
			}
			handled++
		}
	}
	return handled, nil
}

func (w *RedisStreamWorker) process(ctx context.Context, msg redis.XMessage) {
	evt, err := notifications.ParseEvent(msg.Values)
	if err != nil {
		w.log.Warn().Err(err).Str("message_id", msg.ID).Msg("Dropping malformed event")
		return
	}
	if err := w.deliverer.Deliver(ctx, evt); err != nil {
		w.log.Error().Err(err).
			Str("message_id", msg.ID).
			Str("type", string(evt.Type)).
			Msg("Failed to deliver event")
		return
	}
	w.log.Debug().Str("type", string(evt.Type)).Int64("user_id", evt.UserID).Msg("Event delivered")
}
