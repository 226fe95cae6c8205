package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"

	"github.com/redis/go-redis/v9"

	"raffle-backend/internal/features/raffle/models"
	"raffle-backend/internal/features/raffle/repository"
)

const (
	keyPrefixPool     = "raffle:pool:"
	keyPrefixSale     = "raffle:sale:"
	keyPrefixUser     = "raffle:user:"
	keyPrefixRefCode  = "raffle:refcode:"
	keyPrefixPayment  = "raffle:payment:"
	keyPrefixDraws    = "raffle:draws:"
	keyPendingPayment = "raffle:payments:pending"
	keyDrawsAll       = "raffle:draws:all"

	drawHistoryLen = 100
	maxTxRetries   = 10
)

type redisRepository struct {
	client *redis.Client
}

// NewRedisRaffleRepository returns the Redis store driver. Multi-key updates use
// WATCH plus MULTI/EXEC so every operation is all-or-nothing.
func NewRedisRaffleRepository(client *redis.Client) repository.RaffleRepository {
	return &redisRepository{client: client}
}

func makeRoundKey(den int) string {
	return fmt.Sprintf("%s%d:round", keyPrefixPool, den)
}

func makeRoundSeqKey(den int) string {
	return fmt.Sprintf("%s%d:round_seq", keyPrefixPool, den)
}

func makeRoundPrefix(den int, round int64) string {
	return fmt.Sprintf("%s%d:%d:", keyPrefixPool, den, round)
}

func makeTicketKey(den int, round int64, number int) string {
	return makeRoundPrefix(den, round) + "ticket:" + strconv.Itoa(number)
}

func makeAvailableKey(den int, round int64) string {
	return makeRoundPrefix(den, round) + "available"
}

func makeSoldKey(den int, round int64) string {
	return makeRoundPrefix(den, round) + "sold"
}

func makeRoundSalesKey(den int, round int64) string {
	return makeRoundPrefix(den, round) + "sales"
}

func makeDrawKey(den int, round int64) string {
	return makeRoundPrefix(den, round) + "draw"
}

func makeDrawHistoryKey(den int) string {
	return keyPrefixDraws + strconv.Itoa(den)
}

func makeSaleKey(id string) string {
	return keyPrefixSale + id
}

func makeUserKey(id int64) string {
	return keyPrefixUser + strconv.FormatInt(id, 10)
}

func makeUserPurchasesKey(id int64) string {
	return makeUserKey(id) + ":purchases"
}

func makeUserSalesKey(id int64) string {
	return makeUserKey(id) + ":sales"
}

func makeRefCodeKey(code string) string {
	return keyPrefixRefCode + code
}

func makePaymentKey(id string) string {
	return keyPrefixPayment + id
}

func (r *redisRepository) Ping(ctx context.Context) error {
	return r.client.Ping(ctx).Err()
}

// watch runs fn in an optimistic transaction and retries when a watched key
// changed before EXEC. fn must re-read everything it depends on.
func (r *redisRepository) watch(ctx context.Context, fn func(*redis.Tx) error, keys ...string) error {
	for i := 0; i < maxTxRetries; i++ {
		err := r.client.Watch(ctx, fn, keys...)
		if !errors.Is(err, redis.TxFailedErr) {
			return err
		}
		if ctx.Err() != nil {
			return ctx.Err()
		}
	}
	return repository.ErrConflict
}

func currentRound(ctx context.Context, c redis.Cmdable, den int) (int64, error) {
	round, err := c.Get(ctx, makeRoundKey(den)).Int64()
	if errors.Is(err, redis.Nil) {
		return 0, nil
	}
	return round, err
}

func getJSON[T any](ctx context.Context, c redis.Cmdable, key string) (*T, error) {
	data, err := c.Get(ctx, key).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, repository.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	var v T
	if err := json.Unmarshal(data, &v); err != nil {
		return nil, fmt.Errorf("decode %s: %w", key, err)
	}
	return &v, nil
}

// mgetJSON loads documents by key, skipping missing ones.
func mgetJSON[T any](ctx context.Context, c redis.Cmdable, keys []string) ([]*T, error) {
	if len(keys) == 0 {
		return nil, nil
	}
	values, err := c.MGet(ctx, keys...).Result()
	if err != nil {
		return nil, err
	}
	out := make([]*T, 0, len(values))
	for i, raw := range values {
		s, ok := raw.(string)
		if !ok {
			continue
		}
		var v T
		if err := json.Unmarshal([]byte(s), &v); err != nil {
			return nil, fmt.Errorf("decode %s: %w", keys[i], err)
		}
		out = append(out, &v)
	}
	return out, nil
}

func loadSales(ctx context.Context, c redis.Cmdable, ids []string) ([]*models.Sale, error) {
	keys := make([]string, len(ids))
	for i, id := range ids {
		keys[i] = makeSaleKey(id)
	}
	return mgetJSON[models.Sale](ctx, c, keys)
}
