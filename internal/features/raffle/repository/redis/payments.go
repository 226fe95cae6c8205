package redis

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/redis/go-redis/v9"

	"raffle-backend/internal/features/raffle/models"
	"raffle-backend/internal/features/raffle/repository"
)

func (r *redisRepository) CreatePayment(ctx context.Context, payment *models.PendingPayment) error {
	data, err := json.Marshal(payment)
	if err != nil {
		return fmt.Errorf("failed to marshal payment: %w", err)
	}
	key := makePaymentKey(payment.ID)

	return r.watch(ctx, func(tx *redis.Tx) error {
		exists, err := tx.Exists(ctx, key).Result()
		if err != nil {
			return err
		}
		if exists > 0 {
			return repository.ErrConflict
		}
		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.Set(ctx, key, data, 0)
			if payment.Status == models.PaymentPending {
				pipe.ZAdd(ctx, keyPendingPayment, pendingMember(payment))
			}
			return nil
		})
		return err
	}, key)
}

func (r *redisRepository) GetPayment(ctx context.Context, id string) (*models.PendingPayment, error) {
	return getJSON[models.PendingPayment](ctx, r.client, makePaymentKey(id))
}

func (r *redisRepository) ListPending(ctx context.Context) ([]*models.PendingPayment, error) {
	ids, err := r.client.ZRange(ctx, keyPendingPayment, 0, -1).Result()
	if err != nil {
		return nil, err
	}
	keys := make([]string, len(ids))
	for i, id := range ids {
		keys[i] = makePaymentKey(id)
	}
	payments, err := mgetJSON[models.PendingPayment](ctx, r.client, keys)
	if err != nil {
		return nil, err
	}
	out := payments[:0]
	for _, p := range payments {
		if p.Status == models.PaymentPending {
			out = append(out, p)
		}
	}
	return out, nil
}

// TransitionPayment is a compare-and-set on the payment status.
func (r *redisRepository) TransitionPayment(ctx context.Context, id string, from models.PaymentStatus, update models.PaymentUpdate) (*models.PendingPayment, error) {
	key := makePaymentKey(id)
	var updated *models.PendingPayment

	err := r.watch(ctx, func(tx *redis.Tx) error {
		payment, err := getJSON[models.PendingPayment](ctx, tx, key)
		if err != nil {
			return err
		}
		if payment.Status != from {
			return repository.ErrConflict
		}
		update.Apply(payment)
		data, err := json.Marshal(payment)
		if err != nil {
			return fmt.Errorf("failed to marshal payment: %w", err)
		}
		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.Set(ctx, key, data, 0)
			if payment.Status == models.PaymentPending {
				pipe.ZAdd(ctx, keyPendingPayment, pendingMember(payment))
			} else {
				pipe.ZRem(ctx, keyPendingPayment, payment.ID)
			}
			return nil
		})
		if err != nil {
			return err
		}
		updated = payment
		return nil
	}, key)
	if err != nil {
		return nil, err
	}
	return updated, nil
}

func pendingMember(p *models.PendingPayment) redis.Z {
	return redis.Z{Score: float64(p.Timestamp.UnixMilli()), Member: p.ID}
}
