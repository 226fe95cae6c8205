package redis

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"

	"raffle-backend/internal/features/raffle/models"
	"raffle-backend/internal/features/raffle/repository"
)

const (
	fieldState      = "state"
	fieldOwner      = "owner"
	fieldIsFree     = "is_free"
	fieldFreeReason = "free_reason"
	fieldSaleID     = "sale_id"
	fieldSoldAt     = "sold_at"
)

// roundContents is what has to be removed when a round goes away.
type roundContents struct {
	numbers []string
	sales   []*models.Sale
}

func loadRoundContents(ctx context.Context, c redis.Cmdable, den int, round int64) (*roundContents, error) {
	if round == 0 {
		return &roundContents{}, nil
	}
	numbers, err := c.SUnion(ctx, makeAvailableKey(den, round), makeSoldKey(den, round)).Result()
	if err != nil {
		return nil, err
	}
	ids, err := c.SMembers(ctx, makeRoundSalesKey(den, round)).Result()
	if err != nil {
		return nil, err
	}
	sales, err := loadSales(ctx, c, ids)
	if err != nil {
		return nil, err
	}
	return &roundContents{numbers: numbers, sales: sales}, nil
}

func deleteRoundPipe(ctx context.Context, pipe redis.Pipeliner, den int, round int64, rc *roundContents) {
	if round == 0 {
		return
	}
	keys := []string{makeAvailableKey(den, round), makeSoldKey(den, round), makeRoundSalesKey(den, round)}
	for _, n := range rc.numbers {
		number, err := strconv.Atoi(n)
		if err != nil {
			continue
		}
		keys = append(keys, makeTicketKey(den, round, number))
	}
	for _, s := range rc.sales {
		keys = append(keys, makeSaleKey(s.ID))
		pipe.SRem(ctx, makeUserSalesKey(s.BuyerID), s.ID)
	}
	pipe.Del(ctx, keys...)
}

func (r *redisRepository) InitializeRound(ctx context.Context, den, poolSize int) (int64, bool, error) {
	var (
		roundID int64
		created bool
	)
	err := r.watch(ctx, func(tx *redis.Tx) error {
		cur, err := currentRound(ctx, tx, den)
		if err != nil {
			return err
		}
		if cur != 0 {
			avail, err := tx.SCard(ctx, makeAvailableKey(den, cur)).Result()
			if err != nil {
				return err
			}
			sold, err := tx.SCard(ctx, makeSoldKey(den, cur)).Result()
			if err != nil {
				return err
			}
			if avail+sold >= int64(poolSize) {
				roundID, created = cur, false
				return nil
			}
		}

		leftovers, err := loadRoundContents(ctx, tx, den, cur)
		if err != nil {
			return err
		}
		// The sequence only grows, so a failed EXEC leaves a gap but never reuses an id.
		next, err := tx.Incr(ctx, makeRoundSeqKey(den)).Result()
		if err != nil {
			return err
		}

		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			deleteRoundPipe(ctx, pipe, den, cur, leftovers)
			members := make([]interface{}, 0, poolSize)
			for n := 1; n <= poolSize; n++ {
				pipe.HSet(ctx, makeTicketKey(den, next, n), fieldState, string(models.TicketAvailable))
				members = append(members, n)
			}
			pipe.SAdd(ctx, makeAvailableKey(den, next), members...)
			pipe.Set(ctx, makeRoundKey(den), next, 0)
			return nil
		})
		if err != nil {
			return err
		}
		roundID, created = next, true
		return nil
	}, makeRoundKey(den))
	if err != nil {
		return 0, false, err
	}
	return roundID, created, nil
}

func (r *redisRepository) CurrentRound(ctx context.Context, den int) (int64, error) {
	return currentRound(ctx, r.client, den)
}

func (r *redisRepository) RoundStats(ctx context.Context, den int) (*models.PoolStats, error) {
	cur, err := currentRound(ctx, r.client, den)
	if err != nil {
		return nil, err
	}
	stats := &models.PoolStats{Denomination: den, RoundID: cur}
	if cur == 0 {
		return stats, nil
	}

	pipe := r.client.Pipeline()
	avail := pipe.SCard(ctx, makeAvailableKey(den, cur))
	sold := pipe.SCard(ctx, makeSoldKey(den, cur))
	if _, err := pipe.Exec(ctx); err != nil {
		return nil, err
	}
	stats.Available = int(avail.Val())
	stats.Sold = int(sold.Val())
	return stats, nil
}

func (r *redisRepository) ListAvailable(ctx context.Context, den int) ([]int, error) {
	cur, err := currentRound(ctx, r.client, den)
	if err != nil || cur == 0 {
		return nil, err
	}
	members, err := r.client.SMembers(ctx, makeAvailableKey(den, cur)).Result()
	if err != nil {
		return nil, err
	}
	numbers := make([]int, 0, len(members))
	for _, m := range members {
		n, err := strconv.Atoi(m)
		if err != nil {
			return nil, fmt.Errorf("invalid ticket number %q: %w", m, err)
		}
		numbers = append(numbers, n)
	}
	sort.Ints(numbers)
	return numbers, nil
}

func (r *redisRepository) GetTicket(ctx context.Context, den, number int) (*models.Ticket, error) {
	cur, err := currentRound(ctx, r.client, den)
	if err != nil {
		return nil, err
	}
	if cur == 0 {
		return nil, repository.ErrNotFound
	}
	fields, err := r.client.HGetAll(ctx, makeTicketKey(den, cur, number)).Result()
	if err != nil {
		return nil, err
	}
	if len(fields) == 0 {
		return nil, repository.ErrNotFound
	}
	return parseTicket(den, cur, number, fields)
}

func parseTicket(den int, round int64, number int, fields map[string]string) (*models.Ticket, error) {
	t := &models.Ticket{
		Denomination: den,
		Number:       number,
		RoundID:      round,
		State:        models.TicketState(fields[fieldState]),
		IsFree:       fields[fieldIsFree] == "1",
		FreeReason:   models.FreeReason(fields[fieldFreeReason]),
		SaleID:       fields[fieldSaleID],
	}
	if owner := fields[fieldOwner]; owner != "" {
		id, err := strconv.ParseInt(owner, 10, 64)
		if err != nil {
			return nil, fmt.Errorf("invalid ticket owner %q: %w", owner, err)
		}
		t.Owner = id
	}
	if soldAt := fields[fieldSoldAt]; soldAt != "" {
		ts, err := time.Parse(time.RFC3339Nano, soldAt)
		if err != nil {
			return nil, fmt.Errorf("invalid sold_at %q: %w", soldAt, err)
		}
		t.SoldAt = &ts
	}
	return t, nil
}

func (r *redisRepository) DeleteRound(ctx context.Context, den int, roundID int64) error {
	return r.watch(ctx, func(tx *redis.Tx) error {
		rc, err := loadRoundContents(ctx, tx, den, roundID)
		if err != nil {
			return err
		}
		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			deleteRoundPipe(ctx, pipe, den, roundID, rc)
			return nil
		})
		return err
	}, makeSoldKey(den, roundID), makeRoundSalesKey(den, roundID))
}

func isNil(err error) bool {
	return errors.Is(err, redis.Nil)
}
