package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"

	"raffle-backend/internal/features/raffle/models"
	"raffle-backend/internal/features/raffle/repository"
)

const fieldReferralClaimed = "referral_bonus_claimed"

// CommitSale is a single optimistic transaction over the round pointer, the
// ticket and the round's draw key. A changed watched key means someone else got
// there first, which is reported as ErrConflict without retrying.
func (r *redisRepository) CommitSale(ctx context.Context, sale *models.Sale, opts models.CommitOptions) (*models.CommitResult, error) {
	den := sale.Denomination
	var result *models.CommitResult

	err := r.client.Watch(ctx, func(tx *redis.Tx) error {
		cur, err := currentRound(ctx, tx, den)
		if err != nil {
			return err
		}
		if cur == 0 {
			return repository.ErrNotFound
		}

		ticketKey := makeTicketKey(den, cur, sale.Number)
		watchKeys := []string{ticketKey, makeDrawKey(den, cur)}
		if opts.ClaimReferral {
			watchKeys = append(watchKeys, makeUserKey(sale.BuyerID))
		}
		if err := tx.Watch(ctx, watchKeys...).Err(); err != nil {
			return err
		}

		state, err := tx.HGet(ctx, ticketKey, fieldState).Result()
		if isNil(err) {
			return repository.ErrNotFound
		}
		if err != nil {
			return err
		}
		if models.TicketState(state) != models.TicketAvailable {
			return repository.ErrConflict
		}
		drawn, err := tx.Exists(ctx, makeDrawKey(den, cur)).Result()
		if err != nil {
			return err
		}
		if drawn > 0 {
			return repository.ErrConflict
		}
		if opts.ClaimReferral {
			claimed, err := tx.HGet(ctx, makeUserKey(sale.BuyerID), fieldReferralClaimed).Result()
			if err != nil && !isNil(err) {
				return err
			}
			if claimed == "1" {
				return repository.ErrAlreadyClaimed
			}
		}

		sale.RoundID = cur
		data, err := json.Marshal(sale)
		if err != nil {
			return fmt.Errorf("failed to marshal sale: %w", err)
		}
		isFree := "0"
		if sale.IsFree {
			isFree = "1"
		}

		var purchases *redis.IntCmd
		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.HSet(ctx, ticketKey,
				fieldState, string(models.TicketSold),
				fieldOwner, strconv.FormatInt(sale.BuyerID, 10),
				fieldIsFree, isFree,
				fieldFreeReason, string(sale.FreeReason),
				fieldSaleID, sale.ID,
				fieldSoldAt, sale.Timestamp.UTC().Format(time.RFC3339Nano),
			)
			pipe.SMove(ctx, makeAvailableKey(den, cur), makeSoldKey(den, cur), sale.Number)
			pipe.Set(ctx, makeSaleKey(sale.ID), data, 0)
			pipe.SAdd(ctx, makeRoundSalesKey(den, cur), sale.ID)
			pipe.SAdd(ctx, makeUserSalesKey(sale.BuyerID), sale.ID)
			purchases = pipe.HIncrBy(ctx, makeUserPurchasesKey(sale.BuyerID), strconv.Itoa(den), 1)
			if opts.ClaimReferral {
				pipe.HSet(ctx, makeUserKey(sale.BuyerID), fieldReferralClaimed, "1")
			}
			return nil
		})
		if err != nil {
			return err
		}
		result = &models.CommitResult{Sale: sale, PurchaseCount: purchases.Val()}
		return nil
	}, makeRoundKey(den))

	if errors.Is(err, redis.TxFailedErr) {
		return nil, repository.ErrConflict
	}
	if err != nil {
		return nil, err
	}
	return result, nil
}

func (r *redisRepository) ListRoundSales(ctx context.Context, den int, roundID int64) ([]*models.Sale, error) {
	ids, err := r.client.SMembers(ctx, makeRoundSalesKey(den, roundID)).Result()
	if err != nil {
		return nil, err
	}
	return r.sortedSales(ctx, ids)
}

func (r *redisRepository) ListUserSales(ctx context.Context, userID int64) ([]*models.Sale, error) {
	ids, err := r.client.SMembers(ctx, makeUserSalesKey(userID)).Result()
	if err != nil {
		return nil, err
	}
	return r.sortedSales(ctx, ids)
}

func (r *redisRepository) sortedSales(ctx context.Context, ids []string) ([]*models.Sale, error) {
	sales, err := loadSales(ctx, r.client, ids)
	if err != nil {
		return nil, err
	}
	sort.SliceStable(sales, func(i, j int) bool {
		if sales[i].Timestamp.Equal(sales[j].Timestamp) {
			return sales[i].ID < sales[j].ID
		}
		return sales[i].Timestamp.Before(sales[j].Timestamp)
	})
	return sales, nil
}
