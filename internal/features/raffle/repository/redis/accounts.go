package redis

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"

	"raffle-backend/internal/features/raffle/models"
	"raffle-backend/internal/features/raffle/repository"
)

const (
	fieldID            = "id"
	fieldUsername      = "username"
	fieldFirstName     = "first_name"
	fieldReferralCode  = "referral_code"
	fieldReferredBy    = "referred_by"
	fieldReferralCount = "referral_count"
	fieldBalance       = "balance"
	fieldCreatedAt     = "created_at"
)

// CreateAccount writes the profile fields only. Counters such as balance or
// referral_count may already exist on the hash from earlier increments.
func (r *redisRepository) CreateAccount(ctx context.Context, account *models.Account) (bool, error) {
	userKey := makeUserKey(account.ID)
	codeKey := makeRefCodeKey(account.ReferralCode)
	var created bool

	err := r.watch(ctx, func(tx *redis.Tx) error {
		exists, err := tx.HExists(ctx, userKey, fieldCreatedAt).Result()
		if err != nil {
			return err
		}
		if exists {
			created = false
			return nil
		}
		owner, err := tx.Get(ctx, codeKey).Result()
		if err != nil && !isNil(err) {
			return err
		}
		if owner != "" && owner != strconv.FormatInt(account.ID, 10) {
			return repository.ErrConflict
		}

		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.HSet(ctx, userKey,
				fieldID, account.ID,
				fieldUsername, account.Username,
				fieldFirstName, account.FirstName,
				fieldReferralCode, account.ReferralCode,
				fieldReferredBy, account.ReferredBy,
				fieldCreatedAt, account.CreatedAt.UTC().Format(time.RFC3339Nano),
			)
			pipe.Set(ctx, codeKey, account.ID, 0)
			return nil
		})
		if err != nil {
			return err
		}
		created = true
		return nil
	}, userKey, codeKey)
	return created, err
}

func (r *redisRepository) GetAccount(ctx context.Context, userID int64) (*models.Account, error) {
	pipe := r.client.Pipeline()
	userCmd := pipe.HGetAll(ctx, makeUserKey(userID))
	purchasesCmd := pipe.HGetAll(ctx, makeUserPurchasesKey(userID))
	if _, err := pipe.Exec(ctx); err != nil {
		return nil, err
	}

	fields := userCmd.Val()
	if fields[fieldCreatedAt] == "" {
		return nil, repository.ErrNotFound
	}
	acc := &models.Account{
		ID:                   userID,
		Username:             fields[fieldUsername],
		FirstName:            fields[fieldFirstName],
		ReferralCode:         fields[fieldReferralCode],
		ReferralBonusClaimed: fields[fieldReferralClaimed] == "1",
		PurchaseCounts:       make(map[int]int64),
	}

	var err error
	if acc.ReferredBy, err = parseOptionalInt(fields[fieldReferredBy]); err != nil {
		return nil, fmt.Errorf("referred_by: %w", err)
	}
	if acc.ReferralCount, err = parseOptionalInt(fields[fieldReferralCount]); err != nil {
		return nil, fmt.Errorf("referral_count: %w", err)
	}
	if acc.Balance, err = parseOptionalInt(fields[fieldBalance]); err != nil {
		return nil, fmt.Errorf("balance: %w", err)
	}
	if acc.CreatedAt, err = time.Parse(time.RFC3339Nano, fields[fieldCreatedAt]); err != nil {
		return nil, fmt.Errorf("created_at: %w", err)
	}
	for den, count := range purchasesCmd.Val() {
		d, err := strconv.Atoi(den)
		if err != nil {
			return nil, fmt.Errorf("purchase denomination %q: %w", den, err)
		}
		n, err := strconv.ParseInt(count, 10, 64)
		if err != nil {
			return nil, fmt.Errorf("purchase count %q: %w", count, err)
		}
		acc.PurchaseCounts[d] = n
	}
	return acc, nil
}

func (r *redisRepository) FindByReferralCode(ctx context.Context, code string) (int64, error) {
	id, err := r.client.Get(ctx, makeRefCodeKey(code)).Int64()
	if isNil(err) {
		return 0, repository.ErrNotFound
	}
	return id, err
}

func (r *redisRepository) IncrementReferralCount(ctx context.Context, userID int64) (int64, error) {
	return r.client.HIncrBy(ctx, makeUserKey(userID), fieldReferralCount, 1).Result()
}

func parseOptionalInt(s string) (int64, error) {
	if s == "" {
		return 0, nil
	}
	return strconv.ParseInt(s, 10, 64)
}
