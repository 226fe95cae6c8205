package redis

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/redis/go-redis/v9"

	"raffle-backend/internal/features/raffle/models"
	"raffle-backend/internal/features/raffle/repository"
)

// CreateDraw is a conditional create on the round's draw key. The draw record,
// the history entries and the winners' balance credits land in one EXEC.
func (r *redisRepository) CreateDraw(ctx context.Context, draw *models.Draw) error {
	data, err := json.Marshal(draw)
	if err != nil {
		return fmt.Errorf("failed to marshal draw: %w", err)
	}
	key := makeDrawKey(draw.Denomination, draw.RoundID)

	return r.watch(ctx, func(tx *redis.Tx) error {
		exists, err := tx.Exists(ctx, key).Result()
		if err != nil {
			return err
		}
		if exists > 0 {
			return repository.ErrDrawExists
		}
		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.Set(ctx, key, data, 0)
			for _, history := range []string{makeDrawHistoryKey(draw.Denomination), keyDrawsAll} {
				pipe.LPush(ctx, history, data)
				pipe.LTrim(ctx, history, 0, drawHistoryLen-1)
			}
			for _, w := range draw.Winners {
				pipe.HIncrBy(ctx, makeUserKey(w.BuyerID), fieldBalance, w.Prize)
			}
			return nil
		})
		return err
	}, key)
}

func (r *redisRepository) GetDraw(ctx context.Context, den int, roundID int64) (*models.Draw, error) {
	return getJSON[models.Draw](ctx, r.client, makeDrawKey(den, roundID))
}

// ListDraws reads the capped history list. den 0 lists every denomination.
func (r *redisRepository) ListDraws(ctx context.Context, den int, limit int) ([]*models.Draw, error) {
	key := keyDrawsAll
	if den != 0 {
		key = makeDrawHistoryKey(den)
	}
	if limit <= 0 || limit > drawHistoryLen {
		limit = drawHistoryLen
	}
	items, err := r.client.LRange(ctx, key, 0, int64(limit-1)).Result()
	if err != nil {
		return nil, err
	}
	draws := make([]*models.Draw, 0, len(items))
	for _, item := range items {
		var d models.Draw
		if err := json.Unmarshal([]byte(item), &d); err != nil {
			return nil, fmt.Errorf("decode draw: %w", err)
		}
		draws = append(draws, &d)
	}
	return draws, nil
}
