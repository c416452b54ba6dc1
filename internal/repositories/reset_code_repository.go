package repositories

import (
	"context"
	"errors"
	"time"

	"github.com/redis/go-redis/v9"
)

// ResetCodeRepository keeps pending password reset codes in Redis hashes.
type ResetCodeRepository struct {
	rdb *redis.Client
}

func NewResetCodeRepository(rdb *redis.Client) *ResetCodeRepository {
	return &ResetCodeRepository{rdb: rdb}
}

func resetKey(email string) string {
	return "password_reset:" + email
}

func resetRequestsKey(email string) string {
	return "password_reset_requests:" + email
}

func usedResetTokenKey(tokenID string) string {
	return "password_reset_used:" + tokenID
}

func (r *ResetCodeRepository) SaveResetCode(ctx context.Context, email, code string, ttl time.Duration) error {
	key := resetKey(email)
	pipe := r.rdb.TxPipeline()
	pipe.Del(ctx, key)
	pipe.HSet(ctx, key, "code", code, "attempts", 0)
	pipe.Expire(ctx, key, ttl)
	_, err := pipe.Exec(ctx)
	return err
}

func (r *ResetCodeRepository) CheckResetCode(ctx context.Context, email, code string, maxAttempts int) (bool, error) {
	key := resetKey(email)
	stored, err := r.rdb.HGet(ctx, key, "code").Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return false, nil
		}
		return false, err
	}

	if stored == code {
		// only the caller that removes the key wins a concurrent check
		n, err := r.rdb.Del(ctx, key).Result()
		if err != nil {
			return false, err
		}
		return n == 1, nil
	}

	attempts, err := r.rdb.HIncrBy(ctx, key, "attempts", 1).Result()
	if err != nil {
		return false, err
	}
	if attempts >= int64(maxAttempts) {
		if err := r.rdb.Del(ctx, key).Err(); err != nil {
			return false, err
		}
	}
	return false, nil
}

func (r *ResetCodeRepository) CountResetRequest(ctx context.Context, email string, window time.Duration) (int, error) {
	key := resetRequestsKey(email)
	n, err := r.rdb.Incr(ctx, key).Result()
	if err != nil {
		return 0, err
	}
	if n == 1 {
		if err := r.rdb.Expire(ctx, key, window).Err(); err != nil {
			return 0, err
		}
	}
	return int(n), nil
}

func (r *ResetCodeRepository) ConsumeResetToken(ctx context.Context, tokenID string, ttl time.Duration) (bool, error) {
	if ttl <= 0 {
		return false, nil
	}
	return r.rdb.SetNX(ctx, usedResetTokenKey(tokenID), 1, ttl).Result()
}
