// Package presence records which users hold a live realtime connection.
package presence

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
)

// DefaultTTL is how long a connection counts as online without a refresh.
const DefaultTTL = 45 * time.Second

// Tracker keeps one sorted set per user whose members are connection ids
// scored by their expiry time.
type Tracker struct {
	rdb *redis.Client
	ttl time.Duration
	now func() time.Time
}

func NewTracker(rdb *redis.Client, ttl time.Duration) *Tracker {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &Tracker{rdb: rdb, ttl: ttl, now: time.Now}
}

func presenceKey(userID string) string {
	return fmt.Sprintf("presence:%s", userID)
}

// Touch marks connID of userID online for another ttl.
func (t *Tracker) Touch(ctx context.Context, userID, connID string) error {
	key := presenceKey(userID)
	expiry := t.now().Add(t.ttl)

	pipe := t.rdb.TxPipeline()
	pipe.ZAdd(ctx, key, redis.Z{Score: float64(expiry.Unix()), Member: connID})
	pipe.ZRemRangeByScore(ctx, key, "-inf", "("+strconv.FormatInt(t.now().Unix(), 10))
	pipe.Expire(ctx, key, t.ttl)
	_, err := pipe.Exec(ctx)
	return err
}

// Leave removes connID from the user's live connections.
func (t *Tracker) Leave(ctx context.Context, userID, connID string) error {
	return t.rdb.ZRem(ctx, presenceKey(userID), connID).Err()
}

// IsOnline reports whether userID has an unexpired connection.
func (t *Tracker) IsOnline(ctx context.Context, userID string) (bool, error) {
	n, err := t.rdb.ZCount(ctx, presenceKey(userID), strconv.FormatInt(t.now().Unix(), 10), "+inf").Result()
	if err != nil {
		return false, err
	}
	return n > 0, nil
}
