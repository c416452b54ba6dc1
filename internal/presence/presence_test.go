package presence

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTracker(t *testing.T, ttl time.Duration) (*Tracker, *miniredis.Miniredis, *time.Time) {
	t.Helper()
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr(), Protocol: 2})
	t.Cleanup(func() { _ = rdb.Close() })

	now := time.Unix(1_700_000_000, 0)
	tr := NewTracker(rdb, ttl)
	tr.now = func() time.Time { return now }
	return tr, mr, &now
}

func TestTrackerOnlineUntilLastConnectionLeaves(t *testing.T) {
	ctx := context.Background()
	tr, _, _ := newTracker(t, time.Minute)

	online, err := tr.IsOnline(ctx, "u1")
	require.NoError(t, err)
	assert.False(t, online)

	require.NoError(t, tr.Touch(ctx, "u1", "phone"))
	require.NoError(t, tr.Touch(ctx, "u1", "laptop"))
	online, _ = tr.IsOnline(ctx, "u1")
	assert.True(t, online)

	require.NoError(t, tr.Leave(ctx, "u1", "phone"))
	online, _ = tr.IsOnline(ctx, "u1")
	assert.True(t, online, "laptop is still connected")

	require.NoError(t, tr.Leave(ctx, "u1", "laptop"))
	online, _ = tr.IsOnline(ctx, "u1")
	assert.False(t, online)
}

func TestTrackerExpiresStaleConnections(t *testing.T) {
	ctx := context.Background()
	tr, mr, now := newTracker(t, 30*time.Second)

	require.NoError(t, tr.Touch(ctx, "u1", "c1"))
	assert.Equal(t, 30*time.Second, mr.TTL(presenceKey("u1")))

	*now = now.Add(31 * time.Second)
	online, err := tr.IsOnline(ctx, "u1")
	require.NoError(t, err)
	assert.False(t, online, "a connection without a refresh goes offline")

	// a fresh touch prunes the expired member
	require.NoError(t, tr.Touch(ctx, "u1", "c2"))
	members, err := mr.ZMembers(presenceKey("u1"))
	require.NoError(t, err)
	assert.Equal(t, []string{"c2"}, members)
}

func TestNewTrackerDefaultsTTL(t *testing.T) {
	tr := NewTracker(nil, 0)
	assert.Equal(t, DefaultTTL, tr.ttl)
}
