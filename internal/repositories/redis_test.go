package repositories

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"messengerBack/internal/models"
)

func newTestRedis(t *testing.T) (*redis.Client, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr(), Protocol: 2})
	t.Cleanup(func() { _ = rdb.Close() })
	return rdb, mr
}

func TestSessionRepository(t *testing.T) {
	ctx := context.Background()
	rdb, mr := newTestRedis(t)
	repo := NewSessionRepository(rdb)

	expires := time.Now().Add(time.Hour)
	for _, token := range []string{"r1", "r2"} {
		require.NoError(t, repo.SetSession(ctx, models.Session{UserID: "u1", Role: "user", RefreshToken: token, ExpiresAt: expires}))
	}
	require.NoError(t, repo.SetSession(ctx, models.Session{UserID: "u2", RefreshToken: "r3", ExpiresAt: expires}))

	got, err := repo.GetSession(ctx, "r1")
	require.NoError(t, err)
	assert.Equal(t, "u1", got.UserID)
	assert.Equal(t, "user", got.Role)
	assert.True(t, expires.Equal(got.ExpiresAt))
	assert.InDelta(t, time.Hour.Seconds(), mr.TTL(sessionKey("r1")).Seconds(), 5)

	require.NoError(t, repo.DeleteSession(ctx, "r1"))
	_, err = repo.GetSession(ctx, "r1")
	assert.ErrorIs(t, err, models.ErrSessionNotFound)
	require.NoError(t, repo.DeleteSession(ctx, "r1"), "deleting twice is fine")

	members, err := mr.Members(userSessionsKey("u1"))
	require.NoError(t, err)
	assert.Equal(t, []string{"r2"}, members)

	require.NoError(t, repo.DeleteUserSessions(ctx, "u1"))
	_, err = repo.GetSession(ctx, "r2")
	assert.ErrorIs(t, err, models.ErrSessionNotFound)
	assert.False(t, mr.Exists(userSessionsKey("u1")))

	_, err = repo.GetSession(ctx, "r3")
	assert.NoError(t, err, "other users keep their sessions")

	err = repo.SetSession(ctx, models.Session{UserID: "u1", RefreshToken: "old", ExpiresAt: time.Now().Add(-time.Minute)})
	assert.ErrorIs(t, err, models.ErrSessionExpired)

	mr.FastForward(2 * time.Hour)
	_, err = repo.GetSession(ctx, "r3")
	assert.ErrorIs(t, err, models.ErrSessionNotFound)
}

func TestResetCodeRepositoryAttempts(t *testing.T) {
	ctx := context.Background()
	rdb, mr := newTestRedis(t)
	repo := NewResetCodeRepository(rdb)

	require.NoError(t, repo.SaveResetCode(ctx, "a@x.io", "123456", time.Minute))
	for i := 0; i < 2; i++ {
		ok, err := repo.CheckResetCode(ctx, "a@x.io", "000000", 2)
		require.NoError(t, err)
		assert.False(t, ok)
	}
	assert.False(t, mr.Exists(resetKey("a@x.io")), "locked after max attempts")
	ok, err := repo.CheckResetCode(ctx, "a@x.io", "123456", 2)
	require.NoError(t, err)
	assert.False(t, ok)

	require.NoError(t, repo.SaveResetCode(ctx, "a@x.io", "654321", time.Minute))
	ok, err = repo.CheckResetCode(ctx, "a@x.io", "654321", 5)
	require.NoError(t, err)
	assert.True(t, ok)
	ok, _ = repo.CheckResetCode(ctx, "a@x.io", "654321", 5)
	assert.False(t, ok, "codes are single use")

	require.NoError(t, repo.SaveResetCode(ctx, "b@x.io", "111111", time.Minute))
	mr.FastForward(2 * time.Minute)
	ok, _ = repo.CheckResetCode(ctx, "b@x.io", "111111", 5)
	assert.False(t, ok, "codes expire")
}

func TestResetCodeRepositoryConcurrentMatchWinsOnce(t *testing.T) {
	ctx := context.Background()
	rdb, _ := newTestRedis(t)
	repo := NewResetCodeRepository(rdb)
	require.NoError(t, repo.SaveResetCode(ctx, "a@x.io", "123456", time.Minute))

	var (
		wg   sync.WaitGroup
		mu   sync.Mutex
		wins int
	)
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			ok, err := repo.CheckResetCode(ctx, "a@x.io", "123456", 5)
			if err == nil && ok {
				mu.Lock()
				wins++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()
	assert.Equal(t, 1, wins)
}

func TestResetCodeRepositoryRequestWindow(t *testing.T) {
	ctx := context.Background()
	rdb, mr := newTestRedis(t)
	repo := NewResetCodeRepository(rdb)

	for want := 1; want <= 3; want++ {
		n, err := repo.CountResetRequest(ctx, "a@x.io", time.Hour)
		require.NoError(t, err)
		assert.Equal(t, want, n)
	}
	assert.Equal(t, time.Hour, mr.TTL(resetRequestsKey("a@x.io")), "window is not extended by later requests")

	mr.FastForward(time.Hour + time.Second)
	n, err := repo.CountResetRequest(ctx, "a@x.io", time.Hour)
	require.NoError(t, err)
	assert.Equal(t, 1, n)
}

func TestResetCodeRepositoryConsumeResetToken(t *testing.T) {
	ctx := context.Background()
	rdb, mr := newTestRedis(t)
	repo := NewResetCodeRepository(rdb)

	ok, err := repo.ConsumeResetToken(ctx, "jti-1", time.Minute)
	require.NoError(t, err)
	assert.True(t, ok)
	ok, err = repo.ConsumeResetToken(ctx, "jti-1", time.Minute)
	require.NoError(t, err)
	assert.False(t, ok, "a reset token works once")

	ok, err = repo.ConsumeResetToken(ctx, "jti-2", -time.Second)
	require.NoError(t, err)
	assert.False(t, ok)
	assert.False(t, mr.Exists(usedResetTokenKey("jti-2")))
}
