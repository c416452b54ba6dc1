package repositories

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"messengerBack/internal/models"
)

// SessionRepository keeps refresh-token sessions in Redis. Each session lives
// under its own key with a TTL, and a per-user set indexes the tokens.
type SessionRepository struct {
	rdb *redis.Client
}

func NewSessionRepository(rdb *redis.Client) *SessionRepository {
	return &SessionRepository{rdb: rdb}
}

func sessionKey(token string) string {
	return "session:" + token
}

func userSessionsKey(userID string) string {
	return fmt.Sprintf("user_sessions:%s", userID)
}

func (r *SessionRepository) SetSession(ctx context.Context, session models.Session) error {
	ttl := time.Until(session.ExpiresAt)
	if ttl <= 0 {
		return models.ErrSessionExpired
	}
	data, err := json.Marshal(session)
	if err != nil {
		return err
	}

	pipe := r.rdb.TxPipeline()
	pipe.Set(ctx, sessionKey(session.RefreshToken), data, ttl)
	pipe.SAdd(ctx, userSessionsKey(session.UserID), session.RefreshToken)
	pipe.Expire(ctx, userSessionsKey(session.UserID), ttl)
	_, err = pipe.Exec(ctx)
	return err
}

func (r *SessionRepository) GetSession(ctx context.Context, refreshToken string) (models.Session, error) {
	data, err := r.rdb.Get(ctx, sessionKey(refreshToken)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return models.Session{}, models.ErrSessionNotFound
		}
		return models.Session{}, err
	}

	var session models.Session
	if err := json.Unmarshal(data, &session); err != nil {
		return models.Session{}, err
	}
	return session, nil
}

func (r *SessionRepository) DeleteSession(ctx context.Context, refreshToken string) error {
	session, err := r.GetSession(ctx, refreshToken)
	if err != nil {
		if errors.Is(err, models.ErrSessionNotFound) {
			return nil
		}
		return err
	}

	pipe := r.rdb.TxPipeline()
	pipe.Del(ctx, sessionKey(refreshToken))
	pipe.SRem(ctx, userSessionsKey(session.UserID), refreshToken)
	_, err = pipe.Exec(ctx)
	return err
}

func (r *SessionRepository) DeleteUserSessions(ctx context.Context, userID string) error {
	tokens, err := r.rdb.SMembers(ctx, userSessionsKey(userID)).Result()
	if err != nil {
		return err
	}

	keys := make([]string, 0, len(tokens)+1)
	for _, token := range tokens {
		keys = append(keys, sessionKey(token))
	}
	keys = append(keys, userSessionsKey(userID))
	return r.rdb.Del(ctx, keys...).Err()
}
