package docstore

import (
	"context"
	"time"

	"cloud.google.com/go/firestore"

	"messengerBack/internal/models"
)

type tokenDoc struct {
	Token     string    `firestore:"token"`
	UserID    string    `firestore:"userId"`
	Platform  string    `firestore:"platform"`
	UpdatedAt time.Time `firestore:"updatedAt"`
}

func (s *Store) tokens() *firestore.CollectionRef {
	return s.client.Collection(tokensCollection)
}

func (s *Store) SaveToken(ctx context.Context, token models.DeviceToken) error {
	if token.UpdatedAt.IsZero() {
		token.UpdatedAt = time.Now().UTC()
	}
	_, err := s.tokens().Doc(token.Token).Set(ctx, tokenDoc{
		Token:     token.Token,
		UserID:    token.UserID,
		Platform:  token.Platform,
		UpdatedAt: token.UpdatedAt,
	})
	return err
}

func (s *Store) GetTokensByUserID(ctx context.Context, userID string) ([]string, error) {
	snaps, err := s.tokens().Where("userId", "==", userID).Documents(ctx).GetAll()
	if err != nil {
		return nil, err
	}
	tokens := make([]string, 0, len(snaps))
	for _, snap := range snaps {
		tokens = append(tokens, snap.Ref.ID)
	}
	return tokens, nil
}

func (s *Store) DeleteToken(ctx context.Context, token string) error {
	_, err := s.tokens().Doc(token).Delete(ctx)
	return err
}

func (s *Store) DeleteTokensByUserID(ctx context.Context, userID string) error {
	_, err := s.deleteWhere(ctx, s.tokens().Where("userId", "==", userID))
	return err
}

func (s *Store) DeleteStaleTokens(ctx context.Context, before time.Time) (int64, error) {
	return s.deleteWhere(ctx, s.tokens().Where("updatedAt", "<", before))
}

func (s *Store) deleteWhere(ctx context.Context, q firestore.Query) (int64, error) {
	snaps, err := q.Documents(ctx).GetAll()
	if err != nil {
		return 0, err
	}
	var n int64
	for _, snap := range snaps {
		if _, err := snap.Ref.Delete(ctx); err != nil {
			return n, err
		}
		n++
	}
	return n, nil
}
