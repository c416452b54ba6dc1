package repositories

import (
	"context"
	"database/sql"
	"time"

	"messengerBack/internal/models"
)

// DeviceTokenRepository keeps FCM registration tokens in notify_tokens.
type DeviceTokenRepository struct {
	DB      *sql.DB
	Dialect Dialect
}

func (r *DeviceTokenRepository) SaveToken(ctx context.Context, token models.DeviceToken) error {
	if token.UpdatedAt.IsZero() {
		token.UpdatedAt = time.Now().UTC()
	}

	query := `INSERT INTO notify_tokens (token, user_id, platform, updated_at) VALUES (?, ?, ?, ?)`
	switch r.Dialect {
	case Postgres:
		query += ` ON CONFLICT (token) DO UPDATE SET user_id = EXCLUDED.user_id, platform = EXCLUDED.platform, updated_at = EXCLUDED.updated_at`
	default:
		query += ` ON DUPLICATE KEY UPDATE user_id = VALUES(user_id), platform = VALUES(platform), updated_at = VALUES(updated_at)`
	}

	_, err := r.DB.ExecContext(ctx, r.Dialect.Rebind(query), token.Token, token.UserID, token.Platform, token.UpdatedAt)
	if err != nil && isForeignKeyConstraintError(err) {
		return models.ErrUserNotFound
	}
	return err
}

func (r *DeviceTokenRepository) GetTokensByUserID(ctx context.Context, userID string) ([]string, error) {
	rows, err := r.DB.QueryContext(ctx, r.Dialect.Rebind(`SELECT token FROM notify_tokens WHERE user_id = ? ORDER BY token`), userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var tokens []string
	for rows.Next() {
		var token string
		if err := rows.Scan(&token); err != nil {
			return nil, err
		}
		tokens = append(tokens, token)
	}

	if err = rows.Err(); err != nil {
		return nil, err
	}
	return tokens, nil
}

func (r *DeviceTokenRepository) DeleteToken(ctx context.Context, token string) error {
	_, err := r.DB.ExecContext(ctx, r.Dialect.Rebind(`DELETE FROM notify_tokens WHERE token = ?`), token)
	return err
}

func (r *DeviceTokenRepository) DeleteTokensByUserID(ctx context.Context, userID string) error {
	_, err := r.DB.ExecContext(ctx, r.Dialect.Rebind(`DELETE FROM notify_tokens WHERE user_id = ?`), userID)
	return err
}

func (r *DeviceTokenRepository) DeleteStaleTokens(ctx context.Context, before time.Time) (int64, error) {
	res, err := r.DB.ExecContext(ctx, r.Dialect.Rebind(`DELETE FROM notify_tokens WHERE updated_at < ?`), before)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}
