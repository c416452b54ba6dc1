package repositories

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"messengerBack/internal/models"
)

type ChatRepository struct {
	Db      *sql.DB
	Dialect Dialect
}

const chatColumns = `c.id, c.title, c.is_group, c.created_by, c.created_at, c.updated_at`

func scanChat(row rowScanner) (models.Chat, error) {
	var (
		chat      models.Chat
		updatedAt sql.NullTime
	)
	if err := row.Scan(&chat.ID, &chat.Title, &chat.IsGroup, &chat.CreatedBy, &chat.CreatedAt, &updatedAt); err != nil {
		return models.Chat{}, err
	}
	if updatedAt.Valid {
		chat.UpdatedAt = &updatedAt.Time
	}
	return chat, nil
}

func (r *ChatRepository) CreateChat(ctx context.Context, chat models.Chat) (models.Chat, error) {
	if chat.ID == "" {
		chat.ID = uuid.NewString()
	}
	chat.CreatedAt = time.Now().UTC()
	chat.UpdatedAt = &chat.CreatedAt

	tx, err := r.Db.BeginTx(ctx, nil)
	if err != nil {
		return models.Chat{}, err
	}
	defer tx.Rollback()

	insertQuery := `INSERT INTO chats (id, title, is_group, created_by, created_at, updated_at) VALUES (?, ?, ?, ?, ?, ?)`
	if _, err := tx.ExecContext(ctx, r.Dialect.Rebind(insertQuery),
		chat.ID, chat.Title, chat.IsGroup, chat.CreatedBy, chat.CreatedAt, chat.UpdatedAt); err != nil {
		return models.Chat{}, err
	}
	if err := r.insertParticipants(ctx, tx, chat.ID, chat.Participants); err != nil {
		if isForeignKeyConstraintError(err) {
			return models.Chat{}, models.ErrUserNotFound
		}
		return models.Chat{}, err
	}

	if err := tx.Commit(); err != nil {
		return models.Chat{}, err
	}
	return chat, nil
}

func (r *ChatRepository) insertParticipants(ctx context.Context, tx *sql.Tx, chatID string, participants []string) error {
	query := r.Dialect.Rebind(`INSERT INTO chat_participants (chat_id, user_id, position) VALUES (?, ?, ?)`)
	for i, userID := range participants {
		if _, err := tx.ExecContext(ctx, query, chatID, userID, i); err != nil {
			return fmt.Errorf("add participant %s: %w", userID, err)
		}
	}
	return nil
}

func (r *ChatRepository) GetChatByID(ctx context.Context, id string) (models.Chat, error) {
	query := `SELECT ` + chatColumns + ` FROM chats c WHERE c.id = ?`
	chat, err := scanChat(r.Db.QueryRowContext(ctx, r.Dialect.Rebind(query), id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return models.Chat{}, models.ErrChatNotFound
		}
		return models.Chat{}, err
	}

	participants, err := r.participants(ctx, []string{chat.ID})
	if err != nil {
		return models.Chat{}, err
	}
	chat.Participants = participants[chat.ID]
	return chat, nil
}

func (r *ChatRepository) GetChatsByUserID(ctx context.Context, userID string) ([]models.Chat, error) {
	query := `
               SELECT ` + chatColumns + `
               FROM chats c
               JOIN chat_participants p ON p.chat_id = c.id
               WHERE p.user_id = ?
       `
	return r.queryChats(ctx, query, userID)
}

func (r *ChatRepository) GetAllChats(ctx context.Context) ([]models.Chat, error) {
	return r.queryChats(ctx, `SELECT `+chatColumns+` FROM chats c`)
}

func (r *ChatRepository) FindDirectChat(ctx context.Context, a, b string) (models.Chat, error) {
	query := `
               SELECT c.id
               FROM chats c
               JOIN chat_participants p1 ON p1.chat_id = c.id AND p1.user_id = ?
               JOIN chat_participants p2 ON p2.chat_id = c.id AND p2.user_id = ?
               WHERE c.is_group = ?
               ORDER BY c.created_at
               LIMIT 1
       `
	var chatID string
	err := r.Db.QueryRowContext(ctx, r.Dialect.Rebind(query), a, b, false).Scan(&chatID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return models.Chat{}, models.ErrChatNotFound
		}
		return models.Chat{}, err
	}
	return r.GetChatByID(ctx, chatID)
}

func (r *ChatRepository) SetParticipants(ctx context.Context, chatID string, participants []string) error {
	tx, err := r.Db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	res, err := tx.ExecContext(ctx, r.Dialect.Rebind(`UPDATE chats SET updated_at = ? WHERE id = ?`), time.Now().UTC(), chatID)
	if err != nil {
		return err
	}
	if err := expectAffected(res, models.ErrChatNotFound); err != nil {
		return err
	}
	if _, err := tx.ExecContext(ctx, r.Dialect.Rebind(`DELETE FROM chat_participants WHERE chat_id = ?`), chatID); err != nil {
		return err
	}
	if err := r.insertParticipants(ctx, tx, chatID, participants); err != nil {
		if isForeignKeyConstraintError(err) {
			return models.ErrUserNotFound
		}
		return err
	}
	return tx.Commit()
}

func (r *ChatRepository) TouchChat(ctx context.Context, chatID string, at time.Time) error {
	_, err := r.Db.ExecContext(ctx, r.Dialect.Rebind(`UPDATE chats SET updated_at = ? WHERE id = ?`), at, chatID)
	return err
}

func (r *ChatRepository) DeleteChat(ctx context.Context, id string) error {
	tx, err := r.Db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, r.Dialect.Rebind(`DELETE FROM messages WHERE chat_id = ?`), id); err != nil {
		return err
	}
	if _, err := tx.ExecContext(ctx, r.Dialect.Rebind(`DELETE FROM chat_participants WHERE chat_id = ?`), id); err != nil {
		return err
	}
	res, err := tx.ExecContext(ctx, r.Dialect.Rebind(`DELETE FROM chats WHERE id = ?`), id)
	if err != nil {
		return err
	}
	if err := expectAffected(res, models.ErrChatNotFound); err != nil {
		return err
	}
	return tx.Commit()
}

func (r *ChatRepository) queryChats(ctx context.Context, query string, args ...interface{}) ([]models.Chat, error) {
	rows, err := r.Db.QueryContext(ctx, r.Dialect.Rebind(query), args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var (
		chats []models.Chat
		ids   []string
	)
	for rows.Next() {
		chat, err := scanChat(rows)
		if err != nil {
			return nil, err
		}
		chats = append(chats, chat)
		ids = append(ids, chat.ID)
	}
	if err = rows.Err(); err != nil {
		return nil, err
	}
	if len(chats) == 0 {
		return []models.Chat{}, nil
	}

	participants, err := r.participants(ctx, ids)
	if err != nil {
		return nil, err
	}
	for i := range chats {
		chats[i].Participants = participants[chats[i].ID]
	}
	return chats, nil
}

// participants loads the ordered participant lists of the given chats.
func (r *ChatRepository) participants(ctx context.Context, chatIDs []string) (map[string][]string, error) {
	query := `SELECT chat_id, user_id FROM chat_participants WHERE chat_id IN (` + placeholders(len(chatIDs)) + `) ORDER BY chat_id, position`
	rows, err := r.Db.QueryContext(ctx, r.Dialect.Rebind(query), stringArgs(chatIDs)...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := make(map[string][]string, len(chatIDs))
	for rows.Next() {
		var chatID, userID string
		if err := rows.Scan(&chatID, &userID); err != nil {
			return nil, err
		}
		out[chatID] = append(out[chatID], userID)
	}
	return out, rows.Err()
}
