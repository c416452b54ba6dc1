package repositories

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/google/uuid"

	"messengerBack/internal/models"
)

type MessageRepository struct {
	Db      *sql.DB
	Dialect Dialect
}

const messageColumns = `id, chat_id, sender_id, text, created_at`

func (r *MessageRepository) CreateMessage(ctx context.Context, message models.Message) (models.Message, error) {
	if message.ID == "" {
		message.ID = uuid.NewString()
	}
	if message.CreatedAt.IsZero() {
		message.CreatedAt = time.Now().UTC()
	}

	insertMessageQuery := `
        INSERT INTO messages (id, chat_id, sender_id, text, created_at)
        VALUES (?, ?, ?, ?, ?)`
	_, err := r.Db.ExecContext(ctx, r.Dialect.Rebind(insertMessageQuery),
		message.ID, message.ChatID, message.SenderID, message.Text, message.CreatedAt)
	if err != nil {
		if isForeignKeyConstraintError(err) {
			return models.Message{}, models.ErrChatNotFound
		}
		return models.Message{}, err
	}
	return message, nil
}

func (r *MessageRepository) GetMessageByID(ctx context.Context, id string) (models.Message, error) {
	var message models.Message
	query := `SELECT ` + messageColumns + ` FROM messages WHERE id = ?`
	err := r.Db.QueryRowContext(ctx, r.Dialect.Rebind(query), id).Scan(
		&message.ID, &message.ChatID, &message.SenderID, &message.Text, &message.CreatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return models.Message{}, models.ErrMessageNotFound
		}
		return models.Message{}, err
	}
	return message, nil
}

func (r *MessageRepository) GetMessagesByChatID(ctx context.Context, chatID string, limit, offset int) ([]models.Message, error) {
	query := `SELECT ` + messageColumns + ` FROM messages WHERE chat_id = ? ORDER BY created_at ASC, id ASC LIMIT ? OFFSET ?`
	return r.queryMessages(ctx, query, chatID, limit, offset)
}

func (r *MessageRepository) GetRecentMessages(ctx context.Context, chatID string, limit int) ([]models.Message, error) {
	query := `SELECT ` + messageColumns + ` FROM messages WHERE chat_id = ? ORDER BY created_at DESC, id DESC LIMIT ?`
	messages, err := r.queryMessages(ctx, query, chatID, limit)
	if err != nil {
		return nil, err
	}
	for i, j := 0, len(messages)-1; i < j; i, j = i+1, j-1 {
		messages[i], messages[j] = messages[j], messages[i]
	}
	return messages, nil
}

func (r *MessageRepository) GetLastMessages(ctx context.Context, chatIDs []string) (map[string]models.Message, error) {
	out := make(map[string]models.Message, len(chatIDs))
	if len(chatIDs) == 0 {
		return out, nil
	}
	query := `
        SELECT m.id, m.chat_id, m.sender_id, m.text, m.created_at
        FROM messages m
        WHERE m.chat_id IN (` + placeholders(len(chatIDs)) + `)
          AND m.created_at = (SELECT MAX(x.created_at) FROM messages x WHERE x.chat_id = m.chat_id)
        ORDER BY m.chat_id, m.id DESC`
	messages, err := r.queryMessages(ctx, query, stringArgs(chatIDs)...)
	if err != nil {
		return nil, err
	}
	for _, m := range messages {
		if _, seen := out[m.ChatID]; !seen {
			out[m.ChatID] = m
		}
	}
	return out, nil
}

func (r *MessageRepository) DeleteMessage(ctx context.Context, id string) error {
	res, err := r.Db.ExecContext(ctx, r.Dialect.Rebind(`DELETE FROM messages WHERE id = ?`), id)
	if err != nil {
		return err
	}
	return expectAffected(res, models.ErrMessageNotFound)
}

func (r *MessageRepository) queryMessages(ctx context.Context, query string, args ...interface{}) ([]models.Message, error) {
	rows, err := r.Db.QueryContext(ctx, r.Dialect.Rebind(query), args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	messages := []models.Message{}
	for rows.Next() {
		var message models.Message
		if err := rows.Scan(&message.ID, &message.ChatID, &message.SenderID, &message.Text, &message.CreatedAt); err != nil {
			return nil, err
		}
		messages = append(messages, message)
	}

	if err = rows.Err(); err != nil {
		return nil, err
	}
	return messages, nil
}
