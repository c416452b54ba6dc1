package docstore

import (
	"context"
	"time"

	"cloud.google.com/go/firestore"
	"github.com/google/uuid"

	"messengerBack/internal/models"
)

// Messages live in a subcollection of their chat document.
type messageDoc struct {
	ID        string    `firestore:"id"`
	ChatID    string    `firestore:"chatId"`
	Sender    string    `firestore:"sender"`
	Text      string    `firestore:"text"`
	CreatedAt time.Time `firestore:"createdAt"`
}

func (d messageDoc) model() models.Message {
	return models.Message{
		ID:        d.ID,
		ChatID:    d.ChatID,
		SenderID:  d.Sender,
		Text:      d.Text,
		CreatedAt: d.CreatedAt,
	}
}

func decodeMessages(snaps []*firestore.DocumentSnapshot) ([]models.Message, error) {
	messages := make([]models.Message, 0, len(snaps))
	for _, snap := range snaps {
		var d messageDoc
		if err := snap.DataTo(&d); err != nil {
			return nil, err
		}
		messages = append(messages, d.model())
	}
	return messages, nil
}

func (s *Store) messages(chatID string) *firestore.CollectionRef {
	return s.chats().Doc(chatID).Collection(messagesCollection)
}

func (s *Store) CreateMessage(ctx context.Context, msg models.Message) (models.Message, error) {
	if msg.ID == "" {
		msg.ID = uuid.NewString()
	}
	if msg.CreatedAt.IsZero() {
		msg.CreatedAt = time.Now().UTC()
	}

	chatRef := s.chats().Doc(msg.ChatID)
	err := s.client.RunTransaction(ctx, func(ctx context.Context, tx *firestore.Transaction) error {
		if _, err := tx.Get(chatRef); err != nil {
			if isNotFound(err) {
				return models.ErrChatNotFound
			}
			return err
		}
		return tx.Create(s.messages(msg.ChatID).Doc(msg.ID), messageDoc{
			ID:        msg.ID,
			ChatID:    msg.ChatID,
			Sender:    msg.SenderID,
			Text:      msg.Text,
			CreatedAt: msg.CreatedAt,
		})
	})
	if err != nil {
		return models.Message{}, err
	}
	return msg, nil
}

func (s *Store) GetMessageByID(ctx context.Context, id string) (models.Message, error) {
	snaps, err := s.client.CollectionGroup(messagesCollection).Where("id", "==", id).Limit(1).Documents(ctx).GetAll()
	if err != nil {
		return models.Message{}, err
	}
	if len(snaps) == 0 {
		return models.Message{}, models.ErrMessageNotFound
	}
	messages, err := decodeMessages(snaps)
	if err != nil {
		return models.Message{}, err
	}
	return messages[0], nil
}

func (s *Store) GetMessagesByChatID(ctx context.Context, chatID string, limit, offset int) ([]models.Message, error) {
	snaps, err := s.messages(chatID).OrderBy("createdAt", firestore.Asc).Offset(offset).Limit(limit).Documents(ctx).GetAll()
	if err != nil {
		return nil, err
	}
	return decodeMessages(snaps)
}

func (s *Store) GetRecentMessages(ctx context.Context, chatID string, limit int) ([]models.Message, error) {
	snaps, err := s.messages(chatID).OrderBy("createdAt", firestore.Desc).Limit(limit).Documents(ctx).GetAll()
	if err != nil {
		return nil, err
	}
	messages, err := decodeMessages(snaps)
	if err != nil {
		return nil, err
	}
	for i, j := 0, len(messages)-1; i < j; i, j = i+1, j-1 {
		messages[i], messages[j] = messages[j], messages[i]
	}
	return messages, nil
}

func (s *Store) GetLastMessages(ctx context.Context, chatIDs []string) (map[string]models.Message, error) {
	out := make(map[string]models.Message, len(chatIDs))
	for _, id := range chatIDs {
		recent, err := s.GetRecentMessages(ctx, id, 1)
		if err != nil {
			return nil, err
		}
		if len(recent) == 1 {
			out[id] = recent[0]
		}
	}
	return out, nil
}

func (s *Store) DeleteMessage(ctx context.Context, id string) error {
	snaps, err := s.client.CollectionGroup(messagesCollection).Where("id", "==", id).Limit(1).Documents(ctx).GetAll()
	if err != nil {
		return err
	}
	if len(snaps) == 0 {
		return models.ErrMessageNotFound
	}
	_, err = snaps[0].Ref.Delete(ctx)
	return err
}

func (s *Store) deleteChatMessages(ctx context.Context, chatID string) error {
	refs, err := s.messages(chatID).DocumentRefs(ctx).GetAll()
	if err != nil {
		return err
	}
	if len(refs) == 0 {
		return nil
	}

	bw := s.client.BulkWriter(ctx)
	for _, ref := range refs {
		if _, err := bw.Delete(ref); err != nil {
			bw.End()
			return err
		}
	}
	bw.End()
	return nil
}
