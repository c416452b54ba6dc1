package docstore

import (
	"context"
	"time"

	"cloud.google.com/go/firestore"
	"github.com/google/uuid"

	"messengerBack/internal/models"
)

type chatDoc struct {
	ID           string     `firestore:"id"`
	Title        string     `firestore:"title"`
	IsGroup      bool       `firestore:"isGroup"`
	CreatedBy    string     `firestore:"createdBy"`
	Participants []string   `firestore:"participants"`
	CreatedAt    time.Time  `firestore:"createdAt"`
	UpdatedAt    *time.Time `firestore:"updatedAt"`
}

func chatToDoc(c models.Chat) chatDoc {
	return chatDoc{
		ID:           c.ID,
		Title:        c.Title,
		IsGroup:      c.IsGroup,
		CreatedBy:    c.CreatedBy,
		Participants: c.Participants,
		CreatedAt:    c.CreatedAt,
		UpdatedAt:    c.UpdatedAt,
	}
}

func (d chatDoc) model() models.Chat {
	return models.Chat{
		ID:           d.ID,
		Title:        d.Title,
		IsGroup:      d.IsGroup,
		CreatedBy:    d.CreatedBy,
		Participants: d.Participants,
		CreatedAt:    d.CreatedAt,
		UpdatedAt:    d.UpdatedAt,
	}
}

func decodeChat(snap *firestore.DocumentSnapshot) (models.Chat, error) {
	var d chatDoc
	if err := snap.DataTo(&d); err != nil {
		return models.Chat{}, err
	}
	if d.ID == "" {
		d.ID = snap.Ref.ID
	}
	return d.model(), nil
}

func decodeChats(snaps []*firestore.DocumentSnapshot) ([]models.Chat, error) {
	chats := make([]models.Chat, 0, len(snaps))
	for _, snap := range snaps {
		c, err := decodeChat(snap)
		if err != nil {
			return nil, err
		}
		chats = append(chats, c)
	}
	return chats, nil
}

func (s *Store) chats() *firestore.CollectionRef {
	return s.client.Collection(chatsCollection)
}

func (s *Store) CreateChat(ctx context.Context, chat models.Chat) (models.Chat, error) {
	if chat.ID == "" {
		chat.ID = uuid.NewString()
	}
	chat.CreatedAt = time.Now().UTC()
	chat.UpdatedAt = &chat.CreatedAt

	if _, err := s.chats().Doc(chat.ID).Create(ctx, chatToDoc(chat)); err != nil {
		return models.Chat{}, err
	}
	return chat, nil
}

func (s *Store) GetChatByID(ctx context.Context, id string) (models.Chat, error) {
	snap, err := s.chats().Doc(id).Get(ctx)
	if err != nil {
		if isNotFound(err) {
			return models.Chat{}, models.ErrChatNotFound
		}
		return models.Chat{}, err
	}
	return decodeChat(snap)
}

func (s *Store) GetChatsByUserID(ctx context.Context, userID string) ([]models.Chat, error) {
	snaps, err := s.chats().Where("participants", "array-contains", userID).Documents(ctx).GetAll()
	if err != nil {
		return nil, err
	}
	return decodeChats(snaps)
}

func (s *Store) GetAllChats(ctx context.Context) ([]models.Chat, error) {
	snaps, err := s.chats().Documents(ctx).GetAll()
	if err != nil {
		return nil, err
	}
	return decodeChats(snaps)
}

func (s *Store) FindDirectChat(ctx context.Context, a, b string) (models.Chat, error) {
	chats, err := s.GetChatsByUserID(ctx, a)
	if err != nil {
		return models.Chat{}, err
	}
	for _, c := range chats {
		if !c.IsGroup && len(c.Participants) == 2 && c.HasParticipant(b) {
			return c, nil
		}
	}
	return models.Chat{}, models.ErrChatNotFound
}

func (s *Store) SetParticipants(ctx context.Context, chatID string, participants []string) error {
	return s.updateChat(ctx, chatID,
		firestore.Update{Path: "participants", Value: participants},
		firestore.Update{Path: "updatedAt", Value: time.Now().UTC()},
	)
}

func (s *Store) TouchChat(ctx context.Context, chatID string, at time.Time) error {
	return s.updateChat(ctx, chatID, firestore.Update{Path: "updatedAt", Value: at})
}

func (s *Store) updateChat(ctx context.Context, chatID string, updates ...firestore.Update) error {
	_, err := s.chats().Doc(chatID).Update(ctx, updates)
	if err != nil && isNotFound(err) {
		return models.ErrChatNotFound
	}
	return err
}

func (s *Store) DeleteChat(ctx context.Context, id string) error {
	ref := s.chats().Doc(id)
	if _, err := ref.Get(ctx); err != nil {
		if isNotFound(err) {
			return models.ErrChatNotFound
		}
		return err
	}
	if err := s.deleteChatMessages(ctx, id); err != nil {
		return err
	}
	_, err := ref.Delete(ctx)
	return err
}
