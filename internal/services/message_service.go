package services

import (
	"context"
	"strings"
	"time"
	"unicode/utf8"

	"messengerBack/internal/models"
	"messengerBack/internal/realtime"
)

const (
	maxMessageLength = 4096
	defaultPage      = 1
	defaultPageSize  = 50
	maxPageSize      = 100
)

// MessageNotifier pushes new messages to participants that are not connected.
type MessageNotifier interface {
	NotifyNewMessage(ctx context.Context, chat models.Chat, msg models.Message, sender models.User)
}

type MessageService struct {
	MessageRepo MessageStore
	UserRepo    UserStore
	Chats       *ChatService
	Publisher   Publisher
	Notifier    MessageNotifier
	Logger      Logger
}

func (s *MessageService) logger() Logger {
	if s.Logger == nil {
		return nopLogger{}
	}
	return s.Logger
}

func (s *MessageService) SendMessage(ctx context.Context, senderID, chatID, text string) (models.Message, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return models.Message{}, models.ErrEmptyMessage
	}
	if utf8.RuneCountInString(text) > maxMessageLength {
		return models.Message{}, models.ErrMessageTooLong
	}

	chat, err := s.Chats.GetChatForMember(ctx, senderID, chatID)
	if err != nil {
		return models.Message{}, err
	}

	msg, err := s.MessageRepo.CreateMessage(ctx, models.Message{
		ChatID:    chatID,
		SenderID:  senderID,
		Text:      text,
		CreatedAt: time.Now().UTC(),
	})
	if err != nil {
		return models.Message{}, err
	}
	if err := s.Chats.ChatRepo.TouchChat(ctx, chatID, msg.CreatedAt); err != nil {
		s.logger().Errorf("touch chat %s: %v", chatID, err)
	}

	s.publish(ctx, realtime.ChatTopic(chatID), realtime.EventMessage, msg)
	s.Chats.PublishChatLists(ctx, chat.Participants)

	if s.Notifier != nil {
		sender, err := s.UserRepo.GetUserByID(ctx, senderID)
		if err != nil {
			s.logger().Errorf("load sender %s for notification: %v", senderID, err)
		} else {
			s.Notifier.NotifyNewMessage(ctx, chat, msg, sender)
		}
	}
	return msg, nil
}

// ListMessages pages a chat oldest first.
func (s *MessageService) ListMessages(ctx context.Context, userID, chatID string, page, pageSize int) (models.MessagePage, error) {
	if _, err := s.Chats.GetChatForMember(ctx, userID, chatID); err != nil {
		return models.MessagePage{}, err
	}
	page, pageSize = normalizePage(page, pageSize)

	messages, err := s.MessageRepo.GetMessagesByChatID(ctx, chatID, pageSize, (page-1)*pageSize)
	if err != nil {
		return models.MessagePage{}, err
	}
	return models.MessagePage{Messages: messages, Page: page, PageSize: pageSize}, nil
}

// DeleteMessage lets the sender remove their own message.
func (s *MessageService) DeleteMessage(ctx context.Context, userID, messageID string) error {
	msg, err := s.MessageRepo.GetMessageByID(ctx, messageID)
	if err != nil {
		return err
	}
	if msg.SenderID != userID {
		return models.ErrForbidden
	}
	if err := s.MessageRepo.DeleteMessage(ctx, messageID); err != nil {
		return err
	}

	s.publish(ctx, realtime.ChatTopic(msg.ChatID), realtime.EventMessageDeleted, map[string]string{"id": msg.ID, "chat_id": msg.ChatID})
	if chat, err := s.Chats.ChatRepo.GetChatByID(ctx, msg.ChatID); err == nil {
		s.Chats.PublishChatLists(ctx, chat.Participants)
	}
	return nil
}

func (s *MessageService) publish(ctx context.Context, topic, eventType string, payload interface{}) {
	if s.Publisher == nil {
		return
	}
	if err := s.Publisher.Publish(ctx, topic, eventType, payload); err != nil {
		s.logger().Errorf("publish %s to %s: %v", eventType, topic, err)
	}
}

func normalizePage(page, pageSize int) (int, int) {
	if page < 1 {
		page = defaultPage
	}
	if pageSize < 1 {
		pageSize = defaultPageSize
	}
	if pageSize > maxPageSize {
		pageSize = maxPageSize
	}
	return page, pageSize
}
