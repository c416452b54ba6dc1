package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"unicode/utf8"

	"messengerBack/internal/models"
	"messengerBack/internal/realtime"
)

const (
	maxTitleLength       = 100
	snapshotMessageLimit = 50
)

type ChatService struct {
	ChatRepo    ChatStore
	MessageRepo MessageStore
	UserRepo    UserStore
	Publisher   Publisher
	Logger      Logger
}

func (s *ChatService) logger() Logger {
	if s.Logger == nil {
		return nopLogger{}
	}
	return s.Logger
}

// CreateChat opens a chat between the creator and participantIDs. For two
// people an existing one-to-one chat is returned instead, with created false.
func (s *ChatService) CreateChat(ctx context.Context, creatorID string, participantIDs []string, title string) (models.ChatView, bool, error) {
	participants := uniqueIDs(append([]string{creatorID}, participantIDs...))
	if len(participants) < 2 {
		return models.ChatView{}, false, models.ErrNotEnoughParticipants
	}
	title = strings.TrimSpace(title)
	if utf8.RuneCountInString(title) > maxTitleLength {
		return models.ChatView{}, false, fmt.Errorf("%w: title is longer than %d characters", models.ErrInvalidInput, maxTitleLength)
	}

	users, err := s.UserRepo.GetUsersByIDs(ctx, participants)
	if err != nil {
		return models.ChatView{}, false, err
	}
	if len(users) != len(participants) {
		return models.ChatView{}, false, models.ErrUserNotFound
	}

	if len(participants) == 2 {
		existing, err := s.ChatRepo.FindDirectChat(ctx, participants[0], participants[1])
		if err == nil {
			view, err := s.view(ctx, creatorID, existing)
			return view, false, err
		}
		if !errors.Is(err, models.ErrChatNotFound) {
			return models.ChatView{}, false, err
		}
	}

	chat := models.Chat{
		CreatedBy:    creatorID,
		Participants: participants,
		IsGroup:      len(participants) > 2,
	}
	if chat.IsGroup {
		chat.Title = title
	}
	chat, err = s.ChatRepo.CreateChat(ctx, chat)
	if err != nil {
		return models.ChatView{}, false, err
	}
	s.logger().Infof("chat %s created by %s with %d participants", chat.ID, creatorID, len(participants))

	s.PublishChatLists(ctx, chat.Participants)
	view, err := s.view(ctx, creatorID, chat)
	return view, true, err
}

// ListChats returns the chats of userID, newest activity first.
func (s *ChatService) ListChats(ctx context.Context, userID string) ([]models.ChatView, error) {
	chats, err := s.ChatRepo.GetChatsByUserID(ctx, userID)
	if err != nil {
		return nil, err
	}
	sortChatsByActivity(chats)
	return s.views(ctx, userID, chats)
}

// SearchChats filters ListChats by a case-insensitive substring of another
// member's email or name, or of the chat title.
func (s *ChatService) SearchChats(ctx context.Context, userID, query string) ([]models.ChatView, error) {
	views, err := s.ListChats(ctx, userID)
	if err != nil {
		return nil, err
	}
	q := strings.ToLower(strings.TrimSpace(query))
	if q == "" {
		return views, nil
	}
	out := make([]models.ChatView, 0, len(views))
	for _, v := range views {
		if matchesChatQuery(v, userID, q) {
			out = append(out, v)
		}
	}
	return out, nil
}

func (s *ChatService) GetChat(ctx context.Context, userID, chatID string) (models.ChatView, error) {
	chat, err := s.GetChatForMember(ctx, userID, chatID)
	if err != nil {
		return models.ChatView{}, err
	}
	return s.view(ctx, userID, chat)
}

// GetChatForMember loads a chat and checks userID participates in it.
func (s *ChatService) GetChatForMember(ctx context.Context, userID, chatID string) (models.Chat, error) {
	chat, err := s.ChatRepo.GetChatByID(ctx, chatID)
	if err != nil {
		return models.Chat{}, err
	}
	if !chat.HasParticipant(userID) {
		return models.Chat{}, models.ErrForbidden
	}
	return chat, nil
}

// ChatSnapshot is the chat with its latest messages, sent to a new chat
// topic subscriber.
func (s *ChatService) ChatSnapshot(ctx context.Context, userID, chatID string) (models.ChatSnapshot, error) {
	view, err := s.GetChat(ctx, userID, chatID)
	if err != nil {
		return models.ChatSnapshot{}, err
	}
	messages, err := s.MessageRepo.GetRecentMessages(ctx, chatID, snapshotMessageLimit)
	if err != nil {
		return models.ChatSnapshot{}, err
	}
	return models.ChatSnapshot{Chat: view, Messages: messages}, nil
}

func (s *ChatService) DeleteChat(ctx context.Context, userID, chatID string) error {
	chat, err := s.GetChatForMember(ctx, userID, chatID)
	if err != nil {
		return err
	}
	if err := s.ChatRepo.DeleteChat(ctx, chatID); err != nil {
		return err
	}
	s.logger().Infof("chat %s deleted by %s", chatID, userID)

	s.publish(ctx, realtime.ChatTopic(chatID), realtime.EventChatDeleted, map[string]string{"id": chatID})
	s.PublishChatLists(ctx, chat.Participants)
	return nil
}

// LeaveChat removes userID from a group chat. A group left with fewer than
// two people is deleted.
func (s *ChatService) LeaveChat(ctx context.Context, userID, chatID string) error {
	chat, err := s.GetChatForMember(ctx, userID, chatID)
	if err != nil {
		return err
	}
	if !chat.IsGroup {
		return models.ErrNotGroupChat
	}

	remaining := make([]string, 0, len(chat.Participants)-1)
	for _, id := range chat.Participants {
		if id != userID {
			remaining = append(remaining, id)
		}
	}

	if len(remaining) < 2 {
		if err := s.ChatRepo.DeleteChat(ctx, chatID); err != nil {
			return err
		}
		s.publish(ctx, realtime.ChatTopic(chatID), realtime.EventChatDeleted, map[string]string{"id": chatID})
	} else {
		if err := s.ChatRepo.SetParticipants(ctx, chatID, remaining); err != nil {
			return err
		}
		chat.Participants = remaining
		s.publish(ctx, realtime.ChatTopic(chatID), realtime.EventChatUpdated, chat)
		s.publish(ctx, realtime.ChatTopic(chatID), realtime.EventMemberRemoved, realtime.MemberRemoved{ChatID: chatID, UserID: userID})
	}

	s.PublishChatLists(ctx, append(remaining, userID))
	return nil
}

func (s *ChatService) AddParticipants(ctx context.Context, userID, chatID string, ids []string) (models.ChatView, error) {
	chat, err := s.GetChatForMember(ctx, userID, chatID)
	if err != nil {
		return models.ChatView{}, err
	}
	if !chat.IsGroup {
		return models.ChatView{}, models.ErrNotGroupChat
	}

	var added []string
	for _, id := range uniqueIDs(ids) {
		if !chat.HasParticipant(id) {
			added = append(added, id)
		}
	}
	if len(added) == 0 {
		return s.view(ctx, userID, chat)
	}

	users, err := s.UserRepo.GetUsersByIDs(ctx, added)
	if err != nil {
		return models.ChatView{}, err
	}
	if len(users) != len(added) {
		return models.ChatView{}, models.ErrUserNotFound
	}

	chat.Participants = append(chat.Participants, added...)
	if err := s.ChatRepo.SetParticipants(ctx, chatID, chat.Participants); err != nil {
		return models.ChatView{}, err
	}

	s.publish(ctx, realtime.ChatTopic(chatID), realtime.EventChatUpdated, chat)
	s.PublishChatLists(ctx, chat.Participants)
	return s.view(ctx, userID, chat)
}

// ListAllChats returns every chat. Admin only.
func (s *ChatService) ListAllChats(ctx context.Context) ([]models.Chat, error) {
	chats, err := s.ChatRepo.GetAllChats(ctx)
	if err != nil {
		return nil, err
	}
	sortChatsByActivity(chats)
	return chats, nil
}

// PublishChatLists pushes a fresh chat list snapshot to each user.
func (s *ChatService) PublishChatLists(ctx context.Context, userIDs []string) {
	if s.Publisher == nil {
		return
	}
	for _, id := range uniqueIDs(userIDs) {
		views, err := s.ListChats(ctx, id)
		if err != nil {
			s.logger().Errorf("chat list snapshot for %s: %v", id, err)
			continue
		}
		s.publish(ctx, realtime.UserTopic(id), realtime.EventSnapshot, views)
	}
}

func (s *ChatService) publish(ctx context.Context, topic, eventType string, payload interface{}) {
	if s.Publisher == nil {
		return
	}
	if err := s.Publisher.Publish(ctx, topic, eventType, payload); err != nil {
		s.logger().Errorf("publish %s to %s: %v", eventType, topic, err)
	}
}

func (s *ChatService) view(ctx context.Context, me string, chat models.Chat) (models.ChatView, error) {
	views, err := s.views(ctx, me, []models.Chat{chat})
	if err != nil {
		return models.ChatView{}, err
	}
	return views[0], nil
}

func (s *ChatService) views(ctx context.Context, me string, chats []models.Chat) ([]models.ChatView, error) {
	out := make([]models.ChatView, 0, len(chats))
	if len(chats) == 0 {
		return out, nil
	}

	var ids, chatIDs []string
	for _, c := range chats {
		ids = append(ids, c.Participants...)
		chatIDs = append(chatIDs, c.ID)
	}
	users, err := s.UserRepo.GetUsersByIDs(ctx, uniqueIDs(ids))
	if err != nil {
		return nil, err
	}
	byID := make(map[string]models.UserSummary, len(users))
	for _, u := range users {
		byID[u.ID] = u.Summary()
	}

	last, err := s.MessageRepo.GetLastMessages(ctx, chatIDs)
	if err != nil {
		return nil, err
	}

	for _, c := range chats {
		var lm *models.Message
		if m, ok := last[c.ID]; ok {
			lm = &m
		}
		out = append(out, buildChatView(c, me, byID, lm))
	}
	return out, nil
}
