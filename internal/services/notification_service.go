package services

import (
	"context"
	"strings"
	"time"
	"unicode/utf8"

	"firebase.google.com/go/messaging"

	"messengerBack/internal/models"
)

const previewLength = 120

// Pusher sends one push message. *messaging.Client satisfies it.
type Pusher interface {
	Send(ctx context.Context, message *messaging.Message) (string, error)
}

// NotificationService manages device tokens and pushes new messages to
// participants without a live realtime connection.
type NotificationService struct {
	TokenRepo DeviceTokenStore
	Presence  PresenceChecker
	Pusher    Pusher
	Logger    Logger
}

func (s *NotificationService) logger() Logger {
	if s.Logger == nil {
		return nopLogger{}
	}
	return s.Logger
}

func (s *NotificationService) RegisterDeviceToken(ctx context.Context, userID, token, platform string) error {
	token = strings.TrimSpace(token)
	if token == "" {
		return models.ErrMissingFields
	}
	return s.TokenRepo.SaveToken(ctx, models.DeviceToken{
		Token:     token,
		UserID:    userID,
		Platform:  strings.ToLower(strings.TrimSpace(platform)),
		UpdatedAt: time.Now().UTC(),
	})
}

func (s *NotificationService) DeleteDeviceToken(ctx context.Context, token string) error {
	return s.TokenRepo.DeleteToken(ctx, token)
}

// PurgeStaleTokens drops tokens not refreshed since before.
func (s *NotificationService) PurgeStaleTokens(ctx context.Context, before time.Time) (int64, error) {
	return s.TokenRepo.DeleteStaleTokens(ctx, before)
}

func (s *NotificationService) NotifyNewMessage(ctx context.Context, chat models.Chat, msg models.Message, sender models.User) {
	if s.Pusher == nil {
		return
	}

	title := sender.FullName()
	if chat.IsGroup && chat.Title != "" {
		title = chat.Title
	}
	body := preview(msg.Text)
	if chat.IsGroup {
		body = sender.FirstName + ": " + body
	}

	for _, userID := range chat.Participants {
		if userID == msg.SenderID {
			continue
		}
		if s.Presence != nil {
			online, err := s.Presence.IsOnline(ctx, userID)
			if err != nil {
				s.logger().Errorf("presence of %s: %v", userID, err)
			} else if online {
				continue
			}
		}

		tokens, err := s.TokenRepo.GetTokensByUserID(ctx, userID)
		if err != nil {
			s.logger().Errorf("fetch tokens of %s: %v", userID, err)
			continue
		}
		for _, token := range tokens {
			s.send(ctx, token, title, body, chat.ID, msg.ID)
		}
	}
}

func (s *NotificationService) send(ctx context.Context, token, title, body, chatID, messageID string) {
	message := &messaging.Message{
		Token: token,
		Notification: &messaging.Notification{
			Title: title,
			Body:  body,
		},
		Data: map[string]string{
			"chat_id":    chatID,
			"message_id": messageID,
		},
		Android: &messaging.AndroidConfig{
			Priority: "high",
			Notification: &messaging.AndroidNotification{
				ChannelID: "high_priority_channel",
			},
		},
		APNS: &messaging.APNSConfig{
			Headers: map[string]string{
				"apns-priority": "10",
			},
			Payload: &messaging.APNSPayload{
				Aps: &messaging.Aps{
					Alert: &messaging.ApsAlert{
						Title: title,
						Body:  body,
					},
					Sound:    "default",
					ThreadID: chatID,
				},
			},
		},
	}

	if _, err := s.Pusher.Send(ctx, message); err != nil {
		if messaging.IsRegistrationTokenNotRegistered(err) {
			if err := s.TokenRepo.DeleteToken(ctx, token); err != nil {
				s.logger().Errorf("drop unregistered token: %v", err)
			}
			return
		}
		s.logger().Errorf("push to token %s: %v", shortToken(token), err)
	}
}

func preview(text string) string {
	if utf8.RuneCountInString(text) <= previewLength {
		return text
	}
	runes := []rune(text)
	return string(runes[:previewLength-1]) + "…"
}

func shortToken(token string) string {
	if len(token) <= 8 {
		return token
	}
	return token[:8] + "..."
}
