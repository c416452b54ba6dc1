package services

import (
	"context"
	"time"

	"messengerBack/internal/models"
)

// UserStore persists user profiles. Lookups of a missing user return
// models.ErrUserNotFound.
type UserStore interface {
	CreateUser(ctx context.Context, user models.User) (models.User, error)
	GetUserByID(ctx context.Context, id string) (models.User, error)
	GetUserByEmail(ctx context.Context, email string) (models.User, error)
	GetUsersByIDs(ctx context.Context, ids []string) ([]models.User, error)
	// SearchUsers returns every user except excludeID; a non-empty email
	// narrows the result to that exact address.
	SearchUsers(ctx context.Context, excludeID, email string) ([]models.User, error)
	UpdateProfile(ctx context.Context, user models.User) (models.User, error)
	UpdatePassword(ctx context.Context, id, passwordHash string) error
	UpdateAvatar(ctx context.Context, id string, avatarURL *string) error
	DeleteUser(ctx context.Context, id string) error
}

// ChatStore persists chats and their participant lists. Lookups of a missing
// chat return models.ErrChatNotFound.
type ChatStore interface {
	CreateChat(ctx context.Context, chat models.Chat) (models.Chat, error)
	GetChatByID(ctx context.Context, id string) (models.Chat, error)
	GetChatsByUserID(ctx context.Context, userID string) ([]models.Chat, error)
	GetAllChats(ctx context.Context) ([]models.Chat, error)
	// FindDirectChat returns the one-to-one chat between a and b.
	FindDirectChat(ctx context.Context, a, b string) (models.Chat, error)
	SetParticipants(ctx context.Context, chatID string, participants []string) error
	TouchChat(ctx context.Context, chatID string, at time.Time) error
	DeleteChat(ctx context.Context, id string) error
}

// MessageStore persists chat messages. Lookups of a missing message return
// models.ErrMessageNotFound.
type MessageStore interface {
	CreateMessage(ctx context.Context, msg models.Message) (models.Message, error)
	GetMessageByID(ctx context.Context, id string) (models.Message, error)
	// GetMessagesByChatID pages oldest first.
	GetMessagesByChatID(ctx context.Context, chatID string, limit, offset int) ([]models.Message, error)
	// GetRecentMessages returns the newest limit messages, oldest first.
	GetRecentMessages(ctx context.Context, chatID string, limit int) ([]models.Message, error)
	GetLastMessages(ctx context.Context, chatIDs []string) (map[string]models.Message, error)
	DeleteMessage(ctx context.Context, id string) error
}

type DeviceTokenStore interface {
	SaveToken(ctx context.Context, token models.DeviceToken) error
	GetTokensByUserID(ctx context.Context, userID string) ([]string, error)
	DeleteToken(ctx context.Context, token string) error
	DeleteTokensByUserID(ctx context.Context, userID string) error
	DeleteStaleTokens(ctx context.Context, before time.Time) (int64, error)
}

// SessionStore keeps refresh-token sessions. A missing session returns
// models.ErrSessionNotFound.
type SessionStore interface {
	SetSession(ctx context.Context, session models.Session) error
	GetSession(ctx context.Context, refreshToken string) (models.Session, error)
	DeleteSession(ctx context.Context, refreshToken string) error
	DeleteUserSessions(ctx context.Context, userID string) error
}

// ResetCodeStore keeps one pending password reset code per email.
type ResetCodeStore interface {
	SaveResetCode(ctx context.Context, email, code string, ttl time.Duration) error
	// CheckResetCode consumes the code on a match and counts failed attempts;
	// the code is dropped once maxAttempts failures are reached.
	CheckResetCode(ctx context.Context, email, code string, maxAttempts int) (bool, error)
	// CountResetRequest counts reset requests for email within a window
	// that starts with the first request and returns the running total.
	CountResetRequest(ctx context.Context, email string, window time.Duration) (int, error)
	// ConsumeResetToken marks a reset token id used. It reports false when
	// the id was already consumed.
	ConsumeResetToken(ctx context.Context, tokenID string, ttl time.Duration) (bool, error)
}

// Publisher fans events out to realtime subscribers.
type Publisher interface {
	Publish(ctx context.Context, topic, eventType string, payload interface{}) error
}

// PresenceChecker tells whether a user has a live realtime connection.
type PresenceChecker interface {
	IsOnline(ctx context.Context, userID string) (bool, error)
}

type Mailer interface {
	Send(ctx context.Context, to, subject, body string) error
}

// Logger is the logging surface services need.
type Logger interface {
	Infof(format string, args ...interface{})
	Errorf(format string, args ...interface{})
}

type nopLogger struct{}

func (nopLogger) Infof(string, ...interface{})  {}
func (nopLogger) Errorf(string, ...interface{}) {}
