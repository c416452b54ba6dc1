// Package memory keeps every store in process memory. It backs the "memory"
// store backend used for local development and tests.
package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"messengerBack/internal/models"
)

type resetEntry struct {
	code      string
	attempts  int
	expiresAt time.Time
}

type requestWindow struct {
	count     int
	expiresAt time.Time
}

type Store struct {
	mu       sync.RWMutex
	users    map[string]models.User
	emails   map[string]string
	chats    map[string]models.Chat
	messages map[string][]models.Message
	tokens   map[string]models.DeviceToken
	sessions map[string]models.Session
	resets   map[string]resetEntry
	requests map[string]requestWindow
	used     map[string]time.Time

	now func() time.Time
}

func New() *Store {
	return &Store{
		users:    make(map[string]models.User),
		emails:   make(map[string]string),
		chats:    make(map[string]models.Chat),
		messages: make(map[string][]models.Message),
		tokens:   make(map[string]models.DeviceToken),
		sessions: make(map[string]models.Session),
		resets:   make(map[string]resetEntry),
		requests: make(map[string]requestWindow),
		used:     make(map[string]time.Time),
		now:      time.Now,
	}
}

// Users

func (s *Store) CreateUser(_ context.Context, user models.User) (models.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.emails[user.Email]; ok {
		return models.User{}, models.ErrDuplicateEmail
	}
	if user.ID == "" {
		user.ID = uuid.NewString()
	}
	if _, ok := s.users[user.ID]; ok {
		return models.User{}, models.ErrProfileExists
	}
	if user.CreatedAt.IsZero() {
		user.CreatedAt = s.now().UTC()
	}
	s.users[user.ID] = user
	s.emails[user.Email] = user.ID
	return user, nil
}

func (s *Store) GetUserByID(_ context.Context, id string) (models.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	u, ok := s.users[id]
	if !ok {
		return models.User{}, models.ErrUserNotFound
	}
	return u, nil
}

func (s *Store) GetUserByEmail(_ context.Context, email string) (models.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	id, ok := s.emails[email]
	if !ok {
		return models.User{}, models.ErrUserNotFound
	}
	return s.users[id], nil
}

func (s *Store) GetUsersByIDs(_ context.Context, ids []string) ([]models.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]models.User, 0, len(ids))
	for _, id := range ids {
		if u, ok := s.users[id]; ok {
			out = append(out, u)
		}
	}
	return out, nil
}

func (s *Store) SearchUsers(_ context.Context, excludeID, email string) ([]models.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []models.User
	for _, u := range s.users {
		if u.ID == excludeID {
			continue
		}
		if email != "" && u.Email != email {
			continue
		}
		out = append(out, u)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (s *Store) UpdateProfile(_ context.Context, user models.User) (models.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	cur, ok := s.users[user.ID]
	if !ok {
		return models.User{}, models.ErrUserNotFound
	}
	now := s.now().UTC()
	cur.FirstName = user.FirstName
	cur.LastName = user.LastName
	cur.DateOfBirth = user.DateOfBirth
	cur.UpdatedAt = &now
	s.users[user.ID] = cur
	return cur, nil
}

func (s *Store) UpdatePassword(_ context.Context, id, passwordHash string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	cur, ok := s.users[id]
	if !ok {
		return models.ErrUserNotFound
	}
	cur.Password = passwordHash
	s.users[id] = cur
	return nil
}

func (s *Store) UpdateAvatar(_ context.Context, id string, avatarURL *string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	cur, ok := s.users[id]
	if !ok {
		return models.ErrUserNotFound
	}
	cur.AvatarURL = avatarURL
	s.users[id] = cur
	return nil
}

func (s *Store) DeleteUser(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	u, ok := s.users[id]
	if !ok {
		return models.ErrUserNotFound
	}
	delete(s.emails, u.Email)
	delete(s.users, id)
	return nil
}

// Chats

func (s *Store) CreateChat(_ context.Context, chat models.Chat) (models.Chat, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if chat.ID == "" {
		chat.ID = uuid.NewString()
	}
	if chat.CreatedAt.IsZero() {
		chat.CreatedAt = s.now().UTC()
	}
	chat.Participants = append([]string(nil), chat.Participants...)
	s.chats[chat.ID] = chat
	return chat, nil
}

func (s *Store) GetChatByID(_ context.Context, id string) (models.Chat, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	c, ok := s.chats[id]
	if !ok {
		return models.Chat{}, models.ErrChatNotFound
	}
	return copyChat(c), nil
}

func (s *Store) GetChatsByUserID(_ context.Context, userID string) ([]models.Chat, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []models.Chat
	for _, c := range s.chats {
		if c.HasParticipant(userID) {
			out = append(out, copyChat(c))
		}
	}
	return out, nil
}

func (s *Store) GetAllChats(_ context.Context) ([]models.Chat, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]models.Chat, 0, len(s.chats))
	for _, c := range s.chats {
		out = append(out, copyChat(c))
	}
	return out, nil
}

func (s *Store) FindDirectChat(_ context.Context, a, b string) (models.Chat, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	for _, c := range s.chats {
		if !c.IsGroup && len(c.Participants) == 2 && c.HasParticipant(a) && c.HasParticipant(b) {
			return copyChat(c), nil
		}
	}
	return models.Chat{}, models.ErrChatNotFound
}

func (s *Store) SetParticipants(_ context.Context, chatID string, participants []string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	c, ok := s.chats[chatID]
	if !ok {
		return models.ErrChatNotFound
	}
	c.Participants = append([]string(nil), participants...)
	s.chats[chatID] = c
	return nil
}

func (s *Store) TouchChat(_ context.Context, chatID string, at time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	c, ok := s.chats[chatID]
	if !ok {
		return models.ErrChatNotFound
	}
	c.UpdatedAt = &at
	s.chats[chatID] = c
	return nil
}

func (s *Store) DeleteChat(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.chats[id]; !ok {
		return models.ErrChatNotFound
	}
	delete(s.chats, id)
	delete(s.messages, id)
	return nil
}

func copyChat(c models.Chat) models.Chat {
	c.Participants = append([]string(nil), c.Participants...)
	return c
}

// Messages

func (s *Store) CreateMessage(_ context.Context, msg models.Message) (models.Message, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.chats[msg.ChatID]; !ok {
		return models.Message{}, models.ErrChatNotFound
	}
	if msg.ID == "" {
		msg.ID = uuid.NewString()
	}
	if msg.CreatedAt.IsZero() {
		msg.CreatedAt = s.now().UTC()
	}
	s.messages[msg.ChatID] = append(s.messages[msg.ChatID], msg)
	return msg, nil
}

func (s *Store) GetMessageByID(_ context.Context, id string) (models.Message, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	for _, msgs := range s.messages {
		for _, m := range msgs {
			if m.ID == id {
				return m, nil
			}
		}
	}
	return models.Message{}, models.ErrMessageNotFound
}

func (s *Store) GetMessagesByChatID(_ context.Context, chatID string, limit, offset int) ([]models.Message, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	msgs := s.messages[chatID]
	if offset >= len(msgs) {
		return []models.Message{}, nil
	}
	end := offset + limit
	if end > len(msgs) {
		end = len(msgs)
	}
	return append([]models.Message(nil), msgs[offset:end]...), nil
}

func (s *Store) GetRecentMessages(_ context.Context, chatID string, limit int) ([]models.Message, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	msgs := s.messages[chatID]
	start := len(msgs) - limit
	if start < 0 {
		start = 0
	}
	return append([]models.Message{}, msgs[start:]...), nil
}

func (s *Store) GetLastMessages(_ context.Context, chatIDs []string) (map[string]models.Message, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make(map[string]models.Message, len(chatIDs))
	for _, id := range chatIDs {
		if msgs := s.messages[id]; len(msgs) > 0 {
			out[id] = msgs[len(msgs)-1]
		}
	}
	return out, nil
}

func (s *Store) DeleteMessage(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for chatID, msgs := range s.messages {
		for i, m := range msgs {
			if m.ID == id {
				s.messages[chatID] = append(msgs[:i:i], msgs[i+1:]...)
				return nil
			}
		}
	}
	return models.ErrMessageNotFound
}

// Device tokens

func (s *Store) SaveToken(_ context.Context, token models.DeviceToken) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if token.UpdatedAt.IsZero() {
		token.UpdatedAt = s.now().UTC()
	}
	s.tokens[token.Token] = token
	return nil
}

func (s *Store) GetTokensByUserID(_ context.Context, userID string) ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []string
	for _, t := range s.tokens {
		if t.UserID == userID {
			out = append(out, t.Token)
		}
	}
	sort.Strings(out)
	return out, nil
}

func (s *Store) DeleteToken(_ context.Context, token string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	delete(s.tokens, token)
	return nil
}

func (s *Store) DeleteTokensByUserID(_ context.Context, userID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for k, t := range s.tokens {
		if t.UserID == userID {
			delete(s.tokens, k)
		}
	}
	return nil
}

func (s *Store) DeleteStaleTokens(_ context.Context, before time.Time) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var n int64
	for k, t := range s.tokens {
		if t.UpdatedAt.Before(before) {
			delete(s.tokens, k)
			n++
		}
	}
	return n, nil
}

// Sessions

func (s *Store) SetSession(_ context.Context, session models.Session) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.sessions[session.RefreshToken] = session
	return nil
}

func (s *Store) GetSession(_ context.Context, refreshToken string) (models.Session, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	sess, ok := s.sessions[refreshToken]
	if !ok || sess.ExpiresAt.Before(s.now()) {
		return models.Session{}, models.ErrSessionNotFound
	}
	return sess, nil
}

func (s *Store) DeleteSession(_ context.Context, refreshToken string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	delete(s.sessions, refreshToken)
	return nil
}

func (s *Store) DeleteUserSessions(_ context.Context, userID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for k, sess := range s.sessions {
		if sess.UserID == userID {
			delete(s.sessions, k)
		}
	}
	return nil
}

// Password reset codes

func (s *Store) SaveResetCode(_ context.Context, email, code string, ttl time.Duration) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.resets[email] = resetEntry{code: code, expiresAt: s.now().Add(ttl)}
	return nil
}

func (s *Store) CheckResetCode(_ context.Context, email, code string, maxAttempts int) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	entry, ok := s.resets[email]
	if !ok || entry.expiresAt.Before(s.now()) {
		delete(s.resets, email)
		return false, nil
	}
	if entry.code == code {
		delete(s.resets, email)
		return true, nil
	}
	entry.attempts++
	if entry.attempts >= maxAttempts {
		delete(s.resets, email)
	} else {
		s.resets[email] = entry
	}
	return false, nil
}

func (s *Store) CountResetRequest(_ context.Context, email string, window time.Duration) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	w, ok := s.requests[email]
	if !ok || !w.expiresAt.After(s.now()) {
		w = requestWindow{expiresAt: s.now().Add(window)}
	}
	w.count++
	s.requests[email] = w
	return w.count, nil
}

func (s *Store) ConsumeResetToken(_ context.Context, tokenID string, ttl time.Duration) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if ttl <= 0 {
		return false, nil
	}
	if until, ok := s.used[tokenID]; ok && until.After(s.now()) {
		return false, nil
	}
	s.used[tokenID] = s.now().Add(ttl)
	return true, nil
}
