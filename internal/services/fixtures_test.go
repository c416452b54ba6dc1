package services

import (
	"context"
	"sync"
	"testing"
	"time"

	"firebase.google.com/go/messaging"

	"messengerBack/internal/auth"
	"messengerBack/internal/models"
	"messengerBack/internal/repositories/memory"
	"messengerBack/utils"
)

type publishedEvent struct {
	Topic   string
	Type    string
	Payload interface{}
}

type recordingPublisher struct {
	mu     sync.Mutex
	events []publishedEvent
}

func (p *recordingPublisher) Publish(_ context.Context, topic, eventType string, payload interface{}) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, publishedEvent{Topic: topic, Type: eventType, Payload: payload})
	return nil
}

func (p *recordingPublisher) byTopic(topic string) []publishedEvent {
	p.mu.Lock()
	defer p.mu.Unlock()
	var out []publishedEvent
	for _, e := range p.events {
		if e.Topic == topic {
			out = append(out, e)
		}
	}
	return out
}

func (p *recordingPublisher) reset() {
	p.mu.Lock()
	p.events = nil
	p.mu.Unlock()
}

type sentMail struct {
	To, Subject, Body string
}

type stubMailer struct {
	sent []sentMail
}

func (m *stubMailer) Send(_ context.Context, to, subject, body string) error {
	m.sent = append(m.sent, sentMail{To: to, Subject: subject, Body: body})
	return nil
}

type stubPresence map[string]bool

func (p stubPresence) IsOnline(_ context.Context, userID string) (bool, error) {
	return p[userID], nil
}

type stubPusher struct {
	mu   sync.Mutex
	sent []*messaging.Message
	err  error
}

func (p *stubPusher) Send(_ context.Context, message *messaging.Message) (string, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.err != nil {
		return "", p.err
	}
	p.sent = append(p.sent, message)
	return "projects/test/messages/1", nil
}

type stubNotifier struct {
	calls []models.Message
}

func (n *stubNotifier) NotifyNewMessage(_ context.Context, _ models.Chat, msg models.Message, _ models.User) {
	n.calls = append(n.calls, msg)
}

type fixture struct {
	store     *memory.Store
	publisher *recordingPublisher
	mailer    *stubMailer
	notifier  *stubNotifier

	users    *UserService
	contacts *ContactService
	chats    *ChatService
	messages *MessageService
}

func newFixture(t *testing.T) *fixture {
	t.Helper()

	issuer, err := auth.NewTokenIssuer("access-secret", time.Hour)
	if err != nil {
		t.Fatalf("issuer: %v", err)
	}
	manager, err := utils.NewManager("reset-secret")
	if err != nil {
		t.Fatalf("manager: %v", err)
	}

	store := memory.New()
	f := &fixture{
		store:     store,
		publisher: &recordingPublisher{},
		mailer:    &stubMailer{},
		notifier:  &stubNotifier{},
	}
	f.users = &UserService{
		UserRepo:     store,
		Sessions:     store,
		ResetCodes:   store,
		DeviceTokens: store,
		Mailer:       f.mailer,
		Issuer:       issuer,
		TokenManager: manager,
	}
	f.contacts = &ContactService{UserRepo: store, ChatRepo: store}
	f.chats = &ChatService{ChatRepo: store, MessageRepo: store, UserRepo: store, Publisher: f.publisher}
	f.messages = &MessageService{
		MessageRepo: store,
		UserRepo:    store,
		Chats:       f.chats,
		Publisher:   f.publisher,
		Notifier:    f.notifier,
	}
	return f
}

func (f *fixture) signUp(t *testing.T, first, last, email string) models.User {
	t.Helper()
	res, err := f.users.SignUp(context.Background(), models.SignUpRequest{
		FirstName: first,
		LastName:  last,
		Email:     email,
		Password:  "secret123",
	})
	if err != nil {
		t.Fatalf("sign up %s: %v", email, err)
	}
	return res.User
}
