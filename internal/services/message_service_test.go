package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"messengerBack/internal/models"
	"messengerBack/internal/realtime"
)

func TestSendMessage(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	ann := f.signUp(t, "Ann", "Lee", "ann@x.io")
	bob := f.signUp(t, "Bob", "Ray", "bob@x.io")
	cat := f.signUp(t, "Cat", "Ng", "cat@x.io")

	chat, _, err := f.chats.CreateChat(ctx, ann.ID, []string{bob.ID}, "")
	require.NoError(t, err)

	_, err = f.messages.SendMessage(ctx, ann.ID, chat.ID, "   ")
	assert.ErrorIs(t, err, models.ErrEmptyMessage)
	_, err = f.messages.SendMessage(ctx, ann.ID, chat.ID, strings.Repeat("ж", maxMessageLength+1))
	assert.ErrorIs(t, err, models.ErrMessageTooLong)
	_, err = f.messages.SendMessage(ctx, cat.ID, chat.ID, "hi")
	assert.ErrorIs(t, err, models.ErrForbidden)
	_, err = f.messages.SendMessage(ctx, ann.ID, "missing", "hi")
	assert.ErrorIs(t, err, models.ErrChatNotFound)

	f.publisher.reset()
	msg, err := f.messages.SendMessage(ctx, ann.ID, chat.ID, "  hello  ")
	require.NoError(t, err)
	assert.Equal(t, "hello", msg.Text)
	assert.Equal(t, ann.ID, msg.SenderID)
	assert.NotEmpty(t, msg.ID)

	events := f.publisher.byTopic(realtime.ChatTopic(chat.ID))
	require.Len(t, events, 1)
	assert.Equal(t, realtime.EventMessage, events[0].Type)
	assert.Equal(t, msg, events[0].Payload)
	assert.Len(t, f.publisher.byTopic(realtime.UserTopic(bob.ID)), 1)

	require.Len(t, f.notifier.calls, 1)
	assert.Equal(t, msg.ID, f.notifier.calls[0].ID)

	stored, err := f.store.GetChatByID(ctx, chat.ID)
	require.NoError(t, err)
	require.NotNil(t, stored.UpdatedAt)
	assert.True(t, stored.UpdatedAt.Equal(msg.CreatedAt))
}

func TestListMessagesPaging(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	ann := f.signUp(t, "Ann", "Lee", "ann@x.io")
	bob := f.signUp(t, "Bob", "Ray", "bob@x.io")

	chat, _, err := f.chats.CreateChat(ctx, ann.ID, []string{bob.ID}, "")
	require.NoError(t, err)
	for i := 1; i <= 5; i++ {
		_, err := f.messages.SendMessage(ctx, bob.ID, chat.ID, fmt.Sprintf("m%d", i))
		require.NoError(t, err)
	}

	page, err := f.messages.ListMessages(ctx, ann.ID, chat.ID, 2, 2)
	require.NoError(t, err)
	assert.Equal(t, 2, page.Page)
	assert.Equal(t, 2, page.PageSize)
	require.Len(t, page.Messages, 2)
	assert.Equal(t, "m3", page.Messages[0].Text)
	assert.Equal(t, "m4", page.Messages[1].Text)

	page, err = f.messages.ListMessages(ctx, ann.ID, chat.ID, 0, 0)
	require.NoError(t, err)
	assert.Equal(t, defaultPage, page.Page)
	assert.Equal(t, defaultPageSize, page.PageSize)
	assert.Len(t, page.Messages, 5)

	page, err = f.messages.ListMessages(ctx, ann.ID, chat.ID, 9, 1000)
	require.NoError(t, err)
	assert.Equal(t, maxPageSize, page.PageSize)
	assert.Empty(t, page.Messages)
}

func TestDeleteMessageOnlyBySender(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	ann := f.signUp(t, "Ann", "Lee", "ann@x.io")
	bob := f.signUp(t, "Bob", "Ray", "bob@x.io")

	chat, _, err := f.chats.CreateChat(ctx, ann.ID, []string{bob.ID}, "")
	require.NoError(t, err)
	msg, err := f.messages.SendMessage(ctx, ann.ID, chat.ID, "oops")
	require.NoError(t, err)

	assert.ErrorIs(t, f.messages.DeleteMessage(ctx, bob.ID, msg.ID), models.ErrForbidden)
	assert.ErrorIs(t, f.messages.DeleteMessage(ctx, ann.ID, "missing"), models.ErrMessageNotFound)

	f.publisher.reset()
	require.NoError(t, f.messages.DeleteMessage(ctx, ann.ID, msg.ID))
	events := f.publisher.byTopic(realtime.ChatTopic(chat.ID))
	require.Len(t, events, 1)
	assert.Equal(t, realtime.EventMessageDeleted, events[0].Type)

	_, err = f.store.GetMessageByID(ctx, msg.ID)
	assert.ErrorIs(t, err, models.ErrMessageNotFound)
}

func TestNotifyNewMessageSkipsSenderAndOnlineUsers(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	ann := f.signUp(t, "Ann", "Lee", "ann@x.io")
	bob := f.signUp(t, "Bob", "Ray", "bob@x.io")
	cat := f.signUp(t, "Cat", "Ng", "cat@x.io")

	for _, tok := range []models.DeviceToken{
		{Token: "ann-phone", UserID: ann.ID},
		{Token: "bob-phone", UserID: bob.ID},
		{Token: "bob-tablet", UserID: bob.ID},
		{Token: "cat-phone", UserID: cat.ID},
	} {
		require.NoError(t, f.store.SaveToken(ctx, tok))
	}

	pusher := &stubPusher{}
	notifications := &NotificationService{
		TokenRepo: f.store,
		Presence:  stubPresence{cat.ID: true},
		Pusher:    pusher,
	}

	chat := models.Chat{ID: "c1", IsGroup: true, Title: "Team", Participants: []string{ann.ID, bob.ID, cat.ID}}
	msg := models.Message{ID: "m1", ChatID: "c1", SenderID: ann.ID, Text: strings.Repeat("a", previewLength+10)}
	notifications.NotifyNewMessage(ctx, chat, msg, ann)

	require.Len(t, pusher.sent, 2)
	var tokens []string
	for _, m := range pusher.sent {
		tokens = append(tokens, m.Token)
		assert.Equal(t, "Team", m.Notification.Title)
		assert.True(t, strings.HasPrefix(m.Notification.Body, "Ann: "))
		assert.Equal(t, "c1", m.Data["chat_id"])
		assert.Equal(t, "m1", m.Data["message_id"])
		assert.Equal(t, "high", m.Android.Priority)
	}
	assert.ElementsMatch(t, []string{"bob-phone", "bob-tablet"}, tokens)
}

func TestNotifyNewMessageKeepsTokensOnTransientError(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	require.NoError(t, f.store.SaveToken(ctx, models.DeviceToken{Token: "bob-phone", UserID: "bob"}))

	notifications := &NotificationService{TokenRepo: f.store, Pusher: &stubPusher{err: errors.New("unavailable")}}
	chat := models.Chat{ID: "c1", Participants: []string{"ann", "bob"}}
	notifications.NotifyNewMessage(ctx, chat, models.Message{ID: "m1", SenderID: "ann", Text: "hi"}, models.User{ID: "ann", FirstName: "Ann"})

	tokens, err := f.store.GetTokensByUserID(ctx, "bob")
	require.NoError(t, err)
	assert.Equal(t, []string{"bob-phone"}, tokens)
}

func TestDeviceTokens(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	notifications := &NotificationService{TokenRepo: f.store}

	assert.ErrorIs(t, notifications.RegisterDeviceToken(ctx, "u1", "  ", "ios"), models.ErrMissingFields)
	require.NoError(t, notifications.RegisterDeviceToken(ctx, "u1", "tok-1", "iOS"))
	require.NoError(t, f.store.SaveToken(ctx, models.DeviceToken{Token: "old", UserID: "u1", UpdatedAt: time.Now().AddDate(0, 0, -90)}))

	n, err := notifications.PurgeStaleTokens(ctx, time.Now().AddDate(0, 0, -60))
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)

	require.NoError(t, notifications.DeleteDeviceToken(ctx, "tok-1"))
	tokens, err := f.store.GetTokensByUserID(ctx, "u1")
	require.NoError(t, err)
	assert.Empty(t, tokens)
}

func TestPreview(t *testing.T) {
	assert.Equal(t, "short", preview("short"))
	long := strings.Repeat("я", previewLength+1)
	got := preview(long)
	assert.Equal(t, previewLength, len([]rune(got)))
	assert.True(t, strings.HasSuffix(got, "…"))
}
