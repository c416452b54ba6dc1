package services

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"messengerBack/internal/models"
	"messengerBack/internal/realtime"
)

func TestCreateChatReusesDirectChat(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	ann := f.signUp(t, "Ann", "Lee", "ann@x.io")
	bob := f.signUp(t, "Bob", "Ray", "bob@x.io")

	first, created, err := f.chats.CreateChat(ctx, ann.ID, []string{bob.ID}, "ignored")
	require.NoError(t, err)
	assert.True(t, created)
	assert.False(t, first.IsGroup)
	assert.Empty(t, first.Title, "titles are kept for groups only")
	assert.Equal(t, "Bob Ray", first.DisplayName)
	require.NotNil(t, first.Counterpart)
	assert.Equal(t, bob.ID, first.Counterpart.ID)

	again, created, err := f.chats.CreateChat(ctx, bob.ID, []string{ann.ID, bob.ID}, "")
	require.NoError(t, err)
	assert.False(t, created)
	assert.Equal(t, first.ID, again.ID)
	assert.Equal(t, "Ann Lee", again.DisplayName)
}

func TestCreateChatValidation(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	ann := f.signUp(t, "Ann", "Lee", "ann@x.io")
	bob := f.signUp(t, "Bob", "Ray", "bob@x.io")

	_, _, err := f.chats.CreateChat(ctx, ann.ID, []string{ann.ID}, "")
	assert.ErrorIs(t, err, models.ErrNotEnoughParticipants)

	_, _, err = f.chats.CreateChat(ctx, ann.ID, []string{"ghost"}, "")
	assert.ErrorIs(t, err, models.ErrUserNotFound)

	_, _, err = f.chats.CreateChat(ctx, ann.ID, []string{bob.ID}, strings.Repeat("t", maxTitleLength+1))
	assert.ErrorIs(t, err, models.ErrInvalidInput)
}

func TestCreateChatPublishesChatLists(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	ann := f.signUp(t, "Ann", "Lee", "ann@x.io")
	bob := f.signUp(t, "Bob", "Ray", "bob@x.io")

	_, _, err := f.chats.CreateChat(ctx, ann.ID, []string{bob.ID}, "")
	require.NoError(t, err)

	for _, id := range []string{ann.ID, bob.ID} {
		events := f.publisher.byTopic(realtime.UserTopic(id))
		require.Len(t, events, 1)
		assert.Equal(t, realtime.EventSnapshot, events[0].Type)
		views, ok := events[0].Payload.([]models.ChatView)
		require.True(t, ok)
		assert.Len(t, views, 1)
	}
}

func TestGroupChatLifecycle(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	ann := f.signUp(t, "Ann", "Lee", "ann@x.io")
	bob := f.signUp(t, "Bob", "Ray", "bob@x.io")
	cat := f.signUp(t, "Cat", "Ng", "cat@x.io")
	dan := f.signUp(t, "Dan", "Ito", "dan@x.io")

	group, created, err := f.chats.CreateChat(ctx, ann.ID, []string{bob.ID, cat.ID}, " Team ")
	require.NoError(t, err)
	assert.True(t, created)
	assert.True(t, group.IsGroup)
	assert.Equal(t, "Team", group.DisplayName)

	_, created, err = f.chats.CreateChat(ctx, ann.ID, []string{bob.ID, cat.ID}, "Team")
	require.NoError(t, err)
	assert.True(t, created, "group chats are never deduplicated")

	_, err = f.chats.AddParticipants(ctx, dan.ID, group.ID, []string{dan.ID})
	assert.ErrorIs(t, err, models.ErrForbidden)

	view, err := f.chats.AddParticipants(ctx, ann.ID, group.ID, []string{dan.ID, bob.ID})
	require.NoError(t, err)
	assert.Len(t, view.Participants, 4)

	f.publisher.reset()
	require.NoError(t, f.chats.LeaveChat(ctx, dan.ID, group.ID))
	events := f.publisher.byTopic(realtime.ChatTopic(group.ID))
	require.Len(t, events, 2)
	assert.Equal(t, realtime.EventChatUpdated, events[0].Type)
	assert.Equal(t, realtime.EventMemberRemoved, events[1].Type)
	assert.Equal(t, realtime.MemberRemoved{ChatID: group.ID, UserID: dan.ID}, events[1].Payload)

	require.NoError(t, f.chats.LeaveChat(ctx, cat.ID, group.ID))
	chat, err := f.store.GetChatByID(ctx, group.ID)
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{ann.ID, bob.ID}, chat.Participants)

	_, err = f.messages.SendMessage(ctx, ann.ID, group.ID, "bye")
	require.NoError(t, err)
	require.NoError(t, f.chats.LeaveChat(ctx, bob.ID, group.ID))
	_, err = f.store.GetChatByID(ctx, group.ID)
	assert.ErrorIs(t, err, models.ErrChatNotFound, "a group with one member left is removed")
	msgs, err := f.store.GetRecentMessages(ctx, group.ID, 10)
	require.NoError(t, err)
	assert.Empty(t, msgs, "messages go with the chat")
}

func TestLeaveDirectChatRejected(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	ann := f.signUp(t, "Ann", "Lee", "ann@x.io")
	bob := f.signUp(t, "Bob", "Ray", "bob@x.io")

	chat, _, err := f.chats.CreateChat(ctx, ann.ID, []string{bob.ID}, "")
	require.NoError(t, err)
	assert.ErrorIs(t, f.chats.LeaveChat(ctx, ann.ID, chat.ID), models.ErrNotGroupChat)
	_, err = f.chats.AddParticipants(ctx, ann.ID, chat.ID, []string{"x"})
	assert.ErrorIs(t, err, models.ErrNotGroupChat)
}

func TestListChatsOrderedByActivity(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	ann := f.signUp(t, "Ann", "Lee", "ann@x.io")
	bob := f.signUp(t, "Bob", "Ray", "bob@x.io")
	cat := f.signUp(t, "Cat", "Ng", "cat@x.io")

	withBob, _, err := f.chats.CreateChat(ctx, ann.ID, []string{bob.ID}, "")
	require.NoError(t, err)
	withCat, _, err := f.chats.CreateChat(ctx, ann.ID, []string{cat.ID}, "")
	require.NoError(t, err)

	require.NoError(t, f.store.TouchChat(ctx, withBob.ID, time.Now().Add(time.Hour)))

	views, err := f.chats.ListChats(ctx, ann.ID)
	require.NoError(t, err)
	require.Len(t, views, 2)
	assert.Equal(t, withBob.ID, views[0].ID)
	assert.Equal(t, withCat.ID, views[1].ID)

	found, err := f.chats.SearchChats(ctx, ann.ID, "CAT@")
	require.NoError(t, err)
	require.Len(t, found, 1)
	assert.Equal(t, withCat.ID, found[0].ID)

	found, err = f.chats.SearchChats(ctx, ann.ID, "lee")
	require.NoError(t, err)
	assert.Empty(t, found, "the requester's own name does not match")
}

func TestDeleteChat(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	ann := f.signUp(t, "Ann", "Lee", "ann@x.io")
	bob := f.signUp(t, "Bob", "Ray", "bob@x.io")
	cat := f.signUp(t, "Cat", "Ng", "cat@x.io")

	chat, _, err := f.chats.CreateChat(ctx, ann.ID, []string{bob.ID}, "")
	require.NoError(t, err)
	_, err = f.messages.SendMessage(ctx, ann.ID, chat.ID, "hi")
	require.NoError(t, err)

	assert.ErrorIs(t, f.chats.DeleteChat(ctx, cat.ID, chat.ID), models.ErrForbidden)

	f.publisher.reset()
	require.NoError(t, f.chats.DeleteChat(ctx, bob.ID, chat.ID))

	events := f.publisher.byTopic(realtime.ChatTopic(chat.ID))
	require.Len(t, events, 1)
	assert.Equal(t, realtime.EventChatDeleted, events[0].Type)

	views, err := f.chats.ListChats(ctx, ann.ID)
	require.NoError(t, err)
	assert.Empty(t, views)
	msgs, err := f.store.GetRecentMessages(ctx, chat.ID, 10)
	require.NoError(t, err)
	assert.Empty(t, msgs)
}

func TestChatSnapshot(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	ann := f.signUp(t, "Ann", "Lee", "ann@x.io")
	bob := f.signUp(t, "Bob", "Ray", "bob@x.io")

	chat, _, err := f.chats.CreateChat(ctx, ann.ID, []string{bob.ID}, "")
	require.NoError(t, err)
	for i := 0; i < snapshotMessageLimit+5; i++ {
		_, err := f.messages.SendMessage(ctx, ann.ID, chat.ID, "msg")
		require.NoError(t, err)
	}

	snap, err := f.chats.ChatSnapshot(ctx, bob.ID, chat.ID)
	require.NoError(t, err)
	assert.Equal(t, chat.ID, snap.Chat.ID)
	assert.Len(t, snap.Messages, snapshotMessageLimit)
	require.NotNil(t, snap.Chat.LastMessage)
	assert.Equal(t, snap.Messages[len(snap.Messages)-1].ID, snap.Chat.LastMessage.ID)
}

func TestSearchContacts(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	ann := f.signUp(t, "Ann", "Lee", "ann@x.io")
	bob := f.signUp(t, "Bob", "Ray", "bob@x.io")
	cat := f.signUp(t, "Cat", "Ng", "cat@x.io")

	all, err := f.contacts.SearchContacts(ctx, ann.ID, "", false)
	require.NoError(t, err)
	require.Len(t, all, 2)
	assert.Equal(t, bob.ID, all[0].ID)
	assert.Equal(t, cat.ID, all[1].ID)

	byEmail, err := f.contacts.SearchContacts(ctx, ann.ID, " CAT@x.io ", false)
	require.NoError(t, err)
	require.Len(t, byEmail, 1)
	assert.Equal(t, cat.ID, byEmail[0].ID)

	_, _, err = f.chats.CreateChat(ctx, ann.ID, []string{bob.ID}, "")
	require.NoError(t, err)
	fresh, err := f.contacts.SearchContacts(ctx, ann.ID, "", true)
	require.NoError(t, err)
	require.Len(t, fresh, 1)
	assert.Equal(t, cat.ID, fresh[0].ID)
}
