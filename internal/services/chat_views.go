package services

import (
	"sort"
	"strings"

	"messengerBack/internal/models"
)

// directCounterpartID returns the other participant of a one-to-one chat, or
// "" for group chats and chats me is not part of.
func directCounterpartID(chat models.Chat, me string) string {
	if chat.IsGroup || len(chat.Participants) != 2 || !chat.HasParticipant(me) {
		return ""
	}
	if chat.Participants[0] == me {
		return chat.Participants[1]
	}
	return chat.Participants[0]
}

// buildChatView resolves members, counterpart and display name of chat as
// seen by me.
func buildChatView(chat models.Chat, me string, users map[string]models.UserSummary, last *models.Message) models.ChatView {
	view := models.ChatView{Chat: chat, LastMessage: last, Members: make([]models.UserSummary, 0, len(chat.Participants))}

	var others []string
	for _, id := range chat.Participants {
		u, ok := users[id]
		if !ok {
			u = models.UserSummary{ID: id}
		}
		view.Members = append(view.Members, u)
		if id != me {
			if name := u.FullName(); name != "" {
				others = append(others, name)
			} else if u.Email != "" {
				others = append(others, u.Email)
			}
		}
	}

	if otherID := directCounterpartID(chat, me); otherID != "" {
		if u, ok := users[otherID]; ok {
			view.Counterpart = &u
		}
	}

	switch {
	case view.Counterpart != nil && view.Counterpart.FullName() != "":
		view.DisplayName = view.Counterpart.FullName()
	case chat.Title != "":
		view.DisplayName = chat.Title
	default:
		view.DisplayName = strings.Join(others, ", ")
	}
	return view
}

// matchesChatQuery reports whether any other member or the title contains q.
// q must already be lowercased.
func matchesChatQuery(view models.ChatView, me, q string) bool {
	if q == "" {
		return true
	}
	if strings.Contains(strings.ToLower(view.Title), q) {
		return true
	}
	for _, m := range view.Members {
		if m.ID == me {
			continue
		}
		for _, field := range []string{m.Email, m.FirstName, m.LastName, m.FullName()} {
			if strings.Contains(strings.ToLower(field), q) {
				return true
			}
		}
	}
	return false
}

// sortChatsByActivity orders chats newest activity first.
func sortChatsByActivity(chats []models.Chat) {
	sort.SliceStable(chats, func(i, j int) bool {
		ai, aj := chats[i].LastActivity(), chats[j].LastActivity()
		if !ai.Equal(aj) {
			return ai.After(aj)
		}
		if !chats[i].CreatedAt.Equal(chats[j].CreatedAt) {
			return chats[i].CreatedAt.After(chats[j].CreatedAt)
		}
		return chats[i].ID < chats[j].ID
	})
}

// uniqueIDs de-duplicates ids keeping first occurrence order and dropping
// blanks.
func uniqueIDs(ids []string) []string {
	seen := make(map[string]bool, len(ids))
	out := make([]string, 0, len(ids))
	for _, id := range ids {
		id = strings.TrimSpace(id)
		if id == "" || seen[id] {
			continue
		}
		seen[id] = true
		out = append(out, id)
	}
	return out
}
