package services

import (
	"context"
	"sort"

	"messengerBack/internal/models"
)

// ContactService finds people to start a chat with.
type ContactService struct {
	UserRepo UserStore
	ChatRepo ChatStore
}

// SearchContacts lists every other user, or the user whose email equals query.
// With excludeChatted, users already sharing a one-to-one chat with the
// requester are left out.
func (s *ContactService) SearchContacts(ctx context.Context, requesterID, query string, excludeChatted bool) ([]models.UserSummary, error) {
	users, err := s.UserRepo.SearchUsers(ctx, requesterID, models.NormalizeEmail(query))
	if err != nil {
		return nil, err
	}

	chatted := map[string]bool{}
	if excludeChatted {
		chats, err := s.ChatRepo.GetChatsByUserID(ctx, requesterID)
		if err != nil {
			return nil, err
		}
		for _, c := range chats {
			if other := directCounterpartID(c, requesterID); other != "" {
				chatted[other] = true
			}
		}
	}

	out := make([]models.UserSummary, 0, len(users))
	for _, u := range users {
		if u.ID == requesterID || chatted[u.ID] {
			continue
		}
		out = append(out, u.Summary())
	}
	sort.SliceStable(out, func(i, j int) bool {
		if out[i].FirstName != out[j].FirstName {
			return out[i].FirstName < out[j].FirstName
		}
		if out[i].LastName != out[j].LastName {
			return out[i].LastName < out[j].LastName
		}
		return out[i].ID < out[j].ID
	})
	return out, nil
}
