package models

import "time"

type Chat struct {
	ID           string     `json:"id"`
	Title        string     `json:"title,omitempty"`
	IsGroup      bool       `json:"is_group"`
	CreatedBy    string     `json:"created_by"`
	Participants []string   `json:"participants"`
	CreatedAt    time.Time  `json:"created_at"`
	UpdatedAt    *time.Time `json:"updated_at,omitempty"`
}

// HasParticipant reports whether userID belongs to the chat.
func (c Chat) HasParticipant(userID string) bool {
	for _, id := range c.Participants {
		if id == userID {
			return true
		}
	}
	return false
}

// LastActivity is UpdatedAt when set, CreatedAt otherwise.
func (c Chat) LastActivity() time.Time {
	if c.UpdatedAt != nil {
		return *c.UpdatedAt
	}
	return c.CreatedAt
}

// ChatView is a chat as seen by one of its participants.
type ChatView struct {
	Chat
	Members     []UserSummary `json:"members"`
	Counterpart *UserSummary  `json:"counterpart,omitempty"`
	DisplayName string        `json:"display_name"`
	LastMessage *Message      `json:"last_message,omitempty"`
}

type CreateChatRequest struct {
	Participants []string `json:"participants"`
	Title        string   `json:"title,omitempty"`
}

type CreateChatResponse struct {
	Chat    ChatView `json:"chat"`
	Created bool     `json:"created"`
}

type AddParticipantsRequest struct {
	Participants []string `json:"participants"`
}

// ChatSnapshot is the payload pushed to a chat topic on subscribe.
type ChatSnapshot struct {
	Chat     ChatView  `json:"chat"`
	Messages []Message `json:"messages"`
}
