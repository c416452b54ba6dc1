package realtime

import (
	"encoding/json"
	"strings"
	"time"
)

// Event types pushed to subscribers.
const (
	EventSnapshot       = "snapshot"
	EventMessage        = "message"
	EventMessageDeleted = "message_deleted"
	EventChatUpdated    = "chat_updated"
	EventChatDeleted    = "chat_deleted"
	EventMemberRemoved  = "member_removed"
	EventSubscribed     = "subscribed"
	EventUnsubscribed   = "unsubscribed"
	EventError          = "error"
)

// MemberRemoved is the payload of EventMemberRemoved on a chat topic.
type MemberRemoved struct {
	ChatID string `json:"chat_id"`
	UserID string `json:"user_id"`
}

const (
	userTopicPrefix = "user:"
	chatTopicPrefix = "chat:"
)

// Event is the envelope written to websocket clients and carried by the bus.
type Event struct {
	Type  string          `json:"type"`
	Topic string          `json:"topic"`
	Data  json.RawMessage `json:"data,omitempty"`
	At    time.Time       `json:"at"`
}

func NewEvent(topic, eventType string, payload interface{}) (Event, error) {
	ev := Event{Type: eventType, Topic: topic, At: time.Now().UTC()}
	if payload != nil {
		data, err := json.Marshal(payload)
		if err != nil {
			return Event{}, err
		}
		ev.Data = data
	}
	return ev, nil
}

// UserTopic carries the chat list of one user.
func UserTopic(userID string) string {
	return userTopicPrefix + userID
}

// ChatTopic carries the messages of one chat.
func ChatTopic(chatID string) string {
	return chatTopicPrefix + chatID
}

// ChatIDFromTopic returns the chat id of a chat topic.
func ChatIDFromTopic(topic string) (string, bool) {
	if !strings.HasPrefix(topic, chatTopicPrefix) {
		return "", false
	}
	id := strings.TrimPrefix(topic, chatTopicPrefix)
	return id, id != ""
}

// UserIDFromTopic returns the user id of a user topic.
func UserIDFromTopic(topic string) (string, bool) {
	if !strings.HasPrefix(topic, userTopicPrefix) {
		return "", false
	}
	id := strings.TrimPrefix(topic, userTopicPrefix)
	return id, id != ""
}
