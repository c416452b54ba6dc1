// Package docstore stores users, chats, messages and device tokens in Cloud
// Firestore using the collection layout of the mobile client: users keyed by
// uid and chats holding a participants array.
package docstore

import (
	"cloud.google.com/go/firestore"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

const (
	usersCollection    = "users"
	chatsCollection    = "chats"
	messagesCollection = "messages"
	tokensCollection   = "device_tokens"

	// inQueryLimit is the largest value list accepted by an "in" filter.
	inQueryLimit = 30
)

type Store struct {
	client *firestore.Client
}

func New(client *firestore.Client) *Store {
	return &Store{client: client}
}

func isNotFound(err error) bool {
	return status.Code(err) == codes.NotFound
}

func chunk(values []string, size int) [][]string {
	var out [][]string
	for len(values) > size {
		out = append(out, values[:size])
		values = values[size:]
	}
	if len(values) > 0 {
		out = append(out, values)
	}
	return out
}
