package realtime

import (
	"sort"
	"sync"
)

// Logger is the logging surface the realtime package needs.
type Logger interface {
	Infof(format string, args ...interface{})
	Errorf(format string, args ...interface{})
}

// Subscriber receives encoded events. Deliver reports false when the
// subscriber can no longer accept data; the hub then drops it.
type Subscriber interface {
	ID() string
	UserID() string
	Deliver(data []byte) bool
}

// Hub tracks which local subscribers listen to which topic.
type Hub struct {
	logger Logger

	mu     sync.RWMutex
	topics map[string]map[string]Subscriber
	subs   map[string]map[string]struct{}
}

func NewHub(logger Logger) *Hub {
	return &Hub{
		logger: logger,
		topics: make(map[string]map[string]Subscriber),
		subs:   make(map[string]map[string]struct{}),
	}
}

func (h *Hub) Subscribe(topic string, sub Subscriber) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.topics[topic] == nil {
		h.topics[topic] = make(map[string]Subscriber)
	}
	h.topics[topic][sub.ID()] = sub

	if h.subs[sub.ID()] == nil {
		h.subs[sub.ID()] = make(map[string]struct{})
	}
	h.subs[sub.ID()][topic] = struct{}{}
}

func (h *Hub) Unsubscribe(topic, subID string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.unsubscribeLocked(topic, subID)
}

// UnsubscribeAll removes every listener registered by subID.
func (h *Hub) UnsubscribeAll(subID string) {
	h.mu.Lock()
	defer h.mu.Unlock()

	for topic := range h.subs[subID] {
		h.unsubscribeLocked(topic, subID)
	}
	delete(h.subs, subID)
}

func (h *Hub) unsubscribeLocked(topic, subID string) {
	if listeners, ok := h.topics[topic]; ok {
		delete(listeners, subID)
		if len(listeners) == 0 {
			delete(h.topics, topic)
		}
	}
	if topics, ok := h.subs[subID]; ok {
		delete(topics, topic)
		if len(topics) == 0 {
			delete(h.subs, subID)
		}
	}
}

// Broadcast delivers data to every subscriber of topic and returns how many
// accepted it.
func (h *Hub) Broadcast(topic string, data []byte) int {
	h.mu.RLock()
	listeners := make([]Subscriber, 0, len(h.topics[topic]))
	for _, sub := range h.topics[topic] {
		listeners = append(listeners, sub)
	}
	h.mu.RUnlock()

	delivered := 0
	for _, sub := range listeners {
		if sub.Deliver(data) {
			delivered++
			continue
		}
		if h.logger != nil {
			h.logger.Errorf("realtime: dropping subscriber %s on %s", sub.ID(), topic)
		}
		h.UnsubscribeAll(sub.ID())
	}
	return delivered
}

// EvictUser removes every subscriber of topic that belongs to userID and
// returns how many were removed.
func (h *Hub) EvictUser(topic, userID string) int {
	h.mu.Lock()
	defer h.mu.Unlock()

	evicted := 0
	for id, sub := range h.topics[topic] {
		if sub.UserID() == userID {
			h.unsubscribeLocked(topic, id)
			evicted++
		}
	}
	return evicted
}

// DropTopic removes all subscribers of topic.
func (h *Hub) DropTopic(topic string) {
	h.mu.Lock()
	defer h.mu.Unlock()

	for id := range h.topics[topic] {
		h.unsubscribeLocked(topic, id)
	}
}

// Count returns the number of subscribers of topic.
func (h *Hub) Count(topic string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.topics[topic])
}

// Topics lists the topics subID listens to, sorted.
func (h *Hub) Topics(subID string) []string {
	h.mu.RLock()
	defer h.mu.RUnlock()

	out := make([]string, 0, len(h.subs[subID]))
	for topic := range h.subs[subID] {
		out = append(out, topic)
	}
	sort.Strings(out)
	return out
}
