package realtime

import (
	"context"
	"encoding/json"
	"sync"

	"github.com/redis/go-redis/v9"
)

// DefaultChannel is the Redis pub/sub channel shared by all instances.
const DefaultChannel = "messenger:events"

// Bus carries events between publishers and the hubs of every instance.
type Bus interface {
	Publish(ctx context.Context, ev Event) error
	// Subscribe registers handler for every published event until ctx is done.
	Subscribe(ctx context.Context, handler func(Event)) error
}

// LocalBus delivers events within the process.
type LocalBus struct {
	mu       sync.RWMutex
	handlers map[int]func(Event)
	next     int
}

func NewLocalBus() *LocalBus {
	return &LocalBus{handlers: make(map[int]func(Event))}
}

func (b *LocalBus) Publish(_ context.Context, ev Event) error {
	b.mu.RLock()
	handlers := make([]func(Event), 0, len(b.handlers))
	for _, h := range b.handlers {
		handlers = append(handlers, h)
	}
	b.mu.RUnlock()

	for _, h := range handlers {
		h(ev)
	}
	return nil
}

func (b *LocalBus) Subscribe(ctx context.Context, handler func(Event)) error {
	b.mu.Lock()
	id := b.next
	b.next++
	b.handlers[id] = handler
	b.mu.Unlock()

	go func() {
		<-ctx.Done()
		b.mu.Lock()
		delete(b.handlers, id)
		b.mu.Unlock()
	}()
	return nil
}

// RedisBus fans events out to every instance through Redis pub/sub.
type RedisBus struct {
	rdb     *redis.Client
	channel string
	logger  Logger
}

func NewRedisBus(rdb *redis.Client, channel string, logger Logger) *RedisBus {
	if channel == "" {
		channel = DefaultChannel
	}
	return &RedisBus{rdb: rdb, channel: channel, logger: logger}
}

func (b *RedisBus) Publish(ctx context.Context, ev Event) error {
	data, err := json.Marshal(ev)
	if err != nil {
		return err
	}
	return b.rdb.Publish(ctx, b.channel, data).Err()
}

func (b *RedisBus) Subscribe(ctx context.Context, handler func(Event)) error {
	ps := b.rdb.Subscribe(ctx, b.channel)
	if _, err := ps.Receive(ctx); err != nil {
		ps.Close()
		return err
	}

	go func() {
		defer ps.Close()
		ch := ps.Channel()
		for {
			select {
			case <-ctx.Done():
				return
			case msg, ok := <-ch:
				if !ok {
					return
				}
				var ev Event
				if err := json.Unmarshal([]byte(msg.Payload), &ev); err != nil {
					b.logger.Errorf("realtime: bad event on %s: %v", b.channel, err)
					continue
				}
				handler(ev)
			}
		}
	}()
	return nil
}
