// Package broker fans presence and alert events out to live subscribers,
// in process or across instances through Redis pub/sub.
package broker

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
)

// Message is one event. Topic is a location name or "alerts".
type Message struct {
	Topic string
	Body  []byte
}

// Broker is the abstraction over the fan-out backends.
type Broker interface {
	Publish(ctx context.Context, msg Message) error
	// Subscribe streams every message published after the call until ctx ends.
	Subscribe(ctx context.Context) (<-chan Message, error)
}

const subscriberBuffer = 64

// InMemory fans messages out to subscribers of this process. A subscriber
// that falls more than subscriberBuffer messages behind misses messages.
type InMemory struct {
	mu   sync.RWMutex
	subs map[chan Message]struct{}
}

func NewInMemory() *InMemory {
	return &InMemory{subs: make(map[chan Message]struct{})}
}

// Publish delivers msg to every current subscriber without blocking.
func (b *InMemory) Publish(ctx context.Context, msg Message) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	b.mu.RLock()
	defer b.mu.RUnlock()
	for ch := range b.subs {
		select {
		case ch <- msg:
		default:
		}
	}
	return nil
}

func (b *InMemory) Subscribe(ctx context.Context) (<-chan Message, error) {
	ch := make(chan Message, subscriberBuffer)
	b.mu.Lock()
	b.subs[ch] = struct{}{}
	b.mu.Unlock()

	go func() {
		<-ctx.Done()
		b.mu.Lock()
		delete(b.subs, ch)
		close(ch)
		b.mu.Unlock()
	}()
	return ch, nil
}

// Redis publishes on one pub/sub channel shared by every instance.
type Redis struct {
	client  *redis.Client
	channel string
}

// NewRedisClient connects to redis with short timeouts.
func NewRedisClient(addr string) *redis.Client {
	return redis.NewClient(&redis.Options{
		Addr:         addr,
		DialTimeout:  2 * time.Second,
		ReadTimeout:  1 * time.Second,
		WriteTimeout: 1 * time.Second,
	})
}

// NewRedis creates a broker on channel, or "campus:events" when empty.
func NewRedis(client *redis.Client, channel string) *Redis {
	if channel == "" {
		channel = "campus:events"
	}
	return &Redis{client: client, channel: channel}
}

// Healthy verifies redis connectivity.
func (b *Redis) Healthy(ctx context.Context) bool {
	if b == nil || b.client == nil {
		return false
	}
	return b.client.Ping(ctx).Err() == nil
}

func (b *Redis) Publish(ctx context.Context, msg Message) error {
	return b.client.Publish(ctx, b.channel, serialize(msg)).Err()
}

func (b *Redis) Subscribe(ctx context.Context) (<-chan Message, error) {
	sub := b.client.Subscribe(ctx, b.channel)
	if _, err := sub.Receive(ctx); err != nil {
		sub.Close()
		return nil, err
	}

	out := make(chan Message, subscriberBuffer)
	go func() {
		defer close(out)
		defer sub.Close()
		in := sub.Channel()
		for {
			select {
			case <-ctx.Done():
				return
			case m, ok := <-in:
				if !ok {
					return
				}
				select {
				case out <- deserialize(m.Payload):
				default:
				}
			}
		}
	}()
	return out, nil
}

// serialize stores messages as Topic|Body.
func serialize(msg Message) string {
	return msg.Topic + "|" + string(msg.Body)
}

func deserialize(s string) Message {
	topic, body, ok := strings.Cut(s, "|")
	if !ok {
		return Message{Body: []byte(s)}
	}
	return Message{Topic: topic, Body: []byte(body)}
}
