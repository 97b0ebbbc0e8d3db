package events

import (
	"context"
	"fmt"

	json "github.com/json-iterator/go"
	backend "github.com/redis/go-redis/v9"

	"github.com/xkilldash9x/mrmurphy/api/schemas"
)

// DefaultStream is the Redis stream events are appended to.
const DefaultStream = "murphy:events"

// RedisPublisher appends JSON encoded events to a Redis stream. Every entry
// carries the topic and payload fields.
type RedisPublisher struct {
	client *backend.Client
	stream string
	maxLen int64
	owned  bool
}

// RedisOption customizes a RedisPublisher.
type RedisOption func(*RedisPublisher)

// WithStream sets the stream key.
func WithStream(stream string) RedisOption {
	return func(p *RedisPublisher) {
		if stream != "" {
			p.stream = stream
		}
	}
}

// WithMaxLen trims the stream to at most n entries. Zero disables trimming.
func WithMaxLen(n int64) RedisOption {
	return func(p *RedisPublisher) { p.maxLen = n }
}

// NewRedisPublisher connects to the Redis server at address.
func NewRedisPublisher(ctx context.Context, address string, opts ...RedisOption) (*RedisPublisher, error) {
	client := backend.NewClient(&backend.Options{Addr: address})
	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("connecting to Redis at %s: %w", address, err)
	}
	p := NewRedisPublisherFromClient(client, opts...)
	p.owned = true
	return p, nil
}

// NewRedisPublisherFromClient publishes through an existing client, which the
// caller keeps ownership of.
func NewRedisPublisherFromClient(client *backend.Client, opts ...RedisOption) *RedisPublisher {
	p := &RedisPublisher{client: client, stream: DefaultStream, maxLen: 10000}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

func (p *RedisPublisher) Publish(ctx context.Context, topic schemas.EventTopic, event any) error {
	data, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("marshaling event: %w", err)
	}
	err = p.client.XAdd(ctx, &backend.XAddArgs{
		Stream: p.stream,
		MaxLen: p.maxLen,
		Values: map[string]any{"topic": string(topic), "payload": string(data)},
	}).Err()
	if err != nil {
		return fmt.Errorf("appending %s to %s: %w", topic, p.stream, err)
	}
	return nil
}

func (p *RedisPublisher) Close() error {
	if p.owned {
		return p.client.Close()
	}
	return nil
}
