package notify

import (
	"context"
	"encoding/json"
	"sync"

	redis "github.com/redis/go-redis/v9"

	"cantina/backend/internal/domain"
)

// Publisher hands push messages to whatever delivers them to devices.
type Publisher interface {
	Publish(ctx context.Context, msg domain.PushMessage) error
}

type NoopPublisher struct{}

func (NoopPublisher) Publish(_ context.Context, _ domain.PushMessage) error {
	return nil
}

// RedisPublisher fans messages out on a pub/sub channel for a delivery worker.
type RedisPublisher struct {
	client  *redis.Client
	channel string
}

func NewRedisPublisher(client *redis.Client, channel string) *RedisPublisher {
	return &RedisPublisher{client: client, channel: channel}
}

func (p *RedisPublisher) Publish(ctx context.Context, msg domain.PushMessage) error {
	payload, err := json.Marshal(msg)
	if err != nil {
		return err
	}
	return p.client.Publish(ctx, p.channel, payload).Err()
}

// Recorder keeps every published message in memory.
type Recorder struct {
	mu       sync.Mutex
	Messages []domain.PushMessage
	Err      error
}

func (r *Recorder) Publish(_ context.Context, msg domain.PushMessage) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.Err != nil {
		return r.Err
	}
	r.Messages = append(r.Messages, msg)
	return nil
}
