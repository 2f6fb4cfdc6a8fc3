package session

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
)

// RedisNotifier delivers events through Redis pub/sub so every API replica
// reaches every session.
type RedisNotifier struct {
	client *redis.Client
	prefix string
	logger zerolog.Logger
}

// NewRedisNotifier creates a new Redis-backed notifier
func NewRedisNotifier(redisURL string, logger zerolog.Logger) (*RedisNotifier, error) {
	opts, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("parse redis url: %w", err)
	}

	client := redis.NewClient(opts)

	// Test connection
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("connect to redis: %w", err)
	}

	return NewRedisNotifierWithClient(client, logger), nil
}

// NewRedisNotifierWithClient creates a notifier from an existing Redis client
func NewRedisNotifierWithClient(client *redis.Client, logger zerolog.Logger) *RedisNotifier {
	return &RedisNotifier{
		client: client,
		prefix: "docshub:events:",
		logger: logger,
	}
}

func (n *RedisNotifier) channel(userID string) string {
	return n.prefix + userID
}

func (n *RedisNotifier) Publish(ctx context.Context, event Event) error {
	payload, err := json.Marshal(stamp(event))
	if err != nil {
		return fmt.Errorf("marshal event: %w", err)
	}
	if err := n.client.Publish(ctx, n.channel(event.UserID), payload).Err(); err != nil {
		return fmt.Errorf("publish event: %w", err)
	}
	return nil
}

// Subscribe returns once Redis has confirmed the subscription, so events
// published afterwards are not missed.
func (n *RedisNotifier) Subscribe(ctx context.Context, userID string) (<-chan Event, func(), error) {
	pubsub := n.client.Subscribe(ctx, n.channel(userID))
	if _, err := pubsub.Receive(ctx); err != nil {
		_ = pubsub.Close()
		return nil, nil, fmt.Errorf("subscribe events: %w", err)
	}

	out := make(chan Event, subscriberBuffer)
	done := make(chan struct{})
	go func() {
		defer close(out)
		messages := pubsub.Channel()
		for {
			select {
			case <-done:
				return
			case msg, ok := <-messages:
				if !ok {
					return
				}
				var event Event
				if err := json.Unmarshal([]byte(msg.Payload), &event); err != nil {
					n.logger.Warn().Err(err).Str("channel", msg.Channel).Msg("drop malformed event")
					continue
				}
				select {
				case out <- event:
				default:
				}
			}
		}
	}()

	var once sync.Once
	cancel := func() {
		once.Do(func() {
			close(done)
			_ = pubsub.Close()
		})
	}
	return out, cancel, nil
}

// Close closes the Redis connection
func (n *RedisNotifier) Close() error {
	return n.client.Close()
}

// Ping checks if Redis is reachable
func (n *RedisNotifier) Ping(ctx context.Context) error {
	return n.client.Ping(ctx).Err()
}
