package store

import (
	"context"
	"fmt"
	"time"

	"github.com/go-redis/redis/v8"
)

// RedisStore keeps the pair in redis so several portal clients share one session.
// Both keys are written and deleted in one MULTI/EXEC transaction, and every
// change is published on <prefix>events.
type RedisStore struct {
	client *redis.Client
	prefix string
}

var (
	_ Store   = (*RedisStore)(nil)
	_ Watcher = (*RedisStore)(nil)
)

// NewRedisStore connects to redisURL and checks the connection.
func NewRedisStore(ctx context.Context, redisURL, prefix string) (*RedisStore, error) {
	opt, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("failed to parse Redis URL: %w", err)
	}

	client := redis.NewClient(opt)

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("failed to connect to Redis: %w", err)
	}

	return NewRedisStoreFromClient(client, prefix), nil
}

func NewRedisStoreFromClient(client *redis.Client, prefix string) *RedisStore {
	return &RedisStore{client: client, prefix: prefix}
}

func (s *RedisStore) key(name string) string {
	return s.prefix + name
}

func (s *RedisStore) channel() string {
	return s.prefix + "events"
}

func (s *RedisStore) Load(ctx context.Context) (Tokens, error) {
	values, err := s.client.MGet(ctx, s.key(KeyAccessToken), s.key(KeyRefreshToken)).Result()
	if err != nil {
		return Tokens{}, fmt.Errorf("failed to read tokens: %w", err)
	}

	var tokens Tokens
	tokens.AccessToken, _ = values[0].(string)
	tokens.RefreshToken, _ = values[1].(string)

	if tokens.Empty() {
		return Tokens{}, ErrNoTokens
	}
	if !tokens.Complete() {
		_ = s.Clear(ctx)
		return Tokens{}, ErrNoTokens
	}
	return tokens, nil
}

func (s *RedisStore) Save(ctx context.Context, tokens Tokens) error {
	if err := validatePair(tokens); err != nil {
		return err
	}
	_, err := s.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Set(ctx, s.key(KeyAccessToken), tokens.AccessToken, 0)
		pipe.Set(ctx, s.key(KeyRefreshToken), tokens.RefreshToken, 0)
		pipe.Publish(ctx, s.channel(), string(EventSaved))
		return nil
	})
	if err != nil {
		return fmt.Errorf("failed to save tokens: %w", err)
	}
	return nil
}

func (s *RedisStore) Clear(ctx context.Context) error {
	_, err := s.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Del(ctx, s.key(KeyAccessToken), s.key(KeyRefreshToken))
		pipe.Publish(ctx, s.channel(), string(EventCleared))
		return nil
	})
	if err != nil {
		return fmt.Errorf("failed to clear tokens: %w", err)
	}
	return nil
}

func (s *RedisStore) Watch(ctx context.Context) (<-chan Event, error) {
	pubsub := s.client.Subscribe(ctx, s.channel())
	if _, err := pubsub.Receive(ctx); err != nil {
		_ = pubsub.Close()
		return nil, fmt.Errorf("failed to subscribe to %s: %w", s.channel(), err)
	}

	events := make(chan Event, 8)
	go func() {
		defer close(events)
		defer pubsub.Close()

		messages := pubsub.Channel()
		for {
			select {
			case <-ctx.Done():
				return
			case msg, ok := <-messages:
				if !ok {
					return
				}
				select {
				case events <- Event{Type: EventType(msg.Payload)}:
				case <-ctx.Done():
					return
				}
			}
		}
	}()
	return events, nil
}

func (s *RedisStore) Close() error {
	return s.client.Close()
}
