package store

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/redis/go-redis/v9"
)

// DefaultPrefix namespaces status keys.
const DefaultPrefix = "yieldpage:run:"

type statusClient interface {
	Set(ctx context.Context, key string, value any, expiration time.Duration) *redis.StatusCmd
	Get(ctx context.Context, key string) *redis.StringCmd
	Close() error
}

// RedisStatusStore stores run status in Redis.
type RedisStatusStore struct {
	client statusClient
	prefix string
	ttl    time.Duration
}

// NewRedisStatusStore initializes a Redis-backed StatusStore.
func NewRedisStatusStore(addr, prefix string, ttl time.Duration) *RedisStatusStore {
	return newRedisStatusStore(redis.NewClient(&redis.Options{Addr: addr}), prefix, ttl)
}

func newRedisStatusStore(client statusClient, prefix string, ttl time.Duration) *RedisStatusStore {
	if prefix == "" {
		prefix = DefaultPrefix
	}
	return &RedisStatusStore{
		client: client,
		prefix: prefix,
		ttl:    ttl,
	}
}

// Close closes the Redis client.
func (s *RedisStatusStore) Close() error {
	return s.client.Close()
}

// SetStatus writes the status record to Redis.
func (s *RedisStatusStore) SetStatus(ctx context.Context, status RunStatus) error {
	payload, err := json.Marshal(status)
	if err != nil {
		return err
	}
	return s.client.Set(ctx, s.prefix+status.RunID, payload, s.ttl).Err()
}

// GetStatus reads the status record from Redis.
func (s *RedisStatusStore) GetStatus(ctx context.Context, runID string) (RunStatus, bool, error) {
	val, err := s.client.Get(ctx, s.prefix+runID).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return RunStatus{}, false, nil
		}
		return RunStatus{}, false, err
	}

	var status RunStatus
	if err := json.Unmarshal([]byte(val), &status); err != nil {
		return RunStatus{}, false, err
	}
	return status, true, nil
}
