package maintenance

import (
	"context"
	"errors"
	"sync/atomic"

	"github.com/redis/go-redis/v9"
)

// FlagStore holds the process-wide maintenance switch. Readers take one
// snapshot per event; writes only affect events that start afterwards.
type FlagStore interface {
	Enabled(ctx context.Context) (bool, error)
	SetEnabled(ctx context.Context, enabled bool) error
}

// MemoryFlagStore keeps the flag in process.
type MemoryFlagStore struct {
	enabled atomic.Bool
}

// NewMemoryFlagStore returns a flag store starting disabled.
func NewMemoryFlagStore() *MemoryFlagStore {
	return &MemoryFlagStore{}
}

func (s *MemoryFlagStore) Enabled(context.Context) (bool, error) {
	return s.enabled.Load(), nil
}

func (s *MemoryFlagStore) SetEnabled(_ context.Context, enabled bool) error {
	s.enabled.Store(enabled)
	return nil
}

// DefaultFlagKey is the Redis key shared by every worker.
const DefaultFlagKey = "alertbridge:maintenance"

// RedisFlagStore shares the flag across workers through Redis.
type RedisFlagStore struct {
	client redis.UniversalClient
	key    string
}

// NewRedisFlagStore builds the store; an empty key uses DefaultFlagKey.
func NewRedisFlagStore(client redis.UniversalClient, key string) *RedisFlagStore {
	if key == "" {
		key = DefaultFlagKey
	}
	return &RedisFlagStore{client: client, key: key}
}

func (s *RedisFlagStore) Enabled(ctx context.Context) (bool, error) {
	val, err := s.client.Get(ctx, s.key).Result()
	if errors.Is(err, redis.Nil) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return val == "1", nil
}

func (s *RedisFlagStore) SetEnabled(ctx context.Context, enabled bool) error {
	if !enabled {
		return s.client.Del(ctx, s.key).Err()
	}
	return s.client.Set(ctx, s.key, "1", 0).Err()
}
