package cache

import (
	"context"
	"time"

	"github.com/redis/go-redis/v9"
)

var _ Store = (*RedisStore)(nil)

// RedisStore implements Store on top of Redis for deployments where several
// SDK instances should share one read cache. All keys live under a
// namespace so Clear never touches unrelated data in the same database.
type RedisStore struct {
	cli       redis.UniversalClient
	namespace string
}

// NewRedisStore wraps an existing Redis client. namespace defaults to
// "starbazaar:" when empty.
func NewRedisStore(cli redis.UniversalClient, namespace string) *RedisStore {
	if namespace == "" {
		namespace = "starbazaar:"
	}
	return &RedisStore{cli: cli, namespace: namespace}
}

func (s *RedisStore) key(k string) string {
	return s.namespace + k
}

// Get returns the entry for key. Redis handles expiry itself.
func (s *RedisStore) Get(ctx context.Context, key string) ([]byte, bool, error) {
	value, err := s.cli.Get(ctx, s.key(key)).Bytes()
	if err != nil {
		if err == redis.Nil {
			return nil, false, nil
		}
		return nil, false, err
	}
	return value, true, nil
}

// Set stores value under key with the given TTL.
func (s *RedisStore) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	return s.cli.Set(ctx, s.key(key), value, ttl).Err()
}

// Delete removes a single key.
func (s *RedisStore) Delete(ctx context.Context, key string) error {
	return s.cli.Del(ctx, s.key(key)).Err()
}

// DeletePrefix removes every key with the given prefix via SCAN, so it
// stays safe on shared instances.
func (s *RedisStore) DeletePrefix(ctx context.Context, prefix string) (int, error) {
	return s.deletePattern(ctx, s.key(prefix)+"*")
}

// Clear removes the whole namespace.
func (s *RedisStore) Clear(ctx context.Context) error {
	_, err := s.deletePattern(ctx, s.namespace+"*")
	return err
}

func (s *RedisStore) deletePattern(ctx context.Context, pattern string) (int, error) {
	dropped := 0
	iter := s.cli.Scan(ctx, 0, pattern, 100).Iterator()
	for iter.Next(ctx) {
		if err := s.cli.Del(ctx, iter.Val()).Err(); err != nil {
			return dropped, err
		}
		dropped++
	}
	return dropped, iter.Err()
}
