package cache

import (
	"context"
	"strings"
	"sync"
	"time"
)

// Store is the backing entry storage for a Cache. Implementations must be
// safe for concurrent use.
//
// The interface is designed to support both in-memory and distributed
// backends (Redis, database, etc.) for different deployment scenarios.
type Store interface {
	// Get returns the stored bytes for key, or ok=false when the key is
	// absent or expired. Expired entries are evicted lazily.
	Get(ctx context.Context, key string) (value []byte, ok bool, err error)

	// Set stores value under key with the given TTL.
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error

	// Delete removes a single key.
	Delete(ctx context.Context, key string) error

	// DeletePrefix removes every key with the given prefix and reports how
	// many entries were dropped.
	DeletePrefix(ctx context.Context, prefix string) (int, error)

	// Clear removes all entries.
	Clear(ctx context.Context) error
}

// MemoryStore is the default in-process Store.
//
// Suitable for single-instance deployments where cache state doesn't need
// to be shared across processes. For load-balanced clusters use RedisStore.
type MemoryStore struct {
	mu      sync.Mutex
	values  map[string][]byte
	expiry  map[string]time.Time
	nowFunc func() time.Time
}

// NewMemoryStore creates an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		values:  make(map[string][]byte),
		expiry:  make(map[string]time.Time),
		nowFunc: time.Now,
	}
}

// Get returns the entry for key if present and not expired.
func (s *MemoryStore) Get(_ context.Context, key string) ([]byte, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	expiry, exists := s.expiry[key]
	if !exists {
		return nil, false, nil
	}
	if s.nowFunc().After(expiry) {
		// Expired - clean it up
		delete(s.values, key)
		delete(s.expiry, key)
		return nil, false, nil
	}
	return s.values[key], true, nil
}

// Set stores value under key and evicts any other expired entries.
func (s *MemoryStore) Set(_ context.Context, key string, value []byte, ttl time.Duration) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.values[key] = value
	s.expiry[key] = s.nowFunc().Add(ttl)

	// Lazy cleanup of expired entries
	now := s.nowFunc()
	for k, exp := range s.expiry {
		if now.After(exp) {
			delete(s.values, k)
			delete(s.expiry, k)
		}
	}
	return nil
}

// Delete removes a single key.
func (s *MemoryStore) Delete(_ context.Context, key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.values, key)
	delete(s.expiry, key)
	return nil
}

// DeletePrefix removes every key with the given prefix.
func (s *MemoryStore) DeletePrefix(_ context.Context, prefix string) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	dropped := 0
	for k := range s.values {
		if strings.HasPrefix(k, prefix) {
			delete(s.values, k)
			delete(s.expiry, k)
			dropped++
		}
	}
	return dropped, nil
}

// Clear removes all entries.
func (s *MemoryStore) Clear(_ context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.values = make(map[string][]byte)
	s.expiry = make(map[string]time.Time)
	return nil
}
