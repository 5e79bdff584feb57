// Package session persists the small amount of client state that must
// survive restarts: the auth token, the active wallet address, and
// referral attribution. It is read at startup and wiped wholesale on
// logout.
package session

import (
	"errors"
	"sync"
)

// Well-known keys.
const (
	KeyToken        = "token"
	KeyActiveWallet = "activeWallet"
	KeyReferralCode = "referralCode"
)

// ErrNotFound is returned when a key has no stored value.
var ErrNotFound = errors.New("session: key not found")

// Store is a small persistent key-value store. Implementations must be
// safe for concurrent use.
type Store interface {
	Get(key string) (string, error)
	Set(key, value string) error
	Delete(key string) error
	// Clear wipes everything (logout).
	Clear() error
	Close() error
}

// MemoryStore keeps session state in process memory. Used by tests and
// by callers that do not want persistence.
type MemoryStore struct {
	mu     sync.Mutex
	values map[string]string
}

// NewMemoryStore creates an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{values: make(map[string]string)}
}

func (s *MemoryStore) Get(key string) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	value, ok := s.values[key]
	if !ok {
		return "", ErrNotFound
	}
	return value, nil
}

func (s *MemoryStore) Set(key, value string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.values[key] = value
	return nil
}

func (s *MemoryStore) Delete(key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.values, key)
	return nil
}

func (s *MemoryStore) Clear() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.values = make(map[string]string)
	return nil
}

func (s *MemoryStore) Close() error { return nil }
