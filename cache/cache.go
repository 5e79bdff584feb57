package cache

import (
	"context"
	"log/slog"
	"strings"
	"sync"
	"time"
)

// DefaultTTL is how long entries stay valid unless configured otherwise.
const DefaultTTL = 60 * time.Second

// LoaderFunc performs the actual fetch on a cache miss. It must be
// idempotent; the cache runs at most one loader per key at a time.
type LoaderFunc func(ctx context.Context) ([]byte, error)

// ValidatorFunc vets stored bytes before they are served from the cache.
// A non-nil error means the entry is corrupt: it is evicted and the key is
// treated as a miss, never surfaced to the caller.
type ValidatorFunc func(key string, value []byte) error

// Cache coalesces concurrent loads per key and memoizes results with a TTL.
type Cache struct {
	mu       sync.Mutex
	store    Store
	inFlight map[string]*flight
	ttl      time.Duration
	validate ValidatorFunc
	log      *slog.Logger
}

// flight tracks one in-progress load shared by all concurrent callers.
type flight struct {
	key       string
	done      chan struct{}
	value     []byte
	err       error
	skipStore bool
}

// Option configures the cache
type Option func(*Cache)

// WithTTL sets the entry lifetime. The TTL is per cache instance, not per
// key.
func WithTTL(ttl time.Duration) Option {
	return func(c *Cache) {
		c.ttl = ttl
	}
}

// WithStore swaps the backing store (e.g. RedisStore).
func WithStore(store Store) Option {
	return func(c *Cache) {
		c.store = store
	}
}

// WithValidator installs an entry validator.
func WithValidator(fn ValidatorFunc) Option {
	return func(c *Cache) {
		c.validate = fn
	}
}

// WithLogger sets the logger used for store failures and evictions.
func WithLogger(log *slog.Logger) Option {
	return func(c *Cache) {
		c.log = log
	}
}

// New creates a cache backed by an in-memory store unless configured
// otherwise.
func New(opts ...Option) *Cache {
	c := &Cache{
		store:    NewMemoryStore(),
		inFlight: make(map[string]*flight),
		ttl:      DefaultTTL,
		log:      slog.Default(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Fetch returns the cached value for key, or runs loader to populate it.
//
// Behavior per key:
//   - valid entry: returned immediately, loader not called
//   - load in flight: wait for it and share its result, including failure
//   - otherwise: run loader; successes are stored, failures are not, so
//     the next Fetch retries
//
// Waiting callers respect their own ctx; cancelling a waiter does not
// cancel the shared load.
func (c *Cache) Fetch(ctx context.Context, key string, loader LoaderFunc) ([]byte, error) {
	c.mu.Lock()

	if value, ok := c.lookupLocked(ctx, key); ok {
		c.mu.Unlock()
		return value, nil
	}

	if f, exists := c.inFlight[key]; exists {
		c.mu.Unlock()
		select {
		case <-f.done:
			return f.value, f.err
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}

	f := &flight{key: key, done: make(chan struct{})}
	c.inFlight[key] = f
	c.mu.Unlock()

	value, err := loader(ctx)

	c.mu.Lock()
	delete(c.inFlight, key)
	f.value, f.err = value, err
	if err == nil && !f.skipStore {
		if serr := c.store.Set(ctx, key, value, c.ttl); serr != nil {
			c.log.Warn("cache store failed", "key", key, "error", serr)
		}
	}
	c.mu.Unlock()
	close(f.done)

	return value, err
}

// lookupLocked reads the store and applies validation. Caller holds c.mu.
func (c *Cache) lookupLocked(ctx context.Context, key string) ([]byte, bool) {
	value, ok, err := c.store.Get(ctx, key)
	if err != nil {
		// Store trouble is a miss, not a failure.
		c.log.Warn("cache get failed", "key", key, "error", err)
		return nil, false
	}
	if !ok {
		return nil, false
	}
	if c.validate != nil {
		if verr := c.validate(key, value); verr != nil {
			c.log.Warn("evicting corrupt cache entry", "key", key, "error", verr)
			if derr := c.store.Delete(ctx, key); derr != nil {
				c.log.Warn("cache delete failed", "key", key, "error", derr)
			}
			return nil, false
		}
	}
	return value, true
}

// Invalidate drops every entry whose key starts with prefix and reports how
// many were dropped. Loads already in flight complete and serve their
// callers, but their results are not stored, so subsequent calls re-fetch.
func (c *Cache) Invalidate(prefix string) int {
	c.mu.Lock()
	for key, f := range c.inFlight {
		if strings.HasPrefix(key, prefix) {
			f.skipStore = true
		}
	}
	c.mu.Unlock()

	dropped, err := c.store.DeletePrefix(context.Background(), prefix)
	if err != nil {
		c.log.Warn("cache invalidate failed", "prefix", prefix, "error", err)
	}
	return dropped
}

// Clear wipes the whole cache (logout path).
func (c *Cache) Clear() {
	c.mu.Lock()
	for _, f := range c.inFlight {
		f.skipStore = true
	}
	c.mu.Unlock()

	if err := c.store.Clear(context.Background()); err != nil {
		c.log.Warn("cache clear failed", "error", err)
	}
}
