package starbazaar

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/starbazaar/starbazaar-go/bus"
	"github.com/starbazaar/starbazaar-go/cache"
	"github.com/starbazaar/starbazaar-go/poll"
	"github.com/starbazaar/starbazaar-go/session"
	"github.com/starbazaar/starbazaar-go/wallet"
)

// Service is the SDK's composition root. It owns the cache, the poller,
// the event bus, and the session store, and wires confirmation flows on
// top of a Backend. Construct one per application and pass it by
// reference; there is no package-level instance.
type Service struct {
	backend  Backend
	cache    *cache.Cache
	poller   *poll.Poller
	bus      *bus.Bus
	sessions session.Store
	log      *slog.Logger

	pollInterval time.Duration
	pollAttempts int
}

// ServiceOption configures the service
type ServiceOption func(*Service)

// WithCache overrides the read cache the flows invalidate and Logout
// clears. Rarely needed: NewService adopts the backend's own cache when
// it exposes one, which keeps invalidations and reads on one instance.
func WithCache(c *cache.Cache) ServiceOption {
	return func(s *Service) { s.cache = c }
}

// WithPoller sets the confirmation poller.
func WithPoller(p *poll.Poller) ServiceOption {
	return func(s *Service) { s.poller = p }
}

// WithBus sets the event bus.
func WithBus(b *bus.Bus) ServiceOption {
	return func(s *Service) { s.bus = b }
}

// WithSessionStore sets the persistent session store.
func WithSessionStore(store session.Store) ServiceOption {
	return func(s *Service) { s.sessions = store }
}

// WithLogger sets the service logger.
func WithLogger(log *slog.Logger) ServiceOption {
	return func(s *Service) { s.log = log }
}

// WithPollDefaults sets the interval and attempt budget confirmation flows
// use unless a flow call overrides them.
func WithPollDefaults(interval time.Duration, maxAttempts int) ServiceOption {
	return func(s *Service) {
		s.pollInterval = interval
		s.pollAttempts = maxAttempts
	}
}

// cacheProvider is implemented by backends that route their reads through
// a cache, e.g. api.Client.
type cacheProvider interface {
	Cache() *cache.Cache
}

// NewService creates a service around a backend. Collaborators default to
// fresh in-memory instances when not supplied, with one exception: if the
// backend exposes the cache its reads go through, the service adopts that
// instance, so flow invalidations and Logout's clear hit the entries the
// backend actually serves.
func NewService(backend Backend, opts ...ServiceOption) *Service {
	s := &Service{
		backend:      backend,
		log:          slog.Default(),
		pollInterval: poll.DefaultInterval,
		pollAttempts: poll.DefaultMaxAttempts,
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.cache == nil {
		if cp, ok := backend.(cacheProvider); ok && cp.Cache() != nil {
			s.cache = cp.Cache()
		} else {
			s.cache = cache.New()
		}
	}
	if s.bus == nil {
		s.bus = bus.New(bus.WithLogger(s.log))
	}
	if s.poller == nil {
		s.poller = poll.New(poll.WithLogger(s.log))
	}
	if s.sessions == nil {
		s.sessions = session.NewMemoryStore()
	}
	return s
}

// Backend exposes the underlying API client for direct reads.
func (s *Service) Backend() Backend { return s.backend }

// Bus exposes the event bus for subscriptions.
func (s *Service) Bus() *bus.Bus { return s.bus }

// Cache exposes the read cache the flows invalidate.
func (s *Service) Cache() *cache.Cache { return s.cache }

// Poller exposes the confirmation poller.
func (s *Service) Poller() *poll.Poller { return s.poller }

// ============================================================================
// Session lifecycle
// ============================================================================

// Login authenticates with Telegram initData, persists the token, and
// publishes a LoginEvent.
func (s *Service) Login(ctx context.Context, initData string) (*AuthResponse, error) {
	resp, err := s.backend.Login(ctx, initData)
	if err != nil {
		return nil, fmt.Errorf("login: %w", err)
	}
	if err := s.sessions.Set(session.KeyToken, resp.Token); err != nil {
		s.log.Warn("persist token failed", "error", err)
	}
	s.bus.Publish(TopicUser, LoginEvent{User: resp.User})
	return resp, nil
}

// RestoreSession loads a persisted token into the backend client. Returns
// false when no session is stored.
func (s *Service) RestoreSession() (bool, error) {
	token, err := s.sessions.Get(session.KeyToken)
	if err != nil {
		if errors.Is(err, session.ErrNotFound) {
			return false, nil
		}
		return false, fmt.Errorf("restore session: %w", err)
	}
	s.backend.SetToken(token)
	return true, nil
}

// Logout tears the whole client session down: cancels every live poll,
// wipes the cache and the session store, and drops the token.
func (s *Service) Logout() error {
	s.poller.CancelAll()
	s.cache.Clear()
	s.backend.SetToken("")
	err := s.sessions.Clear()
	s.bus.Publish(TopicUser, LogoutEvent{})
	if err != nil {
		return fmt.Errorf("logout: %w", err)
	}
	return nil
}

// ============================================================================
// Wallet registration
// ============================================================================

// RegisterLocalWallet proves ownership of a locally held key to the
// backend: fetch the challenge, sign it, register the address, and mark it
// active in the session store.
func (s *Service) RegisterLocalWallet(ctx context.Context, key *wallet.Key, label string) (*Wallet, error) {
	challenge, err := s.backend.WalletChallenge(ctx, key.Address())
	if err != nil {
		return nil, fmt.Errorf("wallet challenge: %w", err)
	}
	signature, err := key.SignChallenge(challenge.Nonce)
	if err != nil {
		return nil, fmt.Errorf("sign wallet challenge: %w", err)
	}
	registered, err := s.backend.RegisterWallet(ctx, RegisterWalletRequest{
		Address:   key.Address(),
		Signature: signature,
		Label:     label,
	})
	if err != nil {
		return nil, fmt.Errorf("register wallet: %w", err)
	}
	if err := s.sessions.Set(session.KeyActiveWallet, registered.Address); err != nil {
		s.log.Warn("persist active wallet failed", "error", err)
	}
	s.bus.Publish(TopicWallets, *registered)
	return registered, nil
}
