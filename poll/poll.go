// Package poll runs repeated status checks for asynchronous backend
// operations (deposits, withdrawals, Stars invoices, escrow releases)
// until a terminal outcome or an attempt budget is exhausted.
package poll

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
)

// Outcome is what a single status check reports.
type Outcome int

const (
	// OutcomeContinue means no terminal answer yet; keep polling.
	OutcomeContinue Outcome = iota
	// OutcomeSucceeded means the operation completed.
	OutcomeSucceeded
	// OutcomeFailed means the operation definitively failed.
	OutcomeFailed
)

// Result carries a check's outcome plus its payload or failure reason.
type Result struct {
	Outcome Outcome
	Payload []byte
	Reason  string
}

// Continue reports no terminal answer yet.
func Continue() Result { return Result{Outcome: OutcomeContinue} }

// Succeeded reports completion with a payload.
func Succeeded(payload []byte) Result {
	return Result{Outcome: OutcomeSucceeded, Payload: payload}
}

// Failed reports a definitive negative result.
func Failed(reason string) Result {
	return Result{Outcome: OutcomeFailed, Reason: reason}
}

// CheckFunc queries the status of targetID once. Returning an error counts
// as OutcomeContinue: transient fetch failures spend an attempt instead of
// aborting the session.
type CheckFunc func(ctx context.Context, targetID string) (Result, error)

// Status is a session's lifecycle state.
type Status int

const (
	StatusPending Status = iota
	StatusSucceeded
	StatusFailed
	// StatusTimedOut means the attempt budget ran out without a definitive
	// answer. It is an unknown outcome, not a negative one, and is always
	// surfaced distinctly from StatusFailed.
	StatusTimedOut
	// StatusCancelled means the session was torn down before resolution.
	// No callback fires for a cancelled session.
	StatusCancelled
)

func (s Status) String() string {
	switch s {
	case StatusPending:
		return "pending"
	case StatusSucceeded:
		return "succeeded"
	case StatusFailed:
		return "failed"
	case StatusTimedOut:
		return "timed_out"
	case StatusCancelled:
		return "cancelled"
	default:
		return "unknown"
	}
}

// Terminal reports whether no further transitions are possible.
func (s Status) Terminal() bool { return s != StatusPending }

// Defaults applied when a session option is left unset.
const (
	DefaultInterval    = 2 * time.Second
	DefaultMaxAttempts = 30
)

// sessionConfig collects per-session options. Callbacks are additive and
// run in registration order, so composed layers (a service wrapping a raw
// poll) can each observe the outcome.
type sessionConfig struct {
	interval    time.Duration
	maxAttempts int
	onSuccess   []func(payload []byte)
	onFailure   []func(reason string)
	onTimeout   []func()
}

// SessionOption configures a single poll session.
type SessionOption func(*sessionConfig)

// WithInterval sets the delay before the first check and between checks.
func WithInterval(d time.Duration) SessionOption {
	return func(cfg *sessionConfig) { cfg.interval = d }
}

// WithMaxAttempts caps how many checks run before the session times out.
func WithMaxAttempts(n int) SessionOption {
	return func(cfg *sessionConfig) { cfg.maxAttempts = n }
}

// OnSuccess registers a success callback.
func OnSuccess(fn func(payload []byte)) SessionOption {
	return func(cfg *sessionConfig) { cfg.onSuccess = append(cfg.onSuccess, fn) }
}

// OnFailure registers a failure callback.
func OnFailure(fn func(reason string)) SessionOption {
	return func(cfg *sessionConfig) { cfg.onFailure = append(cfg.onFailure, fn) }
}

// OnTimeout registers an attempt-budget-exhausted callback. Timeout is
// reported separately from failure so callers can tell "payment rejected"
// apart from "unknown, check manually".
func OnTimeout(fn func()) SessionOption {
	return func(cfg *sessionConfig) { cfg.onTimeout = append(cfg.onTimeout, fn) }
}

// Session is one run of a status-check loop. Sessions are single-use: a
// terminal session never transitions again, and a new poll needs a new
// session.
type Session struct {
	ID       string
	TargetID string

	mu      sync.Mutex
	status  Status
	attempt int

	cancel context.CancelFunc
	done   chan struct{}
}

// Status returns the session's current state.
func (s *Session) Status() Status {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.status
}

// Attempt returns how many checks have run.
func (s *Session) Attempt() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.attempt
}

// Done is closed once the session stops, whatever the reason.
func (s *Session) Done() <-chan struct{} { return s.done }

// Cancel stops the session without invoking any callback. It is the single
// teardown path for every exit (modal closed, logout, shutdown) and is safe
// to call repeatedly or after the session already finished.
func (s *Session) Cancel() {
	s.cancel()
}

// Wait blocks until the session reaches a terminal state or ctx expires.
func (s *Session) Wait(ctx context.Context) (Status, error) {
	select {
	case <-s.done:
		return s.Status(), nil
	case <-ctx.Done():
		return s.Status(), ctx.Err()
	}
}

// Poller owns live sessions so teardown can cancel them in one sweep.
// Construct one per application; there is no package-level instance.
type Poller struct {
	mu       sync.Mutex
	sessions map[string]*Session
	log      *slog.Logger
}

// Option configures the poller
type Option func(*Poller)

// WithLogger sets the poller's logger.
func WithLogger(log *slog.Logger) Option {
	return func(p *Poller) { p.log = log }
}

// New creates an empty poller.
func New(opts ...Option) *Poller {
	p := &Poller{
		sessions: make(map[string]*Session),
		log:      slog.Default(),
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Start begins polling targetID. The first check fires after the interval,
// not immediately. Checks are strictly sequential: the next timer is armed
// only after the previous check returns.
func (p *Poller) Start(ctx context.Context, targetID string, check CheckFunc, opts ...SessionOption) *Session {
	cfg := sessionConfig{
		interval:    DefaultInterval,
		maxAttempts: DefaultMaxAttempts,
	}
	for _, opt := range opts {
		opt(&cfg)
	}

	ctx, cancel := context.WithCancel(ctx)
	s := &Session{
		ID:       uuid.NewString(),
		TargetID: targetID,
		status:   StatusPending,
		cancel:   cancel,
		done:     make(chan struct{}),
	}

	p.mu.Lock()
	p.sessions[s.ID] = s
	p.mu.Unlock()

	go p.run(ctx, s, check, cfg)
	return s
}

// CancelAll tears down every live session (logout path). No callbacks fire.
func (p *Poller) CancelAll() {
	p.mu.Lock()
	sessions := make([]*Session, 0, len(p.sessions))
	for _, s := range p.sessions {
		sessions = append(sessions, s)
	}
	p.mu.Unlock()

	for _, s := range sessions {
		s.Cancel()
	}
}

// Len reports how many sessions are still live.
func (p *Poller) Len() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.sessions)
}

func (p *Poller) remove(s *Session) {
	p.mu.Lock()
	delete(p.sessions, s.ID)
	p.mu.Unlock()
}

// run drives one session to a terminal state.
func (p *Poller) run(ctx context.Context, s *Session, check CheckFunc, cfg sessionConfig) {
	defer close(s.done)
	defer p.remove(s)

	timer := time.NewTimer(cfg.interval)
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			s.finish(StatusCancelled)
			return
		case <-timer.C:
		}

		s.mu.Lock()
		s.attempt++
		attempt := s.attempt
		s.mu.Unlock()

		result, err := check(ctx, s.TargetID)
		if ctx.Err() != nil {
			// Cancelled while the check was out; its result no longer counts.
			s.finish(StatusCancelled)
			return
		}
		if err != nil {
			p.log.Warn("status check failed",
				"session", s.ID, "target", s.TargetID, "attempt", attempt, "error", err)
			result = Continue()
		}

		switch result.Outcome {
		case OutcomeSucceeded:
			s.finish(StatusSucceeded)
			p.log.Debug("poll succeeded", "session", s.ID, "target", s.TargetID, "attempt", attempt)
			for _, fn := range cfg.onSuccess {
				fn(result.Payload)
			}
			return
		case OutcomeFailed:
			s.finish(StatusFailed)
			p.log.Debug("poll failed", "session", s.ID, "target", s.TargetID, "reason", result.Reason)
			for _, fn := range cfg.onFailure {
				fn(result.Reason)
			}
			return
		default:
			if attempt >= cfg.maxAttempts {
				s.finish(StatusTimedOut)
				p.log.Debug("poll timed out", "session", s.ID, "target", s.TargetID, "attempts", attempt)
				for _, fn := range cfg.onTimeout {
					fn()
				}
				return
			}
			timer.Reset(cfg.interval)
		}
	}
}

func (s *Session) finish(status Status) {
	s.mu.Lock()
	if s.status == StatusPending {
		s.status = status
	}
	s.mu.Unlock()
}
