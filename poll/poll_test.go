package poll

import (
	"context"
	"encoding/json"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const tick = 10 * time.Millisecond

func wait(t *testing.T, s *Session) Status {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	status, err := s.Wait(ctx)
	require.NoError(t, err, "session did not finish in time")
	return status
}

func TestPoll_TimesOutAfterExactBudget(t *testing.T) {
	p := New()
	var checks int64
	var timeouts, failures int64

	s := p.Start(context.Background(), "pay-1",
		func(ctx context.Context, targetID string) (Result, error) {
			atomic.AddInt64(&checks, 1)
			return Continue(), nil
		},
		WithInterval(tick),
		WithMaxAttempts(3),
		OnTimeout(func() { atomic.AddInt64(&timeouts, 1) }),
		OnFailure(func(string) { atomic.AddInt64(&failures, 1) }),
	)

	assert.Equal(t, StatusTimedOut, wait(t, s))

	// Give a stray tick the chance to fire before counting.
	time.Sleep(5 * tick)
	assert.EqualValues(t, 3, atomic.LoadInt64(&checks), "exactly maxAttempts checks")
	assert.EqualValues(t, 1, atomic.LoadInt64(&timeouts), "timeout callback fires once")
	assert.EqualValues(t, 0, atomic.LoadInt64(&failures), "timeout is not failure")
	assert.Equal(t, 3, s.Attempt())
}

func TestPoll_SucceedsAndStopsScheduling(t *testing.T) {
	p := New()
	var checks int64
	payloads := make(chan []byte, 1)

	s := p.Start(context.Background(), "pay-2",
		func(ctx context.Context, targetID string) (Result, error) {
			n := atomic.AddInt64(&checks, 1)
			if n == 2 {
				return Succeeded([]byte(`{"amount":10}`)), nil
			}
			return Continue(), nil
		},
		WithInterval(tick),
		WithMaxAttempts(5),
		OnSuccess(func(payload []byte) { payloads <- payload }),
	)

	assert.Equal(t, StatusSucceeded, wait(t, s))

	time.Sleep(5 * tick)
	assert.EqualValues(t, 2, atomic.LoadInt64(&checks), "no check after success")

	var decoded struct {
		Amount int64 `json:"amount"`
	}
	require.NoError(t, json.Unmarshal(<-payloads, &decoded))
	assert.EqualValues(t, 10, decoded.Amount)
}

func TestPoll_FailureIsDistinctFromTimeout(t *testing.T) {
	p := New()
	reasons := make(chan string, 1)
	var timeouts int64

	s := p.Start(context.Background(), "pay-3",
		func(ctx context.Context, targetID string) (Result, error) {
			return Failed("payment rejected"), nil
		},
		WithInterval(tick),
		OnFailure(func(reason string) { reasons <- reason }),
		OnTimeout(func() { atomic.AddInt64(&timeouts, 1) }),
	)

	assert.Equal(t, StatusFailed, wait(t, s))
	assert.Equal(t, "payment rejected", <-reasons)
	assert.EqualValues(t, 0, atomic.LoadInt64(&timeouts))
}

func TestPoll_CancelBetweenTicks(t *testing.T) {
	p := New()
	firstCheck := make(chan struct{})
	var checks int64
	var callbacks int64

	s := p.Start(context.Background(), "pay-4",
		func(ctx context.Context, targetID string) (Result, error) {
			if atomic.AddInt64(&checks, 1) == 1 {
				close(firstCheck)
			}
			return Continue(), nil
		},
		WithInterval(tick),
		WithMaxAttempts(100),
		OnSuccess(func([]byte) { atomic.AddInt64(&callbacks, 1) }),
		OnFailure(func(string) { atomic.AddInt64(&callbacks, 1) }),
		OnTimeout(func() { atomic.AddInt64(&callbacks, 1) }),
	)

	<-firstCheck
	s.Cancel()
	assert.Equal(t, StatusCancelled, wait(t, s))

	checksAtCancel := atomic.LoadInt64(&checks)
	time.Sleep(10 * tick)
	assert.Equal(t, checksAtCancel, atomic.LoadInt64(&checks), "no check fires after cancel")
	assert.EqualValues(t, 0, atomic.LoadInt64(&callbacks), "no callback fires after cancel")
}

func TestPoll_DepositScenario(t *testing.T) {
	// continue, continue, succeeded({amount:10}) within a budget of 3.
	p := New()
	var checks int64
	success := make(chan []byte, 1)
	var otherCallbacks int64

	s := p.Start(context.Background(), "deposit-10-usdt",
		func(ctx context.Context, targetID string) (Result, error) {
			switch atomic.AddInt64(&checks, 1) {
			case 1, 2:
				return Continue(), nil
			default:
				return Succeeded([]byte(`{"amount":10}`)), nil
			}
		},
		WithInterval(tick),
		WithMaxAttempts(3),
		OnSuccess(func(payload []byte) { success <- payload }),
		OnFailure(func(string) { atomic.AddInt64(&otherCallbacks, 1) }),
		OnTimeout(func() { atomic.AddInt64(&otherCallbacks, 1) }),
	)

	assert.Equal(t, StatusSucceeded, wait(t, s))

	var payload struct {
		Amount int64 `json:"amount"`
	}
	require.NoError(t, json.Unmarshal(<-success, &payload))
	assert.EqualValues(t, 10, payload.Amount)
	assert.EqualValues(t, 0, atomic.LoadInt64(&otherCallbacks))
}

func TestPoll_StarsInvoiceScenario(t *testing.T) {
	// Always continue with a budget of 30: timed_out, timeout callback once,
	// failure callback never.
	p := New()
	var timeouts, failures int64

	s := p.Start(context.Background(), "invoice-77",
		func(ctx context.Context, targetID string) (Result, error) {
			return Continue(), nil
		},
		WithInterval(time.Millisecond),
		WithMaxAttempts(30),
		OnTimeout(func() { atomic.AddInt64(&timeouts, 1) }),
		OnFailure(func(string) { atomic.AddInt64(&failures, 1) }),
	)

	assert.Equal(t, StatusTimedOut, wait(t, s))
	assert.Equal(t, 30, s.Attempt())
	assert.EqualValues(t, 1, atomic.LoadInt64(&timeouts))
	assert.EqualValues(t, 0, atomic.LoadInt64(&failures))
}

func TestPoll_CheckErrorSpendsAttempt(t *testing.T) {
	p := New()
	var checks int64

	s := p.Start(context.Background(), "flaky",
		func(ctx context.Context, targetID string) (Result, error) {
			atomic.AddInt64(&checks, 1)
			return Result{}, errors.New("connection reset")
		},
		WithInterval(tick),
		WithMaxAttempts(2),
	)

	assert.Equal(t, StatusTimedOut, wait(t, s))
	assert.EqualValues(t, 2, atomic.LoadInt64(&checks))
}

func TestPoller_CancelAll(t *testing.T) {
	p := New()
	for i := 0; i < 4; i++ {
		p.Start(context.Background(), "t",
			func(ctx context.Context, targetID string) (Result, error) {
				return Continue(), nil
			},
			WithInterval(time.Hour),
		)
	}
	require.Equal(t, 4, p.Len())

	p.CancelAll()

	deadline := time.Now().Add(2 * time.Second)
	for p.Len() > 0 && time.Now().Before(deadline) {
		time.Sleep(time.Millisecond)
	}
	assert.Equal(t, 0, p.Len())
}

func TestPoll_TerminalStateSticks(t *testing.T) {
	p := New()
	s := p.Start(context.Background(), "t",
		func(ctx context.Context, targetID string) (Result, error) {
			return Succeeded(nil), nil
		},
		WithInterval(time.Millisecond),
	)
	assert.Equal(t, StatusSucceeded, wait(t, s))

	// Cancel after completion must not flip the status.
	s.Cancel()
	assert.Equal(t, StatusSucceeded, s.Status())
	assert.True(t, s.Status().Terminal())
}
