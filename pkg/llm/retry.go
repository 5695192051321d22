package llm

import (
	"context"
	"errors"
	"fmt"
	"io"
	"math/rand/v2"
	"net/http"
	"sync"
	"time"
)

// ErrCircuitOpen is returned while the breaker rejects requests.
var ErrCircuitOpen = errors.New("llm: circuit breaker open")

// RetryTransport retries transport errors and 5xx responses with
// exponential backoff and jitter, and trips a circuit breaker after
// consecutive failed round trips.
type RetryTransport struct {
	Base       http.RoundTripper
	MaxRetries int
	BaseDelay  time.Duration
	Breaker    *CircuitBreaker
}

// NewRetryTransport wraps base (http.DefaultTransport when nil).
func NewRetryTransport(base http.RoundTripper, maxRetries int) *RetryTransport {
	if base == nil {
		base = http.DefaultTransport
	}
	return &RetryTransport{
		Base:       base,
		MaxRetries: maxRetries,
		BaseDelay:  200 * time.Millisecond,
		Breaker:    NewCircuitBreaker(5, 30*time.Second),
	}
}

func (t *RetryTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	if t.Breaker != nil && !t.Breaker.Allow() {
		return nil, ErrCircuitOpen
	}

	retries := t.MaxRetries
	if req.Body != nil && req.GetBody == nil {
		retries = 0
	}

	var (
		resp *http.Response
		err  error
	)
	for attempt := 0; ; attempt++ {
		if attempt > 0 && req.Body != nil {
			body, gerr := req.GetBody()
			if gerr != nil {
				return nil, fmt.Errorf("llm: rewind body: %w", gerr)
			}
			req = req.Clone(req.Context())
			req.Body = body
		}

		resp, err = t.Base.RoundTrip(req)
		if err == nil && resp.StatusCode < http.StatusInternalServerError {
			if t.Breaker != nil {
				t.Breaker.Success()
			}
			return resp, nil
		}
		if attempt >= retries {
			break
		}
		if resp != nil {
			_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 4096))
			_ = resp.Body.Close()
		}
		if werr := t.wait(req.Context(), attempt); werr != nil {
			return nil, werr
		}
	}

	if t.Breaker != nil {
		t.Breaker.Failure()
	}
	return resp, err
}

func (t *RetryTransport) wait(ctx context.Context, attempt int) error {
	d := t.BaseDelay << attempt
	if t.BaseDelay > 0 {
		d += time.Duration(rand.Int64N(int64(t.BaseDelay)/2 + 1))
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

type breakerState int

const (
	breakerClosed breakerState = iota
	breakerOpen
	breakerHalfOpen
)

// CircuitBreaker opens after threshold consecutive failures and lets a
// single probe through once cooldown has elapsed.
type CircuitBreaker struct {
	mu        sync.Mutex
	failures  int
	threshold int
	cooldown  time.Duration
	openedAt  time.Time
	state     breakerState
	now       func() time.Time
}

func NewCircuitBreaker(threshold int, cooldown time.Duration) *CircuitBreaker {
	if threshold <= 0 {
		threshold = 1
	}
	return &CircuitBreaker{threshold: threshold, cooldown: cooldown, now: time.Now}
}

func (cb *CircuitBreaker) Allow() bool {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	switch cb.state {
	case breakerOpen:
		if cb.now().Sub(cb.openedAt) < cb.cooldown {
			return false
		}
		cb.state = breakerHalfOpen
		return true
	case breakerHalfOpen:
		// one probe at a time
		return false
	default:
		return true
	}
}

func (cb *CircuitBreaker) Success() {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	cb.failures = 0
	cb.state = breakerClosed
}

func (cb *CircuitBreaker) Failure() {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	cb.failures++
	if cb.state == breakerHalfOpen || cb.failures >= cb.threshold {
		cb.state = breakerOpen
		cb.openedAt = cb.now()
	}
}

// Open reports whether the breaker is currently rejecting requests.
func (cb *CircuitBreaker) Open() bool {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	return cb.state == breakerOpen
}
