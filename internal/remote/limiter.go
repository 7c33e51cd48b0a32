package remote

import (
	"context"
	"sync"
	"time"
)

// Clock abstracts time for the limiter so tests can drive backoff without
// real delays.
type Clock interface {
	Now() time.Time
	Sleep(ctx context.Context, d time.Duration) error
}

type systemClock struct{}

func (systemClock) Now() time.Time { return time.Now() }

func (systemClock) Sleep(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

type LimiterConfig struct {
	MaxRequests  int           // writes allowed per window
	Window       time.Duration // sliding window size
	InitialDelay time.Duration // first backoff delay
	MaxDelay     time.Duration // backoff cap
	MaxRetries   int           // backoff attempts before giving up
}

func DefaultLimiterConfig() LimiterConfig {
	return LimiterConfig{
		MaxRequests:  100,
		Window:       time.Minute,
		InitialDelay: time.Second,
		MaxDelay:     32 * time.Second,
		MaxRetries:   5,
	}
}

// Limiter counts mutating requests in a sliding window and suspends callers
// with exponential backoff once the window is full. One Limiter instance is
// shared by all write paths of an Adapter so the budget is global.
type Limiter struct {
	cfg   LimiterConfig
	clock Clock

	mu          sync.Mutex
	requests    int
	windowStart time.Time
	retries     int
}

func NewLimiter(cfg LimiterConfig, clock Clock) *Limiter {
	if clock == nil {
		clock = systemClock{}
	}
	l := &Limiter{cfg: cfg, clock: clock}
	l.windowStart = clock.Now()
	return l
}

// Acquire blocks until the caller may issue one mutating request. It is an
// explicit bounded loop, not recursion: each pass either admits the request,
// resets an expired window, or sleeps one backoff step.
func (l *Limiter) Acquire(ctx context.Context) error {
	for {
		l.mu.Lock()
		now := l.clock.Now()
		if now.Sub(l.windowStart) > l.cfg.Window {
			// Window rolled over; both counters reset so old bursts
			// cannot throttle unrelated later calls.
			l.requests = 0
			l.retries = 0
			l.windowStart = now
		}
		if l.requests < l.cfg.MaxRequests {
			l.requests++
			l.mu.Unlock()
			return nil
		}
		l.mu.Unlock()

		if err := l.Backoff(ctx); err != nil {
			return err
		}
	}
}

// Backoff sleeps for the next exponentially growing delay, or fails with
// ErrRateLimitExceeded once the retry budget is spent. Also used by the
// adapter when the backend itself reports resource exhaustion.
func (l *Limiter) Backoff(ctx context.Context) error {
	l.mu.Lock()
	if l.retries >= l.cfg.MaxRetries {
		l.mu.Unlock()
		return ErrRateLimitExceeded
	}
	delay := l.cfg.InitialDelay << uint(l.retries)
	if delay > l.cfg.MaxDelay {
		delay = l.cfg.MaxDelay
	}
	l.retries++
	l.mu.Unlock()

	return l.clock.Sleep(ctx, delay)
}

// Success resets the retry counter so a transient burst does not penalize
// later unrelated calls.
func (l *Limiter) Success() {
	l.mu.Lock()
	l.retries = 0
	l.mu.Unlock()
}
