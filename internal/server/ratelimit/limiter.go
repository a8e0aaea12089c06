// Package ratelimit implements the fixed-window attempt limiter applied to
// credential endpoints before any credential check or database write.
package ratelimit

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/dmitrijs2005/authcore/internal/common"
)

// Store keeps fixed-window counters. Increment must be atomic per key: it
// starts a new window with count 1 when none exists or the previous one has
// elapsed, otherwise it adds one. It returns the count after incrementing and
// the moment the current window ends.
type Store interface {
	Increment(ctx context.Context, key string, now time.Time, window time.Duration) (int, time.Time, error)
	Delete(ctx context.Context, key string) error
}

// Result is the outcome of one Check.
type Result struct {
	Blocked   bool
	Remaining int
	ResetAt   time.Time
}

// RetryAfter returns the whole seconds until the window resets, at least 1.
func (r Result) RetryAfter(now time.Time) int {
	secs := int(r.ResetAt.Sub(now).Round(time.Second) / time.Second)
	if secs < 1 {
		return 1
	}
	return secs
}

type Limiter struct {
	store Store
	now   func() time.Time
}

// Option customizes a Limiter.
type Option func(*Limiter)

// WithClock replaces time.Now.
func WithClock(now func() time.Time) Option {
	return func(l *Limiter) { l.now = now }
}

func NewLimiter(store Store, opts ...Option) *Limiter {
	l := &Limiter{store: store, now: time.Now}
	for _, o := range opts {
		o(l)
	}
	return l
}

// Check records one attempt for identifier and reports whether it exceeds
// maxAttempts within window. Every call counts, including blocked ones.
// Store failures are returned wrapped in common.ErrStoreUnavailable and
// must be treated as blocked by the caller.
func (l *Limiter) Check(ctx context.Context, identifier string, maxAttempts int, window time.Duration) (Result, error) {
	if identifier == "" {
		return Result{}, errors.New("rate limit identifier is empty")
	}
	if maxAttempts <= 0 || window <= 0 {
		return Result{}, fmt.Errorf("invalid rate limit %d per %s", maxAttempts, window)
	}

	count, resetAt, err := l.store.Increment(ctx, identifier, l.now(), window)
	if err != nil {
		return Result{Blocked: true}, fmt.Errorf("%w: rate limit store: %v", common.ErrStoreUnavailable, err)
	}

	remaining := maxAttempts - count
	if remaining < 0 {
		remaining = 0
	}
	return Result{
		Blocked:   count > maxAttempts,
		Remaining: remaining,
		ResetAt:   resetAt,
	}, nil
}

// Clear forgets any window for identifier.
func (l *Limiter) Clear(ctx context.Context, identifier string) error {
	if err := l.store.Delete(ctx, identifier); err != nil {
		return fmt.Errorf("%w: rate limit store: %v", common.ErrStoreUnavailable, err)
	}
	return nil
}
