package utils

import (
	"context"
	"errors"
	"fmt"
	"time"
)

// ErrExhausted wraps the last error once a policy runs out of attempts.
var ErrExhausted = errors.New("retry budget exhausted")

// RetryPolicy is a bounded exponential backoff.
type RetryPolicy struct {
	Name        string
	MaxAttempts int
	BaseDelay   time.Duration
	Multiplier  float64
	MaxDelay    time.Duration
}

// FetchPolicy is used for bar fetches and gateway calls.
var FetchPolicy = RetryPolicy{Name: "fetch", MaxAttempts: 3, BaseDelay: 5 * time.Second, Multiplier: 2}

// ORRecheckPolicy re-polls the opening range while late bars arrive.
var ORRecheckPolicy = RetryPolicy{Name: "or-recheck", MaxAttempts: 3, BaseDelay: 15 * time.Second, Multiplier: 1}

// Delay returns the wait before attempt n+1, n starting at 1.
func (p RetryPolicy) Delay(n int) time.Duration {
	d := float64(p.BaseDelay)
	mult := p.Multiplier
	if mult <= 0 {
		mult = 1
	}
	for i := 1; i < n; i++ {
		d *= mult
	}
	delay := time.Duration(d)
	if p.MaxDelay > 0 && delay > p.MaxDelay {
		delay = p.MaxDelay
	}
	return delay
}

// Do calls fn until it succeeds, returns a Permanent error, the attempts run
// out or ctx ends. fn receives the 1-based attempt number.
func (p RetryPolicy) Do(ctx context.Context, fn func(attempt int) error) error {
	attempts := p.MaxAttempts
	if attempts <= 0 {
		attempts = 1
	}
	var err error
	for n := 1; n <= attempts; n++ {
		if err = fn(n); err == nil {
			return nil
		}
		var perm *permanentError
		if errors.As(err, &perm) {
			return perm.err
		}
		if n == attempts {
			break
		}
		t := time.NewTimer(p.Delay(n))
		select {
		case <-ctx.Done():
			t.Stop()
			return ctx.Err()
		case <-t.C:
		}
	}
	return fmt.Errorf("%s: %w after %d attempts: %w", p.Name, ErrExhausted, attempts, err)
}

type permanentError struct{ err error }

func (e *permanentError) Error() string { return e.err.Error() }
func (e *permanentError) Unwrap() error { return e.err }

// Permanent stops a retry loop and returns err unchanged.
func Permanent(err error) error {
	if err == nil {
		return nil
	}
	return &permanentError{err: err}
}
