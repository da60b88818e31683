// Package retry wraps a fallible operation with bounded exponential backoff.
//
// The same primitive backs two very different call sites: durable flag writes
// (no per-attempt timeout, few attempts) and outbound HTTP calls
// (per-attempt timeout, 5xx retryable). Policy carries the knobs; Do runs
// the loop.
package retry

import (
	"context"
	"errors"
	"fmt"
	"time"
)

// ErrExhausted marks a failure that survived every allowed attempt. The
// last attempt's error is wrapped alongside it.
var ErrExhausted = errors.New("retry: attempts exhausted")

// Policy controls the retry loop.
//
// Zero fields fall back to defaults: 3 attempts, 1s base delay, 5s max
// delay, everything retryable.
type Policy struct {
	MaxAttempts int
	BaseDelay   time.Duration
	MaxDelay    time.Duration

	// Retryable decides whether an error is worth another attempt.
	// Nil means every error is retryable.
	Retryable func(error) bool
}

const (
	DefaultMaxAttempts = 3
	DefaultBaseDelay   = 1 * time.Second
	DefaultMaxDelay    = 5 * time.Second
)

func (p Policy) withDefaults() Policy {
	if p.MaxAttempts <= 0 {
		p.MaxAttempts = DefaultMaxAttempts
	}
	if p.BaseDelay <= 0 {
		p.BaseDelay = DefaultBaseDelay
	}
	if p.MaxDelay <= 0 {
		p.MaxDelay = DefaultMaxDelay
	}
	return p
}

// Delay returns the pause before attempt n (1-based). Attempt 1 runs
// immediately; attempt n waits min(base * 2^(n-2), max).
func (p Policy) Delay(attempt int) time.Duration {
	p = p.withDefaults()
	if attempt <= 1 {
		return 0
	}
	d := p.BaseDelay
	for i := 2; i < attempt; i++ {
		d *= 2
		if d >= p.MaxDelay {
			return p.MaxDelay
		}
	}
	if d > p.MaxDelay {
		return p.MaxDelay
	}
	return d
}

// Do runs op until it succeeds, the policy is exhausted, an error is deemed
// non-retryable, or ctx is cancelled.
//
// On exhaustion the last error is returned wrapped with ErrExhausted so the
// caller can distinguish "tried hard and failed" from "rejected outright".
// A non-retryable error is returned as-is after its single attempt.
func Do(ctx context.Context, p Policy, op func(ctx context.Context) error) error {
	p = p.withDefaults()

	var lastErr error
	for attempt := 1; attempt <= p.MaxAttempts; attempt++ {
		if d := p.Delay(attempt); d > 0 {
			t := time.NewTimer(d)
			select {
			case <-t.C:
			case <-ctx.Done():
				if !t.Stop() {
					<-t.C
				}
				return ctx.Err()
			}
		}
		if err := ctx.Err(); err != nil {
			return err
		}

		err := op(ctx)
		if err == nil {
			return nil
		}
		lastErr = err
		if errors.Is(err, context.Canceled) {
			return err
		}
		if p.Retryable != nil && !p.Retryable(err) {
			return err
		}
	}
	return fmt.Errorf("%w after %d attempts: %w", ErrExhausted, p.MaxAttempts, lastErr)
}
