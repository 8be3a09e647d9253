package database

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

// Policy is an explicit retry policy applied at the store-client boundary.
// Attempts counts total calls, not re-tries; Backoff doubles after each
// failed attempt.
type Policy struct {
	Attempts int
	Backoff  time.Duration

	// RetryIf reports whether err is worth another attempt. Nil retries
	// every error.
	RetryIf func(error) bool
}

// DefaultPolicy covers transient store connectivity failures.
var DefaultPolicy = Policy{Attempts: 3, Backoff: 500 * time.Millisecond}

// ReadPolicy retries transient failures of individual read queries before
// the error surfaces to the operation's caller.
var ReadPolicy = Policy{Attempts: 3, Backoff: 200 * time.Millisecond, RetryIf: transientError}

// transientError distinguishes connectivity failures from answers. A
// *pgconn.PgError means the server processed the query, and no-rows is a
// result, so neither is retried.
func transientError(err error) bool {
	if errors.Is(err, pgx.ErrNoRows) ||
		errors.Is(err, context.Canceled) ||
		errors.Is(err, context.DeadlineExceeded) {
		return false
	}
	var pgErr *pgconn.PgError
	return !errors.As(err, &pgErr)
}

// Retry runs fn until it succeeds, the policy is exhausted, or the context
// is cancelled. The last error is returned as-is so callers can inspect it.
func Retry(ctx context.Context, p Policy, fn func(context.Context) error) error {
	if p.Attempts < 1 {
		p.Attempts = 1
	}

	backoff := p.Backoff
	var lastErr error
	for attempt := 0; attempt < p.Attempts; attempt++ {
		if attempt > 0 {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(backoff):
			}
			backoff *= 2
		}

		if lastErr = fn(ctx); lastErr == nil {
			return nil
		}
		if ctx.Err() != nil {
			return lastErr
		}
		if p.RetryIf != nil && !p.RetryIf(lastErr) {
			return lastErr
		}
	}
	return lastErr
}
