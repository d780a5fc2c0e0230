package db

import (
	"context"
	"database/sql"
	"errors"
	"strings"
	"time"

	"modernc.org/sqlite"
	sqlite3 "modernc.org/sqlite/lib"
)

// RetryPolicy bounds how long a write waits out SQLITE_BUSY.
type RetryPolicy struct {
	// Attempts is the total number of tries, including the first.
	Attempts int
	// Backoff is the wait before the first retry. It doubles after each one.
	Backoff time.Duration
	// MaxBackoff caps a single wait.
	MaxBackoff time.Duration
}

// DefaultRetryPolicy is used when Config.Retry is left zero.
func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{
		Attempts:   3,
		Backoff:    50 * time.Millisecond,
		MaxBackoff: time.Second,
	}
}

func (p RetryPolicy) normalized() RetryPolicy {
	def := DefaultRetryPolicy()
	if p.Attempts <= 0 {
		p.Attempts = def.Attempts
	}
	if p.Backoff <= 0 {
		p.Backoff = def.Backoff
	}
	if p.MaxBackoff <= 0 {
		p.MaxBackoff = def.MaxBackoff
	}
	if p.MaxBackoff < p.Backoff {
		p.MaxBackoff = p.Backoff
	}
	return p
}

// TransactionWithRetry runs fn in a transaction and retries the whole
// transaction while the database reports itself busy or locked.
func (db *DB) TransactionWithRetry(ctx context.Context, fn func(*sql.Tx) error) error {
	return db.retry.do(ctx, func() error {
		return db.Transaction(ctx, fn)
	}, func(attempt int, wait time.Duration, err error) {
		db.logger.Debug().
			Err(err).
			Int("attempt", attempt).
			Dur("wait", wait).
			Msg("database busy, retrying")
	})
}

func (p RetryPolicy) do(ctx context.Context, fn func() error, onRetry func(int, time.Duration, error)) error {
	p = p.normalized()
	wait := p.Backoff

	for attempt := 1; ; attempt++ {
		if err := ctx.Err(); err != nil {
			return err
		}

		err := fn()
		if err == nil || !isBusyError(err) || attempt >= p.Attempts {
			return err
		}
		if onRetry != nil {
			onRetry(attempt, wait, err)
		}

		timer := time.NewTimer(wait)
		select {
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		case <-timer.C:
		}

		wait *= 2
		if wait > p.MaxBackoff {
			wait = p.MaxBackoff
		}
	}
}

func isBusyError(err error) bool {
	if err == nil || errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return false
	}

	var sqliteErr *sqlite.Error
	if errors.As(err, &sqliteErr) {
		// Extended codes carry the primary code in the low byte.
		switch sqliteErr.Code() & 0xff {
		case sqlite3.SQLITE_BUSY, sqlite3.SQLITE_LOCKED:
			return true
		}
		return false
	}

	msg := strings.ToLower(err.Error())
	return strings.Contains(msg, "database is locked") || strings.Contains(msg, "database is busy")
}
