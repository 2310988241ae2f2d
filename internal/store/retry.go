package store

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"
)

const (
	maxWriteAttempts = 3
	baseRetryDelay   = 50 * time.Millisecond
)

// isSQLiteConflictError checks for SQLITE_BUSY or "database is locked".
// Both are SQLite concurrency errors that warrant a retry.
func isSQLiteConflictError(err error) bool {
	if err == nil {
		return false
	}
	msg := err.Error()
	return strings.Contains(msg, "SQLITE_BUSY") || strings.Contains(msg, "database is locked")
}

// withRetry runs op, retrying with exponential backoff while SQLite reports lock contention.
func withRetry(ctx context.Context, opName string, op func() error) error {
	var err error
	for i := 0; i < maxWriteAttempts; i++ {
		err = op()
		if err == nil {
			return nil
		}
		if !isSQLiteConflictError(err) || i == maxWriteAttempts-1 {
			break
		}

		delay := baseRetryDelay * time.Duration(1<<i) // 50ms, 100ms
		slog.Debug("SQLite busy, retrying", "op", opName, "attempt", i+1, "delay", delay)
		select {
		case <-ctx.Done():
			return fmt.Errorf("%s: %w", opName, ctx.Err())
		case <-time.After(delay):
		}
	}
	return err
}
