package shared

import (
	"context"
	"fmt"
	"log/slog"
	"time"
)

// RetryPolicy bounds RetryOnConflict.
type RetryPolicy struct {
	MaxAttempts int
	BaseDelay   time.Duration
}

// DefaultRetryPolicy retries three times starting at 50ms.
var DefaultRetryPolicy = RetryPolicy{MaxAttempts: 3, BaseDelay: 50 * time.Millisecond}

// RetryOnConflict runs op, retrying with exponential backoff while it fails
// with a SQLite conflict. Other errors are returned immediately.
func RetryOnConflict(ctx context.Context, p RetryPolicy, name string, op func(context.Context) error) error {
	if p.MaxAttempts <= 0 {
		p.MaxAttempts = 1
	}
	var err error
	for i := 0; i < p.MaxAttempts; i++ {
		err = op(ctx)
		if err == nil {
			return nil
		}
		if !IsSQLiteConflictError(err) || i == p.MaxAttempts-1 {
			break
		}

		delay := p.BaseDelay * time.Duration(1<<i) // 50ms, 100ms, 200ms
		slog.Debug("database busy, retrying", "op", name, "attempt", i+1, "delay", delay)
		select {
		case <-time.After(delay):
		case <-ctx.Done():
			return fmt.Errorf("%s: %w", name, ctx.Err())
		}
	}
	return fmt.Errorf("%s: %w", name, err)
}
