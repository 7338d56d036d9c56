package shared

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestIsSQLiteConflictError(t *testing.T) {
	t.Parallel()

	assert.False(t, IsSQLiteConflictError(nil))
	assert.True(t, IsSQLiteConflictError(errors.New("exec: SQLITE_BUSY")))
	assert.True(t, IsSQLiteConflictError(errors.New("database is locked (5)")))
	assert.False(t, IsSQLiteConflictError(errors.New("no such table")))
}

func TestRetryOnConflict(t *testing.T) {
	t.Parallel()

	p := RetryPolicy{MaxAttempts: 3, BaseDelay: time.Millisecond}

	calls := 0
	err := RetryOnConflict(t.Context(), p, "busy-then-ok", func(context.Context) error {
		calls++
		if calls < 3 {
			return errors.New("SQLITE_BUSY")
		}
		return nil
	})
	assert.NoError(t, err)
	assert.Equal(t, 3, calls)

	calls = 0
	fatal := errors.New("constraint failed")
	err = RetryOnConflict(t.Context(), p, "fatal", func(context.Context) error {
		calls++
		return fatal
	})
	assert.ErrorIs(t, err, fatal)
	assert.Equal(t, 1, calls)

	calls = 0
	err = RetryOnConflict(t.Context(), p, "always-busy", func(context.Context) error {
		calls++
		return errors.New("database is locked")
	})
	assert.Error(t, err)
	assert.Equal(t, 3, calls)
}

func TestRetryOnConflictStopsOnCancel(t *testing.T) {
	t.Parallel()

	ctx, cancel := context.WithCancel(t.Context())
	cancel()
	err := RetryOnConflict(ctx, RetryPolicy{MaxAttempts: 5, BaseDelay: time.Hour}, "cancelled", func(context.Context) error {
		return errors.New("SQLITE_BUSY")
	})
	assert.ErrorIs(t, err, context.Canceled)
}
