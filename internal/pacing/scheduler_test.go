package pacing

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"github.com/ashureev/intelliform/internal/domain"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

func batch(n int) []domain.Message {
	out := make([]domain.Message, n)
	for i := range out {
		out[i] = domain.Message{ID: int64(i + 1), Role: domain.RoleAssistant}
	}
	return out
}

func TestPlayPreservesOrderAndSpacing(t *testing.T) {
	t.Parallel()

	s := New(20 * time.Millisecond)
	start := time.Now()
	var ids []int64
	var at []time.Duration

	err := s.Play(t.Context(), batch(3), func(m domain.Message) error {
		ids = append(ids, m.ID)
		at = append(at, time.Since(start))
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, []int64{1, 2, 3}, ids)
	for i := 1; i < len(at); i++ {
		assert.GreaterOrEqual(t, at[i], s.Delay(i))
		assert.Greater(t, at[i], at[i-1])
	}
}

func TestPlayZeroPauseIsImmediate(t *testing.T) {
	t.Parallel()

	s := New(-time.Second)
	assert.Zero(t, s.Pause())

	n := 0
	require.NoError(t, s.Play(t.Context(), batch(5), func(domain.Message) error {
		n++
		return nil
	}))
	assert.Equal(t, 5, n)
}

func TestPlayStopsOnCancel(t *testing.T) {
	t.Parallel()

	s := New(time.Hour)
	ctx, cancel := context.WithCancel(t.Context())

	delivered := 0
	done := make(chan error, 1)
	go func() {
		done <- s.Play(ctx, batch(3), func(domain.Message) error {
			delivered++
			return nil
		})
	}()

	cancel()
	select {
	case err := <-done:
		assert.ErrorIs(t, err, context.Canceled)
	case <-time.After(2 * time.Second):
		t.Fatal("Play did not return after cancel")
	}
	assert.LessOrEqual(t, delivered, 1)
}

func TestPlayStopsOnDeliverError(t *testing.T) {
	t.Parallel()

	closed := errors.New("closed")
	calls := 0
	err := New(0).Play(t.Context(), batch(4), func(domain.Message) error {
		calls++
		return closed
	})
	assert.ErrorIs(t, err, closed)
	assert.Equal(t, 1, calls)
}
