package diagnostics

import (
	"fmt"
	"io"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func discard() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestLogKeepsMostRecentNewestFirst(t *testing.T) {
	t.Parallel()

	for _, n := range []int{0, 1, 9, 10, 11, 25} {
		t.Run(fmt.Sprintf("n=%d", n), func(t *testing.T) {
			t.Parallel()

			l := New(DefaultCapacity, discard())
			for i := 0; i < n; i++ {
				l.Record(fmt.Sprintf("event-%d", i), "")
			}

			entries := l.Entries()
			want := min(n, DefaultCapacity)
			require.Len(t, entries, want)
			assert.Equal(t, want, l.Len())
			for i, e := range entries {
				assert.Equal(t, fmt.Sprintf("event-%d", n-1-i), e.Action)
			}
		})
	}
}

func TestLogReset(t *testing.T) {
	t.Parallel()

	l := New(3, discard())
	l.Record("a", "1")
	l.Record("b", "2")
	l.Reset()

	assert.Empty(t, l.Entries())
	l.Record("c", "3")
	require.Len(t, l.Entries(), 1)
	assert.Equal(t, "c", l.Entries()[0].Action)
	assert.Equal(t, "3", l.Entries()[0].Details)
}

func TestLogDefaultsCapacity(t *testing.T) {
	t.Parallel()

	assert.Equal(t, DefaultCapacity, New(0, nil).Capacity())
}
