// Package diagnostics keeps a short in-memory history of operational events.
package diagnostics

import (
	"log/slog"
	"sync"
	"time"

	"github.com/ashureev/intelliform/internal/domain"
)

// DefaultCapacity is the number of entries a Log retains.
const DefaultCapacity = 10

// Log is a fixed-size ring of diagnostic entries. When full, the oldest entry
// is overwritten. Entries are for display only and must not drive control flow.
type Log struct {
	buf    []domain.DiagnosticEntry
	size   int
	head   int // next write position
	count  int
	now    func() time.Time
	logger *slog.Logger
	mu     sync.RWMutex
}

// New creates a log holding at most size entries. Records are mirrored to
// logger at Info level.
func New(size int, logger *slog.Logger) *Log {
	if size <= 0 {
		size = DefaultCapacity
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Log{
		buf:    make([]domain.DiagnosticEntry, size),
		size:   size,
		now:    time.Now,
		logger: logger,
	}
}

// Record adds an entry, evicting the oldest when the log is full.
func (l *Log) Record(action, details string) {
	l.mu.Lock()
	entry := domain.DiagnosticEntry{
		Timestamp: l.now(),
		Action:    action,
		Details:   details,
	}
	l.buf[l.head] = entry
	l.head = (l.head + 1) % l.size
	if l.count < l.size {
		l.count++
	}
	l.mu.Unlock()

	l.logger.Info("diagnostic", "action", action, "details", details)
}

// Entries returns the retained entries, newest first.
func (l *Log) Entries() []domain.DiagnosticEntry {
	l.mu.RLock()
	defer l.mu.RUnlock()

	out := make([]domain.DiagnosticEntry, 0, l.count)
	for i := 1; i <= l.count; i++ {
		idx := (l.head - i + l.size) % l.size
		out = append(out, l.buf[idx])
	}
	return out
}

// Len returns the number of retained entries.
func (l *Log) Len() int {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.count
}

// Reset clears the log.
func (l *Log) Reset() {
	l.mu.Lock()
	defer l.mu.Unlock()

	clear(l.buf)
	l.head = 0
	l.count = 0
}

// Capacity returns the maximum number of retained entries.
func (l *Log) Capacity() int {
	return l.size
}
