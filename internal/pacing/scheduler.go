// Package pacing staggers the delivery of timeline messages to simulate
// turn-taking. It only delays display; session state is never touched here.
package pacing

import (
	"context"
	"time"

	"github.com/ashureev/intelliform/internal/domain"
)

// DefaultThinkPause is the gap between consecutive messages of one batch.
const DefaultThinkPause = time.Second

// Scheduler delivers message batches with increasing delays.
type Scheduler struct {
	pause time.Duration
}

// New returns a scheduler. A negative pause is treated as zero.
func New(pause time.Duration) *Scheduler {
	if pause < 0 {
		pause = 0
	}
	return &Scheduler{pause: pause}
}

// Pause returns the configured gap.
func (s *Scheduler) Pause() time.Duration {
	return s.pause
}

// Delay returns how long after the batch start message i is delivered.
func (s *Scheduler) Delay(i int) time.Duration {
	return s.pause * time.Duration(i)
}

// Play calls deliver for each message in order. Message i is delivered no
// earlier than Delay(i) after Play starts. It stops at the first deliver
// error or when ctx is done.
func (s *Scheduler) Play(ctx context.Context, batch []domain.Message, deliver func(domain.Message) error) error {
	start := time.Now()
	var timer *time.Timer
	defer func() {
		if timer != nil {
			timer.Stop()
		}
	}()

	for i, msg := range batch {
		if wait := time.Until(start.Add(s.Delay(i))); wait > 0 {
			if timer == nil {
				timer = time.NewTimer(wait)
			} else {
				timer.Reset(wait)
			}
			select {
			case <-timer.C:
			case <-ctx.Done():
				return ctx.Err()
			}
		} else if err := ctx.Err(); err != nil {
			return err
		}
		if err := deliver(msg); err != nil {
			return err
		}
	}
	return nil
}
