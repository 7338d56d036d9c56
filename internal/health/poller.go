// Package health runs periodic backend liveness probes and publishes the
// result over the standard gRPC health service.
package health

import (
	"context"
	"log/slog"
	"time"
)

// DefaultInterval is the gap between probes.
const DefaultInterval = 30 * time.Second

// Probe checks liveness once and reports whether the target is up.
type Probe func(ctx context.Context) bool

// Poller runs a probe on a fixed interval.
type Poller struct {
	interval time.Duration
	timeout  time.Duration
	logger   *slog.Logger
}

// NewPoller returns a poller. Each probe is bounded by timeout; a zero
// timeout means the interval.
func NewPoller(interval, timeout time.Duration, logger *slog.Logger) *Poller {
	if interval <= 0 {
		interval = DefaultInterval
	}
	if timeout <= 0 || timeout > interval {
		timeout = interval
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Poller{interval: interval, timeout: timeout, logger: logger}
}

// Run probes once immediately, then on every tick until ctx is done. It blocks.
func (p *Poller) Run(ctx context.Context, name string, probe Probe) {
	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()
	p.logger.Debug("health poller started", "target", name, "interval", p.interval)

	last := p.check(ctx, name, probe, nil)
	for {
		select {
		case <-ticker.C:
			last = p.check(ctx, name, probe, &last)
		case <-ctx.Done():
			p.logger.Debug("health poller stopped", "target", name, "reason", ctx.Err())
			return
		}
	}
}

func (p *Poller) check(ctx context.Context, name string, probe Probe, prev *bool) bool {
	probeCtx, cancel := context.WithTimeout(ctx, p.timeout)
	defer cancel()

	up := probe(probeCtx)
	if prev == nil || *prev != up {
		p.logger.Info("backend health changed", "target", name, "up", up)
	}
	return up
}
