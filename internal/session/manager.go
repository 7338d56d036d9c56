package session

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/ashureev/intelliform/internal/dispatch"
	"github.com/ashureev/intelliform/internal/health"
)

// ErrViewNotFound is returned for unknown views and for views owned by a
// different client.
var ErrViewNotFound = errors.New("session view not found")

const sweepInterval = time.Minute

// DefaultIdleTTL is how long an untouched view survives.
const DefaultIdleTTL = 60 * time.Minute

// ManagerConfig holds dependencies shared by every view.
type ManagerConfig struct {
	Backend        Backend
	Catalog        dispatch.Catalog
	Archive        Archive
	HealthInterval time.Duration
	HealthTimeout  time.Duration
	IdleTTL        time.Duration
	Logger         *slog.Logger
}

// View is one conversation owned by a client, with its health poller.
type View struct {
	ID         string
	Owner      string
	CreatedAt  time.Time
	Controller *Controller

	cancel context.CancelFunc
	done   chan struct{}
}

// Manager tracks live views. The view map is the only state shared between
// sessions.
type Manager struct {
	cfg    ManagerConfig
	poller *health.Poller
	logger *slog.Logger

	mu    sync.RWMutex
	views map[string]*View
}

// NewManager returns an empty manager.
func NewManager(cfg ManagerConfig) *Manager {
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	if cfg.IdleTTL <= 0 {
		cfg.IdleTTL = DefaultIdleTTL
	}
	return &Manager{
		cfg:    cfg,
		poller: health.NewPoller(cfg.HealthInterval, cfg.HealthTimeout, cfg.Logger),
		logger: cfg.Logger,
		views:  make(map[string]*View),
	}
}

// Create starts a view for owner. Its health poller runs until the view is
// deleted or evicted.
func (m *Manager) Create(owner string) *View {
	id := uuid.NewString()
	ctrl := NewController(Config{
		ViewID:  id,
		Backend: m.cfg.Backend,
		Catalog: m.cfg.Catalog,
		Archive: m.cfg.Archive,
		Logger:  m.logger,
	})

	ctx, cancel := context.WithCancel(context.Background())
	v := &View{
		ID:         id,
		Owner:      owner,
		CreatedAt:  time.Now(),
		Controller: ctrl,
		cancel:     cancel,
		done:       make(chan struct{}),
	}
	go func() {
		defer close(v.done)
		m.poller.Run(ctx, id, ctrl.CheckHealth)
	}()

	m.mu.Lock()
	m.views[id] = v
	m.mu.Unlock()

	m.logger.Info("session view created", "view_id", id, "owner", owner)
	return v
}

// Get returns the view if it exists and belongs to owner.
func (m *Manager) Get(id, owner string) (*View, error) {
	m.mu.RLock()
	v, ok := m.views[id]
	m.mu.RUnlock()
	if !ok || v.Owner != owner {
		return nil, ErrViewNotFound
	}
	return v, nil
}

// Delete tears down the view if it belongs to owner.
func (m *Manager) Delete(id, owner string) error {
	m.mu.Lock()
	v, ok := m.views[id]
	if !ok || v.Owner != owner {
		m.mu.Unlock()
		return ErrViewNotFound
	}
	delete(m.views, id)
	m.mu.Unlock()

	m.teardown(v, "deleted")
	return nil
}

// Len returns the number of live views.
func (m *Manager) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.views)
}

// StartSweeper evicts views idle for longer than the configured TTL until ctx
// is done. It returns immediately.
func (m *Manager) StartSweeper(ctx context.Context) {
	ticker := time.NewTicker(sweepInterval)
	go func() {
		defer ticker.Stop()
		m.logger.Info("idle view sweeper started", "interval", sweepInterval, "ttl", m.cfg.IdleTTL)

		for {
			select {
			case <-ticker.C:
				m.Sweep(time.Now())
			case <-ctx.Done():
				m.logger.Info("idle view sweeper shutting down", "reason", ctx.Err())
				return
			}
		}
	}()
}

// Sweep evicts every view whose last activity is older than the TTL at now.
// It returns the number of evicted views.
func (m *Manager) Sweep(now time.Time) int {
	var expired []*View
	m.mu.Lock()
	for id, v := range m.views {
		if now.Sub(v.Controller.LastActive()) > m.cfg.IdleTTL {
			expired = append(expired, v)
			delete(m.views, id)
		}
	}
	m.mu.Unlock()

	for _, v := range expired {
		m.teardown(v, "idle")
	}
	if len(expired) > 0 {
		m.logger.Info("idle views evicted", "count", len(expired))
	}
	return len(expired)
}

// Shutdown tears down every view.
func (m *Manager) Shutdown() {
	m.mu.Lock()
	views := make([]*View, 0, len(m.views))
	for id, v := range m.views {
		views = append(views, v)
		delete(m.views, id)
	}
	m.mu.Unlock()

	for _, v := range views {
		m.teardown(v, "shutdown")
	}
}

func (m *Manager) teardown(v *View, reason string) {
	v.cancel()
	<-v.done
	v.Controller.Close()
	m.logger.Info("session view closed", "view_id", v.ID, "reason", reason)
}
