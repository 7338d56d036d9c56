package stream

import (
	"log/slog"
	"sync"

	"github.com/coder/websocket"
)

// Registry tracks the live stream of each view. A newer connection for the
// same view replaces the older one.
type Registry struct {
	mu     sync.RWMutex
	active map[string]map[string]*websocket.Conn // owner -> view -> conn
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{active: make(map[string]map[string]*websocket.Conn)}
}

// Active returns the live connection of a view, or nil.
func (m *Registry) Active(owner, viewID string) *websocket.Conn {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if views, ok := m.active[owner]; ok {
		return views[viewID]
	}
	return nil
}

// Register records conn as the live stream of the view, closing any
// previous one.
func (m *Registry) Register(owner, viewID string, conn *websocket.Conn) {
	m.mu.Lock()
	if _, exists := m.active[owner]; !exists {
		m.active[owner] = make(map[string]*websocket.Conn)
	}
	existing := m.active[owner][viewID]
	m.active[owner][viewID] = conn
	m.mu.Unlock()

	// Close blocks on the close handshake, so it runs outside the lock.
	if existing != nil && existing != conn {
		_ = existing.Close(websocket.StatusNormalClosure, "stream replaced")
	}
	slog.Info("timeline stream registered", "owner", owner, "view_id", viewID)
}

// Unregister removes conn if it is still the live stream of the view.
func (m *Registry) Unregister(owner, viewID string, conn *websocket.Conn) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if views, ok := m.active[owner]; ok {
		if current, exists := views[viewID]; exists && current == conn {
			delete(views, viewID)
			if len(views) == 0 {
				delete(m.active, owner)
			}
			slog.Info("timeline stream unregistered", "owner", owner, "view_id", viewID)
		}
	}
}

// Len returns the number of live streams.
func (m *Registry) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	n := 0
	for _, views := range m.active {
		n += len(views)
	}
	return n
}

// CloseAll closes every live stream.
func (m *Registry) CloseAll() {
	m.mu.Lock()
	var conns []*websocket.Conn
	for owner, views := range m.active {
		for _, conn := range views {
			conns = append(conns, conn)
		}
		delete(m.active, owner)
	}
	m.mu.Unlock()

	var wg sync.WaitGroup
	for _, conn := range conns {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_ = conn.Close(websocket.StatusGoingAway, "server shutting down")
		}()
	}
	wg.Wait()
}
