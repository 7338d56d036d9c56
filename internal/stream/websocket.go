// Package stream delivers a view's timeline over WebSocket with paced display.
package stream

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"sync"

	"github.com/coder/websocket"
	"github.com/go-chi/chi/v5"

	"github.com/ashureev/intelliform/internal/domain"
	"github.com/ashureev/intelliform/internal/identity"
	"github.com/ashureev/intelliform/internal/pacing"
	"github.com/ashureev/intelliform/internal/session"
)

const feedBuffer = 32

// Views resolves a view owned by a client.
type Views interface {
	Get(id, owner string) (*session.View, error)
}

// Frame is a server-to-client message.
type Frame struct {
	Type     string            `json:"type"`
	Message  *domain.Message   `json:"message,omitempty"`
	Snapshot *session.Snapshot `json:"snapshot,omitempty"`
	Error    string            `json:"error,omitempty"`
}

// clientFrame is a client-to-server message.
type clientFrame struct {
	Type    string `json:"type"`
	Content string `json:"content,omitempty"`
}

// Handler serves /ws/sessions/{viewID}.
type Handler struct {
	views         Views
	pacer         *pacing.Scheduler
	registry      *Registry
	allowedOrigin string
	isDev         bool
	logger        *slog.Logger
}

// NewHandler creates a stream handler.
func NewHandler(views Views, pacer *pacing.Scheduler, registry *Registry, allowedOrigin string, isDev bool, logger *slog.Logger) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	if registry == nil {
		registry = NewRegistry()
	}
	return &Handler{
		views:         views,
		pacer:         pacer,
		registry:      registry,
		allowedOrigin: allowedOrigin,
		isDev:         isDev,
		logger:        logger,
	}
}

// ServeHTTP upgrades the request and streams the view until either side
// closes or the view is torn down.
func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	owner := identity.ClientIDFromContext(r.Context())
	viewID := chi.URLParam(r, "viewID")

	view, err := h.views.Get(viewID, owner)
	if err != nil {
		http.Error(w, `{"error": "session view not found"}`, http.StatusNotFound)
		return
	}
	if !h.checkOrigin(r) {
		http.Error(w, "origin not allowed", http.StatusForbidden)
		return
	}

	ws, err := websocket.Accept(w, r, &websocket.AcceptOptions{
		OriginPatterns: []string{"*"},
	})
	if err != nil {
		h.logger.Error("failed to accept websocket", "error", err, "view_id", viewID)
		return
	}
	defer func() {
		if closeErr := ws.Close(websocket.StatusNormalClosure, "stream ended"); closeErr != nil {
			h.logger.Debug("failed to close websocket", "error", closeErr, "view_id", viewID)
		}
	}()

	h.registry.Register(owner, viewID, ws)
	defer h.registry.Unregister(owner, viewID, ws)

	ctrl := view.Controller
	feed, unsubscribe := ctrl.Subscribe(feedBuffer)
	defer unsubscribe()

	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()

	snap := ctrl.Snapshot()
	if err := writeFrame(ctx, ws, Frame{Type: "snapshot", Snapshot: &snap}); err != nil {
		return
	}

	var wg sync.WaitGroup
	wg.Add(2)
	go func() {
		defer wg.Done()
		defer cancel()
		h.inputLoop(ctx, ws, ctrl, viewID)
	}()
	go func() {
		defer wg.Done()
		defer cancel()
		h.outputLoop(ctx, ws, feed, viewID)
	}()
	wg.Wait()
	h.logger.Info("timeline stream ended", "view_id", viewID)
}

func (h *Handler) checkOrigin(r *http.Request) bool {
	if h.isDev {
		return true
	}
	origin := r.Header.Get("Origin")
	if origin == "" || h.allowedOrigin == "*" || origin == h.allowedOrigin {
		return true
	}
	h.logger.Warn("websocket origin rejected", "origin", origin, "allowed", h.allowedOrigin)
	return false
}

func (h *Handler) inputLoop(ctx context.Context, ws *websocket.Conn, ctrl *session.Controller, viewID string) {
	for {
		_, data, err := ws.Read(ctx)
		if err != nil {
			if websocket.CloseStatus(err) != -1 || errors.Is(err, context.Canceled) {
				h.logger.Debug("websocket closed", "view_id", viewID)
			} else {
				h.logger.Warn("websocket read error", "error", err, "view_id", viewID)
			}
			return
		}

		var msg clientFrame
		if err := json.Unmarshal(data, &msg); err != nil {
			_ = writeFrame(ctx, ws, Frame{Type: "error", Error: "invalid frame"})
			continue
		}

		switch msg.Type {
		case "ping":
			if err := writeFrame(ctx, ws, Frame{Type: "pong"}); err != nil {
				return
			}
		case "message":
			// Replies arrive through the feed; only failures are answered here.
			if _, err := ctrl.SendMessage(ctx, msg.Content); err != nil {
				if writeErr := writeFrame(ctx, ws, Frame{Type: "error", Error: err.Error()}); writeErr != nil {
					return
				}
			}
		case "reset":
			ctrl.Reset(ctx)
		default:
			_ = writeFrame(ctx, ws, Frame{Type: "error", Error: "unknown frame type " + msg.Type})
		}
	}
}

func (h *Handler) outputLoop(ctx context.Context, ws *websocket.Conn, feed <-chan []domain.Message, viewID string) {
	for {
		select {
		case batch, ok := <-feed:
			if !ok {
				h.logger.Debug("view closed, ending stream", "view_id", viewID)
				return
			}
			err := h.pacer.Play(ctx, batch, func(m domain.Message) error {
				return writeFrame(ctx, ws, Frame{Type: "message", Message: &m})
			})
			if err != nil {
				if !errors.Is(err, context.Canceled) {
					h.logger.Debug("websocket write failed", "error", err, "view_id", viewID)
				}
				return
			}
		case <-ctx.Done():
			return
		}
	}
}

func writeFrame(ctx context.Context, ws *websocket.Conn, f Frame) error {
	data, err := json.Marshal(f)
	if err != nil {
		return err
	}
	return ws.Write(ctx, websocket.MessageText, data)
}
