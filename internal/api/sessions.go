package api

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/ashureev/intelliform/internal/artifact"
	"github.com/ashureev/intelliform/internal/identity"
	"github.com/ashureev/intelliform/internal/session"
	"github.com/ashureev/intelliform/internal/store"
)

// SessionHandler handles conversation endpoints.
type SessionHandler struct {
	*Handler
}

// NewSessionHandler creates a new session handler.
func NewSessionHandler(base *Handler) *SessionHandler {
	return &SessionHandler{Handler: base}
}

// RegisterRoutes registers session and catalog routes.
func (h *SessionHandler) RegisterRoutes(r chi.Router) {
	r.Route("/api", func(r chi.Router) {
		r.Get("/forms", h.ListForms)
		r.Post("/sessions", h.CreateSession)
		r.Route("/sessions/{viewID}", func(r chi.Router) {
			r.Get("/", h.GetSession)
			r.Delete("/", h.DeleteSession)
			r.Post("/messages", h.SendMessage)
			r.Post("/reset", h.Reset)
			r.Post("/health", h.CheckHealth)
			r.Post("/test-connection", h.TestConnection)
			r.Post("/artifacts", h.GenerateArtifact)
			r.Get("/artifacts", h.ListArtifacts)
			r.Get("/artifacts/{filename}/download", h.Download)
			r.Get("/artifacts/{filename}/preview", h.Preview)
			r.Get("/diagnostics", h.Diagnostics)
			r.Get("/transcript", h.Transcript)
		})
	})
}

// ListForms returns the static form catalog.
func (h *SessionHandler) ListForms(w http.ResponseWriter, _ *http.Request) {
	JSON(w, http.StatusOK, map[string]any{"forms": h.forms.List()})
}

// CreateSession starts a new conversation view for the client.
func (h *SessionHandler) CreateSession(w http.ResponseWriter, r *http.Request) {
	owner := identity.ClientIDFromContext(r.Context())
	v := h.views.Create(owner)
	JSON(w, http.StatusCreated, v.Controller.Snapshot())
}

// GetSession returns the current snapshot of a view.
func (h *SessionHandler) GetSession(w http.ResponseWriter, r *http.Request) {
	v, ok := h.view(w, r)
	if !ok {
		return
	}
	JSON(w, http.StatusOK, v.Controller.Snapshot())
}

// DeleteSession tears down a view.
func (h *SessionHandler) DeleteSession(w http.ResponseWriter, r *http.Request) {
	owner := identity.ClientIDFromContext(r.Context())
	if err := h.views.Delete(chi.URLParam(r, "viewID"), owner); err != nil {
		Error(w, http.StatusNotFound, err.Error())
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

type sendMessageRequest struct {
	Message string `json:"message"`
}

// SendMessage forwards one user message to the backend.
func (h *SessionHandler) SendMessage(w http.ResponseWriter, r *http.Request) {
	v, ok := h.view(w, r)
	if !ok {
		return
	}

	var req sendMessageRequest
	if err := decodeJSON(r, &req); err != nil {
		Error(w, http.StatusBadRequest, "invalid request body")
		return
	}

	reply, err := v.Controller.SendMessage(r.Context(), req.Message)
	switch {
	case errors.Is(err, session.ErrEmptyMessage):
		Error(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, session.ErrBusy), errors.Is(err, session.ErrSessionReset):
		Error(w, http.StatusConflict, err.Error())
	case err != nil:
		slog.Error("Failed to send message", "error", err, "view_id", v.ID)
		Error(w, http.StatusInternalServerError, "failed to send message")
	default:
		JSON(w, http.StatusOK, reply)
	}
}

// Reset starts a fresh conversation in the same view.
func (h *SessionHandler) Reset(w http.ResponseWriter, r *http.Request) {
	v, ok := h.view(w, r)
	if !ok {
		return
	}
	v.Controller.Reset(r.Context())
	JSON(w, http.StatusOK, v.Controller.Snapshot())
}

// CheckHealth probes the backend on behalf of the view.
func (h *SessionHandler) CheckHealth(w http.ResponseWriter, r *http.Request) {
	v, ok := h.view(w, r)
	if !ok {
		return
	}
	JSON(w, http.StatusOK, map[string]bool{"connected": v.Controller.CheckHealth(r.Context())})
}

// TestConnection runs the health and chat probes.
func (h *SessionHandler) TestConnection(w http.ResponseWriter, r *http.Request) {
	v, ok := h.view(w, r)
	if !ok {
		return
	}
	passed := v.Controller.TestConnection(r.Context())
	JSON(w, http.StatusOK, map[string]any{
		"success":     passed,
		"diagnostics": v.Controller.Diagnostics(),
	})
}

// GenerateArtifact requests a document for a completed conversation.
func (h *SessionHandler) GenerateArtifact(w http.ResponseWriter, r *http.Request) {
	v, ok := h.view(w, r)
	if !ok {
		return
	}

	a, err := v.Controller.GenerateArtifact(r.Context())
	switch {
	case errors.Is(err, artifact.ErrPrecondition),
		errors.Is(err, session.ErrBusy),
		errors.Is(err, session.ErrSessionReset):
		Error(w, http.StatusConflict, err.Error())
	case err != nil:
		Error(w, http.StatusBadGateway, err.Error())
	default:
		JSON(w, http.StatusCreated, a)
	}
}

// ListArtifacts returns the documents generated in the current conversation.
func (h *SessionHandler) ListArtifacts(w http.ResponseWriter, r *http.Request) {
	v, ok := h.view(w, r)
	if !ok {
		return
	}
	JSON(w, http.StatusOK, map[string]any{"artifacts": v.Controller.Artifacts()})
}

// Download redirects to the resolved download location.
func (h *SessionHandler) Download(w http.ResponseWriter, r *http.Request) {
	h.redirectArtifact(w, r, false)
}

// Preview redirects to the preview location of a PDF.
func (h *SessionHandler) Preview(w http.ResponseWriter, r *http.Request) {
	h.redirectArtifact(w, r, true)
}

func (h *SessionHandler) redirectArtifact(w http.ResponseWriter, r *http.Request, preview bool) {
	v, ok := h.view(w, r)
	if !ok {
		return
	}
	location, err := v.Controller.ArtifactLocation(chi.URLParam(r, "filename"), preview)
	if err != nil {
		Error(w, http.StatusNotFound, err.Error())
		return
	}
	http.Redirect(w, r, location, http.StatusFound)
}

// Diagnostics returns the diagnostic log, newest first.
func (h *SessionHandler) Diagnostics(w http.ResponseWriter, r *http.Request) {
	v, ok := h.view(w, r)
	if !ok {
		return
	}
	JSON(w, http.StatusOK, map[string]any{"entries": v.Controller.Diagnostics()})
}

// Transcript returns the archived timeline of the view, including
// conversations that were reset since.
func (h *SessionHandler) Transcript(w http.ResponseWriter, r *http.Request) {
	v, ok := h.view(w, r)
	if !ok {
		return
	}
	if h.archive == nil {
		JSON(w, http.StatusOK, map[string]any{"archived": false, "entries": []store.TranscriptEntry{}})
		return
	}

	entries, err := h.archive.Transcript(r.Context(), v.ID)
	if err != nil {
		slog.Error("Failed to read transcript", "error", err, "view_id", v.ID)
		Error(w, http.StatusInternalServerError, "failed to read transcript")
		return
	}
	records, err := h.archive.Artifacts(r.Context(), v.ID)
	if err != nil {
		slog.Error("Failed to read archived artifacts", "error", err, "view_id", v.ID)
		Error(w, http.StatusInternalServerError, "failed to read transcript")
		return
	}
	if entries == nil {
		entries = []store.TranscriptEntry{}
	}
	if records == nil {
		records = []store.ArtifactRecord{}
	}
	JSON(w, http.StatusOK, map[string]any{
		"archived":  true,
		"entries":   entries,
		"artifacts": records,
	})
}
