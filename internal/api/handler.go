// Package api provides HTTP handlers for the IntelliForm API.
package api

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/ashureev/intelliform/internal/catalog"
	"github.com/ashureev/intelliform/internal/identity"
	"github.com/ashureev/intelliform/internal/session"
	"github.com/ashureev/intelliform/internal/store"
)

// Handler provides common handler utilities.
type Handler struct {
	views   *session.Manager
	archive store.Archive
	forms   *catalog.Catalog
}

// NewHandler creates a new Handler. archive may be nil when archiving is
// disabled.
func NewHandler(views *session.Manager, archive store.Archive, forms *catalog.Catalog) *Handler {
	return &Handler{views: views, archive: archive, forms: forms}
}

// JSON writes a JSON response with the given status code.
func JSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		http.Error(w, `{"error": "failed to encode response"}`, http.StatusInternalServerError)
	}
}

// Error writes a JSON error response.
func Error(w http.ResponseWriter, status int, message string) {
	JSON(w, status, map[string]string{"error": message})
}

// decodeJSON reads a JSON body into v. An empty body leaves v untouched.
func decodeJSON(r *http.Request, v any) error {
	err := json.NewDecoder(r.Body).Decode(v)
	if errors.Is(err, io.EOF) {
		return nil
	}
	return err
}

// view resolves the {viewID} of the request for the calling client and
// writes a 404 when it is missing or owned by someone else.
func (h *Handler) view(w http.ResponseWriter, r *http.Request) (*session.View, bool) {
	owner := identity.ClientIDFromContext(r.Context())
	v, err := h.views.Get(chi.URLParam(r, "viewID"), owner)
	if err != nil {
		Error(w, http.StatusNotFound, err.Error())
		return nil, false
	}
	return v, true
}
