// Package artifact tracks documents generated for a session.
package artifact

import (
	"context"
	"errors"
	"fmt"
	"path"
	"strings"
	"sync"
	"time"

	"github.com/ashureev/intelliform/internal/backend"
	"github.com/ashureev/intelliform/internal/domain"
)

var (
	// ErrPrecondition is returned when generation is requested before the
	// session is complete. No backend call is made in that case.
	ErrPrecondition = errors.New("document generation requires a completed form")
	// ErrNotFound is returned by Lookup for unknown filenames.
	ErrNotFound = errors.New("artifact not found")
)

// Generator renders documents and resolves their locations.
type Generator interface {
	GeneratePDF(ctx context.Context, sessionID string) (*backend.GenerateResponse, error)
	ResolveDownload(downloadURL string) string
	PreviewURL(filename string) string
}

// Registry holds the artifacts of one session in generation order.
type Registry struct {
	gen Generator
	now func() time.Time

	mu    sync.RWMutex
	items []domain.GeneratedArtifact
}

// NewRegistry returns an empty registry backed by gen.
func NewRegistry(gen Generator) *Registry {
	return &Registry{gen: gen, now: time.Now}
}

// Generate asks the backend for a document of s and appends the result.
// Earlier artifacts are kept.
func (r *Registry) Generate(ctx context.Context, s domain.Session) (domain.GeneratedArtifact, error) {
	if s.State() != domain.StateComplete {
		return domain.GeneratedArtifact{}, fmt.Errorf("session in %s: %w", s.State(), ErrPrecondition)
	}
	if s.ID == "" {
		return domain.GeneratedArtifact{}, fmt.Errorf("session has no backend id: %w", ErrPrecondition)
	}

	resp, err := r.gen.GeneratePDF(ctx, s.ID)
	if err != nil {
		return domain.GeneratedArtifact{}, fmt.Errorf("generate document: %w", err)
	}

	a := domain.GeneratedArtifact{
		Filename:    resp.Filename,
		DownloadURL: r.gen.ResolveDownload(resp.DownloadURL),
		Previewable: previewable(resp.Filename),
		FormType:    resp.FormType,
		FormName:    resp.FormName,
		GeneratedAt: r.parseTime(resp.GeneratedAt),
		Verified:    s.Verified,
	}
	if resp.DownloadURL == "" {
		a.DownloadURL = r.gen.ResolveDownload("/api/download/" + resp.Filename)
	}
	if a.Previewable {
		a.PreviewURL = r.gen.PreviewURL(resp.Filename)
	}
	if a.FormType == "" {
		a.FormType = s.FormType()
	}
	if a.FormName == "" {
		if f := s.Form(); f != nil {
			a.FormName = f.DisplayName()
		}
	}
	if resp.Verified != nil {
		a.Verified = *resp.Verified
	}

	r.mu.Lock()
	r.items = append(r.items, a)
	r.mu.Unlock()
	return a, nil
}

// List returns the artifacts in insertion order.
func (r *Registry) List() []domain.GeneratedArtifact {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return append([]domain.GeneratedArtifact(nil), r.items...)
}

// Lookup returns the most recent artifact with the given filename.
func (r *Registry) Lookup(filename string) (domain.GeneratedArtifact, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	for i := len(r.items) - 1; i >= 0; i-- {
		if r.items[i].Filename == filename {
			return r.items[i], nil
		}
	}
	return domain.GeneratedArtifact{}, fmt.Errorf("%q: %w", filename, ErrNotFound)
}

// DownloadURL resolves where a can be fetched from.
func (r *Registry) DownloadURL(a domain.GeneratedArtifact) string {
	if a.DownloadURL != "" {
		return a.DownloadURL
	}
	return r.gen.ResolveDownload("/api/download/" + a.Filename)
}

// PreviewURL resolves the inline-view location of filename.
func (r *Registry) PreviewURL(filename string) string {
	return r.gen.PreviewURL(filename)
}

// Len returns the number of artifacts.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.items)
}

// Reset drops every artifact.
func (r *Registry) Reset() {
	r.mu.Lock()
	r.items = nil
	r.mu.Unlock()
}

func (r *Registry) parseTime(v string) time.Time {
	if t, err := time.Parse(time.RFC3339, v); err == nil {
		return t
	}
	return r.now()
}

func previewable(filename string) bool {
	return strings.EqualFold(path.Ext(filename), ".pdf")
}
