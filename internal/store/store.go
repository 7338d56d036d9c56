// Package store archives conversation transcripts and generated artifacts.
// The archive is an audit trail: nothing in it is ever loaded back into a
// live session.
package store

import (
	"context"
	"time"

	"github.com/ashureev/intelliform/internal/domain"
)

// DefaultRetention is how long archived rows are kept.
const DefaultRetention = 7 * 24 * time.Hour

// TranscriptEntry is one archived timeline message.
type TranscriptEntry struct {
	ViewID    string         `json:"viewId"`
	SessionID string         `json:"sessionId,omitempty"`
	Message   domain.Message `json:"message"`
}

// ArtifactRecord is one archived generated document.
type ArtifactRecord struct {
	ViewID    string                   `json:"viewId"`
	SessionID string                   `json:"sessionId"`
	Artifact  domain.GeneratedArtifact `json:"artifact"`
}

// Archive persists audit copies of conversations.
type Archive interface {
	// SaveMessages appends timeline messages of a view.
	SaveMessages(ctx context.Context, viewID, sessionID string, msgs []domain.Message) error

	// SaveArtifact records a generated document.
	SaveArtifact(ctx context.Context, viewID, sessionID string, a domain.GeneratedArtifact) error

	// Transcript returns the archived messages of a view in timeline order.
	Transcript(ctx context.Context, viewID string) ([]TranscriptEntry, error)

	// Artifacts returns the archived documents of a view in generation order.
	Artifacts(ctx context.Context, viewID string) ([]ArtifactRecord, error)

	// Cleanup removes rows older than retention and returns how many were deleted.
	Cleanup(ctx context.Context, retention time.Duration) (int64, error)

	// Ping verifies database connectivity.
	Ping(ctx context.Context) error

	// Close closes the database connection.
	Close() error
}
