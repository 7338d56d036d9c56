package domain

import "time"

// GeneratedArtifact is a document produced for a completed session.
type GeneratedArtifact struct {
	Filename    string    `json:"filename"`
	DownloadURL string    `json:"downloadUrl"`
	PreviewURL  string    `json:"previewUrl,omitempty"`
	Previewable bool      `json:"previewable"`
	FormType    string    `json:"formType,omitempty"`
	FormName    string    `json:"formName"`
	GeneratedAt time.Time `json:"generatedAt"`
	Verified    bool      `json:"verified"`
}
