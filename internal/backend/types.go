// Package backend implements the HTTP contract of the assistant backend.
package backend

import (
	"encoding/json"
)

// ChatRequest is sent to the chat endpoint.
type ChatRequest struct {
	Message   string `json:"message"`
	SessionID string `json:"sessionId,omitempty"`
}

// ChatResponse is the envelope returned by the chat endpoint.
type ChatResponse struct {
	Success      bool              `json:"success"`
	SessionID    string            `json:"sessionId,omitempty"`
	Response     Reply             `json:"response"`
	SessionState *SessionState     `json:"sessionState,omitempty"`
	Actions      []json.RawMessage `json:"actions,omitempty"`
	Error        string            `json:"error,omitempty"`
}

// Reply is the assistant's direct answer to the user.
type Reply struct {
	Intent      string          `json:"intent"`
	Message     string          `json:"message"`
	Confidence  *float64        `json:"confidence,omitempty"`
	FormType    string          `json:"form_type,omitempty"`
	FormDetails json.RawMessage `json:"formDetails,omitempty"`
	Progress    string          `json:"progress,omitempty"`
}

// SessionState is the backend's authoritative snapshot of the session.
type SessionState struct {
	State       string `json:"state"`
	CurrentForm string `json:"currentForm,omitempty"`
	Progress    string `json:"progress,omitempty"`
	Verified    *bool  `json:"verified,omitempty"`
}

// HealthResponse is returned by the health endpoint.
type HealthResponse struct {
	Sessions      int      `json:"sessions"`
	VerifiedForms []string `json:"verified_forms,omitempty"`
}

// GenerateRequest asks the rendering service for a document.
type GenerateRequest struct {
	SessionID string `json:"sessionId"`
}

// GenerateResponse describes a rendered document.
type GenerateResponse struct {
	Success     bool   `json:"success"`
	Filename    string `json:"filename"`
	DownloadURL string `json:"downloadUrl"`
	FormType    string `json:"formType,omitempty"`
	FormName    string `json:"formName"`
	GeneratedAt string `json:"generatedAt"`
	Verified    *bool  `json:"verified,omitempty"`
	Message     string `json:"message,omitempty"`
}

// IntentClarification is the intent used for degraded replies.
const IntentClarification = "clarification_needed"

// DegradedConfidence is the confidence attached to degraded replies.
const DegradedConfidence = 0.1

// Degraded builds the synthetic response used when the backend cannot be
// reached or rejects a request.
func Degraded() *ChatResponse {
	confidence := DegradedConfidence
	return &ChatResponse{
		Success: false,
		Response: Reply{
			Intent:     IntentClarification,
			Message:    "I'm having trouble connecting to the backend. Please try again.",
			Confidence: &confidence,
		},
	}
}
