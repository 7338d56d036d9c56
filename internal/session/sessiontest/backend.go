// Package sessiontest provides a scripted backend for tests of packages built
// on top of session.
package sessiontest

import (
	"context"
	"encoding/json"
	"sync"

	"github.com/ashureev/intelliform/internal/backend"
)

// Backend replays scripted chat responses. Once the script is exhausted it
// answers every message with a general reply.
type Backend struct {
	mu          sync.Mutex
	Responses   []*backend.ChatResponse
	ChatErr     error
	HealthErr   error
	Generated   *backend.GenerateResponse
	GenerateErr error
	Requests    []backend.ChatRequest
}

// Script appends responses to the replay queue.
func (b *Backend) Script(responses ...*backend.ChatResponse) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.Responses = append(b.Responses, responses...)
}

// Chat records req and returns the next scripted response.
func (b *Backend) Chat(_ context.Context, req backend.ChatRequest) (*backend.ChatResponse, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.Requests = append(b.Requests, req)
	if b.ChatErr != nil {
		return nil, b.ChatErr
	}
	if len(b.Responses) == 0 {
		return Reply("sess-1", "general", "Noted."), nil
	}
	resp := b.Responses[0]
	b.Responses = b.Responses[1:]
	return resp, nil
}

// Health reports one live session unless HealthErr is set.
func (b *Backend) Health(context.Context) (*backend.HealthResponse, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.HealthErr != nil {
		return nil, b.HealthErr
	}
	return &backend.HealthResponse{Sessions: 1}, nil
}

// GeneratePDF returns Generated, or form.pdf when unset.
func (b *Backend) GeneratePDF(context.Context, string) (*backend.GenerateResponse, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.GenerateErr != nil {
		return nil, b.GenerateErr
	}
	if b.Generated == nil {
		return &backend.GenerateResponse{Success: true, Filename: "form.pdf", DownloadURL: "/api/download/form.pdf"}, nil
	}
	resp := *b.Generated
	return &resp, nil
}

// ResolveDownload prefixes u with the fake backend origin.
func (b *Backend) ResolveDownload(u string) string { return "http://backend.test" + u }

// PreviewURL returns the fake preview location of name.
func (b *Backend) PreviewURL(name string) string { return "http://backend.test/api/preview/" + name }

// Reply builds a successful chat response with no actions.
func Reply(sessionID, intent, message string) *backend.ChatResponse {
	return &backend.ChatResponse{
		Success:   true,
		SessionID: sessionID,
		Response:  backend.Reply{Intent: intent, Message: message},
	}
}

// SetGenerateErr makes subsequent document requests fail with err.
func (b *Backend) SetGenerateErr(err error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.GenerateErr = err
}

// SetHealthErr makes subsequent health probes fail with err.
func (b *Backend) SetHealthErr(err error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.HealthErr = err
}

// Completed builds a response that starts formType and completes it with data
// in a single turn.
func Completed(sessionID, formType string, data map[string]string) *backend.ChatResponse {
	payload, _ := json.Marshal(map[string]any{
		"type":     "form_complete",
		"formType": formType,
		"formData": data,
	})
	start, _ := json.Marshal(map[string]any{"type": "start_form", "formType": formType})
	return &backend.ChatResponse{
		Success:      true,
		SessionID:    sessionID,
		Response:     backend.Reply{Intent: "form_complete", Message: "All done."},
		SessionState: &backend.SessionState{State: "COMPLETE", CurrentForm: formType},
		Actions:      []json.RawMessage{start, payload},
	}
}
