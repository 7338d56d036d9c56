package backend

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"
)

var (
	// ErrTransport covers network failures and non-2xx statuses.
	ErrTransport = errors.New("backend transport failure")
	// ErrBackend covers success:false replies and malformed payloads.
	ErrBackend = errors.New("backend rejected request")
)

const maxResponseBytes = 4 << 20

// ClientConfig configures a Client.
type ClientConfig struct {
	BaseURL string
	Timeout time.Duration
}

// DefaultClientConfig returns defaults matching a local development backend.
func DefaultClientConfig() ClientConfig {
	return ClientConfig{
		BaseURL: "http://localhost:3001",
		Timeout: 30 * time.Second,
	}
}

// Client talks to the assistant and document backend over HTTP.
type Client struct {
	base   *url.URL
	http   *http.Client
	logger *slog.Logger
}

// NewClient validates cfg and returns a client. No network I/O happens here.
func NewClient(cfg ClientConfig, logger *slog.Logger) (*Client, error) {
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.BaseURL == "" {
		cfg.BaseURL = DefaultClientConfig().BaseURL
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultClientConfig().Timeout
	}
	base, err := url.Parse(strings.TrimRight(cfg.BaseURL, "/"))
	if err != nil {
		return nil, fmt.Errorf("parse backend url %q: %w", cfg.BaseURL, err)
	}
	if base.Scheme != "http" && base.Scheme != "https" {
		return nil, fmt.Errorf("backend url %q: unsupported scheme", cfg.BaseURL)
	}
	return &Client{
		base:   base,
		http:   &http.Client{Timeout: cfg.Timeout},
		logger: logger,
	}, nil
}

// BaseURL returns the configured backend root.
func (c *Client) BaseURL() string {
	return c.base.String()
}

// Chat sends one user message. A nil error means success was true and the
// payload decoded.
func (c *Client) Chat(ctx context.Context, req ChatRequest) (*ChatResponse, error) {
	var resp ChatResponse
	if err := c.postJSON(ctx, "/api/chat", req, &resp); err != nil {
		return nil, err
	}
	if !resp.Success {
		msg := resp.Error
		if msg == "" {
			msg = "success=false"
		}
		return nil, fmt.Errorf("%w: %s", ErrBackend, msg)
	}
	return &resp, nil
}

// Health probes the backend.
func (c *Client) Health(ctx context.Context) (*HealthResponse, error) {
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet, c.resolve("/api/health"), nil)
	if err != nil {
		return nil, fmt.Errorf("build health request: %w", err)
	}
	var resp HealthResponse
	if err := c.do(httpReq, &resp); err != nil {
		return nil, fmt.Errorf("health check failed: %w", err)
	}
	return &resp, nil
}

// GeneratePDF asks the backend to render the session's document.
func (c *Client) GeneratePDF(ctx context.Context, sessionID string) (*GenerateResponse, error) {
	var resp GenerateResponse
	if err := c.postJSON(ctx, "/api/generate-pdf", GenerateRequest{SessionID: sessionID}, &resp); err != nil {
		return nil, err
	}
	if !resp.Success {
		msg := resp.Message
		if msg == "" {
			msg = "PDF generation failed"
		}
		return nil, fmt.Errorf("%w: %s", ErrBackend, msg)
	}
	if resp.Filename == "" {
		return nil, fmt.Errorf("%w: response without filename", ErrBackend)
	}
	return &resp, nil
}

// ResolveDownload turns a backend-relative download path into an absolute URL.
func (c *Client) ResolveDownload(downloadURL string) string {
	if u, err := url.Parse(downloadURL); err == nil && u.IsAbs() {
		return downloadURL
	}
	return c.resolve(downloadURL)
}

// PreviewURL returns the inline-viewable location for a generated file.
func (c *Client) PreviewURL(filename string) string {
	return c.resolve("/api/preview/" + url.PathEscape(filename))
}

func (c *Client) resolve(path string) string {
	if !strings.HasPrefix(path, "/") {
		path = "/" + path
	}
	return c.base.String() + path
}

func (c *Client) postJSON(ctx context.Context, path string, body, out any) error {
	payload, err := json.Marshal(body)
	if err != nil {
		return fmt.Errorf("encode request: %w", err)
	}
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.resolve(path), bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	return c.do(httpReq, out)
}

func (c *Client) do(req *http.Request, out any) error {
	start := time.Now()
	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("%w: %s %s: %v", ErrTransport, req.Method, req.URL.Path, err)
	}
	defer func() {
		if closeErr := resp.Body.Close(); closeErr != nil {
			c.logger.Debug("failed to close backend response body", "error", closeErr)
		}
	}()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return fmt.Errorf("%w: read body: %v", ErrTransport, err)
	}

	c.logger.Debug("backend call",
		"method", req.Method,
		"path", req.URL.Path,
		"status", resp.StatusCode,
		"duration", time.Since(start),
	)

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		var failure struct {
			Message string `json:"message"`
			Error   string `json:"error"`
		}
		detail := fmt.Sprintf("status %d", resp.StatusCode)
		if json.Unmarshal(body, &failure) == nil {
			if failure.Message != "" {
				detail = failure.Message
			} else if failure.Error != "" {
				detail = failure.Error
			}
		}
		return fmt.Errorf("%w: %s", ErrTransport, detail)
	}

	if err := json.Unmarshal(body, out); err != nil {
		return fmt.Errorf("%w: malformed payload: %v", ErrBackend, err)
	}
	return nil
}
