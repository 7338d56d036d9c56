// Package session owns one conversation with the assistant backend: its
// state, timeline, artifacts and diagnostics.
package session

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/ashureev/intelliform/internal/action"
	"github.com/ashureev/intelliform/internal/artifact"
	"github.com/ashureev/intelliform/internal/backend"
	"github.com/ashureev/intelliform/internal/diagnostics"
	"github.com/ashureev/intelliform/internal/dispatch"
	"github.com/ashureev/intelliform/internal/domain"
)

var (
	// ErrBusy is returned while another request of the same session is in flight.
	ErrBusy = errors.New("a request is already being processed")
	// ErrEmptyMessage is returned for blank user input.
	ErrEmptyMessage = errors.New("message must not be empty")
	// ErrSessionReset is returned when the session was reset while a request
	// was in flight. The response is discarded.
	ErrSessionReset = errors.New("session was reset during the request")
)

// Greeting is the first assistant message of every conversation.
const Greeting = "Hello! I'm IntelliForm, your government form assistant. " +
	"I can help you complete government forms and generate PDF documents ready for submission. " +
	"What do you need help with today?"

const testConnectionMessage = "Test connection"

// Backend is the assistant and document service a controller talks to.
type Backend interface {
	Chat(ctx context.Context, req backend.ChatRequest) (*backend.ChatResponse, error)
	Health(ctx context.Context) (*backend.HealthResponse, error)
	artifact.Generator
}

// Archive receives an audit copy of the timeline and generated artifacts.
// It is write-only from the controller's point of view.
type Archive interface {
	SaveMessages(ctx context.Context, viewID, sessionID string, msgs []domain.Message) error
	SaveArtifact(ctx context.Context, viewID, sessionID string, a domain.GeneratedArtifact) error
}

// Config holds controller dependencies.
type Config struct {
	ViewID  string
	Backend Backend
	Catalog dispatch.Catalog
	Archive Archive
	Logger  *slog.Logger
}

// Controller mediates every exchange between one conversation and the backend.
// State changes are applied before SendMessage returns; display pacing is left
// to subscribers.
type Controller struct {
	viewID     string
	backend    Backend
	catalog    dispatch.Catalog
	dispatcher *dispatch.Dispatcher
	artifacts  *artifact.Registry
	diag       *diagnostics.Log
	archive    Archive
	logger     *slog.Logger
	now        func() time.Time

	inflight   sync.Mutex
	processing atomic.Bool

	mu         sync.RWMutex
	session    domain.Session
	messages   []domain.Message
	nextID     int64
	epoch      uint64
	connected  bool
	lastActive time.Time

	subMu  sync.Mutex
	subs   map[int]chan []domain.Message
	subSeq int
	closed bool
}

// NewController returns a controller holding a fresh conversation that starts
// with the greeting.
func NewController(cfg Config) *Controller {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	logger = logger.With("view_id", cfg.ViewID)
	c := &Controller{
		viewID:     cfg.ViewID,
		backend:    cfg.Backend,
		catalog:    cfg.Catalog,
		dispatcher: dispatch.New(cfg.Catalog),
		artifacts:  artifact.NewRegistry(cfg.Backend),
		diag:       diagnostics.New(diagnostics.DefaultCapacity, logger),
		archive:    cfg.Archive,
		logger:     logger,
		now:        time.Now,
		subs:       make(map[int]chan []domain.Message),
	}
	c.Reset(context.Background())
	return c
}

// ViewID returns the identifier of the view that owns this controller.
func (c *Controller) ViewID() string {
	return c.viewID
}

// SendMessage sends text to the backend and applies the response. Transport
// and backend failures do not return an error: they produce a degraded reply
// and leave the session unchanged.
func (c *Controller) SendMessage(ctx context.Context, text string) (*Reply, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return nil, ErrEmptyMessage
	}
	if !c.inflight.TryLock() {
		return nil, ErrBusy
	}
	defer c.inflight.Unlock()
	c.processing.Store(true)
	defer c.processing.Store(false)

	c.mu.Lock()
	epoch := c.epoch
	sessionID := c.session.ID
	userMsg := c.appendLocked(domain.RoleUser, text, nil)
	c.mu.Unlock()
	c.emit(ctx, sessionID, userMsg)

	resp, err := c.backend.Chat(ctx, backend.ChatRequest{Message: text, SessionID: sessionID})

	c.mu.Lock()
	if c.epoch != epoch {
		c.mu.Unlock()
		c.logger.Info("discarding response for reset session", "session_id", sessionID)
		return nil, ErrSessionReset
	}
	if err != nil {
		reply := c.degradedLocked(userMsg)
		c.diag.Record("Backend Error", err.Error())
		c.mu.Unlock()

		c.logger.Warn("chat request failed", "session_id", sessionID, "error", err)
		c.emit(ctx, sessionID, reply.Messages...)
		return reply, nil
	}

	c.connected = true
	var notes []dispatch.Note
	if resp.SessionID != "" && resp.SessionID != c.session.ID {
		notes = append(notes, dispatch.Note{Action: "Session Created", Details: "New session: " + resp.SessionID})
	}
	notes = append(notes, dispatch.Note{
		Action:  "Backend Response",
		Details: fmt.Sprintf("Intent: %s, Actions: %d", resp.Response.Intent, len(resp.Actions)),
	})

	outcome := c.dispatcher.Apply(c.session, action.DecodeAll(resp.Actions))
	notes = append(notes, outcome.Notes...)

	next := outcome.Session
	if resp.SessionID != "" {
		next.ID = resp.SessionID
	}
	next, overlayNote := c.overlay(next, resp)
	if overlayNote != nil {
		notes = append(notes, *overlayNote)
	}
	c.session = next

	batch := make([]domain.Message, 0, len(outcome.Drafts)+1)
	if resp.Response.Message != "" {
		batch = append(batch, c.appendLocked(domain.RoleAssistant, resp.Response.Message, replyMetadata(resp.Response)))
	}
	for _, d := range outcome.Drafts {
		batch = append(batch, c.appendLocked(d.Role, d.Content, d.Metadata))
	}
	reply := &Reply{User: userMsg, Messages: batch, Session: viewOf(c.session)}
	// Recorded under mu so a concurrent Reset cannot interleave stale entries.
	for _, n := range notes {
		c.diag.Record(n.Action, n.Details)
	}
	c.mu.Unlock()

	c.emit(ctx, next.ID, batch...)
	return reply, nil
}

// overlay applies the backend's session snapshot on top of the action-derived
// state. A snapshot that would break the COMPLETE invariant is rejected and
// the action-derived state kept.
func (c *Controller) overlay(s domain.Session, resp *backend.ChatResponse) (domain.Session, *dispatch.Note) {
	snap := resp.SessionState
	progress := resp.Response.Progress
	var note *dispatch.Note

	if snap != nil {
		candidate := s
		err := c.applySnapshot(&candidate, snap)
		if err != nil {
			note = &dispatch.Note{Action: "Snapshot Rejected", Details: err.Error()}
		} else {
			s = candidate
		}
		if snap.Progress != "" {
			progress = snap.Progress
		}
	}
	if progress != "" {
		s.Progress = progress
	}

	switch {
	case snap != nil && snap.Verified != nil:
		s.Verified = *snap.Verified
	case s.Form() != nil:
		s.Verified = s.Form().Verified
	default:
		s.Verified = false
	}
	return s, note
}

func (c *Controller) applySnapshot(s *domain.Session, snap *backend.SessionState) error {
	if snap.CurrentForm != "" && snap.CurrentForm != s.FormType() {
		def := domain.FormDefinition{Type: snap.CurrentForm}
		if c.catalog != nil {
			if found, ok := c.catalog.Lookup(snap.CurrentForm); ok {
				def = found
			}
		}
		if err := s.StartForm(def); err != nil {
			return fmt.Errorf("apply snapshot: %w", err)
		}
	}
	if snap.State == "" {
		return nil
	}
	st, ok := domain.ParseState(snap.State)
	if !ok {
		return fmt.Errorf("unknown state %q", snap.State)
	}
	if err := s.Transition(st); err != nil {
		return fmt.Errorf("apply snapshot: %w", err)
	}
	return nil
}

func (c *Controller) degradedLocked(userMsg domain.Message) *Reply {
	c.connected = false
	d := backend.Degraded()
	msg := c.appendLocked(domain.RoleAssistant, d.Response.Message, domain.Metadata{
		domain.MetaIntent:     d.Response.Intent,
		domain.MetaConfidence: *d.Response.Confidence,
		domain.MetaDegraded:   true,
	})
	return &Reply{
		User:     userMsg,
		Messages: []domain.Message{msg},
		Session:  viewOf(c.session),
		Degraded: true,
	}
}

func replyMetadata(r backend.Reply) domain.Metadata {
	meta := domain.Metadata{domain.MetaIntent: r.Intent}
	if r.FormType != "" {
		meta[domain.MetaFormType] = r.FormType
	}
	if r.Confidence != nil {
		meta[domain.MetaConfidence] = *r.Confidence
	}
	return meta
}

// Reset returns the conversation to a fresh state with only the greeting.
// It is safe at any time; a request in flight is discarded when it returns.
func (c *Controller) Reset(ctx context.Context) {
	c.mu.Lock()
	c.epoch++
	c.session = domain.NewSession()
	c.messages = nil
	greeting := c.appendLocked(domain.RoleAssistant, Greeting, nil)
	c.diag.Reset()
	c.diag.Record("Session Reset", "New conversation started")
	c.mu.Unlock()

	c.artifacts.Reset()
	c.emit(ctx, "", greeting)
}

// CheckHealth probes the backend and updates the connectivity flag. Session
// state is never touched.
func (c *Controller) CheckHealth(ctx context.Context) bool {
	resp, err := c.backend.Health(ctx)

	c.mu.Lock()
	c.connected = err == nil
	c.mu.Unlock()

	if err != nil {
		c.diag.Record("Backend Health", "Backend server not reachable")
		c.logger.Debug("health probe failed", "error", err)
		return false
	}
	c.diag.Record("Backend Health", fmt.Sprintf("%d sessions, %d verified forms", resp.Sessions, len(resp.VerifiedForms)))
	return true
}

// TestConnection runs a health probe followed by a session-less chat probe.
// The chat result only reaches the diagnostics.
func (c *Controller) TestConnection(ctx context.Context) bool {
	c.diag.Record("Testing Backend", "Attempting connection")
	if !c.CheckHealth(ctx) {
		return false
	}
	if _, err := c.backend.Chat(ctx, backend.ChatRequest{Message: testConnectionMessage}); err != nil {
		c.diag.Record("Test Failed", err.Error())
		return false
	}
	c.diag.Record("Test Success", "Backend with document generation ready")
	return true
}

// GenerateArtifact requests a document for the completed session. Every
// outcome appends an assistant message.
func (c *Controller) GenerateArtifact(ctx context.Context) (domain.GeneratedArtifact, error) {
	if !c.inflight.TryLock() {
		return domain.GeneratedArtifact{}, ErrBusy
	}
	defer c.inflight.Unlock()
	c.processing.Store(true)
	defer c.processing.Store(false)

	c.mu.Lock()
	s := c.session
	epoch := c.epoch
	c.touchLocked()
	c.mu.Unlock()

	if s.State() == domain.StateComplete {
		c.diag.Record("PDF Generation", "Starting document generation for "+s.FormType())
	}
	a, err := c.artifacts.Generate(ctx, s)

	c.mu.Lock()
	if c.epoch != epoch {
		c.mu.Unlock()
		if err == nil {
			c.artifacts.Reset()
		}
		return domain.GeneratedArtifact{}, ErrSessionReset
	}
	var msg domain.Message
	switch {
	case errors.Is(err, artifact.ErrPrecondition):
		msg = c.appendLocked(domain.RoleAssistant,
			"The form is not complete yet. Please finish answering the questions before generating the document.",
			domain.Metadata{domain.MetaError: true})
	case err != nil:
		msg = c.appendLocked(domain.RoleAssistant,
			"Sorry, I encountered an error generating the PDF: "+err.Error(),
			domain.Metadata{domain.MetaError: true})
	default:
		msg = c.appendLocked(domain.RoleAssistant, renderArtifact(a), domain.Metadata{
			domain.MetaPDFGenerated: true,
			domain.MetaFilename:     a.Filename,
			domain.MetaDownloadURL:  a.DownloadURL,
			domain.MetaPreviewURL:   a.PreviewURL,
			domain.MetaVerified:     a.Verified,
		})
	}
	c.mu.Unlock()

	switch {
	case errors.Is(err, artifact.ErrPrecondition):
		c.diag.Record("PDF Error", "Session not ready for PDF generation")
	case err != nil:
		c.diag.Record("PDF Error", err.Error())
		c.logger.Warn("document generation failed", "session_id", s.ID, "error", err)
	default:
		c.diag.Record("PDF Generated", "File: "+a.Filename)
		c.archiveArtifact(ctx, s.ID, a)
	}
	c.emit(ctx, s.ID, msg)
	return a, err
}

func renderArtifact(a domain.GeneratedArtifact) string {
	var b strings.Builder
	b.WriteString("**PDF Generated!**\n\n")
	fmt.Fprintf(&b, "Your %s application has been generated as a PDF document.\n\n", a.FormName)
	b.WriteString("**File Details:**\n")
	fmt.Fprintf(&b, "- Filename: %s\n", a.Filename)
	fmt.Fprintf(&b, "- Form Type: %s\n", a.FormName)
	fmt.Fprintf(&b, "- Generated: %s\n", a.GeneratedAt.Format(time.RFC1123))
	if a.Previewable {
		b.WriteString("\nYou can download or preview your form using the links provided.")
	} else {
		b.WriteString("\nYou can download your form using the link provided.")
	}
	return b.String()
}

// ArtifactLocation resolves the download or preview location of a generated
// file. It does not change any state.
func (c *Controller) ArtifactLocation(filename string, preview bool) (string, error) {
	a, err := c.artifacts.Lookup(filename)
	if err != nil {
		return "", err
	}
	if preview {
		if !a.Previewable {
			return "", fmt.Errorf("%q cannot be previewed: %w", filename, artifact.ErrNotFound)
		}
		c.diag.Record("Preview", "Previewing: "+filename)
		return c.artifacts.PreviewURL(a.Filename), nil
	}
	c.diag.Record("Download", "Downloading: "+filename)
	return c.artifacts.DownloadURL(a), nil
}

// Artifacts returns the generated documents in insertion order.
func (c *Controller) Artifacts() []domain.GeneratedArtifact {
	return c.artifacts.List()
}

// Diagnostics returns recent diagnostic entries, newest first.
func (c *Controller) Diagnostics() []domain.DiagnosticEntry {
	return c.diag.Entries()
}

// Connected reports the last observed backend connectivity.
func (c *Controller) Connected() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.connected
}

// Processing reports whether a request is in flight.
func (c *Controller) Processing() bool {
	return c.processing.Load()
}

// LastActive returns the time of the last user-driven operation.
func (c *Controller) LastActive() time.Time {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.lastActive
}

// Snapshot returns a read-only copy of the controller state.
func (c *Controller) Snapshot() Snapshot {
	c.mu.RLock()
	msgs := make([]domain.Message, len(c.messages))
	for i, m := range c.messages {
		msgs[i] = m.Clone()
	}
	snap := Snapshot{
		ViewID:    c.viewID,
		Session:   viewOf(c.session),
		Messages:  msgs,
		Connected: c.connected,
	}
	c.mu.RUnlock()

	snap.Artifacts = c.artifacts.List()
	snap.Diagnostics = c.diag.Entries()
	snap.Processing = c.processing.Load()
	return snap
}

// Subscribe returns a feed of appended message batches in timeline order and
// a function that ends the subscription. A subscriber that falls behind by
// more than buffer batches misses batches; Snapshot recovers the full
// timeline.
func (c *Controller) Subscribe(buffer int) (<-chan []domain.Message, func()) {
	if buffer <= 0 {
		buffer = 16
	}
	ch := make(chan []domain.Message, buffer)

	c.subMu.Lock()
	defer c.subMu.Unlock()
	if c.closed {
		close(ch)
		return ch, func() {}
	}
	id := c.subSeq
	c.subSeq++
	c.subs[id] = ch

	var once sync.Once
	return ch, func() {
		once.Do(func() {
			c.subMu.Lock()
			defer c.subMu.Unlock()
			if sub, ok := c.subs[id]; ok {
				delete(c.subs, id)
				close(sub)
			}
		})
	}
}

// Close ends every subscription. The controller must not be used afterwards.
func (c *Controller) Close() {
	c.subMu.Lock()
	defer c.subMu.Unlock()
	if c.closed {
		return
	}
	c.closed = true
	for id, ch := range c.subs {
		close(ch)
		delete(c.subs, id)
	}
}

func (c *Controller) appendLocked(role domain.Role, content string, meta domain.Metadata) domain.Message {
	c.nextID++
	msg := domain.Message{
		ID:        c.nextID,
		Role:      role,
		Content:   content,
		Timestamp: c.now(),
		Metadata:  meta,
	}
	c.messages = append(c.messages, msg)
	c.touchLocked()
	return msg.Clone()
}

func (c *Controller) touchLocked() {
	c.lastActive = c.now()
}

// emit archives msgs and hands them to subscribers.
func (c *Controller) emit(ctx context.Context, sessionID string, msgs ...domain.Message) {
	if len(msgs) == 0 {
		return
	}
	if c.archive != nil {
		if err := c.archive.SaveMessages(context.WithoutCancel(ctx), c.viewID, sessionID, msgs); err != nil {
			c.logger.Warn("failed to archive messages", "session_id", sessionID, "error", err)
		}
	}

	c.subMu.Lock()
	defer c.subMu.Unlock()
	for id, ch := range c.subs {
		batch := make([]domain.Message, len(msgs))
		for i, m := range msgs {
			batch[i] = m.Clone()
		}
		select {
		case ch <- batch:
		default:
			c.logger.Warn("subscriber lagging, dropping batch", "subscriber", id, "messages", len(msgs))
		}
	}
}

func (c *Controller) archiveArtifact(ctx context.Context, sessionID string, a domain.GeneratedArtifact) {
	if c.archive == nil {
		return
	}
	if err := c.archive.SaveArtifact(context.WithoutCancel(ctx), c.viewID, sessionID, a); err != nil {
		c.logger.Warn("failed to archive artifact", "session_id", sessionID, "filename", a.Filename, "error", err)
	}
}
