package stream

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/coder/websocket"
	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"github.com/ashureev/intelliform/internal/catalog"
	"github.com/ashureev/intelliform/internal/domain"
	"github.com/ashureev/intelliform/internal/identity"
	"github.com/ashureev/intelliform/internal/pacing"
	"github.com/ashureev/intelliform/internal/session"
	"github.com/ashureev/intelliform/internal/session/sessiontest"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

type fixture struct {
	manager  *session.Manager
	registry *Registry
	server   *httptest.Server
	backend  *sessiontest.Backend
}

func newFixture(t *testing.T, owner string) *fixture {
	t.Helper()
	be := &sessiontest.Backend{}
	m := session.NewManager(session.ManagerConfig{
		Backend:        be,
		Catalog:        catalog.Default(),
		HealthInterval: time.Hour,
	})
	reg := NewRegistry()
	h := NewHandler(m, pacing.New(0), reg, "http://app.test", false, nil)

	r := chi.NewRouter()
	r.Use(func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			next.ServeHTTP(w, r.WithContext(identity.WithClientID(r.Context(), owner)))
		})
	})
	r.Get("/ws/sessions/{viewID}", h.ServeHTTP)
	srv := httptest.NewServer(r)

	t.Cleanup(func() {
		reg.CloseAll()
		m.Shutdown()
		srv.Close()
	})
	return &fixture{manager: m, registry: reg, server: srv, backend: be}
}

func (f *fixture) url(viewID string) string {
	return "ws" + strings.TrimPrefix(f.server.URL, "http") + "/ws/sessions/" + viewID
}

func readFrame(t *testing.T, ctx context.Context, c *websocket.Conn) Frame {
	t.Helper()
	_, data, err := c.Read(ctx)
	require.NoError(t, err)
	var f Frame
	require.NoError(t, json.Unmarshal(data, &f))
	return f
}

func sendFrame(t *testing.T, ctx context.Context, c *websocket.Conn, v clientFrame) {
	t.Helper()
	data, err := json.Marshal(v)
	require.NoError(t, err)
	require.NoError(t, c.Write(ctx, websocket.MessageText, data))
}

func TestStreamSendsSnapshotThenPacedMessages(t *testing.T) {
	f := newFixture(t, "alice")
	view := f.manager.Create("alice")

	ctx, cancel := context.WithTimeout(t.Context(), 5*time.Second)
	defer cancel()

	c, _, err := websocket.Dial(ctx, f.url(view.ID), nil)
	require.NoError(t, err)
	defer c.CloseNow()

	snap := readFrame(t, ctx, c)
	require.Equal(t, "snapshot", snap.Type)
	require.NotNil(t, snap.Snapshot)
	require.Len(t, snap.Snapshot.Messages, 1)
	assert.Equal(t, session.Greeting, snap.Snapshot.Messages[0].Content)

	sendFrame(t, ctx, c, clientFrame{Type: "message", Content: "hello"})

	user := readFrame(t, ctx, c)
	require.Equal(t, "message", user.Type)
	assert.Equal(t, domain.RoleUser, user.Message.Role)
	assert.Equal(t, "hello", user.Message.Content)

	reply := readFrame(t, ctx, c)
	require.Equal(t, "message", reply.Type)
	assert.Equal(t, domain.RoleAssistant, reply.Message.Role)
	assert.Equal(t, "Noted.", reply.Message.Content)
}

func TestStreamPingAndErrors(t *testing.T) {
	f := newFixture(t, "alice")
	view := f.manager.Create("alice")

	ctx, cancel := context.WithTimeout(t.Context(), 5*time.Second)
	defer cancel()

	c, _, err := websocket.Dial(ctx, f.url(view.ID), nil)
	require.NoError(t, err)
	defer c.CloseNow()
	_ = readFrame(t, ctx, c)

	sendFrame(t, ctx, c, clientFrame{Type: "ping"})
	assert.Equal(t, "pong", readFrame(t, ctx, c).Type)

	sendFrame(t, ctx, c, clientFrame{Type: "message", Content: "   "})
	got := readFrame(t, ctx, c)
	assert.Equal(t, "error", got.Type)
	assert.Equal(t, session.ErrEmptyMessage.Error(), got.Error)

	sendFrame(t, ctx, c, clientFrame{Type: "bogus"})
	assert.Equal(t, "error", readFrame(t, ctx, c).Type)
}

func TestStreamUnknownViewIsNotFound(t *testing.T) {
	f := newFixture(t, "alice")
	other := f.manager.Create("bob")

	ctx, cancel := context.WithTimeout(t.Context(), 5*time.Second)
	defer cancel()

	_, resp, err := websocket.Dial(ctx, f.url(other.ID), nil)
	require.Error(t, err)
	require.NotNil(t, resp)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestStreamEndsWhenViewDeleted(t *testing.T) {
	f := newFixture(t, "alice")
	view := f.manager.Create("alice")

	ctx, cancel := context.WithTimeout(t.Context(), 5*time.Second)
	defer cancel()

	c, _, err := websocket.Dial(ctx, f.url(view.ID), nil)
	require.NoError(t, err)
	defer c.CloseNow()
	_ = readFrame(t, ctx, c)
	require.Eventually(t, func() bool { return f.registry.Len() == 1 }, time.Second, 5*time.Millisecond)

	require.NoError(t, f.manager.Delete(view.ID, "alice"))

	_, _, err = c.Read(ctx)
	require.Error(t, err, "stream closes once the view is gone")
	require.Eventually(t, func() bool { return f.registry.Len() == 0 }, time.Second, 5*time.Millisecond)
}

func TestCheckOrigin(t *testing.T) {
	h := NewHandler(nil, pacing.New(0), nil, "http://app.test", false, nil)

	req := httptest.NewRequest(http.MethodGet, "/ws", nil)
	assert.True(t, h.checkOrigin(req), "missing origin is allowed")

	req.Header.Set("Origin", "http://app.test")
	assert.True(t, h.checkOrigin(req))

	req.Header.Set("Origin", "http://evil.test")
	assert.False(t, h.checkOrigin(req))

	h.isDev = true
	assert.True(t, h.checkOrigin(req))
}
