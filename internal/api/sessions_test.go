package api

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ashureev/intelliform/internal/catalog"
	"github.com/ashureev/intelliform/internal/domain"
	"github.com/ashureev/intelliform/internal/health"
	"github.com/ashureev/intelliform/internal/identity"
	"github.com/ashureev/intelliform/internal/session"
	"github.com/ashureev/intelliform/internal/session/sessiontest"
	"github.com/ashureev/intelliform/internal/store"
)

const clientHeader = "X-Test-Client"

type apiFixture struct {
	backend *sessiontest.Backend
	manager *session.Manager
	router  http.Handler
}

func newAPIFixture(t *testing.T, archive store.Archive) *apiFixture {
	t.Helper()
	be := &sessiontest.Backend{}
	var sessArchive session.Archive
	if archive != nil {
		sessArchive = archive
	}
	m := session.NewManager(session.ManagerConfig{
		Backend:        be,
		Catalog:        catalog.Default(),
		Archive:        sessArchive,
		HealthInterval: time.Hour,
	})
	t.Cleanup(m.Shutdown)

	r := chi.NewRouter()
	r.Use(func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			owner := r.Header.Get(clientHeader)
			next.ServeHTTP(w, r.WithContext(identity.WithClientID(r.Context(), owner)))
		})
	})
	NewSessionHandler(NewHandler(m, archive, catalog.Default())).RegisterRoutes(r)
	NewHealthHandler(archive, nil, m).RegisterHealth(r)

	return &apiFixture{backend: be, manager: m, router: r}
}

func (f *apiFixture) do(t *testing.T, client, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	var rd io.Reader
	if body != "" {
		rd = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, path, rd)
	req.Header.Set(clientHeader, client)
	w := httptest.NewRecorder()
	f.router.ServeHTTP(w, req)
	return w
}

func (f *apiFixture) create(t *testing.T, client string) session.Snapshot {
	t.Helper()
	w := f.do(t, client, http.MethodPost, "/api/sessions", "")
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	var snap session.Snapshot
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &snap))
	return snap
}

func decode[T any](t *testing.T, w *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &v), w.Body.String())
	return v
}

var panData = map[string]string{
	"title": "Mr", "full_name": "Ravi Kumar", "father_name": "Mohan Kumar", "dob": "1985-03-12",
	"gender": "Male", "address": "Chennai", "mobile": "9123456780", "email": "ravi@example.com",
}

func TestCreateAndGetSession(t *testing.T) {
	t.Parallel()
	f := newAPIFixture(t, nil)

	snap := f.create(t, "alice")
	require.NotEmpty(t, snap.ViewID)
	require.Len(t, snap.Messages, 1)
	assert.Equal(t, session.Greeting, snap.Messages[0].Content)
	assert.Equal(t, domain.StateInit, snap.Session.State)

	w := f.do(t, "alice", http.MethodGet, "/api/sessions/"+snap.ViewID, "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, snap.ViewID, decode[session.Snapshot](t, w).ViewID)

	w = f.do(t, "mallory", http.MethodGet, "/api/sessions/"+snap.ViewID, "")
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestSendMessage(t *testing.T) {
	t.Parallel()
	f := newAPIFixture(t, nil)
	snap := f.create(t, "alice")
	path := "/api/sessions/" + snap.ViewID + "/messages"

	w := f.do(t, "alice", http.MethodPost, path, `{"message": "  "}`)
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = f.do(t, "alice", http.MethodPost, path, `{"message":`)
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = f.do(t, "alice", http.MethodPost, path, `{"message": "hello"}`)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	reply := decode[session.Reply](t, w)
	assert.Equal(t, "hello", reply.User.Content)
	require.Len(t, reply.Messages, 1)
	assert.Equal(t, "Noted.", reply.Messages[0].Content)
	assert.Equal(t, "sess-1", reply.Session.ID)
}

func TestSendMessageDegradedOnTransportError(t *testing.T) {
	t.Parallel()
	f := newAPIFixture(t, nil)
	f.backend.ChatErr = errors.New("connection refused")
	snap := f.create(t, "alice")

	w := f.do(t, "alice", http.MethodPost, "/api/sessions/"+snap.ViewID+"/messages", `{"message": "hello"}`)
	require.Equal(t, http.StatusOK, w.Code)
	reply := decode[session.Reply](t, w)
	assert.True(t, reply.Degraded)
	require.Len(t, reply.Messages, 1)
}

func TestArtifactLifecycle(t *testing.T) {
	t.Parallel()
	f := newAPIFixture(t, nil)
	snap := f.create(t, "alice")
	base := "/api/sessions/" + snap.ViewID

	w := f.do(t, "alice", http.MethodPost, base+"/artifacts", "")
	assert.Equal(t, http.StatusConflict, w.Code, "generation before completion")

	f.backend.Script(sessiontest.Completed("sess-9", "pan_card", panData))
	w = f.do(t, "alice", http.MethodPost, base+"/messages", `{"message": "ravi@example.com"}`)
	require.Equal(t, http.StatusOK, w.Code)
	require.True(t, decode[session.Reply](t, w).Session.CanGenerate)

	w = f.do(t, "alice", http.MethodPost, base+"/artifacts", "")
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	a := decode[domain.GeneratedArtifact](t, w)
	assert.Equal(t, "form.pdf", a.Filename)

	w = f.do(t, "alice", http.MethodGet, base+"/artifacts", "")
	require.Equal(t, http.StatusOK, w.Code)
	list := decode[struct {
		Artifacts []domain.GeneratedArtifact `json:"artifacts"`
	}](t, w)
	require.Len(t, list.Artifacts, 1)

	w = f.do(t, "alice", http.MethodGet, base+"/artifacts/form.pdf/download", "")
	require.Equal(t, http.StatusFound, w.Code)
	assert.Equal(t, "http://backend.test/api/download/form.pdf", w.Header().Get("Location"))

	w = f.do(t, "alice", http.MethodGet, base+"/artifacts/form.pdf/preview", "")
	require.Equal(t, http.StatusFound, w.Code)
	assert.Equal(t, "http://backend.test/api/preview/form.pdf", w.Header().Get("Location"))

	w = f.do(t, "alice", http.MethodGet, base+"/artifacts/missing.pdf/download", "")
	assert.Equal(t, http.StatusNotFound, w.Code)

	f.backend.SetGenerateErr(errors.New("renderer down"))
	w = f.do(t, "alice", http.MethodPost, base+"/artifacts", "")
	assert.Equal(t, http.StatusBadGateway, w.Code)
}

func TestResetAndDiagnostics(t *testing.T) {
	t.Parallel()
	f := newAPIFixture(t, nil)
	snap := f.create(t, "alice")
	base := "/api/sessions/" + snap.ViewID

	f.do(t, "alice", http.MethodPost, base+"/messages", `{"message": "hello"}`)

	w := f.do(t, "alice", http.MethodPost, base+"/reset", "")
	require.Equal(t, http.StatusOK, w.Code)
	after := decode[session.Snapshot](t, w)
	require.Len(t, after.Messages, 1)
	assert.Empty(t, after.Session.ID)

	w = f.do(t, "alice", http.MethodGet, base+"/diagnostics", "")
	require.Equal(t, http.StatusOK, w.Code)
	diag := decode[struct {
		Entries []domain.DiagnosticEntry `json:"entries"`
	}](t, w)
	var actions []string
	for _, e := range diag.Entries {
		actions = append(actions, e.Action)
	}
	assert.Contains(t, actions, "Session Reset")
	assert.NotContains(t, actions, "Backend Response", "reset clears earlier diagnostics")
}

func TestHealthEndpoints(t *testing.T) {
	t.Parallel()
	f := newAPIFixture(t, nil)
	snap := f.create(t, "alice")
	base := "/api/sessions/" + snap.ViewID

	w := f.do(t, "alice", http.MethodPost, base+"/health", "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"connected": true}`, w.Body.String())

	w = f.do(t, "alice", http.MethodPost, base+"/test-connection", "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.True(t, decode[struct {
		Success bool `json:"success"`
	}](t, w).Success)

	f.backend.SetHealthErr(errors.New("down"))
	w = f.do(t, "alice", http.MethodPost, base+"/health", "")
	assert.JSONEq(t, `{"connected": false}`, w.Body.String())

	w = f.do(t, "alice", http.MethodGet, "/health", "")
	require.Equal(t, http.StatusOK, w.Code)
	body := decode[map[string]any](t, w)
	assert.Equal(t, "disabled", body["archive"])
	assert.EqualValues(t, 1, body["views"])
}

func TestDeleteSession(t *testing.T) {
	t.Parallel()
	f := newAPIFixture(t, nil)
	snap := f.create(t, "alice")

	w := f.do(t, "bob", http.MethodDelete, "/api/sessions/"+snap.ViewID, "")
	assert.Equal(t, http.StatusNotFound, w.Code)

	w = f.do(t, "alice", http.MethodDelete, "/api/sessions/"+snap.ViewID, "")
	assert.Equal(t, http.StatusNoContent, w.Code)

	w = f.do(t, "alice", http.MethodGet, "/api/sessions/"+snap.ViewID, "")
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestListForms(t *testing.T) {
	t.Parallel()
	f := newAPIFixture(t, nil)

	w := f.do(t, "alice", http.MethodGet, "/api/forms", "")
	require.Equal(t, http.StatusOK, w.Code)
	forms := decode[struct {
		Forms []domain.FormDefinition `json:"forms"`
	}](t, w)
	assert.Len(t, forms.Forms, 3)
}

func TestTranscript(t *testing.T) {
	t.Parallel()

	t.Run("archive disabled", func(t *testing.T) {
		f := newAPIFixture(t, nil)
		snap := f.create(t, "alice")

		w := f.do(t, "alice", http.MethodGet, "/api/sessions/"+snap.ViewID+"/transcript", "")
		require.Equal(t, http.StatusOK, w.Code)
		assert.JSONEq(t, `{"archived": false, "entries": []}`, w.Body.String())
	})

	t.Run("archive enabled", func(t *testing.T) {
		archive, err := store.NewSQLite(filepath.Join(t.TempDir(), "archive.db"))
		require.NoError(t, err)
		t.Cleanup(func() { _ = archive.Close() })

		f := newAPIFixture(t, archive)
		snap := f.create(t, "alice")
		base := "/api/sessions/" + snap.ViewID
		f.do(t, "alice", http.MethodPost, base+"/messages", `{"message": "hello"}`)

		w := f.do(t, "alice", http.MethodGet, base+"/transcript", "")
		require.Equal(t, http.StatusOK, w.Code)
		got := decode[struct {
			Archived bool                    `json:"archived"`
			Entries  []store.TranscriptEntry `json:"entries"`
		}](t, w)
		assert.True(t, got.Archived)
		require.Len(t, got.Entries, 3)
		assert.Equal(t, session.Greeting, got.Entries[0].Message.Content)
		assert.Equal(t, "hello", got.Entries[1].Message.Content)

		w = f.do(t, "alice", http.MethodGet, "/health", "")
		require.Equal(t, http.StatusOK, w.Code)
		assert.Equal(t, "ok", decode[map[string]any](t, w)["archive"])
	})
}

func TestHealthReportsBackendStatus(t *testing.T) {
	t.Parallel()
	reporter := health.NewReporter(nil)
	t.Cleanup(reporter.Shutdown)

	r := chi.NewRouter()
	NewHealthHandler(nil, reporter, nil).RegisterHealth(r)

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/health", nil))
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "NOT_SERVING", decode[map[string]any](t, w)["backend"])

	reporter.SetBackend(true)
	w = httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/health", nil))
	assert.Equal(t, "SERVING", decode[map[string]any](t, w)["backend"])
}
