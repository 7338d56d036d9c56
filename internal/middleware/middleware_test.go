package middleware

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"go.uber.org/goleak"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

var ok = http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
})

func TestRateLimitPerKey(t *testing.T) {
	t.Parallel()

	rl := NewRateLimiter(2, time.Hour)
	h := RateLimit(rl, func(r *http.Request) string { return r.Header.Get("X-Client") })(ok)

	call := func(client string) int {
		req := httptest.NewRequest(http.MethodPost, "/", nil)
		req.Header.Set("X-Client", client)
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, req)
		return rec.Code
	}

	assert.Equal(t, http.StatusOK, call("a"))
	assert.Equal(t, http.StatusOK, call("a"))
	assert.Equal(t, http.StatusTooManyRequests, call("a"))
	assert.Equal(t, http.StatusOK, call("b"))
	assert.Equal(t, 2, rl.Len())
}

func TestRateLimiterEvictsIdleKeys(t *testing.T) {
	t.Parallel()

	rl := NewRateLimiter(5, time.Minute)
	rl.Allow("old")
	rl.evict(time.Now().Add(time.Second))
	assert.Zero(t, rl.Len())
}

func TestRateLimiterRunStops(t *testing.T) {
	t.Parallel()

	rl := NewRateLimiter(1, 10*time.Millisecond)
	ctx, cancel := context.WithCancel(t.Context())
	done := make(chan struct{})
	go func() {
		rl.Run(ctx)
		close(done)
	}()
	cancel()
	<-done
}

func TestMaxBodySize(t *testing.T) {
	t.Parallel()

	var readErr error
	h := MaxBodySize(4)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, readErr = io.ReadAll(r.Body)
	}))
	h.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodPost, "/", strings.NewReader("too long")))
	assert.Error(t, readErr)
}

func TestCORS(t *testing.T) {
	t.Parallel()

	h := CORS([]string{"http://app.example"})(ok)

	req := httptest.NewRequest(http.MethodOptions, "/api/forms", nil)
	req.Header.Set("Origin", "http://app.example")
	req.Header.Set("Access-Control-Request-Method", http.MethodPost)
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	assert.Equal(t, "http://app.example", rec.Header().Get("Access-Control-Allow-Origin"))
	assert.Equal(t, "true", rec.Header().Get("Access-Control-Allow-Credentials"))

	req = httptest.NewRequest(http.MethodGet, "/api/forms", nil)
	req.Header.Set("Origin", "http://evil.example")
	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	assert.Empty(t, rec.Header().Get("Access-Control-Allow-Origin"))

	wild := CORS([]string{"*"})(ok)
	req = httptest.NewRequest(http.MethodGet, "/api/forms", nil)
	req.Header.Set("Origin", "http://any.example")
	rec = httptest.NewRecorder()
	wild.ServeHTTP(rec, req)
	assert.NotEmpty(t, rec.Header().Get("Access-Control-Allow-Origin"))
	assert.Empty(t, rec.Header().Get("Access-Control-Allow-Credentials"))
}
