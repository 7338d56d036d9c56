//nolint:revive // "api" package name is intentionally concise for this layer.
package api

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestJSON(t *testing.T) {
	w := httptest.NewRecorder()
	JSON(w, http.StatusOK, map[string]string{"foo": "bar"})

	resp := w.Result()
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "application/json", resp.Header.Get("Content-Type"))

	var got map[string]string
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&got))
	assert.Equal(t, "bar", got["foo"])
}

func TestError(t *testing.T) {
	w := httptest.NewRecorder()
	Error(w, http.StatusConflict, "busy")

	assert.Equal(t, http.StatusConflict, w.Code)
	assert.JSONEq(t, `{"error": "busy"}`, w.Body.String())
}

func TestDecodeJSON(t *testing.T) {
	var req sendMessageRequest

	r := httptest.NewRequest(http.MethodPost, "/", strings.NewReader(""))
	require.NoError(t, decodeJSON(r, &req), "empty body is allowed")

	r = httptest.NewRequest(http.MethodPost, "/", strings.NewReader(`{"message": "hi"}`))
	require.NoError(t, decodeJSON(r, &req))
	assert.Equal(t, "hi", req.Message)

	r = httptest.NewRequest(http.MethodPost, "/", strings.NewReader(`{"message":`))
	require.Error(t, decodeJSON(r, &req))
}
