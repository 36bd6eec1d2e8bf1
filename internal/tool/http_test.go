package tool

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHTTPGetDecodesJSONBody(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"ok":true}`))
	}))
	defer srv.Close()

	h := NewHTTP(nil)
	result, err := h.Execute(context.Background(), Config{Body: map[string]any{"method": "GET", "url": srv.URL}}, ExecutionContext{})
	require.NoError(t, err)
	assert.Equal(t, StatusSuccess, result.Status)
	assert.Equal(t, 200, result.Data["status_code"])
	body := result.Data["body"].(map[string]any)
	assert.Equal(t, true, body["ok"])
}

func TestHTTPServerErrorIsErrorStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	h := NewHTTP(nil)
	result, err := h.Execute(context.Background(), Config{Body: map[string]any{"method": "GET", "url": srv.URL}}, ExecutionContext{})
	require.NoError(t, err)
	assert.Equal(t, StatusError, result.Status)
	assert.Equal(t, 500, result.Data["status_code"])
}

func TestHTTPMissingURLIsValidationError(t *testing.T) {
	h := NewHTTP(nil)
	_, err := h.Execute(context.Background(), Config{}, ExecutionContext{})
	require.Error(t, err)
}
