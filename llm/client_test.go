package llm

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEnhanceParsesContent(t *testing.T) {
	var gotBody map[string]any
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/v1/chat/completions", r.URL.Path)
		require.NoError(t, json.NewDecoder(r.Body).Decode(&gotBody))
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"choices":[{"message":{"role":"assistant","content":"A richer line."}}]}`))
	}))
	defer srv.Close()

	c := New(Config{Endpoint: srv.URL, Model: "test-model", Timeout: 5 * time.Second, MaxTokens: 128})
	out, err := c.Enhance(context.Background(), "A plain line.", "narration", "Char", 64)
	require.NoError(t, err)
	assert.Equal(t, "A richer line.", out)
	assert.Equal(t, "test-model", gotBody["model"])
	assert.Equal(t, float64(64), gotBody["max_tokens"])
}

func TestEnhanceSurfacesServerError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "overloaded", http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	c := New(Config{Endpoint: srv.URL, Timeout: 5 * time.Second, MaxTokens: 128})
	_, err := c.Enhance(context.Background(), "text", "dialogue", "", 0)
	assert.Error(t, err)
}

func TestEnhanceRejectsEmptyContent(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"choices":[]}`))
	}))
	defer srv.Close()

	c := New(Config{Endpoint: srv.URL, Timeout: 5 * time.Second, MaxTokens: 128})
	_, err := c.Enhance(context.Background(), "text", "narration", "", 0)
	assert.Error(t, err)
}
