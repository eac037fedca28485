package embeddings

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewService_Defaults(t *testing.T) {
	svc, err := NewService(Config{})
	require.NoError(t, err)
	assert.Equal(t, 192, svc.Dimension())
	assert.Equal(t, "http://localhost:8080", svc.config.BaseURL)
	assert.Equal(t, "eres2netv2", svc.config.Model)
}

func TestNewService_InvalidDimension(t *testing.T) {
	_, err := NewService(Config{Dimension: -1})
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrInvalidConfig)
}

func TestService_Extract(t *testing.T) {
	want := []float32{0.1, 0.2, 0.3, 0.4}

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/extract", r.URL.Path)
		assert.Equal(t, "application/octet-stream", r.Header.Get("Content-Type"))

		audio, err := io.ReadAll(r.Body)
		require.NoError(t, err)
		assert.Equal(t, []byte("fake-wav-bytes"), audio)

		json.NewEncoder(w).Encode(map[string]any{"embedding": want})
	}))
	defer server.Close()

	svc, err := NewService(Config{BaseURL: server.URL, Dimension: 4})
	require.NoError(t, err)

	vec, err := svc.Extract(context.Background(), []byte("fake-wav-bytes"))
	require.NoError(t, err)
	assert.Equal(t, want, vec)
}

func TestService_Extract_EmptyAudio(t *testing.T) {
	svc, err := NewService(Config{BaseURL: "http://localhost:1", Dimension: 4})
	require.NoError(t, err)

	_, err = svc.Extract(context.Background(), nil)
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrEmptyInput)
}

func TestService_Extract_ServerError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "model not loaded", http.StatusInternalServerError)
	}))
	defer server.Close()

	svc, err := NewService(Config{BaseURL: server.URL, Dimension: 4})
	require.NoError(t, err)

	_, err = svc.Extract(context.Background(), []byte("audio"))
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrExtractionFailed)
	assert.Contains(t, err.Error(), "model not loaded")
}

func TestService_Extract_DimensionMismatch(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]any{"embedding": []float32{1, 2}})
	}))
	defer server.Close()

	svc, err := NewService(Config{BaseURL: server.URL, Dimension: 4})
	require.NoError(t, err)

	_, err = svc.Extract(context.Background(), []byte("audio"))
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrDimensionMismatch)
}

func TestService_Extract_EmptyResponse(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]any{"embedding": []float32{}})
	}))
	defer server.Close()

	svc, err := NewService(Config{BaseURL: server.URL, Dimension: 4})
	require.NoError(t, err)

	_, err = svc.Extract(context.Background(), []byte("audio"))
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrExtractionFailed)
}
