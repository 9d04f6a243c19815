package vision

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/ollama/ollama/api"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestOllamaLoadKeepsModelResident(t *testing.T) {
	var got map[string]any
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/generate", r.URL.Path)
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		_, _ = w.Write([]byte(`{"model":"llava","response":"","done":true,"done_reason":"load"}` + "\n"))
	}))
	defer srv.Close()

	rt := NewOllamaRuntime(srv.URL+"/", "llava", srv.Client())
	require.NoError(t, rt.Load(context.Background()))

	assert.Equal(t, "llava", got["model"])
	assert.Equal(t, float64(-1), got["keep_alive"])
	assert.Equal(t, false, got["stream"])
	assert.Empty(t, got["prompt"])
	assert.NotContains(t, got, "images")
}

func TestOllamaLoadMissingModel(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
		_, _ = w.Write([]byte(`{"error":"model 'llava' not found"}`))
	}))
	defer srv.Close()

	err := NewOllamaRuntime(srv.URL, "llava", nil).Load(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "ollama status 404")
	assert.Contains(t, err.Error(), "not found")
}

func TestOllamaLoadUnreachable(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	url := srv.URL
	srv.Close()

	assert.Error(t, NewOllamaRuntime(url, "llava", nil).Load(context.Background()))
}

func TestOllamaLoadWithoutModel(t *testing.T) {
	assert.Error(t, NewOllamaRuntime("http://localhost:1", "", nil).Load(context.Background()))
}

func TestOllamaInvalidEndpoint(t *testing.T) {
	rt := NewOllamaRuntime("localhost", "llava", nil)

	err := rt.Load(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "invalid vision endpoint")

	_, err = rt.Generate(context.Background(), Request{Prompt: "x"})
	assert.Error(t, err)
}

func TestOllamaGenerateIsDeterministic(t *testing.T) {
	var got api.GenerateRequest
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		_ = json.NewEncoder(w).Encode(api.GenerateResponse{Model: "llava", Response: "<s>radio</s>", Done: true})
	}))
	defer srv.Close()

	out, err := NewOllamaRuntime(srv.URL, "llava", srv.Client()).Generate(context.Background(), Request{
		Prompt:    "<CAPTION>",
		Image:     []byte("hello"),
		MaxTokens: 1024,
	})
	require.NoError(t, err)
	assert.Equal(t, "<s>radio</s>", out)

	require.NotNil(t, got.Stream)
	assert.False(t, *got.Stream)
	assert.True(t, got.Raw)
	require.Len(t, got.Images, 1)
	assert.Equal(t, []byte("hello"), []byte(got.Images[0]))
	assert.Equal(t, float64(0), got.Options["temperature"])
	assert.Equal(t, float64(1), got.Options["top_k"])
	assert.Equal(t, float64(1024), got.Options["num_predict"])
}

func TestOllamaGenerateErrorBody(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"error":"image too large"}`))
	}))
	defer srv.Close()

	_, err := NewOllamaRuntime(srv.URL, "llava", nil).Generate(context.Background(), Request{Prompt: "x"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "image too large")
}

func TestOllamaGenerateBadJSON(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`not json`))
	}))
	defer srv.Close()

	_, err := NewOllamaRuntime(srv.URL, "llava", nil).Generate(context.Background(), Request{Prompt: "x"})
	assert.Error(t, err)
}
