package llm_test

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xhad/storagerag/pkg/llm"
)

// chatRequest records what the last chat completion request carried.
type chatRequest struct {
	temperature *float64
}

func newOpenAIServer(t *testing.T) (*httptest.Server, *chatRequest) {
	t.Helper()
	last := &chatRequest{}

	mux := http.NewServeMux()
	mux.HandleFunc("/v1/embeddings", func(w http.ResponseWriter, r *http.Request) {
		var req struct {
			Input      []string `json:"input"`
			Dimensions int      `json:"dimensions"`
		}
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.Equal(t, 384, req.Dimensions)

		data := make([]map[string]any, 0, len(req.Input))
		// answer in reverse order to exercise index mapping
		for i := len(req.Input) - 1; i >= 0; i-- {
			data = append(data, map[string]any{
				"object":    "embedding",
				"index":     i,
				"embedding": []float32{float32(i), 1},
			})
		}
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]any{"object": "list", "data": data, "model": "m"})
	})
	mux.HandleFunc("/v1/chat/completions", func(w http.ResponseWriter, r *http.Request) {
		var req struct {
			Temperature *float64 `json:"temperature"`
			Messages    []struct {
				Role    string `json:"role"`
				Content string `json:"content"`
			} `json:"messages"`
		}
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		last.temperature = req.Temperature
		require.Len(t, req.Messages, 2)
		assert.Equal(t, "system", req.Messages[0].Role)
		assert.Equal(t, "user", req.Messages[1].Role)

		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]any{
			"id":     "chatcmpl-1",
			"object": "chat.completion",
			"choices": []map[string]any{{
				"index":         0,
				"finish_reason": "stop",
				"message":       map[string]any{"role": "assistant", "content": "echo: " + req.Messages[1].Content},
			}},
		})
	})

	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return srv, last
}

func TestOpenAIEmbedder(t *testing.T) {
	srv, _ := newOpenAIServer(t)

	emb, err := llm.NewOpenAIEmbedder(llm.OpenAIConfig{APIKey: "test", BaseURL: srv.URL + "/v1"})
	require.NoError(t, err)

	vectors, err := emb.EmbedDocuments(context.Background(), []string{"a", "b", "c"})
	require.NoError(t, err)
	require.Len(t, vectors, 3)
	for i, v := range vectors {
		assert.Equal(t, []float32{float32(i), 1}, v)
	}

	q, err := emb.EmbedQuery(context.Background(), "question")
	require.NoError(t, err)
	assert.Equal(t, []float32{0, 1}, q)
}

func TestOpenAIChat(t *testing.T) {
	srv, last := newOpenAIServer(t)

	chat, err := llm.NewOpenAIChat(llm.OpenAIConfig{APIKey: "test", BaseURL: srv.URL + "/v1"})
	require.NoError(t, err)

	got, err := chat.Generate(context.Background(), "system", "hello")
	require.NoError(t, err)
	assert.Equal(t, "echo: hello", got)

	// a zero temperature must still reach the API
	require.NotNil(t, last.temperature)
	assert.InDelta(t, 0, *last.temperature, 1e-6)
}

func TestOpenAIChat_Temperature(t *testing.T) {
	srv, last := newOpenAIServer(t)

	chat, err := llm.NewOpenAIChat(llm.OpenAIConfig{APIKey: "test", BaseURL: srv.URL + "/v1", Temperature: 0.5})
	require.NoError(t, err)

	_, err = chat.Generate(context.Background(), "system", "hello")
	require.NoError(t, err)
	require.NotNil(t, last.temperature)
	assert.InDelta(t, 0.5, *last.temperature, 1e-6)
}

func TestOpenAIRequiresKey(t *testing.T) {
	_, err := llm.NewOpenAIEmbedder(llm.OpenAIConfig{})
	assert.Error(t, err)

	_, err = llm.NewOpenAIChat(llm.OpenAIConfig{})
	assert.Error(t, err)
}
