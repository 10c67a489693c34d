package store_test

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sort"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xhad/storagerag/internal/models"
	"github.com/xhad/storagerag/pkg/store"
)

type fakePoint struct {
	ID      string          `json:"id"`
	Vector  []float32       `json:"vector"`
	Payload json.RawMessage `json:"payload"`
}

// fakeQdrant implements the handful of REST endpoints the client uses.
type fakeQdrant struct {
	mu          sync.Mutex
	collections map[string][]fakePoint
	apiKeys     []string
}

func newFakeQdrant(t *testing.T) (*fakeQdrant, *httptest.Server) {
	t.Helper()
	f := &fakeQdrant{collections: make(map[string][]fakePoint)}

	mux := http.NewServeMux()
	mux.HandleFunc("GET /collections/{name}", func(w http.ResponseWriter, r *http.Request) {
		f.mu.Lock()
		defer f.mu.Unlock()
		f.apiKeys = append(f.apiKeys, r.Header.Get("api-key"))
		if _, ok := f.collections[r.PathValue("name")]; !ok {
			http.Error(w, `{"status":{"error":"Not found"}}`, http.StatusNotFound)
			return
		}
		w.Write([]byte(`{"result":{"status":"green"}}`))
	})
	mux.HandleFunc("PUT /collections/{name}", func(w http.ResponseWriter, r *http.Request) {
		var body struct {
			Vectors struct {
				Size     int    `json:"size"`
				Distance string `json:"distance"`
			} `json:"vectors"`
		}
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		assert.Equal(t, "Cosine", body.Vectors.Distance)

		f.mu.Lock()
		defer f.mu.Unlock()
		name := r.PathValue("name")
		if _, ok := f.collections[name]; ok {
			http.Error(w, `{"status":{"error":"already exists"}}`, http.StatusConflict)
			return
		}
		f.collections[name] = []fakePoint{}
		w.Write([]byte(`{"result":true}`))
	})
	mux.HandleFunc("PUT /collections/{name}/points", func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "true", r.URL.Query().Get("wait"))
		var body struct {
			Points []fakePoint `json:"points"`
		}
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))

		f.mu.Lock()
		defer f.mu.Unlock()
		name := r.PathValue("name")
		if _, ok := f.collections[name]; !ok {
			http.Error(w, `{"status":{"error":"Not found"}}`, http.StatusNotFound)
			return
		}
		f.collections[name] = append(f.collections[name], body.Points...)
		w.Write([]byte(`{"result":{"status":"completed"}}`))
	})
	mux.HandleFunc("POST /collections/{name}/points/search", func(w http.ResponseWriter, r *http.Request) {
		var body struct {
			Vector []float32 `json:"vector"`
			Limit  int       `json:"limit"`
		}
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))

		f.mu.Lock()
		points := f.collections[r.PathValue("name")]
		f.mu.Unlock()

		type hit struct {
			Score   float64         `json:"score"`
			Payload json.RawMessage `json:"payload"`
		}
		hits := make([]hit, 0, len(points))
		for _, p := range points {
			hits = append(hits, hit{Score: store.CosineSimilarity(body.Vector, p.Vector), Payload: p.Payload})
		}
		sort.SliceStable(hits, func(i, j int) bool { return hits[i].Score > hits[j].Score })
		if len(hits) > body.Limit {
			hits = hits[:body.Limit]
		}
		json.NewEncoder(w).Encode(map[string]any{"result": hits})
	})

	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return f, srv
}

func TestQdrant(t *testing.T) {
	f, srv := newFakeQdrant(t)

	s, err := store.NewQdrant(store.QdrantConfig{URL: srv.URL + "/", APIKey: "secret"})
	require.NoError(t, err)
	exerciseStore(t, s)

	f.mu.Lock()
	defer f.mu.Unlock()
	require.NotEmpty(t, f.apiKeys)
	assert.Equal(t, "secret", f.apiKeys[0])

	// payload layout stays compatible with LangChain's Qdrant integration
	points := f.collections["pdf_handbook_pdf_1a2b3c4d"]
	require.Len(t, points, 3)
	var payload map[string]any
	require.NoError(t, json.Unmarshal(points[0].Payload, &payload))
	assert.Equal(t, "vacation policy", payload["page_content"])
	meta := payload["metadata"].(map[string]any)
	assert.Equal(t, "handbook.pdf", meta["source"])
	assert.Equal(t, "chunk000000", meta["file_id"])
	assert.Equal(t, float64(0), meta["chunk_index"])
}

func TestQdrant_MissingCollection(t *testing.T) {
	_, srv := newFakeQdrant(t)
	s, err := store.NewQdrant(store.QdrantConfig{URL: srv.URL})
	require.NoError(t, err)
	ctx := context.Background()

	err = s.Upsert(ctx, "nope", []models.Record{record("00000000-0000-0000-0000-000000000009", 0, "x", 1, 0, 0)})
	assert.ErrorContains(t, err, "404")

	// an empty batch never reaches the server
	assert.NoError(t, s.Upsert(ctx, "nope", nil))
}

func TestQdrant_InvalidURL(t *testing.T) {
	_, err := store.NewQdrant(store.QdrantConfig{URL: "http://[::1"})
	assert.Error(t, err)
}
