package server

import (
	"bytes"
	"context"
	"encoding/json"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xhad/storagerag/internal/models"
	"github.com/xhad/storagerag/pkg/extract"
	"github.com/xhad/storagerag/pkg/processor"
	"github.com/xhad/storagerag/pkg/rag"
	"github.com/xhad/storagerag/pkg/scraper"
	"github.com/xhad/storagerag/pkg/store"
)

// onesEmbedder maps every text to the same vector, so every chunk matches.
type onesEmbedder struct{}

func (onesEmbedder) vector() []float32 {
	v := make([]float32, models.VectorDim)
	for i := range v {
		v[i] = 1
	}
	return v
}

func (e onesEmbedder) EmbedDocuments(_ context.Context, texts []string) ([][]float32, error) {
	out := make([][]float32, len(texts))
	for i := range texts {
		out[i] = e.vector()
	}
	return out, nil
}

func (e onesEmbedder) EmbedQuery(context.Context, string) ([]float32, error) {
	return e.vector(), nil
}

type echoGenerator struct{}

func (echoGenerator) Generate(_ context.Context, _, user string) (string, error) {
	return "answer to: " + user, nil
}

func newTestServer(t *testing.T) *httptest.Server {
	t.Helper()
	extractor := extract.New()
	engine := rag.New(rag.Deps{
		Extractor: extractor,
		Chunker:   processor.New(),
		Embedder:  onesEmbedder{},
		Store:     store.NewMemory(0),
		Generator: echoGenerator{},
	}, rag.Config{})

	s := New(engine, extractor, scraper.NewWithConfig(scraper.ScraperConfig{RateLimit: 100}), Config{})
	ts := httptest.NewServer(s.Handler())
	t.Cleanup(ts.Close)
	return ts
}

func postFile(t *testing.T, url, filename string, data []byte) *http.Response {
	t.Helper()
	var body bytes.Buffer
	mw := multipart.NewWriter(&body)
	fw, err := mw.CreateFormFile("file", filename)
	require.NoError(t, err)
	_, err = fw.Write(data)
	require.NoError(t, err)
	require.NoError(t, mw.Close())

	resp, err := http.Post(url, mw.FormDataContentType(), &body)
	require.NoError(t, err)
	t.Cleanup(func() { resp.Body.Close() })
	return resp
}

func postQuery(t *testing.T, url, question string) *http.Response {
	t.Helper()
	body, err := json.Marshal(QueryRequest{Question: question})
	require.NoError(t, err)
	resp, err := http.Post(url+"/query", "application/json", bytes.NewReader(body))
	require.NoError(t, err)
	t.Cleanup(func() { resp.Body.Close() })
	return resp
}

func decode[T any](t *testing.T, resp *http.Response) T {
	t.Helper()
	var v T
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&v))
	return v
}

var handbook = []byte(strings.Repeat("Employees accrue twenty vacation days per year. ", 20))

func TestHealth(t *testing.T) {
	ts := newTestServer(t)

	resp, err := http.Get(ts.URL + "/health")
	require.NoError(t, err)
	defer resp.Body.Close()

	assert.Equal(t, http.StatusOK, resp.StatusCode)
	health := decode[map[string]any](t, resp)
	assert.Equal(t, "ok", health["status"])
	assert.Equal(t, false, health["has_active_index"])
	require.Contains(t, health, "active_collection")
	assert.Nil(t, health["active_collection"])
}

func TestQueryBeforeUpload(t *testing.T) {
	ts := newTestServer(t)

	resp := postQuery(t, ts.URL, "How many vacation days?")
	assert.Equal(t, http.StatusServiceUnavailable, resp.StatusCode)
	assert.Contains(t, decode[ErrorResponse](t, resp).Detail, "no document is currently indexed")
}

func TestUploadThenQuery(t *testing.T) {
	ts := newTestServer(t)

	resp := postFile(t, ts.URL+"/upload", "Handbook 2024.txt", handbook)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	upload := decode[UploadResponse](t, resp)
	assert.Equal(t, "Handbook 2024.txt", upload.Filename)
	assert.True(t, strings.HasPrefix(upload.CollectionName, "pdf_handbook_2024_txt_"))
	assert.Greater(t, upload.ChunkCount, 0)

	resp = postQuery(t, ts.URL, "How many vacation days?")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "answer to: How many vacation days?", decode[QueryResponse](t, resp).Answer)

	health, err := http.Get(ts.URL + "/health")
	require.NoError(t, err)
	defer health.Body.Close()
	status := decode[HealthResponse](t, health)
	assert.Equal(t, "ok", status.Status)
	assert.True(t, status.HasActiveIndex)
	require.NotNil(t, status.ActiveCollection)
	assert.Equal(t, upload.CollectionName, *status.ActiveCollection)
}

func TestUploadPDF_Rejections(t *testing.T) {
	ts := newTestServer(t)

	tests := []struct {
		name     string
		filename string
		data     []byte
		status   int
		detail   string
	}{
		{"wrong extension", "notes.txt", handbook, http.StatusBadRequest, "only .pdf files are allowed"},
		{"too small", "tiny.pdf", []byte("%PDF-1.4"), http.StatusBadRequest, "too small"},
		{"not a pdf", "broken.pdf", handbook, http.StatusUnprocessableEntity, "failed to extract text from broken.pdf"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			resp := postFile(t, ts.URL+"/upload-pdf", tt.filename, tt.data)
			assert.Equal(t, tt.status, resp.StatusCode)
			assert.Contains(t, decode[ErrorResponse](t, resp).Detail, tt.detail)
		})
	}

	// Nothing was activated by the failed uploads.
	resp := postQuery(t, ts.URL, "anything?")
	assert.Equal(t, http.StatusServiceUnavailable, resp.StatusCode)
}

func TestUpload_UnsupportedType(t *testing.T) {
	ts := newTestServer(t)

	resp := postFile(t, ts.URL+"/upload", "sheet.xlsx", handbook)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	assert.Contains(t, decode[ErrorResponse](t, resp).Detail, "unsupported file type")
}

func TestQuery_BadRequest(t *testing.T) {
	ts := newTestServer(t)

	resp, err := http.Post(ts.URL+"/query", "application/json", strings.NewReader("{"))
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

	resp = postQuery(t, ts.URL, "   ")
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func readMessage(t *testing.T, conn *websocket.Conn) Message {
	t.Helper()
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(5*time.Second)))
	var msg Message
	require.NoError(t, conn.ReadJSON(&msg))
	return msg
}

func TestWebSocket(t *testing.T) {
	page := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/html")
		w.Write([]byte(`<html><head><title>Policy</title></head><body><main>` +
			string(handbook) + `</main></body></html>`))
	}))
	defer page.Close()

	ts := newTestServer(t)
	wsURL := "ws" + strings.TrimPrefix(ts.URL, "http") + "/ws"

	conn, _, err := websocket.DefaultDialer.Dial(wsURL, nil)
	require.NoError(t, err)
	defer conn.Close()

	require.NoError(t, conn.WriteJSON(Message{Type: "query", Content: "How many vacation days?"}))
	msg := readMessage(t, conn)
	assert.Equal(t, "error", msg.Type)
	assert.Contains(t, msg.Content, "no document is currently indexed")

	require.NoError(t, conn.WriteJSON(Message{Type: "query", Content: page.URL + "/policy How many vacation days?"}))
	msg = readMessage(t, conn)
	assert.Equal(t, "status", msg.Type)
	assert.Equal(t, "Processing URL: "+page.URL+"/policy", msg.Content)

	msg = readMessage(t, conn)
	assert.Equal(t, "indexed", msg.Type)
	assert.Contains(t, msg.Content, "into collection: pdf_policy_html_")

	msg = readMessage(t, conn)
	assert.Equal(t, "response", msg.Type)
	assert.Equal(t, "answer to: How many vacation days?", msg.Content)

	require.NoError(t, conn.WriteJSON(Message{Type: "status"}))
	msg = readMessage(t, conn)
	assert.Equal(t, "status", msg.Type)
	data, ok := msg.Data.(map[string]interface{})
	require.True(t, ok)
	assert.Equal(t, true, data["has_active_index"])
	assert.Contains(t, data["active_collection"], "pdf_policy_html_")
}

func TestStatusFor(t *testing.T) {
	assert.Equal(t, http.StatusServiceUnavailable, statusFor(rag.ErrNoActiveIndex))
	assert.Equal(t, http.StatusUnprocessableEntity, statusFor(&rag.ExtractionError{Filename: "a.pdf", Err: assert.AnError}))
	assert.Equal(t, http.StatusInternalServerError, statusFor(&rag.IndexingError{Collection: "c", Err: assert.AnError}))
}
