package store

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	lcqdrant "github.com/tmc/langchaingo/vectorstores/qdrant"
	"github.com/xhad/storagerag/internal/models"
	"github.com/xhad/storagerag/internal/types"
)

type QdrantConfig struct {
	URL            string
	APIKey         string
	Timeout        time.Duration
	ScoreThreshold float64
}

// Qdrant talks to the REST API through langchaingo's request helper. Points
// carry the chunk text under "page_content" and its tags under "metadata",
// the layout LangChain's Qdrant integration uses, so collections stay
// readable by those tools.
type Qdrant struct {
	config QdrantConfig
	base   *url.URL
}

func NewQdrant(config QdrantConfig) (*Qdrant, error) {
	if config.URL == "" {
		config.URL = "http://localhost:6333"
	}
	if config.Timeout == 0 {
		config.Timeout = 30 * time.Second
	}
	config.URL = strings.TrimRight(config.URL, "/")

	base, err := url.Parse(config.URL)
	if err != nil {
		return nil, fmt.Errorf("qdrant: invalid url %q: %w", config.URL, err)
	}

	return &Qdrant{
		config: config,
		base:   base,
	}, nil
}

type qdrantPayload struct {
	PageContent string         `json:"page_content"`
	Metadata    qdrantMetadata `json:"metadata"`
}

type qdrantMetadata struct {
	Source     string `json:"source"`
	FileID     string `json:"file_id"`
	ChunkIndex int    `json:"chunk_index"`
}

type qdrantPoint struct {
	ID      string        `json:"id"`
	Vector  []float32     `json:"vector"`
	Payload qdrantPayload `json:"payload"`
}

func (q *Qdrant) collectionURL(name string, parts ...string) *url.URL {
	return q.base.JoinPath(append([]string{"collections", name}, parts...)...)
}

func (q *Qdrant) CollectionExists(ctx context.Context, name string) (bool, error) {
	status, err := q.do(ctx, http.MethodGet, q.collectionURL(name), nil, nil)
	if status == http.StatusNotFound {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, nil
}

func (q *Qdrant) CreateCollection(ctx context.Context, name string, dim int, metric types.Distance) error {
	body := map[string]any{
		"vectors": map[string]any{
			"size":     dim,
			"distance": string(metric),
		},
	}
	status, err := q.do(ctx, http.MethodPut, q.collectionURL(name), body, nil)
	if err == nil || status == http.StatusConflict {
		return nil
	}
	// Older servers answer 400 when the collection already exists.
	if status == http.StatusBadRequest {
		if exists, existsErr := q.CollectionExists(ctx, name); existsErr == nil && exists {
			return nil
		}
	}
	return err
}

func (q *Qdrant) Upsert(ctx context.Context, collection string, records []models.Record) error {
	if len(records) == 0 {
		return nil
	}

	points := make([]qdrantPoint, len(records))
	for i, r := range records {
		points[i] = qdrantPoint{
			ID:     r.ID,
			Vector: r.Vector,
			Payload: qdrantPayload{
				PageContent: r.Chunk.Content,
				Metadata: qdrantMetadata{
					Source:     r.Chunk.Source,
					FileID:     r.Chunk.ChunkID,
					ChunkIndex: r.Chunk.Index,
				},
			},
		}
	}

	_, err := q.do(ctx, http.MethodPut, q.collectionURL(collection, "points"),
		map[string]any{"points": points}, nil)
	return err
}

func (q *Qdrant) Search(ctx context.Context, collection string, vector []float32, k int) ([]models.ScoredChunk, error) {
	req := map[string]any{
		"vector":       vector,
		"limit":        k,
		"with_payload": true,
	}
	if q.config.ScoreThreshold != 0 {
		req["score_threshold"] = q.config.ScoreThreshold
	}

	var resp struct {
		Result []struct {
			Score   float64       `json:"score"`
			Payload qdrantPayload `json:"payload"`
		} `json:"result"`
	}
	if _, err := q.do(ctx, http.MethodPost, q.collectionURL(collection, "points", "search"), req, &resp); err != nil {
		return nil, err
	}

	hits := make([]models.ScoredChunk, 0, len(resp.Result))
	for _, r := range resp.Result {
		hits = append(hits, models.ScoredChunk{
			Chunk: models.Chunk{
				Content: r.Payload.PageContent,
				Source:  r.Payload.Metadata.Source,
				ChunkID: r.Payload.Metadata.FileID,
				Index:   r.Payload.Metadata.ChunkIndex,
			},
			Score: r.Score,
		})
	}
	return hits, nil
}

func (q *Qdrant) Close() error {
	return nil
}

// do sends body as JSON and decodes the response into out when non-nil.
// The HTTP status is returned even when err is set. Writes wait for the
// server to apply them.
func (q *Qdrant) do(ctx context.Context, method string, u *url.URL, body, out any) (int, error) {
	ctx, cancel := context.WithTimeout(ctx, q.config.Timeout)
	defer cancel()

	resp, status, err := lcqdrant.DoRequest(ctx, *u, q.config.APIKey, method, body)
	if err != nil {
		return 0, fmt.Errorf("qdrant %s %s: %w", method, u.Path, err)
	}
	defer resp.Close()

	if status >= 300 {
		msg, _ := io.ReadAll(io.LimitReader(resp, 1024))
		return status, fmt.Errorf("qdrant %s %s failed: %d %s: %s", method, u.Path,
			status, http.StatusText(status), strings.TrimSpace(string(msg)))
	}

	if out != nil {
		if err := json.NewDecoder(resp).Decode(out); err != nil {
			return status, fmt.Errorf("qdrant: decode response: %w", err)
		}
	}
	return status, nil
}

var _ types.VectorStore = (*Qdrant)(nil)
