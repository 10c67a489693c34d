package types

import (
	"context"

	"github.com/xhad/storagerag/internal/models"
)

// Distance is the similarity metric a collection is created with.
type Distance string

const (
	Cosine Distance = "Cosine"
)

// Extractor turns raw document bytes into plain text.
type Extractor interface {
	Extract(ctx context.Context, filename string, data []byte) (string, error)
}

// Embedder maps text to fixed-width vectors.
type Embedder interface {
	EmbedDocuments(ctx context.Context, texts []string) ([][]float32, error)
	EmbedQuery(ctx context.Context, text string) ([]float32, error)
}

// VectorStore keeps one isolated collection per indexed document.
type VectorStore interface {
	CollectionExists(ctx context.Context, name string) (bool, error)
	CreateCollection(ctx context.Context, name string, dim int, metric Distance) error
	Upsert(ctx context.Context, collection string, records []models.Record) error
	Search(ctx context.Context, collection string, vector []float32, k int) ([]models.ScoredChunk, error)
	Close() error
}

// Generator produces a chat completion from a system instruction and a user message.
type Generator interface {
	Generate(ctx context.Context, system, user string) (string, error)
}

// Chunker splits extracted text into overlapping segments.
type Chunker interface {
	Split(text string) []string
}
