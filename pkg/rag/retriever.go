package rag

import (
	"context"
	"fmt"

	"github.com/xhad/storagerag/internal/models"
	"github.com/xhad/storagerag/internal/types"
)

// DefaultTopK is the number of chunks fetched per question.
const DefaultTopK = 5

// Retriever searches one collection.
type Retriever struct {
	collection string
	k          int
	embedder   types.Embedder
	store      types.VectorStore
}

func NewRetriever(collection string, k int, embedder types.Embedder, store types.VectorStore) *Retriever {
	if k <= 0 {
		k = DefaultTopK
	}
	return &Retriever{
		collection: collection,
		k:          k,
		embedder:   embedder,
		store:      store,
	}
}

func (r *Retriever) Collection() string { return r.collection }

// Retrieve returns up to k chunks, most similar first. No match is an empty
// result, not an error.
func (r *Retriever) Retrieve(ctx context.Context, question string) ([]models.Chunk, error) {
	vector, err := r.embedder.EmbedQuery(ctx, question)
	if err != nil {
		return nil, fmt.Errorf("failed to embed question: %w", err)
	}

	hits, err := r.store.Search(ctx, r.collection, vector, r.k)
	if err != nil {
		return nil, fmt.Errorf("failed to search %s: %w", r.collection, err)
	}

	chunks := make([]models.Chunk, 0, len(hits))
	for _, hit := range hits {
		chunks = append(chunks, hit.Chunk)
	}
	return chunks, nil
}
