package rag

import (
	"context"
	"fmt"
	"log"

	"github.com/google/uuid"
	"github.com/xhad/storagerag/internal/models"
	"github.com/xhad/storagerag/internal/types"
)

// Indexer turns an uploaded document into a freshly created collection and
// makes it the active index.
type Indexer struct {
	deps     Deps
	registry *Registry
	namer    Namer
	topK     int
}

func NewIndexer(deps Deps, registry *Registry, namer Namer, topK int) *Indexer {
	return &Indexer{
		deps:     deps,
		registry: registry,
		namer:    namer,
		topK:     topK,
	}
}

// Index extracts, chunks, embeds and upserts the document into its own
// collection. A document without text still yields an (empty) active
// collection and a zero chunk count. Nothing is retried.
func (ix *Indexer) Index(ctx context.Context, data []byte, filename string) (models.IndexResult, error) {
	text, err := ix.deps.Extractor.Extract(ctx, filename, data)
	if err != nil {
		return models.IndexResult{}, &ExtractionError{Filename: filename, Err: err}
	}

	chunks := BuildChunks(ix.deps.Chunker.Split(text), filename)
	collection := ix.namer.Name(filename)

	if err := ix.ensureCollection(ctx, collection); err != nil {
		return models.IndexResult{}, &IndexingError{Collection: collection, Err: err}
	}

	records, err := ix.embed(ctx, chunks)
	if err != nil {
		return models.IndexResult{}, &IndexingError{Collection: collection, Err: err}
	}

	if len(records) > 0 {
		if err := ix.deps.Store.Upsert(ctx, collection, records); err != nil {
			return models.IndexResult{}, &IndexingError{Collection: collection, Err: fmt.Errorf("upsert failed: %w", err)}
		}
	}

	ix.registry.Set(collection, NewRetriever(collection, ix.topK, ix.deps.Embedder, ix.deps.Store))

	log.Printf("Indexed %d chunks into collection: %s", len(chunks), collection)

	return models.IndexResult{CollectionName: collection, ChunkCount: len(chunks)}, nil
}

// ensureCollection checks before creating. The two steps are not atomic;
// stores treat a duplicate create as a no-op.
func (ix *Indexer) ensureCollection(ctx context.Context, collection string) error {
	exists, err := ix.deps.Store.CollectionExists(ctx, collection)
	if err != nil {
		return err
	}
	if exists {
		return nil
	}
	if err := ix.deps.Store.CreateCollection(ctx, collection, models.VectorDim, types.Cosine); err != nil {
		return fmt.Errorf("create collection: %w", err)
	}
	return nil
}

func (ix *Indexer) embed(ctx context.Context, chunks []models.Chunk) ([]models.Record, error) {
	if len(chunks) == 0 {
		return nil, nil
	}

	texts := make([]string, len(chunks))
	for i, c := range chunks {
		texts[i] = c.Content
	}

	vectors, err := ix.deps.Embedder.EmbedDocuments(ctx, texts)
	if err != nil {
		return nil, fmt.Errorf("embedding failed: %w", err)
	}
	if len(vectors) != len(chunks) {
		return nil, fmt.Errorf("embedding failed: got %d vectors for %d chunks", len(vectors), len(chunks))
	}

	records := make([]models.Record, len(chunks))
	for i, c := range chunks {
		if len(vectors[i]) != models.VectorDim {
			return nil, fmt.Errorf("embedding failed: chunk %d has dimension %d, want %d", i, len(vectors[i]), models.VectorDim)
		}
		records[i] = models.Record{
			ID:     uuid.NewString(),
			Chunk:  c,
			Vector: vectors[i],
		}
	}
	return records, nil
}

// BuildChunks tags each piece of text with its source file, a short opaque
// id and its position.
func BuildChunks(texts []string, source string) []models.Chunk {
	chunks := make([]models.Chunk, len(texts))
	for i, text := range texts {
		chunks[i] = models.Chunk{
			Content: text,
			Source:  source,
			ChunkID: uuid.NewString()[:12],
			Index:   i,
		}
	}
	return chunks
}
