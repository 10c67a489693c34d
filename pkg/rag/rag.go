// Package rag implements the retrieval-augmented generation pipeline:
// one vector collection per uploaded document, a single active index, top-K
// retrieval and grounded answers.
package rag

import (
	"context"

	"github.com/xhad/storagerag/internal/models"
	"github.com/xhad/storagerag/internal/types"
)

// Deps are the long-lived collaborators shared by every request.
type Deps struct {
	Extractor types.Extractor
	Chunker   types.Chunker
	Embedder  types.Embedder
	Store     types.VectorStore
	Generator types.Generator
}

type Config struct {
	TopK  int
	Namer Namer
}

// Engine is the surface consumed by the CLI and the HTTP server.
type Engine struct {
	registry    *Registry
	indexer     *Indexer
	synthesizer *Synthesizer
}

func New(deps Deps, config Config) *Engine {
	if config.TopK <= 0 {
		config.TopK = DefaultTopK
	}
	registry := NewRegistry()
	return &Engine{
		registry:    registry,
		indexer:     NewIndexer(deps, registry, config.Namer, config.TopK),
		synthesizer: NewSynthesizer(registry, deps.Generator),
	}
}

func (e *Engine) Index(ctx context.Context, data []byte, filename string) (models.IndexResult, error) {
	return e.indexer.Index(ctx, data, filename)
}

func (e *Engine) Answer(ctx context.Context, question string) (string, error) {
	return e.synthesizer.Answer(ctx, question)
}

// Retrieve returns the chunks the next answer would be grounded on.
func (e *Engine) Retrieve(ctx context.Context, question string) ([]models.Chunk, error) {
	active, ok := e.registry.Get()
	if !ok {
		return nil, ErrNoActiveIndex
	}
	return active.Retriever.Retrieve(ctx, question)
}

func (e *Engine) Status() models.Status {
	active, ok := e.registry.Get()
	if !ok {
		return models.Status{}
	}
	return models.Status{ActiveCollection: active.Collection, HasActiveIndex: true}
}
