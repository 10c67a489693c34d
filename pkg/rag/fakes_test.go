package rag_test

import (
	"context"
	"errors"
	"hash/fnv"
	"strings"
	"sync"
	"unicode"

	"github.com/xhad/storagerag/internal/models"
	"github.com/xhad/storagerag/internal/types"
	"github.com/xhad/storagerag/pkg/store"
)

// hashEmbedder is a bag-of-words embedder: every word bumps one of
// models.VectorDim buckets.
type hashEmbedder struct {
	err error
}

func (e *hashEmbedder) vector(text string) []float32 {
	v := make([]float32, models.VectorDim)
	words := strings.FieldsFunc(strings.ToLower(text), func(r rune) bool { return !unicode.IsLetter(r) })
	for _, w := range words {
		h := fnv.New32a()
		h.Write([]byte(w))
		v[h.Sum32()%uint32(models.VectorDim)]++
	}
	return v
}

func (e *hashEmbedder) EmbedDocuments(_ context.Context, texts []string) ([][]float32, error) {
	if e.err != nil {
		return nil, e.err
	}
	out := make([][]float32, len(texts))
	for i, t := range texts {
		out[i] = e.vector(t)
	}
	return out, nil
}

func (e *hashEmbedder) EmbedQuery(_ context.Context, text string) ([]float32, error) {
	if e.err != nil {
		return nil, e.err
	}
	return e.vector(text), nil
}

type fakeGenerator struct {
	mu     sync.Mutex
	calls  int
	system string
	user   string
	reply  string
	err    error
}

func (g *fakeGenerator) Generate(_ context.Context, system, user string) (string, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.calls++
	g.system = system
	g.user = user
	return g.reply, g.err
}

type failingExtractor struct{}

func (failingExtractor) Extract(context.Context, string, []byte) (string, error) {
	return "", errors.New("not a valid pdf")
}

// flakyStore counts collection creation and fails upserts while failUpsert is set.
type flakyStore struct {
	*store.Memory
	failUpsert bool
	creates    int
}

func (s *flakyStore) CreateCollection(ctx context.Context, name string, dim int, metric types.Distance) error {
	s.creates++
	return s.Memory.CreateCollection(ctx, name, dim, metric)
}

func (s *flakyStore) Upsert(ctx context.Context, collection string, records []models.Record) error {
	if s.failUpsert {
		return errors.New("qdrant unavailable")
	}
	return s.Memory.Upsert(ctx, collection, records)
}
