package store

import (
	"context"
	"fmt"
	"sync"

	"github.com/xhad/storagerag/internal/models"
	"github.com/xhad/storagerag/internal/types"
)

type memCollection struct {
	dim     int
	metric  types.Distance
	records []models.Record
	byID    map[string]int
}

// Memory is a process-local vector store using brute-force cosine similarity.
type Memory struct {
	mu          sync.RWMutex
	collections map[string]*memCollection
	threshold   float64
}

// NewMemory returns an empty store. Hits scoring below a non-zero threshold
// are dropped.
func NewMemory(threshold float64) *Memory {
	return &Memory{
		collections: make(map[string]*memCollection),
		threshold:   threshold,
	}
}

func (m *Memory) CollectionExists(_ context.Context, name string) (bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	_, ok := m.collections[name]
	return ok, nil
}

func (m *Memory) CreateCollection(_ context.Context, name string, dim int, metric types.Distance) error {
	if dim <= 0 {
		return fmt.Errorf("invalid dimension %d", dim)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.collections[name]; ok {
		return nil
	}
	m.collections[name] = &memCollection{dim: dim, metric: metric, byID: make(map[string]int)}
	return nil
}

// Upsert applies the whole batch or nothing.
func (m *Memory) Upsert(_ context.Context, collection string, records []models.Record) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	c, ok := m.collections[collection]
	if !ok {
		return fmt.Errorf("collection %q not found", collection)
	}
	if err := checkDim(records, c.dim); err != nil {
		return err
	}

	for _, r := range records {
		if i, ok := c.byID[r.ID]; ok {
			c.records[i] = r
			continue
		}
		c.byID[r.ID] = len(c.records)
		c.records = append(c.records, r)
	}
	return nil
}

func (m *Memory) Search(_ context.Context, collection string, vector []float32, k int) ([]models.ScoredChunk, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	c, ok := m.collections[collection]
	if !ok {
		return nil, fmt.Errorf("collection %q not found", collection)
	}
	if len(vector) != c.dim {
		return nil, fmt.Errorf("query dimension %d does not match collection dimension %d", len(vector), c.dim)
	}

	hits := make([]models.ScoredChunk, 0, len(c.records))
	for _, r := range c.records {
		score := CosineSimilarity(vector, r.Vector)
		if m.threshold != 0 && score < m.threshold {
			continue
		}
		hits = append(hits, models.ScoredChunk{Chunk: r.Chunk, Score: score})
	}
	return topK(hits, k), nil
}

// Len reports the number of records in a collection.
func (m *Memory) Len(collection string) int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if c, ok := m.collections[collection]; ok {
		return len(c.records)
	}
	return 0
}

func (m *Memory) Close() error { return nil }

var _ types.VectorStore = (*Memory)(nil)
