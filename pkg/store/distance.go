package store

import (
	"fmt"
	"math"
	"sort"

	"github.com/xhad/storagerag/internal/models"
)

// CosineSimilarity returns a value in [-1, 1]. Zero-magnitude or mismatched
// vectors score 0.
func CosineSimilarity(a, b []float32) float64 {
	if len(a) != len(b) || len(a) == 0 {
		return 0
	}

	var dot, na2, nb2 float64
	for i := range a {
		va := float64(a[i])
		vb := float64(b[i])
		dot += va * vb
		na2 += va * va
		nb2 += vb * vb
	}
	if na2 == 0 || nb2 == 0 {
		return 0
	}
	return dot / (math.Sqrt(na2) * math.Sqrt(nb2))
}

// topK sorts hits by descending score, keeping insertion order for ties,
// and truncates to k.
func topK(hits []models.ScoredChunk, k int) []models.ScoredChunk {
	sort.SliceStable(hits, func(i, j int) bool {
		return hits[i].Score > hits[j].Score
	})
	if k > 0 && k < len(hits) {
		hits = hits[:k]
	}
	return hits
}

func checkDim(records []models.Record, dim int) error {
	for _, r := range records {
		if len(r.Vector) != dim {
			return fmt.Errorf("vector dimension mismatch: got %d, collection expects %d", len(r.Vector), dim)
		}
	}
	return nil
}
