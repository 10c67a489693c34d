package models

// VectorDim is the embedding width every collection is created with.
const VectorDim = 384

// Document is an uploaded file. It is never persisted.
type Document struct {
	Filename string
	Data     []byte
}

// Chunk is one retrievable unit of a document.
type Chunk struct {
	Content string
	Source  string
	ChunkID string
	Index   int
}

// Record is a chunk paired with its embedding, ready for upsert.
type Record struct {
	ID     string
	Chunk  Chunk
	Vector []float32
}

// ScoredChunk is a search hit. Higher scores are more similar.
type ScoredChunk struct {
	Chunk Chunk
	Score float64
}

type IndexResult struct {
	CollectionName string `json:"collection_name"`
	ChunkCount     int    `json:"chunk_count"`
}

type Status struct {
	ActiveCollection string `json:"active_collection"`
	HasActiveIndex   bool   `json:"has_active_index"`
}
