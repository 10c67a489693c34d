package store

import (
	"context"
	"database/sql"
	"encoding/binary"
	"fmt"
	"math"
	"strings"

	"github.com/xhad/storagerag/internal/models"
	"github.com/xhad/storagerag/internal/types"
	_ "modernc.org/sqlite"
)

const sqliteCatalog = `
CREATE TABLE IF NOT EXISTS rag_collections (
    name TEXT PRIMARY KEY,
    dim INTEGER NOT NULL,
    metric TEXT NOT NULL
);
`

// SQLite keeps collections in a single database file, one table per
// collection, and scores them by brute-force cosine similarity.
type SQLite struct {
	db        *sql.DB
	threshold float64
}

// NewSQLite opens (or creates) the database at path. ":memory:" is accepted.
func NewSQLite(ctx context.Context, path string, threshold float64) (*SQLite, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open sqlite database: %w", err)
	}
	// a single connection keeps ":memory:" databases shared and serialises writers
	db.SetMaxOpenConns(1)

	if _, err := db.ExecContext(ctx, sqliteCatalog); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to create collection catalog: %w", err)
	}
	return &SQLite{db: db, threshold: threshold}, nil
}

func quoteIdent(name string) string {
	return `"` + strings.ReplaceAll(name, `"`, `""`) + `"`
}

func (s *SQLite) CollectionExists(ctx context.Context, name string) (bool, error) {
	var n int
	err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM rag_collections WHERE name = ?`, name).Scan(&n)
	if err != nil {
		return false, fmt.Errorf("failed to check collection %s: %w", name, err)
	}
	return n > 0, nil
}

func (s *SQLite) CreateCollection(ctx context.Context, name string, dim int, metric types.Distance) error {
	if dim <= 0 {
		return fmt.Errorf("invalid dimension %d", dim)
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.ExecContext(ctx,
		`INSERT INTO rag_collections(name, dim, metric) VALUES(?, ?, ?) ON CONFLICT(name) DO NOTHING`,
		name, dim, string(metric)); err != nil {
		return fmt.Errorf("failed to register collection: %w", err)
	}

	createTable := fmt.Sprintf(`
		CREATE TABLE IF NOT EXISTS %s (
			id TEXT PRIMARY KEY,
			source TEXT NOT NULL,
			chunk_id TEXT NOT NULL,
			chunk_index INTEGER NOT NULL,
			content TEXT NOT NULL,
			embedding BLOB NOT NULL
		)`, quoteIdent(name))
	if _, err := tx.ExecContext(ctx, createTable); err != nil {
		return fmt.Errorf("failed to create table: %w", err)
	}

	return tx.Commit()
}

func (s *SQLite) dim(ctx context.Context, collection string) (int, error) {
	var dim int
	err := s.db.QueryRowContext(ctx, `SELECT dim FROM rag_collections WHERE name = ?`, collection).Scan(&dim)
	if err == sql.ErrNoRows {
		return 0, fmt.Errorf("collection %q not found", collection)
	}
	if err != nil {
		return 0, err
	}
	return dim, nil
}

// Upsert writes the batch in a single transaction.
func (s *SQLite) Upsert(ctx context.Context, collection string, records []models.Record) error {
	if len(records) == 0 {
		return nil
	}
	dim, err := s.dim(ctx, collection)
	if err != nil {
		return err
	}
	if err := checkDim(records, dim); err != nil {
		return err
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	stmt, err := tx.PrepareContext(ctx, fmt.Sprintf(`
		INSERT INTO %s(id, source, chunk_id, chunk_index, content, embedding)
		VALUES(?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET content = excluded.content, embedding = excluded.embedding`,
		quoteIdent(collection)))
	if err != nil {
		return err
	}
	defer stmt.Close()

	for _, r := range records {
		if _, err := stmt.ExecContext(ctx, r.ID, r.Chunk.Source, r.Chunk.ChunkID, r.Chunk.Index,
			r.Chunk.Content, encodeEmbedding(r.Vector)); err != nil {
			return fmt.Errorf("failed to insert chunk %d: %w", r.Chunk.Index, err)
		}
	}

	return tx.Commit()
}

func (s *SQLite) Search(ctx context.Context, collection string, vector []float32, k int) ([]models.ScoredChunk, error) {
	dim, err := s.dim(ctx, collection)
	if err != nil {
		return nil, err
	}
	if len(vector) != dim {
		return nil, fmt.Errorf("query dimension %d does not match collection dimension %d", len(vector), dim)
	}

	rows, err := s.db.QueryContext(ctx, fmt.Sprintf(
		`SELECT source, chunk_id, chunk_index, content, embedding FROM %s ORDER BY rowid`, quoteIdent(collection)))
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var hits []models.ScoredChunk
	for rows.Next() {
		var (
			c    models.Chunk
			blob []byte
		)
		if err := rows.Scan(&c.Source, &c.ChunkID, &c.Index, &c.Content, &blob); err != nil {
			return nil, err
		}
		emb, err := decodeEmbedding(blob)
		if err != nil {
			return nil, err
		}
		score := CosineSimilarity(vector, emb)
		if s.threshold != 0 && score < s.threshold {
			continue
		}
		hits = append(hits, models.ScoredChunk{Chunk: c, Score: score})
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	return topK(hits, k), nil
}

func (s *SQLite) Close() error {
	return s.db.Close()
}

// encodeEmbedding stores float32 values little-endian without a length prefix.
func encodeEmbedding(vec []float32) []byte {
	b := make([]byte, len(vec)*4)
	for i, v := range vec {
		binary.LittleEndian.PutUint32(b[i*4:], math.Float32bits(v))
	}
	return b
}

func decodeEmbedding(b []byte) ([]float32, error) {
	if len(b)%4 != 0 {
		return nil, fmt.Errorf("invalid embedding blob length %d", len(b))
	}
	vec := make([]float32, len(b)/4)
	for i := range vec {
		vec[i] = math.Float32frombits(binary.LittleEndian.Uint32(b[i*4:]))
	}
	return vec, nil
}

var _ types.VectorStore = (*SQLite)(nil)
