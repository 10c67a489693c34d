package store

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"unicode/utf8"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/pgvector/pgvector-go"
	"github.com/xhad/storagerag/internal/models"
	"github.com/xhad/storagerag/internal/types"
)

type PGVectorConfig struct {
	ConnString string
	// TablePrefix is prepended to every collection table name.
	TablePrefix string
}

// PGVector stores each collection in its own Postgres table with a
// pgvector column and an HNSW cosine index.
type PGVector struct {
	config PGVectorConfig
	pool   *pgxpool.Pool
}

func NewPGVector(ctx context.Context, config PGVectorConfig) (*PGVector, error) {
	pool, err := pgxpool.New(ctx, config.ConnString)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	vs := &PGVector{
		config: config,
		pool:   pool,
	}

	if err := vs.initialize(ctx); err != nil {
		pool.Close()
		return nil, err
	}

	return vs, nil
}

func (vs *PGVector) initialize(ctx context.Context) error {
	// Enable pgvector extension
	if _, err := vs.pool.Exec(ctx, "CREATE EXTENSION IF NOT EXISTS vector"); err != nil {
		return fmt.Errorf("failed to create vector extension: %w", err)
	}
	return nil
}

const indexSuffix = "_embedding_idx"

// Postgres truncates identifiers to 63 bytes, and the index name is the
// table name plus indexSuffix.
const maxTableName = 63 - len(indexSuffix)

func (vs *PGVector) table(collection string) string {
	return tableName(vs.config.TablePrefix + collection)
}

// tableName keeps short names as they are. Longer ones are cut on a rune
// boundary and tagged with a hash of the full name, so two collections never
// share a table.
func tableName(name string) string {
	if len(name) <= maxTableName {
		return name
	}
	sum := sha256.Sum256([]byte(name))
	tag := "_" + hex.EncodeToString(sum[:6])
	n := maxTableName - len(tag)
	for n > 0 && !utf8.RuneStart(name[n]) {
		n--
	}
	return name[:n] + tag
}

func (vs *PGVector) CollectionExists(ctx context.Context, name string) (bool, error) {
	var exists bool
	ident := pgx.Identifier{vs.table(name)}.Sanitize()
	if err := vs.pool.QueryRow(ctx, "SELECT to_regclass($1) IS NOT NULL", ident).Scan(&exists); err != nil {
		return false, fmt.Errorf("failed to check collection %s: %w", name, err)
	}
	return exists, nil
}

func (vs *PGVector) CreateCollection(ctx context.Context, name string, dim int, metric types.Distance) error {
	if metric != types.Cosine {
		return fmt.Errorf("unsupported distance metric %q", metric)
	}

	table := vs.table(name)
	createTable := fmt.Sprintf(`
		CREATE TABLE IF NOT EXISTS %s (
			id TEXT PRIMARY KEY,
			source TEXT NOT NULL,
			chunk_id TEXT NOT NULL,
			chunk_index INTEGER NOT NULL,
			content TEXT NOT NULL,
			embedding vector(%d) NOT NULL
		)`, pgx.Identifier{table}.Sanitize(), dim)

	if _, err := vs.pool.Exec(ctx, createTable); err != nil {
		return fmt.Errorf("failed to create table: %w", err)
	}

	createIndex := fmt.Sprintf(`
		CREATE INDEX IF NOT EXISTS %s
		ON %s
		USING hnsw (embedding vector_cosine_ops)`,
		pgx.Identifier{table + indexSuffix}.Sanitize(), pgx.Identifier{table}.Sanitize())

	if _, err := vs.pool.Exec(ctx, createIndex); err != nil {
		return fmt.Errorf("failed to create index: %w", err)
	}

	return nil
}

// Upsert writes the batch in a single transaction.
func (vs *PGVector) Upsert(ctx context.Context, collection string, records []models.Record) error {
	if len(records) == 0 {
		return nil
	}

	tx, err := vs.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	stmt := fmt.Sprintf(`
		INSERT INTO %s (id, source, chunk_id, chunk_index, content, embedding)
		VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (id) DO UPDATE SET
			content = EXCLUDED.content,
			embedding = EXCLUDED.embedding`,
		pgx.Identifier{vs.table(collection)}.Sanitize())

	batch := &pgx.Batch{}
	for _, r := range records {
		batch.Queue(stmt,
			r.ID,
			sanitizeUTF8(r.Chunk.Source),
			r.Chunk.ChunkID,
			r.Chunk.Index,
			sanitizeUTF8(r.Chunk.Content),
			pgvector.NewVector(r.Vector),
		)
	}

	if err := tx.SendBatch(ctx, batch).Close(); err != nil {
		return fmt.Errorf("failed to insert chunks: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}

	return nil
}

func (vs *PGVector) Search(ctx context.Context, collection string, vector []float32, k int) ([]models.ScoredChunk, error) {
	query := fmt.Sprintf(`
		SELECT source, chunk_id, chunk_index, content, 1 - (embedding <=> $1) AS score
		FROM %s
		ORDER BY embedding <=> $1
		LIMIT $2`,
		pgx.Identifier{vs.table(collection)}.Sanitize())

	rows, err := vs.pool.Query(ctx, query, pgvector.NewVector(vector), k)
	if err != nil {
		return nil, fmt.Errorf("failed to query chunks: %w", err)
	}
	defer rows.Close()

	var hits []models.ScoredChunk
	for rows.Next() {
		var hit models.ScoredChunk
		if err := rows.Scan(
			&hit.Chunk.Source,
			&hit.Chunk.ChunkID,
			&hit.Chunk.Index,
			&hit.Chunk.Content,
			&hit.Score,
		); err != nil {
			return nil, fmt.Errorf("failed to scan row: %w", err)
		}
		hits = append(hits, hit)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to read rows: %w", err)
	}

	return hits, nil
}

func (vs *PGVector) Close() error {
	if vs.pool != nil {
		vs.pool.Close()
	}
	return nil
}

// Postgres rejects invalid UTF-8 in TEXT columns.
func sanitizeUTF8(s string) string {
	if !utf8.ValidString(s) {
		v := make([]rune, 0, len(s))
		for i, r := range s {
			if r == utf8.RuneError {
				_, size := utf8.DecodeRuneInString(s[i:])
				if size == 1 {
					continue
				}
			}
			v = append(v, r)
		}
		return string(v)
	}
	return s
}

var _ types.VectorStore = (*PGVector)(nil)
