// Package store provides the vector-store backends: Qdrant (default),
// Postgres/pgvector, SQLite and in-memory.
package store

import (
	"context"
	"fmt"
	"time"

	"github.com/xhad/storagerag/internal/types"
)

type Config struct {
	Type           string
	URL            string
	APIKey         string
	DatabaseURL    string
	TablePrefix    string
	SQLitePath     string
	Timeout        time.Duration
	ScoreThreshold float64
}

func New(ctx context.Context, config Config) (types.VectorStore, error) {
	switch config.Type {
	case "qdrant", "":
		return NewQdrant(QdrantConfig{
			URL:            config.URL,
			APIKey:         config.APIKey,
			Timeout:        config.Timeout,
			ScoreThreshold: config.ScoreThreshold,
		})
	case "pgvector", "postgres":
		if config.DatabaseURL == "" {
			return nil, fmt.Errorf("pgvector store requires a database url")
		}
		return NewPGVector(ctx, PGVectorConfig{
			ConnString:  config.DatabaseURL,
			TablePrefix: config.TablePrefix,
		})
	case "sqlite":
		path := config.SQLitePath
		if path == "" {
			path = "storagerag.db"
		}
		return NewSQLite(ctx, path, config.ScoreThreshold)
	case "memory":
		return NewMemory(config.ScoreThreshold), nil
	default:
		return nil, fmt.Errorf("unknown vector store: %s", config.Type)
	}
}
