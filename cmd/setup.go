package cmd

import (
	"context"
	"fmt"

	"github.com/kozaktomas/face-registry/internal/config"
	"github.com/kozaktomas/face-registry/internal/corpus"
	"github.com/kozaktomas/face-registry/internal/corpus/fs"
	"github.com/kozaktomas/face-registry/internal/corpus/postgres"
	"github.com/kozaktomas/face-registry/internal/index"
	"github.com/kozaktomas/face-registry/internal/ingest"
	"github.com/kozaktomas/face-registry/internal/recognizer"
	"github.com/kozaktomas/face-registry/internal/registry"
)

// buildStore selects the corpus backend: PostgreSQL when DATABASE_URL is set,
// the filesystem layout under the data directory otherwise. The returned
// cleanup function releases backend resources.
func buildStore(cfg *config.Config) (corpus.Store, func(), error) {
	if cfg.Database.URL != "" {
		pool, err := postgres.NewPool(&cfg.Database)
		if err != nil {
			return nil, nil, fmt.Errorf("failed to connect to PostgreSQL: %w", err)
		}
		if err := pool.Migrate(context.Background(), cfg.Database.EmbeddingDim); err != nil {
			pool.Close()
			return nil, nil, fmt.Errorf("failed to run migrations: %w", err)
		}
		fmt.Println("Using PostgreSQL backend")
		return postgres.NewStore(pool), func() { pool.Close() }, nil
	}

	store, err := fs.New(cfg.Corpus.DataDir)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to open data directory: %w", err)
	}
	fmt.Printf("Using filesystem backend at %s\n", cfg.Corpus.DataDir)
	return store, func() {}, nil
}

// buildOrchestrator wires the ingestion pipeline: the registry, the external
// detection service client and the local HNSW matcher on top of it.
func buildOrchestrator(cfg *config.Config, store corpus.Store) (*registry.Registry, *ingest.Orchestrator) {
	reg := registry.New(store)
	client := recognizer.NewClient(cfg.Recognizer.URL)
	matcher := recognizer.NewLocalMatcher(client, index.New())
	return reg, ingest.New(reg, matcher)
}
