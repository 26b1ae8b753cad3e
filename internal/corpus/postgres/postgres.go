// Package postgres implements the corpus store on PostgreSQL with pgvector.
// Face images live in a bytea column next to their embedding, so similarity
// search can run in the database instead of an in-memory index.
package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	_ "github.com/lib/pq"

	"github.com/kozaktomas/face-registry/internal/config"
)

// Pool manages a PostgreSQL connection pool.
type Pool struct {
	db *sql.DB
}

// NewPool creates a new PostgreSQL connection pool.
func NewPool(cfg *config.DatabaseConfig) (*Pool, error) {
	if cfg.URL == "" {
		return nil, errors.New("database URL is required")
	}

	db, err := sql.Open("postgres", cfg.URL)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// Configure connection pool.
	db.SetMaxOpenConns(cfg.MaxOpenConns)
	db.SetMaxIdleConns(cfg.MaxIdleConns)
	db.SetConnMaxLifetime(time.Hour)
	db.SetConnMaxIdleTime(10 * time.Minute)

	// Verify connection.
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	return &Pool{db: db}, nil
}

// DB returns the underlying sql.DB for direct access.
func (p *Pool) DB() *sql.DB {
	return p.db
}

// Close closes the connection pool.
func (p *Pool) Close() error {
	if p.db != nil {
		if err := p.db.Close(); err != nil {
			return fmt.Errorf("closing database connection: %w", err)
		}
	}
	return nil
}

// QueryRow executes a query that returns a single row.
func (p *Pool) QueryRow(ctx context.Context, query string, args ...any) *sql.Row {
	return p.db.QueryRowContext(ctx, query, args...)
}

// Query executes a query that returns rows.
func (p *Pool) Query(ctx context.Context, query string, args ...any) (*sql.Rows, error) {
	rows, err := p.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("executing query: %w", err)
	}
	return rows, nil
}

// Exec executes a query that doesn't return rows.
func (p *Pool) Exec(ctx context.Context, query string, args ...any) (sql.Result, error) {
	result, err := p.db.ExecContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("executing statement: %w", err)
	}
	return result, nil
}

// BeginTx starts a transaction.
func (p *Pool) BeginTx(ctx context.Context, opts *sql.TxOptions) (*sql.Tx, error) {
	tx, err := p.db.BeginTx(ctx, opts)
	if err != nil {
		return nil, fmt.Errorf("beginning transaction: %w", err)
	}
	return tx, nil
}

// Migrate creates the schema if it does not exist yet. embeddingDim is the
// pgvector dimension of the face embedding column.
func (p *Pool) Migrate(ctx context.Context, embeddingDim int) error {
	if _, err := p.Exec(ctx, "CREATE EXTENSION IF NOT EXISTS vector"); err != nil {
		return fmt.Errorf("failed to create vector extension: %w", err)
	}

	createFacesTable := fmt.Sprintf(`
		CREATE TABLE IF NOT EXISTS faces (
			entry_id     VARCHAR(255) NOT NULL,
			group_id     VARCHAR(255) NOT NULL,
			person_id    VARCHAR(255) NOT NULL,
			image        BYTEA NOT NULL,
			size         BIGINT NOT NULL,
			embedding    vector(%d),
			created_at   TIMESTAMP WITH TIME ZONE DEFAULT NOW(),
			PRIMARY KEY (group_id, person_id, entry_id)
		)
	`, embeddingDim)

	if _, err := p.Exec(ctx, createFacesTable); err != nil {
		return fmt.Errorf("failed to create faces table: %w", err)
	}

	if _, err := p.Exec(ctx, `
		CREATE INDEX IF NOT EXISTS faces_group_person_idx
		ON faces (group_id, person_id, created_at)
	`); err != nil {
		return fmt.Errorf("failed to create faces index: %w", err)
	}

	if _, err := p.Exec(ctx, `
		CREATE TABLE IF NOT EXISTS person_metadata (
			group_id     VARCHAR(255) NOT NULL,
			person_id    VARCHAR(255) NOT NULL,
			metadata     JSONB NOT NULL,
			created_at   TIMESTAMP WITH TIME ZONE DEFAULT NOW(),
			last_updated TIMESTAMP WITH TIME ZONE DEFAULT NOW(),
			PRIMARY KEY (group_id, person_id)
		)
	`); err != nil {
		return fmt.Errorf("failed to create person_metadata table: %w", err)
	}

	return nil
}
