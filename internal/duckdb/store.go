// Package duckdb is the run index: a DuckDB database recording every run and
// the outcome of every dispatched row.
package duckdb

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	_ "github.com/duckdb/duckdb-go/v2"

	"github.com/tinytelemetry/probe/internal/duckdb/migrate"
)

// Store manages the DuckDB connection backing the run index.
type Store struct {
	db           *sql.DB
	mu           sync.RWMutex
	dbPath       string
	QueryTimeout time.Duration
}

// NewStore opens or creates the run index at dbPath and applies migrations.
// An empty dbPath opens an in-memory database. queryTimeout defaults to 30s.
func NewStore(dbPath string, queryTimeout ...time.Duration) (*Store, error) {
	dsn := ""
	if dbPath != "" {
		if err := os.MkdirAll(filepath.Dir(dbPath), 0755); err != nil {
			return nil, fmt.Errorf("duckdb: mkdir: %w", err)
		}
		dsn = dbPath
	}

	db, err := sql.Open("duckdb", dsn)
	if err != nil {
		return nil, fmt.Errorf("duckdb: open: %w", err)
	}

	qt := 30 * time.Second
	if len(queryTimeout) > 0 && queryTimeout[0] > 0 {
		qt = queryTimeout[0]
	}

	ctx, cancel := context.WithTimeout(context.Background(), qt)
	defer cancel()
	if err := migrate.NewRunner(db).Run(ctx); err != nil {
		db.Close()
		return nil, err
	}

	return &Store{
		db:           db,
		dbPath:       dbPath,
		QueryTimeout: qt,
	}, nil
}

// Close closes the database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// queryCtx bounds a store call by the configured query timeout.
func (s *Store) queryCtx(parent context.Context) (context.Context, context.CancelFunc) {
	if parent == nil {
		parent = context.Background()
	}
	return context.WithTimeout(parent, s.QueryTimeout)
}
