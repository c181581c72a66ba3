package duckdb

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
)

// ErrInMemoryStore is returned when snapshotting an in-memory run index.
var ErrInMemoryStore = errors.New("duckdb: in-memory store cannot be snapshotted")

const snapshotAlias = "probe_snapshot"

// DBPath returns the run index path. Empty means in-memory.
func (s *Store) DBPath() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.dbPath
}

// SnapshotTo writes a fresh database file at dstPath holding every table of
// the run index. Writers are blocked while the copy runs.
func (s *Store) SnapshotTo(dstPath string) error {
	if s.DBPath() == "" {
		return ErrInMemoryStore
	}
	if err := os.MkdirAll(filepath.Dir(dstPath), 0755); err != nil {
		return fmt.Errorf("duckdb: snapshot dir: %w", err)
	}
	if err := os.Remove(dstPath); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("duckdb: replace snapshot: %w", err)
	}

	ctx, cancel := s.queryCtx(context.Background())
	defer cancel()

	s.mu.Lock()
	defer s.mu.Unlock()

	conn, err := s.db.Conn(ctx)
	if err != nil {
		return fmt.Errorf("duckdb: snapshot conn: %w", err)
	}
	defer conn.Close()

	var source string
	if err := conn.QueryRowContext(ctx, "SELECT current_database()").Scan(&source); err != nil {
		return fmt.Errorf("duckdb: snapshot source: %w", err)
	}
	if _, err := conn.ExecContext(ctx, "ATTACH "+quoteLiteral(dstPath)+" AS "+snapshotAlias); err != nil {
		return fmt.Errorf("duckdb: attach snapshot: %w", err)
	}
	_, copyErr := conn.ExecContext(ctx, "COPY FROM DATABASE "+quoteIdent(source)+" TO "+snapshotAlias)
	_, detachErr := conn.ExecContext(ctx, "DETACH "+snapshotAlias)
	if copyErr != nil {
		return fmt.Errorf("duckdb: copy snapshot: %w", copyErr)
	}
	if detachErr != nil {
		return fmt.Errorf("duckdb: detach snapshot: %w", detachErr)
	}
	return nil
}

func quoteLiteral(s string) string {
	return "'" + strings.ReplaceAll(s, "'", "''") + "'"
}

func quoteIdent(s string) string {
	return `"` + strings.ReplaceAll(s, `"`, `""`) + `"`
}
