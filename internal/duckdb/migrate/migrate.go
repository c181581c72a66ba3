package migrate

import (
	"cmp"
	"context"
	"database/sql"
	"embed"
	"fmt"
	"io/fs"
	"slices"
	"strconv"
	"strings"
)

//go:embed migrations/*.sql
var migrations embed.FS

// Runner applies the run index schema migrations.
type Runner struct{ db *sql.DB }

// NewRunner creates a migration runner for the given database connection.
func NewRunner(db *sql.DB) *Runner {
	return &Runner{db: db}
}

type migration struct {
	version int
	name    string
	sql     string
}

func loadMigrations() ([]migration, error) {
	entries, err := fs.ReadDir(migrations, "migrations")
	if err != nil {
		return nil, fmt.Errorf("migrate: read embedded: %w", err)
	}

	var migs []migration
	for _, e := range entries {
		if e.IsDir() || !strings.HasSuffix(e.Name(), ".sql") {
			continue
		}
		parts := strings.SplitN(e.Name(), "_", 2)
		if len(parts) < 2 {
			continue
		}
		ver, err := strconv.Atoi(parts[0])
		if err != nil {
			return nil, fmt.Errorf("migrate: version of %s: %w", e.Name(), err)
		}
		data, err := migrations.ReadFile("migrations/" + e.Name())
		if err != nil {
			return nil, fmt.Errorf("migrate: read %s: %w", e.Name(), err)
		}
		migs = append(migs, migration{version: ver, name: e.Name(), sql: string(data)})
	}

	slices.SortFunc(migs, func(a, b migration) int { return cmp.Compare(a.version, b.version) })
	return migs, nil
}

func (r *Runner) bootstrap(ctx context.Context) error {
	_, err := r.db.ExecContext(ctx, `CREATE TABLE IF NOT EXISTS schema_migrations (
		version    INTEGER PRIMARY KEY,
		name       VARCHAR NOT NULL,
		applied_at TIMESTAMP DEFAULT current_timestamp
	)`)
	return err
}

func (r *Runner) appliedVersion(ctx context.Context) (int, error) {
	var v sql.NullInt64
	err := r.db.QueryRowContext(ctx, "SELECT MAX(version) FROM schema_migrations").Scan(&v)
	if err != nil {
		return 0, err
	}
	if !v.Valid {
		return 0, nil
	}
	return int(v.Int64), nil
}

// Run applies pending migrations in version order, each in its own
// transaction, and records them in schema_migrations.
func (r *Runner) Run(ctx context.Context) error {
	if err := r.bootstrap(ctx); err != nil {
		return fmt.Errorf("migrate: bootstrap: %w", err)
	}

	migs, err := loadMigrations()
	if err != nil {
		return err
	}

	current, err := r.appliedVersion(ctx)
	if err != nil {
		return fmt.Errorf("migrate: applied version: %w", err)
	}

	for _, m := range migs {
		if m.version <= current {
			continue
		}
		tx, err := r.db.BeginTx(ctx, nil)
		if err != nil {
			return fmt.Errorf("migrate: begin %s: %w", m.name, err)
		}
		if _, err := tx.ExecContext(ctx, m.sql); err != nil {
			_ = tx.Rollback()
			return fmt.Errorf("migrate: apply %s: %w", m.name, err)
		}
		if _, err := tx.ExecContext(ctx, "INSERT INTO schema_migrations (version, name) VALUES (?, ?)", m.version, m.name); err != nil {
			_ = tx.Rollback()
			return fmt.Errorf("migrate: record %s: %w", m.name, err)
		}
		if err := tx.Commit(); err != nil {
			return fmt.Errorf("migrate: commit %s: %w", m.name, err)
		}
	}

	return nil
}

// Status reports the applied schema version and how many migrations are pending.
func (r *Runner) Status(ctx context.Context) (current int, pending int, err error) {
	if err = r.bootstrap(ctx); err != nil {
		return 0, 0, fmt.Errorf("migrate: bootstrap: %w", err)
	}

	current, err = r.appliedVersion(ctx)
	if err != nil {
		return 0, 0, fmt.Errorf("migrate: applied version: %w", err)
	}

	migs, err := loadMigrations()
	if err != nil {
		return 0, 0, err
	}

	for _, m := range migs {
		if m.version > current {
			pending++
		}
	}

	return current, pending, nil
}
