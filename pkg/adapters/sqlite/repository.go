// Package sqlite provides the SQLite task state repository.
package sqlite

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/aretw0/espalier/pkg/adapters/sqlstore"

	_ "modernc.org/sqlite"
)

// Dialect is the SQLite flavour of the task_states queries.
var Dialect = sqlstore.Dialect{
	Name:          "sqlite",
	Placeholder:   sqlstore.Question,
	TimestampType: "DATETIME",
}

// Open opens the SQLite database at path and runs migrations.
func Open(ctx context.Context, path string, opts ...sqlstore.Option) (*sqlstore.Repository, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	if _, err := db.ExecContext(ctx, "PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("set WAL mode: %w", err)
	}
	if _, err := db.ExecContext(ctx, "PRAGMA busy_timeout = 5000"); err != nil {
		db.Close()
		return nil, fmt.Errorf("set busy timeout: %w", err)
	}

	repo := sqlstore.New(db, Dialect, opts...)
	if err := repo.Migrate(ctx); err != nil {
		db.Close()
		return nil, err
	}
	return repo, nil
}
