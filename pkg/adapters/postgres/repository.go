// Package postgres provides the PostgreSQL task state repository.
package postgres

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/aretw0/espalier/pkg/adapters/sqlstore"

	_ "github.com/lib/pq"
)

// Dialect is the PostgreSQL flavour of the task_states queries.
var Dialect = sqlstore.Dialect{
	Name:          "postgres",
	Placeholder:   sqlstore.Dollar,
	TimestampType: "TIMESTAMPTZ",
}

// Open connects to the database at databaseURL and runs migrations.
func Open(ctx context.Context, databaseURL string, opts ...sqlstore.Option) (*sqlstore.Repository, error) {
	db, err := sql.Open("postgres", databaseURL)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to PostgreSQL database: %w", err)
	}
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	repo := sqlstore.New(db, Dialect, opts...)
	if err := repo.Migrate(ctx); err != nil {
		db.Close()
		return nil, err
	}
	return repo, nil
}
