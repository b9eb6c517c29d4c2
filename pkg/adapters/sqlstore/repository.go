// Package sqlstore implements ports.StateRepository on database/sql.
// The sqlite and postgres packages open a database with their driver and
// wrap it with New.
package sqlstore

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/aretw0/espalier/internal/logging"
	"github.com/aretw0/espalier/pkg/domain"
)

// Dialect holds what differs between SQL engines.
type Dialect struct {
	Name string

	// Placeholder returns the bind marker of the n-th argument (1-based).
	Placeholder func(n int) string

	// TimestampType is the column type of updated_at.
	TimestampType string
}

// Question is the "?" placeholder style (SQLite, MySQL).
func Question(int) string { return "?" }

// Dollar is the "$n" placeholder style (PostgreSQL).
func Dollar(n int) string { return fmt.Sprintf("$%d", n) }

type queries struct {
	create   string
	get      string
	upsert   string
	remove   string
	clear    string
	snapshot string
}

func buildQueries(d Dialect) queries {
	p := d.Placeholder
	return queries{
		create: fmt.Sprintf(`
CREATE TABLE IF NOT EXISTS task_states (
    instance_id TEXT NOT NULL,
    graph_id    TEXT NOT NULL,
    node_id     TEXT NOT NULL,
    state       INTEGER NOT NULL,
    updated_at  %s NOT NULL,
    PRIMARY KEY (instance_id, graph_id, node_id)
)`, d.TimestampType),
		get: fmt.Sprintf(`SELECT state FROM task_states WHERE instance_id = %s AND graph_id = %s AND node_id = %s`,
			p(1), p(2), p(3)),
		upsert: fmt.Sprintf(`
INSERT INTO task_states (instance_id, graph_id, node_id, state, updated_at)
VALUES (%s, %s, %s, %s, %s)
ON CONFLICT (instance_id, graph_id, node_id)
DO UPDATE SET state = EXCLUDED.state, updated_at = EXCLUDED.updated_at`,
			p(1), p(2), p(3), p(4), p(5)),
		remove: fmt.Sprintf(`DELETE FROM task_states WHERE instance_id = %s AND graph_id = %s AND node_id = %s`,
			p(1), p(2), p(3)),
		clear: fmt.Sprintf(`DELETE FROM task_states WHERE instance_id = %s`, p(1)),
		snapshot: fmt.Sprintf(`SELECT graph_id, node_id, state FROM task_states WHERE instance_id = %s`,
			p(1)),
	}
}

// Repository stores task states in the task_states table.
type Repository struct {
	db      *sql.DB
	dialect Dialect
	q       queries
	logger  *slog.Logger
}

// Option configures the Repository.
type Option func(*Repository)

// WithLogger sets the repository logger.
func WithLogger(logger *slog.Logger) Option {
	return func(r *Repository) {
		r.logger = logger
	}
}

// New wraps an open database. Call Migrate before first use.
func New(db *sql.DB, dialect Dialect, opts ...Option) *Repository {
	r := &Repository{
		db:      db,
		dialect: dialect,
		q:       buildQueries(dialect),
		logger:  logging.NewNop(),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Migrate creates the task_states table when missing.
func (r *Repository) Migrate(ctx context.Context) error {
	if _, err := r.db.ExecContext(ctx, r.q.create); err != nil {
		return fmt.Errorf("create task_states table: %w", err)
	}
	r.logger.InfoContext(ctx, "Task state table ready", "dialect", r.dialect.Name)
	return nil
}

// DB returns the underlying database.
func (r *Repository) DB() *sql.DB {
	return r.db
}

// Close closes the underlying database connection.
func (r *Repository) Close() error {
	return r.db.Close()
}

// Get returns the state of the node, or TaskStateUnknown when absent.
func (r *Repository) Get(ctx context.Context, instanceID string, node *domain.Node) (domain.TaskState, error) {
	var code int
	err := r.db.QueryRowContext(ctx, r.q.get, instanceID, node.GraphID(), node.ID).Scan(&code)
	if errors.Is(err, sql.ErrNoRows) {
		return domain.TaskStateUnknown, nil
	}
	if err != nil {
		return domain.TaskStateUnknown, fmt.Errorf("get task state: %w", err)
	}
	return domain.TaskStateOf(code), nil
}

// Put stores the state of the node.
func (r *Repository) Put(ctx context.Context, instanceID string, node *domain.Node, state domain.TaskState) error {
	_, err := r.db.ExecContext(ctx, r.q.upsert, instanceID, node.GraphID(), node.ID, int(state), time.Now().UTC())
	if err != nil {
		return fmt.Errorf("put task state: %w", err)
	}
	return nil
}

// Remove deletes the state of the node.
func (r *Repository) Remove(ctx context.Context, instanceID string, node *domain.Node) error {
	if _, err := r.db.ExecContext(ctx, r.q.remove, instanceID, node.GraphID(), node.ID); err != nil {
		return fmt.Errorf("remove task state: %w", err)
	}
	return nil
}

// Clear deletes every entry of the instance.
func (r *Repository) Clear(ctx context.Context, instanceID string) error {
	if _, err := r.db.ExecContext(ctx, r.q.clear, instanceID); err != nil {
		return fmt.Errorf("clear instance states: %w", err)
	}
	return nil
}

// Snapshot returns every entry of the instance keyed by "graphId:nodeId".
func (r *Repository) Snapshot(ctx context.Context, instanceID string) (map[string]domain.TaskState, error) {
	rows, err := r.db.QueryContext(ctx, r.q.snapshot, instanceID)
	if err != nil {
		return nil, fmt.Errorf("list task states: %w", err)
	}
	defer rows.Close()

	out := make(map[string]domain.TaskState)
	for rows.Next() {
		var graphID, nodeID string
		var code int
		if err := rows.Scan(&graphID, &nodeID, &code); err != nil {
			return nil, fmt.Errorf("scan task state: %w", err)
		}
		out[graphID+":"+nodeID] = domain.TaskStateOf(code)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate task states: %w", err)
	}
	return out, nil
}
