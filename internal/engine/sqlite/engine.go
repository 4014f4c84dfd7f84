// Package sqlite implements engine.Engine on SQLite.
//
// This backend exists for local development and tests: the whole pipeline
// can run against a database file (or :memory:) with no external services.
// Materialized kinds are built as plain tables because SQLite has no
// materialized views; the dialect advertises that and the refresher skips.
package sqlite

import (
	"context"
	"database/sql"
	"sync"

	_ "modernc.org/sqlite"

	"aggregator/internal/engine"
)

func init() {
	engine.Register("sqlite", New, Dialect)
}

// Engine is a SQLite-backed analytics engine.
type Engine struct {
	db *sql.DB
}

// New opens the database file named by cfg.DSN.
func New(ctx context.Context, cfg engine.Config) (engine.Engine, error) {
	db, err := sql.Open("sqlite", cfg.DSN)
	if err != nil {
		return nil, err
	}
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, err
	}
	return &Engine{db: db}, nil
}

// Close closes the database handle.
func (e *Engine) Close() { _ = e.db.Close() }

// Dialect returns the SQLite dialect.
func (e *Engine) Dialect() engine.Dialect { return Dialect }

// Query runs a synchronous read and materializes all rows.
func (e *Engine) Query(ctx context.Context, query string) ([]map[string]any, error) {
	rows, err := e.db.QueryContext(ctx, query)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	cols, err := rows.Columns()
	if err != nil {
		return nil, err
	}

	var out []map[string]any
	for rows.Next() {
		vals := make([]any, len(cols))
		ptrs := make([]any, len(cols))
		for i := range vals {
			ptrs[i] = &vals[i]
		}
		if err := rows.Scan(ptrs...); err != nil {
			return nil, err
		}
		m := make(map[string]any, len(cols))
		for i, c := range cols {
			// TEXT affinity frequently scans as []byte; normalize so the
			// sampler sees strings.
			if b, ok := vals[i].([]byte); ok {
				m[c] = string(b)
			} else {
				m[c] = vals[i]
			}
		}
		out = append(out, m)
	}
	return out, rows.Err()
}

// SubmitJob executes the (possibly multi-statement) batch in a goroutine.
func (e *Engine) SubmitJob(ctx context.Context, query string) (engine.JobHandle, error) {
	h := &jobHandle{done: make(chan struct{})}
	go func() {
		defer close(h.done)
		_, err := e.db.ExecContext(ctx, query)
		h.mu.Lock()
		h.err = err
		h.mu.Unlock()
	}()
	return h, nil
}

type jobHandle struct {
	done chan struct{}
	mu   sync.Mutex
	err  error
}

func (h *jobHandle) ID() string { return "" }

func (h *jobHandle) Wait(ctx context.Context) (engine.JobResult, error) {
	select {
	case <-ctx.Done():
		return engine.JobResult{}, ctx.Err()
	case <-h.done:
	}

	h.mu.Lock()
	err := h.err
	h.mu.Unlock()

	if err != nil {
		return engine.JobResult{State: engine.JobFailed, Err: err}, nil
	}
	return engine.JobResult{State: engine.JobSucceeded}, nil
}

// RefreshMaterializedView is a no-op: materialized kinds are plain tables
// here and are fully rebuilt on every run.
func (e *Engine) RefreshMaterializedView(ctx context.Context, dataset, view string) error {
	return nil
}

// TableExists consults sqlite_master using the prefixed physical name.
func (e *Engine) TableExists(ctx context.Context, dataset, table string) (bool, error) {
	name := table
	if dataset != "" {
		name = dataset + "_" + table
	}

	var n int
	err := e.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM sqlite_master WHERE type IN ('table', 'view') AND name = ?`,
		name).Scan(&n)
	if err != nil {
		return false, err
	}
	return n > 0, nil
}
