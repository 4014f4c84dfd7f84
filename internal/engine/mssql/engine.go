// Package mssql implements engine.Engine on Microsoft SQL Server.
//
// Like the SQLite backend it executes submitted batches in a goroutine and
// reports failures through the job's terminal metadata; SQL Server has no
// async statement-job API of its own.
package mssql

import (
	"context"
	"database/sql"
	"sync"

	_ "github.com/microsoft/go-mssqldb"

	"aggregator/internal/engine"
)

func init() {
	engine.Register("mssql", New, Dialect)
}

// Engine is a SQL Server-backed analytics engine.
type Engine struct {
	db *sql.DB
}

// New opens a connection pool for cfg.DSN.
func New(ctx context.Context, cfg engine.Config) (engine.Engine, error) {
	db, err := sql.Open("sqlserver", cfg.DSN)
	if err != nil {
		return nil, err
	}
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, err
	}
	return &Engine{db: db}, nil
}

// Close closes the pool.
func (e *Engine) Close() { _ = e.db.Close() }

// Dialect returns the T-SQL dialect.
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

// SubmitJob executes the batch in a goroutine.
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

// RefreshMaterializedView is a no-op: materialized kinds are replace-tables
// on this backend.
func (e *Engine) RefreshMaterializedView(ctx context.Context, dataset, view string) error {
	return nil
}

// TableExists consults INFORMATION_SCHEMA using the dataset as schema name.
func (e *Engine) TableExists(ctx context.Context, dataset, table string) (bool, error) {
	var n int
	err := e.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM INFORMATION_SCHEMA.TABLES WHERE TABLE_SCHEMA = @p1 AND TABLE_NAME = @p2`,
		dataset, table).Scan(&n)
	if err != nil {
		return false, err
	}
	return n > 0, nil
}
