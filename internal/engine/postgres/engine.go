// Package postgres implements engine.Engine on PostgreSQL.
//
// Postgres has no server-side async job API, so SubmitJob executes the
// statement in a goroutine and the handle's Wait observes the result. The
// per-job terminal metadata contract is preserved: an execution error is
// reported through JobResult.Err with a successful Wait, matching how the
// other backends surface engine-internal failures.
package postgres

import (
	"context"
	"sync"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"aggregator/internal/engine"
)

func init() {
	engine.Register("postgres", New, Dialect)
}

// Engine is a Postgres-backed analytics engine.
type Engine struct {
	pool *pgxpool.Pool
}

// New opens a pgx pool.
//
// The pool runs in simple protocol mode because generated DDL batches are
// multi-statement ("DROP ...; CREATE ... AS ...") and the extended protocol
// rejects more than one statement per Exec.
func New(ctx context.Context, cfg engine.Config) (engine.Engine, error) {
	pc, err := pgxpool.ParseConfig(cfg.DSN)
	if err != nil {
		return nil, err
	}
	pc.ConnConfig.DefaultQueryExecMode = pgx.QueryExecModeSimpleProtocol

	pool, err := pgxpool.NewWithConfig(ctx, pc)
	if err != nil {
		return nil, err
	}
	return &Engine{pool: pool}, nil
}

// Close closes the connection pool.
func (e *Engine) Close() { e.pool.Close() }

// Dialect returns the Postgres dialect.
func (e *Engine) Dialect() engine.Dialect { return Dialect }

// Query runs a synchronous read and materializes all rows.
func (e *Engine) Query(ctx context.Context, sql string) ([]map[string]any, error) {
	rows, err := e.pool.Query(ctx, sql)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	fields := rows.FieldDescriptions()
	var out []map[string]any
	for rows.Next() {
		vals, err := rows.Values()
		if err != nil {
			return nil, err
		}
		m := make(map[string]any, len(fields))
		for i, f := range fields {
			m[f.Name] = vals[i]
		}
		out = append(out, m)
	}
	return out, rows.Err()
}

// SubmitJob starts the statement in a goroutine.
func (e *Engine) SubmitJob(ctx context.Context, sql string) (engine.JobHandle, error) {
	h := &jobHandle{done: make(chan struct{})}
	go func() {
		defer close(h.done)
		_, err := e.pool.Exec(ctx, sql)
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

// RefreshMaterializedView issues REFRESH MATERIALIZED VIEW.
func (e *Engine) RefreshMaterializedView(ctx context.Context, dataset, view string) error {
	stmt := Dialect.RefreshMaterializedViewSQL(Dialect.TableRef(dataset, view))
	_, err := e.pool.Exec(ctx, stmt)
	return err
}

// TableExists consults the catalog for tables, views, and materialized views.
func (e *Engine) TableExists(ctx context.Context, dataset, table string) (bool, error) {
	const q = `
SELECT EXISTS (
  SELECT 1 FROM pg_catalog.pg_class c
  JOIN pg_catalog.pg_namespace n ON n.oid = c.relnamespace
  WHERE n.nspname = $1 AND c.relname = $2 AND c.relkind IN ('r', 'v', 'm')
)`
	var exists bool
	if err := e.pool.QueryRow(ctx, q, dataset, table).Scan(&exists); err != nil {
		return false, err
	}
	return exists, nil
}
