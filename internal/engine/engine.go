package engine

import (
	"context"
	"fmt"
	"sync"
)

// Config is the minimal configuration needed to open an analytics engine.
//
// When to use:
//   - Use Config when constructing an Engine via New.
//
// Edge cases:
//   - Kind must be non-empty and must match a registered backend kind.
//   - DSN is passed through to the backend factory; validation is backend-specific.
//   - ProjectID is only meaningful for backends that need one (BigQuery);
//     SQL backends ignore it.
type Config struct {
	Kind      string
	DSN       string
	ProjectID string
}

// JobState is the lifecycle state of an asynchronous statement job.
type JobState string

const (
	JobQueued    JobState = "queued"
	JobRunning   JobState = "running"
	JobSucceeded JobState = "succeeded"
	JobFailed    JobState = "failed"
)

// JobResult is the terminal metadata of a completed job.
//
// IMPORTANT: Err must carry the engine's embedded terminal error even when
// the submit/wait calls themselves returned no error. Some engines report a
// job as "done" while recording an internal failure (e.g. a malformed table
// reference inside the statement); callers must inspect Err, not just the
// wait call's error.
type JobResult struct {
	State JobState
	Err   error
}

// JobHandle is a submitted statement job that can be awaited.
type JobHandle interface {
	// ID returns the engine-side job identifier, if the backend has one.
	ID() string

	// Wait blocks until the job reaches a terminal state or ctx is done.
	// A non-nil error means the wait itself failed (including ctx timeout);
	// the returned JobResult is only meaningful when error is nil.
	Wait(ctx context.Context) (JobResult, error)
}

// Engine is a backend-agnostic interface to the external analytical engine.
//
// IMPORTANT: This interface is intentionally minimal and focused on the
// operations the aggregation pipeline needs. Each backend implements these
// semantics in its own idiomatic way (BigQuery async jobs, Postgres
// REFRESH MATERIALIZED VIEW, SQL Server indexed views, etc).
type Engine interface {
	// Close releases any backend resources (connections, clients, etc).
	// Treat Close as "call once" at process shutdown.
	Close()

	// Query runs a synchronous read and returns all rows as column→value maps.
	// Used by the schema sampler; not intended for large result sets.
	Query(ctx context.Context, sql string) ([]map[string]any, error)

	// SubmitJob submits statement text as an asynchronous job.
	SubmitJob(ctx context.Context, sql string) (JobHandle, error)

	// RefreshMaterializedView asks the engine to refresh a materialized view
	// now. Backends whose views are auto-maintained may make this a no-op.
	RefreshMaterializedView(ctx context.Context, dataset, view string) error

	// TableExists reports whether a table or view exists in the dataset.
	TableExists(ctx context.Context, dataset, table string) (bool, error)

	// Dialect returns the SQL dialect the engine executes.
	Dialect() Dialect
}

// ---- engine factories (mirrors the storage backend registry) ----

type factory func(ctx context.Context, cfg Config) (Engine, error)

var (
	mu        sync.RWMutex
	factories = map[string]factory{}
	dialects  = map[string]Dialect{}
)

// Register registers an engine backend under a kind (e.g. "bigquery",
// "postgres").
//
// When to use:
//   - Call Register from an init() function in a backend package.
//   - The `kind` string becomes the lookup key used by New.
//
// Panics:
//   - If kind is empty.
//   - If f is nil or d is nil.
//   - If kind is already registered. This is intentional to fail fast and
//     avoid ambiguous backend selection.
func Register(kind string, f factory, d Dialect) {
	mu.Lock()
	defer mu.Unlock()

	if kind == "" {
		panic("engine: Register called with empty kind")
	}
	if f == nil {
		panic("engine: Register called with nil factory")
	}
	if d == nil {
		panic("engine: Register called with nil dialect")
	}
	if _, exists := factories[kind]; exists {
		panic(fmt.Sprintf("engine: factory already registered for kind=%q", kind))
	}

	factories[kind] = f
	dialects[kind] = d
}

// New constructs an Engine using the registered backend factory.
//
// Errors:
//   - Returns an error if cfg.Kind is empty or unsupported.
//   - Returns whatever error the registered factory returns.
//
// Concurrency:
//   - Safe for concurrent use with Register. New takes a read lock while
//     selecting the factory.
func New(ctx context.Context, cfg Config) (Engine, error) {
	if cfg.Kind == "" {
		return nil, fmt.Errorf("engine: missing engine.Kind")
	}

	mu.RLock()
	f := factories[cfg.Kind]
	mu.RUnlock()

	if f == nil {
		return nil, fmt.Errorf("unsupported engine.kind=%s", cfg.Kind)
	}
	return f(ctx, cfg)
}

// DialectFor returns the registered dialect for a backend kind without
// opening a connection. Query builders use this for offline generation
// (and tests use it to check generated SQL without a database).
func DialectFor(kind string) (Dialect, error) {
	mu.RLock()
	d := dialects[kind]
	mu.RUnlock()

	if d == nil {
		return nil, fmt.Errorf("unsupported engine.kind=%s", kind)
	}
	return d, nil
}
