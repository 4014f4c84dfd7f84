package aggregate

import (
	"context"
	"fmt"

	"aggregator/internal/engine"
)

// RefreshError marks a failed materialized-view refresh. Freshness is
// best-effort: callers log these and continue, they never convert an
// otherwise-successful build into a failure.
type RefreshError struct {
	Kind Kind
	View string
	Err  error
}

func (e *RefreshError) Error() string {
	return fmt.Sprintf("refresh %s (%s): %v", e.View, e.Kind, e.Err)
}

func (e *RefreshError) Unwrap() error { return e.Err }

// Refresher triggers explicit refreshes for materialized kinds.
type Refresher struct {
	Engine engine.Engine
}

// Refresh asks the engine to refresh the kind's view now.
//
// Edge cases:
//   - Non-materialized kinds and engines without materialized views are a
//     no-op: there is nothing to refresh, the replace-table build already
//     wrote current data.
//
// Errors:
//   - Always a *RefreshError wrapping the engine failure, so callers can
//     make the downgrade-to-warning decision explicitly.
func (r *Refresher) Refresh(ctx context.Context, dataset string, kind Kind) error {
	entry, ok := lookup(kind)
	if !ok || !entry.Materialized {
		return nil
	}
	if !r.Engine.Dialect().SupportsMaterializedViews() {
		return nil
	}

	if err := r.Engine.RefreshMaterializedView(ctx, dataset, entry.Target); err != nil {
		return &RefreshError{Kind: kind, View: entry.Target, Err: err}
	}
	return nil
}
