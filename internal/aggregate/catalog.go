package aggregate

import (
	"fmt"

	"aggregator/internal/engine"
	"aggregator/internal/sampler"
)

// BuildInput parameterizes query generation for one kind.
type BuildInput struct {
	// Dataset is the target namespace (BigQuery dataset, SQL schema, or
	// SQLite name prefix). It is interpolated only through the dialect's
	// identifier quoting.
	Dataset string

	// Dialect renders backend-specific fragments.
	Dialect engine.Dialect

	// Columns are the synthesized extension columns. Only the flattened
	// orders kind consumes them; other kinds ignore the field.
	Columns []sampler.ExtensionColumn
}

// Entry describes one catalog member.
type Entry struct {
	// Target is the physical object the kind writes into.
	Target string

	// Materialized marks kinds backed by a true materialized view on
	// engines that have them. Non-materialized kinds are fully recomputed
	// replace-tables everywhere.
	Materialized bool

	// NeedsExtensionColumns marks the one kind whose definition depends on
	// sampled dynamic keys.
	NeedsExtensionColumns bool

	// query produces the inner SELECT; the catalog wraps it in the
	// dialect's replace-object statement.
	query func(in BuildInput) string
}

// catalogOrder fixes the iteration order for batch mode. The flattened
// views come last so the rollups are never blocked on sampling.
var catalogOrder = []Kind{
	KindSalesOverview,
	KindSalesOverviewHourly,
	KindSalesOverviewMonthly,
	KindCustomerMetrics,
	KindProductPerformance,
	KindSEOPerformance,
	KindSalesItemsView,
	KindProductsFlattened,
	KindOrdersFlattened,
}

var catalog = map[Kind]Entry{
	KindSalesOverview:        {Target: "mv_agg_sales_overview_daily", query: salesOverviewDailyQuery},
	KindSalesOverviewHourly:  {Target: "mv_agg_sales_overview_hourly", query: salesOverviewHourlyQuery},
	KindSalesOverviewMonthly: {Target: "mv_agg_sales_overview_monthly", query: salesOverviewMonthlyQuery},
	KindCustomerMetrics:      {Target: "mv_agg_customer_metrics", query: customerMetricsQuery},
	KindProductPerformance:   {Target: "mv_agg_product_performance", query: productPerformanceQuery},
	KindSEOPerformance:       {Target: "mv_agg_seo_performance", query: seoPerformanceQuery},
	KindSalesItemsView:       {Target: "mv_sales_items", Materialized: true, query: salesItemsQuery},
	KindProductsFlattened:    {Target: "mv_products_flattened", Materialized: true, query: productsFlattenedQuery},
	KindOrdersFlattened:      {Target: "mv_orders_flattened", Materialized: true, NeedsExtensionColumns: true, query: ordersFlattenedQuery},
}

func lookup(k Kind) (Entry, bool) {
	e, ok := catalog[k]
	return e, ok
}

// Kinds returns every non-meta kind in catalog order. KindAll expands to
// exactly this list.
func Kinds() []Kind {
	out := make([]Kind, len(catalogOrder))
	copy(out, catalogOrder)
	return out
}

// Lookup exposes catalog entries to callers that need target names or
// materialization flags (the refresher, existence checks, tests).
func Lookup(k Kind) (Entry, bool) { return lookup(k) }

// BuildQuery generates the full "replace target with the result of this
// query" statement for a kind.
//
// The builders themselves never fail; re-running the returned statement
// against the same dataset leaves the target in the same logical state.
//
// Errors:
//   - Unknown kind (including KindAll, which callers must expand first).
func BuildQuery(k Kind, in BuildInput) (string, error) {
	e, ok := lookup(k)
	if !ok {
		return "", fmt.Errorf("unknown aggregation kind %q", k)
	}

	target := in.Dialect.TableRef(in.Dataset, e.Target)
	q := e.query(in)

	if e.Materialized && in.Dialect.SupportsMaterializedViews() {
		return in.Dialect.CreateOrReplaceMaterializedViewAs(target, q), nil
	}
	return in.Dialect.CreateOrReplaceTableAs(target, q), nil
}
