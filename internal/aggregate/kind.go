// Package aggregate defines the catalog of precomputed analytical tables
// and materialized views, generates their engine-executable definitions,
// and orchestrates building them through the analytics engine.
package aggregate

import "fmt"

// Kind names one member of the fixed aggregation catalog.
type Kind string

const (
	KindSalesOverview        Kind = "sales_overview"
	KindSalesOverviewHourly  Kind = "sales_overview_hourly"
	KindSalesOverviewMonthly Kind = "sales_overview_monthly"
	KindCustomerMetrics      Kind = "customer_metrics"
	KindProductPerformance   Kind = "product_performance"
	KindSEOPerformance       Kind = "seo_performance"
	KindSalesItemsView       Kind = "sales_items_view"
	KindProductsFlattened    Kind = "products_flattened_view"
	KindOrdersFlattened      Kind = "orders_flattened_view"

	// KindAll is the meta value that expands to every kind above, in
	// catalog order.
	KindAll Kind = "all"
)

// ParseKind validates a caller-supplied kind string.
//
// Errors:
//   - Empty string and unknown values are client errors; nothing is ever
//     submitted for them.
func ParseKind(s string) (Kind, error) {
	if s == "" {
		return "", fmt.Errorf("missing aggregation kind")
	}
	k := Kind(s)
	if k == KindAll {
		return k, nil
	}
	if _, ok := lookup(k); !ok {
		return "", fmt.Errorf("unknown aggregation kind %q", s)
	}
	return k, nil
}
