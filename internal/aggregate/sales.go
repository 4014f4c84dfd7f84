package aggregate

// Sales overview rollups: order rows grouped by calendar bucket and the
// website/store dimension, with counts, distinct-customer approximations,
// summed monetary fields, and status-bucketed counts and sums.
//
// Timestamp and money parsing is tolerant by construction: the dialect's
// DateExpr/SafeNumeric yield NULL for unparsable values, so a bad row lands
// in the NULL bucket instead of failing the whole build.

type salesGrain int

const (
	grainDaily salesGrain = iota
	grainHourly
	grainMonthly
)

func salesOverviewDailyQuery(in BuildInput) string   { return salesOverviewQuery(in, grainDaily) }
func salesOverviewHourlyQuery(in BuildInput) string  { return salesOverviewQuery(in, grainHourly) }
func salesOverviewMonthlyQuery(in BuildInput) string { return salesOverviewQuery(in, grainMonthly) }

func salesOverviewQuery(in BuildInput, grain salesGrain) string {
	b := newQB(in)
	created := b.col("created_at")

	var bucket []string
	switch grain {
	case grainHourly:
		bucket = []string{
			as(b.d.DateExpr(created), b.col("order_date")),
			as(b.d.HourExpr(created), b.col("order_hour")),
		}
	case grainMonthly:
		bucket = []string{
			as(b.d.MonthExpr(created), b.col("order_month")),
		}
	default:
		bucket = []string{
			as(b.d.DateExpr(created), b.col("order_date")),
		}
	}

	status := b.col("status")
	grand := b.num("grand_total")

	exprs := append([]string{}, bucket...)
	exprs = append(exprs,
		b.col("website_id"),
		b.col("store_id"),
		as("COUNT(*)", b.col("total_orders")),
		as(b.d.ApproxCountDistinct(b.col("customer_email")), b.col("unique_customers")),
		as("SUM("+grand+")", b.col("total_revenue")),
		as("SUM("+b.num("subtotal")+")", b.col("total_subtotal")),
		as("SUM("+b.num("tax_amount")+")", b.col("total_tax")),
		as("SUM("+b.num("discount_amount")+")", b.col("total_discount")),
		as("SUM("+b.num("shipping_amount")+")", b.col("total_shipping")),
		as("SUM("+b.num("total_qty_ordered")+")", b.col("total_qty_ordered")),
		as("AVG("+grand+")", b.col("avg_order_value")),
		as(b.countWhere(status+" = "+b.str("complete")), b.col("completed_orders")),
		as(b.countWhere(status+" = "+b.str("processing")), b.col("processing_orders")),
		as(b.countWhere(status+" = "+b.str("pending")), b.col("pending_orders")),
		as(b.countWhere(status+" = "+b.str("canceled")), b.col("canceled_orders")),
		as(b.countWhere(status+" = "+b.str("closed")), b.col("refunded_orders")),
		as(b.sumWhere(status+" = "+b.str("canceled"), grand), b.col("canceled_revenue")),
		as(b.sumWhere(status+" = "+b.str("closed"), grand), b.col("refunded_revenue")),
	)

	groupBy := make([]string, 0, 4)
	switch grain {
	case grainHourly:
		groupBy = append(groupBy, b.d.DateExpr(created), b.d.HourExpr(created))
	case grainMonthly:
		groupBy = append(groupBy, b.d.MonthExpr(created))
	default:
		groupBy = append(groupBy, b.d.DateExpr(created))
	}
	groupBy = append(groupBy, b.col("website_id"), b.col("store_id"))

	return selectStmt(exprs, b.table("orders"), nil, groupBy)
}
