package aggregate

// Customer metrics: per (date, website) distinct customers split into
// account holders vs guests, plus revenue per distinct customer. The
// division is rendered through the dialect's SafeDivide so a bucket with
// zero distinct customers yields NULL, never an error.

func customerMetricsQuery(in BuildInput) string {
	b := newQB(in)
	created := b.col("created_at")
	email := b.col("customer_email")
	guest := b.col("customer_is_guest")

	revenue := "SUM(" + b.num("grand_total") + ")"
	distinctCustomers := b.d.ApproxCountDistinct(email)

	exprs := []string{
		as(b.d.DateExpr(created), b.col("order_date")),
		b.col("website_id"),
		as(distinctCustomers, b.col("unique_customers")),
		as(b.d.ApproxCountDistinct("CASE WHEN "+guest+" = 0 THEN "+email+" END"),
			b.col("registered_customers")),
		as(b.d.ApproxCountDistinct("CASE WHEN "+guest+" = 1 THEN "+email+" END"),
			b.col("guest_customers")),
		as("COUNT(*)", b.col("total_orders")),
		as(revenue, b.col("total_revenue")),
		as(b.d.SafeDivide(revenue, distinctCustomers), b.col("revenue_per_customer")),
	}

	groupBy := []string{b.d.DateExpr(created), b.col("website_id")}

	return selectStmt(exprs, b.table("orders"), nil, groupBy)
}
