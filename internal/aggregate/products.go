package aggregate

// Product performance: each order's nested items array is exploded into one
// row per line item, then grouped by (date, website, SKU). Quantities and
// money fields come out of the JSON elements through tolerant casts.

func productPerformanceQuery(in BuildInput) string {
	b := newQB(in)

	const item = "item"
	created := "o." + b.col("created_at")
	website := "o." + b.col("website_id")

	elem := func(field string) string { return b.d.JSONElemScalar(item, field) }
	num := func(field string) string { return b.d.SafeNumeric(elem(field)) }

	sku := elem("sku")

	exprs := []string{
		as(b.d.DateExpr(created), b.col("order_date")),
		website,
		as(sku, b.col("sku")),
		as("MAX("+elem("name")+")", b.col("product_name")),
		as("SUM("+num("qty_ordered")+")", b.col("qty_ordered")),
		as("SUM("+num("qty_invoiced")+")", b.col("qty_invoiced")),
		as("SUM("+num("qty_shipped")+")", b.col("qty_shipped")),
		as("SUM("+num("qty_canceled")+")", b.col("qty_canceled")),
		as("SUM("+num("qty_refunded")+")", b.col("qty_refunded")),
		as("SUM("+num("row_total")+")", b.col("revenue")),
		as("SUM("+num("discount_amount")+")", b.col("discount")),
		as("SUM("+num("tax_amount")+")", b.col("tax")),
		as("MIN("+num("price")+")", b.col("min_price")),
		as("MAX("+num("price")+")", b.col("max_price")),
		as("AVG("+num("price")+")", b.col("avg_price")),
		as("COUNT(DISTINCT o."+b.col("increment_id")+")", b.col("distinct_orders")),
	}

	from := b.table("orders") + " AS o"
	join := b.d.JSONArrayJoin("o."+b.col("items"), item)

	groupBy := []string{b.d.DateExpr(created), website, sku}

	return selectStmt(exprs, from, []string{join}, groupBy)
}
