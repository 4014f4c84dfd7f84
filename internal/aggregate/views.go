package aggregate

// Flattened views: projections of the source tables with stable, renamed
// columns for the dashboards. The orders variant additionally appends one
// derived column per synthesized extension column, extracting the key's
// value as a scalar where possible and as serialized JSON otherwise.

// orderBaseColumns are projected unchanged into mv_orders_flattened.
var orderBaseColumns = []string{
	"entity_id",
	"increment_id",
	"created_at",
	"updated_at",
	"status",
	"state",
	"store_id",
	"website_id",
	"customer_id",
	"customer_email",
	"customer_group_id",
	"customer_is_guest",
	"base_currency_code",
	"order_currency_code",
	"grand_total",
	"subtotal",
	"tax_amount",
	"discount_amount",
	"shipping_amount",
	"total_qty_ordered",
	"coupon_code",
	"payment_method",
	"shipping_description",
}

func ordersFlattenedQuery(in BuildInput) string {
	b := newQB(in)

	exprs := make([]string, 0, len(orderBaseColumns)+len(in.Columns))
	for _, c := range orderBaseColumns {
		exprs = append(exprs, b.col(c))
	}

	ext := b.col("extension_attributes")
	for _, c := range in.Columns {
		// Scalar extraction first; non-scalar values fall back to their
		// serialized form so no discovered key is silently dropped.
		expr := "COALESCE(" + b.d.JSONScalar(ext, c.RawKey) + ", " +
			b.d.JSONValue(ext, c.RawKey) + ")"
		exprs = append(exprs, as(expr, b.d.QuoteIdent(c.Alias)))
	}

	return selectStmt(exprs, b.table("orders"), nil, nil)
}

// productBaseColumns are projected unchanged into mv_products_flattened.
var productBaseColumns = []string{
	"entity_id",
	"sku",
	"name",
	"type_id",
	"status",
	"visibility",
	"price",
	"special_price",
	"cost",
	"weight",
	"attribute_set_id",
	"created_at",
	"updated_at",
}

func productsFlattenedQuery(in BuildInput) string {
	b := newQB(in)

	exprs := make([]string, 0, len(productBaseColumns))
	for _, c := range productBaseColumns {
		exprs = append(exprs, b.col(c))
	}

	return selectStmt(exprs, b.table("products"), nil, nil)
}

// salesItemsQuery flattens orders to one row per line item with enough
// order context for item-level dashboards.
func salesItemsQuery(in BuildInput) string {
	b := newQB(in)

	const item = "item"
	elem := func(field string) string { return b.d.JSONElemScalar(item, field) }
	num := func(field string) string { return b.d.SafeNumeric(elem(field)) }

	exprs := []string{
		as("o."+b.col("increment_id"), b.col("order_increment_id")),
		as("o."+b.col("created_at"), b.col("order_created_at")),
		as(b.d.DateExpr("o."+b.col("created_at")), b.col("order_date")),
		as("o."+b.col("status"), b.col("order_status")),
		"o." + b.col("store_id"),
		"o." + b.col("website_id"),
		as(elem("sku"), b.col("sku")),
		as(elem("name"), b.col("product_name")),
		as(num("qty_ordered"), b.col("qty_ordered")),
		as(num("price"), b.col("price")),
		as(num("row_total"), b.col("row_total")),
		as(num("discount_amount"), b.col("discount_amount")),
		as(num("tax_amount"), b.col("tax_amount")),
	}

	from := b.table("orders") + " AS o"
	join := b.d.JSONArrayJoin("o."+b.col("items"), item)

	return selectStmt(exprs, from, []string{join}, nil)
}
