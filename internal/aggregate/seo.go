package aggregate

// Search performance: query-level search metrics grouped by (date, site,
// query text). The date column has accumulated three on-disk
// representations over time (typed date, ISO string, compact YYYYMMDD
// string); the dialect's NormalizeSearchDate folds all three to one DATE
// type before grouping, otherwise the same day would split into multiple
// buckets.

func seoPerformanceQuery(in BuildInput) string {
	b := newQB(in)

	day := b.d.NormalizeSearchDate(b.col("date"))
	site := b.col("site_url")
	query := b.col("query")

	exprs := []string{
		as(day, b.col("date")),
		site,
		query,
		as("SUM("+b.num("clicks")+")", b.col("clicks")),
		as("SUM("+b.num("impressions")+")", b.col("impressions")),
		as("AVG("+b.num("position")+")", b.col("avg_position")),
		as("AVG("+b.num("ctr")+")", b.col("avg_ctr")),
	}

	groupBy := []string{day, site, query}

	return selectStmt(exprs, b.table("search_console_data"), nil, groupBy)
}
