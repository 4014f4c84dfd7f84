package postgres

import (
	"fmt"
	"strings"

	"aggregator/internal/engine"
)

// dialect renders Postgres SQL.
//
// Key design points vs BigQuery:
//   - Postgres has native materialized views and an explicit REFRESH
//     MATERIALIZED VIEW statement, so the mapping is direct.
//   - There is no SAFE_CAST. Typed columns cannot hold unparsable values,
//     so plain casts are used for timestamps/numerics; the tolerant branch
//     only matters for the search date column, which is handled with
//     regexp-guarded CASE arms.
//   - The semi-structured columns are jsonb; key access uses the -> / ->>
//     operators with the raw key as a literal rather than a JSONPath.
type dialect struct{}

// Dialect is the Postgres dialect, usable without a live pool.
var Dialect engine.Dialect = dialect{}

func (dialect) Name() string { return "postgres" }

func (dialect) QuoteIdent(name string) string {
	return `"` + strings.ReplaceAll(name, `"`, `""`) + `"`
}

func (dialect) QuoteString(s string) string { return engine.SQLStringLiteral(s) }

func (d dialect) TableRef(dataset, table string) string {
	return d.QuoteIdent(dataset) + "." + d.QuoteIdent(table)
}

func (dialect) LimitRecent(n int) string { return fmt.Sprintf("LIMIT %d", n) }

func (dialect) SupportsMaterializedViews() bool { return true }

func (dialect) CreateOrReplaceTableAs(target, query string) string {
	return fmt.Sprintf("DROP TABLE IF EXISTS %s;\nCREATE TABLE %s AS\n%s", target, target, query)
}

func (dialect) CreateOrReplaceMaterializedViewAs(target, query string) string {
	return fmt.Sprintf("DROP MATERIALIZED VIEW IF EXISTS %s;\nCREATE MATERIALIZED VIEW %s AS\n%s",
		target, target, query)
}

func (dialect) RefreshMaterializedViewSQL(target string) string {
	return "REFRESH MATERIALIZED VIEW " + target
}

func (dialect) DateExpr(ts string) string {
	return fmt.Sprintf("(%s)::date", ts)
}

func (dialect) HourExpr(ts string) string {
	return fmt.Sprintf("EXTRACT(HOUR FROM %s)::int", ts)
}

func (dialect) MonthExpr(ts string) string {
	return fmt.Sprintf("date_trunc('month', %s)::date", ts)
}

func (dialect) SafeNumeric(expr string) string {
	return fmt.Sprintf("(%s)::numeric", expr)
}

func (dialect) ApproxCountDistinct(expr string) string {
	return fmt.Sprintf("COUNT(DISTINCT %s)", expr)
}

func (dialect) SafeDivide(num, den string) string {
	return fmt.Sprintf("%s / NULLIF(%s, 0)", num, den)
}

func (dialect) JSONScalar(col, key string) string {
	return fmt.Sprintf("%s ->> %s", col, engine.SQLStringLiteral(key))
}

func (dialect) JSONValue(col, key string) string {
	return fmt.Sprintf("(%s -> %s)::text", col, engine.SQLStringLiteral(key))
}

func (dialect) JSONArrayJoin(col, alias string) string {
	return fmt.Sprintf("CROSS JOIN LATERAL jsonb_array_elements(%s) AS %s(elem)", col, alias)
}

func (dialect) JSONElemScalar(alias, field string) string {
	return fmt.Sprintf("%s.elem ->> %s", alias, engine.SQLStringLiteral(field))
}

// NormalizeSearchDate casts through text first so the same expression works
// whether the column is date-typed or a string in either encoding.
func (dialect) NormalizeSearchDate(col string) string {
	return fmt.Sprintf(
		"CASE WHEN (%s)::text ~ '^[0-9]{4}-[0-9]{2}-[0-9]{2}' THEN ((%s)::text)::date "+
			"WHEN (%s)::text ~ '^[0-9]{8}$' THEN to_date((%s)::text, 'YYYYMMDD') "+
			"ELSE NULL END",
		col, col, col, col)
}
