package sqlite

import (
	"fmt"
	"strings"

	"aggregator/internal/engine"
)

// dialect renders SQLite SQL.
//
// Key design points vs Postgres:
//   - SQLite has no materialized views, so materialized kinds degrade to
//     plain replace-tables and refresh is skipped entirely.
//   - SQLite has no schemas either; the dataset becomes a table-name
//     prefix so several datasets can share one database file.
//   - date()/json_extract() return NULL for malformed input, which gives
//     the tolerant-cast behavior for free.
type dialect struct{}

// Dialect is the SQLite dialect, usable without an open database.
var Dialect engine.Dialect = dialect{}

func (dialect) Name() string { return "sqlite" }

func (dialect) QuoteIdent(name string) string {
	return `"` + strings.ReplaceAll(name, `"`, `""`) + `"`
}

func (dialect) QuoteString(s string) string { return engine.SQLStringLiteral(s) }

func (d dialect) TableRef(dataset, table string) string {
	if dataset == "" {
		return d.QuoteIdent(table)
	}
	return d.QuoteIdent(dataset + "_" + table)
}

func (dialect) LimitRecent(n int) string { return fmt.Sprintf("LIMIT %d", n) }

func (dialect) SupportsMaterializedViews() bool { return false }

func (dialect) CreateOrReplaceTableAs(target, query string) string {
	return fmt.Sprintf("DROP TABLE IF EXISTS %s;\nCREATE TABLE %s AS\n%s", target, target, query)
}

// CreateOrReplaceMaterializedViewAs falls back to a plain table; builders
// only call it when SupportsMaterializedViews, but the fallback keeps the
// dialect safe to use directly.
func (d dialect) CreateOrReplaceMaterializedViewAs(target, query string) string {
	return d.CreateOrReplaceTableAs(target, query)
}

func (dialect) RefreshMaterializedViewSQL(target string) string { return "" }

func (dialect) DateExpr(ts string) string {
	return fmt.Sprintf("date(%s)", ts)
}

func (dialect) HourExpr(ts string) string {
	return fmt.Sprintf("CAST(strftime('%%H', %s) AS INTEGER)", ts)
}

func (dialect) MonthExpr(ts string) string {
	return fmt.Sprintf("date(%s, 'start of month')", ts)
}

func (dialect) SafeNumeric(expr string) string {
	return fmt.Sprintf("CAST(%s AS REAL)", expr)
}

func (dialect) ApproxCountDistinct(expr string) string {
	return fmt.Sprintf("COUNT(DISTINCT %s)", expr)
}

func (dialect) SafeDivide(num, den string) string {
	return fmt.Sprintf("%s / NULLIF(%s, 0)", num, den)
}

func (dialect) JSONScalar(col, key string) string {
	return fmt.Sprintf("json_extract(%s, %s)",
		col, engine.SQLStringLiteral(engine.JSONPathForKey(key)))
}

func (dialect) JSONValue(col, key string) string {
	return fmt.Sprintf("json_extract(%s, %s)",
		col, engine.SQLStringLiteral(engine.JSONPathForKey(key)))
}

func (dialect) JSONArrayJoin(col, alias string) string {
	return fmt.Sprintf("CROSS JOIN json_each(%s) AS %s", col, alias)
}

func (dialect) JSONElemScalar(alias, field string) string {
	return fmt.Sprintf("json_extract(%s.value, %s)",
		alias, engine.SQLStringLiteral(engine.JSONPathForKey(field)))
}

// NormalizeSearchDate rewrites compact YYYYMMDD strings into ISO form and
// lets date() reject anything else.
func (dialect) NormalizeSearchDate(col string) string {
	return fmt.Sprintf(
		"CASE WHEN length(%s) = 8 AND %s NOT LIKE '%%-%%' "+
			"THEN date(substr(%s,1,4) || '-' || substr(%s,5,2) || '-' || substr(%s,7,2)) "+
			"ELSE date(%s) END",
		col, col, col, col, col, col)
}
