package mssql

import (
	"fmt"
	"strings"

	"aggregator/internal/engine"
)

// dialect renders T-SQL.
//
// Key design points vs Postgres:
//   - SQL Server's only materialized-view analogue is the indexed view,
//     which rejects the JSON and TRY_CAST constructs these queries need.
//     The dialect therefore reports no materialized-view support and the
//     materialized kinds are built as replace-tables, like SQLite.
//   - TRY_CAST/TRY_CONVERT provide the tolerant casts natively.
type dialect struct{}

// Dialect is the T-SQL dialect, usable without an open database.
var Dialect engine.Dialect = dialect{}

func (dialect) Name() string { return "mssql" }

func (dialect) QuoteIdent(name string) string {
	return "[" + strings.ReplaceAll(name, "]", "]]") + "]"
}

func (dialect) QuoteString(s string) string { return engine.SQLStringLiteral(s) }

func (d dialect) TableRef(dataset, table string) string {
	return d.QuoteIdent(dataset) + "." + d.QuoteIdent(table)
}

// LimitRecent uses OFFSET/FETCH; T-SQL has no LIMIT clause.
func (dialect) LimitRecent(n int) string {
	return fmt.Sprintf("OFFSET 0 ROWS FETCH FIRST %d ROWS ONLY", n)
}

func (dialect) SupportsMaterializedViews() bool { return false }

func (dialect) CreateOrReplaceTableAs(target, query string) string {
	return fmt.Sprintf(
		"IF OBJECT_ID(N%s, N'U') IS NOT NULL DROP TABLE %s;\nSELECT * INTO %s FROM (\n%s\n) AS src",
		engine.SQLStringLiteral(target), target, target, query)
}

func (d dialect) CreateOrReplaceMaterializedViewAs(target, query string) string {
	return d.CreateOrReplaceTableAs(target, query)
}

func (dialect) RefreshMaterializedViewSQL(target string) string { return "" }

func (dialect) DateExpr(ts string) string {
	return fmt.Sprintf("TRY_CAST(%s AS date)", ts)
}

func (dialect) HourExpr(ts string) string {
	return fmt.Sprintf("DATEPART(HOUR, TRY_CAST(%s AS datetime2))", ts)
}

func (dialect) MonthExpr(ts string) string {
	return fmt.Sprintf(
		"DATEFROMPARTS(YEAR(TRY_CAST(%s AS date)), MONTH(TRY_CAST(%s AS date)), 1)", ts, ts)
}

func (dialect) SafeNumeric(expr string) string {
	return fmt.Sprintf("TRY_CAST(%s AS decimal(18,4))", expr)
}

func (dialect) ApproxCountDistinct(expr string) string {
	return fmt.Sprintf("APPROX_COUNT_DISTINCT(%s)", expr)
}

func (dialect) SafeDivide(num, den string) string {
	return fmt.Sprintf("%s / NULLIF(%s, 0)", num, den)
}

func (dialect) JSONScalar(col, key string) string {
	return fmt.Sprintf("JSON_VALUE(%s, %s)",
		col, engine.SQLStringLiteral(engine.JSONPathForKey(key)))
}

func (dialect) JSONValue(col, key string) string {
	return fmt.Sprintf("JSON_QUERY(%s, %s)",
		col, engine.SQLStringLiteral(engine.JSONPathForKey(key)))
}

func (dialect) JSONArrayJoin(col, alias string) string {
	return fmt.Sprintf("CROSS APPLY OPENJSON(%s) AS %s", col, alias)
}

func (dialect) JSONElemScalar(alias, field string) string {
	return fmt.Sprintf("JSON_VALUE(%s.value, %s)",
		alias, engine.SQLStringLiteral(engine.JSONPathForKey(field)))
}

// NormalizeSearchDate tries ISO (style 23) then compact YYYYMMDD (style 112).
func (dialect) NormalizeSearchDate(col string) string {
	return fmt.Sprintf("COALESCE(TRY_CONVERT(date, %s, 23), TRY_CONVERT(date, %s, 112))",
		col, col)
}
