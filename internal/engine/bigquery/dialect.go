package bigquery

import (
	"fmt"
	"strings"

	"aggregator/internal/engine"
)

// dialect renders GoogleSQL. BigQuery is the primary production backend:
// it has native materialized views and an explicit refresh procedure.
type dialect struct{}

// Dialect is the GoogleSQL dialect, usable without a live client.
var Dialect engine.Dialect = dialect{}

func (dialect) Name() string { return "bigquery" }

func (dialect) QuoteIdent(name string) string {
	return "`" + strings.ReplaceAll(name, "`", "\\`") + "`"
}

func (dialect) QuoteString(s string) string { return engine.SQLStringLiteral(s) }

func (dialect) TableRef(dataset, table string) string {
	return "`" + strings.ReplaceAll(dataset, "`", "\\`") + "." +
		strings.ReplaceAll(table, "`", "\\`") + "`"
}

func (dialect) LimitRecent(n int) string { return fmt.Sprintf("LIMIT %d", n) }

func (dialect) SupportsMaterializedViews() bool { return true }

func (dialect) CreateOrReplaceTableAs(target, query string) string {
	return fmt.Sprintf("CREATE OR REPLACE TABLE %s AS\n%s", target, query)
}

// CreateOrReplaceMaterializedViewAs drops and recreates the view.
//
// Why drop-then-create:
//   - BigQuery has no CREATE OR REPLACE for materialized views, and the
//     flattened-orders view changes definition whenever new extension keys
//     are discovered, so IF NOT EXISTS would silently pin a stale schema.
//   - allow_non_incremental_definition permits the JSON-heavy queries that
//     incremental MVs reject; refresh still works through
//     BQ.REFRESH_MATERIALIZED_VIEW.
func (dialect) CreateOrReplaceMaterializedViewAs(target, query string) string {
	return fmt.Sprintf(
		"DROP MATERIALIZED VIEW IF EXISTS %s;\nCREATE MATERIALIZED VIEW %s\nOPTIONS (enable_refresh = true, allow_non_incremental_definition = true)\nAS\n%s",
		target, target, query)
}

func (dialect) RefreshMaterializedViewSQL(target string) string {
	// BQ.REFRESH_MATERIALIZED_VIEW takes the name as a string, not an
	// identifier.
	name := strings.Trim(target, "`")
	return "CALL BQ.REFRESH_MATERIALIZED_VIEW(" + engine.SQLStringLiteral(name) + ")"
}

func (dialect) DateExpr(ts string) string {
	return fmt.Sprintf("DATE(SAFE_CAST(%s AS TIMESTAMP))", ts)
}

func (dialect) HourExpr(ts string) string {
	return fmt.Sprintf("EXTRACT(HOUR FROM SAFE_CAST(%s AS TIMESTAMP))", ts)
}

func (dialect) MonthExpr(ts string) string {
	return fmt.Sprintf("DATE_TRUNC(DATE(SAFE_CAST(%s AS TIMESTAMP)), MONTH)", ts)
}

func (dialect) SafeNumeric(expr string) string {
	return fmt.Sprintf("SAFE_CAST(%s AS NUMERIC)", expr)
}

func (dialect) ApproxCountDistinct(expr string) string {
	return fmt.Sprintf("APPROX_COUNT_DISTINCT(%s)", expr)
}

func (dialect) SafeDivide(num, den string) string {
	return fmt.Sprintf("SAFE_DIVIDE(%s, %s)", num, den)
}

func (dialect) JSONScalar(col, key string) string {
	return fmt.Sprintf("JSON_EXTRACT_SCALAR(%s, %s)",
		col, engine.SQLStringLiteral(engine.JSONPathForKey(key)))
}

func (dialect) JSONValue(col, key string) string {
	return fmt.Sprintf("JSON_EXTRACT(%s, %s)",
		col, engine.SQLStringLiteral(engine.JSONPathForKey(key)))
}

func (dialect) JSONArrayJoin(col, alias string) string {
	return fmt.Sprintf("CROSS JOIN UNNEST(JSON_EXTRACT_ARRAY(%s)) AS %s", col, alias)
}

func (dialect) JSONElemScalar(alias, field string) string {
	return fmt.Sprintf("JSON_EXTRACT_SCALAR(%s, %s)",
		alias, engine.SQLStringLiteral(engine.JSONPathForKey(field)))
}

// NormalizeSearchDate accepts a typed DATE, an ISO string, or a compact
// YYYYMMDD string. SAFE_CAST/SAFE.PARSE_DATE turn the mismatching
// representations into NULL so COALESCE picks the one that parsed.
func (dialect) NormalizeSearchDate(col string) string {
	return "COALESCE(SAFE_CAST(" + col + " AS DATE), " +
		"SAFE.PARSE_DATE('%Y-%m-%d', SAFE_CAST(" + col + " AS STRING)), " +
		"SAFE.PARSE_DATE('%Y%m%d', SAFE_CAST(" + col + " AS STRING)))"
}
