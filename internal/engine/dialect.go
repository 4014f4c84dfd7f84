package engine

import (
	"strings"
)

// Dialect renders the engine-specific SQL fragments the query builders
// compose. Every method is pure string templating.
//
// Why this exists:
//   - The aggregation catalog is defined once, but each backend has its own
//     idiom for "replace this table", JSON access, tolerant casts, and
//     materialized views. Builders stay backend-agnostic by rendering
//     through this interface, the same way the storage layer in the
//     original ETL kept one load semantic per backend.
//
// Constraints:
//   - Implementations must be stateless and safe for concurrent use.
//   - Generated fragments must be deterministic for identical inputs, so
//     repeated runs produce byte-identical statements.
type Dialect interface {
	// Name returns the backend kind this dialect renders for.
	Name() string

	// QuoteIdent quotes a single identifier (column, table, alias).
	QuoteIdent(name string) string

	// QuoteString renders a SQL string literal with internal quotes escaped.
	QuoteString(s string) string

	// TableRef renders a dataset-qualified table reference.
	TableRef(dataset, table string) string

	// LimitRecent renders the row-bound clause appended after an ORDER BY,
	// keeping the first n rows. Not every backend spells this LIMIT:
	// T-SQL only accepts OFFSET/FETCH in that position.
	LimitRecent(n int) string

	// SupportsMaterializedViews reports whether the backend has true
	// incrementally-refreshed materialized views. When false, builders fall
	// back to CreateOrReplaceTableAs for materialized kinds and the
	// refresher skips the kind.
	SupportsMaterializedViews() bool

	// CreateOrReplaceTableAs renders an idempotent "replace table with the
	// result of this query" statement (possibly a multi-statement batch).
	CreateOrReplaceTableAs(target, query string) string

	// CreateOrReplaceMaterializedViewAs renders an idempotent materialized
	// view (re)definition. Only called when SupportsMaterializedViews.
	CreateOrReplaceMaterializedViewAs(target, query string) string

	// RefreshMaterializedViewSQL renders the explicit refresh statement for
	// a view, or "" when the backend refreshes views on its own.
	RefreshMaterializedViewSQL(target string) string

	// DateExpr extracts a DATE from a timestamp-ish expression, yielding
	// NULL (not an error) for unparsable values where the backend allows.
	DateExpr(ts string) string

	// HourExpr extracts the hour-of-day (0-23) from a timestamp-ish expression.
	HourExpr(ts string) string

	// MonthExpr truncates a timestamp-ish expression to the first day of
	// its month.
	MonthExpr(ts string) string

	// SafeNumeric casts an expression to a numeric type, yielding NULL for
	// unparsable values where the backend allows.
	SafeNumeric(expr string) string

	// ApproxCountDistinct renders an (approximate where available) distinct
	// count over the expression.
	ApproxCountDistinct(expr string) string

	// SafeDivide renders num/den with division-by-zero yielding NULL.
	SafeDivide(num, den string) string

	// JSONScalar extracts the value for key out of a JSON column as a
	// scalar, NULL when the value is not scalar.
	JSONScalar(col, key string) string

	// JSONValue extracts the value for key out of a JSON column in
	// serialized form, regardless of shape.
	JSONValue(col, key string) string

	// JSONArrayJoin renders the join clause that explodes a JSON array
	// column into one row per element, binding each element to alias.
	JSONArrayJoin(col, alias string) string

	// JSONElemScalar extracts a scalar field from an exploded array element
	// previously bound by JSONArrayJoin under alias.
	JSONElemScalar(alias, field string) string

	// NormalizeSearchDate coerces a search-metrics date column to DATE.
	// The column arrives in three on-disk representations (typed date,
	// "YYYY-MM-DD", "YYYYMMDD") and all three must normalize to one type.
	NormalizeSearchDate(col string) string
}

// IsSimpleIdent reports whether key is a plain identifier (letters, digits,
// underscores, not starting with a digit). Simple keys get dotted JSON
// paths; everything else needs a quoted path member.
func IsSimpleIdent(key string) bool {
	if key == "" {
		return false
	}
	for i, r := range key {
		switch {
		case r == '_':
		case r >= 'a' && r <= 'z':
		case r >= 'A' && r <= 'Z':
		case r >= '0' && r <= '9':
			if i == 0 {
				return false
			}
		default:
			return false
		}
	}
	return true
}

// JSONPathForKey builds the JSONPath expression addressing a top-level key:
// $.key for simple identifiers, $."quoted key" otherwise, with backslashes
// and double quotes escaped so the original key round-trips through a
// conforming string-literal grammar.
func JSONPathForKey(key string) string {
	if IsSimpleIdent(key) {
		return "$." + key
	}
	var b strings.Builder
	b.WriteString(`$."`)
	for _, r := range key {
		switch r {
		case '\\':
			b.WriteString(`\\`)
		case '"':
			b.WriteString(`\"`)
		default:
			b.WriteRune(r)
		}
	}
	b.WriteString(`"`)
	return b.String()
}

// SQLStringLiteral renders s as a single-quoted SQL literal. Shared by
// dialects whose literal syntax only needs single quotes doubled.
func SQLStringLiteral(s string) string {
	return "'" + strings.ReplaceAll(s, "'", "''") + "'"
}
