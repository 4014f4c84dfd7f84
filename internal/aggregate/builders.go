package aggregate

import (
	"strings"

	"aggregator/internal/engine"
)

// qb carries the per-build rendering context shared by all builders.
//
// Why this exists:
//   - Every builder needs the same three primitives (quoted column,
//     tolerant numeric cast, dataset-qualified table); hanging them off a
//     tiny value keeps the SELECT templates readable.
type qb struct {
	d       engine.Dialect
	dataset string
}

func newQB(in BuildInput) qb {
	return qb{d: in.Dialect, dataset: in.Dataset}
}

// col quotes a base column reference.
func (b qb) col(name string) string { return b.d.QuoteIdent(name) }

// num renders a tolerant numeric cast of a base column.
func (b qb) num(name string) string { return b.d.SafeNumeric(b.col(name)) }

// table renders a dataset-qualified source table reference.
func (b qb) table(name string) string { return b.d.TableRef(b.dataset, name) }

// str renders a string literal.
func (b qb) str(s string) string { return b.d.QuoteString(s) }

// countWhere renders a portable conditional count. COUNTIF/FILTER are not
// available on every backend, so the SUM(CASE ...) form is used everywhere.
func (b qb) countWhere(cond string) string {
	return "SUM(CASE WHEN " + cond + " THEN 1 ELSE 0 END)"
}

// sumWhere renders a conditional sum over a tolerant numeric cast.
func (b qb) sumWhere(cond, numExpr string) string {
	return "SUM(CASE WHEN " + cond + " THEN " + numExpr + " ELSE 0 END)"
}

// selectStmt assembles SELECT/FROM/extra/GROUP BY. exprs are "expr AS alias"
// strings; groupBy entries are repeated expressions, never positions,
// because positional GROUP BY is not portable.
func selectStmt(exprs []string, from string, extra []string, groupBy []string) string {
	var sb strings.Builder
	sb.WriteString("SELECT\n  ")
	sb.WriteString(strings.Join(exprs, ",\n  "))
	sb.WriteString("\nFROM ")
	sb.WriteString(from)
	for _, e := range extra {
		sb.WriteString("\n")
		sb.WriteString(e)
	}
	if len(groupBy) > 0 {
		sb.WriteString("\nGROUP BY ")
		sb.WriteString(strings.Join(groupBy, ", "))
	}
	return sb.String()
}

func as(expr, alias string) string { return expr + " AS " + alias }
