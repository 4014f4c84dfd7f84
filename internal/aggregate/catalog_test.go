package aggregate

import (
	"strings"
	"testing"

	"aggregator/internal/engine"
	"aggregator/internal/engine/bigquery"
	"aggregator/internal/engine/mssql"
	"aggregator/internal/engine/postgres"
	"aggregator/internal/engine/sqlite"
	"aggregator/internal/sampler"
)

var testDialects = map[string]engine.Dialect{
	"bigquery": bigquery.Dialect,
	"postgres": postgres.Dialect,
	"sqlite":   sqlite.Dialect,
	"mssql":    mssql.Dialect,
}

func buildInput(d engine.Dialect) BuildInput {
	return BuildInput{
		Dataset: "shop_main",
		Dialect: d,
		Columns: sampler.Synthesize([]string{"gift_message", "loyalty_points"}),
	}
}

func TestEveryKindBuildsOnEveryDialect(t *testing.T) {
	for name, d := range testDialects {
		for _, kind := range Kinds() {
			stmt, err := BuildQuery(kind, buildInput(d))
			if err != nil {
				t.Fatalf("%s/%s: %v", name, kind, err)
			}
			if stmt == "" {
				t.Fatalf("%s/%s: empty statement", name, kind)
			}

			entry, _ := Lookup(kind)
			if !strings.Contains(stmt, entry.Target) {
				t.Errorf("%s/%s: target %q missing from statement", name, kind, entry.Target)
			}
		}
	}
}

func TestBuildQueryIsDeterministic(t *testing.T) {
	for _, kind := range Kinds() {
		in := buildInput(bigquery.Dialect)
		a, err := BuildQuery(kind, in)
		if err != nil {
			t.Fatalf("%s: %v", kind, err)
		}
		b, err := BuildQuery(kind, in)
		if err != nil {
			t.Fatalf("%s: %v", kind, err)
		}
		if a != b {
			t.Errorf("%s: two builds differ", kind)
		}
	}
}

func TestBuildQueryRejectsUnknownAndMeta(t *testing.T) {
	if _, err := BuildQuery(Kind("nonsense"), buildInput(sqlite.Dialect)); err == nil {
		t.Fatal("expected error for unknown kind")
	}
	if _, err := BuildQuery(KindAll, buildInput(sqlite.Dialect)); err == nil {
		t.Fatal("expected error for the meta kind")
	}
}

func TestMaterializedKindsUseViewsWhereSupported(t *testing.T) {
	stmt, err := BuildQuery(KindSalesItemsView, buildInput(bigquery.Dialect))
	if err != nil {
		t.Fatalf("bigquery: %v", err)
	}
	if !strings.Contains(stmt, "CREATE MATERIALIZED VIEW") {
		t.Fatalf("bigquery sales items should be a materialized view:\n%s", stmt)
	}

	stmt, err = BuildQuery(KindSalesItemsView, buildInput(sqlite.Dialect))
	if err != nil {
		t.Fatalf("sqlite: %v", err)
	}
	if strings.Contains(stmt, "MATERIALIZED") {
		t.Fatalf("sqlite must degrade to a table:\n%s", stmt)
	}
	if !strings.Contains(stmt, "CREATE TABLE") {
		t.Fatalf("sqlite replace-table missing:\n%s", stmt)
	}
}

func TestRollupKindsAreAlwaysTables(t *testing.T) {
	stmt, err := BuildQuery(KindSalesOverview, buildInput(bigquery.Dialect))
	if err != nil {
		t.Fatal(err)
	}
	if !strings.HasPrefix(stmt, "CREATE OR REPLACE TABLE") {
		t.Fatalf("daily rollup should be a replace-table even on bigquery:\n%s", stmt)
	}
}

func TestKindsOrderIsStable(t *testing.T) {
	kinds := Kinds()
	if len(kinds) != 9 {
		t.Fatalf("catalog has %d kinds, want 9", len(kinds))
	}
	if kinds[0] != KindSalesOverview {
		t.Fatalf("first kind=%s", kinds[0])
	}
	if kinds[len(kinds)-1] != KindOrdersFlattened {
		t.Fatalf("last kind=%s", kinds[len(kinds)-1])
	}

	// Mutating the returned slice must not corrupt the catalog order.
	kinds[0] = Kind("clobbered")
	if Kinds()[0] != KindSalesOverview {
		t.Fatal("Kinds returned an aliased slice")
	}
}

func TestParseKind(t *testing.T) {
	if _, err := ParseKind(""); err == nil {
		t.Fatal("expected error for empty kind")
	}
	if _, err := ParseKind("bogus"); err == nil {
		t.Fatal("expected error for unknown kind")
	}
	if k, err := ParseKind("all"); err != nil || k != KindAll {
		t.Fatalf("ParseKind(all)=(%v,%v)", k, err)
	}
	if k, err := ParseKind("sales_overview_hourly"); err != nil || k != KindSalesOverviewHourly {
		t.Fatalf("ParseKind(sales_overview_hourly)=(%v,%v)", k, err)
	}
}
