package mssql

import (
	"strings"
	"testing"
)

func TestQuoting(t *testing.T) {
	if got := Dialect.QuoteIdent("order_date"); got != "[order_date]" {
		t.Fatalf("QuoteIdent=%q", got)
	}
	if got := Dialect.QuoteIdent("odd]name"); got != "[odd]]name]" {
		t.Fatalf("QuoteIdent escape=%q", got)
	}
	if got := Dialect.TableRef("shop_main", "orders"); got != "[shop_main].[orders]" {
		t.Fatalf("TableRef=%q", got)
	}
}

func TestReplaceTableUsesSelectInto(t *testing.T) {
	got := Dialect.CreateOrReplaceTableAs("[s].[t]", "SELECT 1")
	for _, frag := range []string{
		"IF OBJECT_ID(N'[s].[t]', N'U') IS NOT NULL DROP TABLE [s].[t];",
		"SELECT * INTO [s].[t] FROM (",
		"SELECT 1",
		") AS src",
	} {
		if !strings.Contains(got, frag) {
			t.Fatalf("missing %q in %q", frag, got)
		}
	}
}

func TestLimitRecentUsesOffsetFetch(t *testing.T) {
	got := Dialect.LimitRecent(200)
	if got != "OFFSET 0 ROWS FETCH FIRST 200 ROWS ONLY" {
		t.Fatalf("LimitRecent=%q", got)
	}
	if strings.Contains(got, "LIMIT") {
		t.Fatalf("LIMIT is not valid T-SQL: %q", got)
	}
}

func TestMaterializedKindsDegradeToTables(t *testing.T) {
	if Dialect.SupportsMaterializedViews() {
		t.Fatal("mssql must not report materialized view support")
	}
	if got := Dialect.RefreshMaterializedViewSQL("[x]"); got != "" {
		t.Fatalf("refresh must be empty, got %q", got)
	}
	if Dialect.CreateOrReplaceMaterializedViewAs("[t]", "SELECT 1") !=
		Dialect.CreateOrReplaceTableAs("[t]", "SELECT 1") {
		t.Fatal("materialized fallback must match replace-table")
	}
}

func TestTolerantCasts(t *testing.T) {
	if got := Dialect.SafeNumeric("[grand_total]"); got != "TRY_CAST([grand_total] AS decimal(18,4))" {
		t.Fatalf("SafeNumeric=%q", got)
	}
	if got := Dialect.DateExpr("[created_at]"); got != "TRY_CAST([created_at] AS date)" {
		t.Fatalf("DateExpr=%q", got)
	}
	if got := Dialect.HourExpr("[created_at]"); got != "DATEPART(HOUR, TRY_CAST([created_at] AS datetime2))" {
		t.Fatalf("HourExpr=%q", got)
	}
}

func TestJSONAccess(t *testing.T) {
	if got := Dialect.JSONScalar("[ext]", "gift_message"); got != "JSON_VALUE([ext], '$.gift_message')" {
		t.Fatalf("JSONScalar=%q", got)
	}
	if got := Dialect.JSONValue("[ext]", "payload"); got != "JSON_QUERY([ext], '$.payload')" {
		t.Fatalf("JSONValue=%q", got)
	}
	if got := Dialect.JSONArrayJoin("o.[items]", "item"); got != "CROSS APPLY OPENJSON(o.[items]) AS item" {
		t.Fatalf("JSONArrayJoin=%q", got)
	}
	if got := Dialect.JSONElemScalar("item", "sku"); got != "JSON_VALUE(item.value, '$.sku')" {
		t.Fatalf("JSONElemScalar=%q", got)
	}
}

func TestNormalizeSearchDateCoversAllEncodings(t *testing.T) {
	got := Dialect.NormalizeSearchDate("[date]")
	want := "COALESCE(TRY_CONVERT(date, [date], 23), TRY_CONVERT(date, [date], 112))"
	if got != want {
		t.Fatalf("NormalizeSearchDate=%q, want %q", got, want)
	}
}
