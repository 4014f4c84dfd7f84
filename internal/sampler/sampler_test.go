package sampler

import (
	"context"
	"errors"
	"reflect"
	"strings"
	"testing"

	"aggregator/internal/engine"
	"aggregator/internal/engine/mssql"
	"aggregator/internal/engine/sqlite"
)

// fakeEngine returns canned rows and records the sample query.
type fakeEngine struct {
	rows    []map[string]any
	err     error
	dialect engine.Dialect
	lastSQL string
}

func (e *fakeEngine) Close() {}

func (e *fakeEngine) Query(ctx context.Context, sql string) ([]map[string]any, error) {
	e.lastSQL = sql
	return e.rows, e.err
}

func (e *fakeEngine) SubmitJob(ctx context.Context, sql string) (engine.JobHandle, error) {
	return nil, errors.New("not used")
}

func (e *fakeEngine) RefreshMaterializedView(ctx context.Context, dataset, view string) error {
	return nil
}

func (e *fakeEngine) TableExists(ctx context.Context, dataset, table string) (bool, error) {
	return true, nil
}

func (e *fakeEngine) Dialect() engine.Dialect {
	if e.dialect != nil {
		return e.dialect
	}
	return sqlite.Dialect
}

func row(v any) map[string]any {
	return map[string]any{"extension_attributes": v}
}

func TestSampleUnionsKeysAcrossRepresentations(t *testing.T) {
	eng := &fakeEngine{rows: []map[string]any{
		row(map[string]any{"gift_message": "hi", "loyalty_points": 3.0}),
		row(`{"gift_message":"yo","delivery_window":"am"}`),
		row([]byte(`{"is_gift":true}`)),
	}}

	got, err := (&Sampler{Engine: eng}).Sample(context.Background(), "shop_main")
	if err != nil {
		t.Fatalf("Sample: %v", err)
	}
	want := []string{"delivery_window", "gift_message", "is_gift", "loyalty_points"}
	if !reflect.DeepEqual(got, want) {
		t.Fatalf("keys=%v, want %v", got, want)
	}
}

func TestSampleSkipsUnusableRows(t *testing.T) {
	eng := &fakeEngine{rows: []map[string]any{
		row(nil),
		row("not json at all"),
		row(`["an","array","not","an","object"]`),
		row(42),
		row(`{"good_key":1}`),
	}}

	got, err := (&Sampler{Engine: eng}).Sample(context.Background(), "shop_main")
	if err != nil {
		t.Fatalf("Sample: %v", err)
	}
	if len(got) != 1 || got[0] != "good_key" {
		t.Fatalf("keys=%v, want [good_key]", got)
	}
}

func TestSampleEmptyResult(t *testing.T) {
	eng := &fakeEngine{}
	got, err := (&Sampler{Engine: eng}).Sample(context.Background(), "shop_main")
	if err != nil {
		t.Fatalf("Sample: %v", err)
	}
	if len(got) != 0 {
		t.Fatalf("keys=%v, want empty", got)
	}
}

func TestSampleReadFailurePropagates(t *testing.T) {
	eng := &fakeEngine{err: errors.New("permission denied")}
	if _, err := (&Sampler{Engine: eng}).Sample(context.Background(), "shop_main"); err == nil {
		t.Fatal("expected error when the sample read fails")
	}
}

func TestSampleQueryShape(t *testing.T) {
	cases := []struct {
		name    string
		dialect engine.Dialect
		frags   []string
	}{
		{
			name:    "sqlite",
			dialect: sqlite.Dialect,
			frags: []string{
				`"extension_attributes" IS NOT NULL`,
				`"shop_main_orders"`,
				`ORDER BY "created_at" DESC`,
				"LIMIT 25",
			},
		},
		{
			// T-SQL has no LIMIT; the row bound must come out as
			// OFFSET/FETCH or the read fails on every invocation.
			name:    "mssql",
			dialect: mssql.Dialect,
			frags: []string{
				`[extension_attributes] IS NOT NULL`,
				`[shop_main].[orders]`,
				`ORDER BY [created_at] DESC`,
				"OFFSET 0 ROWS FETCH FIRST 25 ROWS ONLY",
			},
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			eng := &fakeEngine{dialect: tc.dialect}
			s := &Sampler{Engine: eng, SampleRows: 25}
			if _, err := s.Sample(context.Background(), "shop_main"); err != nil {
				t.Fatalf("Sample: %v", err)
			}
			for _, frag := range tc.frags {
				if !strings.Contains(eng.lastSQL, frag) {
					t.Fatalf("sample query missing %q: %q", frag, eng.lastSQL)
				}
			}
		})
	}
}

func TestSampleQueryAvoidsLimitOnMSSQL(t *testing.T) {
	eng := &fakeEngine{dialect: mssql.Dialect}
	if _, err := (&Sampler{Engine: eng}).Sample(context.Background(), "shop_main"); err != nil {
		t.Fatalf("Sample: %v", err)
	}
	if strings.Contains(eng.lastSQL, "LIMIT") {
		t.Fatalf("LIMIT leaked into a T-SQL sample query: %q", eng.lastSQL)
	}
	if !strings.Contains(eng.lastSQL, "FETCH FIRST 200 ROWS ONLY") {
		t.Fatalf("default bound missing: %q", eng.lastSQL)
	}
}

func TestSampleDefaultsRowBound(t *testing.T) {
	eng := &fakeEngine{}
	if _, err := (&Sampler{Engine: eng}).Sample(context.Background(), "shop_main"); err != nil {
		t.Fatalf("Sample: %v", err)
	}
	if !strings.Contains(eng.lastSQL, "LIMIT 200") {
		t.Fatalf("default bound missing: %q", eng.lastSQL)
	}
}
