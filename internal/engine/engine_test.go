package engine

import (
	"context"
	"fmt"
	"testing"
)

// stubDialect is the minimal Dialect used to exercise the registry.
type stubDialect struct{ name string }

func (d stubDialect) Name() string                                          { return d.name }
func (stubDialect) QuoteIdent(name string) string                           { return name }
func (stubDialect) QuoteString(s string) string                             { return SQLStringLiteral(s) }
func (stubDialect) TableRef(dataset, table string) string                   { return dataset + "." + table }
func (stubDialect) LimitRecent(n int) string                                { return "" }
func (stubDialect) SupportsMaterializedViews() bool                         { return false }
func (stubDialect) CreateOrReplaceTableAs(target, query string) string     { return query }
func (stubDialect) CreateOrReplaceMaterializedViewAs(t, q string) string   { return q }
func (stubDialect) RefreshMaterializedViewSQL(target string) string        { return "" }
func (stubDialect) DateExpr(ts string) string                               { return ts }
func (stubDialect) HourExpr(ts string) string                               { return ts }
func (stubDialect) MonthExpr(ts string) string                              { return ts }
func (stubDialect) SafeNumeric(expr string) string                          { return expr }
func (stubDialect) ApproxCountDistinct(expr string) string                  { return expr }
func (stubDialect) SafeDivide(num, den string) string                       { return num }
func (stubDialect) JSONScalar(col, key string) string                       { return col }
func (stubDialect) JSONValue(col, key string) string                        { return col }
func (stubDialect) JSONArrayJoin(col, alias string) string                  { return col }
func (stubDialect) JSONElemScalar(alias, field string) string               { return alias }
func (stubDialect) NormalizeSearchDate(col string) string                   { return col }

type stubEngine struct{ cfg Config }

func (stubEngine) Close()                                                    {}
func (stubEngine) Query(context.Context, string) ([]map[string]any, error)   { return nil, nil }
func (stubEngine) SubmitJob(context.Context, string) (JobHandle, error)      { return nil, nil }
func (stubEngine) RefreshMaterializedView(context.Context, string, string) error { return nil }
func (stubEngine) TableExists(context.Context, string, string) (bool, error) { return false, nil }
func (e stubEngine) Dialect() Dialect                                        { return stubDialect{name: e.cfg.Kind} }

func TestRegisterAndNew(t *testing.T) {
	kind := "stub_registry_test"
	Register(kind, func(ctx context.Context, cfg Config) (Engine, error) {
		return stubEngine{cfg: cfg}, nil
	}, stubDialect{name: kind})

	eng, err := New(context.Background(), Config{Kind: kind, DSN: "x"})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if eng.Dialect().Name() != kind {
		t.Fatalf("wrong engine constructed: dialect=%q", eng.Dialect().Name())
	}

	d, err := DialectFor(kind)
	if err != nil {
		t.Fatalf("DialectFor: %v", err)
	}
	if d.Name() != kind {
		t.Fatalf("DialectFor returned %q", d.Name())
	}
}

func TestNewRejectsUnknownKind(t *testing.T) {
	if _, err := New(context.Background(), Config{Kind: "no_such_backend"}); err == nil {
		t.Fatal("expected error for unknown kind")
	}
	if _, err := New(context.Background(), Config{}); err == nil {
		t.Fatal("expected error for empty kind")
	}
	if _, err := DialectFor("no_such_backend"); err == nil {
		t.Fatal("expected error for unknown dialect kind")
	}
}

func TestRegisterPanics(t *testing.T) {
	mustPanic := func(name string, fn func()) {
		t.Helper()
		defer func() {
			if recover() == nil {
				t.Fatalf("%s: expected panic", name)
			}
		}()
		fn()
	}

	factory := func(ctx context.Context, cfg Config) (Engine, error) {
		return stubEngine{cfg: cfg}, nil
	}

	mustPanic("empty kind", func() { Register("", factory, stubDialect{}) })
	mustPanic("nil factory", func() { Register("stub_panic_test", nil, stubDialect{}) })
	mustPanic("nil dialect", func() { Register("stub_panic_test", factory, nil) })

	Register("stub_panic_dup", factory, stubDialect{name: "stub_panic_dup"})
	mustPanic("duplicate kind", func() {
		Register("stub_panic_dup", factory, stubDialect{name: "stub_panic_dup"})
	})
}

func TestRegisteredKindsAreIsolated(t *testing.T) {
	// Two registrations with distinct kinds must resolve independently.
	for i := 0; i < 2; i++ {
		kind := fmt.Sprintf("stub_isolated_%d", i)
		Register(kind, func(ctx context.Context, cfg Config) (Engine, error) {
			return stubEngine{cfg: cfg}, nil
		}, stubDialect{name: kind})
	}
	for i := 0; i < 2; i++ {
		kind := fmt.Sprintf("stub_isolated_%d", i)
		d, err := DialectFor(kind)
		if err != nil {
			t.Fatalf("DialectFor(%s): %v", kind, err)
		}
		if d.Name() != kind {
			t.Fatalf("DialectFor(%s) returned %q", kind, d.Name())
		}
	}
}
