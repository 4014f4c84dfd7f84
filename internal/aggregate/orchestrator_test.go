package aggregate

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
)

// testOrchestrator wires an orchestrator to the fake engine with recording
// seams. Individual tests override seams as needed.
func testOrchestrator(eng *fakeEngine) (*Orchestrator, *seamRecorder) {
	rec := &seamRecorder{}
	o := &Orchestrator{
		Engine: eng,
		SampleKeys: func(ctx context.Context, dataset string) ([]string, error) {
			return []string{"gift_message"}, nil
		},
		RunJob: func(ctx context.Context, kind Kind, stmt string) Outcome {
			rec.record(kind, stmt)
			return Outcome{Kind: kind, Succeeded: true, JobID: "run-" + string(kind)}
		},
		Refresh: func(ctx context.Context, dataset string, kind Kind) error { return nil },
		Exists:  func(ctx context.Context, dataset, table string) (bool, error) { return true, nil },
	}
	return o, rec
}

type seamRecorder struct {
	mu    sync.Mutex
	kinds []Kind
	stmts map[Kind]string
}

func (r *seamRecorder) record(kind Kind, stmt string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.stmts == nil {
		r.stmts = map[Kind]string{}
	}
	r.kinds = append(r.kinds, kind)
	r.stmts[kind] = stmt
}

func (r *seamRecorder) ran(kind Kind) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	_, ok := r.stmts[kind]
	return ok
}

func TestValidateRejectsBadRequests(t *testing.T) {
	o, _ := testOrchestrator(newFakeEngine())

	var verr *ValidationError

	if _, err := o.Validate(Request{Kind: "sales_overview"}); !errors.As(err, &verr) {
		t.Fatalf("missing dataset: err=%v", err)
	}
	if _, err := o.Validate(Request{DatasetID: "ds", Kind: "bogus"}); !errors.As(err, &verr) {
		t.Fatalf("unknown kind: err=%v", err)
	}
	if _, err := o.Validate(Request{DatasetID: "ds"}); !errors.As(err, &verr) {
		t.Fatalf("missing kind: err=%v", err)
	}
	if kind, err := o.Validate(Request{DatasetID: "ds", Kind: "all"}); err != nil || kind != KindAll {
		t.Fatalf("valid batch request rejected: (%v,%v)", kind, err)
	}
}

func TestRunOneRejectsTheMetaKind(t *testing.T) {
	o, rec := testOrchestrator(newFakeEngine())

	_, err := o.RunOne(context.Background(), Request{DatasetID: "ds", Kind: "all"})
	var verr *ValidationError
	if !errors.As(err, &verr) {
		t.Fatalf("err=%v, want *ValidationError", err)
	}
	if len(rec.kinds) != 0 {
		t.Fatalf("nothing should have been submitted: %v", rec.kinds)
	}
}

func TestRunOneSuccess(t *testing.T) {
	o, rec := testOrchestrator(newFakeEngine())

	out, err := o.RunOne(context.Background(), Request{DatasetID: "shop_main", Kind: "sales_overview"})
	if err != nil {
		t.Fatalf("RunOne: %v", err)
	}
	if !out.Succeeded || out.Kind != KindSalesOverview {
		t.Fatalf("outcome=%+v", out)
	}
	if !rec.ran(KindSalesOverview) {
		t.Fatal("job never submitted")
	}
	if !strings.Contains(rec.stmts[KindSalesOverview], "mv_agg_sales_overview_daily") {
		t.Fatalf("statement does not target the daily rollup:\n%s", rec.stmts[KindSalesOverview])
	}
}

func TestRunOneExecutionFailureIsNotAnError(t *testing.T) {
	o, _ := testOrchestrator(newFakeEngine())
	o.RunJob = func(ctx context.Context, kind Kind, stmt string) Outcome {
		return Outcome{Kind: kind, Reason: ReasonEngineError, Error: "boom"}
	}

	out, err := o.RunOne(context.Background(), Request{DatasetID: "ds", Kind: "sales_overview"})
	if err != nil {
		t.Fatalf("execution failures belong in the outcome, got err=%v", err)
	}
	if out.Succeeded || out.Reason != ReasonEngineError {
		t.Fatalf("outcome=%+v", out)
	}
}

func TestRunOneRefreshFailureDoesNotFailTheOutcome(t *testing.T) {
	o, _ := testOrchestrator(newFakeEngine())
	o.Refresh = func(ctx context.Context, dataset string, kind Kind) error {
		return &RefreshError{Kind: kind, View: "mv_sales_items", Err: errors.New("lock timeout")}
	}

	out, err := o.RunOne(context.Background(), Request{DatasetID: "ds", Kind: "sales_items_view"})
	if err != nil {
		t.Fatalf("RunOne: %v", err)
	}
	if !out.Succeeded {
		t.Fatalf("refresh failure downgrades to a warning, outcome=%+v", out)
	}
}

func TestRunOneSamplingFailureDegrades(t *testing.T) {
	o, rec := testOrchestrator(newFakeEngine())
	o.SampleKeys = func(ctx context.Context, dataset string) ([]string, error) {
		return nil, errors.New("orders table unreadable")
	}

	out, err := o.RunOne(context.Background(), Request{DatasetID: "ds", Kind: "orders_flattened_view"})
	if err != nil {
		t.Fatalf("RunOne: %v", err)
	}
	if !out.Succeeded {
		t.Fatalf("sampling failure must not fail the build: %+v", out)
	}

	stmt := rec.stmts[KindOrdersFlattened]
	if stmt == "" {
		t.Fatal("flattened view never built")
	}
	if strings.Contains(stmt, "ext_") {
		t.Fatalf("degraded build still carries extension columns:\n%s", stmt)
	}
}

func TestRunOneUsesSampledKeys(t *testing.T) {
	o, rec := testOrchestrator(newFakeEngine())

	if _, err := o.RunOne(context.Background(), Request{DatasetID: "ds", Kind: "orders_flattened_view"}); err != nil {
		t.Fatalf("RunOne: %v", err)
	}
	if !strings.Contains(rec.stmts[KindOrdersFlattened], `"ext_gift_message"`) {
		t.Fatalf("sampled key missing from statement:\n%s", rec.stmts[KindOrdersFlattened])
	}
}

func TestRunAllAttemptsEveryKind(t *testing.T) {
	o, rec := testOrchestrator(newFakeEngine())

	report, err := o.RunAll(context.Background(), "shop_main")
	if err != nil {
		t.Fatalf("RunAll: %v", err)
	}
	if !report.AllSucceeded {
		t.Fatalf("report=%+v", report)
	}
	if len(report.Outcomes) != len(Kinds()) {
		t.Fatalf("outcomes=%d, want %d", len(report.Outcomes), len(Kinds()))
	}
	for i, kind := range Kinds() {
		if report.Outcomes[i].Kind != kind {
			t.Fatalf("outcome %d is %s, want %s (catalog order)", i, report.Outcomes[i].Kind, kind)
		}
		if !rec.ran(kind) {
			t.Fatalf("kind %s never attempted", kind)
		}
	}
}

func TestRunAllIsolatesFailures(t *testing.T) {
	o, rec := testOrchestrator(newFakeEngine())
	o.RunJob = func(ctx context.Context, kind Kind, stmt string) Outcome {
		rec.record(kind, stmt)
		if kind == KindCustomerMetrics {
			return Outcome{Kind: kind, Reason: ReasonEngineError, Error: "quota"}
		}
		return Outcome{Kind: kind, Succeeded: true}
	}

	report, err := o.RunAll(context.Background(), "shop_main")
	if err != nil {
		t.Fatalf("RunAll: %v", err)
	}
	if report.AllSucceeded {
		t.Fatal("a failed kind must clear the success flag")
	}

	failed := 0
	for _, out := range report.Outcomes {
		if !out.Succeeded {
			failed++
			if out.Kind != KindCustomerMetrics {
				t.Fatalf("unexpected failed kind %s", out.Kind)
			}
		}
	}
	if failed != 1 {
		t.Fatalf("failed=%d, want 1", failed)
	}
	for _, kind := range Kinds() {
		if !rec.ran(kind) {
			t.Fatalf("kind %s skipped after a sibling failure", kind)
		}
	}
}

func TestRunAllRecoversPanics(t *testing.T) {
	o, rec := testOrchestrator(newFakeEngine())
	o.RunJob = func(ctx context.Context, kind Kind, stmt string) Outcome {
		rec.record(kind, stmt)
		if kind == KindSEOPerformance {
			panic("defective builder")
		}
		return Outcome{Kind: kind, Succeeded: true}
	}

	report, err := o.RunAll(context.Background(), "shop_main")
	if err != nil {
		t.Fatalf("RunAll: %v", err)
	}
	for _, out := range report.Outcomes {
		if out.Kind == KindSEOPerformance {
			if out.Succeeded || out.Reason != ReasonBuildError {
				t.Fatalf("panic outcome=%+v", out)
			}
		} else if !out.Succeeded {
			t.Fatalf("sibling kind %s failed: %+v", out.Kind, out)
		}
	}
}

func TestRunAllConcurrentOutcomesKeepOrder(t *testing.T) {
	o, _ := testOrchestrator(newFakeEngine())
	o.Concurrency = 4

	report, err := o.RunAll(context.Background(), "shop_main")
	if err != nil {
		t.Fatalf("RunAll: %v", err)
	}
	for i, kind := range Kinds() {
		if report.Outcomes[i].Kind != kind {
			t.Fatalf("outcome %d is %s, want %s", i, report.Outcomes[i].Kind, kind)
		}
	}
}

func TestRunAllRequiresDataset(t *testing.T) {
	o, _ := testOrchestrator(newFakeEngine())
	var verr *ValidationError
	if _, err := o.RunAll(context.Background(), ""); !errors.As(err, &verr) {
		t.Fatalf("err=%v, want *ValidationError", err)
	}
}
