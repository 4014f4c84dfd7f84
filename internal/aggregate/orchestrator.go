package aggregate

import (
	"context"
	"fmt"
	"log"
	"time"

	"golang.org/x/sync/errgroup"

	"aggregator/internal/engine"
	"aggregator/internal/metrics"
	"aggregator/internal/sampler"
)

// Request asks for one aggregation kind (or all of them) to be rebuilt in
// a dataset.
type Request struct {
	DatasetID string `json:"dataset_id"`
	Kind      string `json:"kind"`
}

// ValidationError marks a client error: the request never reached the
// engine and nothing was submitted.
type ValidationError struct {
	Msg string
}

func (e *ValidationError) Error() string { return e.Msg }

// Report is the batch-mode result: one Outcome per catalog kind, in
// catalog order, plus the derived all-succeeded flag.
type Report struct {
	Outcomes     []Outcome `json:"results"`
	AllSucceeded bool      `json:"success"`
}

// Orchestrator validates requests and drives build → execute → refresh for
// each requested kind.
//
// Concurrency:
//   - Batch mode runs kinds through an errgroup limited to Concurrency
//     (default 1, i.e. sequential). Outcomes are written to distinct slice
//     slots, so no locking is needed; one kind's failure cannot cancel
//     another's in-flight job because workers never return errors to the
//     group.
type Orchestrator struct {
	Engine engine.Engine

	// JobTimeout is passed to the executor (default DefaultJobTimeout).
	JobTimeout time.Duration

	// Concurrency bounds simultaneous kinds in batch mode; <= 1 means
	// sequential. Raising it trades engine job-quota pressure for latency.
	Concurrency int

	// SampleRows bounds the schema sample (default sampler.DefaultSampleRows).
	SampleRows int

	// The following fields are overridable seams. NewOrchestrator installs
	// the production implementations; tests replace them to avoid a live
	// engine.
	SampleKeys func(ctx context.Context, dataset string) ([]string, error)
	RunJob     func(ctx context.Context, kind Kind, stmt string) Outcome
	Refresh    func(ctx context.Context, dataset string, kind Kind) error
	Exists     func(ctx context.Context, dataset, table string) (bool, error)
}

// NewOrchestrator wires an orchestrator to a live engine.
func NewOrchestrator(eng engine.Engine, jobTimeout time.Duration, concurrency, sampleRows int) *Orchestrator {
	o := &Orchestrator{
		Engine:      eng,
		JobTimeout:  jobTimeout,
		Concurrency: concurrency,
		SampleRows:  sampleRows,
	}

	smp := &sampler.Sampler{Engine: eng, SampleRows: sampleRows}
	exec := &Executor{Engine: eng, Timeout: jobTimeout}
	ref := &Refresher{Engine: eng}

	o.SampleKeys = smp.Sample
	o.RunJob = exec.Run
	o.Refresh = ref.Refresh
	o.Exists = eng.TableExists
	return o
}

// Validate checks the request without touching the engine.
func (o *Orchestrator) Validate(req Request) (Kind, error) {
	if req.DatasetID == "" {
		return "", &ValidationError{Msg: "missing dataset_id"}
	}
	kind, err := ParseKind(req.Kind)
	if err != nil {
		return "", &ValidationError{Msg: err.Error()}
	}
	return kind, nil
}

// RunOne executes the single-kind path. The returned error is a
// *ValidationError for client errors; execution failures are reported
// inside the Outcome, not as an error.
func (o *Orchestrator) RunOne(ctx context.Context, req Request) (Outcome, error) {
	kind, err := o.Validate(req)
	if err != nil {
		return Outcome{}, err
	}
	if kind == KindAll {
		return Outcome{}, &ValidationError{Msg: `kind "all" requires the batch endpoint path`}
	}

	outcome := o.runKind(ctx, req.DatasetID, kind)

	// Best-effort existence check for view kinds: logged, never blocking.
	if entry, ok := lookup(kind); ok && entry.Materialized && outcome.Succeeded {
		if exists, err := o.Exists(ctx, req.DatasetID, entry.Target); err != nil {
			log.Printf("aggregate: existence check for %s failed: %v", entry.Target, err)
		} else if !exists {
			log.Printf("aggregate: %s reported success but %s does not exist yet", kind, entry.Target)
		}
	}

	return outcome, nil
}

// RunAll executes the batch path: every catalog kind is attempted, one
// kind's failure never prevents the remaining kinds from running, and the
// report preserves catalog order.
func (o *Orchestrator) RunAll(ctx context.Context, datasetID string) (Report, error) {
	if datasetID == "" {
		return Report{}, &ValidationError{Msg: "missing dataset_id"}
	}

	kinds := Kinds()
	outcomes := make([]Outcome, len(kinds))

	limit := o.Concurrency
	if limit < 1 {
		limit = 1
	}

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(limit)
	for i, kind := range kinds {
		i, kind := i, kind
		g.Go(func() error {
			outcomes[i] = o.runKindSafe(gctx, datasetID, kind)
			return nil
		})
	}
	// Workers never return errors; Wait only joins them.
	_ = g.Wait()

	report := Report{Outcomes: outcomes, AllSucceeded: true}
	for _, oc := range outcomes {
		if !oc.Succeeded {
			report.AllSucceeded = false
			break
		}
	}
	return report, nil
}

// runKindSafe converts a panicking builder/executor into a failed Outcome
// so a defective kind cannot abort the batch loop.
func (o *Orchestrator) runKindSafe(ctx context.Context, dataset string, kind Kind) (out Outcome) {
	defer func() {
		if r := recover(); r != nil {
			log.Printf("aggregate: kind=%s panicked: %v", kind, r)
			out = Outcome{Kind: kind, Reason: ReasonBuildError, Error: fmt.Sprint(r)}
		}
	}()
	return o.runKind(ctx, dataset, kind)
}

// runKind performs build → execute → refresh for one kind.
func (o *Orchestrator) runKind(ctx context.Context, dataset string, kind Kind) Outcome {
	entry, ok := lookup(kind)
	if !ok {
		return Outcome{Kind: kind, Reason: ReasonBuildError, Error: fmt.Sprintf("unknown aggregation kind %q", kind)}
	}

	in := BuildInput{Dataset: dataset, Dialect: o.Engine.Dialect()}

	if entry.NeedsExtensionColumns {
		keys, err := o.SampleKeys(ctx, dataset)
		if err != nil {
			// Explicit downgrade: an unreadable sample means the flattened
			// view is built without extension columns, not that the build
			// fails.
			log.Printf("aggregate: sampling %s failed, building %s without extension columns: %v",
				dataset, kind, err)
			keys = nil
		}
		in.Columns = sampler.Synthesize(keys)
		metrics.ObserveHistogram("agg_sampled_keys", float64(len(in.Columns)),
			metrics.Labels{"kind": string(kind)})
	}

	stmt, err := BuildQuery(kind, in)
	if err != nil {
		return Outcome{Kind: kind, Reason: ReasonBuildError, Error: err.Error()}
	}

	outcome := o.RunJob(ctx, kind, stmt)

	if outcome.Succeeded {
		// Explicit downgrade: refresh failures are warnings. The view's
		// definition is correct and already built; only freshness suffered.
		if err := o.Refresh(ctx, dataset, kind); err != nil {
			log.Printf("aggregate: %v (continuing, build succeeded)", err)
			metrics.IncCounter("agg_refresh_failures_total", 1,
				metrics.Labels{"kind": string(kind)})
		}
	}

	return outcome
}
