package aggregate

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/google/uuid"
	"github.com/zeebo/xxh3"

	"aggregator/internal/engine"
	"aggregator/internal/metrics"
)

// DefaultJobTimeout bounds the submit-and-await step. The engine may keep
// running the job after we stop waiting; the timeout only bounds how long
// a request can hang on one kind.
const DefaultJobTimeout = 30 * time.Minute

// Outcome reasons. A reason is set only on failure; it tells callers which
// stage gave up so they can retry exactly the failed kinds.
const (
	ReasonBuildError  = "build_error"
	ReasonSubmitError = "submit_error"
	ReasonTimeout     = "timeout"
	ReasonEngineError = "engine_error"
)

// Outcome is the per-kind success/failure record produced by one run.
// Never mutated after creation.
type Outcome struct {
	Kind      Kind          `json:"kind"`
	Succeeded bool          `json:"success"`
	Reason    string        `json:"reason,omitempty"`
	Error     string        `json:"error,omitempty"`
	JobID     string        `json:"job_id,omitempty"`
	Elapsed   time.Duration `json:"-"`
}

// Executor submits generated statements as asynchronous jobs and resolves
// their terminal state.
type Executor struct {
	Engine engine.Engine

	// Timeout overrides DefaultJobTimeout when > 0.
	Timeout time.Duration
}

// Run submits the statement and blocks until the job is terminal or the
// timeout elapses.
//
// IMPORTANT: a job can "complete" while carrying an embedded error in its
// terminal metadata (the engine accepted the job, then failed internally,
// e.g. on a malformed reference inside the statement). Run inspects
// JobResult.Err explicitly; trusting the wait call alone would report such
// jobs as successes.
func (x *Executor) Run(ctx context.Context, kind Kind, stmt string) Outcome {
	timeout := x.Timeout
	if timeout <= 0 {
		timeout = DefaultJobTimeout
	}

	// Correlation ID for logs plus a content fingerprint: two runs with
	// identical statements log identical fingerprints, which makes "did
	// the generated SQL change?" a grep instead of a diff.
	runID := uuid.NewString()
	fp := xxh3.HashString(stmt)
	start := time.Now()

	log.Printf("aggregate: run=%s kind=%s stmt_fp=%016x submitting", runID, kind, fp)

	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	outcome := func(reason string, err error) Outcome {
		o := Outcome{Kind: kind, JobID: runID, Elapsed: time.Since(start)}
		if reason == "" && err == nil {
			o.Succeeded = true
		} else {
			o.Reason = reason
			o.Error = err.Error()
		}
		x.observe(o)
		return o
	}

	handle, err := x.Engine.SubmitJob(ctx, stmt)
	if err != nil {
		return outcome(ReasonSubmitError, fmt.Errorf("submit: %w", err))
	}
	if id := handle.ID(); id != "" {
		log.Printf("aggregate: run=%s kind=%s engine_job=%s", runID, kind, id)
	}

	res, err := handle.Wait(ctx)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			return outcome(ReasonTimeout, fmt.Errorf("job wait exceeded %s", timeout))
		}
		return outcome(ReasonEngineError, fmt.Errorf("await: %w", err))
	}

	// Second check: terminal metadata can carry a failure the wait call
	// itself did not raise.
	if res.Err != nil || res.State == engine.JobFailed {
		err := res.Err
		if err == nil {
			err = fmt.Errorf("job finished in state %s", res.State)
		}
		return outcome(ReasonEngineError, err)
	}

	return outcome("", nil)
}

func (x *Executor) observe(o Outcome) {
	status := "ok"
	if !o.Succeeded {
		status = o.Reason
		log.Printf("aggregate: run=%s kind=%s failed (%s): %s", o.JobID, o.Kind, o.Reason, o.Error)
	} else {
		log.Printf("aggregate: run=%s kind=%s succeeded in %s", o.JobID, o.Kind, o.Elapsed.Truncate(time.Millisecond))
	}

	labels := metrics.Labels{"kind": string(o.Kind), "status": status}
	metrics.IncCounter("agg_runs_total", 1, labels)
	metrics.ObserveHistogram("agg_run_duration_seconds", o.Elapsed.Seconds(), labels)
}
