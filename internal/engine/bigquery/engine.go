// Package bigquery implements engine.Engine on Google BigQuery.
//
// Statement execution goes through the asynchronous job API (Run/Wait) and
// the terminal job status is surfaced to callers, because a BigQuery job
// can complete with an embedded error that Run and Wait themselves do not
// return.
package bigquery

import (
	"context"
	"errors"
	"fmt"

	bq "cloud.google.com/go/bigquery"
	"google.golang.org/api/googleapi"
	"google.golang.org/api/iterator"
	"google.golang.org/api/option"

	"aggregator/internal/engine"
)

func init() {
	engine.Register("bigquery", New, Dialect)
}

// Engine is a BigQuery-backed analytics engine.
type Engine struct {
	client *bq.Client
}

// New opens a BigQuery client.
//
// Edge cases:
//   - cfg.ProjectID is required.
//   - cfg.DSN, when non-empty, is treated as a service-account credentials
//     file path; when empty, application-default credentials are used.
func New(ctx context.Context, cfg engine.Config) (engine.Engine, error) {
	if cfg.ProjectID == "" {
		return nil, fmt.Errorf("bigquery: missing engine.project_id")
	}

	var opts []option.ClientOption
	if cfg.DSN != "" {
		opts = append(opts, option.WithCredentialsFile(cfg.DSN))
	}

	client, err := bq.NewClient(ctx, cfg.ProjectID, opts...)
	if err != nil {
		return nil, fmt.Errorf("bigquery: new client: %w", err)
	}
	return &Engine{client: client}, nil
}

// Close closes the underlying client.
func (e *Engine) Close() {
	_ = e.client.Close()
}

// Dialect returns the GoogleSQL dialect.
func (e *Engine) Dialect() engine.Dialect { return Dialect }

// Query runs a synchronous read and materializes all rows.
func (e *Engine) Query(ctx context.Context, sql string) ([]map[string]any, error) {
	q := e.client.Query(sql)
	it, err := q.Read(ctx)
	if err != nil {
		return nil, err
	}

	var out []map[string]any
	for {
		var row map[string]bq.Value
		err := it.Next(&row)
		if errors.Is(err, iterator.Done) {
			break
		}
		if err != nil {
			return nil, err
		}
		m := make(map[string]any, len(row))
		for k, v := range row {
			m[k] = v
		}
		out = append(out, m)
	}
	return out, nil
}

// SubmitJob starts the statement as an asynchronous job.
func (e *Engine) SubmitJob(ctx context.Context, sql string) (engine.JobHandle, error) {
	job, err := e.client.Query(sql).Run(ctx)
	if err != nil {
		return nil, err
	}
	return &jobHandle{job: job}, nil
}

type jobHandle struct {
	job *bq.Job
}

func (h *jobHandle) ID() string { return h.job.ID() }

// Wait blocks until the job is terminal and reports the embedded status
// error separately from the wait error.
func (h *jobHandle) Wait(ctx context.Context) (engine.JobResult, error) {
	status, err := h.job.Wait(ctx)
	if err != nil {
		return engine.JobResult{}, err
	}

	res := engine.JobResult{State: engine.JobSucceeded}
	if serr := status.Err(); serr != nil {
		res.State = engine.JobFailed
		res.Err = serr
	}
	return res, nil
}

// RefreshMaterializedView calls the BQ.REFRESH_MATERIALIZED_VIEW procedure
// and waits for the refresh job to finish.
func (e *Engine) RefreshMaterializedView(ctx context.Context, dataset, view string) error {
	stmt := Dialect.RefreshMaterializedViewSQL(Dialect.TableRef(dataset, view))

	job, err := e.client.Query(stmt).Run(ctx)
	if err != nil {
		return err
	}
	status, err := job.Wait(ctx)
	if err != nil {
		return err
	}
	return status.Err()
}

// TableExists checks table/view metadata, mapping "not found" to false.
func (e *Engine) TableExists(ctx context.Context, dataset, table string) (bool, error) {
	_, err := e.client.Dataset(dataset).Table(table).Metadata(ctx)
	if err == nil {
		return true, nil
	}
	var gerr *googleapi.Error
	if errors.As(err, &gerr) && gerr.Code == 404 {
		return false, nil
	}
	return false, err
}
