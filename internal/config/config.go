// Package config defines the service configuration and its validation.
//
// Configuration is a single JSON document; mains decode it with
// encoding/json and refuse to start when validation reports errors.
package config

import (
	"fmt"
	"time"
)

// Config is the top-level service configuration.
type Config struct {
	// Job is the logical job name used for metrics tagging.
	Job string `json:"job"`

	Engine  Engine  `json:"engine"`
	HTTP    HTTP    `json:"http"`
	Sampler Sampler `json:"sampler"`
	Runtime Runtime `json:"runtime"`
}

// Engine selects and configures the analytics engine backend.
type Engine struct {
	// Kind: "bigquery" | "postgres" | "sqlite" | "mssql".
	Kind string `json:"kind"`

	// DSN is backend-specific: a connection string for the SQL backends, a
	// credentials file path (optional) for BigQuery.
	DSN string `json:"dsn"`

	// ProjectID is required for BigQuery, ignored elsewhere.
	ProjectID string `json:"project_id"`

	// Dataset is the default target namespace when a request omits one.
	Dataset string `json:"dataset"`
}

// HTTP configures the trigger API.
type HTTP struct {
	Addr string `json:"addr"`
}

// Sampler bounds schema discovery.
type Sampler struct {
	SampleRows int `json:"sample_rows"`
}

// Runtime controls execution behavior.
type Runtime struct {
	// JobTimeout bounds each submit-and-await step, e.g. "30m".
	JobTimeout Duration `json:"job_timeout"`

	// Concurrency bounds simultaneous kinds in batch mode; <= 1 runs
	// sequentially (the default, and the recommended setting unless the
	// engine's concurrent-job quota has headroom).
	Concurrency int `json:"concurrency"`
}

// Duration is a time.Duration that JSON-decodes from "30m"-style strings.
type Duration time.Duration

func (d *Duration) UnmarshalJSON(b []byte) error {
	if len(b) >= 2 && b[0] == '"' && b[len(b)-1] == '"' {
		v, err := time.ParseDuration(string(b[1 : len(b)-1]))
		if err != nil {
			return err
		}
		*d = Duration(v)
		return nil
	}
	return fmt.Errorf("duration must be a string like \"30m\", got %s", b)
}

func (d Duration) MarshalJSON() ([]byte, error) {
	return []byte(`"` + time.Duration(d).String() + `"`), nil
}

// Severity grades validation issues.
type Severity string

const (
	SeverityError   Severity = "error"
	SeverityWarning Severity = "warning"
)

// Issue is one validation finding. Path points into the JSON document.
type Issue struct {
	Severity Severity
	Path     string
	Message  string
}

var engineKinds = map[string]bool{
	"bigquery": true,
	"postgres": true,
	"sqlite":   true,
	"mssql":    true,
}

// Validate reports configuration problems. Errors prevent startup,
// warnings do not.
func Validate(c Config) []Issue {
	var issues []Issue
	errf := func(path, format string, a ...any) {
		issues = append(issues, Issue{SeverityError, path, fmt.Sprintf(format, a...)})
	}
	warnf := func(path, format string, a ...any) {
		issues = append(issues, Issue{SeverityWarning, path, fmt.Sprintf(format, a...)})
	}

	if c.Engine.Kind == "" {
		errf("engine.kind", "required")
	} else if !engineKinds[c.Engine.Kind] {
		errf("engine.kind", "unknown engine kind %q", c.Engine.Kind)
	}

	switch c.Engine.Kind {
	case "bigquery":
		if c.Engine.ProjectID == "" {
			errf("engine.project_id", "required for bigquery")
		}
	case "postgres", "mssql", "sqlite":
		if c.Engine.DSN == "" {
			errf("engine.dsn", "required for %s", c.Engine.Kind)
		}
	}

	if c.Engine.Dataset == "" {
		warnf("engine.dataset", "no default dataset; every request must carry dataset_id")
	}

	if c.Sampler.SampleRows < 0 {
		errf("sampler.sample_rows", "must be >= 0")
	}
	if c.Runtime.Concurrency < 0 {
		errf("runtime.concurrency", "must be >= 0")
	}
	if d := time.Duration(c.Runtime.JobTimeout); d < 0 {
		errf("runtime.job_timeout", "must be >= 0")
	} else if d > 0 && d < time.Minute {
		warnf("runtime.job_timeout", "%s is unusually short for engine jobs", d)
	}

	if c.Job == "" {
		warnf("job", "empty; metrics will use the default job name")
	}

	return issues
}
