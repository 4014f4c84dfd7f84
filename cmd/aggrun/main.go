package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"log"
	"os"
	"time"

	"aggregator/internal/aggregate"
	"aggregator/internal/config"
	"aggregator/internal/engine"
	"aggregator/internal/metrics"
	"aggregator/internal/metrics/datadog"

	_ "aggregator/internal/engine/all"
)

// main runs one aggregation kind (or all of them) once and prints the
// outcome as JSON. Intended for cron and for manual rebuilds; the exit code
// is non-zero when any kind fails, so schedulers can alert on it.
func main() {
	var (
		cfgPath           string
		kindFlg           string
		datasetFlg        string
		metricsBackendFlg string
	)

	flag.StringVar(&cfgPath, "config", "configs/aggregator.json", "service config JSON path")
	flag.StringVar(&kindFlg, "kind", "all", "aggregation kind to run (or \"all\")")
	flag.StringVar(&datasetFlg, "dataset", "", "target dataset (defaults to engine.dataset from the config)")
	flag.StringVar(&metricsBackendFlg, "metrics-backend", "none", "metrics backend to use (datadog, none)")

	flag.Parse()

	f, err := os.Open(cfgPath)
	if err != nil {
		fatalf("open config: %v", err)
	}
	defer f.Close()

	var cfg config.Config
	if err := json.NewDecoder(f).Decode(&cfg); err != nil {
		fatalf("decode config: %v", err)
	}

	hasError := false
	for _, iss := range config.Validate(cfg) {
		fmt.Fprintf(os.Stderr, "%s: %s: %s\n", iss.Severity, iss.Path, iss.Message)
		if iss.Severity == config.SeverityError {
			hasError = true
		}
	}
	if hasError {
		log.Printf("Configuration is invalid: %v", cfgPath)
		os.Exit(1)
	}

	if metricsBackendFlg == "datadog" {
		jobName := cfg.Job
		if jobName == "" {
			jobName = "aggrun"
		}
		b, err := datadog.NewBackend(context.Background(), datadog.Options{
			JobName: jobName,
			Tags:    datadog.ParseTagsCSV(os.Getenv("METRICS_TAGS")),
		})
		if err != nil {
			log.Printf("metrics: failed to init datadog backend: %v; using nop", err)
		} else {
			metrics.SetBackend(b)
			defer func() {
				if err := b.Close(); err != nil {
					log.Printf("metrics: datadog close/flush error: %v", err)
				}
			}()
		}
	}

	ctx := context.Background()

	eng, err := engine.New(ctx, engine.Config{
		Kind:      cfg.Engine.Kind,
		DSN:       cfg.Engine.DSN,
		ProjectID: cfg.Engine.ProjectID,
	})
	if err != nil {
		fatalf("open engine: %v", err)
	}
	defer eng.Close()

	orch := aggregate.NewOrchestrator(
		eng,
		time.Duration(cfg.Runtime.JobTimeout),
		cfg.Runtime.Concurrency,
		cfg.Sampler.SampleRows,
	)

	dataset := datasetFlg
	if dataset == "" {
		dataset = cfg.Engine.Dataset
	}

	req := aggregate.Request{DatasetID: dataset, Kind: kindFlg}
	kind, err := orch.Validate(req)
	if err != nil {
		fatalf("%v", err)
	}

	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")

	if kind == aggregate.KindAll {
		report, err := orch.RunAll(ctx, dataset)
		if err != nil {
			fatalf("%v", err)
		}
		if err := enc.Encode(report); err != nil {
			fatalf("encode report: %v", err)
		}
		if !report.AllSucceeded {
			os.Exit(1)
		}
		return
	}

	outcome, err := orch.RunOne(ctx, req)
	if err != nil {
		fatalf("%v", err)
	}
	if err := enc.Encode(outcome); err != nil {
		fatalf("encode outcome: %v", err)
	}
	if !outcome.Succeeded {
		os.Exit(1)
	}
}

func fatalf(format string, a ...any) {
	fmt.Fprintf(os.Stderr, format+"\n", a...)
	os.Exit(1)
}
