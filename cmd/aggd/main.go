package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"log"
	"net/http"
	"os"
	"time"

	"aggregator/internal/aggregate"
	"aggregator/internal/config"
	"aggregator/internal/engine"
	"aggregator/internal/metrics"
	"aggregator/internal/metrics/datadog"
	"aggregator/internal/server"

	// register all engine backends with the factory.
	// config specifies which to use but we build in support for all of them.
	_ "aggregator/internal/engine/all"
)

// main is the entry point for the aggregation service. It loads the config,
// optionally initializes a metrics backend, opens the analytics engine, and
// serves the trigger API.
func main() {
	var (
		cfgPath           string
		metricsBackendFlg string
		validate          bool
	)

	flag.StringVar(&cfgPath, "config", "configs/aggregator.json", "service config JSON path")
	flag.StringVar(&metricsBackendFlg, "metrics-backend", "datadog", "metrics backend to use (datadog, none)")
	flag.BoolVar(&validate, "validate", false, "validate the configuration and exit")
	verbose := flag.Bool("v", false, "enable verbose logs")

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

	// Validate service config.
	issues := config.Validate(cfg)
	hasError := false
	for _, iss := range issues {
		fmt.Fprintf(os.Stderr, "%s: %s: %s\n", iss.Severity, iss.Path, iss.Message)
		if iss.Severity == config.SeverityError {
			hasError = true
		}
	}
	if hasError {
		log.Printf("Configuration is invalid: %v", cfgPath)
		os.Exit(1)
	}

	// If validate flag is set, only validate the configuration and exit
	if validate {
		log.Printf("Configuration is valid: %v", cfgPath)
		os.Exit(0)
	}

	// Decide metrics backend: flag → env → default.
	backendName := metricsBackendFlg
	if backendName == "" {
		backendName = os.Getenv("METRICS_BACKEND")
	}
	switch backendName {
	case "datadog":
		jobName := cfg.Job
		if jobName == "" {
			jobName = "aggregator"
		}

		extraTags := datadog.ParseTagsCSV(os.Getenv("METRICS_TAGS"))

		b, err := datadog.NewBackend(context.Background(), datadog.Options{
			JobName:    jobName,
			Tags:       extraTags,
			FlushEvery: 60 * time.Second,
		})
		if err != nil {
			log.Printf("metrics: failed to init datadog backend: %v; using nop", err)
		} else {
			log.Printf("metrics: backend=%v job_name=%v tags=%v", backendName, jobName, extraTags)
			metrics.SetBackend(b)

			// Close() stops the periodic flush loop and then performs a final
			// Flush(). This is the clean shutdown path for the backend.
			defer func() {
				if err := b.Close(); err != nil {
					log.Printf("metrics: datadog close/flush error: %v", err)
				}
			}()
		}

	case "", "none":
		// metrics disabled; nop backend remains
		if *verbose {
			log.Printf("metrics: disabled (backend=%q)", backendName)
		}

	default:
		log.Printf("metrics: unknown backend %q; metrics disabled", backendName)
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

	addr := cfg.HTTP.Addr
	if addr == "" {
		addr = ":8080"
	}

	srv := server.New(orch, cfg.Engine.Dataset)

	if *verbose {
		log.Printf("service: engine=%s dataset=%s addr=%s", cfg.Engine.Kind, cfg.Engine.Dataset, addr)
	}
	log.Printf("listening on %s", addr)
	if err := http.ListenAndServe(addr, srv.Handler()); err != nil {
		log.Fatalf("%v", err)
	}
}

func fatalf(format string, a ...any) {
	fmt.Fprintf(os.Stderr, format+"\n", a...)
	os.Exit(1)
}
