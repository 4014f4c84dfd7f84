// Package server exposes the aggregation trigger API.
//
// The surface is deliberately tiny: callers (the admin layer, cron) POST an
// aggregation request and get back either a single outcome or the batch
// report. Everything else about the system is driven by configuration.
package server

import (
	"encoding/json"
	"errors"
	"log"
	"net/http"
	"strconv"
	"time"

	"github.com/google/uuid"

	"aggregator/internal/aggregate"
	"aggregator/internal/metrics"
)

// Server handles the aggregation trigger endpoint.
type Server struct {
	orch *aggregate.Orchestrator

	// defaultDataset fills requests that omit dataset_id. May be empty, in
	// which case dataset_id is required per request.
	defaultDataset string
}

// New constructs a Server around an orchestrator.
func New(orch *aggregate.Orchestrator, defaultDataset string) *Server {
	return &Server{orch: orch, defaultDataset: defaultDataset}
}

// Handler returns the route table.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/v1/aggregations", requireMethod(http.MethodPost, s.handleAggregate))
	mux.HandleFunc("/healthz", requireMethod(http.MethodGet, s.handleHealthz))
	return mux
}

// requireMethod emulates the method-specific mux patterns available from Go
// 1.22 ("POST /path") on the Go 1.21 ServeMux: wrong methods get 405 with an
// Allow header, and GET handlers also accept HEAD.
func requireMethod(method string, h http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if r.Method != method && !(method == http.MethodGet && r.Method == http.MethodHead) {
			allow := method
			if method == http.MethodGet {
				allow = "GET, HEAD"
			}
			w.Header().Set("Allow", allow)
			http.Error(w, http.StatusText(http.StatusMethodNotAllowed), http.StatusMethodNotAllowed)
			return
		}
		h(w, r)
	}
}

func (s *Server) handleHealthz(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ok"))
}

// errorBody is the envelope for 4xx/5xx responses.
type errorBody struct {
	Success bool   `json:"success"`
	Error   string `json:"error"`
}

// singleBody is the envelope for a successful single-kind run.
type singleBody struct {
	Success bool   `json:"success"`
	Kind    string `json:"kind"`
}

func (s *Server) handleAggregate(w http.ResponseWriter, r *http.Request) {
	reqID := uuid.NewString()
	start := time.Now()

	status := http.StatusOK
	defer func() {
		metrics.IncCounter("agg_http_requests_total", 1,
			metrics.Labels{"status": strconv.Itoa(status)})
		metrics.ObserveHistogram("agg_http_request_duration_seconds",
			time.Since(start).Seconds(), nil)
	}()

	var req aggregate.Request
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		status = http.StatusBadRequest
		writeJSON(w, status, errorBody{Error: "invalid JSON body: " + err.Error()})
		return
	}
	if req.DatasetID == "" {
		req.DatasetID = s.defaultDataset
	}

	kind, err := s.orch.Validate(req)
	if err != nil {
		status = http.StatusBadRequest
		writeJSON(w, status, errorBody{Error: err.Error()})
		return
	}

	log.Printf("server: request=%s dataset=%s kind=%s", reqID, req.DatasetID, kind)
	w.Header().Set("X-Request-ID", reqID)

	if kind == aggregate.KindAll {
		report, err := s.orch.RunAll(r.Context(), req.DatasetID)
		if err != nil {
			status = statusFor(err)
			writeJSON(w, status, errorBody{Error: err.Error()})
			return
		}
		// Batch mode reports per-kind failures in the body; the request
		// itself succeeded (every kind was attempted).
		writeJSON(w, status, report)
		return
	}

	outcome, err := s.orch.RunOne(r.Context(), req)
	if err != nil {
		status = statusFor(err)
		writeJSON(w, status, errorBody{Error: err.Error()})
		return
	}
	if !outcome.Succeeded {
		status = http.StatusInternalServerError
		writeJSON(w, status, errorBody{Error: outcome.Error})
		return
	}
	writeJSON(w, status, singleBody{Success: true, Kind: string(outcome.Kind)})
}

func statusFor(err error) int {
	var verr *aggregate.ValidationError
	if errors.As(err, &verr) {
		return http.StatusBadRequest
	}
	return http.StatusInternalServerError
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Printf("server: encode response: %v", err)
	}
}
