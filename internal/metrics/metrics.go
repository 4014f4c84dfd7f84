// Package metrics is a minimal facade between the aggregation pipeline and
// whatever metrics system is configured at startup.
//
// Design goals (intentionally opinionated):
//   - Core code depends only on this package, never on a vendor SDK.
//   - The default backend is a nop, so library code can emit metrics
//     unconditionally and tests need no setup.
//   - Backends buffer internally; Flush is the only synchronization point
//     the caller controls.
package metrics

import "sync"

// Labels attach low-cardinality dimensions to a metric observation.
type Labels map[string]string

// Backend is the minimal sink interface a metrics implementation provides.
type Backend interface {
	// IncCounter adds delta to a named counter. Implementations may ignore
	// metric names they do not understand.
	IncCounter(name string, delta float64, labels Labels)

	// ObserveHistogram records one sample of a named distribution.
	ObserveHistogram(name string, value float64, labels Labels)

	// Flush submits buffered metrics. Called at least once at shutdown.
	Flush() error
}

var (
	mu      sync.RWMutex
	backend Backend = nopBackend{}
)

// SetBackend installs the process-wide metrics backend. Call once at
// startup, before any pipeline work runs.
func SetBackend(b Backend) {
	if b == nil {
		b = nopBackend{}
	}
	mu.Lock()
	backend = b
	mu.Unlock()
}

// IncCounter adds delta to a named counter on the installed backend.
func IncCounter(name string, delta float64, labels Labels) {
	mu.RLock()
	b := backend
	mu.RUnlock()
	b.IncCounter(name, delta, labels)
}

// ObserveHistogram records one sample on the installed backend.
func ObserveHistogram(name string, value float64, labels Labels) {
	mu.RLock()
	b := backend
	mu.RUnlock()
	b.ObserveHistogram(name, value, labels)
}

// Flush flushes the installed backend.
func Flush() error {
	mu.RLock()
	b := backend
	mu.RUnlock()
	return b.Flush()
}

type nopBackend struct{}

func (nopBackend) IncCounter(string, float64, Labels)       {}
func (nopBackend) ObserveHistogram(string, float64, Labels) {}
func (nopBackend) Flush() error                             { return nil }
