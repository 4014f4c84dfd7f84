// Package sampler discovers the dynamic shape of the order table's
// extension_attributes column and turns the discovered keys into safely
// named output columns for the flattened-orders view.
//
// Design constraints:
//   - Sampling must be bounded (row count and therefore memory).
//   - Key extraction is best-effort per row and must never fail the run:
//     a malformed row contributes nothing and is logged.
//   - Output must be deterministic across runs on the same data, because
//     generated view definitions are compared and replaced by name.
package sampler

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"sort"

	"aggregator/internal/engine"
)

// DefaultSampleRows bounds how many recent orders are inspected.
const DefaultSampleRows = 200

// Sampler reads a bounded sample of recent orders and extracts the union
// of top-level keys found in the extension attributes column.
type Sampler struct {
	Engine engine.Engine

	// SampleRows overrides DefaultSampleRows when > 0.
	SampleRows int
}

// Sample returns the deduplicated, sorted key set discovered across the
// sample.
//
// Errors:
//   - Returns an error only when the sample read itself fails (engine
//     unavailable, missing table, permissions). Callers are expected to
//     degrade to "no extension columns" rather than failing the build.
//   - Per-row problems (NULL field, unparsable JSON, non-object value) are
//     logged and skipped, never returned.
func (s *Sampler) Sample(ctx context.Context, dataset string) ([]string, error) {
	n := s.SampleRows
	if n <= 0 {
		n = DefaultSampleRows
	}

	d := s.Engine.Dialect()
	q := fmt.Sprintf(
		"SELECT %s FROM %s WHERE %s IS NOT NULL ORDER BY %s DESC %s",
		d.QuoteIdent("extension_attributes"),
		d.TableRef(dataset, "orders"),
		d.QuoteIdent("extension_attributes"),
		d.QuoteIdent("created_at"),
		d.LimitRecent(n),
	)

	rows, err := s.Engine.Query(ctx, q)
	if err != nil {
		return nil, fmt.Errorf("sample extension attributes: %w", err)
	}

	seen := map[string]struct{}{}
	skipped := 0
	for _, row := range rows {
		keys, ok := extensionKeys(row["extension_attributes"])
		if !ok {
			skipped++
			continue
		}
		for _, k := range keys {
			seen[k] = struct{}{}
		}
	}
	if skipped > 0 {
		log.Printf("sampler: skipped %d of %d sampled rows with unusable extension attributes", skipped, len(rows))
	}

	out := make([]string, 0, len(seen))
	for k := range seen {
		out = append(out, k)
	}
	sort.Strings(out)
	return out, nil
}

// extensionKeys extracts the top-level key set from one sampled value.
//
// The column has no fixed shape: depending on the backend and on how the
// upstream loader wrote the row, the value arrives as an already-decoded
// map, as serialized JSON text, or as raw bytes. Anything that is not a
// key/value mapping after decoding is rejected.
func extensionKeys(v any) ([]string, bool) {
	switch t := v.(type) {
	case nil:
		return nil, false
	case map[string]any:
		keys := make([]string, 0, len(t))
		for k := range t {
			keys = append(keys, k)
		}
		return keys, true
	case string:
		return parseKeys([]byte(t))
	case []byte:
		return parseKeys(t)
	default:
		return nil, false
	}
}

func parseKeys(raw []byte) ([]string, bool) {
	var m map[string]json.RawMessage
	if err := json.Unmarshal(raw, &m); err != nil {
		return nil, false
	}
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	return keys, true
}
