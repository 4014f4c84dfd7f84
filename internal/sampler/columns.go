package sampler

import (
	"sort"
	"strconv"
	"strings"
	"unicode"

	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"

	"aggregator/internal/engine"
)

// MaxExtensionColumns caps how many discovered keys become view columns.
// The cap bounds generated statement size; keys are sorted before
// truncation so the cap is stable across runs on the same data.
const MaxExtensionColumns = 100

// aliasPrefix keeps derived aliases from colliding with the base columns
// of the flattened view.
const aliasPrefix = "ext_"

// ExtensionColumn is one discovered key turned into a view column.
type ExtensionColumn struct {
	// RawKey is the key exactly as found in the sampled data.
	RawKey string
	// Alias is the collision-free column identifier derived from RawKey.
	Alias string
	// Path is the JSONPath expression addressing RawKey at the top level.
	Path string
}

// Synthesize turns a discovered key set into view columns.
//
// Algorithm:
//   - sort keys (run-to-run stability), truncate to MaxExtensionColumns
//   - derive an alias per key; on collision append _2, _3, ... until
//     unique within this call
//   - build the JSONPath (dotted for simple identifiers, quoted member
//     with escaping otherwise)
//
// Pure function: no error conditions, empty input produces empty output.
func Synthesize(keys []string) []ExtensionColumn {
	sorted := make([]string, len(keys))
	copy(sorted, keys)
	sort.Strings(sorted)

	if len(sorted) > MaxExtensionColumns {
		sorted = sorted[:MaxExtensionColumns]
	}

	used := make(map[string]struct{}, len(sorted))
	out := make([]ExtensionColumn, 0, len(sorted))
	for _, key := range sorted {
		alias := deriveAlias(key)
		if _, taken := used[alias]; taken {
			base := alias
			for i := 2; ; i++ {
				alias = base + "_" + strconv.Itoa(i)
				if _, taken := used[alias]; !taken {
					break
				}
			}
		}
		used[alias] = struct{}{}

		out = append(out, ExtensionColumn{
			RawKey: key,
			Alias:  alias,
			Path:   engine.JSONPathForKey(key),
		})
	}
	return out
}

// asciiFold strips combining marks so accented keys ("propriété") produce
// plain-ASCII aliases instead of degenerating to underscores.
var asciiFold = transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)

// deriveAlias lower-cases the key, folds accents, collapses every
// non-alphanumeric run to a single underscore, strips edge underscores,
// and prefixes the result. A key with no usable characters becomes
// aliasPrefix + "field".
func deriveAlias(key string) string {
	folded, _, err := transform.String(asciiFold, key)
	if err != nil {
		folded = key
	}
	folded = strings.ToLower(folded)

	var b strings.Builder
	prevUnderscore := false
	for _, r := range folded {
		isAlnum := (r >= 'a' && r <= 'z') || (r >= '0' && r <= '9')
		if isAlnum {
			b.WriteRune(r)
			prevUnderscore = false
			continue
		}
		if !prevUnderscore && b.Len() > 0 {
			b.WriteByte('_')
			prevUnderscore = true
		}
	}

	name := strings.Trim(b.String(), "_")
	if name == "" {
		name = "field"
	}
	return aliasPrefix + name
}
