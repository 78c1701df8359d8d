// Package compare implements tolerant structural comparison between an
// expectation document and an observed document.
//
// Comparison is a pure function over two document trees: no I/O, no clock,
// no retry policy. The retry loop in internal/verify owns all side effects.
//
// Semantics:
//
//   - Mappings use permissive superset matching: every non-wildcard key in
//     the expectation must be present in the observed document with a
//     matching value, while extra observed keys are ignored. Instrumented
//     services legitimately emit fields the expectation does not pin down.
//   - Sequences compare element-by-element by index. A length mismatch is a
//     failure unless the expectation ends with the prefix-only marker.
//   - Scalars compare after normalization: strings are NFC-normalized and
//     numeric values compare semantically across int, float, and
//     numeric-string representations.
//   - The "not null" wildcard matches any present, non-null value.
//
// Every divergence is recorded with its structural path, e.g.
// segmentItems[0].segments[2].operationName.
package compare

import (
	"fmt"
	"sort"

	"traceverify/internal/expect"
)

// Mismatch describes a single structural divergence.
type Mismatch struct {
	// Path locates the divergence, e.g. "segments[0].spans[1].operationName".
	// The document root is "$".
	Path string `json:"path"`

	// Expected is a human-readable rendering of the expected value.
	Expected string `json:"expected"`

	// Actual is a human-readable rendering of the observed value.
	Actual string `json:"actual"`
}

// String renders the mismatch for diagnostics.
func (m Mismatch) String() string {
	return fmt.Sprintf("%s: expected %s, got %s", m.Path, m.Expected, m.Actual)
}

// Result is the outcome of one comparison. It is produced fresh per attempt.
type Result struct {
	// Match is true when the observed document satisfies the expectation.
	Match bool `json:"match"`

	// Mismatches lists every divergence found, in walk order.
	Mismatches []Mismatch `json:"mismatches,omitempty"`
}

// First returns the first mismatch found, or nil if the documents matched.
func (r *Result) First() *Mismatch {
	if len(r.Mismatches) == 0 {
		return nil
	}
	return &r.Mismatches[0]
}

// Compare walks the expectation and observed documents in parallel by
// structural position and returns all divergences. The inputs are not
// mutated.
func Compare(expected, observed any) *Result {
	res := &Result{Match: true}
	walk("$", expected, observed, res)
	return res
}

func (r *Result) add(path string, expected, actual any) {
	r.Match = false
	r.Mismatches = append(r.Mismatches, Mismatch{
		Path:     path,
		Expected: formatValue(expected),
		Actual:   formatValue(actual),
	})
}

func walk(path string, expected, observed any, res *Result) {
	// Wildcards match any present, non-null value regardless of shape.
	if expect.IsWildcard(expected) {
		if observed == nil {
			res.add(path, expected, nil)
		}
		return
	}

	switch exp := expected.(type) {
	case map[string]any:
		walkMapping(path, exp, observed, res)
	case []any:
		walkSequence(path, exp, observed, res)
	default:
		if !scalarEqual(expected, observed) {
			res.add(path, expected, observed)
		}
	}
}

func walkMapping(path string, expected map[string]any, observed any, res *Result) {
	obs, ok := observed.(map[string]any)
	if !ok {
		res.add(path, expected, observed)
		return
	}

	// Sorted keys keep mismatch order deterministic across runs.
	keys := make([]string, 0, len(expected))
	for k := range expected {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	for _, key := range keys {
		childPath := path + "." + key
		if path == "$" {
			childPath = key
		}
		val, exists := obs[key]
		if !exists {
			res.add(childPath, expected[key], absent{})
			continue
		}
		walk(childPath, expected[key], val, res)
	}
}

func walkSequence(path string, expected []any, observed any, res *Result) {
	obs, ok := observed.([]any)
	if !ok {
		res.add(path, expected, observed)
		return
	}

	prefixOnly := expect.HasPrefixMarker(expected)
	expected = expect.TrimPrefixMarker(expected)

	if len(obs) < len(expected) || (!prefixOnly && len(obs) != len(expected)) {
		res.add(path+".length", len(expected), len(obs))
		return
	}

	for i, elem := range expected {
		walk(fmt.Sprintf("%s[%d]", path, i), elem, obs[i], res)
	}
}
