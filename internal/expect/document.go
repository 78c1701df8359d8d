// Package expect loads and models expectation documents.
//
// An expectation document is a structured reference value (mappings, sequences,
// scalars) describing the trace segments the system under test is expected to
// report. Documents are authored in YAML:
//
//	segmentItems:
//	  - serviceName: producer
//	    segmentSize: 1
//	    segments:
//	      - segmentId: not null
//	        spans:
//	          - operationName: /ping
//	            parentSpanId: -1
//	            spanId: 0
//	            startTime: not null
//
// # Wildcard Markers
//
// Two markers relax the comparison for non-deterministic fields:
//
//   - "not null": matches any present, non-null value at that position.
//     The key or index must still exist in the observed document.
//   - "...": as the trailing element of a sequence, marks the sequence as
//     prefix-only — the observed sequence may contain additional elements
//     beyond those listed before the marker.
//
// Wildcards never tolerate absence: a missing key or index is always a
// mismatch, marker or not.
package expect

// Wildcard marker values recognized in expectation documents.
const (
	// WildcardNotNull matches any present, non-null observed value.
	WildcardNotNull = "not null"

	// SequencePrefixMarker, as the last element of an expected sequence,
	// switches the sequence to prefix-only length semantics.
	SequencePrefixMarker = "..."
)

// Document is an immutable expectation loaded from a file.
// It is read exactly once per run and never mutated afterwards.
type Document struct {
	// Root is the decoded document tree: map[string]any, []any, or a scalar.
	Root any

	// Source is the file path the document was loaded from, for diagnostics.
	Source string
}

// IsWildcard reports whether v is the scalar wildcard marker.
func IsWildcard(v any) bool {
	s, ok := v.(string)
	return ok && s == WildcardNotNull
}

// HasPrefixMarker reports whether seq ends with the prefix-only marker.
func HasPrefixMarker(seq []any) bool {
	if len(seq) == 0 {
		return false
	}
	s, ok := seq[len(seq)-1].(string)
	return ok && s == SequencePrefixMarker
}

// TrimPrefixMarker returns seq without a trailing prefix-only marker.
// The input is returned unchanged if no marker is present.
func TrimPrefixMarker(seq []any) []any {
	if HasPrefixMarker(seq) {
		return seq[:len(seq)-1]
	}
	return seq
}
