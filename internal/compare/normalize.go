package compare

import (
	"fmt"
	"strconv"

	"golang.org/x/text/unicode/norm"
)

// scalarEqual compares two scalar values after normalization.
//
// Strings are NFC-normalized before byte comparison so that visually
// identical values from different producers compare equal. Numeric values
// compare semantically: 3, 3.0, and "3" are all equal, while "3" and "3x"
// are not. Everything else requires exact type-and-value equality.
func scalarEqual(expected, observed any) bool {
	if expected == nil || observed == nil {
		return expected == nil && observed == nil
	}

	if eb, ok := expected.(bool); ok {
		ob, ok := observed.(bool)
		return ok && eb == ob
	}

	// Numeric comparison first: both sides representable as numbers wins
	// over string comparison, so "128" matches 128.
	if en, eok := numericValue(expected); eok {
		if on, ook := numericValue(observed); ook {
			return numbersEqual(en, on)
		}
		return false
	}

	es, eok := expected.(string)
	os, ook := observed.(string)
	if eok && ook {
		return norm.NFC.String(es) == norm.NFC.String(os)
	}

	return false
}

// number carries a parsed numeric value in both integer and float form.
// Integers that fit in int64 compare exactly; everything else falls back
// to float comparison.
type number struct {
	i       int64
	f       float64
	integer bool
}

func numericValue(v any) (number, bool) {
	switch n := v.(type) {
	case int:
		return number{i: int64(n), f: float64(n), integer: true}, true
	case int64:
		return number{i: n, f: float64(n), integer: true}, true
	case uint64:
		if n <= 1<<63-1 {
			return number{i: int64(n), f: float64(n), integer: true}, true
		}
		return number{f: float64(n)}, true
	case float64:
		if n == float64(int64(n)) {
			return number{i: int64(n), f: n, integer: true}, true
		}
		return number{f: n}, true
	case string:
		if i, err := strconv.ParseInt(n, 10, 64); err == nil {
			return number{i: i, f: float64(i), integer: true}, true
		}
		if f, err := strconv.ParseFloat(n, 64); err == nil {
			return numericValue(f)
		}
		return number{}, false
	default:
		return number{}, false
	}
}

func numbersEqual(a, b number) bool {
	if a.integer && b.integer {
		return a.i == b.i
	}
	return a.f == b.f
}

// formatValue renders a value for mismatch diagnostics.
func formatValue(v any) string {
	switch val := v.(type) {
	case nil:
		return "null"
	case absent:
		return "<absent>"
	case string:
		return strconv.Quote(val)
	case map[string]any:
		return fmt.Sprintf("<mapping with %d keys>", len(val))
	case []any:
		return fmt.Sprintf("<sequence of %d>", len(val))
	default:
		return fmt.Sprintf("%v", val)
	}
}

// absent marks a key or index missing from the observed document.
type absent struct{}
