package calc

import (
	"strconv"
	"strings"
)

// resultPrecision is the number of decimals kept for non-integer results.
const resultPrecision = 6

// Aggregate folds values with op, seeded with op's identity. An empty slice
// yields the identity; callers must treat "no sources" as a retirement, not
// as a result.
func Aggregate(op Operation, values []float64) float64 {
	acc := op.Identity()
	for _, v := range values {
		acc = op.Apply(acc, v)
	}
	return acc
}

// FormatResult renders v for display. Integers have no fractional part, other
// values are rounded to six decimals with trailing zeros stripped.
func FormatResult(v float64) string {
	s := strconv.FormatFloat(v, 'f', resultPrecision, 64)
	if !strings.Contains(s, ".") {
		// NaN and ±Inf
		return s
	}
	s = strings.TrimRight(s, "0")
	s = strings.TrimSuffix(s, ".")
	if s == "-0" {
		return "0"
	}
	return s
}
