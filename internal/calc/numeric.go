package calc

import (
	"fmt"
	"math"
	"strconv"
	"strings"

	"github.com/starford/tally/internal/apperr"
)

// IsNumericContent reports whether text is usable as a calculation input:
// after trimming it must parse fully as a finite float.
func IsNumericContent(text string) bool {
	_, err := ParseValue(text)
	return err == nil
}

// ParseValue parses numeric note content. No locale handling or thousands
// separators are supported.
func ParseValue(text string) (float64, error) {
	s := strings.TrimSpace(text)
	if s == "" {
		return 0, fmt.Errorf("calc: empty content: %w", apperr.ErrValidation)
	}
	v, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0, fmt.Errorf("calc: %q is not a number: %w", s, apperr.ErrValidation)
	}
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return 0, fmt.Errorf("calc: %q is not finite: %w", s, apperr.ErrValidation)
	}
	return v, nil
}
