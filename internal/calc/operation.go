// Package calc holds the pure arithmetic behind calculator notes: the
// operation set, the numeric filter, the fold and the result formatting.
package calc

import (
	"fmt"
	"strings"

	"github.com/starford/tally/internal/apperr"
)

// Operation is the closed set of folds a calculator note can apply.
type Operation int

const (
	Sum Operation = iota + 1
	Product
)

// Operations lists every supported operation.
var Operations = []Operation{Sum, Product}

// ParseOperation accepts the text form ("sum", "product") or a display symbol.
func ParseOperation(s string) (Operation, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "sum", "+":
		return Sum, nil
	case "product", "×", "*", "x":
		return Product, nil
	}
	return 0, fmt.Errorf("calc: unknown operation %q: %w", s, apperr.ErrValidation)
}

// Valid reports whether o is one of the supported operations.
func (o Operation) Valid() bool {
	switch o {
	case Sum, Product:
		return true
	}
	return false
}

func (o Operation) String() string {
	switch o {
	case Sum:
		return "sum"
	case Product:
		return "product"
	}
	return fmt.Sprintf("operation(%d)", int(o))
}

// Symbol is the display symbol shown next to results.
func (o Operation) Symbol() string {
	switch o {
	case Sum:
		return "+"
	case Product:
		return "×"
	}
	return "?"
}

// Identity is the fold seed.
func (o Operation) Identity() float64 {
	switch o {
	case Sum:
		return 0
	case Product:
		return 1
	}
	panic(fmt.Sprintf("calc: identity of invalid %s", o))
}

// Apply is a single fold step.
func (o Operation) Apply(acc, v float64) float64 {
	switch o {
	case Sum:
		return acc + v
	case Product:
		return acc * v
	}
	panic(fmt.Sprintf("calc: apply of invalid %s", o))
}

// MarshalText implements encoding.TextMarshaler.
func (o Operation) MarshalText() ([]byte, error) {
	if !o.Valid() {
		return nil, fmt.Errorf("calc: marshal invalid %s", o)
	}
	return []byte(o.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (o *Operation) UnmarshalText(text []byte) error {
	op, err := ParseOperation(string(text))
	if err != nil {
		return err
	}
	*o = op
	return nil
}
