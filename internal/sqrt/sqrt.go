// Package sqrt pairs integers with their square roots on a compute context
// and reports each pair as one line of text.
package sqrt

import (
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"
)

// ErrNegativeInput is returned for values without a real square root.
var ErrNegativeInput = errors.New("sqrt: negative input")

// DerivedPair is an input value together with its square root.
type DerivedPair struct {
	Value int
	Root  float64
}

// SquareRoot pairs v with its square root. Negative values are rejected.
func SquareRoot(v int) (DerivedPair, error) {
	if v < 0 {
		return DerivedPair{}, fmt.Errorf("%w: %d", ErrNegativeInput, v)
	}
	return DerivedPair{Value: v, Root: math.Sqrt(float64(v))}, nil
}

// Format renders p as "The square root of <Value> is <Root>". The root is
// written as the shortest decimal that round-trips, always with a
// fractional part.
func Format(p DerivedPair) string {
	return "The square root of " + strconv.Itoa(p.Value) + " is " + formatFloat(p.Root)
}

func formatFloat(f float64) string {
	s := strconv.FormatFloat(f, 'f', -1, 64)
	if !strings.Contains(s, ".") {
		s += ".0"
	}
	return s
}

// Input returns the values processed by a default run.
func Input() []int {
	return []int{35, 12, 90, 20}
}
