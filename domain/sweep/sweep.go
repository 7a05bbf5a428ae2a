// Package sweep expands compact range notations into explicit value lists
// and builds the cartesian product of parameter candidates. It powers both
// batch exploration of filter parameters and the default-value substitution
// during filter construction. Expansion results are transient; they are
// never written into pipeline files.
package sweep

import (
	"fmt"
	"math"
	"strconv"
	"strings"
)

// Kind selects the value domain a specification is expanded in.
type Kind string

// Value domains of end-user-tunable parameters.
const (
	String  Kind = "string"
	Integer Kind = "integer"
	Number  Kind = "number"
)

// RangeError reports a malformed range specification.
type RangeError struct {
	Spec   string
	Reason string
}

func (e *RangeError) Error() string {
	return fmt.Sprintf("invalid range %q: %s", e.Spec, e.Reason)
}

// Expand evaluates a specification in the given domain. The notation is a
// comma-separated list of segments; in the numeric domains a segment may be
// a range:
//
//	"1,2,3"      explicit values
//	"1:5"        integers 1..5 (step one, bounds included)
//	"0.0:2.0"    5 evenly spaced samples, endpoints included
//	"0:1:0.25"   explicit increment: 0, 0.25, 0.5, 0.75, 1
//	"5:1:-2"     descending with negative increment: 5, 3, 1
//
// Reversed bounds without an increment and increments pointing away from
// the upper bound are rejected. Order is preserved and duplicates are kept.
func Expand(spec string, kind Kind) ([]any, error) {
	switch kind {
	case String:
		values := ExpandStrings(spec)
		return generalize(values), nil
	case Integer:
		values, err := ExpandInts(spec)
		if err != nil {
			return nil, err
		}
		return generalize(values), nil
	case Number:
		values, err := ExpandFloats(spec)
		if err != nil {
			return nil, err
		}
		return generalize(values), nil
	default:
		return nil, &RangeError{Spec: spec, Reason: fmt.Sprintf("unknown value domain %q", kind)}
	}
}

// ExpandStrings splits a plain comma list. Strings have no range notation.
func ExpandStrings(spec string) []string {
	if strings.TrimSpace(spec) == "" {
		return nil
	}
	parts := strings.Split(spec, ",")
	values := make([]string, 0, len(parts))
	for _, p := range parts {
		values = append(values, strings.TrimSpace(p))
	}
	return values
}

// ExpandInts evaluates a specification in the integer domain.
func ExpandInts(spec string) ([]int, error) {
	segments, err := split(spec)
	if err != nil {
		return nil, err
	}
	var values []int
	for _, seg := range segments {
		expanded, err := expandIntSegment(spec, seg)
		if err != nil {
			return nil, err
		}
		values = append(values, expanded...)
	}
	return values, nil
}

// ExpandFloats evaluates a specification in the floating point domain.
func ExpandFloats(spec string) ([]float64, error) {
	segments, err := split(spec)
	if err != nil {
		return nil, err
	}
	var values []float64
	for _, seg := range segments {
		expanded, err := expandFloatSegment(spec, seg)
		if err != nil {
			return nil, err
		}
		values = append(values, expanded...)
	}
	return values, nil
}

// Combinations returns the cartesian product of the candidate sets, first
// set varying slowest. An empty input yields one empty combination; any
// empty set yields no combinations.
func Combinations(sets [][]any) [][]any {
	total := 1
	for _, s := range sets {
		total *= len(s)
	}
	if total == 0 {
		return nil
	}
	combos := make([][]any, 0, total)
	idx := make([]int, len(sets))
	for {
		combo := make([]any, len(sets))
		for i, s := range sets {
			combo[i] = s[idx[i]]
		}
		combos = append(combos, combo)

		pos := len(sets) - 1
		for pos >= 0 {
			idx[pos]++
			if idx[pos] < len(sets[pos]) {
				break
			}
			idx[pos] = 0
			pos--
		}
		if pos < 0 {
			return combos
		}
	}
}

func split(spec string) ([]string, error) {
	if strings.TrimSpace(spec) == "" {
		return nil, &RangeError{Spec: spec, Reason: "empty specification"}
	}
	parts := strings.Split(spec, ",")
	segments := make([]string, 0, len(parts))
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p == "" {
			return nil, &RangeError{Spec: spec, Reason: "empty segment"}
		}
		segments = append(segments, p)
	}
	return segments, nil
}

func expandIntSegment(spec, seg string) ([]int, error) {
	bounds := strings.Split(seg, ":")
	nums := make([]int, len(bounds))
	for i, b := range bounds {
		n, err := strconv.Atoi(strings.TrimSpace(b))
		if err != nil {
			return nil, &RangeError{Spec: spec, Reason: fmt.Sprintf("%q is not an integer", strings.TrimSpace(b))}
		}
		nums[i] = n
	}

	switch len(bounds) {
	case 1:
		return nums[:1], nil
	case 2:
		lo, hi := nums[0], nums[1]
		if lo > hi {
			return nil, &RangeError{Spec: spec, Reason: fmt.Sprintf("reversed bounds %d:%d need an explicit negative increment", lo, hi)}
		}
		values := make([]int, 0, hi-lo+1)
		for v := lo; v <= hi; v++ {
			values = append(values, v)
		}
		return values, nil
	case 3:
		lo, hi, step := nums[0], nums[1], nums[2]
		if err := checkStep(spec, float64(lo), float64(hi), float64(step)); err != nil {
			return nil, err
		}
		var values []int
		if step > 0 {
			for v := lo; v <= hi; v += step {
				values = append(values, v)
			}
		} else {
			for v := lo; v >= hi; v += step {
				values = append(values, v)
			}
		}
		return values, nil
	default:
		return nil, &RangeError{Spec: spec, Reason: "at most min:max:step components allowed"}
	}
}

// linspaceSamples is the number of evenly spaced values generated for a
// floating point range without an explicit increment.
const linspaceSamples = 5

func expandFloatSegment(spec, seg string) ([]float64, error) {
	bounds := strings.Split(seg, ":")
	nums := make([]float64, len(bounds))
	for i, b := range bounds {
		n, err := strconv.ParseFloat(strings.TrimSpace(b), 64)
		if err != nil {
			return nil, &RangeError{Spec: spec, Reason: fmt.Sprintf("%q is not a number", strings.TrimSpace(b))}
		}
		nums[i] = n
	}

	switch len(bounds) {
	case 1:
		return nums[:1], nil
	case 2:
		lo, hi := nums[0], nums[1]
		if lo > hi {
			return nil, &RangeError{Spec: spec, Reason: fmt.Sprintf("reversed bounds %v:%v need an explicit negative increment", lo, hi)}
		}
		values := make([]float64, linspaceSamples)
		for i := range values {
			values[i] = lo + float64(i)*(hi-lo)/float64(linspaceSamples-1)
		}
		return values, nil
	case 3:
		lo, hi, step := nums[0], nums[1], nums[2]
		if err := checkStep(spec, lo, hi, step); err != nil {
			return nil, err
		}
		count := int(math.Floor((hi-lo)/step+1e-9)) + 1
		decimals := maxDecimals(bounds)
		values := make([]float64, 0, count)
		for i := 0; i < count; i++ {
			values = append(values, roundTo(lo+float64(i)*step, decimals))
		}
		return values, nil
	default:
		return nil, &RangeError{Spec: spec, Reason: "at most min:max:step components allowed"}
	}
}

func checkStep(spec string, lo, hi, step float64) error {
	if step == 0 {
		return &RangeError{Spec: spec, Reason: "increment must not be zero"}
	}
	if lo != hi && (hi-lo)*step < 0 {
		return &RangeError{Spec: spec, Reason: fmt.Sprintf("increment %v points away from the upper bound", step)}
	}
	return nil
}

// maxDecimals counts the widest fractional part among the literals so that
// generated values can be rounded back onto the user's grid. Exponent
// notation disables the rounding.
func maxDecimals(literals []string) int {
	decimals := 0
	for _, l := range literals {
		if strings.ContainsAny(l, "eE") {
			return -1
		}
		if i := strings.IndexByte(l, '.'); i >= 0 {
			if d := len(strings.TrimSpace(l)) - i - 1; d > decimals {
				decimals = d
			}
		}
	}
	return decimals
}

func roundTo(v float64, decimals int) float64 {
	if decimals < 0 {
		return v
	}
	pow := math.Pow(10, float64(decimals))
	return math.Round(v*pow) / pow
}

func generalize[T any](values []T) []any {
	out := make([]any, len(values))
	for i, v := range values {
		out[i] = v
	}
	return out
}
