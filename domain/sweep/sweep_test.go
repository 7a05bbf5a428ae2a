package sweep_test

import (
	"errors"
	"reflect"
	"testing"

	"github.com/ssciwr/afwizard/domain/sweep"
)

func TestExpandInts(t *testing.T) {
	tests := []struct {
		spec string
		want []int
	}{
		{"1,2,3", []int{1, 2, 3}},
		{"1:5", []int{1, 2, 3, 4, 5}},
		{"1:5:2", []int{1, 3, 5}},
		{"1:6:2", []int{1, 3, 5}},
		{"5:1:-2", []int{5, 3, 1}},
		{"2:2:1", []int{2}},
		{"7", []int{7}},
		{"1,3:5,9", []int{1, 3, 4, 5, 9}},
		{"1,1:3", []int{1, 1, 2, 3}},
		{"-3:-1", []int{-3, -2, -1}},
	}

	for _, tt := range tests {
		got, err := sweep.ExpandInts(tt.spec)
		if err != nil {
			t.Errorf("ExpandInts(%q): %v", tt.spec, err)
			continue
		}
		if !reflect.DeepEqual(got, tt.want) {
			t.Errorf("ExpandInts(%q) = %v, want %v", tt.spec, got, tt.want)
		}
	}
}

func TestExpandInts_Errors(t *testing.T) {
	specs := []string{"5:1", "1:5:-1", "5:1:2", "1:5:0", "a:5", "1:5:2:1", "", "1,,2", "1.5"}

	for _, spec := range specs {
		_, err := sweep.ExpandInts(spec)
		if err == nil {
			t.Errorf("ExpandInts(%q): expected error", spec)
			continue
		}
		var re *sweep.RangeError
		if !errors.As(err, &re) {
			t.Errorf("ExpandInts(%q): error type = %T, want *sweep.RangeError", spec, err)
		}
	}
}

func TestExpandFloats_ExplicitIncrement(t *testing.T) {
	tests := []struct {
		spec string
		want []float64
	}{
		{"0:1:0.25", []float64{0, 0.25, 0.5, 0.75, 1.0}},
		{"0.1:0.3:0.1", []float64{0.1, 0.2, 0.3}},
		{"5:1:-2", []float64{5, 3, 1}},
		{"1.5", []float64{1.5}},
		{"0.5,0.5", []float64{0.5, 0.5}},
	}

	for _, tt := range tests {
		got, err := sweep.ExpandFloats(tt.spec)
		if err != nil {
			t.Errorf("ExpandFloats(%q): %v", tt.spec, err)
			continue
		}
		if !reflect.DeepEqual(got, tt.want) {
			t.Errorf("ExpandFloats(%q) = %v, want %v", tt.spec, got, tt.want)
		}
	}
}

func TestExpandFloats_SamplesWithoutIncrement(t *testing.T) {
	got, err := sweep.ExpandFloats("0:1")
	if err != nil {
		t.Fatalf("ExpandFloats: %v", err)
	}
	want := []float64{0, 0.25, 0.5, 0.75, 1.0}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("ExpandFloats(0:1) = %v, want %v", got, want)
	}

	got, err = sweep.ExpandFloats("2:2")
	if err != nil {
		t.Fatalf("ExpandFloats: %v", err)
	}
	if len(got) != 5 {
		t.Errorf("ExpandFloats(2:2) produced %d samples, want 5", len(got))
	}
}

func TestExpandFloats_Errors(t *testing.T) {
	for _, spec := range []string{"5:1", "0:1:-0.25", "0:1:0", "low:high", ""} {
		if _, err := sweep.ExpandFloats(spec); err == nil {
			t.Errorf("ExpandFloats(%q): expected error", spec)
		}
	}
}

func TestExpandStrings(t *testing.T) {
	got := sweep.ExpandStrings("urban, forest,alpine")
	want := []string{"urban", "forest", "alpine"}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("ExpandStrings = %v, want %v", got, want)
	}
	if got := sweep.ExpandStrings(""); got != nil {
		t.Errorf("ExpandStrings(\"\") = %v, want nil", got)
	}
}

func TestExpand_KindDispatch(t *testing.T) {
	got, err := sweep.Expand("1:3", sweep.Integer)
	if err != nil {
		t.Fatalf("Expand: %v", err)
	}
	if !reflect.DeepEqual(got, []any{1, 2, 3}) {
		t.Errorf("Expand(1:3, integer) = %v", got)
	}

	if _, err := sweep.Expand("1:3", sweep.Kind("boolean")); err == nil {
		t.Error("expected error for unknown kind")
	}
}

func TestCombinations(t *testing.T) {
	got := sweep.Combinations([][]any{{1, 2}, {"x", "y"}})
	want := [][]any{{1, "x"}, {1, "y"}, {2, "x"}, {2, "y"}}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("Combinations = %v, want %v", got, want)
	}

	if got := sweep.Combinations([][]any{{1, 2}, {}}); got != nil {
		t.Errorf("Combinations with empty set = %v, want nil", got)
	}

	got = sweep.Combinations(nil)
	if len(got) != 1 || len(got[0]) != 0 {
		t.Errorf("Combinations(nil) = %v, want one empty combination", got)
	}
}
