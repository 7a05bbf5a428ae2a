package opals

import (
	"reflect"
	"testing"
)

func TestConfigArguments(t *testing.T) {
	tests := []struct {
		name string
		cfg  map[string]any
		want []string
	}{
		{
			name: "sorted options",
			cfg: map[string]any{
				"_backend":     "opals",
				"type":         "RobFilter",
				"searchRadius": 2.5,
				"penetration":  20,
			},
			want: []string{"--penetration", "20", "--searchRadius", "2.5"},
		},
		{
			name: "empty strings are skipped",
			cfg: map[string]any{
				"type":          "RobFilter",
				"interpolation": "",
				"maxIter":       5,
			},
			want: []string{"--maxIter", "5"},
		},
		{
			name: "arrays flatten to one token per element",
			cfg: map[string]any{
				"type":   "RobFilter",
				"filter": []any{"Echo[last]", "Class[2]"},
			},
			want: []string{"--filter", "Echo[last]", "Class[2]"},
		},
		{
			name: "no options",
			cfg:  map[string]any{"_backend": "opals", "type": "RobFilter"},
			want: nil,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := configArguments(tt.cfg)
			if !reflect.DeepEqual(got, tt.want) {
				t.Errorf("configArguments() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestStringifyValue(t *testing.T) {
	tests := []struct {
		value any
		want  []string
	}{
		{2.5, []string{"2.5"}},
		{float64(10), []string{"10"}},
		{42, []string{"42"}},
		{true, []string{"true"}},
		{"plane", []string{"plane"}},
		{[]any{1, []any{2, 3}}, []string{"1", "2", "3"}},
	}
	for _, tt := range tests {
		got := stringifyValue(tt.value)
		if !reflect.DeepEqual(got, tt.want) {
			t.Errorf("stringifyValue(%v) = %v, want %v", tt.value, got, tt.want)
		}
	}
}
