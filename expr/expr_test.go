package expr

import (
	"math"
	"testing"
)

func TestEval(t *testing.T) {
	tests := []struct {
		input string
		want  float64
	}{
		{"2 + 2", 4},
		{"2 + 2 * 3", 8},
		{"(2 + 2) * 3", 12},
		{"15 * 23", 345},
		{"10 / 4", 2.5},
		{"-5 + 3", -2},
		{"-(2 + 3)", -5},
		{"--4", 4},
		{"3.5 * 2", 7},
		{".5 + .25", 0.75},
		{"1 - 2 - 3", -4},
		{"100 / 10 / 2", 5},
		{"  42  ", 42},
		{"((((7))))", 7},
	}
	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			got, err := Eval(tt.input)
			if err != nil {
				t.Fatalf("Eval(%q): %v", tt.input, err)
			}
			if math.Abs(got-tt.want) > 1e-9 {
				t.Errorf("Eval(%q) = %v, want %v", tt.input, got, tt.want)
			}
		})
	}
}

func TestEvalErrors(t *testing.T) {
	tests := []struct {
		name  string
		input string
	}{
		{"letters", "2 + x"},
		{"import", "__import__('os')"},
		{"power operator", "2 ** 3"},
		{"empty", ""},
		{"dangling operator", "2 +"},
		{"unbalanced parens", "(2 + 3"},
		{"division by zero", "1 / 0"},
		{"division by parenthesized zero", "5 / (3 - 3)"},
		{"bare comma", "1, 2"},
		{"double dot", "1..5 + 2"},
		{"trailing garbage", "2 + 3 )"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := Eval(tt.input); err == nil {
				t.Errorf("Eval(%q) expected error", tt.input)
			}
		})
	}
}
