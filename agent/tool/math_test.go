package tool

import (
	"errors"
	"testing"
)

func TestEvaluate(t *testing.T) {
	t.Parallel()

	tests := []struct {
		expr string
		want float64
	}{
		{"2+3", 5},
		{"2 + 3 * 4", 14},
		{"(2 + 3) * 4", 20},
		{"2^3^2", 512},
		{"-2^2", -4},
		{"2^-1", 0.5},
		{"10 % 4", 2},
		{"-(3 - 5)", 2},
		{"1.5 * 2", 3},
		{"8 / 2 / 2", 2},
	}
	for _, tt := range tests {
		t.Run(tt.expr, func(t *testing.T) {
			got, err := Evaluate(tt.expr)
			if err != nil {
				t.Fatalf("Evaluate(%q) error = %v", tt.expr, err)
			}
			if got != tt.want {
				t.Fatalf("Evaluate(%q) = %v, want %v", tt.expr, got, tt.want)
			}
		})
	}
}

func TestEvaluateErrors(t *testing.T) {
	t.Parallel()

	if _, err := Evaluate("1/0"); !errors.Is(err, ErrDivisionByZero) {
		t.Fatalf("Evaluate(1/0) error = %v", err)
	}
	if _, err := Evaluate("5 % 0"); !errors.Is(err, ErrDivisionByZero) {
		t.Fatalf("Evaluate(5 %% 0) error = %v", err)
	}
	if _, err := Evaluate("   "); !errors.Is(err, ErrEmptyExpression) {
		t.Fatalf("Evaluate(blank) error = %v", err)
	}
	for _, expr := range []string{"2 +", "(1 + 2", "1 2", "abc", "1..2", ")"} {
		if _, err := Evaluate(expr); err == nil {
			t.Fatalf("Evaluate(%q) expected error", expr)
		}
	}
}

func TestSum(t *testing.T) {
	t.Parallel()

	got, err := Sum(map[string]any{"numbers": []any{2.0, 3.0}})
	if err != nil || got != "5" {
		t.Fatalf("Sum() = %q, %v, want 5", got, err)
	}
	got, err = Sum(map[string]any{"numbers": []any{0.5, "1.25"}})
	if err != nil || got != "1.75" {
		t.Fatalf("Sum() = %q, %v, want 1.75", got, err)
	}
	if got, _ := Sum(map[string]any{"numbers": []any{}}); got != "0" {
		t.Fatalf("Sum(empty) = %q, want 0", got)
	}
	if _, err := Sum(map[string]any{}); err == nil {
		t.Fatal("expected error for missing numbers")
	}
	if _, err := Sum(map[string]any{"numbers": []any{"x"}}); err == nil {
		t.Fatal("expected error for non-numeric item")
	}
}
