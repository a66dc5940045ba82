package dynamo

import (
	"errors"
	"math"
	"strings"
	"testing"
)

func TestState_IsValid(t *testing.T) {
	tests := []struct {
		name  string
		state State
		valid bool
	}{
		{"empty", State{}, true},
		{"normal", State{1.0, 2.0, 3.0}, true},
		{"zeros", State{0.0, 0.0}, true},
		{"with NaN", State{1.0, math.NaN()}, false},
		{"with +Inf", State{1.0, math.Inf(1)}, false},
		{"with -Inf", State{1.0, math.Inf(-1)}, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.state.IsValid(); got != tt.valid {
				t.Errorf("IsValid() = %v, want %v", got, tt.valid)
			}
		})
	}
}

func TestState_Norm(t *testing.T) {
	tests := []struct {
		state    State
		expected float64
	}{
		{State{3, 4}, 5.0},
		{State{1, 0}, 1.0},
		{State{0, 0}, 0.0},
		{State{1, 1, 1, 1}, 2.0},
	}

	for _, tt := range tests {
		if got := tt.state.Norm(); math.Abs(got-tt.expected) > 1e-10 {
			t.Errorf("Norm(%v) = %v, want %v", tt.state, got, tt.expected)
		}
	}
}

func TestState_SumAndMin(t *testing.T) {
	s := State{0.25, -0.5, 1.25}
	if got := s.Sum(); got != 1.0 {
		t.Errorf("Sum() = %v, want 1", got)
	}
	m, idx := s.Min()
	if m != -0.5 || idx != 1 {
		t.Errorf("Min() = (%v, %d), want (-0.5, 1)", m, idx)
	}
	if _, idx := (State{}).Min(); idx != -1 {
		t.Errorf("Min() on empty state returned index %d", idx)
	}
}

func TestState_Arithmetic(t *testing.T) {
	a := State{1, 2, 3}
	b := State{4, 5, 6}

	sum := a.Add(b)
	if sum[0] != 5 || sum[1] != 7 || sum[2] != 9 {
		t.Errorf("Add failed: got %v", sum)
	}

	diff := b.Sub(a)
	if diff[0] != 3 || diff[1] != 3 || diff[2] != 3 {
		t.Errorf("Sub failed: got %v", diff)
	}

	scaled := a.Scale(2)
	if scaled[0] != 2 || scaled[1] != 4 || scaled[2] != 6 {
		t.Errorf("Scale failed: got %v", scaled)
	}
}

func TestRMSNorm(t *testing.T) {
	got := RMSNorm(State{2, 2}, State{1, 2})
	want := math.Sqrt((4 + 1) / 2.0)
	if math.Abs(got-want) > 1e-15 {
		t.Errorf("RMSNorm = %v, want %v", got, want)
	}
	if RMSNorm(State{}, State{}) != 0 {
		t.Error("RMSNorm of empty state should be 0")
	}
}

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()

	if cfg.Tolerance <= 0 || cfg.AbsTolerance <= 0 {
		t.Error("DefaultConfig has invalid tolerances")
	}
	if cfg.MaxSteps <= 0 {
		t.Error("DefaultConfig has invalid step budget")
	}
	if !cfg.ValidateState {
		t.Error("DefaultConfig should validate states")
	}
}

func TestIntegrationError(t *testing.T) {
	err := Fail("bdf", 150, 1.5, ErrStepTooSmall, "h=1e-300")

	if !errors.Is(err, ErrIntegration) {
		t.Error("IntegrationError should match ErrIntegration")
	}
	if !errors.Is(err, ErrStepTooSmall) {
		t.Error("IntegrationError should match its cause")
	}
	msg := err.Error()
	for _, part := range []string{"bdf", "t=1.5", "step 150", "h=1e-300"} {
		if !strings.Contains(msg, part) {
			t.Errorf("message %q missing %q", msg, part)
		}
	}

	var target *IntegrationError
	if !errors.As(error(err), &target) || target.Time != 1.5 {
		t.Error("errors.As should recover the time")
	}

	bare := &IntegrationError{Wrapped: ErrInvalidSpan}
	if strings.Contains(bare.Error(), "t=") {
		t.Errorf("error without time should not print one: %q", bare.Error())
	}
}

func TestStatsMerge(t *testing.T) {
	a := Stats{Steps: 3, Rejected: 1, Evaluations: 10}
	a.Merge(Stats{Steps: 2, Evaluations: 5, Jacobians: 1})
	if a.Steps != 5 || a.Evaluations != 15 || a.Jacobians != 1 || a.Rejected != 1 {
		t.Errorf("Merge produced %+v", a)
	}
}
