package integrators

import (
	"errors"
	"math"
	"testing"

	"github.com/san-kum/phokimo/internal/dynamo"
)

func TestRK45_Step(t *testing.T) {
	integrator := NewRK45()
	sys := &decay{k: 2, n: 2}

	x := dynamo.State{1.0, 0.5}
	dt := 0.01
	for i := 0; i < 1000; i++ {
		x = integrator.Step(sys, x, float64(i)*dt, dt)
	}

	if !x.IsValid() {
		t.Fatal("RK45 produced invalid state")
	}
	want := math.Exp(-20)
	if math.Abs(x[0]-want) > 1e-12 {
		t.Errorf("x[0] = %g, want %g", x[0], want)
	}
}

func TestRK45_AdaptiveStep(t *testing.T) {
	integrator := NewRK45()
	sys := &decay{k: 1, n: 1}
	cfg := dynamo.DefaultConfig()

	x, newDt, err := integrator.StepAdaptive(sys, dynamo.State{1.0}, 0, 0.1, cfg)
	if err != nil {
		t.Fatalf("StepAdaptive returned error: %v", err)
	}
	if !x.IsValid() {
		t.Error("StepAdaptive produced invalid state")
	}
	if newDt <= 0 {
		t.Errorf("StepAdaptive returned invalid dt: %f", newDt)
	}
}

func TestRK45_RejectsOversizedStep(t *testing.T) {
	integrator := NewRK45()
	sys := &decay{k: 1e6, n: 1}
	cfg := dynamo.DefaultConfig()

	x, newDt, err := integrator.StepAdaptive(sys, dynamo.State{1.0}, 0, 1.0, cfg)
	if !errors.Is(err, dynamo.ErrStepRejected) {
		t.Fatalf("expected ErrStepRejected, got %v", err)
	}
	if x != nil {
		t.Error("rejected step must not return a state")
	}
	if newDt >= 1.0 || newDt <= 0 {
		t.Errorf("retry step %g should shrink", newDt)
	}
}

func TestRK45_VsRK4_Accuracy(t *testing.T) {
	rk4 := NewRK4()
	rk45 := NewRK45()
	sys := &decay{k: 1, n: 1}

	x4 := dynamo.State{1.0}
	x45 := dynamo.State{1.0}
	dt := 0.1
	for i := 0; i < 50; i++ {
		x4 = rk4.Step(sys, x4, float64(i)*dt, dt)
		x45 = rk45.Step(sys, x45, float64(i)*dt, dt)
	}

	want := math.Exp(-5)
	if math.Abs(x45[0]-want) > math.Abs(x4[0]-want) {
		t.Errorf("RK45 error %g exceeds RK4 error %g", math.Abs(x45[0]-want), math.Abs(x4[0]-want))
	}
}
