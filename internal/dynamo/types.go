package dynamo

import (
	"context"
	"math"

	"gonum.org/v1/gonum/mat"
)

type State []float64

func (s State) Clone() State {
	c := make(State, len(s))
	copy(c, s)
	return c
}

func (s State) IsValid() bool {
	for _, v := range s {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return false
		}
	}
	return true
}

func (s State) Norm() float64 {
	sum := 0.0
	for _, v := range s {
		sum += v * v
	}
	return math.Sqrt(sum)
}

// Sum is the total population held by s.
func (s State) Sum() float64 {
	sum := 0.0
	for _, v := range s {
		sum += v
	}
	return sum
}

// Min returns the smallest component and its index, or (0, -1) when empty.
func (s State) Min() (float64, int) {
	if len(s) == 0 {
		return 0, -1
	}
	m, idx := s[0], 0
	for i, v := range s[1:] {
		if v < m {
			m, idx = v, i+1
		}
	}
	return m, idx
}

func (s State) Add(other State) State {
	result := make(State, len(s))
	for i := range s {
		if i < len(other) {
			result[i] = s[i] + other[i]
		} else {
			result[i] = s[i]
		}
	}
	return result
}

func (s State) Scale(factor float64) State {
	result := make(State, len(s))
	for i := range s {
		result[i] = s[i] * factor
	}
	return result
}

func (s State) Sub(other State) State {
	result := make(State, len(s))
	for i := range s {
		if i < len(other) {
			result[i] = s[i] - other[i]
		} else {
			result[i] = s[i]
		}
	}
	return result
}

// RMSNorm is the root-mean-square of s[i]/scale[i], the error norm used by
// the adaptive solvers.
func RMSNorm(s, scale State) float64 {
	if len(s) == 0 {
		return 0
	}
	sum := 0.0
	for i, v := range s {
		r := v / scale[i]
		sum += r * r
	}
	return math.Sqrt(sum / float64(len(s)))
}

// System is the right-hand side of dX/dt = f(X, t).
type System interface {
	Derive(x State, t float64) State
	StateDim() int
}

// Jacobian is implemented by systems that can supply df/dX analytically.
// Linear systems return the same matrix for every x and t.
type Jacobian interface {
	Jacobian(x State, t float64) *mat.Dense
}

// Linear marks systems whose Jacobian is constant.
type Linear interface {
	System
	Jacobian
	IsLinear() bool
}

// Solver is anything the registry can hand out; concrete solvers also
// implement Stepper, AdaptiveStepper or Propagator.
type Solver interface {
	Name() string
}

type Stepper interface {
	Solver
	Step(sys System, x State, t, dt float64) State
}

// AdaptiveStepper attempts one step of size dt and proposes the next step
// size. A rejected attempt returns ErrStepRejected and the size to retry with.
type AdaptiveStepper interface {
	Stepper
	StepAdaptive(sys System, x State, t, dt float64, cfg Config) (State, float64, error)
}

// Propagator integrates from times[0] and returns one state per requested
// time. times must be increasing; the first entry is the initial time.
type Propagator interface {
	Solver
	Propagate(ctx context.Context, sys System, x0 State, times []float64, cfg Config) ([]State, Stats, error)
}

type Metric interface {
	Name() string
	Observe(x State, t float64)
	Value() float64
	Reset()
}

// Guard is a Metric that can abort a run. Err reports the violation seen
// so far, or nil.
type Guard interface {
	Metric
	Err() error
}

type Observer interface {
	OnSample(x State, t float64)
}

// Config carries solver settings. Dt is the fixed step for Steppers and
// the first trial step for adaptive methods (0 lets the solver choose).
type Config struct {
	Dt            float64
	Tolerance     float64
	AbsTolerance  float64
	MaxDt         float64
	MinDt         float64
	MaxSteps      int
	ValidateState bool
}

func DefaultConfig() Config {
	return Config{
		Dt:            0,
		Tolerance:     1e-8,
		AbsTolerance:  1e-12,
		MaxDt:         math.Inf(1),
		MinDt:         0,
		MaxSteps:      1_000_000,
		ValidateState: true,
	}
}

// Stats counts the work done by a solver run.
type Stats struct {
	Steps         int `json:"steps"`
	Rejected      int `json:"rejected"`
	Evaluations   int `json:"evaluations"`
	Jacobians     int `json:"jacobians"`
	Factorization int `json:"factorizations"`
	NewtonFailed  int `json:"newton_failures"`
}

func (s *Stats) Merge(o Stats) {
	s.Steps += o.Steps
	s.Rejected += o.Rejected
	s.Evaluations += o.Evaluations
	s.Jacobians += o.Jacobians
	s.Factorization += o.Factorization
	s.NewtonFailed += o.NewtonFailed
}
