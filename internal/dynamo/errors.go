package dynamo

import (
	"errors"
	"fmt"
)

// ErrIntegration is the class of every solver failure. Use errors.Is to
// test for it; the concrete cause is available through the same chain.
var ErrIntegration = errors.New("dynamo: integration failed")

// Causes reported inside an *IntegrationError.
var (
	// ErrInvalidSpan indicates a non-positive time span or sample count.
	ErrInvalidSpan = errors.New("dynamo: time span must be positive")

	// ErrInvalidState indicates NaN or Inf in the state vector.
	ErrInvalidState = errors.New("dynamo: invalid state (NaN or Inf detected)")

	// ErrStepTooSmall indicates adaptive timestep became too small.
	ErrStepTooSmall = errors.New("dynamo: adaptive timestep below minimum")

	// ErrStepRejected is returned by AdaptiveStepper when the local error
	// exceeds tolerance; the returned step size should be retried.
	ErrStepRejected = errors.New("dynamo: step rejected")

	// ErrStepBudget indicates the configured step budget was exhausted.
	ErrStepBudget = errors.New("dynamo: step budget exhausted")

	// ErrNotConverged indicates the Newton iteration of an implicit method failed.
	ErrNotConverged = errors.New("dynamo: newton iteration did not converge")

	// ErrSingular indicates a singular iteration matrix.
	ErrSingular = errors.New("dynamo: singular iteration matrix")

	// ErrNegativePopulation indicates a population below the allowed tolerance.
	ErrNegativePopulation = errors.New("dynamo: negative population")

	// ErrConservation indicates the total population drifted beyond tolerance.
	ErrConservation = errors.New("dynamo: population not conserved")

	// ErrDimensionMismatch indicates mismatched state and system dimensions.
	ErrDimensionMismatch = errors.New("dynamo: dimension mismatch between state and system")

	// ErrUnsupported indicates the solver cannot handle the given system.
	ErrUnsupported = errors.New("dynamo: system not supported by solver")
)

// IntegrationError wraps a solver failure with the point where it happened.
// Time is only meaningful when HasTime is set.
type IntegrationError struct {
	Solver  string
	Step    int
	Time    float64
	HasTime bool
	Detail  string
	Wrapped error
}

func (e *IntegrationError) Error() string {
	msg := "integration failed"
	if e.Solver != "" {
		msg = e.Solver + ": " + msg
	}
	if e.HasTime {
		msg += fmt.Sprintf(" at t=%g (step %d)", e.Time, e.Step)
	}
	if e.Wrapped != nil {
		msg += ": " + e.Wrapped.Error()
	}
	if e.Detail != "" {
		msg += " (" + e.Detail + ")"
	}
	return msg
}

func (e *IntegrationError) Unwrap() []error {
	if e.Wrapped == nil {
		return []error{ErrIntegration}
	}
	return []error{ErrIntegration, e.Wrapped}
}

// Fail builds an IntegrationError located at (step, t).
func Fail(solver string, step int, t float64, cause error, detail string) *IntegrationError {
	return &IntegrationError{Solver: solver, Step: step, Time: t, HasTime: true, Wrapped: cause, Detail: detail}
}
