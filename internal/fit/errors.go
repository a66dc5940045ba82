package fit

import (
	"errors"
	"fmt"
)

// ErrFitConvergence is the class of every failed fit. Fit failures are not
// fatal to a run; callers record them and keep the unfit trajectory.
var ErrFitConvergence = errors.New("fit: did not converge")

var (
	ErrBudget     = errors.New("iteration budget exhausted")
	ErrDegenerate = errors.New("degenerate problem")
)

type ConvergenceError struct {
	Label      string
	Order      int
	Iterations int
	Detail     string
	Wrapped    error
}

func (e *ConvergenceError) Error() string {
	msg := fmt.Sprintf("fit: %s (order %d) after %d iterations: %v", e.Label, e.Order, e.Iterations, e.Wrapped)
	if e.Detail != "" {
		msg += " (" + e.Detail + ")"
	}
	return msg
}

func (e *ConvergenceError) Unwrap() []error {
	return []error{ErrFitConvergence, e.Wrapped}
}

func degenerate(label string, order int, format string, args ...any) *ConvergenceError {
	return &ConvergenceError{Label: label, Order: order, Wrapped: ErrDegenerate, Detail: fmt.Sprintf(format, args...)}
}
