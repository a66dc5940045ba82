package rates

import (
	"errors"
	"fmt"

	"github.com/san-kum/phokimo/internal/mechanism"
)

// ErrKineticsDomain is the class of every rate that cannot be computed.
var ErrKineticsDomain = errors.New("rates: kinetics domain error")

// Reasons carried by a DomainError.
var (
	ErrMissingParameter = errors.New("missing parameter")
	ErrTemperature      = errors.New("temperature must be positive and finite")
	ErrNonPhysical      = errors.New("non-physical result")
	ErrDegenerate       = errors.New("degenerate denominator")
	ErrUnknownTheory    = errors.New("no implementation for theory")
)

// DomainError identifies the transition whose rate could not be computed.
type DomainError struct {
	Transition string
	Theory     mechanism.Theory
	Wrapped    error
}

func (e *DomainError) Error() string {
	return fmt.Sprintf("rates: transition %s (%s): %v", e.Transition, e.Theory, e.Wrapped)
}

func (e *DomainError) Unwrap() []error {
	return []error{ErrKineticsDomain, e.Wrapped}
}

func missing(name string) error {
	return fmt.Errorf("%w %q", ErrMissingParameter, name)
}
