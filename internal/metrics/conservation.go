package metrics

import (
	"fmt"
	"math"

	"github.com/san-kum/phokimo/internal/dynamo"
)

// DefaultConservationTolerance is the relative drift of the total
// population allowed before a run is aborted.
const DefaultConservationTolerance = 1e-6

// Conservation tracks the largest relative change of the total population
// against the first observed sample.
type Conservation struct {
	name      string
	tolerance float64
	initial   float64
	maxDrift  float64
	samples   int
	err       error
}

func NewConservation(tolerance float64) *Conservation {
	if tolerance <= 0 {
		tolerance = DefaultConservationTolerance
	}
	return &Conservation{
		name:      "conservation_drift",
		tolerance: tolerance,
	}
}

func (c *Conservation) Name() string { return c.name }

func (c *Conservation) Observe(x dynamo.State, t float64) {
	total := x.Sum()
	if c.samples == 0 {
		c.initial = total
	}
	c.samples++

	if c.initial == 0 {
		return
	}
	drift := math.Abs(total-c.initial) / math.Abs(c.initial)
	c.maxDrift = math.Max(c.maxDrift, drift)
	if c.err == nil && drift > c.tolerance {
		c.err = fmt.Errorf("%w: relative drift %.3g exceeds %.3g at t=%g", dynamo.ErrConservation, drift, c.tolerance, t)
	}
}

func (c *Conservation) Value() float64 { return c.maxDrift }

func (c *Conservation) Err() error { return c.err }

func (c *Conservation) Reset() {
	c.initial = 0
	c.maxDrift = 0
	c.samples = 0
	c.err = nil
}
