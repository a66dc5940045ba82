package metrics

import (
	"fmt"
	"math"

	"github.com/san-kum/phokimo/internal/dynamo"
)

// DefaultNegativeTolerance is the most negative population allowed,
// relative to the initial total.
const DefaultNegativeTolerance = 1e-8

// MinPopulation records the smallest component seen. Populations below
// -tolerance*total are reported through Err; they are never clamped.
type MinPopulation struct {
	name       string
	tolerance  float64
	floor      float64
	min        float64
	violations int
	samples    int
	err        error
}

func NewMinPopulation(tolerance float64) *MinPopulation {
	if tolerance <= 0 {
		tolerance = DefaultNegativeTolerance
	}
	return &MinPopulation{
		name:      "min_population",
		tolerance: tolerance,
		min:       math.Inf(1),
	}
}

func (m *MinPopulation) Name() string { return m.name }

func (m *MinPopulation) Observe(x dynamo.State, t float64) {
	if m.samples == 0 {
		m.floor = -m.tolerance * math.Max(math.Abs(x.Sum()), 1e-300)
	}
	m.samples++

	v, idx := x.Min()
	if idx < 0 {
		return
	}
	m.min = math.Min(m.min, v)
	if v < m.floor {
		m.violations++
		if m.err == nil {
			m.err = fmt.Errorf("%w: component %d is %.3g at t=%g", dynamo.ErrNegativePopulation, idx, v, t)
		}
	}
}

func (m *MinPopulation) Value() float64 {
	if m.samples == 0 {
		return 0
	}
	return m.min
}

// Violations is the number of samples that crossed the floor.
func (m *MinPopulation) Violations() int { return m.violations }

func (m *MinPopulation) Err() error { return m.err }

func (m *MinPopulation) Reset() {
	m.floor = 0
	m.min = math.Inf(1)
	m.violations = 0
	m.samples = 0
	m.err = nil
}
