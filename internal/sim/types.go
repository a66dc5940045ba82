package sim

import (
	"fmt"
	"math"
	"time"

	"github.com/san-kum/phokimo/internal/dynamo"
	"github.com/san-kum/phokimo/internal/metrics"
	"github.com/san-kum/phokimo/internal/trajectory"
)

// Span is the sampled interval [0, Total] with Samples evenly spaced points.
type Span struct {
	Total   float64
	Samples int
}

func (s Span) Validate() error {
	if !(s.Total > 0) || math.IsInf(s.Total, 0) {
		return fmt.Errorf("%w: total time %g", dynamo.ErrInvalidSpan, s.Total)
	}
	if s.Samples < 2 {
		return fmt.Errorf("%w: %d samples, need at least 2", dynamo.ErrInvalidSpan, s.Samples)
	}
	return nil
}

// Times returns t_k = k*Total/(Samples-1); the last point is exactly Total.
func (s Span) Times() []float64 {
	times := make([]float64, s.Samples)
	for k := range times {
		times[k] = float64(k) * s.Total / float64(s.Samples-1)
	}
	times[len(times)-1] = s.Total
	return times
}

type Options struct {
	Config dynamo.Config

	// NegativeTolerance is relative to the initial total population.
	NegativeTolerance float64
	// ConservationTolerance bounds the relative drift of the total.
	ConservationTolerance float64

	TimeUnit string
}

func DefaultOptions() Options {
	return Options{
		Config:                dynamo.DefaultConfig(),
		NegativeTolerance:     metrics.DefaultNegativeTolerance,
		ConservationTolerance: metrics.DefaultConservationTolerance,
	}
}

// Result is the raw output of a run, one state vector per sample time.
type Result struct {
	Solver  string             `json:"solver"`
	Times   []float64          `json:"times"`
	States  []dynamo.State     `json:"-"`
	Stats   dynamo.Stats       `json:"stats"`
	Metrics map[string]float64 `json:"metrics"`
	Elapsed time.Duration      `json:"elapsed_ns"`
}

// Labelled systems name their components and group them into manifolds.
type Labelled interface {
	Labels() []string
	Manifolds() []trajectory.Manifold
	SinkIndex() int
}

// Set converts the result into trajectories. Systems that do not implement
// Labelled get positional labels and no manifolds.
func (r *Result) Set(sys dynamo.System, timeUnit string) *trajectory.Set {
	samples := make([][]float64, len(r.States))
	for i, s := range r.States {
		samples[i] = s
	}

	if l, ok := sys.(Labelled); ok {
		return trajectory.Build(r.Times, samples, l.Labels(), l.Manifolds(), l.SinkIndex(), timeUnit)
	}
	labels := make([]string, sys.StateDim())
	for i := range labels {
		labels[i] = fmt.Sprintf("x%d", i)
	}
	return trajectory.Build(r.Times, samples, labels, nil, -1, timeUnit)
}
