// Package trajectory holds the immutable population time series produced
// by a kinetics run.
package trajectory

import (
	"iter"
	"slices"
)

// Kind tells what a trajectory aggregates.
type Kind string

const (
	KindState Kind = "state"
	KindSpin  Kind = "spin"
	KindSink  Kind = "sink"
)

// Trajectory is a labelled population series on a shared time grid.
// The slices are owned by the trajectory and must not be modified.
type Trajectory struct {
	Label  string    `json:"label" yaml:"label"`
	Kind   Kind      `json:"kind" yaml:"kind"`
	Times  []float64 `json:"times" yaml:"times"`
	Values []float64 `json:"values" yaml:"values"`
}

func New(label string, kind Kind, times, values []float64) *Trajectory {
	return &Trajectory{
		Label:  label,
		Kind:   kind,
		Times:  slices.Clone(times),
		Values: slices.Clone(values),
	}
}

func (t *Trajectory) Len() int { return len(t.Times) }

func (t *Trajectory) At(i int) (float64, float64) {
	return t.Times[i], t.Values[i]
}

// Final is the last sampled value, 0 for an empty trajectory.
func (t *Trajectory) Final() float64 {
	if len(t.Values) == 0 {
		return 0
	}
	return t.Values[len(t.Values)-1]
}

// All yields (time, population) pairs in order. Each call restarts.
func (t *Trajectory) All() iter.Seq2[float64, float64] {
	return func(yield func(float64, float64) bool) {
		for i := range t.Times {
			if !yield(t.Times[i], t.Values[i]) {
				return
			}
		}
	}
}

// Manifold groups state indices into one spin trajectory.
type Manifold struct {
	Label   string
	Members []int
}

// Set is the full output of a run: one trajectory per state in index order,
// per-manifold sums in first-appearance order and the sink bucket.
type Set struct {
	Times    []float64     `json:"times" yaml:"times"`
	TimeUnit string        `json:"time_unit" yaml:"time_unit"`
	States   []*Trajectory `json:"states" yaml:"states"`
	Spins    []*Trajectory `json:"spins" yaml:"spins"`
	Sink     *Trajectory   `json:"sink,omitempty" yaml:"sink,omitempty"`
}

// Build transposes sampled state vectors into trajectories. sink is the
// index of the sink component or -1.
func Build(times []float64, samples [][]float64, labels []string, manifolds []Manifold, sink int, timeUnit string) *Set {
	set := &Set{
		Times:    slices.Clone(times),
		TimeUnit: timeUnit,
	}

	column := func(idx int) []float64 {
		col := make([]float64, len(samples))
		for k, x := range samples {
			col[k] = x[idx]
		}
		return col
	}

	for i, label := range labels {
		tr := &Trajectory{Label: label, Kind: KindState, Times: set.Times, Values: column(i)}
		set.States = append(set.States, tr)
		if i == sink {
			set.Sink = &Trajectory{Label: label, Kind: KindSink, Times: set.Times, Values: tr.Values}
		}
	}

	for _, m := range manifolds {
		values := make([]float64, len(samples))
		for k, x := range samples {
			for _, idx := range m.Members {
				values[k] += x[idx]
			}
		}
		set.Spins = append(set.Spins, &Trajectory{Label: m.Label, Kind: KindSpin, Times: set.Times, Values: values})
	}
	return set
}

func (s *Set) State(label string) (*Trajectory, bool) {
	return find(s.States, label)
}

func (s *Set) Spin(label string) (*Trajectory, bool) {
	return find(s.Spins, label)
}

// Final returns the state populations at the last sample.
func (s *Set) Final() []float64 {
	out := make([]float64, len(s.States))
	for i, tr := range s.States {
		out[i] = tr.Final()
	}
	return out
}

// Labels lists state labels in index order.
func (s *Set) Labels() []string {
	out := make([]string, len(s.States))
	for i, tr := range s.States {
		out[i] = tr.Label
	}
	return out
}

func find(list []*Trajectory, label string) (*Trajectory, bool) {
	for _, tr := range list {
		if tr.Label == label {
			return tr, true
		}
	}
	return nil, false
}
