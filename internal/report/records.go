package report

import (
	"slices"

	"github.com/san-kum/phokimo/internal/analysis"
	"github.com/san-kum/phokimo/internal/dynamo"
	"github.com/san-kum/phokimo/internal/fit"
	"github.com/san-kum/phokimo/internal/rates"
	"github.com/san-kum/phokimo/internal/trajectory"
)

// SolverStats counts the work done by the integrator.
type SolverStats struct {
	Steps          int `json:"steps" yaml:"steps"`
	Rejected       int `json:"rejected" yaml:"rejected"`
	Evaluations    int `json:"evaluations" yaml:"evaluations"`
	Jacobians      int `json:"jacobians" yaml:"jacobians"`
	Factorizations int `json:"factorizations" yaml:"factorizations"`
	NewtonFailures int `json:"newton_failures" yaml:"newton_failures"`
}

func NewSolverStats(s dynamo.Stats) SolverStats {
	return SolverStats{
		Steps:          s.Steps,
		Rejected:       s.Rejected,
		Evaluations:    s.Evaluations,
		Jacobians:      s.Jacobians,
		Factorizations: s.Factorization,
		NewtonFailures: s.NewtonFailed,
	}
}

type RateRecord struct {
	ID          string  `json:"id" yaml:"id"`
	From        string  `json:"from" yaml:"from"`
	To          string  `json:"to" yaml:"to"`
	Theory      string  `json:"theory" yaml:"theory"`
	Temperature float64 `json:"temperature" yaml:"temperature"`
	PerSecond   float64 `json:"per_second" yaml:"per_second"`
	K           float64 `json:"k" yaml:"k"`
}

// RateTable lists the resolved rates in transition order. K is in 1/Unit.
type RateTable struct {
	Unit    string       `json:"unit" yaml:"unit"`
	Entries []RateRecord `json:"entries" yaml:"entries"`
}

func NewRateTable(t rates.Table) RateTable {
	out := RateTable{Unit: string(t.Unit), Entries: make([]RateRecord, len(t.Entries))}
	for i, e := range t.Entries {
		out.Entries[i] = RateRecord{
			ID:          e.ID,
			From:        e.From,
			To:          e.To,
			Theory:      string(e.Theory),
			Temperature: e.Temperature,
			PerSecond:   e.PerSecond,
			K:           e.K,
		}
	}
	return out
}

// Dictionary maps from → to → summed k in 1/Unit.
func (t RateTable) Dictionary() map[string]map[string]float64 {
	out := make(map[string]map[string]float64)
	for _, e := range t.Entries {
		if out[e.From] == nil {
			out[e.From] = make(map[string]float64)
		}
		out[e.From][e.To] += e.K
	}
	return out
}

// Sorted returns the entries fastest first.
func (t RateTable) Sorted() []RateRecord {
	out := slices.Clone(t.Entries)
	slices.SortStableFunc(out, func(a, b RateRecord) int {
		switch {
		case a.K > b.K:
			return -1
		case a.K < b.K:
			return 1
		}
		return 0
	})
	return out
}

type SeriesRecord struct {
	Label  string    `json:"label" yaml:"label"`
	Values []float64 `json:"values" yaml:"values"`
}

// Trajectories is the sampled output on one shared time grid. Sink names
// the state that doubles as the sink bucket.
type Trajectories struct {
	TimeUnit string         `json:"time_unit" yaml:"time_unit"`
	Times    []float64      `json:"times" yaml:"times"`
	States   []SeriesRecord `json:"states" yaml:"states"`
	Spins    []SeriesRecord `json:"spins" yaml:"spins"`
	Sink     string         `json:"sink,omitempty" yaml:"sink,omitempty"`
}

// NewTrajectories copies set; nil gives nil.
func NewTrajectories(set *trajectory.Set) *Trajectories {
	if set == nil {
		return nil
	}
	series := func(list []*trajectory.Trajectory) []SeriesRecord {
		out := make([]SeriesRecord, len(list))
		for i, tr := range list {
			out[i] = SeriesRecord{Label: tr.Label, Values: slices.Clone(tr.Values)}
		}
		return out
	}
	out := &Trajectories{
		TimeUnit: set.TimeUnit,
		Times:    slices.Clone(set.Times),
		States:   series(set.States),
		Spins:    series(set.Spins),
	}
	if set.Sink != nil {
		out.Sink = set.Sink.Label
	}
	return out
}

// Set rebuilds the trajectory set the record was taken from.
func (r *Trajectories) Set() *trajectory.Set {
	if r == nil {
		return nil
	}
	series := func(list []SeriesRecord, kind trajectory.Kind) []*trajectory.Trajectory {
		out := make([]*trajectory.Trajectory, len(list))
		for i, s := range list {
			out[i] = trajectory.New(s.Label, kind, r.Times, s.Values)
		}
		return out
	}
	set := &trajectory.Set{
		Times:    slices.Clone(r.Times),
		TimeUnit: r.TimeUnit,
		States:   series(r.States, trajectory.KindState),
		Spins:    series(r.Spins, trajectory.KindSpin),
	}
	if tr, ok := set.State(r.Sink); ok {
		set.Sink = trajectory.New(tr.Label, trajectory.KindSink, tr.Times, tr.Values)
	}
	return set
}

// Series finds label among the spin manifolds, then the states.
func (r *Trajectories) Series(label string) (SeriesRecord, bool) {
	if r == nil {
		return SeriesRecord{}, false
	}
	for _, list := range [][]SeriesRecord{r.Spins, r.States} {
		for _, s := range list {
			if s.Label == label {
				return s, true
			}
		}
	}
	return SeriesRecord{}, false
}

// Final is the last sampled value, 0 for an empty series.
func (s SeriesRecord) Final() float64 {
	if len(s.Values) == 0 {
		return 0
	}
	return s.Values[len(s.Values)-1]
}

type TermRecord struct {
	Amplitude float64 `json:"amplitude" yaml:"amplitude"`
	Rate      float64 `json:"rate" yaml:"rate"`
	Lifetime  float64 `json:"lifetime" yaml:"lifetime"`
}

// FitRecord is one fitted series. A failed fit keeps its label and the
// error text and has no terms.
type FitRecord struct {
	Label      string       `json:"label" yaml:"label"`
	Order      int          `json:"order,omitempty" yaml:"order,omitempty"`
	Terms      []TermRecord `json:"terms,omitempty" yaml:"terms,omitempty"`
	Offset     float64      `json:"offset,omitempty" yaml:"offset,omitempty"`
	RSquared   float64      `json:"r_squared,omitempty" yaml:"r_squared,omitempty"`
	RMSE       float64      `json:"rmse,omitempty" yaml:"rmse,omitempty"`
	Iterations int          `json:"iterations,omitempty" yaml:"iterations,omitempty"`
	Converged  bool         `json:"converged" yaml:"converged"`
	Error      string       `json:"error,omitempty" yaml:"error,omitempty"`
}

func NewFitRecord(o fit.Outcome) FitRecord {
	rec := FitRecord{Label: o.Label}
	if o.Err != nil {
		rec.Error = o.Err.Error()
	}
	r := o.Result
	if r == nil {
		return rec
	}
	rec.Order = r.Order
	rec.Offset = r.Offset
	rec.RSquared = r.RSquared
	rec.RMSE = r.RMSE
	rec.Iterations = r.Iterations
	rec.Converged = r.Converged
	for _, t := range r.Terms {
		rec.Terms = append(rec.Terms, TermRecord{Amplitude: t.Amplitude, Rate: t.Rate, Lifetime: t.Lifetime})
	}
	return rec
}

// OK reports whether the fit produced terms.
func (f *FitRecord) OK() bool { return f != nil && len(f.Terms) > 0 }

// Result turns the record back into a fitted model, or nil for a failed
// fit.
func (f *FitRecord) Result() *fit.Result {
	if !f.OK() {
		return nil
	}
	r := &fit.Result{
		Label:      f.Label,
		Order:      f.Order,
		Offset:     f.Offset,
		RSquared:   f.RSquared,
		RMSE:       f.RMSE,
		Iterations: f.Iterations,
		Converged:  f.Converged,
		Terms:      make([]fit.Term, len(f.Terms)),
	}
	for i, t := range f.Terms {
		r.Terms[i] = fit.Term{Amplitude: t.Amplitude, Rate: t.Rate, Lifetime: t.Lifetime}
	}
	return r
}

type Fraction struct {
	Label string  `json:"label" yaml:"label"`
	Value float64 `json:"value" yaml:"value"`
}

func NewFractions(list []analysis.Fraction) []Fraction {
	if list == nil {
		return nil
	}
	out := make([]Fraction, len(list))
	for i, f := range list {
		out[i] = Fraction{Label: f.Label, Value: f.Value}
	}
	return out
}
