// Package fit reduces population trajectories to exponential lifetimes.
//
// The model is y(t) = c + Σ aᵢ·exp(−kᵢ·t). Rates are optimised in log space
// so they stay positive, on a time axis scaled to [0, 1].
package fit

import (
	"math"
	"slices"
)

// Term is one exponential component. Rate is in the inverse time unit of
// the fitted series.
type Term struct {
	Amplitude float64 `json:"amplitude" yaml:"amplitude"`
	Rate      float64 `json:"rate" yaml:"rate"`
	Lifetime  float64 `json:"lifetime" yaml:"lifetime"`
}

// Result holds the fitted terms sorted slowest first.
type Result struct {
	Label      string  `json:"label" yaml:"label"`
	Order      int     `json:"order" yaml:"order"`
	Terms      []Term  `json:"terms" yaml:"terms"`
	Offset     float64 `json:"offset" yaml:"offset"`
	RSquared   float64 `json:"r_squared" yaml:"r_squared"`
	RMSE       float64 `json:"rmse" yaml:"rmse"`
	Iterations int     `json:"iterations" yaml:"iterations"`
	Converged  bool    `json:"converged" yaml:"converged"`
}

// Eval evaluates the fitted model at t.
func (r *Result) Eval(t float64) float64 {
	y := r.Offset
	for _, term := range r.Terms {
		y += term.Amplitude * math.Exp(-term.Rate*t)
	}
	return y
}

// Curve evaluates the model on a time grid.
func (r *Result) Curve(times []float64) []float64 {
	out := make([]float64, len(times))
	for i, t := range times {
		out[i] = r.Eval(t)
	}
	return out
}

// Slowest is the longest-lived term.
func (r *Result) Slowest() Term {
	return r.Terms[0]
}

func sortTerms(terms []Term) {
	slices.SortStableFunc(terms, func(a, b Term) int {
		switch {
		case a.Lifetime > b.Lifetime:
			return -1
		case a.Lifetime < b.Lifetime:
			return 1
		}
		return 0
	})
}

// params layout: a0, log k0, a1, log k1, ..., [c]
type model struct {
	order  int
	offset bool
}

func (m model) size() int {
	if m.offset {
		return 2*m.order + 1
	}
	return 2 * m.order
}

func (m model) eval(p []float64, tau float64) float64 {
	y := 0.0
	if m.offset {
		y = p[2*m.order]
	}
	for i := range m.order {
		y += p[2*i] * math.Exp(-math.Exp(p[2*i+1])*tau)
	}
	return y
}

// gradient writes ∂y/∂p at tau into row.
func (m model) gradient(p []float64, tau float64, row []float64) {
	for i := range m.order {
		k := math.Exp(p[2*i+1])
		e := math.Exp(-k * tau)
		row[2*i] = e
		row[2*i+1] = -p[2*i] * e * k * tau
	}
	if m.offset {
		row[2*m.order] = 1
	}
}
