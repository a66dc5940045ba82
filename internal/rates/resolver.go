// Package rates turns mechanism transitions into first-order rate constants.
//
// Each kinetic theory is a pure TheoryFunc looked up by the transition's
// theory tag. Rates are computed in 1/s and rescaled to the mechanism's time
// unit by the Table.
package rates

import (
	"errors"
	"fmt"
	"math"

	"github.com/san-kum/phokimo/internal/mechanism"
	"github.com/san-kum/phokimo/internal/units"
	"github.com/sirupsen/logrus"
)

type Resolver struct {
	theories map[mechanism.Theory]TheoryFunc
}

type Option func(*Resolver)

// WithTheory installs or replaces the implementation of a theory.
func WithTheory(t mechanism.Theory, f TheoryFunc) Option {
	return func(r *Resolver) { r.theories[t] = f }
}

func NewResolver(opts ...Option) *Resolver {
	r := &Resolver{theories: defaultTheories()}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Temperature returns the transition override, else the mechanism value,
// else the fallback.
func Temperature(t mechanism.Transition, m *mechanism.Mechanism) float64 {
	if t.Temperature != nil {
		return *t.Temperature
	}
	if m != nil && m.Globals.Temperature != 0 {
		return m.Globals.Temperature
	}
	return units.DefaultTemperature
}

// Resolve returns the rate constant of t in 1/s. An explicit rate bypasses
// the theory but is still validated.
func (r *Resolver) Resolve(t mechanism.Transition, m *mechanism.Mechanism) (float64, error) {
	fail := func(err error) (float64, error) {
		return 0, &DomainError{Transition: t.ID, Theory: t.Theory, Wrapped: err}
	}

	in := Input{
		Transition:  t,
		Temperature: Temperature(t, m),
		Atoms:       m.Globals.Atoms,
	}
	if t.From < 0 || t.From >= len(m.States) || t.To < 0 || t.To >= len(m.States) {
		return fail(fmt.Errorf("%w: state index out of range", ErrMissingParameter))
	}
	in.From, in.To = m.States[t.From], m.States[t.To]
	if t.Via >= 0 && t.Via < len(m.States) {
		via := m.States[t.Via]
		in.Via = &via
	}

	var (
		k   float64
		err error
	)
	if t.HasRate {
		k, err = explicitRate(in)
	} else {
		if in.Temperature <= 0 || math.IsNaN(in.Temperature) || math.IsInf(in.Temperature, 0) {
			return fail(fmt.Errorf("%w: got %g K", ErrTemperature, in.Temperature))
		}
		f, ok := r.theories[t.Theory]
		if !ok {
			return fail(fmt.Errorf("%w %q", ErrUnknownTheory, t.Theory))
		}
		k, err = f(in)
	}
	if err != nil {
		return fail(err)
	}
	if math.IsNaN(k) || math.IsInf(k, 0) || k < 0 {
		return fail(fmt.Errorf("%w: k = %g", ErrNonPhysical, k))
	}
	return k, nil
}

// Entry is one row of the rate table.
type Entry struct {
	ID          string           `json:"id" yaml:"id"`
	From        string           `json:"from" yaml:"from"`
	To          string           `json:"to" yaml:"to"`
	Theory      mechanism.Theory `json:"theory" yaml:"theory"`
	Temperature float64          `json:"temperature" yaml:"temperature"`
	PerSecond   float64          `json:"per_second" yaml:"per_second"`
	K           float64          `json:"k" yaml:"k"`
}

// Table holds one rate per transition, in transition order. K is expressed
// in 1/Unit.
type Table struct {
	Unit    units.TimeUnit `json:"unit" yaml:"unit"`
	Entries []Entry        `json:"entries" yaml:"entries"`
}

// ResolveAll resolves every transition. All domain errors are reported
// together; no partial table is returned.
func (r *Resolver) ResolveAll(m *mechanism.Mechanism) (Table, error) {
	table := Table{Unit: m.Globals.TimeUnit, Entries: make([]Entry, 0, len(m.Transitions))}
	var errs []error

	for _, t := range m.Transitions {
		k, err := r.Resolve(t, m)
		if err != nil {
			errs = append(errs, err)
			continue
		}
		e := Entry{
			ID:          t.ID,
			From:        m.States[t.From].ID,
			To:          m.States[t.To].ID,
			Theory:      t.Theory,
			Temperature: Temperature(t, m),
			PerSecond:   k,
			K:           units.RateIn(k, m.Globals.TimeUnit),
		}
		if k == 0 {
			logrus.Debugf("transition %s resolved to a zero rate; kept with no flux", t.ID)
		}
		logrus.WithFields(logrus.Fields{
			"transition": t.ID,
			"theory":     t.Theory,
			"k":          e.K,
			"unit":       "1/" + string(table.Unit),
		}).Debug("resolved rate constant")
		table.Entries = append(table.Entries, e)
	}

	if len(errs) > 0 {
		return Table{}, errors.Join(errs...)
	}
	return table, nil
}

// InUnit is the rate of transition i in 1/Unit.
func (t Table) InUnit(i int) float64 {
	return t.Entries[i].K
}

func (t Table) Rate(id string) (float64, bool) {
	for _, e := range t.Entries {
		if e.ID == id {
			return e.K, true
		}
	}
	return 0, false
}

// Range returns the smallest and largest positive rates, or (0, 0).
func (t Table) Range() (float64, float64) {
	lo, hi := math.Inf(1), 0.0
	for _, e := range t.Entries {
		if e.K > 0 {
			lo = math.Min(lo, e.K)
			hi = math.Max(hi, e.K)
		}
	}
	if hi == 0 {
		return 0, 0
	}
	return lo, hi
}
