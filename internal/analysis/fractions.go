package analysis

import (
	"errors"
	"fmt"
	"slices"

	"github.com/san-kum/phokimo/internal/mechanism"
	"github.com/san-kum/phokimo/internal/trajectory"
)

var ErrNoProducts = errors.New("analysis: mechanism declares no product states")

// Fraction is a labelled share.
type Fraction struct {
	Label string  `json:"label" yaml:"label"`
	Value float64 `json:"value" yaml:"value"`
}

// FinalFractions is the population of each spin manifold at the last sample,
// relative to the total population at that time.
func FinalFractions(set *trajectory.Set) []Fraction {
	total := 0.0
	for _, s := range set.Spins {
		total += s.Final()
	}
	out := make([]Fraction, len(set.Spins))
	for i, s := range set.Spins {
		out[i] = Fraction{Label: s.Label}
		if total != 0 {
			out[i].Value = s.Final() / total
		}
	}
	return out
}

// productGroups maps product names to state indices in first-appearance
// order. Several product states may share a name, e.g. conformers.
func productGroups(m *mechanism.Mechanism) ([]string, map[string][]int, error) {
	idx := m.ByRole(mechanism.RoleProduct)
	if len(idx) == 0 {
		return nil, nil, ErrNoProducts
	}
	var names []string
	groups := make(map[string][]int)
	for _, i := range idx {
		name := m.States[i].Name
		if !slices.Contains(names, name) {
			names = append(names, name)
		}
		groups[name] = append(groups[name], i)
	}
	return names, groups, nil
}

// ProductRatio splits the final product population by product name, in
// percent.
func ProductRatio(set *trajectory.Set, m *mechanism.Mechanism) ([]Fraction, error) {
	names, groups, err := productGroups(m)
	if err != nil {
		return nil, err
	}
	if len(set.States) != len(m.States) {
		return nil, fmt.Errorf("analysis: %d trajectories for %d states", len(set.States), len(m.States))
	}

	out := make([]Fraction, len(names))
	total := 0.0
	for i, name := range names {
		out[i].Label = name
		for _, s := range groups[name] {
			out[i].Value += set.States[s].Final()
		}
		total += out[i].Value
	}
	if total <= 0 {
		return nil, fmt.Errorf("analysis: no population reached a product state")
	}
	for i := range out {
		out[i].Value *= 100 / total
	}
	return out, nil
}

// ProductFractions returns, per product name, its share of the total
// product population at every sample. Shares are zero while no product
// has formed.
func ProductFractions(set *trajectory.Set, m *mechanism.Mechanism) ([]*trajectory.Trajectory, error) {
	names, groups, err := productGroups(m)
	if err != nil {
		return nil, err
	}
	if len(set.States) != len(m.States) {
		return nil, fmt.Errorf("analysis: %d trajectories for %d states", len(set.States), len(m.States))
	}

	n := len(set.Times)
	sums := make([][]float64, len(names))
	total := make([]float64, n)
	for g, name := range names {
		sums[g] = make([]float64, n)
		for _, s := range groups[name] {
			for k, v := range set.States[s].Values {
				sums[g][k] += v
				total[k] += v
			}
		}
	}

	out := make([]*trajectory.Trajectory, len(names))
	for g, name := range names {
		frac := make([]float64, n)
		for k := range frac {
			if total[k] > 0 {
				frac[k] = sums[g][k] / total[k]
			}
		}
		out[g] = trajectory.New(name, trajectory.KindState, set.Times, frac)
	}
	return out, nil
}
