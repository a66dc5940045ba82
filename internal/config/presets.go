package config

import (
	"errors"
	"fmt"
	"slices"
	"strings"

	"github.com/san-kum/phokimo/internal/mechanism"
	"github.com/sirupsen/logrus"
)

func f(v float64) *float64 { return &v }

// Presets are ready-to-run mechanisms.
var Presets = map[string]*Config{
	"two_state": preset(&Config{
		Name: "two_state",
		Mechanism: mechanism.Description{
			Name:      "two-state decay",
			TotalTime: 5,
			Samples:   501,
			States: []mechanism.StateSpec{
				{ID: "A", Spin: "singlet", Population: 1},
				{ID: "B", Spin: "singlet", Role: "product"},
			},
			Transitions: []mechanism.TransitionSpec{
				{From: "A", To: "B", Rate: f(1)},
			},
		},
	}),

	// S1 either fluoresces or crosses to T1, which twists over a barrier
	// and relaxes into the trans or cis ground state.
	"isomerization": preset(&Config{
		Name:       "isomerization",
		EnergyUnit: "kj/mol",
		Energies: map[string]float64{
			"S1": 300, "T1": 250, "TS": 265, "Tp": 245, "trans": 0, "cis": 20,
		},
		Mechanism: mechanism.Description{
			Name:      "photo-isomerisation with intersystem crossing",
			TotalTime: 300,
			Samples:   1000,
			TimeUnit:  "ns",
			Atoms:     24,
			States: []mechanism.StateSpec{
				{ID: "S1", Spin: "singlet", Population: 1, Oscillator: f(0.05)},
				{ID: "T1", Spin: "triplet"},
				{ID: "TS", Spin: "triplet", Role: "transition-state"},
				{ID: "Tp", Name: "twisted", Spin: "triplet"},
				{ID: "trans", Spin: "singlet", Role: "product"},
				{ID: "cis", Spin: "singlet", Role: "product"},
			},
			Transitions: []mechanism.TransitionSpec{
				{ID: "fluorescence", From: "S1", To: "trans", Theory: "emission"},
				{ID: "isc", From: "S1", To: "T1", Rate: f(5e10)},
				{ID: "twist", From: "T1", To: "Tp", Via: "TS"},
				{From: "Tp", To: "trans", Theory: "arrhenius", Params: map[string]float64{"prefactor": 1e8, "activation": 5000}},
				{From: "Tp", To: "cis", Rate: f(2e7)},
			},
		},
	}),

	// Rates span eight decades; only bdf and expm are practical here.
	"triplet_cascade": preset(&Config{
		Name: "triplet_cascade",
		Mechanism: mechanism.Description{
			Name:      "stiff singlet-triplet cascade",
			TotalTime: 1e-4,
			Samples:   1000,
			States: []mechanism.StateSpec{
				{ID: "S2", Spin: "singlet", Population: 1},
				{ID: "S1", Spin: "singlet"},
				{ID: "T1", Spin: "triplet"},
				{ID: "S0", Spin: "singlet", Role: "product"},
			},
			Transitions: []mechanism.TransitionSpec{
				{ID: "ic", From: "S2", To: "S1", Rate: f(1e13)},
				{ID: "isc", From: "S1", To: "T1", Rate: f(1e9)},
				{ID: "fluorescence", From: "S1", To: "S0", Rate: f(1e8)},
				{ID: "phosphorescence", From: "T1", To: "S0", Rate: f(1e5)},
				{ID: "quench", From: "T1", To: mechanism.SinkID, Rate: f(1e4)},
			},
		},
	}),
}

// preset fills the sections a preset leaves empty with defaults.
func preset(c *Config) *Config {
	d := DefaultConfig()
	if c.Solver == (SolverConfig{}) {
		c.Solver = d.Solver
	}
	if c.Fit == (FitConfig{}) {
		c.Fit = d.Fit
	}
	if c.Output == (OutputConfig{}) {
		c.Output = d.Output
	}
	return c
}

// ErrUnknownPreset is returned for a name missing from Presets.
var ErrUnknownPreset = errors.New("config: unknown preset")

// LoadPreset returns an independent copy of the named preset.
func LoadPreset(name string) (*Config, error) {
	p, ok := Presets[name]
	if !ok {
		return nil, fmt.Errorf("%w: %s (available: %s)", ErrUnknownPreset, name, strings.Join(ListPresets(), ", "))
	}
	cfg, err := p.Clone()
	if err != nil {
		return nil, fmt.Errorf("config: preset %s: %w", name, err)
	}
	return cfg, nil
}

// GetPreset is LoadPreset for callers that only need a hit or a miss. A
// preset that fails to copy is logged and reported as missing.
func GetPreset(name string) *Config {
	cfg, err := LoadPreset(name)
	if err != nil {
		if !errors.Is(err, ErrUnknownPreset) {
			logrus.WithField("preset", name).Error(err)
		}
		return nil
	}
	return cfg
}

func ListPresets() []string {
	names := make([]string, 0, len(Presets))
	for name := range Presets {
		names = append(names, name)
	}
	slices.Sort(names)
	return names
}
