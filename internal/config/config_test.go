package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/san-kum/phokimo/internal/mechanism"
	"github.com/san-kum/phokimo/internal/units"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()

	if cfg.Solver.Name != "bdf" {
		t.Errorf("expected solver bdf, got %s", cfg.Solver.Name)
	}
	if !cfg.Fit.Enabled || !cfg.Fit.Offset {
		t.Error("fitting with an offset should be on by default")
	}
	if err := cfg.Validate(); err != nil {
		t.Errorf("default config should validate: %v", err)
	}
}

func TestGetPreset(t *testing.T) {
	for _, name := range ListPresets() {
		t.Run(name, func(t *testing.T) {
			cfg := GetPreset(name)
			require.NotNil(t, cfg)
			assert.Equal(t, name, cfg.Name)

			energies, err := cfg.LoadEnergies()
			require.NoError(t, err)
			_, err = mechanism.Build(cfg.Mechanism, energies)
			require.NoError(t, err)
		})
	}
}

func TestGetPresetIsACopy(t *testing.T) {
	a := GetPreset("two_state")
	a.Mechanism.States[0].ID = "changed"
	b := GetPreset("two_state")
	assert.Equal(t, "A", b.Mechanism.States[0].ID)
}

func TestGetPreset_NotFound(t *testing.T) {
	if cfg := GetPreset("nonexistent"); cfg != nil {
		t.Error("expected nil for nonexistent preset")
	}
}

func TestLoadPreset(t *testing.T) {
	cfg, err := LoadPreset("isomerization")
	require.NoError(t, err)
	assert.Equal(t, "isomerization", cfg.Name)

	_, err = LoadPreset("nonexistent")
	assert.ErrorIs(t, err, ErrUnknownPreset)
	assert.Contains(t, err.Error(), "two_state")

	broken := DefaultConfig()
	broken.Name = "broken"
	broken.Fit.Order = 0
	Presets["broken"] = broken
	t.Cleanup(func() { delete(Presets, "broken") })

	_, err = LoadPreset("broken")
	require.Error(t, err)
	assert.NotErrorIs(t, err, ErrUnknownPreset)
	assert.Contains(t, err.Error(), "fit.order")
	assert.Nil(t, GetPreset("broken"))
}

func TestListPresets(t *testing.T) {
	assert.Equal(t, []string{"isomerization", "triplet_cascade", "two_state"}, ListPresets())
}

func TestSaveLoadRoundTrip(t *testing.T) {
	for _, ext := range []string{".yaml", ".toml"} {
		t.Run(ext, func(t *testing.T) {
			want := GetPreset("isomerization")
			want.Solver.Name = "expm"
			want.Fit.Enabled = false
			want.Strict = true

			path := filepath.Join(t.TempDir(), "mech"+ext)
			require.NoError(t, Save(path, want))

			got, err := Load(path)
			require.NoError(t, err)
			assert.Equal(t, want.Mechanism, got.Mechanism)
			assert.Equal(t, want.Solver, got.Solver)
			assert.Equal(t, want.Fit, got.Fit)
			assert.Equal(t, want.Energies, got.Energies)
			assert.True(t, got.Strict)
			assert.Equal(t, filepath.Dir(path), got.Dir())

			e1, err := want.LoadEnergies()
			require.NoError(t, err)
			e2, err := got.LoadEnergies()
			require.NoError(t, err)
			m1, err := mechanism.Build(want.Mechanism, e1)
			require.NoError(t, err)
			m2, err := mechanism.Build(got.Mechanism, e2)
			require.NoError(t, err)
			assert.Equal(t, m1.States, m2.States)
			assert.Equal(t, m1.Transitions, m2.Transitions)
		})
	}
}

const tomlMechanism = `
name = "decay"

[mechanism]
total_time = 10
samples = 11

[[mechanism.states]]
id = "A"
spin = "singlet"
population = 1

[[mechanism.states]]
id = "B"
multiplicity = 3

[[mechanism.transitions]]
from = "A"
to = "B"
rate = 2

[fit]
order = 2
`

func TestLoadTOMLKeepsDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "decay.toml")
	require.NoError(t, os.WriteFile(path, []byte(tomlMechanism), 0644))

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "bdf", cfg.Solver.Name)
	assert.Equal(t, 2, cfg.Fit.Order)
	assert.True(t, cfg.Fit.Enabled)
	assert.Equal(t, 11, cfg.Mechanism.Samples)
	require.Len(t, cfg.Mechanism.Transitions, 1)
	assert.Equal(t, 2.0, *cfg.Mechanism.Transitions[0].Rate)

	m, err := mechanism.Build(cfg.Mechanism, mechanism.Energies{})
	require.NoError(t, err)
	b, _ := m.State("B")
	assert.Equal(t, "triplet", b.Spin)
}

func TestLoadErrors(t *testing.T) {
	dir := t.TempDir()
	write := func(name, body string) string {
		p := filepath.Join(dir, name)
		require.NoError(t, os.WriteFile(p, []byte(body), 0644))
		return p
	}

	tests := []struct {
		name string
		path string
	}{
		{"unknown key", write("typo.yaml", "solvr:\n  name: bdf\n")},
		{"bad order", write("order.yaml", "fit:\n  order: 0\n")},
		{"bad series", write("series.yaml", "fit:\n  series: everything\n")},
		{"bad extension", write("mech.ini", "")},
		{"malformed toml", write("bad.toml", "name = \n")},
		{"missing", filepath.Join(dir, "missing.yaml")},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Load(tt.path)
			assert.Error(t, err)
		})
	}
}

func TestLoadEnergies(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "energies.yaml"), []byte("unit: hartree\nS1: 0.1\nT1: 0.08\n"), 0644))

	cfg := DefaultConfig()
	cfg.dir = dir
	cfg.EnergyFile = "energies.yaml"
	cfg.EnergyUnit = "kj/mol"
	cfg.Energies = map[string]float64{"T1": 200}

	e, err := cfg.LoadEnergies()
	require.NoError(t, err)
	assert.Equal(t, units.JoulePerMol, e.Unit)
	assert.InDelta(t, 0.1*units.Hartree2JMol, e.Values["S1"], 1e-6)
	assert.InDelta(t, 200e3, e.Values["T1"], 1e-9, "inline values win over the file")

	_, err = LoadEnergies(filepath.Join(dir, "nope.yaml"))
	assert.Error(t, err)
}
