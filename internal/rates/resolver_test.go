package rates

import (
	"errors"
	"math"
	"testing"

	"github.com/san-kum/phokimo/internal/mechanism"
	"github.com/san-kum/phokimo/internal/units"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func ptr(v float64) *float64 { return &v }

// pair builds A -> B with the given transition spec and state energies (J/mol).
func pair(t *testing.T, tr mechanism.TransitionSpec, eA, eB *float64) *mechanism.Mechanism {
	t.Helper()
	tr.From, tr.To = "A", "B"
	desc := mechanism.Description{
		TotalTime: 1,
		Atoms:     12,
		States: []mechanism.StateSpec{
			{ID: "A", Spin: "singlet", Population: 1, Energy: eA},
			{ID: "B", Spin: "singlet", Energy: eB},
		},
		Transitions: []mechanism.TransitionSpec{tr},
	}
	m, err := mechanism.Build(desc, mechanism.Energies{})
	require.NoError(t, err)
	return m
}

func kTh(temp float64) float64 { return units.Boltzmann * temp / units.Planck }

func TestResolveTheories(t *testing.T) {
	r := NewResolver()
	T := units.DefaultTemperature
	RT := units.GasConstant * T

	tests := []struct {
		name string
		tr   mechanism.TransitionSpec
		eA   *float64
		eB   *float64
		want float64
	}{
		{
			name: "explicit passthrough",
			tr:   mechanism.TransitionSpec{Rate: ptr(1.0)},
			want: 1.0,
		},
		{
			name: "eyring zero barrier",
			tr:   mechanism.TransitionSpec{Theory: "eyring", Params: map[string]float64{"barrier": 0}},
			want: kTh(T),
		},
		{
			name: "eyring from energies",
			tr:   mechanism.TransitionSpec{Theory: "eyring", Params: map[string]float64{"kappa": 0.5}},
			eA:   ptr(-10e3), eB: ptr(40e3),
			want: 0.5 * kTh(T) * math.Exp(-50e3/RT),
		},
		{
			name: "eyring transition temperature",
			tr:   mechanism.TransitionSpec{Theory: "eyring", Temperature: ptr(77), Params: map[string]float64{"barrier": 5e3}},
			want: kTh(77) * math.Exp(-5e3/(units.GasConstant*77)),
		},
		{
			name: "arrhenius",
			tr:   mechanism.TransitionSpec{Theory: "arrhenius", Params: map[string]float64{"prefactor": 1e13, "activation": 20e3}},
			want: 1e13 * math.Exp(-20e3/RT),
		},
		{
			name: "relaxation",
			tr:   mechanism.TransitionSpec{Theory: "relaxation", Params: map[string]float64{"modes": 2}},
			eA:   ptr(100e3), eB: ptr(0),
			want: kTh(T) * math.Exp(-(2*100e3)/(30*RT)),
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m := pair(t, tt.tr, tt.eA, tt.eB)
			k, err := r.Resolve(m.Transitions[0], m)
			require.NoError(t, err)
			assert.InEpsilon(t, tt.want, k, 1e-12)
		})
	}
}

func TestEyringZeroBarrierIsThermalFrequency(t *testing.T) {
	m := pair(t, mechanism.TransitionSpec{Theory: "eyring", Params: map[string]float64{"barrier": 0}}, nil, nil)
	k, err := NewResolver().Resolve(m.Transitions[0], m)
	require.NoError(t, err)
	// kB*T/h at 298.15 K
	assert.InEpsilon(t, 6.2124e12, k, 1e-4)
}

func TestMarcusActivationless(t *testing.T) {
	lambda := 20e3
	v := 0.5e3
	m := pair(t, mechanism.TransitionSpec{Theory: "marcus", Params: map[string]float64{
		"coupling": v, "reorganization": lambda, "driving_force": -lambda,
	}}, nil, nil)

	k, err := NewResolver().Resolve(m.Transitions[0], m)
	require.NoError(t, err)

	vm := v / units.Avogadro
	lm := lambda / units.Avogadro
	kT := units.Boltzmann * units.DefaultTemperature
	want := 2 * math.Pi / units.HBar * vm * vm / math.Sqrt(4*math.Pi*lm*kT)
	assert.InEpsilon(t, want, k, 1e-12)
}

func TestEmissionEinsteinA(t *testing.T) {
	m := pair(t, mechanism.TransitionSpec{Theory: "emission", Params: map[string]float64{
		"wavelength": 500, "oscillator": 1,
	}}, nil, nil)

	k, err := NewResolver().Resolve(m.Transitions[0], m)
	require.NoError(t, err)
	// A = 6.670e15 f / lambda[Angstrom]^2
	assert.InEpsilon(t, 6.670e15/(5000*5000), k, 1e-3)

	// the same gap expressed as state energies, with f on the source state
	gap := units.Planck * units.SpeedOfLight / 500e-9 * units.Avogadro
	desc := mechanism.Description{
		States: []mechanism.StateSpec{
			{ID: "S1", Spin: "singlet", Population: 1, Energy: ptr(gap), Oscillator: ptr(1)},
			{ID: "S0", Spin: "singlet", Energy: ptr(0)},
		},
		Transitions: []mechanism.TransitionSpec{{From: "S1", To: "S0", Theory: "emission"}},
	}
	m2, err := mechanism.Build(desc, mechanism.Energies{})
	require.NoError(t, err)
	k2, err := NewResolver().Resolve(m2.Transitions[0], m2)
	require.NoError(t, err)
	assert.InEpsilon(t, k, k2, 1e-9)
}

func TestResolveDomainErrors(t *testing.T) {
	tests := []struct {
		name   string
		tr     mechanism.TransitionSpec
		eA, eB *float64
		cause  error
	}{
		{"negative explicit rate", mechanism.TransitionSpec{Rate: ptr(-1)}, nil, nil, ErrNonPhysical},
		{"infinite explicit rate", mechanism.TransitionSpec{Rate: ptr(math.Inf(1))}, nil, nil, ErrNonPhysical},
		{"marcus without coupling", mechanism.TransitionSpec{Theory: "marcus", Params: map[string]float64{"reorganization": 1e4}}, ptr(0), ptr(-1e4), ErrMissingParameter},
		{"marcus zero reorganization", mechanism.TransitionSpec{Theory: "marcus", Params: map[string]float64{"coupling": 1, "reorganization": 0}}, ptr(0), ptr(-1e4), ErrDegenerate},
		{"arrhenius without prefactor", mechanism.TransitionSpec{Theory: "arrhenius", Params: map[string]float64{"activation": 1}}, nil, nil, ErrMissingParameter},
		{"negative temperature", mechanism.TransitionSpec{Theory: "eyring", Temperature: ptr(-5), Params: map[string]float64{"barrier": 1}}, nil, nil, ErrTemperature},
		{"emission upwards", mechanism.TransitionSpec{Theory: "emission", Params: map[string]float64{"oscillator": 0.1}}, ptr(0), ptr(1e5), ErrNonPhysical},
		{"emission without oscillator", mechanism.TransitionSpec{Theory: "emission", Params: map[string]float64{"wavelength": 400}}, nil, nil, ErrMissingParameter},
		{"relaxation diatomic", mechanism.TransitionSpec{Theory: "relaxation", Params: map[string]float64{"gap": 1e3, "atoms": 2}}, nil, nil, ErrDegenerate},
		{"eyring overflow", mechanism.TransitionSpec{Theory: "eyring", Params: map[string]float64{"barrier": -1e7}}, nil, nil, ErrNonPhysical},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m := pair(t, tt.tr, tt.eA, tt.eB)
			_, err := NewResolver().Resolve(m.Transitions[0], m)
			require.Error(t, err)
			assert.ErrorIs(t, err, ErrKineticsDomain)
			assert.ErrorIs(t, err, tt.cause)

			var de *DomainError
			require.True(t, errors.As(err, &de))
			assert.Equal(t, "A->B", de.Transition)
			assert.Contains(t, err.Error(), "A->B")
		})
	}
}

func TestResolveIsDeterministic(t *testing.T) {
	m := pair(t, mechanism.TransitionSpec{Theory: "marcus", Params: map[string]float64{
		"coupling": 300, "reorganization": 25e3,
	}}, ptr(0), ptr(-12e3))
	r := NewResolver()

	k1, err := r.Resolve(m.Transitions[0], m)
	require.NoError(t, err)
	k2, err := r.Resolve(m.Transitions[0], m)
	require.NoError(t, err)
	assert.Equal(t, math.Float64bits(k1), math.Float64bits(k2))
}

func TestResolveAll(t *testing.T) {
	desc := mechanism.Description{
		TimeUnit: "ps",
		States: []mechanism.StateSpec{
			{ID: "S1", Spin: "singlet", Population: 1},
			{ID: "T1", Spin: "triplet"},
			{ID: "S0", Spin: "singlet", Role: "product"},
		},
		Transitions: []mechanism.TransitionSpec{
			{From: "S1", To: "T1", Rate: ptr(1e12)},
			{From: "S1", To: "S0", Rate: ptr(1e9)},
			{ID: "isc2", From: "T1", To: "S0", Rate: ptr(1e6)},
		},
	}
	m, err := mechanism.Build(desc, mechanism.Energies{})
	require.NoError(t, err)

	table, err := NewResolver().ResolveAll(m)
	require.NoError(t, err)
	require.Len(t, table.Entries, 3)
	assert.Equal(t, units.Picosecond, table.Unit)
	assert.InEpsilon(t, 1.0, table.InUnit(0), 1e-12)
	assert.InEpsilon(t, 1e12, table.Entries[0].PerSecond, 1e-12)

	k, ok := table.Rate("isc2")
	require.True(t, ok)
	assert.InEpsilon(t, 1e-6, k, 1e-9)

	lo, hi := table.Range()
	assert.InEpsilon(t, 1e-6, lo, 1e-9)
	assert.InEpsilon(t, 1.0, hi, 1e-9)
}

func TestResolveAllJoinsErrors(t *testing.T) {
	desc := mechanism.Description{
		States: []mechanism.StateSpec{
			{ID: "A", Spin: "singlet", Population: 1},
			{ID: "B", Spin: "singlet"},
		},
		Transitions: []mechanism.TransitionSpec{
			{From: "A", To: "B", Theory: "arrhenius", Params: map[string]float64{"activation": 0}},
			{From: "B", To: "A", Theory: "eyring", Params: map[string]float64{"barrier": 0, "kappa": -1}},
		},
	}
	m, err := mechanism.Build(desc, mechanism.Energies{})
	require.NoError(t, err)

	table, err := NewResolver().ResolveAll(m)
	require.Error(t, err)
	assert.Empty(t, table.Entries)
	assert.Contains(t, err.Error(), "A->B")
	assert.Contains(t, err.Error(), "B->A")
}

func TestWithTheory(t *testing.T) {
	r := NewResolver(WithTheory(mechanism.Arrhenius, func(in Input) (float64, error) {
		return 42, nil
	}))
	m := pair(t, mechanism.TransitionSpec{Theory: "arrhenius", Params: map[string]float64{"activation": 0}}, nil, nil)
	k, err := r.Resolve(m.Transitions[0], m)
	require.NoError(t, err)
	assert.Equal(t, 42.0, k)
}
