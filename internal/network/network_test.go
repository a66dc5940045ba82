package network

import (
	"errors"
	"math"
	"testing"

	"github.com/san-kum/phokimo/internal/dynamo"
	"github.com/san-kum/phokimo/internal/mechanism"
	"github.com/san-kum/phokimo/internal/rates"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func ptr(v float64) *float64 { return &v }

func build(t *testing.T, desc mechanism.Description, opts Options) (*Network, error) {
	t.Helper()
	m, err := mechanism.Build(desc, mechanism.Energies{})
	require.NoError(t, err)
	table, err := rates.NewResolver().ResolveAll(m)
	require.NoError(t, err)
	return Build(m, table, opts)
}

func cascade() mechanism.Description {
	return mechanism.Description{
		States: []mechanism.StateSpec{
			{ID: "S1", Spin: "singlet", Population: 1},
			{ID: "T1", Spin: "triplet"},
			{ID: "S0", Spin: "singlet"},
		},
		Transitions: []mechanism.TransitionSpec{
			{From: "S1", To: "T1", Rate: ptr(2)},
			{From: "S1", To: "S0", Rate: ptr(1)},
			{From: "T1", To: "S0", Rate: ptr(0.5)},
			{From: "T1", To: "sink", Rate: ptr(0.25)},
		},
	}
}

func TestDerive(t *testing.T) {
	net, err := build(t, cascade(), Options{})
	require.NoError(t, err)
	require.Equal(t, 4, net.StateDim())
	assert.Equal(t, []string{"S1", "T1", "S0", "sink"}, net.Labels())
	assert.Equal(t, 3, net.SinkIndex())
	assert.Empty(t, net.Warnings())

	d := net.Derive(dynamo.State{1, 0.5, 0, 0}, 0)
	assert.InDeltaSlice(t, []float64{-3, 2 - 0.375, 1 + 0.25, 0.125}, []float64(d), 1e-15)
}

func TestDerivativeConservesPopulation(t *testing.T) {
	net, err := build(t, cascade(), Options{})
	require.NoError(t, err)

	states := []dynamo.State{
		{1, 0, 0, 0},
		{0.3, 0.3, 0.2, 0.2},
		{1e-9, 7, 1e5, 3},
	}
	for _, x := range states {
		d := net.Derive(x, 0)
		scale := math.Max(1, math.Abs(d[0])+math.Abs(d[1]))
		assert.InDelta(t, 0, Divergence(d)/scale, 1e-12, "x=%v", x)
	}
}

func TestJacobianMatchesDerive(t *testing.T) {
	net, err := build(t, cascade(), Options{})
	require.NoError(t, err)
	assert.True(t, net.IsLinear())

	x := dynamo.State{0.4, 0.3, 0.2, 0.1}
	k := net.Jacobian(x, 0)
	d := net.Derive(x, 0)
	for i := range x {
		sum := 0.0
		for j := range x {
			sum += k.At(i, j) * x[j]
		}
		assert.InDelta(t, d[i], sum, 1e-15)
	}

	// callers get a copy
	k.Set(0, 0, 100)
	assert.Equal(t, -3.0, net.Jacobian(x, 0).At(0, 0))
}

func TestIsolatedStateWarning(t *testing.T) {
	desc := cascade()
	desc.States = append(desc.States, mechanism.StateSpec{ID: "X", Spin: "singlet"})

	net, err := build(t, desc, Options{})
	require.NoError(t, err)

	warnings := net.Warnings()
	require.Len(t, warnings, 1)
	assert.True(t, errors.Is(warnings[0], ErrNetwork))
	var ne *NetworkError
	require.True(t, errors.As(warnings[0], &ne))
	assert.Equal(t, "X", ne.State)
	assert.Contains(t, ne.Reason, "isolated")

	idx, ok := net.Index("X")
	require.True(t, ok)
	d := net.Derive(dynamo.State{1, 0, 0, 0, 0}, 0)
	assert.Zero(t, d[idx])
}

func TestStrictModeFails(t *testing.T) {
	desc := cascade()
	desc.States = append(desc.States, mechanism.StateSpec{ID: "X", Spin: "singlet"})

	net, err := build(t, desc, Options{Strict: true})
	assert.Nil(t, net)
	assert.ErrorIs(t, err, ErrNetwork)
	assert.Contains(t, err.Error(), "state X")
}

func TestUnreachableThroughZeroRate(t *testing.T) {
	desc := mechanism.Description{
		States: []mechanism.StateSpec{
			{ID: "A", Spin: "singlet", Population: 1},
			{ID: "B", Spin: "singlet"},
			{ID: "C", Spin: "singlet"},
		},
		Transitions: []mechanism.TransitionSpec{
			{From: "A", To: "B", Rate: ptr(0)},
			{From: "B", To: "C", Rate: ptr(1)},
		},
	}
	net, err := build(t, desc, Options{})
	require.NoError(t, err)

	var names []string
	for _, w := range net.Warnings() {
		var ne *NetworkError
		require.True(t, errors.As(w, &ne))
		assert.Contains(t, ne.Reason, "unreachable")
		names = append(names, ne.State)
	}
	assert.Equal(t, []string{"B", "C"}, names)
}

func TestBuildRejectsMismatchedTable(t *testing.T) {
	m, err := mechanism.Build(cascade(), mechanism.Energies{})
	require.NoError(t, err)
	table, err := rates.NewResolver().ResolveAll(m)
	require.NoError(t, err)

	short := table
	short.Entries = table.Entries[:2]
	_, err = Build(m, short, Options{})
	assert.ErrorIs(t, err, ErrNetwork)

	swapped := rates.Table{Unit: table.Unit, Entries: append([]rates.Entry(nil), table.Entries...)}
	swapped.Entries[0], swapped.Entries[1] = swapped.Entries[1], swapped.Entries[0]
	_, err = Build(m, swapped, Options{})
	assert.ErrorIs(t, err, ErrNetwork)
}

func TestManifoldsAndFlux(t *testing.T) {
	net, err := build(t, cascade(), Options{})
	require.NoError(t, err)

	ms := net.Manifolds()
	require.Len(t, ms, 3)
	assert.Equal(t, "singlet", ms[0].Label)
	assert.Equal(t, []int{0, 2}, ms[0].Members)
	assert.Equal(t, "triplet", ms[1].Label)
	assert.Equal(t, "sink", ms[2].Label)

	flux := net.Flux(dynamo.State{1, 1, 0, 0})
	assert.Equal(t, 2.0, flux["S1->T1"])
	assert.Equal(t, 0.25, flux["T1->sink"])
}

// twist is a triplet isomerisation whose barrier is set by TS, which takes
// part in no transition of its own.
func twist() mechanism.Description {
	return mechanism.Description{
		EnergyUnit: "kj/mol",
		States: []mechanism.StateSpec{
			{ID: "T1", Spin: "triplet", Population: 1, Energy: ptr(250)},
			{ID: "TS", Spin: "triplet", Role: "transition-state", Energy: ptr(265)},
			{ID: "Tp", Spin: "triplet", Energy: ptr(245)},
			{ID: "P", Spin: "singlet", Role: "product", Energy: ptr(0)},
		},
		Transitions: []mechanism.TransitionSpec{
			{ID: "twist", From: "T1", To: "Tp", Via: "TS"},
			{ID: "relax", From: "Tp", To: "P", Rate: ptr(2e7)},
			{ID: "quench", From: "Tp", To: "P", Rate: ptr(1e7)},
			{ID: "loss", From: "T1", To: "sink", Rate: ptr(1e3)},
		},
	}
}

func TestBarrierStateIsNotIsolated(t *testing.T) {
	for _, strict := range []bool{false, true} {
		net, err := build(t, twist(), Options{Strict: strict})
		require.NoError(t, err, "strict=%v", strict)
		assert.Empty(t, net.Warnings())
	}

	// a transition state nothing refers to is still reported
	desc := twist()
	desc.Transitions[0] = mechanism.TransitionSpec{ID: "twist", From: "T1", To: "Tp", Rate: ptr(1e6)}
	net, err := build(t, desc, Options{})
	require.NoError(t, err)
	require.Len(t, net.Warnings(), 1)
	assert.Contains(t, net.Warnings()[0].Error(), "state TS is isolated")
}

func TestGraph(t *testing.T) {
	net, err := build(t, twist(), Options{})
	require.NoError(t, err)

	g := net.Graph()
	assert.Equal(t, 5, g.Nodes().Len())

	idx := func(id string) int64 {
		i, ok := net.Index(id)
		require.True(t, ok)
		return int64(i)
	}
	assert.Zero(t, g.From(idx("TS")).Len()+g.To(idx("TS")).Len())

	e, ok := g.Edge(idx("Tp"), idx("P")).(*TransitionEdge)
	require.True(t, ok)
	assert.Equal(t, []string{"relax", "quench"}, e.IDs)
	assert.InDelta(t, 3e7, e.K, 1e-6)

	e, ok = g.Edge(idx("T1"), idx("Tp")).(*TransitionEdge)
	require.True(t, ok)
	assert.Equal(t, []string{"TS"}, e.Via)
	assert.Greater(t, e.K, 0.0)
}

func TestMarshalDOT(t *testing.T) {
	net, err := build(t, twist(), Options{})
	require.NoError(t, err)

	data, err := net.MarshalDOT("twist")
	require.NoError(t, err)
	out := string(data)
	for _, want := range []string{"digraph", "rankdir=LR", "T1 -> Tp", "Tp -> P", "T1 -> sink", "shape=diamond", "shape=doublecircle", "palegreen"} {
		assert.Contains(t, out, want)
	}
}
