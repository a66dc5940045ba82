// Package mechanism validates a declarative photochemical mechanism into an
// immutable arena of states and transitions referenced by index.
package mechanism

import (
	"errors"
	"fmt"
	"maps"
	"math"
	"slices"
	"strings"

	"github.com/san-kum/phokimo/internal/units"
)

// SinkID is the reserved identifier of the implicit sink state.
const SinkID = "sink"

// DefaultSamples is the time resolution used when none is given.
const DefaultSamples = 1000

type Role string

const (
	RoleReactant        Role = "reactant"
	RoleIntermediate    Role = "intermediate"
	RoleProduct         Role = "product"
	RoleTransitionState Role = "transition-state"
	RoleSink            Role = "sink"
)

func parseRole(s string) (Role, bool) {
	switch r := Role(strings.ToLower(strings.TrimSpace(s))); r {
	case RoleReactant, RoleIntermediate, RoleProduct, RoleTransitionState, RoleSink:
		return r, true
	case "ts", "transition_state":
		return RoleTransitionState, true
	}
	return "", false
}

type State struct {
	ID            string
	Index         int
	Name          string
	Spin          string
	Multiplicity  int
	Energy        float64 // J/mol
	HasEnergy     bool
	Initial       float64
	Role          Role
	Oscillator    float64
	HasOscillator bool
}

type Transition struct {
	ID          string
	Index       int
	From        int
	To          int
	Via         int // -1 when the barrier is not set by a transition state
	Theory      Theory
	Rate        float64
	HasRate     bool
	Temperature *float64
	Params      map[string]float64
}

// Param returns a theory parameter.
func (t Transition) Param(key string) (float64, bool) {
	v, ok := t.Params[key]
	return v, ok
}

type Globals struct {
	Temperature float64
	TotalTime   float64
	Samples     int
	TimeUnit    units.TimeUnit
	Atoms       int
}

// Mechanism is immutable after Build. States and transitions reference each
// other by arena index only.
type Mechanism struct {
	Name        string
	States      []State
	Transitions []Transition
	Globals     Globals
	Sink        int

	index map[string]int
}

func (m *Mechanism) Index(id string) (int, bool) {
	i, ok := m.index[id]
	return i, ok
}

func (m *Mechanism) State(id string) (State, bool) {
	i, ok := m.index[id]
	if !ok {
		return State{}, false
	}
	return m.States[i], true
}

func (m *Mechanism) InitialPopulations() []float64 {
	out := make([]float64, len(m.States))
	for i, s := range m.States {
		out[i] = s.Initial
	}
	return out
}

// Spins lists spin manifolds in order of first appearance.
func (m *Mechanism) Spins() []string {
	var out []string
	for _, s := range m.States {
		if !slices.Contains(out, s.Spin) {
			out = append(out, s.Spin)
		}
	}
	return out
}

// Members returns the indices of the states in a spin manifold.
func (m *Mechanism) Members(spin string) []int {
	var out []int
	for _, s := range m.States {
		if s.Spin == spin {
			out = append(out, s.Index)
		}
	}
	return out
}

// ByRole returns the indices of the states with the given role.
func (m *Mechanism) ByRole(r Role) []int {
	var out []int
	for _, s := range m.States {
		if s.Role == r {
			out = append(out, s.Index)
		}
	}
	return out
}

// Energies is a precomputed state-energy lookup, typically produced by an
// external quantum-chemistry reader.
type Energies struct {
	Unit   units.EnergyUnit
	Values map[string]float64
}

var spinByMultiplicity = map[int]string{1: "singlet", 2: "doublet", 3: "triplet", 4: "quartet", 5: "quintet"}

// Build validates desc against energies and freezes it into a Mechanism.
// All problems found are returned together, each as a *ValidationError.
func Build(desc Description, energies Energies) (*Mechanism, error) {
	var errs []error
	fail := func(err *ValidationError) { errs = append(errs, err) }

	m := &Mechanism{
		Name:  desc.Name,
		Sink:  -1,
		index: make(map[string]int),
	}

	m.Globals = Globals{
		Temperature: desc.Temperature,
		TotalTime:   desc.TotalTime,
		Samples:     desc.Samples,
		Atoms:       desc.Atoms,
	}
	if m.Globals.Temperature == 0 {
		m.Globals.Temperature = units.DefaultTemperature
	}
	if m.Globals.Samples == 0 {
		m.Globals.Samples = DefaultSamples
	}

	tu, err := units.ParseTimeUnit(desc.TimeUnit)
	if err != nil {
		fail(invalid("time_unit", "%v", err))
	}
	m.Globals.TimeUnit = tu

	inlineUnit, err := units.ParseEnergyUnit(desc.EnergyUnit)
	if err != nil {
		fail(invalid("energy_unit", "%v", err))
	}
	lookupUnit := energies.Unit
	if lookupUnit == "" {
		lookupUnit = units.JoulePerMol
	}

	for id := range desc.Initial {
		if !slices.ContainsFunc(desc.States, func(s StateSpec) bool { return s.ID == id }) {
			fail(invalid("initial."+id, "references undeclared state"))
		}
	}

	for i, spec := range desc.States {
		field := fmt.Sprintf("states[%d]", i)
		id := strings.TrimSpace(spec.ID)
		if id == "" {
			fail(invalid(field+".id", "must not be empty"))
			continue
		}
		field = "state " + id
		if _, dup := m.index[id]; dup {
			fail(invalid(field, "duplicate state identifier"))
			continue
		}

		st := State{
			ID:           id,
			Index:        len(m.States),
			Name:         spec.Name,
			Spin:         strings.TrimSpace(spec.Spin),
			Multiplicity: spec.Multiplicity,
			Initial:      spec.Population,
		}
		if st.Name == "" {
			st.Name = id
		}
		if v, ok := desc.Initial[id]; ok {
			st.Initial = v
		}
		if math.IsNaN(st.Initial) || math.IsInf(st.Initial, 0) || st.Initial < 0 {
			fail(invalid(field+".population", "initial population must be finite and non-negative, got %g", st.Initial))
		}

		sink := spec.Sink || id == SinkID
		if st.Spin == "" {
			switch {
			case sink:
				st.Spin = SinkID
			case spinByMultiplicity[st.Multiplicity] != "":
				st.Spin = spinByMultiplicity[st.Multiplicity]
			default:
				fail(invalid(field+".spin", "no spin manifold and no usable multiplicity"))
			}
		}
		if len(desc.Spins) > 0 && st.Spin != "" && !slices.Contains(desc.Spins, st.Spin) && !(sink && st.Spin == SinkID) {
			fail(invalid(field+".spin", "unknown spin manifold %q", st.Spin))
		}

		switch {
		case sink:
			st.Role = RoleSink
			if spec.Role != "" && !strings.EqualFold(spec.Role, string(RoleSink)) {
				fail(invalid(field+".role", "sink state cannot have role %q", spec.Role))
			}
		case spec.Role != "":
			r, ok := parseRole(spec.Role)
			if !ok {
				fail(invalid(field+".role", "unknown role %q", spec.Role))
			}
			if r == RoleSink {
				sink = true
			}
			st.Role = r
		case st.Initial > 0:
			st.Role = RoleReactant
		default:
			st.Role = RoleIntermediate
		}
		if sink {
			if m.Sink >= 0 {
				fail(invalid(field, "second sink state; %s is already the sink", m.States[m.Sink].ID))
			} else {
				m.Sink = st.Index
			}
		}

		if v, ok := energies.Values[id]; ok {
			st.Energy, st.HasEnergy = lookupUnit.ToJPerMol(v), true
		} else if spec.Energy != nil {
			st.Energy, st.HasEnergy = inlineUnit.ToJPerMol(*spec.Energy), true
		}
		if st.HasEnergy && (math.IsNaN(st.Energy) || math.IsInf(st.Energy, 0)) {
			fail(invalid(field+".energy", "energy must be finite"))
		}
		if spec.Oscillator != nil {
			st.Oscillator, st.HasOscillator = *spec.Oscillator, true
		}

		m.index[id] = st.Index
		m.States = append(m.States, st)
	}

	needsSink := slices.ContainsFunc(desc.Transitions, func(t TransitionSpec) bool {
		return strings.TrimSpace(t.To) == SinkID
	})
	if needsSink && m.Sink < 0 {
		m.Sink = len(m.States)
		m.States = append(m.States, State{
			ID:    SinkID,
			Index: m.Sink,
			Name:  SinkID,
			Spin:  SinkID,
			Role:  RoleSink,
		})
		m.index[SinkID] = m.Sink
	} else if needsSink {
		if _, ok := m.index[SinkID]; !ok {
			m.index[SinkID] = m.Sink
		}
	}

	seen := make(map[string]bool)
	for i, spec := range desc.Transitions {
		from, to := strings.TrimSpace(spec.From), strings.TrimSpace(spec.To)
		id := strings.TrimSpace(spec.ID)
		if id == "" {
			id = from + "->" + to
		}
		field := "transition " + id
		if from == "" || to == "" {
			fail(invalid(fmt.Sprintf("transitions[%d]", i), "from and to are required"))
			continue
		}
		if seen[id] {
			fail(invalid(field, "duplicate transition identifier"))
			continue
		}
		seen[id] = true

		tr := Transition{
			ID:     id,
			Index:  len(m.Transitions),
			Via:    -1,
			Params: maps.Clone(spec.Params),
		}
		if tr.Params == nil {
			tr.Params = map[string]float64{}
		}

		var ok bool
		if tr.From, ok = m.index[from]; !ok {
			fail(invalid(field+".from", "references undeclared state %q", from))
		}
		if tr.To, ok = m.index[to]; !ok {
			fail(invalid(field+".to", "references undeclared state %q", to))
		}
		if v := strings.TrimSpace(spec.Via); v != "" {
			if tr.Via, ok = m.index[v]; !ok {
				fail(invalid(field+".via", "references undeclared state %q", v))
			}
		}
		if _, okF := m.index[from]; okF {
			if _, okT := m.index[to]; okT {
				if tr.From == tr.To {
					fail(invalid(field, "source and destination are the same state"))
				}
				if tr.From == m.Sink {
					fail(invalid(field+".from", "the sink cannot be a transition source"))
				}
			}
		}

		if spec.Rate != nil {
			tr.Rate, tr.HasRate = *spec.Rate, true
		}
		if spec.Temperature != nil {
			v := *spec.Temperature
			tr.Temperature = &v
		}

		switch {
		case spec.Theory != "":
			th, err := ParseTheory(spec.Theory)
			if err != nil {
				fail(invalid(field+".theory", "%v", err))
			}
			tr.Theory = th
		case tr.HasRate:
			tr.Theory = Explicit
		case tr.Via >= 0:
			tr.Theory = Eyring
		default:
			fail(invalid(field+".theory", "no theory and no explicit rate"))
		}

		if tr.Theory != "" && !tr.HasRate && tr.Theory.NeedsEnergies(tr.Params) {
			for _, idx := range energyStates(tr) {
				if idx >= 0 && idx < len(m.States) && !m.States[idx].HasEnergy {
					fail(invalid(field, "theory %s needs the energy of state %s", tr.Theory, m.States[idx].ID))
				}
			}
		}

		m.Transitions = append(m.Transitions, tr)
	}

	if !slices.ContainsFunc(m.States, func(s State) bool { return s.Initial > 0 }) {
		fail(invalid("initial", "no state carries a non-zero initial population"))
	}

	if len(errs) > 0 {
		return nil, errors.Join(errs...)
	}
	return m, nil
}

// energyStates lists the states whose energies a theory reads.
func energyStates(tr Transition) []int {
	if tr.Theory == Eyring && tr.Via >= 0 {
		return []int{tr.From, tr.Via}
	}
	return []int{tr.From, tr.To}
}
