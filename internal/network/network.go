// Package network assembles resolved rate constants into the linear
// first-order system dx/dt = K x over an explicit state arena.
package network

import (
	"errors"
	"fmt"

	"github.com/san-kum/phokimo/internal/dynamo"
	"github.com/san-kum/phokimo/internal/mechanism"
	"github.com/san-kum/phokimo/internal/rates"
	"github.com/san-kum/phokimo/internal/trajectory"
	"github.com/sirupsen/logrus"
	"gonum.org/v1/gonum/graph"
	"gonum.org/v1/gonum/graph/simple"
	"gonum.org/v1/gonum/graph/traverse"
	"gonum.org/v1/gonum/mat"
)

// ErrNetwork is the class of structural defects in a mechanism graph.
var ErrNetwork = errors.New("network: structural defect")

// NetworkError names a state that can never hold population.
type NetworkError struct {
	State  string
	Reason string
}

func (e *NetworkError) Error() string {
	return fmt.Sprintf("network: state %s is %s", e.State, e.Reason)
}

func (e *NetworkError) Unwrap() error { return ErrNetwork }

type Options struct {
	// Strict turns structural warnings into a Build failure.
	Strict bool
}

type edge struct {
	id       string
	from, to int
	via      int
	k        float64
}

// Network is the right-hand side of the kinetics ODE. It is immutable and
// safe for concurrent use.
type Network struct {
	labels    []string
	spins     []string
	roles     []mechanism.Role
	unit      string
	index     map[string]int
	edges     []edge
	k         *mat.Dense
	manifolds []trajectory.Manifold
	sink      int
	warnings  []*NetworkError
}

// Build pairs every transition with its rate and checks reachability.
// table must come from resolving m.
func Build(m *mechanism.Mechanism, table rates.Table, opts Options) (*Network, error) {
	if len(table.Entries) != len(m.Transitions) {
		return nil, fmt.Errorf("%w: %d rates for %d transitions", ErrNetwork, len(table.Entries), len(m.Transitions))
	}

	n := len(m.States)
	net := &Network{
		labels: make([]string, n),
		spins:  make([]string, n),
		roles:  make([]mechanism.Role, n),
		unit:   string(table.Unit),
		index:  make(map[string]int, n),
		k:      mat.NewDense(max(n, 1), max(n, 1), nil),
		sink:   m.Sink,
	}
	for _, s := range m.States {
		net.labels[s.Index] = s.ID
		net.spins[s.Index] = s.Spin
		net.roles[s.Index] = s.Role
		net.index[s.ID] = s.Index
	}
	for _, spin := range m.Spins() {
		net.manifolds = append(net.manifolds, trajectory.Manifold{Label: spin, Members: m.Members(spin)})
	}

	for i, tr := range m.Transitions {
		entry := table.Entries[i]
		if entry.ID != tr.ID {
			return nil, fmt.Errorf("%w: rate %d belongs to %s, not %s", ErrNetwork, i, entry.ID, tr.ID)
		}
		k := table.InUnit(i)
		if k == 0 {
			logrus.Debugf("network: transition %s has zero rate", tr.ID)
		}
		net.edges = append(net.edges, edge{id: tr.ID, from: tr.From, to: tr.To, via: tr.Via, k: k})
		net.k.Set(tr.From, tr.From, net.k.At(tr.From, tr.From)-k)
		net.k.Set(tr.To, tr.From, net.k.At(tr.To, tr.From)+k)
	}

	net.warnings = net.reachability(m)
	if len(net.warnings) > 0 {
		if opts.Strict {
			errs := make([]error, len(net.warnings))
			for i, w := range net.warnings {
				errs[i] = w
			}
			return nil, errors.Join(errs...)
		}
		for _, w := range net.warnings {
			logrus.Warn(w.Error())
		}
	}
	return net, nil
}

// reachability walks the transition graph breadth-first from a virtual
// source wired to every initially populated state.
func (n *Network) reachability(m *mechanism.Mechanism) []*NetworkError {
	g := simple.NewDirectedGraph()
	for i := range m.States {
		g.AddNode(simple.Node(i))
	}
	source := simple.Node(len(m.States))
	g.AddNode(source)

	degree := make([]int, len(m.States))
	barrier := make([]bool, len(m.States))
	for _, e := range n.edges {
		degree[e.from]++
		degree[e.to]++
		if e.via >= 0 {
			barrier[e.via] = true
		}
		if e.k > 0 {
			g.SetEdge(g.NewEdge(simple.Node(e.from), simple.Node(e.to)))
		}
	}
	for _, s := range m.States {
		if s.Initial > 0 {
			g.SetEdge(g.NewEdge(source, simple.Node(s.Index)))
		}
	}

	var bfs traverse.BreadthFirst
	bfs.Walk(g, source, func(graph.Node, int) bool { return false })

	var out []*NetworkError
	for _, s := range m.States {
		// a transition state that only sets a barrier never holds population
		if bfs.Visited(simple.Node(s.Index)) || (barrier[s.Index] && degree[s.Index] == 0) {
			continue
		}
		reason := "unreachable from the initially populated states"
		if degree[s.Index] == 0 {
			reason = "isolated (no transitions in or out)"
		}
		out = append(out, &NetworkError{State: s.ID, Reason: reason})
	}
	return out
}

func (n *Network) Derive(x dynamo.State, t float64) dynamo.State {
	d := make(dynamo.State, len(x))
	for _, e := range n.edges {
		flux := e.k * x[e.from]
		d[e.from] -= flux
		d[e.to] += flux
	}
	return d
}

func (n *Network) StateDim() int { return len(n.labels) }

// Jacobian returns a copy of the constant rate matrix K.
func (n *Network) Jacobian(x dynamo.State, t float64) *mat.Dense {
	return mat.DenseCopyOf(n.k)
}

func (n *Network) IsLinear() bool { return true }

func (n *Network) Index(id string) (int, bool) {
	i, ok := n.index[id]
	return i, ok
}

func (n *Network) Labels() []string { return append([]string(nil), n.labels...) }

func (n *Network) Manifolds() []trajectory.Manifold { return n.manifolds }

// SinkIndex is the arena index of the sink bucket, or -1.
func (n *Network) SinkIndex() int { return n.sink }

// Warnings returns the structural problems found by a non-strict Build.
func (n *Network) Warnings() []error {
	out := make([]error, len(n.warnings))
	for i, w := range n.warnings {
		out[i] = w
	}
	return out
}

// Flux returns the instantaneous flux through each transition at x.
func (n *Network) Flux(x dynamo.State) map[string]float64 {
	out := make(map[string]float64, len(n.edges))
	for _, e := range n.edges {
		out[e.id] = e.k * x[e.from]
	}
	return out
}

// Divergence is the sum of a derivative vector; it vanishes for a
// population-conserving network.
func Divergence(d dynamo.State) float64 {
	return d.Sum()
}
