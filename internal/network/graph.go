package network

import (
	"fmt"
	"strings"

	"github.com/san-kum/phokimo/internal/mechanism"
	"gonum.org/v1/gonum/graph"
	"gonum.org/v1/gonum/graph/encoding"
	"gonum.org/v1/gonum/graph/encoding/dot"
	"gonum.org/v1/gonum/graph/simple"
)

// StateNode is a state of the transition graph. Its ID is the arena index.
type StateNode struct {
	Index int
	Label string
	Spin  string
	Role  mechanism.Role
}

func (s StateNode) ID() int64 { return int64(s.Index) }

func (s StateNode) DOTID() string { return s.Label }

func (s StateNode) Attributes() []encoding.Attribute {
	attrs := []encoding.Attribute{{Key: "label", Value: s.Label}}
	if s.Spin != "" && s.Role != mechanism.RoleSink {
		attrs[0].Value = fmt.Sprintf("%s (%s)", s.Label, s.Spin)
	}
	return append(attrs, roleStyle[s.Role]...)
}

var roleStyle = map[mechanism.Role][]encoding.Attribute{
	mechanism.RoleReactant: {
		{Key: "shape", Value: "box"}, {Key: "style", Value: "filled"}, {Key: "fillcolor", Value: "lightblue"},
	},
	mechanism.RoleIntermediate: {
		{Key: "shape", Value: "ellipse"},
	},
	mechanism.RoleProduct: {
		{Key: "shape", Value: "box"}, {Key: "style", Value: "filled,bold"}, {Key: "fillcolor", Value: "palegreen"},
	},
	mechanism.RoleTransitionState: {
		{Key: "shape", Value: "diamond"}, {Key: "style", Value: "dashed"},
	},
	mechanism.RoleSink: {
		{Key: "shape", Value: "doublecircle"}, {Key: "color", Value: "gray"},
	},
}

// TransitionEdge joins two states. Parallel transitions between the same
// pair share one edge; K is their summed rate in 1/Unit.
type TransitionEdge struct {
	F, T StateNode
	IDs  []string
	Via  []string
	K    float64
	Unit string
}

func (e *TransitionEdge) From() graph.Node { return e.F }

func (e *TransitionEdge) To() graph.Node { return e.T }

func (e *TransitionEdge) ReversedEdge() graph.Edge {
	r := *e
	r.F, r.T = e.T, e.F
	return &r
}

func (e *TransitionEdge) Attributes() []encoding.Attribute {
	label := fmt.Sprintf("%s\nk = %.3g /%s", strings.Join(e.IDs, ", "), e.K, e.Unit)
	if len(e.Via) > 0 {
		label += "\nvia " + strings.Join(e.Via, ", ")
	}
	attrs := []encoding.Attribute{{Key: "label", Value: label}}
	if e.K == 0 {
		attrs = append(attrs, encoding.Attribute{Key: "style", Value: "dotted"})
	}
	return attrs
}

type attributes []encoding.Attribute

func (a attributes) Attributes() []encoding.Attribute { return a }

// transitionGraph carries the top-level DOT attributes.
type transitionGraph struct {
	*simple.DirectedGraph
}

func (transitionGraph) DOTAttributers() (graph, node, edge encoding.Attributer) {
	return attributes{{Key: "rankdir", Value: "LR"}},
		attributes{{Key: "fontname", Value: "Helvetica"}},
		attributes{{Key: "fontname", Value: "Helvetica"}, {Key: "fontsize", Value: "10"}}
}

// Graph returns the transition digraph: every state including the sink and
// any transition state, and one edge per connected ordered pair.
func (n *Network) Graph() *simple.DirectedGraph {
	g := simple.NewDirectedGraph()
	nodes := make([]StateNode, len(n.labels))
	for i, label := range n.labels {
		nodes[i] = StateNode{Index: i, Label: label, Spin: n.spins[i], Role: n.roles[i]}
		g.AddNode(nodes[i])
	}
	for _, e := range n.edges {
		te, ok := g.Edge(int64(e.from), int64(e.to)).(*TransitionEdge)
		if !ok {
			te = &TransitionEdge{F: nodes[e.from], T: nodes[e.to], Unit: n.unit}
			g.SetEdge(te)
		}
		te.IDs = append(te.IDs, e.id)
		te.K += e.k
		if e.via >= 0 {
			te.Via = append(te.Via, n.labels[e.via])
		}
	}
	return g
}

// MarshalDOT encodes the transition graph for Graphviz, styling states by
// role.
func (n *Network) MarshalDOT(name string) ([]byte, error) {
	return dot.Marshal(transitionGraph{n.Graph()}, name, "", "  ")
}
