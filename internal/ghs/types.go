package ghs

import (
	"fmt"
	"math"
)

// NodeID identifies a process in the graph.
type NodeID int

// None marks an unset edge pointer (test_edge, best_edge, in_branch).
const None NodeID = -1

// Weight is an edge weight. Weights are pairwise distinct within one graph.
type Weight int64

// Infinity is reported by a subtree that has no outgoing edge left.
const Infinity Weight = math.MaxInt64

// String renders Infinity as "inf".
func (w Weight) String() string {
	if w == Infinity {
		return "inf"
	}
	return fmt.Sprintf("%d", int64(w))
}

// NodeState is SN in the algorithm.
type NodeState uint8

const (
	// Sleeping is the initial state, before wakeup.
	Sleeping NodeState = iota
	// Find means the node takes part in its fragment's search for the MOE.
	Find
	// Found means the node's own part of the search is finished.
	Found
)

// String returns the state name.
func (s NodeState) String() string {
	switch s {
	case Sleeping:
		return "Sleeping"
	case Find:
		return "Find"
	case Found:
		return "Found"
	default:
		return fmt.Sprintf("NodeState(%d)", uint8(s))
	}
}

// EdgeClass is SE(j) in the algorithm: the node's local view of an edge.
type EdgeClass uint8

const (
	// Basic edges are untested and may still join the tree.
	Basic EdgeClass = iota
	// Branch edges are part of the spanning tree.
	Branch
	// Rejected edges connect two nodes of the same fragment.
	Rejected
)

// String returns the classification name.
func (c EdgeClass) String() string {
	switch c {
	case Basic:
		return "Basic"
	case Branch:
		return "Branch"
	case Rejected:
		return "Rejected"
	default:
		return fmt.Sprintf("EdgeClass(%d)", uint8(c))
	}
}

// Span is an undirected graph edge with A < B.
type Span struct {
	A      NodeID `codec:"a" mapstructure:"a"`
	B      NodeID `codec:"b" mapstructure:"b"`
	Weight Weight `codec:"w" mapstructure:"weight"`
}

// NewSpan orders the endpoints so that equal edges compare equal.
func NewSpan(u, v NodeID, w Weight) Span {
	if u > v {
		u, v = v, u
	}
	return Span{A: u, B: v, Weight: w}
}

// String formats the span as "a-b(w)".
func (s Span) String() string {
	return fmt.Sprintf("%d-%d(%s)", s.A, s.B, s.Weight)
}
