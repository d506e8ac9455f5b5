// Package topology describes the fixed undirected weighted graph a GHS run operates on.
// It validates the assumptions the protocol relies on (distinct weights, connectivity),
// hands every node its incident links, generates test graphs and computes the
// reference minimum spanning tree.
package topology

import (
	"fmt"
	"sort"

	"github.com/guwenyu1996/Distributed-Algorithms/internal/ghs"
)

// Topology is a graph given as a node list and an undirected edge list.
type Topology struct {
	Nodes []ghs.NodeID
	Edges []ghs.Span
}

// New builds a topology and normalizes its edges. It does not validate.
func New(nodes []ghs.NodeID, edges []ghs.Span) *Topology {
	t := &Topology{
		Nodes: append([]ghs.NodeID(nil), nodes...),
		Edges: make([]ghs.Span, len(edges)),
	}
	for i, e := range edges {
		t.Edges[i] = ghs.NewSpan(e.A, e.B, e.Weight)
	}
	sort.Slice(t.Nodes, func(i, j int) bool { return t.Nodes[i] < t.Nodes[j] })
	return t
}

// FromEdges builds a topology whose node set is every endpoint of edges.
func FromEdges(edges []ghs.Span) *Topology {
	seen := make(map[ghs.NodeID]struct{})
	var nodes []ghs.NodeID
	for _, e := range edges {
		for _, id := range [2]ghs.NodeID{e.A, e.B} {
			if _, ok := seen[id]; !ok {
				seen[id] = struct{}{}
				nodes = append(nodes, id)
			}
		}
	}
	return New(nodes, edges)
}

// Size returns the number of nodes.
func (t *Topology) Size() int {
	return len(t.Nodes)
}

// Has reports whether id is a node of the graph.
func (t *Topology) Has(id ghs.NodeID) bool {
	for _, n := range t.Nodes {
		if n == id {
			return true
		}
	}
	return false
}

// Links returns the incident links of node id, the seed of its edge registry.
func (t *Topology) Links(id ghs.NodeID) []ghs.Link {
	var out []ghs.Link
	for _, e := range t.Edges {
		switch id {
		case e.A:
			out = append(out, ghs.Link{Peer: e.B, Weight: e.Weight})
		case e.B:
			out = append(out, ghs.Link{Peer: e.A, Weight: e.Weight})
		}
	}
	return out
}

// Neighbors returns the ids adjacent to id.
func (t *Topology) Neighbors(id ghs.NodeID) []ghs.NodeID {
	links := t.Links(id)
	out := make([]ghs.NodeID, len(links))
	for i, l := range links {
		out[i] = l.Peer
	}
	return out
}

// Validate checks that the graph is one the protocol can run on: non-empty, no self
// loops, no parallel edges, pairwise distinct finite weights and connected.
func (t *Topology) Validate() error {
	if len(t.Nodes) == 0 {
		return ErrEmpty
	}
	known := make(map[ghs.NodeID]struct{}, len(t.Nodes))
	for _, id := range t.Nodes {
		if id < 0 {
			return fmt.Errorf("node %d: %w", id, ErrInvalidNode)
		}
		if _, dup := known[id]; dup {
			return fmt.Errorf("node %d: %w", id, ErrDuplicateNode)
		}
		known[id] = struct{}{}
	}

	pairs := make(map[[2]ghs.NodeID]struct{}, len(t.Edges))
	weights := make(map[ghs.Weight]ghs.Span, len(t.Edges))
	for _, e := range t.Edges {
		if e.A == e.B {
			return fmt.Errorf("edge %s: %w", e, ErrSelfLoop)
		}
		for _, id := range [2]ghs.NodeID{e.A, e.B} {
			if _, ok := known[id]; !ok {
				return fmt.Errorf("edge %s: node %d: %w", e, id, ErrUnknownNode)
			}
		}
		key := [2]ghs.NodeID{e.A, e.B}
		if _, dup := pairs[key]; dup {
			return fmt.Errorf("edge %s: %w", e, ErrDuplicateEdge)
		}
		pairs[key] = struct{}{}
		if e.Weight == ghs.Infinity {
			return fmt.Errorf("edge %s: %w", e, ErrInvalidWeight)
		}
		if prev, dup := weights[e.Weight]; dup {
			return fmt.Errorf("edges %s and %s: %w", prev, e, ErrDuplicateWeight)
		}
		weights[e.Weight] = e
	}

	if n := components(t.Nodes, t.Edges); n != 1 {
		return fmt.Errorf("%d components: %w", n, ErrDisconnected)
	}
	return nil
}

// TotalWeight sums the weights of spans.
func TotalWeight(spans []ghs.Span) ghs.Weight {
	var sum ghs.Weight
	for _, s := range spans {
		sum += s.Weight
	}
	return sum
}

// SortSpans normalizes spans in place and orders them by weight.
func SortSpans(spans []ghs.Span) {
	for i, s := range spans {
		spans[i] = ghs.NewSpan(s.A, s.B, s.Weight)
	}
	sort.Slice(spans, func(i, j int) bool {
		if spans[i].Weight != spans[j].Weight {
			return spans[i].Weight < spans[j].Weight
		}
		if spans[i].A != spans[j].A {
			return spans[i].A < spans[j].A
		}
		return spans[i].B < spans[j].B
	})
}

// IsSpanningTree reports whether spans are edges of t that connect all of its nodes
// without a cycle.
func (t *Topology) IsSpanningTree(spans []ghs.Span) bool {
	if len(spans) != len(t.Nodes)-1 {
		return false
	}
	edges := make(map[ghs.Span]struct{}, len(t.Edges))
	for _, e := range t.Edges {
		edges[e] = struct{}{}
	}
	for _, s := range spans {
		if _, ok := edges[ghs.NewSpan(s.A, s.B, s.Weight)]; !ok {
			return false
		}
	}
	return components(t.Nodes, spans) == 1
}
