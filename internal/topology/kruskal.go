package topology

import (
	"sort"

	"github.com/guwenyu1996/Distributed-Algorithms/internal/ghs"
)

// disjointSet is union-find with path halving and union by rank.
type disjointSet struct {
	parent map[ghs.NodeID]ghs.NodeID
	rank   map[ghs.NodeID]int
}

func newDisjointSet(nodes []ghs.NodeID) *disjointSet {
	d := &disjointSet{
		parent: make(map[ghs.NodeID]ghs.NodeID, len(nodes)),
		rank:   make(map[ghs.NodeID]int, len(nodes)),
	}
	for _, id := range nodes {
		d.parent[id] = id
	}
	return d
}

func (d *disjointSet) has(u ghs.NodeID) bool {
	_, ok := d.parent[u]
	return ok
}

func (d *disjointSet) find(u ghs.NodeID) ghs.NodeID {
	for d.parent[u] != u {
		d.parent[u] = d.parent[d.parent[u]]
		u = d.parent[u]
	}
	return u
}

// union merges the sets of u and v and reports whether they were disjoint.
func (d *disjointSet) union(u, v ghs.NodeID) bool {
	ru, rv := d.find(u), d.find(v)
	if ru == rv {
		return false
	}
	switch {
	case d.rank[ru] < d.rank[rv]:
		d.parent[ru] = rv
	case d.rank[ru] > d.rank[rv]:
		d.parent[rv] = ru
	default:
		d.parent[rv] = ru
		d.rank[ru]++
	}
	return true
}

func components(nodes []ghs.NodeID, edges []ghs.Span) int {
	d := newDisjointSet(nodes)
	n := len(nodes)
	for _, e := range edges {
		if d.has(e.A) && d.has(e.B) && d.union(e.A, e.B) {
			n--
		}
	}
	return n
}

// Kruskal computes the minimum spanning tree of t and its total weight.
// With distinct weights the tree is unique, so it is the reference a GHS run must match.
func Kruskal(t *Topology) ([]ghs.Span, ghs.Weight, error) {
	if len(t.Nodes) == 0 {
		return nil, 0, ErrEmpty
	}
	edges := make([]ghs.Span, 0, len(t.Edges))
	for _, e := range t.Edges {
		if e.A != e.B {
			edges = append(edges, e)
		}
	}
	sort.SliceStable(edges, func(i, j int) bool {
		return edges[i].Weight < edges[j].Weight
	})

	d := newDisjointSet(t.Nodes)
	mst := make([]ghs.Span, 0, len(t.Nodes)-1)
	var total ghs.Weight
	for _, e := range edges {
		if len(mst) == len(t.Nodes)-1 {
			break
		}
		if d.has(e.A) && d.has(e.B) && d.union(e.A, e.B) {
			mst = append(mst, e)
			total += e.Weight
		}
	}
	if len(mst) < len(t.Nodes)-1 {
		return nil, 0, ErrDisconnected
	}
	return mst, total, nil
}
