package ghs

import (
	"fmt"
	"sort"
)

// Link seeds one registry entry: the neighbour on the other end and the edge weight.
type Link struct {
	Peer   NodeID
	Weight Weight
}

// Edge is one entry of a node's edge registry.
type Edge struct {
	Peer   NodeID
	Weight Weight
	Class  EdgeClass
}

// Registry holds the incident edges of a node ordered by ascending weight.
type Registry struct {
	byPeer map[NodeID]*Edge
	order  []*Edge
}

// NewRegistry builds the registry of node self from its links.
// Self loops and repeated neighbours are rejected.
func NewRegistry(self NodeID, links []Link) (*Registry, error) {
	r := &Registry{
		byPeer: make(map[NodeID]*Edge, len(links)),
		order:  make([]*Edge, 0, len(links)),
	}
	for _, l := range links {
		if l.Peer == self {
			return nil, fmt.Errorf("node %d: %w", self, ErrSelfLoop)
		}
		if l.Peer < 0 {
			return nil, fmt.Errorf("node %d: invalid peer id %d", self, l.Peer)
		}
		if _, dup := r.byPeer[l.Peer]; dup {
			return nil, fmt.Errorf("node %d: peer %d: %w", self, l.Peer, ErrDuplicateLink)
		}
		e := &Edge{Peer: l.Peer, Weight: l.Weight, Class: Basic}
		r.byPeer[l.Peer] = e
		r.order = append(r.order, e)
	}
	sort.SliceStable(r.order, func(i, j int) bool {
		return r.order[i].Weight < r.order[j].Weight
	})
	return r, nil
}

// Len returns the number of incident edges.
func (r *Registry) Len() int {
	return len(r.order)
}

// Get returns the edge towards peer.
func (r *Registry) Get(peer NodeID) (*Edge, bool) {
	e, ok := r.byPeer[peer]
	return e, ok
}

// mustGet is used for ids that the state machine itself derived from the registry.
// A miss means the bookkeeping is broken.
func (r *Registry) mustGet(peer NodeID) *Edge {
	e, ok := r.byPeer[peer]
	if !ok {
		panic(fmt.Sprintf("ghs: no edge to node %d", peer))
	}
	return e
}

// SetClass reclassifies the edge towards peer. It reports false for an unknown peer.
func (r *Registry) SetClass(peer NodeID, c EdgeClass) bool {
	e, ok := r.byPeer[peer]
	if !ok {
		return false
	}
	e.Class = c
	return true
}

// Min returns the lightest incident edge regardless of classification.
func (r *Registry) Min() (*Edge, bool) {
	if len(r.order) == 0 {
		return nil, false
	}
	return r.order[0], true
}

// MinBasic returns the lightest edge still classified Basic.
func (r *Registry) MinBasic() (*Edge, bool) {
	for _, e := range r.order {
		if e.Class == Basic {
			return e, true
		}
	}
	return nil, false
}

// Branches returns the Branch edges in weight order.
func (r *Registry) Branches() []*Edge {
	var out []*Edge
	for _, e := range r.order {
		if e.Class == Branch {
			out = append(out, e)
		}
	}
	return out
}

// Edges returns a copy of every edge in weight order.
func (r *Registry) Edges() []Edge {
	out := make([]Edge, len(r.order))
	for i, e := range r.order {
		out[i] = *e
	}
	return out
}
