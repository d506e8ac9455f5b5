package topology

import (
	"fmt"
	"math/rand"

	"github.com/guwenyu1996/Distributed-Algorithms/internal/ghs"
)

// Generator names accepted by Generate.
const (
	GeneratorComplete = "complete"
	GeneratorRing     = "ring"
	GeneratorRandom   = "random"
)

// Generate builds a graph with the named generator.
func Generate(name string, n, extra int, seed int64) (*Topology, error) {
	if n <= 0 {
		return nil, fmt.Errorf("generate %s: %w", name, ErrEmpty)
	}
	switch name {
	case GeneratorComplete:
		return Complete(n, seed), nil
	case GeneratorRing:
		return Ring(n, seed), nil
	case GeneratorRandom:
		return Random(n, extra, seed), nil
	default:
		return nil, fmt.Errorf("%q: %w", name, ErrUnknownGenerator)
	}
}

func nodeRange(n int) []ghs.NodeID {
	nodes := make([]ghs.NodeID, n)
	for i := range nodes {
		nodes[i] = ghs.NodeID(i)
	}
	return nodes
}

// permutedWeights returns the weights 0..m-1 shuffled by pairwise swaps.
func permutedWeights(m int, rng *rand.Rand) []ghs.Weight {
	w := make([]ghs.Weight, m)
	for i := range w {
		w[i] = ghs.Weight(i)
	}
	rng.Shuffle(m, func(i, j int) { w[i], w[j] = w[j], w[i] })
	return w
}

// Complete builds the complete graph on nodes 0..n-1 with the weights 0..n(n-1)/2-1
// assigned in a seeded random order.
func Complete(n int, seed int64) *Topology {
	rng := rand.New(rand.NewSource(seed))
	weights := permutedWeights(n*(n-1)/2, rng)
	edges := make([]ghs.Span, 0, len(weights))
	for i := 0; i < n; i++ {
		for j := i + 1; j < n; j++ {
			edges = append(edges, ghs.NewSpan(ghs.NodeID(i), ghs.NodeID(j), weights[len(edges)]))
		}
	}
	return New(nodeRange(n), edges)
}

// Ring builds the cycle 0-1-...-(n-1)-0 with seeded distinct weights.
func Ring(n int, seed int64) *Topology {
	var pairs [][2]int
	switch {
	case n == 2:
		pairs = append(pairs, [2]int{0, 1})
	case n > 2:
		for i := 0; i < n; i++ {
			pairs = append(pairs, [2]int{i, (i + 1) % n})
		}
	}
	rng := rand.New(rand.NewSource(seed))
	weights := permutedWeights(len(pairs), rng)
	edges := make([]ghs.Span, len(pairs))
	for i, p := range pairs {
		edges[i] = ghs.NewSpan(ghs.NodeID(p[0]), ghs.NodeID(p[1]), weights[i]+1)
	}
	return New(nodeRange(n), edges)
}

// Random builds a connected graph: a random spanning tree plus up to extra additional
// edges between distinct unconnected pairs. Weights are distinct and seeded.
func Random(n, extra int, seed int64) *Topology {
	rng := rand.New(rand.NewSource(seed))
	seen := make(map[[2]int]struct{})
	var pairs [][2]int
	add := func(u, v int) bool {
		if u == v {
			return false
		}
		if u > v {
			u, v = v, u
		}
		key := [2]int{u, v}
		if _, dup := seen[key]; dup {
			return false
		}
		seen[key] = struct{}{}
		pairs = append(pairs, key)
		return true
	}

	order := rng.Perm(n)
	for i := 1; i < n; i++ {
		add(order[i], order[rng.Intn(i)])
	}
	if limit := n*(n-1)/2 - (n - 1); extra > limit {
		extra = limit
	}
	for added := 0; added < extra; {
		if add(rng.Intn(n), rng.Intn(n)) {
			added++
		}
	}

	// weights drawn from a range wider than the edge count so that they are sparse
	pool := rng.Perm(4*len(pairs) + 1)
	edges := make([]ghs.Span, len(pairs))
	for i, p := range pairs {
		edges[i] = ghs.NewSpan(ghs.NodeID(p[0]), ghs.NodeID(p[1]), ghs.Weight(pool[i]+1))
	}
	return New(nodeRange(n), edges)
}
