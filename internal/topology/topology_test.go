package topology

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/guwenyu1996/Distributed-Algorithms/internal/ghs"
)

func triangle() *Topology {
	return FromEdges([]ghs.Span{
		{A: 0, B: 1, Weight: 1},
		{A: 1, B: 2, Weight: 2},
		{A: 2, B: 0, Weight: 3},
	})
}

func TestFromEdgesNormalizes(t *testing.T) {
	topo := triangle()
	assert.Equal(t, []ghs.NodeID{0, 1, 2}, topo.Nodes)
	assert.Equal(t, ghs.Span{A: 0, B: 2, Weight: 3}, topo.Edges[2])
	require.NoError(t, topo.Validate())
}

func TestLinks(t *testing.T) {
	topo := triangle()
	assert.ElementsMatch(t, []ghs.Link{{Peer: 1, Weight: 1}, {Peer: 2, Weight: 3}}, topo.Links(0))
	assert.ElementsMatch(t, []ghs.NodeID{0, 1}, topo.Neighbors(2))
	assert.Empty(t, topo.Links(7))
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name string
		topo *Topology
		want error
	}{
		{"empty", New(nil, nil), ErrEmpty},
		{"negative node", New([]ghs.NodeID{-1, 0}, nil), ErrInvalidNode},
		{"duplicate node", New([]ghs.NodeID{0, 0}, nil), ErrDuplicateNode},
		{"self loop", New([]ghs.NodeID{0, 1}, []ghs.Span{{A: 1, B: 1, Weight: 1}}), ErrSelfLoop},
		{"unknown node", New([]ghs.NodeID{0, 1}, []ghs.Span{{A: 0, B: 5, Weight: 1}}), ErrUnknownNode},
		{"parallel edge", New([]ghs.NodeID{0, 1}, []ghs.Span{
			{A: 0, B: 1, Weight: 1},
			{A: 1, B: 0, Weight: 2},
		}), ErrDuplicateEdge},
		{"duplicate weight", New([]ghs.NodeID{0, 1, 2}, []ghs.Span{
			{A: 0, B: 1, Weight: 4},
			{A: 1, B: 2, Weight: 4},
		}), ErrDuplicateWeight},
		{"infinite weight", New([]ghs.NodeID{0, 1}, []ghs.Span{{A: 0, B: 1, Weight: ghs.Infinity}}), ErrInvalidWeight},
		{"disconnected", New([]ghs.NodeID{0, 1, 2, 3}, []ghs.Span{
			{A: 0, B: 1, Weight: 1},
			{A: 2, B: 3, Weight: 2},
		}), ErrDisconnected},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.ErrorIs(t, tt.topo.Validate(), tt.want)
		})
	}

	t.Run("single node", func(t *testing.T) {
		assert.NoError(t, New([]ghs.NodeID{3}, nil).Validate())
	})
}

func TestKruskal(t *testing.T) {
	mst, total, err := Kruskal(triangle())
	require.NoError(t, err)
	assert.Equal(t, ghs.Weight(3), total)
	assert.Equal(t, []ghs.Span{{A: 0, B: 1, Weight: 1}, {A: 1, B: 2, Weight: 2}}, mst)

	_, _, err = Kruskal(New([]ghs.NodeID{0, 1}, nil))
	assert.ErrorIs(t, err, ErrDisconnected)

	mst, total, err = Kruskal(New([]ghs.NodeID{0}, nil))
	require.NoError(t, err)
	assert.Empty(t, mst)
	assert.Zero(t, total)
}

func TestIsSpanningTree(t *testing.T) {
	topo := triangle()
	assert.True(t, topo.IsSpanningTree([]ghs.Span{{A: 1, B: 0, Weight: 1}, {A: 2, B: 0, Weight: 3}}))
	assert.False(t, topo.IsSpanningTree([]ghs.Span{{A: 0, B: 1, Weight: 1}}))
	assert.False(t, topo.IsSpanningTree([]ghs.Span{{A: 0, B: 1, Weight: 1}, {A: 0, B: 1, Weight: 1}}))
	assert.False(t, topo.IsSpanningTree([]ghs.Span{{A: 0, B: 1, Weight: 1}, {A: 1, B: 2, Weight: 9}}))
}

func TestGenerators(t *testing.T) {
	for _, name := range []string{GeneratorComplete, GeneratorRing, GeneratorRandom} {
		for _, n := range []int{1, 2, 3, 8, 20} {
			topo, err := Generate(name, n, 2*n, 11)
			require.NoError(t, err)
			require.Equal(t, n, topo.Size())
			assert.NoError(t, topo.Validate(), "%s n=%d", name, n)
		}
	}

	_, err := Generate("star", 4, 0, 1)
	assert.ErrorIs(t, err, ErrUnknownGenerator)
	_, err = Generate(GeneratorRing, 0, 0, 1)
	assert.ErrorIs(t, err, ErrEmpty)
}

func TestCompleteUsesPermutedWeights(t *testing.T) {
	topo := Complete(4, 1)
	require.Len(t, topo.Edges, 6)
	var weights []ghs.Weight
	for _, e := range topo.Edges {
		weights = append(weights, e.Weight)
	}
	assert.ElementsMatch(t, []ghs.Weight{0, 1, 2, 3, 4, 5}, weights)
	assert.Equal(t, topo.Edges, Complete(4, 1).Edges, "same seed, same graph")
}

func TestRandomIsSeeded(t *testing.T) {
	a := Random(12, 10, 5)
	b := Random(12, 10, 5)
	assert.Equal(t, a.Edges, b.Edges)
	assert.Len(t, a.Edges, 11+10)

	full := Random(5, 100, 5)
	assert.Len(t, full.Edges, 10)
}

func TestSortSpans(t *testing.T) {
	spans := []ghs.Span{{A: 3, B: 1, Weight: 9}, {A: 2, B: 0, Weight: 1}}
	SortSpans(spans)
	assert.Equal(t, []ghs.Span{{A: 0, B: 2, Weight: 1}, {A: 1, B: 3, Weight: 9}}, spans)
	assert.Equal(t, ghs.Weight(10), TotalWeight(spans))
}
