package sim

import (
	"math/rand"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/guwenyu1996/Distributed-Algorithms/internal/ghs"
	"github.com/guwenyu1996/Distributed-Algorithms/internal/result"
	"github.com/guwenyu1996/Distributed-Algorithms/internal/topology"
)

func TestSchedulerOrdersByTimeThenSequence(t *testing.T) {
	s := NewScheduler()
	var order []string
	s.In(2*time.Millisecond, func() { order = append(order, "late") })
	s.In(time.Millisecond, func() { order = append(order, "first") })
	s.In(time.Millisecond, func() { order = append(order, "second") })
	cancel := s.In(time.Millisecond, func() { order = append(order, "cancelled") })
	cancel()

	assert.Equal(t, 3, s.Pending())
	for s.StepOne() {
	}
	assert.Equal(t, []string{"first", "second", "late"}, order)
	assert.Equal(t, Time(2*time.Millisecond), s.Now())
	assert.Equal(t, 3, s.Processed())
	assert.True(t, s.Empty())
}

func TestSchedulerStepWhile(t *testing.T) {
	s := NewScheduler()
	ran := 0
	for i := 1; i <= 5; i++ {
		s.In(Duration(i)*time.Second, func() { ran++ })
	}
	assert.Equal(t, 3, s.StepWhile(func() bool { return ran < 3 }))
	assert.Equal(t, Time(3*time.Second), s.Now())
	assert.Equal(t, 2, s.Pending())

	// past times run at the current instant
	s.At(0, func() { ran++ })
	require.True(t, s.StepOne())
	assert.Equal(t, Time(3*time.Second), s.Now())
	assert.Equal(t, 4, ran)
}

func TestNetworkKeepsLinkFIFO(t *testing.T) {
	s := NewScheduler()
	rng := rand.New(rand.NewSource(3))
	net := NewNetwork(s, rng, 50*time.Millisecond)
	require.True(t, net.Connect(0, 1, time.Millisecond))
	assert.False(t, net.Connect(1, 0, time.Millisecond), "already connected")
	assert.False(t, net.Connect(2, 2, time.Millisecond))
	assert.True(t, net.IsConnected(1, 0))

	var got []int
	for i := 0; i < 200; i++ {
		i := i
		require.True(t, net.Send(0, 1, func() { got = append(got, i) }))
	}
	assert.False(t, net.Send(0, 5, func() {}))
	for s.StepOne() {
	}
	require.Len(t, got, 200)
	for i := range got {
		assert.Equal(t, i, got[i])
	}
}

func runSim(t *testing.T, topo *topology.Topology, cfg Config, start ...ghs.NodeID) *result.Result {
	t.Helper()
	s, err := New(topo, cfg, zerolog.Nop())
	require.NoError(t, err)
	require.NoError(t, s.Start(start...))
	res, err := s.Run()
	require.NoError(t, err)
	require.NoError(t, res.Verify(topo))
	return res
}

func TestFourNodeCompleteGraph(t *testing.T) {
	topo := topology.Complete(4, 1)
	for seed := int64(0); seed < 20; seed++ {
		cfg := DefaultConfig()
		cfg.Seed = seed
		res := runSim(t, topo, cfg, topo.Nodes...)
		assert.Len(t, res.Tree, 3)
		assert.Equal(t, seed, res.Seed)
		assert.Positive(t, res.Messages[ghs.MsgConnect.String()])
	}
}

func TestRandomGraphsMatchKruskal(t *testing.T) {
	for seed := int64(1); seed <= 60; seed++ {
		n := 2 + int(seed%19)
		topo := topology.Random(n, int(seed%5)*n/2, seed)

		cfg := DefaultConfig()
		cfg.Seed = seed
		if seed%3 == 0 {
			cfg.Jitter = 0
		}
		runSim(t, topo, cfg, topo.Nodes[int(seed)%n])
	}
}

func TestStaggeredWakeups(t *testing.T) {
	topo := topology.Complete(9, 2)
	cfg := DefaultConfig()
	cfg.Seed = 8

	s, err := New(topo, cfg, zerolog.Nop())
	require.NoError(t, err)
	levels := NewByNodeCollector(NewLevelCollector)
	s.AddCollector(levels)
	dur := &DurationCollector{}
	s.AddCollector(dur)

	for i, id := range topo.Nodes {
		require.NoError(t, s.StartAt(id, Duration(i)*3*time.Millisecond))
	}
	res, err := s.Run()
	require.NoError(t, err)
	require.NoError(t, res.Verify(topo))
	assert.Positive(t, dur.Duration())

	for _, id := range topo.Nodes {
		lc := levels.Get(id)
		require.NotNil(t, lc, "node %d", id)
		assert.True(t, lc.Halted)
		assert.Equal(t, lc.Deferred, lc.Replayed, "every parked message is handled at node %d", id)
		assert.IsIncreasing(t, lc.Levels, "levels never decrease at node %d", id)
	}
}

func TestExactlyOneDeclaration(t *testing.T) {
	topo := topology.Ring(10, 6)
	cfg := DefaultConfig()
	cfg.Seed = 12

	s, err := New(topo, cfg, zerolog.Nop())
	require.NoError(t, err)
	log := &EventLog{}
	s.AddCollector(log)
	require.NoError(t, s.Start(topo.Nodes...))
	res, err := s.Run()
	require.NoError(t, err)

	var terminated, halts, reportsToCore int
	for _, e := range log.Entries {
		switch ev := e.Event.(type) {
		case ghs.TerminatedEvent:
			terminated++
			assert.Equal(t, res.Declared, e.Node)
		case ghs.HaltEvent:
			halts++
		case ghs.ReportEvent:
			if ev.Weight == ghs.Infinity {
				reportsToCore++
			}
		}
	}
	assert.Equal(t, 1, terminated)
	assert.Equal(t, topo.Size(), halts)
	assert.GreaterOrEqual(t, reportsToCore, 2, "both core ends report infinity")
}

func TestSingleNode(t *testing.T) {
	topo := topology.New([]ghs.NodeID{4}, nil)
	res := runSim(t, topo, DefaultConfig(), 4)
	assert.Empty(t, res.Tree)
	assert.Equal(t, ghs.NodeID(4), res.Declared)
	assert.Zero(t, res.TotalMessages())
}

func TestRunWithoutStartIsIncomplete(t *testing.T) {
	s, err := New(topology.Complete(3, 1), DefaultConfig(), zerolog.Nop())
	require.NoError(t, err)
	_, err = s.Run()
	assert.ErrorIs(t, err, ErrIncomplete)
}

func TestEventLimit(t *testing.T) {
	cfg := DefaultConfig()
	cfg.MaxEvents = 5
	topo := topology.Complete(6, 1)
	s, err := New(topo, cfg, zerolog.Nop())
	require.NoError(t, err)
	require.NoError(t, s.Start(topo.Nodes...))
	_, err = s.Run()
	assert.ErrorIs(t, err, ErrEventLimit)
}

func TestNewRejectsInvalidInput(t *testing.T) {
	_, err := New(topology.New([]ghs.NodeID{0, 1}, nil), DefaultConfig(), zerolog.Nop())
	assert.ErrorIs(t, err, topology.ErrDisconnected)

	cfg := DefaultConfig()
	cfg.MaxDelay = 0
	_, err = New(topology.Complete(2, 1), cfg, zerolog.Nop())
	assert.Error(t, err)

	s, err := New(topology.Complete(2, 1), DefaultConfig(), zerolog.Nop())
	require.NoError(t, err)
	assert.ErrorIs(t, s.StartAt(9, 0), ErrUnknownNode)
}
