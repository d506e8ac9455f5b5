package network

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/guwenyu1996/Distributed-Algorithms/internal/ghs"
	"github.com/guwenyu1996/Distributed-Algorithms/internal/topology"
)

func TestMailboxFIFO(t *testing.T) {
	box := newMailbox()
	for i := 0; i < 10; i++ {
		box.put(envelope{msg: ghs.Connect(ghs.NodeID(i), 0)})
	}
	assert.Equal(t, 10, box.len())

	ctx := context.Background()
	for i := 0; i < 10; i++ {
		e, err := box.take(ctx)
		require.NoError(t, err)
		assert.Equal(t, ghs.NodeID(i), e.msg.From)
	}

	ctx, cancel := context.WithTimeout(ctx, 10*time.Millisecond)
	defer cancel()
	_, err := box.take(ctx)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestMailboxWakesBlockedTaker(t *testing.T) {
	box := newMailbox()
	got := make(chan envelope, 1)
	go func() {
		e, err := box.take(context.Background())
		if err == nil {
			got <- e
		}
	}()
	time.Sleep(5 * time.Millisecond)
	box.put(envelope{start: true})

	select {
	case e := <-got:
		assert.True(t, e.start)
	case <-time.After(time.Second):
		t.Fatal("taker not woken")
	}
}

func runLocal(t *testing.T, topo *topology.Topology, start ...ghs.NodeID) {
	t.Helper()
	var halts atomic.Int32
	l, err := NewLocal(topo, WithObserver(ghs.ObserverFunc(func(_ ghs.NodeID, ev ghs.Event) {
		if _, ok := ev.(ghs.HaltEvent); ok {
			halts.Add(1)
		}
	})))
	require.NoError(t, err)
	require.NoError(t, l.Start(start...))

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	res, err := l.Run(ctx)
	require.NoError(t, err)
	require.NoError(t, res.Verify(topo))
	assert.EqualValues(t, topo.Size(), halts.Load())
	assert.Positive(t, res.TotalMessages())

	for _, id := range topo.Nodes {
		assert.True(t, l.Node(id).Halted(), "node %d", id)
	}
}

func TestLocalFourNodeCompleteGraph(t *testing.T) {
	for seed := int64(1); seed <= 5; seed++ {
		topo := topology.Complete(4, seed)
		runLocal(t, topo, topo.Nodes...)
	}
}

func TestLocalRandomGraphs(t *testing.T) {
	for seed := int64(1); seed <= 15; seed++ {
		topo := topology.Random(5+int(seed)*2, int(seed)*3, seed)
		runLocal(t, topo, topo.Nodes[0])
	}
	topo := topology.Complete(12, 3)
	runLocal(t, topo, topo.Nodes...)
}

func TestLocalTimeoutWithoutStart(t *testing.T) {
	l, err := NewLocal(topology.Ring(4, 1))
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	_, err = l.Run(ctx)
	assert.ErrorIs(t, err, ErrTimeout)
	assert.ErrorIs(t, err, context.DeadlineExceeded)

	_, err = l.Run(context.Background())
	assert.ErrorIs(t, err, ErrRunning)
}

func TestLocalSurfacesProtocolViolation(t *testing.T) {
	topo := topology.Ring(3, 1)
	l, err := NewLocal(topo)
	require.NoError(t, err)

	// a Report over an edge that is not a branch
	l.boxes[0].put(envelope{msg: ghs.Report(2, 5)})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	_, err = l.Run(ctx)
	require.ErrorIs(t, err, ghs.ErrUnexpectedReport)

	var pe *ghs.ProtocolError
	require.True(t, errors.As(err, &pe))
	assert.Equal(t, ghs.NodeID(0), pe.Node)
}

func TestLocalRejectsUnknownIDs(t *testing.T) {
	l, err := NewLocal(topology.Ring(3, 1))
	require.NoError(t, err)
	assert.ErrorIs(t, l.Start(7), ErrUnknownNode)
	assert.ErrorIs(t, l.Send(9, ghs.Connect(0, 0)), ErrUnknownNode)

	_, err = NewLocal(topology.New(nil, nil))
	assert.ErrorIs(t, err, topology.ErrEmpty)
}
