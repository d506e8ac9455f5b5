// Package network runs every node of a topology as an actor inside one process.
// Each node owns a goroutine and an unbounded mailbox; sends append to the receiver's
// mailbox and never block, which keeps every directed link FIFO.
package network

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"github.com/guwenyu1996/Distributed-Algorithms/internal/ghs"
	"github.com/guwenyu1996/Distributed-Algorithms/internal/result"
	"github.com/guwenyu1996/Distributed-Algorithms/internal/topology"
)

var (
	ErrUnknownNode = errors.New("unknown node")
	ErrRunning     = errors.New("network already ran")
	ErrTimeout     = errors.New("nodes did not halt in time")
)

// errFinished stops the actor group once every node halted.
var errFinished = errors.New("all nodes halted")

// Option configures a Local network.
type Option func(*Local)

// WithObserver adds an observer that receives every node event.
func WithObserver(obs ghs.Observer) Option {
	return func(l *Local) {
		l.observers = append(l.observers, obs)
	}
}

// WithLogger sets the logger handed to every node.
func WithLogger(log zerolog.Logger) Option {
	return func(l *Local) {
		l.log = log
	}
}

// Local is an in-process network of node actors.
type Local struct {
	topo      *topology.Topology
	nodes     map[ghs.NodeID]*ghs.Node
	boxes     map[ghs.NodeID]*mailbox
	tree      *ghs.TreeCollector
	halts     *ghs.HaltCollector
	counter   *result.Counter
	observers ghs.Observers
	log       zerolog.Logger
	ran       bool
}

// NewLocal validates topo and creates one Sleeping node per vertex.
func NewLocal(topo *topology.Topology, opts ...Option) (*Local, error) {
	if err := topo.Validate(); err != nil {
		return nil, err
	}
	l := &Local{
		topo:    topo,
		nodes:   make(map[ghs.NodeID]*ghs.Node, topo.Size()),
		boxes:   make(map[ghs.NodeID]*mailbox, topo.Size()),
		tree:    ghs.NewTreeCollector(),
		halts:   ghs.NewHaltCollector(topo.Size()),
		counter: result.NewCounter(),
		log:     zerolog.Nop(),
	}
	for _, opt := range opts {
		opt(l)
	}
	obs := append(ghs.Observers{l.tree, l.halts}, l.observers...)

	for _, id := range topo.Nodes {
		n, err := ghs.NewNode(id, topo.Links(id), l, ghs.WithObserver(obs), ghs.WithLogger(l.log))
		if err != nil {
			return nil, err
		}
		l.nodes[id] = n
		l.boxes[id] = newMailbox()
	}
	return l, nil
}

// Node returns the node with the given id.
func (l *Local) Node(id ghs.NodeID) *ghs.Node {
	return l.nodes[id]
}

// Send implements ghs.Sender by appending to the receiver's mailbox.
func (l *Local) Send(to ghs.NodeID, msg ghs.Message) error {
	box, ok := l.boxes[to]
	if !ok {
		return fmt.Errorf("send to %d: %w", to, ErrUnknownNode)
	}
	l.counter.Add(msg.Type)
	box.put(envelope{msg: msg})
	return nil
}

// Start queues a spontaneous wakeup for each id. It may be called before or during Run.
func (l *Local) Start(ids ...ghs.NodeID) error {
	for _, id := range ids {
		box, ok := l.boxes[id]
		if !ok {
			return fmt.Errorf("start %d: %w", id, ErrUnknownNode)
		}
		box.put(envelope{start: true})
	}
	return nil
}

// Run drives the actors until every node halted, a node failed or ctx ended.
func (l *Local) Run(ctx context.Context) (*result.Result, error) {
	if l.ran {
		return nil, ErrRunning
	}
	l.ran = true
	began := time.Now()

	g, gctx := errgroup.WithContext(ctx)
	for _, id := range l.topo.Nodes {
		n, box := l.nodes[id], l.boxes[id]
		g.Go(func() error { return serve(gctx, n, box) })
	}
	g.Go(func() error {
		select {
		case <-l.halts.Done():
			if err := l.firstFailure(); err != nil {
				return err
			}
			return errFinished
		case <-gctx.Done():
			return gctx.Err()
		}
	})

	err := g.Wait()
	switch {
	case errors.Is(err, errFinished):
	case errors.Is(err, context.DeadlineExceeded), errors.Is(err, context.Canceled):
		return nil, fmt.Errorf("%d of %d nodes halted: %w: %w", l.halts.Halted(), l.topo.Size(), ErrTimeout, err)
	default:
		return nil, err
	}

	res := result.New(result.ModeLocal, l.topo, l.tree.Edges())
	res.Messages = l.counter.ByName()
	if declared := l.halts.Declared(); len(declared) > 0 {
		res.Declared = declared[0]
	}
	res.Started = began
	res.Elapsed = time.Since(began)
	l.log.Info().
		Int("nodes", res.Nodes).
		Stringer("weight", res.Weight).
		Int("messages", res.TotalMessages()).
		Dur("elapsed", res.Elapsed).
		Msg("spanning tree complete")
	return res, nil
}

func (l *Local) firstFailure() error {
	failures := l.halts.Failures()
	if len(failures) == 0 {
		return nil
	}
	ids := make([]ghs.NodeID, 0, len(failures))
	for id := range failures {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return failures[ids[0]]
}

// serve is the actor loop of one node.
func serve(ctx context.Context, n *ghs.Node, box *mailbox) error {
	for {
		env, err := box.take(ctx)
		if err != nil {
			return nil
		}
		if env.start {
			err = n.Start()
		} else {
			err = n.Deliver(env.msg)
		}
		if err != nil {
			return err
		}
	}
}
