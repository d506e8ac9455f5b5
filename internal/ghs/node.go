package ghs

import (
	"errors"
	"fmt"
	"sync"

	"github.com/rs/zerolog"
)

//go:generate mockgen -destination=ghsmock/sender.go -package=ghsmock . Sender

// Sender delivers a message to a neighbour. Implementations must not block on the
// receiver and must not call back into the sending node before returning. Messages
// sent to the same neighbour must arrive in send order.
type Sender interface {
	Send(to NodeID, msg Message) error
}

// SenderFunc adapts a function to the Sender interface.
type SenderFunc func(to NodeID, msg Message) error

// Send calls f.
func (f SenderFunc) Send(to NodeID, msg Message) error { return f(to, msg) }

// Option configures a Node.
type Option func(*Node)

// WithObserver attaches an event observer.
func WithObserver(obs Observer) Option {
	return func(n *Node) {
		if obs != nil {
			n.obs = obs
		}
	}
}

// WithLogger sets the node logger. The node adds its own id field.
func WithLogger(log zerolog.Logger) Option {
	return func(n *Node) {
		n.log = log
	}
}

// Node is one process of the GHS algorithm.
type Node struct {
	mu sync.Mutex

	id    NodeID
	edges *Registry
	out   Sender
	obs   Observer
	log   zerolog.Logger

	level      int
	fragment   Weight
	state      NodeState
	inBranch   NodeID
	testEdge   NodeID
	bestEdge   NodeID
	bestWeight Weight
	findCount  int

	halted   bool
	declared bool
	failed   error
	deferred Queue
}

// NewNode seeds a Sleeping node with its incident links.
func NewNode(id NodeID, links []Link, out Sender, opts ...Option) (*Node, error) {
	if id < 0 {
		return nil, fmt.Errorf("invalid node id %d", id)
	}
	if out == nil {
		return nil, errors.New("nil sender")
	}
	edges, err := NewRegistry(id, links)
	if err != nil {
		return nil, err
	}
	n := &Node{
		id:         id,
		edges:      edges,
		out:        out,
		obs:        nopObserver{},
		log:        zerolog.Nop(),
		fragment:   Weight(id),
		state:      Sleeping,
		inBranch:   None,
		testEdge:   None,
		bestEdge:   None,
		bestWeight: Infinity,
	}
	for _, opt := range opts {
		opt(n)
	}
	n.log = n.log.With().Int("node", int(id)).Logger()
	return n, nil
}

// ID returns the node id.
func (n *Node) ID() NodeID {
	return n.id
}

// Start wakes the node up spontaneously. Starting an awake node is a no-op.
func (n *Node) Start() error {
	n.mu.Lock()
	defer n.mu.Unlock()

	if n.failed != nil {
		return n.failed
	}
	if n.halted || n.state != Sleeping {
		return nil
	}
	if err := n.wakeup(true); err != nil {
		return n.fail(nil, err)
	}
	return n.replay()
}

// Deliver hands one inbound message to the state machine. The handler runs to completion
// before Deliver returns; a message that cannot be handled yet is parked and retried
// after later messages.
func (n *Node) Deliver(msg Message) error {
	n.mu.Lock()
	defer n.mu.Unlock()

	if n.failed != nil {
		return n.failed
	}
	if _, ok := n.edges.Get(msg.From); !ok {
		return n.fail(&msg, ErrUnknownPeer)
	}
	if n.halted {
		return n.fail(&msg, ErrHalted)
	}

	parked, err := n.dispatch(msg)
	if err != nil {
		return n.fail(&msg, err)
	}
	if parked {
		n.deferred.Push(msg)
		n.trace("deferred " + msg.String())
		n.emit(DeferEvent{Msg: msg})
		return nil
	}
	return n.replay()
}

// replay retries parked messages in FIFO order until a full pass handles none of them.
func (n *Node) replay() error {
	for n.deferred.Len() > 0 && !n.halted {
		progress := false
		for _, msg := range n.deferred.Drain() {
			if n.halted {
				n.deferred.Push(msg)
				continue
			}
			parked, err := n.dispatch(msg)
			if err != nil {
				return n.fail(&msg, err)
			}
			if parked {
				n.deferred.Push(msg)
				continue
			}
			progress = true
			n.trace("replayed " + msg.String())
			n.emit(ReplayEvent{Msg: msg})
		}
		if !progress {
			break
		}
	}
	return nil
}

func (n *Node) fail(msg *Message, err error) error {
	var pe *ProtocolError
	if !errors.As(err, &pe) {
		pe = &ProtocolError{Node: n.id, Msg: msg, Err: err}
	}
	n.failed = pe
	n.log.Error().Err(pe).Msg("node failed")
	n.emit(FailedEvent{Err: pe})
	return pe
}

func (n *Node) send(to NodeID, msg Message) error {
	if err := n.out.Send(to, msg); err != nil {
		return &SendError{From: n.id, To: to, Msg: msg, Err: err}
	}
	return nil
}

func (n *Node) emit(ev Event) {
	n.obs.On(n.id, ev)
}

func (n *Node) trace(what string) {
	if n.log.GetLevel() > zerolog.DebugLevel {
		return
	}
	n.log.Debug().
		Int("ln", n.level).
		Stringer("fn", n.fragment).
		Stringer("sn", n.state).
		Int("find_count", n.findCount).
		Int("test_edge", int(n.testEdge)).
		Int("in_branch", int(n.inBranch)).
		Msg(what)
}

// Err returns the failure that stopped the node, if any.
func (n *Node) Err() error {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.failed
}

// Halted reports whether the node has halted.
func (n *Node) Halted() bool {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.halted
}

// Snapshot is a point-in-time copy of a node's variables.
type Snapshot struct {
	ID         NodeID
	Level      int
	Fragment   Weight
	State      NodeState
	InBranch   NodeID
	TestEdge   NodeID
	BestEdge   NodeID
	BestWeight Weight
	FindCount  int
	Halted     bool
	Declared   bool
	Deferred   []Message
	Edges      []Edge
}

// Snapshot copies the node state.
func (n *Node) Snapshot() Snapshot {
	n.mu.Lock()
	defer n.mu.Unlock()
	return Snapshot{
		ID:         n.id,
		Level:      n.level,
		Fragment:   n.fragment,
		State:      n.state,
		InBranch:   n.inBranch,
		TestEdge:   n.testEdge,
		BestEdge:   n.bestEdge,
		BestWeight: n.bestWeight,
		FindCount:  n.findCount,
		Halted:     n.halted,
		Declared:   n.declared,
		Deferred:   n.deferred.Snapshot(),
		Edges:      n.edges.Edges(),
	}
}

// Tree returns the Branch edges of the node as spans.
func (s Snapshot) Tree() []Span {
	var out []Span
	for _, e := range s.Edges {
		if e.Class == Branch {
			out = append(out, NewSpan(s.ID, e.Peer, e.Weight))
		}
	}
	return out
}
