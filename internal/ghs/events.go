package ghs

import "sync"

// Event is emitted by a Node for diagnostics. Observers run inside the node's handler,
// so they must not block and must not call back into the node.
type Event interface {
	isEvent()
}

// Observer consumes node events.
type Observer interface {
	On(node NodeID, ev Event)
}

// ObserverFunc adapts a function to the Observer interface.
type ObserverFunc func(node NodeID, ev Event)

// On calls f.
func (f ObserverFunc) On(node NodeID, ev Event) { f(node, ev) }

// Observers fans one event out to several observers in order.
type Observers []Observer

// On forwards ev to every observer.
func (o Observers) On(node NodeID, ev Event) {
	for _, obs := range o {
		obs.On(node, ev)
	}
}

type nopObserver struct{}

func (nopObserver) On(NodeID, Event) {}

type (
	// WakeupEvent fires once when the node leaves Sleeping.
	WakeupEvent struct {
		Spontaneous bool
	}

	// LevelEvent fires when the node joins a new fragment identity.
	LevelEvent struct {
		Level    int
		Fragment Weight
		State    NodeState
		Parent   NodeID
	}

	// DeferEvent fires the first time a message is parked.
	DeferEvent struct {
		Msg Message
	}

	// ReplayEvent fires when a parked message is finally handled.
	ReplayEvent struct {
		Msg Message
	}

	// ReportEvent fires when the node sends its Report to in_branch.
	ReportEvent struct {
		To     NodeID
		Weight Weight
	}

	// TerminatedEvent fires once per run, at the core endpoint that declares termination.
	TerminatedEvent struct {
		Level    int
		Fragment Weight
	}

	// HaltEvent fires when the node halts.
	HaltEvent struct {
		Branches int
	}

	// TreeEdgeEvent fires once per Branch edge at halt.
	TreeEdgeEvent struct {
		Neighbor NodeID
		Weight   Weight
	}

	// FailedEvent fires when the node hits a protocol violation or a send failure.
	FailedEvent struct {
		Err error
	}
)

func (WakeupEvent) isEvent()     {}
func (LevelEvent) isEvent()      {}
func (DeferEvent) isEvent()      {}
func (ReplayEvent) isEvent()     {}
func (ReportEvent) isEvent()     {}
func (TerminatedEvent) isEvent() {}
func (HaltEvent) isEvent()       {}
func (TreeEdgeEvent) isEvent()   {}
func (FailedEvent) isEvent()     {}

// TreeCollector gathers TreeEdgeEvents into a deduplicated edge set.
// Both endpoints of a tree edge report it, the collector keeps one copy.
type TreeCollector struct {
	mu    sync.Mutex
	edges map[Span]struct{}
	order []Span
}

// NewTreeCollector returns an empty collector.
func NewTreeCollector() *TreeCollector {
	return &TreeCollector{edges: make(map[Span]struct{})}
}

// On implements Observer.
func (c *TreeCollector) On(node NodeID, ev Event) {
	te, ok := ev.(TreeEdgeEvent)
	if !ok {
		return
	}
	s := NewSpan(node, te.Neighbor, te.Weight)
	c.mu.Lock()
	defer c.mu.Unlock()
	if _, seen := c.edges[s]; seen {
		return
	}
	c.edges[s] = struct{}{}
	c.order = append(c.order, s)
}

// Edges returns the collected tree edges in first-seen order.
func (c *TreeCollector) Edges() []Span {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]Span, len(c.order))
	copy(out, c.order)
	return out
}

// HaltCollector records halts, termination declarations and failures.
type HaltCollector struct {
	mu       sync.Mutex
	halted   map[NodeID]bool
	declared []NodeID
	failures map[NodeID]error
	done     chan struct{}
	want     int
	closed   bool
}

// NewHaltCollector returns a collector whose Done channel closes after want nodes halted
// or any node failed.
func NewHaltCollector(want int) *HaltCollector {
	c := &HaltCollector{
		halted:   make(map[NodeID]bool),
		failures: make(map[NodeID]error),
		done:     make(chan struct{}),
		want:     want,
	}
	if want <= 0 {
		c.closeLocked()
	}
	return c
}

// On implements Observer.
func (c *HaltCollector) On(node NodeID, ev Event) {
	c.mu.Lock()
	defer c.mu.Unlock()
	switch e := ev.(type) {
	case HaltEvent:
		c.halted[node] = true
		if len(c.halted) >= c.want {
			c.closeLocked()
		}
	case TerminatedEvent:
		c.declared = append(c.declared, node)
	case FailedEvent:
		if _, ok := c.failures[node]; !ok {
			c.failures[node] = e.Err
		}
		c.closeLocked()
	}
}

func (c *HaltCollector) closeLocked() {
	if !c.closed {
		c.closed = true
		close(c.done)
	}
}

// Done closes when the run is over.
func (c *HaltCollector) Done() <-chan struct{} {
	return c.done
}

// Halted returns the number of halted nodes.
func (c *HaltCollector) Halted() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.halted)
}

// Declared returns every node that declared termination, in order.
func (c *HaltCollector) Declared() []NodeID {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]NodeID, len(c.declared))
	copy(out, c.declared)
	return out
}

// Failures returns the failure of every failed node.
func (c *HaltCollector) Failures() map[NodeID]error {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make(map[NodeID]error, len(c.failures))
	for k, v := range c.failures {
		out[k] = v
	}
	return out
}
