// Package result holds the outcome of one spanning tree construction run and the
// message accounting shared by the transports.
package result

import (
	"errors"
	"fmt"
	"io"
	"sort"
	"sync"
	"time"

	"github.com/guwenyu1996/Distributed-Algorithms/internal/ghs"
	"github.com/guwenyu1996/Distributed-Algorithms/internal/topology"
)

// Run modes.
const (
	ModeSim   = "sim"
	ModeLocal = "local"
	ModeGRPC  = "grpc"
)

var (
	ErrNotSpanning = errors.New("tree does not span the graph")
	ErrNotMinimal  = errors.New("tree weight differs from the minimum spanning tree")
)

// Result describes a finished run.
type Result struct {
	ID       uint64            `codec:"id"`
	Mode     string            `codec:"mode"`
	Nodes    int               `codec:"nodes"`
	Edges    int               `codec:"edges"`
	Tree     []ghs.Span        `codec:"tree"`
	Weight   ghs.Weight        `codec:"weight"`
	Declared ghs.NodeID        `codec:"declared"`
	Messages map[string]int    `codec:"messages"`
	Started  time.Time         `codec:"started"`
	Elapsed  time.Duration     `codec:"elapsed"`
	SimTime  time.Duration     `codec:"sim_time,omitempty"`
	Seed     int64             `codec:"seed,omitempty"`
	Failures map[string]string `codec:"failures,omitempty"`
}

// New builds a result from the collected tree edges.
func New(mode string, topo *topology.Topology, tree []ghs.Span) *Result {
	spans := append([]ghs.Span(nil), tree...)
	topology.SortSpans(spans)
	return &Result{
		Mode:     mode,
		Nodes:    topo.Size(),
		Edges:    len(topo.Edges),
		Tree:     spans,
		Weight:   topology.TotalWeight(spans),
		Declared: ghs.None,
		Messages: make(map[string]int),
	}
}

// TotalMessages sums the per-type message counts.
func (r *Result) TotalMessages() int {
	total := 0
	for _, n := range r.Messages {
		total += n
	}
	return total
}

// Verify checks the tree against the reference minimum spanning tree of topo.
func (r *Result) Verify(topo *topology.Topology) error {
	if !topo.IsSpanningTree(r.Tree) {
		return fmt.Errorf("%d edges over %d nodes: %w", len(r.Tree), topo.Size(), ErrNotSpanning)
	}
	_, want, err := topology.Kruskal(topo)
	if err != nil {
		return err
	}
	if r.Weight != want {
		return fmt.Errorf("got %s, want %s: %w", r.Weight, want, ErrNotMinimal)
	}
	return nil
}

// Print writes a human readable summary.
func (r *Result) Print(w io.Writer) error {
	if _, err := fmt.Fprintf(w, "run %d (%s): %d nodes, %d edges, tree weight %s, declared by %d\n",
		r.ID, r.Mode, r.Nodes, r.Edges, r.Weight, r.Declared); err != nil {
		return err
	}
	for _, s := range r.Tree {
		if _, err := fmt.Fprintf(w, "  %d - %d  weight %s\n", s.A, s.B, s.Weight); err != nil {
			return err
		}
	}
	names := make([]string, 0, len(r.Messages))
	for name := range r.Messages {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		if _, err := fmt.Fprintf(w, "  %-10s %d\n", name, r.Messages[name]); err != nil {
			return err
		}
	}
	_, err := fmt.Fprintf(w, "  %-10s %d\n", "total", r.TotalMessages())
	return err
}

// Counter counts sent messages per type. It is safe for concurrent use.
type Counter struct {
	mu     sync.Mutex
	counts map[ghs.MessageType]int
}

// NewCounter returns an empty counter.
func NewCounter() *Counter {
	return &Counter{counts: make(map[ghs.MessageType]int)}
}

// Add counts one message of type t.
func (c *Counter) Add(t ghs.MessageType) {
	c.mu.Lock()
	c.counts[t]++
	c.mu.Unlock()
}

// Get returns the count for type t.
func (c *Counter) Get(t ghs.MessageType) int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.counts[t]
}

// Total returns the number of counted messages.
func (c *Counter) Total() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	total := 0
	for _, n := range c.counts {
		total += n
	}
	return total
}

// ByName returns the counts keyed by message type name.
func (c *Counter) ByName() map[string]int {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make(map[string]int, len(c.counts))
	for t, n := range c.counts {
		out[t.String()] = n
	}
	return out
}
