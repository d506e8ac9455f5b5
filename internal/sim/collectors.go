package sim

import (
	"github.com/guwenyu1996/Distributed-Algorithms/internal/ghs"
)

// Collector receives node events stamped with simulated time.
type Collector interface {
	On(node ghs.NodeID, when Time, ev ghs.Event)
}

// CollectorFunc adapts a function to the Collector interface.
type CollectorFunc func(node ghs.NodeID, when Time, ev ghs.Event)

// On calls f.
func (f CollectorFunc) On(node ghs.NodeID, when Time, ev ghs.Event) {
	f(node, when, ev)
}

// Untimed adapts a plain observer, dropping the timestamp.
func Untimed(obs ghs.Observer) Collector {
	return CollectorFunc(func(node ghs.NodeID, _ Time, ev ghs.Event) {
		obs.On(node, ev)
	})
}

// Collectors fans events out to a set of collectors.
type Collectors struct {
	collectors []Collector
}

// NewCollectors creates an empty set.
func NewCollectors() *Collectors {
	return &Collectors{}
}

// Add registers a collector.
func (c *Collectors) Add(collector Collector) {
	c.collectors = append(c.collectors, collector)
}

// On dispatches an event to every collector.
func (c *Collectors) On(node ghs.NodeID, when Time, ev ghs.Event) {
	for _, collector := range c.collectors {
		collector.On(node, when, ev)
	}
}

// DurationCollector tracks the first and last event time.
type DurationCollector struct {
	Start Time
	Stop  Time
	seen  bool
}

func (c *DurationCollector) On(_ ghs.NodeID, when Time, _ ghs.Event) {
	if !c.seen || when < c.Start {
		c.Start = when
		c.seen = true
	}
	if when > c.Stop {
		c.Stop = when
	}
}

// Duration returns the span between the first and last event.
func (c *DurationCollector) Duration() Duration {
	return Duration(c.Stop - c.Start)
}

// ByNodeCollector keeps one collector per node.
type ByNodeCollector[T Collector] struct {
	collectors map[ghs.NodeID]T
	factory    func() T
}

// NewByNodeCollector creates a collector that builds a per-node collector on first use.
func NewByNodeCollector[T Collector](factory func() T) *ByNodeCollector[T] {
	return &ByNodeCollector[T]{
		collectors: make(map[ghs.NodeID]T),
		factory:    factory,
	}
}

func (c *ByNodeCollector[T]) On(node ghs.NodeID, when Time, ev ghs.Event) {
	collector, ok := c.collectors[node]
	if !ok {
		collector = c.factory()
		c.collectors[node] = collector
	}
	collector.On(node, when, ev)
}

// Get returns the collector of node.
func (c *ByNodeCollector[T]) Get(node ghs.NodeID) T {
	return c.collectors[node]
}

// LevelCollector records the level history of a node.
type LevelCollector struct {
	Levels   []int
	Deferred int
	Replayed int
	HaltedAt Time
	Halted   bool
}

// NewLevelCollector creates an empty level collector.
func NewLevelCollector() *LevelCollector {
	return &LevelCollector{}
}

func (c *LevelCollector) On(_ ghs.NodeID, when Time, ev ghs.Event) {
	switch e := ev.(type) {
	case ghs.LevelEvent:
		if n := len(c.Levels); n == 0 || c.Levels[n-1] != e.Level {
			c.Levels = append(c.Levels, e.Level)
		}
	case ghs.DeferEvent:
		c.Deferred++
	case ghs.ReplayEvent:
		c.Replayed++
	case ghs.HaltEvent:
		c.Halted = true
		c.HaltedAt = when
	}
}

// Entry is one timestamped event.
type Entry struct {
	When  Time
	Node  ghs.NodeID
	Event ghs.Event
}

// EventLog keeps every event in arrival order.
type EventLog struct {
	Entries []Entry
}

func (l *EventLog) On(node ghs.NodeID, when Time, ev ghs.Event) {
	l.Entries = append(l.Entries, Entry{When: when, Node: node, Event: ev})
}
