package sim

import (
	"errors"
	"fmt"
	"math/rand"
	"time"

	"github.com/rs/zerolog"

	"github.com/guwenyu1996/Distributed-Algorithms/internal/ghs"
	"github.com/guwenyu1996/Distributed-Algorithms/internal/result"
	"github.com/guwenyu1996/Distributed-Algorithms/internal/topology"
)

var (
	ErrNoLink      = errors.New("nodes are not connected")
	ErrUnknownNode = errors.New("unknown node")
	ErrIncomplete  = errors.New("event queue drained before every node halted")
	ErrEventLimit  = errors.New("event limit reached")
)

// Config tunes the simulated network.
type Config struct {
	// Base link delays are drawn uniformly from [MinDelay, MaxDelay] per edge.
	MinDelay Duration
	MaxDelay Duration
	// Jitter is added per message on top of the link delay.
	Jitter Duration
	Seed   int64
	// MaxEvents bounds the run, zero means unbounded.
	MaxEvents int
}

// DefaultConfig returns a network with millisecond scale delays.
func DefaultConfig() Config {
	return Config{
		MinDelay:  time.Millisecond,
		MaxDelay:  10 * time.Millisecond,
		Jitter:    5 * time.Millisecond,
		MaxEvents: 10_000_000,
	}
}

// Sim wires one GHS node per topology vertex onto a simulated network.
type Sim struct {
	Scheduler  *Scheduler
	Net        *Network
	Collectors *Collectors
	Rng        *rand.Rand

	cfg     Config
	topo    *topology.Topology
	nodes   map[ghs.NodeID]*ghs.Node
	tree    *ghs.TreeCollector
	halts   *ghs.HaltCollector
	counter *result.Counter
	log     zerolog.Logger
	err     error
}

// New validates topo and builds the simulation. No node is started.
func New(topo *topology.Topology, cfg Config, log zerolog.Logger) (*Sim, error) {
	if err := topo.Validate(); err != nil {
		return nil, err
	}
	if cfg.MinDelay < 0 || cfg.MaxDelay < cfg.MinDelay || cfg.Jitter < 0 {
		return nil, fmt.Errorf("invalid delays min=%s max=%s jitter=%s", cfg.MinDelay, cfg.MaxDelay, cfg.Jitter)
	}

	scheduler := NewScheduler()
	rng := rand.New(rand.NewSource(cfg.Seed))
	s := &Sim{
		Scheduler:  scheduler,
		Net:        NewNetwork(scheduler, rng, cfg.Jitter),
		Collectors: NewCollectors(),
		Rng:        rng,
		cfg:        cfg,
		topo:       topo,
		nodes:      make(map[ghs.NodeID]*ghs.Node, topo.Size()),
		tree:       ghs.NewTreeCollector(),
		halts:      ghs.NewHaltCollector(topo.Size()),
		counter:    result.NewCounter(),
		log:        log.With().Str("component", "sim").Logger(),
	}
	s.Collectors.Add(Untimed(s.tree))
	s.Collectors.Add(Untimed(s.halts))

	for _, e := range topo.Edges {
		d := cfg.MinDelay
		if spread := cfg.MaxDelay - cfg.MinDelay; spread > 0 {
			d += Duration(rng.Int63n(int64(spread) + 1))
		}
		s.Net.Connect(e.A, e.B, d)
	}

	observer := ghs.ObserverFunc(func(node ghs.NodeID, ev ghs.Event) {
		s.Collectors.On(node, s.Scheduler.Now(), ev)
	})
	for _, id := range topo.Nodes {
		n, err := ghs.NewNode(id, topo.Links(id), s, ghs.WithObserver(observer), ghs.WithLogger(log))
		if err != nil {
			return nil, err
		}
		s.nodes[id] = n
	}
	return s, nil
}

// AddCollector registers a collector for node events.
func (s *Sim) AddCollector(c Collector) {
	s.Collectors.Add(c)
}

// Node returns the node with the given id.
func (s *Sim) Node(id ghs.NodeID) *ghs.Node {
	return s.nodes[id]
}

// Now returns the current simulated time.
func (s *Sim) Now() Time {
	return s.Scheduler.Now()
}

// Send implements ghs.Sender over the simulated network.
func (s *Sim) Send(to ghs.NodeID, msg ghs.Message) error {
	ok := s.Net.Send(msg.From, to, func() {
		s.deliver(to, msg)
	})
	if !ok {
		return fmt.Errorf("%d -> %d: %w", msg.From, to, ErrNoLink)
	}
	s.counter.Add(msg.Type)
	return nil
}

func (s *Sim) deliver(to ghs.NodeID, msg ghs.Message) {
	if s.err != nil {
		return
	}
	if err := s.nodes[to].Deliver(msg); err != nil {
		s.err = err
	}
}

// StartAt schedules the spontaneous wakeup of id after d.
func (s *Sim) StartAt(id ghs.NodeID, d Duration) error {
	n, ok := s.nodes[id]
	if !ok {
		return fmt.Errorf("start %d: %w", id, ErrUnknownNode)
	}
	s.Scheduler.In(d, func() {
		if s.err != nil {
			return
		}
		if err := n.Start(); err != nil {
			s.err = err
		}
	})
	return nil
}

// Start schedules the wakeup of every id at the current time.
func (s *Sim) Start(ids ...ghs.NodeID) error {
	for _, id := range ids {
		if err := s.StartAt(id, 0); err != nil {
			return err
		}
	}
	return nil
}

// Run processes events until the queue drains, a node fails or the event limit is hit,
// then checks that every node halted.
func (s *Sim) Run() (*result.Result, error) {
	began := time.Now()
	processed := s.Scheduler.StepWhile(func() bool {
		if s.err != nil {
			return false
		}
		return s.cfg.MaxEvents <= 0 || s.Scheduler.Processed() < s.cfg.MaxEvents
	})
	s.log.Debug().Int("events", processed).Stringer("sim_time", s.Now()).Msg("simulation stopped")

	if s.err != nil {
		return nil, s.err
	}
	if !s.Scheduler.Empty() {
		return nil, fmt.Errorf("%d events pending: %w", s.Scheduler.Pending(), ErrEventLimit)
	}
	if halted := s.halts.Halted(); halted < s.topo.Size() {
		return nil, fmt.Errorf("%d of %d nodes halted: %w", halted, s.topo.Size(), ErrIncomplete)
	}

	res := result.New(result.ModeSim, s.topo, s.tree.Edges())
	res.Messages = s.counter.ByName()
	if declared := s.halts.Declared(); len(declared) > 0 {
		res.Declared = declared[0]
	}
	res.Started = began
	res.Elapsed = time.Since(began)
	res.SimTime = Duration(s.Now())
	res.Seed = s.cfg.Seed
	return res, nil
}
