package sim

import (
	"math/rand"
	"sync"

	"github.com/guwenyu1996/Distributed-Algorithms/internal/ghs"
)

// link is one direction of a connection.
type link struct {
	delay Duration
	last  Time // arrival time of the latest message, deliveries never overtake it
}

// Network delivers messages between connected nodes after the link delay plus a
// random jitter, keeping every directed link FIFO.
type Network struct {
	mu        sync.Mutex
	scheduler *Scheduler
	rng       *rand.Rand
	jitter    Duration
	links     map[ghs.NodeID]map[ghs.NodeID]*link
}

// NewNetwork creates an empty network. rng drives the jitter.
func NewNetwork(scheduler *Scheduler, rng *rand.Rand, jitter Duration) *Network {
	return &Network{
		scheduler: scheduler,
		rng:       rng,
		jitter:    jitter,
		links:     make(map[ghs.NodeID]map[ghs.NodeID]*link),
	}
}

// Connect links a and b in both directions with the given base delay.
// It reports false for a self loop or an existing link.
func (n *Network) Connect(a, b ghs.NodeID, delay Duration) bool {
	if a == b {
		return false
	}
	n.mu.Lock()
	defer n.mu.Unlock()

	if n.links[a] != nil && n.links[a][b] != nil {
		return false
	}
	for _, dir := range [2][2]ghs.NodeID{{a, b}, {b, a}} {
		if n.links[dir[0]] == nil {
			n.links[dir[0]] = make(map[ghs.NodeID]*link)
		}
		n.links[dir[0]][dir[1]] = &link{delay: delay}
	}
	return true
}

// IsConnected reports whether from can send to to.
func (n *Network) IsConnected(from, to ghs.NodeID) bool {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.links[from] != nil && n.links[from][to] != nil
}

// Delay returns the base delay from one node to another.
func (n *Network) Delay(from, to ghs.NodeID) (Duration, bool) {
	n.mu.Lock()
	defer n.mu.Unlock()
	if n.links[from] == nil || n.links[from][to] == nil {
		return 0, false
	}
	return n.links[from][to].delay, true
}

// Send schedules handler as the arrival of a message from from at to.
// It reports false if the nodes are not connected.
func (n *Network) Send(from, to ghs.NodeID, handler func()) bool {
	n.mu.Lock()
	l := n.links[from][to]
	if l == nil {
		n.mu.Unlock()
		return false
	}
	d := l.delay
	if n.jitter > 0 {
		d += Duration(n.rng.Int63n(int64(n.jitter) + 1))
	}
	at := n.scheduler.Now() + Time(d)
	if at < l.last {
		at = l.last
	}
	l.last = at
	n.mu.Unlock()

	n.scheduler.At(at, handler)
	return true
}
