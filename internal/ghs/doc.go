// Package ghs implements the per-node state machine of the Gallager–Humblet–Spira
// distributed minimum spanning tree algorithm.
//
// A Node owns the classification of its incident edges and talks to its neighbours
// only through a Sender. Every inbound protocol message enters through Deliver, which
// runs the handler to completion under the node's own lock; handlers never wait for a
// reply, they only send. Messages that arrive before the node has caught up with the
// sender (a Test from a higher level, a Connect over an edge that is still Basic, or
// the core-edge Report while the node is still searching) are parked in a FIFO queue
// and re-examined after every handler.
//
// Termination is detected on the core edge of the last fragment once both ends report
// an infinite best weight. The core endpoint with the smaller id declares it and starts
// a Print traversal over the Branch edges; every node reached by it halts and emits
// one TreeEdgeEvent per Branch edge.
package ghs
