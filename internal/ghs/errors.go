package ghs

import (
	"errors"
	"fmt"
)

// Sentinel errors for protocol violations. They indicate a topology or bookkeeping bug,
// never a transient fault.
var (
	ErrUnknownPeer      = errors.New("message from a node that is not a neighbour")
	ErrUnknownMessage   = errors.New("unknown message type")
	ErrUnexpectedReport = errors.New("report from a node that is neither child nor parent")
	ErrNegativeCount    = errors.New("find_count dropped below zero")
	ErrDoubleReport     = errors.New("report while not searching")
	ErrNoBestEdge       = errors.New("change root without a best edge")
	ErrHalted           = errors.New("message after halt")
	ErrLevelRegression  = errors.New("initiate below the current level")

	// Registry construction errors
	ErrSelfLoop      = errors.New("self loop")
	ErrDuplicateLink = errors.New("duplicate link")
)

// ProtocolError is fatal to the node that raised it. The node rejects every later input.
type ProtocolError struct {
	Node NodeID
	Msg  *Message
	Err  error
}

// Error returns the error message.
func (e *ProtocolError) Error() string {
	if e.Msg != nil {
		return fmt.Sprintf("node %d: handling %s: %v", e.Node, e.Msg, e.Err)
	}
	return fmt.Sprintf("node %d: %v", e.Node, e.Err)
}

// Unwrap returns the underlying error.
func (e *ProtocolError) Unwrap() error {
	return e.Err
}

// SendError wraps a transport failure reported by a Sender.
type SendError struct {
	From NodeID
	To   NodeID
	Msg  Message
	Err  error
}

// Error returns the error message.
func (e *SendError) Error() string {
	return fmt.Sprintf("node %d: send %s to %d: %v", e.From, e.Msg, e.To, e.Err)
}

// Unwrap returns the underlying error.
func (e *SendError) Unwrap() error {
	return e.Err
}
