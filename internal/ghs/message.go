package ghs

import "fmt"

// MessageType enumerates the protocol vocabulary.
type MessageType uint8

const (
	MsgConnect MessageType = iota + 1
	MsgInitiate
	MsgTest
	MsgAccept
	MsgReject
	MsgReport
	MsgChangeRoot
	MsgPrint
)

var messageTypeNames = map[MessageType]string{
	MsgConnect:    "Connect",
	MsgInitiate:   "Initiate",
	MsgTest:       "Test",
	MsgAccept:     "Accept",
	MsgReject:     "Reject",
	MsgReport:     "Report",
	MsgChangeRoot: "ChangeRoot",
	MsgPrint:      "Print",
}

// MessageTypes lists every message type in wire order.
func MessageTypes() []MessageType {
	return []MessageType{
		MsgConnect, MsgInitiate, MsgTest, MsgAccept,
		MsgReject, MsgReport, MsgChangeRoot, MsgPrint,
	}
}

// String returns the message type name.
func (t MessageType) String() string {
	if name, ok := messageTypeNames[t]; ok {
		return name
	}
	return fmt.Sprintf("MessageType(%d)", uint8(t))
}

// Message is one protocol event in flight. Only the payload fields of its type are set.
type Message struct {
	Type     MessageType `codec:"t"`
	From     NodeID      `codec:"f"`
	Level    int         `codec:"l,omitempty"`
	Fragment Weight      `codec:"n,omitempty"`
	State    NodeState   `codec:"s,omitempty"`
	Weight   Weight      `codec:"w,omitempty"`
}

// Connect asks the receiver to join fragments over the shared edge.
func Connect(from NodeID, level int) Message {
	return Message{Type: MsgConnect, From: from, Level: level}
}

// Initiate spreads a fragment's level, name and state down the tree.
func Initiate(from NodeID, level int, fragment Weight, state NodeState) Message {
	return Message{Type: MsgInitiate, From: from, Level: level, Fragment: fragment, State: state}
}

// Test probes whether the shared edge leaves the sender's fragment.
func Test(from NodeID, level int, fragment Weight) Message {
	return Message{Type: MsgTest, From: from, Level: level, Fragment: fragment}
}

// Accept answers a Test from another fragment.
func Accept(from NodeID) Message {
	return Message{Type: MsgAccept, From: from}
}

// Reject answers a Test from the same fragment.
func Reject(from NodeID) Message {
	return Message{Type: MsgReject, From: from}
}

// Report carries the best outgoing weight of a subtree towards the core.
func Report(from NodeID, w Weight) Message {
	return Message{Type: MsgReport, From: from, Weight: w}
}

// ChangeRoot moves the merge decision towards the holder of the best edge.
func ChangeRoot(from NodeID) Message {
	return Message{Type: MsgChangeRoot, From: from}
}

// Print walks the finished tree after termination.
func Print(from NodeID) Message {
	return Message{Type: MsgPrint, From: from}
}

// String formats the message with the payload that matters for its type.
func (m Message) String() string {
	switch m.Type {
	case MsgConnect:
		return fmt.Sprintf("Connect(from=%d, L=%d)", m.From, m.Level)
	case MsgInitiate:
		return fmt.Sprintf("Initiate(from=%d, L=%d, F=%s, S=%s)", m.From, m.Level, m.Fragment, m.State)
	case MsgTest:
		return fmt.Sprintf("Test(from=%d, L=%d, F=%s)", m.From, m.Level, m.Fragment)
	case MsgReport:
		return fmt.Sprintf("Report(from=%d, w=%s)", m.From, m.Weight)
	default:
		return fmt.Sprintf("%s(from=%d)", m.Type, m.From)
	}
}

// Queue is the FIFO of deferred messages.
type Queue struct {
	msgs []Message
}

// Push appends msg.
func (q *Queue) Push(msg Message) {
	q.msgs = append(q.msgs, msg)
}

// Len returns the number of parked messages.
func (q *Queue) Len() int {
	return len(q.msgs)
}

// Drain removes and returns every parked message in arrival order.
func (q *Queue) Drain() []Message {
	out := q.msgs
	q.msgs = nil
	return out
}

// Snapshot copies the parked messages without removing them.
func (q *Queue) Snapshot() []Message {
	out := make([]Message, len(q.msgs))
	copy(out, q.msgs)
	return out
}
