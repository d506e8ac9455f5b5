// Package peer carries GHS messages between processes over gRPC. Each daemon hosts
// one node behind a Server and reaches its neighbours through a Router that keeps
// one ordered outbox per peer.
package peer

import (
	"context"

	"google.golang.org/grpc"

	"github.com/guwenyu1996/Distributed-Algorithms/internal/ghs"
)

const serviceName = "ghs.Peer"

const (
	methodDeliver = "/" + serviceName + "/Deliver"
	methodStart   = "/" + serviceName + "/Start"
	methodStatus  = "/" + serviceName + "/Status"
)

// DeliverRequest carries one protocol message to node To. Seq numbers the messages of
// one directed link within the sender's Session, starting at 1. A zero Seq is never
// deduplicated.
type DeliverRequest struct {
	To      ghs.NodeID  `codec:"to"`
	Msg     ghs.Message `codec:"msg"`
	Session uint64      `codec:"session,omitempty"`
	Seq     uint64      `codec:"seq,omitempty"`
}

// DeliverResponse acknowledges that the handler ran.
type DeliverResponse struct{}

// StartRequest wakes node Node up.
type StartRequest struct {
	Node ghs.NodeID `codec:"node"`
}

// StartResponse tells whether the node was still sleeping.
type StartResponse struct {
	Woken bool `codec:"woken"`
}

// StatusRequest asks for the node state.
type StatusRequest struct{}

// StatusResponse is a snapshot of the hosted node.
type StatusResponse struct {
	Node     ghs.NodeID `codec:"node"`
	Level    int        `codec:"level"`
	Fragment ghs.Weight `codec:"fragment"`
	State    string     `codec:"state"`
	Halted   bool       `codec:"halted"`
	Declared bool       `codec:"declared"`
	Deferred int        `codec:"deferred"`
	Tree     []ghs.Span `codec:"tree"`
	Err      string     `codec:"err,omitempty"`
}

// PeerServer is the server side of the peer service.
type PeerServer interface {
	Deliver(context.Context, *DeliverRequest) (*DeliverResponse, error)
	Start(context.Context, *StartRequest) (*StartResponse, error)
	Status(context.Context, *StatusRequest) (*StatusResponse, error)
}

// RegisterPeerServer registers srv on s.
func RegisterPeerServer(s grpc.ServiceRegistrar, srv PeerServer) {
	s.RegisterService(&peerServiceDesc, srv)
}

var peerServiceDesc = grpc.ServiceDesc{
	ServiceName: serviceName,
	HandlerType: (*PeerServer)(nil),
	Methods: []grpc.MethodDesc{
		{MethodName: "Deliver", Handler: deliverHandler},
		{MethodName: "Start", Handler: startHandler},
		{MethodName: "Status", Handler: statusHandler},
	},
	Streams:  []grpc.StreamDesc{},
	Metadata: "ghs/peer",
}

func deliverHandler(srv interface{}, ctx context.Context, dec func(interface{}) error, interceptor grpc.UnaryServerInterceptor) (interface{}, error) {
	in := new(DeliverRequest)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(PeerServer).Deliver(ctx, in)
	}
	info := &grpc.UnaryServerInfo{Server: srv, FullMethod: methodDeliver}
	handler := func(ctx context.Context, req interface{}) (interface{}, error) {
		return srv.(PeerServer).Deliver(ctx, req.(*DeliverRequest))
	}
	return interceptor(ctx, in, info, handler)
}

func startHandler(srv interface{}, ctx context.Context, dec func(interface{}) error, interceptor grpc.UnaryServerInterceptor) (interface{}, error) {
	in := new(StartRequest)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(PeerServer).Start(ctx, in)
	}
	info := &grpc.UnaryServerInfo{Server: srv, FullMethod: methodStart}
	handler := func(ctx context.Context, req interface{}) (interface{}, error) {
		return srv.(PeerServer).Start(ctx, req.(*StartRequest))
	}
	return interceptor(ctx, in, info, handler)
}

func statusHandler(srv interface{}, ctx context.Context, dec func(interface{}) error, interceptor grpc.UnaryServerInterceptor) (interface{}, error) {
	in := new(StatusRequest)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(PeerServer).Status(ctx, in)
	}
	info := &grpc.UnaryServerInfo{Server: srv, FullMethod: methodStatus}
	handler := func(ctx context.Context, req interface{}) (interface{}, error) {
		return srv.(PeerServer).Status(ctx, req.(*StatusRequest))
	}
	return interceptor(ctx, in, info, handler)
}
