package peer

import (
	"context"

	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"

	"github.com/guwenyu1996/Distributed-Algorithms/internal/ghs"
)

// Client calls the peer service of one remote node.
type Client struct {
	cc grpc.ClientConnInterface
}

// NewClient wraps an existing connection.
func NewClient(cc grpc.ClientConnInterface) *Client {
	return &Client{cc: cc}
}

// Dial opens a lazy connection to addr. Plaintext is used unless opts override the
// transport credentials.
func Dial(addr string, opts ...grpc.DialOption) (*grpc.ClientConn, error) {
	opts = append([]grpc.DialOption{grpc.WithTransportCredentials(insecure.NewCredentials())}, opts...)
	return grpc.NewClient(addr, opts...)
}

func (c *Client) invoke(ctx context.Context, method string, req, resp interface{}) error {
	return c.cc.Invoke(ctx, method, req, resp,
		grpc.CallContentSubtype(CodecName),
		grpc.WaitForReady(true),
	)
}

// Deliver hands msg to node to without a sequence number.
func (c *Client) Deliver(ctx context.Context, to ghs.NodeID, msg ghs.Message) error {
	return c.Send(ctx, &DeliverRequest{To: to, Msg: msg})
}

// Send issues one Deliver call. Repeating a sequenced request is safe.
func (c *Client) Send(ctx context.Context, req *DeliverRequest) error {
	return c.invoke(ctx, methodDeliver, req, &DeliverResponse{})
}

// Start wakes node id up and reports whether it was sleeping.
func (c *Client) Start(ctx context.Context, id ghs.NodeID) (bool, error) {
	resp := &StartResponse{}
	if err := c.invoke(ctx, methodStart, &StartRequest{Node: id}, resp); err != nil {
		return false, err
	}
	return resp.Woken, nil
}

// Status fetches a snapshot of the remote node.
func (c *Client) Status(ctx context.Context) (*StatusResponse, error) {
	resp := &StatusResponse{}
	if err := c.invoke(ctx, methodStatus, &StatusRequest{}, resp); err != nil {
		return nil, err
	}
	return resp, nil
}

// StartRemote dials addr, wakes node id and closes the connection.
func StartRemote(ctx context.Context, addr string, id ghs.NodeID, opts ...grpc.DialOption) (bool, error) {
	conn, err := Dial(addr, opts...)
	if err != nil {
		return false, err
	}
	defer conn.Close()
	return NewClient(conn).Start(ctx, id)
}

// StatusRemote dials addr and fetches the node snapshot.
func StatusRemote(ctx context.Context, addr string, opts ...grpc.DialOption) (*StatusResponse, error) {
	conn, err := Dial(addr, opts...)
	if err != nil {
		return nil, err
	}
	defer conn.Close()
	return NewClient(conn).Status(ctx)
}
