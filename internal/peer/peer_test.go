package peer

import (
	"context"
	"fmt"
	"net"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/golang/mock/gomock"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
	"google.golang.org/grpc/test/bufconn"

	"github.com/guwenyu1996/Distributed-Algorithms/internal/ghs"
	"github.com/guwenyu1996/Distributed-Algorithms/internal/ghs/ghsmock"
	"github.com/guwenyu1996/Distributed-Algorithms/internal/result"
	"github.com/guwenyu1996/Distributed-Algorithms/internal/topology"
)

const bufSize = 1 << 20

// fabric is a set of in-memory listeners addressed as passthrough:///node-N.
type fabric struct {
	mu        sync.Mutex
	listeners map[string]*bufconn.Listener
}

func newFabric() *fabric {
	return &fabric{listeners: make(map[string]*bufconn.Listener)}
}

func nodeAddr(id ghs.NodeID) string {
	return fmt.Sprintf("passthrough:///node-%d", id)
}

func (f *fabric) listen(id ghs.NodeID) *bufconn.Listener {
	f.mu.Lock()
	defer f.mu.Unlock()
	lis := bufconn.Listen(bufSize)
	f.listeners[strings.TrimPrefix(nodeAddr(id), "passthrough:///")] = lis
	return lis
}

func (f *fabric) dialer() grpc.DialOption {
	return grpc.WithContextDialer(func(ctx context.Context, addr string) (net.Conn, error) {
		f.mu.Lock()
		lis, ok := f.listeners[addr]
		f.mu.Unlock()
		if !ok {
			return nil, fmt.Errorf("no listener for %s", addr)
		}
		return lis.DialContext(ctx)
	})
}

func serveNode(t *testing.T, f *fabric, n Node) *Server {
	t.Helper()
	srv, err := NewServer(nil, n, zerolog.Nop())
	require.NoError(t, err)
	lis := f.listen(n.ID())
	go srv.Serve(lis)
	t.Cleanup(srv.StopNow)
	return srv
}

func fastRouter() RouterConfig {
	return RouterConfig{
		CallTimeout: 2 * time.Second,
		MaxAttempts: 3,
		Backoff:     time.Millisecond,
		MaxBackoff:  5 * time.Millisecond,
	}
}

func TestCodecRegistered(t *testing.T) {
	c := msgpackCodec{}
	assert.Equal(t, CodecName, c.Name())

	in := &DeliverRequest{To: 3, Msg: ghs.Initiate(1, 2, ghs.Weight(7), ghs.Find)}
	data, err := c.Marshal(in)
	require.NoError(t, err)

	out := &DeliverRequest{}
	require.NoError(t, c.Unmarshal(data, out))
	assert.Equal(t, in, out)
}

func TestServerConfigValidate(t *testing.T) {
	require.NoError(t, DefaultServerConfig().Validate())

	bad := []*ServerConfig{
		{Address: "", MaxRecvMsgSize: 1, MaxSendMsgSize: 1},
		{Address: "nohost", MaxRecvMsgSize: 1, MaxSendMsgSize: 1},
		{Address: ":7400", MaxRecvMsgSize: 1, MaxSendMsgSize: 1},
		{Address: "127.0.0.1:7400", MaxRecvMsgSize: 0, MaxSendMsgSize: 1},
		{Address: "127.0.0.1:7400", MaxRecvMsgSize: 1, MaxSendMsgSize: 0},
	}
	for _, cfg := range bad {
		assert.Error(t, cfg.Validate(), "%+v", cfg)
	}
}

func TestRouterConfigValidate(t *testing.T) {
	require.NoError(t, DefaultRouterConfig().Validate())

	cfg := DefaultRouterConfig()
	cfg.CallTimeout = 0
	assert.Error(t, cfg.Validate())

	cfg = DefaultRouterConfig()
	cfg.MaxAttempts = 0
	assert.Error(t, cfg.Validate())

	cfg = DefaultRouterConfig()
	cfg.MaxBackoff = cfg.Backoff / 2
	assert.Error(t, cfg.Validate())
}

func TestRetryable(t *testing.T) {
	assert.True(t, retryable(status.Error(codes.Unavailable, "down")))
	assert.True(t, retryable(status.Error(codes.DeadlineExceeded, "slow")))
	assert.False(t, retryable(status.Error(codes.FailedPrecondition, "rejected")))
	assert.False(t, retryable(status.Error(codes.InvalidArgument, "wrong node")))
	assert.False(t, retryable(fmt.Errorf("plain")))
}

func TestServerRPCs(t *testing.T) {
	ctrl := gomock.NewController(t)
	out := ghsmock.NewMockSender(ctrl)

	node, err := ghs.NewNode(0, []ghs.Link{{Peer: 1, Weight: 5}, {Peer: 2, Weight: 9}}, out)
	require.NoError(t, err)

	f := newFabric()
	serveNode(t, f, node)

	conn, err := Dial(nodeAddr(0), f.dialer())
	require.NoError(t, err)
	defer conn.Close()
	client := NewClient(conn)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	st, err := client.Status(ctx)
	require.NoError(t, err)
	assert.Equal(t, ghs.NodeID(0), st.Node)
	assert.Equal(t, ghs.Sleeping.String(), st.State)
	assert.False(t, st.Halted)

	out.EXPECT().Send(ghs.NodeID(1), ghs.Connect(0, 0)).Return(nil)
	woken, err := client.Start(ctx, 0)
	require.NoError(t, err)
	assert.True(t, woken)

	woken, err = client.Start(ctx, 0)
	require.NoError(t, err)
	assert.False(t, woken)

	_, err = client.Start(ctx, 4)
	assert.Equal(t, codes.InvalidArgument, status.Code(err))

	err = client.Deliver(ctx, 4, ghs.Accept(1))
	assert.Equal(t, codes.InvalidArgument, status.Code(err))

	// a Report over a Basic edge is a protocol violation
	err = client.Deliver(ctx, 0, ghs.Report(2, 3))
	assert.Equal(t, codes.FailedPrecondition, status.Code(err))

	st, err = client.Status(ctx)
	require.NoError(t, err)
	assert.NotEmpty(t, st.Err)
}

func TestServerRejectsSecondListener(t *testing.T) {
	ctrl := gomock.NewController(t)
	node, err := ghs.NewNode(0, nil, ghsmock.NewMockSender(ctrl))
	require.NoError(t, err)

	srv := serveNode(t, newFabric(), node)
	require.Eventually(t, srv.IsRunning, time.Second, time.Millisecond)
	assert.ErrorIs(t, srv.Serve(bufconn.Listen(bufSize)), ErrAlreadyRunning)
	assert.Equal(t, "bufconn", srv.Address())

	srv.Stop()
	assert.False(t, srv.IsRunning())
}

func TestNewServerValidates(t *testing.T) {
	_, err := NewServer(&ServerConfig{}, nil, zerolog.Nop())
	assert.Error(t, err)

	_, err = NewServer(nil, nil, zerolog.Nop())
	assert.Error(t, err)
}

func TestRouterRejectsBadRoutes(t *testing.T) {
	_, err := NewRouter(1, []Route{{ID: 1, Address: nodeAddr(1)}}, fastRouter())
	assert.Error(t, err)

	_, err = NewRouter(1, []Route{{ID: 2, Address: nodeAddr(2)}, {ID: 2, Address: nodeAddr(2)}}, fastRouter())
	assert.Error(t, err)

	_, err = NewRouter(1, nil, RouterConfig{})
	assert.Error(t, err)

	r, err := NewRouter(1, nil, fastRouter())
	require.NoError(t, err)
	assert.ErrorIs(t, r.Send(5, ghs.Accept(1)), ErrUnknownPeer)
	require.NoError(t, r.Close())
	require.NoError(t, r.Close())
	assert.ErrorIs(t, r.Err(), ErrClosed)
}

func TestRouterStopsOnRejection(t *testing.T) {
	ctrl := gomock.NewController(t)
	remote, err := ghs.NewNode(2, []ghs.Link{{Peer: 1, Weight: 4}}, ghsmock.NewMockSender(ctrl))
	require.NoError(t, err)

	f := newFabric()
	serveNode(t, f, remote)

	r, err := NewRouter(1, []Route{{ID: 2, Address: nodeAddr(2)}}, fastRouter(), WithDialOptions(f.dialer()))
	require.NoError(t, err)
	defer r.Close()

	require.NoError(t, r.Send(2, ghs.Report(1, 4)))

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	err = r.Flush(ctx)
	require.Error(t, err)
	assert.Equal(t, codes.FailedPrecondition, status.Code(err))
	assert.Error(t, r.Send(2, ghs.Accept(1)))
	assert.Equal(t, 1, r.Messages()[ghs.MsgReport.String()])
	select {
	case <-r.Failed():
	default:
		t.Fatal("failure not signalled")
	}
}

func TestFlushHonoursContext(t *testing.T) {
	// nothing listens on node-9, so the call waits for the connection
	r, err := NewRouter(1, []Route{{ID: 9, Address: nodeAddr(9)}}, fastRouter(), WithDialOptions(newFabric().dialer()))
	require.NoError(t, err)
	defer r.Close()

	require.NoError(t, r.Send(9, ghs.Accept(1)))
	assert.Equal(t, 1, r.Pending())

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	assert.ErrorIs(t, r.Flush(ctx), context.DeadlineExceeded)
}

// cluster runs every node of a topology behind its own server and router.
type cluster struct {
	topo    *topology.Topology
	fabric  *fabric
	routers map[ghs.NodeID]*Router
	nodes   map[ghs.NodeID]*ghs.Node
	tree    *ghs.TreeCollector
	halts   *ghs.HaltCollector
}

func newCluster(t *testing.T, topo *topology.Topology) *cluster {
	t.Helper()
	c := &cluster{
		topo:    topo,
		fabric:  newFabric(),
		routers: make(map[ghs.NodeID]*Router),
		nodes:   make(map[ghs.NodeID]*ghs.Node),
		tree:    ghs.NewTreeCollector(),
		halts:   ghs.NewHaltCollector(topo.Size()),
	}
	obs := ghs.Observers{c.tree, c.halts}
	for _, id := range topo.Nodes {
		var routes []Route
		for _, peer := range topo.Neighbors(id) {
			routes = append(routes, Route{ID: peer, Address: nodeAddr(peer)})
		}
		r, err := NewRouter(id, routes, fastRouter(), WithDialOptions(c.fabric.dialer()))
		require.NoError(t, err)
		t.Cleanup(func() { r.Close() })

		n, err := ghs.NewNode(id, topo.Links(id), r, ghs.WithObserver(obs))
		require.NoError(t, err)
		serveNode(t, c.fabric, n)

		c.routers[id] = r
		c.nodes[id] = n
	}
	return c
}

func TestClusterBuildsMinimumSpanningTree(t *testing.T) {
	for _, topo := range []*topology.Topology{
		topology.Complete(4, 1),
		topology.Ring(5, 2),
		topology.Random(7, 6, 3),
	} {
		c := newCluster(t, topo)

		ctx, cancel := context.WithTimeout(context.Background(), 20*time.Second)
		for _, id := range topo.Nodes {
			_, err := StartRemote(ctx, nodeAddr(id), id, c.fabric.dialer())
			require.NoError(t, err)
		}

		select {
		case <-c.halts.Done():
		case <-ctx.Done():
			t.Fatalf("%d of %d nodes halted", c.halts.Halted(), topo.Size())
		}
		require.Empty(t, c.halts.Failures())
		assert.Len(t, c.halts.Declared(), 1)

		res := result.New(result.ModeGRPC, topo, c.tree.Edges())
		require.NoError(t, res.Verify(topo))

		for _, id := range topo.Nodes {
			require.NoError(t, c.routers[id].Flush(ctx))
			st, err := StatusRemote(ctx, nodeAddr(id), c.fabric.dialer())
			require.NoError(t, err)
			assert.True(t, st.Halted, "node %d", id)
			assert.Equal(t, ghs.Found.String(), st.State)
			assert.Zero(t, st.Deferred)
			assert.Empty(t, st.Err)
		}
		cancel()
	}
}

// slowNode stalls its first delivery and counts every delivery that reaches the node.
type slowNode struct {
	*ghs.Node
	stall time.Duration

	mu         sync.Mutex
	deliveries []ghs.Message
}

func (n *slowNode) Deliver(msg ghs.Message) error {
	n.mu.Lock()
	first := len(n.deliveries) == 0
	n.deliveries = append(n.deliveries, msg)
	n.mu.Unlock()
	if first {
		time.Sleep(n.stall)
	}
	return n.Node.Deliver(msg)
}

func (n *slowNode) delivered() []ghs.Message {
	n.mu.Lock()
	defer n.mu.Unlock()
	return append([]ghs.Message(nil), n.deliveries...)
}

func TestRetryAfterTimeoutDeliversOnce(t *testing.T) {
	ctrl := gomock.NewController(t)
	sender := ghsmock.NewMockSender(ctrl)
	gomock.InOrder(
		sender.EXPECT().Send(ghs.NodeID(1), ghs.Connect(2, 0)).Return(nil),
		sender.EXPECT().Send(ghs.NodeID(1), ghs.Initiate(2, 1, 4, ghs.Find)).Return(nil),
	)
	inner, err := ghs.NewNode(2, []ghs.Link{{Peer: 1, Weight: 4}}, sender)
	require.NoError(t, err)
	remote := &slowNode{Node: inner, stall: 150 * time.Millisecond}

	f := newFabric()
	serveNode(t, f, remote)

	cfg := RouterConfig{
		CallTimeout: 50 * time.Millisecond,
		MaxAttempts: 20,
		Backoff:     time.Millisecond,
		MaxBackoff:  5 * time.Millisecond,
	}
	r, err := NewRouter(1, []Route{{ID: 2, Address: nodeAddr(2)}}, cfg, WithDialOptions(f.dialer()))
	require.NoError(t, err)
	defer r.Close()

	require.NoError(t, r.Send(2, ghs.Connect(1, 0)))

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	require.NoError(t, r.Flush(ctx))

	assert.Equal(t, []ghs.Message{ghs.Connect(1, 0)}, remote.delivered())
	assert.Equal(t, ghs.Found, inner.Snapshot().State)
	assert.NoError(t, inner.Err())
}

func TestServerDropsRepeatedSequence(t *testing.T) {
	ctrl := gomock.NewController(t)
	sender := ghsmock.NewMockSender(ctrl)
	sender.EXPECT().Send(ghs.NodeID(1), ghs.Connect(0, 0)).Return(nil)
	inner, err := ghs.NewNode(0, []ghs.Link{{Peer: 1, Weight: 3}, {Peer: 2, Weight: 8}}, sender)
	require.NoError(t, err)
	node := &slowNode{Node: inner}

	f := newFabric()
	serveNode(t, f, node)
	conn, err := Dial(nodeAddr(0), f.dialer())
	require.NoError(t, err)
	defer conn.Close()
	client := NewClient(conn)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	// a Test from a higher level wakes the node and is parked
	test := ghs.Test(2, 3, 9)
	require.NoError(t, client.Send(ctx, &DeliverRequest{To: 0, Msg: test, Session: 7, Seq: 1}))
	require.NoError(t, client.Send(ctx, &DeliverRequest{To: 0, Msg: test, Session: 7, Seq: 1}))
	assert.Len(t, node.delivered(), 1)
	assert.Len(t, inner.Snapshot().Deferred, 1)

	// a restarted sender numbers from 1 again under a new session
	require.NoError(t, client.Send(ctx, &DeliverRequest{To: 0, Msg: test, Session: 8, Seq: 1}))
	assert.Len(t, node.delivered(), 2)

	// a repeated failure answers with the first outcome
	bad := ghs.Report(1, 5)
	err = client.Send(ctx, &DeliverRequest{To: 0, Msg: bad, Session: 7, Seq: 2})
	assert.Equal(t, codes.FailedPrecondition, status.Code(err))
	err = client.Send(ctx, &DeliverRequest{To: 0, Msg: bad, Session: 7, Seq: 2})
	assert.Equal(t, codes.FailedPrecondition, status.Code(err))
	assert.Len(t, node.delivered(), 3)
}
