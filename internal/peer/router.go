package peer

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"github.com/guwenyu1996/Distributed-Algorithms/internal/ghs"
	"github.com/guwenyu1996/Distributed-Algorithms/internal/result"
)

// Route names the address a neighbour listens on.
type Route struct {
	ID      ghs.NodeID
	Address string
}

// RouterOption configures a Router.
type RouterOption func(*Router)

// WithDialOptions appends options used when dialing every peer.
func WithDialOptions(opts ...grpc.DialOption) RouterOption {
	return func(r *Router) {
		r.dialOpts = append(r.dialOpts, opts...)
	}
}

// WithRouterLogger sets the router logger.
func WithRouterLogger(log zerolog.Logger) RouterOption {
	return func(r *Router) {
		r.log = log
	}
}

// Router implements ghs.Sender over gRPC. Send only enqueues; one goroutine per peer
// delivers its outbox in order and waits for each call before the next, so every
// directed link stays FIFO. Every message carries a per-link sequence number, so a
// retry of a call that did reach the peer is dropped there.
type Router struct {
	self     ghs.NodeID
	session  uint64
	cfg      RouterConfig
	dialOpts []grpc.DialOption
	log      zerolog.Logger
	counter  *result.Counter
	outboxes map[ghs.NodeID]*outbox

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	mu     sync.Mutex
	err    error
	failed chan struct{}
	closed bool
}

type outbox struct {
	peer   ghs.NodeID
	addr   string
	conn   *grpc.ClientConn
	client *Client

	mu       sync.Mutex
	queue    []queued
	seq      uint64
	inflight bool
	signal   chan struct{}
}

// queued is one outbound message with its link sequence number.
type queued struct {
	seq uint64
	msg ghs.Message
}

// NewRouter dials every route and starts one delivery goroutine per peer. Connections
// are lazy, so peers may come up later.
func NewRouter(self ghs.NodeID, routes []Route, cfg RouterConfig, opts ...RouterOption) (*Router, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	ctx, cancel := context.WithCancel(context.Background())
	r := &Router{
		self:     self,
		session:  uint64(time.Now().UnixNano()),
		cfg:      cfg,
		log:      zerolog.Nop(),
		counter:  result.NewCounter(),
		outboxes: make(map[ghs.NodeID]*outbox, len(routes)),
		ctx:      ctx,
		cancel:   cancel,
		failed:   make(chan struct{}),
	}
	for _, opt := range opts {
		opt(r)
	}
	r.log = r.log.With().Str("component", "router").Int("node", int(self)).Logger()

	for _, rt := range routes {
		if rt.ID == self {
			r.closeConns()
			cancel()
			return nil, fmt.Errorf("route to self %d", self)
		}
		if _, dup := r.outboxes[rt.ID]; dup {
			r.closeConns()
			cancel()
			return nil, fmt.Errorf("duplicate route to %d", rt.ID)
		}
		conn, err := Dial(rt.Address, r.dialOpts...)
		if err != nil {
			r.closeConns()
			cancel()
			return nil, fmt.Errorf("dial %d at %s: %w", rt.ID, rt.Address, err)
		}
		r.outboxes[rt.ID] = &outbox{
			peer:   rt.ID,
			addr:   rt.Address,
			conn:   conn,
			client: NewClient(conn),
			signal: make(chan struct{}, 1),
		}
	}
	for _, ob := range r.outboxes {
		r.wg.Add(1)
		go r.run(ob)
	}
	return r, nil
}

// Send implements ghs.Sender.
func (r *Router) Send(to ghs.NodeID, msg ghs.Message) error {
	ob, ok := r.outboxes[to]
	if !ok {
		return fmt.Errorf("send to %d: %w", to, ErrUnknownPeer)
	}
	if err := r.Err(); err != nil {
		return err
	}
	r.counter.Add(msg.Type)
	ob.push(msg)
	return nil
}

// Messages returns the number of messages sent so far, by type name.
func (r *Router) Messages() map[string]int {
	return r.counter.ByName()
}

// Err returns the first delivery failure, or ErrClosed after Close.
func (r *Router) Err() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.err != nil {
		return r.err
	}
	if r.closed {
		return ErrClosed
	}
	return nil
}

// Pending returns the number of messages not yet acknowledged by their receiver.
func (r *Router) Pending() int {
	n := 0
	for _, ob := range r.outboxes {
		n += ob.pending()
	}
	return n
}

// Flush waits until every outbox is drained, a delivery failed or ctx ended.
func (r *Router) Flush(ctx context.Context) error {
	ticker := time.NewTicker(5 * time.Millisecond)
	defer ticker.Stop()
	for {
		if err := r.Err(); err != nil {
			return err
		}
		if r.Pending() == 0 {
			return nil
		}
		select {
		case <-ticker.C:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

// Close stops the delivery goroutines and closes every connection. Undelivered
// messages are dropped.
func (r *Router) Close() error {
	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		return nil
	}
	r.closed = true
	r.mu.Unlock()

	r.cancel()
	r.wg.Wait()
	return r.closeConns()
}

func (r *Router) closeConns() error {
	var first error
	for _, ob := range r.outboxes {
		if err := ob.conn.Close(); err != nil && first == nil {
			first = err
		}
	}
	return first
}

func (r *Router) setErr(err error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.err == nil {
		r.err = err
		close(r.failed)
	}
}

// Failed closes when a link went down. Err returns the cause.
func (r *Router) Failed() <-chan struct{} {
	return r.failed
}

func (r *Router) run(ob *outbox) {
	defer r.wg.Done()
	for {
		q, ok := ob.next(r.ctx)
		if !ok {
			return
		}
		err := r.deliver(ob, q)
		ob.done()
		if err != nil {
			if r.ctx.Err() == nil {
				r.log.Error().Err(err).Int("peer", int(ob.peer)).Msg("link down")
				r.setErr(err)
			}
			return
		}
	}
}

func (r *Router) deliver(ob *outbox, q queued) error {
	msg := q.msg
	req := &DeliverRequest{To: ob.peer, Msg: msg, Session: r.session, Seq: q.seq}
	backoff := r.cfg.Backoff
	for attempt := 1; ; attempt++ {
		ctx, cancel := context.WithTimeout(r.ctx, r.cfg.CallTimeout)
		err := ob.client.Send(ctx, req)
		cancel()
		if err == nil {
			return nil
		}
		if r.ctx.Err() != nil {
			return ErrClosed
		}
		if !retryable(err) || attempt >= r.cfg.MaxAttempts {
			return fmt.Errorf("deliver %s to %d after %d attempts: %w", msg, ob.peer, attempt, err)
		}
		r.log.Warn().Err(err).
			Int("peer", int(ob.peer)).
			Int("attempt", attempt).
			Dur("backoff", backoff).
			Msg("deliver failed, retrying")

		select {
		case <-time.After(backoff):
		case <-r.ctx.Done():
			return ErrClosed
		}
		backoff = min(backoff*2, r.cfg.MaxBackoff)
	}
}

// retryable reports whether a failed call may be repeated. Rejections by the remote
// node are final.
func retryable(err error) bool {
	switch status.Code(err) {
	case codes.Unavailable, codes.DeadlineExceeded, codes.ResourceExhausted, codes.Aborted:
		return true
	default:
		return false
	}
}

func (ob *outbox) push(msg ghs.Message) {
	ob.mu.Lock()
	ob.seq++
	ob.queue = append(ob.queue, queued{seq: ob.seq, msg: msg})
	ob.mu.Unlock()

	select {
	case ob.signal <- struct{}{}:
	default:
	}
}

// next blocks until a message is queued and marks it in flight.
func (ob *outbox) next(ctx context.Context) (queued, bool) {
	for {
		ob.mu.Lock()
		if len(ob.queue) > 0 {
			q := ob.queue[0]
			ob.queue = ob.queue[1:]
			ob.inflight = true
			ob.mu.Unlock()
			return q, true
		}
		ob.mu.Unlock()

		select {
		case <-ob.signal:
		case <-ctx.Done():
			return queued{}, false
		}
	}
}

func (ob *outbox) done() {
	ob.mu.Lock()
	ob.inflight = false
	ob.mu.Unlock()
}

func (ob *outbox) pending() int {
	ob.mu.Lock()
	defer ob.mu.Unlock()
	n := len(ob.queue)
	if ob.inflight {
		n++
	}
	return n
}
