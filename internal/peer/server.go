package peer

import (
	"context"
	"errors"
	"net"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"github.com/guwenyu1996/Distributed-Algorithms/internal/ghs"
)

// Node is the part of a GHS node the server exposes.
type Node interface {
	ID() ghs.NodeID
	Start() error
	Deliver(ghs.Message) error
	Snapshot() ghs.Snapshot
	Err() error
}

// Server hosts one node behind the peer service.
type Server struct {
	mu sync.RWMutex

	// grpcServer is the underlying gRPC server
	grpcServer *grpc.Server

	node   Node
	config *ServerConfig
	log    zerolog.Logger

	// listener is the network listener
	listener net.Listener

	// running indicates if the server is currently running
	running bool

	// deliverMu serialises Deliver so a repeated request waits for the first one
	deliverMu sync.Mutex
	links     map[ghs.NodeID]linkState
}

// linkState is the last sequenced delivery seen from one sender.
type linkState struct {
	session uint64
	seq     uint64
	err     error
}

// NewServer creates a peer server for node.
func NewServer(cfg *ServerConfig, node Node, log zerolog.Logger) (*Server, error) {
	if cfg == nil {
		cfg = DefaultServerConfig()
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if node == nil {
		return nil, errors.New("nil node")
	}

	s := &Server{
		node:   node,
		config: cfg,
		links:  make(map[ghs.NodeID]linkState),
		log:    log.With().Str("component", "peer").Int("node", int(node.ID())).Logger(),
	}
	s.grpcServer = grpc.NewServer(
		grpc.MaxRecvMsgSize(cfg.MaxRecvMsgSize),
		grpc.MaxSendMsgSize(cfg.MaxSendMsgSize),
		grpc.UnaryInterceptor(s.unaryInterceptor()),
	)
	RegisterPeerServer(s.grpcServer, s)
	return s, nil
}

// ListenAndServe listens on the configured address and serves until stopped.
func (s *Server) ListenAndServe() error {
	lis, err := s.listen()
	if err != nil {
		return err
	}
	return s.grpcServer.Serve(lis)
}

// ListenAndServeAsync listens on the configured address and serves in a goroutine.
func (s *Server) ListenAndServeAsync() error {
	lis, err := s.listen()
	if err != nil {
		return err
	}
	go s.serve(lis)
	return nil
}

// Serve serves on an existing listener until stopped.
func (s *Server) Serve(lis net.Listener) error {
	if err := s.attach(lis); err != nil {
		return err
	}
	return s.grpcServer.Serve(lis)
}

func (s *Server) serve(lis net.Listener) {
	if err := s.grpcServer.Serve(lis); err != nil && !errors.Is(err, grpc.ErrServerStopped) {
		s.log.Error().Err(err).Msg("serve failed")
	}
}

func (s *Server) listen() (net.Listener, error) {
	lis, err := net.Listen("tcp", s.config.Address)
	if err != nil {
		return nil, err
	}
	if err := s.attach(lis); err != nil {
		lis.Close()
		return nil, err
	}
	return lis, nil
}

func (s *Server) attach(lis net.Listener) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.running {
		return ErrAlreadyRunning
	}
	s.listener = lis
	s.running = true
	s.log.Info().Str("addr", lis.Addr().String()).Msg("peer server listening")
	return nil
}

// Stop gracefully stops the server. A server stopped before it listens refuses to
// serve later.
func (s *Server) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.grpcServer.GracefulStop()
	s.running = false
}

// StopNow stops the server without waiting for in-flight calls.
func (s *Server) StopNow() {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.grpcServer.Stop()
	s.running = false
}

// IsRunning returns true if the server is currently running.
func (s *Server) IsRunning() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.running
}

// Address returns the listen address, or "" before the server listens.
func (s *Server) Address() string {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.listener == nil {
		return ""
	}
	return s.listener.Addr().String()
}

// Deliver implements PeerServer. A sequenced request at or below the last sequence
// handled for its sender session is answered with the first outcome and not delivered
// again.
func (s *Server) Deliver(_ context.Context, req *DeliverRequest) (*DeliverResponse, error) {
	if req.To != s.node.ID() {
		return nil, status.Errorf(codes.InvalidArgument, "node %d: %v", req.To, ErrWrongNode)
	}
	s.deliverMu.Lock()
	defer s.deliverMu.Unlock()

	from := req.Msg.From
	if req.Seq != 0 {
		if last, ok := s.links[from]; ok && last.session == req.Session && req.Seq <= last.seq {
			s.log.Debug().
				Int("from", int(from)).
				Uint64("seq", req.Seq).
				Msg("duplicate delivery dropped")
			if req.Seq == last.seq && last.err != nil {
				return nil, last.err
			}
			return &DeliverResponse{}, nil
		}
	}
	var err error
	if derr := s.node.Deliver(req.Msg); derr != nil {
		err = toStatus(derr)
	}
	if req.Seq != 0 {
		s.links[from] = linkState{session: req.Session, seq: req.Seq, err: err}
	}
	if err != nil {
		return nil, err
	}
	return &DeliverResponse{}, nil
}

// Start implements PeerServer.
func (s *Server) Start(_ context.Context, req *StartRequest) (*StartResponse, error) {
	if req.Node != s.node.ID() {
		return nil, status.Errorf(codes.InvalidArgument, "node %d: %v", req.Node, ErrWrongNode)
	}
	sleeping := s.node.Snapshot().State == ghs.Sleeping
	if err := s.node.Start(); err != nil {
		return nil, toStatus(err)
	}
	return &StartResponse{Woken: sleeping}, nil
}

// Status implements PeerServer.
func (s *Server) Status(_ context.Context, _ *StatusRequest) (*StatusResponse, error) {
	snap := s.node.Snapshot()
	resp := &StatusResponse{
		Node:     snap.ID,
		Level:    snap.Level,
		Fragment: snap.Fragment,
		State:    snap.State.String(),
		Halted:   snap.Halted,
		Declared: snap.Declared,
		Deferred: len(snap.Deferred),
		Tree:     snap.Tree(),
	}
	if err := s.node.Err(); err != nil {
		resp.Err = err.Error()
	}
	return resp, nil
}

// toStatus maps node failures to gRPC codes. Protocol violations are permanent.
func toStatus(err error) error {
	var pe *ghs.ProtocolError
	if errors.As(err, &pe) {
		return status.Error(codes.FailedPrecondition, err.Error())
	}
	return status.Error(codes.Internal, err.Error())
}

func (s *Server) unaryInterceptor() grpc.UnaryServerInterceptor {
	return func(
		ctx context.Context,
		req interface{},
		info *grpc.UnaryServerInfo,
		handler grpc.UnaryHandler,
	) (interface{}, error) {
		start := time.Now()
		resp, err := handler(ctx, req)
		ev := s.log.Debug()
		if err != nil {
			ev = s.log.Warn().Err(err)
		}
		if dr, ok := req.(*DeliverRequest); ok {
			ev = ev.Stringer("msg", dr.Msg)
		}
		ev.Str("method", info.FullMethod).Dur("took", time.Since(start)).Msg("rpc")
		return resp, err
	}
}
