// Package rpc exposes the coordinator to UI contexts and CLI tools.
//
// The same service is reachable two ways: as gRPC clipkeep.v1.Coordinator
// (JSON-encoded messages, see CodecName) and as a small HTTP/JSON API
// mounted on a grpc-gateway mux. Serve splits one listener between them.
package rpc

import (
	"context"
	"crypto/subtle"
	"fmt"
	"log/slog"
	"strings"
	"sync/atomic"
	"time"

	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/peer"
	"google.golang.org/grpc/status"

	"go.klb.dev/clipkeep/internal/coordinator"
	"go.klb.dev/clipkeep/internal/hub"
	"go.klb.dev/clipkeep/internal/message"
)

const (
	// SourceHeader names the caller in peer lists.
	SourceHeader = "x-clipkeep-source"

	watchQueue = 16
)

// Coordinator is the part of *coordinator.Coordinator the service uses.
type Coordinator interface {
	DispatchJSON(ctx context.Context, b []byte) message.Response
	Snapshot(ctx context.Context) (coordinator.Snapshot, error)
	Status() coordinator.Status
	Hub() *hub.Hub
}

// Service implements CoordinatorServer.
type Service struct {
	coord Coordinator
	token string // empty = no auth
}

var _ CoordinatorServer = (*Service)(nil)

// New returns a Service backed by c. token may be empty to disable auth.
func New(c Coordinator, token string) *Service {
	return &Service{coord: c, token: token}
}

// ServerOptions returns the interceptors that enforce the bearer token.
func (s *Service) ServerOptions() []grpc.ServerOption {
	return []grpc.ServerOption{
		grpc.ChainUnaryInterceptor(func(ctx context.Context, req any, _ *grpc.UnaryServerInfo, next grpc.UnaryHandler) (any, error) {
			if err := s.auth(ctx); err != nil {
				return nil, err
			}
			return next(ctx, req)
		}),
		grpc.ChainStreamInterceptor(func(srv any, ss grpc.ServerStream, _ *grpc.StreamServerInfo, next grpc.StreamHandler) error {
			if err := s.auth(ss.Context()); err != nil {
				return err
			}
			return next(srv, ss)
		}),
	}
}

// Register attaches the service to srv.
func (s *Service) Register(srv grpc.ServiceRegistrar) {
	srv.RegisterService(&ServiceDesc, s)
}

// Dispatch implements Coordinator.Dispatch.
func (s *Service) Dispatch(ctx context.Context, req *DispatchRequest) (*message.Response, error) {
	if len(req.Request) == 0 {
		return nil, status.Error(codes.InvalidArgument, "missing request")
	}
	ctx = message.WithSender(ctx, "grpc:"+addrFromCtx(ctx))
	resp := s.coord.DispatchJSON(ctx, req.Request)
	return &resp, nil
}

// Snapshot implements Coordinator.Snapshot.
func (s *Service) Snapshot(ctx context.Context, _ *SnapshotRequest) (*coordinator.Snapshot, error) {
	snap, err := s.coord.Snapshot(ctx)
	if err != nil {
		return nil, status.Error(codes.Internal, err.Error())
	}
	return &snap, nil
}

// Status implements Coordinator.Status.
func (s *Service) Status(context.Context, *StatusRequest) (*coordinator.Status, error) {
	st := s.coord.Status()
	return &st, nil
}

// Watch implements Coordinator.Watch. It streams every notification the
// hub delivers to the caller until the stream ends.
func (s *Service) Watch(req *WatchRequest, stream grpc.ServerStream) error {
	ctx := stream.Context()
	addr := addrFromCtx(ctx)
	wp := &watchPeer{
		id:          fmt.Sprintf("ui:%s#%d", addr, watchSeq.Add(1)),
		source:      sourceFromCtx(ctx, req.Source),
		addr:        addr,
		ch:          make(chan message.Notification, watchQueue),
		connectedAt: time.Now(),
	}

	h := s.coord.Hub()
	h.Register(wp)
	defer h.Unregister(wp)

	slog.Info("watch started", "peer", wp.id, "source", wp.source)
	defer slog.Info("watch ended", "peer", wp.id)

	for {
		select {
		case <-ctx.Done():
			return nil
		case n := <-wp.ch:
			if err := stream.SendMsg(&n); err != nil {
				return err
			}
		}
	}
}

// auth validates the bearer token in ctx metadata. Skipped when s.token is empty.
func (s *Service) auth(ctx context.Context) error {
	if s.token == "" {
		return nil
	}
	md, ok := metadata.FromIncomingContext(ctx)
	if !ok {
		return status.Error(codes.Unauthenticated, "missing metadata")
	}
	vals := md.Get("authorization")
	if len(vals) == 0 {
		return status.Error(codes.Unauthenticated, "missing authorization header")
	}
	if !tokenMatches(vals[0], s.token) {
		return status.Error(codes.Unauthenticated, "invalid token")
	}
	return nil
}

// tokenMatches compares an Authorization value, with or without its
// "Bearer " prefix, against token.
func tokenMatches(header, token string) bool {
	tok := strings.TrimPrefix(header, "Bearer ")
	return subtle.ConstantTimeCompare([]byte(tok), []byte(token)) == 1
}

func sourceFromCtx(ctx context.Context, fallback string) string {
	if fallback != "" {
		return fallback
	}
	if md, ok := metadata.FromIncomingContext(ctx); ok {
		if vals := md.Get(SourceHeader); len(vals) > 0 {
			return vals[0]
		}
	}
	return addrFromCtx(ctx)
}

func addrFromCtx(ctx context.Context) string {
	if p, ok := peer.FromContext(ctx); ok && p.Addr != nil {
		return p.Addr.String()
	}
	return "unknown"
}

var watchSeq atomic.Uint64

// watchPeer is a transient hub subscriber backed by a Watch stream.
type watchPeer struct {
	id          string
	source      string
	addr        string
	ch          chan message.Notification
	connectedAt time.Time
	lastSeen    atomic.Int64
}

func (p *watchPeer) ID() string { return p.id }

func (p *watchPeer) Info() message.PeerInfo {
	info := message.PeerInfo{
		ID:          p.id,
		Source:      p.source,
		Addr:        p.addr,
		Role:        message.RoleUI,
		ConnectedAt: p.connectedAt,
		LastSeen:    p.connectedAt,
	}
	if ls := p.lastSeen.Load(); ls > 0 {
		info.LastSeen = time.Unix(0, ls)
	}
	return info
}

func (p *watchPeer) Send(n message.Notification) {
	p.lastSeen.Store(time.Now().UnixNano())
	select {
	case p.ch <- n:
	default:
		slog.Warn("watch peer channel full, dropping", "peer", p.id, "action", n.Action)
	}
}
