package rpc

import (
	"context"
	"crypto/tls"
	"log/slog"
	"net"
	"net/http"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/soheilhy/cmux"
	"golang.org/x/sync/errgroup"
	"google.golang.org/grpc"
)

// Server serves gRPC and the HTTP API on one listener.
type Server struct {
	grpc *grpc.Server
	http *http.Server
}

// NewServer builds the gRPC server and HTTP gateway for b.
func NewServer(b Backend, token string) (*Server, error) {
	svc := New(b, token)
	gs := grpc.NewServer(svc.ServerOptions()...)
	svc.Register(gs)

	mux, err := NewGateway(b, token)
	if err != nil {
		return nil, err
	}
	return &Server{
		grpc: gs,
		http: &http.Server{Handler: mux, ReadHeaderTimeout: 10 * time.Second},
	}, nil
}

// GRPC returns the underlying gRPC server, for serving it alone (the IPC
// socket carries gRPC only).
func (s *Server) GRPC() *grpc.Server { return s.grpc }

// Serve splits ln by protocol and serves until ctx is cancelled. When
// tlsCfg is non-nil the listener is wrapped in TLS first; its NextProtos
// must offer both h2 and http/1.1.
func (s *Server) Serve(ctx context.Context, ln net.Listener, tlsCfg *tls.Config) error {
	if tlsCfg != nil {
		ln = tls.NewListener(ln, tlsCfg)
	}
	m := cmux.New(ln)
	grpcL := m.MatchWithWriters(cmux.HTTP2MatchHeaderFieldSendSettings("content-type", "application/grpc"))
	httpL := m.Match(cmux.Any())

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error { return ignoreClosed(s.grpc.Serve(grpcL)) })
	g.Go(func() error { return ignoreClosed(s.http.Serve(httpL)) })
	g.Go(func() error { return ignoreClosed(m.Serve()) })
	g.Go(func() error {
		<-ctx.Done()
		slog.Debug("ui api shutting down", "addr", ln.Addr())
		s.grpc.Stop()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		_ = s.http.Shutdown(shutdownCtx)
		_ = ln.Close()
		return nil
	})
	return g.Wait()
}

// ServeGRPC serves gRPC alone on ln until ctx is cancelled.
func (s *Server) ServeGRPC(ctx context.Context, ln net.Listener) error {
	go func() {
		<-ctx.Done()
		s.grpc.Stop()
	}()
	return ignoreClosed(s.grpc.Serve(ln))
}

func ignoreClosed(err error) error {
	switch {
	case err == nil,
		errors.Is(err, net.ErrClosed),
		errors.Is(err, http.ErrServerClosed),
		errors.Is(err, grpc.ErrServerStopped),
		errors.Is(err, cmux.ErrListenerClosed):
		return nil
	}
	return err
}
