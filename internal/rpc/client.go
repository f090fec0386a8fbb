package rpc

import (
	"context"
	"encoding/json"

	"github.com/cockroachdb/errors"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials"
	"google.golang.org/grpc/credentials/insecure"

	"go.klb.dev/clipkeep/internal/coordinator"
	"go.klb.dev/clipkeep/internal/ipc"
	"go.klb.dev/clipkeep/internal/message"
)

// Client calls clipkeep.v1.Coordinator.
type Client struct {
	cc grpc.ClientConnInterface
}

// NewClient wraps an existing connection.
func NewClient(cc grpc.ClientConnInterface) *Client { return &Client{cc: cc} }

// DialOptions returns the options every clipkeep client needs. creds may be
// nil for a plaintext connection.
func DialOptions(creds credentials.TransportCredentials, token, source string) []grpc.DialOption {
	if creds == nil {
		creds = insecure.NewCredentials()
	}
	opts := []grpc.DialOption{
		grpc.WithTransportCredentials(creds),
		grpc.WithDefaultCallOptions(grpc.CallContentSubtype(CodecName)),
	}
	if token != "" || source != "" {
		opts = append(opts, grpc.WithPerRPCCredentials(&clientCreds{token: token, source: source}))
	}
	return opts
}

// DialIPC connects to the daemon's local socket. No auth is needed there:
// the socket is owner-restricted by the OS.
func DialIPC(source string) (*grpc.ClientConn, error) {
	return grpc.NewClient(ipc.Target(), DialOptions(nil, "", source)...)
}

// Dial connects to the UI API at addr.
func Dial(addr string, creds credentials.TransportCredentials, token, source string) (*grpc.ClientConn, error) {
	conn, err := grpc.NewClient(addr, DialOptions(creds, token, source)...)
	if err != nil {
		return nil, errors.Wrapf(err, "dial %s", addr)
	}
	return conn, nil
}

// Do sends r and returns the coordinator's response. A response with
// Success false is not a Go error.
func (c *Client) Do(ctx context.Context, r message.Request) (message.Response, error) {
	b, err := message.EncodeRequest(r)
	if err != nil {
		return message.Response{}, err
	}
	return c.DoJSON(ctx, b)
}

// DoJSON sends an already encoded request object.
func (c *Client) DoJSON(ctx context.Context, b []byte) (message.Response, error) {
	var resp message.Response
	err := c.cc.Invoke(ctx, dispatchMethod, &DispatchRequest{Request: json.RawMessage(b)}, &resp)
	return resp, err
}

// Snapshot returns the coordinator's state.
func (c *Client) Snapshot(ctx context.Context) (coordinator.Snapshot, error) {
	var snap coordinator.Snapshot
	err := c.cc.Invoke(ctx, snapshotMethod, &SnapshotRequest{}, &snap)
	return snap, err
}

// Status returns the coordinator's status.
func (c *Client) Status(ctx context.Context) (coordinator.Status, error) {
	var st coordinator.Status
	err := c.cc.Invoke(ctx, statusMethod, &StatusRequest{}, &st)
	return st, err
}

// Watch opens a notification stream. Call Recv on the result until it
// returns an error; cancel ctx to end the stream.
func (c *Client) Watch(ctx context.Context, source string) (*Stream, error) {
	desc := &ServiceDesc.Streams[0]
	cs, err := c.cc.NewStream(ctx, desc, watchMethod)
	if err != nil {
		return nil, err
	}
	if err := cs.SendMsg(&WatchRequest{Source: source}); err != nil {
		return nil, err
	}
	if err := cs.CloseSend(); err != nil {
		return nil, err
	}
	return &Stream{cs: cs}, nil
}

// Stream is an open Watch call.
type Stream struct {
	cs grpc.ClientStream
}

// Recv blocks for the next notification.
func (s *Stream) Recv() (message.Notification, error) {
	var n message.Notification
	err := s.cs.RecvMsg(&n)
	return n, err
}

type clientCreds struct {
	token  string
	source string
}

func (c *clientCreds) GetRequestMetadata(context.Context, ...string) (map[string]string, error) {
	md := make(map[string]string, 2)
	if c.token != "" {
		md["authorization"] = "Bearer " + c.token
	}
	if c.source != "" {
		md[SourceHeader] = c.source
	}
	return md, nil
}

func (c *clientCreds) RequireTransportSecurity() bool { return false }
