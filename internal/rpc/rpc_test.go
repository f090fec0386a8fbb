package rpc

import (
	"context"
	"encoding/json"
	"net"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
	"google.golang.org/grpc/test/bufconn"

	"go.klb.dev/clipkeep/internal/coordinator"
	"go.klb.dev/clipkeep/internal/menu"
	"go.klb.dev/clipkeep/internal/message"
	"go.klb.dev/clipkeep/internal/model"
	"go.klb.dev/clipkeep/internal/store"
)

func newCoordinator(t *testing.T) *coordinator.Coordinator {
	t.Helper()
	c := coordinator.New(coordinator.Config{Store: store.NewMemory()})
	ctx, cancel := context.WithCancel(context.Background())
	require.NoError(t, c.Start(ctx))
	t.Cleanup(func() {
		cancel()
		_ = c.Close()
	})
	return c
}

// startGRPC serves the service on an in-memory listener and returns a
// client authenticated with clientToken.
func startGRPC(t *testing.T, c *coordinator.Coordinator, token, clientToken string) *Client {
	t.Helper()
	lis := bufconn.Listen(1 << 20)
	svc := New(c, token)
	srv := grpc.NewServer(svc.ServerOptions()...)
	svc.Register(srv)
	go func() { _ = srv.Serve(lis) }()
	t.Cleanup(srv.Stop)

	opts := append(DialOptions(nil, clientToken, "test"),
		grpc.WithContextDialer(func(context.Context, string) (net.Conn, error) { return lis.Dial() }))
	conn, err := grpc.NewClient("passthrough://bufnet", opts...)
	require.NoError(t, err)
	t.Cleanup(func() { _ = conn.Close() })
	return NewClient(conn)
}

func TestDispatch(t *testing.T) {
	c := newCoordinator(t)
	cl := startGRPC(t, c, "", "")
	ctx := context.Background()

	resp, err := cl.Do(ctx, message.AddToHistory{Text: "hello", Source: "example.com"})
	require.NoError(t, err)
	require.True(t, resp.Success, resp.Error)

	snap, err := cl.Snapshot(ctx)
	require.NoError(t, err)
	require.Len(t, snap.History, 1)
	assert.Equal(t, "hello", snap.History[0].Text)
	assert.Equal(t, model.DefaultSettings(), snap.Settings)
	require.NotEmpty(t, snap.Menu)
	last := snap.Menu[len(snap.Menu)-1]
	assert.Equal(t, menu.ItemID(0), last.ID)
	assert.Equal(t, "hello", last.Title)
}

func TestDispatch_UnknownAction(t *testing.T) {
	cl := startGRPC(t, newCoordinator(t), "", "")
	resp, err := cl.DoJSON(context.Background(), []byte(`{"action":"nope"}`))
	require.NoError(t, err)
	assert.False(t, resp.Success)
	assert.Equal(t, "Unknown action", resp.Error)
}

func TestDispatch_Empty(t *testing.T) {
	cl := startGRPC(t, newCoordinator(t), "", "")
	_, err := cl.DoJSON(context.Background(), nil)
	assert.Equal(t, codes.InvalidArgument, status.Code(err))
}

func TestAuth(t *testing.T) {
	c := newCoordinator(t)
	ctx := context.Background()

	_, err := startGRPC(t, c, "secret", "").Status(ctx)
	assert.Equal(t, codes.Unauthenticated, status.Code(err))

	_, err = startGRPC(t, c, "secret", "wrong").Status(ctx)
	assert.Equal(t, codes.Unauthenticated, status.Code(err))

	st, err := startGRPC(t, c, "secret", "secret").Status(ctx)
	require.NoError(t, err)
	assert.False(t, st.StartedAt.IsZero())
}

func TestWatch(t *testing.T) {
	c := newCoordinator(t)
	cl := startGRPC(t, c, "", "")
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	stream, err := cl.Watch(ctx, "popup")
	require.NoError(t, err)
	require.Eventually(t, func() bool { return len(c.Hub().Peers()) == 1 }, time.Second, 5*time.Millisecond)

	peer := c.Hub().Peers()[0]
	assert.Equal(t, message.RoleUI, peer.Role)
	assert.Equal(t, "popup", peer.Source)

	resp, err := cl.Do(ctx, message.AddSnippet{Text: "body", Title: "t"})
	require.NoError(t, err)
	require.True(t, resp.Success)

	n, err := stream.Recv()
	require.NoError(t, err)
	assert.Equal(t, message.NotifySnippetsUpdated, n.Action)

	st, err := cl.Status(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, st.Sent[message.NotifySnippetsUpdated])

	cancel()
	require.Eventually(t, func() bool { return len(c.Hub().Peers()) == 0 }, time.Second, 5*time.Millisecond)
}

func TestWatch_ReceivesPageDirectedFallback(t *testing.T) {
	c := newCoordinator(t)
	cl := startGRPC(t, c, "", "")
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	stream, err := cl.Watch(ctx, "")
	require.NoError(t, err)
	require.Eventually(t, func() bool { return len(c.Hub().Peers()) == 1 }, time.Second, 5*time.Millisecond)

	_, err = cl.Do(ctx, message.AddToHistory{Text: "x"})
	require.NoError(t, err)
	n, err := stream.Recv()
	require.NoError(t, err)
	require.Equal(t, message.NotifyHistoryUpdated, n.Action)

	resp, err := cl.Do(ctx, message.PasteLast{})
	require.NoError(t, err)
	require.True(t, resp.Success)
	n, err = stream.Recv()
	require.NoError(t, err)
	assert.Equal(t, message.Notification{Action: message.NotifyPasteText, Text: "x"}, n)
}

func TestCodec(t *testing.T) {
	var c jsonCodec
	assert.Equal(t, "json", c.Name())
	b, err := c.Marshal(&DispatchRequest{Request: json.RawMessage(`{"action":"refresh"}`)})
	require.NoError(t, err)
	assert.JSONEq(t, `{"request":{"action":"refresh"}}`, string(b))

	var got DispatchRequest
	require.NoError(t, c.Unmarshal(b, &got))
	assert.JSONEq(t, `{"action":"refresh"}`, string(got.Request))
}

func TestTokenMatches(t *testing.T) {
	assert.True(t, tokenMatches("Bearer s3", "s3"))
	assert.True(t, tokenMatches("s3", "s3"))
	assert.False(t, tokenMatches("Bearer s4", "s3"))
	assert.False(t, tokenMatches("", "s3"))
}
