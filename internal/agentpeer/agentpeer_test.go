package agentpeer

import (
	"context"
	"net"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"go.klb.dev/clipkeep/internal/coordinator"
	"go.klb.dev/clipkeep/internal/crypto"
	"go.klb.dev/clipkeep/internal/message"
	"go.klb.dev/clipkeep/internal/store"
	"go.klb.dev/clipkeep/internal/wire"
)

func startCoordinator(t *testing.T) *coordinator.Coordinator {
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

// connect serves one end of a pipe and returns a client on the other.
func connect(t *testing.T, c *coordinator.Coordinator, srv Options, cli ClientOptions) *Client {
	t.Helper()
	a, b := net.Pipe()
	ctx, cancel := context.WithCancel(context.Background())
	served := make(chan struct{})
	go func() {
		defer close(served)
		New(a, c.Hub(), c, srv).Serve(ctx)
	}()
	cl, err := NewClient(b, cli)
	require.NoError(t, err)
	t.Cleanup(func() {
		_ = cl.Close()
		cancel()
		<-served
	})
	return cl
}

func waitPeers(t *testing.T, c *coordinator.Coordinator, n int) {
	t.Helper()
	require.Eventually(t, func() bool { return len(c.Hub().Peers()) == n }, time.Second, 5*time.Millisecond)
}

func TestRequestResponse(t *testing.T) {
	c := startCoordinator(t)
	cl := connect(t, c, Options{}, ClientOptions{Source: "laptop"})
	waitPeers(t, c, 1)

	resp, err := cl.Do(context.Background(), message.AddToHistory{Text: "hello", Source: "example.com"})
	require.NoError(t, err)
	assert.True(t, resp.Success, resp.Error)

	h, err := c.Engine().History(context.Background())
	require.NoError(t, err)
	require.Len(t, h, 1)
	assert.Equal(t, "hello", h[0].Text)

	select {
	case n := <-cl.Notifications():
		assert.Equal(t, message.NotifyHistoryUpdated, n.Action)
	case <-time.After(time.Second):
		t.Fatal("no notification")
	}

	require.Eventually(t, func() bool {
		peers := c.Hub().Peers()
		return len(peers) == 1 && peers[0].Source == "laptop"
	}, time.Second, 5*time.Millisecond)
}

func TestUnknownActionResponse(t *testing.T) {
	c := startCoordinator(t)
	a, b := net.Pipe()
	go New(a, c.Hub(), c, Options{}).Serve(context.Background())
	wc := wire.New(b, nil)
	defer wc.Close()

	go func() {
		_ = wc.WriteFrame(&message.Frame{Type: message.FrameRequest, ID: 3, Request: []byte(`{"action":"nope"}`)})
	}()
	f, err := wc.ReadFrame()
	require.NoError(t, err)
	assert.Equal(t, message.FrameResponse, f.Type)
	assert.Equal(t, uint64(3), f.ID)
	assert.Equal(t, &message.Response{Success: false, Error: "Unknown action"}, f.Response)
}

func TestAuthFailure(t *testing.T) {
	c := startCoordinator(t)
	cl := connect(t, c, Options{Token: "right"}, ClientOptions{Token: "wrong"})

	select {
	case <-cl.Done():
	case <-time.After(time.Second):
		t.Fatal("connection not closed")
	}
	require.Error(t, cl.Err())
	assert.Contains(t, cl.Err().Error(), ErrAuth)
	assert.Empty(t, c.Hub().Peers())
}

func TestEncryptedSession(t *testing.T) {
	c := startCoordinator(t)
	key, err := crypto.DeriveKey("shared")
	require.NoError(t, err)

	cl := connect(t, c, Options{Token: "shared", Key: key}, ClientOptions{Token: "shared", Key: key, Source: "desk"})
	resp, err := cl.Do(context.Background(), message.AddSnippet{Title: "T", Text: "body"})
	require.NoError(t, err)
	assert.True(t, resp.Success, resp.Error)
}

func TestPageDirectedToActiveAgent(t *testing.T) {
	c := startCoordinator(t)
	ctx := context.Background()
	page := connect(t, c, Options{}, ClientOptions{Source: "page"})
	other := connect(t, c, Options{}, ClientOptions{Source: "other"})
	waitPeers(t, c, 2)

	_, err := page.Do(ctx, message.AddToHistory{Text: "to paste"})
	require.NoError(t, err)
	drain(page)
	drain(other)

	_, err = page.Do(ctx, message.PageActivated{URL: "https://mail.example.com/"})
	require.NoError(t, err)
	resp, err := other.Do(ctx, message.PasteLast{})
	require.NoError(t, err)
	require.True(t, resp.Success)

	select {
	case n := <-page.Notifications():
		assert.Equal(t, message.Notification{Action: message.NotifyPasteText, Text: "to paste"}, n)
	case <-time.After(time.Second):
		t.Fatal("active agent got nothing")
	}
	select {
	case n := <-other.Notifications():
		t.Fatalf("unexpected notification %v", n)
	case <-time.After(50 * time.Millisecond):
	}
}

func TestPongTimeoutDropsAgent(t *testing.T) {
	c := startCoordinator(t)
	a, b := net.Pipe()
	done := make(chan struct{})
	go func() {
		defer close(done)
		New(a, c.Hub(), c, Options{PingInterval: 20 * time.Millisecond, PongTimeout: 20 * time.Millisecond}).
			Serve(context.Background())
	}()

	// A silent agent: reads everything, answers nothing.
	wc := wire.New(b, nil)
	go func() {
		for {
			if _, err := wc.ReadFrame(); err != nil {
				return
			}
		}
	}()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("silent agent not dropped")
	}
	assert.Empty(t, c.Hub().Peers())
}

func TestClientAnswersPing(t *testing.T) {
	c := startCoordinator(t)
	cl := connect(t, c, Options{PingInterval: 10 * time.Millisecond, PongTimeout: 50 * time.Millisecond}, ClientOptions{})
	waitPeers(t, c, 1)

	time.Sleep(100 * time.Millisecond)
	assert.Len(t, c.Hub().Peers(), 1)
	resp, err := cl.Do(context.Background(), message.ClearHistory{})
	require.NoError(t, err)
	assert.True(t, resp.Success)
}

func TestDoAfterClose(t *testing.T) {
	c := startCoordinator(t)
	cl := connect(t, c, Options{}, ClientOptions{})
	require.NoError(t, cl.Close())
	_, err := cl.Do(context.Background(), message.ClearHistory{})
	require.ErrorIs(t, err, ErrClosed)
}

func drain(c *Client) {
	for {
		select {
		case <-c.Notifications():
		case <-time.After(20 * time.Millisecond):
			return
		}
	}
}
