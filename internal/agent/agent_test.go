package agent

import (
	"context"
	"net"
	"sync/atomic"
	"testing"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"go.klb.dev/clipkeep/internal/agentpeer"
	"go.klb.dev/clipkeep/internal/clip"
	"go.klb.dev/clipkeep/internal/coordinator"
	"go.klb.dev/clipkeep/internal/message"
	"go.klb.dev/clipkeep/internal/store"
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

// pipeDialer serves every dialled connection with an agentpeer.Peer.
func pipeDialer(t *testing.T, c *coordinator.Coordinator, opts agentpeer.Options) func(context.Context) (net.Conn, error) {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	return func(context.Context) (net.Conn, error) {
		a, b := net.Pipe()
		go agentpeer.New(a, c.Hub(), c, opts).Serve(ctx)
		return b, nil
	}
}

func runAgent(t *testing.T, cfg Config) (*Agent, chan error) {
	t.Helper()
	a := New(cfg)
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- a.Run(ctx) }()
	t.Cleanup(func() {
		cancel()
		select {
		case <-done:
		case <-time.After(5 * time.Second):
			t.Error("agent did not stop")
		}
	})
	return a, done
}

func TestPageActivationAndPaste(t *testing.T) {
	c := startCoordinator(t)
	cb := clip.NewMemory("")
	a, _ := runAgent(t, Config{
		Source:    "browser",
		Page:      "https://docs.example.com/page",
		Clipboard: cb,
		Dial:      pipeDialer(t, c, agentpeer.Options{}),
	})
	require.Eventually(t, func() bool { return c.ActiveSource() == "docs.example.com" }, time.Second, 5*time.Millisecond)

	ctx := context.Background()
	require.True(t, c.Dispatch(ctx, message.AddToHistory{Text: "abc", Source: "x"}).Success)
	require.True(t, c.Dispatch(ctx, message.PasteLast{}).Success)

	require.Eventually(t, func() bool { return a.Stats().Pasted == 1 }, time.Second, 5*time.Millisecond)
	text, err := cb.ReadText(ctx)
	require.NoError(t, err)
	assert.Equal(t, "abc", text)
}

func TestCapture(t *testing.T) {
	c := startCoordinator(t)
	cb := clip.NewMemory("already there")
	a, _ := runAgent(t, Config{
		Source:       "browser",
		Page:         "https://mail.example.org/inbox",
		Clipboard:    cb,
		Capture:      true,
		PollInterval: 10 * time.Millisecond,
		Dial:         pipeDialer(t, c, agentpeer.Options{}),
	})
	require.Eventually(t, func() bool { return a.Stats().Sessions == 1 }, time.Second, 5*time.Millisecond)
	require.Eventually(t, func() bool { return c.ActiveSource() != "" }, time.Second, 5*time.Millisecond)

	require.NoError(t, cb.WriteText("copied"))
	require.Eventually(t, func() bool { return a.Stats().Captured == 1 }, time.Second, 5*time.Millisecond)

	ctx := context.Background()
	hist, err := c.Engine().History(ctx)
	require.NoError(t, err)
	require.Len(t, hist, 1)
	assert.Equal(t, "copied", hist[0].Text)
	assert.Equal(t, "mail.example.org", hist[0].Source)

	// A paste written by the agent is not captured back.
	require.True(t, c.Dispatch(ctx, message.AddToHistory{Text: "older"}).Success)
	require.True(t, c.Dispatch(ctx, message.MenuClick{MenuItemID: "paste-item-1"}).Success)
	require.Eventually(t, func() bool { return a.Stats().Pasted == 1 }, time.Second, 5*time.Millisecond)
	time.Sleep(50 * time.Millisecond)
	assert.Equal(t, int64(1), a.Stats().Captured)
}

func TestReconnectsAfterDialFailure(t *testing.T) {
	c := startCoordinator(t)
	serve := pipeDialer(t, c, agentpeer.Options{})
	var dials atomic.Int32
	a, _ := runAgent(t, Config{
		Source: "flaky",
		Dial: func(ctx context.Context) (net.Conn, error) {
			if dials.Add(1) == 1 {
				return nil, errors.New("connection refused")
			}
			return serve(ctx)
		},
	})
	require.Eventually(t, func() bool { return a.Stats().Sessions == 1 }, 5*time.Second, 10*time.Millisecond)
	assert.Equal(t, int32(2), dials.Load())
}

func TestAuthFailureStops(t *testing.T) {
	c := startCoordinator(t)
	_, done := runAgent(t, Config{
		Token: "wrong",
		Dial:  pipeDialer(t, c, agentpeer.Options{Token: "right"}),
	})
	select {
	case err := <-done:
		require.Error(t, err)
		assert.Contains(t, err.Error(), agentpeer.ErrAuth)
		done <- err
	case <-time.After(5 * time.Second):
		t.Fatal("agent kept retrying")
	}
}

func TestPageHost(t *testing.T) {
	tests := map[string]string{
		"":                           "",
		"https://Docs.Example.com/a": "docs.example.com",
		"example.com":                "example.com",
		"http://localhost:8080/x":    "localhost",
		"not a url/with space":       "",
	}
	for in, want := range tests {
		assert.Equal(t, want, pageHost(in), in)
	}
}
