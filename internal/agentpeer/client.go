package agentpeer

import (
	"context"
	"encoding/base64"
	"log/slog"
	"net"
	"sync"
	"sync/atomic"
	"time"

	"github.com/cockroachdb/errors"

	"go.klb.dev/clipkeep/internal/crypto"
	"go.klb.dev/clipkeep/internal/message"
	"go.klb.dev/clipkeep/internal/wire"
)

const (
	dialTimeout     = 10 * time.Second
	defaultWatchdog = 45 * time.Second
	watchdogCheck   = 5 * time.Second
)

// ErrClosed is returned for requests on a closed client.
var ErrClosed = errors.New("agent connection closed")

// ClientOptions configure a Client.
type ClientOptions struct {
	Token  string
	Key    *crypto.Key
	Source string
	Role   message.Role
	// Watchdog closes the connection after this long without any frame
	// from the coordinator. Default 45s; the coordinator pings every 15s.
	Watchdog time.Duration
}

// Client is the agent side of a connection.
type Client struct {
	wc   *wire.Conn
	opts ClientOptions
	log  *slog.Logger

	nextID  atomic.Uint64
	mu      sync.Mutex
	pending map[uint64]chan message.Response
	err     error

	notes    chan message.Notification
	done     chan struct{}
	once     sync.Once
	lastRecv atomic.Int64
}

// Dial connects to addr and announces the agent.
func Dial(ctx context.Context, addr string, opts ClientOptions) (*Client, error) {
	d := net.Dialer{Timeout: dialTimeout}
	conn, err := d.DialContext(ctx, "tcp", addr)
	if err != nil {
		return nil, errors.Wrapf(err, "dial %s", addr)
	}
	c, err := NewClient(conn, opts)
	if err != nil {
		_ = conn.Close()
		return nil, err
	}
	return c, nil
}

// NewClient runs the agent protocol over an established connection. It
// sends the AUTH frame and starts reading.
func NewClient(conn net.Conn, opts ClientOptions) (*Client, error) {
	if opts.Role == "" {
		opts.Role = message.RoleAgent
	}
	if opts.Watchdog <= 0 {
		opts.Watchdog = defaultWatchdog
	}
	c := &Client{
		wc:      wire.New(conn, opts.Key),
		opts:    opts,
		log:     slog.With("component", "agent"),
		pending: make(map[uint64]chan message.Response),
		notes:   make(chan message.Notification, sendQueue),
		done:    make(chan struct{}),
	}
	c.lastRecv.Store(time.Now().UnixNano())

	auth := &message.Frame{Type: message.FrameAuth, Source: opts.Source, Role: opts.Role}
	if opts.Token != "" {
		auth.Payload = base64.StdEncoding.EncodeToString([]byte(opts.Token))
	}
	if err := c.wc.WriteFrame(auth); err != nil {
		return nil, errors.Wrap(err, "send auth")
	}
	go c.readLoop()
	go c.watchdog()
	return c, nil
}

// Notifications delivers coordinator notifications. It is never closed;
// select on Done as well.
func (c *Client) Notifications() <-chan message.Notification { return c.notes }

// Done is closed when the connection ends.
func (c *Client) Done() <-chan struct{} { return c.done }

// Err reports why the connection ended.
func (c *Client) Err() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.err
}

// Close ends the connection.
func (c *Client) Close() error {
	c.fail(ErrClosed)
	return nil
}

func (c *Client) fail(err error) {
	c.once.Do(func() {
		c.mu.Lock()
		c.err = err
		for id, ch := range c.pending {
			close(ch)
			delete(c.pending, id)
		}
		c.mu.Unlock()
		_ = c.wc.Close()
		close(c.done)
	})
}

// Do sends r and waits for its response.
func (c *Client) Do(ctx context.Context, r message.Request) (message.Response, error) {
	id := c.nextID.Add(1)
	f, err := message.NewRequestFrame(id, r)
	if err != nil {
		return message.Response{}, err
	}
	ch := make(chan message.Response, 1)

	c.mu.Lock()
	if c.err != nil {
		err := c.err
		c.mu.Unlock()
		return message.Response{}, err
	}
	c.pending[id] = ch
	c.mu.Unlock()

	forget := func() {
		c.mu.Lock()
		delete(c.pending, id)
		c.mu.Unlock()
	}
	if err := c.wc.WriteFrame(f); err != nil {
		forget()
		return message.Response{}, errors.Wrap(err, "send request")
	}

	select {
	case resp, ok := <-ch:
		if !ok {
			return message.Response{}, c.Err()
		}
		return resp, nil
	case <-ctx.Done():
		forget()
		return message.Response{}, ctx.Err()
	}
}

func (c *Client) readLoop() {
	for {
		f, err := c.wc.ReadFrame()
		if err != nil {
			c.fail(errors.Wrap(err, "read"))
			return
		}
		c.lastRecv.Store(time.Now().UnixNano())

		switch f.Type {
		case message.FrameResponse:
			c.mu.Lock()
			ch, ok := c.pending[f.ID]
			delete(c.pending, f.ID)
			c.mu.Unlock()
			if ok && f.Response != nil {
				ch <- *f.Response
			}
		case message.FrameNotify:
			if f.Notification == nil {
				continue
			}
			select {
			case c.notes <- *f.Notification:
			default:
				c.log.Warn("notification queue full, dropping", "action", f.Notification.Action)
			}
		case message.FramePing:
			if err := c.wc.WriteFrame(&message.Frame{Type: message.FramePong, Source: c.opts.Source}); err != nil {
				c.fail(errors.Wrap(err, "pong"))
				return
			}
		case message.FramePong:
		case message.FrameError:
			c.fail(errors.Newf("coordinator error: %s", f.Error))
			return
		}
	}
}

func (c *Client) watchdog() {
	t := time.NewTicker(min(watchdogCheck, c.opts.Watchdog))
	defer t.Stop()
	for {
		select {
		case <-c.done:
			return
		case <-t.C:
			age := time.Since(time.Unix(0, c.lastRecv.Load()))
			if age > c.opts.Watchdog {
				c.log.Warn("coordinator silent too long, closing", "silent_for", age.Round(time.Second))
				c.fail(errors.Newf("no traffic for %s", age.Round(time.Second)))
				return
			}
		}
	}
}
