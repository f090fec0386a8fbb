// Package agentpeer serves capture agents over the line-framed agent
// protocol (see package wire) and provides the matching client.
//
// On the coordinator side each connection becomes a hub subscriber: it
// receives notifications, sends requests that are dispatched to the
// coordinator, and is pinged periodically so dead agents are dropped.
package agentpeer

import (
	"context"
	"crypto/subtle"
	"encoding/base64"
	"fmt"
	"io"
	"log/slog"
	"net"
	"sync"
	"sync/atomic"
	"time"

	"github.com/cockroachdb/errors"

	"go.klb.dev/clipkeep/internal/crypto"
	"go.klb.dev/clipkeep/internal/hub"
	"go.klb.dev/clipkeep/internal/message"
	"go.klb.dev/clipkeep/internal/wire"
)

const (
	defaultPingInterval = 15 * time.Second
	defaultPongTimeout  = 10 * time.Second
	defaultAuthTimeout  = 10 * time.Second

	sendQueue = 64
)

// ErrAuth is the error frame text sent to agents presenting a bad token.
const ErrAuth = "auth_failed"

// Dispatcher serves decoded-on-demand requests.
type Dispatcher interface {
	DispatchJSON(ctx context.Context, b []byte) message.Response
}

// Options configure a Peer. Zero durations take the defaults.
type Options struct {
	Token        string
	Key          *crypto.Key
	PingInterval time.Duration
	PongTimeout  time.Duration
	AuthTimeout  time.Duration
}

func (o *Options) defaults() {
	if o.PingInterval <= 0 {
		o.PingInterval = defaultPingInterval
	}
	if o.PongTimeout <= 0 {
		o.PongTimeout = defaultPongTimeout
	}
	if o.AuthTimeout <= 0 {
		o.AuthTimeout = defaultAuthTimeout
	}
}

var seq atomic.Uint64

// Peer is one agent connection.
type Peer struct {
	id   string
	conn *wire.Conn
	hub  *hub.Hub
	d    Dispatcher
	opts Options
	log  *slog.Logger

	sendCh chan message.Notification
	pongCh chan struct{}
	done   chan struct{}

	mu       sync.RWMutex
	info     message.PeerInfo
	lastSeen atomic.Int64 // UnixNano
}

// New wraps conn.
func New(conn net.Conn, h *hub.Hub, d Dispatcher, opts Options) *Peer {
	opts.defaults()
	now := time.Now()
	addr := conn.RemoteAddr().String()
	id := fmt.Sprintf("agent:%s#%d", addr, seq.Add(1))
	p := &Peer{
		id:     id,
		conn:   wire.New(conn, opts.Key),
		hub:    h,
		d:      d,
		opts:   opts,
		log:    slog.With("component", "agentpeer", "peer", id),
		sendCh: make(chan message.Notification, sendQueue),
		pongCh: make(chan struct{}, 1),
		done:   make(chan struct{}),
		info: message.PeerInfo{
			ID:          id,
			Addr:        addr,
			Role:        message.RoleAgent,
			ConnectedAt: now,
			LastSeen:    now,
		},
	}
	p.lastSeen.Store(now.UnixNano())
	return p
}

func (p *Peer) ID() string { return p.id }

func (p *Peer) Info() message.PeerInfo {
	p.mu.RLock()
	defer p.mu.RUnlock()
	info := p.info
	info.LastSeen = time.Unix(0, p.lastSeen.Load())
	return info
}

// Send queues n for delivery. A full queue drops the notification.
func (p *Peer) Send(n message.Notification) {
	select {
	case <-p.done:
	case p.sendCh <- n:
	default:
		p.log.Warn("send queue full, dropping", "action", n.Action)
	}
}

func (p *Peer) alive() {
	p.lastSeen.Store(time.Now().UnixNano())
	select {
	case p.pongCh <- struct{}{}:
	default:
	}
}

func (p *Peer) applyAuth(f *message.Frame) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.info.Source = f.Source
	if f.Role != "" {
		p.info.Role = f.Role
	}
}

func (p *Peer) authenticate() bool {
	p.conn.SetReadTimeout(p.opts.AuthTimeout)
	f, err := p.conn.ReadFrame()
	p.conn.SetReadTimeout(0)
	if err != nil {
		p.log.Warn("auth read failed", "err", err)
		return false
	}
	token, _ := base64.StdEncoding.DecodeString(f.Payload)
	if f.Type != message.FrameAuth || subtle.ConstantTimeCompare(token, []byte(p.opts.Token)) != 1 {
		p.log.Warn("auth failed")
		_ = p.conn.WriteFrame(&message.Frame{Type: message.FrameError, Error: ErrAuth})
		return false
	}
	p.applyAuth(f)
	p.log.Info("authenticated", "source", f.Source)
	return true
}

// Serve authenticates the agent, registers it with the hub and runs until
// the connection drops or ctx is cancelled.
func (p *Peer) Serve(ctx context.Context) {
	defer p.conn.Close()

	if p.opts.Token != "" && !p.authenticate() {
		return
	}

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	defer close(p.done)

	p.hub.Register(p)
	defer p.hub.Unregister(p)

	go func() {
		<-ctx.Done()
		_ = p.conn.Close()
	}()
	go p.writeLoop(ctx)
	go p.pingLoop(ctx)

	p.readLoop(message.WithSender(ctx, p.id))
}

func (p *Peer) writeLoop(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case n := <-p.sendCh:
			if err := p.conn.WriteFrame(&message.Frame{Type: message.FrameNotify, Notification: &n}); err != nil {
				p.log.Debug("write failed", "err", err)
				_ = p.conn.Close()
				return
			}
		}
	}
}

func (p *Peer) pingLoop(ctx context.Context) {
	t := time.NewTicker(p.opts.PingInterval)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-t.C:
		}
		// Drain a stale signal so only traffic after this ping counts.
		select {
		case <-p.pongCh:
		default:
		}
		if err := p.conn.WriteFrame(&message.Frame{Type: message.FramePing}); err != nil {
			_ = p.conn.Close()
			return
		}
		select {
		case <-ctx.Done():
			return
		case <-p.pongCh:
		case <-time.After(p.opts.PongTimeout):
			p.log.Warn("pong timeout, closing")
			_ = p.conn.Close()
			return
		}
	}
}

func (p *Peer) readLoop(ctx context.Context) {
	for {
		f, err := p.conn.ReadFrame()
		if err != nil {
			if errors.Is(err, io.EOF) || errors.Is(err, net.ErrClosed) {
				p.log.Info("connection closed")
			} else {
				p.log.Info("connection closed", "err", err)
			}
			return
		}
		p.alive()

		switch f.Type {
		case message.FrameRequest:
			resp := p.d.DispatchJSON(ctx, f.Request)
			if err := p.conn.WriteFrame(&message.Frame{Type: message.FrameResponse, ID: f.ID, Response: &resp}); err != nil {
				p.log.Debug("response write failed", "err", err)
				return
			}
		case message.FrameAuth:
			p.applyAuth(f)
		case message.FramePing:
			_ = p.conn.WriteFrame(&message.Frame{Type: message.FramePong})
		case message.FramePong:
			// handled by alive
		default:
			p.log.Warn("unexpected frame", "type", f.Type)
		}
	}
}
