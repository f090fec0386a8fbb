// Package localpeer implements the hub subscriber that owns the daemon's
// system clipboard.
//
// When no page agent is in the foreground, page-directed notifications fall
// back to a broadcast. The local peer turns a pasteText notification into a
// clipboard write so the chosen entry is ready to paste anywhere on the
// desktop.
package localpeer

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"go.klb.dev/clipkeep/internal/clip"
	"go.klb.dev/clipkeep/internal/hub"
	"go.klb.dev/clipkeep/internal/logging"
	"go.klb.dev/clipkeep/internal/message"
)

// PeerID is the fixed hub ID of the local peer.
const PeerID = "local"

// Peer is the hub subscriber that owns the server-side clipboard.
type Peer struct {
	h       *hub.Hub
	backend clip.Backend
	observe func(string)
	sendCh  chan message.Notification

	mu       sync.RWMutex
	info     message.PeerInfo
	lastSeen time.Time
	writes   int
}

// New creates the local peer but does not start it. observe, when non-nil,
// is told about every text written so the clipboard watcher can skip it.
func New(h *hub.Hub, backend clip.Backend, source string, observe func(string)) *Peer {
	now := time.Now()
	if observe == nil {
		observe = func(string) {}
	}
	return &Peer{
		h:       h,
		backend: backend,
		observe: observe,
		sendCh:  make(chan message.Notification, 64),
		info: message.PeerInfo{
			ID:          PeerID,
			Source:      source,
			Addr:        "local",
			Role:        message.RoleLocal,
			ConnectedAt: now,
			LastSeen:    now,
		},
		lastSeen: now,
	}
}

func (p *Peer) ID() string { return PeerID }

func (p *Peer) Info() message.PeerInfo {
	p.mu.RLock()
	defer p.mu.RUnlock()
	info := p.info
	info.LastSeen = p.lastSeen
	return info
}

// Send implements hub.Subscriber.
func (p *Peer) Send(n message.Notification) {
	select {
	case p.sendCh <- n:
	default:
		slog.Warn("local peer send channel full, dropping", "action", n.Action)
	}
}

// Writes reports how many pastes reached the clipboard.
func (p *Peer) Writes() int {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.writes
}

// Run registers with the hub and applies notifications until ctx is
// cancelled.
func (p *Peer) Run(ctx context.Context) {
	p.h.Register(p)
	defer p.h.Unregister(p)

	slog.Info("local clipboard peer started", "backend", p.backend.Name())

	for {
		select {
		case <-ctx.Done():
			return
		case n := <-p.sendCh:
			p.apply(n)
		}
	}
}

func (p *Peer) apply(n message.Notification) {
	if n.Action != message.NotifyPasteText || n.Text == "" {
		return
	}
	p.observe(n.Text)
	if err := p.backend.WriteText(n.Text); err != nil {
		slog.Error("local clipboard write failed", "err", err)
		return
	}
	p.mu.Lock()
	p.writes++
	p.lastSeen = time.Now()
	p.mu.Unlock()
	slog.Debug("local clipboard updated", "preview", logging.Preview(n.Text, 50))
}
