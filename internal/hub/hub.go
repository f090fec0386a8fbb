// Package hub implements the coordinator's notification fan-out.
// It is transport-agnostic: subscribers register, receive notifications via a
// non-blocking Send, and are dropped when their owning connection closes.
// Publishing never blocks on, nor fails because of, a missing subscriber.
package hub

import (
	"log/slog"
	"sort"
	"sync"

	"go.klb.dev/clipkeep/internal/message"
)

// Subscriber is anything that can receive notifications from the hub.
type Subscriber interface {
	ID() string
	Info() message.PeerInfo
	// Send delivers a notification. Must be non-blocking.
	Send(message.Notification)
}

// PeerChangeListener is notified whenever the set of registered subscribers
// changes.
type PeerChangeListener interface {
	OnPeerChange(peers []message.PeerInfo)
}

// Hub routes notifications to all registered subscribers.
type Hub struct {
	mu   sync.RWMutex
	subs map[string]Subscriber
	sent map[message.NotifyAction]int

	listenerMu sync.RWMutex
	listener   PeerChangeListener
}

// New returns an empty Hub.
func New() *Hub {
	return &Hub{
		subs: make(map[string]Subscriber),
		sent: make(map[message.NotifyAction]int),
	}
}

// SetPeerChangeListener registers a listener that is called whenever the
// subscriber set changes. Only one listener is supported; calling again
// replaces it.
func (h *Hub) SetPeerChangeListener(l PeerChangeListener) {
	h.listenerMu.Lock()
	h.listener = l
	h.listenerMu.Unlock()
}

// Register adds a subscriber. A subscriber with the same ID replaces the
// previous registration.
func (h *Hub) Register(s Subscriber) {
	h.mu.Lock()
	h.subs[s.ID()] = s
	total := len(h.subs)
	peers := h.peersLocked()
	h.mu.Unlock()

	info := s.Info()
	slog.Info("subscriber registered",
		"peer", s.ID(),
		"role", info.Role,
		"source", info.Source,
		"total", total,
	)
	h.notifyListener(peers)
}

// Unregister removes a subscriber. Unknown subscribers are ignored.
func (h *Hub) Unregister(s Subscriber) {
	h.mu.Lock()
	cur, ok := h.subs[s.ID()]
	if !ok || cur != s {
		h.mu.Unlock()
		return
	}
	delete(h.subs, s.ID())
	total := len(h.subs)
	peers := h.peersLocked()
	h.mu.Unlock()

	slog.Info("subscriber unregistered", "peer", s.ID(), "total", total)
	h.notifyListener(peers)
}

// Broadcast delivers n to every subscriber. It returns the number of
// subscribers reached; zero is not an error.
func (h *Hub) Broadcast(n message.Notification) int {
	h.mu.Lock()
	targets := make([]Subscriber, 0, len(h.subs))
	for _, s := range h.subs {
		targets = append(targets, s)
	}
	h.sent[n.Action]++
	h.mu.Unlock()

	for _, s := range targets {
		s.Send(n)
	}
	slog.Debug("notification broadcast", "action", n.Action, "subscribers", len(targets))
	return len(targets)
}

// SendTo delivers n to the subscriber with the given ID only. It reports
// whether that subscriber is registered.
func (h *Hub) SendTo(id string, n message.Notification) bool {
	h.mu.Lock()
	s, ok := h.subs[id]
	if ok {
		h.sent[n.Action]++
	}
	h.mu.Unlock()

	if !ok {
		return false
	}
	s.Send(n)
	slog.Debug("notification sent", "action", n.Action, "peer", id)
	return true
}

// Has reports whether a subscriber with the given ID is registered.
func (h *Hub) Has(id string) bool {
	h.mu.RLock()
	defer h.mu.RUnlock()
	_, ok := h.subs[id]
	return ok
}

// Peers returns a snapshot of all subscriber metadata sorted by ID.
func (h *Hub) Peers() []message.PeerInfo {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.peersLocked()
}

// Sent returns how many notifications of each action have been published.
func (h *Hub) Sent() map[message.NotifyAction]int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	out := make(map[message.NotifyAction]int, len(h.sent))
	for k, v := range h.sent {
		out[k] = v
	}
	return out
}

// Must be called with h.mu held.
func (h *Hub) peersLocked() []message.PeerInfo {
	out := make([]message.PeerInfo, 0, len(h.subs))
	for _, s := range h.subs {
		out = append(out, s.Info())
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

func (h *Hub) notifyListener(peers []message.PeerInfo) {
	h.listenerMu.RLock()
	l := h.listener
	h.listenerMu.RUnlock()
	if l != nil {
		l.OnPeerChange(peers)
	}
}
