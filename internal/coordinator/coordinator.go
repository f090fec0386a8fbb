// Package coordinator is the long-lived owner of the clipboard history: it
// wires the store, the history engine, the notification hub, the menu
// projection and the clipboard watcher together, and serves every protocol
// request through a single Dispatch entry point.
package coordinator

import (
	"context"
	"log/slog"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/cockroachdb/errors"

	"go.klb.dev/clipkeep/internal/clip"
	"go.klb.dev/clipkeep/internal/history"
	"go.klb.dev/clipkeep/internal/hub"
	"go.klb.dev/clipkeep/internal/menu"
	"go.klb.dev/clipkeep/internal/message"
	"go.klb.dev/clipkeep/internal/model"
	"go.klb.dev/clipkeep/internal/store"
	"go.klb.dev/clipkeep/internal/watcher"
)

// snippetTitleLimit bounds titles generated from a menu selection.
const snippetTitleLimit = 30

// Config describes the collaborators of a Coordinator.
type Config struct {
	Store store.Store
	// Clipboard is polled by the watcher. Nil disables the watcher.
	Clipboard clip.Backend
	// PollInterval overrides watcher.DefaultInterval.
	PollInterval time.Duration
	// EngineOptions are passed to history.New.
	EngineOptions []history.Option
}

// Status is a point-in-time view of the running coordinator.
type Status struct {
	StartedAt    time.Time                    `json:"startedAt"`
	Peers        []message.PeerInfo           `json:"peers"`
	ActiveSource string                       `json:"activeSource,omitempty"`
	Watcher      *watcher.Stats               `json:"watcher,omitempty"`
	Clipboard    string                       `json:"clipboard,omitempty"`
	MenuBuilds   int                          `json:"menuBuilds"`
	Sent         map[message.NotifyAction]int `json:"sent"`
}

// Snapshot is the full state a UI needs to render.
type Snapshot struct {
	History  []model.HistoryEntry `json:"clipboardHistory"`
	Snippets []model.Snippet      `json:"snippets"`
	Settings model.Settings       `json:"settings"`
	Menu     []menu.Item          `json:"menu"`
}

// Coordinator serves the request protocol. Create it with New, then Start
// it; Close tears it down.
type Coordinator struct {
	store   store.Store
	hub     *hub.Hub
	menu    *menu.Projection
	engine  *history.Engine
	watcher *watcher.Watcher
	clip    clip.Backend
	log     *slog.Logger

	mu         sync.Mutex
	runCtx     context.Context
	startedAt  time.Time
	activeHost string
	activePeer string
}

var _ message.Handler = (*Coordinator)(nil)

// New builds a stopped Coordinator.
func New(cfg Config) *Coordinator {
	c := &Coordinator{
		store: cfg.Store,
		hub:   hub.New(),
		menu:  menu.New(),
		clip:  cfg.Clipboard,
		log:   slog.With("component", "coordinator"),
	}
	c.engine = history.New(cfg.Store, c.hub, c.menu, cfg.EngineOptions...)
	if cfg.Clipboard != nil {
		c.watcher = watcher.New(cfg.Clipboard, c.engine, c.engine, watcher.Options{
			Interval: cfg.PollInterval,
			Source:   c.ActiveSource,
		})
	}
	c.hub.SetPeerChangeListener(c)
	return c
}

// Start initialises the store and launches the clipboard watcher. The
// watcher runs until ctx is cancelled or Close is called.
func (c *Coordinator) Start(ctx context.Context) error {
	if err := c.engine.Init(ctx); err != nil {
		return errors.Wrap(err, "init store")
	}
	c.mu.Lock()
	c.runCtx = ctx
	c.startedAt = time.Now()
	c.mu.Unlock()

	if c.watcher != nil {
		c.watcher.Start(ctx)
	}
	c.log.Info("coordinator started", "watcher", c.watcher != nil)
	return nil
}

// Close stops the watcher. The store is owned by the caller.
func (c *Coordinator) Close() error {
	if c.watcher != nil {
		c.watcher.Stop()
	}
	if c.clip != nil {
		c.clip.Close()
	}
	c.log.Info("coordinator stopped")
	return nil
}

// Hub returns the notification hub transports register subscribers with.
func (c *Coordinator) Hub() *hub.Hub { return c.hub }

// Engine returns the history engine.
func (c *Coordinator) Engine() *history.Engine { return c.engine }

// Menu returns the context-menu projection.
func (c *Coordinator) Menu() *menu.Projection { return c.menu }

// Dispatch serves one request. It never returns a Go error: failures are
// reported in the response.
func (c *Coordinator) Dispatch(ctx context.Context, r message.Request) message.Response {
	resp := r.Dispatch(ctx, c)
	if !resp.Success {
		c.log.Debug("request failed", "action", r.Action(), "sender", message.SenderOf(ctx), "err", resp.Error)
	}
	return resp
}

// DispatchJSON decodes a tagged request object and serves it.
func (c *Coordinator) DispatchJSON(ctx context.Context, b []byte) message.Response {
	r, err := message.DecodeRequest(b)
	if err != nil {
		if errors.Is(err, message.ErrUnknownAction) {
			return message.Fail(message.ErrUnknownAction)
		}
		return message.Fail(err)
	}
	return c.Dispatch(ctx, r)
}

// Snapshot returns the stored state and the current menu.
func (c *Coordinator) Snapshot(ctx context.Context) (Snapshot, error) {
	b, err := c.engine.Export(ctx)
	if err != nil {
		return Snapshot{}, err
	}
	return Snapshot{
		History:  b.ClipboardHistory,
		Snippets: b.Snippets,
		Settings: b.Settings,
		Menu:     c.menu.Items(),
	}, nil
}

// Export returns the backup document for the stored state.
func (c *Coordinator) Export(ctx context.Context) (model.Backup, error) {
	return c.engine.Export(ctx)
}

// Status reports peers, watcher counters and notification totals.
func (c *Coordinator) Status() Status {
	c.mu.Lock()
	st := Status{StartedAt: c.startedAt, ActiveSource: c.activeHost}
	c.mu.Unlock()

	st.Peers = c.hub.Peers()
	st.Sent = c.hub.Sent()
	st.MenuBuilds = c.menu.Builds()
	if c.watcher != nil {
		ws := c.watcher.Stats()
		st.Watcher = &ws
	}
	if c.clip != nil {
		st.Clipboard = c.clip.Name()
	}
	return st
}

// Observe tells the watcher that text was written to the clipboard by the
// coordinator itself.
func (c *Coordinator) Observe(text string) {
	if c.watcher != nil {
		c.watcher.Observe(text)
	}
}

// ActiveSource returns the hostname of the foreground page, or "".
func (c *Coordinator) ActiveSource() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.activeHost
}

// OnPeerChange forgets the active page once the agent that reported it
// disconnects.
func (c *Coordinator) OnPeerChange(peers []message.PeerInfo) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.activePeer == "" {
		return
	}
	for _, p := range peers {
		if p.ID == c.activePeer {
			return
		}
	}
	c.log.Debug("active page agent left", "peer", c.activePeer, "source", c.activeHost)
	c.activePeer = ""
	c.activeHost = ""
}

// notify delivers a page-directed notification to the active page's agent
// when it is still attached, and to every subscriber otherwise.
func (c *Coordinator) notify(n message.Notification) {
	if n.Action.PageDirected() {
		c.mu.Lock()
		peer := c.activePeer
		c.mu.Unlock()
		if peer != "" && c.hub.SendTo(peer, n) {
			return
		}
	}
	c.hub.Broadcast(n)
}

func (c *Coordinator) pasteEntry(ctx context.Context, i int) message.Response {
	e, ok, err := c.engine.EntryAt(ctx, i)
	if err != nil {
		return message.Fail(err)
	}
	if !ok {
		return message.OK()
	}
	c.notify(message.Notification{Action: message.NotifyPasteText, Text: e.Text})
	return message.OKWith(e)
}

func respond(err error) message.Response {
	if err != nil {
		return message.Fail(err)
	}
	return message.OK()
}

func respondWith(v any, err error) message.Response {
	if err != nil {
		return message.Fail(err)
	}
	return message.OKWith(v)
}

func hostname(raw string) string {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return ""
	}
	u, err := url.Parse(raw)
	if err != nil || u.Hostname() == "" {
		// Bare hostnames ("example.com") parse as a path.
		if !strings.ContainsAny(raw, "/ ") {
			return strings.ToLower(raw)
		}
		return ""
	}
	return strings.ToLower(u.Hostname())
}
