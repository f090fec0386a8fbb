// Package agent runs a capture agent: a long-lived connection to the
// coordinator that reports the foreground page, applies paste requests to a
// local clipboard and, optionally, captures local copies into the history.
//
// The connection is re-established with exponential back-off until the
// context is cancelled.
package agent

import (
	"context"
	"log/slog"
	"net"
	"net/url"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/cockroachdb/errors"

	"go.klb.dev/clipkeep/internal/agentpeer"
	"go.klb.dev/clipkeep/internal/clip"
	"go.klb.dev/clipkeep/internal/crypto"
	"go.klb.dev/clipkeep/internal/logging"
	"go.klb.dev/clipkeep/internal/message"
)

const (
	minBackoff = time.Second
	maxBackoff = 30 * time.Second

	defaultPoll    = time.Second
	requestTimeout = 10 * time.Second
)

// Config describes an agent.
type Config struct {
	Addr   string
	Token  string
	Key    *crypto.Key
	Source string
	// Page is the URL reported as the foreground page on every connect.
	Page string
	// Clipboard receives pasteText notifications. Nil disables pasting.
	Clipboard clip.Backend
	// Capture polls Clipboard and sends new text to the history.
	Capture      bool
	PollInterval time.Duration
	// Dial overrides the TCP dialer.
	Dial func(ctx context.Context) (net.Conn, error)
}

// Stats are point-in-time counters.
type Stats struct {
	Sessions int64 `json:"sessions"`
	Pasted   int64 `json:"pasted"`
	Captured int64 `json:"captured"`
}

// Agent is one capture agent.
type Agent struct {
	cfg Config
	log *slog.Logger

	mu   sync.Mutex
	last string

	sessions atomic.Int64
	pasted   atomic.Int64
	captured atomic.Int64
}

// New returns an Agent for cfg.
func New(cfg Config) *Agent {
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = defaultPoll
	}
	if cfg.Dial == nil {
		addr := cfg.Addr
		cfg.Dial = func(ctx context.Context) (net.Conn, error) {
			d := net.Dialer{Timeout: 10 * time.Second}
			return d.DialContext(ctx, "tcp", addr)
		}
	}
	return &Agent{cfg: cfg, log: slog.With("component", "agent", "source", cfg.Source)}
}

// Stats returns the agent counters.
func (a *Agent) Stats() Stats {
	return Stats{
		Sessions: a.sessions.Load(),
		Pasted:   a.pasted.Load(),
		Captured: a.captured.Load(),
	}
}

// Run connects and reconnects until ctx is cancelled. An authentication
// failure ends Run with an error.
func (a *Agent) Run(ctx context.Context) error {
	delay := minBackoff
	for {
		a.log.Info("connecting", "addr", a.cfg.Addr)
		conn, err := a.cfg.Dial(ctx)
		if err == nil {
			delay = minBackoff
			err = a.session(ctx, conn)
			if ctx.Err() != nil {
				return nil
			}
			if isAuthFailure(err) {
				return err
			}
			a.log.Warn("disconnected, reconnecting", "err", err)
		} else {
			a.log.Warn("connection failed", "err", err, "retry_in", delay)
		}

		select {
		case <-ctx.Done():
			return nil
		case <-time.After(delay):
		}
		delay = min(delay*2, maxBackoff)
	}
}

func isAuthFailure(err error) bool {
	return err != nil && strings.Contains(err.Error(), agentpeer.ErrAuth)
}

// session serves one connection until it ends.
func (a *Agent) session(ctx context.Context, conn net.Conn) error {
	c, err := agentpeer.NewClient(conn, agentpeer.ClientOptions{
		Token:  a.cfg.Token,
		Key:    a.cfg.Key,
		Source: a.cfg.Source,
		Role:   message.RoleAgent,
	})
	if err != nil {
		_ = conn.Close()
		return err
	}
	defer c.Close()
	a.sessions.Add(1)
	a.log.Info("connected", "encrypted", a.cfg.Key != nil)

	if a.cfg.Page != "" {
		if err := a.request(ctx, c, message.PageActivated{URL: a.cfg.Page}); err != nil {
			return err
		}
	}

	var poll <-chan time.Time
	if a.cfg.Capture && a.cfg.Clipboard != nil {
		t := time.NewTicker(a.cfg.PollInterval)
		defer t.Stop()
		poll = t.C
		a.primeLast(ctx)
	}

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-c.Done():
			return c.Err()
		case n := <-c.Notifications():
			a.handle(n)
		case <-poll:
			a.capture(ctx, c)
		}
	}
}

func (a *Agent) request(ctx context.Context, c *agentpeer.Client, r message.Request) error {
	ctx, cancel := context.WithTimeout(ctx, requestTimeout)
	defer cancel()
	resp, err := c.Do(ctx, r)
	if err != nil {
		return errors.Wrapf(err, "%s", r.Action())
	}
	if !resp.Success {
		return errors.Newf("%s: %s", r.Action(), resp.Error)
	}
	return nil
}

func (a *Agent) handle(n message.Notification) {
	switch n.Action {
	case message.NotifyPasteText:
		if a.cfg.Clipboard == nil || n.Text == "" {
			return
		}
		a.mu.Lock()
		a.last = n.Text
		a.mu.Unlock()
		if err := a.cfg.Clipboard.WriteText(n.Text); err != nil {
			a.log.Error("clipboard write failed", "err", err)
			return
		}
		a.pasted.Add(1)
		a.log.Info("pasted", "preview", logging.Preview(n.Text, 50))
	case message.NotifyShowQuickPaste, message.NotifyHideQuickPaste:
		a.log.Info("quick paste", "action", n.Action)
	default:
		a.log.Debug("notification", "action", n.Action)
	}
}

// primeLast records the clipboard content present at connect time so it
// is not captured.
func (a *Agent) primeLast(ctx context.Context) {
	text, err := a.cfg.Clipboard.ReadText(ctx)
	if err != nil {
		return
	}
	a.mu.Lock()
	a.last = text
	a.mu.Unlock()
}

func (a *Agent) capture(ctx context.Context, c *agentpeer.Client) {
	text, err := a.cfg.Clipboard.ReadText(ctx)
	if err != nil {
		a.log.Debug("clipboard read failed", "err", err)
		return
	}
	a.mu.Lock()
	if text == a.last || strings.TrimSpace(text) == "" {
		a.mu.Unlock()
		return
	}
	a.last = text
	a.mu.Unlock()

	if err := a.request(ctx, c, message.AddToHistory{Text: text, Source: pageHost(a.cfg.Page)}); err != nil {
		a.log.Warn("capture failed", "err", err)
		return
	}
	a.captured.Add(1)
	a.log.Debug("captured", "preview", logging.Preview(text, 50))
}

// pageHost returns the hostname of page, or "" when it has none.
func pageHost(page string) string {
	if page == "" {
		return ""
	}
	if u, err := url.Parse(page); err == nil && u.Hostname() != "" {
		return strings.ToLower(u.Hostname())
	}
	if !strings.ContainsAny(page, "/ ") {
		return strings.ToLower(page)
	}
	return ""
}
