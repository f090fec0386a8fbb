// Package watcher polls the system clipboard and records new text into the
// history.
//
// A Watcher owns one repeating task. Start runs a first check immediately
// and then one per interval; Stop and Restart act on the task as a unit.
// Checks never overlap, whether they come from the ticker or from a direct
// call to Check.
package watcher

import (
	"context"
	"log/slog"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"go.klb.dev/clipkeep/internal/clip"
	"go.klb.dev/clipkeep/internal/exclude"
	"go.klb.dev/clipkeep/internal/logging"
	"go.klb.dev/clipkeep/internal/model"
)

// DefaultInterval is the polling frequency used when none is configured.
const DefaultInterval = time.Second

// Recorder stores captured text.
type Recorder interface {
	AddToHistory(ctx context.Context, text, source string) (*model.HistoryEntry, error)
}

// SettingsSource supplies the current exclusion list.
type SettingsSource interface {
	Settings(ctx context.Context) (model.Settings, error)
}

// Options tunes a Watcher.
type Options struct {
	// Interval between checks. Default: DefaultInterval.
	Interval time.Duration
	// Source returns the hostname of the active page, or "" when unknown.
	Source func() string
	// Logger overrides the default logger.
	Logger *slog.Logger
}

// Stats are point-in-time counters.
type Stats struct {
	Running  bool  `json:"running"`
	Checks   int64 `json:"checks"`
	Captured int64 `json:"captured"`
	Excluded int64 `json:"excluded"`
	Failed   int64 `json:"readFailures"`
}

// Watcher is the clipboard polling task.
type Watcher struct {
	clip     clip.Backend
	rec      Recorder
	settings SettingsSource
	source   func() string
	interval time.Duration
	log      *slog.Logger

	// checkMu serializes cycles and guards last.
	checkMu sync.Mutex
	last    string

	// runMu guards the running task.
	runMu  sync.Mutex
	cancel context.CancelFunc
	done   chan struct{}

	checks   atomic.Int64
	captured atomic.Int64
	excluded atomic.Int64
	failed   atomic.Int64
}

// New returns a stopped Watcher.
func New(cb clip.Backend, rec Recorder, settings SettingsSource, opts Options) *Watcher {
	if opts.Interval <= 0 {
		opts.Interval = DefaultInterval
	}
	if opts.Source == nil {
		opts.Source = func() string { return "" }
	}
	if opts.Logger == nil {
		opts.Logger = slog.With("component", "watcher")
	}
	return &Watcher{
		clip:     cb,
		rec:      rec,
		settings: settings,
		source:   opts.Source,
		interval: opts.Interval,
		log:      opts.Logger,
	}
}

// Start launches the polling task. It is a no-op if the task is running.
// The task stops when ctx is cancelled or Stop is called.
func (w *Watcher) Start(ctx context.Context) {
	w.runMu.Lock()
	defer w.runMu.Unlock()
	w.startLocked(ctx)
}

// Stop halts the polling task and waits for an in-flight check to finish.
func (w *Watcher) Stop() {
	w.runMu.Lock()
	defer w.runMu.Unlock()
	w.stopLocked()
}

// Restart stops and starts the task as one step.
func (w *Watcher) Restart(ctx context.Context) {
	w.runMu.Lock()
	defer w.runMu.Unlock()
	w.stopLocked()
	w.startLocked(ctx)
}

// Running reports whether the polling task is active.
func (w *Watcher) Running() bool {
	w.runMu.Lock()
	defer w.runMu.Unlock()
	return w.running()
}

func (w *Watcher) running() bool {
	if w.done == nil {
		return false
	}
	select {
	case <-w.done:
		return false
	default:
		return true
	}
}

func (w *Watcher) startLocked(ctx context.Context) {
	if w.running() {
		return
	}
	ctx, cancel := context.WithCancel(ctx)
	done := make(chan struct{})
	w.cancel, w.done = cancel, done
	go w.loop(ctx, done)
	w.log.Info("clipboard polling started", "interval", w.interval, "backend", w.clip.Name())
}

func (w *Watcher) stopLocked() {
	if w.cancel == nil {
		return
	}
	w.cancel()
	<-w.done
	w.cancel = nil
	w.log.Info("clipboard polling stopped")
}

func (w *Watcher) loop(ctx context.Context, done chan struct{}) {
	defer close(done)
	t := time.NewTicker(w.interval)
	defer t.Stop()

	w.Check(ctx)
	for {
		select {
		case <-ctx.Done():
			return
		case <-t.C:
			w.Check(ctx)
		}
	}
}

// Check runs one cycle and reports whether new text was recorded.
func (w *Watcher) Check(ctx context.Context) bool {
	w.checkMu.Lock()
	defer w.checkMu.Unlock()
	w.checks.Add(1)

	source := w.source()
	if source == "" {
		source = model.UnknownSource
	}

	s, err := w.settings.Settings(ctx)
	if err != nil {
		w.log.Warn("load settings", "err", err)
		return false
	}
	rules, err := exclude.Compile(s.ExcludedSites)
	if err != nil {
		w.log.Debug("exclusion list", "err", err)
	}
	if rules.Match(source) {
		w.excluded.Add(1)
		return false
	}

	text, err := w.clip.ReadText(ctx)
	if err != nil {
		w.failed.Add(1)
		w.log.Debug("clipboard read failed", "err", err)
		return false
	}
	if text == w.last || strings.TrimSpace(text) == "" {
		return false
	}
	w.last = text
	w.log.Debug("clipboard changed", "source", source, "preview", logging.Preview(text, 50))

	entry, err := w.rec.AddToHistory(ctx, text, source)
	if err != nil {
		w.log.Warn("record clipboard text", "err", err)
		return false
	}
	if entry == nil {
		return false
	}
	w.captured.Add(1)
	return true
}

// Observe records text as already seen, so a write made on behalf of a
// paste is not captured back into the history.
func (w *Watcher) Observe(text string) {
	w.checkMu.Lock()
	w.last = text
	w.checkMu.Unlock()
}

// Stats returns the task counters.
func (w *Watcher) Stats() Stats {
	return Stats{
		Running:  w.Running(),
		Checks:   w.checks.Load(),
		Captured: w.captured.Load(),
		Excluded: w.excluded.Load(),
		Failed:   w.failed.Load(),
	}
}
