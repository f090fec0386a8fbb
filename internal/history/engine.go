// Package history owns every mutation of the persisted clipboard history,
// snippet list and settings.
//
// Each operation is a read-modify-write round trip against the store. The
// Engine serializes those round trips behind one mutex, so two producers
// (a capture agent and the clipboard watcher, say) cannot both read the
// same snapshot and clobber each other's write. After every mutation the
// engine re-projects the context menu (history changes only) and publishes
// a best-effort notification.
package history

import (
	"context"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/google/uuid"

	"go.klb.dev/clipkeep/internal/logging"
	"go.klb.dev/clipkeep/internal/message"
	"go.klb.dev/clipkeep/internal/model"
	"go.klb.dev/clipkeep/internal/store"
)

// Broadcaster publishes change notifications. Publishing must not block and
// must not fail when nobody listens.
type Broadcaster interface {
	Broadcast(message.Notification) int
}

// Projector receives the history after each change that can alter the
// context menu.
type Projector interface {
	Rebuild(entries []model.HistoryEntry, enabled bool)
}

// Engine implements the history and snippet operations.
type Engine struct {
	store store.Store
	bcast Broadcaster
	proj  Projector
	now   func() time.Time
	newID func() string
	log   *slog.Logger

	mu sync.Mutex
}

// Option customises an Engine.
type Option func(*Engine)

// WithClock replaces time.Now.
func WithClock(now func() time.Time) Option { return func(e *Engine) { e.now = now } }

// WithIDs replaces the UUIDv7 id generator.
func WithIDs(gen func() string) Option { return func(e *Engine) { e.newID = gen } }

// New returns an Engine over s. bcast and proj may be nil.
func New(s store.Store, bcast Broadcaster, proj Projector, opts ...Option) *Engine {
	e := &Engine{
		store: s,
		bcast: bcast,
		proj:  proj,
		now:   time.Now,
		newID: func() string { return uuid.Must(uuid.NewV7()).String() },
		log:   slog.With("component", "history"),
	}
	for _, o := range opts {
		o(e)
	}
	return e
}

// snapshot is the decoded subset of the store an operation works on.
// Settings always start from the defaults, so stored documents missing a
// field inherit the default for it.
type snapshot struct {
	settings model.Settings
	history  []model.HistoryEntry
	snippets []model.Snippet
	present  map[store.Key]bool
}

func (e *Engine) load(ctx context.Context, keys ...store.Key) (snapshot, error) {
	snap := snapshot{settings: model.DefaultSettings(), present: map[store.Key]bool{}}
	vals, err := e.store.Get(ctx, keys...)
	if err != nil {
		return snap, errors.Wrap(err, "load")
	}
	for _, k := range keys {
		var (
			ok  bool
			err error
		)
		switch k {
		case store.KeySettings:
			ok, err = vals.Decode(k, &snap.settings)
		case store.KeyHistory:
			ok, err = vals.Decode(k, &snap.history)
		case store.KeySnippets:
			ok, err = vals.Decode(k, &snap.snippets)
		}
		if err != nil {
			return snap, err
		}
		snap.present[k] = ok
	}
	return snap, nil
}

func (e *Engine) save(ctx context.Context, kv map[store.Key]any) error {
	vals := store.Values{}
	for k, v := range kv {
		if err := vals.Put(k, v); err != nil {
			return err
		}
	}
	return errors.Wrap(e.store.Set(ctx, vals), "save")
}

func (e *Engine) project(entries []model.HistoryEntry, s model.Settings) {
	if e.proj != nil {
		e.proj.Rebuild(entries, s.EnableContextMenu)
	}
}

func (e *Engine) emit(a message.NotifyAction) {
	if e.bcast != nil {
		e.bcast.Broadcast(message.Notification{Action: a})
	}
}

func (e *Engine) stamp() time.Time {
	return e.now().UTC().Truncate(time.Millisecond)
}

// Init writes defaults for any missing key (first run) and builds the
// initial menu projection.
func (e *Engine) Init(ctx context.Context) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	snap, err := e.load(ctx, store.AllKeys...)
	if err != nil {
		return err
	}
	missing := map[store.Key]any{}
	if !snap.present[store.KeySettings] {
		missing[store.KeySettings] = model.DefaultSettings()
	}
	if !snap.present[store.KeyHistory] {
		missing[store.KeyHistory] = []model.HistoryEntry{}
	}
	if !snap.present[store.KeySnippets] {
		missing[store.KeySnippets] = []model.Snippet{}
	}
	if len(missing) > 0 {
		if err := e.save(ctx, missing); err != nil {
			return err
		}
		e.log.Info("store initialised", "keys", len(missing))
	}
	e.project(snap.history, snap.settings)
	return nil
}

// AddToHistory records text captured from source. It returns the new entry,
// or nil when the text was ignored: blank after trimming, or identical to
// the most recent entry. Any older entry with the same text is removed so
// the text moves to the head, and the list is cut to the configured
// capacity. Eviction is purely positional: pinned entries are not exempt.
func (e *Engine) AddToHistory(ctx context.Context, text, source string) (*model.HistoryEntry, error) {
	if strings.TrimSpace(text) == "" {
		e.log.Debug("empty text, skipping")
		return nil, nil
	}
	if source == "" {
		source = model.UnknownSource
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	snap, err := e.load(ctx, store.KeyHistory, store.KeySettings)
	if err != nil {
		return nil, err
	}
	if len(snap.history) > 0 && snap.history[0].Text == text {
		e.log.Debug("duplicate of most recent entry, skipping", "source", source)
		return nil, nil
	}

	entry := model.HistoryEntry{
		ID:        e.newID(),
		Text:      text,
		CreatedAt: e.stamp(),
		Source:    source,
	}
	next := make([]model.HistoryEntry, 0, len(snap.history)+1)
	next = append(next, entry)
	for _, h := range snap.history {
		if h.Text != text {
			next = append(next, h)
		}
	}
	if limit := snap.settings.Capacity(); len(next) > limit {
		next = next[:limit]
	}

	if err := e.save(ctx, map[store.Key]any{store.KeyHistory: next}); err != nil {
		return nil, err
	}
	e.project(next, snap.settings)
	e.emit(message.NotifyHistoryUpdated)

	e.log.Info("entry added", "source", source, "total", len(next))
	e.log.Debug("entry text", "preview", logging.Preview(text, 120))
	return &entry, nil
}

// RemoveFromHistory deletes the entry with id. Removing an unknown id is a
// no-op, but the menu is still re-projected and the notification sent.
func (e *Engine) RemoveFromHistory(ctx context.Context, id string) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	snap, err := e.load(ctx, store.KeyHistory, store.KeySettings)
	if err != nil {
		return err
	}
	next := make([]model.HistoryEntry, 0, len(snap.history))
	for _, h := range snap.history {
		if h.ID != id {
			next = append(next, h)
		}
	}
	if err := e.save(ctx, map[store.Key]any{store.KeyHistory: next}); err != nil {
		return err
	}
	e.project(next, snap.settings)
	e.emit(message.NotifyHistoryUpdated)
	return nil
}

// TogglePin flips the pinned flag of the entry with id. Storage order is
// never changed. Unknown ids are a no-op.
func (e *Engine) TogglePin(ctx context.Context, id string) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	snap, err := e.load(ctx, store.KeyHistory)
	if err != nil {
		return err
	}
	for i := range snap.history {
		if snap.history[i].ID == id {
			snap.history[i].Pinned = !snap.history[i].Pinned
		}
	}
	if err := e.save(ctx, map[store.Key]any{store.KeyHistory: nonNil(snap.history)}); err != nil {
		return err
	}
	e.emit(message.NotifyHistoryUpdated)
	return nil
}

// ClearHistory empties the history list.
func (e *Engine) ClearHistory(ctx context.Context) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	snap, err := e.load(ctx, store.KeySettings)
	if err != nil {
		return err
	}
	if err := e.save(ctx, map[store.Key]any{store.KeyHistory: []model.HistoryEntry{}}); err != nil {
		return err
	}
	e.project(nil, snap.settings)
	e.emit(message.NotifyHistoryUpdated)
	e.log.Info("history cleared")
	return nil
}

// History returns the stored entries, newest first.
func (e *Engine) History(ctx context.Context) ([]model.HistoryEntry, error) {
	snap, err := e.load(ctx, store.KeyHistory)
	return nonNil(snap.history), err
}

// Latest returns the most recent entry, if any.
func (e *Engine) Latest(ctx context.Context) (model.HistoryEntry, bool, error) {
	return e.EntryAt(ctx, 0)
}

// EntryAt returns the entry currently at position i.
func (e *Engine) EntryAt(ctx context.Context, i int) (model.HistoryEntry, bool, error) {
	hist, err := e.History(ctx)
	if err != nil || i < 0 || i >= len(hist) {
		return model.HistoryEntry{}, false, err
	}
	return hist[i], true, nil
}

// Reproject rebuilds the context menu from the stored history.
func (e *Engine) Reproject(ctx context.Context) error {
	snap, err := e.load(ctx, store.KeyHistory, store.KeySettings)
	if err != nil {
		return err
	}
	e.project(snap.history, snap.settings)
	return nil
}

func nonNil[T any](s []T) []T {
	if s == nil {
		return []T{}
	}
	return s
}
