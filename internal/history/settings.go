package history

import (
	"context"

	"go.klb.dev/clipkeep/internal/exclude"
	"go.klb.dev/clipkeep/internal/message"
	"go.klb.dev/clipkeep/internal/model"
	"go.klb.dev/clipkeep/internal/store"
)

// Validate checks s and returns a normalised copy: blank exclusion lines are
// dropped and empty enums take their defaults.
func Validate(s model.Settings) (model.Settings, error) {
	if s.MaxHistorySize < model.MinHistorySize || s.MaxHistorySize > model.MaxHistorySize {
		return s, invalid("maxHistorySize", "History size must be between %d and %d",
			model.MinHistorySize, model.MaxHistorySize)
	}
	if s.Theme == "" {
		s.Theme = model.ThemeAuto
	}
	if !s.Theme.Valid() {
		return s, invalid("theme", "Unknown theme %q", s.Theme)
	}
	if s.SortOrder == "" {
		s.SortOrder = model.SortNewest
	}
	if !s.SortOrder.Valid() {
		return s, invalid("sortOrder", "Unknown sort order %q", s.SortOrder)
	}
	s.ExcludedSites = model.CleanSites(s.ExcludedSites)
	if _, err := exclude.Compile(s.ExcludedSites); err != nil {
		return s, invalid("excludedSites", "Invalid excluded site: %v", err)
	}
	return s, nil
}

// Settings returns the stored settings merged over the defaults.
func (e *Engine) Settings(ctx context.Context) (model.Settings, error) {
	snap, err := e.load(ctx, store.KeySettings)
	return snap.settings, err
}

// SaveSettings validates and persists s. Invalid input leaves the store
// untouched. The existing history is not trimmed to a smaller capacity until
// the next capture.
func (e *Engine) SaveSettings(ctx context.Context, s model.Settings) (model.Settings, error) {
	s, err := Validate(s)
	if err != nil {
		return s, err
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	snap, err := e.load(ctx, store.KeyHistory)
	if err != nil {
		return s, err
	}
	if err := e.save(ctx, map[store.Key]any{store.KeySettings: s}); err != nil {
		return s, err
	}
	e.project(snap.history, s)
	e.log.Info("settings saved", "max_history", s.MaxHistorySize, "excluded_sites", len(s.ExcludedSites))
	return s, nil
}

// ResetSettings restores the default settings.
func (e *Engine) ResetSettings(ctx context.Context) (model.Settings, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	def := model.DefaultSettings()
	snap, err := e.load(ctx, store.KeyHistory)
	if err != nil {
		return def, err
	}
	if err := e.save(ctx, map[store.Key]any{store.KeySettings: def}); err != nil {
		return def, err
	}
	e.project(snap.history, def)
	e.log.Info("settings reset")
	return def, nil
}

// ClearAll wipes the store and rewrites it with default settings and empty
// lists.
func (e *Engine) ClearAll(ctx context.Context) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	def := model.DefaultSettings()
	if err := e.save(ctx, map[store.Key]any{
		store.KeySettings: def,
		store.KeyHistory:  []model.HistoryEntry{},
		store.KeySnippets: []model.Snippet{},
	}); err != nil {
		return err
	}
	e.project(nil, def)
	e.emit(message.NotifyHistoryUpdated)
	e.emit(message.NotifySnippetsUpdated)
	e.log.Info("all data cleared")
	return nil
}
