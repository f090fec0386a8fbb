package history

import (
	"bytes"
	"context"
	"encoding/json"
	"strings"

	"github.com/cockroachdb/errors"

	"go.klb.dev/clipkeep/internal/message"
	"go.klb.dev/clipkeep/internal/model"
	"go.klb.dev/clipkeep/internal/store"
)

// ImportSummary reports what an Import merged in.
type ImportSummary struct {
	HistoryAdded     int  `json:"historyAdded"`
	SnippetsAdded    int  `json:"snippetsAdded"`
	SettingsImported bool `json:"settingsImported"`
}

// Export returns the full backup document.
func (e *Engine) Export(ctx context.Context) (model.Backup, error) {
	snap, err := e.load(ctx, store.AllKeys...)
	if err != nil {
		return model.Backup{}, err
	}
	return model.Backup{
		ClipboardHistory: nonNil(snap.history),
		Snippets:         nonNil(snap.snippets),
		Settings:         snap.settings,
		ExportDate:       e.stamp(),
		Version:          model.BackupVersion,
		ExtensionName:    model.BackupName,
	}, nil
}

type importDoc struct {
	ClipboardHistory json.RawMessage `json:"clipboardHistory"`
	Snippets         json.RawMessage `json:"snippets"`
	Settings         json.RawMessage `json:"settings"`
}

func section(raw json.RawMessage) bool {
	return len(raw) > 0 && !bytes.Equal(bytes.TrimSpace(raw), []byte("null"))
}

// Import merges a backup document into the store.
//
// History entries are matched by exact text and snippets by exact title;
// existing items win and imported ones are appended with fresh ids. Settings
// are layered defaults, then current, then imported fields. The merged
// history is bounded by the merged capacity and HistoryAdded counts only the
// imported entries that survive it. Imported settings must pass Validate.
// The complete merged snapshot is
// written with a single Set, so a malformed or invalid document changes nothing.
func (e *Engine) Import(ctx context.Context, data []byte) (ImportSummary, error) {
	var sum ImportSummary

	var doc importDoc
	if err := json.Unmarshal(data, &doc); err != nil {
		return sum, errors.Wrap(err, "parse backup")
	}
	if !section(doc.ClipboardHistory) && !section(doc.Snippets) && !section(doc.Settings) {
		return sum, ErrInvalidBackup
	}

	var (
		inHistory  []model.HistoryEntry
		inSnippets []model.Snippet
	)
	if section(doc.ClipboardHistory) {
		if err := json.Unmarshal(doc.ClipboardHistory, &inHistory); err != nil {
			return sum, errors.Wrap(err, "parse backup history")
		}
	}
	if section(doc.Snippets) {
		if err := json.Unmarshal(doc.Snippets, &inSnippets); err != nil {
			return sum, errors.Wrap(err, "parse backup snippets")
		}
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	snap, err := e.load(ctx, store.AllKeys...)
	if err != nil {
		return sum, err
	}

	settings := snap.settings
	if section(doc.Settings) {
		if err := json.Unmarshal(doc.Settings, &settings); err != nil {
			return sum, errors.Wrap(err, "parse backup settings")
		}
		valid, err := Validate(settings)
		if err != nil {
			return sum, err
		}
		settings = valid
		sum.SettingsImported = true
	}

	now := e.stamp()

	history := nonNil(snap.history)
	kept := len(history)
	seen := make(map[string]bool, len(history))
	for _, h := range history {
		seen[h.Text] = true
	}
	for _, h := range inHistory {
		if strings.TrimSpace(h.Text) == "" || seen[h.Text] {
			continue
		}
		seen[h.Text] = true
		h.ID = e.newID()
		if h.CreatedAt.IsZero() {
			h.CreatedAt = now
		}
		if h.Source == "" {
			h.Source = model.UnknownSource
		}
		history = append(history, h)
	}
	limit := settings.Capacity()
	if len(history) > limit {
		history = history[:limit]
	}
	sum.HistoryAdded = max(len(history)-kept, 0)

	snippets := nonNil(snap.snippets)
	titles := make(map[string]bool, len(snippets))
	for _, s := range snippets {
		titles[s.Title] = true
	}
	for _, s := range inSnippets {
		if titles[s.Title] {
			continue
		}
		titles[s.Title] = true
		s.ID = e.newID()
		if s.CreatedAt.IsZero() {
			s.CreatedAt = now
		}
		if s.UseCount < 0 {
			s.UseCount = 0
		}
		snippets = append(snippets, s)
		sum.SnippetsAdded++
	}

	if err := e.save(ctx, map[store.Key]any{
		store.KeySettings: settings,
		store.KeyHistory:  history,
		store.KeySnippets: snippets,
	}); err != nil {
		return sum, err
	}
	e.project(history, settings)
	e.emit(message.NotifyHistoryUpdated)
	e.emit(message.NotifySnippetsUpdated)
	e.log.Info("backup imported",
		"history_added", sum.HistoryAdded,
		"snippets_added", sum.SnippetsAdded,
		"settings", sum.SettingsImported,
	)
	return sum, nil
}
