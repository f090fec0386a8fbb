// Package model defines the persisted clipkeep documents: history entries,
// snippets, settings and the backup envelope.
package model

import (
	"strings"
	"time"
)

// HistoryEntry is one recorded clipboard capture.
type HistoryEntry struct {
	ID        string    `json:"id"`
	Text      string    `json:"text"`
	CreatedAt time.Time `json:"timestamp"`
	Source    string    `json:"source"`
	Pinned    bool      `json:"pinned"`
}

// Snippet is a user-authored, titled piece of reusable text.
type Snippet struct {
	ID        string    `json:"id"`
	Title     string    `json:"title"`
	Text      string    `json:"text"`
	CreatedAt time.Time `json:"timestamp"`
	UseCount  int       `json:"useCount"`
}

// Theme selects the UI color scheme.
type Theme string

const (
	ThemeAuto  Theme = "auto"
	ThemeLight Theme = "light"
	ThemeDark  Theme = "dark"
)

// Valid reports whether t is a known theme.
func (t Theme) Valid() bool {
	switch t {
	case ThemeAuto, ThemeLight, ThemeDark:
		return true
	}
	return false
}

// SortOrder selects how the UI orders history lists.
type SortOrder string

const (
	SortNewest SortOrder = "newest"
	SortOldest SortOrder = "oldest"
	SortPinned SortOrder = "pinned"
)

// Valid reports whether o is a known sort order.
func (o SortOrder) Valid() bool {
	switch o {
	case SortNewest, SortOldest, SortPinned:
		return true
	}
	return false
}

const (
	// DefaultMaxHistorySize is used on first run and whenever the stored
	// value is missing or non-positive.
	DefaultMaxHistorySize = 50
	MinHistorySize        = 10
	MaxHistorySize        = 1000

	// UnknownSource is recorded when the capturing page cannot be determined.
	UnknownSource = "unknown"
)

// Settings is the user-tunable configuration persisted under the
// "settings" key.
type Settings struct {
	MaxHistorySize    int       `json:"maxHistorySize"`
	ExcludedSites     []string  `json:"excludedSites"`
	EnableQuickPaste  bool      `json:"enableQuickPaste"`
	EnableContextMenu bool      `json:"enableContextMenu"`
	Theme             Theme     `json:"theme"`
	SortOrder         SortOrder `json:"sortOrder"`
}

// DefaultSettings returns the settings written on first run and on reset.
func DefaultSettings() Settings {
	return Settings{
		MaxHistorySize:    DefaultMaxHistorySize,
		ExcludedSites:     []string{},
		EnableQuickPaste:  true,
		EnableContextMenu: true,
		Theme:             ThemeAuto,
		SortOrder:         SortNewest,
	}
}

// Capacity returns the effective history bound.
func (s Settings) Capacity() int {
	if s.MaxHistorySize <= 0 {
		return DefaultMaxHistorySize
	}
	return s.MaxHistorySize
}

// CleanSites trims each exclusion pattern and drops blank lines.
func CleanSites(sites []string) []string {
	out := make([]string, 0, len(sites))
	for _, s := range sites {
		if s = strings.TrimSpace(s); s != "" {
			out = append(out, s)
		}
	}
	return out
}

// BackupVersion is written into every exported document.
const BackupVersion = "1.0.0"

// BackupName identifies the producer of a backup document.
const BackupName = "clipkeep"

// Backup is the export/import document.
type Backup struct {
	ClipboardHistory []HistoryEntry `json:"clipboardHistory"`
	Snippets         []Snippet      `json:"snippets"`
	Settings         Settings       `json:"settings"`
	ExportDate       time.Time      `json:"exportDate"`
	Version          string         `json:"version"`
	ExtensionName    string         `json:"extensionName,omitempty"`
}
