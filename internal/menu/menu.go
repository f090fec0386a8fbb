// Package menu maintains the context-menu projection of the history: a
// fixed set of actions plus one "paste-item-N" entry per recent capture.
//
// Paste items are positional. A click on paste-item-N is resolved against
// whatever sits at position N of the history at click time, not at build
// time.
package menu

import (
	"strconv"
	"strings"
	"sync"
	"unicode/utf8"

	"go.klb.dev/clipkeep/internal/model"
)

const (
	RootID             = "clipboard-manager"
	PasteFromHistoryID = "paste-from-history"
	SaveAsSnippetID    = "save-as-snippet"
	ClearHistoryID     = "clear-history"

	itemPrefix = "paste-item-"

	// MaxRecent is the number of history entries projected into the menu.
	MaxRecent = 5
	// LabelLimit is the longest label, in characters, before truncation.
	LabelLimit = 50
)

// Context names where a menu item is offered.
type Context string

const (
	ContextAll       Context = "all"
	ContextEditable  Context = "editable"
	ContextSelection Context = "selection"
)

// Item is one context-menu entry.
type Item struct {
	ID       string    `json:"id"`
	ParentID string    `json:"parentId,omitempty"`
	Title    string    `json:"title"`
	Contexts []Context `json:"contexts"`
}

var static = []Item{
	{ID: RootID, Title: "Clipboard Manager", Contexts: []Context{ContextAll}},
	{ID: PasteFromHistoryID, ParentID: RootID, Title: "Paste from History", Contexts: []Context{ContextEditable}},
	{ID: SaveAsSnippetID, ParentID: RootID, Title: "Save Selection as Snippet", Contexts: []Context{ContextSelection}},
	{ID: ClearHistoryID, ParentID: RootID, Title: "Clear History", Contexts: []Context{ContextAll}},
}

// Projection is the current menu. It is safe for concurrent use.
type Projection struct {
	mu     sync.RWMutex
	recent []Item
	builds int
}

// New returns a projection with only the static actions.
func New() *Projection {
	return &Projection{}
}

// Rebuild drops every paste item and recreates them from the head of
// entries. When enabled is false no paste items are created.
func (p *Projection) Rebuild(entries []model.HistoryEntry, enabled bool) {
	var recent []Item
	if enabled {
		n := min(len(entries), MaxRecent)
		recent = make([]Item, 0, n)
		for i, e := range entries[:n] {
			recent = append(recent, Item{
				ID:       ItemID(i),
				ParentID: PasteFromHistoryID,
				Title:    Label(e.Text),
				Contexts: []Context{ContextEditable},
			})
		}
	}

	p.mu.Lock()
	p.recent = recent
	p.builds++
	p.mu.Unlock()
}

// Items returns the full menu: static actions followed by paste items.
func (p *Projection) Items() []Item {
	p.mu.RLock()
	defer p.mu.RUnlock()
	out := make([]Item, 0, len(static)+len(p.recent))
	out = append(out, static...)
	out = append(out, p.recent...)
	return out
}

// Recent returns only the paste items.
func (p *Projection) Recent() []Item {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return append([]Item(nil), p.recent...)
}

// Builds returns how many times the projection has been rebuilt.
func (p *Projection) Builds() int {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.builds
}

// ItemID returns the menu ID for history position i.
func ItemID(i int) string { return itemPrefix + strconv.Itoa(i) }

// ParseItemID extracts the history position from a paste item ID.
func ParseItemID(id string) (int, bool) {
	rest, ok := strings.CutPrefix(id, itemPrefix)
	if !ok {
		return 0, false
	}
	i, err := strconv.Atoi(rest)
	if err != nil || i < 0 {
		return 0, false
	}
	return i, true
}

// Label truncates text to LabelLimit characters, appending "..." when cut.
func Label(text string) string {
	return Truncate(text, LabelLimit)
}

// Truncate cuts s to n characters and appends "..." when it was longer.
func Truncate(s string, n int) string {
	if utf8.RuneCountInString(s) <= n {
		return s
	}
	return string([]rune(s)[:n]) + "..."
}
