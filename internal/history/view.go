package history

import (
	"slices"
	"strings"

	"go.klb.dev/clipkeep/internal/model"
)

// FilterHistory keeps entries whose text contains query, case-insensitively.
// An empty query keeps everything.
func FilterHistory(entries []model.HistoryEntry, query string) []model.HistoryEntry {
	q := strings.ToLower(query)
	if q == "" {
		return entries
	}
	out := []model.HistoryEntry{}
	for _, e := range entries {
		if strings.Contains(strings.ToLower(e.Text), q) {
			out = append(out, e)
		}
	}
	return out
}

// FilterSnippets keeps snippets whose text or title contains query,
// case-insensitively.
func FilterSnippets(snippets []model.Snippet, query string) []model.Snippet {
	q := strings.ToLower(query)
	if q == "" {
		return snippets
	}
	out := []model.Snippet{}
	for _, s := range snippets {
		if strings.Contains(strings.ToLower(s.Text), q) || strings.Contains(strings.ToLower(s.Title), q) {
			out = append(out, s)
		}
	}
	return out
}

// SortHistory returns a sorted copy of entries for display. Storage order is
// never affected.
func SortHistory(entries []model.HistoryEntry, order model.SortOrder) []model.HistoryEntry {
	out := slices.Clone(entries)
	newest := func(a, b model.HistoryEntry) int { return b.CreatedAt.Compare(a.CreatedAt) }

	switch order {
	case model.SortOldest:
		slices.SortStableFunc(out, func(a, b model.HistoryEntry) int { return a.CreatedAt.Compare(b.CreatedAt) })
	case model.SortPinned:
		slices.SortStableFunc(out, func(a, b model.HistoryEntry) int {
			switch {
			case a.Pinned && !b.Pinned:
				return -1
			case !a.Pinned && b.Pinned:
				return 1
			}
			return newest(a, b)
		})
	default:
		slices.SortStableFunc(out, newest)
	}
	return out
}
