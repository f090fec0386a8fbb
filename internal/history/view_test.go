package history

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"go.klb.dev/clipkeep/internal/model"
)

func TestFilterHistory(t *testing.T) {
	entries := []model.HistoryEntry{{Text: "Hello World"}, {Text: "goodbye"}, {Text: "WORLDLY"}}
	assert.Equal(t, entries, FilterHistory(entries, ""))
	assert.Equal(t, []string{"Hello World", "WORLDLY"}, texts(FilterHistory(entries, "world")))
	none := FilterHistory(entries, "zzz")
	assert.NotNil(t, none)
	assert.Empty(t, none)
}

func TestFilterSnippets(t *testing.T) {
	snippets := []model.Snippet{
		{Title: "Address", Text: "1 Main St"},
		{Title: "Sig", Text: "Regards, main office"},
		{Title: "Other", Text: "x"},
	}
	got := FilterSnippets(snippets, "MAIN")
	assert.Len(t, got, 2)
	got = FilterSnippets(snippets, "sig")
	assert.Len(t, got, 1)
	assert.Equal(t, "Sig", got[0].Title)

	none := FilterSnippets(snippets, "zzz")
	assert.NotNil(t, none)
	assert.Empty(t, none)
}

func TestSortHistory(t *testing.T) {
	base := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	entries := []model.HistoryEntry{
		{Text: "c", CreatedAt: base.Add(3 * time.Minute)},
		{Text: "b", CreatedAt: base.Add(2 * time.Minute), Pinned: true},
		{Text: "a", CreatedAt: base.Add(1 * time.Minute)},
		{Text: "p", CreatedAt: base, Pinned: true},
	}

	assert.Equal(t, []string{"c", "b", "a", "p"}, texts(SortHistory(entries, model.SortNewest)))
	assert.Equal(t, []string{"p", "a", "b", "c"}, texts(SortHistory(entries, model.SortOldest)))
	assert.Equal(t, []string{"b", "p", "c", "a"}, texts(SortHistory(entries, model.SortPinned)))
	assert.Equal(t, []string{"c", "b", "a", "p"}, texts(entries))
}
