package history

import (
	"context"
	"strings"

	"github.com/cockroachdb/errors"

	"go.klb.dev/clipkeep/internal/message"
	"go.klb.dev/clipkeep/internal/model"
	"go.klb.dev/clipkeep/internal/store"
)

// AddSnippet prepends a new snippet with a zero use count. Title and text
// are required.
func (e *Engine) AddSnippet(ctx context.Context, text, title string) (*model.Snippet, error) {
	if strings.TrimSpace(title) == "" {
		return nil, invalid("title", "Snippet title is required")
	}
	if strings.TrimSpace(text) == "" {
		return nil, invalid("text", "Snippet text is required")
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	snap, err := e.load(ctx, store.KeySnippets)
	if err != nil {
		return nil, err
	}
	sn := model.Snippet{
		ID:        e.newID(),
		Title:     title,
		Text:      text,
		CreatedAt: e.stamp(),
	}
	next := append([]model.Snippet{sn}, snap.snippets...)
	if err := e.save(ctx, map[store.Key]any{store.KeySnippets: next}); err != nil {
		return nil, err
	}
	e.emit(message.NotifySnippetsUpdated)
	e.log.Info("snippet added", "title", title, "total", len(next))
	return &sn, nil
}

// RemoveSnippet deletes the snippet with id. Unknown ids are a no-op.
func (e *Engine) RemoveSnippet(ctx context.Context, id string) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	snap, err := e.load(ctx, store.KeySnippets)
	if err != nil {
		return err
	}
	next := make([]model.Snippet, 0, len(snap.snippets))
	for _, s := range snap.snippets {
		if s.ID != id {
			next = append(next, s)
		}
	}
	if err := e.save(ctx, map[store.Key]any{store.KeySnippets: next}); err != nil {
		return err
	}
	e.emit(message.NotifySnippetsUpdated)
	return nil
}

// UseSnippet increments the use count of the snippet with id and returns
// the updated snippet.
func (e *Engine) UseSnippet(ctx context.Context, id string) (model.Snippet, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	snap, err := e.load(ctx, store.KeySnippets)
	if err != nil {
		return model.Snippet{}, err
	}
	for i := range snap.snippets {
		if snap.snippets[i].ID != id {
			continue
		}
		snap.snippets[i].UseCount++
		if err := e.save(ctx, map[store.Key]any{store.KeySnippets: snap.snippets}); err != nil {
			return model.Snippet{}, err
		}
		e.emit(message.NotifySnippetsUpdated)
		return snap.snippets[i], nil
	}
	return model.Snippet{}, errors.Wrapf(ErrNotFound, "snippet %s", id)
}

// Snippets returns the stored snippets, newest first.
func (e *Engine) Snippets(ctx context.Context) ([]model.Snippet, error) {
	snap, err := e.load(ctx, store.KeySnippets)
	return nonNil(snap.snippets), err
}
