package coordinator

import (
	"context"

	"github.com/cockroachdb/errors"

	"go.klb.dev/clipkeep/internal/menu"
	"go.klb.dev/clipkeep/internal/message"
)

func (c *Coordinator) HandleAddToHistory(ctx context.Context, r message.AddToHistory) message.Response {
	e, err := c.engine.AddToHistory(ctx, r.Text, r.Source)
	if err != nil {
		return message.Fail(err)
	}
	if e == nil {
		return message.OK()
	}
	return message.OKWith(e)
}

func (c *Coordinator) HandleRemoveFromHistory(ctx context.Context, r message.RemoveFromHistory) message.Response {
	return respond(c.engine.RemoveFromHistory(ctx, r.ItemID))
}

func (c *Coordinator) HandleTogglePin(ctx context.Context, r message.TogglePin) message.Response {
	return respond(c.engine.TogglePin(ctx, r.ItemID))
}

func (c *Coordinator) HandleClearHistory(ctx context.Context, _ message.ClearHistory) message.Response {
	return respond(c.engine.ClearHistory(ctx))
}

func (c *Coordinator) HandleAddSnippet(ctx context.Context, r message.AddSnippet) message.Response {
	return respondWith(c.engine.AddSnippet(ctx, r.Text, r.Title))
}

func (c *Coordinator) HandleRemoveSnippet(ctx context.Context, r message.RemoveSnippet) message.Response {
	return respond(c.engine.RemoveSnippet(ctx, r.SnippetID))
}

func (c *Coordinator) HandleUseSnippet(ctx context.Context, r message.UseSnippet) message.Response {
	return respondWith(c.engine.UseSnippet(ctx, r.SnippetID))
}

// HandleRefresh restarts the watcher as a unit and rebuilds the menu.
func (c *Coordinator) HandleRefresh(ctx context.Context, _ message.Refresh) message.Response {
	if c.watcher != nil {
		c.mu.Lock()
		runCtx := c.runCtx
		c.mu.Unlock()
		if runCtx == nil {
			runCtx = context.WithoutCancel(ctx)
		}
		c.watcher.Restart(runCtx)
	}
	c.log.Info("refreshed")
	return respond(c.engine.Reproject(ctx))
}

// HandlePageActivated records the foreground page and the agent that
// reported it. An empty URL clears it.
func (c *Coordinator) HandlePageActivated(ctx context.Context, r message.PageActivated) message.Response {
	host := hostname(r.URL)
	c.mu.Lock()
	c.activeHost = host
	c.activePeer = message.SenderOf(ctx)
	if host == "" {
		c.activePeer = ""
	}
	c.mu.Unlock()
	c.log.Debug("page activated", "source", host, "peer", message.SenderOf(ctx))
	return message.OK()
}

func (c *Coordinator) HandleQuickPaste(ctx context.Context, _ message.QuickPaste) message.Response {
	s, err := c.engine.Settings(ctx)
	if err != nil {
		return message.Fail(err)
	}
	if !s.EnableQuickPaste {
		return message.Fail(errors.New("Quick paste is disabled"))
	}
	c.notify(message.Notification{Action: message.NotifyShowQuickPaste})
	return message.OK()
}

func (c *Coordinator) HandlePasteLast(ctx context.Context, _ message.PasteLast) message.Response {
	return c.pasteEntry(ctx, 0)
}

func (c *Coordinator) HandleHideQuickPaste(context.Context, message.HideQuickPaste) message.Response {
	c.notify(message.Notification{Action: message.NotifyHideQuickPaste})
	return message.OK()
}

func (c *Coordinator) HandleMenuClick(ctx context.Context, r message.MenuClick) message.Response {
	switch r.MenuItemID {
	case menu.ClearHistoryID:
		return respond(c.engine.ClearHistory(ctx))
	case menu.SaveAsSnippetID:
		if r.SelectionText == "" {
			return message.OK()
		}
		title := menu.Truncate(r.SelectionText, snippetTitleLimit)
		return respondWith(c.engine.AddSnippet(ctx, r.SelectionText, title))
	case menu.RootID, menu.PasteFromHistoryID:
		return message.OK()
	}
	if i, ok := menu.ParseItemID(r.MenuItemID); ok {
		return c.pasteEntry(ctx, i)
	}
	return message.Fail(errors.Newf("Unknown menu item %q", r.MenuItemID))
}

func (c *Coordinator) HandleSaveSettings(ctx context.Context, r message.SaveSettings) message.Response {
	return respondWith(c.engine.SaveSettings(ctx, r.Settings))
}

func (c *Coordinator) HandleResetSettings(ctx context.Context, _ message.ResetSettings) message.Response {
	return respondWith(c.engine.ResetSettings(ctx))
}

func (c *Coordinator) HandleClearAll(ctx context.Context, _ message.ClearAll) message.Response {
	return respond(c.engine.ClearAll(ctx))
}

func (c *Coordinator) HandleImportData(ctx context.Context, r message.ImportData) message.Response {
	return respondWith(c.engine.Import(ctx, r.Data))
}
