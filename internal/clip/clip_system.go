//go:build linux || darwin || windows

package clip

import (
	"context"
	"log/slog"
	"sync"

	"golang.design/x/clipboard"
)

var (
	initOnce sync.Once
	initErr  error
)

type system struct{}

// New returns the system clipboard backend, or the headless backend if the
// clipboard cannot be initialised. clipboard.Init is called here rather than
// in init() so that sub-commands that never touch the clipboard don't log
// spurious warnings on headless systems.
func New() Backend {
	initOnce.Do(func() { initErr = clipboard.Init() })
	if initErr != nil {
		slog.Warn("clipboard unavailable, running headless", "err", initErr)
		return Headless()
	}
	return system{}
}

func (system) Name() string { return "system clipboard" }

func (system) ReadText(ctx context.Context) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	return string(clipboard.Read(clipboard.FmtText)), nil
}

func (system) WriteText(text string) error {
	clipboard.Write(clipboard.FmtText, []byte(text))
	return nil
}

func (system) Close() {}
