// Package clip reads and writes the text content of the system clipboard.
//
// The system backend is built on golang.design/x/clipboard for linux, darwin
// and windows. Anywhere the clipboard cannot be initialised (no display
// server, a cgo-less build, other platforms) New falls back to a headless
// backend whose reads fail with ErrUnavailable.
package clip

import (
	"context"

	"github.com/cockroachdb/errors"
)

// ErrUnavailable is returned by backends with no clipboard to talk to.
var ErrUnavailable = errors.New("clipboard unavailable")

// Backend is the interface every clipboard implementation satisfies.
type Backend interface {
	// Name returns a human-readable name for the backend.
	Name() string

	// ReadText returns the current clipboard text. An empty clipboard, or
	// one holding only non-text content, yields "" and a nil error.
	ReadText(ctx context.Context) (string, error)

	// WriteText replaces the clipboard content with text.
	WriteText(text string) error

	// Close releases any resources held by the backend.
	Close()
}

type headless struct{}

// Headless returns a backend that has no clipboard.
func Headless() Backend { return headless{} }

func (headless) Name() string                             { return "headless (no-op)" }
func (headless) ReadText(context.Context) (string, error) { return "", ErrUnavailable }
func (headless) WriteText(string) error                   { return ErrUnavailable }
func (headless) Close()                                   {}
