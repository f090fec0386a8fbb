package clip

import (
	"context"
	"sync"
)

// Memory is an in-process clipboard used by tests and by the agent when it
// runs without a display.
type Memory struct {
	mu    sync.Mutex
	text  string
	err   error
	reads int
}

// NewMemory returns a Memory holding text.
func NewMemory(text string) *Memory { return &Memory{text: text} }

func (m *Memory) Name() string { return "memory" }

func (m *Memory) ReadText(ctx context.Context) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.reads++
	if m.err != nil {
		return "", m.err
	}
	return m.text, nil
}

func (m *Memory) WriteText(text string) error {
	m.mu.Lock()
	m.text = text
	m.mu.Unlock()
	return nil
}

func (m *Memory) Close() {}

// FailWith makes subsequent reads return err until it is called with nil.
func (m *Memory) FailWith(err error) {
	m.mu.Lock()
	m.err = err
	m.mu.Unlock()
}

// Reads reports how many times ReadText was called.
func (m *Memory) Reads() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.reads
}
