package store

import (
	"context"
	"sync"
)

// Memory is an in-process Store. It is used by tests and by
// "serve --store memory".
type Memory struct {
	mu     sync.RWMutex
	data   map[Key][]byte
	closed bool
}

// NewMemory returns an empty in-memory store.
func NewMemory() *Memory {
	return &Memory{data: make(map[Key][]byte)}
}

func (m *Memory) Get(ctx context.Context, keys ...Key) (Values, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.closed {
		return nil, ErrClosed
	}
	out := make(Values, len(keys))
	for _, k := range keys {
		if b, ok := m.data[k]; ok {
			out[k] = cloneRaw(b)
		}
	}
	return out, nil
}

func (m *Memory) Set(ctx context.Context, values Values) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return ErrClosed
	}
	for k, v := range values {
		m.data[k] = cloneRaw(v)
	}
	return nil
}

func (m *Memory) Clear(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return ErrClosed
	}
	clear(m.data)
	return nil
}

func (m *Memory) Close() error {
	m.mu.Lock()
	m.closed = true
	m.mu.Unlock()
	return nil
}
