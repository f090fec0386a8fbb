// Package store is the persisted key-value document shared by every
// clipkeep context. It exposes three top-level keys holding JSON values and
// offers no transactions across calls: each Set replaces whole values and the
// last writer wins.
package store

import (
	"context"
	"encoding/json"

	"github.com/cockroachdb/errors"
)

// Key names a top-level stored value.
type Key string

const (
	KeySettings Key = "settings"
	KeyHistory  Key = "clipboardHistory"
	KeySnippets Key = "snippets"
)

// AllKeys lists every key in the schema.
var AllKeys = []Key{KeySettings, KeyHistory, KeySnippets}

// Values maps keys to their raw JSON documents. A key missing from a Get
// result has never been written (or was cleared).
type Values map[Key]json.RawMessage

// ErrClosed is returned by operations on a closed store.
var ErrClosed = errors.New("store: closed")

// Store is the asynchronous get/set interface over the persisted document.
// Implementations must be safe for concurrent use; a single Set applies all
// of its values atomically.
type Store interface {
	// Get returns the current values of keys. Missing keys are omitted.
	Get(ctx context.Context, keys ...Key) (Values, error)
	// Set replaces the given keys.
	Set(ctx context.Context, values Values) error
	// Clear removes every key.
	Clear(ctx context.Context) error
	Close() error
}

// Decode unmarshals the value stored under k into dst. It reports false
// when the key is absent.
func (v Values) Decode(k Key, dst any) (bool, error) {
	raw, ok := v[k]
	if !ok || len(raw) == 0 {
		return false, nil
	}
	if err := json.Unmarshal(raw, dst); err != nil {
		return true, errors.Wrapf(err, "decode %s", k)
	}
	return true, nil
}

// Put marshals val and stores it under k.
func (v Values) Put(k Key, val any) error {
	raw, err := json.Marshal(val)
	if err != nil {
		return errors.Wrapf(err, "encode %s", k)
	}
	v[k] = raw
	return nil
}

func cloneRaw(b []byte) json.RawMessage {
	out := make([]byte, len(b))
	copy(out, b)
	return out
}
