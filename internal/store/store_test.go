package store

import (
	"context"
	"encoding/json"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func backends(t *testing.T) map[string]Store {
	t.Helper()
	sq, err := OpenSQLite(filepath.Join(t.TempDir(), "nested", "clipkeep.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = sq.Close() })
	return map[string]Store{
		"memory": NewMemory(),
		"sqlite": sq,
	}
}

func TestStore_GetMissingKeys(t *testing.T) {
	for name, s := range backends(t) {
		t.Run(name, func(t *testing.T) {
			vals, err := s.Get(context.Background(), AllKeys...)
			require.NoError(t, err)
			assert.Empty(t, vals)

			var dst []string
			ok, err := vals.Decode(KeyHistory, &dst)
			require.NoError(t, err)
			assert.False(t, ok)
		})
	}
}

func TestStore_SetGetRoundTrip(t *testing.T) {
	for name, s := range backends(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			in := Values{}
			require.NoError(t, in.Put(KeyHistory, []string{"a", "b"}))
			require.NoError(t, in.Put(KeySnippets, []string{}))
			require.NoError(t, s.Set(ctx, in))

			out, err := s.Get(ctx, KeyHistory, KeySnippets, KeySettings)
			require.NoError(t, err)
			assert.Len(t, out, 2)

			var hist []string
			ok, err := out.Decode(KeyHistory, &hist)
			require.NoError(t, err)
			assert.True(t, ok)
			assert.Equal(t, []string{"a", "b"}, hist)
		})
	}
}

func TestStore_LastWriterWins(t *testing.T) {
	for name, s := range backends(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			require.NoError(t, s.Set(ctx, Values{KeySettings: json.RawMessage(`{"theme":"dark"}`)}))
			require.NoError(t, s.Set(ctx, Values{KeySettings: json.RawMessage(`{"theme":"light"}`)}))

			out, err := s.Get(ctx, KeySettings)
			require.NoError(t, err)
			assert.JSONEq(t, `{"theme":"light"}`, string(out[KeySettings]))
		})
	}
}

func TestStore_Clear(t *testing.T) {
	for name, s := range backends(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			require.NoError(t, s.Set(ctx, Values{KeyHistory: json.RawMessage(`[]`)}))
			require.NoError(t, s.Clear(ctx))
			out, err := s.Get(ctx, AllKeys...)
			require.NoError(t, err)
			assert.Empty(t, out)
		})
	}
}

func TestStore_Closed(t *testing.T) {
	for name, s := range backends(t) {
		t.Run(name, func(t *testing.T) {
			require.NoError(t, s.Close())
			_, err := s.Get(context.Background(), KeyHistory)
			assert.ErrorIs(t, err, ErrClosed)
		})
	}
}

func TestMemory_ReturnsCopies(t *testing.T) {
	m := NewMemory()
	ctx := context.Background()
	raw := json.RawMessage(`["x"]`)
	require.NoError(t, m.Set(ctx, Values{KeyHistory: raw}))
	raw[2] = 'y'

	out, err := m.Get(ctx, KeyHistory)
	require.NoError(t, err)
	assert.Equal(t, `["x"]`, string(out[KeyHistory]))
}

func TestDecode_Malformed(t *testing.T) {
	v := Values{KeyHistory: json.RawMessage(`{not json`)}
	var dst []string
	ok, err := v.Decode(KeyHistory, &dst)
	assert.True(t, ok)
	assert.Error(t, err)
}
