package ipc

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSocketPath(t *testing.T) {
	t.Setenv(EnvSocket, "/tmp/custom.sock")
	assert.Equal(t, "/tmp/custom.sock", SocketPath())
	assert.Equal(t, "unix:///tmp/custom.sock", Target())

	t.Setenv(EnvSocket, "")
	t.Setenv("XDG_RUNTIME_DIR", "/run/user/1000")
	assert.Equal(t, "/run/user/1000/clipkeep.sock", SocketPath())
}

func TestListen(t *testing.T) {
	dir, err := os.MkdirTemp("", "ck")
	require.NoError(t, err)
	t.Cleanup(func() { _ = os.RemoveAll(dir) })
	t.Setenv(EnvSocket, filepath.Join(dir, "c.sock"))

	assert.False(t, IsRunning())

	ln, err := Listen()
	require.NoError(t, err)
	go func() {
		for {
			c, err := ln.Accept()
			if err != nil {
				return
			}
			_ = c.Close()
		}
	}()
	assert.True(t, IsRunning())

	fi, err := os.Stat(SocketPath())
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(0o600), fi.Mode().Perm())

	_, err = Listen()
	require.ErrorIs(t, err, ErrInUse)

	require.NoError(t, ln.Close())
	assert.False(t, IsRunning())
}

func TestListen_ReplacesStaleFile(t *testing.T) {
	dir, err := os.MkdirTemp("", "ck")
	require.NoError(t, err)
	t.Cleanup(func() { _ = os.RemoveAll(dir) })
	path := filepath.Join(dir, "c.sock")
	t.Setenv(EnvSocket, path)
	require.NoError(t, os.WriteFile(path, nil, 0o600))

	ln, err := Listen()
	require.NoError(t, err)
	require.NoError(t, ln.Close())
}
