// Package ipc locates the local socket the coordinator serves its gRPC API
// on, so CLI sub-commands on the same machine can reach it without a TCP
// address or token.
//
// The socket is a Unix domain socket on every platform (Windows 10 and later
// support AF_UNIX).
package ipc

import (
	"net"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/cockroachdb/errors"
)

// EnvSocket overrides the socket path.
const EnvSocket = "CLIPKEEP_SOCKET"

// ErrInUse is returned by Listen when another coordinator owns the socket.
var ErrInUse = errors.New("ipc socket already in use")

// SocketPath returns the socket location: $CLIPKEEP_SOCKET, else
// $XDG_RUNTIME_DIR/clipkeep.sock, else a per-user file in the temp dir.
func SocketPath() string {
	if s := os.Getenv(EnvSocket); s != "" {
		return s
	}
	if dir := os.Getenv("XDG_RUNTIME_DIR"); dir != "" {
		return filepath.Join(dir, "clipkeep.sock")
	}
	return filepath.Join(os.TempDir(), "clipkeep-"+strconv.Itoa(os.Getuid())+".sock")
}

// Target returns the gRPC dial target for the socket.
func Target() string { return "unix://" + SocketPath() }

// IsRunning reports whether something accepts connections on the socket.
func IsRunning() bool {
	c, err := net.DialTimeout("unix", SocketPath(), 500*time.Millisecond)
	if err != nil {
		return false
	}
	_ = c.Close()
	return true
}

// Listen opens the socket, replacing a stale file left by a crashed run.
// The socket is only accessible to the current user.
func Listen() (net.Listener, error) {
	path := SocketPath()
	if IsRunning() {
		return nil, errors.Wrap(ErrInUse, path)
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return nil, errors.Wrap(err, "socket dir")
	}
	_ = os.Remove(path)
	ln, err := net.Listen("unix", path)
	if err != nil {
		return nil, errors.Wrapf(err, "listen %s", path)
	}
	if err := os.Chmod(path, 0o600); err != nil {
		_ = ln.Close()
		return nil, errors.Wrap(err, "chmod socket")
	}
	return ln, nil
}
