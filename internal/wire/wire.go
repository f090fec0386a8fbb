// Package wire frames agent-protocol messages over a stream connection.
//
// Every frame is one line. Without a key the line is the frame's JSON; with
// a key it is the base64 of the sealed JSON, so framing is identical either
// way:
//
//	<json>\n
//	<base64(nonce+ciphertext)>\n
package wire

import (
	"bufio"
	"encoding/base64"
	"io"
	"net"
	"sync"
	"time"

	"github.com/cockroachdb/errors"

	"go.klb.dev/clipkeep/internal/crypto"
	"go.klb.dev/clipkeep/internal/message"
)

const (
	// MaxFrameSize is the longest line accepted (16 MiB).
	MaxFrameSize = 16 * 1024 * 1024

	writeTimeout = 5 * time.Second
)

// Conn reads and writes frames. Writes are safe for concurrent use; reads
// must come from a single goroutine.
type Conn struct {
	conn net.Conn
	sc   *bufio.Scanner
	key  *crypto.Key

	wmu sync.Mutex
}

// New wraps conn. A nil key leaves frames in clear text.
func New(conn net.Conn, key *crypto.Key) *Conn {
	sc := bufio.NewScanner(conn)
	sc.Buffer(make([]byte, 0, 64*1024), MaxFrameSize)
	return &Conn{conn: conn, sc: sc, key: key}
}

// Encrypted reports whether frames are sealed.
func (c *Conn) Encrypted() bool { return c.key != nil }

// SetReadTimeout bounds the next reads; zero clears the deadline.
func (c *Conn) SetReadTimeout(d time.Duration) {
	var t time.Time
	if d > 0 {
		t = time.Now().Add(d)
	}
	_ = c.conn.SetReadDeadline(t)
}

// Close closes the underlying connection.
func (c *Conn) Close() error { return c.conn.Close() }

// RemoteAddr returns the remote network address.
func (c *Conn) RemoteAddr() net.Addr { return c.conn.RemoteAddr() }

// WriteFrame encodes, optionally seals, and writes f as one line.
func (c *Conn) WriteFrame(f *message.Frame) error {
	raw, err := f.Encode()
	if err != nil {
		return errors.Wrap(err, "encode frame")
	}
	if c.key != nil {
		sealed, err := c.key.Seal(raw)
		if err != nil {
			return errors.Wrap(err, "seal frame")
		}
		raw = []byte(base64.StdEncoding.EncodeToString(sealed))
	}
	line := append(raw, '\n')

	c.wmu.Lock()
	defer c.wmu.Unlock()
	_ = c.conn.SetWriteDeadline(time.Now().Add(writeTimeout))
	defer func() { _ = c.conn.SetWriteDeadline(time.Time{}) }()
	_, err = c.conn.Write(line)
	return err
}

// ReadFrame reads the next line and decodes it. io.EOF is returned as is
// when the peer closes cleanly.
func (c *Conn) ReadFrame() (*message.Frame, error) {
	if !c.sc.Scan() {
		if err := c.sc.Err(); err != nil {
			if errors.Is(err, bufio.ErrTooLong) {
				return nil, errors.Wrapf(err, "frame exceeds %d bytes", MaxFrameSize)
			}
			return nil, err
		}
		return nil, io.EOF
	}
	line := c.sc.Bytes()
	if c.key != nil {
		sealed, err := base64.StdEncoding.DecodeString(string(line))
		if err != nil {
			return nil, errors.Wrap(err, "base64 decode")
		}
		if line, err = c.key.Open(sealed); err != nil {
			return nil, err
		}
	}
	return message.DecodeFrame(line)
}
