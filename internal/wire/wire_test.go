package wire

import (
	"bufio"
	"io"
	"net"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"go.klb.dev/clipkeep/internal/crypto"
	"go.klb.dev/clipkeep/internal/message"
)

func pipe(t *testing.T, ka, kb *crypto.Key) (*Conn, *Conn) {
	t.Helper()
	a, b := net.Pipe()
	t.Cleanup(func() {
		_ = a.Close()
		_ = b.Close()
	})
	return New(a, ka), New(b, kb)
}

func send(t *testing.T, c *Conn, f *message.Frame) {
	t.Helper()
	go func() { assert.NoError(t, c.WriteFrame(f)) }()
}

func TestFrameRoundTrip(t *testing.T) {
	a, b := pipe(t, nil, nil)

	req, err := message.NewRequestFrame(7, message.AddToHistory{Text: "hi", Source: "x"})
	require.NoError(t, err)
	send(t, a, req)

	got, err := b.ReadFrame()
	require.NoError(t, err)
	assert.Equal(t, message.FrameRequest, got.Type)
	assert.Equal(t, uint64(7), got.ID)

	r, err := message.DecodeRequest(got.Request)
	require.NoError(t, err)
	assert.Equal(t, message.AddToHistory{Text: "hi", Source: "x"}, r)
}

func TestEncryptedRoundTrip(t *testing.T) {
	k, err := crypto.DeriveKey("token")
	require.NoError(t, err)
	a, b := pipe(t, k, k)
	assert.True(t, a.Encrypted())

	send(t, a, &message.Frame{Type: message.FrameNotify, Notification: &message.Notification{
		Action: message.NotifyPasteText, Text: "secret text",
	}})
	got, err := b.ReadFrame()
	require.NoError(t, err)
	require.NotNil(t, got.Notification)
	assert.Equal(t, "secret text", got.Notification.Text)
}

func TestEncryptedIsNotPlaintext(t *testing.T) {
	k, err := crypto.DeriveKey("token")
	require.NoError(t, err)
	ca, cb := net.Pipe()
	defer ca.Close()
	defer cb.Close()

	go func() {
		_ = New(ca, k).WriteFrame(&message.Frame{Type: message.FramePing, Error: "visible?"})
	}()
	line, err := bufio.NewReader(cb).ReadString('\n')
	require.NoError(t, err)
	assert.NotContains(t, line, "visible?")
	assert.NotContains(t, line, "PING")
}

func TestWrongKey(t *testing.T) {
	ka, err := crypto.DeriveKey("one")
	require.NoError(t, err)
	kb, err := crypto.DeriveKey("two")
	require.NoError(t, err)
	a, b := pipe(t, ka, kb)

	send(t, a, &message.Frame{Type: message.FramePing})
	_, err = b.ReadFrame()
	require.ErrorIs(t, err, crypto.ErrOpen)
}

func TestReadFrame_EOF(t *testing.T) {
	c := New(fakeConn{Reader: strings.NewReader("")}, nil)
	_, err := c.ReadFrame()
	require.ErrorIs(t, err, io.EOF)
}

func TestReadFrame_Malformed(t *testing.T) {
	c := New(fakeConn{Reader: strings.NewReader("{not json\n")}, nil)
	_, err := c.ReadFrame()
	require.Error(t, err)
}

func TestReadFrame_TooLarge(t *testing.T) {
	big := strings.Repeat("x", MaxFrameSize+1) + "\n"
	c := New(fakeConn{Reader: strings.NewReader(big)}, nil)
	_, err := c.ReadFrame()
	require.ErrorIs(t, err, bufio.ErrTooLong)
}

// fakeConn is a read-only net.Conn over an io.Reader.
type fakeConn struct {
	io.Reader
	net.Conn
}

func (f fakeConn) Read(p []byte) (int, error) { return f.Reader.Read(p) }
