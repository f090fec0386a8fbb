package message

import (
	"encoding/json"
	"time"

	"github.com/cockroachdb/errors"
)

// FrameType identifies an agent-protocol frame.
type FrameType string

const (
	FrameAuth     FrameType = "AUTH"
	FrameRequest  FrameType = "REQUEST"
	FrameResponse FrameType = "RESPONSE"
	FrameNotify   FrameType = "NOTIFY"
	FramePing     FrameType = "PING"
	FramePong     FrameType = "PONG"
	FrameError    FrameType = "ERROR"
)

// Role identifies what kind of context a subscriber is.
type Role string

const (
	RoleAgent Role = "agent" // per-page capture agent
	RoleUI    Role = "ui"    // popup / options page / CLI watcher
	RoleLocal Role = "local" // the daemon's own clipboard
)

// PeerInfo carries metadata about an attached context, used in status output.
type PeerInfo struct {
	ID          string    `json:"id"`
	Source      string    `json:"source"`
	Addr        string    `json:"addr"`
	Role        Role      `json:"role"`
	ConnectedAt time.Time `json:"connected_at"`
	LastSeen    time.Time `json:"last_seen"`
}

// Frame is the agent-protocol envelope. Exactly one payload field is set
// depending on Type.
type Frame struct {
	Type FrameType `json:"type"`

	// ID correlates a REQUEST with its RESPONSE.
	ID uint64 `json:"id,omitempty"`

	// AUTH: the token is base64-encoded in Payload.
	Source  string `json:"source,omitempty"`
	Role    Role   `json:"role,omitempty"`
	Payload string `json:"payload,omitempty"`

	// REQUEST: a tagged request object, see DecodeRequest.
	Request json.RawMessage `json:"request,omitempty"`

	// RESPONSE
	Response *Response `json:"response,omitempty"`

	// NOTIFY
	Notification *Notification `json:"notification,omitempty"`

	// ERROR
	Error string `json:"error,omitempty"`
}

// NewRequestFrame wraps r in a REQUEST frame with the given correlation ID.
func NewRequestFrame(id uint64, r Request) (*Frame, error) {
	raw, err := EncodeRequest(r)
	if err != nil {
		return nil, err
	}
	return &Frame{Type: FrameRequest, ID: id, Request: raw}, nil
}

// Encode serialises the frame to JSON without a trailing newline.
func (f *Frame) Encode() ([]byte, error) {
	return json.Marshal(f)
}

// DecodeFrame deserialises a frame from raw JSON bytes.
func DecodeFrame(b []byte) (*Frame, error) {
	var f Frame
	if err := json.Unmarshal(b, &f); err != nil {
		return nil, errors.Wrap(err, "frame decode")
	}
	return &f, nil
}
