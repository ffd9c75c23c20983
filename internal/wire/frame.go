package wire

import (
	"encoding/json"
	"errors"
	"fmt"
)

// FrameType discriminates the outer envelope carried on a socket.
type FrameType string

const (
	FrameAuthChallenge FrameType = "auth-challenge"
	FrameAuthResponse  FrameType = "auth-response"
	FrameRegistered    FrameType = "registered"
	FrameHeartbeat     FrameType = "heartbeat"
	FrameRequest       FrameType = "rpc-request"
	FrameResponse      FrameType = "rpc-response"
	FrameEvent         FrameType = "rpc-event"
	FrameError         FrameType = "error"
)

// Frame is the outer envelope: one frame per socket message. Payload holds
// the type-specific body.
type Frame struct {
	Type    FrameType       `json:"type"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

// AuthChallenge is sent by the router immediately after a card host connects.
type AuthChallenge struct {
	Challenge ByteSeq `json:"challenge"`
}

// AuthResponse is the card host's reply to a challenge: its stable
// identifier, its public key, and a signature over the challenge bytes.
type AuthResponse struct {
	CardhostID string  `json:"cardhostId"`
	PublicKey  ByteSeq `json:"publicKey"`
	Signature  ByteSeq `json:"signature"`
}

// Registered confirms a successful card-host registration.
type Registered struct {
	CardhostID string `json:"cardhostId"`
}

// Heartbeat is exchanged periodically in both directions to keep sessions
// alive. Seq is informational.
type Heartbeat struct {
	Seq int64 `json:"seq,omitempty"`
}

// FrameErrorBody reports a connection-level error before the router closes
// the socket.
type FrameErrorBody struct {
	Code    ErrorCode `json:"code"`
	Message string    `json:"message"`
}

// NewFrame builds a frame with a marshaled payload.
func NewFrame(t FrameType, payload any) (*Frame, error) {
	f := &Frame{Type: t}
	if payload != nil {
		raw, err := json.Marshal(payload)
		if err != nil {
			return nil, err
		}
		f.Payload = raw
	}
	return f, nil
}

// MustFrame builds a frame and panics on marshal failure. Only used with
// payload types defined in this package, which always marshal.
func MustFrame(t FrameType, payload any) *Frame {
	f, err := NewFrame(t, payload)
	if err != nil {
		panic(err)
	}
	return f
}

// ParseFrame unmarshals an outer envelope. An unparsable envelope or an
// unknown frame type is a protocol violation; callers close the connection.
func ParseFrame(data []byte) (*Frame, error) {
	var f Frame
	if err := json.Unmarshal(data, &f); err != nil {
		return nil, err
	}
	switch f.Type {
	case FrameAuthChallenge, FrameAuthResponse, FrameRegistered,
		FrameHeartbeat, FrameRequest, FrameResponse, FrameEvent, FrameError:
		return &f, nil
	case "":
		return nil, errors.New("frame missing type")
	default:
		return nil, fmt.Errorf("unknown frame type: %s", f.Type)
	}
}

// DecodePayload unmarshals a frame payload into the given struct pointer.
func DecodePayload(f *Frame, v any) error {
	if len(f.Payload) == 0 {
		return errors.New("frame missing payload")
	}
	return json.Unmarshal(f.Payload, v)
}
