package call

import (
	"context"
	"encoding/json"
)

// Stream is acquired local media.
type Stream interface {
	// Stop ends every track of the stream.
	Stop()
}

// MediaSource asks for camera and microphone access.
type MediaSource interface {
	Acquire(ctx context.Context) (Stream, error)
}

// Peer is one peer connection. Signaling payloads are opaque to the session.
type Peer interface {
	// CreateOffer starts negotiation and returns the offer to send.
	CreateOffer(ctx context.Context) (json.RawMessage, error)
	// HandleSignal applies a payload from the remote side and returns the
	// payload to send back, if any (an answer to an offer).
	HandleSignal(ctx context.Context, payload json.RawMessage) (json.RawMessage, error)
	Close() error
}

// PeerConfig is handed to a PeerFactory. The callbacks may be invoked from
// any goroutine.
type PeerConfig struct {
	Stream Stream
	// Emit sends a locally generated payload such as an ICE candidate.
	Emit func(payload json.RawMessage)
	// OnConnState reports transport changes.
	OnConnState func(ConnState)
}

type PeerFactory func(cfg PeerConfig) (Peer, error)

// SignalKind classifies what the relay delivered.
type SignalKind int

const (
	PeerJoined SignalKind = iota
	PeerLeft
	SignalPayload
	RelayError
	Disconnected
	Notification
)

// SignalEvent is one inbound relay message. From is the sender's connection
// id; for RelayError, Code and Message describe the rejection and Event is
// the rejected control message.
type SignalEvent struct {
	Kind    SignalKind
	From    string
	Data    json.RawMessage
	Code    string
	Message string
	Event   string
	Name    string
}

// Signaler is the client end of the signaling relay.
type Signaler interface {
	Join(ctx context.Context, room string) error
	Leave(ctx context.Context, room string) error
	Send(ctx context.Context, room string, payload json.RawMessage) error
	Events() <-chan SignalEvent
}

// Completer marks the appointment behind a call as completed.
type Completer interface {
	Complete(ctx context.Context, appointmentID string) error
}
