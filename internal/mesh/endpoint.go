// Package mesh maintains the client-side full mesh of direct media
// connections: one link per roommate, bootstrapped through the session
// core's signaling relay and self-healing on transient failure.
package mesh

import (
	"context"
	"encoding/json"

	"github.com/pion/webrtc/v4"
)

type StreamKind string

const (
	StreamCamera StreamKind = "camera"
	StreamScreen StreamKind = "screen"
)

// MediaStream is a handle to a bundle of local or remote tracks.
type MediaStream interface {
	ID() string
	Stop()
}

// LocalTracks is implemented by local streams that carry pion tracks;
// the rtc endpoint attaches them to outbound calls.
type LocalTracks interface {
	Tracks() []webrtc.TrackLocal
}

// CallMeta tags a call so the callee can tell a screen capture from a
// camera stream before answering.
type CallMeta struct {
	Kind StreamKind `json:"kind"`
}

// Call is one media connection to a remote peer.
type Call interface {
	Peer() string
	Meta() CallMeta
	// Answer accepts an incoming call; local may be nil for a one-way
	// call (screen shares are never answered with a return stream).
	Answer(local MediaStream) error
	OnStream(func(MediaStream))
	OnClose(func())
	OnError(func(error))
	Close()
}

// Endpoint hands out and accepts calls under a bound local identity.
type Endpoint interface {
	Dial(remoteID string, local MediaStream, meta CallMeta) (Call, error)
	OnCall(func(Call))
	Close() error
}

// EndpointFactory opens an endpoint bound to localID. Binding an
// identity that is already taken elsewhere fails here, with no retry.
type EndpointFactory func(localID string, iceServers []webrtc.ICEServer) (Endpoint, error)

// SignalReceiver is implemented by endpoints fed from the core's
// webrtc-signal relay.
type SignalReceiver interface {
	HandleSignal(from string, payload json.RawMessage)
}

// MediaSource acquires local capture streams. Real capture devices are
// host-environment glue; anything satisfying this works.
type MediaSource interface {
	UserMedia(ctx context.Context) (MediaStream, error)
	DisplayMedia(ctx context.Context) (MediaStream, error)
}

// Notifier sends an intent to the session core.
type Notifier interface {
	Send(typ string, v any) error
}

// Events surfaces mesh changes to the rendering layer as state
// changes, never as panics or thrown errors.
type Events struct {
	StreamAdded      func(peerID string, kind StreamKind, stream MediaStream)
	StreamRemoved    func(peerID string, kind StreamKind)
	LocalStreamError func(err error)
	MediaState       func(peerID string, videoEnabled, audioEnabled bool)
}

func (e Events) streamAdded(peerID string, kind StreamKind, s MediaStream) {
	if e.StreamAdded != nil {
		e.StreamAdded(peerID, kind, s)
	}
}

func (e Events) streamRemoved(peerID string, kind StreamKind) {
	if e.StreamRemoved != nil {
		e.StreamRemoved(peerID, kind)
	}
}

func (e Events) localStreamError(err error) {
	if e.LocalStreamError != nil {
		e.LocalStreamError(err)
	}
}
