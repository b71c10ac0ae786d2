package mesh

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"time"

	"github.com/pion/webrtc/v4"
	"github.com/rs/zerolog/log"
)

const (
	maxRetries        = 3
	defaultRetryDelay = 2 * time.Second
)

var ErrAlreadyInitialized = errors.New("mesh endpoint already initialized")

// link tracks one live connection to a remote peer.
type link struct {
	remoteID string
	call     Call
}

// Manager keeps one outbound or inbound camera link per known peer and
// retries failed links with a bounded backoff. A peer connection is
// only attempted after the core confirmed the remote is a roommate.
type Manager struct {
	mu       sync.Mutex
	endpoint Endpoint
	factory  EndpointFactory
	source   MediaSource
	events   Events
	notifier Notifier

	sessionID   string
	localStream MediaStream
	links       map[string]*link
	retries     map[string]int
	retryDelay  time.Duration
	shut        bool

	screen *ScreenShare
}

type Option func(*Manager)

func WithEndpointFactory(f EndpointFactory) Option {
	return func(m *Manager) { m.factory = f }
}

// WithRetryDelay shortens the reconnect spacing in tests.
func WithRetryDelay(d time.Duration) Option {
	return func(m *Manager) { m.retryDelay = d }
}

func NewManager(source MediaSource, notifier Notifier, events Events, opts ...Option) *Manager {
	m := &Manager{
		source:     source,
		events:     events,
		notifier:   notifier,
		links:      make(map[string]*link),
		retries:    make(map[string]int),
		retryDelay: defaultRetryDelay,
	}
	for _, o := range opts {
		o(m)
	}
	m.screen = newScreenShare(m)
	return m
}

// Initialize binds the local identity and opens the endpoint. An
// identity already bound elsewhere propagates as an error, no retry.
func (m *Manager) Initialize(localID string, iceServers []webrtc.ICEServer) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.endpoint != nil {
		return ErrAlreadyInitialized
	}
	if m.factory == nil {
		return errors.New("no endpoint factory configured")
	}
	ep, err := m.factory(localID, iceServers)
	if err != nil {
		return err
	}
	m.sessionID = localID
	m.endpoint = ep
	ep.OnCall(m.handleIncomingCall)
	log.Info().Str("module", "mesh").Str("sid", localID).Msg("endpoint initialized")
	return nil
}

func (m *Manager) SessionID() string    { return m.sessionID }
func (m *Manager) Screen() *ScreenShare { return m.screen }

// SetupLocalStream acquires camera and microphone. Failure is a state,
// not an error: the mesh keeps running without local media and the
// rendering layer learns about it through events.
func (m *Manager) SetupLocalStream(ctx context.Context) {
	stream, err := m.source.UserMedia(ctx)
	if err != nil {
		log.Error().Err(err).Str("module", "mesh").Msg("local media unavailable")
		m.events.localStreamError(err)
		return
	}
	m.mu.Lock()
	m.localStream = stream
	m.mu.Unlock()
	m.events.streamAdded(m.sessionID, StreamCamera, stream)
}

// HandlePlayerJoined is the fresh-join trigger: it resets the retry
// budget for the peer and starts a connection.
func (m *Manager) HandlePlayerJoined(remoteID string) {
	if remoteID == m.sessionID {
		return
	}
	m.mu.Lock()
	delete(m.retries, remoteID)
	m.mu.Unlock()
	m.InitiatePeerConnection(remoteID)
}

// InitiatePeerConnection opens an outbound camera call. It is a no-op
// while a link already exists or the endpoint/local stream is not
// ready.
func (m *Manager) InitiatePeerConnection(remoteID string) {
	m.mu.Lock()
	if m.shut || m.endpoint == nil || m.localStream == nil {
		m.mu.Unlock()
		log.Debug().Str("module", "mesh").Str("peer", remoteID).Msg("not ready to initiate")
		return
	}
	if _, ok := m.links[remoteID]; ok {
		m.mu.Unlock()
		return
	}

	call, err := m.endpoint.Dial(remoteID, m.localStream, CallMeta{Kind: StreamCamera})
	if err != nil {
		log.Error().Err(err).Str("module", "mesh").Str("peer", remoteID).Msg("dial failed")
		m.scheduleRetryLocked(remoteID)
		m.mu.Unlock()
		return
	}
	m.links[remoteID] = &link{remoteID: remoteID, call: call}
	m.mu.Unlock()

	m.wireCall(remoteID, call, true)
	log.Info().Str("module", "mesh").Str("peer", remoteID).Msg("initiated connection")
}

func (m *Manager) handleIncomingCall(call Call) {
	if call.Meta().Kind == StreamScreen {
		m.screen.handleIncoming(call)
		return
	}

	m.mu.Lock()
	if m.shut {
		m.mu.Unlock()
		call.Close()
		return
	}
	local := m.localStream
	m.links[call.Peer()] = &link{remoteID: call.Peer(), call: call}
	m.mu.Unlock()

	// Answering without local media is a legal asymmetric call.
	if err := call.Answer(local); err != nil {
		log.Error().Err(err).Str("module", "mesh").Str("peer", call.Peer()).Msg("answer failed")
		m.dropLink(call.Peer(), false)
		return
	}
	m.wireCall(call.Peer(), call, false)
}

// wireCall registers stream/close/error callbacks. Only outbound call
// failures are retried; an inbound peer redials on its own schedule.
func (m *Manager) wireCall(remoteID string, call Call, outbound bool) {
	call.OnStream(func(s MediaStream) {
		log.Info().Str("module", "mesh").Str("peer", remoteID).Msg("received stream")
		m.events.streamAdded(remoteID, StreamCamera, s)
	})
	call.OnClose(func() {
		log.Info().Str("module", "mesh").Str("peer", remoteID).Msg("connection closed")
		m.dropLink(remoteID, false)
	})
	call.OnError(func(err error) {
		log.Error().Err(err).Str("module", "mesh").Str("peer", remoteID).Msg("connection error")
		m.dropLink(remoteID, outbound)
	})
}

// HandlePeerLeft tears the peer's link down for good; the retry budget
// is cleared so a future join starts fresh.
func (m *Manager) HandlePeerLeft(remoteID string) {
	m.mu.Lock()
	delete(m.retries, remoteID)
	m.mu.Unlock()
	m.dropLink(remoteID, false)
	m.screen.handlePeerLeft(remoteID)
}

func (m *Manager) dropLink(remoteID string, retry bool) {
	m.mu.Lock()
	l, ok := m.links[remoteID]
	if ok {
		delete(m.links, remoteID)
	}
	if retry && !m.shut {
		m.scheduleRetryLocked(remoteID)
	}
	m.mu.Unlock()

	if !ok {
		return
	}
	l.call.Close()
	m.events.streamRemoved(remoteID, StreamCamera)
}

// scheduleRetryLocked arms one delayed reconnect attempt. After the
// budget is spent the peer is abandoned until a fresh join notification
// resets the counter. Caller holds m.mu.
func (m *Manager) scheduleRetryLocked(remoteID string) {
	if m.retries[remoteID] >= maxRetries {
		log.Warn().Str("module", "mesh").Str("peer", remoteID).Msg("retry budget exhausted, abandoning peer")
		return
	}
	m.retries[remoteID]++
	attempt := m.retries[remoteID]
	log.Info().Str("module", "mesh").Str("peer", remoteID).Int("attempt", attempt).Msg("scheduling reconnect")
	time.AfterFunc(m.retryDelay, func() {
		m.InitiatePeerConnection(remoteID)
	})
}

// HandleSignal feeds a relayed payload into the endpoint.
func (m *Manager) HandleSignal(from string, payload json.RawMessage) {
	m.mu.Lock()
	ep := m.endpoint
	m.mu.Unlock()
	if rx, ok := ep.(SignalReceiver); ok {
		rx.HandleSignal(from, payload)
	}
}

// ConnectionCount reports live camera links.
func (m *Manager) ConnectionCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.links)
}

// Shutdown closes the endpoint, every tracked connection and all local
// media. Safe to call even if Initialize never completed, and safe to
// call twice.
func (m *Manager) Shutdown() {
	m.screen.Stop()

	m.mu.Lock()
	if m.shut {
		m.mu.Unlock()
		return
	}
	m.shut = true
	links := m.links
	m.links = make(map[string]*link)
	m.retries = make(map[string]int)
	ep := m.endpoint
	m.endpoint = nil
	stream := m.localStream
	m.localStream = nil
	m.mu.Unlock()

	for _, l := range links {
		l.call.Close()
		m.events.streamRemoved(l.remoteID, StreamCamera)
	}
	if stream != nil {
		stream.Stop()
	}
	if ep != nil {
		if err := ep.Close(); err != nil {
			log.Error().Err(err).Str("module", "mesh").Msg("endpoint close")
		}
	}
	log.Info().Str("module", "mesh").Str("sid", m.sessionID).Msg("mesh shut down")
}
