package mesh

import (
	"encoding/json"
	"errors"
	"sync"

	"github.com/google/uuid"
	"github.com/pion/webrtc/v4"
	"github.com/rs/zerolog/log"
)

// Signaler carries opaque payloads to one peer through the core relay.
type Signaler interface {
	Signal(to string, payload json.RawMessage) error
}

// rtcSignal is the payload relayed between two endpoints for one call.
type rtcSignal struct {
	CallID    string                   `json:"callId"`
	Kind      string                   `json:"kind"` // offer | answer | candidate | bye
	Meta      CallMeta                 `json:"meta,omitempty"`
	SDP       string                   `json:"sdp,omitempty"`
	Candidate *webrtc.ICECandidateInit `json:"candidate,omitempty"`
}

// RTCEndpoint implements Endpoint on pion peer connections, one per
// call, negotiated over the session core's webrtc-signal relay.
type RTCEndpoint struct {
	localID string
	cfg     webrtc.Configuration
	sig     Signaler

	mu     sync.Mutex
	onCall func(Call)
	calls  map[string]*rtcCall
	closed bool
}

// RTCFactory builds the default EndpointFactory over a signaler.
func RTCFactory(sig Signaler) EndpointFactory {
	return func(localID string, iceServers []webrtc.ICEServer) (Endpoint, error) {
		return NewRTCEndpoint(localID, iceServers, sig), nil
	}
}

func NewRTCEndpoint(localID string, iceServers []webrtc.ICEServer, sig Signaler) *RTCEndpoint {
	cfg := webrtc.Configuration{ICEServers: iceServers}
	if len(cfg.ICEServers) == 0 {
		cfg.ICEServers = []webrtc.ICEServer{{URLs: []string{"stun:stun.l.google.com:19302"}}}
	}
	return &RTCEndpoint{
		localID: localID,
		cfg:     cfg,
		sig:     sig,
		calls:   make(map[string]*rtcCall),
	}
}

func (e *RTCEndpoint) OnCall(fn func(Call)) {
	e.mu.Lock()
	e.onCall = fn
	e.mu.Unlock()
}

func (e *RTCEndpoint) Dial(remoteID string, local MediaStream, meta CallMeta) (Call, error) {
	e.mu.Lock()
	if e.closed {
		e.mu.Unlock()
		return nil, errors.New("endpoint closed")
	}
	e.mu.Unlock()

	pc, err := webrtc.NewPeerConnection(e.cfg)
	if err != nil {
		return nil, err
	}
	c := e.newCall(uuid.NewString(), remoteID, meta, pc)

	if err := addLocalTracks(pc, local); err != nil {
		c.teardown()
		return nil, err
	}

	offer, err := pc.CreateOffer(nil)
	if err != nil {
		c.teardown()
		return nil, err
	}
	if err := pc.SetLocalDescription(offer); err != nil {
		c.teardown()
		return nil, err
	}
	if err := e.send(remoteID, rtcSignal{CallID: c.id, Kind: "offer", Meta: meta, SDP: offer.SDP}); err != nil {
		c.teardown()
		return nil, err
	}
	return c, nil
}

// HandleSignal feeds one relayed payload into the endpoint.
func (e *RTCEndpoint) HandleSignal(from string, payload json.RawMessage) {
	var sig rtcSignal
	if err := json.Unmarshal(payload, &sig); err != nil {
		log.Error().Err(err).Str("module", "mesh.rtc").Msg("bad signal payload")
		return
	}

	switch sig.Kind {
	case "offer":
		e.handleOffer(from, sig)
	case "answer":
		if c, ok := e.call(sig.CallID); ok {
			desc := webrtc.SessionDescription{Type: webrtc.SDPTypeAnswer, SDP: sig.SDP}
			if err := c.pc.SetRemoteDescription(desc); err != nil {
				log.Error().Err(err).Str("module", "mesh.rtc").Msg("apply answer")
				c.fail(err)
			}
		}
	case "candidate":
		if c, ok := e.call(sig.CallID); ok && sig.Candidate != nil {
			if err := c.pc.AddICECandidate(*sig.Candidate); err != nil {
				log.Error().Err(err).Str("module", "mesh.rtc").Msg("add ice candidate")
			}
		}
	case "bye":
		if c, ok := e.call(sig.CallID); ok {
			c.remoteClose()
		}
	default:
		log.Warn().Str("module", "mesh.rtc").Str("kind", sig.Kind).Msg("unknown signal kind")
	}
}

func (e *RTCEndpoint) handleOffer(from string, sig rtcSignal) {
	pc, err := webrtc.NewPeerConnection(e.cfg)
	if err != nil {
		log.Error().Err(err).Str("module", "mesh.rtc").Msg("new pc for offer")
		return
	}
	c := e.newCall(sig.CallID, from, sig.Meta, pc)

	desc := webrtc.SessionDescription{Type: webrtc.SDPTypeOffer, SDP: sig.SDP}
	if err := pc.SetRemoteDescription(desc); err != nil {
		log.Error().Err(err).Str("module", "mesh.rtc").Msg("apply offer")
		c.teardown()
		return
	}

	e.mu.Lock()
	onCall := e.onCall
	e.mu.Unlock()
	if onCall == nil {
		log.Warn().Str("module", "mesh.rtc").Str("from", from).Msg("no call handler, dropping offer")
		c.teardown()
		return
	}
	onCall(c)
}

func (e *RTCEndpoint) newCall(id, peer string, meta CallMeta, pc *webrtc.PeerConnection) *rtcCall {
	c := &rtcCall{id: id, peer: peer, meta: meta, pc: pc, ep: e}

	pc.OnICECandidate(func(cand *webrtc.ICECandidate) {
		if cand == nil {
			return
		}
		ci := cand.ToJSON()
		if err := e.send(peer, rtcSignal{CallID: id, Kind: "candidate", Candidate: &ci}); err != nil {
			log.Warn().Err(err).Str("module", "mesh.rtc").Str("peer", peer).Msg("send candidate")
		}
	})

	pc.OnTrack(func(track *webrtc.TrackRemote, _ *webrtc.RTPReceiver) {
		log.Info().
			Str("module", "mesh.rtc").
			Str("peer", peer).
			Str("kind", track.Kind().String()).
			Str("stream_id", track.StreamID()).
			Msg("OnTrack received")
		c.addRemoteTrack(track)
	})

	pc.OnConnectionStateChange(func(s webrtc.PeerConnectionState) {
		log.Info().Str("module", "mesh.rtc").Str("peer", peer).Str("state", s.String()).Msg("peer state")
		switch s {
		case webrtc.PeerConnectionStateFailed:
			c.fail(errors.New("peer connection failed"))
		case webrtc.PeerConnectionStateClosed:
			c.remoteClose()
		}
	})

	e.mu.Lock()
	e.calls[id] = c
	e.mu.Unlock()
	return c
}

func (e *RTCEndpoint) call(id string) (*rtcCall, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	c, ok := e.calls[id]
	return c, ok
}

func (e *RTCEndpoint) forget(id string) {
	e.mu.Lock()
	delete(e.calls, id)
	e.mu.Unlock()
}

func (e *RTCEndpoint) send(to string, sig rtcSignal) error {
	payload, err := json.Marshal(sig)
	if err != nil {
		return err
	}
	return e.sig.Signal(to, payload)
}

func (e *RTCEndpoint) Close() error {
	e.mu.Lock()
	if e.closed {
		e.mu.Unlock()
		return nil
	}
	e.closed = true
	calls := make([]*rtcCall, 0, len(e.calls))
	for _, c := range e.calls {
		calls = append(calls, c)
	}
	e.calls = make(map[string]*rtcCall)
	e.mu.Unlock()

	for _, c := range calls {
		c.teardown()
	}
	return nil
}

func addLocalTracks(pc *webrtc.PeerConnection, stream MediaStream) error {
	lt, ok := stream.(LocalTracks)
	if !ok || stream == nil {
		return nil
	}
	for _, track := range lt.Tracks() {
		if _, err := pc.AddTrack(track); err != nil {
			return err
		}
	}
	return nil
}

// rtcCall is one negotiated peer connection.
type rtcCall struct {
	id   string
	peer string
	meta CallMeta
	pc   *webrtc.PeerConnection
	ep   *RTCEndpoint

	mu       sync.Mutex
	onStream func(MediaStream)
	onClose  func()
	onError  func(error)
	remote   *remoteStream
	closed   bool
}

func (c *rtcCall) Peer() string   { return c.peer }
func (c *rtcCall) Meta() CallMeta { return c.meta }

func (c *rtcCall) OnStream(fn func(MediaStream)) {
	c.mu.Lock()
	c.onStream = fn
	pending := c.remote
	c.mu.Unlock()
	// A track can beat the handler registration.
	if pending != nil && fn != nil {
		fn(pending)
	}
}

func (c *rtcCall) OnClose(fn func()) {
	c.mu.Lock()
	c.onClose = fn
	c.mu.Unlock()
}

func (c *rtcCall) OnError(fn func(error)) {
	c.mu.Lock()
	c.onError = fn
	c.mu.Unlock()
}

// Answer accepts an incoming offer, attaching local tracks when a
// return stream is wanted.
func (c *rtcCall) Answer(local MediaStream) error {
	if local != nil {
		if err := addLocalTracks(c.pc, local); err != nil {
			return err
		}
	}
	answer, err := c.pc.CreateAnswer(nil)
	if err != nil {
		return err
	}
	if err := c.pc.SetLocalDescription(answer); err != nil {
		return err
	}
	return c.ep.send(c.peer, rtcSignal{CallID: c.id, Kind: "answer", SDP: answer.SDP})
}

func (c *rtcCall) addRemoteTrack(track *webrtc.TrackRemote) {
	c.mu.Lock()
	if c.remote == nil {
		c.remote = &remoteStream{id: track.StreamID()}
	}
	c.remote.tracks = append(c.remote.tracks, track)
	first := len(c.remote.tracks) == 1
	fn := c.onStream
	stream := c.remote
	c.mu.Unlock()

	if first && fn != nil {
		fn(stream)
	}
}

func (c *rtcCall) fail(err error) {
	c.mu.Lock()
	fn := c.onError
	c.mu.Unlock()
	if fn != nil {
		fn(err)
	}
	c.teardown()
}

func (c *rtcCall) remoteClose() {
	c.mu.Lock()
	fn := c.onClose
	c.mu.Unlock()
	if fn != nil {
		fn()
	}
	c.teardown()
}

// Close hangs up locally and tells the remote side.
func (c *rtcCall) Close() {
	c.mu.Lock()
	alreadyClosed := c.closed
	c.mu.Unlock()
	if alreadyClosed {
		return
	}
	if err := c.ep.send(c.peer, rtcSignal{CallID: c.id, Kind: "bye"}); err != nil {
		log.Debug().Err(err).Str("module", "mesh.rtc").Str("peer", c.peer).Msg("send bye")
	}
	c.teardown()
}

func (c *rtcCall) teardown() {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return
	}
	c.closed = true
	c.mu.Unlock()

	c.ep.forget(c.id)
	if err := c.pc.Close(); err != nil {
		log.Error().Err(err).Str("module", "mesh.rtc").Str("peer", c.peer).Msg("close pc")
	}
}

// remoteStream wraps inbound tracks; stopping a remote stream is a
// rendering-side concern, the tracks die with the connection.
type remoteStream struct {
	id     string
	tracks []*webrtc.TrackRemote
}

func (r *remoteStream) ID() string { return r.id }
func (r *remoteStream) Stop()      {}
