package mesh

import (
	"context"
	"sync"

	"github.com/rs/zerolog/log"

	"github.com/officeverse/office/internal/protocol"
)

// ScreenShare arbitrates the single screen-share slot on the client
// side. The core holds the authoritative activePeerId; every client
// independently enforces "last start wins" when it observes a started
// event, so a double-start settles without a global lock.
type ScreenShare struct {
	m *Manager

	mu         sync.Mutex
	sharing    bool
	activePeer string
	stream     MediaStream
	calls      map[string]Call
}

func newScreenShare(m *Manager) *ScreenShare {
	return &ScreenShare{m: m, calls: make(map[string]Call)}
}

func (s *ScreenShare) Sharing() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.sharing
}

func (s *ScreenShare) ActivePeer() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.activePeer
}

// Start acquires a display capture and fans it out to every connected
// peer as a separately tagged stream. Starting while already sharing is
// silently treated as already-sharing.
func (s *ScreenShare) Start(ctx context.Context) error {
	s.mu.Lock()
	if s.sharing {
		s.mu.Unlock()
		return nil
	}
	stream, err := s.m.source.DisplayMedia(ctx)
	if err != nil {
		s.mu.Unlock()
		log.Error().Err(err).Str("module", "mesh.screen").Msg("display capture failed")
		return err
	}
	s.sharing = true
	s.activePeer = s.m.sessionID
	s.stream = stream
	s.mu.Unlock()

	s.m.events.streamAdded(s.m.sessionID, StreamScreen, stream)

	s.m.mu.Lock()
	endpoint := s.m.endpoint
	peers := make([]string, 0, len(s.m.links))
	for id := range s.m.links {
		peers = append(peers, id)
	}
	s.m.mu.Unlock()

	for _, peerID := range peers {
		call, err := endpoint.Dial(peerID, stream, CallMeta{Kind: StreamScreen})
		if err != nil {
			log.Error().Err(err).Str("module", "mesh.screen").Str("peer", peerID).Msg("share dial failed")
			continue
		}
		call.OnError(func(err error) {
			log.Error().Err(err).Str("module", "mesh.screen").Str("peer", peerID).Msg("share error")
		})
		s.mu.Lock()
		s.calls[peerID] = call
		s.mu.Unlock()
	}

	if err := s.m.notifier.Send(protocol.MsgScreenShareStarted, protocol.ScreenShareEvent{PeerID: s.m.sessionID}); err != nil {
		log.Error().Err(err).Str("module", "mesh.screen").Msg("notify start")
	}
	log.Info().Str("module", "mesh.screen").Str("sid", s.m.sessionID).Msg("screen share started")
	return nil
}

// Stop releases the capture and tells the core. Idempotent.
func (s *ScreenShare) Stop() {
	s.mu.Lock()
	if !s.sharing {
		s.mu.Unlock()
		return
	}
	s.sharing = false
	stream := s.stream
	s.stream = nil
	calls := s.calls
	s.calls = make(map[string]Call)
	if s.activePeer == s.m.sessionID {
		s.activePeer = ""
	}
	s.mu.Unlock()

	for _, c := range calls {
		c.Close()
	}
	if stream != nil {
		stream.Stop()
	}
	s.m.events.streamRemoved(s.m.sessionID, StreamScreen)

	if err := s.m.notifier.Send(protocol.MsgScreenShareStopped, protocol.ScreenShareEvent{PeerID: s.m.sessionID}); err != nil {
		log.Error().Err(err).Str("module", "mesh.screen").Msg("notify stop")
	}
	log.Info().Str("module", "mesh.screen").Str("sid", s.m.sessionID).Msg("screen share stopped")
}

// ShareWith extends a running share to one more peer, typically after a
// newcomer's camera link came up.
func (s *ScreenShare) ShareWith(peerID string) {
	s.mu.Lock()
	if !s.sharing || s.stream == nil {
		s.mu.Unlock()
		return
	}
	if _, ok := s.calls[peerID]; ok {
		s.mu.Unlock()
		return
	}
	stream := s.stream
	s.mu.Unlock()

	s.m.mu.Lock()
	endpoint := s.m.endpoint
	s.m.mu.Unlock()
	if endpoint == nil {
		return
	}
	call, err := endpoint.Dial(peerID, stream, CallMeta{Kind: StreamScreen})
	if err != nil {
		log.Error().Err(err).Str("module", "mesh.screen").Str("peer", peerID).Msg("share dial failed")
		return
	}
	s.mu.Lock()
	s.calls[peerID] = call
	s.mu.Unlock()
}

// HandleStarted reacts to a started broadcast: a newer share pre-empts
// an older one, so a locally active share stops itself.
func (s *ScreenShare) HandleStarted(peerID string) {
	s.mu.Lock()
	s.activePeer = peerID
	preempted := s.sharing && peerID != s.m.sessionID
	s.mu.Unlock()

	if preempted {
		log.Info().Str("module", "mesh.screen").Str("peer", peerID).Msg("pre-empted by newer share")
		s.Stop()
	}
}

func (s *ScreenShare) HandleStopped(peerID string) {
	s.mu.Lock()
	if s.activePeer == peerID {
		s.activePeer = ""
	}
	s.mu.Unlock()
	s.m.events.streamRemoved(peerID, StreamScreen)
}

// HandleStatus seeds the active sharer on join.
func (s *ScreenShare) HandleStatus(activePeerID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if activePeerID != "" && activePeerID != s.m.sessionID {
		s.activePeer = activePeerID
	}
}

func (s *ScreenShare) handlePeerLeft(peerID string) {
	s.mu.Lock()
	call, ok := s.calls[peerID]
	if ok {
		delete(s.calls, peerID)
	}
	cleared := s.activePeer == peerID
	if cleared {
		s.activePeer = ""
	}
	s.mu.Unlock()

	if ok {
		call.Close()
	}
	if cleared {
		s.m.events.streamRemoved(peerID, StreamScreen)
	}
}

// handleIncoming answers a tagged screen call with no return stream and
// renders the inbound capture until close or a stopped event.
func (s *ScreenShare) handleIncoming(call Call) {
	peerID := call.Peer()
	call.OnStream(func(stream MediaStream) {
		s.mu.Lock()
		s.activePeer = peerID
		s.mu.Unlock()
		log.Info().Str("module", "mesh.screen").Str("peer", peerID).Msg("received screen share")
		s.m.events.streamAdded(peerID, StreamScreen, stream)
	})
	call.OnClose(func() {
		s.mu.Lock()
		if s.activePeer == peerID {
			s.activePeer = ""
		}
		s.mu.Unlock()
		s.m.events.streamRemoved(peerID, StreamScreen)
	})
	call.OnError(func(err error) {
		log.Error().Err(err).Str("module", "mesh.screen").Str("peer", peerID).Msg("screen share error")
	})
	if err := call.Answer(nil); err != nil {
		log.Error().Err(err).Str("module", "mesh.screen").Str("peer", peerID).Msg("answer screen share")
	}
}
