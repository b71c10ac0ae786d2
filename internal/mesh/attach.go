package mesh

import (
	"encoding/json"

	"github.com/rs/zerolog/log"

	"github.com/officeverse/office/internal/client"
	"github.com/officeverse/office/internal/domain"
	"github.com/officeverse/office/internal/protocol"
)

// RoomSignaler adapts a room client to the Signaler seam: payloads ride
// the core's webrtc-signal relay.
type RoomSignaler struct {
	Room *client.Room
}

func (s RoomSignaler) Signal(to string, payload json.RawMessage) error {
	return s.Room.Send(protocol.MsgWebRTCSignal, protocol.SignalRequest{To: to, Signal: payload})
}

// Attach wires room events into the mesh: connections are only
// attempted once the core has confirmed a peer via playerJoined, and
// removeVideo tears the matching link down. Call after the manager is
// initialized.
func Attach(room *client.Room, m *Manager) {
	room.OnMessage(protocol.EvtPlayerJoined, func(data json.RawMessage) {
		var p domain.Player
		if err := json.Unmarshal(data, &p); err != nil {
			log.Error().Err(err).Str("module", "mesh").Msg("bad playerJoined payload")
			return
		}
		m.HandlePlayerJoined(p.SessionID)
	})

	room.OnMessage(protocol.EvtRemoveVideo, func(data json.RawMessage) {
		var p protocol.RemoveVideoEvent
		if err := json.Unmarshal(data, &p); err != nil {
			return
		}
		m.HandlePeerLeft(p.SessionID)
	})

	room.OnMessage(protocol.EvtWebRTCSignal, func(data json.RawMessage) {
		var p protocol.SignalEvent
		if err := json.Unmarshal(data, &p); err != nil {
			log.Error().Err(err).Str("module", "mesh").Msg("bad signal payload")
			return
		}
		m.HandleSignal(p.From, p.Signal)
	})

	room.OnMessage(protocol.MsgScreenShareStarted, func(data json.RawMessage) {
		var p protocol.ScreenShareEvent
		if err := json.Unmarshal(data, &p); err != nil {
			return
		}
		m.Screen().HandleStarted(p.PeerID)
	})

	room.OnMessage(protocol.MsgScreenShareStopped, func(data json.RawMessage) {
		var p protocol.ScreenShareEvent
		if err := json.Unmarshal(data, &p); err != nil {
			return
		}
		m.Screen().HandleStopped(p.PeerID)
	})

	room.OnMessage(protocol.EvtScreenShareStatus, func(data json.RawMessage) {
		var p protocol.ScreenShareStatus
		if err := json.Unmarshal(data, &p); err != nil {
			return
		}
		m.Screen().HandleStatus(p.ActivePeerID)
	})

	room.OnMessage(protocol.EvtMediaStateChange, func(data json.RawMessage) {
		var p protocol.MediaState
		if err := json.Unmarshal(data, &p); err != nil {
			return
		}
		if m.events.MediaState != nil {
			m.events.MediaState(p.PeerID, p.VideoEnabled, p.AudioEnabled)
		}
	})

	// Seed the arbiter with whoever is already sharing.
	if err := room.Send(protocol.MsgGetScreenShareStatus, nil); err != nil {
		log.Warn().Err(err).Str("module", "mesh").Msg("request share status")
	}
}
