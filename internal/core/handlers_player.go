package core

import (
	"encoding/json"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/officeverse/office/internal/protocol"
)

// handleUpdatePlayer is the position heartbeat: state only, no fan-out.
func (r *Room) handleUpdatePlayer(sid SessionID, data json.RawMessage) {
	var p protocol.MoveRequest
	if err := json.Unmarshal(data, &p); err != nil {
		log.Error().Err(err).Str("module", "core.room").Msg("bad move payload")
		return
	}
	player, ok := r.state.Player(sid)
	if !ok {
		return
	}
	player.X, player.Y, player.Animation = p.X, p.Y, p.Animation
}

func (r *Room) handlePlayerMoved(sid SessionID, data json.RawMessage) {
	var p protocol.MoveRequest
	if err := json.Unmarshal(data, &p); err != nil {
		log.Error().Err(err).Str("module", "core.room").Msg("bad move payload")
		return
	}
	player, ok := r.state.Player(sid)
	if !ok {
		return
	}
	player.X, player.Y, player.Animation = p.X, p.Y, p.Animation
	r.broadcastExcept(sid, protocol.EvtPlayerMoved, protocol.PlayerMovedEvent{
		SessionID: string(sid),
		X:         player.X,
		Y:         player.Y,
		Animation: player.Animation,
	})
}

// handleChat is stateless; the core only resolves the sender name.
func (r *Room) handleChat(sid SessionID, data json.RawMessage) {
	var p protocol.ChatRequest
	if err := json.Unmarshal(data, &p); err != nil {
		log.Error().Err(err).Str("module", "core.room").Msg("bad chat payload")
		return
	}
	sender := "Guest"
	if player, ok := r.state.Player(sid); ok {
		sender = player.Name
	}
	r.broadcastAll(protocol.EvtChat, protocol.ChatEvent{
		Text:      p.Text,
		Sender:    sender,
		Timestamp: time.Now().UTC().Format(time.RFC3339),
	})
}

// handleSystem relays an announcement to the whole room verbatim.
func (r *Room) handleSystem(_ SessionID, data json.RawMessage) {
	r.broadcastAll(protocol.MsgSystem, data)
}

func (r *Room) handleMediaStateChange(sid SessionID, data json.RawMessage) {
	var p protocol.MediaState
	if err := json.Unmarshal(data, &p); err != nil {
		log.Error().Err(err).Str("module", "core.room").Msg("bad media state payload")
		return
	}
	if _, ok := r.state.Player(sid); !ok {
		return
	}
	p.PeerID = string(sid)
	r.broadcastExcept(sid, protocol.EvtMediaStateChange, p)
}

// handleWebRTCSignal relays an opaque payload to exactly one peer.
// An absent target is logged and dropped, never surfaced to the sender.
func (r *Room) handleWebRTCSignal(sid SessionID, data json.RawMessage) {
	var p protocol.SignalRequest
	if err := json.Unmarshal(data, &p); err != nil {
		log.Error().Err(err).Str("module", "core.room").Msg("bad signal payload")
		return
	}
	if p.To == "" || len(p.Signal) == 0 {
		log.Warn().Str("module", "core.room").Str("from", string(sid)).Msg("invalid webrtc signal")
		return
	}
	if !r.unicast(SessionID(p.To), protocol.EvtWebRTCSignal, protocol.SignalEvent{From: string(sid), Signal: p.Signal}) {
		log.Warn().Str("module", "core.room").Str("from", string(sid)).Str("to", p.To).Msg("signal target not found")
	}
}
