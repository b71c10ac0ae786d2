package core

import (
	"encoding/json"

	"github.com/rs/zerolog/log"

	"github.com/officeverse/office/internal/protocol"
)

// Screen-share arbitration: the core keeps the single activePeerId and
// fans out start/stop; a newer start overwrites an older one and the
// pre-empted client stops itself when it sees the broadcast.

func (r *Room) handleScreenShareStarted(sid SessionID, _ json.RawMessage) {
	r.state.ActiveScreenSharePeer = sid
	log.Info().Str("module", "core.room").Str("room", string(r.state.Meta.ID)).Str("sid", string(sid)).Msg("screen share started")
	r.broadcastExcept(sid, protocol.MsgScreenShareStarted, protocol.ScreenShareEvent{PeerID: string(sid)})
}

func (r *Room) handleScreenShareStopped(sid SessionID, data json.RawMessage) {
	var p protocol.ScreenShareEvent
	if err := json.Unmarshal(data, &p); err != nil {
		log.Error().Err(err).Str("module", "core.room").Msg("bad screen share payload")
		return
	}
	// Only the active sharer clears the slot; a stale stop from a
	// pre-empted client must not clear the new owner.
	if r.state.ActiveScreenSharePeer == sid {
		r.state.ActiveScreenSharePeer = ""
	}
	r.broadcastExcept(sid, protocol.MsgScreenShareStopped, protocol.ScreenShareEvent{PeerID: string(sid)})
}

func (r *Room) handleGetScreenShareStatus(sid SessionID, _ json.RawMessage) {
	r.unicast(sid, protocol.EvtScreenShareStatus, protocol.ScreenShareStatus{
		ActivePeerID: string(r.state.ActiveScreenSharePeer),
	})
}

// The whiteboard itself is an external service; the core only hands out
// access coordinates.
func (r *Room) handleWhiteboard(sid SessionID, _ json.RawMessage) {
	r.unicast(sid, protocol.EvtWhiteboardInfo, protocol.WhiteboardInfo{
		WhiteboardID: r.state.WhiteboardID,
		IsPrivate:    r.state.Meta.IsPrivate,
		BaseURL:      r.wbBaseURL,
	})
}
