package core

import (
	"context"
	"encoding/json"
	"errors"
	"sync"

	"github.com/rs/zerolog/log"

	"github.com/officeverse/office/internal/domain"
	"github.com/officeverse/office/internal/protocol"
)

var (
	ErrBadPassword  = errors.New("wrong room password")
	ErrRoomDisposed = errors.New("room disposed")
)

type handlerFunc func(sid SessionID, data json.RawMessage)

// Room owns the authoritative state of one session. All mutations run
// under r.mu, one handler at a time, which is what gives two clients'
// intents a total order. Broadcasts are fire-and-forget: TrySend never
// blocks the handler.
type Room struct {
	mu       sync.Mutex
	state    *RoomState
	clients  map[SessionID]ClientConn
	handlers map[string]handlerFunc

	dir       Directory
	wbBaseURL string

	disposed  bool
	onDispose func(domain.RoomID)
}

func NewRoom(meta domain.RoomMetadata, dir Directory, wbBaseURL string, onDispose func(domain.RoomID)) *Room {
	r := &Room{
		state:     NewRoomState(meta, "virtual-office-"+string(meta.ID)),
		clients:   make(map[SessionID]ClientConn),
		dir:       dir,
		wbBaseURL: wbBaseURL,
		onDispose: onDispose,
	}
	// The full protocol surface in one table, so it stays auditable.
	r.handlers = map[string]handlerFunc{
		protocol.MsgUpdatePlayer:         r.handleUpdatePlayer,
		protocol.MsgPlayerMoved:          r.handlePlayerMoved,
		protocol.MsgChat:                 r.handleChat,
		protocol.MsgSystem:               r.handleSystem,
		protocol.MsgAddTask:              r.handleAddTask,
		protocol.MsgToggleTask:           r.handleToggleTask,
		protocol.MsgDeleteTask:           r.handleDeleteTask,
		protocol.MsgGetTasks:             r.handleGetTasks,
		protocol.MsgMediaStateChange:     r.handleMediaStateChange,
		protocol.MsgWebRTCSignal:         r.handleWebRTCSignal,
		protocol.MsgScreenShareStarted:   r.handleScreenShareStarted,
		protocol.MsgScreenShareStopped:   r.handleScreenShareStopped,
		protocol.MsgGetScreenShareStatus: r.handleGetScreenShareStatus,
		protocol.MsgWhiteboardAccess:     r.handleWhiteboard,
		protocol.MsgWhiteboardSync:       r.handleWhiteboard,
	}
	return r
}

func (r *Room) ID() domain.RoomID     { return r.state.Meta.ID }
func (r *Room) Name() domain.RoomName { return r.state.Meta.Name }
func (r *Room) IsPrivate() bool       { return r.state.Meta.IsPrivate }

func (r *Room) PlayerCount() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.state.PlayerCount()
}

func (r *Room) Info() RoomInfo {
	r.mu.Lock()
	defer r.mu.Unlock()
	return RoomInfo{
		ID:          r.state.Meta.ID,
		Name:        r.state.Meta.Name,
		IsPrivate:   r.state.Meta.IsPrivate,
		PlayerCount: r.state.PlayerCount(),
	}
}

// Join admits a client. A second join with the same sid is an
// idempotent no-op (reconnect races), not an error: the connection is
// rebound and the snapshot resent, but no new player is created and
// nothing is broadcast.
func (r *Room) Join(sid SessionID, conn ClientConn, opts domain.CreateOptions) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.disposed {
		return ErrRoomDisposed
	}
	if r.state.Meta.IsPrivate && r.state.Meta.Password != opts.RoomPassword {
		return ErrBadPassword
	}

	if _, ok := r.state.Player(sid); ok {
		log.Warn().Str("module", "core.room").Str("sid", string(sid)).Msg("duplicate join, rebinding")
		r.clients[sid] = conn
		r.sendSnapshot(sid)
		return nil
	}

	player := domain.NewPlayer(string(sid), opts.PlayerName, opts.Character, r.state.Meta.IsPrivate)
	r.state.AddPlayer(sid, player)
	r.clients[sid] = conn
	log.Info().Str("module", "core.room").Str("room", string(r.state.Meta.ID)).Str("sid", string(sid)).Str("name", player.Name).Msg("player joined")

	r.broadcastExcept(sid, protocol.EvtPlayerJoined, player)
	r.sendSnapshot(sid)

	if r.state.Meta.IsPrivate {
		ref := domain.PlayerRef{SessionID: string(sid), Name: player.Name}
		if err := r.dir.AddPlayer(context.Background(), r.state.Meta.ID, ref); err != nil {
			log.Error().Err(err).Str("module", "core.room").Str("room", string(r.state.Meta.ID)).Msg("directory add player")
		}
	}
	return nil
}

func (r *Room) sendSnapshot(sid SessionID) {
	r.unicast(sid, protocol.EvtRoomInfo, protocol.RoomInfoEvent{
		IsPrivate:      r.state.Meta.IsPrivate,
		CurrentPlayers: r.state.PlayerCount(),
	})
	// The joiner needs the current occupants to render them and to
	// anchor later playerMoved deltas.
	r.unicast(sid, protocol.EvtPlayersUpdate, r.state.PlayersSnapshot())
	r.unicast(sid, protocol.EvtWhiteboardInfo, protocol.WhiteboardInfo{
		WhiteboardID: r.state.WhiteboardID,
		IsPrivate:    r.state.Meta.IsPrivate,
		BaseURL:      r.wbBaseURL,
	})
}

// Leave removes the player on every exit path (explicit leave or
// disconnect). The last player out triggers disposal.
func (r *Room) Leave(sid SessionID) {
	if r.leave(sid) && r.onDispose != nil {
		// Outside r.mu: the manager takes its own lock in remove and
		// the manager->room lock order must stay one-way.
		r.onDispose(r.state.Meta.ID)
	}
}

func (r *Room) leave(sid SessionID) (disposed bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	player, ok := r.state.RemovePlayer(sid)
	delete(r.clients, sid)
	if !ok {
		return false
	}
	if r.state.ActiveScreenSharePeer == sid {
		r.state.ActiveScreenSharePeer = ""
	}
	log.Info().Str("module", "core.room").Str("room", string(r.state.Meta.ID)).Str("sid", string(sid)).Msg("player left")

	r.broadcastExcept(sid, protocol.EvtPlayerLeft, protocol.PlayerLeftEvent{SessionID: string(sid), Name: player.Name})
	r.broadcastExcept(sid, protocol.EvtRemoveVideo, protocol.RemoveVideoEvent{SessionID: string(sid)})
	r.broadcastExcept(sid, protocol.EvtPlayersUpdate, r.state.PlayersSnapshot())

	if r.state.Meta.IsPrivate {
		if err := r.dir.RemovePlayer(context.Background(), r.state.Meta.ID, string(sid)); err != nil {
			log.Error().Err(err).Str("module", "core.room").Str("room", string(r.state.Meta.ID)).Msg("directory remove player")
		}
	}

	if r.state.PlayerCount() == 0 {
		r.dispose()
		return true
	}
	return false
}

// dispose is terminal; a later join with the same identity gets a
// brand-new room instance. Caller holds r.mu.
func (r *Room) dispose() {
	r.disposed = true
	if r.state.Meta.IsPrivate {
		if err := r.dir.Delete(context.Background(), r.state.Meta.ID); err != nil {
			log.Error().Err(err).Str("module", "core.room").Str("room", string(r.state.Meta.ID)).Msg("directory delete room")
		}
	}
	log.Info().Str("module", "core.room").Str("room", string(r.state.Meta.ID)).Msg("room disposed")
}

// Dispatch routes one intent through the table. A failing handler must
// never take the room down, so panics are logged and swallowed.
func (r *Room) Dispatch(sid SessionID, msgType string, data json.RawMessage) {
	r.mu.Lock()
	defer r.mu.Unlock()
	defer func() {
		if rec := recover(); rec != nil {
			log.Error().Str("module", "core.room").Str("type", msgType).Any("panic", rec).Msg("handler panic")
		}
	}()

	if r.disposed {
		return
	}
	h, ok := r.handlers[msgType]
	if !ok {
		log.Warn().Str("module", "core.room").Str("type", msgType).Msg("unknown intent")
		return
	}
	h(sid, data)
}

func (r *Room) broadcastAll(typ string, v any) {
	r.broadcastExcept("", typ, v)
}

func (r *Room) broadcastExcept(except SessionID, typ string, v any) {
	frame, err := protocol.Encode(typ, v)
	if err != nil {
		log.Error().Err(err).Str("module", "core.room").Str("type", typ).Msg("encode broadcast")
		return
	}
	for sid, conn := range r.clients {
		if sid == except {
			continue
		}
		if err := conn.TrySend(frame); err != nil {
			log.Warn().Err(err).Str("module", "core.room").Str("sid", string(sid)).Str("type", typ).Msg("dropped frame")
		}
	}
}

func (r *Room) unicast(sid SessionID, typ string, v any) bool {
	conn, ok := r.clients[sid]
	if !ok {
		return false
	}
	frame, err := protocol.Encode(typ, v)
	if err != nil {
		log.Error().Err(err).Str("module", "core.room").Str("type", typ).Msg("encode unicast")
		return false
	}
	if err := conn.TrySend(frame); err != nil {
		log.Warn().Err(err).Str("module", "core.room").Str("sid", string(sid)).Str("type", typ).Msg("dropped frame")
		return false
	}
	return true
}
