package signal

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"

	"github.com/officeverse/office/internal/core"
	"github.com/officeverse/office/internal/domain"
	"github.com/officeverse/office/internal/protocol"
)

const writeWait = 5 * time.Second

func (ctl *Controller) writePump(ctx context.Context, c *wsConn) {
	pingPeriod := 54 * time.Second
	if ctl.Cfg != nil && ctl.Cfg.PingPeriod > 0 {
		pingPeriod = ctl.Cfg.PingPeriod
	}
	ticker := time.NewTicker(pingPeriod)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := c.conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(writeWait)); err != nil {
				log.Warn().Err(err).Str("module", "signal").Msg("writePump ping error")
				return
			}
		case data, ok := <-c.send:
			if !ok {
				return
			}
			if err := c.conn.SetWriteDeadline(time.Now().Add(writeWait)); err != nil {
				log.Error().Err(err).Str("module", "signal").Msg("writePump set deadline")
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, data); err != nil {
				log.Error().Err(err).Str("module", "signal").Msg("writePump write error")
				return
			}
		}
	}
}

// readPump drives one connection's lifecycle: the first accepted intent
// is join, everything afterwards goes through the room's dispatch
// table. Leaving the room happens on every exit path.
func (ctl *Controller) readPump(ctx context.Context, sid core.SessionID, c *wsConn) {
	var room *core.Room
	defer func() {
		if room != nil {
			room.Leave(sid)
		}
		log.Info().Str("module", "signal").Str("sid", string(sid)).Msg("readPump closing")
		c.Close()
	}()

	for {
		select {
		case <-ctx.Done():
			return
		default:
		}
		_, data, err := c.conn.ReadMessage()
		if err != nil {
			if !websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				log.Warn().Err(err).Str("module", "signal").Str("sid", string(sid)).Msg("readPump read error")
			}
			return
		}

		var env protocol.Envelope
		if err := json.Unmarshal(data, &env); err != nil {
			log.Error().Err(err).Str("module", "signal").Msg("bad json")
			continue
		}

		switch env.Type {
		case protocol.MsgJoin:
			room = ctl.handleJoin(sid, c, room, env.Data)
		case protocol.MsgLeave:
			if room != nil {
				room.Leave(sid)
				room = nil
			}
			ctl.sendJSON(c, protocol.EvtLeft, nil)
		case "ping":
			ctl.sendJSON(c, "pong", nil)
		default:
			if room == nil {
				ctl.sendError(c, "join first")
				continue
			}
			room.Dispatch(sid, env.Type, env.Data)
		}
	}
}

// handleJoin resolves the target room: explicit roomId wins, private
// creation is explicit, public rooms are joined-or-created by name.
func (ctl *Controller) handleJoin(sid core.SessionID, c *wsConn, current *core.Room, data json.RawMessage) *core.Room {
	if current != nil {
		ctl.sendError(c, "already in a room")
		return current
	}

	var p protocol.JoinRequest
	if err := json.Unmarshal(data, &p); err != nil {
		log.Error().Err(err).Str("module", "signal").Msg("bad join payload")
		ctl.sendError(c, "bad_payload")
		return nil
	}

	var room *core.Room
	switch {
	case p.RoomID != "":
		var ok bool
		room, ok = ctl.Rooms.Get(domain.RoomID(p.RoomID))
		if !ok {
			log.Warn().Str("module", "signal").Str("room_id", p.RoomID).Msg("room does not exist")
			ctl.sendError(c, "room does not exist")
			return nil
		}
	case p.IsPrivate:
		room = ctl.Rooms.Create(p.CreateOptions)
	default:
		room = ctl.Rooms.GetOrCreatePublic(p.CreateOptions)
	}

	room, err := ctl.joinRoom(room, sid, c, p.CreateOptions)
	if err != nil {
		if errors.Is(err, core.ErrBadPassword) {
			ctl.sendError(c, "wrong password")
		} else {
			ctl.sendError(c, "join failed")
		}
		log.Warn().Err(err).Str("module", "signal").Str("sid", string(sid)).Msg("join rejected")
		return nil
	}
	// joined arrives after the snapshot frames queued by Join, but the
	// client keys on the type, not the order.
	ctl.sendJSON(c, protocol.EvtJoined, protocol.JoinedEvent{SessionID: string(sid), RoomID: room.ID()})
	return room
}

// joinRoom retries once against the dispose race: the target room can
// empty out between lookup and join.
func (ctl *Controller) joinRoom(room *core.Room, sid core.SessionID, c *wsConn, opts domain.CreateOptions) (*core.Room, error) {
	err := room.Join(sid, c, opts)
	if errors.Is(err, core.ErrRoomDisposed) && !room.IsPrivate() {
		room = ctl.Rooms.GetOrCreatePublic(opts)
		err = room.Join(sid, c, opts)
	}
	if err != nil {
		return nil, err
	}
	return room, nil
}

func (ctl *Controller) sendJSON(c *wsConn, typ string, v any) {
	frame, err := protocol.Encode(typ, v)
	if err != nil {
		log.Error().Err(err).Str("module", "signal").Msg("sendJSON marshal")
		return
	}
	_ = c.TrySend(frame)
}

func (ctl *Controller) sendError(c *wsConn, msg string) {
	ctl.sendJSON(c, protocol.EvtError, protocol.ErrorEvent{Error: msg})
}
