// Package client is the Go-side room client: it speaks the signaling
// protocol, exposes a per-type message registry, and paces position
// updates so outbound traffic is bounded regardless of input rate.
package client

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"

	"github.com/officeverse/office/internal/protocol"
)

const defaultMoveInterval = 100 * time.Millisecond

var ErrClosed = errors.New("room connection closed")

type Handler func(data json.RawMessage)

type Room struct {
	conn    *websocket.Conn
	writeMu sync.Mutex

	mu       sync.RWMutex
	handlers map[string][]Handler

	sessionID string
	roomID    string

	posMu    sync.Mutex
	pos      protocol.MoveRequest
	posDirty bool

	moveInterval time.Duration

	closeOnce sync.Once
	done      chan struct{}
}

type Option func(*Room)

// WithMoveInterval overrides the position-update cadence.
func WithMoveInterval(d time.Duration) Option {
	return func(r *Room) { r.moveInterval = d }
}

// Dial connects, sends the join intent and blocks until the server
// confirms the session or rejects it.
func Dial(ctx context.Context, url string, req protocol.JoinRequest, opts ...Option) (*Room, error) {
	conn, _, err := websocket.DefaultDialer.DialContext(ctx, url, nil)
	if err != nil {
		return nil, fmt.Errorf("dial room server: %w", err)
	}

	r := &Room{
		conn:         conn,
		handlers:     make(map[string][]Handler),
		moveInterval: defaultMoveInterval,
		done:         make(chan struct{}),
	}
	for _, o := range opts {
		o(r)
	}

	joined := make(chan protocol.JoinedEvent, 1)
	joinErr := make(chan string, 1)
	r.OnMessage(protocol.EvtJoined, func(data json.RawMessage) {
		var ev protocol.JoinedEvent
		if json.Unmarshal(data, &ev) == nil {
			select {
			case joined <- ev:
			default:
			}
		}
	})
	r.OnMessage(protocol.EvtError, func(data json.RawMessage) {
		var ev protocol.ErrorEvent
		_ = json.Unmarshal(data, &ev)
		select {
		case joinErr <- ev.Error:
		default:
		}
	})

	go r.readLoop()

	if err := r.Send(protocol.MsgJoin, req); err != nil {
		r.Leave()
		return nil, err
	}

	select {
	case ev := <-joined:
		r.sessionID = ev.SessionID
		r.roomID = string(ev.RoomID)
	case msg := <-joinErr:
		r.Leave()
		return nil, fmt.Errorf("join rejected: %s", msg)
	case <-r.done:
		return nil, ErrClosed
	case <-ctx.Done():
		r.Leave()
		return nil, ctx.Err()
	}

	go r.moveLoop()
	return r, nil
}

func (r *Room) SessionID() string     { return r.sessionID }
func (r *Room) RoomID() string        { return r.roomID }
func (r *Room) Done() <-chan struct{} { return r.done }

// OnMessage registers a handler for one message type. Handlers run on
// the read loop goroutine, in registration order.
func (r *Room) OnMessage(typ string, h Handler) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.handlers[typ] = append(r.handlers[typ], h)
}

func (r *Room) Send(typ string, v any) error {
	select {
	case <-r.done:
		return ErrClosed
	default:
	}
	frame, err := protocol.Encode(typ, v)
	if err != nil {
		return err
	}
	r.writeMu.Lock()
	defer r.writeMu.Unlock()
	return r.conn.WriteMessage(websocket.TextMessage, frame)
}

// SetPosition records the latest position; the move loop sends it on
// the next tick. Call as often as input arrives, the wire rate stays
// fixed.
func (r *Room) SetPosition(x, y float64, animation string) {
	r.posMu.Lock()
	r.pos = protocol.MoveRequest{X: x, Y: y, Animation: animation}
	r.posDirty = true
	r.posMu.Unlock()
}

func (r *Room) moveLoop() {
	ticker := time.NewTicker(r.moveInterval)
	defer ticker.Stop()
	for {
		select {
		case <-r.done:
			return
		case <-ticker.C:
			r.posMu.Lock()
			dirty := r.posDirty
			pos := r.pos
			r.posDirty = false
			r.posMu.Unlock()
			if !dirty {
				continue
			}
			if err := r.Send(protocol.MsgPlayerMoved, pos); err != nil {
				return
			}
		}
	}
}

func (r *Room) readLoop() {
	defer r.close()
	for {
		_, data, err := r.conn.ReadMessage()
		if err != nil {
			return
		}
		var env protocol.Envelope
		if err := json.Unmarshal(data, &env); err != nil {
			log.Warn().Err(err).Str("module", "client").Msg("bad frame")
			continue
		}
		r.mu.RLock()
		handlers := r.handlers[env.Type]
		r.mu.RUnlock()
		for _, h := range handlers {
			h(env.Data)
		}
	}
}

// Leave is the scoped teardown: notify the core, then close. Safe to
// call from any exit path, any number of times.
func (r *Room) Leave() {
	r.closeOnce.Do(func() {
		_ = r.Send(protocol.MsgLeave, nil)
		close(r.done)
		_ = r.conn.Close()
	})
}

func (r *Room) close() {
	r.closeOnce.Do(func() {
		close(r.done)
		_ = r.conn.Close()
	})
}
