// Package protocol defines the typed messages exchanged over the
// signaling channel. Every intent has a fixed payload schema; payloads
// are validated at the boundary before dispatch.
package protocol

import (
	"encoding/json"

	"github.com/officeverse/office/internal/domain"
)

// Client -> core intents.
const (
	MsgJoin                 = "join"
	MsgLeave                = "leave"
	MsgUpdatePlayer         = "updatePlayer"
	MsgPlayerMoved          = "playerMoved"
	MsgChat                 = "chat"
	MsgSystem               = "system"
	MsgAddTask              = "add-task"
	MsgToggleTask           = "toggle-task"
	MsgDeleteTask           = "delete-task"
	MsgGetTasks             = "get-tasks"
	MsgMediaStateChange     = "media-state-change"
	MsgWebRTCSignal         = "webrtc-signal"
	MsgScreenShareStarted   = "screen-share-started"
	MsgScreenShareStopped   = "screen-share-stopped"
	MsgGetScreenShareStatus = "get-screen-share-status"
	MsgWhiteboardAccess     = "whiteboard-access"
	MsgWhiteboardSync       = "whiteboard-sync"
)

// Core -> client events.
const (
	EvtJoined            = "joined"
	EvtLeft              = "left"
	EvtError             = "error"
	EvtPlayerJoined      = "playerJoined"
	EvtPlayerLeft        = "playerLeft"
	EvtPlayerMoved       = "playerMoved"
	EvtRemoveVideo       = "removeVideo"
	EvtRoomInfo          = "roomInfo"
	EvtPlayersUpdate     = "update"
	EvtChat              = "chat"
	EvtTaskUpdate        = "task-update"
	EvtTaskNotification  = "task-notification"
	EvtMediaStateChange  = "media-state-change"
	EvtWebRTCSignal      = "webrtc-signal"
	EvtScreenShareStatus = "screen-share-status"
	EvtWhiteboardInfo    = "whiteboard-info"
)

// Task notification actions.
const (
	ActionAdd      = "add"
	ActionComplete = "complete"
	ActionDelete   = "delete"
)

// Envelope frames every message on the wire.
type Envelope struct {
	Type string          `json:"type"`
	Data json.RawMessage `json:"data,omitempty"`
}

// Encode wraps v into an envelope and marshals it.
func Encode(typ string, v any) ([]byte, error) {
	var data json.RawMessage
	if v != nil {
		b, err := json.Marshal(v)
		if err != nil {
			return nil, err
		}
		data = b
	}
	return json.Marshal(Envelope{Type: typ, Data: data})
}

type JoinRequest struct {
	RoomID string `json:"roomId,omitempty"`
	domain.CreateOptions
}

type JoinedEvent struct {
	SessionID string        `json:"sessionId"`
	RoomID    domain.RoomID `json:"roomId"`
}

type ErrorEvent struct {
	Error string `json:"error"`
}

type MoveRequest struct {
	X         float64 `json:"x"`
	Y         float64 `json:"y"`
	Animation string  `json:"animation"`
}

type PlayerMovedEvent struct {
	SessionID string  `json:"sessionId"`
	X         float64 `json:"x"`
	Y         float64 `json:"y"`
	Animation string  `json:"animation"`
}

type ChatRequest struct {
	Text string `json:"text"`
}

type ChatEvent struct {
	Text      string `json:"text"`
	Sender    string `json:"sender"`
	Timestamp string `json:"timestamp"`
}

type AddTaskRequest struct {
	Text      string `json:"text"`
	CreatedBy string `json:"createdBy"`
}

type TaskRef struct {
	TaskID string `json:"taskId"`
}

type TaskNotification struct {
	Task   domain.Task `json:"task"`
	Action string      `json:"action"`
}

// MediaState is relayed verbatim; the core only stamps PeerID.
type MediaState struct {
	PeerID       string `json:"peerId,omitempty"`
	VideoEnabled bool   `json:"videoEnabled"`
	AudioEnabled bool   `json:"audioEnabled"`
}

// SignalRequest carries an opaque payload to exactly one peer.
type SignalRequest struct {
	To     string          `json:"to"`
	Signal json.RawMessage `json:"signal"`
}

type SignalEvent struct {
	From   string          `json:"from"`
	Signal json.RawMessage `json:"signal"`
}

type ScreenShareEvent struct {
	PeerID string `json:"peerId"`
}

// ScreenShareStatus reports the single active sharer; empty means none.
type ScreenShareStatus struct {
	ActivePeerID string `json:"activePeerId"`
}

type PlayerLeftEvent struct {
	SessionID string `json:"sessionId"`
	Name      string `json:"name"`
}

type RemoveVideoEvent struct {
	SessionID string `json:"sessionId"`
}

type RoomInfoEvent struct {
	IsPrivate      bool `json:"isPrivate"`
	CurrentPlayers int  `json:"currentPlayers"`
}

type WhiteboardInfo struct {
	WhiteboardID string `json:"whiteboardId"`
	IsPrivate    bool   `json:"isPrivate"`
	BaseURL      string `json:"baseUrl"`
}
