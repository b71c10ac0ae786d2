package core

import (
	"context"

	"github.com/officeverse/office/internal/domain"
)

// Frame is an encoded wire message.
type Frame []byte

type SessionID string

// ClientConn abstracts the signaling transport of one connected client.
// Owned by the adapter; the adapter must Close() it.
type ClientConn interface {
	TrySend(Frame) error
	Close()
}

// Directory persists private-room records. Every failure is room-local:
// callers log and keep the room running in-memory.
type Directory interface {
	Save(ctx context.Context, rec domain.DirectoryRecord) error
	AddPlayer(ctx context.Context, roomID domain.RoomID, p domain.PlayerRef) error
	RemovePlayer(ctx context.Context, roomID domain.RoomID, sessionID string) error
	Delete(ctx context.Context, roomID domain.RoomID) error
	ListPrivate(ctx context.Context) ([]domain.DirectoryRecord, error)
}

// RoomInfo is a read-only view for APIs.
type RoomInfo struct {
	ID          domain.RoomID   `json:"id"`
	Name        domain.RoomName `json:"name"`
	IsPrivate   bool            `json:"isPrivate"`
	PlayerCount int             `json:"playerCount"`
}
