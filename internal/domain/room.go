package domain

type (
	RoomName string
	RoomID   string
)

// RoomMetadata is fixed at room creation. There is no administrative
// path that mutates it afterwards.
type RoomMetadata struct {
	ID          RoomID   `json:"roomId"`
	Name        RoomName `json:"roomName"`
	Description string   `json:"roomDescription"`
	Password    string   `json:"roomPassword"`
	IsPrivate   bool     `json:"isPrivate"`
}

// CreateOptions is what a joining client supplies; the first join of a
// room turns it into RoomMetadata.
type CreateOptions struct {
	RoomName        string `json:"roomName"`
	RoomDescription string `json:"roomDescription"`
	RoomPassword    string `json:"roomPassword"`
	PlayerName      string `json:"playerName"`
	IsPrivate       bool   `json:"isPrivate"`
	Character       string `json:"character"`
}

// PlayerRef is the slim player view stored in directory records.
type PlayerRef struct {
	SessionID string `json:"sessionId"`
	Name      string `json:"name"`
}

// DirectoryRecord is the persisted shape of a private room.
type DirectoryRecord struct {
	RoomID      RoomID      `json:"roomId"`
	RoomName    RoomName    `json:"roomName"`
	Description string      `json:"description"`
	Password    string      `json:"-"`
	IsPrivate   bool        `json:"isPrivate"`
	Players     []PlayerRef `json:"players"`
}
