package core

import (
	"context"
	"sync"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/officeverse/office/internal/domain"
)

// RoomManager keys live rooms by id. Rooms execute independently; the
// manager never holds a room's lock.
type RoomManager struct {
	mu    sync.RWMutex
	rooms map[domain.RoomID]*Room

	dir       Directory
	wbBaseURL string
}

func NewRoomManager(dir Directory, wbBaseURL string) *RoomManager {
	return &RoomManager{
		rooms:     make(map[domain.RoomID]*Room),
		dir:       dir,
		wbBaseURL: wbBaseURL,
	}
}

func (m *RoomManager) Get(id domain.RoomID) (*Room, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	room, ok := m.rooms[id]
	return room, ok
}

// GetOrCreatePublic reuses a live public room with the same name, else
// creates one. Private rooms are always created explicitly and joined
// by id.
func (m *RoomManager) GetOrCreatePublic(opts domain.CreateOptions) *Room {
	name := domain.RoomName(opts.RoomName)
	if name == "" {
		name = "Public Room"
	}

	m.mu.RLock()
	for _, r := range m.rooms {
		if !r.IsPrivate() && r.Name() == name {
			m.mu.RUnlock()
			return r
		}
	}
	m.mu.RUnlock()

	m.mu.Lock()
	defer m.mu.Unlock()
	for _, r := range m.rooms {
		if !r.IsPrivate() && r.Name() == name {
			return r
		}
	}
	opts.RoomName = string(name)
	opts.IsPrivate = false
	return m.createLocked(opts)
}

func (m *RoomManager) Create(opts domain.CreateOptions) *Room {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.createLocked(opts)
}

func (m *RoomManager) createLocked(opts domain.CreateOptions) *Room {
	meta := domain.RoomMetadata{
		ID:          domain.RoomID(uuid.NewString()),
		Name:        domain.RoomName(opts.RoomName),
		Description: opts.RoomDescription,
		Password:    opts.RoomPassword,
		IsPrivate:   opts.IsPrivate,
	}
	room := NewRoom(meta, m.dir, m.wbBaseURL, m.remove)
	m.rooms[meta.ID] = room
	log.Info().Str("module", "core.manager").Str("room", string(meta.ID)).Str("name", opts.RoomName).Bool("private", opts.IsPrivate).Msg("room created")

	// A private room is discoverable through the directory; a write
	// failure only makes it undiscoverable, the room itself runs on.
	if meta.IsPrivate {
		rec := domain.DirectoryRecord{
			RoomID:      meta.ID,
			RoomName:    meta.Name,
			Description: meta.Description,
			Password:    meta.Password,
			IsPrivate:   true,
			Players:     []domain.PlayerRef{},
		}
		if err := m.dir.Save(context.Background(), rec); err != nil {
			log.Error().Err(err).Str("module", "core.manager").Str("room", string(meta.ID)).Msg("directory save room")
		}
	}
	return room
}

func (m *RoomManager) remove(id domain.RoomID) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.rooms, id)
}

func (m *RoomManager) List() []RoomInfo {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]RoomInfo, 0, len(m.rooms))
	for _, r := range m.rooms {
		out = append(out, r.Info())
	}
	return out
}
