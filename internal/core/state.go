package core

import "github.com/officeverse/office/internal/domain"

// RoomState is the authoritative aggregate for one room. It is mutated
// only while the owning Room holds its lock, so no internal locking.
type RoomState struct {
	Meta         domain.RoomMetadata
	WhiteboardID string

	players map[SessionID]*domain.Player
	tasks   []*domain.Task

	// ActiveScreenSharePeer holds the single active sharer; empty
	// means nobody shares. Single point of truth for arbitration.
	ActiveScreenSharePeer SessionID
}

func NewRoomState(meta domain.RoomMetadata, whiteboardID string) *RoomState {
	return &RoomState{
		Meta:         meta,
		WhiteboardID: whiteboardID,
		players:      make(map[SessionID]*domain.Player),
	}
}

func (s *RoomState) Player(sid SessionID) (*domain.Player, bool) {
	p, ok := s.players[sid]
	return p, ok
}

func (s *RoomState) AddPlayer(sid SessionID, p *domain.Player) {
	s.players[sid] = p
}

func (s *RoomState) RemovePlayer(sid SessionID) (*domain.Player, bool) {
	p, ok := s.players[sid]
	if ok {
		delete(s.players, sid)
	}
	return p, ok
}

func (s *RoomState) PlayerCount() int { return len(s.players) }

func (s *RoomState) PlayersSnapshot() []domain.Player {
	out := make([]domain.Player, 0, len(s.players))
	for _, p := range s.players {
		out = append(out, *p)
	}
	return out
}

func (s *RoomState) AddTask(t *domain.Task) {
	s.tasks = append(s.tasks, t)
}

func (s *RoomState) FindTask(id string) (*domain.Task, bool) {
	for _, t := range s.tasks {
		if t.ID == id {
			return t, true
		}
	}
	return nil, false
}

func (s *RoomState) DeleteTask(id string) (*domain.Task, bool) {
	for i, t := range s.tasks {
		if t.ID == id {
			s.tasks = append(s.tasks[:i], s.tasks[i+1:]...)
			return t, true
		}
	}
	return nil, false
}

// TasksSnapshot keeps insertion order; clients re-sort for display if
// they want to.
func (s *RoomState) TasksSnapshot() []domain.Task {
	out := make([]domain.Task, 0, len(s.tasks))
	for _, t := range s.tasks {
		out = append(out, *t)
	}
	return out
}
