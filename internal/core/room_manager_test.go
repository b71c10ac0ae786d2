package core

import (
	"testing"

	"github.com/officeverse/office/internal/domain"
)

func TestGetOrCreatePublic(t *testing.T) {
	dir := &fakeDirectory{}
	m := NewRoomManager(dir, "http://localhost:5001/boards/")

	a := m.GetOrCreatePublic(domain.CreateOptions{})
	if a.Name() != "Public Room" || a.IsPrivate() {
		t.Fatalf("unexpected default room %q private=%v", a.Name(), a.IsPrivate())
	}

	b := m.GetOrCreatePublic(domain.CreateOptions{})
	if a != b {
		t.Errorf("same name must reuse the live room")
	}

	c := m.GetOrCreatePublic(domain.CreateOptions{RoomName: "Lounge"})
	if c == a {
		t.Errorf("different name must get its own room")
	}
	if len(m.List()) != 2 {
		t.Errorf("expected 2 rooms, got %d", len(m.List()))
	}

	// No public rooms hit the directory.
	dir.mu.Lock()
	saved := len(dir.saved)
	dir.mu.Unlock()
	if saved != 0 {
		t.Errorf("public rooms must not be saved to the directory")
	}
}

func TestCreatePrivate(t *testing.T) {
	dir := &fakeDirectory{}
	m := NewRoomManager(dir, "http://localhost:5001/boards/")

	r := m.Create(domain.CreateOptions{RoomName: "War Room", RoomPassword: "pw", IsPrivate: true})
	if !r.IsPrivate() {
		t.Fatalf("expected private room")
	}
	if got, ok := m.Get(r.ID()); !ok || got != r {
		t.Errorf("room not retrievable by id")
	}

	dir.mu.Lock()
	defer dir.mu.Unlock()
	if len(dir.saved) != 1 || dir.saved[0].RoomName != "War Room" || !dir.saved[0].IsPrivate {
		t.Errorf("private room not saved to directory: %+v", dir.saved)
	}
}

func TestDisposalRemovesFromManager(t *testing.T) {
	dir := &fakeDirectory{}
	m := NewRoomManager(dir, "http://localhost:5001/boards/")

	r := m.Create(domain.CreateOptions{RoomName: "Short Lived", RoomPassword: "pw", IsPrivate: true})
	id := r.ID()

	if err := r.Join("a", &fakeConn{}, domain.CreateOptions{RoomPassword: "pw"}); err != nil {
		t.Fatalf("join: %v", err)
	}
	r.Leave("a")

	if _, ok := m.Get(id); ok {
		t.Errorf("disposed room still registered")
	}
	dir.mu.Lock()
	defer dir.mu.Unlock()
	if len(dir.deleted) != 1 || dir.deleted[0] != id {
		t.Errorf("directory record not deleted: %+v", dir.deleted)
	}

	// A new join under the old options lands in a fresh room.
	fresh := m.GetOrCreatePublic(domain.CreateOptions{})
	if fresh.ID() == id {
		t.Errorf("room id reused after disposal")
	}
}
