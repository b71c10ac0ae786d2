package core

import (
	"context"
	"encoding/json"
	"sync"
	"testing"

	"github.com/officeverse/office/internal/domain"
	"github.com/officeverse/office/internal/protocol"
)

type fakeConn struct {
	mu     sync.Mutex
	frames []protocol.Envelope
	closed bool
}

func (c *fakeConn) TrySend(f Frame) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	var env protocol.Envelope
	if err := json.Unmarshal(f, &env); err != nil {
		return err
	}
	c.frames = append(c.frames, env)
	return nil
}

func (c *fakeConn) Close() {
	c.mu.Lock()
	c.closed = true
	c.mu.Unlock()
}

func (c *fakeConn) byType(typ string) []protocol.Envelope {
	c.mu.Lock()
	defer c.mu.Unlock()
	var out []protocol.Envelope
	for _, env := range c.frames {
		if env.Type == typ {
			out = append(out, env)
		}
	}
	return out
}

func (c *fakeConn) count(typ string) int { return len(c.byType(typ)) }

type fakeDirectory struct {
	mu      sync.Mutex
	saved   []domain.DirectoryRecord
	added   []string
	removed []string
	deleted []domain.RoomID
}

func (d *fakeDirectory) Save(_ context.Context, rec domain.DirectoryRecord) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.saved = append(d.saved, rec)
	return nil
}

func (d *fakeDirectory) AddPlayer(_ context.Context, _ domain.RoomID, p domain.PlayerRef) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.added = append(d.added, p.SessionID)
	return nil
}

func (d *fakeDirectory) RemovePlayer(_ context.Context, _ domain.RoomID, sessionID string) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.removed = append(d.removed, sessionID)
	return nil
}

func (d *fakeDirectory) Delete(_ context.Context, roomID domain.RoomID) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.deleted = append(d.deleted, roomID)
	return nil
}

func (d *fakeDirectory) ListPrivate(_ context.Context) ([]domain.DirectoryRecord, error) {
	return nil, nil
}

func newTestRoom(t *testing.T, private bool) (*Room, *fakeDirectory) {
	t.Helper()
	dir := &fakeDirectory{}
	meta := domain.RoomMetadata{
		ID:        "room-1",
		Name:      "Test Room",
		Password:  "",
		IsPrivate: private,
	}
	if private {
		meta.Password = "secret"
	}
	return NewRoom(meta, dir, "http://localhost:5001/boards/", nil), dir
}

func join(t *testing.T, r *Room, sid SessionID, name string) *fakeConn {
	t.Helper()
	conn := &fakeConn{}
	opts := domain.CreateOptions{PlayerName: name, RoomPassword: r.state.Meta.Password}
	if err := r.Join(sid, conn, opts); err != nil {
		t.Fatalf("join %s: %v", sid, err)
	}
	return conn
}

func payload(t *testing.T, v any) json.RawMessage {
	t.Helper()
	b, err := json.Marshal(v)
	if err != nil {
		t.Fatalf("marshal payload: %v", err)
	}
	return b
}

func TestJoin(t *testing.T) {
	r, _ := newTestRoom(t, false)

	t.Run("first join gets snapshot", func(t *testing.T) {
		a := join(t, r, "a", "Alice")
		infos := a.byType(protocol.EvtRoomInfo)
		if len(infos) != 1 {
			t.Fatalf("expected 1 roomInfo, got %d", len(infos))
		}
		var info protocol.RoomInfoEvent
		if err := json.Unmarshal(infos[0].Data, &info); err != nil {
			t.Fatalf("decode roomInfo: %v", err)
		}
		if info.IsPrivate || info.CurrentPlayers != 1 {
			t.Errorf("unexpected roomInfo %+v", info)
		}
		if a.count(protocol.EvtWhiteboardInfo) != 1 {
			t.Errorf("expected whiteboard-info on join")
		}
	})

	t.Run("second join notifies first", func(t *testing.T) {
		a := r.clients["a"].(*fakeConn)
		b := join(t, r, "b", "Bob")
		joins := a.byType(protocol.EvtPlayerJoined)
		if len(joins) != 1 {
			t.Fatalf("expected 1 playerJoined at A, got %d", len(joins))
		}
		var p domain.Player
		if err := json.Unmarshal(joins[0].Data, &p); err != nil {
			t.Fatalf("decode playerJoined: %v", err)
		}
		if p.SessionID != "b" || p.Name != "Bob" {
			t.Errorf("unexpected playerJoined %+v", p)
		}
		if b.count(protocol.EvtPlayerJoined) != 0 {
			t.Errorf("joiner must not see its own playerJoined")
		}

		// The joiner's snapshot must carry the occupants already in the
		// room, or it cannot render them.
		updates := b.byType(protocol.EvtPlayersUpdate)
		if len(updates) != 1 {
			t.Fatalf("expected 1 players update at joiner, got %d", len(updates))
		}
		var players []domain.Player
		if err := json.Unmarshal(updates[0].Data, &players); err != nil {
			t.Fatalf("decode players update: %v", err)
		}
		if len(players) != 2 {
			t.Fatalf("expected both players in snapshot, got %+v", players)
		}
		var alice *domain.Player
		for i := range players {
			if players[i].SessionID == "a" {
				alice = &players[i]
			}
		}
		if alice == nil {
			t.Fatalf("existing player missing from joiner snapshot: %+v", players)
		}
		if alice.Name != "Alice" || alice.X == 0 || alice.Y == 0 {
			t.Errorf("occupant record incomplete: %+v", alice)
		}
	})

	t.Run("duplicate join is a no-op", func(t *testing.T) {
		a := r.clients["a"].(*fakeConn)
		before := a.count(protocol.EvtPlayerJoined)
		conn := &fakeConn{}
		if err := r.Join("b", conn, domain.CreateOptions{PlayerName: "Bob Again"}); err != nil {
			t.Fatalf("duplicate join: %v", err)
		}
		if got := r.PlayerCount(); got != 2 {
			t.Errorf("expected 2 players after duplicate join, got %d", got)
		}
		if a.count(protocol.EvtPlayerJoined) != before {
			t.Errorf("duplicate join must not broadcast")
		}
		p, _ := r.state.Player("b")
		if p.Name != "Bob" {
			t.Errorf("duplicate join must not replace the player, got name %q", p.Name)
		}
	})
}

func TestJoinPrivateRoom(t *testing.T) {
	r, dir := newTestRoom(t, true)

	if err := r.Join("a", &fakeConn{}, domain.CreateOptions{PlayerName: "Alice", RoomPassword: "wrong"}); err != ErrBadPassword {
		t.Fatalf("expected ErrBadPassword, got %v", err)
	}
	if err := r.Join("a", &fakeConn{}, domain.CreateOptions{PlayerName: "Alice", RoomPassword: "secret"}); err != nil {
		t.Fatalf("join with password: %v", err)
	}
	dir.mu.Lock()
	defer dir.mu.Unlock()
	if len(dir.added) != 1 || dir.added[0] != "a" {
		t.Errorf("expected directory add for a, got %v", dir.added)
	}
}

func TestLeave(t *testing.T) {
	r, dir := newTestRoom(t, true)
	a := join(t, r, "a", "Alice")
	join(t, r, "b", "Bob")

	r.Leave("b")

	if got := a.count(protocol.EvtPlayerLeft); got != 1 {
		t.Errorf("expected exactly 1 playerLeft, got %d", got)
	}
	if got := a.count(protocol.EvtRemoveVideo); got != 1 {
		t.Errorf("expected exactly 1 removeVideo, got %d", got)
	}
	if _, ok := r.state.Player("b"); ok {
		t.Errorf("player b still present after leave")
	}

	// Remaining clients get the shrunk player list.
	updates := a.byType(protocol.EvtPlayersUpdate)
	if len(updates) != 2 {
		t.Fatalf("expected players update on join and on leave, got %d", len(updates))
	}
	var players []domain.Player
	if err := json.Unmarshal(updates[1].Data, &players); err != nil {
		t.Fatalf("decode players update: %v", err)
	}
	if len(players) != 1 || players[0].SessionID != "a" {
		t.Errorf("leave update should list only the remaining player, got %+v", players)
	}

	// Leaving twice must not re-broadcast.
	r.Leave("b")
	if got := a.count(protocol.EvtPlayerLeft); got != 1 {
		t.Errorf("second leave re-broadcast playerLeft, got %d", got)
	}

	// Last player out disposes the room and deletes the record.
	r.Leave("a")
	dir.mu.Lock()
	deleted := len(dir.deleted)
	dir.mu.Unlock()
	if deleted != 1 {
		t.Errorf("expected directory delete on dispose, got %d", deleted)
	}
	if err := r.Join("c", &fakeConn{}, domain.CreateOptions{RoomPassword: "secret"}); err != ErrRoomDisposed {
		t.Errorf("expected ErrRoomDisposed after dispose, got %v", err)
	}
}

func TestTasks(t *testing.T) {
	r, _ := newTestRoom(t, false)
	a := join(t, r, "a", "Alice")
	b := join(t, r, "b", "Bob")

	var taskID string

	t.Run("add", func(t *testing.T) {
		r.Dispatch("a", protocol.MsgAddTask, payload(t, protocol.AddTaskRequest{Text: "buy milk", CreatedBy: "Alice"}))

		updates := b.byType(protocol.EvtTaskUpdate)
		if len(updates) != 1 {
			t.Fatalf("expected 1 task-update, got %d", len(updates))
		}
		var tasks []domain.Task
		if err := json.Unmarshal(updates[0].Data, &tasks); err != nil {
			t.Fatalf("decode task-update: %v", err)
		}
		if len(tasks) != 1 || tasks[0].Text != "buy milk" || tasks[0].Completed {
			t.Fatalf("unexpected task list %+v", tasks)
		}
		taskID = tasks[0].ID

		notes := a.byType(protocol.EvtTaskNotification)
		if len(notes) != 1 {
			t.Fatalf("expected 1 task-notification, got %d", len(notes))
		}
		var note protocol.TaskNotification
		if err := json.Unmarshal(notes[0].Data, &note); err != nil {
			t.Fatalf("decode notification: %v", err)
		}
		if note.Action != protocol.ActionAdd {
			t.Errorf("expected add action, got %q", note.Action)
		}
	})

	t.Run("empty text rejected", func(t *testing.T) {
		r.Dispatch("a", protocol.MsgAddTask, payload(t, protocol.AddTaskRequest{Text: ""}))
		if len(r.state.TasksSnapshot()) != 1 {
			t.Errorf("empty task must not be appended")
		}
	})

	t.Run("toggle is an involution", func(t *testing.T) {
		r.Dispatch("b", protocol.MsgToggleTask, payload(t, protocol.TaskRef{TaskID: taskID}))
		task, _ := r.state.FindTask(taskID)
		if !task.Completed {
			t.Fatalf("expected completed after toggle")
		}

		completeNotes := 0
		for _, env := range a.byType(protocol.EvtTaskNotification) {
			var note protocol.TaskNotification
			_ = json.Unmarshal(env.Data, &note)
			if note.Action == protocol.ActionComplete {
				completeNotes++
			}
		}
		if completeNotes != 1 {
			t.Errorf("expected 1 complete notification, got %d", completeNotes)
		}

		r.Dispatch("b", protocol.MsgToggleTask, payload(t, protocol.TaskRef{TaskID: taskID}))
		task, _ = r.state.FindTask(taskID)
		if task.Completed {
			t.Fatalf("expected second toggle to restore")
		}
	})

	t.Run("delete removes exactly one", func(t *testing.T) {
		r.Dispatch("a", protocol.MsgDeleteTask, payload(t, protocol.TaskRef{TaskID: taskID}))
		if len(r.state.TasksSnapshot()) != 0 {
			t.Fatalf("task still present after delete")
		}
		// Deleting again is a silent no-op.
		r.Dispatch("a", protocol.MsgDeleteTask, payload(t, protocol.TaskRef{TaskID: taskID}))
	})

	t.Run("get-tasks unicasts", func(t *testing.T) {
		before := a.count(protocol.EvtTaskUpdate)
		r.Dispatch("b", protocol.MsgGetTasks, nil)
		if a.count(protocol.EvtTaskUpdate) != before {
			t.Errorf("get-tasks must not broadcast")
		}
		var tasks []domain.Task
		updates := b.byType(protocol.EvtTaskUpdate)
		if err := json.Unmarshal(updates[len(updates)-1].Data, &tasks); err != nil {
			t.Fatalf("decode task-update: %v", err)
		}
		if len(tasks) != 0 {
			t.Errorf("deleted task resurfaced: %+v", tasks)
		}
	})
}

func TestChatResolvesSenderName(t *testing.T) {
	r, _ := newTestRoom(t, false)
	a := join(t, r, "a", "Alice")
	b := join(t, r, "b", "Bob")

	r.Dispatch("a", protocol.MsgChat, payload(t, protocol.ChatRequest{Text: "hello"}))

	for _, conn := range []*fakeConn{a, b} {
		msgs := conn.byType(protocol.EvtChat)
		if len(msgs) != 1 {
			t.Fatalf("expected chat at every client, got %d", len(msgs))
		}
		var ev protocol.ChatEvent
		if err := json.Unmarshal(msgs[0].Data, &ev); err != nil {
			t.Fatalf("decode chat: %v", err)
		}
		if ev.Sender != "Alice" || ev.Text != "hello" {
			t.Errorf("unexpected chat %+v", ev)
		}
	}
}

func TestSystemBroadcast(t *testing.T) {
	r, _ := newTestRoom(t, false)
	a := join(t, r, "a", "Alice")
	b := join(t, r, "b", "Bob")

	msg := json.RawMessage(`{"text":"server restart in 5 minutes"}`)
	r.Dispatch("a", protocol.MsgSystem, msg)

	for _, conn := range []*fakeConn{a, b} {
		got := conn.byType(protocol.MsgSystem)
		if len(got) != 1 {
			t.Fatalf("expected system message at every client, got %d", len(got))
		}
		if string(got[0].Data) != string(msg) {
			t.Errorf("system payload not relayed verbatim: %s", got[0].Data)
		}
	}
}

func TestPlayerMoved(t *testing.T) {
	r, _ := newTestRoom(t, false)
	a := join(t, r, "a", "Alice")
	b := join(t, r, "b", "Bob")

	r.Dispatch("b", protocol.MsgPlayerMoved, payload(t, protocol.MoveRequest{X: 10, Y: 20, Animation: "player_walk_up"}))

	moves := a.byType(protocol.EvtPlayerMoved)
	if len(moves) != 1 {
		t.Fatalf("expected 1 playerMoved at A, got %d", len(moves))
	}
	var ev protocol.PlayerMovedEvent
	if err := json.Unmarshal(moves[0].Data, &ev); err != nil {
		t.Fatalf("decode playerMoved: %v", err)
	}
	if ev.SessionID != "b" || ev.X != 10 || ev.Y != 20 || ev.Animation != "player_walk_up" {
		t.Errorf("unexpected playerMoved %+v", ev)
	}
	if b.count(protocol.EvtPlayerMoved) != 0 {
		t.Errorf("mover must not receive its own playerMoved")
	}

	player, _ := r.state.Player("b")
	if player.X != 10 || player.Y != 20 {
		t.Errorf("state not updated: %+v", player)
	}
}

func TestWebRTCSignalRelay(t *testing.T) {
	r, _ := newTestRoom(t, false)
	a := join(t, r, "a", "Alice")
	b := join(t, r, "b", "Bob")
	c := join(t, r, "c", "Cora")

	sig := json.RawMessage(`{"callId":"x","kind":"offer"}`)
	r.Dispatch("a", protocol.MsgWebRTCSignal, payload(t, protocol.SignalRequest{To: "b", Signal: sig}))

	msgs := b.byType(protocol.EvtWebRTCSignal)
	if len(msgs) != 1 {
		t.Fatalf("expected unicast signal at B, got %d", len(msgs))
	}
	var ev protocol.SignalEvent
	if err := json.Unmarshal(msgs[0].Data, &ev); err != nil {
		t.Fatalf("decode signal: %v", err)
	}
	if ev.From != "a" || string(ev.Signal) != string(sig) {
		t.Errorf("unexpected signal %+v", ev)
	}
	if c.count(protocol.EvtWebRTCSignal) != 0 {
		t.Errorf("signal leaked to unrelated client")
	}

	// Absent target: logged and dropped, no crash, no fan-out.
	r.Dispatch("a", protocol.MsgWebRTCSignal, payload(t, protocol.SignalRequest{To: "ghost", Signal: sig}))
	if a.count(protocol.EvtWebRTCSignal)+b.count(protocol.EvtWebRTCSignal)+c.count(protocol.EvtWebRTCSignal) != 1 {
		t.Errorf("signal to absent target must go nowhere")
	}
}

func TestScreenShareArbitration(t *testing.T) {
	r, _ := newTestRoom(t, false)
	a := join(t, r, "a", "Alice")
	b := join(t, r, "b", "Bob")
	c := join(t, r, "c", "Cora")

	r.Dispatch("c", protocol.MsgScreenShareStarted, payload(t, protocol.ScreenShareEvent{PeerID: "c"}))
	if r.state.ActiveScreenSharePeer != "c" {
		t.Fatalf("expected active sharer c, got %q", r.state.ActiveScreenSharePeer)
	}
	if a.count(protocol.MsgScreenShareStarted) != 1 || b.count(protocol.MsgScreenShareStarted) != 1 {
		t.Errorf("started must be broadcast to others")
	}
	if c.count(protocol.MsgScreenShareStarted) != 0 {
		t.Errorf("sender must not see its own started event")
	}

	// A newer start overwrites the slot.
	r.Dispatch("a", protocol.MsgScreenShareStarted, payload(t, protocol.ScreenShareEvent{PeerID: "a"}))
	if r.state.ActiveScreenSharePeer != "a" {
		t.Fatalf("expected active sharer a, got %q", r.state.ActiveScreenSharePeer)
	}

	// The pre-empted sharer's stale stop must not clear the new owner.
	r.Dispatch("c", protocol.MsgScreenShareStopped, payload(t, protocol.ScreenShareEvent{PeerID: "c"}))
	if r.state.ActiveScreenSharePeer != "a" {
		t.Fatalf("stale stop cleared the active sharer")
	}

	r.Dispatch("b", protocol.MsgGetScreenShareStatus, nil)
	statuses := b.byType(protocol.EvtScreenShareStatus)
	if len(statuses) != 1 {
		t.Fatalf("expected unicast status, got %d", len(statuses))
	}
	var st protocol.ScreenShareStatus
	if err := json.Unmarshal(statuses[0].Data, &st); err != nil {
		t.Fatalf("decode status: %v", err)
	}
	if st.ActivePeerID != "a" {
		t.Errorf("expected status a, got %q", st.ActivePeerID)
	}

	r.Dispatch("a", protocol.MsgScreenShareStopped, payload(t, protocol.ScreenShareEvent{PeerID: "a"}))
	if r.state.ActiveScreenSharePeer != "" {
		t.Errorf("stop by owner must clear the slot")
	}
}

func TestMediaStateRelay(t *testing.T) {
	r, _ := newTestRoom(t, false)
	a := join(t, r, "a", "Alice")
	b := join(t, r, "b", "Bob")

	r.Dispatch("b", protocol.MsgMediaStateChange, payload(t, protocol.MediaState{VideoEnabled: false, AudioEnabled: true}))

	msgs := a.byType(protocol.EvtMediaStateChange)
	if len(msgs) != 1 {
		t.Fatalf("expected media state at A, got %d", len(msgs))
	}
	var ev protocol.MediaState
	if err := json.Unmarshal(msgs[0].Data, &ev); err != nil {
		t.Fatalf("decode media state: %v", err)
	}
	if ev.PeerID != "b" || ev.VideoEnabled || !ev.AudioEnabled {
		t.Errorf("unexpected media state %+v", ev)
	}
	if b.count(protocol.EvtMediaStateChange) != 0 {
		t.Errorf("sender must not receive its own media state")
	}
}

func TestUnknownIntentAndBadPayloadSurvive(t *testing.T) {
	r, _ := newTestRoom(t, false)
	join(t, r, "a", "Alice")

	r.Dispatch("a", "no-such-intent", nil)
	r.Dispatch("a", protocol.MsgAddTask, json.RawMessage(`{broken`))
	r.Dispatch("ghost", protocol.MsgChat, payload(t, protocol.ChatRequest{Text: "hi"}))

	// The room is still operational afterwards.
	r.Dispatch("a", protocol.MsgAddTask, payload(t, protocol.AddTaskRequest{Text: "still alive"}))
	if len(r.state.TasksSnapshot()) != 1 {
		t.Errorf("room loop died after bad input")
	}
}
