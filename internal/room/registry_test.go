package room

import (
	"errors"
	"testing"
	"time"

	"github.com/babelmeet/babelmeet/internal/signaling"
)

type fakeSender struct {
	sent chan *signaling.Message
}

func newFakeSender() *fakeSender {
	return &fakeSender{sent: make(chan *signaling.Message, 16)}
}

func (f *fakeSender) Send(msg *signaling.Message) error {
	f.sent <- msg
	return nil
}

func (f *fakeSender) next(t *testing.T) *signaling.Message {
	t.Helper()
	select {
	case msg := <-f.sent:
		return msg
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for outbound message")
		return nil
	}
}

type joinResult struct {
	room *Room
	err  error
}

func mustMessage(t *testing.T, msgType string, payload any) *signaling.Message {
	t.Helper()
	msg, err := signaling.NewMessage(msgType, payload)
	if err != nil {
		t.Fatalf("building %s: %v", msgType, err)
	}
	return msg
}

func participant(id, name string, host bool) signaling.ParticipantInfo {
	return signaling.ParticipantInfo{ID: id, Name: name, Host: host, Connected: true}
}

func drainEvents(events <-chan Event) []Event {
	var out []Event
	for {
		select {
		case ev := <-events:
			out = append(out, ev)
		default:
			return out
		}
	}
}

func TestCreateRoomResolvesOnServerEcho(t *testing.T) {
	t.Parallel()
	sender := newFakeSender()
	reg := NewRegistry(sender)

	results := make(chan joinResult, 1)
	go func() {
		room, err := reg.CreateRoom(signaling.RoomSettings{Name: "standup", SourceLang: "en", TargetLang: "es"}, "Alice", "en")
		results <- joinResult{room, err}
	}()

	out := sender.next(t)
	if out.Type != signaling.TypeCreateRoom {
		t.Fatalf("outbound: got %q, want %q", out.Type, signaling.TypeCreateRoom)
	}

	reg.HandleMessage(mustMessage(t, signaling.TypeRoomCreated, signaling.RoomCreatedPayload{
		Room: signaling.RoomInfo{
			ID:           "room-1",
			Settings:     signaling.RoomSettings{Name: "standup", SourceLang: "en", TargetLang: "es"},
			HostID:       "alice",
			Participants: []signaling.ParticipantInfo{participant("alice", "Alice", true)},
		},
	}))

	res := <-results
	if res.err != nil {
		t.Fatalf("CreateRoom: %v", res.err)
	}
	if res.room.ID != "room-1" || res.room.HostID != "alice" {
		t.Fatalf("created room: %+v", res.room)
	}
	if self := reg.Self(); !self.Host || self.ID != "alice" {
		t.Fatalf("Self: %+v", self)
	}
	if reg.CurrentRoom() == nil {
		t.Fatal("CurrentRoom is nil after create")
	}
}

func TestJoinRoomRejectionSurfacesServerError(t *testing.T) {
	t.Parallel()
	sender := newFakeSender()
	reg := NewRegistry(sender)

	results := make(chan joinResult, 1)
	go func() {
		room, err := reg.JoinRoom("room-1", "Bob", "en")
		results <- joinResult{room, err}
	}()
	sender.next(t)

	reg.HandleMessage(mustMessage(t, signaling.TypeRoomError, signaling.ErrorPayload{Error: "room is full"}))

	res := <-results
	var serverErr *ServerError
	if !errors.As(res.err, &serverErr) || serverErr.Reason != "room is full" {
		t.Fatalf("JoinRoom error: got %v, want ServerError(room is full)", res.err)
	}
	if reg.CurrentRoom() != nil {
		t.Fatal("rejected join left a current room behind")
	}
}

func TestMembershipSnapshotPlusDeltas(t *testing.T) {
	t.Parallel()
	sender := newFakeSender()
	reg := NewRegistry(sender)
	events, cancel := reg.Subscribe()
	defer cancel()

	results := make(chan joinResult, 1)
	go func() {
		room, err := reg.JoinRoom("room-1", "Bob", "en")
		results <- joinResult{room, err}
	}()
	sender.next(t)

	reg.HandleMessage(mustMessage(t, signaling.TypeRoomJoined, signaling.RoomJoinedPayload{
		Room: signaling.RoomInfo{
			ID:     "room-1",
			HostID: "alice",
			Participants: []signaling.ParticipantInfo{
				participant("alice", "Alice", true),
				participant("bob", "Bob", false),
			},
		},
		Participant: participant("bob", "Bob", false),
	}))
	if res := <-results; res.err != nil {
		t.Fatalf("JoinRoom: %v", res.err)
	}

	reg.HandleMessage(mustMessage(t, signaling.TypeParticipantJoined, signaling.ParticipantJoinedPayload{
		Participant: participant("carol", "Carol", false),
	}))
	if got := len(reg.CurrentRoom().Participants); got != 3 {
		t.Fatalf("after join delta: got %d participants, want 3", got)
	}

	// A duplicate delta for an already-known participant is a no-op.
	reg.HandleMessage(mustMessage(t, signaling.TypeParticipantJoined, signaling.ParticipantJoinedPayload{
		Participant: participant("carol", "Carol", false),
	}))
	if got := len(reg.CurrentRoom().Participants); got != 3 {
		t.Fatalf("after duplicate delta: got %d participants, want 3", got)
	}

	reg.HandleMessage(mustMessage(t, signaling.TypeParticipantLeft, signaling.ParticipantLeftPayload{
		ParticipantID: "carol",
	}))
	if got := len(reg.CurrentRoom().Participants); got != 2 {
		t.Fatalf("after leave delta: got %d participants, want 2", got)
	}

	// Removing someone who is not a member publishes nothing.
	reg.HandleMessage(mustMessage(t, signaling.TypeParticipantLeft, signaling.ParticipantLeftPayload{
		ParticipantID: "mallory",
	}))

	var joins, leaves int
	for _, ev := range drainEvents(events) {
		switch ev.(type) {
		case ParticipantJoined:
			joins++
		case ParticipantLeft:
			leaves++
		}
	}
	if joins != 1 || leaves != 1 {
		t.Fatalf("delta events: got %d joins / %d leaves, want 1 / 1", joins, leaves)
	}
}

func TestCreateWhileInRoomRejected(t *testing.T) {
	t.Parallel()
	sender := newFakeSender()
	reg := NewRegistry(sender)

	results := make(chan joinResult, 1)
	go func() {
		room, err := reg.JoinRoom("room-1", "Bob", "en")
		results <- joinResult{room, err}
	}()
	sender.next(t)
	reg.HandleMessage(mustMessage(t, signaling.TypeRoomJoined, signaling.RoomJoinedPayload{
		Room:        signaling.RoomInfo{ID: "room-1", HostID: "alice"},
		Participant: participant("bob", "Bob", false),
	}))
	<-results

	_, err := reg.CreateRoom(signaling.RoomSettings{Name: "other"}, "Bob", "en")
	if !errors.Is(err, ErrAlreadyInRoom) {
		t.Fatalf("CreateRoom while joined: got %v, want ErrAlreadyInRoom", err)
	}
}

func TestEchoTimeout(t *testing.T) {
	t.Parallel()
	sender := newFakeSender()
	reg := NewRegistry(sender)
	reg.timeout = 20 * time.Millisecond

	_, err := reg.JoinRoom("room-1", "Bob", "en")
	if !errors.Is(err, ErrEchoTimeout) {
		t.Fatalf("JoinRoom without echo: got %v, want ErrEchoTimeout", err)
	}

	// The abandoned request must not block a retry.
	results := make(chan joinResult, 1)
	go func() {
		room, err := reg.JoinRoom("room-1", "Bob", "en")
		results <- joinResult{room, err}
	}()
	sender.next(t) // the timed-out request's message
	sender.next(t)
	reg.HandleMessage(mustMessage(t, signaling.TypeRoomJoined, signaling.RoomJoinedPayload{
		Room:        signaling.RoomInfo{ID: "room-1", HostID: "alice"},
		Participant: participant("bob", "Bob", false),
	}))
	if res := <-results; res.err != nil {
		t.Fatalf("retry after timeout: %v", res.err)
	}
}

func TestLateEchoAfterTimeoutBacksOut(t *testing.T) {
	t.Parallel()
	sender := newFakeSender()
	reg := NewRegistry(sender)
	reg.timeout = 20 * time.Millisecond
	events, cancel := reg.Subscribe()
	defer cancel()

	_, err := reg.JoinRoom("room-1", "Bob", "en")
	if !errors.Is(err, ErrEchoTimeout) {
		t.Fatalf("JoinRoom without echo: got %v, want ErrEchoTimeout", err)
	}
	sender.next(t) // the timed-out join_room

	// The echo straggles in after the caller gave up. The server thinks we
	// are a member now; the registry must leave instead of installing a
	// room the caller was told it never entered.
	reg.HandleMessage(mustMessage(t, signaling.TypeRoomJoined, signaling.RoomJoinedPayload{
		Room:        signaling.RoomInfo{ID: "room-1", HostID: "alice"},
		Participant: participant("bob", "Bob", false),
	}))

	out := sender.next(t)
	if out.Type != signaling.TypeLeaveRoom || out.RoomID != "room-1" {
		t.Fatalf("late echo response: type=%q room=%q, want %q for room-1",
			out.Type, out.RoomID, signaling.TypeLeaveRoom)
	}
	if reg.CurrentRoom() != nil {
		t.Fatal("late echo installed a current room")
	}
	for _, ev := range drainEvents(events) {
		if _, ok := ev.(Joined); ok {
			t.Fatal("late echo published a Joined event")
		}
	}
}

func TestLeaveRoomIsIdempotent(t *testing.T) {
	t.Parallel()
	sender := newFakeSender()
	reg := NewRegistry(sender)

	if err := reg.LeaveRoom(); err != nil {
		t.Fatalf("LeaveRoom with no room: %v", err)
	}
	select {
	case msg := <-sender.sent:
		t.Fatalf("unexpected outbound message: %v", msg)
	default:
	}

	results := make(chan joinResult, 1)
	go func() {
		room, err := reg.JoinRoom("room-1", "Bob", "en")
		results <- joinResult{room, err}
	}()
	sender.next(t)
	reg.HandleMessage(mustMessage(t, signaling.TypeRoomJoined, signaling.RoomJoinedPayload{
		Room:        signaling.RoomInfo{ID: "room-1", HostID: "alice"},
		Participant: participant("bob", "Bob", false),
	}))
	<-results

	if err := reg.LeaveRoom(); err != nil {
		t.Fatalf("LeaveRoom: %v", err)
	}
	out := sender.next(t)
	if out.Type != signaling.TypeLeaveRoom || out.RoomID != "room-1" {
		t.Fatalf("leave message: type=%q room=%q", out.Type, out.RoomID)
	}
	if reg.CurrentRoom() != nil {
		t.Fatal("CurrentRoom survived leave")
	}

	if err := reg.LeaveRoom(); err != nil {
		t.Fatalf("repeated LeaveRoom: %v", err)
	}
}

func TestRoomClosedByHost(t *testing.T) {
	t.Parallel()
	sender := newFakeSender()
	reg := NewRegistry(sender)
	events, cancel := reg.Subscribe()
	defer cancel()

	results := make(chan joinResult, 1)
	go func() {
		room, err := reg.JoinRoom("room-1", "Bob", "en")
		results <- joinResult{room, err}
	}()
	sender.next(t)
	reg.HandleMessage(mustMessage(t, signaling.TypeRoomJoined, signaling.RoomJoinedPayload{
		Room:        signaling.RoomInfo{ID: "room-1", HostID: "alice"},
		Participant: participant("bob", "Bob", false),
	}))
	<-results

	reg.HandleMessage(mustMessage(t, signaling.TypeRoomClosed, signaling.ErrorPayload{Error: "host ended the room"}))

	if reg.CurrentRoom() != nil {
		t.Fatal("CurrentRoom survived room_closed")
	}
	var closed *Closed
	for _, ev := range drainEvents(events) {
		if c, ok := ev.(Closed); ok {
			closed = &c
		}
	}
	if closed == nil || closed.Reason != "host ended the room" {
		t.Fatalf("Closed event: %+v", closed)
	}
}

func TestShareLink(t *testing.T) {
	t.Parallel()
	r := &Room{ID: "room-1"}
	if got := r.ShareLink("https://meet.example.com"); got != "https://meet.example.com/room/room-1" {
		t.Fatalf("ShareLink: got %q", got)
	}
}
