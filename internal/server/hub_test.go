package server

import (
	"fmt"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"github.com/babelmeet/babelmeet/internal/signaling"
)

func startServer(t *testing.T) string {
	t.Helper()
	hub := NewHub()
	go hub.Run()
	srv := httptest.NewServer(Handler(hub))
	t.Cleanup(srv.Close)
	return "ws" + strings.TrimPrefix(srv.URL, "http") + "/ws"
}

// testConn is a raw websocket client for exercising the hub end to end.
type testConn struct {
	t    *testing.T
	conn *websocket.Conn
	id   string
}

func dial(t *testing.T, url string) *testConn {
	t.Helper()
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	t.Cleanup(func() { conn.Close() })
	return &testConn{t: t, conn: conn}
}

func (c *testConn) send(msgType string, payload any, mutate func(*signaling.Message)) {
	c.t.Helper()
	msg, err := signaling.NewMessage(msgType, payload)
	if err != nil {
		c.t.Fatalf("building %s: %v", msgType, err)
	}
	if mutate != nil {
		mutate(msg)
	}
	if err := c.conn.WriteJSON(msg); err != nil {
		c.t.Fatalf("write %s: %v", msgType, err)
	}
}

func (c *testConn) read() *signaling.Message {
	c.t.Helper()
	c.conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	var msg signaling.Message
	if err := c.conn.ReadJSON(&msg); err != nil {
		c.t.Fatalf("read: %v", err)
	}
	return &msg
}

// expect reads until a message of the wanted type arrives, skipping
// unrelated broadcasts.
func (c *testConn) expect(msgType string) *signaling.Message {
	c.t.Helper()
	for i := 0; i < 16; i++ {
		if msg := c.read(); msg.Type == msgType {
			return msg
		}
	}
	c.t.Fatalf("never received %s", msgType)
	return nil
}

func (c *testConn) register(name string) string {
	c.t.Helper()
	c.send(signaling.TypeRegister, signaling.RegisterPayload{DisplayName: name}, nil)
	echo := c.expect(signaling.TypeRegistered)
	var p signaling.RegisteredPayload
	if err := echo.Decode(&p); err != nil || p.PeerID == "" {
		c.t.Fatalf("registered payload: %+v err=%v", p, err)
	}
	c.id = p.PeerID
	return p.PeerID
}

func TestRegisterIssuesIdentity(t *testing.T) {
	t.Parallel()
	url := startServer(t)

	a := dial(t, url)
	b := dial(t, url)
	if a.register("Alice") == b.register("Bob") {
		t.Fatal("server issued duplicate identities")
	}
}

func TestRelayStampsSenderIdentity(t *testing.T) {
	t.Parallel()
	url := startServer(t)

	a := dial(t, url)
	b := dial(t, url)
	aliceID := a.register("Alice")
	bobID := b.register("Bob")

	a.send(signaling.TypeCallRequest, signaling.SignalPayload{Type: "offer", SDP: "v=0"}, func(m *signaling.Message) {
		m.To = bobID
		// A forged From must be overwritten by the server.
		m.From = "mallory"
	})

	got := b.expect(signaling.TypeCallRequest)
	if got.From != aliceID {
		t.Fatalf("From: got %q, want %q", got.From, aliceID)
	}
	var p signaling.SignalPayload
	if err := got.Decode(&p); err != nil || p.SDP != "v=0" {
		t.Fatalf("relayed payload: %+v err=%v", p, err)
	}
}

func TestRelayToUnknownPeerReportsFailure(t *testing.T) {
	t.Parallel()
	url := startServer(t)

	a := dial(t, url)
	a.register("Alice")

	a.send(signaling.TypeCallRequest, signaling.SignalPayload{Type: "offer", SDP: "v=0"}, func(m *signaling.Message) {
		m.To = "ghost"
	})

	failed := a.expect(signaling.TypeCallFailed)
	var p signaling.EndCallPayload
	if err := failed.Decode(&p); err != nil || !strings.Contains(p.Reason, "peer not found") {
		t.Fatalf("call_failed payload: %+v err=%v", p, err)
	}
}

func TestUnregisteredClientCannotRelay(t *testing.T) {
	t.Parallel()
	url := startServer(t)

	a := dial(t, url)
	a.send(signaling.TypeCallRequest, signaling.SignalPayload{Type: "offer", SDP: "v=0"}, func(m *signaling.Message) {
		m.To = "anyone"
	})

	failed := a.expect(signaling.TypeCallFailed)
	var p signaling.EndCallPayload
	if err := failed.Decode(&p); err != nil || p.Reason != "not registered" {
		t.Fatalf("call_failed payload: %+v err=%v", p, err)
	}
}

func TestRoomLifecycle(t *testing.T) {
	t.Parallel()
	url := startServer(t)

	host := dial(t, url)
	guest := dial(t, url)
	hostID := host.register("Alice")
	guestID := guest.register("Bob")

	host.send(signaling.TypeCreateRoom, signaling.CreateRoomPayload{
		Settings:        signaling.RoomSettings{Name: "standup", SourceLang: "en", TargetLang: "es"},
		ParticipantName: "Alice",
		Language:        "en",
	}, nil)
	created := host.expect(signaling.TypeRoomCreated)
	var cp signaling.RoomCreatedPayload
	if err := created.Decode(&cp); err != nil {
		t.Fatalf("room_created payload: %v", err)
	}
	if cp.Room.HostID != hostID || len(cp.Room.Participants) != 1 {
		t.Fatalf("room snapshot after create: %+v", cp.Room)
	}

	guest.send(signaling.TypeJoinRoom, signaling.JoinRoomPayload{
		RoomID:          cp.Room.ID,
		ParticipantName: "Bob",
		Language:        "es",
	}, nil)
	joined := guest.expect(signaling.TypeRoomJoined)
	var jp signaling.RoomJoinedPayload
	if err := joined.Decode(&jp); err != nil {
		t.Fatalf("room_joined payload: %v", err)
	}
	if len(jp.Room.Participants) != 2 || jp.Participant.ID != guestID {
		t.Fatalf("room snapshot after join: %+v", jp)
	}

	delta := host.expect(signaling.TypeParticipantJoined)
	var dp signaling.ParticipantJoinedPayload
	if err := delta.Decode(&dp); err != nil || dp.Participant.ID != guestID {
		t.Fatalf("participant_joined: %+v err=%v", dp, err)
	}

	// Host departure closes the room for everyone.
	host.send(signaling.TypeLeaveRoom, nil, nil)
	guest.expect(signaling.TypeRoomClosed)
}

func TestJoinErrors(t *testing.T) {
	t.Parallel()
	url := startServer(t)

	host := dial(t, url)
	host.register("Alice")
	host.send(signaling.TypeCreateRoom, signaling.CreateRoomPayload{
		Settings:        signaling.RoomSettings{Name: "standup"},
		ParticipantName: "Alice",
	}, nil)
	created := host.expect(signaling.TypeRoomCreated)
	var cp signaling.RoomCreatedPayload
	if err := created.Decode(&cp); err != nil {
		t.Fatalf("room_created payload: %v", err)
	}

	expectRoomError := func(c *testConn, want string) {
		t.Helper()
		msg := c.expect(signaling.TypeRoomError)
		var p signaling.ErrorPayload
		if err := msg.Decode(&p); err != nil || p.Error != want {
			t.Fatalf("room_error: got %+v err=%v, want %q", p, err, want)
		}
	}

	ghost := dial(t, url)
	ghost.register("Ghost")
	ghost.send(signaling.TypeJoinRoom, signaling.JoinRoomPayload{RoomID: "nope", ParticipantName: "Ghost"}, nil)
	expectRoomError(ghost, "room not found")

	dupe := dial(t, url)
	dupe.register("Alice2")
	dupe.send(signaling.TypeJoinRoom, signaling.JoinRoomPayload{RoomID: cp.Room.ID, ParticipantName: "Alice"}, nil)
	expectRoomError(dupe, "display name already taken")
}

func TestRoomCapacity(t *testing.T) {
	t.Parallel()
	url := startServer(t)

	host := dial(t, url)
	host.register("P0")
	host.send(signaling.TypeCreateRoom, signaling.CreateRoomPayload{
		Settings:        signaling.RoomSettings{Name: "big"},
		ParticipantName: "P0",
	}, nil)
	created := host.expect(signaling.TypeRoomCreated)
	var cp signaling.RoomCreatedPayload
	if err := created.Decode(&cp); err != nil {
		t.Fatalf("room_created payload: %v", err)
	}

	for i := 1; i < maxParticipants; i++ {
		c := dial(t, url)
		name := fmt.Sprintf("P%d", i)
		c.register(name)
		c.send(signaling.TypeJoinRoom, signaling.JoinRoomPayload{RoomID: cp.Room.ID, ParticipantName: name}, nil)
		c.expect(signaling.TypeRoomJoined)
	}

	overflow := dial(t, url)
	overflow.register("Pz")
	overflow.send(signaling.TypeJoinRoom, signaling.JoinRoomPayload{RoomID: cp.Room.ID, ParticipantName: "Pz"}, nil)
	msg := overflow.expect(signaling.TypeRoomError)
	var p signaling.ErrorPayload
	if err := msg.Decode(&p); err != nil || p.Error != "room is full" {
		t.Fatalf("room_error: %+v err=%v", p, err)
	}
}

func TestDisconnectBroadcastsDeparture(t *testing.T) {
	t.Parallel()
	url := startServer(t)

	host := dial(t, url)
	guest := dial(t, url)
	host.register("Alice")
	guestID := guest.register("Bob")

	host.send(signaling.TypeCreateRoom, signaling.CreateRoomPayload{
		Settings:        signaling.RoomSettings{Name: "standup"},
		ParticipantName: "Alice",
	}, nil)
	created := host.expect(signaling.TypeRoomCreated)
	var cp signaling.RoomCreatedPayload
	if err := created.Decode(&cp); err != nil {
		t.Fatalf("room_created payload: %v", err)
	}

	guest.send(signaling.TypeJoinRoom, signaling.JoinRoomPayload{RoomID: cp.Room.ID, ParticipantName: "Bob"}, nil)
	guest.expect(signaling.TypeRoomJoined)
	host.expect(signaling.TypeParticipantJoined)

	// A dropped connection counts as a leave.
	guest.conn.Close()

	left := host.expect(signaling.TypeParticipantLeft)
	var p signaling.ParticipantLeftPayload
	if err := left.Decode(&p); err != nil || p.ParticipantID != guestID {
		t.Fatalf("participant_left: %+v err=%v", p, err)
	}
}
