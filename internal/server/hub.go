package server

import (
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/babelmeet/babelmeet/internal/signaling"
)

// envelope pairs an inbound message with the connection it arrived on.
// The sender identity comes from the connection, never from the wire, so
// clients cannot spoof From.
type envelope struct {
	client *Client
	msg    *signaling.Message
}

// Hub is the single goroutine that owns all server state: registered
// identities and rooms. Connections talk to it through channels, so no
// locks guard the maps.
type Hub struct {
	// clients maps peer ID to connection.
	clients map[string]*Client

	// rooms maps room ID to Room.
	rooms map[string]*Room

	Register   chan *Client
	Unregister chan *Client
	Inbound    chan envelope
}

// NewHub creates a Hub.
func NewHub() *Hub {
	return &Hub{
		clients:    make(map[string]*Client),
		rooms:      make(map[string]*Room),
		Register:   make(chan *Client),
		Unregister: make(chan *Client),
		Inbound:    make(chan envelope),
	}
}

func (h *Hub) isHost(c *Client) bool {
	room, ok := h.rooms[c.RoomID]
	return ok && room.HostID == c.PeerID
}

// Run starts the hub's main processing loop.
func (h *Hub) Run() {
	for {
		select {
		case client := <-h.Register:
			// The connection exists but has no identity yet; it must send
			// a register message before anything else is routed.
			slog.Debug("connection opened", "remote", client.Conn.RemoteAddr())

		case client := <-h.Unregister:
			h.disconnect(client)

		case env := <-h.Inbound:
			h.handle(env.client, env.msg)
		}
	}
}

func (h *Hub) handle(client *Client, msg *signaling.Message) {
	if client.closed {
		return
	}
	switch msg.Type {
	case signaling.TypeRegister:
		h.handleRegister(client, msg)

	case signaling.TypeCallRequest, signaling.TypeCallAnswer,
		signaling.TypeCallDecline, signaling.TypeICECandidate,
		signaling.TypeEndCall, signaling.TypeUserBusy:
		h.relay(client, msg)

	case signaling.TypeCreateRoom:
		h.handleCreateRoom(client, msg)

	case signaling.TypeJoinRoom:
		h.handleJoinRoom(client, msg)

	case signaling.TypeLeaveRoom:
		h.leaveRoom(client)

	default:
		slog.Debug("unknown message type", "type", msg.Type)
	}
}

// handleRegister binds an identity to the connection. An empty requested
// ID gets a freshly issued one; a non-empty ID re-binds a previously
// issued identity after a client reconnect.
func (h *Hub) handleRegister(client *Client, msg *signaling.Message) {
	var p signaling.RegisterPayload
	if msg.Payload != nil {
		if err := msg.Decode(&p); err != nil {
			h.sendError(client, signaling.TypeCallFailed, "malformed register payload")
			return
		}
	}

	peerID := p.PeerID
	if peerID == "" {
		peerID = uuid.NewString()
	}

	// A re-registration supersedes any stale connection still bound to
	// the identity.
	if old, ok := h.clients[peerID]; ok && old != client {
		h.disconnect(old)
	}

	client.PeerID = peerID
	if p.DisplayName != "" {
		client.DisplayName = p.DisplayName
	}
	h.clients[peerID] = client

	slog.Info("peer registered", "peer_id", peerID, "remote", client.Conn.RemoteAddr())

	reply, err := signaling.NewMessage(signaling.TypeRegistered, signaling.RegisteredPayload{PeerID: peerID})
	if err != nil {
		return
	}
	h.deliver(client, reply)
}

// relay forwards a call-signaling message to the peer named by To,
// stamping From with the sender's registered identity.
func (h *Hub) relay(client *Client, msg *signaling.Message) {
	if client.PeerID == "" {
		h.sendError(client, signaling.TypeCallFailed, "not registered")
		return
	}

	target, ok := h.clients[msg.To]
	if !ok {
		// end_call to a vanished peer is best-effort by design.
		if msg.Type != signaling.TypeEndCall {
			h.sendError(client, signaling.TypeCallFailed, "peer not found: "+msg.To)
		}
		return
	}

	forwarded := *msg
	forwarded.From = client.PeerID
	h.deliver(target, &forwarded)
}

func (h *Hub) handleCreateRoom(client *Client, msg *signaling.Message) {
	var p signaling.CreateRoomPayload
	if err := msg.Decode(&p); err != nil {
		h.sendError(client, signaling.TypeRoomError, "malformed create_room payload")
		return
	}
	if client.PeerID == "" {
		h.sendError(client, signaling.TypeRoomError, "not registered")
		return
	}
	if client.RoomID != "" {
		h.sendError(client, signaling.TypeRoomError, "already in a room")
		return
	}

	room := &Room{
		ID:       uuid.NewString(),
		Settings: p.Settings,
		HostID:   client.PeerID,
	}
	h.rooms[room.ID] = room

	client.RoomID = room.ID
	client.DisplayName = p.ParticipantName
	client.Language = p.Language
	client.JoinedAt = time.Now()
	room.add(client)

	slog.Info("room created", "room_id", room.ID, "host", client.PeerID)

	reply, err := signaling.NewMessage(signaling.TypeRoomCreated, signaling.RoomCreatedPayload{Room: room.snapshot()})
	if err != nil {
		return
	}
	reply.RoomID = room.ID
	h.deliver(client, reply)
}

func (h *Hub) handleJoinRoom(client *Client, msg *signaling.Message) {
	var p signaling.JoinRoomPayload
	if err := msg.Decode(&p); err != nil {
		h.sendError(client, signaling.TypeRoomError, "malformed join_room payload")
		return
	}
	if client.PeerID == "" {
		h.sendError(client, signaling.TypeRoomError, "not registered")
		return
	}
	if client.RoomID != "" {
		h.sendError(client, signaling.TypeRoomError, "already in a room")
		return
	}

	room, ok := h.rooms[p.RoomID]
	if !ok {
		h.sendError(client, signaling.TypeRoomError, "room not found")
		return
	}
	if room.isFull() {
		h.sendError(client, signaling.TypeRoomError, "room is full")
		return
	}
	if room.hasName(p.ParticipantName) {
		h.sendError(client, signaling.TypeRoomError, "display name already taken")
		return
	}

	client.RoomID = room.ID
	client.DisplayName = p.ParticipantName
	client.Language = p.Language
	client.JoinedAt = time.Now()
	room.add(client)

	slog.Info("participant joined room",
		"room_id", room.ID, "peer_id", client.PeerID, "name", client.DisplayName)

	// Existing members learn about the joiner before the joiner's echo
	// carries the snapshot that already includes everyone.
	joined, err := signaling.NewMessage(signaling.TypeParticipantJoined, signaling.ParticipantJoinedPayload{
		Participant: client.participantInfo(),
	})
	if err == nil {
		joined.RoomID = room.ID
		for _, other := range room.others(client) {
			h.deliver(other, joined)
		}
	}

	reply, err := signaling.NewMessage(signaling.TypeRoomJoined, signaling.RoomJoinedPayload{
		Room:        room.snapshot(),
		Participant: client.participantInfo(),
	})
	if err != nil {
		return
	}
	reply.RoomID = room.ID
	h.deliver(client, reply)
}

// leaveRoom removes the client from its room. A departing host closes the
// room for everyone; otherwise remaining members get a membership delta
// and the room is destroyed once empty.
func (h *Hub) leaveRoom(client *Client) {
	room, ok := h.rooms[client.RoomID]
	if !ok {
		client.RoomID = ""
		return
	}

	wasHost := room.HostID == client.PeerID
	room.remove(client)
	client.RoomID = ""

	if wasHost {
		slog.Info("host left, closing room", "room_id", room.ID)
		closed, err := signaling.NewMessage(signaling.TypeRoomClosed, signaling.ErrorPayload{Error: "host ended the room"})
		if err == nil {
			closed.RoomID = room.ID
			for _, other := range room.participants {
				other.RoomID = ""
				h.deliver(other, closed)
			}
		}
		delete(h.rooms, room.ID)
		return
	}

	left, err := signaling.NewMessage(signaling.TypeParticipantLeft, signaling.ParticipantLeftPayload{
		ParticipantID: client.PeerID,
	})
	if err == nil {
		left.RoomID = room.ID
		for _, other := range room.participants {
			h.deliver(other, left)
		}
	}

	if len(room.participants) == 0 {
		slog.Info("room empty, destroyed", "room_id", room.ID)
		delete(h.rooms, room.ID)
	}
}

// disconnect tears down a connection's state: room membership, identity
// binding, and the send channel that stops its WritePump.
func (h *Hub) disconnect(client *Client) {
	if client.closed {
		return
	}
	client.closed = true
	if client.RoomID != "" {
		h.leaveRoom(client)
	}
	if client.PeerID != "" && h.clients[client.PeerID] == client {
		delete(h.clients, client.PeerID)
	}
	close(client.Send)
	slog.Debug("connection closed", "peer_id", client.PeerID)
}

func (h *Hub) sendError(client *Client, msgType, text string) {
	var payload any = signaling.ErrorPayload{Error: text}
	if msgType == signaling.TypeCallFailed {
		payload = signaling.EndCallPayload{Reason: text}
	}
	msg, err := signaling.NewMessage(msgType, payload)
	if err != nil {
		return
	}
	h.deliver(client, msg)
}

// deliver queues a message without blocking the hub; a client whose send
// buffer is full is dropped rather than allowed to stall everyone.
func (h *Hub) deliver(client *Client, msg *signaling.Message) {
	select {
	case client.Send <- msg:
	default:
		slog.Warn("client send buffer full, disconnecting", "peer_id", client.PeerID)
		h.disconnect(client)
	}
}
