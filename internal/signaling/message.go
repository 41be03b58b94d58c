package signaling

import (
	"encoding/json"
	"time"
)

// Message is the envelope for all websocket traffic between a client and
// the coordination server. From and To carry peer identities; the server
// fills From on relayed messages so a client cannot spoof its identity.
type Message struct {
	Type    string          `json:"type"`
	From    string          `json:"from,omitempty"`
	To      string          `json:"to,omitempty"`
	RoomID  string          `json:"room_id,omitempty"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

// Message type constants. Client-to-server on the left half, server-to-client
// (echoes and broadcasts) on the right half of each group.
const (
	TypeRegister   = "register"
	TypeRegistered = "registered"

	TypeCallRequest  = "call_request"
	TypeCallAnswer   = "call_answer"
	TypeCallDecline  = "call_decline"
	TypeICECandidate = "ice_candidate"
	TypeEndCall      = "end_call"
	TypeCallFailed   = "call_failed"
	TypeUserBusy     = "user_busy"

	TypeCreateRoom        = "create_room"
	TypeRoomCreated       = "room_created"
	TypeJoinRoom          = "join_room"
	TypeRoomJoined        = "room_joined"
	TypeLeaveRoom         = "leave_room"
	TypeRoomClosed        = "room_closed"
	TypeRoomError         = "room_error"
	TypeParticipantJoined = "participant_joined"
	TypeParticipantLeft   = "participant_left"
)

// RegisterPayload requests an identity. An empty PeerID asks the server to
// issue one; a non-empty PeerID re-registers a previously issued identity
// after a reconnect.
type RegisterPayload struct {
	PeerID      string `json:"peer_id,omitempty"`
	DisplayName string `json:"display_name,omitempty"`
}

// RegisteredPayload echoes the identity the server bound to this connection.
type RegisteredPayload struct {
	PeerID string `json:"peer_id"`
}

// SignalPayload carries an SDP offer or answer.
type SignalPayload struct {
	Type string `json:"type"` // "offer" or "answer"
	SDP  string `json:"sdp"`
}

// CandidatePayload carries a single ICE candidate. The candidate blob is
// opaque to the signaling layer; only the call layer interprets it.
type CandidatePayload struct {
	Candidate json.RawMessage `json:"candidate"`
}

// EndCallPayload carries the reason a call ended or failed.
type EndCallPayload struct {
	Reason string `json:"reason,omitempty"`
}

// ErrorPayload carries error text from the server.
type ErrorPayload struct {
	Error string `json:"error"`
}

// RoomSettings are the caller-chosen attributes of a new room.
type RoomSettings struct {
	Name       string `json:"name"`
	SourceLang string `json:"source_lang,omitempty"`
	TargetLang string `json:"target_lang,omitempty"`
}

// CreateRoomPayload asks the server to create a room with the sender as host.
type CreateRoomPayload struct {
	Settings        RoomSettings `json:"settings"`
	ParticipantName string       `json:"participant_name"`
	Language        string       `json:"language,omitempty"`
}

// JoinRoomPayload asks the server to add the sender to an existing room.
type JoinRoomPayload struct {
	RoomID          string `json:"room_id"`
	ParticipantName string `json:"participant_name"`
	Language        string `json:"language,omitempty"`
}

// ParticipantInfo describes one room member.
type ParticipantInfo struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	Host      bool      `json:"host"`
	Language  string    `json:"language,omitempty"`
	Connected bool      `json:"connected"`
	JoinedAt  time.Time `json:"joined_at"`
}

// RoomInfo is the full room snapshot sent on room_created and room_joined.
// Participants are ordered by join time.
type RoomInfo struct {
	ID           string            `json:"id"`
	Settings     RoomSettings      `json:"settings"`
	HostID       string            `json:"host_id"`
	Participants []ParticipantInfo `json:"participants"`
}

// RoomCreatedPayload is the echo resolving a create_room request.
type RoomCreatedPayload struct {
	Room RoomInfo `json:"room"`
}

// RoomJoinedPayload is the echo resolving a join_room request. Participant
// is the joiner's own entry, Room the membership snapshot at join time.
type RoomJoinedPayload struct {
	Room        RoomInfo        `json:"room"`
	Participant ParticipantInfo `json:"participant"`
}

// ParticipantJoinedPayload is broadcast to existing members on a join.
type ParticipantJoinedPayload struct {
	Participant ParticipantInfo `json:"participant"`
}

// ParticipantLeftPayload is broadcast when a member leaves or its
// connection drops.
type ParticipantLeftPayload struct {
	ParticipantID string `json:"participant_id"`
}

// NewMessage builds a Message with a marshalled payload.
func NewMessage(msgType string, payload any) (*Message, error) {
	msg := &Message{Type: msgType}
	if payload != nil {
		raw, err := json.Marshal(payload)
		if err != nil {
			return nil, err
		}
		msg.Payload = raw
	}
	return msg, nil
}

// Decode unmarshals the message payload into v.
func (m *Message) Decode(v any) error {
	return json.Unmarshal(m.Payload, v)
}
