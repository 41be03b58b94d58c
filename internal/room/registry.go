package room

import (
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/babelmeet/babelmeet/internal/event"
	"github.com/babelmeet/babelmeet/internal/signaling"
)

// echoTimeout bounds how long CreateRoom and JoinRoom wait for the
// server's echo before giving up.
const echoTimeout = 10 * time.Second

var (
	ErrAlreadyInRoom  = errors.New("already in a room")
	ErrRequestPending = errors.New("a room request is already in flight")
	ErrEchoTimeout    = errors.New("timed out waiting for server")
)

// ServerError is a room rejection relayed by the server (room not found,
// room full, duplicate name). The request stays retryable.
type ServerError struct {
	Reason string
}

func (e *ServerError) Error() string {
	return fmt.Sprintf("room request rejected: %s", e.Reason)
}

// Event is the tagged union published by the Registry.
type Event interface {
	roomEvent()
}

// Joined: the local client entered a room (create or join resolved).
type Joined struct {
	Room Room
	Self Participant
}

// ParticipantJoined: a membership delta added a participant.
type ParticipantJoined struct {
	Participant Participant
}

// ParticipantLeft: a membership delta removed a participant.
type ParticipantLeft struct {
	ParticipantID string
}

// Closed: the room was destroyed (host ended it).
type Closed struct {
	Reason string
}

// ErrorEvent: an asynchronous room error arrived outside a pending
// create/join request.
type ErrorEvent struct {
	Err error
}

func (Joined) roomEvent()            {}
func (ParticipantJoined) roomEvent() {}
func (ParticipantLeft) roomEvent()   {}
func (Closed) roomEvent()            {}
func (ErrorEvent) roomEvent()        {}

// Sender is the slice of the signaling transport the Registry writes to.
type Sender interface {
	Send(msg *signaling.Message) error
}

type result struct {
	room *Room
	self Participant
	err  error
}

// Registry maintains the client's room membership: at most one room at a
// time. Create and join requests resolve on the server's echo, never
// optimistically, so the local copy always starts from a consistent
// snapshot. HandleMessage is driven by the client event loop; CreateRoom
// and JoinRoom are called from application goroutines, so the current-room
// pointer is mutex-guarded.
type Registry struct {
	transport Sender
	bus       *event.Bus[Event]
	timeout   time.Duration

	mu      sync.Mutex
	current *Room
	self    Participant
	pending chan result
}

// NewRegistry builds a Registry on top of the given transport.
func NewRegistry(transport Sender) *Registry {
	return &Registry{
		transport: transport,
		bus:       event.NewBus[Event](),
		timeout:   echoTimeout,
	}
}

// Subscribe registers an event consumer.
func (r *Registry) Subscribe() (<-chan Event, func()) {
	return r.bus.Subscribe()
}

// CurrentRoom returns a snapshot of the room the client is in, or nil.
func (r *Registry) CurrentRoom() *Room {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.current.clone()
}

// Self returns the client's own participant entry in the current room.
func (r *Registry) Self() Participant {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.self
}

// CreateRoom asks the server for a new room and blocks until the
// room_created echo names this client host. The room's settings carry its
// display name and language pair.
func (r *Registry) CreateRoom(settings signaling.RoomSettings, displayName, language string) (*Room, error) {
	waiter, err := r.begin()
	if err != nil {
		return nil, err
	}

	msg, err := signaling.NewMessage(signaling.TypeCreateRoom, signaling.CreateRoomPayload{
		Settings:        settings,
		ParticipantName: displayName,
		Language:        language,
	})
	if err != nil {
		r.abandon()
		return nil, err
	}
	if err := r.transport.Send(msg); err != nil {
		r.abandon()
		return nil, err
	}

	return r.await(waiter)
}

// JoinRoom asks the server to add this client to an existing room and
// blocks until the room_joined echo delivers the membership snapshot.
// Rejections (not found, full, duplicate name) come back as *ServerError.
func (r *Registry) JoinRoom(roomID, displayName, language string) (*Room, error) {
	waiter, err := r.begin()
	if err != nil {
		return nil, err
	}

	msg, err := signaling.NewMessage(signaling.TypeJoinRoom, signaling.JoinRoomPayload{
		RoomID:          roomID,
		ParticipantName: displayName,
		Language:        language,
	})
	if err != nil {
		r.abandon()
		return nil, err
	}
	if err := r.transport.Send(msg); err != nil {
		r.abandon()
		return nil, err
	}

	return r.await(waiter)
}

// LeaveRoom departs the current room. Idempotent: with no current room it
// is a no-op.
func (r *Registry) LeaveRoom() error {
	r.mu.Lock()
	current := r.current
	r.current = nil
	r.self = Participant{}
	r.mu.Unlock()

	if current == nil {
		return nil
	}

	msg, err := signaling.NewMessage(signaling.TypeLeaveRoom, nil)
	if err != nil {
		return err
	}
	msg.RoomID = current.ID
	return r.transport.Send(msg)
}

func (r *Registry) begin() (chan result, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.current != nil {
		return nil, ErrAlreadyInRoom
	}
	if r.pending != nil {
		return nil, ErrRequestPending
	}
	r.pending = make(chan result, 1)
	return r.pending, nil
}

func (r *Registry) abandon() {
	r.mu.Lock()
	r.pending = nil
	r.mu.Unlock()
}

func (r *Registry) await(waiter chan result) (*Room, error) {
	select {
	case res := <-waiter:
		if res.err != nil {
			return nil, res.err
		}
		return res.room.clone(), nil
	case <-time.After(r.timeout):
		r.abandon()
		// The echo may have won a race with the timeout and already
		// resolved the waiter; honor it so the caller and the installed
		// room state agree.
		select {
		case res := <-waiter:
			if res.err != nil {
				return nil, res.err
			}
			return res.room.clone(), nil
		default:
		}
		return nil, ErrEchoTimeout
	}
}

// resolve hands the echo result to the blocked caller, if one remains.
func (r *Registry) resolve(res result) {
	r.mu.Lock()
	waiter := r.pending
	r.pending = nil
	r.mu.Unlock()

	if waiter != nil {
		waiter <- res
	}
}

// HandleMessage processes one inbound signaling message addressed to the
// room layer. Called from the client event loop.
func (r *Registry) HandleMessage(msg *signaling.Message) {
	switch msg.Type {
	case signaling.TypeRoomCreated:
		var p signaling.RoomCreatedPayload
		if err := msg.Decode(&p); err != nil {
			slog.Debug("discarding malformed room_created", "error", err)
			return
		}
		created := roomFromInfo(p.Room)
		var self Participant
		if host := created.Host(); host != nil {
			self = *host
		}
		r.adopt(created, self)

	case signaling.TypeRoomJoined:
		var p signaling.RoomJoinedPayload
		if err := msg.Decode(&p); err != nil {
			slog.Debug("discarding malformed room_joined", "error", err)
			return
		}
		r.adopt(roomFromInfo(p.Room), participantFromInfo(p.Participant))

	case signaling.TypeRoomError:
		var p signaling.ErrorPayload
		reason := "unknown room error"
		if err := msg.Decode(&p); err == nil && p.Error != "" {
			reason = p.Error
		}
		err := &ServerError{Reason: reason}
		r.mu.Lock()
		waiting := r.pending != nil
		r.mu.Unlock()
		if waiting {
			r.resolve(result{err: err})
		}
		r.bus.Publish(ErrorEvent{Err: err})

	case signaling.TypeParticipantJoined:
		var p signaling.ParticipantJoinedPayload
		if err := msg.Decode(&p); err != nil {
			return
		}
		r.addParticipant(participantFromInfo(p.Participant))

	case signaling.TypeParticipantLeft:
		var p signaling.ParticipantLeftPayload
		if err := msg.Decode(&p); err != nil {
			return
		}
		r.removeParticipant(p.ParticipantID)

	case signaling.TypeRoomClosed:
		var p signaling.ErrorPayload
		reason := "room closed"
		if err := msg.Decode(&p); err == nil && p.Error != "" {
			reason = p.Error
		}
		r.mu.Lock()
		hadRoom := r.current != nil
		r.current = nil
		r.self = Participant{}
		r.mu.Unlock()
		if hadRoom {
			r.bus.Publish(Closed{Reason: reason})
		}
	}
}

func (r *Registry) adopt(adopted *Room, self Participant) {
	r.mu.Lock()
	waiter := r.pending
	r.pending = nil
	if waiter == nil {
		// The caller already gave up on this request, but the server
		// thinks we joined. Back out so both sides agree, instead of
		// installing a room the caller was told it never entered.
		r.mu.Unlock()
		slog.Warn("late room echo after abandoned request, leaving",
			"room_id", adopted.ID)
		msg, err := signaling.NewMessage(signaling.TypeLeaveRoom, nil)
		if err == nil {
			msg.RoomID = adopted.ID
			r.transport.Send(msg)
		}
		return
	}
	r.current = adopted
	r.self = self
	r.mu.Unlock()

	waiter <- result{room: adopted, self: self}
	r.bus.Publish(Joined{Room: *adopted.clone(), Self: self})
}

func (r *Registry) addParticipant(p Participant) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.current == nil {
		return
	}
	for _, existing := range r.current.Participants {
		if existing.ID == p.ID {
			return
		}
	}
	r.current.Participants = append(r.current.Participants, p)
	r.bus.Publish(ParticipantJoined{Participant: p})
}

func (r *Registry) removeParticipant(id string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.current == nil {
		return
	}
	for i, existing := range r.current.Participants {
		if existing.ID == id {
			r.current.Participants = append(r.current.Participants[:i], r.current.Participants[i+1:]...)
			r.bus.Publish(ParticipantLeft{ParticipantID: id})
			return
		}
	}
}
