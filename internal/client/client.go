// Package client ties the signaling transport, the call state machine and
// the room registry together behind one facade. It owns the event loop
// every inbound message and every call-layer command runs on.
package client

import (
	"errors"
	"log/slog"
	"sync"

	"github.com/babelmeet/babelmeet/internal/call"
	"github.com/babelmeet/babelmeet/internal/caption"
	"github.com/babelmeet/babelmeet/internal/clock"
	"github.com/babelmeet/babelmeet/internal/config"
	"github.com/babelmeet/babelmeet/internal/media"
	"github.com/babelmeet/babelmeet/internal/room"
	"github.com/babelmeet/babelmeet/internal/signaling"
)

// ErrClosed is returned by commands issued after Close.
var ErrClosed = errors.New("client: closed")

// Client is the application-facing handle for one connected babelmeet
// user. Call commands are marshalled onto the internal event loop; room
// commands talk to the registry directly, which does its own locking and
// blocks the caller until the server echo arrives.
type Client struct {
	cfg       *config.Config
	transport *signaling.Client
	calls     *call.Manager
	rooms     *room.Registry

	commands chan func()
	done     chan struct{}
	once     sync.Once
	wg       sync.WaitGroup
}

// Options override default collaborators, mainly for tests.
type Options struct {
	// Transport replaces the default websocket transport.
	Transport *signaling.Client
	// Clock replaces the real clock driving the ring timeout.
	Clock clock.Clock
	// NewPeer replaces the pion-backed peer factory.
	NewPeer call.PeerFactory
	// NewMedia replaces microphone capture.
	NewMedia func() (media.Handle, error)
}

// New builds a Client from configuration. The transport is not connected
// yet; call Connect.
func New(cfg *config.Config, opts Options) *Client {
	c := &Client{
		cfg:      cfg,
		commands: make(chan func(), 16),
		done:     make(chan struct{}),
	}

	c.transport = opts.Transport
	if c.transport == nil {
		c.transport = signaling.NewClient(cfg.WebSocketURL)
	}

	deps := call.Deps{
		Transport: c.transport,
		Clock:     opts.Clock,
		NewPeer:   opts.NewPeer,
		NewMedia:  opts.NewMedia,
		Dispatch:  c.dispatch,
	}
	if deps.Clock == nil {
		deps.Clock = clock.Real()
	}
	if deps.NewPeer == nil {
		deps.NewPeer = call.NewPionFactory(cfg)
	}
	if deps.NewMedia == nil {
		deps.NewMedia = func() (media.Handle, error) {
			return media.Microphone("microphone")
		}
	}

	c.calls = call.NewManager(deps)
	c.rooms = room.NewRegistry(c.transport)
	return c
}

// Connect dials the signaling server, registers this client's identity
// and starts the event loop.
func (c *Client) Connect() error {
	if err := c.transport.Connect(); err != nil {
		return err
	}
	if err := c.transport.Register("", c.cfg.DisplayName); err != nil {
		c.transport.Close()
		return err
	}

	c.wg.Add(1)
	go c.run()
	return nil
}

// Close tears down the transport and stops the event loop. Safe to call
// more than once.
func (c *Client) Close() {
	c.once.Do(func() {
		close(c.done)
		c.transport.Close()
	})
	c.wg.Wait()
}

// Identity returns the server-issued peer ID, or "" before registration
// completes.
func (c *Client) Identity() string { return c.transport.Identity() }

// CallEvents subscribes to call lifecycle events.
func (c *Client) CallEvents() (<-chan call.Event, func()) { return c.calls.Subscribe() }

// RoomEvents subscribes to room membership events.
func (c *Client) RoomEvents() (<-chan room.Event, func()) { return c.rooms.Subscribe() }

// StartCall places an outbound call to peerID.
func (c *Client) StartCall(peerID string) error {
	return c.do(func() error { return c.calls.StartCall(peerID) })
}

// AnswerCall accepts the currently ringing inbound call.
func (c *Client) AnswerCall() error {
	return c.do(func() error { return c.calls.Accept() })
}

// DeclineCall rejects the currently ringing inbound call.
func (c *Client) DeclineCall() error {
	return c.do(func() error { return c.calls.Decline() })
}

// EndCall hangs up the active call. A no-op when no call exists.
func (c *Client) EndCall() error {
	return c.do(func() error { return c.calls.EndCall() })
}

// ToggleMute flips the microphone mute state and returns the new state.
func (c *Client) ToggleMute() (muted bool, err error) {
	err = c.do(func() error {
		var terr error
		muted, terr = c.calls.ToggleMute()
		return terr
	})
	return muted, err
}

// SendCaption ships a caption line to the remote peer over the data
// channel.
func (c *Client) SendCaption(msg caption.Message) error {
	return c.do(func() error { return c.calls.SendCaption(msg) })
}

// CreateRoom creates a room with this client as host and blocks until
// the server confirms.
func (c *Client) CreateRoom(settings signaling.RoomSettings) (*room.Room, error) {
	return c.rooms.CreateRoom(settings, c.cfg.DisplayName, c.cfg.Language)
}

// JoinRoom joins an existing room and blocks until the server confirms.
func (c *Client) JoinRoom(roomID string) (*room.Room, error) {
	return c.rooms.JoinRoom(roomID, c.cfg.DisplayName, c.cfg.Language)
}

// LeaveRoom leaves the current room. A no-op when not in a room.
func (c *Client) LeaveRoom() error { return c.rooms.LeaveRoom() }

// CurrentRoom returns a snapshot of the joined room, or nil.
func (c *Client) CurrentRoom() *room.Room { return c.rooms.CurrentRoom() }

// do runs f on the event loop and waits for its result.
func (c *Client) do(f func() error) error {
	errc := make(chan error, 1)
	select {
	case c.commands <- func() { errc <- f() }:
	case <-c.done:
		return ErrClosed
	}
	select {
	case err := <-errc:
		return err
	case <-c.done:
		return ErrClosed
	}
}

// dispatch schedules f onto the event loop without waiting. Used by the
// call manager to marshal peer and timer callbacks.
func (c *Client) dispatch(f func()) {
	select {
	case c.commands <- f:
	case <-c.done:
	}
}

// run is the event loop. It is the only goroutine that touches the call
// manager, which is what lets the manager stay lock-free.
func (c *Client) run() {
	defer c.wg.Done()

	incoming := c.transport.Incoming()
	status := c.transport.Status()

	for {
		select {
		case <-c.done:
			return

		case f := <-c.commands:
			f()

		case msg, ok := <-incoming:
			if !ok {
				// Transport exhausted its reconnect budget.
				incoming = nil
				continue
			}
			c.route(msg)

		case s, ok := <-status:
			if !ok {
				status = nil
				continue
			}
			if s == signaling.StatusDown {
				slog.Warn("signaling transport down")
				c.calls.HandleTransportDown()
			}
		}
	}
}

func (c *Client) route(msg *signaling.Message) {
	switch msg.Type {
	case signaling.TypeRegistered:
		var p signaling.RegisteredPayload
		if err := msg.Decode(&p); err == nil {
			c.calls.SetIdentity(p.PeerID)
		}

	case signaling.TypeCallRequest, signaling.TypeCallAnswer,
		signaling.TypeCallDecline, signaling.TypeICECandidate,
		signaling.TypeEndCall, signaling.TypeCallFailed,
		signaling.TypeUserBusy:
		c.calls.HandleMessage(msg)

	case signaling.TypeRoomCreated, signaling.TypeRoomJoined,
		signaling.TypeRoomError, signaling.TypeRoomClosed,
		signaling.TypeParticipantJoined, signaling.TypeParticipantLeft:
		c.rooms.HandleMessage(msg)

	default:
		slog.Debug("unhandled message", "type", msg.Type)
	}
}
