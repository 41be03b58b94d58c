package signaling

import (
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = (pongWait * 9) / 10
	maxMessageSize = 64 * 1024

	defaultReconnectAttempts = 5
	defaultReconnectDelay    = time.Second
)

// ErrNotConnected is returned by Register while the transport is down.
// Registration is deliberately not queued: callers gate it on StatusReady.
var ErrNotConnected = errors.New("signaling: not connected")

// ErrClosed is returned by Send after the client shut down or exhausted
// its reconnect attempts.
var ErrClosed = errors.New("signaling: client closed")

// Status reports transport lifecycle transitions on the Status channel.
type Status int

const (
	// StatusReady: connected and (re-)registered; sends will go through.
	StatusReady Status = iota
	// StatusReconnecting: the connection dropped, retries are in flight.
	StatusReconnecting
	// StatusDown: reconnect attempts are exhausted; the client is dead.
	StatusDown
)

func (s Status) String() string {
	switch s {
	case StatusReady:
		return "ready"
	case StatusReconnecting:
		return "reconnecting"
	case StatusDown:
		return "down"
	}
	return fmt.Sprintf("status(%d)", int(s))
}

// Client manages the websocket connection to the coordination server: raw
// connection lifecycle, identity registration, and bounded reconnection
// with exponential backoff. Inbound messages surface on Incoming; lifecycle
// transitions on Status. The client never calls back into application code.
type Client struct {
	serverURL string
	attempts  int
	baseDelay time.Duration

	incoming     chan *Message
	incomingOnce sync.Once
	outgoing     chan *Message
	status       chan Status
	done         chan struct{}
	closeOnce    sync.Once

	mu          sync.Mutex
	conn        *websocket.Conn
	connected   bool
	identity    string
	displayName string
}

// Option adjusts client construction.
type Option func(*Client)

// WithReconnect overrides the retry count and initial backoff delay. The
// delay doubles on each successive attempt.
func WithReconnect(attempts int, baseDelay time.Duration) Option {
	return func(c *Client) {
		c.attempts = attempts
		c.baseDelay = baseDelay
	}
}

// NewClient creates a signaling client for the given websocket URL.
func NewClient(serverURL string, opts ...Option) *Client {
	c := &Client{
		serverURL: serverURL,
		attempts:  defaultReconnectAttempts,
		baseDelay: defaultReconnectDelay,
		incoming:  make(chan *Message, 32),
		outgoing:  make(chan *Message, 32),
		status:    make(chan Status, 8),
		done:      make(chan struct{}),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Connect establishes the websocket connection and starts the read and
// write pumps. On success a StatusReady event is emitted.
func (c *Client) Connect() error {
	u, err := url.Parse(c.serverURL)
	if err != nil {
		return fmt.Errorf("invalid server URL: %w", err)
	}

	conn, _, err := websocket.DefaultDialer.Dial(u.String(), nil)
	if err != nil {
		return fmt.Errorf("failed to connect: %w", err)
	}

	c.mu.Lock()
	c.conn = conn
	c.connected = true
	c.mu.Unlock()

	c.startPumps(conn)
	c.pushStatus(StatusReady)
	return nil
}

// Register binds an identity to this connection. An empty peerID asks the
// server to issue one; the issued identity is picked up from the
// registered echo and reused on reconnects. Returns ErrNotConnected while
// the transport is down: registration is dropped, never queued.
func (c *Client) Register(peerID, displayName string) error {
	c.mu.Lock()
	connected := c.connected
	if peerID != "" {
		c.identity = peerID
	}
	c.displayName = displayName
	c.mu.Unlock()

	if !connected {
		slog.Warn("register dropped: transport not connected", "peer_id", peerID)
		return ErrNotConnected
	}

	msg, err := NewMessage(TypeRegister, RegisterPayload{PeerID: peerID, DisplayName: displayName})
	if err != nil {
		return err
	}
	return c.Send(msg)
}

// Identity returns the identity the server bound to this client, or ""
// before registration completes.
func (c *Client) Identity() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.identity
}

// Send queues a message for delivery. Queued messages survive a reconnect;
// they are flushed after re-registration completes, preserving send order.
func (c *Client) Send(msg *Message) error {
	select {
	case <-c.done:
		return ErrClosed
	default:
	}
	select {
	case c.outgoing <- msg:
		return nil
	case <-c.done:
		return ErrClosed
	}
}

// Incoming returns the channel of inbound messages. It is closed when the
// client shuts down or gives up reconnecting.
func (c *Client) Incoming() <-chan *Message {
	return c.incoming
}

// Status returns the channel of transport lifecycle events.
func (c *Client) Status() <-chan Status {
	return c.status
}

// Close shuts the client down. Safe to call more than once.
func (c *Client) Close() {
	c.closeOnce.Do(func() {
		close(c.done)
		c.mu.Lock()
		if c.conn != nil {
			c.conn.WriteControl(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
				time.Now().Add(writeWait))
			c.conn.Close()
		}
		c.connected = false
		c.mu.Unlock()
		c.closeIncoming()
	})
}

func (c *Client) closeIncoming() {
	c.incomingOnce.Do(func() { close(c.incoming) })
}

func (c *Client) pushStatus(s Status) {
	select {
	case c.status <- s:
	default:
		// Listener fell behind; drop rather than block the transport.
	}
}

// startPumps launches the per-connection read and write goroutines. The
// stop channel ties the writer's lifetime to the reader's: when the read
// side fails, the writer exits and reconnection takes over.
func (c *Client) startPumps(conn *websocket.Conn) {
	stop := make(chan struct{})
	go c.readPump(conn, stop)
	go c.writePump(conn, stop)
}

func (c *Client) readPump(conn *websocket.Conn, stop chan struct{}) {
	defer func() {
		close(stop)
		conn.Close()
	}()

	conn.SetReadLimit(maxMessageSize)
	conn.SetReadDeadline(time.Now().Add(pongWait))
	conn.SetPongHandler(func(string) error {
		conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		var msg Message
		if err := conn.ReadJSON(&msg); err != nil {
			select {
			case <-c.done:
				return
			default:
			}
			go c.reconnect()
			return
		}

		// The transport owns identity registration: track the identity
		// the server issued so a reconnect can re-register it.
		if msg.Type == TypeRegistered {
			var reg RegisteredPayload
			if err := msg.Decode(&reg); err == nil && reg.PeerID != "" {
				c.mu.Lock()
				c.identity = reg.PeerID
				c.mu.Unlock()
			}
		}

		select {
		case c.incoming <- &msg:
		case <-c.done:
			return
		}
	}
}

func (c *Client) writePump(conn *websocket.Conn, stop <-chan struct{}) {
	ticker := time.NewTicker(pingPeriod)
	defer ticker.Stop()

	for {
		select {
		case msg := <-c.outgoing:
			conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := conn.WriteJSON(msg); err != nil {
				return
			}

		case <-ticker.C:
			conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}

		case <-stop:
			return

		case <-c.done:
			conn.SetWriteDeadline(time.Now().Add(writeWait))
			conn.WriteMessage(websocket.CloseMessage, []byte{})
			return
		}
	}
}

// reconnect re-establishes the connection with bounded exponential
// backoff, then re-registers the last-used identity before any queued
// sends are flushed. Emits StatusReady on success; once the attempts are
// exhausted it emits StatusDown and shuts the client down, so Send fails
// with ErrClosed rather than queueing forever.
func (c *Client) reconnect() {
	c.mu.Lock()
	c.connected = false
	c.mu.Unlock()
	c.pushStatus(StatusReconnecting)

	delay := c.baseDelay
	for attempt := 1; attempt <= c.attempts; attempt++ {
		select {
		case <-c.done:
			return
		case <-time.After(delay):
		}
		delay *= 2

		conn, _, err := websocket.DefaultDialer.Dial(c.serverURL, nil)
		if err != nil {
			slog.Warn("reconnect attempt failed",
				"attempt", attempt, "max", c.attempts, "error", err)
			continue
		}

		// Re-register before the write pump starts so the register
		// message precedes every queued send on the wire.
		c.mu.Lock()
		identity, name := c.identity, c.displayName
		c.mu.Unlock()
		if identity != "" {
			msg, err := NewMessage(TypeRegister, RegisterPayload{PeerID: identity, DisplayName: name})
			if err == nil {
				conn.SetWriteDeadline(time.Now().Add(writeWait))
				err = conn.WriteJSON(msg)
			}
			if err != nil {
				slog.Warn("re-register failed", "attempt", attempt, "error", err)
				conn.Close()
				continue
			}
		}

		c.mu.Lock()
		c.conn = conn
		c.connected = true
		c.mu.Unlock()

		c.startPumps(conn)
		c.pushStatus(StatusReady)
		slog.Info("reconnected to signaling server", "attempt", attempt)
		return
	}

	slog.Error("reconnect attempts exhausted", "attempts", c.attempts)
	// The client is dead: fail Send before announcing StatusDown so an
	// observer of the status never queues into a buffer nothing drains.
	c.closeOnce.Do(func() { close(c.done) })
	c.pushStatus(StatusDown)
	c.closeIncoming()
}
