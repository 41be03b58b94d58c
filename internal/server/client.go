package server

import (
	"log/slog"
	"time"

	"github.com/gorilla/websocket"

	"github.com/babelmeet/babelmeet/internal/signaling"
)

const (
	// Time allowed to write a message to the peer.
	writeWait = 10 * time.Second

	// Time allowed to read the next pong message from the peer.
	pongWait = 60 * time.Second

	// Send pings to peer with this period. Must be less than pongWait.
	pingPeriod = (pongWait * 9) / 10

	// Maximum message size allowed from peer. SDP blobs fit comfortably.
	maxMessageSize = 64 * 1024
)

// Client wraps a single websocket connection.
type Client struct {
	Hub  *Hub
	Conn *websocket.Conn

	// PeerID is the identity bound by the register message; empty until
	// registration.
	PeerID string

	// Room membership metadata, owned by the hub goroutine.
	RoomID      string
	DisplayName string
	Language    string
	JoinedAt    time.Time

	// Send is the buffered outbound queue drained by WritePump.
	Send chan *signaling.Message

	// closed marks a connection the hub already tore down, so a late
	// Unregister from its ReadPump is a no-op. Owned by the hub goroutine.
	closed bool
}

func (c *Client) participantInfo() signaling.ParticipantInfo {
	return signaling.ParticipantInfo{
		ID:        c.PeerID,
		Name:      c.DisplayName,
		Host:      c.RoomID != "" && c.Hub.isHost(c),
		Language:  c.Language,
		Connected: true,
		JoinedAt:  c.JoinedAt,
	}
}

// ReadPump pumps messages from the websocket connection to the hub. Runs
// in a per-connection goroutine; all reads happen here.
func (c *Client) ReadPump() {
	defer func() {
		c.Hub.Unregister <- c
		c.Conn.Close()
	}()

	c.Conn.SetReadLimit(maxMessageSize)
	c.Conn.SetReadDeadline(time.Now().Add(pongWait))
	c.Conn.SetPongHandler(func(string) error {
		c.Conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		var msg signaling.Message
		if err := c.Conn.ReadJSON(&msg); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				slog.Debug("websocket read error", "error", err)
			}
			break
		}

		c.Hub.Inbound <- envelope{client: c, msg: &msg}
	}
}

// WritePump pumps messages from the hub to the websocket connection. Runs
// in a per-connection goroutine; all writes happen here.
func (c *Client) WritePump() {
	ticker := time.NewTicker(pingPeriod)

	defer func() {
		ticker.Stop()
		c.Conn.Close()
	}()

	for {
		select {
		case msg, ok := <-c.Send:
			c.Conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				// The hub closed the channel.
				c.Conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.Conn.WriteJSON(msg); err != nil {
				slog.Debug("websocket write error", "error", err)
				return
			}

		case <-ticker.C:
			c.Conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.Conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
