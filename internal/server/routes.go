package server

import (
	"log/slog"
	"net/http"

	"github.com/gorilla/websocket"

	"github.com/babelmeet/babelmeet/internal/signaling"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  64 * 1024,
	WriteBufferSize: 64 * 1024,

	// Signaling carries no credentials; cross-origin browser clients are
	// expected, so all origins are accepted.
	CheckOrigin: func(r *http.Request) bool {
		return true
	},
}

// ServeWs returns an http.HandlerFunc that upgrades the connection and
// hands it to the hub.
func ServeWs(hub *Hub) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			slog.Error("websocket upgrade failed", "error", err)
			return
		}

		client := &Client{
			Hub:  hub,
			Conn: conn,
			Send: make(chan *signaling.Message, 256),
		}

		hub.Register <- client

		go client.WritePump()
		go client.ReadPump()
	}
}

// Handler builds the server's HTTP mux: the websocket endpoint plus a
// plain health check.
func Handler(hub *Hub) http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/plain; charset=utf-8")
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("signaling server is healthy."))
	})
	mux.HandleFunc("/ws", ServeWs(hub))
	return mux
}
