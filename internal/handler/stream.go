package handler

import (
	"net/http"
	"time"

	"dropradar/internal/stream"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
)

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool {
		return true
	},
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
}

// StreamHandler serves live record and chain-event frames over WebSocket or
// SSE.
type StreamHandler struct {
	stream *stream.Stream
}

func NewStreamHandler(s *stream.Stream) *StreamHandler {
	return &StreamHandler{stream: s}
}

// HandleWebSocket upgrades the connection and relays frames until the client
// disconnects. Periodic pings detect dead peers.
func (h *StreamHandler) HandleWebSocket(c *gin.Context) {
	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "failed to upgrade connection"})
		return
	}
	defer conn.Close()

	clientChan, cleanup := h.stream.Subscribe()
	defer cleanup()

	ticker := time.NewTicker(30 * time.Second)
	defer ticker.Stop()

	conn.SetReadDeadline(time.Now().Add(60 * time.Second))
	conn.SetPongHandler(func(string) error {
		conn.SetReadDeadline(time.Now().Add(60 * time.Second))
		return nil
	})

	for {
		select {
		case data, ok := <-clientChan:
			if !ok {
				return
			}

			conn.SetWriteDeadline(time.Now().Add(10 * time.Second))
			if err := conn.WriteMessage(websocket.TextMessage, data); err != nil {
				return
			}

		case <-ticker.C:
			conn.SetWriteDeadline(time.Now().Add(10 * time.Second))
			if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

// HandleSSE relays frames as server-sent events. Server-to-client only.
func (h *StreamHandler) HandleSSE(c *gin.Context) {
	c.Header("Content-Type", "text/event-stream")
	c.Header("Cache-Control", "no-cache")
	c.Header("Connection", "keep-alive")

	clientChan, cleanup := h.stream.Subscribe()
	defer cleanup()

	for {
		select {
		case data, ok := <-clientChan:
			if !ok {
				return
			}

			c.SSEvent("airdrop", string(data))
			c.Writer.Flush()

		case <-c.Request.Context().Done():
			return
		}
	}
}
