package server

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/promptweave-ai/promptweave/backend/internal/realtime"
	"go.uber.org/zap"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	// The session cookie already gates the upgrade; cross-origin pages
	// cannot read it, so origin checking adds nothing here.
	CheckOrigin: func(*http.Request) bool { return true },
}

// handleWebsocket upgrades an authenticated request and runs the read loop.
// The loop owns the connection's lifecycle: the first read error triggers the
// gateway's disconnect cleanup exactly once.
func (h *httpHandler) handleWebsocket(c *gin.Context) {
	if _, ok := h.callerIdentity(c); !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
		return
	}

	socket, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		h.logger.Warn("websocket upgrade failed", zap.Error(err))
		return
	}

	conn := realtime.NewWSConn(socket, h.logger)
	for {
		envelope, err := conn.ReadEnvelope()
		if err != nil {
			h.gateway.Disconnect(conn)
			_ = conn.Close()
			return
		}
		h.gateway.Dispatch(conn, envelope)
	}
}
