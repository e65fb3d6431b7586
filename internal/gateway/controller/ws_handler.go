package controller

import (
	"net/http"
	"strings"
	"time"

	"judgehub/internal/notify"
	"judgehub/pkg/utils/logger"
	"judgehub/pkg/utils/response"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

const (
	wsWriteWait  = 10 * time.Second
	wsPongWait   = 60 * time.Second
	wsPingPeriod = 54 * time.Second
)

// WSHandler upgrades client connections and streams result events for
// one user until the peer disconnects.
type WSHandler struct {
	hub      *notify.Hub
	upgrader websocket.Upgrader
}

// NewWSHandler creates a WebSocket handler bound to the hub.
func NewWSHandler(hub *notify.Hub) *WSHandler {
	return &WSHandler{
		hub: hub,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     func(r *http.Request) bool { return true },
		},
	}
}

// Serve handles GET /ws?user_id=<id>. Each connection joins the user's
// channel group; a user may hold several connections at once.
func (h *WSHandler) Serve(c *gin.Context) {
	userID := strings.TrimSpace(c.Query("user_id"))
	if userID == "" {
		response.BadRequest(c, "user_id is required")
		return
	}

	conn, err := h.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		logger.Warn(c.Request.Context(), "websocket upgrade failed",
			zap.String("user_id", userID), zap.Error(err))
		return
	}

	sub := h.hub.Subscribe(userID)
	logger.Info(c.Request.Context(), "websocket connected",
		zap.String("user_id", userID))

	go h.readLoop(conn, sub)
	h.writeLoop(c, conn, sub)
}

// readLoop drains client frames so close and pong handling work. Any
// read error means the peer is gone and the subscription must end.
func (h *WSHandler) readLoop(conn *websocket.Conn, sub *notify.Subscription) {
	defer sub.Close()
	conn.SetReadLimit(512)
	_ = conn.SetReadDeadline(time.Now().Add(wsPongWait))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(wsPongWait))
	})
	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			return
		}
	}
}

// writeLoop pushes result events and pings until the subscription
// closes or a write fails.
func (h *WSHandler) writeLoop(c *gin.Context, conn *websocket.Conn, sub *notify.Subscription) {
	ticker := time.NewTicker(wsPingPeriod)
	defer func() {
		ticker.Stop()
		sub.Close()
		_ = conn.Close()
		logger.Info(c.Request.Context(), "websocket disconnected",
			zap.String("user_id", sub.UserID()))
	}()

	for {
		select {
		case event, ok := <-sub.C:
			_ = conn.SetWriteDeadline(time.Now().Add(wsWriteWait))
			if !ok {
				_ = conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := conn.WriteJSON(event); err != nil {
				logger.Warn(c.Request.Context(), "websocket write failed",
					zap.String("user_id", sub.UserID()),
					zap.String("submission_id", event.SubmissionID),
					zap.Error(err))
				return
			}
		case <-ticker.C:
			_ = conn.SetWriteDeadline(time.Now().Add(wsWriteWait))
			if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
