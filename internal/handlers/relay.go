package handlers

import (
	"context"
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/chav-jf/speedy-green-flash/internal/protocol"
	"github.com/chav-jf/speedy-green-flash/internal/relay"
	"github.com/chav-jf/speedy-green-flash/internal/utils"
)

type RelayHandler struct {
	log      *zap.Logger
	hub      *relay.Hub
	ctx      context.Context
	upgrader websocket.Upgrader
}

// NewRelayHandler serves websocket peers. Connections are closed when ctx
// is cancelled.
func NewRelayHandler(ctx context.Context, log *zap.Logger, hub *relay.Hub) *RelayHandler {
	return &RelayHandler{
		log: log,
		hub: hub,
		ctx: ctx,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			// Devices are terminals, not browsers.
			CheckOrigin: func(r *http.Request) bool { return true },
		},
	}
}

// ServeWS handles GET /ws?room=CODE&role=display|trigger.
func (h *RelayHandler) ServeWS(c *gin.Context) {
	code := utils.NormalizeRoomCode(c.Query("room"))
	if !utils.IsValidRoomCode(code) {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid room code"})
		return
	}
	role, ok := protocol.ParseRole(c.Query("role"))
	if !ok {
		c.JSON(http.StatusBadRequest, gin.H{"error": relay.ErrInvalidRole.Error()})
		return
	}
	if err := h.hub.Available(code, role); err != nil {
		status := http.StatusBadRequest
		if errors.Is(err, relay.ErrRoleTaken) {
			status = http.StatusConflict
		}
		h.log.Warn("Peer rejected", zap.String("room", code), zap.String("role", string(role)), zap.Error(err))
		c.JSON(status, gin.H{"error": err.Error()})
		return
	}

	ws, err := h.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		h.log.Error("WebSocket upgrade failed", zap.Error(err))
		return
	}

	peer, err := h.hub.Join(code, role, ws)
	if err != nil {
		// Lost a race for the slot after the upgrade.
		msg := websocket.FormatCloseMessage(websocket.ClosePolicyViolation, err.Error())
		_ = ws.WriteMessage(websocket.CloseMessage, msg)
		ws.Close()
		return
	}
	peer.Serve(h.ctx)
}
