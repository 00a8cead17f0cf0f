package handlers

import (
	"net/http"

	"github.com/a-h/templ"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/chav-jf/speedy-green-flash/internal/relay"
	"github.com/chav-jf/speedy-green-flash/internal/views"
)

type StatusHandler struct {
	log *zap.Logger
	hub *relay.Hub
}

func NewStatusHandler(log *zap.Logger, hub *relay.Hub) *StatusHandler {
	return &StatusHandler{log: log, hub: hub}
}

// Index renders the status page.
func (h *StatusHandler) Index(c *gin.Context) {
	c.Status(http.StatusOK)
	c.Header("Content-Type", "text/html; charset=utf-8")
	ctx := templ.WithChildren(c.Request.Context(), views.Status(h.hub.Rooms()))
	if err := views.Layout("Green Flash relay").Render(ctx, c.Writer); err != nil {
		h.log.Error("Failed to render status page", zap.Error(err))
	}
}

func (h *StatusHandler) Health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok", "rooms": len(h.hub.Rooms())})
}
