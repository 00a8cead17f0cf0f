package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/chav-jf/speedy-green-flash/internal/relay"
	"github.com/chav-jf/speedy-green-flash/internal/utils"
)

const maxCodeAttempts = 5

type RoomsHandler struct {
	log *zap.Logger
	hub *relay.Hub
}

func NewRoomsHandler(log *zap.Logger, hub *relay.Hub) *RoomsHandler {
	return &RoomsHandler{log: log, hub: hub}
}

// Create handles POST /rooms.
func (h *RoomsHandler) Create(c *gin.Context) {
	for i := 0; i < maxCodeAttempts; i++ {
		code, err := utils.GenerateRoomCode()
		if err != nil {
			h.log.Error("Failed to generate room code", zap.Error(err))
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to create room"})
			return
		}
		if h.hub.CreateRoom(code) {
			h.log.Info("Room created", zap.String("room", code))
			c.JSON(http.StatusCreated, gin.H{"code": code})
			return
		}
	}
	c.JSON(http.StatusServiceUnavailable, gin.H{"error": "Could not allocate a room code"})
}

// Get handles GET /rooms/:code.
func (h *RoomsHandler) Get(c *gin.Context) {
	code, ok := roomParam(c)
	if !ok {
		return
	}
	info, found := h.hub.Room(code)
	if !found {
		c.JSON(http.StatusNotFound, gin.H{"error": "Room not found"})
		return
	}
	c.JSON(http.StatusOK, info)
}

// List handles GET /rooms.
func (h *RoomsHandler) List(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"rooms": h.hub.Rooms()})
}

func roomParam(c *gin.Context) (string, bool) {
	code := utils.NormalizeRoomCode(c.Param("code"))
	if !utils.IsValidRoomCode(code) {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid room code"})
		return "", false
	}
	return code, true
}
