package http

import (
	"net/http"
	"sort"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"

	"github.com/vovakirdan/roomcast/internal/core"
	"github.com/vovakirdan/roomcast/internal/presence"
	"github.com/vovakirdan/roomcast/internal/service/messages"
)

const (
	defaultHistoryLimit = 50
	maxHistoryLimit     = 200
)

// RoomHandlers provides HTTP handlers for room queries.
type RoomHandlers struct {
	registry *core.Registry
	messages *messages.Service
	presence presence.Tracker
	log      *zerolog.Logger
}

// NewRoomHandlers creates a new room handlers instance.
func NewRoomHandlers(registry *core.Registry, msgs *messages.Service, tracker presence.Tracker, logger *zerolog.Logger) *RoomHandlers {
	return &RoomHandlers{
		registry: registry,
		messages: msgs,
		presence: tracker,
		log:      logger,
	}
}

// RoomResponse represents an active room in API responses.
type RoomResponse struct {
	Name    string `json:"name"`
	Members int    `json:"members"`
}

// MessageResponse represents a stored message in API responses.
type MessageResponse struct {
	ID        string `json:"id"`
	Room      string `json:"room"`
	User      string `json:"user"`
	Text      string `json:"text"`
	CreatedAt string `json:"created_at"`
	EditedAt  string `json:"edited_at,omitempty"`
	Deleted   bool   `json:"deleted"`
}

// PresenceResponse lists identities currently in a room.
type PresenceResponse struct {
	Room  string   `json:"room"`
	Users []string `json:"users"`
}

// ListRooms lists rooms with at least one live member.
// GET /api/rooms
func (h *RoomHandlers) ListRooms(c *gin.Context) {
	active := h.registry.Rooms()

	response := make([]RoomResponse, 0, len(active))
	for name, members := range active {
		response = append(response, RoomResponse{Name: name, Members: members})
	}
	sort.Slice(response, func(i, j int) bool { return response[i].Name < response[j].Name })

	c.JSON(http.StatusOK, response)
}

// History returns the latest messages of a room, oldest first.
// GET /api/rooms/:room/messages?limit=50&before=<id>
func (h *RoomHandlers) History(c *gin.Context) {
	if h.messages == nil {
		c.JSON(http.StatusServiceUnavailable, ErrorResponse{Error: "history unavailable"})
		return
	}
	room := c.Param("room")

	limit := defaultHistoryLimit
	if raw := c.Query("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n <= 0 {
			c.JSON(http.StatusBadRequest, ErrorResponse{Error: "limit must be a positive integer"})
			return
		}
		limit = min(n, maxHistoryLimit)
	}

	msgs, err := h.messages.History(c.Request.Context(), room, limit, c.Query("before"))
	if err != nil {
		h.log.Error().Err(err).Str("room", room).Msg("failed to load history")
		c.JSON(http.StatusInternalServerError, ErrorResponse{Error: "internal server error"})
		return
	}

	response := make([]MessageResponse, 0, len(msgs))
	for _, m := range msgs {
		resp := MessageResponse{
			ID:        m.ID,
			Room:      m.Room,
			User:      m.From,
			Text:      m.Text,
			CreatedAt: m.CreatedAt.UTC().Format(time.RFC3339),
			Deleted:   m.Deleted,
		}
		if !m.EditedAt.IsZero() {
			resp.EditedAt = m.EditedAt.UTC().Format(time.RFC3339)
		}
		response = append(response, resp)
	}

	c.JSON(http.StatusOK, response)
}

// Presence lists identities present in a room, read from the presence mirror.
// GET /api/rooms/:room/presence
func (h *RoomHandlers) Presence(c *gin.Context) {
	room := c.Param("room")
	if h.presence == nil {
		c.JSON(http.StatusServiceUnavailable, ErrorResponse{Error: "presence unavailable"})
		return
	}

	users, err := h.presence.Online(c.Request.Context(), room)
	if err != nil {
		h.log.Warn().Err(err).Str("room", room).Msg("failed to read presence")
		c.JSON(http.StatusServiceUnavailable, ErrorResponse{Error: "presence unavailable"})
		return
	}

	c.JSON(http.StatusOK, PresenceResponse{Room: room, Users: users})
}
