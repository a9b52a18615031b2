package http

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"

	"github.com/undercity-games/presence-server/internal/core"
	"github.com/undercity-games/presence-server/internal/metrics"
	"github.com/undercity-games/presence-server/internal/proto"
	"github.com/undercity-games/presence-server/internal/store"
)

// Directory is the player lookup the transport depends on. Invalidate
// drops a cached record after the internal API changes a player's
// state, so presence resolution sees the directory's fresh copy.
type Directory interface {
	store.PlayerDirectory
	Invalidate(userID string)
}

// InternalHandlers serves the endpoints sibling game services call:
// event push, travel and crew updates, roster queries.
type InternalHandlers struct {
	hub     *core.Hub
	dir     Directory
	metrics *metrics.Metrics
	log     *zerolog.Logger
}

// NewInternalHandlers creates the internal API handlers.
func NewInternalHandlers(hub *core.Hub, dir Directory, m *metrics.Metrics, logger *zerolog.Logger) *InternalHandlers {
	return &InternalHandlers{hub: hub, dir: dir, metrics: m, log: logger}
}

// ErrorResponse represents an error response body.
type ErrorResponse struct {
	Error string `json:"error"`
}

// PushResponse reports how many sockets an event reached.
type PushResponse struct {
	Delivered int `json:"delivered"`
}

// StatusResponse acknowledges a state change.
type StatusResponse struct {
	Status string `json:"status"`
}

// Push delivers an event to one user, a user list, a channel, or every
// open connection. Delivery is best-effort; the count says how many
// sockets accepted the event.
// POST /internal/push
func (h *InternalHandlers) Push(c *gin.Context) {
	var cmd core.PushCommand
	if err := c.ShouldBindJSON(&cmd); err != nil {
		h.log.Debug().Err(err).Msg("invalid push request")
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: "invalid request body"})
		return
	}

	delivered, err := h.hub.Push(&cmd)
	if err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: err.Error()})
		return
	}

	h.metrics.PushRequest(cmd.Target)
	h.log.Debug().
		Str("target", cmd.Target).
		Str("type", cmd.Event.Type).
		Int("delivered", delivered).
		Msg("internal push delivered")
	c.JSON(http.StatusOK, PushResponse{Delivered: delivered})
}

// DistrictChangeRequest moves an online player to another district.
type DistrictChangeRequest struct {
	UserID     string `json:"userId" binding:"required"`
	DistrictID string `json:"districtId" binding:"required"`
}

// SetDistrict applies a travel event to the live connection. The
// directory cache entry is dropped regardless of online state: the
// owning service has already committed the move.
// POST /internal/district
func (h *InternalHandlers) SetDistrict(c *gin.Context) {
	var req DistrictChangeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.log.Debug().Err(err).Msg("invalid district change request")
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: "invalid request body"})
		return
	}

	h.dir.Invalidate(req.UserID)
	if err := h.hub.SetDistrict(req.UserID, req.DistrictID); err != nil {
		if errors.Is(err, core.ErrNotOnline) {
			c.JSON(http.StatusNotFound, ErrorResponse{Error: "user not online"})
			return
		}
		h.log.Error().Err(err).Str("user", req.UserID).Msg("district change failed")
		c.JSON(http.StatusInternalServerError, ErrorResponse{Error: "internal server error"})
		return
	}

	c.JSON(http.StatusOK, StatusResponse{Status: "ok"})
}

// CrewChangeRequest updates an online player's crew. An empty crewId
// removes the player from crew play.
type CrewChangeRequest struct {
	UserID  string `json:"userId" binding:"required"`
	CrewID  string `json:"crewId"`
	CrewTag string `json:"crewTag"`
}

// SetCrew applies a crew join, move, or leave to the live connection.
// POST /internal/crew
func (h *InternalHandlers) SetCrew(c *gin.Context) {
	var req CrewChangeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.log.Debug().Err(err).Msg("invalid crew change request")
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: "invalid request body"})
		return
	}

	h.dir.Invalidate(req.UserID)
	if err := h.hub.SetCrew(req.UserID, req.CrewID, req.CrewTag); err != nil {
		if errors.Is(err, core.ErrNotOnline) {
			c.JSON(http.StatusNotFound, ErrorResponse{Error: "user not online"})
			return
		}
		h.log.Error().Err(err).Str("user", req.UserID).Msg("crew change failed")
		c.JSON(http.StatusInternalServerError, ErrorResponse{Error: "internal server error"})
		return
	}

	c.JSON(http.StatusOK, StatusResponse{Status: "ok"})
}

// PresenceResponse lists the online players of one district or crew.
type PresenceResponse struct {
	DistrictID string                `json:"districtId,omitempty"`
	CrewID     string                `json:"crewId,omitempty"`
	Players    []proto.PlayerSummary `json:"players"`
}

// Presence answers roster queries. An unknown district or crew is an
// empty roster, never an error.
// GET /internal/presence?district=<id> | ?crew=<id>
func (h *InternalHandlers) Presence(c *gin.Context) {
	ctx := c.Request.Context()

	if districtID := c.Query("district"); districtID != "" {
		c.JSON(http.StatusOK, PresenceResponse{
			DistrictID: districtID,
			Players:    h.hub.DistrictPlayers(ctx, districtID),
		})
		return
	}
	if crewID := c.Query("crew"); crewID != "" {
		c.JSON(http.StatusOK, PresenceResponse{
			CrewID:  crewID,
			Players: h.hub.CrewPlayers(ctx, crewID),
		})
		return
	}

	c.JSON(http.StatusBadRequest, ErrorResponse{Error: "district or crew query parameter required"})
}
