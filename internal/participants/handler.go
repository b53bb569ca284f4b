package participants

import (
	"errors"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/noor-canvas/backend/internal/realtime"
	"github.com/noor-canvas/backend/internal/sessions"
	"github.com/noor-canvas/backend/pkg/response"
)

// RegisterRequest is the body for POST /api/participants/register.
type RegisterRequest struct {
	Token   string `json:"token" binding:"required"`
	Name    string `json:"name" binding:"required"`
	Country string `json:"country"`
}

// Handler handles participant HTTP endpoints.
type Handler struct {
	repo     *Repository
	sessions *sessions.Repository
	hub      *realtime.Hub
	logger   *zap.Logger
}

// NewHandler creates a participants handler.
func NewHandler(repo *Repository, sessionRepo *sessions.Repository, hub *realtime.Hub, logger *zap.Logger) *Handler {
	return &Handler{repo: repo, sessions: sessionRepo, hub: hub, logger: logger}
}

// Register handles POST /api/participants/register. Registration requires a
// valid user token and issues the identity guid the participant must present
// on every subsequent action in the session.
func (h *Handler) Register(c *gin.Context) {
	var req RegisterRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, "invalid request: "+err.Error())
		return
	}

	res, err := h.sessions.Resolve(c.Request.Context(), req.Token)
	if err != nil {
		switch {
		case errors.Is(err, realtime.ErrSessionNotFound):
			response.NotFound(c, "session not found")
		default:
			response.Unauthorized(c, "invalid token")
		}
		return
	}
	if res.Role != realtime.RoleParticipant {
		response.Forbidden(c, "participant token required")
		return
	}
	if !res.Session.Status.Routable() {
		response.Gone(c, "session has ended")
		return
	}

	p, err := h.repo.Register(c.Request.Context(), res.Session.ID, req.Name, req.Country)
	if err != nil {
		h.logger.Error("register participant", zap.Error(err))
		response.Internal(c, "registration failed")
		return
	}

	sess := res.Session.Public()
	sess.Status = h.hub.SessionStatus(sess.ID, sess.Status)
	response.Created(c, gin.H{
		"participant": p,
		"session":     sess,
	})
}

// List handles GET /api/sessions/:token/participants (roster).
func (h *Handler) List(c *gin.Context) {
	res, err := h.sessions.Resolve(c.Request.Context(), c.Param("token"))
	if err != nil {
		response.Unauthorized(c, "invalid token")
		return
	}

	registered, err := h.repo.ListBySession(c.Request.Context(), res.Session.ID)
	if err != nil {
		response.Internal(c, "failed to list participants")
		return
	}
	response.OK(c, gin.H{
		"participants": registered,
		"active_count": h.hub.AudienceCount(res.Session.ID),
	})
}

// Attendance handles GET /api/sessions/:token/attendance (host only).
func (h *Handler) Attendance(c *gin.Context) {
	res, err := h.sessions.Resolve(c.Request.Context(), c.Param("token"))
	if err != nil {
		response.Unauthorized(c, "invalid token")
		return
	}
	if res.Role != realtime.RoleHost {
		response.Forbidden(c, "host token required")
		return
	}
	rows, err := h.repo.ListAttendance(c.Request.Context(), res.Session.ID)
	if err != nil {
		response.Internal(c, "failed to list attendance")
		return
	}
	response.OK(c, gin.H{"attendance": rows})
}
