package sessions

import (
	"errors"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/noor-canvas/backend/internal/middleware"
	"github.com/noor-canvas/backend/internal/realtime"
	"github.com/noor-canvas/backend/pkg/queue"
	"github.com/noor-canvas/backend/pkg/response"
)

// CreateRequest is the body for POST /api/host/sessions.
type CreateRequest struct {
	Title       string `json:"title" binding:"required"`
	Description string `json:"description"`
	ValidHours  int    `json:"valid_hours"`
}

// Handler handles session provisioning and lifecycle HTTP endpoints.
type Handler struct {
	repo       *Repository
	hub        *realtime.Hub
	queue      *queue.Queue
	logger     *zap.Logger
	validHours int
}

// NewHandler creates a sessions handler. queue may be nil when no worker is
// deployed.
func NewHandler(repo *Repository, hub *realtime.Hub, q *queue.Queue, logger *zap.Logger, validHours int) *Handler {
	return &Handler{repo: repo, hub: hub, queue: q, logger: logger, validHours: validHours}
}

// Create handles POST /api/host/sessions (provision a session + token pair).
func (h *Handler) Create(c *gin.Context) {
	var req CreateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, "invalid request: "+err.Error())
		return
	}
	createdBy := c.MustGet(middleware.ContextUserID).(uuid.UUID)

	validHours := req.ValidHours
	if validHours <= 0 {
		validHours = h.validHours
	}
	expiresAt := time.Now().Add(time.Duration(validHours) * time.Hour)

	s, err := h.repo.Create(c.Request.Context(), req.Title, req.Description, createdBy, expiresAt)
	if err != nil {
		h.logger.Error("create session", zap.Error(err))
		response.Internal(c, "failed to create session")
		return
	}
	response.Created(c, s)
}

// Validate handles GET /api/sessions/validate/:token (either token kind).
func (h *Handler) Validate(c *gin.Context) {
	res, err := h.repo.Resolve(c.Request.Context(), c.Param("token"))
	if err != nil {
		switch {
		case errors.Is(err, realtime.ErrSessionNotFound):
			response.NotFound(c, "session not found")
		case errors.Is(err, realtime.ErrInvalidToken):
			response.Unauthorized(c, "invalid token")
		default:
			response.Internal(c, "validation failed")
		}
		return
	}
	// Prefer the live room status over the stored one when a room exists.
	status := h.hub.SessionStatus(res.Session.ID, res.Session.Status)
	response.OK(c, gin.H{
		"session_id": res.Session.ID,
		"title":      res.Session.Title,
		"status":     status,
		"role":       res.Role,
	})
}

// OpenWaiting handles POST /api/host/sessions/:token/open (open waiting room).
func (h *Handler) OpenWaiting(c *gin.Context) {
	s, ok := h.hostSession(c)
	if !ok {
		return
	}
	if err := h.repo.OpenWaiting(c.Request.Context(), s.ID); err != nil {
		h.transitionError(c, err)
		return
	}
	response.OK(c, gin.H{"session_id": s.ID, "status": "waiting"})
}

// Start handles POST /api/host/sessions/:token/start.
func (h *Handler) Start(c *gin.Context) {
	s, ok := h.hostSession(c)
	if !ok {
		return
	}
	if err := h.repo.Start(c.Request.Context(), s.ID); err != nil {
		h.transitionError(c, err)
		return
	}
	h.hub.BroadcastAndPublish(s.ID, realtime.EventSessionStarted, gin.H{"sessionId": s.ID})
	h.logger.Info("session started", zap.String("session_id", s.ID.String()))
	response.OK(c, gin.H{"session_id": s.ID, "status": "active"})
}

// End handles POST /api/host/sessions/:token/end. Ending broadcasts the
// terminal event and enqueues a teardown job for the worker.
func (h *Handler) End(c *gin.Context) {
	s, ok := h.hostSession(c)
	if !ok {
		return
	}
	if err := h.repo.End(c.Request.Context(), s.ID); err != nil {
		h.transitionError(c, err)
		return
	}
	h.hub.BroadcastAndPublish(s.ID, realtime.EventSessionEnded, gin.H{"sessionId": s.ID})
	if h.queue != nil {
		if err := h.queue.EnqueueSessionTeardown(c.Request.Context(), queue.SessionTeardownPayload{
			SessionID: s.ID,
			EndedAt:   time.Now(),
		}); err != nil {
			h.logger.Warn("enqueue teardown", zap.Error(err), zap.String("session_id", s.ID.String()))
		}
	}
	h.logger.Info("session ended", zap.String("session_id", s.ID.String()))
	response.OK(c, gin.H{"session_id": s.ID, "status": "ended"})
}

// Rotate handles POST /api/host/sessions/:token/rotate (fresh token pair).
func (h *Handler) Rotate(c *gin.Context) {
	s, ok := h.hostSession(c)
	if !ok {
		return
	}
	expiresAt := time.Now().Add(time.Duration(h.validHours) * time.Hour)
	updated, err := h.repo.RotateTokens(c.Request.Context(), s.ID, expiresAt)
	if err != nil {
		h.transitionError(c, err)
		return
	}
	response.OK(c, updated)
}

// State handles GET /api/sessions/:token/state (resync snapshot over HTTP).
func (h *Handler) State(c *gin.Context) {
	res, err := h.repo.Resolve(c.Request.Context(), c.Param("token"))
	if err != nil {
		response.Unauthorized(c, "invalid token")
		return
	}
	snap := h.hub.Snapshot(res.Session.ID)
	if snap.Status == "" {
		snap.Status = res.Session.Status
	}
	response.OK(c, snap)
}

// hostSession resolves the :token param and requires host authority.
func (h *Handler) hostSession(c *gin.Context) (s *sessionRef, ok bool) {
	res, err := h.repo.Resolve(c.Request.Context(), c.Param("token"))
	if err != nil {
		switch {
		case errors.Is(err, realtime.ErrSessionNotFound):
			response.NotFound(c, "session not found")
		default:
			response.Unauthorized(c, "invalid token")
		}
		return nil, false
	}
	if res.Role != realtime.RoleHost {
		response.Forbidden(c, "host token required")
		return nil, false
	}
	return &sessionRef{ID: res.Session.ID}, true
}

type sessionRef struct {
	ID uuid.UUID
}

func (h *Handler) transitionError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, ErrAlreadyEnded):
		response.Gone(c, "session has ended")
	case errors.Is(err, ErrInvalidTransition):
		response.Conflict(c, "invalid session state for this action")
	case errors.Is(err, ErrNotFound):
		response.NotFound(c, "session not found")
	default:
		h.logger.Error("session transition", zap.Error(err))
		response.Internal(c, "session update failed")
	}
}
