package questions

import (
	"errors"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/noor-canvas/backend/internal/models"
	"github.com/noor-canvas/backend/internal/participants"
	"github.com/noor-canvas/backend/internal/realtime"
	"github.com/noor-canvas/backend/internal/sessions"
	"github.com/noor-canvas/backend/pkg/response"
)

// CreateRequest is the body for POST /api/questions. UserGuid is the
// identity issued at registration; a mismatch is rejected as unauthorized,
// never downgraded to anonymous.
type CreateRequest struct {
	Token    string `json:"token" binding:"required"`
	UserGuid string `json:"userGuid" binding:"required"`
	Text     string `json:"text" binding:"required"`
}

// Handler handles Q&A HTTP endpoints.
type Handler struct {
	repo         *Repository
	sessions     *sessions.Repository
	participants *participants.Repository
	hub          *realtime.Hub
	logger       *zap.Logger
}

// NewHandler creates a questions handler.
func NewHandler(repo *Repository, sessionRepo *sessions.Repository, participantRepo *participants.Repository, hub *realtime.Hub, logger *zap.Logger) *Handler {
	return &Handler{repo: repo, sessions: sessionRepo, participants: participantRepo, hub: hub, logger: logger}
}

// Create handles POST /api/questions (participant submits a question).
func (h *Handler) Create(c *gin.Context) {
	var req CreateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, "invalid request: "+err.Error())
		return
	}

	res, err := h.sessions.Resolve(c.Request.Context(), req.Token)
	if err != nil {
		response.Unauthorized(c, "invalid token")
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

	p, err := h.participants.GetByGuid(c.Request.Context(), res.Session.ID, req.UserGuid)
	if err != nil {
		response.Unauthorized(c, "unknown participant identity")
		return
	}

	q := &models.Question{
		SessionID:       res.Session.ID,
		ParticipantID:   p.ID,
		ParticipantName: p.Name,
		Text:            req.Text,
	}
	if err := h.repo.Create(c.Request.Context(), q); err != nil {
		h.logger.Error("create question", zap.Error(err))
		response.Internal(c, "failed to create question")
		return
	}

	h.hub.BroadcastAndPublish(res.Session.ID, realtime.EventQuestionSubmitted, gin.H{
		"questionId": q.ID,
		"userGuid":   p.UserGuid,
		"name":       p.Name,
		"text":       q.Text,
		"answered":   false,
	})
	response.Created(c, q)
}

// ListBySession handles GET /api/sessions/:token/questions.
func (h *Handler) ListBySession(c *gin.Context) {
	res, err := h.sessions.Resolve(c.Request.Context(), c.Param("token"))
	if err != nil {
		response.Unauthorized(c, "invalid token")
		return
	}
	list, err := h.repo.ListBySession(c.Request.Context(), res.Session.ID)
	if err != nil {
		response.Internal(c, "failed to list questions")
		return
	}
	response.OK(c, gin.H{"questions": list})
}

// Answer handles PATCH /api/sessions/:token/questions/:id/answer (host marks
// a question answered).
func (h *Handler) Answer(c *gin.Context) {
	res, err := h.sessions.Resolve(c.Request.Context(), c.Param("token"))
	if err != nil {
		response.Unauthorized(c, "invalid token")
		return
	}
	if res.Role != realtime.RoleHost {
		response.Forbidden(c, "host token required")
		return
	}
	questionID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		response.BadRequest(c, "invalid question id")
		return
	}

	if err := h.repo.MarkAnswered(c.Request.Context(), res.Session.ID, questionID); err != nil {
		if errors.Is(err, ErrNotFound) {
			response.NotFound(c, "question not found")
			return
		}
		response.Internal(c, "failed to mark question answered")
		return
	}

	h.hub.BroadcastAndPublish(res.Session.ID, realtime.EventQuestionAnswered, gin.H{
		"questionId": questionID,
		"answered":   true,
	})
	response.OK(c, gin.H{"questionId": questionID, "answered": true})
}
