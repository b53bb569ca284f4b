package analytics

import (
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/noor-canvas/backend/internal/participants"
	"github.com/noor-canvas/backend/internal/questions"
	"github.com/noor-canvas/backend/internal/sessions"
	"github.com/noor-canvas/backend/pkg/response"
)

// Handler handles GET /sessions/:id/analytics.
type Handler struct {
	pool            *pgxpool.Pool
	sessionRepo     *sessions.Repository
	participantRepo *participants.Repository
	questionRepo    *questions.Repository
}

// NewHandler creates an analytics handler.
func NewHandler(
	pool *pgxpool.Pool,
	sessionRepo *sessions.Repository,
	participantRepo *participants.Repository,
	questionRepo *questions.Repository,
) *Handler {
	return &Handler{
		pool:            pool,
		sessionRepo:     sessionRepo,
		participantRepo: participantRepo,
		questionRepo:    questionRepo,
	}
}

// SummaryResponse is the JSON shape for session analytics.
type SummaryResponse struct {
	TotalRegistered  int     `json:"total_registered"`
	TotalAttended    int     `json:"total_attended"`
	TotalNoShow      int     `json:"total_no_show"`
	PeakParticipants int     `json:"peak_participants"`
	AvgWatchSeconds  int64   `json:"avg_watch_seconds"`
	QuestionsCount   int     `json:"questions_count"`
	AttendanceRate   float64 `json:"attendance_rate"`
}

// GetBySession handles GET /sessions/:id/analytics (admin only, enforced by
// route middleware).
func (h *Handler) GetBySession(c *gin.Context) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		response.BadRequest(c, "invalid session id")
		return
	}

	ctx := c.Request.Context()

	sess, err := h.sessionRepo.GetByID(ctx, id)
	if err != nil {
		response.NotFound(c, "session not found")
		return
	}

	registered, err := h.participantRepo.CountBySession(ctx, id)
	if err != nil {
		response.Internal(c, "failed to load participant count")
		return
	}

	questionsCount, err := h.questionRepo.CountBySession(ctx, id)
	if err != nil {
		response.Internal(c, "failed to load questions count")
		return
	}

	// Attended: distinct participants with at least one attendance row.
	var attended int
	var totalWatch int64
	const attQ = `SELECT COUNT(DISTINCT participant_id), COALESCE(SUM(watch_seconds), 0)
		FROM attendance_logs WHERE session_id = $1 AND left_at IS NOT NULL`
	if err := h.pool.QueryRow(ctx, attQ, id).Scan(&attended, &totalWatch); err != nil {
		response.Internal(c, "failed to load attendance aggregates")
		return
	}

	noShow := registered - attended
	if noShow < 0 {
		noShow = 0
	}
	var avgWatch int64
	if attended > 0 {
		avgWatch = totalWatch / int64(attended)
	}
	rate := 0.0
	if registered > 0 {
		rate = float64(attended) / float64(registered)
	}

	response.OK(c, SummaryResponse{
		TotalRegistered:  registered,
		TotalAttended:    attended,
		TotalNoShow:      noShow,
		PeakParticipants: sess.PeakParticipants,
		AvgWatchSeconds:  avgWatch,
		QuestionsCount:   questionsCount,
		AttendanceRate:   rate,
	})
}
