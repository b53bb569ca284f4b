// Package main runs the session broadcast HTTP server with WebSocket fan-out
// and graceful shutdown.
package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/noor-canvas/backend/config"
	"github.com/noor-canvas/backend/internal/analytics"
	"github.com/noor-canvas/backend/internal/auth"
	"github.com/noor-canvas/backend/internal/middleware"
	"github.com/noor-canvas/backend/internal/models"
	"github.com/noor-canvas/backend/internal/participants"
	"github.com/noor-canvas/backend/internal/questions"
	"github.com/noor-canvas/backend/internal/realtime"
	"github.com/noor-canvas/backend/internal/sessions"
	"github.com/noor-canvas/backend/pkg/database"
	"github.com/noor-canvas/backend/pkg/queue"
	"github.com/noor-canvas/backend/pkg/redis"
	"github.com/noor-canvas/backend/pkg/response"
)

func main() {
	logger := newLogger()
	defer logger.Sync()

	cfg, err := config.Load()
	if err != nil {
		logger.Fatal("load config", zap.Error(err))
	}

	ctx := context.Background()
	pool, err := database.NewPostgresPool(ctx, cfg.Database.DSN(), logger)
	if err != nil {
		logger.Fatal("database", zap.Error(err))
	}
	defer pool.Close()

	if err := database.Migrate(ctx, pool); err != nil {
		logger.Fatal("migrate", zap.Error(err))
	}

	rdb, err := redis.NewClient(ctx, cfg.Redis.Addr, cfg.Redis.Password, cfg.Redis.DB, logger)
	if err != nil {
		logger.Fatal("redis", zap.Error(err))
	}
	defer rdb.Close()

	jwtService := auth.NewJWTService(cfg.JWT.Secret, cfg.JWT.ExpireHours)
	redisPubSub := realtime.NewRedisPubSub(rdb.Client, logger)
	hub := realtime.NewHub(logger, redisPubSub, redisPubSub)
	jobQueue := queue.NewQueue(rdb.Client, logger)

	// Auth (admin/host provisioning accounts)
	authRepo := auth.NewRepository(pool)
	authHandler := auth.NewHandler(authRepo, jwtService, logger)

	// Sessions
	sessionRepo := sessions.NewRepository(pool)
	sessionHandler := sessions.NewHandler(sessionRepo, hub, jobQueue, logger, cfg.Tokens.ValidHours)

	// Participants
	participantRepo := participants.NewRepository(pool)
	participantHandler := participants.NewHandler(participantRepo, sessionRepo, hub, logger)

	// Questions
	questionRepo := questions.NewRepository(pool)
	questionHandler := questions.NewHandler(questionRepo, sessionRepo, participantRepo, hub, logger)

	// Analytics
	analyticsHandler := analytics.NewHandler(pool, sessionRepo, participantRepo, questionRepo)

	// Peak participant tracking
	hub.SetAudienceChangeHandler(func(sessionID uuid.UUID, count int) {
		_ = sessionRepo.UpdatePeakParticipants(context.Background(), sessionID, count)
	})

	// Attendance logs (durable join/leave records, closed by the teardown worker
	// for anyone still connected when a session ends)
	hub.SetAttendanceLogger(realtime.AttendanceLogger{
		OnJoin: func(sessionID, participantID uuid.UUID) {
			_ = participantRepo.LogJoin(context.Background(), sessionID, participantID)
		},
		OnLeave: func(sessionID, participantID uuid.UUID, joinedAt time.Time) {
			_ = participantRepo.LogLeave(context.Background(), sessionID, participantID, joinedAt)
		},
	})

	// WebSocket event router, persisting through the repositories before fan-out
	store := &eventStore{sessions: sessionRepo, questions: questionRepo}
	wsRouter := realtime.NewRouter(hub, store, logger)

	validator := sessions.NewTokenValidator(sessionRepo)
	lookup := realtime.ParticipantLookup(func(ctx context.Context, sessionID uuid.UUID, userGuid string) (*models.Participant, error) {
		p, err := participantRepo.GetByGuid(ctx, sessionID, userGuid)
		if errors.Is(err, participants.ErrNotFound) {
			return nil, realtime.ErrUnauthorized
		}
		return p, err
	})
	wsOpts := realtime.Options{
		PingInterval: time.Duration(cfg.Hub.PingIntervalSec) * time.Second,
		PongWait:     time.Duration(cfg.Hub.PongWaitSec) * time.Second,
		WriteWait:    10 * time.Second,
		SendBuffer:   cfg.Hub.SendBuffer,
	}

	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(middleware.CORS(cfg.Server.CORSAllowedOrigins))
	router.Use(middleware.Logger(logger))

	// Health
	router.GET("/health", func(c *gin.Context) { response.OK(c, gin.H{"status": "ok"}) })

	// Auth (public)
	authGroup := router.Group("/auth")
	{
		authGroup.POST("/login", authHandler.Login)
		authGroup.POST("/register", authHandler.Register)
	}

	api := router.Group("/api")
	{
		// Token-authenticated surface (session access tokens, no JWT)
		api.GET("/sessions/validate/:token", sessionHandler.Validate)
		api.GET("/sessions/:token/state", sessionHandler.State)
		api.GET("/sessions/:token/participants", participantHandler.List)
		api.GET("/sessions/:token/attendance", participantHandler.Attendance)
		api.GET("/sessions/:token/questions", questionHandler.ListBySession)
		api.PATCH("/sessions/:token/questions/:id/answer", questionHandler.Answer)
		api.POST("/participants/register", participantHandler.Register)
		api.POST("/questions", questionHandler.Create)

		// Host lifecycle control (host token in path)
		host := api.Group("/host")
		{
			host.POST("/sessions/:token/open", sessionHandler.OpenWaiting)
			host.POST("/sessions/:token/start", sessionHandler.Start)
			host.POST("/sessions/:token/end", sessionHandler.End)
			host.POST("/sessions/:token/rotate", sessionHandler.Rotate)
		}

		// Provisioning (JWT required)
		admin := api.Group("")
		admin.Use(middleware.JWT(jwtService))
		{
			admin.POST("/host/sessions", middleware.RequireRole("admin", "host"), sessionHandler.Create)
			admin.GET("/sessions/:token/analytics", middleware.RequireRole("admin"), bySessionID(analyticsHandler, sessionRepo))
		}
	}

	// WebSocket (session token in query)
	router.GET("/ws", realtime.ServeWs(hub, wsRouter, logger, validator, lookup, wsOpts))

	srv := &http.Server{
		Addr:         ":" + cfg.Server.Port,
		Handler:      router,
		ReadTimeout:  time.Duration(cfg.Server.ReadTimeout) * time.Second,
		WriteTimeout: time.Duration(cfg.Server.WriteTimeout) * time.Second,
	}

	go func() {
		logger.Info("server listening", zap.String("port", cfg.Server.Port))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal("server", zap.Error(err))
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("server shutdown", zap.Error(err))
	}
	logger.Info("server stopped")
}

// eventStore adapts the repositories to the persistence boundary the
// WebSocket router writes through before broadcasting.
type eventStore struct {
	sessions  *sessions.Repository
	questions *questions.Repository
}

func (s *eventStore) RecordQuestion(ctx context.Context, sessionID, participantID uuid.UUID, name, text string) (uuid.UUID, error) {
	q := &models.Question{
		SessionID:       sessionID,
		ParticipantID:   participantID,
		ParticipantName: name,
		Text:            text,
	}
	if err := s.questions.Create(ctx, q); err != nil {
		return uuid.Nil, err
	}
	return q.ID, nil
}

func (s *eventStore) MarkQuestionAnswered(ctx context.Context, sessionID, questionID uuid.UUID) error {
	return s.questions.MarkAnswered(ctx, sessionID, questionID)
}

func (s *eventStore) UpdateSessionStatus(ctx context.Context, sessionID uuid.UUID, start bool) error {
	if start {
		return s.sessions.Start(ctx, sessionID)
	}
	return s.sessions.End(ctx, sessionID)
}

// bySessionID resolves the :token path segment as either a raw session id or
// an access token, so admins can pull analytics with the id alone.
func bySessionID(h *analytics.Handler, repo *sessions.Repository) gin.HandlerFunc {
	return func(c *gin.Context) {
		raw := c.Param("token")
		if _, err := uuid.Parse(raw); err != nil {
			res, rerr := repo.Resolve(c.Request.Context(), raw)
			if rerr != nil {
				response.NotFound(c, "session not found")
				return
			}
			raw = res.Session.ID.String()
		}
		c.Params = append(c.Params, gin.Param{Key: "id", Value: raw})
		h.GetBySession(c)
	}
}

func newLogger() *zap.Logger {
	config := zap.NewProductionConfig()
	config.EncoderConfig.TimeKey = "timestamp"
	config.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
	logger, _ := config.Build()
	return logger
}
