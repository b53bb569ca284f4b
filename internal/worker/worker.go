package worker

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/noor-canvas/backend/internal/participants"
	"github.com/noor-canvas/backend/internal/realtime"
	"github.com/noor-canvas/backend/internal/sessions"
	"github.com/noor-canvas/backend/pkg/queue"
)

// TeardownProcessor processes session teardown jobs: close open attendance
// rows so watch time is final once a session has ended.
type TeardownProcessor struct {
	participantRepo *participants.Repository
	queue           *queue.Queue
	logger          *zap.Logger
}

// NewTeardownProcessor creates a session teardown processor.
func NewTeardownProcessor(participantRepo *participants.Repository, q *queue.Queue, logger *zap.Logger) *TeardownProcessor {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &TeardownProcessor{participantRepo: participantRepo, queue: q, logger: logger}
}

// Process executes one teardown job.
func (p *TeardownProcessor) Process(ctx context.Context, job *queue.Job) error {
	if job.Type != queue.JobTypeSessionTeardown {
		return fmt.Errorf("unknown job type: %s", job.Type)
	}
	var payload queue.SessionTeardownPayload
	if err := json.Unmarshal(job.Payload, &payload); err != nil {
		return fmt.Errorf("unmarshal payload: %w", err)
	}

	closed, err := p.participantRepo.CloseOpenAttendance(ctx, payload.SessionID, payload.EndedAt)
	if err != nil {
		return fmt.Errorf("close attendance: %w", err)
	}
	p.logger.Info("session teardown completed",
		zap.String("session_id", payload.SessionID.String()),
		zap.Int64("attendance_rows_closed", closed))
	return nil
}

// Run starts the worker loop: dequeue, process, retry on error.
func (p *TeardownProcessor) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			p.logger.Info("teardown worker stopping")
			return
		default:
		}

		job, _, err := p.queue.Dequeue(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			p.logger.Warn("dequeue error", zap.Error(err))
			time.Sleep(queue.RetryBackoff)
			continue
		}
		if job == nil {
			continue
		}

		p.logger.Debug("processing job", zap.String("job_id", job.ID), zap.String("type", string(job.Type)))
		if err := p.Process(ctx, job); err != nil {
			p.logger.Error("job failed", zap.String("job_id", job.ID), zap.Error(err))
			if reErr := p.queue.Retry(ctx, job); reErr != nil {
				p.logger.Error("retry enqueue failed", zap.Error(reErr))
			}
			time.Sleep(queue.RetryBackoff)
			continue
		}
	}
}

// ExpirySweeper periodically ends sessions whose token validity window has
// passed without an explicit end. Connected clients are notified over the
// Redis bridge and a teardown job finalizes attendance.
type ExpirySweeper struct {
	sessionRepo *sessions.Repository
	pubsub      *realtime.RedisPubSub
	queue       *queue.Queue
	interval    time.Duration
	logger      *zap.Logger
}

// NewExpirySweeper creates an expiry sweeper.
func NewExpirySweeper(sessionRepo *sessions.Repository, pubsub *realtime.RedisPubSub, q *queue.Queue, interval time.Duration, logger *zap.Logger) *ExpirySweeper {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ExpirySweeper{sessionRepo: sessionRepo, pubsub: pubsub, queue: q, interval: interval, logger: logger}
}

// Run sweeps on the configured interval until ctx is done.
func (s *ExpirySweeper) Run(ctx context.Context) {
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			s.logger.Info("expiry sweeper stopping")
			return
		case <-ticker.C:
			s.sweep(ctx)
		}
	}
}

func (s *ExpirySweeper) sweep(ctx context.Context) {
	expired, err := s.sessionRepo.ListExpired(ctx, time.Now())
	if err != nil {
		s.logger.Error("list expired sessions failed", zap.Error(err))
		return
	}
	for _, sess := range expired {
		if err := s.sessionRepo.End(ctx, sess.ID); err != nil {
			s.logger.Error("end expired session failed",
				zap.String("session_id", sess.ID.String()), zap.Error(err))
			continue
		}
		endedAt := time.Now().UTC()

		payload, err := json.Marshal(map[string]interface{}{
			"session_id": sess.ID,
			"ended_at":   endedAt,
			"reason":     "expired",
		})
		if err == nil {
			if pubErr := s.pubsub.PublishSessionEvent(sess.ID, realtime.EventSessionEnded, payload); pubErr != nil {
				s.logger.Warn("publish session_ended failed",
					zap.String("session_id", sess.ID.String()), zap.Error(pubErr))
			}
		}

		if err := s.queue.EnqueueSessionTeardown(ctx, queue.SessionTeardownPayload{
			SessionID: sess.ID,
			EndedAt:   endedAt,
		}); err != nil {
			s.logger.Error("enqueue teardown failed",
				zap.String("session_id", sess.ID.String()), zap.Error(err))
		}
		s.logger.Info("expired session ended", zap.String("session_id", sess.ID.String()))
	}
}
