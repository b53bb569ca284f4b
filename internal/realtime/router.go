package realtime

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// EventStore is the persistence boundary the router writes through before
// fanning an event out. An event is either fully applied (persisted, then
// broadcast) or rejected before any delivery begins.
type EventStore interface {
	RecordQuestion(ctx context.Context, sessionID, participantID uuid.UUID, name, text string) (uuid.UUID, error)
	MarkQuestionAnswered(ctx context.Context, sessionID, questionID uuid.UUID) error
	UpdateSessionStatus(ctx context.Context, sessionID uuid.UUID, start bool) error
}

// NopStore is an EventStore that persists nothing. Used in tests and when
// the router runs without a database.
type NopStore struct{}

func (NopStore) RecordQuestion(context.Context, uuid.UUID, uuid.UUID, string, string) (uuid.UUID, error) {
	return uuid.New(), nil
}
func (NopStore) MarkQuestionAnswered(context.Context, uuid.UUID, uuid.UUID) error { return nil }
func (NopStore) UpdateSessionStatus(context.Context, uuid.UUID, bool) error       { return nil }

// Router validates inbound connection events and routes them to the hub.
// Host-privileged events (share asset, answer question, start/end session)
// are accepted only from host connections; participants may submit questions
// only. Authorization failures are rejected without any broadcast.
type Router struct {
	hub    *Hub
	store  EventStore
	logger *zap.Logger
}

// NewRouter creates an event router.
func NewRouter(hub *Hub, store EventStore, logger *zap.Logger) *Router {
	if store == nil {
		store = NopStore{}
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Router{hub: hub, store: store, logger: logger}
}

// Dispatch routes one inbound message from a connection. Unknown event names
// are ignored.
func (r *Router) Dispatch(ctx context.Context, c *Client, msg WSMessage) error {
	switch msg.Event {
	case InboundShareAsset, InboundAnswerQuestion, InboundStartSession, InboundEndSession:
		return r.HandleHostEvent(ctx, c, msg)
	case InboundSubmitQuestion:
		return r.HandleParticipantEvent(ctx, c, msg)
	default:
		return nil
	}
}

// HandleHostEvent processes a host-privileged event.
func (r *Router) HandleHostEvent(ctx context.Context, c *Client, msg WSMessage) error {
	if c.Role != RoleHost {
		return ErrUnauthorized
	}
	if err := r.checkRegistered(c); err != nil {
		return err
	}

	switch msg.Event {
	case InboundShareAsset:
		src, err := ParseAssetSource(msg.Data)
		if err != nil {
			return fmt.Errorf("parse asset: %w", err)
		}
		payload, err := BuildAssetPayload(src)
		if err != nil {
			return err
		}
		r.hub.BroadcastAndPublish(c.SessionID, EventAssetShared, payload)

	case InboundAnswerQuestion:
		var req struct {
			QuestionID uuid.UUID `json:"questionId"`
		}
		if err := json.Unmarshal(msg.Data, &req); err != nil || req.QuestionID == uuid.Nil {
			return fmt.Errorf("invalid question id")
		}
		if err := r.store.MarkQuestionAnswered(ctx, c.SessionID, req.QuestionID); err != nil {
			return fmt.Errorf("mark answered: %w", err)
		}
		r.hub.BroadcastAndPublish(c.SessionID, EventQuestionAnswered, map[string]interface{}{
			"questionId": req.QuestionID,
			"answered":   true,
		})

	case InboundStartSession:
		if err := r.store.UpdateSessionStatus(ctx, c.SessionID, true); err != nil {
			return fmt.Errorf("start session: %w", err)
		}
		r.hub.BroadcastAndPublish(c.SessionID, EventSessionStarted, map[string]interface{}{
			"sessionId": c.SessionID,
		})

	case InboundEndSession:
		if err := r.store.UpdateSessionStatus(ctx, c.SessionID, false); err != nil {
			return fmt.Errorf("end session: %w", err)
		}
		r.hub.BroadcastAndPublish(c.SessionID, EventSessionEnded, map[string]interface{}{
			"sessionId": c.SessionID,
		})
	}
	return nil
}

// HandleParticipantEvent processes a participant-originated event.
func (r *Router) HandleParticipantEvent(ctx context.Context, c *Client, msg WSMessage) error {
	if c.Role != RoleParticipant {
		return ErrUnauthorized
	}
	if err := r.checkRegistered(c); err != nil {
		return err
	}

	var req struct {
		Text string `json:"text"`
	}
	if err := json.Unmarshal(msg.Data, &req); err != nil || req.Text == "" {
		return fmt.Errorf("invalid question text")
	}

	questionID, err := r.store.RecordQuestion(ctx, c.SessionID, c.ParticipantID, c.Identity.Name, req.Text)
	if err != nil {
		return fmt.Errorf("record question: %w", err)
	}
	r.hub.BroadcastAndPublish(c.SessionID, EventQuestionSubmitted, map[string]interface{}{
		"questionId": questionID,
		"userGuid":   c.Identity.UserGuid,
		"name":       c.Identity.Name,
		"text":       req.Text,
		"answered":   false,
	})
	return nil
}

// checkRegistered rejects events from connections the registry no longer
// knows (stale or duplicate) and from sessions whose room has ended.
func (r *Router) checkRegistered(c *Client) error {
	r.hub.mu.RLock()
	rm := r.hub.rooms[c.SessionID]
	r.hub.mu.RUnlock()
	if rm == nil {
		return ErrNotRegistered
	}
	rm.mu.Lock()
	defer rm.mu.Unlock()
	if _, ok := rm.members[c.ID]; !ok {
		return ErrNotRegistered
	}
	if !rm.status.Routable() {
		return ErrSessionClosed
	}
	return nil
}
