package realtime

import (
	"encoding/json"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/noor-canvas/backend/internal/models"
)

// AudienceChangeHandler is called when the participant count of a session
// changes (used for peak tracking).
type AudienceChangeHandler func(sessionID uuid.UUID, count int)

// AttendanceLogger receives participant join/leave transitions for durable
// attendance records.
type AttendanceLogger struct {
	OnJoin  func(sessionID, participantID uuid.UUID)
	OnLeave func(sessionID, participantID uuid.UUID, joinedAt time.Time)
}

// RedisPublisher publishes session events for cross-instance broadcast.
type RedisPublisher interface {
	PublishSessionEvent(sessionID uuid.UUID, event string, payload []byte) error
}

// RedisSubscriber subscribes to a session's channel and invokes handler for
// incoming events from other instances.
type RedisSubscriber interface {
	SubscribeSession(sessionID uuid.UUID, handler func(event string, payload []byte)) (cancel func(), err error)
}

// room holds everything belonging to one session: members, roster, current
// shared asset and lifecycle status. All mutation for a session goes through
// the room mutex, so register/unregister/broadcast are serialized per session
// while distinct sessions proceed fully in parallel.
type room struct {
	id uuid.UUID

	mu           sync.Mutex
	status       models.SessionStatus
	members      map[string]*Client // connectionID -> client
	roster       *Roster
	currentAsset *AssetPayload
	seq          uint64
	cancelSub    func()
	detached     bool // true once removed from the hub map
}

// StateSnapshot is the resync payload pushed to freshly registered
// connections.
type StateSnapshot struct {
	SessionID    uuid.UUID            `json:"sessionId"`
	Status       models.SessionStatus `json:"status"`
	Participants []RosterEntry        `json:"participants"`
	CurrentAsset *AssetPayload        `json:"currentAsset,omitempty"`
}

// Hub is the session registry and broadcast fan-out. It maps session ids to
// rooms and guarantees that no event crosses a session boundary: delivery
// recipients are always resolved from the room registered under the event's
// own session id.
type Hub struct {
	mu         sync.RWMutex
	rooms      map[uuid.UUID]*room
	logger     *zap.Logger
	redis      RedisPublisher
	redisSub   RedisSubscriber
	onAudience AudienceChangeHandler
	attendance AttendanceLogger
}

// NewHub creates a hub. redisPub/redisSub may be nil for single-instance
// deployments and tests.
func NewHub(logger *zap.Logger, redisPub RedisPublisher, redisSub RedisSubscriber) *Hub {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Hub{
		rooms:    make(map[uuid.UUID]*room),
		logger:   logger,
		redis:    redisPub,
		redisSub: redisSub,
	}
}

// SetAudienceChangeHandler sets the participant-count callback.
func (h *Hub) SetAudienceChangeHandler(fn AudienceChangeHandler) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.onAudience = fn
}

// SetAttendanceLogger sets the join/leave persistence callbacks.
func (h *Hub) SetAttendanceLogger(l AttendanceLogger) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.attendance = l
}

// Register adds a connection to its session's room, creating the room on
// first use. Registration against an ended session fails with
// ErrSessionClosed. For participant connections the roster is updated and a
// participant_joined event is fanned out; a reconnect with the same identity
// guid replaces the prior roster entry without inflating the count.
func (h *Hub) Register(c *Client) error {
	rm := h.getOrCreateRoom(c.SessionID, c.SessionStatus)
	rm.mu.Lock()
	for rm.detached {
		// The room was torn down between lookup and lock; start over so
		// the connection never lands in an orphaned room.
		rm.mu.Unlock()
		rm = h.getOrCreateRoom(c.SessionID, c.SessionStatus)
		rm.mu.Lock()
	}

	var replaced bool
	if !rm.status.Routable() {
		rm.mu.Unlock()
		return ErrSessionClosed
	}
	rm.members[c.ID] = c
	if c.Role == RoleParticipant {
		replaced = rm.roster.Join(c.Identity, c.ID)
	}
	count := rm.roster.Count()
	rm.mu.Unlock()

	h.mu.RLock()
	onAudience, attendance := h.onAudience, h.attendance
	h.mu.RUnlock()

	if c.Role == RoleParticipant {
		if onAudience != nil {
			onAudience(c.SessionID, count)
		}
		if !replaced && attendance.OnJoin != nil {
			attendance.OnJoin(c.SessionID, c.ParticipantID)
		}
		h.BroadcastAndPublish(c.SessionID, EventParticipantJoined, map[string]interface{}{
			"userGuid":  c.Identity.UserGuid,
			"name":      c.Identity.Name,
			"country":   c.Identity.Country,
			"count":     count,
			"reconnect": replaced,
		})
	}

	h.logger.Debug("connection registered",
		zap.String("connection_id", c.ID),
		zap.String("session_id", c.SessionID.String()),
		zap.String("role", string(c.Role)))
	return nil
}

// Unregister removes a connection. The connection becomes invisible to
// future lookups immediately; in-flight sends drain best-effort. When the
// last connection leaves, the room and its Redis subscription are torn down.
func (h *Hub) Unregister(c *Client) {
	h.mu.RLock()
	rm := h.rooms[c.SessionID]
	h.mu.RUnlock()
	if rm == nil {
		return
	}

	rm.mu.Lock()
	if _, ok := rm.members[c.ID]; !ok {
		rm.mu.Unlock()
		return
	}
	delete(rm.members, c.ID)
	var left Identity
	var departed bool
	if c.Role == RoleParticipant {
		left, departed = rm.roster.Leave(c.Identity.UserGuid, c.ID)
	}
	count := rm.roster.Count()
	empty := len(rm.members) == 0
	if empty {
		rm.detached = true
		if rm.cancelSub != nil {
			rm.cancelSub()
			rm.cancelSub = nil
		}
	}
	rm.mu.Unlock()

	if empty {
		h.mu.Lock()
		if h.rooms[c.SessionID] == rm {
			delete(h.rooms, c.SessionID)
		}
		h.mu.Unlock()
	}

	h.mu.RLock()
	onAudience, attendance := h.onAudience, h.attendance
	h.mu.RUnlock()

	if departed {
		if onAudience != nil {
			onAudience(c.SessionID, count)
		}
		if attendance.OnLeave != nil {
			attendance.OnLeave(c.SessionID, c.ParticipantID, c.JoinedAt)
		}
		h.BroadcastAndPublish(c.SessionID, EventParticipantLeft, map[string]interface{}{
			"userGuid": left.UserGuid,
			"name":     left.Name,
			"count":    count,
		})
	}

	h.logger.Debug("connection unregistered",
		zap.String("connection_id", c.ID),
		zap.String("session_id", c.SessionID.String()))
}

func (h *Hub) getOrCreateRoom(sessionID uuid.UUID, status models.SessionStatus) *room {
	for {
		h.mu.Lock()
		rm, existed := h.rooms[sessionID]
		if !existed {
			rm = &room{
				id:      sessionID,
				status:  status,
				members: make(map[string]*Client),
				roster:  NewRoster(),
			}
			h.rooms[sessionID] = rm
		}
		h.mu.Unlock()

		if !existed && h.redisSub != nil {
			// The broker handshake can block, so it runs outside h.mu;
			// a slow subscribe must never stall other sessions' delivery.
			cancel, err := h.redisSub.SubscribeSession(sessionID, func(event string, payload []byte) {
				h.deliverLocal(sessionID, event, json.RawMessage(payload))
			})
			if err != nil {
				h.logger.Warn("session subscribe failed",
					zap.String("session_id", sessionID.String()), zap.Error(err))
			} else {
				rm.mu.Lock()
				if rm.detached {
					rm.mu.Unlock()
					cancel()
					continue
				}
				rm.cancelSub = cancel
				rm.mu.Unlock()
				return rm
			}
		}

		rm.mu.Lock()
		detached := rm.detached
		rm.mu.Unlock()
		if !detached {
			return rm
		}
		// Lost a race with last-member teardown; create a fresh room.
	}
}

// Broadcast fans an event out to all local connections of one session.
func (h *Hub) Broadcast(sessionID uuid.UUID, event string, payload interface{}) {
	data, err := marshalPayload(payload)
	if err != nil {
		return
	}
	h.deliverLocal(sessionID, event, data)
}

// BroadcastAndPublish fans out locally and publishes to Redis so other
// instances deliver to their connections too.
func (h *Hub) BroadcastAndPublish(sessionID uuid.UUID, event string, payload interface{}) {
	data, err := marshalPayload(payload)
	if err != nil {
		return
	}
	h.deliverLocal(sessionID, event, data)
	if h.redis != nil {
		_ = h.redis.PublishSessionEvent(sessionID, event, data)
	}
}

// deliverLocal assigns the per-session sequence number and pushes the event
// to every member's send queue. Lifecycle and asset events also update the
// room's resync state, whichever instance they originated on.
func (h *Hub) deliverLocal(sessionID uuid.UUID, event string, data json.RawMessage) {
	h.mu.RLock()
	rm := h.rooms[sessionID]
	h.mu.RUnlock()
	if rm == nil {
		return
	}

	rm.mu.Lock()
	switch event {
	case EventSessionStarted:
		rm.status = models.StatusActive
	case EventSessionEnded:
		rm.status = models.StatusEnded
		rm.currentAsset = nil
	case EventAssetShared:
		var asset AssetPayload
		if err := json.Unmarshal(data, &asset); err == nil {
			rm.currentAsset = &asset
		}
	}
	rm.seq++
	msg := WSMessage{Event: event, Data: data, Seq: rm.seq}
	for _, c := range rm.members {
		select {
		case c.send <- msg:
		default:
			// recipient buffer full (e.g. mid-reconnect): drop, the
			// session_state snapshot recovers it on re-register
		}
	}
	rm.mu.Unlock()
}

// SendToClient sends an event to a single connection of a session.
func (h *Hub) SendToClient(sessionID uuid.UUID, connectionID, event string, payload interface{}) {
	data, err := marshalPayload(payload)
	if err != nil {
		return
	}
	h.mu.RLock()
	rm := h.rooms[sessionID]
	h.mu.RUnlock()
	if rm == nil {
		return
	}
	rm.mu.Lock()
	c := rm.members[connectionID]
	if c != nil {
		rm.seq++
		select {
		case c.send <- WSMessage{Event: event, Data: data, Seq: rm.seq}:
		default:
		}
	}
	rm.mu.Unlock()
}

// AudienceCount returns the number of distinct active participants of a
// session on this instance.
func (h *Hub) AudienceCount(sessionID uuid.UUID) int {
	h.mu.RLock()
	rm := h.rooms[sessionID]
	h.mu.RUnlock()
	if rm == nil {
		return 0
	}
	rm.mu.Lock()
	defer rm.mu.Unlock()
	return rm.roster.Count()
}

// Snapshot returns the resync state for a session: status, roster and
// currently shared asset. Status is empty when the session has no room on
// this instance; callers fall back to the stored status.
func (h *Hub) Snapshot(sessionID uuid.UUID) StateSnapshot {
	snap := StateSnapshot{SessionID: sessionID, Participants: []RosterEntry{}}
	h.mu.RLock()
	rm := h.rooms[sessionID]
	h.mu.RUnlock()
	if rm == nil {
		return snap
	}
	rm.mu.Lock()
	snap.Status = rm.status
	if rm.currentAsset != nil {
		asset := *rm.currentAsset
		snap.CurrentAsset = &asset
	}
	rm.mu.Unlock()
	snap.Participants = rm.roster.Snapshot()
	return snap
}

// SessionStatus returns the live status known to this instance, or the given
// fallback when the session has no room here.
func (h *Hub) SessionStatus(sessionID uuid.UUID, fallback models.SessionStatus) models.SessionStatus {
	h.mu.RLock()
	rm := h.rooms[sessionID]
	h.mu.RUnlock()
	if rm == nil {
		return fallback
	}
	rm.mu.Lock()
	defer rm.mu.Unlock()
	return rm.status
}

func marshalPayload(payload interface{}) (json.RawMessage, error) {
	switch v := payload.(type) {
	case []byte:
		return v, nil
	case json.RawMessage:
		return v, nil
	default:
		return json.Marshal(payload)
	}
}
