package realtime

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/noor-canvas/backend/internal/models"
	"github.com/noor-canvas/backend/pkg/response"
)

// Role is the authority level of a connection within its session.
type Role string

const (
	RoleHost        Role = "host"
	RoleParticipant Role = "participant"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		return true // allow all origins in dev; restrict in production
	},
}

// WSMessage is the WebSocket message envelope. Seq is the server-assigned
// per-session sequence number.
type WSMessage struct {
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data,omitempty"`
	Seq   uint64          `json:"seq,omitempty"`
}

// SessionAccess is the result of validating a session token at connect time.
type SessionAccess struct {
	SessionID uuid.UUID
	Status    models.SessionStatus
	Role      Role
}

// TokenValidator resolves an opaque session token to session id, status and
// role eligibility. Returns ErrInvalidToken or ErrSessionNotFound on failure.
type TokenValidator func(ctx context.Context, token string) (*SessionAccess, error)

// ParticipantLookup resolves a registered identity guid within a session.
// Returns ErrUnauthorized when the guid does not match a registration.
type ParticipantLookup func(ctx context.Context, sessionID uuid.UUID, userGuid string) (*models.Participant, error)

// Options holds connection tuning.
type Options struct {
	PingInterval time.Duration // heartbeat ping cadence
	PongWait     time.Duration // idle window before the connection is dropped
	WriteWait    time.Duration
	SendBuffer   int
}

// DefaultOptions returns the production defaults.
func DefaultOptions() Options {
	return Options{
		PingInterval: 30 * time.Second,
		PongWait:     60 * time.Second,
		WriteWait:    10 * time.Second,
		SendBuffer:   256,
	}
}

// Client represents a single WebSocket connection attached to a session.
type Client struct {
	ID            string
	SessionID     uuid.UUID
	SessionStatus models.SessionStatus
	Role          Role
	Identity      Identity  // zero for host connections
	ParticipantID uuid.UUID // zero for host connections
	JoinedAt      time.Time

	hub    *Hub
	router *Router
	conn   *websocket.Conn
	send   chan WSMessage
	opts   Options
	logger *zap.Logger

	ctx    context.Context // cancelled when the connection goes away
	cancel context.CancelFunc
}

// ServeWs handles the WebSocket handshake: token validation, participant
// identity check, upgrade, registration and the client pump loops. A freshly
// registered connection immediately receives a session_state snapshot, which
// is also the recovery path after a client-side reconnect.
func ServeWs(hub *Hub, router *Router, logger *zap.Logger, validate TokenValidator, lookup ParticipantLookup, opts Options) gin.HandlerFunc {
	if logger == nil {
		logger = zap.NewNop()
	}
	return func(c *gin.Context) {
		token := c.Query("token")
		if token == "" {
			response.BadRequest(c, "token required")
			return
		}

		access, err := validate(c.Request.Context(), token)
		if err != nil {
			switch {
			case errors.Is(err, ErrSessionNotFound):
				response.NotFound(c, "session not found")
			case errors.Is(err, ErrInvalidToken):
				response.Unauthorized(c, "invalid token")
			default:
				logger.Error("token validation failed", zap.Error(err))
				response.Internal(c, "session lookup failed")
			}
			return
		}
		if !access.Status.Routable() {
			response.Gone(c, "session has ended")
			return
		}

		client := &Client{
			ID:            uuid.New().String(),
			SessionID:     access.SessionID,
			SessionStatus: access.Status,
			Role:          access.Role,
			JoinedAt:      time.Now(),
			hub:           hub,
			router:        router,
			opts:          opts,
			logger:        logger,
		}

		if access.Role == RoleParticipant {
			guid := c.Query("guid")
			if guid == "" {
				response.Unauthorized(c, "identity guid required")
				return
			}
			p, err := lookup(c.Request.Context(), access.SessionID, guid)
			if err != nil {
				if errors.Is(err, ErrUnauthorized) {
					response.Unauthorized(c, "unknown participant identity")
				} else {
					logger.Error("participant lookup failed", zap.Error(err))
					response.Internal(c, "participant lookup failed")
				}
				return
			}
			client.Identity = Identity{UserGuid: p.UserGuid, Name: p.Name, Country: p.Country}
			client.ParticipantID = p.ID
		}

		conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
		if err != nil {
			logger.Warn("websocket upgrade failed", zap.Error(err))
			return
		}
		client.conn = conn
		client.send = make(chan WSMessage, opts.SendBuffer)
		client.ctx, client.cancel = context.WithCancel(context.Background())

		if err := hub.Register(client); err != nil {
			client.cancel()
			_ = conn.WriteControl(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.ClosePolicyViolation, err.Error()),
				time.Now().Add(opts.WriteWait))
			_ = conn.Close()
			return
		}

		hub.SendToClient(client.SessionID, client.ID, EventSessionState, hub.Snapshot(client.SessionID))

		go client.writePump()
		client.readPump()
	}
}

func (c *Client) readPump() {
	defer func() {
		c.cancel()
		c.hub.Unregister(c)
		_ = c.conn.Close()
	}()

	c.conn.SetReadLimit(65536)
	_ = c.conn.SetReadDeadline(time.Now().Add(c.opts.PongWait))
	c.conn.SetPongHandler(func(string) error {
		_ = c.conn.SetReadDeadline(time.Now().Add(c.opts.PongWait))
		return nil
	})

	for {
		var msg WSMessage
		if err := c.conn.ReadJSON(&msg); err != nil {
			break
		}
		_ = c.conn.SetReadDeadline(time.Now().Add(c.opts.PongWait))

		if err := c.router.Dispatch(c.ctx, c, msg); err != nil {
			c.logger.Warn("event rejected",
				zap.String("event", msg.Event),
				zap.String("connection_id", c.ID),
				zap.String("session_id", c.SessionID.String()),
				zap.Error(err))
			c.hub.SendToClient(c.SessionID, c.ID, EventError, map[string]string{
				"event":  msg.Event,
				"reason": err.Error(),
			})
		}
	}
}

func (c *Client) writePump() {
	ticker := time.NewTicker(c.opts.PingInterval)
	defer func() {
		ticker.Stop()
		_ = c.conn.Close()
	}()

	for {
		select {
		case msg, ok := <-c.send:
			if !ok {
				_ = c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			_ = c.conn.SetWriteDeadline(time.Now().Add(c.opts.WriteWait))
			if err := c.conn.WriteJSON(msg); err != nil {
				return
			}
		case <-ticker.C:
			_ = c.conn.SetWriteDeadline(time.Now().Add(c.opts.WriteWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
