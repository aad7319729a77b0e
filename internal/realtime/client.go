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

	"github.com/study-eyes/backend/internal/tracking"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		return true // allow all origins in dev; restrict in production
	},
}

// WSMessage is the WebSocket message envelope.
type WSMessage struct {
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data,omitempty"`
}

// TrackingController starts and stops tracking sessions on behalf of a
// connected user.
type TrackingController interface {
	StartTracking(ctx context.Context, userID string) (uuid.UUID, error)
	StopTracking(ctx context.Context, userID string) (uuid.UUID, bool)
}

// Client represents a single WebSocket connection.
type Client struct {
	ID        string
	UserID    string
	Role      string
	sessionID uuid.UUID // current session room, uuid.Nil when none
	hub       *Hub
	control   TrackingController
	conn      *websocket.Conn
	send      chan WSMessage
	logger    *zap.Logger
}

// ServeWs handles the WebSocket upgrade and runs the client loop.
func ServeWs(hub *Hub, logger *zap.Logger, jwtValidate func(token string) (userID, role string, err error), control TrackingController) gin.HandlerFunc {
	return func(c *gin.Context) {
		token := c.Query("token")
		if token == "" {
			c.JSON(http.StatusBadRequest, gin.H{"error": "token required"})
			return
		}
		userID, role, err := jwtValidate(token)
		if err != nil {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "invalid token"})
			return
		}

		conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
		if err != nil {
			logger.Warn("websocket upgrade failed", zap.Error(err))
			return
		}

		client := &Client{
			ID:      uuid.New().String(),
			UserID:  userID,
			Role:    role,
			hub:     hub,
			control: control,
			conn:    conn,
			send:    make(chan WSMessage, 256),
			logger:  logger,
		}
		// Optionally join an existing session feed right away
		// (dashboards watching someone else's session).
		if watch := c.Query("session_id"); watch != "" {
			if sessionID, err := uuid.Parse(watch); err == nil {
				client.joinRoom(sessionID)
			}
		}
		go client.writePump()
		client.readPump()
	}
}

func (c *Client) readPump() {
	defer func() {
		if c.control != nil {
			// A dropped connection ends the user's own tracking; the
			// loop must not keep running with nobody watching.
			c.control.StopTracking(context.Background(), c.UserID)
		}
		c.hub.Unregister(c)
		_ = c.conn.Close()
	}()

	c.conn.SetReadLimit(65536)
	_ = c.conn.SetReadDeadline(time.Now().Add(PongWait * time.Second))
	c.conn.SetPongHandler(func(string) error {
		_ = c.conn.SetReadDeadline(time.Now().Add(PongWait * time.Second))
		return nil
	})

	for {
		var msg WSMessage
		if err := c.conn.ReadJSON(&msg); err != nil {
			break
		}
		_ = c.conn.SetReadDeadline(time.Now().Add(PongWait * time.Second))

		switch msg.Event {
		case "start_tracking":
			c.handleStartTracking()
		case "stop_tracking":
			c.handleStopTracking()
		case "watch_session":
			var payload struct {
				SessionID string `json:"session_id"`
			}
			if err := json.Unmarshal(msg.Data, &payload); err == nil {
				if sessionID, err := uuid.Parse(payload.SessionID); err == nil {
					c.joinRoom(sessionID)
				}
			}
		default:
			// ignore
		}
	}
}

func (c *Client) handleStartTracking() {
	if c.control == nil {
		return
	}
	sessionID, err := c.control.StartTracking(context.Background(), c.UserID)
	if err != nil {
		reason := "internal_error"
		if errors.Is(err, tracking.ErrAlreadyActive) {
			reason = "already_active"
		}
		c.sendEvent("tracking_rejected", map[string]string{"reason": reason})
		c.logger.Warn("start tracking rejected",
			zap.String("user_id", c.UserID), zap.Error(err))
		return
	}
	c.joinRoom(sessionID)
	c.sendEvent("tracking_started", map[string]string{"session_id": sessionID.String()})
}

func (c *Client) handleStopTracking() {
	if c.control == nil {
		return
	}
	sessionID, stopped := c.control.StopTracking(context.Background(), c.UserID)
	if !stopped {
		c.sendEvent("tracking_rejected", map[string]string{"reason": "not_active"})
		return
	}
	c.sendEvent("tracking_stopped", map[string]string{"session_id": sessionID.String()})
}

// joinRoom moves the client into a session room, leaving any previous
// one first.
func (c *Client) joinRoom(sessionID uuid.UUID) {
	if c.sessionID == sessionID {
		return
	}
	c.hub.Unregister(c)
	c.sessionID = sessionID
	c.hub.Register(c)
}

func (c *Client) sendEvent(event string, payload interface{}) {
	data, err := json.Marshal(payload)
	if err != nil {
		return
	}
	select {
	case c.send <- WSMessage{Event: event, Data: data}:
	default:
	}
}

func (c *Client) writePump() {
	ticker := time.NewTicker(PingInterval * time.Second)
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
			_ = c.conn.SetWriteDeadline(time.Now().Add(10 * time.Second))
			if err := c.conn.WriteJSON(msg); err != nil {
				return
			}
		case <-ticker.C:
			_ = c.conn.SetWriteDeadline(time.Now().Add(10 * time.Second))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
