package realtime

import (
	"encoding/json"
	"sync"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

const (
	// PingInterval and PongWait are used for heartbeat.
	PingInterval = 30
	PongWait     = 60
)

// Hub maintains session_id -> set of connections and fans tracking
// events out to them. Uses Redis pub/sub for horizontal scaling: local
// broadcast plus publish to Redis so watchers on other instances see
// the same feed.
type Hub struct {
	// sessionID -> map[clientID]*Client
	rooms    map[uuid.UUID]map[string]*Client
	subs     map[uuid.UUID]func() // cancel Redis subscription per session
	mu       sync.RWMutex
	logger   *zap.Logger
	redis    RedisPublisher
	redisSub RedisSubscriber
}

// RedisPublisher is the interface for publishing to Redis (for cross-instance broadcast).
type RedisPublisher interface {
	PublishSessionEvent(sessionID uuid.UUID, event string, payload []byte) error
}

// RedisSubscriber subscribes to session channels and invokes handler for incoming events.
type RedisSubscriber interface {
	SubscribeSession(sessionID uuid.UUID, handler func(event string, payload []byte)) (cancel func(), err error)
}

// NewHub creates a new WebSocket hub.
func NewHub(logger *zap.Logger, redisPub RedisPublisher, redisSub RedisSubscriber) *Hub {
	return &Hub{
		rooms:    make(map[uuid.UUID]map[string]*Client),
		subs:     make(map[uuid.UUID]func()),
		logger:   logger,
		redis:    redisPub,
		redisSub: redisSub,
	}
}

// Register adds a client to a session room. Starts the Redis
// subscription for the session when the first watcher arrives.
func (h *Hub) Register(c *Client) {
	// The client can move rooms later; the subscription must stay
	// pinned to the session it was created for, so work from a copy.
	sid := c.sessionID
	if sid == uuid.Nil {
		return
	}
	h.mu.Lock()
	if h.rooms[sid] == nil {
		h.rooms[sid] = make(map[string]*Client)
		if h.redisSub != nil {
			cancel, err := h.redisSub.SubscribeSession(sid, func(event string, payload []byte) {
				h.broadcastLocal(sid, event, json.RawMessage(payload))
			})
			if err == nil {
				h.subs[sid] = cancel
			}
		}
	}
	h.rooms[sid][c.ID] = c
	h.mu.Unlock()
	h.logger.Debug("client joined session feed",
		zap.String("client_id", c.ID),
		zap.String("session_id", sid.String()))
}

// Unregister removes a client from its session room. Cancels the Redis
// subscription when the last watcher leaves.
func (h *Hub) Unregister(c *Client) {
	sid := c.sessionID
	if sid == uuid.Nil {
		return
	}
	h.mu.Lock()
	if m, ok := h.rooms[sid]; ok {
		delete(m, c.ID)
		if len(m) == 0 {
			delete(h.rooms, sid)
			if cancel, ok := h.subs[sid]; ok {
				cancel()
				delete(h.subs, sid)
			}
		}
	}
	h.mu.Unlock()
	h.logger.Debug("client left session feed",
		zap.String("client_id", c.ID),
		zap.String("session_id", sid.String()))
}

// broadcastLocal sends a message to the session's local watchers only.
func (h *Hub) broadcastLocal(sessionID uuid.UUID, event string, payload interface{}) {
	var data []byte
	switch v := payload.(type) {
	case []byte:
		data = v
	case json.RawMessage:
		data = v
	default:
		data, _ = json.Marshal(payload)
	}
	msg := WSMessage{Event: event, Data: data}

	// Snapshot the watcher set under the lock; the map itself may be
	// mutated by register/unregister while the sends run.
	h.mu.RLock()
	clients := make([]*Client, 0, len(h.rooms[sessionID]))
	for _, c := range h.rooms[sessionID] {
		clients = append(clients, c)
	}
	h.mu.RUnlock()

	for _, c := range clients {
		select {
		case c.send <- msg:
		default:
			// buffer full, skip; the feed is best-effort
		}
	}
}

// BroadcastToSession sends to local watchers and publishes to Redis for
// other instances. This is the tracking loop's publish sink; it never
// blocks the caller.
func (h *Hub) BroadcastToSession(sessionID uuid.UUID, event string, payload interface{}) {
	data, err := json.Marshal(payload)
	if err != nil {
		h.logger.Warn("dropping unserializable event",
			zap.String("event", event), zap.Error(err))
		return
	}
	h.broadcastLocal(sessionID, event, json.RawMessage(data))
	if h.redis != nil {
		_ = h.redis.PublishSessionEvent(sessionID, event, data)
	}
}

// WatcherCount returns the number of connected clients for a session.
func (h *Hub) WatcherCount(sessionID uuid.UUID) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.rooms[sessionID])
}
