// Package realtime pushes recorder state to connected UIs and consumes
// the appliance's out-of-band status feed.
package realtime

import (
	"encoding/json"
	"sync"

	"go.uber.org/zap"
)

const (
	// PingInterval and PongWait are used for heartbeat (seconds).
	PingInterval = 30
	PongWait     = 60
)

// RedisPublisher publishes events for other control-service instances.
type RedisPublisher interface {
	PublishEvent(event string, payload []byte) error
}

// RedisSubscriber subscribes to the shared event channel.
type RedisSubscriber interface {
	SubscribeEvents(handler func(event string, payload []byte)) (cancel func(), err error)
}

// Hub maintains the set of connected UI websockets and broadcasts state
// events to them. With Redis configured, events also fan out across
// horizontally scaled instances.
type Hub struct {
	clients   map[string]*Client
	mu        sync.RWMutex
	logger    *zap.Logger
	redis     RedisPublisher
	redisSub  RedisSubscriber
	cancelSub func()
}

// NewHub creates a hub. Redis publisher/subscriber may be nil for
// single-instance deployments.
func NewHub(logger *zap.Logger, redisPub RedisPublisher, redisSub RedisSubscriber) *Hub {
	return &Hub{
		clients:  make(map[string]*Client),
		logger:   logger,
		redis:    redisPub,
		redisSub: redisSub,
	}
}

// Start begins relaying cross-instance events to local clients.
func (h *Hub) Start() {
	if h.redisSub == nil {
		return
	}
	cancel, err := h.redisSub.SubscribeEvents(func(event string, payload []byte) {
		h.Broadcast(event, json.RawMessage(payload))
	})
	if err != nil {
		h.logger.Warn("redis event subscription failed", zap.Error(err))
		return
	}
	h.cancelSub = cancel
}

// Stop cancels the cross-instance subscription.
func (h *Hub) Stop() {
	if h.cancelSub != nil {
		h.cancelSub()
		h.cancelSub = nil
	}
}

// Register adds a connected UI client.
func (h *Hub) Register(c *Client) {
	h.mu.Lock()
	h.clients[c.ID] = c
	h.mu.Unlock()
	h.logger.Debug("ui client connected", zap.String("client_id", c.ID))
}

// Unregister removes a client.
func (h *Hub) Unregister(c *Client) {
	h.mu.Lock()
	delete(h.clients, c.ID)
	h.mu.Unlock()
	h.logger.Debug("ui client disconnected", zap.String("client_id", c.ID))
}

// Broadcast sends an event to all local clients.
func (h *Hub) Broadcast(event string, payload interface{}) {
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

	h.mu.RLock()
	defer h.mu.RUnlock()
	for _, c := range h.clients {
		select {
		case c.send <- msg:
		default:
			// buffer full, skip
		}
	}
}

// BroadcastAndPublish sends to local clients and publishes to Redis so
// other instances deliver to their clients too.
func (h *Hub) BroadcastAndPublish(event string, payload interface{}) {
	data, err := json.Marshal(payload)
	if err != nil {
		return
	}
	h.Broadcast(event, json.RawMessage(data))
	if h.redis != nil {
		_ = h.redis.PublishEvent(event, data)
	}
}

// ClientCount returns the number of connected UI clients.
func (h *Hub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}
