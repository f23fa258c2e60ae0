package websocket

import (
	"context"
	"encoding/json"

	"memcontext-be/internal/entity"
	"memcontext-be/internal/pkg/logger"

	"github.com/redis/go-redis/v9"
)

const clusterChannel = "memcontext:notifications"

// Hub tracks notification sockets per user and fans notifications out to them.
// With Redis configured, notifications also reach sockets held by other instances.
type Hub struct {
	// user id -> clients (multi-device)
	clients map[string]map[*Client]struct{}

	register   chan *Client
	unregister chan *Client
	deliver    chan delivery
	done       chan struct{}

	rdb    *redis.Client
	logger logger.ILogger
}

type delivery struct {
	userID string
	data   []byte
}

func NewHub(rdb *redis.Client, log logger.ILogger) *Hub {
	return &Hub{
		clients:    make(map[string]map[*Client]struct{}),
		register:   make(chan *Client),
		unregister: make(chan *Client),
		deliver:    make(chan delivery, 64),
		done:       make(chan struct{}),
		rdb:        rdb,
		logger:     log,
	}
}

// Run owns the client map until ctx is done.
func (h *Hub) Run(ctx context.Context) {
	if h.rdb != nil {
		go h.subscribeToRedis(ctx)
	}

	for {
		select {
		case <-ctx.Done():
			close(h.done)
			for _, clients := range h.clients {
				for c := range clients {
					close(c.Send)
				}
			}
			h.clients = map[string]map[*Client]struct{}{}
			return

		case client := <-h.register:
			if h.clients[client.UserID] == nil {
				h.clients[client.UserID] = make(map[*Client]struct{})
			}
			h.clients[client.UserID][client] = struct{}{}
			h.logger.Info("Hub", "Client registered", map[string]interface{}{"user_id": client.UserID})

		case client := <-h.unregister:
			h.remove(client)

		case d := <-h.deliver:
			for c := range h.clients[d.userID] {
				select {
				case c.Send <- d.data:
				default:
					h.logger.Warn("Hub", "Client send buffer full, dropping client", map[string]interface{}{"user_id": d.userID})
					h.remove(c)
				}
			}
		}
	}
}

func (h *Hub) join(c *Client) bool {
	select {
	case h.register <- c:
		return true
	case <-h.done:
		return false
	}
}

func (h *Hub) leave(c *Client) {
	select {
	case h.unregister <- c:
	case <-h.done:
	}
}

func (h *Hub) remove(c *Client) {
	clients, ok := h.clients[c.UserID]
	if !ok {
		return
	}
	if _, ok := clients[c]; !ok {
		return
	}
	delete(clients, c)
	close(c.Send)
	if len(clients) == 0 {
		delete(h.clients, c.UserID)
		h.logger.Info("Hub", "Client completely unregistered", map[string]interface{}{"user_id": c.UserID})
	}
}

// Send pushes notification to every socket of its user.
func (h *Hub) Send(notification entity.Notification) {
	data, err := json.Marshal(map[string]interface{}{
		"type": "notification",
		"data": notification,
	})
	if err != nil {
		h.logger.Error("Hub", "Failed to marshal notification", map[string]interface{}{"error": err})
		return
	}

	if h.rdb == nil {
		h.deliverLocal(notification.UserID, data)
		return
	}

	// Every instance, this one included, delivers from the Redis channel.
	payload, _ := json.Marshal(clusterMessage{TargetUserID: notification.UserID, Message: data})
	if err := h.rdb.Publish(context.Background(), clusterChannel, payload).Err(); err != nil {
		h.logger.Warn("Hub", "Redis publish failed, delivering locally", map[string]interface{}{"error": err.Error()})
		h.deliverLocal(notification.UserID, data)
	}
}

func (h *Hub) deliverLocal(userID string, data []byte) {
	select {
	case h.deliver <- delivery{userID: userID, data: data}:
	default:
		h.logger.Warn("Hub", "Delivery queue full, dropping notification", map[string]interface{}{"user_id": userID})
	}
}

type clusterMessage struct {
	TargetUserID string          `json:"target_user_id"`
	Message      json.RawMessage `json:"message"`
}

func (h *Hub) subscribeToRedis(ctx context.Context) {
	pubsub := h.rdb.Subscribe(ctx, clusterChannel)
	defer pubsub.Close()

	for msg := range pubsub.Channel() {
		var payload clusterMessage
		if err := json.Unmarshal([]byte(msg.Payload), &payload); err != nil {
			h.logger.Warn("Hub", "Redis message parse error", map[string]interface{}{"error": err.Error()})
			continue
		}
		h.deliverLocal(payload.TargetUserID, payload.Message)
	}
}
