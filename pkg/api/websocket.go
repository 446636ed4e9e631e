package api

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
)

// WebSocket message types
const (
	MessageTypeHeartbeat        = "heartbeat"
	MessageTypeOptimizeProgress = "optimize_progress"
	MessageTypeError            = "error"
	MessageTypeSubscribe        = "subscribe"
	MessageTypeUnsubscribe      = "unsubscribe"
)

// WebSocketMessage represents a WebSocket message
type WebSocketMessage struct {
	Type      string      `json:"type"`
	ID        string      `json:"id,omitempty"`
	Timestamp time.Time   `json:"timestamp"`
	Data      interface{} `json:"data,omitempty"`
	Error     string      `json:"error,omitempty"`
}

// WebSocketClient represents a connected WebSocket client
type WebSocketClient struct {
	ID            string
	Conn          *websocket.Conn
	Send          chan WebSocketMessage
	Hub           *WebSocketHub
	Subscriptions map[string]bool
	mu            sync.RWMutex
}

// WebSocketHub maintains WebSocket connections and handles broadcasting
type WebSocketHub struct {
	clients    map[*WebSocketClient]bool
	broadcast  chan WebSocketMessage
	register   chan *WebSocketClient
	unregister chan *WebSocketClient
	logger     *slog.Logger
	mu         sync.RWMutex
}

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		return true
	},
}

// NewWebSocketHub creates a new WebSocket hub
func NewWebSocketHub(logger *slog.Logger) *WebSocketHub {
	return &WebSocketHub{
		clients:    make(map[*WebSocketClient]bool),
		broadcast:  make(chan WebSocketMessage, 256),
		register:   make(chan *WebSocketClient),
		unregister: make(chan *WebSocketClient),
		logger:     logger,
	}
}

// Run starts the WebSocket hub
func (h *WebSocketHub) Run() {
	h.logger.Info("websocket hub started")

	heartbeat := time.NewTicker(30 * time.Second)
	defer heartbeat.Stop()

	for {
		select {
		case client := <-h.register:
			h.mu.Lock()
			h.clients[client] = true
			h.mu.Unlock()
			h.logger.Info("websocket client connected", "client_id", client.ID)

			client.Send <- WebSocketMessage{
				Type:      "welcome",
				Timestamp: time.Now(),
				Data:      map[string]interface{}{"client_id": client.ID},
			}

		case client := <-h.unregister:
			h.mu.Lock()
			if _, ok := h.clients[client]; ok {
				delete(h.clients, client)
				close(client.Send)
			}
			h.mu.Unlock()
			h.logger.Info("websocket client disconnected", "client_id", client.ID)

		case message := <-h.broadcast:
			h.mu.RLock()
			for client := range h.clients {
				select {
				case client.Send <- message:
				default:
					delete(h.clients, client)
					close(client.Send)
				}
			}
			h.mu.RUnlock()

		case <-heartbeat.C:
			h.BroadcastToSubscribers(WebSocketMessage{
				Type:      MessageTypeHeartbeat,
				Timestamp: time.Now(),
				Data:      map[string]interface{}{"status": "alive"},
			}, MessageTypeHeartbeat)
		}
	}
}

// Stop gracefully stops the WebSocket hub
func (h *WebSocketHub) Stop() {
	h.logger.Info("stopping websocket hub")
	h.mu.Lock()
	for client := range h.clients {
		client.Conn.Close()
		close(client.Send)
		delete(h.clients, client)
	}
	h.mu.Unlock()
}

// BroadcastToSubscribers sends a message to clients subscribed to a topic.
func (h *WebSocketHub) BroadcastToSubscribers(message WebSocketMessage, topic string) {
	h.mu.RLock()
	defer h.mu.RUnlock()

	for client := range h.clients {
		client.mu.RLock()
		if client.Subscriptions[topic] {
			select {
			case client.Send <- message:
			default:
			}
		}
		client.mu.RUnlock()
	}
}

// BroadcastOptimizeProgress publishes a single GA generation's stats to
// every client subscribed to this job's optimize run. optimizeHandler calls
// it for each logged {list_ga_log, arc_ga_log} generation after
// optimize.Optimize returns, so the events arrive once the run has
// finished, not while it is in progress.
func (h *WebSocketHub) BroadcastOptimizeProgress(jobID string, stage string, generation int, stats interface{}) {
	topic := optimizeTopic(jobID)
	h.BroadcastToSubscribers(WebSocketMessage{
		Type:      MessageTypeOptimizeProgress,
		ID:        jobID,
		Timestamp: time.Now(),
		Data: map[string]interface{}{
			"job_id":     jobID,
			"stage":      stage,
			"generation": generation,
			"stats":      stats,
		},
	}, topic)
}

func optimizeTopic(jobID string) string {
	return "optimize_" + jobID
}

// GetConnectedClients returns the number of connected clients
func (h *WebSocketHub) GetConnectedClients() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// optimizeWebsocketHandler upgrades the connection and subscribes the
// client to a single job's optimize-progress topic.
func (s *Server) optimizeWebsocketHandler(c *gin.Context) {
	jobID := c.Param("id")
	if jobID == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "missing_job_id"})
		return
	}

	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		s.logger.Error("failed to upgrade websocket connection", "error", err)
		return
	}

	client := &WebSocketClient{
		ID:            uuid.New().String(),
		Conn:          conn,
		Send:          make(chan WebSocketMessage, 256),
		Hub:           s.websocket,
		Subscriptions: map[string]bool{optimizeTopic(jobID): true},
	}

	s.websocket.register <- client
	go client.writePump()
	go client.readPump(s)
}

// readPump handles reading messages from the WebSocket connection
func (c *WebSocketClient) readPump(s *Server) {
	defer func() {
		c.Hub.unregister <- c
		c.Conn.Close()
	}()

	c.Conn.SetReadLimit(512)
	c.Conn.SetReadDeadline(time.Now().Add(60 * time.Second))
	c.Conn.SetPongHandler(func(string) error {
		c.Conn.SetReadDeadline(time.Now().Add(60 * time.Second))
		return nil
	})

	for {
		var message WebSocketMessage
		if err := c.Conn.ReadJSON(&message); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				s.logger.Error("websocket read error", "error", err, "client_id", c.ID)
			}
			break
		}

		switch message.Type {
		case MessageTypeSubscribe:
			c.handleSubscribe(message, s)
		case MessageTypeUnsubscribe:
			c.handleUnsubscribe(message, s)
		case MessageTypeHeartbeat:
			c.Send <- WebSocketMessage{
				Type:      MessageTypeHeartbeat,
				Timestamp: time.Now(),
				Data:      map[string]interface{}{"status": "pong"},
			}
		default:
			s.logger.Warn("unknown websocket message type", "type", message.Type, "client_id", c.ID)
		}
	}
}

// writePump handles writing messages to the WebSocket connection
func (c *WebSocketClient) writePump() {
	ticker := time.NewTicker(54 * time.Second)
	defer func() {
		ticker.Stop()
		c.Conn.Close()
	}()

	for {
		select {
		case message, ok := <-c.Send:
			c.Conn.SetWriteDeadline(time.Now().Add(10 * time.Second))
			if !ok {
				c.Conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.Conn.WriteJSON(message); err != nil {
				return
			}

		case <-ticker.C:
			c.Conn.SetWriteDeadline(time.Now().Add(10 * time.Second))
			if err := c.Conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

func (c *WebSocketClient) handleSubscribe(message WebSocketMessage, s *Server) {
	topics, ok := decodeTopics(message.Data)
	if !ok {
		c.Send <- WebSocketMessage{Type: MessageTypeError, Timestamp: time.Now(), Error: "invalid topics format"}
		return
	}

	c.mu.Lock()
	for _, topic := range topics {
		c.Subscriptions[topic] = true
	}
	c.mu.Unlock()

	c.Send <- WebSocketMessage{
		Type:      "subscription_confirmed",
		Timestamp: time.Now(),
		Data:      map[string]interface{}{"subscribed_topics": topics},
	}
}

func (c *WebSocketClient) handleUnsubscribe(message WebSocketMessage, s *Server) {
	topics, ok := decodeTopics(message.Data)
	if !ok {
		c.Send <- WebSocketMessage{Type: MessageTypeError, Timestamp: time.Now(), Error: "invalid topics format"}
		return
	}

	c.mu.Lock()
	for _, topic := range topics {
		delete(c.Subscriptions, topic)
	}
	c.mu.Unlock()

	c.Send <- WebSocketMessage{
		Type:      "unsubscription_confirmed",
		Timestamp: time.Now(),
		Data:      map[string]interface{}{"unsubscribed_topics": topics},
	}
}

func decodeTopics(data interface{}) ([]string, bool) {
	raw, err := json.Marshal(data)
	if err != nil {
		return nil, false
	}
	var topics []string
	if err := json.Unmarshal(raw, &topics); err != nil {
		return nil, false
	}
	return topics, true
}
