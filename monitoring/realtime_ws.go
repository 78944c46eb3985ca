package monitoring

import (
	"context"
	"net/http"
	"sync"
	"time"

	"github.com/goccy/go-json"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"counsellor/registry"
)

// MessageType 消息类型
type MessageType string

const (
	ModelBuilt          MessageType = "model_built"
	ModelFailed         MessageType = "model_failed"
	ModelsReinitialized MessageType = "models_reinitialized"
	Heartbeat           MessageType = "heartbeat"
)

const (
	writeWait    = 10 * time.Second
	pingInterval = 30 * time.Second
	sendBuffer   = 64
)

// Message 推送消息结构
type Message struct {
	ID        string          `json:"id"`
	Type      MessageType     `json:"type"`
	Dataset   string          `json:"dataset,omitempty"`
	Timestamp time.Time       `json:"timestamp"`
	Data      json.RawMessage `json:"data,omitempty"`
}

// ClientMessage 客户端消息
type ClientMessage struct {
	Type    string `json:"type"` // subscribe, unsubscribe
	Dataset string `json:"dataset"`
}

// client WebSocket客户端
type client struct {
	id   string
	conn *websocket.Conn
	send chan []byte

	mu            sync.RWMutex
	all           bool // 订阅全部数据集
	subscriptions map[string]bool
}

func newClient(conn *websocket.Conn, dataset string) *client {
	c := &client{
		id:            uuid.NewString(),
		conn:          conn,
		send:          make(chan []byte, sendBuffer),
		all:           dataset == "",
		subscriptions: make(map[string]bool),
	}
	if dataset != "" {
		c.subscriptions[dataset] = true
	}
	return c
}

func (c *client) wants(dataset string) bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return dataset == "" || c.all || c.subscriptions[dataset]
}

// apply handles a subscribe or unsubscribe request. An empty dataset means
// every dataset; naming one narrows the stream to the named set.
func (c *client) apply(msg ClientMessage) {
	c.mu.Lock()
	defer c.mu.Unlock()
	switch msg.Type {
	case "subscribe":
		if msg.Dataset == "" {
			c.all = true
			return
		}
		c.all = false
		c.subscriptions[msg.Dataset] = true
	case "unsubscribe":
		if msg.Dataset == "" {
			c.all = false
			c.subscriptions = make(map[string]bool)
			return
		}
		c.all = false
		delete(c.subscriptions, msg.Dataset)
	}
}

type outbound struct {
	dataset string
	payload []byte
}

// Hub fans model events out to websocket subscribers.
type Hub struct {
	clients    map[*client]bool
	broadcast  chan outbound
	register   chan *client
	unregister chan *client
	done       chan struct{}
	upgrader   websocket.Upgrader
	metrics    *Metrics
	logger     *zap.Logger

	count   int
	countMu sync.RWMutex
}

// NewHub 创建WebSocket中心
func NewHub(allowedOrigins []string, metrics *Metrics, logger *zap.Logger) *Hub {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Hub{
		clients:    make(map[*client]bool),
		broadcast:  make(chan outbound, 256),
		register:   make(chan *client),
		unregister: make(chan *client),
		done:       make(chan struct{}),
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     originChecker(allowedOrigins),
		},
		metrics: metrics,
		logger:  logger.Named("hub"),
	}
}

func originChecker(allowed []string) func(r *http.Request) bool {
	return func(r *http.Request) bool {
		origin := r.Header.Get("Origin")
		if origin == "" {
			return true
		}
		for _, o := range allowed {
			if o == "*" || o == origin {
				return true
			}
		}
		return false
	}
}

// Run 启动WebSocket中心, 直到 ctx 结束
func (h *Hub) Run(ctx context.Context) {
	ticker := time.NewTicker(pingInterval)
	defer ticker.Stop()
	defer close(h.done)

	for {
		select {
		case c := <-h.register:
			h.clients[c] = true
			h.setCount(len(h.clients))
			h.logger.Debug("client connected", zap.String("client", c.id), zap.Int("total", len(h.clients)))

		case c := <-h.unregister:
			if _, ok := h.clients[c]; ok {
				delete(h.clients, c)
				close(c.send)
			}
			h.setCount(len(h.clients))
			h.logger.Debug("client disconnected", zap.String("client", c.id), zap.Int("total", len(h.clients)))

		case msg := <-h.broadcast:
			for c := range h.clients {
				if !c.wants(msg.dataset) {
					continue
				}
				select {
				case c.send <- msg.payload:
				default:
					// slow consumer
					close(c.send)
					delete(h.clients, c)
				}
			}
			h.setCount(len(h.clients))

		case <-ticker.C:
			if len(h.clients) > 0 {
				h.send(Heartbeat, "", map[string]string{"status": "alive"})
			}

		case <-ctx.Done():
			for c := range h.clients {
				close(c.send)
				delete(h.clients, c)
			}
			h.setCount(0)
			return
		}
	}
}

func (h *Hub) setCount(n int) {
	h.countMu.Lock()
	h.count = n
	h.countMu.Unlock()
	if h.metrics != nil {
		h.metrics.wsClients.Set(float64(n))
	}
}

// Clients 当前连接数
func (h *Hub) Clients() int {
	h.countMu.RLock()
	defer h.countMu.RUnlock()
	return h.count
}

// Publish forwards a registry event to subscribers. It never blocks.
func (h *Hub) Publish(e registry.Event) {
	var t MessageType
	switch e.Type {
	case "built":
		t = ModelBuilt
	case "failed":
		t = ModelFailed
	default:
		t = ModelsReinitialized
	}
	h.send(t, e.Dataset, e)
}

func (h *Hub) send(t MessageType, dataset string, data interface{}) {
	raw, err := json.Marshal(data)
	if err != nil {
		h.logger.Error("failed to marshal event", zap.Error(err))
		return
	}
	payload, err := json.Marshal(Message{
		ID:        uuid.NewString(),
		Type:      t,
		Dataset:   dataset,
		Timestamp: time.Now(),
		Data:      raw,
	})
	if err != nil {
		h.logger.Error("failed to marshal message", zap.Error(err))
		return
	}
	select {
	case h.broadcast <- outbound{dataset: dataset, payload: payload}:
	default:
		h.logger.Warn("broadcast queue is full, dropping message", zap.String("type", string(t)))
	}
}

// ServeHTTP 处理WebSocket连接
func (h *Hub) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Warn("websocket upgrade failed", zap.Error(err))
		return
	}
	c := newClient(conn, r.URL.Query().Get("dataset"))

	select {
	case h.register <- c:
	case <-h.done:
		conn.Close()
		return
	}
	go c.writePump()
	go c.readPump(h)
}

func (c *client) writePump() {
	ticker := time.NewTicker(pingInterval)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case message, ok := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, message); err != nil {
				return
			}

		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

func (c *client) readPump(h *Hub) {
	defer func() {
		select {
		case h.unregister <- c:
		case <-h.done:
		}
		c.conn.Close()
	}()

	for {
		_, data, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				h.logger.Debug("websocket read error", zap.String("client", c.id), zap.Error(err))
			}
			return
		}

		var msg ClientMessage
		if err := json.Unmarshal(data, &msg); err != nil {
			h.logger.Debug("failed to parse client message", zap.String("client", c.id), zap.Error(err))
			continue
		}
		c.apply(msg)
	}
}
