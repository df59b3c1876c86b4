package stream

import (
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"option-desk-go/infrastructure/logger"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

const (
	TypePendingOrders   = "pending_orders"
	TypeSettingsChanged = "settings_changed"

	writeWait  = 10 * time.Second
	pongWait   = 60 * time.Second
	pingPeriod = pongWait * 9 / 10
	sendBuffer = 16
)

// Frame 推送给浏览器的消息
type Frame struct {
	Type string      `json:"type"`
	Data interface{} `json:"data"`
}

// ClientObserver 连接数指标
type ClientObserver interface {
	SetStreamClients(n int)
}

// Hub 管理 /api/stream 上的 WebSocket 连接，广播账本与设置变化。
// 慢客户端的发送队列满时直接断开，不阻塞广播方。
type Hub struct {
	upgrader websocket.Upgrader
	log      *logger.Logger
	observer ClientObserver

	mu      sync.Mutex
	clients map[*client]struct{}
	closed  bool
}

type client struct {
	conn *websocket.Conn
	send chan []byte
	once sync.Once
}

func NewHub(log *logger.Logger) *Hub {
	if log == nil {
		log = logger.NewNop()
	}
	return &Hub{
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     func(r *http.Request) bool { return true },
		},
		log:     log.WithFields(map[string]interface{}{"component": "stream"}),
		clients: make(map[*client]struct{}),
	}
}

// SetObserver 设置连接数指标
func (h *Hub) SetObserver(o ClientObserver) { h.observer = o }

// ServeHTTP 升级连接并注册客户端
func (h *Hub) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.log.Warn("websocket upgrade failed", zap.Error(err))
		return
	}
	c := &client{conn: conn, send: make(chan []byte, sendBuffer)}

	h.mu.Lock()
	if h.closed {
		h.mu.Unlock()
		conn.Close()
		return
	}
	h.clients[c] = struct{}{}
	n := len(h.clients)
	h.mu.Unlock()
	h.report(n)
	h.log.Debug("stream client connected", zap.String("remote", r.RemoteAddr), zap.Int("clients", n))

	go h.writePump(c)
	go h.readPump(c)
}

// Broadcast 序列化后推给所有客户端
func (h *Hub) Broadcast(msgType string, data interface{}) {
	payload, err := json.Marshal(Frame{Type: msgType, Data: data})
	if err != nil {
		h.log.LogError(err, map[string]interface{}{"op": "broadcast", "type": msgType})
		return
	}
	h.mu.Lock()
	var slow []*client
	for c := range h.clients {
		select {
		case c.send <- payload:
		default:
			slow = append(slow, c)
		}
	}
	h.mu.Unlock()
	for _, c := range slow {
		h.log.Warn("stream client too slow, dropping")
		h.remove(c)
	}
}

// ClientCount 当前连接数
func (h *Hub) ClientCount() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.clients)
}

// Close 断开所有客户端，之后的连接会被拒绝
func (h *Hub) Close() {
	h.mu.Lock()
	h.closed = true
	clients := make([]*client, 0, len(h.clients))
	for c := range h.clients {
		clients = append(clients, c)
	}
	h.mu.Unlock()
	for _, c := range clients {
		h.remove(c)
	}
}

func (h *Hub) remove(c *client) {
	h.mu.Lock()
	_, ok := h.clients[c]
	delete(h.clients, c)
	n := len(h.clients)
	h.mu.Unlock()
	if !ok {
		return
	}
	c.once.Do(func() { close(c.send) })
	h.report(n)
}

func (h *Hub) report(n int) {
	if h.observer != nil {
		h.observer.SetStreamClients(n)
	}
}

func (h *Hub) writePump(c *client) {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()
	for {
		select {
		case msg, ok := <-c.send:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				_ = c.conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, msg); err != nil {
				h.remove(c)
				return
			}
		case <-ticker.C:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				h.remove(c)
				return
			}
		}
	}
}

// readPump 只处理 pong 与关闭；浏览器不发业务消息。
func (h *Hub) readPump(c *client) {
	defer h.remove(c)
	c.conn.SetReadLimit(512)
	_ = c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(pongWait))
	})
	for {
		if _, _, err := c.conn.ReadMessage(); err != nil {
			return
		}
	}
}
