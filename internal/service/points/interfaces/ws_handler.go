// internal/service/points/interfaces/ws_handler.go
package interfaces

import (
	"context"
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"easypoints/internal/pkg/logger"
	"easypoints/internal/pkg/metrics"
	"easypoints/internal/service/points/application"

	"github.com/gorilla/websocket"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = pongWait * 9 / 10
	maxMessageSize = 512
	sendBuffer     = 16
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool { // 主题页面和服务不同源，允许所有跨域
		return true
	},
}

// Hub 维护每个会话的 websocket 订阅者，实现 application.Notifier。
type Hub struct {
	clients map[string]map[*Client]struct{} // 使用 SessionID 作为 Key
	lock    sync.RWMutex
	metrics *metrics.Metrics
}

func NewHub(m *metrics.Metrics) *Hub {
	return &Hub{clients: make(map[string]map[*Client]struct{}), metrics: m}
}

// Client 是一个 WebSocket 连接的代表
type Client struct {
	hub       *Hub
	conn      *websocket.Conn
	send      chan []byte
	sessionID string
	closeOnce sync.Once
}

func (h *Hub) register(c *Client) {
	h.lock.Lock()
	set, ok := h.clients[c.sessionID]
	if !ok {
		set = make(map[*Client]struct{})
		h.clients[c.sessionID] = set
	}
	set[c] = struct{}{}
	h.lock.Unlock()

	if h.metrics != nil {
		h.metrics.WSSubscribers.Inc()
	}
}

func (h *Hub) unregister(c *Client) {
	h.lock.Lock()
	set, ok := h.clients[c.sessionID]
	if ok {
		if _, ok = set[c]; ok {
			delete(set, c)
			if len(set) == 0 {
				delete(h.clients, c.sessionID)
			}
		}
	}
	h.lock.Unlock()

	if ok {
		c.closeSend()
		if h.metrics != nil {
			h.metrics.WSSubscribers.Dec()
		}
	}
}

// Subscribers 返回会话当前的订阅数
func (h *Hub) Subscribers(sessionID string) int {
	h.lock.RLock()
	defer h.lock.RUnlock()
	return len(h.clients[sessionID])
}

// Notify 把视图推送给会话的所有订阅者。发送缓冲已满的连接会被断开，由主题重连后拿到最新快照。
func (h *Hub) Notify(ctx context.Context, sessionID string, view *application.SessionView) {
	payload, err := json.Marshal(view)
	if err != nil {
		logger.Ctx(ctx).Error().Err(err).Str("session_id", sessionID).Msg("🛑 Failed to marshal session view")
		return
	}

	var slow []*Client
	h.lock.RLock()
	for c := range h.clients[sessionID] {
		select {
		case c.send <- payload:
		default:
			slow = append(slow, c)
		}
	}
	h.lock.RUnlock()

	for _, c := range slow {
		logger.Ctx(ctx).Warn().Str("session_id", sessionID).Msg("⚠️ Dropping slow websocket subscriber")
		h.unregister(c)
	}
}

// Close 断开所有连接，在服务关闭时调用。
func (h *Hub) Close(ctx context.Context) error {
	h.lock.RLock()
	var all []*Client
	for _, set := range h.clients {
		for c := range set {
			all = append(all, c)
		}
	}
	h.lock.RUnlock()

	for _, c := range all {
		h.unregister(c)
	}
	logger.Ctx(ctx).Info().Int("clients", len(all)).Msg("ℹ️ Websocket hub closed")
	return nil
}

func (c *Client) closeSend() {
	c.closeOnce.Do(func() { close(c.send) })
}

// writePump 负责将 send channel 中的消息写入 websocket，并定时发送 ping。
func (c *Client) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case msg, ok := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, msg); err != nil {
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

// readPump 只处理心跳，客户端不会发送业务消息。
func (c *Client) readPump() {
	defer func() {
		c.hub.unregister(c)
		c.conn.Close()
	}()

	c.conn.SetReadLimit(maxMessageSize)
	c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(pongWait))
	})
	for {
		if _, _, err := c.conn.ReadMessage(); err != nil {
			return
		}
	}
}

// handleWebsocket 订阅会话快照。连接建立后立即推送一次当前快照。
func (h *PointsHandler) handleWebsocket(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	sessionID := r.PathValue("id")

	view, err := h.service.Snapshot(ctx, sessionID)
	if err != nil {
		writeError(w, r, err)
		return
	}
	payload, err := json.Marshal(view)
	if err != nil {
		writeError(w, r, err)
		return
	}

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		logger.Ctx(ctx).Warn().Err(err).Msg("⚠️ Websocket upgrade failed")
		return
	}

	client := &Client{hub: h.hub, conn: conn, send: make(chan []byte, sendBuffer), sessionID: sessionID}
	client.send <- payload
	h.hub.register(client)
	logger.Ctx(ctx).Info().Str("session_id", sessionID).Msg("✅ Websocket subscriber registered")

	go client.writePump()
	go client.readPump()
}
