package server

import (
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

const (
	writeWait    = 10 * time.Second
	pongWait     = 60 * time.Second
	pingInterval = 50 * time.Second
	sendBuffer   = 32
)

// envelope 推送给前端的消息：type = wallet | action
type envelope struct {
	Type string      `json:"type"`
	Data interface{} `json:"data"`
	At   time.Time   `json:"at"`
}

type wsClient struct {
	conn *websocket.Conn
	send chan []byte
	once sync.Once
}

func (c *wsClient) stop() {
	c.once.Do(func() { close(c.send) })
}

// hub 广播会话事件和动作结果；慢客户端直接断开
type hub struct {
	mu       sync.Mutex
	clients  map[*wsClient]struct{}
	closed   bool
	upgrader websocket.Upgrader
}

func newHub() *hub {
	return &hub{
		clients: make(map[*wsClient]struct{}),
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			// 前端与 API 同源部署；跨域时由反向代理处理
			CheckOrigin: func(r *http.Request) bool { return true },
		},
	}
}

func (h *hub) publish(kind string, data interface{}) {
	b, err := json.Marshal(envelope{Type: kind, Data: data, At: time.Now()})
	if err != nil {
		serverLog.Warnf("[events] 编码事件失败: %v", err)
		return
	}
	h.mu.Lock()
	defer h.mu.Unlock()
	for c := range h.clients {
		select {
		case c.send <- b:
		default:
			serverLog.Warnf("[events] 客户端 %s 跟不上，断开", c.conn.RemoteAddr())
			delete(h.clients, c)
			c.stop()
		}
	}
}

func (h *hub) add(c *wsClient) bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		return false
	}
	h.clients[c] = struct{}{}
	return true
}

func (h *hub) remove(c *wsClient) {
	h.mu.Lock()
	if _, ok := h.clients[c]; ok {
		delete(h.clients, c)
		c.stop()
	}
	h.mu.Unlock()
}

func (h *hub) count() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.clients)
}

func (h *hub) close() {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.closed = true
	for c := range h.clients {
		delete(h.clients, c)
		c.stop()
	}
}

// handleEvents 升级为 websocket；连接后先推一次当前会话状态
func (s *Server) handleEvents(w http.ResponseWriter, r *http.Request) {
	conn, err := s.hub.upgrader.Upgrade(w, r, nil)
	if err != nil {
		serverLog.Warnf("[events] websocket 升级失败: %v", err)
		return
	}
	c := &wsClient{conn: conn, send: make(chan []byte, sendBuffer)}

	// 加入 hub 之前先排入当前状态，之后 send 只由 hub 关闭
	state := s.disconnectedState()
	if session, _ := s.current(); session != nil && session.Connected() {
		state = session.State()
	}
	if b, err := json.Marshal(envelope{Type: "state", Data: state, At: time.Now()}); err == nil {
		c.send <- b
	}
	if !s.hub.add(c) {
		_ = conn.Close()
		return
	}

	go s.writePump(c)
	s.readPump(c)
}

// readPump 只处理 pong 和关闭
func (s *Server) readPump(c *wsClient) {
	defer func() {
		s.hub.remove(c)
		_ = c.conn.Close()
	}()
	c.conn.SetReadLimit(4096)
	_ = c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(pongWait))
	})
	for {
		if _, _, err := c.conn.ReadMessage(); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				serverLog.Debugf("[events] 连接异常关闭: %v", err)
			}
			return
		}
	}
}

func (s *Server) writePump(c *wsClient) {
	ticker := time.NewTicker(pingInterval)
	defer func() {
		ticker.Stop()
		_ = c.conn.Close()
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
				return
			}
		case <-ticker.C:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
