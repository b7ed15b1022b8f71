package logger

import (
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/sirupsen/logrus"
)

// LogMessage 日志消息结构
type LogMessage struct {
	Level     string                 `json:"level"`
	Message   string                 `json:"message"`
	Module    string                 `json:"module,omitempty"`
	SessionID string                 `json:"session_id,omitempty"`
	Fields    map[string]interface{} `json:"fields,omitempty"`
	Timestamp time.Time              `json:"timestamp"`
}

// Broadcaster 把logrus日志实时推送给WebSocket订阅者
type Broadcaster struct {
	clients    map[*websocket.Conn]bool
	broadcast  chan LogMessage
	register   chan *websocket.Conn
	unregister chan *websocket.Conn
	stopCh     chan struct{}
	stopOnce   sync.Once
	levels     []logrus.Level
	upgrader   websocket.Upgrader
	mu         sync.RWMutex
}

// NewBroadcaster 创建日志广播器，minLevel 以下的日志不推送
func NewBroadcaster(minLevel logrus.Level) *Broadcaster {
	levels := make([]logrus.Level, 0, len(logrus.AllLevels))
	for _, lvl := range logrus.AllLevels {
		if lvl <= minLevel {
			levels = append(levels, lvl)
		}
	}

	return &Broadcaster{
		clients:    make(map[*websocket.Conn]bool),
		broadcast:  make(chan LogMessage, 256),
		register:   make(chan *websocket.Conn),
		unregister: make(chan *websocket.Conn),
		stopCh:     make(chan struct{}),
		levels:     levels,
		upgrader: websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool {
				return true // 允许所有来源
			},
		},
	}
}

// Levels 实现 logrus.Hook
func (b *Broadcaster) Levels() []logrus.Level {
	return b.levels
}

// Fire 实现 logrus.Hook，通道满时直接丢弃，避免阻塞业务日志
func (b *Broadcaster) Fire(entry *logrus.Entry) error {
	msg := LogMessage{
		Level:     entry.Level.String(),
		Message:   entry.Message,
		Timestamp: entry.Time,
	}
	if len(entry.Data) > 0 {
		msg.Fields = make(map[string]interface{}, len(entry.Data))
		for k, v := range entry.Data {
			switch k {
			case "module":
				msg.Module, _ = v.(string)
			case "session_id":
				msg.SessionID, _ = v.(string)
			default:
				if err, ok := v.(error); ok {
					v = err.Error()
				}
				msg.Fields[k] = v
			}
		}
	}

	select {
	case b.broadcast <- msg:
	default:
	}
	return nil
}

// Run 启动广播循环，直到 Stop 被调用
func (b *Broadcaster) Run() {
	for {
		select {
		case <-b.stopCh:
			b.mu.Lock()
			for client := range b.clients {
				client.Close()
				delete(b.clients, client)
			}
			b.mu.Unlock()
			return

		case client := <-b.register:
			b.mu.Lock()
			b.clients[client] = true
			b.mu.Unlock()

		case client := <-b.unregister:
			b.mu.Lock()
			if _, ok := b.clients[client]; ok {
				delete(b.clients, client)
				client.Close()
			}
			b.mu.Unlock()

		case message := <-b.broadcast:
			var failed []*websocket.Conn
			b.mu.RLock()
			for client := range b.clients {
				client.SetWriteDeadline(time.Now().Add(time.Second))
				if err := client.WriteJSON(message); err != nil {
					failed = append(failed, client)
				}
			}
			b.mu.RUnlock()

			if len(failed) > 0 {
				b.mu.Lock()
				for _, client := range failed {
					delete(b.clients, client)
					client.Close()
				}
				b.mu.Unlock()
			}
		}
	}
}

// Stop 停止广播并断开所有订阅者
func (b *Broadcaster) Stop() {
	b.stopOnce.Do(func() {
		close(b.stopCh)
	})
}

// ClientCount 当前订阅者数量
func (b *Broadcaster) ClientCount() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.clients)
}

// HandleWebSocket 处理日志订阅连接
func (b *Broadcaster) HandleWebSocket(w http.ResponseWriter, r *http.Request) {
	conn, err := b.upgrader.Upgrade(w, r, nil)
	if err != nil {
		WithModule("logger").WithError(err).Warn("log stream upgrade failed")
		return
	}

	// 欢迎消息需在注册前写出，注册后只有 Run 写连接
	conn.WriteJSON(LogMessage{
		Level:     "info",
		Message:   "connected to interview log stream",
		Module:    "logger",
		Timestamp: time.Now(),
	})

	select {
	case b.register <- conn:
	case <-b.stopCh:
		conn.Close()
		return
	}

	defer func() {
		select {
		case b.unregister <- conn:
		case <-b.stopCh:
		}
	}()

	// 只读以感知断开
	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			return
		}
	}
}
