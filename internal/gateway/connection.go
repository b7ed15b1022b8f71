package gateway

import (
	"encoding/json"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"
)

// clientState 连接级状态机
type clientState int

const (
	stateIdle clientState = iota
	stateActive
)

func (s clientState) String() string {
	if s == stateActive {
		return "active"
	}
	return "idle"
}

// ConnectionStats 连接统计信息
type ConnectionStats struct {
	ConnectedAt      time.Time
	MessagesReceived atomic.Uint64
	MessagesSent     atomic.Uint64
	LastActivity     atomic.Int64 // unix nano
	BytesReceived    atomic.Uint64
	BytesSent        atomic.Uint64
}

// Connection 一个客户端连接；state/ordinal 只由读循环访问
type Connection struct {
	ID    string
	Conn  *websocket.Conn
	Stats *ConnectionStats

	state     clientState
	ordinal   int
	sessionID atomic.Value // string

	writeMu   sync.Mutex
	stopChan  chan struct{}
	closeOnce sync.Once
}

func newConnection(id string, ws *websocket.Conn) *Connection {
	c := &Connection{
		ID:       id,
		Conn:     ws,
		Stats:    &ConnectionStats{ConnectedAt: time.Now()},
		stopChan: make(chan struct{}),
	}
	c.sessionID.Store("")
	c.Stats.LastActivity.Store(time.Now().UnixNano())
	return c
}

func (c *Connection) safeClose() {
	c.closeOnce.Do(func() {
		close(c.stopChan)
	})
}

func (c *Connection) session() string {
	return c.sessionID.Load().(string)
}

func (c *Connection) bind(sessionID string, ordinal int) {
	c.sessionID.Store(sessionID)
	c.state = stateActive
	c.ordinal = ordinal
}

func (c *Connection) unbind() {
	c.sessionID.Store("")
	c.state = stateIdle
	c.ordinal = 0
}

func (c *Connection) send(v interface{}, timeout time.Duration) error {
	data, err := json.Marshal(v)
	if err != nil {
		return err
	}
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	c.Conn.SetWriteDeadline(time.Now().Add(timeout))
	if err := c.Conn.WriteMessage(websocket.TextMessage, data); err != nil {
		return err
	}
	c.Stats.MessagesSent.Add(1)
	c.Stats.BytesSent.Add(uint64(len(data)))
	return nil
}

func (c *Connection) ping(timeout time.Duration) error {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	return c.Conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(timeout))
}
