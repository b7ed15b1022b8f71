package gateway

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"
	"github.com/sirupsen/logrus"

	"InterviewPulse/internal/analysis"
	"InterviewPulse/internal/emotion"
	"InterviewPulse/internal/logger"
	"InterviewPulse/internal/protocol"
	"InterviewPulse/internal/session"
)

// Config 网关配置
type Config struct {
	Addr              string        `mapstructure:"addr"`
	MaxConnections    int           `mapstructure:"max_connections"`
	ReadLimit         int64         `mapstructure:"read_limit"`
	ReadTimeout       time.Duration `mapstructure:"read_timeout"`
	WriteTimeout      time.Duration `mapstructure:"write_timeout"`
	PingInterval      time.Duration `mapstructure:"ping_interval"`
	ReadBufferSize    int           `mapstructure:"read_buffer_size"`
	WriteBufferSize   int           `mapstructure:"write_buffer_size"`
	EnableCompression bool          `mapstructure:"enable_compression"`
}

// DefaultConfig 返回默认配置
func DefaultConfig(addr string) *Config {
	return &Config{
		Addr:              addr,
		MaxConnections:    1000,
		ReadLimit:         protocol.MaxMessageSize,
		ReadTimeout:       60 * time.Second,
		WriteTimeout:      5 * time.Second,
		PingInterval:      25 * time.Second,
		ReadBufferSize:    4096,
		WriteBufferSize:   4096,
		EnableCompression: true,
	}
}

// Sessions 网关依赖的会话操作
type Sessions interface {
	CreateSession(ctx context.Context, ownerID, role string, numQuestions int, sector string) (session.SessionHandle, error)
	Resume(ctx context.Context, sessionID, ownerID string) (session.SessionHandle, error)
	GetCurrentQuestion(ctx context.Context, sessionID string) (session.CurrentQuestion, error)
	SubmitAnswer(ctx context.Context, sessionID string, ordinal int, text string, precomputed *analysis.Aggregate) (session.SubmitResult, error)
	RecordFrame(ctx context.Context, sessionID string, frame emotion.FrameResult) (session.FrameAck, error)
	EndSession(ctx context.Context, sessionID string) (analysis.InterviewAnalysis, error)
}

// FrameProcessor 帧解码与分类
type FrameProcessor interface {
	ProcessBase64(ctx context.Context, encoded string) emotion.FrameResult
}

// Server 面试流式网关，每个连接一个 goroutine
type Server struct {
	config   *Config
	sessions Sessions
	frames   FrameProcessor
	logs     *logger.Broadcaster
	server   *http.Server
	upgrader websocket.Upgrader
	log      *logrus.Entry
	now      func() time.Time

	connections sync.Map // map[string]*Connection
	connCount   atomic.Int32
	connWg      sync.WaitGroup

	isRunning        atomic.Bool
	totalConnections atomic.Uint64
	totalMessages    atomic.Uint64
	totalFrames      atomic.Uint64
	startTime        time.Time
}

// Option 网关可选项
type Option func(*Server)

// WithLogStream 在 /ws/logs 暴露日志流
func WithLogStream(b *logger.Broadcaster) Option {
	return func(s *Server) { s.logs = b }
}

// WithClock 替换接收时间来源
func WithClock(now func() time.Time) Option {
	return func(s *Server) { s.now = now }
}

// New 创建网关
func New(config *Config, sessions Sessions, frames FrameProcessor, opts ...Option) *Server {
	if config == nil {
		config = DefaultConfig(":8080")
	}
	s := &Server{
		config:   config,
		sessions: sessions,
		frames:   frames,
		log:      logger.WithModule("gateway"),
		now:      time.Now,
		upgrader: websocket.Upgrader{
			ReadBufferSize:    config.ReadBufferSize,
			WriteBufferSize:   config.WriteBufferSize,
			EnableCompression: config.EnableCompression,
			CheckOrigin: func(r *http.Request) bool {
				return true
			},
		},
		startTime: time.Now(),
	}
	for _, opt := range opts {
		opt(s)
	}
	s.server = &http.Server{
		Addr:              config.Addr,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}
	return s
}

// Handler 返回网关路由，便于挂到 httptest
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/ws", s.handleWebSocket)
	mux.HandleFunc("/stats", s.handleStats)
	if s.logs != nil {
		mux.HandleFunc("/ws/logs", s.logs.HandleWebSocket)
	}
	return mux
}

// Start 监听端口并在后台提供服务
func (s *Server) Start() error {
	if !s.isRunning.CompareAndSwap(false, true) {
		return fmt.Errorf("gateway is already running")
	}
	ln, err := net.Listen("tcp", s.config.Addr)
	if err != nil {
		s.isRunning.Store(false)
		return fmt.Errorf("listen %s: %w", s.config.Addr, err)
	}

	s.log.WithField("addr", ln.Addr().String()).Info("Starting interview gateway")
	go func() {
		if err := s.server.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.log.WithError(err).Error("gateway server error")
		}
	}()
	return nil
}

// Shutdown 关闭所有连接后停止服务；会话本身保留
func (s *Server) Shutdown(ctx context.Context) error {
	if !s.isRunning.CompareAndSwap(true, false) {
		return nil
	}
	s.log.Info("Shutting down interview gateway...")

	s.connections.Range(func(key, value interface{}) bool {
		s.closeConnection(value.(*Connection), "Server shutdown")
		return true
	})
	s.connWg.Wait()
	return s.server.Shutdown(ctx)
}

func (s *Server) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	if s.config.MaxConnections > 0 && s.connCount.Load() >= int32(s.config.MaxConnections) {
		http.Error(w, "Too many connections", http.StatusServiceUnavailable)
		return
	}

	wsConn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.log.WithError(err).Warn("websocket upgrade failed")
		return
	}

	conn := newConnection(fmt.Sprintf("client_%d_%d", time.Now().UnixNano(), s.totalConnections.Add(1)), wsConn)
	s.connections.Store(conn.ID, conn)
	s.connCount.Add(1)
	s.log.WithFields(logrus.Fields{"client_id": conn.ID, "remote": r.RemoteAddr}).Info("client connected")

	s.connWg.Add(1)
	defer s.connWg.Done()
	s.serve(conn)
}

// serve 在当前 goroutine 里按到达顺序处理该连接的消息
func (s *Server) serve(conn *Connection) {
	ctx, cancel := context.WithCancel(context.Background())
	defer func() {
		cancel()
		s.closeConnection(conn, "Connection ended")
	}()

	s.connWg.Add(1)
	go s.pingLoop(conn)

	if s.config.ReadLimit > 0 {
		conn.Conn.SetReadLimit(s.config.ReadLimit)
	}
	conn.Conn.SetReadDeadline(time.Now().Add(s.config.ReadTimeout))
	conn.Conn.SetPongHandler(func(string) error {
		conn.Conn.SetReadDeadline(time.Now().Add(s.config.ReadTimeout))
		return nil
	})

	for {
		messageType, data, err := conn.Conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure, websocket.CloseAbnormalClosure) {
				s.log.WithField("client_id", conn.ID).WithError(err).Warn("connection read error")
			}
			return
		}
		conn.Conn.SetReadDeadline(time.Now().Add(s.config.ReadTimeout))
		conn.Stats.MessagesReceived.Add(1)
		conn.Stats.BytesReceived.Add(uint64(len(data)))
		conn.Stats.LastActivity.Store(time.Now().UnixNano())
		s.totalMessages.Add(1)

		if messageType != websocket.TextMessage && messageType != websocket.BinaryMessage {
			continue
		}
		s.handleMessage(ctx, conn, data)
	}
}

func (s *Server) pingLoop(conn *Connection) {
	defer s.connWg.Done()
	if s.config.PingInterval <= 0 {
		<-conn.stopChan
		return
	}
	ticker := time.NewTicker(s.config.PingInterval)
	defer ticker.Stop()
	for {
		select {
		case <-conn.stopChan:
			return
		case <-ticker.C:
			if err := conn.ping(s.config.WriteTimeout); err != nil {
				conn.safeClose()
				conn.Conn.Close()
				return
			}
		}
	}
}

// closeConnection 只移除连接映射，不影响会话
func (s *Server) closeConnection(conn *Connection, reason string) {
	if _, loaded := s.connections.LoadAndDelete(conn.ID); !loaded {
		return
	}
	s.connCount.Add(-1)

	conn.writeMu.Lock()
	conn.Conn.WriteControl(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, reason),
		time.Now().Add(time.Second))
	conn.Conn.Close()
	conn.writeMu.Unlock()
	conn.safeClose()

	s.log.WithFields(logrus.Fields{
		"client_id":  conn.ID,
		"session_id": conn.sessionID.Load(),
		"reason":     reason,
	}).Info("client disconnected")
}

// handleStats 统计接口
func (s *Server) handleStats(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(s.GetStats())
}

// GetStats 获取网关统计信息
func (s *Server) GetStats() map[string]interface{} {
	return map[string]interface{}{
		"running":             s.isRunning.Load(),
		"uptime_seconds":      time.Since(s.startTime).Seconds(),
		"current_connections": s.connCount.Load(),
		"total_connections":   s.totalConnections.Load(),
		"total_messages":      s.totalMessages.Load(),
		"total_frames":        s.totalFrames.Load(),
	}
}

// ConnectionCount 当前连接数
func (s *Server) ConnectionCount() int {
	return int(s.connCount.Load())
}
