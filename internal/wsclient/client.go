package wsclient

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/gorilla/websocket"
	"github.com/sirupsen/logrus"

	"InterviewPulse/internal/logger"
	"InterviewPulse/internal/protocol"
)

var (
	ErrNotConnected = errors.New("client is not connected")
	ErrClosed       = errors.New("client closed")
)

// ClientState 客户端连接状态
type ClientState int32

const (
	StateDisconnected ClientState = iota
	StateConnecting
	StateConnected
	StateReconnecting
	StateClosed
)

func (s ClientState) String() string {
	switch s {
	case StateDisconnected:
		return "DISCONNECTED"
	case StateConnecting:
		return "CONNECTING"
	case StateConnected:
		return "CONNECTED"
	case StateReconnecting:
		return "RECONNECTING"
	case StateClosed:
		return "CLOSED"
	default:
		return "UNKNOWN"
	}
}

// StateChangeHandler 状态变化处理器
type StateChangeHandler func(oldState, newState ClientState)

// ServerError 服务端回复的 error 消息
type ServerError struct {
	Message string
}

func (e *ServerError) Error() string {
	return "server error: " + e.Message
}

// Reply 服务端回复
type Reply struct {
	Type protocol.MessageType
	Raw  json.RawMessage
}

// Decode 解析回复体
func (r Reply) Decode(v interface{}) error {
	return json.Unmarshal(r.Raw, v)
}

// ClientConfig 客户端配置
type ClientConfig struct {
	URL               string
	Token             string
	HandshakeTimeout  time.Duration
	RequestTimeout    time.Duration
	ReconnectInterval time.Duration
	MaxReconnectTries int
	EnableCompression bool
	UserAgent         string
}

// DefaultClientConfig 返回默认配置
func DefaultClientConfig(url, token string) *ClientConfig {
	return &ClientConfig{
		URL:               url,
		Token:             token,
		HandshakeTimeout:  10 * time.Second,
		RequestTimeout:    10 * time.Second,
		ReconnectInterval: 500 * time.Millisecond,
		MaxReconnectTries: 10,
		EnableCompression: true,
		UserAgent:         "InterviewPulse-client/1.0",
	}
}

// Client 面试协议客户端，断线后自动重连并恢复会话
type Client struct {
	config *ClientConfig
	dialer *websocket.Dialer
	log    *logrus.Entry

	mu      sync.RWMutex
	conn    *websocket.Conn
	writeMu sync.Mutex
	reqMu   sync.Mutex
	state   atomic.Int32

	sessionID atomic.Value // string
	replies   chan Reply
	stopChan  chan struct{}
	stopOnce  sync.Once
	done      chan struct{}

	onStateChange StateChangeHandler

	messagesSent     atomic.Uint64
	messagesReceived atomic.Uint64
	reconnects       atomic.Int32
}

// New 创建客户端
func New(config *ClientConfig) *Client {
	if config == nil {
		panic("config cannot be nil")
	}
	dialer := *websocket.DefaultDialer
	dialer.HandshakeTimeout = config.HandshakeTimeout
	dialer.EnableCompression = config.EnableCompression

	c := &Client{
		config:   config,
		dialer:   &dialer,
		log:      logger.WithModule("wsclient"),
		replies:  make(chan Reply, 64),
		stopChan: make(chan struct{}),
		done:     make(chan struct{}),
	}
	c.sessionID.Store("")
	c.setState(StateDisconnected)
	return c
}

// SetStateChangeHandler 设置状态变化处理器，需在 Connect 前调用
func (c *Client) SetStateChangeHandler(handler StateChangeHandler) {
	c.onStateChange = handler
}

// Connect 连接服务器并启动读循环
func (c *Client) Connect(ctx context.Context) error {
	if !c.compareAndSwapState(StateDisconnected, StateConnecting) {
		return errors.New("client is not in disconnected state")
	}
	if err := c.doConnect(ctx); err != nil {
		c.setState(StateDisconnected)
		return err
	}
	c.setState(StateConnected)
	go c.readLoop()
	return nil
}

func (c *Client) doConnect(ctx context.Context) error {
	headers := http.Header{"User-Agent": []string{c.config.UserAgent}}
	conn, resp, err := c.dialer.DialContext(ctx, c.config.URL, headers)
	if resp != nil && resp.Body != nil {
		resp.Body.Close()
	}
	if err != nil {
		return fmt.Errorf("dial failed: %w", err)
	}
	c.mu.Lock()
	c.conn = conn
	c.mu.Unlock()
	return nil
}

// Close 关闭客户端
func (c *Client) Close() error {
	if c.getState() == StateClosed {
		return nil
	}
	c.setState(StateClosed)
	c.stopOnce.Do(func() { close(c.stopChan) })

	c.mu.Lock()
	conn := c.conn
	c.conn = nil
	c.mu.Unlock()
	if conn != nil {
		c.writeMu.Lock()
		conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, "client closing"),
			time.Now().Add(time.Second))
		c.writeMu.Unlock()
		return conn.Close()
	}
	return nil
}

// SessionID 当前绑定的会话
func (c *Client) SessionID() string {
	return c.sessionID.Load().(string)
}

// State 当前连接状态
func (c *Client) State() ClientState {
	return c.getState()
}

// Send 发送一条消息，不等待回复
func (c *Client) Send(m protocol.Inbound) error {
	data, err := protocol.Encode(m)
	if err != nil {
		return fmt.Errorf("marshal message failed: %w", err)
	}
	return c.writeRaw(data)
}

func (c *Client) writeRaw(data []byte) error {
	c.mu.RLock()
	conn := c.conn
	c.mu.RUnlock()
	if conn == nil {
		return ErrNotConnected
	}
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	conn.SetWriteDeadline(time.Now().Add(5 * time.Second))
	if err := conn.WriteMessage(websocket.TextMessage, data); err != nil {
		return err
	}
	c.messagesSent.Add(1)
	return nil
}

// Request 发送消息并等待下一条回复；服务端按顺序逐条回复
func (c *Client) Request(ctx context.Context, m protocol.Inbound) (Reply, error) {
	c.reqMu.Lock()
	defer c.reqMu.Unlock()

	if c.getState() != StateConnected {
		return Reply{}, ErrNotConnected
	}
	if _, ok := ctx.Deadline(); !ok && c.config.RequestTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.config.RequestTimeout)
		defer cancel()
	}
	if err := c.Send(m); err != nil {
		return Reply{}, err
	}

	select {
	case r := <-c.replies:
		if r.Type == protocol.TypeError {
			var e protocol.Error
			if err := r.Decode(&e); err != nil {
				return r, err
			}
			return r, &ServerError{Message: e.Message}
		}
		return r, nil
	case <-ctx.Done():
		return Reply{}, ctx.Err()
	case <-c.stopChan:
		return Reply{}, ErrClosed
	}
}

func (c *Client) requestInto(ctx context.Context, req protocol.Inbound, want protocol.MessageType, out interface{}) error {
	r, err := c.Request(ctx, req)
	if err != nil {
		return err
	}
	if r.Type != want {
		return fmt.Errorf("unexpected reply %q, want %q", r.Type, want)
	}
	return r.Decode(out)
}

// StartInterview 开始面试
func (c *Client) StartInterview(ctx context.Context, role string, numQuestions int) (protocol.SessionStarted, error) {
	var out protocol.SessionStarted
	err := c.requestInto(ctx, protocol.StartInterview{Role: role, NumQuestions: numQuestions, Token: c.config.Token}, protocol.TypeSessionStarted, &out)
	return out, err
}

// SendFrame 发送一帧 base64 图像
func (c *Client) SendFrame(ctx context.Context, imageData string) (protocol.FrameProcessed, error) {
	var out protocol.FrameProcessed
	err := c.requestInto(ctx, protocol.Frame{ImageData: imageData}, protocol.TypeFrameProcessed, &out)
	return out, err
}

// EndQuestion 提交当前题回答
func (c *Client) EndQuestion(ctx context.Context, answer string) (protocol.QuestionCompleted, error) {
	var out protocol.QuestionCompleted
	err := c.requestInto(ctx, protocol.EndQuestion{AnswerText: &answer}, protocol.TypeQuestionCompleted, &out)
	return out, err
}

// EndInterview 结束面试并获取整体分析
func (c *Client) EndInterview(ctx context.Context) (protocol.InterviewCompleted, error) {
	var out protocol.InterviewCompleted
	err := c.requestInto(ctx, protocol.EndInterview{}, protocol.TypeInterviewCompleted, &out)
	return out, err
}

// readLoop 读取回复；连接断开时在本 goroutine 内重连并恢复会话
func (c *Client) readLoop() {
	defer close(c.done)
	for {
		select {
		case <-c.stopChan:
			return
		default:
		}

		c.mu.RLock()
		conn := c.conn
		c.mu.RUnlock()
		if conn == nil {
			return
		}

		_, data, err := conn.ReadMessage()
		if err != nil {
			if c.getState() == StateClosed {
				return
			}
			c.log.WithError(err).Warn("read failed, reconnecting")
			if !c.reconnect() {
				return
			}
			continue
		}
		c.messagesReceived.Add(1)

		reply, err := parseReply(data)
		if err != nil {
			c.log.WithError(err).Warn("discarding malformed reply")
			continue
		}
		c.track(reply)

		select {
		case c.replies <- reply:
		case <-c.stopChan:
			return
		}
	}
}

func parseReply(data []byte) (Reply, error) {
	var env struct {
		Type protocol.MessageType `json:"type"`
	}
	if err := json.Unmarshal(data, &env); err != nil {
		return Reply{}, err
	}
	return Reply{Type: env.Type, Raw: append(json.RawMessage(nil), data...)}, nil
}

// track 记录会话绑定，供重连后恢复
func (c *Client) track(r Reply) {
	switch r.Type {
	case protocol.TypeSessionStarted:
		var m protocol.SessionStarted
		if r.Decode(&m) == nil {
			c.sessionID.Store(m.SessionID)
		}
	case protocol.TypeInterviewCompleted:
		c.sessionID.Store("")
	}
}

// reconnect 指数退避重连，成功后发送 resume_interview
func (c *Client) reconnect() bool {
	if !c.compareAndSwapState(StateConnected, StateReconnecting) {
		return false
	}

	c.mu.Lock()
	if c.conn != nil {
		c.conn.Close()
		c.conn = nil
	}
	c.mu.Unlock()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go func() {
		select {
		case <-c.stopChan:
			cancel()
		case <-ctx.Done():
		}
	}()

	b := backoff.NewExponentialBackOff()
	b.InitialInterval = c.config.ReconnectInterval
	b.MaxElapsedTime = 0
	err := backoff.Retry(func() error {
		return c.doConnect(ctx)
	}, backoff.WithContext(backoff.WithMaxRetries(b, uint64(c.config.MaxReconnectTries)), ctx))
	if err != nil {
		c.log.WithError(err).Error("reconnect failed")
		c.compareAndSwapState(StateReconnecting, StateDisconnected)
		return false
	}

	if sid := c.SessionID(); sid != "" {
		if err := c.resume(sid); err != nil {
			c.log.WithField("session_id", sid).WithError(err).Warn("resume after reconnect failed")
			c.sessionID.Store("")
		}
	}

	c.reconnects.Add(1)
	c.compareAndSwapState(StateReconnecting, StateConnected)
	c.log.WithField("reconnects", c.reconnects.Load()).Info("reconnected")
	return true
}

// resume 直接在新连接上完成恢复握手，不经过回复通道
func (c *Client) resume(sessionID string) error {
	data, err := protocol.Encode(protocol.ResumeInterview{SessionID: sessionID, Token: c.config.Token})
	if err != nil {
		return err
	}
	if err := c.writeRaw(data); err != nil {
		return err
	}

	c.mu.RLock()
	conn := c.conn
	c.mu.RUnlock()
	conn.SetReadDeadline(time.Now().Add(c.config.HandshakeTimeout))
	defer conn.SetReadDeadline(time.Time{})

	_, raw, err := conn.ReadMessage()
	if err != nil {
		return err
	}
	reply, err := parseReply(raw)
	if err != nil {
		return err
	}
	if reply.Type != protocol.TypeSessionStarted {
		return fmt.Errorf("unexpected resume reply %q", reply.Type)
	}
	return nil
}

func (c *Client) getState() ClientState {
	return ClientState(c.state.Load())
}

func (c *Client) setState(newState ClientState) {
	oldState := ClientState(c.state.Swap(int32(newState)))
	if oldState != newState && c.onStateChange != nil {
		c.onStateChange(oldState, newState)
	}
}

func (c *Client) compareAndSwapState(oldState, newState ClientState) bool {
	swapped := c.state.CompareAndSwap(int32(oldState), int32(newState))
	if swapped && c.onStateChange != nil {
		c.onStateChange(oldState, newState)
	}
	return swapped
}

// Reconnects 成功重连次数
func (c *Client) Reconnects() int {
	return int(c.reconnects.Load())
}

// GetStats 获取客户端统计信息
func (c *Client) GetStats() map[string]interface{} {
	return map[string]interface{}{
		"state":             c.getState().String(),
		"session_id":        c.SessionID(),
		"messages_sent":     c.messagesSent.Load(),
		"messages_received": c.messagesReceived.Load(),
		"reconnects":        c.reconnects.Load(),
	}
}
