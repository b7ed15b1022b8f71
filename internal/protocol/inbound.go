package protocol

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
)

// MaxMessageSize 单条消息上限，帧图像以 base64 传输
const MaxMessageSize = 4 * 1024 * 1024

var ErrUnknownType = errors.New("unknown message type")

// ValidationError 消息缺少字段或字段非法，会回送给客户端
type ValidationError struct {
	Type    MessageType
	Message string
}

func (e *ValidationError) Error() string {
	if e.Type == "" {
		return e.Message
	}
	return fmt.Sprintf("%s: %s", e.Type, e.Message)
}

func invalid(t MessageType, format string, args ...interface{}) error {
	return &ValidationError{Type: t, Message: fmt.Sprintf(format, args...)}
}

// Inbound 已解码并校验的客户端消息
type Inbound interface {
	Kind() MessageType
}

// StartInterview 开始面试
type StartInterview struct {
	Role         string `json:"role"`
	NumQuestions int    `json:"num_questions"`
	Token        string `json:"token"`
	Sector       string `json:"sector,omitempty"`
}

func (StartInterview) Kind() MessageType { return TypeStartInterview }

// ResumeInterview 断线后恢复会话
type ResumeInterview struct {
	SessionID string `json:"session_id"`
	Token     string `json:"token"`
}

func (ResumeInterview) Kind() MessageType { return TypeResumeInterview }

// Frame 一帧摄像头图像
type Frame struct {
	ImageData string `json:"image_data"`
}

func (Frame) Kind() MessageType { return TypeFrame }

// EndQuestion 结束当前题
type EndQuestion struct {
	AnswerText *string `json:"answer_text"`
}

func (EndQuestion) Kind() MessageType { return TypeEndQuestion }

// Answer 回答文本
func (e EndQuestion) Answer() string {
	if e.AnswerText == nil {
		return ""
	}
	return *e.AnswerText
}

// EndInterview 结束面试
type EndInterview struct{}

func (EndInterview) Kind() MessageType { return TypeEndInterview }

// Decode 解析并校验客户端消息；未知类型返回 ErrUnknownType，其余问题返回 *ValidationError
func Decode(data []byte) (Inbound, error) {
	if len(data) > MaxMessageSize {
		return nil, invalid("", "message too large")
	}

	var env struct {
		Type MessageType `json:"type"`
	}
	if err := json.Unmarshal(data, &env); err != nil {
		return nil, invalid("", "invalid JSON message")
	}
	if env.Type == "" {
		return nil, invalid("", "missing message type")
	}

	switch env.Type {
	case TypeStartInterview:
		var m StartInterview
		if err := json.Unmarshal(data, &m); err != nil {
			return nil, invalid(env.Type, "malformed fields")
		}
		m.Role = strings.TrimSpace(m.Role)
		if m.Role == "" {
			return nil, invalid(env.Type, "role is required")
		}
		if m.NumQuestions < 0 {
			return nil, invalid(env.Type, "num_questions must be positive")
		}
		if strings.TrimSpace(m.Token) == "" {
			return nil, invalid(env.Type, "token is required")
		}
		return m, nil

	case TypeResumeInterview:
		var m ResumeInterview
		if err := json.Unmarshal(data, &m); err != nil {
			return nil, invalid(env.Type, "malformed fields")
		}
		if strings.TrimSpace(m.SessionID) == "" {
			return nil, invalid(env.Type, "session_id is required")
		}
		if strings.TrimSpace(m.Token) == "" {
			return nil, invalid(env.Type, "token is required")
		}
		return m, nil

	case TypeFrame:
		var m Frame
		if err := json.Unmarshal(data, &m); err != nil {
			return nil, invalid(env.Type, "malformed fields")
		}
		if strings.TrimSpace(m.ImageData) == "" {
			return nil, invalid(env.Type, "image_data is required")
		}
		return m, nil

	case TypeEndQuestion:
		var m EndQuestion
		if err := json.Unmarshal(data, &m); err != nil {
			return nil, invalid(env.Type, "malformed fields")
		}
		if m.AnswerText == nil {
			return nil, invalid(env.Type, "answer_text is required")
		}
		return m, nil

	case TypeEndInterview:
		return EndInterview{}, nil

	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownType, env.Type)
	}
}

// Encode 序列化客户端消息，补上 type 字段
func Encode(m Inbound) ([]byte, error) {
	body, err := json.Marshal(m)
	if err != nil {
		return nil, err
	}
	fields := map[string]json.RawMessage{}
	if err := json.Unmarshal(body, &fields); err != nil {
		return nil, err
	}
	kind, _ := json.Marshal(m.Kind())
	fields["type"] = kind
	return json.Marshal(fields)
}
