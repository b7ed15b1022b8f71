package protocol

// MessageType 消息类型
type MessageType string

const (
	// 客户端请求
	TypeStartInterview  MessageType = "start_interview"
	TypeResumeInterview MessageType = "resume_interview"
	TypeFrame           MessageType = "frame"
	TypeEndQuestion     MessageType = "end_question"
	TypeEndInterview    MessageType = "end_interview"

	// 服务端响应
	TypeSessionStarted     MessageType = "session_started"
	TypeFrameProcessed     MessageType = "frame_processed"
	TypeQuestionCompleted  MessageType = "question_completed"
	TypeInterviewCompleted MessageType = "interview_completed"
	TypeError              MessageType = "error"
)

func (t MessageType) String() string {
	return string(t)
}

// IsRequest 是否为客户端请求类型
func (t MessageType) IsRequest() bool {
	switch t {
	case TypeStartInterview, TypeResumeInterview, TypeFrame, TypeEndQuestion, TypeEndInterview:
		return true
	default:
		return false
	}
}

// IsResponse 是否为服务端响应类型
func (t MessageType) IsResponse() bool {
	switch t {
	case TypeSessionStarted, TypeFrameProcessed, TypeQuestionCompleted, TypeInterviewCompleted, TypeError:
		return true
	default:
		return false
	}
}

// RequiresSession 是否需要已绑定的会话
func (t MessageType) RequiresSession() bool {
	switch t {
	case TypeFrame, TypeEndQuestion, TypeEndInterview:
		return true
	default:
		return false
	}
}
