package protocol

import (
	"InterviewPulse/internal/analysis"
	"InterviewPulse/internal/emotion"
)

// SessionStarted 会话已开始（或已恢复）
type SessionStarted struct {
	Type            MessageType `json:"type"`
	SessionID       string      `json:"session_id"`
	Questions       []string    `json:"questions"`
	CurrentQuestion int         `json:"current_question"`
	TotalQuestions  int         `json:"total_questions"`
}

// FrameProcessed 帧处理结果
type FrameProcessed struct {
	Type        MessageType     `json:"type"`
	Results     []emotion.Score `json:"results"`
	ElapsedTime float64         `json:"elapsed_time"`
	FrameCount  int             `json:"frame_count"`
}

// QuestionCompleted 单题完成
type QuestionCompleted struct {
	Type              MessageType        `json:"type"`
	QuestionIndex     int                `json:"question_index"`
	EmotionAnalysis   analysis.Aggregate `json:"emotion_analysis"`
	Insights          []string           `json:"insights"`
	NextQuestionIndex *int               `json:"next_question_index"`
}

// InterviewCompleted 面试完成
type InterviewCompleted struct {
	Type      MessageType                `json:"type"`
	SessionID string                     `json:"session_id"`
	Analysis  analysis.InterviewAnalysis `json:"analysis"`
}

// Error 错误响应
type Error struct {
	Type    MessageType `json:"type"`
	Message string      `json:"message"`
}

// NewSessionStarted 构造 session_started
func NewSessionStarted(sessionID string, questions []string, current int) SessionStarted {
	if questions == nil {
		questions = []string{}
	}
	return SessionStarted{
		Type:            TypeSessionStarted,
		SessionID:       sessionID,
		Questions:       questions,
		CurrentQuestion: current,
		TotalQuestions:  len(questions),
	}
}

// NewFrameProcessed 构造 frame_processed，结果按置信度降序
func NewFrameProcessed(emotions map[emotion.Label]float64, elapsed float64, frameCount int) FrameProcessed {
	return FrameProcessed{
		Type:        TypeFrameProcessed,
		Results:     emotion.Ranked(emotions),
		ElapsedTime: elapsed,
		FrameCount:  frameCount,
	}
}

// NewQuestionCompleted 构造 question_completed
func NewQuestionCompleted(qa analysis.QuestionAnalysis, next *int) QuestionCompleted {
	insights := qa.Insights
	if insights == nil {
		insights = []string{}
	}
	return QuestionCompleted{
		Type:              TypeQuestionCompleted,
		QuestionIndex:     qa.Ordinal,
		EmotionAnalysis:   qa.Aggregate,
		Insights:          insights,
		NextQuestionIndex: next,
	}
}

// NewInterviewCompleted 构造 interview_completed
func NewInterviewCompleted(sessionID string, a analysis.InterviewAnalysis) InterviewCompleted {
	return InterviewCompleted{Type: TypeInterviewCompleted, SessionID: sessionID, Analysis: a}
}

// NewError 构造 error
func NewError(message string) Error {
	return Error{Type: TypeError, Message: message}
}
