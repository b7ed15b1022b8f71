package session

import (
	"time"

	"InterviewPulse/internal/analysis"
	"InterviewPulse/internal/store"
)

// Status 会话生命周期状态
type Status string

const (
	StatusCreated    Status = "created"
	StatusInProgress Status = "in_progress"
	StatusCompleted  Status = "completed"
)

// Answer 回答记录
type Answer = store.Answer

// Config 会话管理配置
type Config struct {
	DefaultQuestions     int           `mapstructure:"default_questions"`
	MaxQuestions         int           `mapstructure:"max_questions"`
	MaxActive            int           `mapstructure:"max_active"`
	IdleSealAfter        time.Duration `mapstructure:"idle_seal_after"`
	EvictAfter           time.Duration `mapstructure:"evict_after"`
	JanitorInterval      time.Duration `mapstructure:"janitor_interval"`
	PersistRetries       int           `mapstructure:"persist_retries"`
	PersistRetryInterval time.Duration `mapstructure:"persist_retry_interval"`
	PersistTimeout       time.Duration `mapstructure:"persist_timeout"`
}

// DefaultConfig 默认配置
func DefaultConfig() Config {
	return Config{
		DefaultQuestions:     5,
		MaxQuestions:         10,
		MaxActive:            1000,
		IdleSealAfter:        5 * time.Minute,
		EvictAfter:           30 * time.Minute,
		JanitorInterval:      30 * time.Second,
		PersistRetries:       3,
		PersistRetryInterval: 200 * time.Millisecond,
		PersistTimeout:       5 * time.Second,
	}
}

// SessionHandle 创建或恢复会话时返回给调用方的视图
type SessionHandle struct {
	SessionID       string   `json:"session_id"`
	OwnerID         string   `json:"owner_id"`
	Role            string   `json:"role"`
	Questions       []string `json:"questions"`
	CurrentQuestion int      `json:"current_question"`
	TotalQuestions  int      `json:"total_questions"`
	Status          Status   `json:"status"`
}

// CurrentQuestion 当前题目
type CurrentQuestion struct {
	Text    string `json:"question"`
	Ordinal int    `json:"question_index"`
	Total   int    `json:"total_questions"`
}

// SubmitResult 提交回答的结果
type SubmitResult struct {
	Ordinal     int                       `json:"question_index"`
	Analysis    analysis.QuestionAnalysis `json:"analysis"`
	NextOrdinal *int                      `json:"next_question_index"`
	Completed   bool                      `json:"completed"`
}

// FrameAck 帧处理回执
type FrameAck struct {
	Accepted   bool    `json:"accepted"`
	Ordinal    int     `json:"question_index"`
	Elapsed    float64 `json:"elapsed_time"`
	FrameCount int     `json:"frame_count"`
}

// SessionSummary 会话摘要
type SessionSummary = store.Summary

// Stats 运行统计
type Stats struct {
	InMemory int   `json:"in_memory"`
	Active   int64 `json:"active"`
	Dirty    int   `json:"dirty"`
}
