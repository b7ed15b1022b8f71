package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"InterviewPulse/internal/analysis"
	"InterviewPulse/internal/questionbank"
)

var (
	ErrNotFound        = errors.New("snapshot not found")
	ErrCorruptSnapshot = errors.New("corrupt snapshot")
)

// Answer 已提交的回答
type Answer struct {
	Ordinal     int       `json:"ordinal"`
	Text        string    `json:"text"`
	SubmittedAt time.Time `json:"submitted_at"`
}

// Snapshot 会话快照，只包含聚合结果，不含逐帧数据
type Snapshot struct {
	SessionID    string                      `json:"session_id"`
	OwnerID      string                      `json:"owner_id"`
	Role         string                      `json:"role"`
	Sector       string                      `json:"sector,omitempty"`
	Questions    []questionbank.Question     `json:"questions"`
	CurrentIndex int                         `json:"current_index"`
	Answers      []Answer                    `json:"answers"`
	Timelines    []analysis.QuestionAnalysis `json:"timelines"`
	Status       string                      `json:"status"`
	StartedAt    time.Time                   `json:"started_at"`
	EndedAt      *time.Time                  `json:"ended_at,omitempty"`
	Analysis     *analysis.InterviewAnalysis `json:"analysis,omitempty"`
	Version      uint64                      `json:"version"`
	UpdatedAt    time.Time                   `json:"updated_at"`
}

// Clone 深拷贝
func (s Snapshot) Clone() Snapshot {
	out := s
	out.Questions = append([]questionbank.Question(nil), s.Questions...)
	out.Answers = append([]Answer(nil), s.Answers...)
	out.Timelines = make([]analysis.QuestionAnalysis, len(s.Timelines))
	for i, tl := range s.Timelines {
		out.Timelines[i] = tl.Clone()
	}
	if s.EndedAt != nil {
		e := *s.EndedAt
		out.EndedAt = &e
	}
	if s.Analysis != nil {
		a := s.Analysis.Clone()
		out.Analysis = &a
	}
	return out
}

const statusCompleted = "completed"

// Validate 检查快照基本一致性
func (s Snapshot) Validate() error {
	switch {
	case strings.TrimSpace(s.SessionID) == "":
		return fmt.Errorf("%w: missing session id", ErrCorruptSnapshot)
	case len(s.Questions) == 0:
		return fmt.Errorf("%w: session %s has no questions", ErrCorruptSnapshot, s.SessionID)
	case s.CurrentIndex < 0 || s.CurrentIndex > len(s.Questions):
		return fmt.Errorf("%w: session %s index %d out of range", ErrCorruptSnapshot, s.SessionID, s.CurrentIndex)
	case len(s.Answers) != s.CurrentIndex:
		return fmt.Errorf("%w: session %s has %d answers at index %d", ErrCorruptSnapshot, s.SessionID, len(s.Answers), s.CurrentIndex)
	case s.CurrentIndex == len(s.Questions) && s.Status != statusCompleted:
		return fmt.Errorf("%w: session %s passed its last question but is %q", ErrCorruptSnapshot, s.SessionID, s.Status)
	}
	return nil
}

// Summary 列表用的会话摘要
type Summary struct {
	SessionID      string     `json:"session_id"`
	OwnerID        string     `json:"owner_id"`
	Role           string     `json:"role"`
	Status         string     `json:"status"`
	TotalQuestions int        `json:"total_questions"`
	Answered       int        `json:"answered"`
	StartedAt      time.Time  `json:"started_at"`
	EndedAt        *time.Time `json:"ended_at,omitempty"`
	UpdatedAt      time.Time  `json:"updated_at"`
}

// Summarize 生成摘要
func (s Snapshot) Summarize() Summary {
	return Summary{
		SessionID:      s.SessionID,
		OwnerID:        s.OwnerID,
		Role:           s.Role,
		Status:         s.Status,
		TotalQuestions: len(s.Questions),
		Answered:       len(s.Answers),
		StartedAt:      s.StartedAt,
		EndedAt:        s.EndedAt,
		UpdatedAt:      s.UpdatedAt,
	}
}

// Store 快照存储
type Store interface {
	Save(ctx context.Context, snap Snapshot) error
	Load(ctx context.Context, sessionID string) (Snapshot, error)
	List(ctx context.Context, ownerID string) ([]Summary, error)
	Close() error
}

func encode(snap Snapshot) ([]byte, error) {
	if err := snap.Validate(); err != nil {
		return nil, err
	}
	return json.Marshal(snap)
}

func decode(sessionID string, data []byte) (Snapshot, error) {
	var snap Snapshot
	if err := json.Unmarshal(data, &snap); err != nil {
		return Snapshot{}, fmt.Errorf("%w: session %s: %v", ErrCorruptSnapshot, sessionID, err)
	}
	if snap.SessionID != sessionID {
		return Snapshot{}, fmt.Errorf("%w: document for %s carries id %q", ErrCorruptSnapshot, sessionID, snap.SessionID)
	}
	if err := snap.Validate(); err != nil {
		return Snapshot{}, err
	}
	return snap, nil
}
