package session

import (
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"InterviewPulse/internal/analysis"
	"InterviewPulse/internal/questionbank"
	"InterviewPulse/internal/store"
)

// interviewSession 会话的可变状态，所有字段由 mu 保护（persistMu/savedVersion/dirty 除外）
type interviewSession struct {
	mu sync.Mutex

	id        string
	owner     string
	role      string
	sector    string
	questions []questionbank.Question

	status            Status
	index             int
	served            int
	answers           []Answer
	sealed            []analysis.QuestionAnalysis
	timeline          *analysis.Timeline
	questionStartedAt time.Time
	startedAt         time.Time
	endedAt           *time.Time
	lastActivity      time.Time
	result            *analysis.InterviewAnalysis
	version           uint64
	evicted           bool

	persistMu    sync.Mutex
	savedVersion uint64
	dirty        atomic.Bool
}

func newInterviewSession(id, owner, role, sector string, questions []questionbank.Question, now time.Time) *interviewSession {
	return &interviewSession{
		id:                id,
		owner:             owner,
		role:              role,
		sector:            sector,
		questions:         questions,
		status:            StatusCreated,
		served:            -1,
		timeline:          analysis.NewTimeline(0),
		questionStartedAt: now,
		startedAt:         now,
		lastActivity:      now,
	}
}

// restoreSession 从快照重建；进行中题目的逐帧数据不会持久化，恢复后从空时间线开始
func restoreSession(snap store.Snapshot, now time.Time) *interviewSession {
	s := &interviewSession{
		id:                snap.SessionID,
		owner:             snap.OwnerID,
		role:              snap.Role,
		sector:            snap.Sector,
		questions:         append([]questionbank.Question(nil), snap.Questions...),
		status:            Status(snap.Status),
		index:             snap.CurrentIndex,
		served:            snap.CurrentIndex,
		answers:           append([]Answer(nil), snap.Answers...),
		questionStartedAt: now,
		startedAt:         snap.StartedAt,
		lastActivity:      now,
		version:           snap.Version,
		savedVersion:      snap.Version,
	}
	for _, tl := range snap.Timelines {
		s.sealed = append(s.sealed, tl.Clone())
	}
	if snap.EndedAt != nil {
		e := *snap.EndedAt
		s.endedAt = &e
	}
	if snap.Analysis != nil {
		a := snap.Analysis.Clone()
		s.result = &a
	}
	if s.status != StatusCompleted {
		s.status = StatusInProgress
		s.timeline = analysis.NewTimeline(s.index)
	}
	return s
}

// checkIndex 进行中的会话必须停在某道题上
func (s *interviewSession) checkIndex() error {
	if s.index < 0 || s.index >= len(s.questions) {
		return fmt.Errorf("%w: session %s index %d of %d questions", store.ErrCorruptSnapshot, s.id, s.index, len(s.questions))
	}
	return nil
}

func (s *interviewSession) touch(now time.Time) {
	if now.After(s.lastActivity) {
		s.lastActivity = now
	}
}

func (s *interviewSession) questionTexts() []string {
	out := make([]string, len(s.questions))
	for i, q := range s.questions {
		out[i] = q.Text
	}
	return out
}

func (s *interviewSession) handle() SessionHandle {
	return SessionHandle{
		SessionID:       s.id,
		OwnerID:         s.owner,
		Role:            s.role,
		Questions:       s.questionTexts(),
		CurrentQuestion: s.index,
		TotalQuestions:  len(s.questions),
		Status:          s.status,
	}
}

// complete 进入终态并计算整场分析
func (s *interviewSession) complete(now time.Time, policy analysis.InsightPolicy) {
	s.status = StatusCompleted
	end := now
	s.endedAt = &end
	s.timeline = nil
	a := analysis.BuildInterviewAnalysis(s.id, s.questionTexts(), s.sealed, policy)
	s.result = &a
}

func (s *interviewSession) snapshot(now time.Time) store.Snapshot {
	snap := store.Snapshot{
		SessionID:    s.id,
		OwnerID:      s.owner,
		Role:         s.role,
		Sector:       s.sector,
		Questions:    append([]questionbank.Question(nil), s.questions...),
		CurrentIndex: s.index,
		Answers:      append([]Answer(nil), s.answers...),
		Timelines:    make([]analysis.QuestionAnalysis, len(s.sealed)),
		Status:       string(s.status),
		StartedAt:    s.startedAt,
		Version:      s.version,
		UpdatedAt:    now,
	}
	for i, tl := range s.sealed {
		snap.Timelines[i] = tl.Clone()
	}
	if s.endedAt != nil {
		e := *s.endedAt
		snap.EndedAt = &e
	}
	if s.result != nil {
		a := s.result.Clone()
		snap.Analysis = &a
	}
	return snap
}

func (s *interviewSession) summary() SessionSummary {
	sum := store.Summary{
		SessionID:      s.id,
		OwnerID:        s.owner,
		Role:           s.role,
		Status:         string(s.status),
		TotalQuestions: len(s.questions),
		Answered:       len(s.answers),
		StartedAt:      s.startedAt,
		UpdatedAt:      s.lastActivity,
	}
	if s.endedAt != nil {
		e := *s.endedAt
		sum.EndedAt = &e
	}
	return sum
}
