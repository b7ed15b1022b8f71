package session

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"golang.org/x/sync/singleflight"

	"InterviewPulse/internal/analysis"
	"InterviewPulse/internal/emotion"
	"InterviewPulse/internal/logger"
	"InterviewPulse/internal/questionbank"
	"InterviewPulse/internal/store"
)

// Manager 管理所有面试会话；会话索引用读写锁保护，每个会话有独立互斥锁
type Manager struct {
	cfg   Config
	bank  *questionbank.Bank
	store store.Store
	log   *logrus.Entry

	now   func() time.Time
	newID func() string

	rngMu sync.Mutex
	rng   *rand.Rand

	policy atomic.Pointer[analysis.InsightPolicy]

	mu       sync.RWMutex
	sessions map[string]*interviewSession
	active   atomic.Int64
	restore  singleflight.Group
}

// Option Manager 可选项
type Option func(*Manager)

// WithClock 替换时钟，用于测试
func WithClock(now func() time.Time) Option {
	return func(m *Manager) { m.now = now }
}

// WithIDGenerator 替换会话 id 生成器
func WithIDGenerator(f func() string) Option {
	return func(m *Manager) { m.newID = f }
}

// WithRand 固定选题随机源
func WithRand(r *rand.Rand) Option {
	return func(m *Manager) { m.rng = r }
}

// WithInsightPolicy 设置洞察阈值
func WithInsightPolicy(p analysis.InsightPolicy) Option {
	return func(m *Manager) { m.policy.Store(&p) }
}

// NewManager 创建会话管理器，st 为 nil 时使用内存存储
func NewManager(bank *questionbank.Bank, st store.Store, cfg Config, opts ...Option) *Manager {
	if bank == nil {
		bank = questionbank.Default()
	}
	if st == nil {
		st = store.NewMemoryStore()
	}
	def := DefaultConfig()
	if cfg.DefaultQuestions <= 0 {
		cfg.DefaultQuestions = def.DefaultQuestions
	}
	if cfg.MaxQuestions <= 0 {
		cfg.MaxQuestions = def.MaxQuestions
	}
	if cfg.PersistTimeout <= 0 {
		cfg.PersistTimeout = def.PersistTimeout
	}
	if cfg.PersistRetryInterval <= 0 {
		cfg.PersistRetryInterval = def.PersistRetryInterval
	}
	if cfg.JanitorInterval <= 0 {
		cfg.JanitorInterval = def.JanitorInterval
	}

	m := &Manager{
		cfg:      cfg,
		bank:     bank,
		store:    st,
		log:      logger.WithModule("session"),
		now:      time.Now,
		newID:    uuid.NewString,
		sessions: make(map[string]*interviewSession),
	}
	p := analysis.DefaultInsightPolicy()
	m.policy.Store(&p)
	for _, opt := range opts {
		opt(m)
	}
	if m.rng == nil {
		m.rng = rand.New(rand.NewSource(m.now().UnixNano()))
	}
	return m
}

// SetInsightPolicy 热更新洞察阈值，只影响之后封存的题目
func (m *Manager) SetInsightPolicy(p analysis.InsightPolicy) {
	m.policy.Store(&p)
	m.log.WithField("policy", p).Info("insight policy updated")
}

// InsightPolicy 当前洞察阈值
func (m *Manager) InsightPolicy() analysis.InsightPolicy {
	return *m.policy.Load()
}

// CreateSession 选题并创建会话，返回时状态已是 InProgress
func (m *Manager) CreateSession(ctx context.Context, ownerID, role string, numQuestions int, sector string) (SessionHandle, error) {
	role = strings.TrimSpace(role)
	if role == "" {
		return SessionHandle{}, fmt.Errorf("%w: role is required", ErrInvalidArgument)
	}
	if numQuestions == 0 {
		numQuestions = m.cfg.DefaultQuestions
	}
	if numQuestions < 1 || numQuestions > m.cfg.MaxQuestions {
		return SessionHandle{}, fmt.Errorf("%w: num_questions must be between 1 and %d", ErrInvalidArgument, m.cfg.MaxQuestions)
	}

	if err := m.reserve(); err != nil {
		return SessionHandle{}, err
	}

	m.rngMu.Lock()
	questions, err := m.bank.Select(role, sector, numQuestions, m.rng)
	m.rngMu.Unlock()
	if err != nil {
		m.active.Add(-1)
		return SessionHandle{}, err
	}

	now := m.now()
	s := newInterviewSession(m.newID(), ownerID, role, strings.TrimSpace(sector), questions, now)

	s.mu.Lock()
	// 开场题随创建响应一起下发
	s.status = StatusInProgress
	s.served = 0
	s.version = 1
	h := s.handle()
	snap := s.snapshot(now)
	s.mu.Unlock()

	m.mu.Lock()
	m.sessions[s.id] = s
	m.mu.Unlock()

	m.log.WithFields(logrus.Fields{
		"session_id": s.id,
		"owner_id":   ownerID,
		"role":       role,
		"questions":  len(questions),
	}).Info("interview session created")

	m.persist(ctx, s, snap)
	return h, nil
}

func (m *Manager) reserve() error {
	if m.cfg.MaxActive <= 0 {
		m.active.Add(1)
		return nil
	}
	for {
		n := m.active.Load()
		if n >= int64(m.cfg.MaxActive) {
			return fmt.Errorf("%w: limit %d", ErrCapacityExceeded, m.cfg.MaxActive)
		}
		if m.active.CompareAndSwap(n, n+1) {
			return nil
		}
	}
}

// GetCurrentQuestion 返回当前题目并标记为已下发
func (m *Manager) GetCurrentQuestion(ctx context.Context, sessionID string) (CurrentQuestion, error) {
	s, err := m.lock(ctx, sessionID)
	if err != nil {
		return CurrentQuestion{}, err
	}
	defer s.mu.Unlock()

	if s.status == StatusCompleted {
		return CurrentQuestion{}, ErrSessionCompleted
	}
	if err := s.checkIndex(); err != nil {
		return CurrentQuestion{}, err
	}
	if s.index > s.served {
		s.served = s.index
	}
	s.touch(m.now())
	return CurrentQuestion{
		Text:    s.questions[s.index].Text,
		Ordinal: s.index,
		Total:   len(s.questions),
	}, nil
}

// SubmitAnswer 封存当前题的时间线、记录回答并前进；precomputed 仅在没有观察到帧时采用
func (m *Manager) SubmitAnswer(ctx context.Context, sessionID string, ordinal int, text string, precomputed *analysis.Aggregate) (SubmitResult, error) {
	s, err := m.lock(ctx, sessionID)
	if err != nil {
		return SubmitResult{}, err
	}

	if s.status == StatusCompleted {
		s.mu.Unlock()
		return SubmitResult{}, ErrSessionCompleted
	}
	if ordinal != s.index {
		s.mu.Unlock()
		return SubmitResult{}, &OrdinalMismatchError{Expected: s.index, Got: ordinal}
	}
	if ordinal > s.served {
		s.mu.Unlock()
		return SubmitResult{}, ErrQuestionNotServed
	}

	now := m.now()
	policy := m.InsightPolicy()
	agg := s.timeline.SealWith(precomputed)
	qa := analysis.AnalyzeQuestion(ordinal, agg, policy)

	s.sealed = append(s.sealed, qa)
	s.answers = append(s.answers, Answer{Ordinal: ordinal, Text: text, SubmittedAt: now})
	s.index++

	res := SubmitResult{Ordinal: ordinal, Analysis: qa.Clone()}
	if s.index >= len(s.questions) {
		s.complete(now, policy)
		m.active.Add(-1)
		res.Completed = true
	} else {
		next := s.index
		res.NextOrdinal = &next
		s.timeline = analysis.NewTimeline(next)
		s.questionStartedAt = now
	}
	s.touch(now)
	s.version++
	snap := s.snapshot(now)
	s.mu.Unlock()

	m.log.WithFields(logrus.Fields{
		"session_id":     sessionID,
		"ordinal":        ordinal,
		"detection_rate": agg.DetectionRate,
		"completed":      res.Completed,
	}).Info("answer submitted")

	m.persist(ctx, s, snap)
	return res, nil
}

// RecordFrame 把已分类的帧折叠进当前题的时间线；会话不在进行中、题号不符或时间线已封存时丢弃
func (m *Manager) RecordFrame(ctx context.Context, sessionID string, frame emotion.FrameResult) (FrameAck, error) {
	s, err := m.lock(ctx, sessionID)
	if err != nil {
		return FrameAck{}, err
	}
	defer s.mu.Unlock()

	now := m.now()
	ack := FrameAck{Ordinal: frame.Ordinal}
	if s.status != StatusInProgress || frame.Ordinal != s.index || s.timeline.Sealed() {
		m.log.WithFields(logrus.Fields{
			"session_id": sessionID,
			"status":     s.status,
			"ordinal":    frame.Ordinal,
			"current":    s.index,
		}).Debug("frame dropped")
		if s.timeline != nil && frame.Ordinal == s.index {
			ack.FrameCount = s.timeline.Observed()
		}
		return ack, nil
	}

	received := frame.ReceivedAt
	if received.IsZero() {
		received = now
	}
	elapsed := received.Sub(s.questionStartedAt).Seconds()
	if elapsed < 0 {
		elapsed = 0
	}
	frame.Timestamp = elapsed
	s.timeline.Fold(frame)
	s.touch(now)

	ack.Accepted = true
	ack.Elapsed = elapsed
	ack.FrameCount = s.timeline.Observed()
	return ack, nil
}

// EndSession 结束面试；进行中的会话提前完成，已完成的直接返回分析
func (m *Manager) EndSession(ctx context.Context, sessionID string) (analysis.InterviewAnalysis, error) {
	s, err := m.lock(ctx, sessionID)
	if err != nil {
		return analysis.InterviewAnalysis{}, err
	}

	if s.status == StatusCompleted {
		s.mu.Unlock()
		return m.GetInterviewAnalysis(ctx, sessionID)
	}

	now := m.now()
	policy := m.InsightPolicy()
	// 当前题已有帧时一并计入分析
	if s.timeline != nil && s.timeline.Observed() > 0 {
		s.sealed = append(s.sealed, analysis.AnalyzeQuestion(s.index, s.timeline.Seal(), policy))
	}
	m.active.Add(-1)
	s.complete(now, policy)
	s.touch(now)
	s.version++
	out := s.result.Clone()
	snap := s.snapshot(now)
	s.mu.Unlock()

	m.log.WithFields(logrus.Fields{
		"session_id": sessionID,
		"answered":   len(snap.Answers),
		"total":      len(snap.Questions),
	}).Info("interview ended")

	m.persist(ctx, s, snap)
	return out, nil
}

// GetInterviewAnalysis 返回整场分析；结果计算一次后缓存
func (m *Manager) GetInterviewAnalysis(ctx context.Context, sessionID string) (analysis.InterviewAnalysis, error) {
	s, err := m.lock(ctx, sessionID)
	if err != nil {
		return analysis.InterviewAnalysis{}, err
	}

	if s.status != StatusCompleted {
		s.mu.Unlock()
		return analysis.InterviewAnalysis{}, ErrSessionNotCompleted
	}
	if s.result != nil {
		out := s.result.Clone()
		s.mu.Unlock()
		return out, nil
	}

	// 旧快照没有缓存分析时补算一次
	now := m.now()
	a := analysis.BuildInterviewAnalysis(s.id, s.questionTexts(), s.sealed, m.InsightPolicy())
	s.result = &a
	s.version++
	out := a.Clone()
	snap := s.snapshot(now)
	s.mu.Unlock()

	m.persist(ctx, s, snap)
	return out, nil
}

// ListSessions 合并内存与存储中的会话，最新的在前
func (m *Manager) ListSessions(ctx context.Context, ownerID string) ([]SessionSummary, error) {
	byID := make(map[string]SessionSummary)
	for _, s := range m.snapshotIndex() {
		s.mu.Lock()
		if s.owner == ownerID && !s.evicted {
			byID[s.id] = s.summary()
		}
		s.mu.Unlock()
	}

	stored, err := m.store.List(ctx, ownerID)
	if err != nil {
		m.log.WithError(err).WithField("owner_id", ownerID).Warn("list stored sessions failed")
	}
	for _, sum := range stored {
		if _, ok := byID[sum.SessionID]; !ok {
			byID[sum.SessionID] = sum
		}
	}

	out := make([]SessionSummary, 0, len(byID))
	for _, sum := range byID {
		out = append(out, sum)
	}
	store.SortSummaries(out)
	return out, nil
}

// Resume 恢复已有会话供断线重连使用；ownerID 非空时必须匹配
func (m *Manager) Resume(ctx context.Context, sessionID, ownerID string) (SessionHandle, error) {
	s, err := m.lock(ctx, sessionID)
	if err != nil {
		return SessionHandle{}, err
	}
	defer s.mu.Unlock()

	if ownerID != "" && s.owner != ownerID {
		return SessionHandle{}, ErrSessionNotFound
	}
	if s.status == StatusCompleted {
		return SessionHandle{}, ErrSessionCompleted
	}
	if err := s.checkIndex(); err != nil {
		return SessionHandle{}, err
	}
	if s.index > s.served {
		s.served = s.index
	}
	s.touch(m.now())
	m.log.WithField("session_id", sessionID).Info("interview session resumed")
	return s.handle(), nil
}

// Stats 返回运行统计
func (m *Manager) Stats() Stats {
	idx := m.snapshotIndex()
	st := Stats{InMemory: len(idx), Active: m.active.Load()}
	for _, s := range idx {
		if s.dirty.Load() {
			st.Dirty++
		}
	}
	return st
}

func (m *Manager) snapshotIndex() []*interviewSession {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]*interviewSession, 0, len(m.sessions))
	for _, s := range m.sessions {
		out = append(out, s)
	}
	return out
}

// lock 取得会话并加锁；会话已被驱逐时从存储恢复
func (m *Manager) lock(ctx context.Context, sessionID string) (*interviewSession, error) {
	if sessionID == "" {
		return nil, ErrSessionNotFound
	}
	for {
		s, err := m.lookup(ctx, sessionID)
		if err != nil {
			return nil, err
		}
		s.mu.Lock()
		if !s.evicted {
			return s, nil
		}
		s.mu.Unlock()
	}
}

func (m *Manager) lookup(ctx context.Context, sessionID string) (*interviewSession, error) {
	m.mu.RLock()
	s := m.sessions[sessionID]
	m.mu.RUnlock()
	if s != nil {
		return s, nil
	}

	v, err, _ := m.restore.Do(sessionID, func() (interface{}, error) {
		m.mu.RLock()
		existing := m.sessions[sessionID]
		m.mu.RUnlock()
		if existing != nil {
			return existing, nil
		}

		snap, err := m.store.Load(ctx, sessionID)
		if err != nil {
			if errors.Is(err, store.ErrNotFound) {
				return nil, ErrSessionNotFound
			}
			m.log.WithError(err).WithField("session_id", sessionID).Error("restore session failed")
			return nil, fmt.Errorf("restore session %s: %w", sessionID, err)
		}

		restored := restoreSession(snap, m.now())
		m.mu.Lock()
		defer m.mu.Unlock()
		if existing := m.sessions[sessionID]; existing != nil {
			return existing, nil
		}
		m.sessions[sessionID] = restored
		if restored.status != StatusCompleted {
			m.active.Add(1)
		}
		m.log.WithFields(logrus.Fields{
			"session_id": sessionID,
			"status":     restored.status,
			"index":      restored.index,
		}).Info("session restored from store")
		return restored, nil
	})
	if err != nil {
		return nil, err
	}
	return v.(*interviewSession), nil
}
