package session

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math/rand"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"InterviewPulse/internal/analysis"
	"InterviewPulse/internal/emotion"
	"InterviewPulse/internal/questionbank"
	"InterviewPulse/internal/store"
)

type fakeClock struct {
	mu sync.Mutex
	t  time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{t: time.Date(2026, 5, 4, 9, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.t = c.t.Add(d)
	c.mu.Unlock()
}

// flakyStore 前 failures 次 Save 失败
type flakyStore struct {
	*store.MemoryStore
	failures atomic.Int32
	saves    atomic.Int32
}

func (f *flakyStore) Save(ctx context.Context, snap store.Snapshot) error {
	f.saves.Add(1)
	if f.failures.Load() > 0 {
		f.failures.Add(-1)
		return errors.New("disk unavailable")
	}
	return f.MemoryStore.Save(ctx, snap)
}

func testConfig() Config {
	cfg := DefaultConfig()
	cfg.PersistRetries = 1
	cfg.PersistRetryInterval = time.Millisecond
	return cfg
}

func newTestManager(t *testing.T, st store.Store, cfg Config) (*Manager, *fakeClock) {
	t.Helper()
	clock := newFakeClock()
	var seq atomic.Int64
	m := NewManager(questionbank.Default(), st, cfg,
		WithClock(clock.Now),
		WithRand(rand.New(rand.NewSource(42))),
		WithIDGenerator(func() string { return fmt.Sprintf("sess-%d", seq.Add(1)) }),
	)
	return m, clock
}

func frameOf(ordinal int, emotions map[emotion.Label]float64) emotion.FrameResult {
	return emotion.FrameResult{Ordinal: ordinal, Emotions: emotions}
}

func happy(ordinal int) emotion.FrameResult {
	return frameOf(ordinal, map[emotion.Label]float64{emotion.Happy: 0.9})
}

func TestCreateSession(t *testing.T) {
	m, _ := newTestManager(t, nil, testConfig())
	ctx := context.Background()

	h, err := m.CreateSession(ctx, "alice", "Software Engineer", 3, "")
	require.NoError(t, err)
	assert.Len(t, h.Questions, 3)
	assert.Equal(t, 3, h.TotalQuestions)
	assert.Equal(t, questionbank.DefaultIntro, h.Questions[0])
	assert.Equal(t, 0, h.CurrentQuestion)
	assert.Equal(t, StatusInProgress, h.Status)

	q, err := m.GetCurrentQuestion(ctx, h.SessionID)
	require.NoError(t, err)
	assert.Equal(t, CurrentQuestion{Text: questionbank.DefaultIntro, Ordinal: 0, Total: 3}, q)

	h, err = m.CreateSession(ctx, "alice", "Software Engineer", 0, "")
	require.NoError(t, err)
	assert.Equal(t, DefaultConfig().DefaultQuestions, h.TotalQuestions)
}

func TestCreateSessionValidation(t *testing.T) {
	m, _ := newTestManager(t, nil, testConfig())
	ctx := context.Background()

	_, err := m.CreateSession(ctx, "alice", "", 3, "")
	assert.ErrorIs(t, err, ErrInvalidArgument)
	_, err = m.CreateSession(ctx, "alice", "Software Engineer", 11, "")
	assert.ErrorIs(t, err, ErrInvalidArgument)
	_, err = m.CreateSession(ctx, "alice", "Software Engineer", -1, "")
	assert.ErrorIs(t, err, ErrInvalidArgument)

	empty := NewManager(&questionbank.Bank{Intro: "Intro?"}, nil, testConfig())
	_, err = empty.CreateSession(ctx, "alice", "Astronaut", 3, "")
	assert.ErrorIs(t, err, ErrInvalidRole)
	assert.Zero(t, empty.Stats().Active)
}

func TestHappyFramesProduceConfidentAggregate(t *testing.T) {
	m, clock := newTestManager(t, nil, testConfig())
	ctx := context.Background()
	h, err := m.CreateSession(ctx, "alice", "Software Engineer", 3, "")
	require.NoError(t, err)

	for i := 0; i < 5; i++ {
		clock.Advance(200 * time.Millisecond)
		ack, err := m.RecordFrame(ctx, h.SessionID, happy(0))
		require.NoError(t, err)
		assert.True(t, ack.Accepted)
		assert.Equal(t, i+1, ack.FrameCount)
		assert.InDelta(t, float64(i+1)*0.2, ack.Elapsed, 1e-9)
	}

	res, err := m.SubmitAnswer(ctx, h.SessionID, 0, "I am a backend engineer.", nil)
	require.NoError(t, err)
	agg := res.Analysis.Aggregate
	require.NotNil(t, agg.DominantEmotion)
	assert.Equal(t, emotion.Happy, *agg.DominantEmotion)
	assert.Equal(t, 1.0, agg.DetectionRate)
	assert.GreaterOrEqual(t, agg.PositiveRatio, 0.9)
	assert.Equal(t, 1.0, agg.ConfidenceScore)
	require.NotNil(t, res.NextOrdinal)
	assert.Equal(t, 1, *res.NextOrdinal)
	assert.False(t, res.Completed)
}

func TestNoFramesYieldsNoFaceInsights(t *testing.T) {
	m, _ := newTestManager(t, nil, testConfig())
	ctx := context.Background()
	h, err := m.CreateSession(ctx, "alice", "Software Engineer", 3, "")
	require.NoError(t, err)

	res, err := m.SubmitAnswer(ctx, h.SessionID, 0, "answer", nil)
	require.NoError(t, err)
	agg := res.Analysis.Aggregate
	assert.Zero(t, agg.DetectionRate)
	assert.Nil(t, agg.DominantEmotion)
	assert.Contains(t, res.Analysis.Insights, analysis.InsightNoFace)
	assert.NotContains(t, res.Analysis.Insights, analysis.InsightPositive)
	assert.NotContains(t, res.Analysis.Insights, analysis.InsightNegative)
	assert.NotContains(t, res.Analysis.Insights, analysis.InsightMorePositive)
}

func TestOrdinalMismatchLeavesStateUnchanged(t *testing.T) {
	m, _ := newTestManager(t, nil, testConfig())
	ctx := context.Background()
	h, err := m.CreateSession(ctx, "alice", "Software Engineer", 3, "")
	require.NoError(t, err)
	_, err = m.RecordFrame(ctx, h.SessionID, happy(0))
	require.NoError(t, err)

	_, err = m.SubmitAnswer(ctx, h.SessionID, 2, "too early", nil)
	require.ErrorIs(t, err, ErrOrdinalMismatch)
	var mismatch *OrdinalMismatchError
	require.True(t, errors.As(err, &mismatch))
	assert.Equal(t, 0, mismatch.Expected)
	assert.Equal(t, 2, mismatch.Got)

	q, err := m.GetCurrentQuestion(ctx, h.SessionID)
	require.NoError(t, err)
	assert.Equal(t, 0, q.Ordinal)

	ack, err := m.RecordFrame(ctx, h.SessionID, happy(0))
	require.NoError(t, err)
	assert.True(t, ack.Accepted)
	assert.Equal(t, 2, ack.FrameCount)
}

func TestSubmitRequiresServedQuestion(t *testing.T) {
	m, _ := newTestManager(t, nil, testConfig())
	ctx := context.Background()
	h, err := m.CreateSession(ctx, "alice", "Software Engineer", 3, "")
	require.NoError(t, err)

	_, err = m.SubmitAnswer(ctx, h.SessionID, 0, "first", nil)
	require.NoError(t, err)

	_, err = m.SubmitAnswer(ctx, h.SessionID, 1, "blind", nil)
	assert.ErrorIs(t, err, ErrQuestionNotServed)

	_, err = m.GetCurrentQuestion(ctx, h.SessionID)
	require.NoError(t, err)
	_, err = m.SubmitAnswer(ctx, h.SessionID, 1, "second", nil)
	assert.NoError(t, err)
}

func completeInterview(t *testing.T, m *Manager, id string, total int) {
	t.Helper()
	ctx := context.Background()
	for i := 0; i < total; i++ {
		q, err := m.GetCurrentQuestion(ctx, id)
		require.NoError(t, err)
		require.Equal(t, i, q.Ordinal)
		_, err = m.RecordFrame(ctx, id, happy(i))
		require.NoError(t, err)
		_, err = m.SubmitAnswer(ctx, id, i, fmt.Sprintf("answer %d", i), nil)
		require.NoError(t, err)
	}
}

func TestCompletedSessionIsTerminal(t *testing.T) {
	m, _ := newTestManager(t, nil, testConfig())
	ctx := context.Background()
	h, err := m.CreateSession(ctx, "alice", "Software Engineer", 3, "")
	require.NoError(t, err)

	_, err = m.GetInterviewAnalysis(ctx, h.SessionID)
	assert.ErrorIs(t, err, ErrSessionNotCompleted)

	completeInterview(t, m, h.SessionID, 3)

	first, err := m.EndSession(ctx, h.SessionID)
	require.NoError(t, err)
	assert.Equal(t, 3, first.QuestionsAnalyzed)

	_, err = m.SubmitAnswer(ctx, h.SessionID, 3, "extra", nil)
	assert.ErrorIs(t, err, ErrSessionCompleted)
	_, err = m.GetCurrentQuestion(ctx, h.SessionID)
	assert.ErrorIs(t, err, ErrSessionCompleted)

	ack, err := m.RecordFrame(ctx, h.SessionID, happy(2))
	require.NoError(t, err)
	assert.False(t, ack.Accepted)

	second, err := m.GetInterviewAnalysis(ctx, h.SessionID)
	require.NoError(t, err)
	third, err := m.GetInterviewAnalysis(ctx, h.SessionID)
	require.NoError(t, err)
	assert.Equal(t, first, second)
	assert.Equal(t, second, third)

	// 修改返回值不影响缓存
	second.Insights[0] = "tampered"
	fourth, err := m.GetInterviewAnalysis(ctx, h.SessionID)
	require.NoError(t, err)
	assert.Equal(t, first, fourth)
}

func TestEndSessionEarly(t *testing.T) {
	m, _ := newTestManager(t, nil, testConfig())
	ctx := context.Background()
	h, err := m.CreateSession(ctx, "alice", "Software Engineer", 4, "")
	require.NoError(t, err)

	_, err = m.SubmitAnswer(ctx, h.SessionID, 0, "intro", nil)
	require.NoError(t, err)
	_, err = m.GetCurrentQuestion(ctx, h.SessionID)
	require.NoError(t, err)
	_, err = m.RecordFrame(ctx, h.SessionID, happy(1))
	require.NoError(t, err)

	a, err := m.EndSession(ctx, h.SessionID)
	require.NoError(t, err)
	assert.Equal(t, 2, a.QuestionsAnalyzed)
	assert.Zero(t, m.Stats().Active)

	_, err = m.SubmitAnswer(ctx, h.SessionID, 1, "late", nil)
	assert.ErrorIs(t, err, ErrSessionCompleted)
}

func TestMonotonicOrdinals(t *testing.T) {
	st := store.NewMemoryStore()
	m, _ := newTestManager(t, st, testConfig())
	h, err := m.CreateSession(context.Background(), "alice", "Data Scientist", 4, "")
	require.NoError(t, err)
	completeInterview(t, m, h.SessionID, 4)

	snap, err := st.Load(context.Background(), h.SessionID)
	require.NoError(t, err)
	require.Len(t, snap.Answers, 4)
	for i, a := range snap.Answers {
		assert.Equal(t, i, a.Ordinal)
	}
	assert.Equal(t, string(StatusCompleted), snap.Status)
	assert.NotNil(t, snap.Analysis)
	assert.NotNil(t, snap.EndedAt)
}

func TestSealedTimelineDropsLateFrames(t *testing.T) {
	m, _ := newTestManager(t, nil, testConfig())
	ctx := context.Background()
	h, err := m.CreateSession(ctx, "alice", "Software Engineer", 3, "")
	require.NoError(t, err)

	_, err = m.RecordFrame(ctx, h.SessionID, happy(0))
	require.NoError(t, err)
	_, err = m.SubmitAnswer(ctx, h.SessionID, 0, "answer", nil)
	require.NoError(t, err)

	ack, err := m.RecordFrame(ctx, h.SessionID, frameOf(0, map[emotion.Label]float64{emotion.Angry: 1}))
	require.NoError(t, err)
	assert.False(t, ack.Accepted)

	_, err = m.RecordFrame(ctx, "missing", happy(0))
	assert.ErrorIs(t, err, ErrSessionNotFound)
}

func TestConcurrentSessionsDoNotMix(t *testing.T) {
	m, _ := newTestManager(t, nil, testConfig())
	ctx := context.Background()
	a, err := m.CreateSession(ctx, "alice", "Software Engineer", 3, "")
	require.NoError(t, err)
	b, err := m.CreateSession(ctx, "bob", "Product Manager", 3, "")
	require.NoError(t, err)

	var wg sync.WaitGroup
	send := func(id string, label emotion.Label) {
		defer wg.Done()
		for i := 0; i < 50; i++ {
			_, err := m.RecordFrame(ctx, id, frameOf(0, map[emotion.Label]float64{label: 0.8}))
			assert.NoError(t, err)
		}
	}
	wg.Add(4)
	go send(a.SessionID, emotion.Happy)
	go send(b.SessionID, emotion.Sad)
	go send(a.SessionID, emotion.Happy)
	go send(b.SessionID, emotion.Sad)
	wg.Wait()

	ra, err := m.SubmitAnswer(ctx, a.SessionID, 0, "a", nil)
	require.NoError(t, err)
	rb, err := m.SubmitAnswer(ctx, b.SessionID, 0, "b", nil)
	require.NoError(t, err)

	assert.Equal(t, map[emotion.Label]float64{emotion.Happy: 0.8}, roundMap(ra.Analysis.Aggregate.EmotionPercentages))
	assert.Equal(t, map[emotion.Label]float64{emotion.Sad: 0.8}, roundMap(rb.Analysis.Aggregate.EmotionPercentages))
	assert.Equal(t, 100, ra.Analysis.Aggregate.FrameCount)
	assert.Equal(t, 100, rb.Analysis.Aggregate.FrameCount)
}

func roundMap(in map[emotion.Label]float64) map[emotion.Label]float64 {
	out := make(map[emotion.Label]float64, len(in))
	for k, v := range in {
		out[k] = float64(int(v*1000+0.5)) / 1000
	}
	return out
}

func TestSealIsAtomicWithFolding(t *testing.T) {
	m, _ := newTestManager(t, nil, testConfig())
	ctx := context.Background()
	h, err := m.CreateSession(ctx, "alice", "Software Engineer", 3, "")
	require.NoError(t, err)

	var accepted atomic.Int64
	var wg sync.WaitGroup
	start := make(chan struct{})
	for g := 0; g < 4; g++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			<-start
			for i := 0; i < 200; i++ {
				ack, err := m.RecordFrame(ctx, h.SessionID, happy(0))
				if err == nil && ack.Accepted {
					accepted.Add(1)
				}
			}
		}()
	}

	var res SubmitResult
	wg.Add(1)
	go func() {
		defer wg.Done()
		<-start
		time.Sleep(time.Millisecond)
		var err error
		res, err = m.SubmitAnswer(ctx, h.SessionID, 0, "answer", nil)
		assert.NoError(t, err)
	}()
	close(start)
	wg.Wait()

	assert.Equal(t, int(accepted.Load()), res.Analysis.Aggregate.FrameCount)
}

func TestPrecomputedAggregate(t *testing.T) {
	m, _ := newTestManager(t, nil, testConfig())
	ctx := context.Background()
	h, err := m.CreateSession(ctx, "alice", "Software Engineer", 2, "")
	require.NoError(t, err)

	neutral := emotion.Neutral
	res, err := m.SubmitAnswer(ctx, h.SessionID, 0, "answer", &analysis.Aggregate{
		DominantEmotion:    &neutral,
		EmotionPercentages: map[emotion.Label]float64{emotion.Neutral: 0.8},
		NeutralRatio:       0.8,
		ConfidenceScore:    0.5,
		EngagementScore:    -3,
		DetectionRate:      0.9,
	})
	require.NoError(t, err)
	assert.Zero(t, res.Analysis.Aggregate.EngagementScore)
	assert.Contains(t, res.Analysis.Insights, analysis.InsightFlatAffect)
	assert.Contains(t, res.Analysis.Insights, analysis.InsightMoreEngaged)
}

func TestCapacityExceeded(t *testing.T) {
	cfg := testConfig()
	cfg.MaxActive = 2
	m, _ := newTestManager(t, nil, cfg)
	ctx := context.Background()

	first, err := m.CreateSession(ctx, "a", "Software Engineer", 1, "")
	require.NoError(t, err)
	_, err = m.CreateSession(ctx, "b", "Software Engineer", 1, "")
	require.NoError(t, err)
	_, err = m.CreateSession(ctx, "c", "Software Engineer", 1, "")
	assert.ErrorIs(t, err, ErrCapacityExceeded)

	// 完成一个会话释放名额
	_, err = m.SubmitAnswer(ctx, first.SessionID, 0, "done", nil)
	require.NoError(t, err)
	_, err = m.CreateSession(ctx, "c", "Software Engineer", 1, "")
	assert.NoError(t, err)
}

func TestPersistFailureKeepsStateAndRetries(t *testing.T) {
	st := &flakyStore{MemoryStore: store.NewMemoryStore()}
	m, _ := newTestManager(t, st, testConfig())
	ctx := context.Background()

	h, err := m.CreateSession(ctx, "alice", "Software Engineer", 3, "")
	require.NoError(t, err)

	// 两次尝试（首次 + 1 次重试）都失败
	st.failures.Store(2)
	res, err := m.SubmitAnswer(ctx, h.SessionID, 0, "answer", nil)
	require.NoError(t, err)
	require.NotNil(t, res.NextOrdinal)
	assert.Equal(t, 1, m.Stats().Dirty)

	snap, err := st.Load(ctx, h.SessionID)
	require.NoError(t, err)
	assert.Empty(t, snap.Answers)

	q, err := m.GetCurrentQuestion(ctx, h.SessionID)
	require.NoError(t, err)
	assert.Equal(t, 1, q.Ordinal)

	m.Sweep(ctx)
	assert.Zero(t, m.Stats().Dirty)
	snap, err = st.Load(ctx, h.SessionID)
	require.NoError(t, err)
	assert.Len(t, snap.Answers, 1)
}

func TestIdleSealEvictAndRestore(t *testing.T) {
	st := store.NewMemoryStore()
	cfg := testConfig()
	cfg.IdleSealAfter = time.Minute
	cfg.EvictAfter = 10 * time.Minute
	m, clock := newTestManager(t, st, cfg)
	ctx := context.Background()

	h, err := m.CreateSession(ctx, "alice", "Software Engineer", 3, "")
	require.NoError(t, err)
	_, err = m.RecordFrame(ctx, h.SessionID, happy(0))
	require.NoError(t, err)

	clock.Advance(2 * time.Minute)
	m.Sweep(ctx)

	ack, err := m.RecordFrame(ctx, h.SessionID, happy(0))
	require.NoError(t, err)
	assert.False(t, ack.Accepted, "idle-sealed question must not accept frames")

	res, err := m.SubmitAnswer(ctx, h.SessionID, 0, "answer", nil)
	require.NoError(t, err)
	assert.Equal(t, 1, res.Analysis.Aggregate.FrameCount)

	clock.Advance(11 * time.Minute)
	m.Sweep(ctx)
	assert.Zero(t, m.Stats().InMemory)
	assert.Zero(t, m.Stats().Active)

	resumed, err := m.Resume(ctx, h.SessionID, "alice")
	require.NoError(t, err)
	assert.Equal(t, 1, resumed.CurrentQuestion)
	assert.Equal(t, StatusInProgress, resumed.Status)
	assert.Equal(t, int64(1), m.Stats().Active)

	_, err = m.SubmitAnswer(ctx, h.SessionID, 1, "after restore", nil)
	require.NoError(t, err)

	_, err = m.Resume(ctx, h.SessionID, "mallory")
	assert.ErrorIs(t, err, ErrSessionNotFound)
}

func TestConcurrentRestoreIsDeduplicated(t *testing.T) {
	st := store.NewMemoryStore()
	cfg := testConfig()
	cfg.EvictAfter = time.Minute
	m, clock := newTestManager(t, st, cfg)
	ctx := context.Background()

	h, err := m.CreateSession(ctx, "alice", "Software Engineer", 3, "")
	require.NoError(t, err)
	clock.Advance(2 * time.Minute)
	m.Sweep(ctx)
	require.Zero(t, m.Stats().InMemory)

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := m.GetCurrentQuestion(ctx, h.SessionID)
			assert.NoError(t, err)
		}()
	}
	wg.Wait()
	assert.Equal(t, 1, m.Stats().InMemory)
	assert.Equal(t, int64(1), m.Stats().Active)
}

func TestCorruptSnapshotIsIsolated(t *testing.T) {
	dir := t.TempDir()
	fs, err := store.NewFileStore(dir)
	require.NoError(t, err)
	m, _ := newTestManager(t, fs, testConfig())
	ctx := context.Background()

	require.NoError(t, writeFile(dir, "broken.json", "{oops"))
	_, err = m.GetCurrentQuestion(ctx, "broken")
	assert.ErrorIs(t, err, store.ErrCorruptSnapshot)

	h, err := m.CreateSession(ctx, "alice", "Software Engineer", 2, "")
	require.NoError(t, err)
	_, err = m.GetCurrentQuestion(ctx, h.SessionID)
	assert.NoError(t, err)
}

func TestSnapshotPastLastQuestionIsCorrupt(t *testing.T) {
	dir := t.TempDir()
	fs, err := store.NewFileStore(dir)
	require.NoError(t, err)
	m, clock := newTestManager(t, fs, testConfig())
	ctx := context.Background()

	snap := store.Snapshot{
		SessionID: "overrun",
		OwnerID:   "alice",
		Role:      "Software Engineer",
		Questions: []questionbank.Question{
			{ID: "q0", Text: questionbank.DefaultIntro},
			{ID: "q1", Text: "Why Go?", Ordinal: 1},
		},
		CurrentIndex: 2,
		Answers: []store.Answer{
			{Ordinal: 0, Text: "hi"},
			{Ordinal: 1, Text: "channels"},
		},
		Status:    string(StatusInProgress),
		StartedAt: clock.Now(),
		Version:   2,
	}
	data, err := json.Marshal(snap)
	require.NoError(t, err)
	require.NoError(t, writeFile(dir, "overrun.json", string(data)))

	_, err = m.GetCurrentQuestion(ctx, "overrun")
	assert.ErrorIs(t, err, store.ErrCorruptSnapshot)
	_, err = m.Resume(ctx, "overrun", "alice")
	assert.ErrorIs(t, err, store.ErrCorruptSnapshot)

	// 已在内存中的同类状态也只影响该会话
	m.mu.Lock()
	m.sessions["overrun"] = restoreSession(snap, clock.Now())
	m.mu.Unlock()
	assert.NotPanics(t, func() {
		_, err = m.GetCurrentQuestion(ctx, "overrun")
	})
	assert.ErrorIs(t, err, store.ErrCorruptSnapshot)
	_, err = m.Resume(ctx, "overrun", "alice")
	assert.ErrorIs(t, err, store.ErrCorruptSnapshot)

	h, err := m.CreateSession(ctx, "alice", "Software Engineer", 2, "")
	require.NoError(t, err)
	_, err = m.GetCurrentQuestion(ctx, h.SessionID)
	assert.NoError(t, err)
}

func TestListSessions(t *testing.T) {
	st := store.NewMemoryStore()
	m, clock := newTestManager(t, st, testConfig())
	ctx := context.Background()

	older, err := m.CreateSession(ctx, "alice", "Software Engineer", 1, "")
	require.NoError(t, err)
	clock.Advance(time.Minute)
	newer, err := m.CreateSession(ctx, "alice", "Data Scientist", 2, "")
	require.NoError(t, err)
	_, err = m.CreateSession(ctx, "bob", "Software Engineer", 1, "")
	require.NoError(t, err)

	// 只存在于存储中的旧会话
	archived := store.Snapshot{
		SessionID: "archived",
		OwnerID:   "alice",
		Role:      "Product Manager",
		Questions: []questionbank.Question{{ID: "q", Text: "Q?"}},
		Status:    string(StatusCompleted),
		StartedAt: clock.Now().Add(-time.Hour),
		Version:   1,
	}
	require.NoError(t, st.Save(ctx, archived))

	list, err := m.ListSessions(ctx, "alice")
	require.NoError(t, err)
	require.Len(t, list, 3)
	assert.Equal(t, newer.SessionID, list[0].SessionID)
	assert.Equal(t, older.SessionID, list[1].SessionID)
	assert.Equal(t, "archived", list[2].SessionID)
}
