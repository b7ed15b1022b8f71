package analysis

import (
	"encoding/json"
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"InterviewPulse/internal/emotion"
)

func frame(ts float64, emotions map[emotion.Label]float64) emotion.FrameResult {
	return emotion.FrameResult{Timestamp: ts, Emotions: emotions}
}

func TestSealAllHappy(t *testing.T) {
	tl := NewTimeline(0)
	for i := 0; i < 5; i++ {
		require.True(t, tl.Fold(frame(float64(i)*0.5, map[emotion.Label]float64{emotion.Happy: 0.9})))
	}
	agg := tl.Seal()

	require.NotNil(t, agg.DominantEmotion)
	assert.Equal(t, emotion.Happy, *agg.DominantEmotion)
	assert.Equal(t, 1.0, agg.DetectionRate)
	assert.InDelta(t, 0.9, agg.PositiveRatio, 1e-9)
	assert.Equal(t, 1.0, agg.ConfidenceScore)
	assert.InDelta(t, 1.0, agg.EngagementScore, 1e-9)
	assert.Equal(t, 5, agg.FrameCount)
	assert.Equal(t, 5, agg.DetectedFrames)
}

func TestSealFormulas(t *testing.T) {
	tl := NewTimeline(1)
	tl.Fold(frame(0, map[emotion.Label]float64{emotion.Neutral: 0.6, emotion.Surprise: 0.2}))
	tl.Fold(frame(1, map[emotion.Label]float64{emotion.Sad: 0.5, emotion.Happy: 0.3}))
	tl.Fold(frame(2, nil))
	tl.Fold(frame(3, map[emotion.Label]float64{emotion.Neutral: 0.9}))
	agg := tl.Seal()

	// 三帧有人脸，四帧观察
	assert.InDelta(t, 0.75, agg.DetectionRate, 1e-9)
	pN := 1.5 / 3
	pS := 0.2 / 3
	pSa := 0.5 / 3
	pH := 0.3 / 3
	assert.InDelta(t, pN, agg.EmotionPercentages[emotion.Neutral], 1e-9)

	pos := pH + 0.5*pS
	neg := pSa
	neu := pN + 0.5*pS
	assert.InDelta(t, pos, agg.PositiveRatio, 1e-9)
	assert.InDelta(t, neg, agg.NegativeRatio, 1e-9)
	assert.InDelta(t, neu, agg.NeutralRatio, 1e-9)
	assert.InDelta(t, pos*1.2-neg*0.8+0.5, agg.ConfidenceScore, 1e-9)
	assert.InDelta(t, 1-neu*1.5, agg.EngagementScore, 1e-9)
	require.NotNil(t, agg.DominantEmotion)
	assert.Equal(t, emotion.Neutral, *agg.DominantEmotion)
}

func TestDominantTieUsesCanonicalOrder(t *testing.T) {
	tl := NewTimeline(0)
	tl.Fold(frame(0, map[emotion.Label]float64{emotion.Sad: 0.9}))
	tl.Fold(frame(1, map[emotion.Label]float64{emotion.Surprise: 0.4}))
	agg := tl.Seal()
	require.NotNil(t, agg.DominantEmotion)
	assert.Equal(t, emotion.Surprise, *agg.DominantEmotion)
}

func TestZeroDetectionIsDeterministic(t *testing.T) {
	for _, observed := range []int{0, 3} {
		tl := NewTimeline(0)
		for i := 0; i < observed; i++ {
			tl.Fold(frame(float64(i), nil))
		}
		agg := tl.Seal()
		assert.Nil(t, agg.DominantEmotion)
		assert.Zero(t, agg.DetectionRate)
		assert.Zero(t, agg.ConfidenceScore)
		assert.Zero(t, agg.EngagementScore)
		assert.Equal(t, observed, agg.FrameCount)

		b, err := json.Marshal(agg)
		require.NoError(t, err)
		assert.Contains(t, string(b), `"dominant_emotion":null`)
	}
}

func TestSealedTimelineIgnoresFrames(t *testing.T) {
	tl := NewTimeline(0)
	tl.Fold(frame(0, map[emotion.Label]float64{emotion.Happy: 0.5}))
	first := tl.Seal()

	assert.False(t, tl.Fold(frame(1, map[emotion.Label]float64{emotion.Angry: 1})))
	second := tl.Seal()
	assert.Equal(t, first, second)
	assert.Equal(t, 1, tl.Observed())
}

func TestFoldKeepsTimestampsIncreasing(t *testing.T) {
	tl := NewTimeline(0)
	for _, ts := range []float64{1, 1, 0.5, 2} {
		tl.Fold(frame(ts, map[emotion.Label]float64{emotion.Neutral: 1}))
	}
	r := tl.frames
	require.Len(t, r, 4)
	for i := 1; i < len(r); i++ {
		assert.Greater(t, r[i].Timestamp, r[i-1].Timestamp)
	}
	assert.Equal(t, 2.0, r[3].Timestamp)
}

func TestScoresStayInBounds(t *testing.T) {
	rng := rand.New(rand.NewSource(7))
	labels := emotion.Labels()
	for round := 0; round < 200; round++ {
		tl := NewTimeline(0)
		n := rng.Intn(12)
		for i := 0; i < n; i++ {
			em := map[emotion.Label]float64{}
			remaining := 1.0
			for _, l := range labels {
				if rng.Intn(3) == 0 {
					continue
				}
				v := rng.Float64() * remaining
				em[l] = v
				remaining -= v
			}
			tl.Fold(frame(float64(i), em))
		}
		agg := tl.Seal()
		for _, v := range []float64{agg.ConfidenceScore, agg.EngagementScore, agg.PositiveRatio, agg.NegativeRatio, agg.NeutralRatio, agg.DetectionRate} {
			assert.GreaterOrEqual(t, v, 0.0)
			assert.LessOrEqual(t, v, 1.0)
		}
	}
}

func TestSealWithPrecomputed(t *testing.T) {
	happy := emotion.Happy
	pre := &Aggregate{
		DominantEmotion:    &happy,
		EmotionPercentages: map[emotion.Label]float64{emotion.Happy: 1.4, "Bored": 0.2},
		ConfidenceScore:    1.7,
		PositiveRatio:      0.8,
		NegativeRatio:      -0.1,
		DetectionRate:      0.9,
		DetectedFrames:     9,
		FrameCount:         10,
	}
	tl := NewTimeline(0)
	agg := tl.SealWith(pre)
	assert.Equal(t, 1.0, agg.ConfidenceScore)
	assert.Equal(t, 0.0, agg.NegativeRatio)
	assert.Equal(t, 1.0, agg.EmotionPercentages[emotion.Happy])
	assert.NotContains(t, agg.EmotionPercentages, emotion.Label("Bored"))

	// 已观察到帧时忽略预计算结果
	tl = NewTimeline(0)
	tl.Fold(frame(0, nil))
	agg = tl.SealWith(pre)
	assert.Zero(t, agg.DetectionRate)
}

func TestQuestionInsights(t *testing.T) {
	p := DefaultInsightPolicy()
	neutral := emotion.Neutral
	happy := emotion.Happy

	t.Run("no face", func(t *testing.T) {
		got := QuestionInsights(emptyAggregate(0), p)
		assert.Equal(t, []string{InsightLowDetection, InsightNoFace}, got)
	})

	t.Run("positive", func(t *testing.T) {
		got := QuestionInsights(Aggregate{DominantEmotion: &happy, DetectionRate: 1, PositiveRatio: 0.9}, p)
		assert.Equal(t, []string{InsightPositive}, got)
	})

	t.Run("all applicable rules in order", func(t *testing.T) {
		got := QuestionInsights(Aggregate{
			DominantEmotion: &neutral,
			DetectionRate:   0.2,
			PositiveRatio:   0.1,
			NegativeRatio:   0.35,
			NeutralRatio:    0.75,
		}, p)
		assert.Equal(t, []string{
			InsightLowDetection,
			InsightMorePositive,
			InsightNegative,
			InsightMoreEngaged,
			InsightFlatAffect,
		}, got)
	})

	t.Run("custom policy", func(t *testing.T) {
		custom := p
		custom.HighPositive = 0.95
		got := QuestionInsights(Aggregate{DominantEmotion: &happy, DetectionRate: 1, PositiveRatio: 0.9}, custom)
		assert.Empty(t, got)
	})
}

func TestInsightPolicyValidate(t *testing.T) {
	assert.NoError(t, DefaultInsightPolicy().Validate())

	bad := DefaultInsightPolicy()
	bad.HighNeutral = 1.5
	assert.Error(t, bad.Validate())

	bad = DefaultInsightPolicy()
	bad.LowPositive = 0.8
	assert.Error(t, bad.Validate())
}

func TestBuildInterviewAnalysis(t *testing.T) {
	p := DefaultInsightPolicy()
	questions := []string{"Tell me about yourself.", "Why Go?", "Describe a failure."}

	seal := func(ordinal int, frames ...map[emotion.Label]float64) QuestionAnalysis {
		tl := NewTimeline(ordinal)
		for i, f := range frames {
			tl.Fold(frame(float64(i), f))
		}
		return AnalyzeQuestion(ordinal, tl.Seal(), p)
	}

	sealed := []QuestionAnalysis{
		seal(0, map[emotion.Label]float64{emotion.Happy: 0.9}, map[emotion.Label]float64{emotion.Happy: 0.9}),
		seal(1),
		seal(2, map[emotion.Label]float64{emotion.Sad: 0.8}),
	}
	a := BuildInterviewAnalysis("s-1", questions, sealed, p)

	assert.Equal(t, "s-1", a.SessionID)
	assert.Equal(t, 3, a.QuestionsAnalyzed)
	require.NotNil(t, a.Strongest)
	require.NotNil(t, a.Weakest)
	assert.Equal(t, 0, a.Strongest.Ordinal)
	assert.Equal(t, "Tell me about yourself.", a.Strongest.Question)
	assert.Equal(t, 2, a.Weakest.Ordinal)

	assert.InDelta(t, (1.0+0+1.0)/3, a.Averages.Detection, 1e-9)
	assert.InDelta(t, (sealed[0].Aggregate.ConfidenceScore+sealed[2].Aggregate.ConfidenceScore)/2, a.Averages.Confidence, 1e-9)
	assert.InDelta(t, 1.8/3, a.EmotionDistribution[emotion.Happy], 1e-9)
	assert.InDelta(t, 0.8/3, a.EmotionDistribution[emotion.Sad], 1e-9)
	require.NotNil(t, a.DominantEmotion)
	assert.Equal(t, emotion.Happy, *a.DominantEmotion)
	assert.Contains(t, a.Insights, "Your strongest answer was question 1 (confidence 100%).")

	again := BuildInterviewAnalysis("s-1", questions, sealed, p)
	assert.Equal(t, a, again)
}

func TestBuildInterviewAnalysisWithoutFaces(t *testing.T) {
	p := DefaultInsightPolicy()
	a := BuildInterviewAnalysis("s-2", []string{"q"}, []QuestionAnalysis{AnalyzeQuestion(0, emptyAggregate(4), p)}, p)
	assert.Nil(t, a.Strongest)
	assert.Nil(t, a.DominantEmotion)
	assert.Empty(t, a.EmotionDistribution)
	assert.Equal(t, []string{InsightLowDetection, InsightNoFace}, a.Insights)

	empty := BuildInterviewAnalysis("s-3", nil, nil, p)
	assert.Zero(t, empty.QuestionsAnalyzed)
	assert.Equal(t, []string{InsightLowDetection, InsightNoFace}, empty.Insights)
}
