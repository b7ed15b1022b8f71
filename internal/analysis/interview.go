package analysis

import (
	"fmt"

	"InterviewPulse/internal/emotion"
)

// QuestionAnalysis 单题分析
type QuestionAnalysis struct {
	Ordinal   int       `json:"question_index"`
	Aggregate Aggregate `json:"emotion_analysis"`
	Insights  []string  `json:"insights"`
}

// AnalyzeQuestion 生成单题分析
func AnalyzeQuestion(ordinal int, agg Aggregate, p InsightPolicy) QuestionAnalysis {
	return QuestionAnalysis{
		Ordinal:   ordinal,
		Aggregate: agg,
		Insights:  QuestionInsights(agg, p),
	}
}

// Clone 深拷贝
func (q QuestionAnalysis) Clone() QuestionAnalysis {
	out := q
	out.Aggregate = q.Aggregate.Clone()
	out.Insights = append([]string(nil), q.Insights...)
	return out
}

// TraitAverages 各项指标均值
type TraitAverages struct {
	Confidence float64 `json:"confidence"`
	Engagement float64 `json:"engagement"`
	Positive   float64 `json:"positive"`
	Negative   float64 `json:"negative"`
	Neutral    float64 `json:"neutral"`
	Detection  float64 `json:"detection"`
}

// QuestionScore 最强/最弱题目
type QuestionScore struct {
	Ordinal         int     `json:"question_index"`
	Question        string  `json:"question"`
	ConfidenceScore float64 `json:"confidence_score"`
}

// InterviewAnalysis 整场面试的汇总分析
type InterviewAnalysis struct {
	SessionID           string                    `json:"session_id"`
	QuestionsAnalyzed   int                       `json:"questions_analyzed"`
	Averages            TraitAverages             `json:"averages"`
	Strongest           *QuestionScore            `json:"strongest_question"`
	Weakest             *QuestionScore            `json:"weakest_question"`
	EmotionDistribution map[emotion.Label]float64 `json:"emotion_distribution"`
	DominantEmotion     *emotion.Label            `json:"dominant_emotion"`
	Insights            []string                  `json:"insights"`
	Questions           []QuestionAnalysis        `json:"questions"`
}

// Clone 深拷贝
func (a InterviewAnalysis) Clone() InterviewAnalysis {
	out := a
	if a.Strongest != nil {
		s := *a.Strongest
		out.Strongest = &s
	}
	if a.Weakest != nil {
		w := *a.Weakest
		out.Weakest = &w
	}
	if a.DominantEmotion != nil {
		d := *a.DominantEmotion
		out.DominantEmotion = &d
	}
	out.EmotionDistribution = make(map[emotion.Label]float64, len(a.EmotionDistribution))
	for l, v := range a.EmotionDistribution {
		out.EmotionDistribution[l] = v
	}
	out.Insights = append([]string(nil), a.Insights...)
	out.Questions = make([]QuestionAnalysis, len(a.Questions))
	for i, q := range a.Questions {
		out.Questions[i] = q.Clone()
	}
	return out
}

// BuildInterviewAnalysis 汇总所有已封存题目
func BuildInterviewAnalysis(sessionID string, questions []string, sealed []QuestionAnalysis, p InsightPolicy) InterviewAnalysis {
	out := InterviewAnalysis{
		SessionID:           sessionID,
		QuestionsAnalyzed:   len(sealed),
		EmotionDistribution: map[emotion.Label]float64{},
		Questions:           make([]QuestionAnalysis, len(sealed)),
	}
	for i, q := range sealed {
		out.Questions[i] = q.Clone()
	}

	var detectionSum float64
	var withFaces int
	var weightTotal float64
	sums := make(map[emotion.Label]float64)
	for _, q := range sealed {
		a := q.Aggregate
		detectionSum += a.DetectionRate
		if !a.HasDetections() {
			continue
		}
		withFaces++
		out.Averages.Confidence += a.ConfidenceScore
		out.Averages.Engagement += a.EngagementScore
		out.Averages.Positive += a.PositiveRatio
		out.Averages.Negative += a.NegativeRatio
		out.Averages.Neutral += a.NeutralRatio

		weight := float64(max(a.DetectedFrames, 1))
		weightTotal += weight
		for l, v := range a.EmotionPercentages {
			sums[l] += v * weight
		}

		score := QuestionScore{Ordinal: q.Ordinal, Question: questionText(questions, q.Ordinal), ConfidenceScore: a.ConfidenceScore}
		if out.Strongest == nil || score.ConfidenceScore > out.Strongest.ConfidenceScore {
			s := score
			out.Strongest = &s
		}
		if out.Weakest == nil || score.ConfidenceScore < out.Weakest.ConfidenceScore {
			w := score
			out.Weakest = &w
		}
	}

	if len(sealed) > 0 {
		out.Averages.Detection = clamp01(detectionSum / float64(len(sealed)))
	}
	if withFaces > 0 {
		n := float64(withFaces)
		out.Averages.Confidence = clamp01(out.Averages.Confidence / n)
		out.Averages.Engagement = clamp01(out.Averages.Engagement / n)
		out.Averages.Positive = clamp01(out.Averages.Positive / n)
		out.Averages.Negative = clamp01(out.Averages.Negative / n)
		out.Averages.Neutral = clamp01(out.Averages.Neutral / n)

		var best float64
		for _, l := range emotion.Labels() {
			v, ok := sums[l]
			if !ok {
				continue
			}
			out.EmotionDistribution[l] = clamp01(v / weightTotal)
			if out.DominantEmotion == nil || out.EmotionDistribution[l] > best {
				d := l
				out.DominantEmotion, best = &d, out.EmotionDistribution[l]
			}
		}
	}

	out.Insights = p.apply(traits{
		detection: out.Averages.Detection,
		positive:  out.Averages.Positive,
		negative:  out.Averages.Negative,
		neutral:   out.Averages.Neutral,
		dominant:  out.DominantEmotion,
	})
	if withFaces > 1 && out.Strongest.Ordinal != out.Weakest.Ordinal {
		out.Insights = append(out.Insights,
			fmt.Sprintf("Your strongest answer was question %d (confidence %.0f%%).", out.Strongest.Ordinal+1, out.Strongest.ConfidenceScore*100),
			fmt.Sprintf("Question %d had the lowest confidence (%.0f%%); consider practicing it again.", out.Weakest.Ordinal+1, out.Weakest.ConfidenceScore*100),
		)
	}
	return out
}

func questionText(questions []string, ordinal int) string {
	if ordinal >= 0 && ordinal < len(questions) {
		return questions[ordinal]
	}
	return ""
}
