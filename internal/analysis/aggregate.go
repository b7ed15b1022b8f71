package analysis

import (
	"math"

	"InterviewPulse/internal/emotion"
)

// Aggregate 单题情绪时间线的统计结果
type Aggregate struct {
	DominantEmotion    *emotion.Label            `json:"dominant_emotion"`
	EmotionPercentages map[emotion.Label]float64 `json:"emotion_percentages"`
	ConfidenceScore    float64                   `json:"confidence_score"`
	EngagementScore    float64                   `json:"engagement_score"`
	PositiveRatio      float64                   `json:"positive_ratio"`
	NegativeRatio      float64                   `json:"negative_ratio"`
	NeutralRatio       float64                   `json:"neutral_ratio"`
	DetectionRate      float64                   `json:"detection_rate"`
	FrameCount         int                       `json:"frame_count"`
	DetectedFrames     int                       `json:"detected_frames"`
}

// HasDetections 是否至少有一帧检测到人脸
func (a Aggregate) HasDetections() bool {
	return a.DetectionRate > 0
}

// Clone 深拷贝
func (a Aggregate) Clone() Aggregate {
	out := a
	if a.DominantEmotion != nil {
		d := *a.DominantEmotion
		out.DominantEmotion = &d
	}
	out.EmotionPercentages = make(map[emotion.Label]float64, len(a.EmotionPercentages))
	for l, v := range a.EmotionPercentages {
		out.EmotionPercentages[l] = v
	}
	return out
}

// Sanitized 清洗外部传入的聚合结果：丢弃未知标签并把比值截断到[0,1]
func (a Aggregate) Sanitized() Aggregate {
	out := Aggregate{
		EmotionPercentages: make(map[emotion.Label]float64, len(a.EmotionPercentages)),
		ConfidenceScore:    clamp01(a.ConfidenceScore),
		EngagementScore:    clamp01(a.EngagementScore),
		PositiveRatio:      clamp01(a.PositiveRatio),
		NegativeRatio:      clamp01(a.NegativeRatio),
		NeutralRatio:       clamp01(a.NeutralRatio),
		DetectionRate:      clamp01(a.DetectionRate),
		FrameCount:         max(a.FrameCount, 0),
		DetectedFrames:     max(a.DetectedFrames, 0),
	}
	for l, v := range a.EmotionPercentages {
		if l.IsValid() {
			out.EmotionPercentages[l] = clamp01(v)
		}
	}
	if out.DetectedFrames > out.FrameCount {
		out.FrameCount = out.DetectedFrames
	}
	if a.DominantEmotion != nil && a.DominantEmotion.IsValid() {
		d := *a.DominantEmotion
		out.DominantEmotion = &d
	}
	if out.DetectionRate == 0 {
		return emptyAggregate(out.FrameCount)
	}
	return out
}

func emptyAggregate(frames int) Aggregate {
	return Aggregate{
		EmotionPercentages: map[emotion.Label]float64{},
		FrameCount:         frames,
	}
}

// Compute 根据帧读数计算聚合结果，observed 为观察到的总帧数（含无人脸帧）
func Compute(frames []FrameReading, observed int) Aggregate {
	detected := 0
	sums := make(map[emotion.Label]float64)
	counts := make(map[emotion.Label]int)
	for _, f := range frames {
		if len(f.Emotions) == 0 {
			continue
		}
		detected++
		for l, c := range f.Emotions {
			sums[l] += c
		}
		// 每帧计一次主导情绪
		counts[emotion.Ranked(f.Emotions)[0].Emotion]++
	}
	if observed < detected {
		observed = detected
	}
	if detected == 0 {
		return emptyAggregate(observed)
	}

	pct := make(map[emotion.Label]float64, len(sums))
	for l, s := range sums {
		pct[l] = clamp01(s / float64(detected))
	}

	var dominant emotion.Label
	best := 0
	for _, l := range emotion.Labels() {
		if counts[l] > best {
			dominant, best = l, counts[l]
		}
	}

	pos := pct[emotion.Happy] + 0.5*pct[emotion.Surprise]
	neg := pct[emotion.Angry] + pct[emotion.Sad] + pct[emotion.Fear] + pct[emotion.Disgust]
	neu := pct[emotion.Neutral] + 0.5*pct[emotion.Surprise]

	return Aggregate{
		DominantEmotion:    &dominant,
		EmotionPercentages: pct,
		ConfidenceScore:    clamp01(pos*1.2 - neg*0.8 + 0.5),
		EngagementScore:    clamp01(1.0 - neu*1.5),
		PositiveRatio:      clamp01(pos),
		NegativeRatio:      clamp01(neg),
		NeutralRatio:       clamp01(neu),
		DetectionRate:      clamp01(float64(detected) / float64(observed)),
		FrameCount:         observed,
		DetectedFrames:     detected,
	}
}

func clamp01(v float64) float64 {
	switch {
	case math.IsNaN(v), v < 0:
		return 0
	case v > 1:
		return 1
	default:
		return v
	}
}
