package analysis

import (
	"errors"
	"fmt"

	"InterviewPulse/internal/emotion"
)

const (
	InsightLowDetection = "Low face-detection rate: make sure your face is clearly visible to the camera."
	InsightNoFace       = "No face detected during this answer; emotion feedback is unavailable."
	InsightPositive     = "Great job maintaining positive engagement!"
	InsightMorePositive = "Try to show more positive expressions, such as smiling when appropriate."
	InsightNegative     = "Significant negative emotions detected; take a breath and try to stay relaxed."
	InsightMoreEngaged  = "Try to show more engagement and expressiveness while answering."
	InsightFlatAffect   = "Your expression stayed mostly neutral; varying your affect can make answers more compelling."
)

// InsightPolicy 洞察规则阈值
type InsightPolicy struct {
	LowDetection float64 `mapstructure:"low_detection" json:"low_detection"`
	HighPositive float64 `mapstructure:"high_positive" json:"high_positive"`
	LowPositive  float64 `mapstructure:"low_positive" json:"low_positive"`
	HighNegative float64 `mapstructure:"high_negative" json:"high_negative"`
	HighNeutral  float64 `mapstructure:"high_neutral" json:"high_neutral"`
}

// DefaultInsightPolicy 默认阈值
func DefaultInsightPolicy() InsightPolicy {
	return InsightPolicy{
		LowDetection: 0.3,
		HighPositive: 0.6,
		LowPositive:  0.2,
		HighNegative: 0.3,
		HighNeutral:  0.7,
	}
}

// Validate 校验阈值
func (p InsightPolicy) Validate() error {
	for name, v := range map[string]float64{
		"low_detection": p.LowDetection,
		"high_positive": p.HighPositive,
		"low_positive":  p.LowPositive,
		"high_negative": p.HighNegative,
		"high_neutral":  p.HighNeutral,
	} {
		if v < 0 || v > 1 {
			return fmt.Errorf("insight threshold %s out of range [0,1]: %v", name, v)
		}
	}
	if p.LowPositive > p.HighPositive {
		return errors.New("insight threshold low_positive must not exceed high_positive")
	}
	return nil
}

type traits struct {
	detection float64
	positive  float64
	negative  float64
	neutral   float64
	dominant  *emotion.Label
}

// QuestionInsights 单题洞察
func QuestionInsights(agg Aggregate, p InsightPolicy) []string {
	return p.apply(traits{
		detection: agg.DetectionRate,
		positive:  agg.PositiveRatio,
		negative:  agg.NegativeRatio,
		neutral:   agg.NeutralRatio,
		dominant:  agg.DominantEmotion,
	})
}

func (p InsightPolicy) apply(t traits) []string {
	out := make([]string, 0, 4)
	if t.detection < p.LowDetection {
		out = append(out, InsightLowDetection)
	}
	if t.detection == 0 {
		return append(out, InsightNoFace)
	}
	if t.positive > p.HighPositive {
		out = append(out, InsightPositive)
	}
	if t.positive < p.LowPositive {
		out = append(out, InsightMorePositive)
	}
	if t.negative > p.HighNegative {
		out = append(out, InsightNegative)
	}
	if t.neutral > p.HighNeutral {
		out = append(out, InsightMoreEngaged)
	}
	if t.dominant != nil && *t.dominant == emotion.Neutral {
		out = append(out, InsightFlatAffect)
	}
	return out
}
