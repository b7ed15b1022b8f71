package emotion

import (
	"sort"
	"strings"
)

// Label 情绪标签
type Label string

// 固定词表，顺序即平局时的规范顺序
const (
	Happy    Label = "Happy"
	Neutral  Label = "Neutral"
	Surprise Label = "Surprise"
	Sad      Label = "Sad"
	Fear     Label = "Fear"
	Angry    Label = "Angry"
	Disgust  Label = "Disgust"
)

var vocabulary = [...]Label{Happy, Neutral, Surprise, Sad, Fear, Angry, Disgust}

// 分类模型常见的别名
var aliases = map[string]Label{
	"happy":     Happy,
	"happiness": Happy,
	"joy":       Happy,
	"neutral":   Neutral,
	"calm":      Neutral,
	"surprise":  Surprise,
	"surprised": Surprise,
	"sad":       Sad,
	"sadness":   Sad,
	"fear":      Fear,
	"fearful":   Fear,
	"scared":    Fear,
	"angry":     Angry,
	"anger":     Angry,
	"disgust":   Disgust,
	"disgusted": Disgust,
}

// Labels 返回规范顺序的词表副本
func Labels() []Label {
	out := make([]Label, len(vocabulary))
	copy(out, vocabulary[:])
	return out
}

// Rank 返回标签在规范顺序中的位置，未知标签返回 -1
func (l Label) Rank() int {
	for i, v := range vocabulary {
		if v == l {
			return i
		}
	}
	return -1
}

// IsValid 检查标签是否属于词表
func (l Label) IsValid() bool {
	return l.Rank() >= 0
}

func (l Label) String() string {
	return string(l)
}

// ParseLabel 把模型输出的标签映射到规范词表
func ParseLabel(raw string) (Label, bool) {
	l, ok := aliases[strings.ToLower(strings.TrimSpace(raw))]
	return l, ok
}

// Score 单个标签的置信度
type Score struct {
	Emotion    Label   `json:"emotion"`
	Confidence float64 `json:"confidence"`
}

// Ranked 按置信度降序排列，相同置信度按规范顺序
func Ranked(emotions map[Label]float64) []Score {
	out := make([]Score, 0, len(emotions))
	for l, c := range emotions {
		out = append(out, Score{Emotion: l, Confidence: c})
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Confidence != out[j].Confidence {
			return out[i].Confidence > out[j].Confidence
		}
		return out[i].Emotion.Rank() < out[j].Emotion.Rank()
	})
	return out
}
