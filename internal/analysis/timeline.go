package analysis

import (
	"math"

	"InterviewPulse/internal/emotion"
)

// FrameReading 时间线上的一帧读数
type FrameReading struct {
	Timestamp float64
	Emotions  map[emotion.Label]float64
}

// Timeline 单题的情绪时间线，不是并发安全的，由会话锁保护
type Timeline struct {
	ordinal   int
	frames    []FrameReading
	observed  int
	last      float64
	sealed    bool
	aggregate Aggregate
}

// NewTimeline 创建时间线
func NewTimeline(ordinal int) *Timeline {
	return &Timeline{ordinal: ordinal, last: math.Inf(-1)}
}

// Ordinal 题目序号
func (t *Timeline) Ordinal() int { return t.ordinal }

// Observed 观察到的帧数
func (t *Timeline) Observed() int { return t.observed }

// Sealed 是否已封存
func (t *Timeline) Sealed() bool { return t.sealed }

// Fold 折叠一帧；封存后返回 false 且不做任何修改
func (t *Timeline) Fold(frame emotion.FrameResult) bool {
	if t.sealed {
		return false
	}
	t.observed++
	if !frame.Detected() {
		return true
	}

	ts := frame.Timestamp
	if ts <= t.last {
		ts = math.Nextafter(t.last, math.Inf(1))
	}
	t.last = ts

	emotions := make(map[emotion.Label]float64, len(frame.Emotions))
	for l, c := range frame.Emotions {
		emotions[l] = c
	}
	t.frames = append(t.frames, FrameReading{Timestamp: ts, Emotions: emotions})
	return true
}

// Seal 封存并返回聚合结果，重复调用返回同一结果
func (t *Timeline) Seal() Aggregate {
	if !t.sealed {
		t.aggregate = Compute(t.frames, t.observed)
		t.sealed = true
		t.frames = nil
	}
	return t.aggregate.Clone()
}

// SealWith 没有观察到帧时采用外部预计算的聚合结果
func (t *Timeline) SealWith(precomputed *Aggregate) Aggregate {
	if !t.sealed && t.observed == 0 && precomputed != nil {
		t.aggregate = precomputed.Sanitized()
		t.sealed = true
	}
	return t.Seal()
}
