package testutil

import (
	"context"
	"errors"
	"image/color"
	"sync/atomic"
	"time"

	"InterviewPulse/internal/emotion"
)

// FixedClassifier 每帧返回同一组情绪
type FixedClassifier struct {
	Emotions map[emotion.Label]float64
	calls    atomic.Int64
}

// Classify 实现 emotion.Classifier
func (f *FixedClassifier) Classify(_ context.Context, img emotion.Image) ([]emotion.Face, error) {
	f.calls.Add(1)
	if len(f.Emotions) == 0 {
		return nil, nil
	}
	return []emotion.Face{{Box: img.Image.Bounds(), Emotions: copyScores(f.Emotions)}}, nil
}

// Calls 调用次数
func (f *FixedClassifier) Calls() int {
	return int(f.calls.Load())
}

// ColorClassifier 按图像左上角像素颜色给出情绪，黑色表示没有人脸
//
//	red=Angry green=Happy blue=Sad white=Neutral yellow=Surprise magenta=Fear cyan=Disgust
type ColorClassifier struct{}

// Palette 测试用颜色
var Palette = map[emotion.Label]color.RGBA{
	emotion.Angry:    {R: 255, A: 255},
	emotion.Happy:    {G: 255, A: 255},
	emotion.Sad:      {B: 255, A: 255},
	emotion.Neutral:  {R: 255, G: 255, B: 255, A: 255},
	emotion.Surprise: {R: 255, G: 255, A: 255},
	emotion.Fear:     {R: 255, B: 255, A: 255},
	emotion.Disgust:  {G: 255, B: 255, A: 255},
}

// NoFace 不含人脸的帧颜色
var NoFace = color.RGBA{A: 255}

// Classify 实现 emotion.Classifier
func (ColorClassifier) Classify(_ context.Context, img emotion.Image) ([]emotion.Face, error) {
	b := img.Image.Bounds()
	r, g, bl, _ := img.Image.At(b.Min.X, b.Min.Y).RGBA()
	px := color.RGBA{R: uint8(r >> 8), G: uint8(g >> 8), B: uint8(bl >> 8), A: 255}
	for label, c := range Palette {
		if c == px {
			return []emotion.Face{{Box: b, Emotions: map[emotion.Label]float64{label: 0.9}}}, nil
		}
	}
	return nil, nil
}

// FailingClassifier 始终返回错误
type FailingClassifier struct{}

// Classify 实现 emotion.Classifier
func (FailingClassifier) Classify(context.Context, emotion.Image) ([]emotion.Face, error) {
	return nil, errors.New("model crashed")
}

// SlowClassifier 延迟后委托给内部分类器
type SlowClassifier struct {
	Delay time.Duration
	Inner emotion.Classifier
}

// Classify 实现 emotion.Classifier
func (s SlowClassifier) Classify(ctx context.Context, img emotion.Image) ([]emotion.Face, error) {
	select {
	case <-time.After(s.Delay):
	case <-ctx.Done():
		return nil, ctx.Err()
	}
	return s.Inner.Classify(ctx, img)
}

func copyScores(in map[emotion.Label]float64) map[emotion.Label]float64 {
	out := make(map[emotion.Label]float64, len(in))
	for k, v := range in {
		out[k] = v
	}
	return out
}

