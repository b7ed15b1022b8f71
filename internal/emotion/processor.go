package emotion

import (
	"bytes"
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"image"
	_ "image/gif"
	_ "image/jpeg"
	_ "image/png"
	"math"
	"strings"
	"time"

	"github.com/sirupsen/logrus"
	_ "golang.org/x/image/webp"

	"InterviewPulse/internal/logger"
)

var (
	ErrFrameTooLarge = errors.New("frame too large")
	ErrEmptyFrame    = errors.New("empty frame")
)

// FrameResult 单帧的情绪读数
type FrameResult struct {
	Ordinal          int               `json:"ordinal"`
	ReceivedAt       time.Time         `json:"received_at"`
	Timestamp        float64           `json:"timestamp"` // 距题目开始的秒数，入时间线时赋值
	Emotions         map[Label]float64 `json:"emotions,omitempty"`
	Faces            int               `json:"faces"`
	DecodeFailed     bool              `json:"decode_failed,omitempty"`
	ClassifierFailed bool              `json:"classifier_failed,omitempty"`
}

// Detected 是否检测到人脸情绪
func (f FrameResult) Detected() bool {
	return len(f.Emotions) > 0
}

// ProcessorConfig 帧处理配置
type ProcessorConfig struct {
	ClassifyTimeout time.Duration
	MaxFrameBytes   int
	MaxPixels       int
}

// DefaultProcessorConfig 返回默认配置
func DefaultProcessorConfig() *ProcessorConfig {
	return &ProcessorConfig{
		ClassifyTimeout: 2 * time.Second,
		MaxFrameBytes:   2 * 1024 * 1024,
		MaxPixels:       4096 * 4096,
	}
}

// Processor 解码帧并调用分类器，任何单帧失败都不会向上抛错
type Processor struct {
	classifier Classifier
	capability Capability
	config     *ProcessorConfig
	log        *logrus.Entry
}

// NewProcessor 创建帧处理器，classifier 为 nil 时使用 Unavailable
func NewProcessor(classifier Classifier, capability Capability, config *ProcessorConfig) *Processor {
	if config == nil {
		config = DefaultProcessorConfig()
	}
	if classifier == nil {
		classifier = Unavailable{}
		capability = CapabilityAbsent
	}
	return &Processor{
		classifier: classifier,
		capability: capability,
		config:     config,
		log:        logger.WithModule("frame"),
	}
}

// Capability 返回启动时确定的分类能力
func (p *Processor) Capability() Capability {
	return p.capability
}

// ProcessBase64 处理 base64 编码（可带 data URL 前缀）的帧
func (p *Processor) ProcessBase64(ctx context.Context, encoded string) FrameResult {
	raw, err := DecodeBase64Image(encoded)
	if err != nil {
		p.log.WithError(err).Debug("frame base64 decode failed")
		return FrameResult{DecodeFailed: true}
	}
	return p.Process(ctx, raw)
}

// Process 处理原始图像字节
func (p *Processor) Process(ctx context.Context, raw []byte) FrameResult {
	img, err := p.decode(raw)
	if err != nil {
		p.log.WithError(err).Debug("frame decode failed")
		return FrameResult{DecodeFailed: true}
	}

	faces, err := p.classify(ctx, img)
	if err != nil {
		p.log.WithError(err).Warn("emotion classification failed, treating frame as no face")
		return FrameResult{ClassifierFailed: true}
	}

	return FrameResult{
		Emotions: normalize(primaryFace(faces)),
		Faces:    len(faces),
	}
}

func (p *Processor) decode(raw []byte) (Image, error) {
	if len(raw) == 0 {
		return Image{}, ErrEmptyFrame
	}
	if p.config.MaxFrameBytes > 0 && len(raw) > p.config.MaxFrameBytes {
		return Image{}, fmt.Errorf("%w: %d bytes", ErrFrameTooLarge, len(raw))
	}

	cfg, format, err := image.DecodeConfig(bytes.NewReader(raw))
	if err != nil {
		return Image{}, fmt.Errorf("decode config: %w", err)
	}
	if p.config.MaxPixels > 0 && cfg.Width*cfg.Height > p.config.MaxPixels {
		return Image{}, fmt.Errorf("%w: %dx%d", ErrFrameTooLarge, cfg.Width, cfg.Height)
	}

	decoded, _, err := image.Decode(bytes.NewReader(raw))
	if err != nil {
		return Image{}, fmt.Errorf("decode %s: %w", format, err)
	}
	return Image{Image: decoded, Raw: raw, Format: format}, nil
}

// classify 带超时调用分类器，分类器忽略 ctx 时也不会阻塞调用方
func (p *Processor) classify(ctx context.Context, img Image) ([]Face, error) {
	if p.config.ClassifyTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, p.config.ClassifyTimeout)
		defer cancel()
	}

	type result struct {
		faces []Face
		err   error
	}
	ch := make(chan result, 1)
	go func() {
		defer func() {
			if r := recover(); r != nil {
				ch <- result{err: fmt.Errorf("classifier panic: %v", r)}
			}
		}()
		faces, err := p.classifier.Classify(ctx, img)
		ch <- result{faces: faces, err: err}
	}()

	select {
	case r := <-ch:
		return r.faces, r.err
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// primaryFace 取面积最大的人脸
func primaryFace(faces []Face) map[Label]float64 {
	if len(faces) == 0 {
		return nil
	}
	best := 0
	bestArea := area(faces[0].Box)
	for i := 1; i < len(faces); i++ {
		if a := area(faces[i].Box); a > bestArea {
			best, bestArea = i, a
		}
	}
	return faces[best].Emotions
}

func area(r image.Rectangle) int {
	if r.Empty() {
		return 0
	}
	return r.Dx() * r.Dy()
}

// normalize 丢弃未知标签，置信度截断到[0,1]，总和超过1时归一化
func normalize(in map[Label]float64) map[Label]float64 {
	if len(in) == 0 {
		return nil
	}
	out := make(map[Label]float64, len(in))
	sum := 0.0
	for l, v := range in {
		if !l.IsValid() || math.IsNaN(v) || v <= 0 {
			continue
		}
		if v > 1 {
			v = 1
		}
		out[l] = v
		sum += v
	}
	if len(out) == 0 {
		return nil
	}
	if sum > 1 {
		for l := range out {
			out[l] /= sum
		}
	}
	return out
}

// DecodeBase64Image 解码 base64 图像，兼容 data URL 与 URL-safe 编码
func DecodeBase64Image(encoded string) ([]byte, error) {
	s := strings.TrimSpace(encoded)
	if i := strings.Index(s, ","); i >= 0 && strings.HasPrefix(s, "data:") {
		s = s[i+1:]
	}
	if s == "" {
		return nil, ErrEmptyFrame
	}
	if raw, err := base64.StdEncoding.DecodeString(s); err == nil {
		return raw, nil
	}
	raw, err := base64.RawURLEncoding.DecodeString(strings.TrimRight(s, "="))
	if err != nil {
		return nil, fmt.Errorf("invalid base64 image: %w", err)
	}
	return raw, nil
}
