package emotion

import (
	"context"
	"image"

	"github.com/sirupsen/logrus"

	"InterviewPulse/internal/logger"
)

// Image 已解码的帧图像，保留原始字节供远程模型使用
type Image struct {
	Image  image.Image
	Raw    []byte
	Format string
}

// Face 检测到的一张人脸
type Face struct {
	Box      image.Rectangle
	Emotions map[Label]float64
}

// Classifier 人脸情绪分类器，每次调用无状态
type Classifier interface {
	// Classify 返回零个或多个人脸；零个人脸不是错误
	Classify(ctx context.Context, img Image) ([]Face, error)
}

// Capability 分类能力
type Capability int

const (
	CapabilityAbsent Capability = iota
	CapabilityPresent
)

func (c Capability) String() string {
	if c == CapabilityPresent {
		return "present"
	}
	return "absent"
}

// Prober 可在启动时探测可用性的分类器
type Prober interface {
	Probe(ctx context.Context) error
}

// Unavailable 模型缺失时的分类器，始终报告没有人脸
type Unavailable struct{}

// Classify 实现 Classifier
func (Unavailable) Classify(context.Context, Image) ([]Face, error) {
	return nil, nil
}

// Detect 启动时检查一次分类能力，不可用时退化为 Unavailable
func Detect(ctx context.Context, c Classifier) (Classifier, Capability) {
	log := logger.WithModule("emotion")
	if c == nil {
		log.Warn("no emotion classifier configured, emotion feedback disabled")
		return Unavailable{}, CapabilityAbsent
	}
	if _, ok := c.(Unavailable); ok {
		return c, CapabilityAbsent
	}
	if p, ok := c.(Prober); ok {
		if err := p.Probe(ctx); err != nil {
			log.WithFields(logrus.Fields{"error": err}).Warn("emotion classifier unreachable, emotion feedback disabled")
			return Unavailable{}, CapabilityAbsent
		}
	}
	log.Info("emotion classifier available")
	return c, CapabilityPresent
}
