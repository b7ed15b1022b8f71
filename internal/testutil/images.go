package testutil

import (
	"bytes"
	"encoding/base64"
	"image"
	"image/color"
	"image/png"

	"InterviewPulse/internal/emotion"
)

// SolidPNG 生成纯色 PNG
func SolidPNG(c color.Color, w, h int) []byte {
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			img.Set(x, y, c)
		}
	}
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		panic(err)
	}
	return buf.Bytes()
}

// SolidPNGBase64 生成纯色 PNG 的 base64 编码
func SolidPNGBase64(c color.Color) string {
	return base64.StdEncoding.EncodeToString(SolidPNG(c, 8, 8))
}

// EmotionFrame 生成 ColorClassifier 识别为指定情绪的帧
func EmotionFrame(label emotion.Label) string {
	return SolidPNGBase64(Palette[label])
}

// EmptyFrame 生成没有人脸的帧
func EmptyFrame() string {
	return SolidPNGBase64(NoFace)
}
