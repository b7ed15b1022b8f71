package emotion

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"image"
	"io"
	"net/http"
	"strings"
	"time"
)

// --- 远程情绪模型 (/analyze, /health) ---

type analyzeReq struct {
	Image  string `json:"image"`
	Format string `json:"format"`
}

type faceBox struct {
	X int `json:"x"`
	Y int `json:"y"`
	W int `json:"w"`
	H int `json:"h"`
}

type faceResp struct {
	Box      faceBox            `json:"box"`
	Emotions map[string]float64 `json:"emotions"`
}

type analyzeResp struct {
	Faces []faceResp `json:"faces"`
}

// HTTPClassifier 调用远程情绪识别服务
type HTTPClassifier struct {
	baseURL string
	c       *http.Client
}

// NewHTTPClassifier 创建远程分类器，timeout 为单次请求上限
func NewHTTPClassifier(baseURL string, timeout time.Duration) *HTTPClassifier {
	if timeout <= 0 {
		timeout = 2 * time.Second
	}
	return &HTTPClassifier{
		baseURL: strings.TrimRight(baseURL, "/"),
		c:       &http.Client{Timeout: timeout},
	}
}

// Classify 实现 Classifier
func (h *HTTPClassifier) Classify(ctx context.Context, img Image) ([]Face, error) {
	b, err := json.Marshal(analyzeReq{
		Image:  base64.StdEncoding.EncodeToString(img.Raw),
		Format: img.Format,
	})
	if err != nil {
		return nil, fmt.Errorf("emotion encode: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, h.baseURL+"/analyze", bytes.NewReader(b))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := h.c.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return nil, fmt.Errorf("emotion %s: %s", resp.Status, string(body))
	}

	var out analyzeResp
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, fmt.Errorf("emotion decode: %w", err)
	}

	faces := make([]Face, 0, len(out.Faces))
	for _, f := range out.Faces {
		emotions := make(map[Label]float64, len(f.Emotions))
		for raw, score := range f.Emotions {
			if l, ok := ParseLabel(raw); ok {
				emotions[l] += score
			}
		}
		faces = append(faces, Face{
			Box:      image.Rect(f.Box.X, f.Box.Y, f.Box.X+f.Box.W, f.Box.Y+f.Box.H),
			Emotions: emotions,
		})
	}
	return faces, nil
}

// Probe 实现 Prober
func (h *HTTPClassifier) Probe(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, h.baseURL+"/health", nil)
	if err != nil {
		return err
	}
	resp, err := h.c.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("emotion health %s", resp.Status)
	}
	return nil
}
