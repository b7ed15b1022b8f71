package testutil

import (
	"context"
	"math/rand"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"InterviewPulse/internal/emotion"
	"InterviewPulse/internal/questionbank"
	"InterviewPulse/internal/session"
	"InterviewPulse/internal/store"
	"InterviewPulse/internal/wsclient"
)

// Stack 测试用的会话引擎：内存存储、默认题库、给定分类器
type Stack struct {
	Manager   *session.Manager
	Processor *emotion.Processor
	Store     *store.MemoryStore
	Bank      *questionbank.Bank
}

// NewStack 创建测试引擎；classifier 为 nil 时表示模型缺失
func NewStack(t testing.TB, classifier emotion.Classifier) *Stack {
	t.Helper()
	capability := emotion.CapabilityPresent
	if classifier == nil {
		capability = emotion.CapabilityAbsent
	}
	cfg := emotion.DefaultProcessorConfig()
	cfg.ClassifyTimeout = time.Second

	st := store.NewMemoryStore()
	bank := questionbank.Default()
	mgr := session.NewManager(bank, st, session.DefaultConfig(),
		session.WithRand(rand.New(rand.NewSource(7))))

	return &Stack{
		Manager:   mgr,
		Processor: emotion.NewProcessor(classifier, capability, cfg),
		Store:     st,
		Bank:      bank,
	}
}

// WebSocketURL 将 httptest 地址转换为 ws 地址
func WebSocketURL(httpURL, path string) string {
	return "ws" + strings.TrimPrefix(httpURL, "http") + path
}

// Dial 连接网关并在测试结束时关闭
func Dial(t testing.TB, url, token string) *wsclient.Client {
	t.Helper()
	cfg := wsclient.DefaultClientConfig(url, token)
	cfg.RequestTimeout = 5 * time.Second
	cfg.ReconnectInterval = 50 * time.Millisecond
	cfg.MaxReconnectTries = 20
	c := wsclient.New(cfg)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	require.NoError(t, c.Connect(ctx))
	t.Cleanup(func() { c.Close() })
	return c
}
