package main

import (
	"bytes"
	"context"
	"encoding/base64"
	"fmt"
	"image"
	"image/color"
	"image/png"
	"math/rand"
	"sync"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"InterviewPulse/internal/wsclient"
)

var simulateOpts struct {
	url           string
	token         string
	role          string
	clients       int
	questions     int
	frames        int
	frameInterval time.Duration
}

var simulateCmd = &cobra.Command{
	Use:   "simulate",
	Short: "Run concurrent synthetic interviews against a running gateway",
	RunE:  runSimulate,
}

func init() {
	f := simulateCmd.Flags()
	f.StringVar(&simulateOpts.url, "url", "ws://localhost:8080/ws", "gateway websocket URL")
	f.StringVar(&simulateOpts.token, "token", "sim", "owner token prefix")
	f.StringVar(&simulateOpts.role, "role", "Software Engineer", "interview role")
	f.IntVar(&simulateOpts.clients, "clients", 5, "number of concurrent candidates")
	f.IntVar(&simulateOpts.questions, "questions", 3, "questions per interview")
	f.IntVar(&simulateOpts.frames, "frames", 10, "frames per question")
	f.DurationVar(&simulateOpts.frameInterval, "frame-interval", 100*time.Millisecond, "delay between frames")
}

// runSimulate 每个客户端跑完整场面试，最后打印汇总
func runSimulate(cmd *cobra.Command, args []string) error {
	o := simulateOpts
	fmt.Printf("🔥 Simulating %d interviews against %s\n", o.clients, o.url)

	stats := &ClientStats{}
	frames := syntheticFrames()
	start := time.Now()

	done := make(chan struct{})
	go reportProgress(stats, done)

	g, ctx := errgroup.WithContext(cmd.Context())
	for i := 0; i < o.clients; i++ {
		g.Go(func() error {
			if err := runCandidate(ctx, i, frames, stats); err != nil {
				stats.AddError()
				fmt.Printf("❌ candidate %d: %v\n", i, err)
			}
			return nil
		})
		time.Sleep(10 * time.Millisecond) // 避免连接风暴
	}
	_ = g.Wait()
	close(done)

	elapsed := time.Since(start)
	fmt.Printf("\n📋 Simulation finished in %v\n", elapsed.Round(time.Millisecond))
	fmt.Printf("   Completed interviews: %d/%d\n", stats.GetCompleted(), o.clients)
	fmt.Printf("   Frames sent: %d\n", stats.GetSentMessages())
	fmt.Printf("   Replies received: %d\n", stats.GetReceivedMessages())
	fmt.Printf("   Average RTT: %.1fms\n", stats.GetAverageRTT().Seconds()*1000)
	fmt.Printf("   Reconnects: %d, errors: %d\n", stats.GetReconnects(), stats.GetErrors())
	return nil
}

// reportProgress 每两秒打印一次在线连接与完成数
func reportProgress(stats *ClientStats, done <-chan struct{}) {
	ticker := time.NewTicker(2 * time.Second)
	defer ticker.Stop()
	for {
		select {
		case <-done:
			return
		case <-ticker.C:
			fmt.Printf("   ... connected: %d, completed: %d, frames: %d\n",
				stats.GetConnections(), stats.GetCompleted(), stats.GetSentMessages())
		}
	}
}

func runCandidate(ctx context.Context, idx int, frames []string, stats *ClientStats) error {
	o := simulateOpts
	c := wsclient.New(wsclient.DefaultClientConfig(o.url, fmt.Sprintf("%s-%d", o.token, idx)))
	c.SetStateChangeHandler(func(oldState, newState wsclient.ClientState) {
		if newState == wsclient.StateConnected {
			stats.AddConnection()
		} else if oldState == wsclient.StateConnected {
			stats.RemoveConnection()
		}
	})
	if err := c.Connect(ctx); err != nil {
		return err
	}
	defer func() {
		stats.AddReconnects(c.Reconnects())
		c.Close()
	}()

	started, err := c.StartInterview(ctx, o.role, o.questions)
	if err != nil {
		return fmt.Errorf("start: %w", err)
	}
	stats.AddMessage()

	rng := rand.New(rand.NewSource(int64(idx) + time.Now().UnixNano()))
	for q := 0; q < started.TotalQuestions; q++ {
		for f := 0; f < o.frames; f++ {
			sent := time.Now()
			if _, err := c.SendFrame(ctx, frames[rng.Intn(len(frames))]); err != nil {
				return fmt.Errorf("frame: %w", err)
			}
			stats.AddSentMessage()
			stats.AddMessage()
			stats.AddRTT(time.Since(sent))

			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(o.frameInterval):
			}
		}
		if _, err := c.EndQuestion(ctx, fmt.Sprintf("synthetic answer %d", q)); err != nil {
			return fmt.Errorf("end question %d: %w", q, err)
		}
		stats.AddMessage()
	}

	done, err := c.EndInterview(ctx)
	if err != nil {
		return fmt.Errorf("end interview: %w", err)
	}
	stats.AddMessage()
	stats.AddCompleted()

	dominant := "none"
	if done.Analysis.DominantEmotion != nil {
		dominant = string(*done.Analysis.DominantEmotion)
	}
	fmt.Printf("✅ candidate %d finished %s: confidence %.2f, dominant %s\n",
		idx, done.SessionID, done.Analysis.Averages.Confidence, dominant)
	return nil
}

// syntheticFrames 预先编码几种纯色帧，真实模型会把大多数判为无人脸
func syntheticFrames() []string {
	colors := []color.RGBA{
		{R: 230, G: 190, B: 160, A: 255},
		{R: 200, G: 160, B: 130, A: 255},
		{R: 120, G: 90, B: 70, A: 255},
		{A: 255},
	}
	out := make([]string, 0, len(colors))
	for _, c := range colors {
		img := image.NewRGBA(image.Rect(0, 0, 64, 48))
		for y := 0; y < 48; y++ {
			for x := 0; x < 64; x++ {
				img.Set(x, y, c)
			}
		}
		var buf bytes.Buffer
		png.Encode(&buf, img)
		out = append(out, base64.StdEncoding.EncodeToString(buf.Bytes()))
	}
	return out
}

// ClientStats 模拟客户端统计信息
type ClientStats struct {
	connections      int
	receivedMessages int64
	sentMessages     int64
	completed        int64
	errors           int64
	reconnects       int64
	rttSum           time.Duration
	rttCount         int64
	mu               sync.RWMutex
}

func (s *ClientStats) AddConnection() {
	s.mu.Lock()
	s.connections++
	s.mu.Unlock()
}

func (s *ClientStats) RemoveConnection() {
	s.mu.Lock()
	if s.connections > 0 {
		s.connections--
	}
	s.mu.Unlock()
}

func (s *ClientStats) AddMessage() {
	s.mu.Lock()
	s.receivedMessages++
	s.mu.Unlock()
}

func (s *ClientStats) AddSentMessage() {
	s.mu.Lock()
	s.sentMessages++
	s.mu.Unlock()
}

func (s *ClientStats) AddCompleted() {
	s.mu.Lock()
	s.completed++
	s.mu.Unlock()
}

func (s *ClientStats) AddError() {
	s.mu.Lock()
	s.errors++
	s.mu.Unlock()
}

func (s *ClientStats) AddReconnects(n int) {
	s.mu.Lock()
	s.reconnects += int64(n)
	s.mu.Unlock()
}

func (s *ClientStats) AddRTT(rtt time.Duration) {
	s.mu.Lock()
	s.rttSum += rtt
	s.rttCount++
	s.mu.Unlock()
}

func (s *ClientStats) GetConnections() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.connections
}

func (s *ClientStats) GetReceivedMessages() int64 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.receivedMessages
}

func (s *ClientStats) GetSentMessages() int64 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.sentMessages
}

func (s *ClientStats) GetCompleted() int64 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.completed
}

func (s *ClientStats) GetErrors() int64 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.errors
}

func (s *ClientStats) GetReconnects() int64 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.reconnects
}

func (s *ClientStats) GetAverageRTT() time.Duration {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.rttCount == 0 {
		return 0
	}
	return s.rttSum / time.Duration(s.rttCount)
}
