package httpserver

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/mux"
	"github.com/rs/cors"
	"github.com/sirupsen/logrus"

	"InterviewPulse/internal/analysis"
	"InterviewPulse/internal/emotion"
	"InterviewPulse/internal/logger"
	"InterviewPulse/internal/session"
	"InterviewPulse/internal/store"
)

// Sessions REST 接口依赖的会话操作
type Sessions interface {
	CreateSession(ctx context.Context, ownerID, role string, numQuestions int, sector string) (session.SessionHandle, error)
	GetCurrentQuestion(ctx context.Context, sessionID string) (session.CurrentQuestion, error)
	SubmitAnswer(ctx context.Context, sessionID string, ordinal int, text string, precomputed *analysis.Aggregate) (session.SubmitResult, error)
	RecordFrame(ctx context.Context, sessionID string, frame emotion.FrameResult) (session.FrameAck, error)
	EndSession(ctx context.Context, sessionID string) (analysis.InterviewAnalysis, error)
	GetInterviewAnalysis(ctx context.Context, sessionID string) (analysis.InterviewAnalysis, error)
	ListSessions(ctx context.Context, ownerID string) ([]session.SessionSummary, error)
	Stats() session.Stats
}

// FrameProcessor 帧解码与分类
type FrameProcessor interface {
	ProcessBase64(ctx context.Context, encoded string) emotion.FrameResult
}

// APIServer 同步 REST 接口
type APIServer struct {
	router   *mux.Router
	server   *http.Server
	sessions Sessions
	frames   FrameProcessor
	log      *logrus.Entry

	requestCount atomic.Int64
	errorCount   atomic.Int64
	responseTime []time.Duration
	startTime    time.Time
	mu           sync.RWMutex

	sources map[string]StatsSource
}

// StatsSource 附加到 /stats 的统计来源
type StatsSource func() map[string]interface{}

// APIResponse 统一响应结构
type APIResponse struct {
	Success   bool        `json:"success"`
	Data      interface{} `json:"data,omitempty"`
	Message   string      `json:"message,omitempty"`
	Code      string      `json:"code,omitempty"`
	Timestamp int64       `json:"timestamp"`
}

type createSessionRequest struct {
	OwnerID      string `json:"owner_id"`
	Role         string `json:"role"`
	NumQuestions int    `json:"num_questions"`
	Sector       string `json:"sector"`
}

type submitAnswerRequest struct {
	QuestionIndex   *int                `json:"question_index"`
	AnswerText      string              `json:"answer_text"`
	EmotionAnalysis *analysis.Aggregate `json:"emotion_analysis,omitempty"`
}

type frameRequest struct {
	ImageData string `json:"image_data"`
}

type frameResponse struct {
	Results     []emotion.Score `json:"results"`
	Accepted    bool            `json:"accepted"`
	ElapsedTime float64         `json:"elapsed_time"`
	FrameCount  int             `json:"frame_count"`
}

// NewAPIServer 创建 REST 服务器
func NewAPIServer(addr string, sessions Sessions, frames FrameProcessor) *APIServer {
	s := &APIServer{
		router:    mux.NewRouter(),
		sessions:  sessions,
		frames:    frames,
		log:       logger.WithModule("httpserver"),
		startTime: time.Now(),
		sources:   make(map[string]StatsSource),
	}
	s.setupRoutes()

	c := cors.New(cors.Options{
		AllowedOrigins:   []string{"*"},
		AllowedMethods:   []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders:   []string{"*"},
		AllowCredentials: true,
	})

	s.server = &http.Server{
		Addr:         addr,
		Handler:      c.Handler(s.router),
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  60 * time.Second,
	}
	return s
}

func (s *APIServer) setupRoutes() {
	s.router.Use(s.loggingMiddleware)
	s.router.Use(s.metricsMiddleware)

	api := s.router.PathPrefix("/api/v1").Subrouter()

	api.HandleFunc("/sessions", s.createSessionHandler).Methods("POST")
	api.HandleFunc("/sessions", s.listSessionsHandler).Methods("GET")
	api.HandleFunc("/sessions/{id}/question", s.currentQuestionHandler).Methods("GET")
	api.HandleFunc("/sessions/{id}/answers", s.submitAnswerHandler).Methods("POST")
	api.HandleFunc("/sessions/{id}/frames", s.frameHandler).Methods("POST")
	api.HandleFunc("/sessions/{id}/end", s.endSessionHandler).Methods("POST")
	api.HandleFunc("/sessions/{id}/analysis", s.analysisHandler).Methods("GET")

	api.HandleFunc("/health", s.healthCheckHandler).Methods("GET")
	api.HandleFunc("/stats", s.statsHandler).Methods("GET")
}

// Handler 返回带 CORS 的根处理器
func (s *APIServer) Handler() http.Handler {
	return s.server.Handler
}

func (s *APIServer) loggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		next.ServeHTTP(w, r)
		s.log.WithFields(logrus.Fields{
			"method":   r.Method,
			"uri":      r.RequestURI,
			"remote":   r.RemoteAddr,
			"duration": time.Since(start),
		}).Debug("request handled")
	})
}

func (s *APIServer) metricsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		next.ServeHTTP(w, r)
		duration := time.Since(start)

		s.requestCount.Add(1)
		s.mu.Lock()
		s.responseTime = append(s.responseTime, duration)
		// 保留最近 1000 个请求
		if len(s.responseTime) > 1000 {
			s.responseTime = s.responseTime[1:]
		}
		s.mu.Unlock()
	})
}

func (s *APIServer) createSessionHandler(w http.ResponseWriter, r *http.Request) {
	var req createSessionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.writeErrorResponse(w, http.StatusBadRequest, "invalid_request", "Invalid request body")
		return
	}
	h, err := s.sessions.CreateSession(r.Context(), req.OwnerID, req.Role, req.NumQuestions, req.Sector)
	if err != nil {
		s.writeSessionError(w, err)
		return
	}
	s.writeJSONResponse(w, http.StatusCreated, APIResponse{Success: true, Data: h, Timestamp: time.Now().UnixMilli()})
}

func (s *APIServer) listSessionsHandler(w http.ResponseWriter, r *http.Request) {
	list, err := s.sessions.ListSessions(r.Context(), r.URL.Query().Get("owner_id"))
	if err != nil {
		s.writeSessionError(w, err)
		return
	}
	if list == nil {
		list = []session.SessionSummary{}
	}
	s.writeSuccessResponse(w, list)
}

func (s *APIServer) currentQuestionHandler(w http.ResponseWriter, r *http.Request) {
	q, err := s.sessions.GetCurrentQuestion(r.Context(), mux.Vars(r)["id"])
	if err != nil {
		s.writeSessionError(w, err)
		return
	}
	s.writeSuccessResponse(w, q)
}

func (s *APIServer) submitAnswerHandler(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]
	var req submitAnswerRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.writeErrorResponse(w, http.StatusBadRequest, "invalid_request", "Invalid request body")
		return
	}

	ordinal, err := s.resolveOrdinal(r.Context(), id, req.QuestionIndex)
	if err != nil {
		s.writeSessionError(w, err)
		return
	}
	res, err := s.sessions.SubmitAnswer(r.Context(), id, ordinal, req.AnswerText, req.EmotionAnalysis)
	if err != nil {
		s.writeSessionError(w, err)
		return
	}
	s.writeSuccessResponse(w, res)
}

// frameHandler 同步接收一帧，记入当前题
func (s *APIServer) frameHandler(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]
	receivedAt := time.Now()

	var req frameRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.ImageData == "" {
		s.writeErrorResponse(w, http.StatusBadRequest, "invalid_request", "image_data is required")
		return
	}
	q, err := s.sessions.GetCurrentQuestion(r.Context(), id)
	if err != nil {
		s.writeSessionError(w, err)
		return
	}

	res := s.frames.ProcessBase64(r.Context(), req.ImageData)
	res.Ordinal = q.Ordinal
	res.ReceivedAt = receivedAt
	ack, err := s.sessions.RecordFrame(r.Context(), id, res)
	if err != nil {
		s.writeSessionError(w, err)
		return
	}
	s.writeSuccessResponse(w, frameResponse{
		Results:     emotion.Ranked(res.Emotions),
		Accepted:    ack.Accepted,
		ElapsedTime: ack.Elapsed,
		FrameCount:  ack.FrameCount,
	})
}

func (s *APIServer) endSessionHandler(w http.ResponseWriter, r *http.Request) {
	a, err := s.sessions.EndSession(r.Context(), mux.Vars(r)["id"])
	if err != nil {
		s.writeSessionError(w, err)
		return
	}
	s.writeSuccessResponse(w, a)
}

func (s *APIServer) analysisHandler(w http.ResponseWriter, r *http.Request) {
	a, err := s.sessions.GetInterviewAnalysis(r.Context(), mux.Vars(r)["id"])
	if err != nil {
		s.writeSessionError(w, err)
		return
	}
	s.writeSuccessResponse(w, a)
}

func (s *APIServer) healthCheckHandler(w http.ResponseWriter, r *http.Request) {
	s.writeSuccessResponse(w, map[string]interface{}{
		"status":    "healthy",
		"uptime":    time.Since(s.startTime).Seconds(),
		"timestamp": time.Now().UnixMilli(),
	})
}

func (s *APIServer) statsHandler(w http.ResponseWriter, r *http.Request) {
	stats := s.GetStats()
	st := s.sessions.Stats()
	stats["sessions_in_memory"] = st.InMemory
	stats["sessions_active"] = st.Active
	stats["sessions_dirty"] = st.Dirty
	s.mu.RLock()
	for name, src := range s.sources {
		stats[name] = src()
	}
	s.mu.RUnlock()
	s.writeSuccessResponse(w, stats)
}

// resolveOrdinal 未指定题号时取当前题
func (s *APIServer) resolveOrdinal(ctx context.Context, id string, requested *int) (int, error) {
	if requested != nil {
		return *requested, nil
	}
	q, err := s.sessions.GetCurrentQuestion(ctx, id)
	if err != nil {
		return 0, err
	}
	return q.Ordinal, nil
}

// writeSessionError 会话错误到 HTTP 状态码
func (s *APIServer) writeSessionError(w http.ResponseWriter, err error) {
	var mismatch *session.OrdinalMismatchError
	switch {
	case errors.Is(err, session.ErrSessionNotFound):
		s.writeErrorResponse(w, http.StatusNotFound, "session_not_found", err.Error())
	case errors.As(err, &mismatch):
		s.writeErrorResponse(w, http.StatusConflict, "ordinal_mismatch", err.Error())
	case errors.Is(err, session.ErrSessionCompleted):
		s.writeErrorResponse(w, http.StatusConflict, "session_completed", err.Error())
	case errors.Is(err, session.ErrSessionNotCompleted):
		s.writeErrorResponse(w, http.StatusConflict, "session_not_completed", err.Error())
	case errors.Is(err, session.ErrQuestionNotServed):
		s.writeErrorResponse(w, http.StatusConflict, "question_not_served", err.Error())
	case errors.Is(err, session.ErrInvalidRole):
		s.writeErrorResponse(w, http.StatusBadRequest, "invalid_role", err.Error())
	case errors.Is(err, session.ErrInvalidArgument):
		s.writeErrorResponse(w, http.StatusBadRequest, "invalid_argument", err.Error())
	case errors.Is(err, session.ErrCapacityExceeded):
		s.writeErrorResponse(w, http.StatusServiceUnavailable, "capacity_exceeded", err.Error())
	case errors.Is(err, store.ErrCorruptSnapshot):
		s.writeErrorResponse(w, http.StatusInternalServerError, "corrupt_snapshot", "session could not be restored")
	default:
		s.log.WithError(err).Error("session operation failed")
		s.writeErrorResponse(w, http.StatusInternalServerError, "internal_error", "internal server error")
	}
}

func (s *APIServer) writeSuccessResponse(w http.ResponseWriter, data interface{}) {
	s.writeJSONResponse(w, http.StatusOK, APIResponse{
		Success:   true,
		Data:      data,
		Timestamp: time.Now().UnixMilli(),
	})
}

func (s *APIServer) writeErrorResponse(w http.ResponseWriter, statusCode int, code, message string) {
	s.errorCount.Add(1)
	s.writeJSONResponse(w, statusCode, APIResponse{
		Success:   false,
		Message:   message,
		Code:      code,
		Timestamp: time.Now().UnixMilli(),
	})
}

func (s *APIServer) writeJSONResponse(w http.ResponseWriter, statusCode int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	json.NewEncoder(w).Encode(data)
}

// Start 启动服务器，阻塞直到关闭
func (s *APIServer) Start() error {
	s.log.WithField("addr", s.server.Addr).Info("Starting HTTP API server")
	if err := s.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// AddStatsSource 在 /stats 中以 name 为键附加其他组件的统计
func (s *APIServer) AddStatsSource(name string, src StatsSource) {
	s.mu.Lock()
	s.sources[name] = src
	s.mu.Unlock()
}

// Stop 停止服务器
func (s *APIServer) Stop(ctx context.Context) error {
	s.log.Info("Stopping HTTP API server")
	return s.server.Shutdown(ctx)
}

// GetStats 获取服务器统计信息
func (s *APIServer) GetStats() map[string]interface{} {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var avgResponseTime float64
	if len(s.responseTime) > 0 {
		var total time.Duration
		for _, rt := range s.responseTime {
			total += rt
		}
		avgResponseTime = float64(total.Nanoseconds()) / float64(len(s.responseTime)) / 1e6
	}

	return map[string]interface{}{
		"uptime_seconds":       time.Since(s.startTime).Seconds(),
		"total_requests":       s.requestCount.Load(),
		"error_count":          s.errorCount.Load(),
		"avg_response_time_ms": avgResponseTime,
	}
}
