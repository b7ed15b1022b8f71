package grpcserver

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/sirupsen/logrus"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/reflection"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/encoding/protojson"
	"google.golang.org/protobuf/types/known/structpb"

	"InterviewPulse/internal/analysis"
	"InterviewPulse/internal/logger"
	"InterviewPulse/internal/session"
	"InterviewPulse/internal/store"
)

// ServiceName gRPC 服务全名
const ServiceName = "interview.v1.InterviewService"

// Sessions gRPC 接口依赖的会话操作
type Sessions interface {
	CreateSession(ctx context.Context, ownerID, role string, numQuestions int, sector string) (session.SessionHandle, error)
	GetCurrentQuestion(ctx context.Context, sessionID string) (session.CurrentQuestion, error)
	SubmitAnswer(ctx context.Context, sessionID string, ordinal int, text string, precomputed *analysis.Aggregate) (session.SubmitResult, error)
	GetInterviewAnalysis(ctx context.Context, sessionID string) (analysis.InterviewAnalysis, error)
	ListSessions(ctx context.Context, ownerID string) ([]session.SessionSummary, error)
	EndSession(ctx context.Context, sessionID string) (analysis.InterviewAnalysis, error)
}

// InterviewService 服务方法集合，请求与响应都是 google.protobuf.Struct
type InterviewService interface {
	CreateSession(context.Context, *structpb.Struct) (*structpb.Struct, error)
	GetCurrentQuestion(context.Context, *structpb.Struct) (*structpb.Struct, error)
	SubmitAnswer(context.Context, *structpb.Struct) (*structpb.Struct, error)
	GetInterviewAnalysis(context.Context, *structpb.Struct) (*structpb.Struct, error)
	ListSessions(context.Context, *structpb.Struct) (*structpb.Struct, error)
	EndSession(context.Context, *structpb.Struct) (*structpb.Struct, error)
}

// InterviewServer gRPC 面试服务实现
type InterviewServer struct {
	sessions Sessions
	log      *logrus.Entry

	requestCount atomic.Int64
	errorCount   atomic.Int64
	startTime    time.Time
}

type sessionRequest struct {
	SessionID string `json:"session_id"`
}

type createSessionRequest struct {
	OwnerID      string `json:"owner_id"`
	Role         string `json:"role"`
	NumQuestions int    `json:"num_questions"`
	Sector       string `json:"sector"`
}

type submitAnswerRequest struct {
	SessionID       string              `json:"session_id"`
	QuestionIndex   int                 `json:"question_index"`
	AnswerText      string              `json:"answer_text"`
	EmotionAnalysis *analysis.Aggregate `json:"emotion_analysis"`
}

type listSessionsRequest struct {
	OwnerID string `json:"owner_id"`
}

type listSessionsResponse struct {
	Sessions []session.SessionSummary `json:"sessions"`
}

// NewInterviewServer 创建服务实例
func NewInterviewServer(sessions Sessions) *InterviewServer {
	return &InterviewServer{
		sessions:  sessions,
		log:       logger.WithModule("grpcserver"),
		startTime: time.Now(),
	}
}

// CreateSession 创建面试会话
func (s *InterviewServer) CreateSession(ctx context.Context, in *structpb.Struct) (*structpb.Struct, error) {
	var req createSessionRequest
	if err := decodeRequest(in, &req); err != nil {
		return nil, err
	}
	h, err := s.sessions.CreateSession(ctx, req.OwnerID, req.Role, req.NumQuestions, req.Sector)
	if err != nil {
		return nil, toStatus(err)
	}
	return encodeResponse(h)
}

// GetCurrentQuestion 获取当前题目
func (s *InterviewServer) GetCurrentQuestion(ctx context.Context, in *structpb.Struct) (*structpb.Struct, error) {
	var req sessionRequest
	if err := decodeSessionRequest(in, &req); err != nil {
		return nil, err
	}
	q, err := s.sessions.GetCurrentQuestion(ctx, req.SessionID)
	if err != nil {
		return nil, toStatus(err)
	}
	return encodeResponse(q)
}

// SubmitAnswer 提交回答，可附带客户端预先算好的聚合结果
func (s *InterviewServer) SubmitAnswer(ctx context.Context, in *structpb.Struct) (*structpb.Struct, error) {
	var req submitAnswerRequest
	if err := decodeRequest(in, &req); err != nil {
		return nil, err
	}
	if req.SessionID == "" {
		return nil, status.Error(codes.InvalidArgument, "session_id is required")
	}
	res, err := s.sessions.SubmitAnswer(ctx, req.SessionID, req.QuestionIndex, req.AnswerText, req.EmotionAnalysis)
	if err != nil {
		return nil, toStatus(err)
	}
	return encodeResponse(res)
}

// GetInterviewAnalysis 获取整体分析
func (s *InterviewServer) GetInterviewAnalysis(ctx context.Context, in *structpb.Struct) (*structpb.Struct, error) {
	var req sessionRequest
	if err := decodeSessionRequest(in, &req); err != nil {
		return nil, err
	}
	a, err := s.sessions.GetInterviewAnalysis(ctx, req.SessionID)
	if err != nil {
		return nil, toStatus(err)
	}
	return encodeResponse(a)
}

// ListSessions 列出会话摘要
func (s *InterviewServer) ListSessions(ctx context.Context, in *structpb.Struct) (*structpb.Struct, error) {
	var req listSessionsRequest
	if err := decodeRequest(in, &req); err != nil {
		return nil, err
	}
	list, err := s.sessions.ListSessions(ctx, req.OwnerID)
	if err != nil {
		return nil, toStatus(err)
	}
	if list == nil {
		list = []session.SessionSummary{}
	}
	return encodeResponse(listSessionsResponse{Sessions: list})
}

// EndSession 结束面试
func (s *InterviewServer) EndSession(ctx context.Context, in *structpb.Struct) (*structpb.Struct, error) {
	var req sessionRequest
	if err := decodeSessionRequest(in, &req); err != nil {
		return nil, err
	}
	a, err := s.sessions.EndSession(ctx, req.SessionID)
	if err != nil {
		return nil, toStatus(err)
	}
	return encodeResponse(a)
}

// GetStats 获取服务统计信息
func (s *InterviewServer) GetStats() map[string]interface{} {
	return map[string]interface{}{
		"uptime_seconds": time.Since(s.startTime).Seconds(),
		"total_requests": s.requestCount.Load(),
		"error_count":    s.errorCount.Load(),
	}
}

// unaryInterceptor 统计与日志
func (s *InterviewServer) unaryInterceptor(ctx context.Context, req interface{}, info *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (interface{}, error) {
	start := time.Now()
	s.requestCount.Add(1)
	resp, err := handler(ctx, req)
	entry := s.log.WithFields(logrus.Fields{
		"method":   info.FullMethod,
		"duration": time.Since(start),
	})
	if err != nil {
		s.errorCount.Add(1)
		entry.WithField("code", status.Code(err)).Debug("rpc failed")
	} else {
		entry.Debug("rpc handled")
	}
	return resp, err
}

// NewGRPCServer 创建 gRPC 服务器并注册面试、健康检查与反射服务
func NewGRPCServer(srv *InterviewServer, opts ...grpc.ServerOption) (*grpc.Server, *health.Server) {
	opts = append(opts, grpc.ChainUnaryInterceptor(srv.unaryInterceptor))
	g := grpc.NewServer(opts...)
	g.RegisterService(&serviceDesc, srv)

	hs := health.NewServer()
	hs.SetServingStatus(ServiceName, healthpb.HealthCheckResponse_SERVING)
	hs.SetServingStatus("", healthpb.HealthCheckResponse_SERVING)
	healthpb.RegisterHealthServer(g, hs)
	reflection.Register(g)
	return g, hs
}

var serviceDesc = grpc.ServiceDesc{
	ServiceName: ServiceName,
	HandlerType: (*InterviewService)(nil),
	Methods: []grpc.MethodDesc{
		unary("CreateSession", InterviewService.CreateSession),
		unary("GetCurrentQuestion", InterviewService.GetCurrentQuestion),
		unary("SubmitAnswer", InterviewService.SubmitAnswer),
		unary("GetInterviewAnalysis", InterviewService.GetInterviewAnalysis),
		unary("ListSessions", InterviewService.ListSessions),
		unary("EndSession", InterviewService.EndSession),
	},
	Streams:  []grpc.StreamDesc{},
	Metadata: "interview/v1/interview.proto",
}

type unaryMethod func(InterviewService, context.Context, *structpb.Struct) (*structpb.Struct, error)

func unary(name string, call unaryMethod) grpc.MethodDesc {
	return grpc.MethodDesc{
		MethodName: name,
		Handler: func(srv interface{}, ctx context.Context, dec func(interface{}) error, interceptor grpc.UnaryServerInterceptor) (interface{}, error) {
			in := new(structpb.Struct)
			if err := dec(in); err != nil {
				return nil, err
			}
			if interceptor == nil {
				return call(srv.(InterviewService), ctx, in)
			}
			info := &grpc.UnaryServerInfo{Server: srv, FullMethod: "/" + ServiceName + "/" + name}
			handler := func(ctx context.Context, req interface{}) (interface{}, error) {
				return call(srv.(InterviewService), ctx, req.(*structpb.Struct))
			}
			return interceptor(ctx, in, info, handler)
		},
	}
}

func decodeRequest(in *structpb.Struct, v interface{}) error {
	if in == nil {
		in = &structpb.Struct{}
	}
	data, err := protojson.Marshal(in)
	if err != nil {
		return status.Errorf(codes.InvalidArgument, "malformed request: %v", err)
	}
	if err := json.Unmarshal(data, v); err != nil {
		return status.Errorf(codes.InvalidArgument, "malformed request: %v", err)
	}
	return nil
}

func decodeSessionRequest(in *structpb.Struct, req *sessionRequest) error {
	if err := decodeRequest(in, req); err != nil {
		return err
	}
	if req.SessionID == "" {
		return status.Error(codes.InvalidArgument, "session_id is required")
	}
	return nil
}

func encodeResponse(v interface{}) (*structpb.Struct, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return nil, status.Errorf(codes.Internal, "encode response: %v", err)
	}
	out := &structpb.Struct{}
	if err := protojson.Unmarshal(data, out); err != nil {
		return nil, status.Errorf(codes.Internal, "encode response: %v", err)
	}
	return out, nil
}

// toStatus 会话错误到 gRPC 状态码
func toStatus(err error) error {
	switch {
	case errors.Is(err, session.ErrSessionNotFound):
		return status.Error(codes.NotFound, err.Error())
	case errors.Is(err, session.ErrSessionCompleted),
		errors.Is(err, session.ErrSessionNotCompleted),
		errors.Is(err, session.ErrOrdinalMismatch),
		errors.Is(err, session.ErrQuestionNotServed):
		return status.Error(codes.FailedPrecondition, err.Error())
	case errors.Is(err, session.ErrInvalidArgument),
		errors.Is(err, session.ErrInvalidRole):
		return status.Error(codes.InvalidArgument, err.Error())
	case errors.Is(err, session.ErrCapacityExceeded):
		return status.Error(codes.ResourceExhausted, err.Error())
	case errors.Is(err, store.ErrCorruptSnapshot):
		return status.Error(codes.DataLoss, "session could not be restored")
	default:
		return status.Error(codes.Internal, fmt.Sprintf("internal error: %v", err))
	}
}
