package gateway

import (
	"context"
	"errors"

	"github.com/sirupsen/logrus"

	"InterviewPulse/internal/protocol"
	"InterviewPulse/internal/session"
	"InterviewPulse/internal/store"
)

// handleMessage 解码消息并按连接状态分发；非法状态统一走 error 回复
func (s *Server) handleMessage(ctx context.Context, conn *Connection, data []byte) {
	msg, err := protocol.Decode(data)
	if err != nil {
		if errors.Is(err, protocol.ErrUnknownType) {
			s.log.WithField("client_id", conn.ID).WithError(err).Warn("ignoring unknown message")
			return
		}
		s.sendError(conn, err.Error())
		return
	}

	if msg.Kind().RequiresSession() && conn.state != stateActive {
		s.sendError(conn, "no active interview: send start_interview first")
		return
	}

	switch m := msg.(type) {
	case protocol.StartInterview:
		s.handleStart(ctx, conn, m)
	case protocol.ResumeInterview:
		s.handleResume(ctx, conn, m)
	case protocol.Frame:
		s.handleFrame(ctx, conn, m)
	case protocol.EndQuestion:
		s.handleEndQuestion(ctx, conn, m)
	case protocol.EndInterview:
		s.handleEndInterview(ctx, conn)
	}
}

func (s *Server) handleStart(ctx context.Context, conn *Connection, m protocol.StartInterview) {
	if conn.state == stateActive {
		s.sendError(conn, "an interview is already active on this connection")
		return
	}
	h, err := s.sessions.CreateSession(ctx, m.Token, m.Role, m.NumQuestions, m.Sector)
	if err != nil {
		s.sendFailure(conn, err)
		return
	}
	conn.bind(h.SessionID, h.CurrentQuestion)
	s.log.WithFields(logrus.Fields{"client_id": conn.ID, "session_id": h.SessionID}).Info("interview started")
	s.reply(conn, protocol.NewSessionStarted(h.SessionID, h.Questions, h.CurrentQuestion))
}

func (s *Server) handleResume(ctx context.Context, conn *Connection, m protocol.ResumeInterview) {
	if conn.state == stateActive {
		s.sendError(conn, "an interview is already active on this connection")
		return
	}
	h, err := s.sessions.Resume(ctx, m.SessionID, m.Token)
	if err != nil {
		s.sendFailure(conn, err)
		return
	}
	conn.bind(h.SessionID, h.CurrentQuestion)
	s.log.WithFields(logrus.Fields{"client_id": conn.ID, "session_id": h.SessionID}).Info("interview resumed")
	s.reply(conn, protocol.NewSessionStarted(h.SessionID, h.Questions, h.CurrentQuestion))
}

// handleFrame 接收时间由网关打点，分类在会话锁之外完成
func (s *Server) handleFrame(ctx context.Context, conn *Connection, m protocol.Frame) {
	receivedAt := s.now()
	s.totalFrames.Add(1)

	res := s.frames.ProcessBase64(ctx, m.ImageData)
	res.Ordinal = conn.ordinal
	res.ReceivedAt = receivedAt

	ack, err := s.sessions.RecordFrame(ctx, conn.session(), res)
	if err != nil {
		s.sendFailure(conn, err)
		return
	}
	s.reply(conn, protocol.NewFrameProcessed(res.Emotions, ack.Elapsed, ack.FrameCount))
}

func (s *Server) handleEndQuestion(ctx context.Context, conn *Connection, m protocol.EndQuestion) {
	sessionID := conn.session()
	res, err := s.sessions.SubmitAnswer(ctx, sessionID, conn.ordinal, m.Answer(), nil)
	if err != nil {
		s.sendFailure(conn, err)
		return
	}

	if res.NextOrdinal != nil {
		conn.ordinal = *res.NextOrdinal
		// 下一题随回复一起呈现给客户端
		if _, err := s.sessions.GetCurrentQuestion(ctx, sessionID); err != nil {
			s.log.WithField("session_id", sessionID).WithError(err).Warn("mark next question served failed")
		}
	}
	s.reply(conn, protocol.NewQuestionCompleted(res.Analysis, res.NextOrdinal))
}

func (s *Server) handleEndInterview(ctx context.Context, conn *Connection) {
	sessionID := conn.session()
	a, err := s.sessions.EndSession(ctx, sessionID)
	if err != nil {
		s.sendFailure(conn, err)
		return
	}
	conn.unbind()
	s.log.WithFields(logrus.Fields{"client_id": conn.ID, "session_id": sessionID}).Info("interview completed")
	s.reply(conn, protocol.NewInterviewCompleted(sessionID, a))
}

func (s *Server) reply(conn *Connection, v interface{}) {
	if err := conn.send(v, s.config.WriteTimeout); err != nil {
		s.log.WithField("client_id", conn.ID).WithError(err).Debug("send failed")
	}
}

func (s *Server) sendError(conn *Connection, message string) {
	s.reply(conn, protocol.NewError(message))
}

// sendFailure 把会话错误转成客户端可读的 error 消息
func (s *Server) sendFailure(conn *Connection, err error) {
	switch {
	case errors.Is(err, session.ErrSessionNotFound),
		errors.Is(err, session.ErrOrdinalMismatch),
		errors.Is(err, session.ErrQuestionNotServed),
		errors.Is(err, session.ErrSessionNotCompleted),
		errors.Is(err, session.ErrCapacityExceeded),
		errors.Is(err, session.ErrInvalidArgument),
		errors.Is(err, session.ErrInvalidRole),
		errors.Is(err, session.ErrSessionCompleted):
		s.sendError(conn, err.Error())
	case errors.Is(err, store.ErrCorruptSnapshot):
		conn.unbind()
		s.sendError(conn, "session could not be restored")
	default:
		s.log.WithField("client_id", conn.ID).WithError(err).Error("session operation failed")
		s.sendError(conn, "internal server error")
	}
}
