package session

import (
	"context"
	"time"

	"github.com/sirupsen/logrus"
)

// Run 周期性清理：空闲封存、驱逐、重试失败的快照，直到 ctx 取消
func (m *Manager) Run(ctx context.Context) {
	ticker := time.NewTicker(m.cfg.JanitorInterval)
	defer ticker.Stop()

	m.log.WithField("interval", m.cfg.JanitorInterval).Info("session janitor started")
	for {
		select {
		case <-ctx.Done():
			if err := m.Flush(context.WithoutCancel(ctx)); err != nil {
				m.log.WithError(err).Warn("final snapshot flush failed")
			}
			m.log.Info("session janitor stopped")
			return
		case <-ticker.C:
			m.Sweep(ctx)
		}
	}
}

// Sweep 执行一轮清理
func (m *Manager) Sweep(ctx context.Context) {
	now := m.now()
	sealed, evicted := 0, 0
	for _, s := range m.snapshotIndex() {
		if m.sealIdle(s, now) {
			sealed++
		}
		if m.evictIdle(ctx, s, now) {
			evicted++
			continue
		}
		_ = m.flushDirty(ctx, s)
	}
	if sealed > 0 || evicted > 0 {
		m.log.WithFields(logrus.Fields{"sealed": sealed, "evicted": evicted}).Info("session sweep")
	}
}

// sealIdle 空闲超时后强制结束当前题的帧采集，状态保持 InProgress
func (m *Manager) sealIdle(s *interviewSession, now time.Time) bool {
	if m.cfg.IdleSealAfter <= 0 {
		return false
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.evicted || s.status != StatusInProgress || s.timeline == nil || s.timeline.Sealed() {
		return false
	}
	if now.Sub(s.lastActivity) < m.cfg.IdleSealAfter {
		return false
	}
	s.timeline.Seal()
	m.log.WithFields(logrus.Fields{"session_id": s.id, "ordinal": s.index}).Info("idle session question sealed")
	return true
}

// evictIdle 长时间空闲的会话先持久化再移出内存；持久化失败则保留
func (m *Manager) evictIdle(ctx context.Context, s *interviewSession, now time.Time) bool {
	if m.cfg.EvictAfter <= 0 {
		return false
	}
	s.mu.Lock()
	if s.evicted || now.Sub(s.lastActivity) < m.cfg.EvictAfter {
		s.mu.Unlock()
		return false
	}
	snap := s.snapshot(now)
	s.mu.Unlock()

	if err := m.persist(ctx, s, snap); err != nil {
		m.log.WithField("session_id", s.id).WithError(err).Warn("eviction postponed, snapshot not saved")
		return false
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.evicted || s.version != snap.Version || now.Sub(s.lastActivity) < m.cfg.EvictAfter {
		return false
	}
	s.evicted = true
	m.mu.Lock()
	delete(m.sessions, s.id)
	m.mu.Unlock()
	if s.status != StatusCompleted {
		m.active.Add(-1)
	}
	m.log.WithField("session_id", s.id).Info("idle session evicted")
	return true
}
