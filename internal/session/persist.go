package session

import (
	"context"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/sirupsen/logrus"

	"InterviewPulse/internal/store"
)

// persist 在会话锁之外写快照；同一会话的写入串行，旧版本不会覆盖新版本。
// 失败只记录并标记 dirty，内存状态不回滚。
func (m *Manager) persist(ctx context.Context, s *interviewSession, snap store.Snapshot) error {
	s.persistMu.Lock()
	defer s.persistMu.Unlock()

	if snap.Version <= s.savedVersion {
		return nil
	}

	ctx = context.WithoutCancel(ctx)
	op := func() error {
		saveCtx, cancel := context.WithTimeout(ctx, m.cfg.PersistTimeout)
		defer cancel()
		return m.store.Save(saveCtx, snap)
	}

	b := backoff.NewExponentialBackOff()
	b.InitialInterval = m.cfg.PersistRetryInterval
	b.MaxInterval = 10 * m.cfg.PersistRetryInterval
	b.MaxElapsedTime = 0
	retries := m.cfg.PersistRetries
	if retries < 0 {
		retries = 0
	}

	attempts := 0
	err := backoff.RetryNotify(op, backoff.WithMaxRetries(b, uint64(retries)), func(err error, wait time.Duration) {
		attempts++
		m.log.WithFields(logrus.Fields{
			"session_id": snap.SessionID,
			"version":    snap.Version,
			"attempt":    attempts,
			"retry_in":   wait,
		}).WithError(err).Debug("snapshot save failed, retrying")
	})
	if err != nil {
		s.dirty.Store(true)
		m.log.WithFields(logrus.Fields{
			"session_id": snap.SessionID,
			"version":    snap.Version,
		}).WithError(err).Warn("snapshot save failed, will retry at next mutation")
		return err
	}

	s.savedVersion = snap.Version
	s.dirty.Store(false)
	return nil
}

// flushDirty 重试写入上次失败的快照
func (m *Manager) flushDirty(ctx context.Context, s *interviewSession) error {
	if !s.dirty.Load() {
		return nil
	}
	s.mu.Lock()
	if s.evicted {
		s.mu.Unlock()
		return nil
	}
	snap := s.snapshot(m.now())
	s.mu.Unlock()
	return m.persist(ctx, s, snap)
}

// Flush 把所有未成功持久化的会话写回存储，用于退出前
func (m *Manager) Flush(ctx context.Context) error {
	var firstErr error
	for _, s := range m.snapshotIndex() {
		if err := m.flushDirty(ctx, s); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}
