package store

import (
	"context"
	"sort"
	"sync"
)

// MemoryStore 进程内存储
type MemoryStore struct {
	mu    sync.RWMutex
	snaps map[string]Snapshot
}

// NewMemoryStore 创建内存存储
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{snaps: make(map[string]Snapshot)}
}

// Save 实现 Store
func (m *MemoryStore) Save(_ context.Context, snap Snapshot) error {
	if err := snap.Validate(); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.snaps[snap.SessionID] = snap.Clone()
	return nil
}

// Load 实现 Store
func (m *MemoryStore) Load(_ context.Context, sessionID string) (Snapshot, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	snap, ok := m.snaps[sessionID]
	if !ok {
		return Snapshot{}, ErrNotFound
	}
	return snap.Clone(), nil
}

// List 实现 Store
func (m *MemoryStore) List(_ context.Context, ownerID string) ([]Summary, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]Summary, 0)
	for _, snap := range m.snaps {
		if snap.OwnerID == ownerID {
			out = append(out, snap.Summarize())
		}
	}
	SortSummaries(out)
	return out, nil
}

// Close 实现 Store
func (m *MemoryStore) Close() error { return nil }

// SortSummaries 最新的在前
func SortSummaries(s []Summary) {
	sort.Slice(s, func(i, j int) bool {
		if !s[i].StartedAt.Equal(s[j].StartedAt) {
			return s[i].StartedAt.After(s[j].StartedAt)
		}
		return s[i].SessionID < s[j].SessionID
	})
}
