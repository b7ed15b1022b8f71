package store

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"

	"InterviewPulse/internal/logger"
)

var safeID = regexp.MustCompile(`^[A-Za-z0-9_-]+$`)

// FileStore 每个会话一个 JSON 文档
type FileStore struct {
	dir string
}

// NewFileStore 创建文件存储
func NewFileStore(dir string) (*FileStore, error) {
	if strings.TrimSpace(dir) == "" {
		return nil, errors.New("file store requires a directory")
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create snapshot dir: %w", err)
	}
	return &FileStore{dir: dir}, nil
}

func (f *FileStore) path(sessionID string) (string, error) {
	if !safeID.MatchString(sessionID) {
		return "", fmt.Errorf("invalid session id %q", sessionID)
	}
	return filepath.Join(f.dir, sessionID+".json"), nil
}

// Save 先写临时文件再重命名
func (f *FileStore) Save(_ context.Context, snap Snapshot) error {
	path, err := f.path(snap.SessionID)
	if err != nil {
		return err
	}
	raw, err := encode(snap)
	if err != nil {
		return err
	}
	var buf bytes.Buffer
	if err := json.Indent(&buf, raw, "", "  "); err != nil {
		return err
	}

	tmp, err := os.CreateTemp(f.dir, snap.SessionID+".*.tmp")
	if err != nil {
		return fmt.Errorf("create temp snapshot: %w", err)
	}
	defer os.Remove(tmp.Name())
	if _, err := tmp.Write(buf.Bytes()); err != nil {
		tmp.Close()
		return fmt.Errorf("write snapshot: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("close snapshot: %w", err)
	}
	if err := os.Rename(tmp.Name(), path); err != nil {
		return fmt.Errorf("rename snapshot: %w", err)
	}
	return nil
}

// Load 实现 Store
func (f *FileStore) Load(_ context.Context, sessionID string) (Snapshot, error) {
	path, err := f.path(sessionID)
	if err != nil {
		return Snapshot{}, ErrNotFound
	}
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return Snapshot{}, ErrNotFound
		}
		return Snapshot{}, fmt.Errorf("read snapshot: %w", err)
	}
	return decode(sessionID, data)
}

// List 扫描目录，损坏的文档跳过并记录日志
func (f *FileStore) List(ctx context.Context, ownerID string) ([]Summary, error) {
	entries, err := os.ReadDir(f.dir)
	if err != nil {
		return nil, fmt.Errorf("list snapshots: %w", err)
	}
	out := make([]Summary, 0)
	for _, e := range entries {
		if e.IsDir() || filepath.Ext(e.Name()) != ".json" {
			continue
		}
		id := strings.TrimSuffix(e.Name(), ".json")
		snap, err := f.Load(ctx, id)
		if err != nil {
			logger.WithModule("store").WithField("session_id", id).WithError(err).Warn("skip unreadable snapshot")
			continue
		}
		if snap.OwnerID == ownerID {
			out = append(out, snap.Summarize())
		}
	}
	SortSummaries(out)
	return out, nil
}

// Close 实现 Store
func (f *FileStore) Close() error { return nil }
