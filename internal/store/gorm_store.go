package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"InterviewPulse/internal/database"
)

type snapshotRow struct {
	SessionID string `gorm:"primaryKey;size:64"`
	OwnerID   string `gorm:"index;size:128"`
	Role      string `gorm:"size:128"`
	Status    string `gorm:"size:32"`
	Questions int
	Answered  int
	Version   uint64
	Document  string `gorm:"type:text"`
	StartedAt time.Time `gorm:"index"`
	EndedAt   *time.Time
	UpdatedAt time.Time
}

func (snapshotRow) TableName() string { return "interview_snapshots" }

func (r snapshotRow) toSummary() Summary {
	return Summary{
		SessionID:      r.SessionID,
		OwnerID:        r.OwnerID,
		Role:           r.Role,
		Status:         r.Status,
		TotalQuestions: r.Questions,
		Answered:       r.Answered,
		StartedAt:      r.StartedAt,
		EndedAt:        r.EndedAt,
		UpdatedAt:      r.UpdatedAt,
	}
}

// GormStore 基于 gorm 的存储，支持 sqlite 与 postgres
type GormStore struct {
	db *gorm.DB
}

// NewGormStore 打开连接并迁移表结构
func NewGormStore(driver, dsn string) (*GormStore, error) {
	db, err := database.OpenGorm(driver, dsn)
	if err != nil {
		return nil, fmt.Errorf("open gorm store: %w", err)
	}
	if err := db.AutoMigrate(&snapshotRow{}); err != nil {
		return nil, fmt.Errorf("migrate snapshots: %w", err)
	}
	return &GormStore{db: db}, nil
}

// Save 按会话 id upsert，旧版本不会覆盖新版本
func (g *GormStore) Save(ctx context.Context, snap Snapshot) error {
	doc, err := encode(snap)
	if err != nil {
		return err
	}
	row := snapshotRow{
		SessionID: snap.SessionID,
		OwnerID:   snap.OwnerID,
		Role:      snap.Role,
		Status:    snap.Status,
		Questions: len(snap.Questions),
		Answered:  len(snap.Answers),
		Version:   snap.Version,
		Document:  string(doc),
		StartedAt: snap.StartedAt.UTC(),
		EndedAt:   snap.EndedAt,
		UpdatedAt: snap.UpdatedAt.UTC(),
	}
	err = g.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns: []clause.Column{{Name: "session_id"}},
		DoUpdates: clause.AssignmentColumns([]string{
			"owner_id", "role", "status", "questions", "answered", "version", "document", "ended_at", "updated_at",
		}),
		Where: clause.Where{Exprs: []clause.Expression{
			clause.Expr{SQL: "interview_snapshots.version <= excluded.version"},
		}},
	}).Create(&row).Error
	if err != nil {
		return fmt.Errorf("save snapshot: %w", err)
	}
	return nil
}

// Load 实现 Store
func (g *GormStore) Load(ctx context.Context, sessionID string) (Snapshot, error) {
	var row snapshotRow
	err := g.db.WithContext(ctx).Where("session_id = ?", sessionID).Take(&row).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return Snapshot{}, ErrNotFound
		}
		return Snapshot{}, fmt.Errorf("load snapshot: %w", err)
	}
	return decode(sessionID, []byte(row.Document))
}

// List 实现 Store
func (g *GormStore) List(ctx context.Context, ownerID string) ([]Summary, error) {
	var rows []snapshotRow
	err := g.db.WithContext(ctx).
		Select("session_id", "owner_id", "role", "status", "questions", "answered", "started_at", "ended_at", "updated_at").
		Where("owner_id = ?", ownerID).
		Order("started_at DESC").
		Find(&rows).Error
	if err != nil {
		return nil, fmt.Errorf("list snapshots: %w", err)
	}
	out := make([]Summary, 0, len(rows))
	for _, r := range rows {
		out = append(out, r.toSummary())
	}
	SortSummaries(out)
	return out, nil
}

// Close 实现 Store
func (g *GormStore) Close() error {
	sqlDB, err := g.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}
