package store

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"InterviewPulse/internal/database"
)

const pgxSchema = `
CREATE TABLE IF NOT EXISTS interview_snapshot_docs (
	session_id  TEXT PRIMARY KEY,
	owner_id    TEXT NOT NULL,
	status      TEXT NOT NULL,
	version     BIGINT NOT NULL,
	document    JSONB NOT NULL,
	started_at  TIMESTAMPTZ NOT NULL,
	updated_at  TIMESTAMPTZ NOT NULL
);
CREATE INDEX IF NOT EXISTS interview_snapshot_docs_owner_idx ON interview_snapshot_docs (owner_id, started_at DESC);
`

// PgxStore 基于 pgxpool 的 JSONB 文档存储
type PgxStore struct {
	pool *pgxpool.Pool
}

// NewPgxStore 连接数据库并建表
func NewPgxStore(ctx context.Context, dsn string) (*PgxStore, error) {
	pool, err := database.ConnectPgx(ctx, dsn, nil)
	if err != nil {
		return nil, err
	}
	if _, err := pool.Exec(ctx, pgxSchema); err != nil {
		pool.Close()
		return nil, fmt.Errorf("create snapshot table: %w", err)
	}
	return &PgxStore{pool: pool}, nil
}

// Save 实现 Store
func (p *PgxStore) Save(ctx context.Context, snap Snapshot) error {
	doc, err := encode(snap)
	if err != nil {
		return err
	}
	_, err = p.pool.Exec(ctx, `
		INSERT INTO interview_snapshot_docs (session_id, owner_id, status, version, document, started_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		ON CONFLICT (session_id) DO UPDATE SET
			owner_id = EXCLUDED.owner_id,
			status = EXCLUDED.status,
			version = EXCLUDED.version,
			document = EXCLUDED.document,
			updated_at = EXCLUDED.updated_at
		WHERE interview_snapshot_docs.version <= EXCLUDED.version`,
		snap.SessionID, snap.OwnerID, snap.Status, int64(snap.Version), doc, snap.StartedAt, snap.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("save snapshot: %w", err)
	}
	return nil
}

// Load 实现 Store
func (p *PgxStore) Load(ctx context.Context, sessionID string) (Snapshot, error) {
	var doc []byte
	err := p.pool.QueryRow(ctx, `SELECT document FROM interview_snapshot_docs WHERE session_id = $1`, sessionID).Scan(&doc)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Snapshot{}, ErrNotFound
		}
		return Snapshot{}, fmt.Errorf("load snapshot: %w", err)
	}
	return decode(sessionID, doc)
}

// List 实现 Store
func (p *PgxStore) List(ctx context.Context, ownerID string) ([]Summary, error) {
	rows, err := p.pool.Query(ctx, `
		SELECT session_id, document FROM interview_snapshot_docs
		WHERE owner_id = $1 ORDER BY started_at DESC`, ownerID)
	if err != nil {
		return nil, fmt.Errorf("list snapshots: %w", err)
	}
	defer rows.Close()

	out := make([]Summary, 0)
	for rows.Next() {
		var id string
		var doc []byte
		if err := rows.Scan(&id, &doc); err != nil {
			return nil, fmt.Errorf("scan snapshot: %w", err)
		}
		snap, err := decode(id, doc)
		if err != nil {
			continue
		}
		out = append(out, snap.Summarize())
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	SortSummaries(out)
	return out, nil
}

// Close 实现 Store
func (p *PgxStore) Close() error {
	p.pool.Close()
	return nil
}
