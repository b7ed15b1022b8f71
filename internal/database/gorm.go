package database

import (
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strings"

	sqliteDriver "github.com/glebarez/sqlite"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"
)

// OpenGorm 按驱动名打开 gorm 连接，支持 sqlite 与 postgres
func OpenGorm(driver, dsn string) (*gorm.DB, error) {
	driver = strings.ToLower(strings.TrimSpace(driver))
	if driver == "" {
		driver = "sqlite"
	}
	dsn = strings.TrimSpace(dsn)
	if dsn == "" {
		if driver != "sqlite" {
			return nil, fmt.Errorf("dsn is required for driver %q", driver)
		}
		dsn = "data/interviews.db"
	}

	cfg := &gorm.Config{Logger: gormlogger.Default.LogMode(gormlogger.Warn)}
	switch driver {
	case "sqlite":
		if err := ensureSQLiteDirectory(dsn); err != nil {
			return nil, err
		}
		return gorm.Open(sqliteDriver.Open(dsn), cfg)
	case "postgres":
		return gorm.Open(postgres.Open(dsn), cfg)
	default:
		return nil, fmt.Errorf("unsupported gorm driver %q", driver)
	}
}

func ensureSQLiteDirectory(dsn string) error {
	path, ok := sqliteFilePath(dsn)
	if !ok {
		return nil
	}
	dir := filepath.Dir(path)
	if dir == "" || dir == "." {
		return nil
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("create sqlite db dir: %w", err)
	}
	return nil
}

// sqliteFilePath 返回 DSN 对应的文件路径，内存库返回 false
func sqliteFilePath(dsn string) (string, bool) {
	raw := strings.TrimSpace(dsn)
	lower := strings.ToLower(raw)
	if raw == "" || lower == ":memory:" || strings.HasPrefix(lower, "file::memory:") {
		return "", false
	}
	if !strings.HasPrefix(lower, "file:") {
		return stripQuery(raw), true
	}

	parsed, err := url.Parse(raw)
	if err != nil {
		return stripQuery(strings.TrimPrefix(raw, "file:")), true
	}
	if strings.EqualFold(parsed.Query().Get("mode"), "memory") {
		return "", false
	}
	if parsed.Path != "" {
		return parsed.Path, true
	}
	if parsed.Opaque != "" {
		return stripQuery(parsed.Opaque), true
	}
	return "", false
}

func stripQuery(v string) string {
	if i := strings.Index(v, "?"); i >= 0 {
		return v[:i]
	}
	return v
}
