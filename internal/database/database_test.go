package database

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSQLiteFilePath(t *testing.T) {
	cases := []struct {
		dsn  string
		path string
		ok   bool
	}{
		{":memory:", "", false},
		{"file::memory:?cache=shared", "", false},
		{"file:test.db?mode=memory", "", false},
		{"data/app.db", "data/app.db", true},
		{"data/app.db?_pragma=busy_timeout(5000)", "data/app.db", true},
		{"file:data/app.db?cache=shared", "data/app.db", true},
	}
	for _, c := range cases {
		path, ok := sqliteFilePath(c.dsn)
		assert.Equal(t, c.ok, ok, c.dsn)
		assert.Equal(t, c.path, path, c.dsn)
	}
}

func TestOpenGormSQLiteCreatesDirectory(t *testing.T) {
	dsn := filepath.Join(t.TempDir(), "nested", "interviews.db")
	db, err := OpenGorm("sqlite", dsn)
	require.NoError(t, err)
	sqlDB, err := db.DB()
	require.NoError(t, err)
	defer sqlDB.Close()
	assert.NoError(t, sqlDB.Ping())
	assert.FileExists(t, dsn)
}

func TestOpenGormRejectsUnknownDriver(t *testing.T) {
	_, err := OpenGorm("oracle", "x")
	assert.Error(t, err)

	_, err = OpenGorm("postgres", "")
	assert.Error(t, err)
}
