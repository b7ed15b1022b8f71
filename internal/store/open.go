package store

import (
	"context"
	"fmt"
	"strings"
)

// Options 存储选择
type Options struct {
	Driver string
	DSN    string
	Dir    string
}

// Open 按驱动名创建存储：memory、file、sqlite、postgres（gorm）、pgx
func Open(ctx context.Context, opts Options) (Store, error) {
	switch strings.ToLower(strings.TrimSpace(opts.Driver)) {
	case "", "memory":
		return NewMemoryStore(), nil
	case "file":
		return NewFileStore(opts.Dir)
	case "sqlite", "postgres":
		return NewGormStore(opts.Driver, opts.DSN)
	case "pgx":
		return NewPgxStore(ctx, opts.DSN)
	default:
		return nil, fmt.Errorf("unsupported store driver %q", opts.Driver)
	}
}
