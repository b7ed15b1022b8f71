package logger

import (
	"fmt"
	"os"
	"strings"

	"github.com/sirupsen/logrus"
)

// Init 初始化日志器
func Init(level, format string) error {
	if err := SetLevel(level); err != nil {
		return err
	}

	switch strings.ToLower(strings.TrimSpace(format)) {
	case "", "text":
		logrus.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
	case "json":
		logrus.SetFormatter(&logrus.JSONFormatter{})
	default:
		return fmt.Errorf("unsupported log format %q", format)
	}

	logrus.SetOutput(os.Stdout)
	logrus.WithField("level", logrus.GetLevel().String()).Debug("Logger initialized")
	return nil
}

// SetLevel 运行时调整日志级别
func SetLevel(level string) error {
	if strings.TrimSpace(level) == "" {
		level = "info"
	}
	lvl, err := logrus.ParseLevel(level)
	if err != nil {
		return fmt.Errorf("invalid log level %q: %w", level, err)
	}
	logrus.SetLevel(lvl)
	return nil
}

// WithModule 返回带模块字段的日志条目
func WithModule(module string) *logrus.Entry {
	return logrus.WithField("module", module)
}
