package config

import (
	"fmt"
	"sync"

	"github.com/fsnotify/fsnotify"
	"github.com/sirupsen/logrus"
	"github.com/spf13/viper"

	"InterviewPulse/internal/logger"
)

// ChangeHandler 配置重新加载后的回调
type ChangeHandler func(cfg *Config)

// Manager 持有当前配置并在文件变化时热重载
type Manager struct {
	mu       sync.RWMutex
	v        *viper.Viper
	current  *Config
	handlers []ChangeHandler
	log      *logrus.Entry
}

// NewManager 加载配置并创建管理器
func NewManager(path string) (*Manager, error) {
	cfg, v, err := Load(path)
	if err != nil {
		return nil, err
	}
	return &Manager{v: v, current: cfg, log: logger.WithModule("config")}, nil
}

// Config 返回当前配置
func (m *Manager) Config() *Config {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.current
}

// ConfigFile 正在使用的配置文件，未找到文件时为空
func (m *Manager) ConfigFile() string {
	return m.v.ConfigFileUsed()
}

// OnChange 注册热重载回调
func (m *Manager) OnChange(fn ChangeHandler) {
	m.mu.Lock()
	m.handlers = append(m.handlers, fn)
	m.mu.Unlock()
}

// Reload 重新读取配置文件；校验失败时保留旧配置
func (m *Manager) Reload() error {
	if m.v.ConfigFileUsed() != "" {
		if err := m.v.ReadInConfig(); err != nil {
			return fmt.Errorf("reread config file: %w", err)
		}
	}
	cfg, err := decode(m.v)
	if err != nil {
		return err
	}

	m.mu.Lock()
	m.current = cfg
	handlers := append([]ChangeHandler(nil), m.handlers...)
	m.mu.Unlock()

	for _, fn := range handlers {
		fn(cfg)
	}
	return nil
}

// Watch 监听配置文件变化（热重载）
func (m *Manager) Watch() {
	if m.v.ConfigFileUsed() == "" {
		m.log.Debug("no config file in use, hot reload disabled")
		return
	}
	m.v.OnConfigChange(func(e fsnotify.Event) {
		if !e.Has(fsnotify.Write) && !e.Has(fsnotify.Create) {
			return
		}
		if err := m.Reload(); err != nil {
			m.log.WithError(err).Warn("config reload rejected, keeping previous configuration")
			return
		}
		m.log.WithField("file", e.Name).Info("configuration reloaded")
	})
	m.v.WatchConfig()
}
