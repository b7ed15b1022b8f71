package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"

	"InterviewPulse/internal/analysis"
	"InterviewPulse/internal/session"
)

// Config 服务配置
type Config struct {
	Log       LogConfig              `mapstructure:"log"`
	Server    ServerConfig           `mapstructure:"server"`
	Session   session.Config         `mapstructure:"session"`
	Insights  analysis.InsightPolicy `mapstructure:"insights"`
	Emotion   EmotionConfig          `mapstructure:"emotion"`
	Store     StoreConfig            `mapstructure:"store"`
	Questions QuestionsConfig        `mapstructure:"questions"`
}

type LogConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

type ServerConfig struct {
	WSAddr            string        `mapstructure:"ws_addr"`
	HTTPAddr          string        `mapstructure:"http_addr"`
	GRPCAddr          string        `mapstructure:"grpc_addr"`
	MaxConnections    int           `mapstructure:"max_connections"`
	ReadTimeout       time.Duration `mapstructure:"read_timeout"`
	WriteTimeout      time.Duration `mapstructure:"write_timeout"`
	PingInterval      time.Duration `mapstructure:"ping_interval"`
	EnableCompression bool          `mapstructure:"enable_compression"`
	LogStream         bool          `mapstructure:"log_stream"`
	ShutdownTimeout   time.Duration `mapstructure:"shutdown_timeout"`
}

type EmotionConfig struct {
	// ClassifierURL 为空表示没有模型，情绪反馈关闭
	ClassifierURL   string        `mapstructure:"classifier_url"`
	ClassifyTimeout time.Duration `mapstructure:"classify_timeout"`
	ProbeTimeout    time.Duration `mapstructure:"probe_timeout"`
	MaxFrameBytes   int           `mapstructure:"max_frame_bytes"`
	MaxPixels       int           `mapstructure:"max_pixels"`
}

type StoreConfig struct {
	Driver string `mapstructure:"driver"`
	DSN    string `mapstructure:"dsn"`
	Dir    string `mapstructure:"dir"`
}

type QuestionsConfig struct {
	// File 为空时使用内置题库
	File string `mapstructure:"file"`
}

var storeDrivers = map[string]bool{"memory": true, "file": true, "sqlite": true, "postgres": true, "pgx": true}

// Load 读取配置；path 为空时在 ./configs 与当前目录查找 interview.yaml，文件缺失时使用默认值
func Load(path string) (*Config, *viper.Viper, error) {
	v := viper.New()
	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.SetConfigName("interview")
		v.SetConfigType("yaml")
		v.AddConfigPath("./configs")
		v.AddConfigPath(".")
	}

	v.SetEnvPrefix("INTERVIEW")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaultValues(v)

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, nil, fmt.Errorf("read config file: %w", err)
		}
	}

	cfg, err := decode(v)
	if err != nil {
		return nil, nil, err
	}
	return cfg, v, nil
}

func decode(v *viper.Viper) (*Config, error) {
	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("decode config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// setDefaultValues 设置默认配置值
func setDefaultValues(v *viper.Viper) {
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "text")

	v.SetDefault("server.ws_addr", ":8080")
	v.SetDefault("server.http_addr", ":8081")
	v.SetDefault("server.grpc_addr", ":9090")
	v.SetDefault("server.max_connections", 1000)
	v.SetDefault("server.read_timeout", "60s")
	v.SetDefault("server.write_timeout", "5s")
	v.SetDefault("server.ping_interval", "25s")
	v.SetDefault("server.enable_compression", true)
	v.SetDefault("server.log_stream", true)
	v.SetDefault("server.shutdown_timeout", "10s")

	sc := session.DefaultConfig()
	v.SetDefault("session.default_questions", sc.DefaultQuestions)
	v.SetDefault("session.max_questions", sc.MaxQuestions)
	v.SetDefault("session.max_active", sc.MaxActive)
	v.SetDefault("session.idle_seal_after", sc.IdleSealAfter.String())
	v.SetDefault("session.evict_after", sc.EvictAfter.String())
	v.SetDefault("session.janitor_interval", sc.JanitorInterval.String())
	v.SetDefault("session.persist_retries", sc.PersistRetries)
	v.SetDefault("session.persist_retry_interval", sc.PersistRetryInterval.String())
	v.SetDefault("session.persist_timeout", sc.PersistTimeout.String())

	p := analysis.DefaultInsightPolicy()
	v.SetDefault("insights.low_detection", p.LowDetection)
	v.SetDefault("insights.high_positive", p.HighPositive)
	v.SetDefault("insights.low_positive", p.LowPositive)
	v.SetDefault("insights.high_negative", p.HighNegative)
	v.SetDefault("insights.high_neutral", p.HighNeutral)

	v.SetDefault("emotion.classifier_url", "")
	v.SetDefault("emotion.classify_timeout", "2s")
	v.SetDefault("emotion.probe_timeout", "3s")
	v.SetDefault("emotion.max_frame_bytes", 2<<20)
	v.SetDefault("emotion.max_pixels", 4096*4096)

	v.SetDefault("store.driver", "file")
	v.SetDefault("store.dsn", "")
	v.SetDefault("store.dir", "data/sessions")

	v.SetDefault("questions.file", "")
}

// Validate 校验配置
func (c *Config) Validate() error {
	if !storeDrivers[strings.ToLower(c.Store.Driver)] {
		return fmt.Errorf("invalid store.driver %q", c.Store.Driver)
	}
	if strings.EqualFold(c.Store.Driver, "file") && c.Store.Dir == "" {
		return fmt.Errorf("store.dir is required for the file driver")
	}
	if strings.EqualFold(c.Store.Driver, "pgx") && c.Store.DSN == "" {
		return fmt.Errorf("store.dsn is required for the pgx driver")
	}

	s := c.Session
	if s.DefaultQuestions < 1 || s.MaxQuestions < s.DefaultQuestions {
		return fmt.Errorf("invalid session question counts: default=%d max=%d", s.DefaultQuestions, s.MaxQuestions)
	}
	if s.EvictAfter > 0 && s.IdleSealAfter > s.EvictAfter {
		return fmt.Errorf("session.idle_seal_after (%v) must not exceed session.evict_after (%v)", s.IdleSealAfter, s.EvictAfter)
	}
	if s.PersistRetries < 0 {
		return fmt.Errorf("invalid session.persist_retries: %d", s.PersistRetries)
	}

	if err := c.Insights.Validate(); err != nil {
		return fmt.Errorf("insights: %w", err)
	}

	if c.Server.ReadTimeout <= 0 || c.Server.WriteTimeout <= 0 {
		return fmt.Errorf("server timeouts must be positive")
	}
	if c.Emotion.ClassifyTimeout <= 0 {
		return fmt.Errorf("invalid emotion.classify_timeout: %v", c.Emotion.ClassifyTimeout)
	}
	if c.Emotion.MaxFrameBytes <= 0 || c.Emotion.MaxPixels <= 0 {
		return fmt.Errorf("emotion frame limits must be positive")
	}
	return nil
}
