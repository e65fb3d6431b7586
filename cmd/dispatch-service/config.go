package main

import (
	"fmt"
	"os"
	"time"

	"judgehub/internal/common/cache"
	"judgehub/internal/common/db"
	"judgehub/internal/common/mq"
	"judgehub/internal/dispatch/judgeclient"
	"judgehub/pkg/utils/logger"

	"gopkg.in/yaml.v3"
)

const (
	defaultHTTPAddr        = "0.0.0.0:8087"
	defaultReadTimeout     = 5 * time.Second
	defaultWriteTimeout    = 10 * time.Second
	defaultIdleTimeout     = 60 * time.Second
	defaultShutdownTimeout = 10 * time.Second
)

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	Addr         string        `yaml:"addr"`
	ReadTimeout  time.Duration `yaml:"readTimeout"`
	WriteTimeout time.Duration `yaml:"writeTimeout"`
	IdleTimeout  time.Duration `yaml:"idleTimeout"`
}

// TopicConfig names the queue topics the dispatcher talks to.
type TopicConfig struct {
	Jobs    string `yaml:"jobs"`
	Results string `yaml:"results"`
}

// KafkaConfig extends the shared queue config with the consumer group.
type KafkaConfig struct {
	mq.KafkaConfig `yaml:",inline"`
	ConsumerGroup  string `yaml:"consumerGroup"`
}

// DispatchConfig holds worker pool and execution node settings.
type DispatchConfig struct {
	Nodes            []string      `yaml:"nodes"`
	WorkerPoolSize   int           `yaml:"workerPoolSize"`
	ExecutionTimeout time.Duration `yaml:"executionTimeout"`
	StatusCacheTTL   time.Duration `yaml:"statusCacheTTL"`
	StoreTimeout     time.Duration `yaml:"storeTimeout"`
	PublishTimeout   time.Duration `yaml:"publishTimeout"`
}

// AppConfig holds dispatch-service configuration.
type AppConfig struct {
	Server   ServerConfig      `yaml:"server"`
	Logger   logger.Config     `yaml:"logger"`
	Database db.PostgresConfig `yaml:"database"`
	Redis    cache.RedisConfig `yaml:"redis"`
	Kafka    KafkaConfig       `yaml:"kafka"`
	Topics   TopicConfig       `yaml:"topics"`
	Dispatch DispatchConfig    `yaml:"dispatch"`
}

func loadYAML(path string, out interface{}) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read config file failed: %w", err)
	}
	if err := yaml.Unmarshal(data, out); err != nil {
		return fmt.Errorf("parse config file failed: %w", err)
	}
	return nil
}

func loadAppConfig(path string) (*AppConfig, error) {
	var cfg AppConfig
	if err := loadYAML(path, &cfg); err != nil {
		return nil, err
	}
	if cfg.Server.Addr == "" {
		cfg.Server.Addr = defaultHTTPAddr
	}
	if cfg.Server.ReadTimeout == 0 {
		cfg.Server.ReadTimeout = defaultReadTimeout
	}
	if cfg.Server.WriteTimeout == 0 {
		cfg.Server.WriteTimeout = defaultWriteTimeout
	}
	if cfg.Server.IdleTimeout == 0 {
		cfg.Server.IdleTimeout = defaultIdleTimeout
	}

	if cfg.Topics.Jobs == "" {
		cfg.Topics.Jobs = "submissions.jobs"
	}
	if cfg.Topics.Results == "" {
		cfg.Topics.Results = "submissions.results"
	}

	if len(cfg.Dispatch.Nodes) == 0 {
		return nil, fmt.Errorf("at least one execution node is required")
	}
	if cfg.Dispatch.WorkerPoolSize == 0 {
		cfg.Dispatch.WorkerPoolSize = 8
	}
	if cfg.Dispatch.ExecutionTimeout == 0 {
		cfg.Dispatch.ExecutionTimeout = judgeclient.DefaultTimeout
	}
	if cfg.Dispatch.StatusCacheTTL == 0 {
		cfg.Dispatch.StatusCacheTTL = 24 * time.Hour
	}
	if cfg.Dispatch.StoreTimeout == 0 {
		cfg.Dispatch.StoreTimeout = 3 * time.Second
	}
	if cfg.Dispatch.PublishTimeout == 0 {
		cfg.Dispatch.PublishTimeout = 3 * time.Second
	}
	if cfg.Kafka.ConsumerGroup == "" {
		cfg.Kafka.ConsumerGroup = "judgehub-dispatch"
	}

	return &cfg, nil
}
