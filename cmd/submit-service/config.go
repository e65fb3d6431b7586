package main

import (
	"fmt"
	"os"
	"time"

	"judgehub/internal/common/cache"
	"judgehub/internal/common/db"
	"judgehub/internal/common/mq"
	"judgehub/internal/gateway/service"
	"judgehub/pkg/utils/logger"

	"gopkg.in/yaml.v3"
)

const (
	defaultHTTPAddr        = "0.0.0.0:8086"
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

// TopicConfig names the queue topics the gateway talks to.
type TopicConfig struct {
	Jobs    string `yaml:"jobs"`
	Results string `yaml:"results"`
}

// ConsumerConfig holds consumer tuning for one subscription.
type ConsumerConfig struct {
	Group       string `yaml:"group"`
	Concurrency int    `yaml:"concurrency"`
}

func (c ConsumerConfig) toSubscribeOptions() mq.SubscribeOptions {
	return mq.SubscribeOptions{
		ConsumerGroup: c.Group,
		Concurrency:   c.Concurrency,
	}
}

// GatewayConfig holds submission intake settings.
type GatewayConfig struct {
	MaxCodeBytes   int                     `yaml:"maxCodeBytes"`
	StatusCacheTTL time.Duration           `yaml:"statusCacheTTL"`
	RateLimit      service.RateLimitConfig `yaml:"rateLimit"`
	Timeouts       service.TimeoutConfig   `yaml:"timeouts"`
	ResultConsumer ConsumerConfig          `yaml:"resultConsumer"`
}

// AppConfig holds submit-service configuration.
type AppConfig struct {
	Server   ServerConfig      `yaml:"server"`
	Logger   logger.Config     `yaml:"logger"`
	Database db.PostgresConfig `yaml:"database"`
	Redis    cache.RedisConfig `yaml:"redis"`
	Kafka    mq.KafkaConfig    `yaml:"kafka"`
	Topics   TopicConfig       `yaml:"topics"`
	Gateway  GatewayConfig     `yaml:"gateway"`
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

	if cfg.Gateway.MaxCodeBytes == 0 {
		cfg.Gateway.MaxCodeBytes = 256 * 1024
	}
	if cfg.Gateway.StatusCacheTTL == 0 {
		cfg.Gateway.StatusCacheTTL = 24 * time.Hour
	}
	if cfg.Gateway.RateLimit.Window == 0 {
		cfg.Gateway.RateLimit.Window = time.Minute
	}
	if cfg.Gateway.RateLimit.UserMax == 0 {
		cfg.Gateway.RateLimit.UserMax = 30
	}
	if cfg.Gateway.RateLimit.IPMax == 0 {
		cfg.Gateway.RateLimit.IPMax = 60
	}
	if cfg.Gateway.Timeouts.DB == 0 {
		cfg.Gateway.Timeouts.DB = 3 * time.Second
	}
	if cfg.Gateway.Timeouts.Cache == 0 {
		cfg.Gateway.Timeouts.Cache = 1 * time.Second
	}
	if cfg.Gateway.Timeouts.MQ == 0 {
		cfg.Gateway.Timeouts.MQ = 3 * time.Second
	}
	if cfg.Gateway.ResultConsumer.Group == "" {
		cfg.Gateway.ResultConsumer.Group = "judgehub-gateway"
	}

	return &cfg, nil
}
