// Package config loads node configuration from YAML with environment
// variable fallback for credentials and addresses.
package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// Config represents the node configuration.
type Config struct {
	// Network is the consensus network name (testnet, previewnet, mainnet).
	Network string `yaml:"network"`
	// OperatorAccount is the payer account id for topic transactions.
	OperatorAccount string `yaml:"operator_account"`

	// RegistryTopicID reuses an existing registry topic when set; otherwise
	// one is created at startup.
	RegistryTopicID string `yaml:"registry_topic_id"`
	// TTLSeconds is the default message validity window encoded into memos.
	TTLSeconds int `yaml:"ttl_seconds"`
	// MaxConnections is the default per-agent connection limit.
	MaxConnections int `yaml:"max_connections"`

	// TopicBackend selects the topic log implementation: memory, redis.
	TopicBackend string `yaml:"topic_backend"`
	// Redis configures the redis backend.
	Redis RedisConfig `yaml:"redis"`

	// Router configures message routing.
	Router RouterConfig `yaml:"router"`

	// Observability configures metrics and tracing.
	Observability ObservabilityConfig `yaml:"observability"`
}

// RedisConfig holds Redis connection settings.
type RedisConfig struct {
	Addr     string `yaml:"addr"`
	Password string `yaml:"password"`
	DB       int    `yaml:"db"`
	Prefix   string `yaml:"prefix"`
}

// RouterConfig holds message routing settings.
type RouterConfig struct {
	// RateLimitPerSecond bounds each agent's submit rate (0 = unlimited).
	RateLimitPerSecond float64 `yaml:"rate_limit_per_second"`
	// RateLimitBurst is the limiter's burst size.
	RateLimitBurst int `yaml:"rate_limit_burst"`
}

// ObservabilityConfig holds metrics and tracing settings.
type ObservabilityConfig struct {
	// EnableMetrics turns on the Prometheus endpoint.
	EnableMetrics bool `yaml:"enable_metrics"`
	// TraceExporter selects the trace exporter: otlp, stdout, none.
	TraceExporter string `yaml:"trace_exporter"`
	// OTLPEndpoint is the OTLP collector endpoint.
	OTLPEndpoint string `yaml:"otlp_endpoint"`
}

// Load reads configuration from a YAML file.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}

	cfg.applyDefaults()
	return &cfg, nil
}

// Default returns a configuration with all defaults applied, suitable for
// local development on the in-memory backend.
func Default() *Config {
	cfg := &Config{}
	cfg.applyDefaults()
	return cfg
}

func (c *Config) applyDefaults() {
	if c.Network == "" {
		c.Network = "testnet"
	}
	if c.OperatorAccount == "" {
		c.OperatorAccount = os.Getenv("AETHERFLOW_OPERATOR_ACCOUNT")
	}
	if c.OperatorAccount == "" {
		c.OperatorAccount = "0.0.2"
	}
	if c.TTLSeconds == 0 {
		c.TTLSeconds = 60
	}
	if c.MaxConnections == 0 {
		c.MaxConnections = 100
	}
	if c.TopicBackend == "" {
		c.TopicBackend = "memory"
	}
	if c.Redis.Addr == "" {
		c.Redis.Addr = os.Getenv("REDIS_ADDR")
	}
	if c.Redis.Password == "" {
		c.Redis.Password = os.Getenv("REDIS_PASSWORD")
	}
	if c.Router.RateLimitBurst == 0 {
		c.Router.RateLimitBurst = 10
	}
	if c.Observability.TraceExporter == "" {
		c.Observability.TraceExporter = "none"
	}
}

// Save writes the configuration to a YAML file.
func Save(cfg *Config, path string) error {
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}

	return nil
}

// Validate checks if the configuration is valid.
func (c *Config) Validate() error {
	switch c.TopicBackend {
	case "memory":
	case "redis":
		if c.Redis.Addr == "" {
			return fmt.Errorf("redis backend requires redis.addr")
		}
	default:
		return fmt.Errorf("unknown topic backend: %s", c.TopicBackend)
	}

	if c.TTLSeconds < 0 {
		return fmt.Errorf("ttl_seconds must not be negative")
	}
	if c.MaxConnections < 1 {
		return fmt.Errorf("max_connections must be at least 1")
	}
	return nil
}
