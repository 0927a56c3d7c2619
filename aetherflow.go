// Package aetherflow wires the OpenConvAI protocol core: an agent directory
// broadcasting over a shared registry topic, a connection handshake protocol,
// and a message router, all on top of one append-only topic log.
package aetherflow

import (
	"context"
	"fmt"
	"log"

	"github.com/aetherflow-dev/aetherflow/connect"
	"github.com/aetherflow-dev/aetherflow/internal/observability"
	"github.com/aetherflow-dev/aetherflow/pkg/config"
	"github.com/aetherflow-dev/aetherflow/registry"
	"github.com/aetherflow-dev/aetherflow/router"
	"github.com/aetherflow-dev/aetherflow/topic"
)

// Service bundles the protocol components over a single topic log.
type Service struct {
	Log         topic.Log
	Directory   *registry.Directory
	Connections *connect.Protocol
	Router      *router.Router

	cfg *config.Config
}

// New builds a service from configuration. The topic backend is selected
// here, by explicit dependency injection; there is no import-time fallback.
func New(cfg *config.Config) (*Service, error) {
	if cfg == nil {
		cfg = config.Default()
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	var logc topic.Log
	switch cfg.TopicBackend {
	case "memory":
		logc = topic.NewMemoryLog(cfg.OperatorAccount, 0)
	case "redis":
		redisLog, err := topic.NewRedisLog(topic.RedisConfig{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
			Prefix:   cfg.Redis.Prefix,
			Operator: cfg.OperatorAccount,
		})
		if err != nil {
			return nil, fmt.Errorf("redis topic log: %w", err)
		}
		logc = redisLog
	default:
		return nil, fmt.Errorf("unknown topic backend: %s", cfg.TopicBackend)
	}

	return NewWithLog(cfg, topic.WrapLog(logc))
}

// NewWithLog builds a service over a caller-supplied topic log. Used by
// tests and by embedders that bring their own ledger client.
func NewWithLog(cfg *config.Config, logc topic.Log) (*Service, error) {
	if cfg == nil {
		cfg = config.Default()
	}

	dirOpts := []registry.Option{registry.WithTTL(cfg.TTLSeconds)}
	if cfg.RegistryTopicID != "" {
		dirOpts = append(dirOpts, registry.WithRegistryTopic(topic.ID(cfg.RegistryTopicID)))
	}
	dir := registry.NewDirectory(logc, dirOpts...)

	var routerOpts []router.Option
	if cfg.Router.RateLimitPerSecond > 0 {
		routerOpts = append(routerOpts,
			router.WithRateLimit(cfg.Router.RateLimitPerSecond, cfg.Router.RateLimitBurst))
	}

	return &Service{
		Log:         logc,
		Directory:   dir,
		Connections: connect.NewProtocol(dir),
		Router:      router.NewRouter(dir, routerOpts...),
		cfg:         cfg,
	}, nil
}

// Start initializes tracing and the registry topic.
func (s *Service) Start(ctx context.Context) error {
	if err := observability.Init(observability.Config{
		ServiceName:  observability.DefaultServiceName,
		Enabled:      s.cfg.Observability.TraceExporter != "none",
		ExporterType: s.cfg.Observability.TraceExporter,
		OTLPEndpoint: s.cfg.Observability.OTLPEndpoint,
	}); err != nil {
		// Tracing is not load-bearing; the protocol runs without it.
		log.Printf("Warning: failed to initialize tracing: %v", err)
	}

	registryTopic, err := s.Directory.InitializeRegistry(ctx)
	if err != nil {
		return fmt.Errorf("initialize registry: %w", err)
	}
	log.Printf("aetherflow: registry topic %s on %s backend", registryTopic, s.cfg.TopicBackend)
	return nil
}

// Stop flushes tracing and releases the topic backend.
func (s *Service) Stop(ctx context.Context) error {
	if err := observability.Shutdown(ctx); err != nil {
		log.Printf("Warning: failed to shut down tracing: %v", err)
	}

	type closer interface{ Close() error }
	inner := s.Log
	if wrapped, ok := inner.(*topic.InstrumentedLog); ok {
		inner = wrapped.Unwrap()
	}
	if c, ok := inner.(closer); ok {
		return c.Close()
	}
	return nil
}
