package domain

import (
	"fmt"
	"math"
)

// Config holds the complete claimrisk configuration.
type Config struct {
	// Server settings
	Server ServerConfig `koanf:"server" json:"server"`

	// Tier determines which backends are used by default
	Tier Tier `koanf:"tier" json:"tier"`

	// Scoring pipeline settings
	Analysis AnalysisConfig `koanf:"analysis" json:"analysis"`

	// Component configurations
	Repository RepositoryConfig `koanf:"repository" json:"repository"`
	Cache      CacheConfig      `koanf:"cache" json:"cache"`
	EventBus   EventBusConfig   `koanf:"event_bus" json:"eventBus"`

	// Observability
	Logging LoggingConfig `koanf:"logging" json:"logging"`
	Tracing TracingConfig `koanf:"tracing" json:"tracing"`
}

// AnalysisConfig tunes the scoring pipeline.
type AnalysisConfig struct {
	// Fusion weights
	MLWeight      float64 `koanf:"ml_weight" json:"mlWeight"`
	BenfordWeight float64 `koanf:"benford_weight" json:"benfordWeight"`
	RulesWeight   float64 `koanf:"rules_weight" json:"rulesWeight"`

	// BenfordThreshold is the chi-square p-value below which amounts are anomalous.
	BenfordThreshold float64 `koanf:"benford_threshold" json:"benfordThreshold"`

	// ModelPath points at a trained model file. Empty selects the heuristic predictor.
	ModelPath      string  `koanf:"model_path" json:"modelPath"`
	ModelThreshold float64 `koanf:"model_threshold" json:"modelThreshold"`

	// BatchConcurrency bounds parallel analyses within one batch.
	BatchConcurrency int `koanf:"batch_concurrency" json:"batchConcurrency"`

	// HighRiskProviders are always flagged by the provider rule.
	HighRiskProviders []string `koanf:"high_risk_providers" json:"highRiskProviders"`

	// HistorySource is "placeholder" or "repository".
	HistorySource string `koanf:"history_source" json:"historySource"`
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	Host         string `koanf:"host" json:"host"`
	Port         int    `koanf:"port" json:"port"`
	ReadTimeout  int    `koanf:"read_timeout" json:"readTimeout"`   // seconds
	WriteTimeout int    `koanf:"write_timeout" json:"writeTimeout"` // seconds
}

// LoggingConfig holds logging settings.
type LoggingConfig struct {
	Level  string `koanf:"level" json:"level"`   // debug, info, warn, error
	Format string `koanf:"format" json:"format"` // json, text
}

// TracingConfig holds OpenTelemetry settings.
type TracingConfig struct {
	Enabled     bool   `koanf:"enabled" json:"enabled"`
	ServiceName string `koanf:"service_name" json:"serviceName"`

	// Endpoint is the OTLP gRPC collector address. Empty keeps the no-op provider.
	Endpoint string `koanf:"endpoint" json:"endpoint"`
}

// Tier represents the deployment tier.
type Tier string

const (
	// TierCommunity runs on SQLite, channels and an in-process cache.
	TierCommunity Tier = "community"

	// TierPro runs on PostgreSQL, NATS and Redis.
	TierPro Tier = "pro"
)

// DefaultConfig returns a default configuration for Community tier.
func DefaultConfig() *Config {
	return &Config{
		Server: ServerConfig{
			Host:         "0.0.0.0",
			Port:         8080,
			ReadTimeout:  30,
			WriteTimeout: 60,
		},
		Tier: TierCommunity,
		Analysis: AnalysisConfig{
			MLWeight:         0.5,
			BenfordWeight:    0.25,
			RulesWeight:      0.25,
			BenfordThreshold: 0.05,
			ModelThreshold:   0.5,
			BatchConcurrency: 8,
			HistorySource:    "placeholder",
		},
		Repository: RepositoryConfig{
			Driver:     "sqlite",
			SQLitePath: "./claimrisk.db",
		},
		Cache: CacheConfig{
			Type:         "memory",
			LocalMaxSize: 0, // analyses are kept until evicted
		},
		EventBus: EventBusConfig{
			Type:              "channel",
			ChannelBufferSize: 1000,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
		},
		Tracing: TracingConfig{
			Enabled:     false,
			ServiceName: "claimrisk",
		},
	}
}

// ProConfig returns a configuration for Pro tier.
func ProConfig() *Config {
	cfg := DefaultConfig()
	cfg.Tier = TierPro
	cfg.Analysis.HistorySource = "repository"
	cfg.Repository = RepositoryConfig{
		Driver:       "postgres",
		PostgresHost: "localhost",
		PostgresPort: 5432,
		PostgresDB:   "claimrisk",
	}
	cfg.Cache = CacheConfig{
		Type:           "redis",
		RedisAddr:      "localhost:6379",
		EnableTwoPhase: true,
		LocalMaxSize:   10000,
	}
	cfg.EventBus = EventBusConfig{
		Type:              "nats",
		NATSUrl:           "nats://localhost:4222",
		NATSMaxReconnects: 10,
		NATSReconnectWait: 5,
		NATSQueueGroup:    "claimrisk-workers",
	}
	cfg.Tracing.Enabled = true
	cfg.Tracing.Endpoint = "localhost:4317"
	return cfg
}

const weightSumTolerance = 1e-6

// Validate checks cross-field constraints after loading.
func (c *Config) Validate() error {
	a := c.Analysis
	if a.MLWeight < 0 || a.BenfordWeight < 0 || a.RulesWeight < 0 {
		return fmt.Errorf("fusion weights must be non-negative")
	}
	if sum := a.MLWeight + a.BenfordWeight + a.RulesWeight; math.Abs(sum-1) > weightSumTolerance {
		return fmt.Errorf("fusion weights must sum to 1, got %v", sum)
	}
	if a.BenfordThreshold <= 0 || a.BenfordThreshold >= 1 {
		return fmt.Errorf("benford threshold must be in (0,1), got %v", a.BenfordThreshold)
	}
	if a.BatchConcurrency < 1 {
		return fmt.Errorf("batch concurrency must be at least 1, got %d", a.BatchConcurrency)
	}
	switch a.HistorySource {
	case "placeholder", "repository":
	default:
		return fmt.Errorf("unknown history source %q", a.HistorySource)
	}
	if c.Server.Port <= 0 {
		return fmt.Errorf("invalid server port %d", c.Server.Port)
	}
	return nil
}
