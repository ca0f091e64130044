package domain

import (
	"context"
	"time"
)

// Cache defines the byte-level cache operations shared by all backends.
type Cache interface {
	// Get retrieves a value from cache.
	// Returns nil, nil if key not found.
	Get(ctx context.Context, key string) ([]byte, error)

	// Set stores a value. A zero ttl means the entry never expires.
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error

	// Delete removes a value from cache.
	Delete(ctx context.Context, key string) error

	// Health check
	Ping(ctx context.Context) error

	// Lifecycle
	Close() error
}

// AnalysisCache stores the most recent AnalysisResult per claim.
// Entries are replaced wholesale on each put; there is no merge.
type AnalysisCache interface {
	Cache

	// GetAnalysis returns nil, nil when no analysis is cached.
	GetAnalysis(ctx context.Context, claimID string) (*AnalysisResult, error)

	// SetAnalysis overwrites any previous entry for the claim.
	SetAnalysis(ctx context.Context, claimID string, result *AnalysisResult) error

	// DeleteAnalysis evicts the entry for the claim.
	DeleteAnalysis(ctx context.Context, claimID string) error
}

// AnalysisKey is the cache key for a claim's analysis.
func AnalysisKey(claimID string) string {
	return "analysis:" + claimID
}

// CacheConfig holds configuration for cache initialization.
type CacheConfig struct {
	// Type is the cache type: "memory" or "redis"
	Type string `koanf:"type" json:"type"`

	// Local LRU cache settings. MaxSize 0 keeps every entry.
	LocalMaxSize int           `koanf:"local_max_size" json:"localMaxSize"`
	LocalTTL     time.Duration `koanf:"local_ttl" json:"localTtl"`

	// Redis settings
	RedisAddr     string `koanf:"redis_addr" json:"redisAddr"`
	RedisPassword string `koanf:"redis_password" json:"-"`
	RedisDB       int    `koanf:"redis_db" json:"redisDb"`

	// Two-phase settings
	EnableTwoPhase bool `koanf:"enable_two_phase" json:"enableTwoPhase"` // If true, check local first, then Redis
}
