package cache

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/opensource-finance/claimrisk/internal/domain"
)

// New creates the analysis cache described by cfg.
//   - memory: in-process LRU
//   - redis: Redis, or LRU in front of Redis when two-phase is enabled
func New(cfg domain.CacheConfig) (*AnalysisStore, error) {
	switch cfg.Type {
	case "", "memory":
		return NewAnalysisStore(NewLRUCache(cfg.LocalMaxSize)), nil

	case "redis":
		if cfg.EnableTwoPhase {
			tp, err := NewTwoPhaseCache(cfg)
			if err != nil {
				return nil, err
			}
			return NewAnalysisStore(tp), nil
		}
		rc, err := NewRedisCache(cfg.RedisAddr, cfg.RedisPassword, cfg.RedisDB)
		if err != nil {
			return nil, err
		}
		return NewAnalysisStore(rc), nil

	default:
		return nil, fmt.Errorf("unsupported cache type: %s", cfg.Type)
	}
}

// AnalysisStore stores analysis results as JSON on top of any byte cache.
// Entries never expire; a put replaces the previous value.
type AnalysisStore struct {
	domain.Cache
}

var _ domain.AnalysisCache = (*AnalysisStore)(nil)

// NewAnalysisStore wraps a byte cache.
func NewAnalysisStore(c domain.Cache) *AnalysisStore {
	return &AnalysisStore{Cache: c}
}

// GetAnalysis returns the cached result, or nil, nil when absent.
func (s *AnalysisStore) GetAnalysis(ctx context.Context, claimID string) (*domain.AnalysisResult, error) {
	data, err := s.Get(ctx, domain.AnalysisKey(claimID))
	if err != nil || data == nil {
		return nil, err
	}

	var result domain.AnalysisResult
	if err := json.Unmarshal(data, &result); err != nil {
		return nil, fmt.Errorf("failed to decode cached analysis %s: %w", claimID, err)
	}
	return &result, nil
}

// SetAnalysis stores the result under analysis:<claimID>.
func (s *AnalysisStore) SetAnalysis(ctx context.Context, claimID string, result *domain.AnalysisResult) error {
	data, err := json.Marshal(result)
	if err != nil {
		return fmt.Errorf("failed to encode analysis %s: %w", claimID, err)
	}
	return s.Set(ctx, domain.AnalysisKey(claimID), data, 0)
}

// DeleteAnalysis evicts the result for claimID.
func (s *AnalysisStore) DeleteAnalysis(ctx context.Context, claimID string) error {
	return s.Delete(ctx, domain.AnalysisKey(claimID))
}

// TwoPhaseCache reads through a local LRU (L1) to Redis (L2) and writes
// to both.
type TwoPhaseCache struct {
	local  *LRUCache
	remote *RedisCache
	l1TTL  time.Duration
}

// NewTwoPhaseCache creates a two-phase cache with LRU + Redis.
func NewTwoPhaseCache(cfg domain.CacheConfig) (*TwoPhaseCache, error) {
	remote, err := NewRedisCache(cfg.RedisAddr, cfg.RedisPassword, cfg.RedisDB)
	if err != nil {
		return nil, fmt.Errorf("failed to create redis cache: %w", err)
	}
	return newTwoPhase(NewLRUCache(cfg.LocalMaxSize), remote, cfg.LocalTTL), nil
}

func newTwoPhase(local *LRUCache, remote *RedisCache, l1TTL time.Duration) *TwoPhaseCache {
	if l1TTL <= 0 {
		l1TTL = 5 * time.Minute
	}
	return &TwoPhaseCache{local: local, remote: remote, l1TTL: l1TTL}
}

// Get retrieves from L1 first, then L2. Populates L1 on an L2 hit.
func (c *TwoPhaseCache) Get(ctx context.Context, key string) ([]byte, error) {
	val, err := c.local.Get(ctx, key)
	if err != nil {
		return nil, err
	}
	if val != nil {
		return val, nil
	}

	val, err = c.remote.Get(ctx, key)
	if err != nil {
		return nil, err
	}
	if val != nil {
		_ = c.local.Set(ctx, key, val, c.l1TTL)
	}
	return val, nil
}

// Set writes to L1 with the shorter of the two TTLs and to L2 with ttl.
func (c *TwoPhaseCache) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	l1TTL := c.l1TTL
	if ttl > 0 && ttl < l1TTL {
		l1TTL = ttl
	}
	if err := c.local.Set(ctx, key, value, l1TTL); err != nil {
		return err
	}
	return c.remote.Set(ctx, key, value, ttl)
}

// Delete removes from both L1 and L2.
func (c *TwoPhaseCache) Delete(ctx context.Context, key string) error {
	if err := c.local.Delete(ctx, key); err != nil {
		return err
	}
	return c.remote.Delete(ctx, key)
}

// Ping checks both L1 and L2 health.
func (c *TwoPhaseCache) Ping(ctx context.Context) error {
	if err := c.local.Ping(ctx); err != nil {
		return fmt.Errorf("L1 ping failed: %w", err)
	}
	if err := c.remote.Ping(ctx); err != nil {
		return fmt.Errorf("L2 ping failed: %w", err)
	}
	return nil
}

// Close closes both L1 and L2.
func (c *TwoPhaseCache) Close() error {
	_ = c.local.Close()
	return c.remote.Close()
}

// Stats returns L1 cache statistics.
func (c *TwoPhaseCache) Stats() (size int, capacity int) {
	return c.local.Stats()
}
