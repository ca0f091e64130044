package cache

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"

	"github.com/opensource-finance/claimrisk/internal/domain"
)

func sampleResult(id string, score float64) *domain.AnalysisResult {
	return &domain.AnalysisResult{
		ClaimID:   id,
		Timestamp: time.Date(2024, 3, 16, 12, 0, 0, 0, time.UTC),
		RiskScore: domain.RiskScore{
			OverallScore:       score,
			ConfidenceInterval: [2]float64{score - 1, score + 1},
			RiskLevel:          domain.RiskMedium,
		},
		RuleBasedFlags:  []domain.RuleFlag{{RuleID: "RULE_003", RuleName: "Weekend Submission", Severity: domain.SeverityLow}},
		Recommendations: []string{"Request additional supporting documents"},
	}
}

func TestLRUCache(t *testing.T) {
	cache := NewLRUCache(100)
	ctx := context.Background()

	t.Run("SetAndGet", func(t *testing.T) {
		if err := cache.Set(ctx, "key1", []byte("value1"), 0); err != nil {
			t.Fatalf("Set failed: %v", err)
		}

		val, err := cache.Get(ctx, "key1")
		if err != nil {
			t.Fatalf("Get failed: %v", err)
		}
		if string(val) != "value1" {
			t.Errorf("expected 'value1', got '%s'", string(val))
		}
	})

	t.Run("GetMiss", func(t *testing.T) {
		val, err := cache.Get(ctx, "nonexistent")
		if err != nil {
			t.Fatalf("Get failed: %v", err)
		}
		if val != nil {
			t.Errorf("expected nil for cache miss, got: %v", val)
		}
	})

	t.Run("Overwrite", func(t *testing.T) {
		_ = cache.Set(ctx, "k", []byte("first"), 0)
		_ = cache.Set(ctx, "k", []byte("second"), 0)

		val, _ := cache.Get(ctx, "k")
		if string(val) != "second" {
			t.Errorf("expected last write to win, got '%s'", string(val))
		}
	})

	t.Run("Delete", func(t *testing.T) {
		_ = cache.Set(ctx, "key2", []byte("value2"), 0)

		if err := cache.Delete(ctx, "key2"); err != nil {
			t.Fatalf("Delete failed: %v", err)
		}

		val, _ := cache.Get(ctx, "key2")
		if val != nil {
			t.Error("expected nil after delete")
		}
	})

	t.Run("TTLExpiration", func(t *testing.T) {
		_ = cache.Set(ctx, "expiring", []byte("temp"), 10*time.Millisecond)

		val, _ := cache.Get(ctx, "expiring")
		if val == nil {
			t.Error("expected value before expiration")
		}

		time.Sleep(20 * time.Millisecond)

		val, _ = cache.Get(ctx, "expiring")
		if val != nil {
			t.Error("expected nil after expiration")
		}
	})

	t.Run("ZeroTTLNeverExpires", func(t *testing.T) {
		_ = cache.Set(ctx, "forever", []byte("v"), 0)
		time.Sleep(5 * time.Millisecond)

		val, _ := cache.Get(ctx, "forever")
		if val == nil {
			t.Error("expected entry with zero ttl to persist")
		}
	})

	t.Run("LRUEviction", func(t *testing.T) {
		smallCache := NewLRUCache(3)

		_ = smallCache.Set(ctx, "a", []byte("1"), 0)
		_ = smallCache.Set(ctx, "b", []byte("2"), 0)
		_ = smallCache.Set(ctx, "c", []byte("3"), 0)

		// Access 'a' to make it recently used
		_, _ = smallCache.Get(ctx, "a")

		// Add 'd' - should evict 'b' (oldest accessed)
		_ = smallCache.Set(ctx, "d", []byte("4"), 0)

		val, _ := smallCache.Get(ctx, "b")
		if val != nil {
			t.Error("expected 'b' to be evicted")
		}

		val, _ = smallCache.Get(ctx, "a")
		if val == nil {
			t.Error("expected 'a' to still exist")
		}
	})

	t.Run("Unbounded", func(t *testing.T) {
		unbounded := NewLRUCache(0)
		for i := 0; i < 20000; i++ {
			_ = unbounded.Set(ctx, fmt.Sprintf("k%d", i), []byte("v"), 0)
		}

		size, capacity := unbounded.Stats()
		if size != 20000 {
			t.Errorf("expected 20000 entries, got %d", size)
		}
		if capacity != 0 {
			t.Errorf("expected capacity 0, got %d", capacity)
		}
		val, _ := unbounded.Get(ctx, "k0")
		if val == nil {
			t.Error("expected oldest entry to survive in unbounded cache")
		}
	})

	t.Run("Stats", func(t *testing.T) {
		statsCache := NewLRUCache(50)
		_ = statsCache.Set(ctx, "k1", []byte("v1"), 0)
		_ = statsCache.Set(ctx, "k2", []byte("v2"), 0)

		size, capacity := statsCache.Stats()
		if size != 2 {
			t.Errorf("expected size 2, got %d", size)
		}
		if capacity != 50 {
			t.Errorf("expected capacity 50, got %d", capacity)
		}
	})

	t.Run("Ping", func(t *testing.T) {
		if err := cache.Ping(ctx); err != nil {
			t.Errorf("Ping failed: %v", err)
		}
	})

	t.Run("Close", func(t *testing.T) {
		testCache := NewLRUCache(10)
		_ = testCache.Set(ctx, "k", []byte("v"), 0)

		if err := testCache.Close(); err != nil {
			t.Errorf("Close failed: %v", err)
		}

		val, _ := testCache.Get(ctx, "k")
		if val != nil {
			t.Error("expected cache to be cleared after close")
		}
	})
}

func TestAnalysisStore(t *testing.T) {
	ctx := context.Background()
	store := NewAnalysisStore(NewLRUCache(0))

	t.Run("Miss", func(t *testing.T) {
		got, err := store.GetAnalysis(ctx, "CLM-404")
		if err != nil {
			t.Fatalf("GetAnalysis failed: %v", err)
		}
		if got != nil {
			t.Errorf("expected nil for missing analysis, got %+v", got)
		}
	})

	t.Run("RoundTrip", func(t *testing.T) {
		if err := store.SetAnalysis(ctx, "CLM-1", sampleResult("CLM-1", 42.5)); err != nil {
			t.Fatalf("SetAnalysis failed: %v", err)
		}

		raw, _ := store.Get(ctx, "analysis:CLM-1")
		if raw == nil {
			t.Fatal("expected entry under analysis:CLM-1")
		}

		got, err := store.GetAnalysis(ctx, "CLM-1")
		if err != nil {
			t.Fatalf("GetAnalysis failed: %v", err)
		}
		if got.RiskScore.OverallScore != 42.5 {
			t.Errorf("expected score 42.5, got %v", got.RiskScore.OverallScore)
		}
		if len(got.RuleBasedFlags) != 1 || got.RuleBasedFlags[0].RuleID != "RULE_003" {
			t.Errorf("unexpected flags: %+v", got.RuleBasedFlags)
		}
	})

	t.Run("LastPutWins", func(t *testing.T) {
		_ = store.SetAnalysis(ctx, "CLM-2", sampleResult("CLM-2", 10))
		_ = store.SetAnalysis(ctx, "CLM-2", sampleResult("CLM-2", 90))

		got, _ := store.GetAnalysis(ctx, "CLM-2")
		if got.RiskScore.OverallScore != 90 {
			t.Errorf("expected 90, got %v", got.RiskScore.OverallScore)
		}
	})

	t.Run("DeleteAnalysis", func(t *testing.T) {
		_ = store.SetAnalysis(ctx, "CLM-3", sampleResult("CLM-3", 10))
		if err := store.DeleteAnalysis(ctx, "CLM-3"); err != nil {
			t.Fatalf("DeleteAnalysis failed: %v", err)
		}
		got, _ := store.GetAnalysis(ctx, "CLM-3")
		if got != nil {
			t.Error("expected nil after delete")
		}
	})

	t.Run("CorruptEntry", func(t *testing.T) {
		_ = store.Set(ctx, domain.AnalysisKey("CLM-bad"), []byte("{not json"), 0)
		if _, err := store.GetAnalysis(ctx, "CLM-bad"); err == nil {
			t.Error("expected decode error")
		}
	})

	t.Run("ConcurrentPuts", func(t *testing.T) {
		var wg sync.WaitGroup
		for i := 0; i < 50; i++ {
			wg.Add(1)
			go func(i int) {
				defer wg.Done()
				_ = store.SetAnalysis(ctx, "CLM-race", sampleResult("CLM-race", float64(i)))
			}(i)
		}
		wg.Wait()

		got, err := store.GetAnalysis(ctx, "CLM-race")
		if err != nil || got == nil {
			t.Fatalf("expected a complete entry, got %v, %v", got, err)
		}
		if got.ClaimID != "CLM-race" {
			t.Errorf("unexpected claim id %q", got.ClaimID)
		}
	})
}

func TestRedisCache(t *testing.T) {
	mr := miniredis.RunT(t)
	ctx := context.Background()

	cache, err := NewRedisCache(mr.Addr(), "", 0)
	if err != nil {
		t.Fatalf("NewRedisCache failed: %v", err)
	}
	defer cache.Close()

	t.Run("SetAndGet", func(t *testing.T) {
		if err := cache.Set(ctx, "key1", []byte("value1"), 0); err != nil {
			t.Fatalf("Set failed: %v", err)
		}
		if !mr.Exists("claimrisk:key1") {
			t.Error("expected prefixed key in redis")
		}

		val, err := cache.Get(ctx, "key1")
		if err != nil {
			t.Fatalf("Get failed: %v", err)
		}
		if string(val) != "value1" {
			t.Errorf("expected 'value1', got '%s'", string(val))
		}
	})

	t.Run("GetMiss", func(t *testing.T) {
		val, err := cache.Get(ctx, "nonexistent")
		if err != nil {
			t.Fatalf("Get failed: %v", err)
		}
		if val != nil {
			t.Error("expected nil for cache miss")
		}
	})

	t.Run("NoTTLByDefault", func(t *testing.T) {
		_ = cache.Set(ctx, "persistent", []byte("v"), 0)
		if ttl := mr.TTL("claimrisk:persistent"); ttl != 0 {
			t.Errorf("expected no ttl, got %v", ttl)
		}
	})

	t.Run("TTLExpiration", func(t *testing.T) {
		_ = cache.Set(ctx, "expiring", []byte("temp"), time.Minute)
		mr.FastForward(2 * time.Minute)

		val, _ := cache.Get(ctx, "expiring")
		if val != nil {
			t.Error("expected nil after expiration")
		}
	})

	t.Run("Delete", func(t *testing.T) {
		_ = cache.Set(ctx, "key2", []byte("value2"), 0)
		if err := cache.Delete(ctx, "key2"); err != nil {
			t.Fatalf("Delete failed: %v", err)
		}
		if mr.Exists("claimrisk:key2") {
			t.Error("expected key removed from redis")
		}
	})

	t.Run("Ping", func(t *testing.T) {
		if err := cache.Ping(ctx); err != nil {
			t.Errorf("Ping failed: %v", err)
		}
	})
}

func TestRedisCacheUnreachable(t *testing.T) {
	mr := miniredis.RunT(t)
	addr := mr.Addr()
	mr.Close()

	if _, err := NewRedisCache(addr, "", 0); err == nil {
		t.Error("expected connection error")
	}
}

func TestTwoPhaseCache(t *testing.T) {
	mr := miniredis.RunT(t)
	ctx := context.Background()

	remote, err := NewRedisCache(mr.Addr(), "", 0)
	if err != nil {
		t.Fatalf("NewRedisCache failed: %v", err)
	}
	local := NewLRUCache(10)
	tp := newTwoPhase(local, remote, time.Minute)
	defer tp.Close()

	store := NewAnalysisStore(tp)

	t.Run("WritesBothLevels", func(t *testing.T) {
		if err := store.SetAnalysis(ctx, "CLM-1", sampleResult("CLM-1", 60)); err != nil {
			t.Fatalf("SetAnalysis failed: %v", err)
		}
		if v, _ := local.Get(ctx, "analysis:CLM-1"); v == nil {
			t.Error("expected L1 entry")
		}
		if !mr.Exists("claimrisk:analysis:CLM-1") {
			t.Error("expected L2 entry")
		}
		if ttl := mr.TTL("claimrisk:analysis:CLM-1"); ttl != 0 {
			t.Errorf("expected no L2 ttl, got %v", ttl)
		}
	})

	t.Run("ReadThroughPopulatesL1", func(t *testing.T) {
		_ = remote.Set(ctx, "analysis:CLM-2", []byte(`{"claim_id":"CLM-2","risk_score":{"overall_score":12}}`), 0)

		got, err := store.GetAnalysis(ctx, "CLM-2")
		if err != nil {
			t.Fatalf("GetAnalysis failed: %v", err)
		}
		if got == nil || got.RiskScore.OverallScore != 12 {
			t.Fatalf("unexpected result: %+v", got)
		}
		if v, _ := local.Get(ctx, "analysis:CLM-2"); v == nil {
			t.Error("expected L1 to be populated from L2")
		}
	})

	t.Run("DeleteBothLevels", func(t *testing.T) {
		_ = store.SetAnalysis(ctx, "CLM-3", sampleResult("CLM-3", 10))
		if err := store.DeleteAnalysis(ctx, "CLM-3"); err != nil {
			t.Fatalf("DeleteAnalysis failed: %v", err)
		}
		if v, _ := local.Get(ctx, "analysis:CLM-3"); v != nil {
			t.Error("expected L1 entry removed")
		}
		if mr.Exists("claimrisk:analysis:CLM-3") {
			t.Error("expected L2 entry removed")
		}
	})

	t.Run("Ping", func(t *testing.T) {
		if err := tp.Ping(ctx); err != nil {
			t.Errorf("Ping failed: %v", err)
		}
	})
}

func TestNewCache(t *testing.T) {
	t.Run("MemoryType", func(t *testing.T) {
		cache, err := New(domain.CacheConfig{Type: "memory", LocalMaxSize: 100})
		if err != nil {
			t.Fatalf("New failed: %v", err)
		}
		defer cache.Close()

		if _, ok := cache.Cache.(*LRUCache); !ok {
			t.Errorf("expected *LRUCache, got %T", cache.Cache)
		}
	})

	t.Run("RedisType", func(t *testing.T) {
		mr := miniredis.RunT(t)
		cache, err := New(domain.CacheConfig{Type: "redis", RedisAddr: mr.Addr()})
		if err != nil {
			t.Fatalf("New failed: %v", err)
		}
		defer cache.Close()

		if _, ok := cache.Cache.(*RedisCache); !ok {
			t.Errorf("expected *RedisCache, got %T", cache.Cache)
		}
	})

	t.Run("TwoPhaseType", func(t *testing.T) {
		mr := miniredis.RunT(t)
		cache, err := New(domain.CacheConfig{Type: "redis", RedisAddr: mr.Addr(), EnableTwoPhase: true, LocalMaxSize: 10})
		if err != nil {
			t.Fatalf("New failed: %v", err)
		}
		defer cache.Close()

		if _, ok := cache.Cache.(*TwoPhaseCache); !ok {
			t.Errorf("expected *TwoPhaseCache, got %T", cache.Cache)
		}
	})

	t.Run("UnsupportedType", func(t *testing.T) {
		if _, err := New(domain.CacheConfig{Type: "memcached"}); err == nil {
			t.Error("expected error for unsupported type")
		}
	})
}
