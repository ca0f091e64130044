package worker

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/opensource-finance/claimrisk/internal/bus"
	"github.com/opensource-finance/claimrisk/internal/domain"
)

type stubAnalyzer struct {
	mu     sync.Mutex
	calls  []domain.ClaimSubmittedEvent
	fail   map[string]bool
	delay  time.Duration
	active atomic.Int32
	peak   atomic.Int32
}

func (s *stubAnalyzer) Analyze(ctx context.Context, claimID string, force bool) (*domain.AnalysisResult, error) {
	n := s.active.Add(1)
	defer s.active.Add(-1)
	for {
		p := s.peak.Load()
		if n <= p || s.peak.CompareAndSwap(p, n) {
			break
		}
	}
	if s.delay > 0 {
		time.Sleep(s.delay)
	}

	s.mu.Lock()
	s.calls = append(s.calls, domain.ClaimSubmittedEvent{ClaimID: claimID, ForceReanalysis: force})
	s.mu.Unlock()

	if s.fail[claimID] {
		return nil, domain.ErrClaimNotFound
	}
	return &domain.AnalysisResult{
		ClaimID:   claimID,
		RiskScore: domain.RiskScore{OverallScore: 10, RiskLevel: domain.RiskLow},
	}, nil
}

func (s *stubAnalyzer) Calls() []domain.ClaimSubmittedEvent {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]domain.ClaimSubmittedEvent(nil), s.calls...)
}

func publishClaim(t *testing.T, b domain.EventBus, ev domain.ClaimSubmittedEvent) {
	t.Helper()
	payload, _ := json.Marshal(ev)
	if err := b.Publish(context.Background(), domain.TopicClaimSubmitted, payload); err != nil {
		t.Fatalf("Publish failed: %v", err)
	}
}

func TestWorker(t *testing.T) {
	t.Run("StartAndStop", func(t *testing.T) {
		eventBus := bus.NewChannelBus(100)
		defer eventBus.Close()

		w := NewWorker(eventBus, &stubAnalyzer{})
		if err := w.Start(Config{Concurrency: 1}); err != nil {
			t.Fatalf("Start failed: %v", err)
		}

		stats := w.GetStats()
		if stats.SubscriptionCount != 1 || stats.Topics[0] != domain.TopicClaimSubmitted {
			t.Errorf("unexpected stats after start: %+v", stats)
		}

		if err := w.Stop(); err != nil {
			t.Errorf("Stop failed: %v", err)
		}
		if stats := w.GetStats(); stats.SubscriptionCount != 0 {
			t.Errorf("expected 0 subscriptions after stop, got %d", stats.SubscriptionCount)
		}
	})

	t.Run("AnalyzesSubmittedClaims", func(t *testing.T) {
		eventBus := bus.NewChannelBus(100)
		defer eventBus.Close()

		analyzer := &stubAnalyzer{fail: map[string]bool{"CLM-missing": true}}
		w := NewWorker(eventBus, analyzer)
		if err := w.Start(Config{Concurrency: 2}); err != nil {
			t.Fatalf("Start failed: %v", err)
		}

		publishClaim(t, eventBus, domain.ClaimSubmittedEvent{ClaimID: "CLM-1"})
		publishClaim(t, eventBus, domain.ClaimSubmittedEvent{ClaimID: "CLM-missing"})
		publishClaim(t, eventBus, domain.ClaimSubmittedEvent{ClaimID: "CLM-2", ForceReanalysis: true})

		deadline := time.Now().Add(time.Second)
		for len(analyzer.Calls()) < 3 && time.Now().Before(deadline) {
			time.Sleep(5 * time.Millisecond)
		}
		_ = w.Stop()

		calls := analyzer.Calls()
		if len(calls) != 3 {
			t.Fatalf("expected 3 analyses, got %d", len(calls))
		}
		forced := 0
		for _, c := range calls {
			if c.ForceReanalysis {
				forced++
				if c.ClaimID != "CLM-2" {
					t.Errorf("unexpected forced claim %s", c.ClaimID)
				}
			}
		}
		if forced != 1 {
			t.Errorf("expected 1 forced analysis, got %d", forced)
		}
	})

	t.Run("MalformedPayloadIgnored", func(t *testing.T) {
		eventBus := bus.NewChannelBus(100)
		defer eventBus.Close()

		analyzer := &stubAnalyzer{}
		w := NewWorker(eventBus, analyzer)
		_ = w.Start(Config{})

		_ = eventBus.Publish(context.Background(), domain.TopicClaimSubmitted, []byte("{not json"))
		_ = eventBus.Publish(context.Background(), domain.TopicClaimSubmitted, []byte(`{}`))
		publishClaim(t, eventBus, domain.ClaimSubmittedEvent{ClaimID: "CLM-ok"})

		deadline := time.Now().Add(time.Second)
		for len(analyzer.Calls()) < 1 && time.Now().Before(deadline) {
			time.Sleep(5 * time.Millisecond)
		}
		_ = w.Stop()

		calls := analyzer.Calls()
		if len(calls) != 1 || calls[0].ClaimID != "CLM-ok" {
			t.Errorf("expected only CLM-ok to be analyzed, got %+v", calls)
		}
	})

	t.Run("ConcurrencyBounded", func(t *testing.T) {
		eventBus := bus.NewChannelBus(100)
		defer eventBus.Close()

		analyzer := &stubAnalyzer{delay: 20 * time.Millisecond}
		w := NewWorker(eventBus, analyzer)
		_ = w.Start(Config{Concurrency: 2})

		for i := 0; i < 6; i++ {
			publishClaim(t, eventBus, domain.ClaimSubmittedEvent{ClaimID: "CLM-" + string(rune('a'+i))})
		}

		deadline := time.Now().Add(2 * time.Second)
		for len(analyzer.Calls()) < 6 && time.Now().Before(deadline) {
			time.Sleep(5 * time.Millisecond)
		}
		_ = w.Stop()

		if got := len(analyzer.Calls()); got != 6 {
			t.Fatalf("expected 6 analyses, got %d", got)
		}
		if peak := analyzer.peak.Load(); peak > 2 {
			t.Errorf("expected at most 2 concurrent analyses, saw %d", peak)
		}
	})
}

func TestProcessClaimErrors(t *testing.T) {
	w := NewWorker(bus.NewChannelBus(1), &stubAnalyzer{fail: map[string]bool{"CLM-x": true}})

	err := w.processClaim(context.Background(), &domain.Message{Payload: []byte(`{"claim_id":"CLM-x"}`)})
	if !errors.Is(err, domain.ErrClaimNotFound) {
		t.Errorf("expected ErrClaimNotFound, got %v", err)
	}

	err = w.processClaim(context.Background(), &domain.Message{Payload: []byte(`{}`)})
	if !errors.Is(err, domain.ErrInvalidRequest) {
		t.Errorf("expected ErrInvalidRequest, got %v", err)
	}
}
