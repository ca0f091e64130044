// Package worker analyzes submitted claims asynchronously from the event bus.
package worker

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"golang.org/x/sync/errgroup"

	"github.com/opensource-finance/claimrisk/internal/domain"
)

var tracer = otel.Tracer("claimrisk/worker")

// Analyzer runs the analysis pipeline for a stored claim.
type Analyzer interface {
	Analyze(ctx context.Context, claimID string, force bool) (*domain.AnalysisResult, error)
}

// Worker consumes claim.submitted events and analyzes each claim.
type Worker struct {
	bus      domain.EventBus
	analyzer Analyzer

	mu            sync.Mutex
	subscriptions []domain.Subscription
	group         *errgroup.Group
	ctx           context.Context
	cancel        context.CancelFunc
}

// Config holds worker configuration.
type Config struct {
	// Concurrency bounds analyses in flight. Zero means 4.
	Concurrency int
}

// NewWorker creates a new async worker.
func NewWorker(bus domain.EventBus, analyzer Analyzer) *Worker {
	ctx, cancel := context.WithCancel(context.Background())
	return &Worker{
		bus:      bus,
		analyzer: analyzer,
		ctx:      ctx,
		cancel:   cancel,
	}
}

// Start subscribes to claim submissions.
func (w *Worker) Start(cfg Config) error {
	if cfg.Concurrency <= 0 {
		cfg.Concurrency = 4
	}

	w.mu.Lock()
	defer w.mu.Unlock()

	w.group = &errgroup.Group{}
	w.group.SetLimit(cfg.Concurrency)

	sub, err := w.bus.Subscribe(w.ctx, domain.TopicClaimSubmitted, w.dispatch)
	if err != nil {
		return fmt.Errorf("failed to subscribe to %s: %w", domain.TopicClaimSubmitted, err)
	}
	w.subscriptions = append(w.subscriptions, sub)

	slog.Info("worker started",
		"topic", domain.TopicClaimSubmitted,
		"concurrency", cfg.Concurrency,
	)
	return nil
}

// dispatch hands the message to the pool, blocking while it is full.
// Analyses already dispatched run to completion after Stop.
func (w *Worker) dispatch(ctx context.Context, msg *domain.Message) error {
	w.mu.Lock()
	g := w.group
	w.mu.Unlock()

	ctx = context.WithoutCancel(ctx)
	g.Go(func() error {
		if err := w.processClaim(ctx, msg); err != nil {
			slog.Error("async analysis failed",
				"message_id", msg.ID,
				"error", err,
			)
		}
		return nil
	})
	return nil
}

// processClaim analyzes the claim named in a claim.submitted event.
func (w *Worker) processClaim(ctx context.Context, msg *domain.Message) error {
	start := time.Now()

	var event domain.ClaimSubmittedEvent
	if err := json.Unmarshal(msg.Payload, &event); err != nil {
		return fmt.Errorf("failed to parse claim event: %w", err)
	}
	if event.ClaimID == "" {
		return fmt.Errorf("%w: claim event without claim_id", domain.ErrInvalidRequest)
	}

	ctx, span := tracer.Start(ctx, "worker.process_claim")
	defer span.End()
	span.SetAttributes(
		attribute.String("claim.id", event.ClaimID),
		attribute.String("message.id", msg.ID),
	)
	if traceID := msg.Metadata["trace_id"]; traceID != "" {
		span.SetAttributes(attribute.String("origin.trace_id", traceID))
	}

	result, err := w.analyzer.Analyze(ctx, event.ClaimID, event.ForceReanalysis)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return fmt.Errorf("claim %s: %w", event.ClaimID, err)
	}

	slog.Info("claim analyzed",
		"claim_id", event.ClaimID,
		"risk_level", result.RiskScore.RiskLevel,
		"score", result.RiskScore.OverallScore,
		"duration_ms", time.Since(start).Milliseconds(),
	)
	return nil
}

// Stop unsubscribes and waits for analyses in flight.
func (w *Worker) Stop() error {
	w.mu.Lock()
	subs := w.subscriptions
	w.subscriptions = nil
	g := w.group
	w.mu.Unlock()

	for _, sub := range subs {
		if err := sub.Unsubscribe(); err != nil {
			slog.Error("failed to unsubscribe",
				"topic", sub.Topic(),
				"error", err,
			)
		}
	}

	if g != nil {
		_ = g.Wait()
	}
	w.cancel()

	slog.Info("worker stopped")
	return nil
}

// Stats returns worker statistics.
type Stats struct {
	SubscriptionCount int      `json:"subscription_count"`
	Topics            []string `json:"topics"`
}

// GetStats returns current worker statistics.
func (w *Worker) GetStats() Stats {
	w.mu.Lock()
	defer w.mu.Unlock()

	topics := make([]string, len(w.subscriptions))
	for i, sub := range w.subscriptions {
		topics[i] = sub.Topic()
	}
	return Stats{
		SubscriptionCount: len(w.subscriptions),
		Topics:            topics,
	}
}
