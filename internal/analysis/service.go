// Package analysis orchestrates the claim scoring pipeline: feature
// extraction, Benford analysis, rules, prediction, fusion and explanation,
// with the cache consulted before and updated after each computation.
package analysis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"golang.org/x/sync/errgroup"

	"github.com/opensource-finance/claimrisk/internal/benford"
	"github.com/opensource-finance/claimrisk/internal/domain"
	"github.com/opensource-finance/claimrisk/internal/explain"
	"github.com/opensource-finance/claimrisk/internal/features"
	"github.com/opensource-finance/claimrisk/internal/fusion"
	"github.com/opensource-finance/claimrisk/internal/history"
	"github.com/opensource-finance/claimrisk/internal/metrics"
	"github.com/opensource-finance/claimrisk/internal/predictor"
	"github.com/opensource-finance/claimrisk/internal/rules"
)

var tracer = otel.Tracer("claimrisk/analysis")

// DefaultBatchConcurrency bounds parallel analyses in a batch when unset.
const DefaultBatchConcurrency = 8

// Deps are the collaborators of a Service. Store, Cache, Engineer, Benford,
// Rules and Predictor are required; Bus is optional.
type Deps struct {
	Store     domain.Repository
	Cache     domain.AnalysisCache
	Engineer  *features.Engineer
	Benford   *benford.Analyzer
	Rules     *rules.Engine
	Predictor domain.Predictor
	Fuser     *fusion.Fuser
	Explainer *explain.Generator
	Bus       domain.EventBus

	BatchConcurrency int
}

// Service runs analyses. It is safe for concurrent use; concurrent analyses
// of the same claim may both compute and the last cache write wins.
type Service struct {
	store     domain.Repository
	cache     domain.AnalysisCache
	engineer  *features.Engineer
	benford   *benford.Analyzer
	rules     *rules.Engine
	predictor domain.Predictor
	fuser     *fusion.Fuser
	explainer *explain.Generator
	bus       domain.EventBus

	batchLimit int
	now        func() time.Time
}

// NewService creates a service from its collaborators.
func NewService(d Deps) (*Service, error) {
	switch {
	case d.Store == nil:
		return nil, errors.New("analysis: store is required")
	case d.Cache == nil:
		return nil, errors.New("analysis: cache is required")
	case d.Engineer == nil, d.Benford == nil, d.Rules == nil, d.Predictor == nil:
		return nil, errors.New("analysis: pipeline components are required")
	}

	if d.Fuser == nil {
		d.Fuser = fusion.NewFuser(fusion.DefaultWeights())
	}
	if d.Explainer == nil {
		d.Explainer = explain.NewGenerator()
	}
	if d.BatchConcurrency < 1 {
		d.BatchConcurrency = DefaultBatchConcurrency
	}

	return &Service{
		store:      d.Store,
		cache:      d.Cache,
		engineer:   d.Engineer,
		benford:    d.Benford,
		rules:      d.Rules,
		predictor:  d.Predictor,
		fuser:      d.Fuser,
		explainer:  d.Explainer,
		bus:        d.Bus,
		batchLimit: d.BatchConcurrency,
		now:        time.Now,
	}, nil
}

// NewFromConfig wires the full pipeline from the analysis config. Custom
// rules stored in the repository are loaded; a failure to load them is
// logged and the built-in rules still apply.
func NewFromConfig(ctx context.Context, cfg domain.AnalysisConfig, store domain.Repository, cache domain.AnalysisCache, bus domain.EventBus) (*Service, error) {
	var lookup domain.HistoryLookup = history.NewPlaceholder()
	if cfg.HistorySource == "repository" {
		lookup = history.NewService(store, nil)
	}

	engine, err := rules.NewEngine(rules.BuiltinRules(cfg.HighRiskProviders)...)
	if err != nil {
		return nil, fmt.Errorf("failed to create rule engine: %w", err)
	}

	configs, err := store.ListRuleConfigs(ctx)
	if err != nil {
		slog.Warn("failed to list custom rules", "error", err)
	} else if err := engine.ReloadRules(configs); err != nil {
		slog.Warn("failed to load custom rules", "error", err)
	}

	return NewService(Deps{
		Store:     store,
		Cache:     cache,
		Engineer:  features.NewEngineer(lookup),
		Benford:   benford.NewAnalyzer(cfg.BenfordThreshold),
		Rules:     engine,
		Predictor: predictor.New(cfg.ModelPath, cfg.ModelThreshold),
		Fuser: fusion.NewFuser(fusion.Weights{
			ML:      cfg.MLWeight,
			Benford: cfg.BenfordWeight,
			Rules:   cfg.RulesWeight,
		}),
		Explainer:        explain.NewGenerator(),
		Bus:              bus,
		BatchConcurrency: cfg.BatchConcurrency,
	})
}

// Analyze returns the analysis for a claim. Unless force is set a cached
// result is returned as is. A fresh result is cached, appended to the
// audit log and announced on the bus. Errors from the claim store or the
// cache, and cancellation of ctx during computation, produce no result and
// no cache write.
func (s *Service) Analyze(ctx context.Context, claimID string, force bool) (*domain.AnalysisResult, error) {
	ctx, span := tracer.Start(ctx, "analysis.Analyze")
	defer span.End()
	span.SetAttributes(
		attribute.String("claim.id", claimID),
		attribute.Bool("analysis.force", force),
	)

	result, err := s.analyze(ctx, claimID, force)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}

	span.SetAttributes(
		attribute.String("analysis.risk_level", string(result.RiskScore.RiskLevel)),
		attribute.Float64("analysis.overall_score", result.RiskScore.OverallScore),
	)
	return result, nil
}

func (s *Service) analyze(ctx context.Context, claimID string, force bool) (*domain.AnalysisResult, error) {
	if claimID == "" {
		return nil, fmt.Errorf("%w: claim_id is required", domain.ErrInvalidRequest)
	}

	if !force {
		cached, err := s.cache.GetAnalysis(ctx, claimID)
		if err != nil {
			metrics.AnalysisFailuresTotal.WithLabelValues("cache").Inc()
			return nil, fmt.Errorf("failed to read cached analysis: %w", err)
		}
		metrics.ObserveCache(cached != nil)
		if cached != nil {
			return cached, nil
		}
	}

	claim, err := s.store.GetClaim(ctx, claimID)
	if err != nil {
		metrics.AnalysisFailuresTotal.WithLabelValues("claim").Inc()
		return nil, err
	}

	start := time.Now()
	result := s.Compute(ctx, claim)
	elapsed := time.Since(start)

	// History lookups fall back to defaults on a cancelled context, so the
	// result may be degraded and must not be cached.
	if err := ctx.Err(); err != nil {
		metrics.AnalysisFailuresTotal.WithLabelValues("canceled").Inc()
		return nil, fmt.Errorf("analysis of claim %s interrupted: %w", claimID, err)
	}

	if err := s.cache.SetAnalysis(ctx, claimID, result); err != nil {
		metrics.AnalysisFailuresTotal.WithLabelValues("cache").Inc()
		return nil, fmt.Errorf("failed to cache analysis: %w", err)
	}

	if err := s.store.SaveAnalysis(ctx, result); err != nil {
		slog.Error("failed to save analysis", "claim_id", claimID, "error", err)
	}

	metrics.ObserveAnalysis(result, elapsed)
	s.announce(ctx, result)

	slog.Info("claim analyzed",
		"claim_id", claimID,
		"risk_level", result.RiskScore.RiskLevel,
		"overall_score", result.RiskScore.OverallScore,
		"flags", len(result.RuleBasedFlags),
		"duration_ms", elapsed.Milliseconds(),
	)
	return result, nil
}

// Compute runs the scoring pipeline over a claim without touching the
// cache, the store or the bus. Component failures degrade inside their
// component and never abort the computation.
func (s *Service) Compute(ctx context.Context, claim *domain.Claim) *domain.AnalysisResult {
	vector := s.engineer.Extract(ctx, claim)
	benfordResult := s.benford.Analyze(claim)
	flags := s.rules.Evaluate(ctx, claim)
	prediction := s.predictor.Predict(ctx, vector)

	score := s.fuser.Fuse(prediction, benfordResult, flags)

	return &domain.AnalysisResult{
		ClaimID:              claim.ID,
		Timestamp:            s.now().UTC(),
		RiskScore:            score,
		MLPrediction:         prediction,
		BenfordAnalysis:      benfordResult,
		RuleBasedFlags:       flags,
		FeatureContributions: s.explainer.RankContributions(vector),
		NetworkConnections:   nil,
		Recommendations:      s.explainer.Recommend(score, flags, benfordResult),
	}
}

// announce publishes the completed event, and an alert for high and
// critical results. Publish failures are logged only.
func (s *Service) announce(ctx context.Context, result *domain.AnalysisResult) {
	if s.bus == nil {
		return
	}

	payload, err := json.Marshal(result)
	if err != nil {
		slog.Error("failed to encode analysis event", "claim_id", result.ClaimID, "error", err)
		return
	}

	if err := s.bus.Publish(ctx, domain.TopicAnalysisCompleted, payload); err != nil {
		slog.Warn("failed to publish analysis event", "claim_id", result.ClaimID, "error", err)
	}

	if fusion.ShouldAlert(result.RiskScore) {
		if err := s.bus.Publish(ctx, domain.TopicAnalysisAlert, payload); err != nil {
			slog.Warn("failed to publish alert", "claim_id", result.ClaimID, "error", err)
			return
		}
		metrics.AlertsPublishedTotal.Inc()
	}
}

// Cached returns the cached analysis or ErrAnalysisNotFound.
func (s *Service) Cached(ctx context.Context, claimID string) (*domain.AnalysisResult, error) {
	result, err := s.cache.GetAnalysis(ctx, claimID)
	if err != nil {
		return nil, fmt.Errorf("failed to read cached analysis: %w", err)
	}
	if result == nil {
		return nil, fmt.Errorf("%w: %s", domain.ErrAnalysisNotFound, claimID)
	}
	return result, nil
}

// Evict removes the cached analysis for a claim. Evicting an absent entry
// is not an error.
func (s *Service) Evict(ctx context.Context, claimID string) error {
	if err := s.cache.DeleteAnalysis(ctx, claimID); err != nil {
		return fmt.Errorf("failed to evict analysis: %w", err)
	}
	return nil
}

// Batch analyzes each claim independently; one claim's failure never
// affects another. Results and errors keep input order. Once ctx is done
// no further claims are started, and the unstarted ones are reported as
// failed with the context error.
func (s *Service) Batch(ctx context.Context, claimIDs []string, force bool) (*domain.BatchResult, error) {
	if len(claimIDs) == 0 {
		return nil, fmt.Errorf("%w: claim_ids must not be empty", domain.ErrInvalidRequest)
	}

	results := make([]*domain.AnalysisResult, len(claimIDs))
	errs := make([]error, len(claimIDs))

	var g errgroup.Group
	g.SetLimit(s.batchLimit)

	for i, id := range claimIDs {
		if err := ctx.Err(); err != nil {
			for j := i; j < len(claimIDs); j++ {
				errs[j] = err
			}
			break
		}
		g.Go(func() error {
			results[i], errs[i] = s.Analyze(ctx, id, force)
			return nil
		})
	}
	_ = g.Wait()

	out := &domain.BatchResult{
		Results: make([]*domain.AnalysisResult, 0, len(claimIDs)),
		Errors:  make([]domain.BatchError, 0),
		Total:   len(claimIDs),
	}
	for i, id := range claimIDs {
		if errs[i] != nil {
			out.Errors = append(out.Errors, domain.BatchError{ClaimID: id, Error: errs[i].Error()})
			continue
		}
		out.Results = append(out.Results, results[i])
	}
	out.Successful = len(out.Results)
	out.Failed = len(out.Errors)

	slog.Info("batch analyzed", "total", out.Total, "successful", out.Successful, "failed", out.Failed)
	return out, nil
}

// Explain renders the explanation of a cached analysis. It never computes
// one; a claim without a cached analysis yields ErrAnalysisNotFound.
func (s *Service) Explain(ctx context.Context, claimID string) (*domain.Explanation, error) {
	result, err := s.Cached(ctx, claimID)
	if err != nil {
		return nil, err
	}
	return s.explainer.Explain(result), nil
}

// FeatureImportance returns the global importance of the active predictor.
func (s *Service) FeatureImportance() []domain.FeatureImportance {
	return s.explainer.GlobalImportance(s.predictor)
}

// ModelVersion returns the active predictor's version.
func (s *Service) ModelVersion() string {
	return s.predictor.Version()
}

// BenfordChart returns the digit distribution chart for a stored claim.
func (s *Service) BenfordChart(ctx context.Context, claimID string) (*benford.Chart, error) {
	claim, err := s.store.GetClaim(ctx, claimID)
	if err != nil {
		return nil, err
	}
	chart := s.benford.Chart(claim)
	return &chart, nil
}

// SubmitClaim validates and stores a claim, then announces it on the bus
// for asynchronous analysis. A missing id is generated.
func (s *Service) SubmitClaim(ctx context.Context, claim *domain.Claim) (string, error) {
	if claim == nil {
		return "", fmt.Errorf("%w: claim is required", domain.ErrInvalidRequest)
	}
	if claim.ID == "" {
		claim.ID = "CLM-" + uuid.NewString()
	}
	if err := claim.Validate(); err != nil {
		return "", err
	}

	if err := s.store.SaveClaim(ctx, claim); err != nil {
		return "", fmt.Errorf("failed to save claim: %w", err)
	}

	if s.bus != nil {
		payload, err := json.Marshal(domain.ClaimSubmittedEvent{ClaimID: claim.ID})
		if err == nil {
			err = s.bus.Publish(ctx, domain.TopicClaimSubmitted, payload)
		}
		if err != nil {
			slog.Warn("failed to publish claim submission", "claim_id", claim.ID, "error", err)
		}
	}

	slog.Info("claim submitted", "claim_id", claim.ID, "provider_id", claim.ProviderID)
	return claim.ID, nil
}

// GetClaim returns a stored claim.
func (s *Service) GetClaim(ctx context.Context, claimID string) (*domain.Claim, error) {
	return s.store.GetClaim(ctx, claimID)
}

// Rules lists the active rules in evaluation order.
func (s *Service) Rules() []rules.RuleInfo {
	return s.rules.Rules()
}

// SaveRule validates a custom rule, persists it and loads it into the
// engine. An invalid expression or severity is an ErrInvalidRequest.
func (s *Service) SaveRule(ctx context.Context, cfg *domain.RuleConfig) error {
	if err := s.rules.ValidateRule(cfg); err != nil {
		return fmt.Errorf("%w: %v", domain.ErrInvalidRequest, err)
	}
	for _, r := range s.rules.Rules() {
		if r.ID == cfg.ID && !r.Custom {
			return fmt.Errorf("%w: rule %s conflicts with a built-in rule", domain.ErrInvalidRequest, cfg.ID)
		}
	}
	if cfg.Version == "" {
		cfg.Version = "1.0.0"
	}

	if err := s.store.SaveRuleConfig(ctx, cfg); err != nil {
		return fmt.Errorf("failed to save rule: %w", err)
	}
	if err := s.rules.LoadRule(cfg); err != nil {
		return fmt.Errorf("%w: %v", domain.ErrInvalidRequest, err)
	}

	slog.Info("rule saved", "id", cfg.ID, "name", cfg.Name, "enabled", cfg.Enabled)
	return nil
}

// ReloadRules recompiles the custom rules from the store and returns how
// many were read.
func (s *Service) ReloadRules(ctx context.Context) (int, error) {
	configs, err := s.store.ListRuleConfigs(ctx)
	if err != nil {
		return 0, fmt.Errorf("failed to list rules: %w", err)
	}
	if err := s.rules.ReloadRules(configs); err != nil {
		return 0, fmt.Errorf("failed to reload rules: %w", err)
	}

	slog.Info("rules reloaded", "count", len(configs))
	return len(configs), nil
}

// Ping checks the store, the cache and, when configured, the bus.
func (s *Service) Ping(ctx context.Context) error {
	if err := s.store.Ping(ctx); err != nil {
		return fmt.Errorf("repository: %w", err)
	}
	if err := s.cache.Ping(ctx); err != nil {
		return fmt.Errorf("cache: %w", err)
	}
	if s.bus != nil {
		if err := s.bus.Ping(ctx); err != nil {
			return fmt.Errorf("event bus: %w", err)
		}
	}
	return nil
}
