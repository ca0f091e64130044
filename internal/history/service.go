// Package history provides provider and claimant history lookups for
// feature extraction.
package history

import (
	"context"
	"fmt"
	"math"
	"time"

	"github.com/opensource-finance/claimrisk/internal/domain"
)

// ConcurrentWindow is the span on either side of a claim date in which
// other claims by the same claimant count as concurrent.
const ConcurrentWindow = 7 * 24 * time.Hour

// Service aggregates history from stored claims and analyses. Lookups the
// store holds no data for are delegated to a fallback.
type Service struct {
	repo     domain.Repository
	fallback domain.HistoryLookup
}

// NewService creates a repository-backed lookup. A nil fallback uses the
// hash placeholder.
func NewService(repo domain.Repository, fallback domain.HistoryLookup) *Service {
	if fallback == nil {
		fallback = NewPlaceholder()
	}
	return &Service{
		repo:     repo,
		fallback: fallback,
	}
}

var _ domain.HistoryLookup = (*Service)(nil)

// ProviderHistory computes claim volume and the share of the provider's
// analyses that landed at high or critical risk.
func (s *Service) ProviderHistory(ctx context.Context, providerID string) (domain.ProviderHistory, error) {
	if providerID == "" {
		return domain.ProviderHistory{}, nil
	}

	stats, err := s.repo.ProviderStats(ctx, providerID)
	if err != nil {
		return domain.ProviderHistory{}, fmt.Errorf("failed to get provider stats: %w", err)
	}

	var h domain.ProviderHistory
	h.TotalClaims = stats.TotalClaims
	if stats.AnalyzedCount > 0 {
		h.FraudRate = round4(float64(stats.FlaggedCount) / float64(stats.AnalyzedCount))
		h.RiskScore = round4(math.Min(1, 0.5*h.FraudRate+0.5*stats.AvgScore/100))
	}
	return h, nil
}

// ClaimantHistory returns the claimant's earlier claim amounts and the
// number of other claims filed within ConcurrentWindow of at.
func (s *Service) ClaimantHistory(ctx context.Context, claimantID, excludeClaimID string, at time.Time) (domain.ClaimantHistory, error) {
	if claimantID == "" || at.IsZero() {
		return domain.ClaimantHistory{}, nil
	}

	claims, err := s.repo.ListClaimsByClaimant(ctx, claimantID, at)
	if err != nil {
		return domain.ClaimantHistory{}, fmt.Errorf("failed to list claimant claims: %w", err)
	}

	h := domain.ClaimantHistory{Amounts: make([]float64, 0, len(claims))}
	for _, c := range claims {
		if c.ID == excludeClaimID || !c.ClaimAmount.IsPositive() {
			continue
		}
		h.Amounts = append(h.Amounts, c.AmountFloat())
	}
	h.ClaimFrequency = len(h.Amounts)

	h.ConcurrentClaims, err = s.repo.CountClaimsInWindow(ctx, claimantID, excludeClaimID, at.Add(-ConcurrentWindow), at.Add(ConcurrentWindow))
	if err != nil {
		return domain.ClaimantHistory{}, fmt.Errorf("failed to count concurrent claims: %w", err)
	}
	return h, nil
}

// TreatmentStats delegates to the fallback.
func (s *Service) TreatmentStats(ctx context.Context, treatmentCode string) (domain.TreatmentStats, error) {
	return s.fallback.TreatmentStats(ctx, treatmentCode)
}

// DiagnosisMatch delegates to the fallback.
func (s *Service) DiagnosisMatch(ctx context.Context, diagnosisCode, treatmentCode string) (float64, error) {
	return s.fallback.DiagnosisMatch(ctx, diagnosisCode, treatmentCode)
}

// LocationRisk delegates to the fallback.
func (s *Service) LocationRisk(ctx context.Context, district string) (float64, error) {
	return s.fallback.LocationRisk(ctx, district)
}

// BrokerRisk delegates to the fallback.
func (s *Service) BrokerRisk(ctx context.Context, brokerID string) (float64, error) {
	return s.fallback.BrokerRisk(ctx, brokerID)
}
