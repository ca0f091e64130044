package predictor

import (
	"context"

	"github.com/opensource-finance/claimrisk/internal/domain"
	"github.com/opensource-finance/claimrisk/internal/features"
)

// HeuristicVersion identifies predictions from the fallback heuristic.
const HeuristicVersion = "placeholder_v1"

const heuristicConfidence = 0.75

// Heuristic scores a claim by the fraction of simple risk indicators present.
type Heuristic struct {
	threshold float64
}

// NewHeuristic creates the fallback predictor.
func NewHeuristic(threshold float64) *Heuristic {
	return &Heuristic{threshold: threshold}
}

// Version returns HeuristicVersion.
func (h *Heuristic) Version() string { return HeuristicVersion }

// Predict counts indicators: amount above 100000, policy younger than 30
// days, more than 5 prior claims, provider risk above 0.7.
func (h *Heuristic) Predict(_ context.Context, v domain.FeatureVector) domain.Prediction {
	indicators := []bool{
		v.Get(features.ClaimAmount, 0) > 100000,
		v.Get(features.DaysSincePolicyInception, features.DefaultDaysSinceInception) < 30,
		v.Get(features.ClaimFrequency, 0) > 5,
		v.Get(features.ProviderRiskScore, 0) > 0.7,
	}

	hits := 0
	for _, hit := range indicators {
		if hit {
			hits++
		}
	}
	p := float64(hits) / float64(len(indicators))

	return domain.Prediction{
		FraudProbability: p,
		IsFraud:          p > h.threshold,
		Confidence:       heuristicConfidence,
		ModelVersion:     HeuristicVersion,
	}
}
