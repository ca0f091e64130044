// Package fusion combines predictor, Benford and rule signals into a
// single risk score with a confidence band and risk tier.
package fusion

import (
	"math"

	"github.com/opensource-finance/claimrisk/internal/domain"
)

// Weights are the per-signal weights of the linear fusion.
type Weights struct {
	ML      float64
	Benford float64
	Rules   float64
}

// DefaultWeights returns ML 0.5, Benford 0.25, Rules 0.25.
func DefaultWeights() Weights {
	return Weights{ML: 0.5, Benford: 0.25, Rules: 0.25}
}

// Tier lower bounds, inclusive.
const (
	CriticalThreshold = 75.0
	HighThreshold     = 50.0
	MediumThreshold   = 25.0
)

const (
	predictorConfidenceShare = 0.7
	ruleConfidenceBonus      = 0.3
	marginFactor             = 0.3
)

// Fuser produces risk scores. It holds only its weights and is safe for
// concurrent use.
type Fuser struct {
	weights Weights
}

// NewFuser creates a fuser with the given weights.
func NewFuser(w Weights) *Fuser {
	return &Fuser{weights: w}
}

// Weights returns the configured weights.
func (f *Fuser) Weights() Weights {
	return f.weights
}

// Fuse computes the overall score as a weighted sum of the ML, Benford and
// rule components, clamped to [0,100]. The tier is taken from the reported,
// rounded score. A
// missing signal still contributes through its degraded value; weights are
// never renormalized.
func (f *Fuser) Fuse(pred domain.Prediction, benford domain.BenfordResult, flags []domain.RuleFlag) domain.RiskScore {
	ml := pred.FraudProbability * 100
	bf := math.Min(benford.DeviationScore*100, 100)
	rule := RuleScore(flags)

	overall := f.weights.ML*ml + f.weights.Benford*bf + f.weights.Rules*rule
	overall = math.Max(0, math.Min(100, overall))

	confidence := pred.Confidence * predictorConfidenceShare
	if len(flags) > 0 {
		confidence += ruleConfidenceBonus
	}
	margin := (1 - confidence) * overall * marginFactor
	rounded := round2(overall)

	return domain.RiskScore{
		OverallScore: rounded,
		ConfidenceInterval: [2]float64{
			round2(math.Max(0, overall-margin)),
			round2(math.Min(100, overall+margin)),
		},
		RiskLevel: Level(rounded),
		Components: domain.ScoreComponents{
			MLScore:      round2(ml),
			BenfordScore: round2(bf),
			RuleScore:    round2(rule),
		},
	}
}

// RuleScore is the highest severity score among the flags, or 0.
func RuleScore(flags []domain.RuleFlag) float64 {
	score := 0.0
	for _, flag := range flags {
		score = math.Max(score, flag.Severity.Score())
	}
	return score
}

// Level maps a score onto its tier.
func Level(score float64) domain.RiskLevel {
	switch {
	case score >= CriticalThreshold:
		return domain.RiskCritical
	case score >= HighThreshold:
		return domain.RiskHigh
	case score >= MediumThreshold:
		return domain.RiskMedium
	default:
		return domain.RiskLow
	}
}

// ShouldAlert reports whether a result warrants an investigator alert.
func ShouldAlert(score domain.RiskScore) bool {
	return score.RiskLevel == domain.RiskHigh || score.RiskLevel == domain.RiskCritical
}

func round2(x float64) float64 {
	return math.Round(x*100) / 100
}
