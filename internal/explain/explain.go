// Package explain turns a fused analysis into ranked feature contributions,
// investigator recommendations and a readable explanation.
package explain

import (
	"fmt"
	"math"
	"sort"
	"strings"

	"github.com/opensource-finance/claimrisk/internal/domain"
	"github.com/opensource-finance/claimrisk/internal/features"
	"github.com/opensource-finance/claimrisk/internal/rules"
)

// TopFactors is the number of contributions carried into an explanation.
const TopFactors = 5

// maxDetailRules caps the rule names listed in the details text.
const maxDetailRules = 3

// weight is an entry of the fixed importance table.
type weight struct {
	feature    string
	importance float64
}

// importanceTable is ordered; ties in contribution keep this order.
var importanceTable = []weight{
	{features.ClaimAmount, 0.25},
	{features.DaysSincePolicyInception, 0.20},
	{features.ProviderRiskScore, 0.18},
	{features.ClaimFrequency, 0.15},
	{features.TreatmentCodeRisk, 0.12},
	{features.LocationRiskScore, 0.10},
}

// placeholderImportance is reported when the active predictor cannot
// describe its own weights.
var placeholderImportance = []domain.FeatureImportance{
	{Name: "Claim Amount", Importance: 0.25},
	{Name: "Policy Tenure", Importance: 0.20},
	{Name: "Provider Risk", Importance: 0.18},
	{Name: "Claim Frequency", Importance: 0.15},
	{Name: "Treatment Risk", Importance: 0.12},
	{Name: "Location Risk", Importance: 0.10},
}

// ImportanceReporter is implemented by predictors that expose global
// feature importance.
type ImportanceReporter interface {
	FeatureImportance() []domain.FeatureImportance
}

// Generator builds contributions, recommendations and explanations.
// It is stateless.
type Generator struct{}

// NewGenerator creates a Generator.
func NewGenerator() *Generator {
	return &Generator{}
}

// RankContributions scores the features in the importance table and sorts
// them by descending absolute contribution.
func (g *Generator) RankContributions(v domain.FeatureVector) []domain.FeatureContribution {
	out := make([]domain.FeatureContribution, 0, len(importanceTable))
	for _, w := range importanceTable {
		value := v.Get(w.feature, 0)
		out = append(out, domain.FeatureContribution{
			FeatureName:  DisplayName(w.feature),
			Value:        round(value, 2),
			Contribution: round(value*w.importance*100, 2),
			Importance:   round(w.importance, 4),
		})
	}
	sort.SliceStable(out, func(i, j int) bool {
		return math.Abs(out[i].Contribution) > math.Abs(out[j].Contribution)
	})
	return out
}

// Recommend lists investigator actions. Items accumulate across tiers.
func (g *Generator) Recommend(score domain.RiskScore, flags []domain.RuleFlag, benford domain.BenfordResult) []string {
	overall := score.OverallScore
	var recs []string

	if overall >= 75 {
		recs = append(recs,
			"URGENT: Initiate full investigation immediately",
			"Contact claimant for additional documentation",
		)
	}
	if overall >= 50 {
		recs = append(recs,
			"Verify provider credentials and license status",
			"Cross-reference with HKFI fraud database",
		)
	}
	for _, f := range flags {
		if f.RuleID == rules.RuleHighRiskProvider {
			recs = append(recs, "Review all recent claims from this provider")
			break
		}
	}
	if benford.IsAnomalous {
		recs = append(recs, "Audit claim amount calculation methodology")
	}
	if overall < 25 {
		recs = append(recs, "Low risk - standard processing recommended")
	} else {
		recs = append(recs,
			"Request additional supporting documents",
			"Consider physical inspection if applicable",
		)
	}
	return recs
}

// Summarize returns the tiered one-paragraph summary of a score.
func (g *Generator) Summarize(score domain.RiskScore) string {
	s := score.OverallScore
	switch {
	case s >= 75:
		return fmt.Sprintf("This claim has been flagged as CRITICAL RISK with a score of %.1f/100. "+
			"Multiple fraud indicators were detected across machine learning, statistical analysis, "+
			"and rule-based checks. Immediate investigation is recommended.", s)
	case s >= 50:
		return fmt.Sprintf("This claim shows HIGH RISK indicators with a score of %.1f/100. "+
			"Several concerning patterns were identified that warrant further investigation.", s)
	case s >= 25:
		return fmt.Sprintf("This claim has MEDIUM RISK with a score of %.1f/100. "+
			"Some irregularities were detected but may have legitimate explanations.", s)
	default:
		return fmt.Sprintf("This claim appears LOW RISK with a score of %.1f/100. "+
			"No significant fraud indicators were detected.", s)
	}
}

// Details describes which signals raised concern.
func (g *Generator) Details(result *domain.AnalysisResult) string {
	var parts []string

	if p := result.MLPrediction.FraudProbability; p > 0.5 {
		parts = append(parts, fmt.Sprintf(
			"Machine learning model detected %.1f%% probability of fraud based on historical patterns.", p*100))
	}
	if result.BenfordAnalysis.IsAnomalous {
		parts = append(parts, "Statistical analysis (Benford's Law) detected anomalies in claim amounts, "+
			"suggesting possible manipulation.")
	}
	if flags := result.RuleBasedFlags; len(flags) > 0 {
		names := make([]string, 0, maxDetailRules)
		for i := 0; i < len(flags) && i < maxDetailRules; i++ {
			names = append(names, flags[i].RuleName)
		}
		parts = append(parts, fmt.Sprintf("Triggered %d rule-based checks including: %s",
			len(flags), strings.Join(names, ", ")))
	}

	if len(parts) == 0 {
		return "No significant concerns detected."
	}
	return strings.Join(parts, " ")
}

// Explain builds the explanation for a completed analysis.
func (g *Generator) Explain(result *domain.AnalysisResult) *domain.Explanation {
	top := result.FeatureContributions
	if len(top) > TopFactors {
		top = top[:TopFactors]
	}
	return &domain.Explanation{
		ClaimID:      result.ClaimID,
		Summary:      g.Summarize(result.RiskScore),
		Details:      g.Details(result),
		TopFactors:   append([]domain.FeatureContribution{}, top...),
		SimilarCases: []string{},
	}
}

// GlobalImportance returns the predictor's own importance when it reports
// one, otherwise the fixed placeholder list.
func (g *Generator) GlobalImportance(p domain.Predictor) []domain.FeatureImportance {
	if r, ok := p.(ImportanceReporter); ok {
		if imp := r.FeatureImportance(); len(imp) > 0 {
			return imp
		}
	}
	return append([]domain.FeatureImportance{}, placeholderImportance...)
}

// DisplayName converts a feature name such as claim_amount to "Claim Amount".
func DisplayName(feature string) string {
	words := strings.Split(feature, "_")
	for i, w := range words {
		if w != "" {
			words[i] = strings.ToUpper(w[:1]) + w[1:]
		}
	}
	return strings.Join(words, " ")
}

func round(x float64, places int) float64 {
	p := math.Pow(10, float64(places))
	return math.Round(x*p) / p
}
