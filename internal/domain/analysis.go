package domain

import (
	"time"
)

// FeatureVector maps feature names to numeric values.
// A vector is built once per analysis and not modified afterwards.
type FeatureVector map[string]float64

// Get returns the named feature, or def when it is absent.
func (v FeatureVector) Get(name string, def float64) float64 {
	if x, ok := v[name]; ok {
		return x
	}
	return def
}

// BenfordResult is the outcome of a leading-digit distribution test.
type BenfordResult struct {
	IsAnomalous          bool            `json:"is_anomalous"`
	DeviationScore       float64         `json:"deviation_score"`
	PValue               float64         `json:"p_value"`
	ChiSquare            float64         `json:"chi_square"`
	SampleSize           int             `json:"sample_size"`
	Message              string          `json:"message"`
	Error                string          `json:"error,omitempty"`
	ObservedDistribution map[int]float64 `json:"observed_distribution,omitempty"`
	ExpectedDistribution map[int]float64 `json:"expected_distribution,omitempty"`
}

// Prediction is the output of a Predictor.
type Prediction struct {
	FraudProbability float64 `json:"fraud_probability"`
	IsFraud          bool    `json:"is_fraud"`
	Confidence       float64 `json:"confidence"`
	ModelVersion     string  `json:"model_version,omitempty"`
	Error            string  `json:"error,omitempty"`
}

// RiskLevel is the tier assigned to a fused risk score.
type RiskLevel string

const (
	RiskLow      RiskLevel = "low"
	RiskMedium   RiskLevel = "medium"
	RiskHigh     RiskLevel = "high"
	RiskCritical RiskLevel = "critical"
)

// ScoreComponents are the per-signal scores, each in [0,100].
type ScoreComponents struct {
	MLScore      float64 `json:"ml_score"`
	BenfordScore float64 `json:"benford_score"`
	RuleScore    float64 `json:"rule_score"`
}

// RiskScore is the fused assessment.
// ConfidenceInterval[0] <= OverallScore <= ConfidenceInterval[1].
type RiskScore struct {
	OverallScore       float64         `json:"overall_score"`
	ConfidenceInterval [2]float64      `json:"confidence_interval"`
	RiskLevel          RiskLevel       `json:"risk_level"`
	Components         ScoreComponents `json:"components"`
}

// FeatureContribution is a feature's estimated share of the risk score.
type FeatureContribution struct {
	FeatureName  string  `json:"feature_name"`
	Value        float64 `json:"value"`
	Contribution float64 `json:"contribution"`
	Importance   float64 `json:"importance"`
}

// FeatureImportance is a global importance entry.
type FeatureImportance struct {
	Name       string  `json:"name"`
	Importance float64 `json:"importance"`
}

// NetworkData describes links between claim parties. Graph construction
// is not performed, so analyses carry a nil value.
type NetworkData struct {
	Nodes []string          `json:"nodes"`
	Edges map[string]string `json:"edges"`
}

// AnalysisResult is the complete output of one claim analysis.
type AnalysisResult struct {
	ClaimID              string                `json:"claim_id"`
	Timestamp            time.Time             `json:"timestamp"`
	RiskScore            RiskScore             `json:"risk_score"`
	MLPrediction         Prediction            `json:"ml_prediction"`
	BenfordAnalysis      BenfordResult         `json:"benford_analysis"`
	RuleBasedFlags       []RuleFlag            `json:"rule_based_flags"`
	FeatureContributions []FeatureContribution `json:"feature_contributions"`
	NetworkConnections   *NetworkData          `json:"network_connections"`
	Recommendations      []string              `json:"recommendations"`
}

// Explanation is a human-readable account of a cached analysis.
type Explanation struct {
	ClaimID      string                `json:"claim_id"`
	Summary      string                `json:"summary"`
	Details      string                `json:"details"`
	TopFactors   []FeatureContribution `json:"top_factors"`
	SimilarCases []string              `json:"similar_cases"`
}

// AnalysisRequest is the API request for a single analysis.
type AnalysisRequest struct {
	ClaimID         string `json:"claim_id" validate:"required"`
	ForceReanalysis bool   `json:"force_reanalysis"`
}

// BatchRequest is the API request for a batch analysis.
type BatchRequest struct {
	ClaimIDs        []string `json:"claim_ids" validate:"required,min=1,dive,required"`
	ForceReanalysis bool     `json:"force_reanalysis"`
}

// BatchError records a failed item of a batch.
type BatchError struct {
	ClaimID string `json:"claim_id"`
	Error   string `json:"error"`
}

// BatchResult is the per-item outcome of a batch analysis.
type BatchResult struct {
	Results    []*AnalysisResult `json:"results"`
	Errors     []BatchError      `json:"errors"`
	Total      int               `json:"total"`
	Successful int               `json:"successful"`
	Failed     int               `json:"failed"`
}
