package domain

import (
	"context"
	"time"
)

// HistoryLookup supplies historical aggregates about the parties and codes
// on a claim. Implementations must be deterministic for a given data set.
type HistoryLookup interface {
	ProviderHistory(ctx context.Context, providerID string) (ProviderHistory, error)
	ClaimantHistory(ctx context.Context, claimantID, excludeClaimID string, at time.Time) (ClaimantHistory, error)
	TreatmentStats(ctx context.Context, treatmentCode string) (TreatmentStats, error)
	DiagnosisMatch(ctx context.Context, diagnosisCode, treatmentCode string) (float64, error)
	LocationRisk(ctx context.Context, district string) (float64, error)
	BrokerRisk(ctx context.Context, brokerID string) (float64, error)
}

// ProviderHistory aggregates a provider's past claims.
type ProviderHistory struct {
	RiskScore   float64 `json:"risk_score"`
	TotalClaims int     `json:"total_claims"`
	FraudRate   float64 `json:"fraud_rate"`
}

// ClaimantHistory aggregates a claimant's past claims.
type ClaimantHistory struct {
	ClaimFrequency   int       `json:"claim_frequency"`
	Amounts          []float64 `json:"amounts"`
	ConcurrentClaims int       `json:"concurrent_claims"`
}

// TreatmentStats describes how a treatment code is typically billed.
type TreatmentStats struct {
	Frequency int     `json:"frequency"`
	AvgAmount float64 `json:"avg_amount"`
	Risk      float64 `json:"risk"`
}

// Predictor estimates fraud probability from a feature vector.
// Predict never fails; errors are reported inside the Prediction.
type Predictor interface {
	Predict(ctx context.Context, features FeatureVector) Prediction
	Version() string
}
