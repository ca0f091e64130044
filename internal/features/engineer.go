// Package features turns a claim into a flat numeric feature vector.
package features

import (
	"context"
	"log/slog"
	"math"
	"slices"
	"time"

	"github.com/shopspring/decimal"
	"gonum.org/v1/gonum/stat"

	"github.com/opensource-finance/claimrisk/internal/domain"
)

// Feature names. Every vector produced by Extract contains all of them.
const (
	ClaimAmount    = "claim_amount"
	ClaimAmountLog = "claim_amount_log"
	IsRoundAmount  = "is_round_amount"
	HasDocuments   = "has_documents"
	DocumentCount  = "document_count"

	ClaimDayOfWeek           = "claim_day_of_week"
	IsWeekend                = "is_weekend"
	ClaimMonth               = "claim_month"
	DaysSincePolicyInception = "days_since_policy_inception"
	WithinFirstMonth         = "within_first_month"
	WithinFirstWeek          = "within_first_week"
	PolicyAgeMonths          = "policy_age_months"

	ProviderRiskScore   = "provider_risk_score"
	ProviderTotalClaims = "provider_total_claims"
	ProviderFraudRate   = "provider_fraud_rate"

	ClaimFrequency           = "claim_frequency"
	AvgHistoricalClaimAmount = "avg_historical_claim_amount"
	MaxHistoricalClaimAmount = "max_historical_claim_amount"
	ClaimAmountDeviation     = "claim_amount_deviation"
	IsFirstClaim             = "is_first_claim"

	IsHighRiskTreatment     = "is_high_risk_treatment"
	TreatmentCodeFrequency  = "treatment_code_frequency"
	TreatmentAvgAmount      = "treatment_avg_amount"
	TreatmentCodeRisk       = "treatment_code_risk"
	DiagnosisTreatmentMatch = "diagnosis_treatment_match"

	IsHighRiskLocation       = "is_high_risk_location"
	LocationRiskScore        = "location_risk_score"
	ProviderClaimantDistance = "provider_claimant_distance"

	HasRushSubmission = "has_rush_submission"
	ConcurrentClaims  = "concurrent_claims"
	HasBroker         = "has_broker"
	BrokerRiskScore   = "broker_risk_score"

	AmountZScore     = "amount_z_score"
	AmountPercentile = "amount_percentile"
)

// Names lists every feature in family order.
var Names = []string{
	ClaimAmount, ClaimAmountLog, IsRoundAmount, HasDocuments, DocumentCount,
	ClaimDayOfWeek, IsWeekend, ClaimMonth, DaysSincePolicyInception, WithinFirstMonth, WithinFirstWeek, PolicyAgeMonths,
	ProviderRiskScore, ProviderTotalClaims, ProviderFraudRate,
	ClaimFrequency, AvgHistoricalClaimAmount, MaxHistoricalClaimAmount, ClaimAmountDeviation, IsFirstClaim,
	IsHighRiskTreatment, TreatmentCodeFrequency, TreatmentAvgAmount, TreatmentCodeRisk, DiagnosisTreatmentMatch,
	IsHighRiskLocation, LocationRiskScore, ProviderClaimantDistance,
	HasRushSubmission, ConcurrentClaims, HasBroker, BrokerRiskScore,
	AmountZScore, AmountPercentile,
}

// DefaultDaysSinceInception is used when either date is missing, so an
// unknown tenure does not look like a brand-new policy.
const DefaultDaysSinceInception = 365

// Reference distribution for the statistical family.
const (
	amountMean           = 30000
	amountStdDev         = 25000
	amountPercentileCap  = 200000
	kmPerDegree          = 111
	highRiskLocationRisk = 0.75
)

var (
	highRiskTreatments = []string{"T001", "T045", "T089", "T123", "T456"}
	highRiskDistricts  = []string{"Yau Tsim Mong", "Sham Shui Po", "Islands"}
	thousand           = decimal.NewFromInt(1000)
)

// Engineer extracts features. History is read through the lookup; a
// failed lookup leaves the neutral default in place.
type Engineer struct {
	history domain.HistoryLookup
}

// NewEngineer creates a feature engineer over the given history lookup.
func NewEngineer(history domain.HistoryLookup) *Engineer {
	return &Engineer{history: history}
}

// Extract builds the feature vector for a claim.
func (e *Engineer) Extract(ctx context.Context, claim *domain.Claim) domain.FeatureVector {
	v := Defaults()

	e.amount(v, claim)
	e.temporal(v, claim)
	e.provider(ctx, v, claim)
	e.claimant(ctx, v, claim)
	e.treatment(ctx, v, claim)
	e.location(ctx, v, claim)
	e.behavioral(ctx, v, claim)
	e.statistical(v, claim)

	return v
}

// Defaults returns a vector with every feature at its neutral value.
func Defaults() domain.FeatureVector {
	v := make(domain.FeatureVector, len(Names))
	for _, name := range Names {
		v[name] = 0
	}
	v[DaysSincePolicyInception] = DefaultDaysSinceInception
	v[PolicyAgeMonths] = DefaultDaysSinceInception / 30.0
	v[IsFirstClaim] = 1
	return v
}

func (e *Engineer) amount(v domain.FeatureVector, claim *domain.Claim) {
	amt := claim.AmountFloat()
	v[ClaimAmount] = amt
	if amt > 0 {
		v[ClaimAmountLog] = math.Log1p(amt)
	}
	v[IsRoundAmount] = boolf(claim.ClaimAmount.Mod(thousand).IsZero())
	v[HasDocuments] = boolf(len(claim.Documents) > 0)
	v[DocumentCount] = float64(len(claim.Documents))
}

func (e *Engineer) temporal(v domain.FeatureVector, claim *domain.Claim) {
	if claim.ClaimDate == nil {
		return
	}
	d := *claim.ClaimDate
	v[ClaimDayOfWeek] = float64(mondayFirst(d.Weekday()))
	v[IsWeekend] = boolf(isWeekend(d))
	v[ClaimMonth] = float64(d.Month())

	days, ok := claim.DaysSinceInception()
	if !ok {
		return
	}
	v[DaysSincePolicyInception] = float64(days)
	v[WithinFirstMonth] = boolf(days < 30)
	v[WithinFirstWeek] = boolf(days < 7)
	v[PolicyAgeMonths] = float64(days) / 30.0
}

func (e *Engineer) provider(ctx context.Context, v domain.FeatureVector, claim *domain.Claim) {
	h, err := e.history.ProviderHistory(ctx, claim.ProviderID)
	if err != nil {
		lookupFailed("provider", claim.ID, err)
		return
	}
	v[ProviderRiskScore] = h.RiskScore
	v[ProviderTotalClaims] = float64(h.TotalClaims)
	v[ProviderFraudRate] = h.FraudRate
}

func (e *Engineer) claimant(ctx context.Context, v domain.FeatureVector, claim *domain.Claim) {
	h, err := e.history.ClaimantHistory(ctx, claim.ClaimantID, claim.ID, claim.ReferenceTime())
	if err != nil {
		lookupFailed("claimant", claim.ID, err)
		return
	}
	v[ClaimFrequency] = float64(h.ClaimFrequency)
	v[ConcurrentClaims] = float64(h.ConcurrentClaims)
	if len(h.Amounts) == 0 {
		return
	}

	mean, std := stat.PopMeanStdDev(h.Amounts, nil)
	v[AvgHistoricalClaimAmount] = mean
	v[MaxHistoricalClaimAmount] = slices.Max(h.Amounts)
	v[ClaimAmountDeviation] = math.Abs(claim.AmountFloat()-mean) / (std + 1)
	v[IsFirstClaim] = 0
}

func (e *Engineer) treatment(ctx context.Context, v domain.FeatureVector, claim *domain.Claim) {
	highRisk := slices.Contains(highRiskTreatments, claim.TreatmentCode)
	v[IsHighRiskTreatment] = boolf(highRisk)

	stats, err := e.history.TreatmentStats(ctx, claim.TreatmentCode)
	if err != nil {
		lookupFailed("treatment", claim.ID, err)
	} else {
		v[TreatmentCodeFrequency] = float64(stats.Frequency)
		v[TreatmentAvgAmount] = stats.AvgAmount
		v[TreatmentCodeRisk] = round4(0.5*boolf(highRisk) + 0.5*stats.Risk)
	}

	match, err := e.history.DiagnosisMatch(ctx, claim.DiagnosisCode, claim.TreatmentCode)
	if err != nil {
		lookupFailed("diagnosis", claim.ID, err)
		return
	}
	v[DiagnosisTreatmentMatch] = match
}

func (e *Engineer) location(ctx context.Context, v domain.FeatureVector, claim *domain.Claim) {
	var district string
	if claim.Location != nil {
		district = claim.Location.District
	}

	if slices.Contains(highRiskDistricts, district) {
		v[IsHighRiskLocation] = 1
		v[LocationRiskScore] = highRiskLocationRisk
	} else if risk, err := e.history.LocationRisk(ctx, district); err != nil {
		lookupFailed("location", claim.ID, err)
	} else {
		v[LocationRiskScore] = risk
	}

	if claim.Location.HasCoordinates() && claim.ProviderLocation.HasCoordinates() {
		dLat := *claim.ProviderLocation.Latitude - *claim.Location.Latitude
		dLon := *claim.ProviderLocation.Longitude - *claim.Location.Longitude
		v[ProviderClaimantDistance] = math.Hypot(dLat, dLon) * kmPerDegree
	}
}

func (e *Engineer) behavioral(ctx context.Context, v domain.FeatureVector, claim *domain.Claim) {
	if claim.ClaimDate != nil {
		d := *claim.ClaimDate
		v[HasRushSubmission] = boolf(isWeekend(d) || d.Hour() >= 22 || d.Hour() <= 6)
	}

	if claim.BrokerID == "" {
		return
	}
	v[HasBroker] = 1
	risk, err := e.history.BrokerRisk(ctx, claim.BrokerID)
	if err != nil {
		lookupFailed("broker", claim.ID, err)
		return
	}
	v[BrokerRiskScore] = risk
}

func (e *Engineer) statistical(v domain.FeatureVector, claim *domain.Claim) {
	amt := claim.AmountFloat()
	v[AmountZScore] = (amt - amountMean) / amountStdDev
	v[AmountPercentile] = math.Min(amt/amountPercentileCap*100, 100)
}

func lookupFailed(kind, claimID string, err error) {
	slog.Debug("history lookup failed, using defaults",
		"lookup", kind,
		"claim_id", claimID,
		"error", err,
	)
}

// mondayFirst maps time.Weekday onto Monday=0 ... Sunday=6.
func mondayFirst(d time.Weekday) int {
	return (int(d) + 6) % 7
}

func isWeekend(t time.Time) bool {
	return t.Weekday() == time.Saturday || t.Weekday() == time.Sunday
}

func boolf(b bool) float64 {
	if b {
		return 1
	}
	return 0
}

func round4(x float64) float64 {
	return math.Round(x*10000) / 10000
}
