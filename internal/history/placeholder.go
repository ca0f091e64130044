package history

import (
	"context"
	"hash/fnv"
	"strconv"
	"time"

	"github.com/opensource-finance/claimrisk/internal/domain"
)

// Placeholder derives stable pseudo-history from identifier hashes.
// It stands in for real aggregates when no claim history is stored.
type Placeholder struct{}

// NewPlaceholder returns the hash-based lookup.
func NewPlaceholder() *Placeholder {
	return &Placeholder{}
}

var _ domain.HistoryLookup = (*Placeholder)(nil)

func hash(s string) uint64 {
	h := fnv.New64a()
	_, _ = h.Write([]byte(s))
	return h.Sum64()
}

func round4(x float64) float64 {
	return float64(int64(x*10000+0.5)) / 10000
}

// ProviderHistory returns risk in [0,0.99], 10-509 claims and a fraud rate in [0,0.19].
func (p *Placeholder) ProviderHistory(_ context.Context, providerID string) (domain.ProviderHistory, error) {
	h := hash(providerID)
	return domain.ProviderHistory{
		RiskScore:   round4(float64(h%100) / 100),
		TotalClaims: int(h%500) + 10,
		FraudRate:   round4(float64(h%20) / 100),
	}, nil
}

// ClaimantHistory returns 0-9 prior claims with amounts in [5000,54999].
func (p *Placeholder) ClaimantHistory(_ context.Context, claimantID, _ string, _ time.Time) (domain.ClaimantHistory, error) {
	h := hash(claimantID)
	freq := int(h % 10)
	amounts := make([]float64, 0, freq)
	for i := 0; i < freq; i++ {
		amounts = append(amounts, float64(5000+hash(claimantID+strconv.Itoa(i))%50000))
	}
	return domain.ClaimantHistory{
		ClaimFrequency:   freq,
		Amounts:          amounts,
		ConcurrentClaims: int(h % 3),
	}, nil
}

// TreatmentStats returns a frequency of 50-1049 and an average of 10000-109999.
func (p *Placeholder) TreatmentStats(_ context.Context, treatmentCode string) (domain.TreatmentStats, error) {
	h := hash(treatmentCode)
	return domain.TreatmentStats{
		Frequency: int(h%1000) + 50,
		AvgAmount: float64(10000 + h%100000),
		Risk:      round4(float64(hash("risk:"+treatmentCode)%100) / 100),
	}, nil
}

// DiagnosisMatch returns 0.8 for most codes and 0.3 for the rest.
func (p *Placeholder) DiagnosisMatch(_ context.Context, diagnosisCode, _ string) (float64, error) {
	if hash(diagnosisCode)%10 < 8 {
		return 0.8, nil
	}
	return 0.3, nil
}

// LocationRisk returns a district risk in [0,0.49].
func (p *Placeholder) LocationRisk(_ context.Context, district string) (float64, error) {
	return float64(hash(district)%50) / 100, nil
}

// BrokerRisk returns a broker risk in [0,0.99].
func (p *Placeholder) BrokerRisk(_ context.Context, brokerID string) (float64, error) {
	return float64(hash(brokerID)%100) / 100, nil
}
