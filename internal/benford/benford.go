// Package benford tests claim amounts against Benford's Law.
package benford

import (
	"fmt"
	"log/slog"
	"math"

	"github.com/shopspring/decimal"
	"gonum.org/v1/gonum/stat"
	"gonum.org/v1/gonum/stat/distuv"

	"github.com/opensource-finance/claimrisk/internal/domain"
)

// Expected is the Benford leading-digit distribution for digits 1-9.
var Expected = map[int]float64{
	1: 0.301,
	2: 0.176,
	3: 0.125,
	4: 0.097,
	5: 0.079,
	6: 0.067,
	7: 0.058,
	8: 0.051,
	9: 0.046,
}

const (
	// MinSampleSize is the smallest amount count the test is run on.
	MinSampleSize = 10

	// DefaultThreshold is the default chi-square p-value cutoff.
	DefaultThreshold = 0.05

	// maxMAD is the theoretical maximum mean absolute deviation.
	maxMAD = 0.22

	deviationWarning  = 0.3
	deviationCritical = 0.5

	degreesOfFreedom = 8
)

// Messages attached to results.
const (
	MsgConforming   = "Amount distribution follows Benford's Law - no anomalies detected"
	MsgInsufficient = "Insufficient data for Benford analysis"
	MsgError        = "Error performing Benford analysis"
	MsgCritical     = "CRITICAL: Significant deviation from Benford's Law detected - high probability of data manipulation"
	MsgWarning      = "WARNING: Notable deviation from Benford's Law - amounts may be fabricated or estimated"
	MsgNotice       = "NOTICE: Minor deviation from Benford's Law detected - warrants further review"
)

// Analyzer runs the leading-digit test. It holds no mutable state.
type Analyzer struct {
	threshold float64
}

// NewAnalyzer creates an analyzer with the given p-value threshold.
// A non-positive threshold selects DefaultThreshold.
func NewAnalyzer(threshold float64) *Analyzer {
	if threshold <= 0 {
		threshold = DefaultThreshold
	}
	return &Analyzer{threshold: threshold}
}

// Threshold returns the p-value cutoff in use.
func (a *Analyzer) Threshold() float64 {
	return a.threshold
}

// Analyze runs the test over every positive amount on the claim.
// It never panics and never returns an error; failures are reported
// as a non-anomalous result carrying the error text.
func (a *Analyzer) Analyze(claim *domain.Claim) (result domain.BenfordResult) {
	defer func() {
		if r := recover(); r != nil {
			slog.Warn("benford analysis failed", "panic", r)
			result = errorResult(fmt.Errorf("%v", r))
		}
	}()

	if claim == nil {
		return errorResult(fmt.Errorf("nil claim"))
	}
	return a.AnalyzeAmounts(Amounts(claim))
}

// AnalyzeAmounts runs the test over an explicit set of amounts.
// Non-positive amounts are discarded before counting.
func (a *Analyzer) AnalyzeAmounts(amounts []decimal.Decimal) domain.BenfordResult {
	positive := make([]decimal.Decimal, 0, len(amounts))
	for _, amt := range amounts {
		if amt.IsPositive() {
			positive = append(positive, amt)
		}
	}

	if len(positive) < MinSampleSize {
		return domain.BenfordResult{
			IsAnomalous: false,
			PValue:      1,
			SampleSize:  len(positive),
			Message:     MsgInsufficient,
		}
	}

	digits := make([]int, 0, len(positive))
	for _, amt := range positive {
		if d, ok := LeadingDigit(amt); ok {
			digits = append(digits, d)
		}
	}
	if len(digits) == 0 {
		return errorResult(fmt.Errorf("no leading digits in %d amounts", len(positive)))
	}

	observed := Distribution(digits)
	chi, p := chiSquare(observed)
	deviation := deviationScore(observed)
	anomalous := p < a.threshold || deviation > deviationWarning

	return domain.BenfordResult{
		IsAnomalous:          anomalous,
		DeviationScore:       round4(deviation),
		PValue:               round4(p),
		ChiSquare:            round4(chi),
		SampleSize:           len(digits),
		Message:              message(anomalous, deviation),
		ObservedDistribution: observed,
		ExpectedDistribution: expectedCopy(),
	}
}

// Amounts collects the claim amount, line items, historical amounts and
// related amounts, keeping only positive values.
func Amounts(claim *domain.Claim) []decimal.Decimal {
	n := 1 + len(claim.LineItems) + len(claim.HistoricalAmounts) + len(claim.RelatedAmounts)
	out := make([]decimal.Decimal, 0, n)
	add := func(d decimal.Decimal) {
		if d.IsPositive() {
			out = append(out, d)
		}
	}

	add(claim.ClaimAmount)
	for _, item := range claim.LineItems {
		add(item.Amount)
	}
	for _, d := range claim.HistoricalAmounts {
		add(d)
	}
	for _, d := range claim.RelatedAmounts {
		add(d)
	}
	return out
}

// LeadingDigit returns the first non-zero digit of the amount's decimal form.
func LeadingDigit(amt decimal.Decimal) (int, bool) {
	for _, c := range amt.Abs().String() {
		if c >= '1' && c <= '9' {
			return int(c - '0'), true
		}
	}
	return 0, false
}

// Distribution returns the relative frequency of each digit 1-9.
func Distribution(digits []int) map[int]float64 {
	counts := make(map[int]int, 9)
	for _, d := range digits {
		counts[d]++
	}
	dist := make(map[int]float64, 9)
	for d := 1; d <= 9; d++ {
		if len(digits) > 0 {
			dist[d] = float64(counts[d]) / float64(len(digits))
		} else {
			dist[d] = 0
		}
	}
	return dist
}

// chiSquare runs a goodness-of-fit test with frequencies scaled to
// percentages. It returns the statistic and its p-value.
func chiSquare(observed map[int]float64) (chi, p float64) {
	for d := 1; d <= 9; d++ {
		o := observed[d] * 100
		e := Expected[d] * 100
		chi += (o - e) * (o - e) / e
	}
	p = distuv.ChiSquared{K: degreesOfFreedom}.Survival(chi)
	if math.IsNaN(p) {
		p = 0
	}
	return chi, p
}

// deviationScore is the mean absolute deviation normalized to [0,1].
func deviationScore(observed map[int]float64) float64 {
	deviations := make([]float64, 9)
	for d := 1; d <= 9; d++ {
		deviations[d-1] = math.Abs(observed[d] - Expected[d])
	}
	return math.Min(stat.Mean(deviations, nil)/maxMAD, 1)
}

func message(anomalous bool, deviation float64) string {
	switch {
	case !anomalous:
		return MsgConforming
	case deviation > deviationCritical:
		return MsgCritical
	case deviation > deviationWarning:
		return MsgWarning
	default:
		return MsgNotice
	}
}

func errorResult(err error) domain.BenfordResult {
	return domain.BenfordResult{
		IsAnomalous: false,
		PValue:      1,
		Message:     MsgError,
		Error:       err.Error(),
	}
}

func expectedCopy() map[int]float64 {
	out := make(map[int]float64, len(Expected))
	for d, f := range Expected {
		out[d] = f
	}
	return out
}

func round4(x float64) float64 {
	return math.Round(x*10000) / 10000
}
