package benford

import "github.com/opensource-finance/claimrisk/internal/domain"

// Chart is observed versus expected digit frequencies, in percent.
type Chart struct {
	Digits   []int             `json:"digits"`
	Observed []float64         `json:"observed"`
	Expected []float64         `json:"expected"`
	Labels   map[string]string `json:"labels"`
}

// Chart builds plotting data for the claim's amounts. Unlike Analyze it
// applies no minimum sample size.
func (a *Analyzer) Chart(claim *domain.Claim) Chart {
	var digits []int
	for _, amt := range Amounts(claim) {
		if d, ok := LeadingDigit(amt); ok {
			digits = append(digits, d)
		}
	}
	observed := Distribution(digits)

	c := Chart{
		Digits:   make([]int, 0, 9),
		Observed: make([]float64, 0, 9),
		Expected: make([]float64, 0, 9),
		Labels: map[string]string{
			"x":     "Leading Digit",
			"y":     "Frequency (%)",
			"title": "Benford's Law Analysis",
		},
	}
	for d := 1; d <= 9; d++ {
		c.Digits = append(c.Digits, d)
		c.Observed = append(c.Observed, observed[d]*100)
		c.Expected = append(c.Expected, Expected[d]*100)
	}
	return c
}
