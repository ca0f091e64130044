package rules

import (
	"fmt"
	"slices"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/opensource-finance/claimrisk/internal/domain"
)

// Built-in rule identifiers.
const (
	RuleHighAmount       = "RULE_001"
	RuleEarlyClaim       = "RULE_002"
	RuleWeekend          = "RULE_003"
	RuleRoundAmount      = "RULE_004"
	RuleHighRiskProvider = "RULE_005"
)

// Built-in thresholds.
var (
	HighAmountThreshold  = decimal.NewFromInt(200000)
	RoundAmountFloor     = decimal.NewFromInt(10000)
	EarlyClaimDays       = 30
	suspiciousIDSuffixes = []string{"666", "999", "000"}
)

// BuiltinRules returns the standard rule battery in evaluation order.
// Providers in highRiskProviders are always flagged by RULE_005.
func BuiltinRules(highRiskProviders []string) []Rule {
	return []Rule{
		HighAmountRule(),
		EarlyClaimRule(),
		WeekendRule(),
		RoundAmountRule(),
		HighRiskProviderRule(highRiskProviders),
	}
}

// HighAmountRule flags claims above HighAmountThreshold.
func HighAmountRule() Rule {
	threshold, _ := HighAmountThreshold.Float64()
	return &PredicateRule{
		RuleID:    RuleHighAmount,
		RuleName:  "High Claim Amount",
		Severity:  domain.SeverityMedium,
		Threshold: &threshold,
		When: func(c *domain.Claim) bool {
			return c.ClaimAmount.GreaterThan(HighAmountThreshold)
		},
		Describe: func(c *domain.Claim) string {
			return fmt.Sprintf("Claim amount (%s %s) exceeds threshold", currency(c), formatMoney(c.ClaimAmount))
		},
	}
}

// EarlyClaimRule flags claims filed within EarlyClaimDays of policy inception.
func EarlyClaimRule() Rule {
	threshold := float64(EarlyClaimDays)
	return &PredicateRule{
		RuleID:    RuleEarlyClaim,
		RuleName:  "Early Claim Submission",
		Severity:  domain.SeverityHigh,
		Threshold: &threshold,
		When: func(c *domain.Claim) bool {
			days, ok := c.DaysSinceInception()
			return ok && days < EarlyClaimDays
		},
		Describe: func(c *domain.Claim) string {
			days, _ := c.DaysSinceInception()
			return fmt.Sprintf("Claim submitted %d days after policy inception", days)
		},
	}
}

// WeekendRule flags claims dated on a Saturday or Sunday.
func WeekendRule() Rule {
	return &PredicateRule{
		RuleID:   RuleWeekend,
		RuleName: "Weekend Submission",
		Severity: domain.SeverityLow,
		When: func(c *domain.Claim) bool {
			if c.ClaimDate == nil {
				return false
			}
			wd := c.ClaimDate.Weekday()
			return wd == time.Saturday || wd == time.Sunday
		},
		Describe: func(*domain.Claim) string {
			return "Claim submitted on weekend"
		},
	}
}

// RoundAmountRule flags whole-thousand amounts above RoundAmountFloor.
func RoundAmountRule() Rule {
	thousand := decimal.NewFromInt(1000)
	return &PredicateRule{
		RuleID:   RuleRoundAmount,
		RuleName: "Round Number Amount",
		Severity: domain.SeverityLow,
		When: func(c *domain.Claim) bool {
			return c.ClaimAmount.Mod(thousand).IsZero() && c.ClaimAmount.GreaterThan(RoundAmountFloor)
		},
		Describe: func(*domain.Claim) string {
			return "Claim amount is a round number, may indicate estimation"
		},
	}
}

// HighRiskProviderRule flags listed providers and provider IDs with a
// suspicious suffix.
func HighRiskProviderRule(highRiskProviders []string) Rule {
	listed := slices.Clone(highRiskProviders)
	return &PredicateRule{
		RuleID:   RuleHighRiskProvider,
		RuleName: "High-Risk Provider",
		Severity: domain.SeverityCritical,
		When: func(c *domain.Claim) bool {
			if c.ProviderID == "" {
				return false
			}
			if slices.Contains(listed, c.ProviderID) {
				return true
			}
			for _, suffix := range suspiciousIDSuffixes {
				if strings.HasSuffix(c.ProviderID, suffix) {
					return true
				}
			}
			return false
		},
		Describe: func(*domain.Claim) string {
			return "Provider has history of fraudulent claims"
		},
	}
}

func currency(c *domain.Claim) string {
	if c.Currency == "" {
		return "HKD"
	}
	return c.Currency
}

// formatMoney renders an amount with two decimals and thousands separators.
func formatMoney(d decimal.Decimal) string {
	s := d.Abs().StringFixed(2)
	intPart, frac, _ := strings.Cut(s, ".")

	var b strings.Builder
	if d.IsNegative() {
		b.WriteByte('-')
	}
	for i, r := range intPart {
		if i > 0 && (len(intPart)-i)%3 == 0 {
			b.WriteByte(',')
		}
		b.WriteRune(r)
	}
	b.WriteByte('.')
	b.WriteString(frac)
	return b.String()
}
