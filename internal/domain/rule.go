package domain

import "time"

// Severity is the weight class of a rule flag.
type Severity string

const (
	SeverityLow      Severity = "low"
	SeverityMedium   Severity = "medium"
	SeverityHigh     Severity = "high"
	SeverityCritical Severity = "critical"
)

// Score maps a severity onto the 0-100 rule score scale.
func (s Severity) Score() float64 {
	switch s {
	case SeverityLow:
		return 25
	case SeverityMedium:
		return 50
	case SeverityHigh:
		return 75
	case SeverityCritical:
		return 100
	default:
		return 0
	}
}

// Valid reports whether s is one of the known severities.
func (s Severity) Valid() bool {
	return s.Score() > 0
}

// RuleFlag is emitted by a rule that fired for a claim.
type RuleFlag struct {
	RuleID      string   `json:"rule_id"`
	RuleName    string   `json:"rule_name"`
	Severity    Severity `json:"severity"`
	Description string   `json:"description"`
	Threshold   *float64 `json:"threshold"`
}

// RuleConfig defines a custom rule stored alongside the built-in rules.
type RuleConfig struct {
	ID          string `json:"id" validate:"required"`
	Name        string `json:"name" validate:"required"`
	Description string `json:"description"`
	Version     string `json:"version"`

	// CEL expression over the claim map; must evaluate to bool.
	Expression string `json:"expression" validate:"required"`

	Severity  Severity `json:"severity" validate:"required,oneof=low medium high critical"`
	Threshold *float64 `json:"threshold,omitempty"`

	// Whether rule is active
	Enabled bool `json:"enabled"`

	CreatedAt time.Time `json:"created_at,omitempty"`
	UpdatedAt time.Time `json:"updated_at,omitempty"`
}
