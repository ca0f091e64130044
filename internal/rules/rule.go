package rules

import (
	"github.com/opensource-finance/claimrisk/internal/domain"
)

// Rule is a single independent check against a claim.
type Rule interface {
	ID() string
	Name() string

	// Check returns the flag to emit and true when the rule fires.
	Check(claim *domain.Claim) (domain.RuleFlag, bool)
}

// PredicateRule pairs a predicate with a flag factory.
type PredicateRule struct {
	RuleID    string
	RuleName  string
	Severity  domain.Severity
	Threshold *float64

	// When reports whether the rule fires.
	When func(claim *domain.Claim) bool

	// Describe renders the flag description for a firing claim.
	Describe func(claim *domain.Claim) string
}

// ID returns the rule identifier.
func (r *PredicateRule) ID() string { return r.RuleID }

// Name returns the display name.
func (r *PredicateRule) Name() string { return r.RuleName }

// Check evaluates the predicate and builds the flag.
func (r *PredicateRule) Check(claim *domain.Claim) (domain.RuleFlag, bool) {
	if !r.When(claim) {
		return domain.RuleFlag{}, false
	}
	return domain.RuleFlag{
		RuleID:      r.RuleID,
		RuleName:    r.RuleName,
		Severity:    r.Severity,
		Description: r.Describe(claim),
		Threshold:   r.Threshold,
	}, true
}
