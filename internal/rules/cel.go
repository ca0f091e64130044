package rules

import (
	"log/slog"

	"github.com/google/cel-go/cel"
	"github.com/google/cel-go/common/types"

	"github.com/opensource-finance/claimrisk/internal/domain"
)

// CompiledRule is a custom rule backed by a pre-compiled CEL program.
type CompiledRule struct {
	Config  *domain.RuleConfig
	Program cel.Program
	log     *slog.Logger
}

// ID returns the rule identifier.
func (r *CompiledRule) ID() string { return r.Config.ID }

// Name returns the display name.
func (r *CompiledRule) Name() string { return r.Config.Name }

// Check evaluates the expression. Evaluation errors are logged and the
// rule does not fire.
func (r *CompiledRule) Check(claim *domain.Claim) (domain.RuleFlag, bool) {
	out, _, err := r.Program.Eval(activation(claim))
	if err != nil {
		r.log.Warn("custom rule evaluation failed", "claim_id", claim.ID, "error", err)
		return domain.RuleFlag{}, false
	}
	if fired, ok := out.(types.Bool); !ok || !bool(fired) {
		return domain.RuleFlag{}, false
	}

	desc := r.Config.Description
	if desc == "" {
		desc = r.Config.Name
	}
	return domain.RuleFlag{
		RuleID:      r.Config.ID,
		RuleName:    r.Config.Name,
		Severity:    r.Config.Severity,
		Description: desc,
		Threshold:   r.Config.Threshold,
	}, true
}

// newClaimEnv declares the variables visible to custom rule expressions.
func newClaimEnv() (*cel.Env, error) {
	return cel.NewEnv(
		cel.Variable("claim", cel.MapType(cel.StringType, cel.DynType)),
		cel.Variable("amount", cel.DoubleType),
		cel.Variable("days_since_inception", cel.IntType),
		cel.Variable("weekday", cel.IntType),
		cel.Variable("hour", cel.IntType),
		cel.Variable("provider_id", cel.StringType),
		cel.Variable("claimant_id", cel.StringType),
		cel.Variable("treatment_code", cel.StringType),
		cel.Variable("diagnosis_code", cel.StringType),
		cel.Variable("district", cel.StringType),
		cel.Variable("has_broker", cel.BoolType),
		cel.Variable("document_count", cel.IntType),
		cel.Variable("line_item_count", cel.IntType),
	)
}

// activation builds the CEL inputs for a claim. Missing dates evaluate as
// days_since_inception = -1 and weekday/hour = -1.
func activation(claim *domain.Claim) map[string]any {
	days := int64(-1)
	if d, ok := claim.DaysSinceInception(); ok {
		days = int64(d)
	}
	weekday, hour := int64(-1), int64(-1)
	if claim.ClaimDate != nil {
		weekday = int64((claim.ClaimDate.Weekday() + 6) % 7) // Monday = 0
		hour = int64(claim.ClaimDate.Hour())
	}
	var district string
	if claim.Location != nil {
		district = claim.Location.District
	}

	vars := map[string]any{
		"amount":               claim.AmountFloat(),
		"days_since_inception": days,
		"weekday":              weekday,
		"hour":                 hour,
		"provider_id":          claim.ProviderID,
		"claimant_id":          claim.ClaimantID,
		"treatment_code":       claim.TreatmentCode,
		"diagnosis_code":       claim.DiagnosisCode,
		"district":             district,
		"has_broker":           claim.BrokerID != "",
		"document_count":       int64(len(claim.Documents)),
		"line_item_count":      int64(len(claim.LineItems)),
	}

	nested := make(map[string]any, len(vars)+1)
	for k, v := range vars {
		nested[k] = v
	}
	nested["id"] = claim.ID
	vars["claim"] = nested
	return vars
}
