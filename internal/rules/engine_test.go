package rules

import (
	"context"
	"reflect"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"github.com/opensource-finance/claimrisk/internal/domain"
)

func newTestEngine(t *testing.T) *Engine {
	t.Helper()
	engine, err := NewEngine(BuiltinRules(nil)...)
	if err != nil {
		t.Fatalf("failed to create engine: %v", err)
	}
	t.Cleanup(func() { engine.Close() })
	return engine
}

func datePair(claim time.Time, daysAfterInception int) (*time.Time, *time.Time) {
	inception := claim.AddDate(0, 0, -daysAfterInception)
	return &claim, &inception
}

func flagIDs(flags []domain.RuleFlag) []string {
	ids := make([]string, 0, len(flags))
	for _, f := range flags {
		ids = append(ids, f.RuleID)
	}
	return ids
}

func TestEngineCreation(t *testing.T) {
	engine := newTestEngine(t)

	if engine.RulesCount() != 5 {
		t.Errorf("expected 5 built-in rules, got %d", engine.RulesCount())
	}

	rules := engine.Rules()
	want := []string{RuleHighAmount, RuleEarlyClaim, RuleWeekend, RuleRoundAmount, RuleHighRiskProvider}
	for i, id := range want {
		if rules[i].ID != id {
			t.Errorf("rule %d: expected %s, got %s", i, id, rules[i].ID)
		}
	}
}

func TestDuplicateRegistration(t *testing.T) {
	engine := newTestEngine(t)
	if err := engine.Register(HighAmountRule()); err == nil {
		t.Error("expected error registering duplicate rule ID")
	}
}

func TestEvaluateScenario(t *testing.T) {
	engine := newTestEngine(t)

	// Tuesday, 10 days after inception
	claimDate, inception := datePair(time.Date(2024, time.May, 14, 10, 0, 0, 0, time.UTC), 10)
	claim := &domain.Claim{
		ID:                  "CLM-1",
		ProviderID:          "PRV999",
		ClaimAmount:         decimal.NewFromInt(250000),
		ClaimDate:           claimDate,
		PolicyInceptionDate: inception,
	}

	flags := engine.Evaluate(context.Background(), claim)

	got := flagIDs(flags)
	want := []string{RuleHighAmount, RuleEarlyClaim, RuleRoundAmount, RuleHighRiskProvider}
	if !reflect.DeepEqual(got, want) {
		t.Fatalf("expected flags %v, got %v", want, got)
	}

	maxScore := 0.0
	for _, f := range flags {
		if s := f.Severity.Score(); s > maxScore {
			maxScore = s
		}
	}
	if maxScore != 100 {
		t.Errorf("expected max severity score 100, got %v", maxScore)
	}

	if flags[0].Description != "Claim amount (HKD 250,000.00) exceeds threshold" {
		t.Errorf("unexpected description: %q", flags[0].Description)
	}
	if flags[0].Threshold == nil || *flags[0].Threshold != 200000 {
		t.Errorf("expected threshold 200000, got %v", flags[0].Threshold)
	}
	if flags[1].Description != "Claim submitted 10 days after policy inception" {
		t.Errorf("unexpected description: %q", flags[1].Description)
	}
	if flags[3].Threshold != nil {
		t.Errorf("expected nil threshold for provider rule")
	}
}

func TestEvaluateIgnoresCanceledContext(t *testing.T) {
	engine := newTestEngine(t)

	claimDate, inception := datePair(time.Date(2024, time.May, 14, 10, 0, 0, 0, time.UTC), 10)
	claim := &domain.Claim{
		ID:                  "CLM-1",
		ProviderID:          "PRV999",
		ClaimAmount:         decimal.NewFromInt(250000),
		ClaimDate:           claimDate,
		PolicyInceptionDate: inception,
	}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	got := flagIDs(engine.Evaluate(ctx, claim))
	want := flagIDs(engine.Evaluate(context.Background(), claim))
	if !reflect.DeepEqual(got, want) || len(got) != 4 {
		t.Errorf("expected full battery %v under cancelled context, got %v", want, got)
	}
}

func TestEvaluateIsStable(t *testing.T) {
	engine := newTestEngine(t)

	// Sunday
	claimDate, inception := datePair(time.Date(2024, time.June, 2, 9, 0, 0, 0, time.UTC), 3)
	claim := &domain.Claim{
		ID:                  "CLM-2",
		ProviderID:          "PRV0666",
		ClaimAmount:         decimal.NewFromInt(300000),
		ClaimDate:           claimDate,
		PolicyInceptionDate: inception,
	}
	before := *claim

	first := engine.Evaluate(context.Background(), claim)
	second := engine.Evaluate(context.Background(), claim)

	if !reflect.DeepEqual(first, second) {
		t.Errorf("expected identical flags, got %v and %v", first, second)
	}
	if len(first) != 5 {
		t.Errorf("expected all 5 rules to fire, got %v", flagIDs(first))
	}
	if !reflect.DeepEqual(before, *claim) {
		t.Error("evaluation modified the claim")
	}
}

func TestBuiltinRules(t *testing.T) {
	engine := newTestEngine(t)
	monday := time.Date(2024, time.May, 13, 12, 0, 0, 0, time.UTC)

	tests := []struct {
		name  string
		claim domain.Claim
		want  []string
	}{
		{
			name:  "CleanClaim",
			claim: domain.Claim{ProviderID: "PRV0042", ClaimAmount: decimal.RequireFromString("1234.50"), ClaimDate: &monday},
			want:  []string{},
		},
		{
			name:  "AmountJustAboveThreshold",
			claim: domain.Claim{ClaimAmount: decimal.RequireFromString("200000.01")},
			want:  []string{RuleHighAmount},
		},
		{
			name:  "RoundAmountAtFloorNotFlagged",
			claim: domain.Claim{ClaimAmount: decimal.NewFromInt(10000)},
			want:  []string{},
		},
		{
			name:  "RoundAmountAboveFloor",
			claim: domain.Claim{ClaimAmount: decimal.NewFromInt(11000)},
			want:  []string{RuleRoundAmount},
		},
		{
			name:  "ProviderSuffix000",
			claim: domain.Claim{ProviderID: "PRV1000", ClaimAmount: decimal.NewFromInt(500)},
			want:  []string{RuleHighRiskProvider},
		},
		{
			name:  "MissingInceptionNotEarly",
			claim: domain.Claim{ClaimAmount: decimal.NewFromInt(500), ClaimDate: &monday},
			want:  []string{},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := flagIDs(engine.Evaluate(context.Background(), &tt.claim))
			if !reflect.DeepEqual(got, tt.want) {
				t.Errorf("expected %v, got %v", tt.want, got)
			}
		})
	}
}

func TestEarlyClaimBoundary(t *testing.T) {
	engine := newTestEngine(t)
	monday := time.Date(2024, time.May, 13, 12, 0, 0, 0, time.UTC)

	for days, want := range map[int]bool{29: true, 30: false} {
		claimDate, inception := datePair(monday, days)
		claim := &domain.Claim{ClaimAmount: decimal.NewFromInt(500), ClaimDate: claimDate, PolicyInceptionDate: inception}
		flags := engine.Evaluate(context.Background(), claim)
		if got := len(flags) == 1; got != want {
			t.Errorf("days=%d: expected early flag %v, got %v", days, want, flagIDs(flags))
		}
	}
}

func TestListedProvider(t *testing.T) {
	engine, err := NewEngine(BuiltinRules([]string{"PRV0042"})...)
	if err != nil {
		t.Fatalf("failed to create engine: %v", err)
	}

	claim := &domain.Claim{ProviderID: "PRV0042", ClaimAmount: decimal.NewFromInt(500)}
	got := flagIDs(engine.Evaluate(context.Background(), claim))
	if !reflect.DeepEqual(got, []string{RuleHighRiskProvider}) {
		t.Errorf("expected listed provider flagged, got %v", got)
	}
}

func TestCustomRules(t *testing.T) {
	t.Run("LoadAndEvaluate", func(t *testing.T) {
		engine := newTestEngine(t)

		rule := &domain.RuleConfig{
			ID:          "CUSTOM_001",
			Name:        "Broker Night Filing",
			Description: "Broker-assisted claim filed at night",
			Expression:  "has_broker && hour >= 22",
			Severity:    domain.SeverityHigh,
			Enabled:     true,
		}
		if err := engine.LoadRule(rule); err != nil {
			t.Fatalf("failed to load rule: %v", err)
		}
		if engine.RulesCount() != 6 {
			t.Errorf("expected 6 rules, got %d", engine.RulesCount())
		}

		night := time.Date(2024, time.May, 14, 23, 0, 0, 0, time.UTC)
		claim := &domain.Claim{ID: "c", BrokerID: "BRK1", ClaimAmount: decimal.NewFromInt(700), ClaimDate: &night}

		flags := engine.Evaluate(context.Background(), claim)
		if len(flags) != 1 || flags[0].RuleID != "CUSTOM_001" {
			t.Fatalf("expected custom flag, got %v", flagIDs(flags))
		}
		if flags[0].Severity != domain.SeverityHigh {
			t.Errorf("expected high severity, got %s", flags[0].Severity)
		}
	})

	t.Run("CustomAfterBuiltinsByID", func(t *testing.T) {
		engine := newTestEngine(t)
		for _, id := range []string{"Z_RULE", "A_RULE"} {
			err := engine.LoadRule(&domain.RuleConfig{ID: id, Name: id, Expression: "amount > 0.0", Severity: domain.SeverityLow, Enabled: true})
			if err != nil {
				t.Fatalf("failed to load %s: %v", id, err)
			}
		}

		claim := &domain.Claim{ProviderID: "PRV999", ClaimAmount: decimal.NewFromInt(5)}
		got := flagIDs(engine.Evaluate(context.Background(), claim))
		want := []string{RuleHighRiskProvider, "A_RULE", "Z_RULE"}
		if !reflect.DeepEqual(got, want) {
			t.Errorf("expected %v, got %v", want, got)
		}
	})

	t.Run("NestedClaimMap", func(t *testing.T) {
		engine := newTestEngine(t)
		err := engine.LoadRule(&domain.RuleConfig{
			ID: "C2", Name: "Treatment", Expression: `claim.treatment_code == "T999"`,
			Severity: domain.SeverityMedium, Enabled: true,
		})
		if err != nil {
			t.Fatalf("failed to load rule: %v", err)
		}
		claim := &domain.Claim{TreatmentCode: "T999", ClaimAmount: decimal.NewFromInt(5)}
		if got := flagIDs(engine.Evaluate(context.Background(), claim)); !reflect.DeepEqual(got, []string{"C2"}) {
			t.Errorf("expected C2, got %v", got)
		}
	})

	t.Run("RejectsInvalid", func(t *testing.T) {
		engine := newTestEngine(t)
		cases := map[string]*domain.RuleConfig{
			"syntax":   {ID: "bad1", Expression: "this is not valid CEL !!!", Severity: domain.SeverityLow, Enabled: true},
			"nonBool":  {ID: "bad2", Expression: "amount * 2.0", Severity: domain.SeverityLow, Enabled: true},
			"severity": {ID: "bad3", Expression: "amount > 1.0", Severity: "extreme", Enabled: true},
			"builtin":  {ID: RuleWeekend, Expression: "amount > 1.0", Severity: domain.SeverityLow, Enabled: true},
		}
		for name, cfg := range cases {
			if err := engine.LoadRule(cfg); err == nil {
				t.Errorf("%s: expected error", name)
			}
		}
		if engine.RulesCount() != 5 {
			t.Errorf("expected rejected rules not to load, got %d", engine.RulesCount())
		}
	})

	t.Run("ValidateDoesNotLoad", func(t *testing.T) {
		engine := newTestEngine(t)
		cfg := &domain.RuleConfig{ID: "v", Expression: "amount > 1.0", Severity: domain.SeverityLow, Enabled: true}
		if err := engine.ValidateRule(cfg); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if engine.RulesCount() != 5 {
			t.Errorf("validate must not load the rule")
		}
	})

	t.Run("Reload", func(t *testing.T) {
		engine := newTestEngine(t)
		_ = engine.LoadRule(&domain.RuleConfig{ID: "old", Expression: "true", Severity: domain.SeverityLow, Enabled: true})

		err := engine.ReloadRules([]*domain.RuleConfig{
			{ID: "new", Expression: "amount > 1.0", Severity: domain.SeverityLow, Enabled: true},
			{ID: "off", Expression: "true", Severity: domain.SeverityLow, Enabled: false},
		})
		if err != nil {
			t.Fatalf("reload failed: %v", err)
		}

		var custom []string
		for _, r := range engine.Rules() {
			if r.Custom {
				custom = append(custom, r.ID)
			}
		}
		if !reflect.DeepEqual(custom, []string{"new"}) {
			t.Errorf("expected only 'new' custom rule, got %v", custom)
		}
	})
}

func TestFormatMoney(t *testing.T) {
	tests := map[string]string{
		"250000":    "250,000.00",
		"1234.5":    "1,234.50",
		"999":       "999.00",
		"1000000.1": "1,000,000.10",
	}
	for in, want := range tests {
		if got := formatMoney(decimal.RequireFromString(in)); got != want {
			t.Errorf("formatMoney(%s) = %s, want %s", in, got, want)
		}
	}
}
