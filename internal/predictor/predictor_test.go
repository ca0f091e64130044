package predictor

import (
	"context"
	"math"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/opensource-finance/claimrisk/internal/domain"
	"github.com/opensource-finance/claimrisk/internal/features"
)

func TestHeuristic(t *testing.T) {
	h := NewHeuristic(DefaultThreshold)
	ctx := context.Background()

	tests := []struct {
		name string
		v    domain.FeatureVector
		want float64
	}{
		{"NoIndicators", features.Defaults(), 0},
		{"EmptyVectorUsesDefaults", domain.FeatureVector{}, 0},
		{"AmountOnly", domain.FeatureVector{features.ClaimAmount: 100001}, 0.25},
		{"AmountAtLimit", domain.FeatureVector{features.ClaimAmount: 100000}, 0},
		{"ThreeIndicators", domain.FeatureVector{
			features.ClaimAmount:              250000,
			features.DaysSincePolicyInception: 10,
			features.ClaimFrequency:           6,
		}, 0.75},
		{"AllIndicators", domain.FeatureVector{
			features.ClaimAmount:              250000,
			features.DaysSincePolicyInception: 0,
			features.ClaimFrequency:           9,
			features.ProviderRiskScore:        0.71,
		}, 1},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := h.Predict(ctx, tt.v)
			assert.Equal(t, tt.want, p.FraudProbability)
			assert.Equal(t, 0.75, p.Confidence)
			assert.Equal(t, HeuristicVersion, p.ModelVersion)
			assert.Equal(t, tt.want > 0.5, p.IsFraud)
			assert.Empty(t, p.Error)
		})
	}
}

func writeModel(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "model.json")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	return path
}

func TestTrained(t *testing.T) {
	path := writeModel(t, `{"version":"lr_v2","intercept":-1.0,"weights":{"claim_amount":0.00001,"within_first_month":2.0}}`)
	model, err := LoadModel(path)
	require.NoError(t, err)

	tp := NewTrained(model, DefaultThreshold)
	assert.Equal(t, "lr_v2", tp.Version())

	t.Run("Sigmoid", func(t *testing.T) {
		v := domain.FeatureVector{features.ClaimAmount: 100000, features.WithinFirstMonth: 1}
		p := tp.Predict(context.Background(), v)

		want := 1 / (1 + math.Exp(-2.0))
		assert.InDelta(t, want, p.FraudProbability, 1e-12)
		assert.InDelta(t, want, p.Confidence, 1e-12)
		assert.True(t, p.IsFraud)
		assert.Equal(t, "lr_v2", p.ModelVersion)
	})

	t.Run("ConfidenceIsDistanceFromUndecided", func(t *testing.T) {
		p := tp.Predict(context.Background(), domain.FeatureVector{})
		want := 1 / (1 + math.Exp(1.0))
		assert.InDelta(t, want, p.FraudProbability, 1e-12)
		assert.InDelta(t, 1-want, p.Confidence, 1e-12)
		assert.False(t, p.IsFraud)
	})

	t.Run("NonFiniteDegrades", func(t *testing.T) {
		p := tp.Predict(context.Background(), domain.FeatureVector{features.ClaimAmount: math.NaN()})
		assert.Equal(t, 0.0, p.Confidence)
		assert.Equal(t, 0.0, p.FraudProbability)
		assert.NotEmpty(t, p.Error)
	})

	t.Run("FeatureImportance", func(t *testing.T) {
		imp := tp.FeatureImportance()
		require.Len(t, imp, 2)
		assert.Equal(t, "within_first_month", imp[0].Name)
		assert.InDelta(t, 1.0, imp[0].Importance+imp[1].Importance, 1e-3)
	})
}

func TestLoadModelErrors(t *testing.T) {
	_, err := LoadModel(filepath.Join(t.TempDir(), "missing.json"))
	assert.Error(t, err)

	_, err = LoadModel(writeModel(t, `not json`))
	assert.Error(t, err)

	_, err = LoadModel(writeModel(t, `{"version":"empty","weights":{}}`))
	assert.Error(t, err)
}

func TestNewSelectsVariant(t *testing.T) {
	assert.IsType(t, &Heuristic{}, New("", 0))
	assert.IsType(t, &Heuristic{}, New(filepath.Join(t.TempDir(), "nope.json"), 0.5))

	path := writeModel(t, `{"version":"lr_v3","weights":{"claim_amount":0.1}}`)
	p := New(path, 0.5)
	assert.IsType(t, &Trained{}, p)
	assert.Equal(t, "lr_v3", p.Version())
}
