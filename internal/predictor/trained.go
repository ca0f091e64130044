package predictor

import (
	"context"
	"encoding/json"
	"fmt"
	"math"
	"os"
	"sort"

	"github.com/opensource-finance/claimrisk/internal/domain"
)

// Model is a logistic regression over named features.
type Model struct {
	Version   string             `json:"version"`
	Intercept float64            `json:"intercept"`
	Weights   map[string]float64 `json:"weights"`
}

// LoadModel reads a model file.
func LoadModel(path string) (*Model, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read model: %w", err)
	}

	var m Model
	if err := json.Unmarshal(data, &m); err != nil {
		return nil, fmt.Errorf("failed to decode model: %w", err)
	}
	if len(m.Weights) == 0 {
		return nil, fmt.Errorf("model %s has no weights", path)
	}
	if m.Version == "" {
		m.Version = "unknown"
	}
	return &m, nil
}

// Trained scores claims with a loaded model.
type Trained struct {
	model     *Model
	names     []string // sorted, so the sum is order-stable
	threshold float64
}

// NewTrained wraps a loaded model.
func NewTrained(model *Model, threshold float64) *Trained {
	names := make([]string, 0, len(model.Weights))
	for name := range model.Weights {
		names = append(names, name)
	}
	sort.Strings(names)
	return &Trained{model: model, names: names, threshold: threshold}
}

// Version returns the model version.
func (t *Trained) Version() string { return t.model.Version }

// Predict computes sigmoid(intercept + w·x). Features absent from the
// vector contribute zero. Confidence is the distance from the undecided
// side, max(p, 1-p).
func (t *Trained) Predict(_ context.Context, v domain.FeatureVector) domain.Prediction {
	z := t.model.Intercept
	for _, name := range t.names {
		z += t.model.Weights[name] * v[name]
	}

	p := 1 / (1 + math.Exp(-z))
	if math.IsNaN(p) || math.IsInf(p, 0) {
		return errorPrediction(fmt.Errorf("model %s produced non-finite output", t.model.Version))
	}

	return domain.Prediction{
		FraudProbability: p,
		IsFraud:          p > t.threshold,
		Confidence:       math.Max(p, 1-p),
		ModelVersion:     t.model.Version,
	}
}

// FeatureImportance reports each weight's share of the total absolute
// weight, largest first.
func (t *Trained) FeatureImportance() []domain.FeatureImportance {
	total := 0.0
	for _, w := range t.model.Weights {
		total += math.Abs(w)
	}

	out := make([]domain.FeatureImportance, 0, len(t.names))
	for _, name := range t.names {
		imp := 0.0
		if total > 0 {
			imp = math.Abs(t.model.Weights[name]) / total
		}
		out = append(out, domain.FeatureImportance{Name: name, Importance: math.Round(imp*10000) / 10000})
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].Importance > out[j].Importance })
	return out
}
