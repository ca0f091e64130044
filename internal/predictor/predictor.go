// Package predictor provides the fraud-probability models consumed by
// score fusion: a trained logistic model and a heuristic fallback.
package predictor

import (
	"log/slog"

	"github.com/opensource-finance/claimrisk/internal/domain"
)

// DefaultThreshold is the probability above which a claim is predicted fraudulent.
const DefaultThreshold = 0.5

// New selects the predictor at startup: the trained model when modelPath
// loads, otherwise the heuristic.
func New(modelPath string, threshold float64) domain.Predictor {
	if threshold <= 0 || threshold >= 1 {
		threshold = DefaultThreshold
	}
	if modelPath == "" {
		slog.Warn("no trained model configured, using heuristic predictor")
		return NewHeuristic(threshold)
	}

	model, err := LoadModel(modelPath)
	if err != nil {
		slog.Warn("failed to load trained model, using heuristic predictor",
			"path", modelPath,
			"error", err,
		)
		return NewHeuristic(threshold)
	}

	slog.Info("trained model loaded", "path", modelPath, "version", model.Version, "features", len(model.Weights))
	return NewTrained(model, threshold)
}

// errorPrediction is the degraded result for a failed model call.
func errorPrediction(err error) domain.Prediction {
	return domain.Prediction{
		FraudProbability: 0,
		IsFraud:          false,
		Confidence:       0,
		Error:            err.Error(),
	}
}
