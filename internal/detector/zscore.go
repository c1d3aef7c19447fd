package detector

import (
	"context"
	"math"

	"github.com/HarshdeepAthawale/Security-Detection-for-CI-CD-Pipelines/internal/baseline"
	"github.com/HarshdeepAthawale/Security-Detection-for-CI-CD-Pipelines/internal/feature"
	"github.com/HarshdeepAthawale/Security-Detection-for-CI-CD-Pipelines/internal/model"
)

// ZScoreDetector is the default, explainable drift-scoring strategy:
// a weighted aggregate of per-feature z-scores.
type ZScoreDetector struct{}

// NewZScoreDetector constructs the default detector.
func NewZScoreDetector() *ZScoreDetector { return &ZScoreDetector{} }

// Detect implements Detector.
func (d *ZScoreDetector) Detect(_ context.Context, vector []float64, m *baseline.Model, pipelineName string) (*model.Analysis, error) {
	if err := validateInputs(vector, m); err != nil {
		return nil, err
	}

	var weightedAbsZ float64
	for idx, name := range feature.Names {
		z := zscore(vector[idx], m.Features[name])
		weightedAbsZ += math.Abs(z) * featureWeight[name]
	}

	score := 20 * weightedAbsZ / totalWeight
	if score < 0 {
		score = 0
	}
	if score > 100 {
		score = 100
	}
	score = math.Round(score*100) / 100

	return evaluate(vector, m, pipelineName, score, RiskLevelFor(score))
}
