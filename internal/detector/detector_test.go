package detector

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/HarshdeepAthawale/Security-Detection-for-CI-CD-Pipelines/internal/baseline"
	"github.com/HarshdeepAthawale/Security-Detection-for-CI-CD-Pipelines/internal/feature"
)

func flatModel(mean float64) *baseline.Model {
	features := make(map[string]baseline.Stats, feature.Count)
	for _, name := range feature.Names {
		features[name] = baseline.Stats{Mean: mean, StdDev: 1, Count: 10, Min: mean - 1, Max: mean + 1}
	}
	return &baseline.Model{Features: features, Version: baseline.ModelFormatVersion, BaselineRunCount: 10}
}

func TestRiskLevelFor_Boundaries(t *testing.T) {
	assert.Equal(t, "low", string(RiskLevelFor(0)))
	assert.Equal(t, "low", string(RiskLevelFor(30)))
	assert.Equal(t, "medium", string(RiskLevelFor(31)))
	assert.Equal(t, "medium", string(RiskLevelFor(50)))
	assert.Equal(t, "high", string(RiskLevelFor(51)))
	assert.Equal(t, "high", string(RiskLevelFor(70)))
	assert.Equal(t, "critical", string(RiskLevelFor(71)))
}

func TestZScore_NearZeroDeltaFloor(t *testing.T) {
	s := baseline.Stats{Mean: 5, StdDev: 0.05}
	assert.Equal(t, 0.0, zscore(5.001, s))
}

func TestZScore_UsesStdDevFloor(t *testing.T) {
	s := baseline.Stats{Mean: 5, StdDev: 0.01}
	z := zscore(6, s)
	assert.InDelta(t, 10.0, z, 1e-9)
}

func TestZScoreDetector_IdenticalVectorScoresZero(t *testing.T) {
	d := NewZScoreDetector()
	m := flatModel(10)
	v := make([]float64, feature.Count)
	for i := range v {
		v[i] = 10
	}

	analysis, err := d.Detect(context.Background(), v, m, "pipeline-a")
	require.NoError(t, err)
	assert.Equal(t, 0.0, analysis.DriftScore)
	assert.Equal(t, "low", string(analysis.RiskLevel))
	assert.Empty(t, analysis.Issues)
}

func TestZScoreDetector_SecurityScanRemovedProducesIssue(t *testing.T) {
	d := NewZScoreDetector()
	m := flatModel(0)
	m.Features["securityScanCount"] = baseline.Stats{Mean: 5, StdDev: 1, Count: 10}

	v := make([]float64, feature.Count)
	v[feature.IdxSecurityScanCount] = 0

	analysis, err := d.Detect(context.Background(), v, m, "pipeline-a")
	require.NoError(t, err)
	require.NotEmpty(t, analysis.Issues)
	assert.Equal(t, "security_scan_removed", string(analysis.Issues[0].Type))
}

func TestZScoreDetector_RejectsWrongLengthVector(t *testing.T) {
	d := NewZScoreDetector()
	_, err := d.Detect(context.Background(), []float64{1, 2}, flatModel(0), "pipeline-a")
	require.Error(t, err)
}

func TestZScoreDetector_RejectsNilModel(t *testing.T) {
	d := NewZScoreDetector()
	v := make([]float64, feature.Count)
	_, err := d.Detect(context.Background(), v, nil, "pipeline-a")
	require.Error(t, err)
}

func TestExternalDetector_UsesRemoteScoreAndLocalExplanations(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"drift_score": 42.5, "risk_level": "medium", "anomaly_score": 0.8, "is_anomaly": true}`))
	}))
	defer srv.Close()

	d := NewExternalDetector(srv.URL, 2*time.Second, 2, nil)
	m := flatModel(0)
	v := make([]float64, feature.Count)

	analysis, err := d.Detect(context.Background(), v, m, "pipeline-a")
	require.NoError(t, err)
	assert.Equal(t, 42.5, analysis.DriftScore)
	assert.Equal(t, "medium", string(analysis.RiskLevel))
	require.NotNil(t, analysis.IsAnomaly)
	assert.True(t, *analysis.IsAnomaly)
}

func TestExternalDetector_RetriesThenFails(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	d := NewExternalDetector(srv.URL, 500*time.Millisecond, 2, nil)
	m := flatModel(0)
	v := make([]float64, feature.Count)

	_, err := d.Detect(context.Background(), v, m, "pipeline-a")
	require.Error(t, err)
}

func TestExternalDetector_TrainPostsFeatureVectors(t *testing.T) {
	var gotPath string
	var gotBody trainRequest
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		_ = json.NewDecoder(r.Body).Decode(&gotBody)
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	d := NewExternalDetector(srv.URL, 2*time.Second, 2, nil)
	vectors := [][]float64{make([]float64, feature.Count), make([]float64, feature.Count)}

	err := d.Train(context.Background(), vectors)
	require.NoError(t, err)
	assert.Equal(t, "/train", gotPath)
	assert.Len(t, gotBody.FeatureVectors, 2)
}

func TestExternalDetector_TrainRetriesThenFails(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	d := NewExternalDetector(srv.URL, 500*time.Millisecond, 2, nil)
	err := d.Train(context.Background(), [][]float64{make([]float64, feature.Count)})
	require.Error(t, err)
}
