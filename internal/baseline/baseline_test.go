package baseline

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/HarshdeepAthawale/Security-Detection-for-CI-CD-Pipelines/internal/apperr"
	"github.com/HarshdeepAthawale/Security-Detection-for-CI-CD-Pipelines/internal/feature"
)

func vec(overrides map[int]float64) []float64 {
	v := make([]float64, feature.Count)
	for idx, val := range overrides {
		v[idx] = val
	}
	return v
}

func TestTrain_RequiresAtLeastOneVector(t *testing.T) {
	_, err := Train(nil, "pipeline-a")
	require.Error(t, err)
}

func TestTrain_SingleVectorUsesStdDevFloor(t *testing.T) {
	m, err := Train([][]float64{vec(map[int]float64{0: 5})}, "pipeline-a")
	require.NoError(t, err)
	stats := m.Features[feature.Names[0]]
	assert.Equal(t, stdDevFloor, stats.StdDev)
	assert.Equal(t, 5.0, stats.Mean)
	assert.Equal(t, 1, stats.Count)
}

func TestTrain_MultipleVectorsComputesStats(t *testing.T) {
	vectors := [][]float64{
		vec(map[int]float64{0: 1}),
		vec(map[int]float64{0: 3}),
		vec(map[int]float64{0: 5}),
	}
	m, err := Train(vectors, "pipeline-a")
	require.NoError(t, err)
	stats := m.Features[feature.Names[0]]
	assert.Equal(t, 3.0, stats.Mean)
	assert.Equal(t, 1.0, stats.Min)
	assert.Equal(t, 5.0, stats.Max)
	assert.Equal(t, 3, stats.Count)
	assert.Equal(t, ModelFormatVersion, m.Version)
}

func TestRetrain_NilOldFallsBackToTrain(t *testing.T) {
	vectors := [][]float64{vec(map[int]float64{0: 2})}
	m, err := Retrain(nil, vectors, "pipeline-a")
	require.NoError(t, err)
	assert.Equal(t, 1, m.BaselineRunCount)
}

func TestRetrain_PoolsCounts(t *testing.T) {
	old, err := Train([][]float64{vec(map[int]float64{0: 1}), vec(map[int]float64{0: 3})}, "pipeline-a")
	require.NoError(t, err)

	merged, err := Retrain(old, [][]float64{vec(map[int]float64{0: 5})}, "pipeline-a")
	require.NoError(t, err)
	assert.Equal(t, 3, merged.BaselineRunCount)
	assert.Equal(t, ModelFormatVersion, merged.Version)
}

func TestValidate_RejectsWrongFeatureCount(t *testing.T) {
	m := &Model{Features: map[string]Stats{"only-one": {}}, Version: ModelFormatVersion}
	require.Error(t, Validate(m))
}

func TestValidate_RejectsNegativeStdDev(t *testing.T) {
	m, err := Train([][]float64{vec(nil)}, "pipeline-a")
	require.NoError(t, err)
	s := m.Features[feature.Names[0]]
	s.StdDev = -1
	m.Features[feature.Names[0]] = s
	require.Error(t, Validate(m))
}

func TestValidate_RejectsVersionMismatch(t *testing.T) {
	m, err := Train([][]float64{vec(nil)}, "pipeline-a")
	require.NoError(t, err)
	m.Version = ModelFormatVersion + 1
	require.Error(t, Validate(m))
}

func TestStore_SaveAndLoadRoundTrip(t *testing.T) {
	dir := t.TempDir()
	store, err := NewStore(dir)
	require.NoError(t, err)

	m, err := Train([][]float64{vec(map[int]float64{1: 4})}, "pipeline-a")
	require.NoError(t, err)

	require.NoError(t, store.Save("pipeline-a", m))
	loaded, err := store.Load("pipeline-a")
	require.NoError(t, err)
	assert.Equal(t, m.BaselineRunCount, loaded.BaselineRunCount)
	assert.Equal(t, m.Features[feature.Names[1]].Mean, loaded.Features[feature.Names[1]].Mean)
}

func TestStore_LoadMissingModelReturnsNotFound(t *testing.T) {
	store, err := NewStore(t.TempDir())
	require.NoError(t, err)
	_, err = store.Load("does-not-exist")
	require.Error(t, err)
	ae, ok := apperr.As(err)
	require.True(t, ok)
	assert.Equal(t, apperr.CodeNotFound, ae.Code)
}

func TestStore_SaveUsesAtomicReplace(t *testing.T) {
	dir := t.TempDir()
	store, err := NewStore(dir)
	require.NoError(t, err)

	m, err := Train([][]float64{vec(nil)}, "pipeline-a")
	require.NoError(t, err)
	require.NoError(t, store.Save("pipeline-a", m))

	entries, err := filepath.Glob(filepath.Join(dir, ".baseline-*.tmp"))
	require.NoError(t, err)
	assert.Empty(t, entries, "no leftover temp files after a successful save")
}
