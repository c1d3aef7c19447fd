package report

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/HarshdeepAthawale/Security-Detection-for-CI-CD-Pipelines/internal/model"
	"github.com/HarshdeepAthawale/Security-Detection-for-CI-CD-Pipelines/internal/store"
)

func TestTimeline_SortedAscendingWithEvents(t *testing.T) {
	base := time.Now()
	history := []*model.Analysis{
		{ID: "2", Timestamp: base.Add(time.Hour), DriftScore: 75},
		{ID: "1", Timestamp: base, DriftScore: 10},
	}

	points := Timeline(history)
	require.Len(t, points, 2)
	assert.True(t, points[0].Date.Before(points[1].Date))
	require.NotNil(t, points[1].Event)
	assert.Equal(t, "critical drift detected", *points[1].Event)
	assert.Nil(t, points[0].Event)
}

func TestTrendFor_NoPredecessorReturnsNil(t *testing.T) {
	current := &model.Analysis{ID: "1", Timestamp: time.Now(), DriftScore: 10}
	assert.Nil(t, TrendFor(current, []*model.Analysis{current}))
}

func TestTrendFor_ComputesChangeAndDirection(t *testing.T) {
	base := time.Now()
	previous := &model.Analysis{ID: "1", Timestamp: base, DriftScore: 20}
	current := &model.Analysis{ID: "2", Timestamp: base.Add(time.Hour), DriftScore: 30}

	trend := TrendFor(current, []*model.Analysis{current, previous})
	require.NotNil(t, trend)
	assert.Equal(t, 10.0, trend.Change)
	assert.Equal(t, "up", trend.Direction)
	assert.Equal(t, 50.0, trend.ChangePercent)
}

func TestTrendFor_PicksMostRecentPredecessor(t *testing.T) {
	base := time.Now()
	oldest := &model.Analysis{ID: "1", Timestamp: base, DriftScore: 0}
	middle := &model.Analysis{ID: "2", Timestamp: base.Add(time.Hour), DriftScore: 40}
	current := &model.Analysis{ID: "3", Timestamp: base.Add(2 * time.Hour), DriftScore: 50}

	trend := TrendFor(current, []*model.Analysis{current, middle, oldest})
	require.NotNil(t, trend)
	assert.Equal(t, 10.0, trend.Change)
}

func TestQuickStats_BuildsFourTiles(t *testing.T) {
	now := time.Now()
	stats := &store.Stats{TotalAnalyses: 5, AverageScore: 33.5, CriticalIssues: 2, LastAnalysis: &now}
	tiles := QuickStats(stats, nil)
	require.Len(t, tiles, 4)
	assert.Equal(t, "Total Analyses", tiles[0].Label)
	assert.Equal(t, "5", tiles[0].Value)
	assert.Equal(t, "just now", tiles[3].Value)
}

func TestHumanizeRelative_Never(t *testing.T) {
	assert.Equal(t, "never", humanizeRelative(nil))
}

func TestAverageScoreChange_SuppressesSmallDelta(t *testing.T) {
	base := time.Now()
	history := make([]*model.Analysis, 0, 20)
	for i := 0; i < 20; i++ {
		history = append(history, &model.Analysis{ID: string(rune('a' + i)), Timestamp: base.Add(time.Duration(-i) * time.Hour), DriftScore: 20})
	}
	assert.Nil(t, averageScoreChange(history))
}
