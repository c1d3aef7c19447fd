// Package report implements merging an analysis with its
// pipeline's history into timeline points, a trend, and quick-stats
// tiles.
package report

import (
	"fmt"
	"math"
	"sort"
	"time"

	"github.com/HarshdeepAthawale/Security-Detection-for-CI-CD-Pipelines/internal/model"
	"github.com/HarshdeepAthawale/Security-Detection-for-CI-CD-Pipelines/internal/store"
)

// TimelinePoint is one chronological entry in a pipeline's drift history.
type TimelinePoint struct {
	Date  time.Time `json:"date"`
	Score float64   `json:"score"`
	Event *string   `json:"event"`
}

// Trend compares the current analysis's score against its pipeline's
// most recent earlier analysis.
type Trend struct {
	Change        float64 `json:"change"`
	ChangePercent float64 `json:"changePercent"`
	Direction     string  `json:"direction"`
}

// QuickStatTile is one of the four predetermined dashboard tiles.
type QuickStatTile struct {
	Label  string  `json:"label"`
	Value  string  `json:"value"`
	Change *string `json:"change,omitempty"`
}

// Timeline builds chronologically-ascending timeline points from a
// pipeline's history (newest-first as returned by the store).
func Timeline(history []*model.Analysis) []TimelinePoint {
	points := make([]TimelinePoint, 0, len(history))
	for _, a := range history {
		points = append(points, TimelinePoint{
			Date:  a.Timestamp,
			Score: a.DriftScore,
			Event: eventFor(a),
		})
	}
	sort.Slice(points, func(i, j int) bool { return points[i].Date.Before(points[j].Date) })
	return points
}

func eventFor(a *model.Analysis) *string {
	hasHighOrCritical := false
	for _, issue := range a.Issues {
		if issue.Severity == model.SeverityHigh || issue.Severity == model.SeverityCritical {
			hasHighOrCritical = true
			break
		}
	}
	switch {
	case a.DriftScore >= 70:
		s := "critical drift detected"
		return &s
	case a.DriftScore >= 50:
		s := "elevated drift detected"
		return &s
	case hasHighOrCritical:
		s := "high-severity issue flagged"
		return &s
	default:
		return nil
	}
}

// TrendFor finds the most recent earlier analysis for current's
// pipeline within history and computes the change. Returns nil if
// there is no predecessor.
func TrendFor(current *model.Analysis, history []*model.Analysis) *Trend {
	var previous *model.Analysis
	for _, a := range history {
		if a.ID == current.ID || !a.Timestamp.Before(current.Timestamp) {
			continue
		}
		if previous == nil || a.Timestamp.After(previous.Timestamp) {
			previous = a
		}
	}
	if previous == nil {
		return nil
	}

	change := current.DriftScore - previous.DriftScore
	var changePercent float64
	if previous.DriftScore != 0 {
		changePercent = round2((change / previous.DriftScore) * 100)
	}

	direction := "neutral"
	switch {
	case change > 0:
		direction = "up"
	case change < 0:
		direction = "down"
	}

	return &Trend{Change: round2(change), ChangePercent: changePercent, Direction: direction}
}

// QuickStats builds the four dashboard tiles from a store.Stats
// snapshot and the pipeline's full sorted-desc history (newest-first),
// used to compute the rolling last-10-vs-preceding-10 delta.
func QuickStats(stats *store.Stats, historyNewestFirst []*model.Analysis) []QuickStatTile {
	tiles := []QuickStatTile{
		{Label: "Total Analyses", Value: fmt.Sprintf("%d", stats.TotalAnalyses)},
		{Label: "Average Score", Value: fmt.Sprintf("%.2f", stats.AverageScore)},
		{Label: "Critical Issues", Value: fmt.Sprintf("%d", stats.CriticalIssues)},
		{Label: "Last Analysis", Value: humanizeRelative(stats.LastAnalysis)},
	}

	if change := averageScoreChange(historyNewestFirst); change != nil {
		tiles[1].Change = change
	}
	return tiles
}

// averageScoreChange computes the delta between the average of the
// last 10 analyses and the preceding 10, with a ±5
// threshold before it's worth surfacing.
func averageScoreChange(historyNewestFirst []*model.Analysis) *string {
	if len(historyNewestFirst) < 2 {
		return nil
	}
	last := historyNewestFirst
	if len(last) > 10 {
		last = last[:10]
	}
	remaining := historyNewestFirst[len(last):]
	if len(remaining) == 0 {
		return nil
	}
	preceding := remaining
	if len(preceding) > 10 {
		preceding = preceding[:10]
	}

	lastAvg := averageScore(last)
	precedingAvg := averageScore(preceding)
	delta := lastAvg - precedingAvg
	if math.Abs(delta) < 5 {
		return nil
	}

	sign := "+"
	if delta < 0 {
		sign = ""
	}
	s := fmt.Sprintf("%s%.2f vs prior window", sign, delta)
	return &s
}

func averageScore(analyses []*model.Analysis) float64 {
	if len(analyses) == 0 {
		return 0
	}
	var sum float64
	for _, a := range analyses {
		sum += a.DriftScore
	}
	return sum / float64(len(analyses))
}

func humanizeRelative(t *time.Time) string {
	if t == nil {
		return "never"
	}
	d := time.Since(*t)
	switch {
	case d < time.Minute:
		return "just now"
	case d < time.Hour:
		m := int(d.Minutes())
		return fmt.Sprintf("%d minute%s ago", m, plural(m))
	case d < 24*time.Hour:
		h := int(d.Hours())
		return fmt.Sprintf("%d hour%s ago", h, plural(h))
	default:
		days := int(d.Hours() / 24)
		return fmt.Sprintf("%d day%s ago", days, plural(days))
	}
}

func plural(n int) string {
	if n == 1 {
		return ""
	}
	return "s"
}

func round2(f float64) float64 {
	return math.Round(f*100) / 100
}
