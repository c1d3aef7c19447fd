// Package store implements the append-only analysis history,
// queryable by pipeline and time, with rolling statistics. Two
// implementations satisfy AnalysisStore: an in-memory store for tests
// and small deployments, and a Postgres-backed store for production,
// mirroring backend/config-api's PostgresStore.
package store

import (
	"context"
	"regexp"
	"time"

	"github.com/HarshdeepAthawale/Security-Detection-for-CI-CD-Pipelines/internal/model"
)

// TestDataPattern matches pipeline names considered test fixtures
// (the "test-data pattern" used to keep synthetic pipelines out of production stats).
var TestDataPattern = regexp.MustCompile(`(?i)test|sample|mock|dummy`)

// QueryParams filters a history listing.
type QueryParams struct {
	Pipeline string
	Limit    int
	Since    *time.Time
}

// StatsParams filters the rolling-statistics aggregation.
type StatsParams struct {
	ExcludeTestData bool
}

// Stats is the aggregation returned by AnalysisStore.Stats.
type Stats struct {
	TotalAnalyses  int        `json:"totalAnalyses"`
	AverageScore   float64    `json:"averageScore"`
	CriticalIssues int        `json:"criticalIssues"`
	LastAnalysis   *time.Time `json:"lastAnalysis"`
}

// AnalysisStore is the storage contract. All listing methods return
// strictly newest-first by timestamp.
type AnalysisStore interface {
	Upsert(ctx context.Context, a *model.Analysis) error
	Query(ctx context.Context, params QueryParams) ([]*model.Analysis, error)
	GetByPipeline(ctx context.Context, name string, limit int) ([]*model.Analysis, error)
	OldestAndNewestForPipeline(ctx context.Context, name string) (oldest, newest *model.Analysis, err error)
	Stats(ctx context.Context, params StatsParams) (*Stats, error)
}

func isCriticalOrHigh(sev model.Severity) bool {
	return sev == model.SeverityCritical || sev == model.SeverityHigh
}
