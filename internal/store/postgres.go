package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	_ "github.com/lib/pq"

	"github.com/HarshdeepAthawale/Security-Detection-for-CI-CD-Pipelines/internal/apperr"
	"github.com/HarshdeepAthawale/Security-Detection-for-CI-CD-Pipelines/internal/model"
)

// PostgresStore persists analyses to a Postgres "analyses" table,
// following backend/config-api/internal/store.PostgresStore's
// connection-string-plus-sql.DB shape.
type PostgresStore struct {
	db     *sql.DB
	logger *slog.Logger
}

// schema mirrors the indexes the query patterns need: id unique,
// timestamp desc, pipelineName, and the compound (pipelineName, timestamp desc).
const schema = `
CREATE TABLE IF NOT EXISTS analyses (
	id              TEXT PRIMARY KEY,
	pipeline_name   TEXT NOT NULL,
	drift_score     DOUBLE PRECISION NOT NULL,
	risk_level      TEXT NOT NULL,
	"timestamp"     TIMESTAMPTZ NOT NULL,
	issues          JSONB NOT NULL,
	explanations    JSONB NOT NULL,
	feature_vector  JSONB NOT NULL,
	parsed_steps    JSONB NOT NULL,
	anomaly_score   DOUBLE PRECISION,
	is_anomaly      BOOLEAN
);
CREATE INDEX IF NOT EXISTS idx_analyses_timestamp ON analyses ("timestamp" DESC);
CREATE INDEX IF NOT EXISTS idx_analyses_pipeline ON analyses (pipeline_name);
CREATE INDEX IF NOT EXISTS idx_analyses_pipeline_timestamp ON analyses (pipeline_name, "timestamp" DESC);
`

// NewPostgresStore opens a connection pool against dsn and ensures the
// schema exists.
func NewPostgresStore(dsn string, logger *slog.Logger) (*PostgresStore, error) {
	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, apperr.Wrap(apperr.CodeInternal, "failed to open database", err)
	}
	if err := db.Ping(); err != nil {
		return nil, apperr.Wrap(apperr.CodeInternal, "failed to ping database", err)
	}

	db.SetMaxOpenConns(25)
	db.SetMaxIdleConns(25)
	db.SetConnMaxLifetime(5 * time.Minute)

	if _, err := db.Exec(schema); err != nil {
		return nil, apperr.Wrap(apperr.CodeInternal, "failed to apply analyses schema", err)
	}

	return &PostgresStore{db: db, logger: logger}, nil
}

// Close closes the underlying connection pool.
func (s *PostgresStore) Close() error { return s.db.Close() }

// Upsert implements AnalysisStore.
func (s *PostgresStore) Upsert(ctx context.Context, a *model.Analysis) error {
	issues, err := json.Marshal(a.Issues)
	if err != nil {
		return apperr.Wrap(apperr.CodeInternal, "failed to marshal issues", err)
	}
	explanations, err := json.Marshal(a.Explanations)
	if err != nil {
		return apperr.Wrap(apperr.CodeInternal, "failed to marshal explanations", err)
	}
	vector, err := json.Marshal(a.FeatureVector)
	if err != nil {
		return apperr.Wrap(apperr.CodeInternal, "failed to marshal feature vector", err)
	}
	steps, err := json.Marshal(a.ParsedSteps)
	if err != nil {
		return apperr.Wrap(apperr.CodeInternal, "failed to marshal parsed steps", err)
	}

	query := `
		INSERT INTO analyses (id, pipeline_name, drift_score, risk_level, "timestamp", issues, explanations, feature_vector, parsed_steps, anomaly_score, is_anomaly)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
		ON CONFLICT (id) DO UPDATE SET
			pipeline_name = EXCLUDED.pipeline_name,
			drift_score = EXCLUDED.drift_score,
			risk_level = EXCLUDED.risk_level,
			"timestamp" = EXCLUDED."timestamp",
			issues = EXCLUDED.issues,
			explanations = EXCLUDED.explanations,
			feature_vector = EXCLUDED.feature_vector,
			parsed_steps = EXCLUDED.parsed_steps,
			anomaly_score = EXCLUDED.anomaly_score,
			is_anomaly = EXCLUDED.is_anomaly
	`
	_, err = s.db.ExecContext(ctx, query, a.ID, a.PipelineName, a.DriftScore, string(a.RiskLevel), a.Timestamp,
		string(issues), string(explanations), string(vector), string(steps), a.AnomalyScore, a.IsAnomaly)
	if err != nil {
		return apperr.Wrap(apperr.CodeInternal, "failed to upsert analysis", err)
	}
	return nil
}

// Query implements AnalysisStore.
func (s *PostgresStore) Query(ctx context.Context, params QueryParams) ([]*model.Analysis, error) {
	limit := params.Limit
	if limit <= 0 || limit > 1000 {
		limit = 1000
	}

	query := `SELECT id, pipeline_name, drift_score, risk_level, "timestamp", issues, explanations, feature_vector, parsed_steps, anomaly_score, is_anomaly FROM analyses WHERE 1=1`
	args := []interface{}{}
	argN := 1

	if params.Pipeline != "" {
		query += fmt.Sprintf(" AND pipeline_name = $%d", argN)
		args = append(args, params.Pipeline)
		argN++
	}
	if params.Since != nil {
		query += fmt.Sprintf(" AND \"timestamp\" >= $%d", argN)
		args = append(args, *params.Since)
		argN++
	}
	query += fmt.Sprintf(" ORDER BY \"timestamp\" DESC LIMIT $%d", argN)
	args = append(args, limit)

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, apperr.Wrap(apperr.CodeInternal, "failed to query analyses", err)
	}
	defer rows.Close()

	return scanAnalyses(rows)
}

// GetByPipeline implements AnalysisStore.
func (s *PostgresStore) GetByPipeline(ctx context.Context, name string, limit int) ([]*model.Analysis, error) {
	return s.Query(ctx, QueryParams{Pipeline: name, Limit: limit})
}

// OldestAndNewestForPipeline implements AnalysisStore.
func (s *PostgresStore) OldestAndNewestForPipeline(ctx context.Context, name string) (*model.Analysis, *model.Analysis, error) {
	all, err := s.Query(ctx, QueryParams{Pipeline: name, Limit: 1000})
	if err != nil {
		return nil, nil, err
	}
	if len(all) == 0 {
		return nil, nil, apperr.New(apperr.CodeNotFound, "no analyses found for pipeline "+name)
	}
	return all[len(all)-1], all[0], nil
}

// Stats implements AnalysisStore.
func (s *PostgresStore) Stats(ctx context.Context, params StatsParams) (*Stats, error) {
	query := `SELECT id, pipeline_name, drift_score, risk_level, "timestamp", issues, explanations, feature_vector, parsed_steps, anomaly_score, is_anomaly FROM analyses`
	rows, err := s.db.QueryContext(ctx, query)
	if err != nil {
		return nil, apperr.Wrap(apperr.CodeInternal, "failed to query analyses for stats", err)
	}
	defer rows.Close()

	analyses, err := scanAnalyses(rows)
	if err != nil {
		return nil, err
	}

	st := &Stats{}
	var scoreSum float64
	for _, a := range analyses {
		if params.ExcludeTestData && TestDataPattern.MatchString(a.PipelineName) {
			continue
		}
		st.TotalAnalyses++
		scoreSum += a.DriftScore
		for _, issue := range a.Issues {
			if isCriticalOrHigh(issue.Severity) {
				st.CriticalIssues++
			}
		}
		if st.LastAnalysis == nil || a.Timestamp.After(*st.LastAnalysis) {
			ts := a.Timestamp
			st.LastAnalysis = &ts
		}
	}
	if st.TotalAnalyses > 0 {
		st.AverageScore = round2(scoreSum / float64(st.TotalAnalyses))
	}
	return st, nil
}

func scanAnalyses(rows *sql.Rows) ([]*model.Analysis, error) {
	var out []*model.Analysis
	for rows.Next() {
		var a model.Analysis
		var riskLevel string
		var issuesRaw, explanationsRaw, vectorRaw, stepsRaw []byte
		var anomalyScore sql.NullFloat64
		var isAnomaly sql.NullBool

		if err := rows.Scan(&a.ID, &a.PipelineName, &a.DriftScore, &riskLevel, &a.Timestamp,
			&issuesRaw, &explanationsRaw, &vectorRaw, &stepsRaw, &anomalyScore, &isAnomaly); err != nil {
			return nil, apperr.Wrap(apperr.CodeInternal, "failed to scan analysis row", err)
		}
		a.RiskLevel = model.RiskLevel(riskLevel)
		if err := json.Unmarshal(issuesRaw, &a.Issues); err != nil {
			return nil, apperr.Wrap(apperr.CodeInternal, "failed to unmarshal issues", err)
		}
		if err := json.Unmarshal(explanationsRaw, &a.Explanations); err != nil {
			return nil, apperr.Wrap(apperr.CodeInternal, "failed to unmarshal explanations", err)
		}
		if err := json.Unmarshal(vectorRaw, &a.FeatureVector); err != nil {
			return nil, apperr.Wrap(apperr.CodeInternal, "failed to unmarshal feature vector", err)
		}
		if err := json.Unmarshal(stepsRaw, &a.ParsedSteps); err != nil {
			return nil, apperr.Wrap(apperr.CodeInternal, "failed to unmarshal parsed steps", err)
		}
		if anomalyScore.Valid {
			v := anomalyScore.Float64
			a.AnomalyScore = &v
		}
		if isAnomaly.Valid {
			v := isAnomaly.Bool
			a.IsAnomaly = &v
		}
		out = append(out, &a)
	}
	if err := rows.Err(); err != nil {
		return nil, apperr.Wrap(apperr.CodeInternal, "error iterating analysis rows", err)
	}
	return out, nil
}
