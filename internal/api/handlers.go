package api

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/gorilla/mux"

	"github.com/HarshdeepAthawale/Security-Detection-for-CI-CD-Pipelines/internal/apperr"
	"github.com/HarshdeepAthawale/Security-Detection-for-CI-CD-Pipelines/internal/baseline"
	"github.com/HarshdeepAthawale/Security-Detection-for-CI-CD-Pipelines/internal/detector"
	"github.com/HarshdeepAthawale/Security-Detection-for-CI-CD-Pipelines/internal/diff"
	"github.com/HarshdeepAthawale/Security-Detection-for-CI-CD-Pipelines/internal/feature"
	"github.com/HarshdeepAthawale/Security-Detection-for-CI-CD-Pipelines/internal/model"
	"github.com/HarshdeepAthawale/Security-Detection-for-CI-CD-Pipelines/internal/normalizer"
	"github.com/HarshdeepAthawale/Security-Detection-for-CI-CD-Pipelines/internal/report"
	"github.com/HarshdeepAthawale/Security-Detection-for-CI-CD-Pipelines/internal/store"
)

// logFilenamePattern enforces the fixture naming convention and, more
// importantly, blocks path traversal through the {filename} path param.
var logFilenamePattern = regexp.MustCompile(`^pipeline-log-[A-Za-z0-9._-]+\.json$`)

func (s *Server) handleAnalyze(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	body, err := io.ReadAll(r.Body)
	if err != nil {
		s.writeError(w, r, apperr.Wrap(apperr.CodeInvalidInput, "failed to read request body", err))
		return
	}
	if err := validateAgainst(analyzeSchema, body); err != nil {
		s.writeError(w, r, err)
		return
	}

	var req AnalyzeRequest
	if err := json.Unmarshal(body, &req); err != nil {
		s.writeError(w, r, apperr.Wrap(apperr.CodeInvalidInput, "malformed analyze request", err))
		return
	}

	logBytes, err := json.Marshal(req.Log)
	if err != nil {
		s.writeError(w, r, apperr.Wrap(apperr.CodeInvalidInput, "failed to re-marshal log field", err))
		return
	}

	analysis, trend, err := s.runAnalysis(ctx, logBytes, req.Pipeline, req.Timestamp)
	if err != nil {
		s.writeError(w, r, err)
		return
	}

	s.writeJSON(w, r, http.StatusOK, &AnalyzeResponse{Analysis: analysis, Trend: trend})
}

// runAnalysis is the shared analyze/process pipeline: normalize, extract
// features, load the pipeline's baseline, score, persist, publish.
func (s *Server) runAnalysis(ctx context.Context, logBytes []byte, pipelineOverride, timestampOverride string) (*model.Analysis, *report.Trend, error) {
	run, err := normalizer.Normalize(logBytes)
	if err != nil {
		return nil, nil, err
	}
	if pipelineOverride != "" {
		run.Pipeline = pipelineOverride
	}
	if timestampOverride != "" {
		if t, err := time.Parse(time.RFC3339, timestampOverride); err == nil {
			run.Timestamp = t
		}
	}

	if s.cfg.IsProduction() && store.TestDataPattern.MatchString(run.Pipeline) {
		return nil, nil, apperr.New(apperr.CodeProductionRejected, "test-data pipelines cannot be analyzed in production")
	}

	vector, err := feature.Extract(run)
	if err != nil {
		return nil, nil, err
	}

	baselineModel, err := s.baselines.Load(run.Pipeline)
	if err != nil {
		return nil, nil, err
	}

	analysis, err := s.detector.Detect(ctx, vector, baselineModel, run.Pipeline)
	if err != nil {
		return nil, nil, err
	}
	analysis.Timestamp = run.Timestamp
	analysis.ParsedSteps = run.Steps

	s.metrics.DriftScoreHistogram.Observe(analysis.DriftScore)

	if err := s.store.Upsert(ctx, analysis); err != nil {
		s.metrics.StoreWriteFailures.Inc()
		s.logger.Error("failed to persist analysis", "pipeline", run.Pipeline, "error", err)
	} else {
		s.metrics.AnalysesStored.Inc()
	}

	history, err := s.store.GetByPipeline(ctx, run.Pipeline, 0)
	var trend *report.Trend
	if err == nil {
		trend = report.TrendFor(analysis, history)
	}

	s.publisher.PublishAnalysisCompleted(analysis)

	return analysis, trend, nil
}

func (s *Server) handleHistory(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	q := r.URL.Query()

	params := store.QueryParams{Pipeline: q.Get("pipeline")}
	if limitStr := q.Get("limit"); limitStr != "" {
		n, err := strconv.Atoi(limitStr)
		if err != nil || n <= 0 {
			s.writeError(w, r, apperr.New(apperr.CodeInvalidInput, "limit must be a positive integer"))
			return
		}
		params.Limit = n
	}
	if sinceStr := q.Get("since"); sinceStr != "" {
		if t, err := time.Parse(time.RFC3339, sinceStr); err == nil {
			params.Since = &t
		}
	}

	history, err := s.store.Query(ctx, params)
	if err != nil {
		s.writeError(w, r, err)
		return
	}

	stats, err := s.store.Stats(ctx, store.StatsParams{ExcludeTestData: true})
	if err != nil {
		s.writeError(w, r, err)
		return
	}

	s.writeJSON(w, r, http.StatusOK, &HistoryResponse{
		History:  history,
		Timeline: report.Timeline(history),
		Stats:    report.QuickStats(stats, history),
	})
}

func (s *Server) handleTrain(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(r.Body)
	if err != nil {
		s.writeError(w, r, apperr.Wrap(apperr.CodeInvalidInput, "failed to read request body", err))
		return
	}
	if err := validateAgainst(trainSchema, body); err != nil {
		s.writeError(w, r, err)
		return
	}

	var req TrainRequest
	if err := json.Unmarshal(body, &req); err != nil {
		s.writeError(w, r, apperr.Wrap(apperr.CodeInvalidInput, "malformed train request", err))
		return
	}
	if len(req.BaselineLogs) < 2 {
		s.writeError(w, r, apperr.New(apperr.CodeInvalidInput, "at least two baseline logs are required to train a meaningful baseline"))
		return
	}

	modelName := req.ModelName
	var vectors [][]float64
	var parseErrors []string
	var pipelineName string

	for i, raw := range req.BaselineLogs {
		logBytes, err := json.Marshal(raw)
		if err != nil {
			parseErrors = append(parseErrors, apperr.Wrap(apperr.CodeInvalidInput, "baseline log "+strconv.Itoa(i), err).Error())
			continue
		}
		run, err := normalizer.Normalize(logBytes)
		if err != nil {
			parseErrors = append(parseErrors, err.Error())
			continue
		}
		if pipelineName == "" {
			pipelineName = run.Pipeline
		}
		vector, err := feature.Extract(run)
		if err != nil {
			parseErrors = append(parseErrors, err.Error())
			continue
		}
		vectors = append(vectors, vector)
	}

	if modelName == "" {
		modelName = pipelineName
	}

	if len(vectors) < 2 {
		msg := "at least two baseline logs must parse to train a meaningful baseline"
		if len(parseErrors) > 0 {
			msg += ": " + strings.Join(parseErrors, "; ")
		}
		s.writeError(w, r, apperr.New(apperr.CodeInvalidInput, msg))
		return
	}

	existing, loadErr := s.baselines.Load(modelName)

	var m *baseline.Model
	if loadErr == nil {
		merged, err := baseline.Retrain(existing, vectors, modelName)
		if err != nil {
			s.writeError(w, r, err)
			return
		}
		m = merged
	} else {
		fresh, err := baseline.Train(vectors, modelName)
		if err != nil {
			s.writeError(w, r, err)
			return
		}
		m = fresh
	}

	if err := s.baselines.Save(modelName, m); err != nil {
		s.writeError(w, r, err)
		return
	}

	if ext, ok := s.detector.(*detector.ExternalDetector); ok {
		if err := ext.Train(r.Context(), vectors); err != nil {
			s.writeError(w, r, err)
			return
		}
	}

	s.publisher.PublishBaselineTrained(modelName, m.BaselineRunCount)

	s.writeJSON(w, r, http.StatusOK, &TrainResponse{
		Status:           "trained",
		ModelName:        modelName,
		TrainedAt:        m.TrainedAt,
		BaselineRunCount: m.BaselineRunCount,
		Features:         m.Features,
		ProcessedLogs:    len(vectors),
		Errors:           parseErrors,
	})
}

func (s *Server) handlePipeline(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	name := mux.Vars(r)["name"]

	oldest, newest, err := s.store.OldestAndNewestForPipeline(ctx, name)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	if oldest == nil || newest == nil {
		s.writeError(w, r, apperr.New(apperr.CodeNotFound, "no analyses found for pipeline "+name))
		return
	}

	d := diff.Diff(oldest.ParsedSteps, newest.ParsedSteps)
	resp := &PipelinesResponse{
		PipelineName:      name,
		Baseline:          d.Baseline,
		Current:           d.Current,
		BaselineTimestamp: oldest.Timestamp,
		CurrentTimestamp:  newest.Timestamp,
	}
	if ext, ok := s.detector.(*detector.ExternalDetector); ok {
		resp.DetectorInfo = &DetectorInfo{Backend: "external", BaseURL: ext.BaseURL}
	}
	s.writeJSON(w, r, http.StatusOK, resp)
}

func (s *Server) handleListLogs(w http.ResponseWriter, r *http.Request) {
	entries, err := os.ReadDir(s.cfg.PipelineLogsDir)
	if err != nil {
		if os.IsNotExist(err) {
			s.writeJSON(w, r, http.StatusOK, &PipelineLogsResponse{Logs: []string{}, Count: 0})
			return
		}
		s.writeError(w, r, apperr.Wrap(apperr.CodeInternal, "failed to list pipeline log fixtures", err))
		return
	}

	var names []string
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		if logFilenamePattern.MatchString(e.Name()) {
			names = append(names, e.Name())
		}
	}
	sort.Strings(names)

	s.writeJSON(w, r, http.StatusOK, &PipelineLogsResponse{Logs: names, Count: len(names)})
}

func (s *Server) handleGetLog(w http.ResponseWriter, r *http.Request) {
	filename := mux.Vars(r)["filename"]
	if !logFilenamePattern.MatchString(filename) {
		s.writeError(w, r, apperr.New(apperr.CodeInvalidInput, "invalid pipeline log filename"))
		return
	}

	data, err := s.readLogFixture(filename)
	if err != nil {
		s.writeError(w, r, err)
		return
	}

	var parsed interface{}
	if err := json.Unmarshal(data, &parsed); err != nil {
		s.writeError(w, r, apperr.Wrap(apperr.CodeInternal, "stored pipeline log fixture is not valid JSON", err))
		return
	}

	s.writeJSON(w, r, http.StatusOK, &PipelineLogResponse{Filename: filename, Data: parsed})
}

func (s *Server) handleProcessLog(w http.ResponseWriter, r *http.Request) {
	filename := mux.Vars(r)["filename"]
	if !logFilenamePattern.MatchString(filename) {
		s.writeError(w, r, apperr.New(apperr.CodeInvalidInput, "invalid pipeline log filename"))
		return
	}

	data, err := s.readLogFixture(filename)
	if err != nil {
		s.writeError(w, r, err)
		return
	}

	analysis, trend, err := s.runAnalysis(r.Context(), data, "", "")
	if err != nil {
		s.writeError(w, r, err)
		return
	}

	s.writeJSON(w, r, http.StatusOK, &ProcessResponse{
		Status:   "processed",
		Message:  "analyzed " + filename,
		Analysis: &AnalyzeResponse{Analysis: analysis, Trend: trend},
	})
}

// readLogFixture resolves filename against the configured pipeline-logs
// directory, rejecting any attempt to escape it.
func (s *Server) readLogFixture(filename string) ([]byte, error) {
	path := filepath.Join(s.cfg.PipelineLogsDir, filename)
	if !strings.HasPrefix(filepath.Clean(path), filepath.Clean(s.cfg.PipelineLogsDir)) {
		return nil, apperr.New(apperr.CodeInvalidInput, "invalid pipeline log filename")
	}
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, apperr.Wrap(apperr.CodeNotFound, "pipeline log fixture not found", err)
		}
		return nil, apperr.Wrap(apperr.CodeInternal, "failed to read pipeline log fixture", err)
	}
	return data, nil
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, r, http.StatusOK, map[string]interface{}{
		"status": "ok",
		"uptime": time.Since(s.startedAt).String(),
	})
}

func (s *Server) writeJSON(w http.ResponseWriter, r *http.Request, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		s.logger.Error("failed to encode response", "path", r.URL.Path, "error", err)
	}
	s.metrics.RequestsTotal.WithLabelValues(routeLabel(r), statusClass(status)).Inc()
}

func (s *Server) writeError(w http.ResponseWriter, r *http.Request, err error) {
	ae, ok := apperr.As(err)
	if !ok {
		ae = apperr.Wrap(apperr.CodeInternal, "unexpected error", err)
	}

	status := statusForCode(ae.Code)
	body := ErrorResponse{Error: ErrorBody{Code: string(ae.Code), Message: ae.Message}}
	if !s.cfg.IsProduction() && ae.Err != nil {
		body.Error.Detail = ae.Err.Error()
	}

	s.logger.Warn("request failed", "path", r.URL.Path, "code", ae.Code, "error", ae.Error())

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
	s.metrics.RequestsTotal.WithLabelValues(routeLabel(r), statusClass(status)).Inc()
}

func statusForCode(c apperr.Code) int {
	switch c {
	case apperr.CodeInvalidInput, apperr.CodeParseError:
		return http.StatusBadRequest
	case apperr.CodeNotFound:
		return http.StatusNotFound
	case apperr.CodeProductionRejected:
		return http.StatusBadRequest
	default:
		return http.StatusInternalServerError
	}
}

func routeLabel(r *http.Request) string {
	if route := mux.CurrentRoute(r); route != nil {
		if tpl, err := route.GetPathTemplate(); err == nil {
			return tpl
		}
	}
	return r.URL.Path
}

func statusClass(status int) string {
	return strconv.Itoa(status/100) + "xx"
}
