package api

import (
	"time"

	"github.com/HarshdeepAthawale/Security-Detection-for-CI-CD-Pipelines/internal/baseline"
	"github.com/HarshdeepAthawale/Security-Detection-for-CI-CD-Pipelines/internal/model"
	"github.com/HarshdeepAthawale/Security-Detection-for-CI-CD-Pipelines/internal/report"
)

// AnalyzeRequest is the body of POST /analyze.
type AnalyzeRequest struct {
	Pipeline  string      `json:"pipeline,omitempty"`
	Log       interface{} `json:"log"`
	Timestamp string      `json:"timestamp,omitempty"`
}

// AnalyzeResponse is the formatted analysis returned from POST /analyze,
// augmented with the trend against the pipeline's prior analysis.
type AnalyzeResponse struct {
	*model.Analysis
	Trend *report.Trend `json:"trend"`
}

// HistoryResponse is the body of GET /history.
type HistoryResponse struct {
	History  []*model.Analysis      `json:"history"`
	Timeline []report.TimelinePoint `json:"timeline"`
	Stats    []report.QuickStatTile `json:"stats"`
}

// TrainRequest is the body of POST /train.
type TrainRequest struct {
	BaselineLogs []interface{} `json:"baselineLogs"`
	ModelName    string        `json:"modelName,omitempty"`
}

// TrainResponse is the body returned from POST /train.
type TrainResponse struct {
	Status           string                    `json:"status"`
	ModelName        string                    `json:"modelName"`
	TrainedAt        time.Time                 `json:"trainedAt"`
	BaselineRunCount int                       `json:"baselineRunCount"`
	Features         map[string]baseline.Stats `json:"features"`
	ProcessedLogs    int                       `json:"processedLogs"`
	Errors           []string                  `json:"errors,omitempty"`
}

// PipelinesResponse is the body of GET /pipelines/:name.
type PipelinesResponse struct {
	PipelineName      string           `json:"pipelineName"`
	Baseline          []model.DiffStep `json:"baseline"`
	Current           []model.DiffStep `json:"current"`
	BaselineTimestamp time.Time        `json:"baselineTimestamp"`
	CurrentTimestamp  time.Time        `json:"currentTimestamp"`
	DetectorInfo      *DetectorInfo    `json:"detectorInfo,omitempty"`
}

// DetectorInfo surfaces which scoring backend produced the pipeline's
// analyses, populated only when the external scorer is active. The
// z-score backend has no separate model to report on.
type DetectorInfo struct {
	Backend string `json:"backend"`
	BaseURL string `json:"baseUrl,omitempty"`
}

// PipelineLogsResponse is the body of GET /pipeline-logs.
type PipelineLogsResponse struct {
	Logs  []string `json:"logs"`
	Count int      `json:"count"`
}

// PipelineLogResponse is the body of GET /pipeline-logs/:filename.
type PipelineLogResponse struct {
	Filename string      `json:"filename"`
	Data     interface{} `json:"data"`
}

// ProcessResponse is the body of POST /pipeline-logs/:filename/process.
type ProcessResponse struct {
	Status   string           `json:"status"`
	Message  string           `json:"message"`
	Analysis *AnalyzeResponse `json:"analysis,omitempty"`
}

// ErrorResponse is the shared error envelope.
type ErrorResponse struct {
	Error ErrorBody `json:"error"`
}

// ErrorBody carries the stable machine tag and human message, plus the
// wrapped cause's message as Detail outside production.
type ErrorBody struct {
	Code    string `json:"code"`
	Message string `json:"message"`
	Detail  string `json:"detail,omitempty"`
}
