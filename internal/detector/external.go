package detector

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"math"
	"net/http"
	"time"

	"github.com/HarshdeepAthawale/Security-Detection-for-CI-CD-Pipelines/internal/apperr"
	"github.com/HarshdeepAthawale/Security-Detection-for-CI-CD-Pipelines/internal/baseline"
	"github.com/HarshdeepAthawale/Security-Detection-for-CI-CD-Pipelines/internal/model"
)

// ExternalDetector satisfies the Detector contract by delegating the
// drift/anomaly score to an external isolation-forest scoring service:
// a POST {baseURL}/predict accepting {"features": [...]}, returning
// {"drift_score", "risk_level", "anomaly_score", "is_anomaly"}. Issue
// emission and explanations are still derived locally from the feature
// vector against the baseline.
type ExternalDetector struct {
	BaseURL    string
	HTTPClient *http.Client
	Retries    int
	Logger     *slog.Logger
}

// NewExternalDetector builds an ExternalDetector with sane defaults.
func NewExternalDetector(baseURL string, timeout time.Duration, retries int, logger *slog.Logger) *ExternalDetector {
	if retries < 1 {
		retries = 1
	}
	return &ExternalDetector{
		BaseURL:    baseURL,
		HTTPClient: &http.Client{Timeout: timeout},
		Retries:    retries,
		Logger:     logger,
	}
}

type predictRequest struct {
	Features []float64 `json:"features"`
}

type predictResponse struct {
	DriftScore   float64 `json:"drift_score"`
	RiskLevel    string  `json:"risk_level"`
	AnomalyScore float64 `json:"anomaly_score"`
	IsAnomaly    bool    `json:"is_anomaly"`
}

// Detect implements Detector by calling the external scorer, retrying
// with linear backoff up to Retries times. A final failure surfaces as
// a 500-mapped internal error; it never falls back to ZScoreDetector
// silently.
func (d *ExternalDetector) Detect(ctx context.Context, vector []float64, m *baseline.Model, pipelineName string) (*model.Analysis, error) {
	if err := validateInputs(vector, m); err != nil {
		return nil, err
	}

	body, err := json.Marshal(predictRequest{Features: vector})
	if err != nil {
		return nil, apperr.Wrap(apperr.CodeInternal, "failed to marshal external scorer request", err)
	}

	var resp predictResponse
	var lastErr error
	for attempt := 1; attempt <= d.Retries; attempt++ {
		resp, lastErr = d.callPredict(ctx, body)
		if lastErr == nil {
			break
		}
		if d.Logger != nil {
			d.Logger.Warn("external scorer attempt failed", "attempt", attempt, "retries", d.Retries, "error", lastErr)
		}
		if attempt < d.Retries {
			select {
			case <-time.After(time.Duration(attempt) * 200 * time.Millisecond):
			case <-ctx.Done():
				return nil, apperr.Wrap(apperr.CodeInternal, "external scorer call cancelled", ctx.Err())
			}
		}
	}
	if lastErr != nil {
		return nil, apperr.Wrap(apperr.CodeInternal, "external scorer unreachable after retries", lastErr)
	}

	analysis, err := evaluate(vector, m, pipelineName, round2(resp.DriftScore), model.RiskLevel(resp.RiskLevel))
	if err != nil {
		return nil, err
	}
	anomalyScore := resp.AnomalyScore
	isAnomaly := resp.IsAnomaly
	analysis.AnomalyScore = &anomalyScore
	analysis.IsAnomaly = &isAnomaly
	return analysis, nil
}

func (d *ExternalDetector) callPredict(ctx context.Context, body []byte) (predictResponse, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, d.BaseURL+"/predict", bytes.NewReader(body))
	if err != nil {
		return predictResponse{}, err
	}
	req.Header.Set("Content-Type", "application/json")

	httpResp, err := d.HTTPClient.Do(req)
	if err != nil {
		return predictResponse{}, err
	}
	defer httpResp.Body.Close()

	if httpResp.StatusCode != http.StatusOK {
		return predictResponse{}, fmt.Errorf("external scorer returned status %d", httpResp.StatusCode)
	}

	var resp predictResponse
	if err := json.NewDecoder(httpResp.Body).Decode(&resp); err != nil {
		return predictResponse{}, fmt.Errorf("failed to decode external scorer response: %w", err)
	}
	return resp, nil
}

type trainRequest struct {
	FeatureVectors [][]float64 `json:"feature_vectors"`
}

// Train forwards a freshly-extracted set of baseline feature vectors to
// the external scorer's own training endpoint, retrying with the same
// linear backoff as Detect. This keeps the external model in sync
// whenever a pipeline's local baseline is (re)trained; a failure here
// surfaces as a 500, the same as a failed Detect call.
func (d *ExternalDetector) Train(ctx context.Context, vectors [][]float64) error {
	body, err := json.Marshal(trainRequest{FeatureVectors: vectors})
	if err != nil {
		return apperr.Wrap(apperr.CodeInternal, "failed to marshal external scorer training request", err)
	}

	var lastErr error
	for attempt := 1; attempt <= d.Retries; attempt++ {
		lastErr = d.callTrain(ctx, body)
		if lastErr == nil {
			return nil
		}
		if d.Logger != nil {
			d.Logger.Warn("external scorer train attempt failed", "attempt", attempt, "retries", d.Retries, "error", lastErr)
		}
		if attempt < d.Retries {
			select {
			case <-time.After(time.Duration(attempt) * 200 * time.Millisecond):
			case <-ctx.Done():
				return apperr.Wrap(apperr.CodeInternal, "external scorer train call cancelled", ctx.Err())
			}
		}
	}
	return apperr.Wrap(apperr.CodeInternal, "external scorer unreachable after retries", lastErr)
}

func (d *ExternalDetector) callTrain(ctx context.Context, body []byte) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, d.BaseURL+"/train", bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")

	httpResp, err := d.HTTPClient.Do(req)
	if err != nil {
		return err
	}
	defer httpResp.Body.Close()

	if httpResp.StatusCode != http.StatusOK {
		return fmt.Errorf("external scorer train returned status %d", httpResp.StatusCode)
	}
	return nil
}

func round2(f float64) float64 {
	return math.Round(f*100) / 100
}
