// Package detector implements scoring a feature vector against a
// trained baseline. Two interchangeable strategies satisfy the same
// Detector contract: the default weighted z-score aggregator, and a
// client for an external isolation-forest style anomaly-detection
// service reachable over HTTP.
package detector

import (
	"context"
	"fmt"
	"math"
	"sort"

	"github.com/google/uuid"

	"github.com/HarshdeepAthawale/Security-Detection-for-CI-CD-Pipelines/internal/apperr"
	"github.com/HarshdeepAthawale/Security-Detection-for-CI-CD-Pipelines/internal/baseline"
	"github.com/HarshdeepAthawale/Security-Detection-for-CI-CD-Pipelines/internal/feature"
	"github.com/HarshdeepAthawale/Security-Detection-for-CI-CD-Pipelines/internal/model"
)

// Detector turns a feature vector and a trained baseline into a
// (not-yet-stored) analysis. Only id and timestamp vary between calls
// with the same (vector, baseline model).
type Detector interface {
	Detect(ctx context.Context, vector []float64, m *baseline.Model, pipelineName string) (*model.Analysis, error)
}

// featureWeight is the fixed semantic-importance weighting table from
// Keys must be exactly feature.Names.
var featureWeight = map[string]float64{
	"permissionEscalation":        2.5,
	"secretsWithWriteCount":       2.2,
	"adminPermissionCount":        2.0,
	"stepsWithAdminCount":         2.0,
	"secretsUsageCount":           1.8,
	"securityBeforeDeploy":        1.7,
	"securityStepRatio":           1.6,
	"securityScanCount":           1.5,
	"securityStepCount":           1.4,
	"approvalStepCount":           1.3,
	"writePermissionCount":        1.2,
	"normalizedFirstSecurityStep": 1.1,
	"normalizedLastSecurityStep":  1.1,
	"avgSecurityStepOrder":        1.0,
	"normalizedAvgStepOrder":      0.9,
	"readPermissionCount":         0.8,
	"totalStepCount":              0.5,
}

// featureDescription is used to phrase explanations.
var featureDescription = map[string]string{
	"securityScanCount":           "security scan count",
	"securityStepCount":           "security step count",
	"readPermissionCount":         "read-permission step count",
	"writePermissionCount":        "write-permission step count",
	"adminPermissionCount":        "admin-permission step count",
	"secretsUsageCount":           "secrets usage",
	"approvalStepCount":           "approval step count",
	"avgSecurityStepOrder":        "average security step position",
	"permissionEscalation":        "permission escalation",
	"totalStepCount":              "total step count",
	"securityStepRatio":           "security step ratio",
	"normalizedFirstSecurityStep": "position of first security step",
	"normalizedLastSecurityStep":  "position of last security step",
	"secretsWithWriteCount":       "secrets-with-write count",
	"stepsWithAdminCount":         "admin-permission step count",
	"securityBeforeDeploy":        "security checks before deploy",
	"normalizedAvgStepOrder":      "average step position",
}

func weightSum() float64 {
	var s float64
	for _, w := range featureWeight {
		s += w
	}
	return s
}

var totalWeight = weightSum()

// zscore computes z_i for one feature with the near-zero-delta floor
// rule applied.
func zscore(value float64, s baseline.Stats) float64 {
	sd := s.StdDev
	if sd < 0.1 {
		sd = 0.1
	}
	if sd <= 0.1 && math.Abs(value-s.Mean) < 0.01 {
		return 0
	}
	return (value - s.Mean) / sd
}

// magnitudeTier classifies |z| into severity/adverb tiers.
func magnitudeTier(absZ float64) (severity model.Severity, adverb string, significant bool) {
	switch {
	case absZ < 1.5:
		return "", "", false
	case absZ < 2.5:
		return model.SeverityLow, "minor", true
	case absZ < 3.5:
		return model.SeverityMedium, "moderate", true
	case absZ < 4.5:
		return model.SeverityHigh, "major", true
	default:
		return model.SeverityCritical, "dramatic", true
	}
}

// RiskLevelFor is the pure function from drift score to risk tier
// exported so the HTTP/report layers never redefine it.
func RiskLevelFor(score float64) model.RiskLevel {
	switch {
	case score <= 30:
		return model.RiskLow
	case score <= 50:
		return model.RiskMedium
	case score <= 70:
		return model.RiskHigh
	default:
		return model.RiskCritical
	}
}

type issueRule struct {
	feature   string
	increase  bool // true: triggers on increase, false: triggers on decrease, ignored for "any"
	any       bool
	issueType model.IssueType
}

var issueRules = []issueRule{
	{feature: "securityScanCount", increase: false, issueType: model.IssueSecurityScanRemoved},
	{feature: "securityStepCount", increase: false, issueType: model.IssueSecurityScanRemoved},
	{feature: "securityStepRatio", increase: false, issueType: model.IssueSecurityScanRemoved},
	{feature: "adminPermissionCount", increase: true, issueType: model.IssuePermissionEscalation},
	{feature: "permissionEscalation", increase: true, issueType: model.IssuePermissionEscalation},
	{feature: "secretsUsageCount", any: true, issueType: model.IssueSecretsExposure},
	{feature: "secretsWithWriteCount", increase: true, issueType: model.IssueSecretsExposure},
	{feature: "approvalStepCount", increase: false, issueType: model.IssueApprovalBypassed},
	{feature: "securityBeforeDeploy", increase: false, issueType: model.IssueExecutionOrderChanged},
	{feature: "normalizedFirstSecurityStep", increase: true, issueType: model.IssueExecutionOrderChanged},
}

// evaluate runs the shared scoring + issue-emission + explanation layer
// that both detector strategies use. driftScore/riskLevel are supplied
// by the caller (computed differently per strategy); issues and
// explanations are always derived from the feature vector's z-scores
// against the baseline.
func evaluate(vector []float64, m *baseline.Model, pipelineName string, driftScore float64, riskLevel model.RiskLevel) (*model.Analysis, error) {
	issues := make([]model.Issue, 0)
	explanations := make([]string, 0)

	for idx, name := range feature.Names {
		stats := m.Features[name]
		z := zscore(vector[idx], stats)
		absZ := math.Abs(z)
		severity, adverb, significant := magnitudeTier(absZ)
		if !significant {
			continue
		}

		direction := "increased"
		if vector[idx] < stats.Mean {
			direction = "decreased"
		}
		desc := featureDescription[name]
		explanations = append(explanations, fmt.Sprintf(
			"%s %s %s (%.2f vs baseline %.2f, change: %.2f)",
			desc, direction, adverb, vector[idx], stats.Mean, math.Abs(vector[idx]-stats.Mean),
		))

		for _, rule := range issueRules {
			if rule.feature != name {
				continue
			}
			triggered := rule.any || (rule.increase && vector[idx] > stats.Mean) || (!rule.increase && !rule.any && vector[idx] < stats.Mean)
			if !triggered {
				continue
			}
			issueSeverity := severity
			if rule.issueType == model.IssuePermissionEscalation {
				issueSeverity = model.SeverityHigh
			}
			issues = append(issues, model.Issue{
				ID:          uuid.NewString(),
				Type:        rule.issueType,
				Severity:    issueSeverity,
				Description: fmt.Sprintf("%s: %s", rule.issueType, desc),
			})
		}
	}

	sort.SliceStable(explanations, func(i, j int) bool { return explanations[i] < explanations[j] })

	return &model.Analysis{
		ID:            uuid.NewString(),
		PipelineName:  pipelineName,
		DriftScore:    driftScore,
		RiskLevel:     riskLevel,
		Issues:        issues,
		Explanations:  explanations,
		FeatureVector: vector,
	}, nil
}

func validateInputs(vector []float64, m *baseline.Model) error {
	if err := feature.Validate(vector); err != nil {
		return err
	}
	if m == nil {
		return apperr.New(apperr.CodeInternal, "no baseline model loaded; train a model before analyzing")
	}
	return baseline.Validate(m)
}
