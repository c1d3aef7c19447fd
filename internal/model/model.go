// Package model holds the canonical types shared across the analysis
// pipeline: normalizer output, feature vectors, baseline statistics,
// analyses and issues. Downstream components never see raw JSON, only
// these types.
package model

import "time"

// StepType classifies a canonical step.
type StepType string

const (
	StepSecurity StepType = "security"
	StepBuild    StepType = "build"
	StepTest     StepType = "test"
	StepDeploy   StepType = "deploy"
	StepApproval StepType = "approval"
	StepOther    StepType = "other"
)

// Step is the normalizer's unit of output and the feature extractor's
// unit of input.
type Step struct {
	Name           string   `json:"name"`
	Type           StepType `json:"type"`
	ExecutionOrder int      `json:"executionOrder"`
	Status         string   `json:"status,omitempty"`
	Permissions    []string `json:"permissions"`
	Security       bool     `json:"security"`
	Secrets        bool     `json:"secrets"`
	Approval       bool     `json:"approval"`
}

// HasPermission reports whether perm is present (case-sensitive, the
// normalizer already lowercases permission tokens).
func (s Step) HasPermission(perm string) bool {
	for _, p := range s.Permissions {
		if p == perm {
			return true
		}
	}
	return false
}

// PermissionLevel maps a step's permission set to an ordinal level used
// for the escalation feature: 0=none, 1=read, 2=write, 3=admin.
func (s Step) PermissionLevel() int {
	level := 0
	if s.HasPermission("read") {
		level = 1
	}
	if s.HasPermission("write") && level < 2 {
		level = 2
	}
	if s.HasPermission("admin") {
		level = 3
	}
	return level
}

// Run is the normalizer's output: a canonical, format-independent
// pipeline run.
type Run struct {
	Pipeline  string    `json:"pipeline"`
	Timestamp time.Time `json:"timestamp"`
	Steps     []Step    `json:"steps"`
}

// RiskLevel is a pure function of DriftScore; see detector.RiskLevelFor.
type RiskLevel string

const (
	RiskLow      RiskLevel = "low"
	RiskMedium   RiskLevel = "medium"
	RiskHigh     RiskLevel = "high"
	RiskCritical RiskLevel = "critical"
)

// IssueType enumerates the issue categories the drift detector can emit.
type IssueType string

const (
	IssueSecurityScanRemoved   IssueType = "security_scan_removed"
	IssuePermissionEscalation  IssueType = "permission_escalation"
	IssueSecretsExposure       IssueType = "secrets_exposure"
	IssueApprovalBypassed      IssueType = "approval_bypassed"
	IssueExecutionOrderChanged IssueType = "execution_order_changed"
)

// Severity grades an Issue.
type Severity string

const (
	SeverityLow      Severity = "low"
	SeverityMedium   Severity = "medium"
	SeverityHigh     Severity = "high"
	SeverityCritical Severity = "critical"
)

// Issue is one concrete drift finding tied to a feature deviation.
type Issue struct {
	ID          string    `json:"id"`
	Type        IssueType `json:"type"`
	Severity    Severity  `json:"severity"`
	Description string    `json:"description"`
	Step        string    `json:"step,omitempty"`
}

// Analysis is the full, immutable result of a drift detection, as
// stored and returned by the API.
type Analysis struct {
	ID            string    `json:"id"`
	PipelineName  string    `json:"pipelineName"`
	DriftScore    float64   `json:"driftScore"`
	RiskLevel     RiskLevel `json:"riskLevel"`
	Timestamp     time.Time `json:"timestamp"`
	Issues        []Issue   `json:"issues"`
	Explanations  []string  `json:"explanations"`
	FeatureVector []float64 `json:"featureVector"`
	ParsedSteps   []Step    `json:"parsedSteps"`
	AnomalyScore  *float64  `json:"anomalyScore,omitempty"`
	IsAnomaly     *bool     `json:"isAnomaly,omitempty"`
}

// DiffStatus classifies a step on one side of a pipeline diff.
type DiffStatus string

const (
	DiffUnchanged DiffStatus = "unchanged"
	DiffAdded     DiffStatus = "added"
	DiffRemoved   DiffStatus = "removed"
	DiffModified  DiffStatus = "modified"
)

// DiffStep is one entry of a pipeline diff's baseline or current side.
type DiffStep struct {
	Name     string     `json:"name"`
	Status   DiffStatus `json:"status"`
	Security bool       `json:"security"`
}

// PipelineDiff is the output of comparing a baseline run's steps against
// a current run's steps.
type PipelineDiff struct {
	Baseline []DiffStep `json:"baseline"`
	Current  []DiffStep `json:"current"`
}
