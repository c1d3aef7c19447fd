// Package feature implements deriving the frozen 17-feature vector
// from a canonical run. The index order below is part of the baseline
// model's compatibility contract and must never change without a
// model-format version bump.
package feature

import (
	"math"
	"strings"

	"github.com/HarshdeepAthawale/Security-Detection-for-CI-CD-Pipelines/internal/apperr"
	"github.com/HarshdeepAthawale/Security-Detection-for-CI-CD-Pipelines/internal/model"
)

// Count is the fixed feature vector length.
const Count = 17

// Names is the frozen index -> semantic name mapping. Order matters.
var Names = [Count]string{
	"securityScanCount",
	"securityStepCount",
	"readPermissionCount",
	"writePermissionCount",
	"adminPermissionCount",
	"secretsUsageCount",
	"approvalStepCount",
	"avgSecurityStepOrder",
	"permissionEscalation",
	"totalStepCount",
	"securityStepRatio",
	"normalizedFirstSecurityStep",
	"normalizedLastSecurityStep",
	"secretsWithWriteCount",
	"stepsWithAdminCount",
	"securityBeforeDeploy",
	"normalizedAvgStepOrder",
}

// Index constants mirror Names for readable call sites.
const (
	IdxSecurityScanCount = iota
	IdxSecurityStepCount
	IdxReadPermissionCount
	IdxWritePermissionCount
	IdxAdminPermissionCount
	IdxSecretsUsageCount
	IdxApprovalStepCount
	IdxAvgSecurityStepOrder
	IdxPermissionEscalation
	IdxTotalStepCount
	IdxSecurityStepRatio
	IdxNormalizedFirstSecurityStep
	IdxNormalizedLastSecurityStep
	IdxSecretsWithWriteCount
	IdxStepsWithAdminCount
	IdxSecurityBeforeDeploy
	IdxNormalizedAvgStepOrder
)

// Extract derives the 17-dim feature vector from a canonical run. It
// fails only if run is nil; an empty-steps run yields an all-zero
// vector, never an error.
func Extract(run *model.Run) ([]float64, error) {
	if run == nil {
		return nil, apperr.New(apperr.CodeInvalidInput, "run must not be nil")
	}
	steps := run.Steps
	v := make([]float64, Count)
	total := len(steps)
	v[IdxTotalStepCount] = float64(total)
	if total == 0 {
		return v, nil
	}

	var securitySum, securityCount int
	var minSecOrder, maxSecOrder int
	var orderSum int
	var firstDeployOrder int
	hasDeploy := false
	prevLevel := -1
	escalated := false

	for _, s := range steps {
		orderSum += s.ExecutionOrder

		if s.Type == model.StepDeploy && (!hasDeploy || s.ExecutionOrder < firstDeployOrder) {
			hasDeploy = true
			firstDeployOrder = s.ExecutionOrder
		}

		if s.Security {
			securityCount++
			securitySum += s.ExecutionOrder
			if minSecOrder == 0 || s.ExecutionOrder < minSecOrder {
				minSecOrder = s.ExecutionOrder
			}
			if s.ExecutionOrder > maxSecOrder {
				maxSecOrder = s.ExecutionOrder
			}
			lname := containsScanOrCheck(s.Name)
			if lname {
				v[IdxSecurityScanCount]++
			}
		}

		if s.HasPermission("read") {
			v[IdxReadPermissionCount]++
		}
		if s.HasPermission("write") {
			v[IdxWritePermissionCount]++
		}
		if s.HasPermission("admin") {
			v[IdxAdminPermissionCount]++
		}
		if s.Secrets {
			v[IdxSecretsUsageCount]++
			if s.HasPermission("write") {
				v[IdxSecretsWithWriteCount]++
			}
		}
		if s.Approval {
			v[IdxApprovalStepCount]++
		}

		level := s.PermissionLevel()
		if prevLevel >= 0 && level > prevLevel {
			escalated = true
		}
		prevLevel = level
	}

	v[IdxSecurityStepCount] = float64(securityCount)
	v[IdxStepsWithAdminCount] = v[IdxAdminPermissionCount]

	if securityCount > 0 {
		v[IdxAvgSecurityStepOrder] = float64(securitySum) / float64(securityCount)
		v[IdxNormalizedFirstSecurityStep] = float64(minSecOrder) / float64(total)
		v[IdxNormalizedLastSecurityStep] = float64(maxSecOrder) / float64(total)
	}

	if escalated {
		v[IdxPermissionEscalation] = 1
	}

	v[IdxSecurityStepRatio] = float64(securityCount) / float64(total)
	v[IdxNormalizedAvgStepOrder] = (float64(orderSum) / float64(total)) / float64(total)

	if hasDeploy {
		count := 0
		for _, s := range steps {
			if s.Security && s.ExecutionOrder < firstDeployOrder {
				count++
			}
		}
		v[IdxSecurityBeforeDeploy] = float64(count)
	} else {
		v[IdxSecurityBeforeDeploy] = float64(securityCount)
	}

	for i, f := range v {
		if math.IsNaN(f) || math.IsInf(f, 0) {
			v[i] = 0
		}
	}

	return v, nil
}

func containsScanOrCheck(name string) bool {
	lower := strings.ToLower(name)
	return strings.Contains(lower, "scan") || strings.Contains(lower, "check")
}

// Validate checks that a vector is exactly Count finite floats.
func Validate(v []float64) error {
	if len(v) != Count {
		return apperr.New(apperr.CodeInvalidInput, "feature vector must have exactly 17 elements")
	}
	for i, f := range v {
		if math.IsNaN(f) || math.IsInf(f, 0) {
			return apperr.New(apperr.CodeInvalidInput, "feature vector contains a non-finite value at index "+Names[i])
		}
	}
	return nil
}
