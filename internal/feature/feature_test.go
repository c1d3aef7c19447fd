package feature

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/HarshdeepAthawale/Security-Detection-for-CI-CD-Pipelines/internal/model"
)

func TestExtract_NilRun(t *testing.T) {
	_, err := Extract(nil)
	require.Error(t, err)
}

func TestExtract_EmptyStepsIsAllZero(t *testing.T) {
	v, err := Extract(&model.Run{Steps: nil})
	require.NoError(t, err)
	require.Len(t, v, Count)
	for _, f := range v {
		assert.Equal(t, 0.0, f)
	}
}

func TestExtract_SecurityScanAndRatio(t *testing.T) {
	run := &model.Run{
		Steps: []model.Step{
			{Name: "checkout", Type: model.StepOther, ExecutionOrder: 1},
			{Name: "dependency-scan", Type: model.StepSecurity, ExecutionOrder: 2, Security: true},
			{Name: "deploy", Type: model.StepDeploy, ExecutionOrder: 3, Permissions: []string{"write"}},
		},
	}

	v, err := Extract(run)
	require.NoError(t, err)
	assert.Equal(t, 1.0, v[IdxSecurityScanCount])
	assert.Equal(t, 1.0, v[IdxSecurityStepCount])
	assert.Equal(t, 3.0, v[IdxTotalStepCount])
	assert.InDelta(t, 1.0/3.0, v[IdxSecurityStepRatio], 1e-9)
	assert.Equal(t, 1.0, v[IdxWritePermissionCount])
}

func TestExtract_PermissionEscalationDetected(t *testing.T) {
	run := &model.Run{
		Steps: []model.Step{
			{Name: "read-step", ExecutionOrder: 1, Permissions: []string{"read"}},
			{Name: "escalate-step", ExecutionOrder: 2, Permissions: []string{"admin"}},
		},
	}

	v, err := Extract(run)
	require.NoError(t, err)
	assert.Equal(t, 1.0, v[IdxPermissionEscalation])
	assert.Equal(t, 1.0, v[IdxAdminPermissionCount])
	assert.Equal(t, 1.0, v[IdxStepsWithAdminCount])
}

func TestExtract_SecurityBeforeDeploy(t *testing.T) {
	run := &model.Run{
		Steps: []model.Step{
			{Name: "sast-scan", ExecutionOrder: 1, Security: true},
			{Name: "build", ExecutionOrder: 2},
			{Name: "deploy-to-prod", ExecutionOrder: 3, Type: model.StepDeploy},
		},
	}

	v, err := Extract(run)
	require.NoError(t, err)
	assert.Equal(t, 1.0, v[IdxSecurityBeforeDeploy])
}

func TestExtract_NoDeployCountsAllSecurityAsBeforeDeploy(t *testing.T) {
	run := &model.Run{
		Steps: []model.Step{
			{Name: "scan", ExecutionOrder: 1, Security: true},
			{Name: "build", ExecutionOrder: 2},
		},
	}

	v, err := Extract(run)
	require.NoError(t, err)
	assert.Equal(t, 1.0, v[IdxSecurityBeforeDeploy])
}

func TestValidate_WrongLength(t *testing.T) {
	err := Validate(make([]float64, 3))
	require.Error(t, err)
}

func TestValidate_NonFiniteValue(t *testing.T) {
	v := make([]float64, Count)
	v[0] = math.Inf(1)
	err := Validate(v)
	require.Error(t, err)
}

func TestValidate_ValidVector(t *testing.T) {
	v := make([]float64, Count)
	require.NoError(t, Validate(v))
}
