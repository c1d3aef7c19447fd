package normalizer

import (
	"os"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/HarshdeepAthawale/Security-Detection-for-CI-CD-Pipelines/internal/model"
)

func TestNormalize_GitHubActions(t *testing.T) {
	raw := []byte(`{
		"workflow": "ci",
		"repository": {"full_name": "acme/payments"},
		"timestamp": "2026-01-02T15:04:05Z",
		"jobs": {
			"build": {"steps": [{"name": "checkout"}, {"name": "compile"}]},
			"verify": {"steps": [{"name": "sast-scan", "permissions": ["read"]}]}
		}
	}`)

	run, err := Normalize(raw)
	require.NoError(t, err)
	assert.Equal(t, "ci", run.Pipeline)
	assert.Len(t, run.Steps, 3)
	assert.Equal(t, "checkout", run.Steps[0].Name)
	assert.True(t, run.Steps[2].Security)
}

func TestNormalize_GenericArray(t *testing.T) {
	raw := []byte(`[{"name": "step-one"}, {"name": "step-two"}]`)

	run, err := Normalize(raw)
	require.NoError(t, err)
	assert.Len(t, run.Steps, 2)
	assert.NotEmpty(t, run.Pipeline)
}

func TestNormalize_RejectsNonObjectNonArray(t *testing.T) {
	_, err := Normalize([]byte(`42`))
	require.Error(t, err)
}

func TestNormalize_RejectsMalformedJSON(t *testing.T) {
	_, err := Normalize([]byte(`{not json`))
	require.Error(t, err)
}

func TestNormalize_EmptyStepsYieldsNoError(t *testing.T) {
	run, err := Normalize([]byte(`{"pipeline": "empty", "steps": []}`))
	require.NoError(t, err)
	assert.Empty(t, run.Steps)
}

func TestNormalize_JSONStringWrappedDocument(t *testing.T) {
	raw := []byte(`"{\"pipeline\":\"wrapped\",\"steps\":[{\"name\":\"build\"}]}"`)

	run, err := Normalize(raw)
	require.NoError(t, err)
	assert.Equal(t, "wrapped", run.Pipeline)
	assert.Len(t, run.Steps, 1)
}

func TestInferSecrets_FromEnvKey(t *testing.T) {
	raw := map[string]interface{}{
		"name": "deploy",
		"env":  map[string]interface{}{"API_TOKEN": "abc123"},
	}
	assert.True(t, inferSecrets(raw, "deploy"))
}

func TestInferApproval_FromKeyword(t *testing.T) {
	raw := map[string]interface{}{"name": "manual-approval-gate"}
	assert.True(t, inferApproval(raw, "manual-approval-gate", model.StepOther))
}

func TestLoadKeywords_MissingFileIsNotError(t *testing.T) {
	err := LoadKeywords("/nonexistent/weights.yaml")
	assert.NoError(t, err)
}

func TestLoadKeywords_OverlayAppliesWhenPresent(t *testing.T) {
	dir := t.TempDir()
	path := dir + "/weights.yaml"
	content := "security:\n  - custom-sec\napproval:\n  - custom-gate\n"
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))

	defer func() {
		SecurityKeywords = []string{
			"security", "scan", "audit", "test", "check", "verify", "validate",
			"dependency-check", "sast", "dast", "secrets", "token", "key",
			"vulnerability", "compliance", "policy",
		}
		ApprovalKeywords = []string{"approval", "manual", "gate", "review"}
	}()

	require.NoError(t, LoadKeywords(path))
	assert.Contains(t, SecurityKeywords, "custom-sec")
	assert.Contains(t, ApprovalKeywords, "custom-gate")
}
