package api

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestValidateAgainst_AnalyzeSchemaRequiresLog(t *testing.T) {
	err := validateAgainst(analyzeSchema, []byte(`{"pipeline": "p"}`))
	assert.Error(t, err)
}

func TestValidateAgainst_AnalyzeSchemaAcceptsMinimalBody(t *testing.T) {
	err := validateAgainst(analyzeSchema, []byte(`{"log": {"steps": []}}`))
	assert.NoError(t, err)
}

func TestValidateAgainst_TrainSchemaRequiresNonEmptyArray(t *testing.T) {
	err := validateAgainst(trainSchema, []byte(`{"baselineLogs": []}`))
	assert.Error(t, err)
}

func TestValidateAgainst_TrainSchemaAcceptsPopulatedArray(t *testing.T) {
	err := validateAgainst(trainSchema, []byte(`{"baselineLogs": [{"steps": []}]}`))
	assert.NoError(t, err)
}

func TestValidateAgainst_RejectsMalformedJSON(t *testing.T) {
	err := validateAgainst(analyzeSchema, []byte(`{not-json`))
	assert.Error(t, err)
}
