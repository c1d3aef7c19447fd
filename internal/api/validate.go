package api

import (
	"fmt"

	"github.com/xeipuuv/gojsonschema"

	"github.com/HarshdeepAthawale/Security-Detection-for-CI-CD-Pipelines/internal/apperr"
)

// Request-shape schemas, validated before the body reaches the
// normalizer, following backend/orchestrator's gojsonschema wiring
// (internal/api/seg_maps_http.go). These only
// enforce structure ("log" present, "baselineLogs" is a non-empty
// array); the normalizer itself tolerates arbitrary internal shapes.
var (
	analyzeSchema = compileSchema(`{
		"type": "object",
		"properties": {
			"pipeline": {"type": "string"},
			"log": {},
			"timestamp": {"type": "string"}
		},
		"required": ["log"]
	}`)

	trainSchema = compileSchema(`{
		"type": "object",
		"properties": {
			"baselineLogs": {"type": "array", "minItems": 1},
			"modelName": {"type": "string"}
		},
		"required": ["baselineLogs"]
	}`)
)

func compileSchema(schema string) *gojsonschema.Schema {
	loader := gojsonschema.NewStringLoader(schema)
	s, err := gojsonschema.NewSchema(loader)
	if err != nil {
		panic(fmt.Sprintf("invalid embedded json schema: %v", err))
	}
	return s
}

func validateAgainst(schema *gojsonschema.Schema, body []byte) error {
	result, err := schema.Validate(gojsonschema.NewBytesLoader(body))
	if err != nil {
		return apperr.Wrap(apperr.CodeInvalidInput, "request body is not valid JSON", err)
	}
	if !result.Valid() {
		var detail string
		for _, e := range result.Errors() {
			if detail != "" {
				detail += "; "
			}
			detail += e.String()
		}
		return apperr.New(apperr.CodeInvalidInput, "request body failed validation: "+detail)
	}
	return nil
}
