// Package normalizer implements turning an arbitrary pipeline-log
// document (GitHub Actions, GitLab CI, Jenkins, Azure DevOps, CircleCI,
// or a generic JSON blob) into a canonical model.Run.
package normalizer

import (
	"encoding/json"
	"fmt"
	"os"
	"regexp"
	"sort"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/HarshdeepAthawale/Security-Detection-for-CI-CD-Pipelines/internal/apperr"
	"github.com/HarshdeepAthawale/Security-Detection-for-CI-CD-Pipelines/internal/model"
)

// Format is the detected pipeline-log dialect.
type Format string

const (
	FormatGitHubActions Format = "github-actions"
	FormatGitLabCI      Format = "gitlab-ci"
	FormatJenkins       Format = "jenkins"
	FormatAzureDevOps   Format = "azure-devops"
	FormatCircleCI      Format = "circleci"
	FormatStandard      Format = "standard"
	FormatGeneric       Format = "generic"
)

// SecurityKeywords classify a step as security-related by name. Loaded
// from config/weights.yaml at startup via LoadKeywords; this is the
// built-in fallback.
var SecurityKeywords = []string{
	"security", "scan", "audit", "test", "check", "verify", "validate",
	"dependency-check", "sast", "dast", "secrets", "token", "key",
	"vulnerability", "compliance", "policy",
}

// SecretKeywords flag steps that reference credentials.
var SecretKeywords = []string{"secret", "token", "key", "password"}

// ApprovalKeywords flag manual-gate steps.
var ApprovalKeywords = []string{"approval", "manual", "gate", "review"}

// keywordsFile is the shape of config/weights.yaml's keyword section.
type keywordsFile struct {
	Security []string `yaml:"security"`
	Secrets  []string `yaml:"secrets"`
	Approval []string `yaml:"approval"`
}

// LoadKeywords replaces SecurityKeywords, SecretKeywords and
// ApprovalKeywords with the lists declared in the YAML file at path. A
// missing file is not an error; the built-in defaults stay in effect,
// matching backend/decision's optional-overlay config loading.
func LoadKeywords(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return apperr.Wrap(apperr.CodeInternal, "failed to read keyword config", err)
	}

	var kf keywordsFile
	if err := yaml.Unmarshal(data, &kf); err != nil {
		return apperr.Wrap(apperr.CodeInternal, "failed to parse keyword config", err)
	}

	if len(kf.Security) > 0 {
		SecurityKeywords = kf.Security
	}
	if len(kf.Secrets) > 0 {
		SecretKeywords = kf.Secrets
	}
	if len(kf.Approval) > 0 {
		ApprovalKeywords = kf.Approval
	}
	return nil
}

// Normalize parses raw (a JSON object, JSON array, or JSON string
// containing either) into a canonical Run. It fails only for malformed
// JSON or JSON that is neither an object nor an array; every other
// input produces a valid Run, synthesizing defaults as needed.
func Normalize(raw []byte) (*model.Run, error) {
	var doc interface{}
	trimmed := strings.TrimSpace(string(raw))
	if len(trimmed) > 0 && trimmed[0] == '"' {
		// JSON-string-wrapped document: unwrap once, then parse the inner text.
		var inner string
		if err := json.Unmarshal(raw, &inner); err == nil {
			trimmed = strings.TrimSpace(inner)
		}
	}
	if err := json.Unmarshal([]byte(trimmed), &doc); err != nil {
		return nil, apperr.Wrap(apperr.CodeParseError, "input is not valid JSON", err)
	}

	switch doc.(type) {
	case map[string]interface{}, []interface{}:
	default:
		return nil, apperr.New(apperr.CodeParseError, "input must be a JSON object or array")
	}

	format := FormatGeneric
	var obj map[string]interface{}
	if m, ok := doc.(map[string]interface{}); ok {
		obj = m
		format = detectFormat(m)
	}

	run := &model.Run{
		Pipeline:  extractPipelineName(obj, format),
		Timestamp: extractTimestamp(obj),
	}

	rawSteps := extractRawSteps(doc, obj, format)
	run.Steps = make([]model.Step, 0, len(rawSteps))
	for i, rs := range rawSteps {
		run.Steps = append(run.Steps, normalizeStep(rs, i))
	}
	return run, nil
}

func detectFormat(m map[string]interface{}) Format {
	if _, ok := m["workflow"]; ok {
		return FormatGitHubActions
	}
	if _, ok := m["workflow_run"]; ok {
		return FormatGitHubActions
	}
	if jobs, ok := asArray(m["jobs"]); ok && jobs != nil {
		return FormatGitHubActions
	}
	for _, k := range []string{"stages", "before_script", "after_script", "image", "services"} {
		if _, ok := m[k]; ok {
			if k == "stages" {
				// jenkins/azure-devops also carry "stages"; disambiguate below.
				continue
			}
			return FormatGitLabCI
		}
	}
	if stages, ok := asArray(m["stages"]); ok && len(stages) > 0 {
		if first, ok := stages[0].(map[string]interface{}); ok {
			if _, ok := first["steps"]; ok {
				return FormatJenkins
			}
			if _, ok := first["jobs"]; ok {
				return FormatAzureDevOps
			}
			if _, ok := first["phases"]; ok {
				return FormatAzureDevOps
			}
		}
		// "stages" present but not jenkins/azure shaped: gitlab-ci uses a
		// plain list of stage names.
		return FormatGitLabCI
	}
	if jobsVal, ok := m["jobs"]; ok {
		if _, isMap := jobsVal.(map[string]interface{}); isMap {
			return FormatCircleCI
		}
	}
	if _, ok := asArray(m["steps"]); ok {
		return FormatStandard
	}
	return FormatGeneric
}

func asArray(v interface{}) ([]interface{}, bool) {
	arr, ok := v.([]interface{})
	return arr, ok
}

var nameFields = []string{"pipeline", "pipelineName", "name", "workflow", "workflow_name", "pipeline_name"}

func extractPipelineName(m map[string]interface{}, format Format) string {
	if m != nil {
		for _, f := range nameFields {
			if s := stringField(m, f); s != "" {
				return s
			}
		}
		if s := nestedString(m, "job", "name"); s != "" {
			return s
		}
		if s := nestedString(m, "definition", "name"); s != "" {
			return s
		}
		if s := nestedString(m, "repository", "name"); s != "" {
			return s
		}
		if s := nestedString(m, "project", "name"); s != "" {
			return s
		}
		switch format {
		case FormatGitHubActions:
			if s := nestedString(m, "repository", "full_name"); s != "" {
				return s
			}
		case FormatGitLabCI:
			if s := nestedString(m, "project", "name"); s != "" {
				return s
			}
		}
	}
	return fmt.Sprintf("pipeline-%d", time.Now().UnixMilli())
}

func stringField(m map[string]interface{}, key string) string {
	if v, ok := m[key]; ok {
		if s, ok := v.(string); ok && s != "" {
			return s
		}
	}
	return ""
}

func nestedString(m map[string]interface{}, parent, key string) string {
	if p, ok := m[parent].(map[string]interface{}); ok {
		return stringField(p, key)
	}
	return ""
}

var timestampFields = []string{
	"timestamp", "created_at", "time", "started_at", "finished_at",
	"date", "run_date", "created", "start_time", "end_time",
}

func extractTimestamp(m map[string]interface{}) time.Time {
	if m != nil {
		for _, f := range timestampFields {
			if s := stringField(m, f); s != "" {
				if t, err := parseTime(s); err == nil {
					return t
				}
			}
		}
	}
	return time.Now().UTC()
}

func parseTime(s string) (time.Time, error) {
	layouts := []string{
		time.RFC3339, time.RFC3339Nano,
		"2006-01-02T15:04:05", "2006-01-02 15:04:05", "2006-01-02",
	}
	for _, l := range layouts {
		if t, err := time.Parse(l, s); err == nil {
			return t, nil
		}
	}
	return time.Time{}, fmt.Errorf("unparseable timestamp %q", s)
}

// extractRawSteps applies the format-specific extraction rule, falling
// back to the generic recursive search.
func extractRawSteps(doc interface{}, m map[string]interface{}, format Format) []map[string]interface{} {
	if m != nil {
		switch format {
		case FormatGitHubActions:
			if steps := jobsToSteps(m["jobs"]); len(steps) > 0 {
				return steps
			}
		case FormatJenkins:
			if steps := stagesToSteps(m["stages"], "steps"); len(steps) > 0 {
				return steps
			}
		case FormatAzureDevOps:
			if steps := stagesToSteps(m["stages"], "jobs"); len(steps) > 0 {
				return steps
			}
			if steps := stagesToSteps(m["stages"], "phases"); len(steps) > 0 {
				return steps
			}
		case FormatCircleCI:
			if steps := mapJobsToSteps(m["jobs"]); len(steps) > 0 {
				return steps
			}
		case FormatStandard:
			if arr, ok := asArray(m["steps"]); ok {
				return toObjSlice(arr)
			}
		}
	}
	return genericExtractSteps(doc)
}

func jobsToSteps(v interface{}) []map[string]interface{} {
	jobs, ok := v.(map[string]interface{})
	if ok {
		var out []map[string]interface{}
		// deterministic order for map-keyed jobs
		keys := make([]string, 0, len(jobs))
		for k := range jobs {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		for _, k := range keys {
			job, ok := jobs[k].(map[string]interface{})
			if !ok {
				continue
			}
			if job["name"] == nil {
				job["name"] = k
			}
			if steps, ok := asArray(job["steps"]); ok {
				out = append(out, toObjSlice(steps)...)
				continue
			}
			out = append(out, job)
		}
		return out
	}
	if arr, ok := asArray(v); ok {
		var out []map[string]interface{}
		for _, j := range arr {
			job, ok := j.(map[string]interface{})
			if !ok {
				continue
			}
			if steps, ok := asArray(job["steps"]); ok {
				out = append(out, toObjSlice(steps)...)
				continue
			}
			out = append(out, job)
		}
		return out
	}
	return nil
}

func mapJobsToSteps(v interface{}) []map[string]interface{} {
	jobs, ok := v.(map[string]interface{})
	if !ok {
		return nil
	}
	keys := make([]string, 0, len(jobs))
	for k := range jobs {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	var out []map[string]interface{}
	for _, k := range keys {
		job, ok := jobs[k].(map[string]interface{})
		if !ok {
			continue
		}
		if steps, ok := asArray(job["steps"]); ok {
			out = append(out, toObjSlice(steps)...)
			continue
		}
		if job["name"] == nil {
			job["name"] = k
		}
		out = append(out, job)
	}
	return out
}

func stagesToSteps(v interface{}, childKey string) []map[string]interface{} {
	stages, ok := asArray(v)
	if !ok {
		return nil
	}
	var out []map[string]interface{}
	for _, s := range stages {
		stage, ok := s.(map[string]interface{})
		if !ok {
			continue
		}
		children, ok := asArray(stage[childKey])
		if !ok {
			out = append(out, stage)
			continue
		}
		for _, c := range children {
			cm, ok := c.(map[string]interface{})
			if !ok {
				continue
			}
			if inner, ok := asArray(cm["steps"]); ok {
				out = append(out, toObjSlice(inner)...)
				continue
			}
			out = append(out, cm)
		}
	}
	return out
}

func toObjSlice(arr []interface{}) []map[string]interface{} {
	out := make([]map[string]interface{}, 0, len(arr))
	for _, v := range arr {
		if m, ok := v.(map[string]interface{}); ok {
			out = append(out, m)
		} else {
			out = append(out, map[string]interface{}{"value": v})
		}
	}
	return out
}

var stepLikeFields = []string{"name", "id", "step", "action", "script", "task", "label"}

// genericExtractSteps recursively descends up to depth 5, collecting
// every array whose elements are objects carrying at least one
// step-like field, and returns the largest such array. If none is
// found, an object document is treated as a single step; an array
// document yields one step per element (none for an empty array), not
// a single step.
func genericExtractSteps(doc interface{}) []map[string]interface{} {
	var best []interface{}
	var visit func(v interface{}, depth int)
	visit = func(v interface{}, depth int) {
		if depth > 5 {
			return
		}
		switch t := v.(type) {
		case []interface{}:
			if isStepLikeArray(t) && len(t) > len(best) {
				best = t
			}
			for _, e := range t {
				visit(e, depth+1)
			}
		case map[string]interface{}:
			keys := make([]string, 0, len(t))
			for k := range t {
				keys = append(keys, k)
			}
			sort.Strings(keys)
			for _, k := range keys {
				visit(t[k], depth+1)
			}
		}
	}
	visit(doc, 0)
	if best != nil {
		return toObjSlice(best)
	}
	if m, ok := doc.(map[string]interface{}); ok {
		return []map[string]interface{}{m}
	}
	if arr, ok := doc.([]interface{}); ok && len(arr) > 0 {
		return toObjSlice(arr)
	}
	return nil
}

func isStepLikeArray(arr []interface{}) bool {
	if len(arr) == 0 {
		return false
	}
	for _, e := range arr {
		m, ok := e.(map[string]interface{})
		if !ok {
			return false
		}
		hasField := false
		for _, f := range stepLikeFields {
			if _, ok := m[f]; ok {
				hasField = true
				break
			}
		}
		if !hasField {
			return false
		}
	}
	return true
}

var nameSourceFields = []string{"name", "id", "step", "action", "task", "label", "job"}

func normalizeStep(raw map[string]interface{}, index int) model.Step {
	name := ""
	for _, f := range nameSourceFields {
		if s := stringField(raw, f); s != "" {
			name = s
			break
		}
	}
	if name == "" {
		name = fmt.Sprintf("step-%d", index+1)
	}

	stepType := inferType(raw, name)
	order := inferOrder(raw, index)
	perms := inferPermissions(raw)
	security := inferSecurity(raw, name, stepType)
	secrets := inferSecrets(raw, name)
	approval := inferApproval(raw, name, stepType)

	status := stringField(raw, "status")

	return model.Step{
		Name:           name,
		Type:           stepType,
		ExecutionOrder: order,
		Status:         status,
		Permissions:    perms,
		Security:       security,
		Secrets:        secrets,
		Approval:       approval,
	}
}

func inferType(raw map[string]interface{}, name string) model.StepType {
	for _, f := range []string{"type", "category", "kind"} {
		if s := stringField(raw, f); s != "" {
			switch strings.ToLower(s) {
			case "security":
				return model.StepSecurity
			case "build":
				return model.StepBuild
			case "test":
				return model.StepTest
			case "deploy":
				return model.StepDeploy
			case "approval":
				return model.StepApproval
			}
		}
	}
	lower := strings.ToLower(name)
	switch {
	case containsAny(lower, "approval", "manual", "gate", "review"):
		return model.StepApproval
	case containsAny(lower, SecurityKeywords...):
		return model.StepSecurity
	case containsAny(lower, "deploy", "release", "publish", "rollout"):
		return model.StepDeploy
	case containsAny(lower, "build", "compile", "package"):
		return model.StepBuild
	case containsAny(lower, "test", "unit", "integration"):
		return model.StepTest
	default:
		return model.StepOther
	}
}

func inferOrder(raw map[string]interface{}, index int) int {
	for _, f := range []string{"executionOrder", "order", "index", "run_number"} {
		if v, ok := raw[f]; ok {
			if n, ok := toInt(v); ok && n >= 1 {
				return n
			}
		}
	}
	return index + 1
}

func toInt(v interface{}) (int, bool) {
	switch n := v.(type) {
	case float64:
		return int(n), true
	case int:
		return n, true
	case string:
		if i, err := strconv.Atoi(n); err == nil {
			return i, true
		}
	}
	return 0, false
}

var envPermTokenRe = regexp.MustCompile(`(?i)\b(read|write|admin)\b`)

func inferPermissions(raw map[string]interface{}) []string {
	set := map[string]struct{}{}
	add := func(v interface{}) {
		switch t := v.(type) {
		case string:
			set[strings.ToLower(t)] = struct{}{}
		case []interface{}:
			for _, e := range t {
				if s, ok := e.(string); ok {
					set[strings.ToLower(s)] = struct{}{}
				}
			}
		}
	}
	add(raw["permissions"])
	add(raw["scopes"])
	add(raw["access"])

	if permObj, ok := raw["permissions"].(map[string]interface{}); ok {
		for k, v := range permObj {
			if b, ok := v.(bool); ok && b {
				set[strings.ToLower(k)] = struct{}{}
			}
		}
	}

	if env, ok := raw["env"].(map[string]interface{}); ok {
		for _, v := range env {
			if s, ok := v.(string); ok {
				for _, m := range envPermTokenRe.FindAllString(s, -1) {
					set[strings.ToLower(m)] = struct{}{}
				}
			}
		}
	}

	out := make([]string, 0, len(set))
	for k := range set {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}

func containsAny(haystack string, needles ...string) bool {
	for _, n := range needles {
		if strings.Contains(haystack, strings.ToLower(n)) {
			return true
		}
	}
	return false
}

func inferSecurity(raw map[string]interface{}, name string, stepType model.StepType) bool {
	if v, ok := raw["security"].(bool); ok {
		return v
	}
	if stepType == model.StepSecurity {
		return true
	}
	return containsAny(strings.ToLower(name), SecurityKeywords...)
}

func inferSecrets(raw map[string]interface{}, name string) bool {
	if v, ok := raw["secrets"].(bool); ok {
		return v
	}
	if env, ok := raw["env"].(map[string]interface{}); ok {
		for k := range env {
			if containsAny(strings.ToLower(k), SecretKeywords...) {
				return true
			}
		}
	}
	if inputs, ok := raw["inputs"].(map[string]interface{}); ok {
		for k := range inputs {
			if containsAny(strings.ToLower(k), "secret", "token", "key") {
				return true
			}
		}
	}
	for _, f := range []string{"name", "description", "id"} {
		if containsAny(strings.ToLower(stringField(raw, f)), SecretKeywords...) {
			return true
		}
	}
	for _, f := range []string{"script", "run", "command"} {
		if body := stringField(raw, f); body != "" && containsAny(strings.ToLower(body), "secret", "token", "key") {
			return true
		}
	}
	_ = name
	return false
}

func inferApproval(raw map[string]interface{}, name string, stepType model.StepType) bool {
	if stepType == model.StepApproval {
		return true
	}
	for _, f := range []string{"type", "kind"} {
		if strings.EqualFold(stringField(raw, f), "approval") {
			return true
		}
	}
	for _, f := range []string{"name", "description", "type", "id"} {
		if containsAny(strings.ToLower(stringField(raw, f)), ApprovalKeywords...) {
			return true
		}
	}
	return containsAny(strings.ToLower(name), ApprovalKeywords...)
}
