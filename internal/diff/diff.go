// Package diff implements comparing the canonical step set of a
// baseline run against a current run.
package diff

import (
	"encoding/json"
	"sort"

	"github.com/HarshdeepAthawale/Security-Detection-for-CI-CD-Pipelines/internal/model"
)

// Diff computes the baseline-vs-current pipeline diff, matching steps
// by name. Both returned sides are sorted by name.
func Diff(baselineSteps, currentSteps []model.Step) model.PipelineDiff {
	baseByName := indexByName(baselineSteps)
	curByName := indexByName(currentSteps)

	var baseline, current []model.DiffStep

	for name, b := range baseByName {
		c, inCurrent := curByName[name]
		if !inCurrent {
			baseline = append(baseline, model.DiffStep{Name: name, Status: model.DiffRemoved, Security: b.Security})
			continue
		}
		baseline = append(baseline, model.DiffStep{Name: name, Status: model.DiffUnchanged, Security: b.Security})
		status := model.DiffUnchanged
		if changed(b, c) {
			status = model.DiffModified
		}
		current = append(current, model.DiffStep{Name: name, Status: status, Security: c.Security})
	}

	for name, c := range curByName {
		if _, inBaseline := baseByName[name]; !inBaseline {
			current = append(current, model.DiffStep{Name: name, Status: model.DiffAdded, Security: c.Security})
		}
	}

	sortByName(baseline)
	sortByName(current)

	return model.PipelineDiff{Baseline: baseline, Current: current}
}

func indexByName(steps []model.Step) map[string]model.Step {
	out := make(map[string]model.Step, len(steps))
	for _, s := range steps {
		out[s.Name] = s
	}
	return out
}

// changed compares permissions (by canonical sorted serialization, so
// permission order never counts as a change), security, secrets and
// approval.
func changed(a, b model.Step) bool {
	if a.Security != b.Security || a.Secrets != b.Secrets || a.Approval != b.Approval {
		return true
	}
	return canonicalPerms(a.Permissions) != canonicalPerms(b.Permissions)
}

func canonicalPerms(perms []string) string {
	sorted := append([]string(nil), perms...)
	sort.Strings(sorted)
	b, _ := json.Marshal(sorted)
	return string(b)
}

func sortByName(steps []model.DiffStep) {
	sort.Slice(steps, func(i, j int) bool { return steps[i].Name < steps[j].Name })
}
