package diff

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/HarshdeepAthawale/Security-Detection-for-CI-CD-Pipelines/internal/model"
)

func TestDiff_DetectsAddedAndRemoved(t *testing.T) {
	baselineSteps := []model.Step{
		{Name: "sast-scan", Security: true},
		{Name: "deploy", Permissions: []string{"write"}},
	}
	currentSteps := []model.Step{
		{Name: "deploy", Permissions: []string{"write", "admin"}},
		{Name: "rotate-secret", Secrets: true},
	}

	d := Diff(baselineSteps, currentSteps)

	baselineByName := map[string]model.DiffStep{}
	for _, s := range d.Baseline {
		baselineByName[s.Name] = s
	}
	currentByName := map[string]model.DiffStep{}
	for _, s := range d.Current {
		currentByName[s.Name] = s
	}

	assert.Equal(t, model.DiffRemoved, baselineByName["sast-scan"].Status)
	assert.Equal(t, model.DiffAdded, currentByName["rotate-secret"].Status)
	assert.Equal(t, model.DiffModified, currentByName["deploy"].Status)
}

func TestDiff_BaselineSideIsAlwaysUnchangedEvenWhenModified(t *testing.T) {
	baselineSteps := []model.Step{{Name: "deploy", Permissions: []string{"write"}}}
	currentSteps := []model.Step{{Name: "deploy", Permissions: []string{"write", "admin"}}}

	d := Diff(baselineSteps, currentSteps)

	assert.Equal(t, model.DiffUnchanged, d.Baseline[0].Status)
	assert.Equal(t, model.DiffModified, d.Current[0].Status)
}

func TestDiff_UnchangedWhenIdentical(t *testing.T) {
	steps := []model.Step{{Name: "build", Permissions: []string{"read"}}}
	d := Diff(steps, steps)
	assert.Equal(t, model.DiffUnchanged, d.Baseline[0].Status)
	assert.Equal(t, model.DiffUnchanged, d.Current[0].Status)
}

func TestDiff_PermissionOrderDoesNotCountAsChange(t *testing.T) {
	baselineSteps := []model.Step{{Name: "deploy", Permissions: []string{"write", "read"}}}
	currentSteps := []model.Step{{Name: "deploy", Permissions: []string{"read", "write"}}}

	d := Diff(baselineSteps, currentSteps)
	assert.Equal(t, model.DiffUnchanged, d.Current[0].Status)
}

func TestDiff_EmptyBothSides(t *testing.T) {
	d := Diff(nil, nil)
	assert.Empty(t, d.Baseline)
	assert.Empty(t, d.Current)
}

func TestDiff_ResultsAreSortedByName(t *testing.T) {
	baselineSteps := []model.Step{{Name: "zeta"}, {Name: "alpha"}}
	d := Diff(baselineSteps, nil)
	assert.Equal(t, "alpha", d.Baseline[0].Name)
	assert.Equal(t, "zeta", d.Baseline[1].Name)
}
