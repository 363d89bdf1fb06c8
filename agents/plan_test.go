package agents

import (
	"encoding/json"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func samplePlan() *Plan {
	return &Plan{
		Goal: "Prepare the site initiation package",
		Steps: []PlanStep{
			{Description: "Estimate initiation costs", Agent: "project_manager", RequiresApproval: false, Inputs: map[string]string{"site": "Memorial"}},
			{Description: "Draft the initiation checklist", Agent: "document_maker", RequiresApproval: false},
			{Description: "Draft the sponsor notification email", Agent: "email_drafter", RequiresApproval: true},
		},
	}
}

func TestParsePlanRawJSON(t *testing.T) {
	plan, ok := ParsePlan(samplePlan().JSON())
	require.True(t, ok)
	assert.Equal(t, "Prepare the site initiation package", plan.Goal)
	require.Len(t, plan.Steps, 3)
	assert.Equal(t, []string{"project_manager", "document_maker", "email_drafter"}, plan.EstimatedAgents)
}

func TestParsePlanFencedAndProse(t *testing.T) {
	raw := samplePlan().JSON()

	fenced := "Here is my plan:\n```json\n" + raw + "\n```\nLet me know."
	plan, ok := ParsePlan(fenced)
	require.True(t, ok)
	assert.Len(t, plan.Steps, 3)

	prose := "I suggest the following. " + raw + " What do you think?"
	plan, ok = ParsePlan(prose)
	require.True(t, ok)
	assert.Equal(t, "email_drafter", plan.Steps[2].Agent)
}

func TestParsePlanRejectsNonPlans(t *testing.T) {
	for _, text := range []string{
		"The estimate totals $42,000 across three categories.",
		`{"goal": "incomplete"}`,
		`{"steps": [{"description": "no goal", "agent": "document_maker"}]}`,
		"",
	} {
		if _, ok := ParsePlan(text); ok {
			t.Errorf("expected %q not to parse as a plan", text)
		}
	}
}

func TestPlanRoundTrip(t *testing.T) {
	original := samplePlan()
	original.Steps[0].Status = StepRunning

	data, err := json.Marshal(original)
	require.NoError(t, err)

	var restored Plan
	require.NoError(t, json.Unmarshal(data, &restored))

	assert.Equal(t, original.Goal, restored.Goal)
	require.Len(t, restored.Steps, len(original.Steps))
	for i := range original.Steps {
		assert.Equal(t, original.Steps[i].Description, restored.Steps[i].Description)
		assert.Equal(t, original.Steps[i].Agent, restored.Steps[i].Agent)
		assert.Equal(t, original.Steps[i].RequiresApproval, restored.Steps[i].RequiresApproval)
	}
	assert.Equal(t, StepRunning, restored.Steps[0].Status)
}

func TestBuildExecutionPrompt(t *testing.T) {
	plan := samplePlan()
	prompt := BuildExecutionPrompt(plan, "keep it under budget")

	assert.Contains(t, prompt, plan.Goal)
	assert.Contains(t, prompt, "keep it under budget")
	for _, step := range plan.Steps {
		assert.Contains(t, prompt, step.Agent)
		assert.Contains(t, prompt, step.Description)
	}
	assert.True(t, strings.Contains(prompt, "requires researcher approval"))
}
