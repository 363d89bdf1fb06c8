package coordinator

import (
	"testing"

	"github.com/m4xw311/trialdesk/agents"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func trackerPlan() *agents.Plan {
	return &agents.Plan{
		Goal: "g",
		Steps: []agents.PlanStep{
			{Description: "a", Agent: "project_manager"},
			{Description: "b", Agent: "document_maker"},
			{Description: "c", Agent: "email_drafter"},
		},
	}
}

func TestTrackerProposalLifecycle(t *testing.T) {
	notifier := &recordingNotifier{}
	tracker := NewTracker(notifier)

	plan := trackerPlan()
	tracker.SetProposed(plan)
	assert.Equal(t, 1, notifier.planUpdates)
	for _, step := range plan.Steps {
		assert.Equal(t, agents.StepPending, step.Status)
	}

	got := tracker.ConsumeProposed()
	require.NotNil(t, got)
	assert.Nil(t, tracker.ConsumeProposed(), "consume is one-shot")
}

func TestTrackerOrdinalDelegation(t *testing.T) {
	notifier := &recordingNotifier{}
	tracker := NewTracker(notifier)

	plan := trackerPlan()
	tracker.SetProposed(plan)
	tracker.BeginExecution(tracker.ConsumeProposed())
	require.True(t, tracker.Executing())

	tracker.OnDelegationObserved("project_manager")
	assert.Equal(t, agents.StepRunning, plan.Steps[0].Status)
	assert.Equal(t, agents.StepPending, plan.Steps[1].Status)

	tracker.OnDelegationObserved("document_maker")
	assert.Equal(t, agents.StepCompleted, plan.Steps[0].Status)
	assert.Equal(t, agents.StepRunning, plan.Steps[1].Status)

	tracker.OnDelegationObserved("email_drafter")
	tracker.OnRunCompleted(true)

	for i, step := range plan.Steps {
		assert.Equal(t, agents.StepCompleted, step.Status, "step %d", i)
	}
	assert.False(t, tracker.Executing())
}

func TestTrackerExtraDelegationsAreIgnored(t *testing.T) {
	tracker := NewTracker(&recordingNotifier{})
	plan := trackerPlan()
	tracker.SetProposed(plan)
	tracker.BeginExecution(tracker.ConsumeProposed())

	for i := 0; i < 5; i++ {
		tracker.OnDelegationObserved("whatever")
	}
	// Cursor stops at the last step.
	assert.Equal(t, agents.StepCompleted, plan.Steps[0].Status)
	assert.Equal(t, agents.StepCompleted, plan.Steps[1].Status)
	assert.Equal(t, agents.StepRunning, plan.Steps[2].Status)
}

func TestTrackerFailureLeavesLaterStepsPending(t *testing.T) {
	tracker := NewTracker(&recordingNotifier{})
	plan := trackerPlan()
	tracker.SetProposed(plan)
	tracker.BeginExecution(tracker.ConsumeProposed())

	tracker.OnDelegationObserved("project_manager")
	tracker.OnDelegationObserved("document_maker")
	tracker.OnRunFailed()

	assert.Equal(t, agents.StepCompleted, plan.Steps[0].Status)
	assert.Equal(t, agents.StepFailed, plan.Steps[1].Status)
	assert.Equal(t, agents.StepPending, plan.Steps[2].Status)
	assert.False(t, tracker.Executing())
}

func TestTrackerFailureBeforeAnyDelegation(t *testing.T) {
	tracker := NewTracker(&recordingNotifier{})
	plan := trackerPlan()
	tracker.SetProposed(plan)
	tracker.BeginExecution(tracker.ConsumeProposed())

	tracker.OnRunFailed()
	for _, step := range plan.Steps {
		assert.Equal(t, agents.StepPending, step.Status)
	}
}

// stepVerifyingNotifier asserts that by the time a step notification
// fires, the shared plan already carries that status. A frontend
// reading the plan from the callback must never observe a stale value.
type stepVerifyingNotifier struct {
	NopNotifier
	t    *testing.T
	plan *agents.Plan
}

func (n *stepVerifyingNotifier) StepStatusChanged(index int, status agents.StepStatus) {
	assert.Equal(n.t, status, n.plan.Steps[index].Status, "step %d", index)
}

func TestTrackerStatusVisibleBeforeNotification(t *testing.T) {
	plan := trackerPlan()
	notifier := &stepVerifyingNotifier{t: t, plan: plan}
	tracker := NewTracker(notifier)
	tracker.SetProposed(plan)
	tracker.BeginExecution(tracker.ConsumeProposed())

	tracker.OnDelegationObserved("project_manager")
	tracker.OnRunCompleted(true)

	failing := trackerPlan()
	failNotifier := &stepVerifyingNotifier{t: t, plan: failing}
	failTracker := NewTracker(failNotifier)
	failTracker.SetProposed(failing)
	failTracker.BeginExecution(failTracker.ConsumeProposed())
	failTracker.OnDelegationObserved("project_manager")
	failTracker.OnRunFailed()
	assert.Equal(t, agents.StepFailed, failing.Steps[0].Status)
}

func TestTrackerCompletedWithoutExecutionIsNoop(t *testing.T) {
	notifier := &recordingNotifier{}
	tracker := NewTracker(notifier)
	tracker.OnRunCompleted(true)
	tracker.OnRunFailed()
	assert.Empty(t, notifier.stepChanges)
}
