package coordinator

import (
	"sync"

	"github.com/m4xw311/trialdesk/agents"
)

// Tracker holds the currently proposed plan and, during an execution
// pass, the executing plan's per-step status. Step progress is inferred
// from delegation events in ordinal order; it is a best-effort progress
// indicator, never correctness-bearing.
type Tracker struct {
	notifier Notifier

	mu        sync.Mutex
	proposed  *agents.Plan
	executing *agents.Plan
	cursor    int
}

func NewTracker(notifier Notifier) *Tracker {
	return &Tracker{notifier: notifier, cursor: -1}
}

// SetProposed stores a plan awaiting the researcher's decision and
// surfaces it. A new proposal overwrites any previous one, including
// the case where an execution run re-proposed instead of executing.
func (t *Tracker) SetProposed(plan *agents.Plan) {
	t.mu.Lock()
	for i := range plan.Steps {
		plan.Steps[i].Status = agents.StepPending
	}
	t.proposed = plan
	t.mu.Unlock()
	t.notifier.PlanUpdated(plan)
}

// HasProposed reports whether a plan is waiting for the researcher's
// decision.
func (t *Tracker) HasProposed() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.proposed != nil
}

// ConsumeProposed removes and returns the pending proposal, or nil when
// there is none. Approve and decline both consume it.
func (t *Tracker) ConsumeProposed() *agents.Plan {
	t.mu.Lock()
	defer t.mu.Unlock()
	plan := t.proposed
	t.proposed = nil
	return plan
}

// BeginExecution promotes an approved plan to the executing plan and
// resets the step cursor.
func (t *Tracker) BeginExecution(plan *agents.Plan) {
	t.mu.Lock()
	t.executing = plan
	t.cursor = -1
	t.mu.Unlock()
	t.notifier.PlanUpdated(plan)
}

// Executing reports whether an execution pass is being tracked.
func (t *Tracker) Executing() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.executing != nil
}

// OnDelegationObserved advances the step cursor: the previously-current
// step is marked completed and the next one running. Delegation events
// are assumed to arrive in step order; events beyond the last step are
// ignored.
func (t *Tracker) OnDelegationObserved(agentName string) {
	t.mu.Lock()
	plan := t.executing
	if plan == nil {
		t.mu.Unlock()
		return
	}

	type change struct {
		index  int
		status agents.StepStatus
	}
	var changes []change

	if t.cursor >= 0 && t.cursor < len(plan.Steps) && plan.Steps[t.cursor].Status == agents.StepRunning {
		plan.Steps[t.cursor].Status = agents.StepCompleted
		changes = append(changes, change{t.cursor, agents.StepCompleted})
	}
	if t.cursor+1 < len(plan.Steps) {
		t.cursor++
		plan.Steps[t.cursor].Status = agents.StepRunning
		changes = append(changes, change{t.cursor, agents.StepRunning})
	}
	t.mu.Unlock()

	for _, c := range changes {
		t.notifier.StepStatusChanged(c.index, c.status)
	}
}

// OnRunCompleted finalizes the executing plan. When the terminal output
// was plain text it is an execution summary: every remaining step is
// marked completed. A structured-plan terminal output is handled by
// SetProposed instead, and the executing plan is simply discarded.
func (t *Tracker) OnRunCompleted(asText bool) {
	// Status writes stay under the mutex: the plan pointer has been
	// shared with notification consumers.
	t.mu.Lock()
	plan := t.executing
	t.executing = nil
	t.cursor = -1

	var changed []int
	if plan != nil && asText {
		for i := range plan.Steps {
			if plan.Steps[i].Status != agents.StepCompleted {
				plan.Steps[i].Status = agents.StepCompleted
				changed = append(changed, i)
			}
		}
	}
	t.mu.Unlock()

	for _, i := range changed {
		t.notifier.StepStatusChanged(i, agents.StepCompleted)
	}
}

// OnRunFailed marks the in-flight step failed and abandons the
// executing plan. Steps after the current one keep their status.
func (t *Tracker) OnRunFailed() {
	t.mu.Lock()
	plan := t.executing
	cursor := t.cursor
	t.executing = nil
	t.cursor = -1

	failed := plan != nil && cursor >= 0 && cursor < len(plan.Steps)
	if failed {
		plan.Steps[cursor].Status = agents.StepFailed
	}
	t.mu.Unlock()

	if failed {
		t.notifier.StepStatusChanged(cursor, agents.StepFailed)
	}
}
