package coordinator

import "github.com/m4xw311/trialdesk/agents"

// State of the run driver.
type State string

const (
	StateIdle      State = "idle"
	StateLaunching State = "launching"
	StateRunning   State = "running"
)

// Notifier receives every event the coordination core emits toward a
// frontend. All methods are fire-and-forget and must never block: the
// core calls them from its own goroutines and from within a running
// agent's execution.
type Notifier interface {
	// Message is a chat-style message to display (sender is "assistant",
	// "system" or an agent name).
	Message(sender, text string)
	// ApprovalRequested asks the researcher to approve or deny an action.
	ApprovalRequested(description string, details map[string]interface{})
	// QuestionAsked asks the researcher a free-form or multiple-choice
	// question.
	QuestionAsked(text string, options []string)
	// PlanUpdated carries the current proposed or executing plan.
	PlanUpdated(plan *agents.Plan)
	// StepStatusChanged reports one step's runtime status by index.
	StepStatusChanged(index int, status agents.StepStatus)
	// StatusChanged reports the driver state and the active agent.
	StatusChanged(state State, agentName string)
	// TaskChanged describes what the assistant is working on right now.
	TaskChanged(description string)
	// HistoryEntry records a completed action for the activity log.
	HistoryEntry(agent, action, status string)
}

// NopNotifier discards every event.
type NopNotifier struct{}

func (NopNotifier) Message(string, string)                           {}
func (NopNotifier) ApprovalRequested(string, map[string]interface{}) {}
func (NopNotifier) QuestionAsked(string, []string)                   {}
func (NopNotifier) PlanUpdated(*agents.Plan)                         {}
func (NopNotifier) StepStatusChanged(int, agents.StepStatus)         {}
func (NopNotifier) StatusChanged(State, string)                      {}
func (NopNotifier) TaskChanged(string)                               {}
func (NopNotifier) HistoryEntry(string, string, string)              {}
