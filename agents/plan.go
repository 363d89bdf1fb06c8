package agents

import (
	"encoding/json"
	"fmt"
	"strings"
)

// StepStatus is the runtime status the coordinator layers onto a plan
// step. The agent never produces statuses itself.
type StepStatus string

const (
	StepPending   StepStatus = "pending"
	StepRunning   StepStatus = "running"
	StepCompleted StepStatus = "completed"
	StepFailed    StepStatus = "failed"
)

// PlanStep is one agent-owned step of a proposed plan.
type PlanStep struct {
	Description      string            `json:"description"`
	Agent            string            `json:"agent"`
	RequiresApproval bool              `json:"requires_approval"`
	Inputs           map[string]string `json:"inputs,omitempty"`
	Status           StepStatus        `json:"status,omitempty"`
}

// Plan is the orchestrator's structured decomposition of a goal. Step
// order is execution order; step indices stay stable for the lifetime
// of one execution pass.
type Plan struct {
	Goal            string     `json:"goal"`
	Steps           []PlanStep `json:"steps"`
	EstimatedAgents []string   `json:"estimated_agents,omitempty"`
}

// ParsePlan tries to interpret an agent's terminal output as a Plan.
// The model may wrap the JSON in prose or a fenced code block, so the
// parser tries the raw text first and then the largest braced span.
// A result without a goal or without steps is not a plan.
func ParsePlan(text string) (*Plan, bool) {
	candidates := []string{strings.TrimSpace(text)}

	if fenced := extractFenced(text); fenced != "" {
		candidates = append(candidates, fenced)
	}
	if start, end := strings.Index(text, "{"), strings.LastIndex(text, "}"); start >= 0 && end > start {
		candidates = append(candidates, text[start:end+1])
	}

	for _, candidate := range candidates {
		var p Plan
		if err := json.Unmarshal([]byte(candidate), &p); err != nil {
			continue
		}
		if p.Goal == "" || len(p.Steps) == 0 {
			continue
		}
		if len(p.EstimatedAgents) == 0 {
			p.EstimatedAgents = distinctAgents(p.Steps)
		}
		return &p, true
	}
	return nil, false
}

func extractFenced(text string) string {
	for _, marker := range []string{"```json", "```"} {
		start := strings.Index(text, marker)
		if start < 0 {
			continue
		}
		rest := text[start+len(marker):]
		end := strings.Index(rest, "```")
		if end < 0 {
			continue
		}
		return strings.TrimSpace(rest[:end])
	}
	return ""
}

func distinctAgents(steps []PlanStep) []string {
	seen := make(map[string]bool)
	var agents []string
	for _, step := range steps {
		if step.Agent != "" && !seen[step.Agent] {
			seen[step.Agent] = true
			agents = append(agents, step.Agent)
		}
	}
	return agents
}

// JSON serializes the plan for persistence and the notification stream.
func (p *Plan) JSON() string {
	data, err := json.Marshal(p)
	if err != nil {
		return "{}"
	}
	return string(data)
}

// BuildExecutionPrompt turns an approved plan into the directive handed
// back to the orchestrator for the execution pass. Every step's agent
// and description appear verbatim.
func BuildExecutionPrompt(p *Plan, notes string) string {
	var b strings.Builder
	b.WriteString("Execute this approved plan.\n")
	fmt.Fprintf(&b, "Goal: %s\n", p.Goal)
	if notes != "" {
		fmt.Fprintf(&b, "Researcher notes: %s\n", notes)
	}
	b.WriteString("Steps:\n")
	for i, step := range p.Steps {
		fmt.Fprintf(&b, "%d. [%s] %s", i+1, step.Agent, step.Description)
		if step.RequiresApproval {
			b.WriteString(" (requires researcher approval before acting)")
		}
		b.WriteString("\n")
		for k, v := range step.Inputs {
			fmt.Fprintf(&b, "   - %s: %s\n", k, v)
		}
	}
	b.WriteString("Delegate each step to its agent in order and report a summary when done.")
	return b.String()
}
