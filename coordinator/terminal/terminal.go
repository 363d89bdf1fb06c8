// Package terminal is the interactive chat frontend. It renders
// coordinator events to stdout and feeds researcher input, including
// approval and question answers, back into the core.
package terminal

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"strings"
	"sync"

	"github.com/m4xw311/trialdesk/agents"
	"github.com/m4xw311/trialdesk/coordinator"
	"github.com/m4xw311/trialdesk/workspace"
)

// pendingKind tracks what the next line of input answers.
type pendingKind int

const (
	pendingNone pendingKind = iota
	pendingApproval
	pendingQuestion
	pendingPlan
)

// Terminal runs the REPL for one project.
type Terminal struct {
	coord      *coordinator.Coordinator
	workspaces *workspace.Manager
	project    string
	out        io.Writer

	mu      sync.Mutex
	pending pendingKind
	options []string
}

// New creates the terminal frontend for a project. Pass the returned
// Terminal as the coordinator's Notifier.
func New(workspaces *workspace.Manager, project string) *Terminal {
	return &Terminal{workspaces: workspaces, project: project, out: os.Stdout}
}

// Bind attaches the coordinator after construction (the coordinator
// needs the notifier at construction time, so binding is two-phase).
func (t *Terminal) Bind(c *coordinator.Coordinator) {
	t.coord = c
}

// Run starts the interactive session.
func (t *Terminal) Run(initialPrompt string) error {
	if initialPrompt != "" {
		t.coord.Submit(initialPrompt)
	}

	scanner := bufio.NewScanner(os.Stdin)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for {
		fmt.Fprint(t.out, "You: ")
		if !scanner.Scan() {
			break
		}
		if !t.handleLine(strings.TrimSpace(scanner.Text())) {
			break
		}
	}
	if err := scanner.Err(); err != nil {
		return err
	}
	t.coord.Stop()
	t.coord.Wait()
	return nil
}

// handleLine processes one line of input and reports whether the REPL
// should keep running.
func (t *Terminal) handleLine(input string) bool {
	switch input {
	case "":
		return true
	case "/quit", "/exit":
		return false
	case "/stop":
		t.coord.Stop()
		return true
	case "/stats":
		t.printStats()
		return true
	case "/docs":
		t.printDocuments()
		return true
	}
	t.dispatch(input)
	return true
}

// printStats shows the workspace file counts and total size.
func (t *Terminal) printStats() {
	stats, err := t.workspaces.Stats(t.project)
	if err != nil {
		fmt.Fprintf(t.out, "Could not read workspace stats: %v\n", err)
		return
	}
	fmt.Fprintf(t.out, "Workspace for %s: %d documents, %d drafts, %d exports, %d bytes total\n",
		t.project, stats.Documents, stats.Drafts, stats.Exports, stats.TotalSize)
}

// printDocuments lists every file in the workspace by category.
func (t *Terminal) printDocuments() {
	sections := []struct {
		label string
		list  func(string) ([]workspace.Document, error)
	}{
		{"Documents", t.workspaces.Documents},
		{"Drafts", t.workspaces.Drafts},
		{"Exports", t.workspaces.Exports},
	}
	empty := true
	for _, section := range sections {
		docs, err := section.list(t.project)
		if err != nil {
			fmt.Fprintf(t.out, "Could not list %s: %v\n", strings.ToLower(section.label), err)
			return
		}
		if len(docs) == 0 {
			continue
		}
		empty = false
		fmt.Fprintf(t.out, "%s:\n", section.label)
		for _, d := range docs {
			fmt.Fprintf(t.out, "  %s (%d bytes, %s)\n", d.Name, d.Size, d.Modified.Format("2006-01-02 15:04"))
		}
	}
	if empty {
		fmt.Fprintln(t.out, "The workspace is empty.")
	}
}

// dispatch routes a line of input to whatever is waiting for it: an
// outstanding approval, an outstanding question, a proposed plan, or
// the coordinator itself as a fresh prompt.
func (t *Terminal) dispatch(input string) {
	t.mu.Lock()
	kind := t.pending
	options := t.options
	t.pending = pendingNone
	t.options = nil
	t.mu.Unlock()

	switch kind {
	case pendingApproval:
		decision, notes := parseDecision(input)
		t.coord.Gate().SubmitApprovalResponse(decision, notes)
	case pendingQuestion:
		t.coord.Gate().SubmitQuestionResponse(resolveOption(input, options))
	case pendingPlan:
		decision, notes := parseDecision(input)
		if decision {
			t.coord.Approve(notes)
		} else {
			t.coord.Decline(notes)
		}
	default:
		t.coord.Submit(input)
	}
}

// parseDecision reads "y", "yes", "n" or "no", with everything after
// the first word treated as notes.
func parseDecision(input string) (bool, string) {
	fields := strings.Fields(input)
	if len(fields) == 0 {
		return false, ""
	}
	decision := strings.ToLower(fields[0]) == "y" || strings.ToLower(fields[0]) == "yes"
	return decision, strings.Join(fields[1:], " ")
}

// resolveOption maps a numeric answer onto the offered options, or
// passes the text through as a free-form answer.
func resolveOption(input string, options []string) string {
	if len(options) == 0 {
		return input
	}
	var idx int
	if _, err := fmt.Sscanf(input, "%d", &idx); err == nil && idx >= 1 && idx <= len(options) {
		return options[idx-1]
	}
	return input
}

// Notifier implementation. The coordinator calls these from its own
// goroutines; the terminal only writes, so no blocking occurs.

func (t *Terminal) Message(sender, text string) {
	fmt.Fprintf(t.out, "\n%s: %s\n", capitalize(sender), text)
}

func capitalize(s string) string {
	if s == "" {
		return s
	}
	return strings.ToUpper(s[:1]) + s[1:]
}

func (t *Terminal) ApprovalRequested(description string, details map[string]interface{}) {
	t.mu.Lock()
	t.pending = pendingApproval
	t.mu.Unlock()

	fmt.Fprintf(t.out, "\nApproval needed: %s\n", description)
	for k, v := range details {
		fmt.Fprintf(t.out, "  %s: %v\n", k, v)
	}
	fmt.Fprintln(t.out, "Approve? (y/n, anything after counts as notes)")
}

func (t *Terminal) QuestionAsked(text string, options []string) {
	t.mu.Lock()
	t.pending = pendingQuestion
	t.options = options
	t.mu.Unlock()

	fmt.Fprintf(t.out, "\nQuestion: %s\n", text)
	for i, option := range options {
		fmt.Fprintf(t.out, "  %d. %s\n", i+1, option)
	}
	if len(options) > 0 {
		fmt.Fprintln(t.out, "Answer with a number or free text.")
	}
}

func (t *Terminal) PlanUpdated(plan *agents.Plan) {
	// A proposal awaits a decision; the execution pass's plan update
	// does not.
	pendingDecision := t.coord.Tracker().HasProposed()
	t.mu.Lock()
	if pendingDecision {
		t.pending = pendingPlan
	}
	t.mu.Unlock()

	fmt.Fprintf(t.out, "\nPlan: %s\n", plan.Goal)
	for i, step := range plan.Steps {
		marker := " "
		if step.RequiresApproval {
			marker = "!"
		}
		fmt.Fprintf(t.out, "  %d.%s [%s] %s\n", i+1, marker, step.Agent, step.Description)
	}
	if pendingDecision {
		fmt.Fprintln(t.out, "Approve this plan? (y/n, anything after counts as notes)")
	}
}

func (t *Terminal) StepStatusChanged(index int, status agents.StepStatus) {
	fmt.Fprintf(t.out, "  step %d -> %s\n", index+1, status)
}

func (t *Terminal) StatusChanged(state coordinator.State, agentName string) {
	if state == coordinator.StateIdle {
		return
	}
	if agentName != "" {
		fmt.Fprintf(t.out, "[%s: %s]\n", state, agentName)
	}
}

func (t *Terminal) TaskChanged(description string) {}

func (t *Terminal) HistoryEntry(agent, action, status string) {}
