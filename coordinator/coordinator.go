// Package coordinator is the agent coordination core: it drives one
// orchestrator run at a time on a background goroutine, exposes the
// human-interaction gate, tracks plan execution state and records an
// auditable run history in the ledger.
package coordinator

import (
	"context"
	"log/slog"
	"sync"

	"github.com/m4xw311/trialdesk/agents"
	"github.com/m4xw311/trialdesk/errors"
	"github.com/m4xw311/trialdesk/ledger"
	"github.com/m4xw311/trialdesk/session"
	"github.com/m4xw311/trialdesk/tools"
)

// Capability is the opaque orchestrating-agent capability the driver
// launches. Its terminal state is either a structured plan or free
// text; it may return an error.
type Capability interface {
	Run(ctx context.Context, req agents.Request) (*agents.Result, error)
}

// ToolProvisioner supplies the tool connection set for a run and can be
// reset after a provisioning-caused failure.
type ToolProvisioner interface {
	Provision(ctx context.Context, workspacePath string) ([]tools.Tool, error)
	Reset()
}

// Options configures a Coordinator. Every field is required except
// FallbackTools, Transcript and Logger.
type Options struct {
	Store       *ledger.Store
	Notifier    Notifier
	Provisioner ToolProvisioner
	Agent       Capability
	Project     *ledger.Project
	// FallbackTools are handed to the agent when provisioning fails or a
	// run is retried after a provisioning-classified failure, so the
	// document workflows keep a filesystem even without the external
	// servers.
	FallbackTools []tools.Tool
	Transcript    *session.Transcript
	Logger        *slog.Logger
}

// Coordinator is the agent run driver. One run may be active at a time;
// a submission while running is rejected with a benign notice. All
// driver-state mutations are serialized through one mutex.
type Coordinator struct {
	store       *ledger.Store
	notifier    Notifier
	provisioner ToolProvisioner
	agent       Capability
	project     *ledger.Project
	fallback    []tools.Tool
	transcript  *session.Transcript
	logger      *slog.Logger

	gate    *Gate
	tracker *Tracker

	mu          sync.Mutex
	state       State
	cancel      context.CancelFunc
	activeRunID string
	wg          sync.WaitGroup
}

func New(opts Options) *Coordinator {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	c := &Coordinator{
		store:       opts.Store,
		notifier:    opts.Notifier,
		provisioner: opts.Provisioner,
		agent:       opts.Agent,
		project:     opts.Project,
		fallback:    opts.FallbackTools,
		transcript:  opts.Transcript,
		logger:      logger.With("component", "coordinator"),
		state:       StateIdle,
	}
	c.gate = NewGate(opts.Notifier, ApprovalHooks{
		Raised:  c.recordApproval,
		Decided: c.decideApproval,
	})
	c.tracker = NewTracker(opts.Notifier)
	return c
}

// Gate returns the human-interaction gate so frontends can deliver
// approval and question responses.
func (c *Coordinator) Gate() *Gate { return c.gate }

// Tracker returns the plan state tracker.
func (c *Coordinator) Tracker() *Tracker { return c.tracker }

// State returns the driver state.
func (c *Coordinator) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// Submit starts a run for a researcher prompt. It returns immediately;
// the run proceeds on a background goroutine. Submitting while a run is
// active is a benign reject: a notice is emitted, no ledger record is
// created and no second execution context is launched.
func (c *Coordinator) Submit(prompt string) {
	c.launch(prompt, false)
}

// Approve consumes the proposed plan and triggers exactly one
// re-execution run whose prompt embeds the plan goal and every step.
func (c *Coordinator) Approve(notes string) {
	plan := c.tracker.ConsumeProposed()
	if plan == nil {
		c.notifier.Message("system", "There is no plan waiting for approval.")
		return
	}
	c.tracker.BeginExecution(plan)
	c.notifier.HistoryEntry("researcher", "approved plan: "+plan.Goal, "approved")
	c.launch(agents.BuildExecutionPrompt(plan, notes), true)
}

// Decline consumes the proposed plan with no further execution.
func (c *Coordinator) Decline(notes string) {
	plan := c.tracker.ConsumeProposed()
	if plan == nil {
		c.notifier.Message("system", "There is no plan waiting for approval.")
		return
	}
	text := "Understood, I won't proceed with that plan."
	if notes != "" {
		text += " Noted: " + notes
	}
	c.notifier.Message("assistant", text)
	c.notifier.HistoryEntry("researcher", "declined plan: "+plan.Goal, "declined")
}

// Stop hard-cancels the active run and returns the driver to idle. Any
// outstanding gate wait is abandoned. The aborted run emits no
// completion or failure notification beyond the idle status change.
func (c *Coordinator) Stop() {
	c.mu.Lock()
	cancel := c.cancel
	c.mu.Unlock()
	if cancel != nil {
		cancel()
	}
}

// Wait blocks until no run is active. Used for orderly shutdown before
// closing the ledger.
func (c *Coordinator) Wait() {
	c.wg.Wait()
}

func (c *Coordinator) launch(prompt string, execution bool) {
	c.mu.Lock()
	if c.state != StateIdle {
		c.mu.Unlock()
		c.notifier.Message("system", "The assistant is still working on the previous request. Stop it first or wait for it to finish.")
		return
	}
	ctx, cancel := context.WithCancel(context.Background())
	c.state = StateLaunching
	c.cancel = cancel
	c.wg.Add(1)
	c.mu.Unlock()

	c.notifier.StatusChanged(StateLaunching, string(agents.KindOrchestrator))
	c.notifier.TaskChanged(truncate(prompt, 120))

	go c.run(ctx, cancel, prompt, execution)
}

func (c *Coordinator) run(ctx context.Context, cancel context.CancelFunc, prompt string, execution bool) {
	defer c.wg.Done()
	defer cancel()
	defer func() {
		c.mu.Lock()
		c.state = StateIdle
		c.cancel = nil
		c.activeRunID = ""
		c.mu.Unlock()
		c.notifier.StatusChanged(StateIdle, "")
	}()

	toolList := c.provisionTools(ctx)
	if ctx.Err() != nil {
		return
	}

	runID, err := c.store.BeginRun(c.project.ID, string(agents.KindOrchestrator), prompt)
	if err != nil {
		c.logger.Error("ledger begin failed", "error", err)
		c.notifier.Message("system", "Could not record the run in the ledger: "+err.Error())
		return
	}

	c.mu.Lock()
	c.state = StateRunning
	c.activeRunID = runID
	c.mu.Unlock()
	c.notifier.StatusChanged(StateRunning, string(agents.KindOrchestrator))

	req := agents.Request{
		Prompt:  prompt,
		History: c.history(),
		Tools:   toolList,
		Callbacks: agents.Callbacks{
			RequestApproval: c.gate.RequestApproval,
			AskQuestion:     c.gate.AskQuestion,
			Progress:        c.onProgress,
		},
	}

	res, runErr := c.agent.Run(ctx, req)

	// A provisioning-classified failure gets one retry on the same
	// ledger record, with the provisioned servers swapped for the local
	// fallback tools; visible to the researcher only through the
	// degradation notice.
	if runErr != nil && ctx.Err() == nil && errors.Classify(runErr) == errors.KindProvisioning {
		c.logger.Warn("provisioning failure, retrying with fallback tools", "error", runErr)
		c.notifier.Message("system", errors.UserMessage(runErr))
		c.provisioner.Reset()
		c.notifier.TaskChanged("Retrying without auxiliary tools")
		req.Tools = c.fallback
		res, runErr = c.agent.Run(ctx, req)
	}

	if ctx.Err() != nil {
		// Stopped by the researcher: record the abort in the ledger but
		// emit nothing beyond the idle status change.
		if err := c.store.FailRun(runID, "stopped by researcher"); err != nil {
			c.logger.Error("ledger fail write after stop failed", "error", err)
		}
		c.tracker.OnRunFailed()
		return
	}

	if runErr != nil {
		c.finishFailed(runID, prompt, runErr)
		return
	}
	c.finishCompleted(runID, prompt, res)
}

// provisionTools builds the tool connection set, degrading to the local
// fallback tools when provisioning fails. Failures here follow the same
// policy as in-run provisioning failures: notify, reset, continue on
// the fallback.
func (c *Coordinator) provisionTools(ctx context.Context) []tools.Tool {
	provisioned, err := c.provisioner.Provision(ctx, c.project.WorkspacePath)
	if err != nil {
		if ctx.Err() != nil {
			return nil
		}
		c.logger.Warn("tool provisioning failed", "error", err)
		c.notifier.Message("system", errors.UserMessage(err))
		c.provisioner.Reset()
		return c.fallback
	}
	return provisioned
}

func (c *Coordinator) finishFailed(runID, prompt string, runErr error) {
	// The full multi-cause diagnostic goes to the ledger; the chat
	// stream gets the friendlier rewrite. Ledger write happens before
	// the notification so the audit trail matches what the researcher
	// saw.
	if err := c.store.FailRun(runID, errors.Diagnostic(runErr)); err != nil {
		c.logger.Error("ledger fail write failed", "error", err)
	}
	c.tracker.OnRunFailed()
	c.notifier.Message("system", errors.UserMessage(runErr))
	c.notifier.HistoryEntry(string(agents.KindOrchestrator), truncate(prompt, 80), ledger.StatusFailed)
}

func (c *Coordinator) finishCompleted(runID, prompt string, res *agents.Result) {
	output := res.Text
	if res.Plan != nil {
		output = res.Plan.JSON()
	}
	if err := c.store.CompleteRun(runID, output, &res.Usage); err != nil {
		c.logger.Error("ledger complete write failed", "error", err)
		c.notifier.Message("system", "The run finished but could not be recorded: "+err.Error())
		c.notifier.HistoryEntry(string(agents.KindOrchestrator), truncate(prompt, 80), ledger.StatusFailed)
		return
	}

	if res.Plan != nil {
		// The terminal output is a new proposal, even if it arrived
		// during an execution pass: it replaces the previous plan and is
		// never treated as execution progress.
		c.tracker.OnRunCompleted(false)
		c.tracker.SetProposed(res.Plan)
		c.notifier.Message("assistant", "I've prepared a plan for your review. Approve it to proceed or decline it.")
	} else {
		c.tracker.OnRunCompleted(true)
		c.notifier.Message("assistant", res.Text)
	}
	c.notifier.HistoryEntry(string(agents.KindOrchestrator), truncate(prompt, 80), ledger.StatusCompleted)

	c.appendTranscript(prompt, res)
}

func (c *Coordinator) onProgress(agent agents.Kind, status, detail string) {
	c.notifier.StatusChanged(StateRunning, string(agent))
	if detail != "" {
		c.notifier.TaskChanged(truncate(detail, 120))
	}
	if status == agents.ProgressDelegating {
		c.tracker.OnDelegationObserved(string(agent))
		c.notifier.HistoryEntry(string(agent), truncate(detail, 80), "delegated")
	}
	if status == agents.ProgressWorking && detail != "" {
		c.notifier.Message("assistant", detail)
	}
}

func (c *Coordinator) recordApproval(action string, details map[string]interface{}) string {
	c.mu.Lock()
	runID := c.activeRunID
	c.mu.Unlock()
	if runID == "" {
		return ""
	}
	id, err := c.store.RecordApproval(runID, action, details)
	if err != nil {
		c.logger.Error("failed to record approval", "error", err)
		return ""
	}
	return id
}

func (c *Coordinator) decideApproval(id string, approved bool, notes string) {
	if err := c.store.DecideApproval(id, approved, notes); err != nil {
		c.logger.Error("failed to record approval decision", "error", err)
	}
}

// history returns the persisted conversation for context, capped to the
// most recent exchanges.
func (c *Coordinator) history() []session.Message {
	if c.transcript == nil {
		return nil
	}
	const maxHistory = 20
	msgs := c.transcript.Messages
	if len(msgs) > maxHistory {
		msgs = msgs[len(msgs)-maxHistory:]
	}
	out := make([]session.Message, 0, len(msgs))
	for _, m := range msgs {
		if m.Role == "user" || m.Role == "assistant" {
			out = append(out, session.Message{Role: m.Role, Content: m.Content})
		}
	}
	return out
}

func (c *Coordinator) appendTranscript(prompt string, res *agents.Result) {
	if c.transcript == nil {
		return
	}
	c.transcript.Append(session.Message{Role: "user", Content: prompt})
	c.transcript.Append(session.Message{Role: "assistant", Content: res.Text, Usage: &res.Usage})
	if err := c.transcript.Save(); err != nil {
		c.logger.Warn("failed to save transcript", "error", err)
	}
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n-3] + "..."
}
