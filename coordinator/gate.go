package coordinator

import (
	"context"
	"sync"

	"github.com/m4xw311/trialdesk/errors"
)

// approvalDecision is the researcher's answer to one approval request.
type approvalDecision struct {
	approved bool
	notes    string
}

// ApprovalHooks let the coordinator tie gate requests to ledger records.
// Raised returns an identifier that Decided receives back when the
// researcher responds. Both are optional.
type ApprovalHooks struct {
	Raised  func(action string, details map[string]interface{}) string
	Decided func(id string, approved bool, notes string)
}

// Gate is the human-interaction gate: a pair of suspend/resume
// protocols that let a running agent block until the researcher,
// operating on the foreground, supplies an answer.
//
// The wait channel is created and registered under the mutex before the
// notification is emitted, so a response can never arrive before the
// wait exists. The channels are buffered (capacity 1): the foreground
// handler hands the answer off without blocking, and the waiting
// goroutine selects on the channel and its run context.
type Gate struct {
	notifier Notifier
	hooks    ApprovalHooks

	mu                sync.Mutex
	approvalWait      chan approvalDecision
	pendingApprovalID string
	questionWait      chan string
}

func NewGate(notifier Notifier, hooks ApprovalHooks) *Gate {
	return &Gate{notifier: notifier, hooks: hooks}
}

// RequestApproval suspends the calling execution until the researcher
// decides, returning the decision and their notes. Only one approval
// may be outstanding; a second concurrent request is a contract
// violation in the calling agent, not something the gate queues.
func (g *Gate) RequestApproval(ctx context.Context, action string, details map[string]interface{}) (bool, string, error) {
	g.mu.Lock()
	if g.approvalWait != nil {
		g.mu.Unlock()
		return false, "", errors.New("an approval request is already outstanding")
	}
	wait := make(chan approvalDecision, 1)
	g.approvalWait = wait
	if g.hooks.Raised != nil {
		g.pendingApprovalID = g.hooks.Raised(action, details)
	}
	// Emit while still holding the lock: the registration and the
	// notification are atomic from the responder's perspective.
	g.notifier.ApprovalRequested(action, details)
	g.mu.Unlock()

	select {
	case decision := <-wait:
		return decision.approved, decision.notes, nil
	case <-ctx.Done():
		g.clearApproval(wait)
		return false, "", ctx.Err()
	}
}

// SubmitApprovalResponse delivers the researcher's decision from the
// foreground. A call with no outstanding request is a no-op.
func (g *Gate) SubmitApprovalResponse(approved bool, notes string) {
	g.mu.Lock()
	wait := g.approvalWait
	id := g.pendingApprovalID
	g.approvalWait = nil
	g.pendingApprovalID = ""
	g.mu.Unlock()

	if wait == nil {
		return
	}
	if g.hooks.Decided != nil && id != "" {
		g.hooks.Decided(id, approved, notes)
	}
	wait <- approvalDecision{approved: approved, notes: notes}
}

// AskQuestion suspends the calling execution until the researcher
// answers, either with one of the options or free text.
func (g *Gate) AskQuestion(ctx context.Context, question string, options []string) (string, error) {
	g.mu.Lock()
	if g.questionWait != nil {
		g.mu.Unlock()
		return "", errors.New("a question is already outstanding")
	}
	wait := make(chan string, 1)
	g.questionWait = wait
	g.notifier.QuestionAsked(question, options)
	g.mu.Unlock()

	select {
	case answer := <-wait:
		return answer, nil
	case <-ctx.Done():
		g.clearQuestion(wait)
		return "", ctx.Err()
	}
}

// SubmitQuestionResponse delivers the researcher's answer from the
// foreground. A call with no outstanding question is a no-op.
func (g *Gate) SubmitQuestionResponse(answer string) {
	g.mu.Lock()
	wait := g.questionWait
	g.questionWait = nil
	g.mu.Unlock()

	if wait == nil {
		return
	}
	wait <- answer
}

// clearApproval drops the registration after a cancelled wait, but only
// if no response claimed it first.
func (g *Gate) clearApproval(wait chan approvalDecision) {
	g.mu.Lock()
	if g.approvalWait == wait {
		g.approvalWait = nil
		g.pendingApprovalID = ""
	}
	g.mu.Unlock()
}

func (g *Gate) clearQuestion(wait chan string) {
	g.mu.Lock()
	if g.questionWait == wait {
		g.questionWait = nil
	}
	g.mu.Unlock()
}
