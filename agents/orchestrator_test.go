package agents

import (
	"context"
	"log/slog"
	"testing"

	"github.com/m4xw311/trialdesk/promptstore"
	"github.com/m4xw311/trialdesk/session"
	"github.com/m4xw311/trialdesk/tools"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// scriptedLLM returns canned responses in order, recording what it saw.
type scriptedLLM struct {
	responses []*session.Message
	calls     int
	seenTools [][]string
}

func (s *scriptedLLM) Chat(ctx context.Context, messages []session.Message, availableTools []tools.Tool) (*session.Message, error) {
	var names []string
	for _, t := range availableTools {
		names = append(names, t.Name())
	}
	s.seenTools = append(s.seenTools, names)
	resp := s.responses[s.calls]
	s.calls++
	return resp, nil
}

func testLogger() *slog.Logger {
	return slog.New(slog.DiscardHandler)
}

func testPrompts(t *testing.T) *promptstore.Store {
	t.Helper()
	store, err := promptstore.Open(t.TempDir())
	require.NoError(t, err)
	return store
}

func TestOrchestratorPlainTextAnswer(t *testing.T) {
	client := &scriptedLLM{responses: []*session.Message{
		{Role: "assistant", Content: "A site initiation visit typically takes one day.",
			Usage: &session.Usage{PromptTokens: 10, ResponseTokens: 5, TotalTokens: 15}},
	}}
	o := NewOrchestrator(client, t.TempDir(), testPrompts(t), testLogger())

	res, err := o.Run(context.Background(), Request{Prompt: "How long is an SIV?"})
	require.NoError(t, err)
	assert.Nil(t, res.Plan)
	assert.Contains(t, res.Text, "one day")
	assert.Equal(t, 15, res.Usage.TotalTokens)

	// The orchestrator always carries its delegation and researcher tools.
	require.NotEmpty(t, client.seenTools)
	assert.Contains(t, client.seenTools[0], "delegate_to_project_manager")
	assert.Contains(t, client.seenTools[0], "request_researcher_approval")
	assert.Contains(t, client.seenTools[0], "ask_researcher")
	assert.Contains(t, client.seenTools[0], "update_researcher")
}

func TestOrchestratorParsesPlanOutput(t *testing.T) {
	plan := samplePlan()
	client := &scriptedLLM{responses: []*session.Message{
		{Role: "assistant", Content: plan.JSON()},
	}}
	o := NewOrchestrator(client, t.TempDir(), testPrompts(t), testLogger())

	res, err := o.Run(context.Background(), Request{Prompt: "Prepare the initiation package"})
	require.NoError(t, err)
	require.NotNil(t, res.Plan)
	assert.Equal(t, plan.Goal, res.Plan.Goal)
	assert.Len(t, res.Plan.Steps, 3)
}

func TestApprovalToolRelaysDecision(t *testing.T) {
	client := &scriptedLLM{responses: []*session.Message{
		{Role: "assistant", ToolCalls: []session.ToolCall{{
			ToolCallID: "c1",
			Name:       "request_researcher_approval",
			Args:       map[string]interface{}{"action": "email the sponsor"},
		}}},
		{Role: "assistant", Content: "Done, the sponsor was notified."},
	}}
	o := NewOrchestrator(client, t.TempDir(), testPrompts(t), testLogger())

	var sawAction string
	res, err := o.Run(context.Background(), Request{
		Prompt: "notify the sponsor",
		Callbacks: Callbacks{
			RequestApproval: func(ctx context.Context, action string, details map[string]interface{}) (bool, string, error) {
				sawAction = action
				return true, "go ahead", nil
			},
		},
	})
	require.NoError(t, err)
	assert.Equal(t, "email the sponsor", sawAction)
	assert.Contains(t, res.Text, "notified")
}

func TestDelegationEmitsProgress(t *testing.T) {
	// Orchestrator delegates once; the sub-agent answers immediately.
	client := &scriptedLLM{responses: []*session.Message{
		{Role: "assistant", ToolCalls: []session.ToolCall{{
			ToolCallID: "c1",
			Name:       "delegate_to_document_maker",
			Args:       map[string]interface{}{"task": "draft the checklist"},
		}}},
		// This response answers the sub-agent's chat loop.
		{Role: "assistant", Content: "Checklist drafted.",
			Usage: &session.Usage{PromptTokens: 4, ResponseTokens: 4, TotalTokens: 8}},
		// Back in the orchestrator loop.
		{Role: "assistant", Content: "The checklist is ready.",
			Usage: &session.Usage{PromptTokens: 2, ResponseTokens: 2, TotalTokens: 4}},
	}}
	o := NewOrchestrator(client, t.TempDir(), testPrompts(t), testLogger())

	type progressEvent struct {
		agent  Kind
		status string
	}
	var events []progressEvent
	res, err := o.Run(context.Background(), Request{
		Prompt: "get the checklist done",
		Callbacks: Callbacks{
			Progress: func(agent Kind, status, detail string) {
				events = append(events, progressEvent{agent, status})
			},
		},
	})
	require.NoError(t, err)
	require.Len(t, events, 1)
	assert.Equal(t, KindDocumentMaker, events[0].agent)
	assert.Equal(t, ProgressDelegating, events[0].status)

	// Sub-agent usage folds into the run total.
	assert.Equal(t, 12, res.Usage.TotalTokens)
}

func TestChatLoopReportsToolErrors(t *testing.T) {
	client := &scriptedLLM{responses: []*session.Message{
		{Role: "assistant", ToolCalls: []session.ToolCall{{
			ToolCallID: "c1",
			Name:       "no_such_tool",
			Args:       map[string]interface{}{},
		}}},
		{Role: "assistant", Content: "understood"},
	}}

	registry := tools.NewRegistry()
	var usage session.Usage
	text, err := runChatLoop(context.Background(), client, KindOrchestrator,
		[]session.Message{{Role: "user", Content: "hi"}}, registry, &usage, testLogger())
	require.NoError(t, err)
	assert.Equal(t, "understood", text)
	assert.Equal(t, 2, client.calls)
}
