// Package agents implements the orchestrating agent and the specialist
// sub-agents it delegates to. The orchestrator runs a chat loop against
// an LLM client with delegation and researcher-interaction tools; the
// sub-agents are synchronous runs within the same execution context.
package agents

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/m4xw311/trialdesk/errors"
	"github.com/m4xw311/trialdesk/llm"
	"github.com/m4xw311/trialdesk/session"
	"github.com/m4xw311/trialdesk/tools"
)

// Kind identifies an agent.
type Kind string

const (
	KindOrchestrator   Kind = "orchestrator"
	KindProjectManager Kind = "project_manager"
	KindDocumentMaker  Kind = "document_maker"
	KindEmailDrafter   Kind = "email_drafter"
)

// Callbacks are injected by the coordinator at launch. RequestApproval
// and AskQuestion suspend the run until the researcher responds;
// Progress is fire-and-forget.
type Callbacks struct {
	RequestApproval func(ctx context.Context, action string, details map[string]interface{}) (bool, string, error)
	AskQuestion     func(ctx context.Context, question string, options []string) (string, error)
	Progress        func(agent Kind, status, detail string)
}

func (c Callbacks) progress(agent Kind, status, detail string) {
	if c.Progress != nil {
		c.Progress(agent, status, detail)
	}
}

// Request is one orchestrator invocation.
type Request struct {
	Prompt    string
	History   []session.Message
	Tools     []tools.Tool
	Callbacks Callbacks
}

// Result is an agent run's terminal state: either a structured plan or
// free text, with accumulated token usage.
type Result struct {
	Text  string
	Plan  *Plan
	Usage session.Usage
}

// Status labels carried on progress events. The coordinator keys its
// plan-step cursor off ProgressDelegating, and relays the detail of a
// ProgressWorking event to the researcher as a chat message.
const (
	ProgressDelegating = "Delegating"
	ProgressWorking    = "Working"
)

// maxTurns bounds a chat loop so a confused model cannot spin forever.
const maxTurns = 30

// runChatLoop drives one agent's conversation with the model, executing
// tool calls until the model produces a final text answer.
func runChatLoop(ctx context.Context, client llm.LLMClient, kind Kind, messages []session.Message, registry *tools.Registry, usage *session.Usage, logger *slog.Logger) (string, error) {
	available := registry.All()

	for turn := 0; turn < maxTurns; turn++ {
		if err := ctx.Err(); err != nil {
			return "", err
		}

		resp, err := client.Chat(ctx, messages, available)
		if err != nil {
			return "", errors.Wrapf(err, "model call failed for %s", kind)
		}
		usage.Add(resp.Usage)

		if len(resp.ToolCalls) == 0 {
			return resp.Content, nil
		}

		messages = append(messages, *resp)
		for _, call := range resp.ToolCalls {
			tool, ok := registry.Get(call.Name)
			var result string
			if !ok {
				result = fmt.Sprintf("Error: tool '%s' is not available", call.Name)
			} else {
				logger.Debug("executing tool", "agent", kind, "tool", call.Name)
				out, err := tool.Execute(ctx, call.Args)
				if err != nil {
					if ctx.Err() != nil {
						return "", ctx.Err()
					}
					result = fmt.Sprintf("Error: %v", err)
				} else {
					result = out
				}
			}
			messages = append(messages, session.Message{
				Role:      "tool",
				Content:   result,
				ToolCalls: []session.ToolCall{call},
			})
		}
	}
	return "", errors.New("%s exceeded the maximum number of turns", kind)
}

func systemMessage(base, custom string) session.Message {
	content := base
	if custom != "" {
		content = base + "\n\nAdditional instructions from the researcher:\n" + custom
	}
	return session.Message{Role: "system", Content: content}
}
