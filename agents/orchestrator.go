package agents

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/m4xw311/trialdesk/errors"
	"github.com/m4xw311/trialdesk/llm"
	"github.com/m4xw311/trialdesk/promptstore"
	"github.com/m4xw311/trialdesk/session"
	"github.com/m4xw311/trialdesk/tools"
)

// Orchestrator is the top-level agent. It plans, asks the researcher for
// approvals and decisions through the injected callbacks, and delegates
// work to the specialist agents.
type Orchestrator struct {
	llm           llm.LLMClient
	workspacePath string
	prompts       *promptstore.Store
	logger        *slog.Logger
}

func NewOrchestrator(client llm.LLMClient, workspacePath string, prompts *promptstore.Store, logger *slog.Logger) *Orchestrator {
	return &Orchestrator{
		llm:           client,
		workspacePath: workspacePath,
		prompts:       prompts,
		logger:        logger.With("agent", KindOrchestrator),
	}
}

// Run drives one orchestrator invocation to its terminal state: a
// structured plan or a free-text answer.
func (o *Orchestrator) Run(ctx context.Context, req Request) (*Result, error) {
	var usage session.Usage

	registry := tools.NewRegistry(req.Tools...)
	for _, t := range o.delegationTools(req, &usage) {
		registry.Register(t)
	}
	for _, t := range o.researcherTools(req) {
		registry.Register(t)
	}

	messages := []session.Message{systemMessage(orchestratorInstructions, o.prompts.Get(string(KindOrchestrator)))}
	messages = append(messages, req.History...)
	messages = append(messages, session.Message{Role: "user", Content: req.Prompt})

	text, err := runChatLoop(ctx, o.llm, KindOrchestrator, messages, registry, &usage, o.logger)
	if err != nil {
		return nil, err
	}

	result := &Result{Text: text, Usage: usage}
	if plan, ok := ParsePlan(text); ok {
		result.Plan = plan
	}
	return result, nil
}

// delegationTools builds the delegate_to_* tools. Each one emits a
// "Delegating" progress event before running its sub-agent
// synchronously, and folds the sub-agent's token usage into the run's.
func (o *Orchestrator) delegationTools(req Request, usage *session.Usage) []tools.Tool {
	taskSchema := map[string]interface{}{
		"type": "object",
		"properties": map[string]interface{}{
			"task": map[string]interface{}{"type": "string", "description": "Complete description of the delegated task, including any inputs the agent needs"},
		},
		"required": []string{"task"},
	}

	delegate := func(kind Kind, description string, run func(ctx context.Context, task string) (string, session.Usage, error)) tools.Tool {
		return &tools.Func{
			ToolName:        fmt.Sprintf("delegate_to_%s", kind),
			ToolDescription: description,
			ToolSchema:      taskSchema,
			Fn: func(ctx context.Context, args map[string]interface{}) (string, error) {
				task, _ := args["task"].(string)
				if task == "" {
					return "", errors.New("missing 'task' argument")
				}
				req.Callbacks.progress(kind, ProgressDelegating, task)
				text, subUsage, err := run(ctx, task)
				usage.Add(&subUsage)
				if err != nil {
					return "", errors.Wrapf(err, "%s failed", kind)
				}
				return text, nil
			},
		}
	}

	pm := NewProjectManager(o.llm, o.workspacePath, o.prompts.Get(string(KindProjectManager)), o.logger)
	dm := NewDocumentMaker(o.llm, o.prompts.Get(string(KindDocumentMaker)), o.logger)
	ed := NewEmailDrafter(o.llm, o.workspacePath, o.prompts.Get(string(KindEmailDrafter)), o.logger)

	return []tools.Tool{
		delegate(KindProjectManager,
			"Delegates cost and timeline estimation for a trial activity to the project manager agent.",
			func(ctx context.Context, task string) (string, session.Usage, error) {
				return pm.Run(ctx, task, req.Tools)
			}),
		delegate(KindDocumentMaker,
			"Delegates drafting of a clinical-research document to the document drafter agent.",
			func(ctx context.Context, task string) (string, session.Usage, error) {
				return dm.Run(ctx, task, req.Tools)
			}),
		delegate(KindEmailDrafter,
			"Delegates drafting of a stakeholder email to the email drafter agent.",
			func(ctx context.Context, task string) (string, session.Usage, error) {
				return ed.Run(ctx, task, req.Tools)
			}),
	}
}

// researcherTools expose the human-interaction gate and the progress
// stream to the model.
func (o *Orchestrator) researcherTools(req Request) []tools.Tool {
	return []tools.Tool{
		&tools.Func{
			ToolName:        "request_researcher_approval",
			ToolDescription: "Asks the researcher to approve or deny a consequential action before you take it. Blocks until they decide. Args: action (string), details (object, optional).",
			ToolSchema: map[string]interface{}{
				"type": "object",
				"properties": map[string]interface{}{
					"action":  map[string]interface{}{"type": "string", "description": "What you want to do, in one sentence"},
					"details": map[string]interface{}{"type": "object", "description": "Structured context for the decision"},
				},
				"required": []string{"action"},
			},
			Fn: func(ctx context.Context, args map[string]interface{}) (string, error) {
				if req.Callbacks.RequestApproval == nil {
					return "", errors.New("approval requests are not available in this run")
				}
				action, _ := args["action"].(string)
				if action == "" {
					return "", errors.New("missing 'action' argument")
				}
				details, _ := args["details"].(map[string]interface{})
				approved, notes, err := req.Callbacks.RequestApproval(ctx, action, details)
				if err != nil {
					return "", err
				}
				answer := "The researcher DENIED the action."
				if approved {
					answer = "The researcher APPROVED the action."
				}
				if notes != "" {
					answer += " Notes: " + notes
				}
				return answer, nil
			},
		},
		&tools.Func{
			ToolName:        "ask_researcher",
			ToolDescription: "Asks the researcher a question and blocks until they answer. Provide options for a multiple-choice question, or none for free text. Args: question (string), options (array of strings, optional).",
			ToolSchema: map[string]interface{}{
				"type": "object",
				"properties": map[string]interface{}{
					"question": map[string]interface{}{"type": "string"},
					"options":  map[string]interface{}{"type": "array", "items": map[string]interface{}{"type": "string"}},
				},
				"required": []string{"question"},
			},
			Fn: func(ctx context.Context, args map[string]interface{}) (string, error) {
				if req.Callbacks.AskQuestion == nil {
					return "", errors.New("questions are not available in this run")
				}
				question, _ := args["question"].(string)
				if question == "" {
					return "", errors.New("missing 'question' argument")
				}
				var options []string
				if raw, ok := args["options"].([]interface{}); ok {
					for _, o := range raw {
						if s, ok := o.(string); ok {
							options = append(options, s)
						}
					}
				}
				answer, err := req.Callbacks.AskQuestion(ctx, question, options)
				if err != nil {
					return "", err
				}
				return "The researcher answered: " + answer, nil
			},
		},
		&tools.Func{
			ToolName:        "update_researcher",
			ToolDescription: "Sends a short progress update to the researcher without waiting for a reply. Args: message (string).",
			ToolSchema: map[string]interface{}{
				"type": "object",
				"properties": map[string]interface{}{
					"message": map[string]interface{}{"type": "string"},
				},
				"required": []string{"message"},
			},
			Fn: func(ctx context.Context, args map[string]interface{}) (string, error) {
				message, _ := args["message"].(string)
				if message == "" {
					return "", errors.New("missing 'message' argument")
				}
				req.Callbacks.progress(KindOrchestrator, ProgressWorking, message)
				return "Update delivered.", nil
			},
		},
	}
}
