package agents

import (
	"context"
	"log/slog"

	"github.com/m4xw311/trialdesk/llm"
	"github.com/m4xw311/trialdesk/session"
	"github.com/m4xw311/trialdesk/tools"
)

// DocumentMaker drafts clinical-research documents into the workspace.
type DocumentMaker struct {
	llm    llm.LLMClient
	custom string
	logger *slog.Logger
}

func NewDocumentMaker(client llm.LLMClient, customInstructions string, logger *slog.Logger) *DocumentMaker {
	return &DocumentMaker{
		llm:    client,
		custom: customInstructions,
		logger: logger.With("agent", KindDocumentMaker),
	}
}

// Run executes one delegated drafting task synchronously. The shared
// tools must include the workspace file tools so the agent can save its
// output.
func (d *DocumentMaker) Run(ctx context.Context, task string, shared []tools.Tool) (string, session.Usage, error) {
	registry := tools.NewRegistry(shared...)

	messages := []session.Message{
		systemMessage(documentMakerInstructions, d.custom),
		{Role: "user", Content: task},
	}

	var usage session.Usage
	text, err := runChatLoop(ctx, d.llm, KindDocumentMaker, messages, registry, &usage, d.logger)
	return text, usage, err
}
