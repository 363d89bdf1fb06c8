package llm

import (
	"context"
	"fmt"

	"github.com/m4xw311/trialdesk/errors"
	"github.com/m4xw311/trialdesk/session"
	"github.com/m4xw311/trialdesk/tools"
)

// LLMClient is the interface for interacting with a Large Language Model.
type LLMClient interface {
	Chat(ctx context.Context, messages []session.Message, availableTools []tools.Tool) (*session.Message, error)
}

// New constructs the client for the configured provider.
func New(ctx context.Context, provider, model string) (LLMClient, error) {
	switch provider {
	case "anthropic":
		return NewAnthropicLLMClient(ctx, model)
	case "openai":
		return NewOpenAILLMClient(ctx, model)
	case "gemini":
		return NewGeminiLLMClient(ctx, model)
	case "bedrock":
		return NewBedrockLLMClient(ctx, model)
	case "mock":
		return &MockLLMClient{}, nil
	default:
		return nil, errors.New("unknown llm provider '%s'", provider)
	}
}

// MockLLMClient is a placeholder for testing without a provider.
type MockLLMClient struct{}

func (m *MockLLMClient) Chat(ctx context.Context, messages []session.Message, availableTools []tools.Tool) (*session.Message, error) {
	lastUserMessage := ""
	if len(messages) > 0 {
		lastUserMessage = messages[len(messages)-1].Content
	}
	return &session.Message{
		Role:    "assistant",
		Content: fmt.Sprintf("I am a mock LLM. You said: '%s'.", lastUserMessage),
		Usage:   &session.Usage{},
	}, nil
}
