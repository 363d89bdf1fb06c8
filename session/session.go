package session

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
)

// ToolCall is one tool invocation requested by the model.
type ToolCall struct {
	ToolCallID string                 `json:"tool_call_id"`
	Name       string                 `json:"name"`
	Args       map[string]interface{} `json:"args"`
}

// Usage holds the token counters reported by a model call.
type Usage struct {
	PromptTokens   int `json:"prompt_tokens"`
	ResponseTokens int `json:"response_tokens"`
	TotalTokens    int `json:"total_tokens"`
}

// Add accumulates other into u.
func (u *Usage) Add(other *Usage) {
	if other == nil {
		return
	}
	u.PromptTokens += other.PromptTokens
	u.ResponseTokens += other.ResponseTokens
	u.TotalTokens += other.TotalTokens
}

// Message is one entry in a conversation transcript.
type Message struct {
	Role      string     `json:"role"` // "user", "assistant", "tool", "system"
	Content   string     `json:"content"`
	ToolCalls []ToolCall `json:"tool_calls,omitempty"`
	Usage     *Usage     `json:"usage,omitempty"`
}

// Transcript is the persisted conversation history of one project.
type Transcript struct {
	ProjectID string    `json:"project_id"`
	Messages  []Message `json:"messages"`
	path      string
}

// New creates an empty transcript for a project.
func New(dataDir, projectID string) (*Transcript, error) {
	path, err := transcriptPath(dataDir, projectID)
	if err != nil {
		return nil, err
	}
	return &Transcript{
		ProjectID: projectID,
		Messages:  []Message{},
		path:      path,
	}, nil
}

// Load reads an existing transcript from disk. A missing file yields an
// empty transcript rather than an error, so a fresh project starts clean.
func Load(dataDir, projectID string) (*Transcript, error) {
	path, err := transcriptPath(dataDir, projectID)
	if err != nil {
		return nil, err
	}
	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return New(dataDir, projectID)
	}
	if err != nil {
		return nil, fmt.Errorf("could not read transcript %s: %w", path, err)
	}

	var t Transcript
	if err := json.Unmarshal(data, &t); err != nil {
		return nil, fmt.Errorf("could not parse transcript %s: %w", path, err)
	}
	t.path = path
	return &t, nil
}

// Save writes the transcript to disk.
func (t *Transcript) Save() error {
	data, err := json.MarshalIndent(t, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to serialize transcript: %w", err)
	}
	return os.WriteFile(t.path, data, 0644)
}

// Append adds a message to the transcript history.
func (t *Transcript) Append(msg Message) {
	t.Messages = append(t.Messages, msg)
}

func transcriptPath(dataDir, projectID string) (string, error) {
	dir := filepath.Join(dataDir, "transcripts")
	if err := os.MkdirAll(dir, 0755); err != nil {
		return "", fmt.Errorf("could not create transcript directory: %w", err)
	}
	return filepath.Join(dir, fmt.Sprintf("%s.json", projectID)), nil
}
