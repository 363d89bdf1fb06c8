package agents

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/m4xw311/trialdesk/errors"
	"github.com/m4xw311/trialdesk/llm"
	"github.com/m4xw311/trialdesk/session"
	"github.com/m4xw311/trialdesk/tools"
)

// EmailDrafter writes stakeholder emails into the workspace drafts
// directory. It never sends anything; email integration is an absent
// extension point.
type EmailDrafter struct {
	llm           llm.LLMClient
	workspacePath string
	custom        string
	logger        *slog.Logger
}

func NewEmailDrafter(client llm.LLMClient, workspacePath, customInstructions string, logger *slog.Logger) *EmailDrafter {
	return &EmailDrafter{
		llm:           client,
		workspacePath: workspacePath,
		custom:        customInstructions,
		logger:        logger.With("agent", KindEmailDrafter),
	}
}

// Run executes one delegated drafting task synchronously.
func (e *EmailDrafter) Run(ctx context.Context, task string, shared []tools.Tool) (string, session.Usage, error) {
	registry := tools.NewRegistry(shared...)
	registry.Register(e.saveDraftTool())

	messages := []session.Message{
		systemMessage(emailDrafterInstructions, e.custom),
		{Role: "user", Content: task},
	}

	var usage session.Usage
	text, err := runChatLoop(ctx, e.llm, KindEmailDrafter, messages, registry, &usage, e.logger)
	return text, usage, err
}

func (e *EmailDrafter) saveDraftTool() tools.Tool {
	return &tools.Func{
		ToolName:        "save_email_draft",
		ToolDescription: "Saves an email draft for the researcher to review and send. Args: subject (string), body (string), recipients (string, optional).",
		ToolSchema: map[string]interface{}{
			"type": "object",
			"properties": map[string]interface{}{
				"subject":    map[string]interface{}{"type": "string"},
				"body":       map[string]interface{}{"type": "string"},
				"recipients": map[string]interface{}{"type": "string"},
			},
			"required": []string{"subject", "body"},
		},
		Fn: func(ctx context.Context, args map[string]interface{}) (string, error) {
			subject, _ := args["subject"].(string)
			body, _ := args["body"].(string)
			if subject == "" || body == "" {
				return "", errors.New("missing 'subject' or 'body' argument")
			}
			recipients, _ := args["recipients"].(string)

			var b strings.Builder
			if recipients != "" {
				fmt.Fprintf(&b, "To: %s\n", recipients)
			}
			fmt.Fprintf(&b, "Subject: %s\n\n%s\n", subject, body)

			draftsDir := filepath.Join(e.workspacePath, "drafts")
			if err := os.MkdirAll(draftsDir, 0755); err != nil {
				return "", errors.Wrapf(err, "failed to create drafts directory")
			}
			name := fmt.Sprintf("%s_%s.txt", draftFileName(subject), time.Now().Format("2006-01-02_15-04-05"))
			path := filepath.Join(draftsDir, name)
			if err := os.WriteFile(path, []byte(b.String()), 0644); err != nil {
				return "", errors.Wrapf(err, "failed to save email draft")
			}
			return fmt.Sprintf("Saved draft '%s' as %s", subject, name), nil
		},
	}
}

func draftFileName(subject string) string {
	out := make([]rune, 0, len(subject))
	for _, r := range subject {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9':
			out = append(out, r)
		case r == ' ', r == '-', r == '_':
			out = append(out, '_')
		}
	}
	if len(out) == 0 {
		return "draft"
	}
	if len(out) > 40 {
		out = out[:40]
	}
	return string(out)
}
