package agents

import (
	"context"
	"fmt"
	"log/slog"
	"path/filepath"

	"github.com/m4xw311/trialdesk/errors"
	"github.com/m4xw311/trialdesk/exporter"
	"github.com/m4xw311/trialdesk/llm"
	"github.com/m4xw311/trialdesk/session"
	"github.com/m4xw311/trialdesk/tools"
)

// ProjectManager estimates costs and timelines for trial activities and
// exports its estimates as CSV files.
type ProjectManager struct {
	llm           llm.LLMClient
	workspacePath string
	custom        string
	logger        *slog.Logger
}

func NewProjectManager(client llm.LLMClient, workspacePath, customInstructions string, logger *slog.Logger) *ProjectManager {
	return &ProjectManager{
		llm:           client,
		workspacePath: workspacePath,
		custom:        customInstructions,
		logger:        logger.With("agent", KindProjectManager),
	}
}

// Run executes one delegated task synchronously and returns the agent's
// text answer with its token usage.
func (p *ProjectManager) Run(ctx context.Context, task string, shared []tools.Tool) (string, session.Usage, error) {
	registry := tools.NewRegistry(shared...)
	registry.Register(p.exportTool())

	messages := []session.Message{
		systemMessage(projectManagerInstructions, p.custom),
		{Role: "user", Content: task},
	}

	var usage session.Usage
	text, err := runChatLoop(ctx, p.llm, KindProjectManager, messages, registry, &usage, p.logger)
	return text, usage, err
}

func (p *ProjectManager) exportTool() tools.Tool {
	return &tools.Func{
		ToolName:        "export_cost_estimate",
		ToolDescription: "Saves a cost estimate as a CSV file in the project's exports directory. Args: title (string), items (array of {category, description, quantity, unit_cost}).",
		ToolSchema: map[string]interface{}{
			"type": "object",
			"properties": map[string]interface{}{
				"title": map[string]interface{}{"type": "string"},
				"items": map[string]interface{}{
					"type": "array",
					"items": map[string]interface{}{
						"type": "object",
						"properties": map[string]interface{}{
							"category":    map[string]interface{}{"type": "string", "description": "material, labor, regulatory or other"},
							"description": map[string]interface{}{"type": "string"},
							"quantity":    map[string]interface{}{"type": "number"},
							"unit_cost":   map[string]interface{}{"type": "number"},
						},
					},
				},
			},
			"required": []string{"title", "items"},
		},
		Fn: func(ctx context.Context, args map[string]interface{}) (string, error) {
			est, err := parseCostEstimate(args)
			if err != nil {
				return "", err
			}
			exportsDir := filepath.Join(p.workspacePath, "exports")
			path, err := exporter.ExportCostEstimate(exportsDir, *est)
			if err != nil {
				return "", err
			}
			return fmt.Sprintf("Saved cost estimate (%d items, total $%.2f) to %s",
				len(est.Items), est.GrandTotal(), filepath.Base(path)), nil
		},
	}
}

func parseCostEstimate(args map[string]interface{}) (*exporter.CostEstimate, error) {
	title, _ := args["title"].(string)
	if title == "" {
		return nil, errors.New("missing 'title' argument")
	}
	rawItems, ok := args["items"].([]interface{})
	if !ok || len(rawItems) == 0 {
		return nil, errors.New("missing or empty 'items' argument")
	}

	est := &exporter.CostEstimate{Title: title}
	for i, raw := range rawItems {
		m, ok := raw.(map[string]interface{})
		if !ok {
			return nil, errors.New("item %d is not an object", i)
		}
		item := exporter.CostItem{}
		item.Category, _ = m["category"].(string)
		item.Description, _ = m["description"].(string)
		if v, ok := m["quantity"].(float64); ok {
			item.Quantity = v
		}
		if v, ok := m["unit_cost"].(float64); ok {
			item.UnitCost = v
		}
		est.Items = append(est.Items, item)
	}
	return est, nil
}
