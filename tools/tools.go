package tools

import (
	"context"
	"sort"

	"github.com/bmatcuk/doublestar/v4"
	"github.com/m4xw311/trialdesk/errors"
)

// Tool defines the interface for any action an agent can take.
type Tool interface {
	Name() string
	Description() string
	// Schema returns the JSON schema describing the tool's arguments, or
	// nil for tools that take none.
	Schema() map[string]interface{}
	Execute(ctx context.Context, args map[string]interface{}) (string, error)
}

// Func adapts a plain function into a Tool. The coordinator uses it for
// the delegation and researcher-interaction tools it hands the orchestrator.
type Func struct {
	ToolName        string
	ToolDescription string
	ToolSchema      map[string]interface{}
	Fn              func(ctx context.Context, args map[string]interface{}) (string, error)
}

func (f *Func) Name() string                   { return f.ToolName }
func (f *Func) Description() string            { return f.ToolDescription }
func (f *Func) Schema() map[string]interface{} { return f.ToolSchema }
func (f *Func) Execute(ctx context.Context, args map[string]interface{}) (string, error) {
	return f.Fn(ctx, args)
}

// Registry holds the tools available to one agent run.
type Registry struct {
	tools map[string]Tool
}

func NewRegistry(ts ...Tool) *Registry {
	r := &Registry{tools: make(map[string]Tool)}
	for _, t := range ts {
		r.Register(t)
	}
	return r
}

func (r *Registry) Register(t Tool) {
	r.tools[t.Name()] = t
}

func (r *Registry) Get(name string) (Tool, bool) {
	t, ok := r.tools[name]
	return t, ok
}

// All returns every registered tool in name order, for stable prompts.
func (r *Registry) All() []Tool {
	names := make([]string, 0, len(r.tools))
	for name := range r.tools {
		names = append(names, name)
	}
	sort.Strings(names)
	ts := make([]Tool, 0, len(names))
	for _, name := range names {
		ts = append(ts, r.tools[name])
	}
	return ts
}

// isPathRestricted checks if a path matches any of the glob patterns.
func isPathRestricted(path string, patterns []string) (bool, error) {
	for _, pattern := range patterns {
		match, err := doublestar.PathMatch(pattern, path)
		if err != nil {
			return false, errors.Wrapf(err, "invalid glob pattern '%s'", pattern)
		}
		if match {
			return true, nil
		}
	}
	return false, nil
}
