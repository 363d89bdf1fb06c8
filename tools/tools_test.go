package tools

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/m4xw311/trialdesk/config"
)

func TestRegistryOrderedAll(t *testing.T) {
	r := NewRegistry(
		&Func{ToolName: "zeta", Fn: func(ctx context.Context, args map[string]interface{}) (string, error) { return "", nil }},
		&Func{ToolName: "alpha", Fn: func(ctx context.Context, args map[string]interface{}) (string, error) { return "", nil }},
	)

	all := r.All()
	if len(all) != 2 {
		t.Fatalf("expected 2 tools, got %d", len(all))
	}
	if all[0].Name() != "alpha" || all[1].Name() != "zeta" {
		t.Errorf("tools not in name order: %s, %s", all[0].Name(), all[1].Name())
	}

	if _, ok := r.Get("alpha"); !ok {
		t.Error("expected to find registered tool 'alpha'")
	}
	if _, ok := r.Get("missing"); ok {
		t.Error("did not expect to find unregistered tool")
	}
}

func TestResolveWorkspacePathConfinement(t *testing.T) {
	root := t.TempDir()

	if _, _, err := resolveWorkspacePath(root, "docs/protocol.md"); err != nil {
		t.Errorf("relative path inside workspace should resolve: %v", err)
	}
	if _, _, err := resolveWorkspacePath(root, "../outside.txt"); err == nil {
		t.Error("expected escape via .. to be denied")
	}
	if _, _, err := resolveWorkspacePath(root, "/etc/passwd"); err == nil {
		t.Error("expected absolute path outside workspace to be denied")
	}
}

func TestReadWriteFileTools(t *testing.T) {
	root := t.TempDir()
	access := &config.FilesystemAccess{
		Hidden:   []string{".trialdesk", ".trialdesk/**"},
		ReadOnly: []string{"templates/**"},
	}

	write := &WriteFileTool{root: root, fsAccess: access}
	read := &ReadFileTool{root: root, fsAccess: access}
	ctx := context.Background()

	if _, err := write.Execute(ctx, map[string]interface{}{
		"path":    "documents/summary.md",
		"content": "# Summary",
	}); err != nil {
		t.Fatalf("write failed: %v", err)
	}

	out, err := read.Execute(ctx, map[string]interface{}{"path": "documents/summary.md"})
	if err != nil {
		t.Fatalf("read failed: %v", err)
	}
	if out != "# Summary" {
		t.Errorf("unexpected content: %q", out)
	}

	if _, err := write.Execute(ctx, map[string]interface{}{
		"path":    ".trialdesk/state.json",
		"content": "{}",
	}); err == nil {
		t.Error("expected write to hidden path to be denied")
	}
	if _, err := write.Execute(ctx, map[string]interface{}{
		"path":    "templates/consent.md",
		"content": "x",
	}); err == nil {
		t.Error("expected write to read-only path to be denied")
	}
}

func TestListDirectoryToolSkipsHidden(t *testing.T) {
	root := t.TempDir()
	access := &config.FilesystemAccess{Hidden: []string{".trialdesk", ".trialdesk/**"}}

	if err := os.MkdirAll(filepath.Join(root, ".trialdesk"), 0755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(root, "budget.csv"), []byte("a,b"), 0644); err != nil {
		t.Fatal(err)
	}

	list := &ListDirectoryTool{root: root, fsAccess: access}
	out, err := list.Execute(context.Background(), map[string]interface{}{})
	if err != nil {
		t.Fatalf("list failed: %v", err)
	}
	if !strings.Contains(out, "budget.csv") {
		t.Errorf("expected budget.csv in listing, got %q", out)
	}
	if strings.Contains(out, ".trialdesk") {
		t.Errorf("hidden directory leaked into listing: %q", out)
	}
}
