package tools

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/m4xw311/trialdesk/config"
	"github.com/m4xw311/trialdesk/errors"
)

// FilesystemTools returns the local file tools scoped to a workspace root.
// They back the document workflows when the external filesystem server is
// unavailable, and apply the configured hidden/read-only restrictions.
func FilesystemTools(root string, access *config.FilesystemAccess) []Tool {
	return []Tool{
		&ReadFileTool{root: root, fsAccess: access},
		&WriteFileTool{root: root, fsAccess: access},
		&ListDirectoryTool{root: root, fsAccess: access},
	}
}

// resolveWorkspacePath confines a tool-supplied path to the workspace root
// and returns both the absolute path and the workspace-relative path used
// for restriction matching.
func resolveWorkspacePath(root, path string) (string, string, error) {
	abs := path
	if !filepath.IsAbs(abs) {
		abs = filepath.Join(root, path)
	}
	abs = filepath.Clean(abs)
	rel, err := filepath.Rel(root, abs)
	if err != nil || rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
		return "", "", errors.New("access denied: path '%s' is outside the project workspace", path)
	}
	return abs, rel, nil
}

// ReadFileTool reads a file inside the project workspace.
type ReadFileTool struct {
	root     string
	fsAccess *config.FilesystemAccess
}

func (t *ReadFileTool) Name() string { return "read_file" }
func (t *ReadFileTool) Description() string {
	return "Reads the entire content of a file in the project workspace. Args: path (string, relative to the workspace)."
}
func (t *ReadFileTool) Schema() map[string]interface{} {
	return map[string]interface{}{
		"type": "object",
		"properties": map[string]interface{}{
			"path": map[string]interface{}{"type": "string", "description": "Path relative to the workspace root"},
		},
		"required": []string{"path"},
	}
}

func (t *ReadFileTool) Execute(ctx context.Context, args map[string]interface{}) (string, error) {
	path, ok := args["path"].(string)
	if !ok {
		return "", errors.New("missing or invalid 'path' argument")
	}

	abs, rel, err := resolveWorkspacePath(t.root, path)
	if err != nil {
		return "", err
	}
	hidden, err := isPathRestricted(rel, t.fsAccess.Hidden)
	if err != nil {
		return "", err
	}
	if hidden {
		return "", errors.New("access denied: path '%s' is hidden", path)
	}

	content, err := os.ReadFile(abs)
	if err != nil {
		return "", errors.Wrapf(err, "failed to read file '%s'", path)
	}
	return string(content), nil
}

// WriteFileTool writes a file inside the project workspace.
type WriteFileTool struct {
	root     string
	fsAccess *config.FilesystemAccess
}

func (t *WriteFileTool) Name() string { return "write_file" }
func (t *WriteFileTool) Description() string {
	return "Writes content to a file in the project workspace, replacing it entirely. Args: path (string), content (string)."
}
func (t *WriteFileTool) Schema() map[string]interface{} {
	return map[string]interface{}{
		"type": "object",
		"properties": map[string]interface{}{
			"path":    map[string]interface{}{"type": "string", "description": "Path relative to the workspace root"},
			"content": map[string]interface{}{"type": "string", "description": "Full file content to write"},
		},
		"required": []string{"path", "content"},
	}
}

func (t *WriteFileTool) Execute(ctx context.Context, args map[string]interface{}) (string, error) {
	path, pathOk := args["path"].(string)
	content, contentOk := args["content"].(string)
	if !pathOk || !contentOk {
		return "", errors.New("missing or invalid 'path' or 'content' arguments")
	}

	abs, rel, err := resolveWorkspacePath(t.root, path)
	if err != nil {
		return "", err
	}
	hidden, err := isPathRestricted(rel, t.fsAccess.Hidden)
	if err != nil {
		return "", err
	}
	if hidden {
		return "", errors.New("access denied: path '%s' is hidden", path)
	}
	readOnly, err := isPathRestricted(rel, t.fsAccess.ReadOnly)
	if err != nil {
		return "", err
	}
	if readOnly {
		return "", errors.New("access denied: path '%s' is read-only", path)
	}

	if err := os.MkdirAll(filepath.Dir(abs), 0755); err != nil {
		return "", errors.Wrapf(err, "failed to create directory for '%s'", path)
	}
	if err := os.WriteFile(abs, []byte(content), 0644); err != nil {
		return "", errors.Wrapf(err, "failed to write to file '%s'", path)
	}
	return fmt.Sprintf("Successfully wrote %d bytes to %s", len(content), path), nil
}

// ListDirectoryTool lists the entries of a workspace directory.
type ListDirectoryTool struct {
	root     string
	fsAccess *config.FilesystemAccess
}

func (t *ListDirectoryTool) Name() string { return "list_directory" }
func (t *ListDirectoryTool) Description() string {
	return "Lists the files and directories in a workspace directory. Args: path (string, optional, defaults to the workspace root)."
}
func (t *ListDirectoryTool) Schema() map[string]interface{} {
	return map[string]interface{}{
		"type": "object",
		"properties": map[string]interface{}{
			"path": map[string]interface{}{"type": "string", "description": "Path relative to the workspace root"},
		},
	}
}

func (t *ListDirectoryTool) Execute(ctx context.Context, args map[string]interface{}) (string, error) {
	path, _ := args["path"].(string)
	if path == "" {
		path = "."
	}

	abs, rel, err := resolveWorkspacePath(t.root, path)
	if err != nil {
		return "", err
	}
	hidden, err := isPathRestricted(rel, t.fsAccess.Hidden)
	if err != nil {
		return "", err
	}
	if hidden {
		return "", errors.New("access denied: path '%s' is hidden", path)
	}

	entries, err := os.ReadDir(abs)
	if err != nil {
		return "", errors.Wrapf(err, "failed to list directory '%s'", path)
	}

	var b strings.Builder
	for _, entry := range entries {
		entryRel := filepath.Join(rel, entry.Name())
		if skip, _ := isPathRestricted(entryRel, t.fsAccess.Hidden); skip {
			continue
		}
		if entry.IsDir() {
			b.WriteString(entry.Name() + "/\n")
		} else {
			b.WriteString(entry.Name() + "\n")
		}
	}
	if b.Len() == 0 {
		return "(empty)", nil
	}
	return b.String(), nil
}
