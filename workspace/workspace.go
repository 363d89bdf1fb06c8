// Package workspace manages the per-project directories the agents work
// in: documents, email drafts and CSV exports.
package workspace

import (
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/m4xw311/trialdesk/errors"
)

// Subdirectories created in every project workspace.
var layout = []string{"documents", "drafts", "exports"}

// Document describes one file inside a workspace.
type Document struct {
	Name     string
	Path     string
	Size     int64
	Modified time.Time
}

// Stats summarizes a workspace's contents.
type Stats struct {
	Documents int
	Drafts    int
	Exports   int
	TotalSize int64
}

// Manager creates and inspects project workspaces under one root.
type Manager struct {
	root string
}

func NewManager(root string) *Manager {
	return &Manager{root: root}
}

// Path returns the workspace directory for a project name without
// creating it.
func (m *Manager) Path(name string) string {
	return filepath.Join(m.root, sanitize(name))
}

// Create builds the workspace directory tree for a project and returns
// its path. Creating an existing workspace is not an error.
func (m *Manager) Create(name string) (string, error) {
	path := m.Path(name)
	for _, sub := range layout {
		if err := os.MkdirAll(filepath.Join(path, sub), 0755); err != nil {
			return "", errors.Wrapf(err, "failed to create workspace directory for '%s'", name)
		}
	}
	return path, nil
}

// Delete removes a project workspace and everything in it.
func (m *Manager) Delete(name string) error {
	if err := os.RemoveAll(m.Path(name)); err != nil {
		return errors.Wrapf(err, "failed to delete workspace for '%s'", name)
	}
	return nil
}

// Documents lists the files under the workspace's documents directory,
// sorted by name.
func (m *Manager) Documents(name string) ([]Document, error) {
	return m.listDir(name, "documents")
}

// Drafts lists the saved email drafts.
func (m *Manager) Drafts(name string) ([]Document, error) {
	return m.listDir(name, "drafts")
}

// Exports lists the generated CSV exports.
func (m *Manager) Exports(name string) ([]Document, error) {
	return m.listDir(name, "exports")
}

func (m *Manager) listDir(name, sub string) ([]Document, error) {
	dir := filepath.Join(m.Path(name), sub)
	entries, err := os.ReadDir(dir)
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		return nil, errors.Wrapf(err, "failed to list %s for '%s'", sub, name)
	}

	var docs []Document
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		info, err := entry.Info()
		if err != nil {
			continue
		}
		docs = append(docs, Document{
			Name:     entry.Name(),
			Path:     filepath.Join(dir, entry.Name()),
			Size:     info.Size(),
			Modified: info.ModTime(),
		})
	}
	sort.Slice(docs, func(i, j int) bool { return docs[i].Name < docs[j].Name })
	return docs, nil
}

// ReadDocument returns the content of a file in the documents directory.
func (m *Manager) ReadDocument(name, fileName string) (string, error) {
	path := filepath.Join(m.Path(name), "documents", filepath.Base(fileName))
	data, err := os.ReadFile(path)
	if err != nil {
		return "", errors.Wrapf(err, "failed to read document '%s'", fileName)
	}
	return string(data), nil
}

// WriteDocument writes a file into the documents directory.
func (m *Manager) WriteDocument(name, fileName, content string) (string, error) {
	dir := filepath.Join(m.Path(name), "documents")
	if err := os.MkdirAll(dir, 0755); err != nil {
		return "", errors.Wrapf(err, "failed to create documents directory for '%s'", name)
	}
	path := filepath.Join(dir, filepath.Base(fileName))
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		return "", errors.Wrapf(err, "failed to write document '%s'", fileName)
	}
	return path, nil
}

// Stats walks the workspace and counts files per category.
func (m *Manager) Stats(name string) (Stats, error) {
	var stats Stats
	for i, sub := range layout {
		docs, err := m.listDir(name, sub)
		if err != nil {
			return Stats{}, err
		}
		for _, d := range docs {
			stats.TotalSize += d.Size
		}
		switch i {
		case 0:
			stats.Documents = len(docs)
		case 1:
			stats.Drafts = len(docs)
		case 2:
			stats.Exports = len(docs)
		}
	}
	return stats, nil
}

// sanitize turns a project name into a safe directory name.
func sanitize(name string) string {
	replacer := strings.NewReplacer("/", "-", "\\", "-", "..", "-", " ", "_")
	cleaned := replacer.Replace(strings.TrimSpace(name))
	if cleaned == "" {
		cleaned = "project"
	}
	return cleaned
}
