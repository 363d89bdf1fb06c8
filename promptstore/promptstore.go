// Package promptstore keeps the researcher's custom instruction
// additions for each agent in a JSON file under the app data directory.
package promptstore

import (
	"encoding/json"
	"os"
	"path/filepath"
	"sync"

	"github.com/m4xw311/trialdesk/errors"
)

// Store is a small persisted map of agent name to extra instructions.
type Store struct {
	path string

	mu      sync.RWMutex
	prompts map[string]string
}

// Open loads the prompt store from dataDir, creating an empty one when
// the file does not exist yet.
func Open(dataDir string) (*Store, error) {
	s := &Store{
		path:    filepath.Join(dataDir, "custom_prompts.json"),
		prompts: make(map[string]string),
	}
	data, err := os.ReadFile(s.path)
	if os.IsNotExist(err) {
		return s, nil
	}
	if err != nil {
		return nil, errors.Wrapf(err, "failed to read prompt store")
	}
	if err := json.Unmarshal(data, &s.prompts); err != nil {
		return nil, errors.Wrapf(err, "failed to parse prompt store '%s'", s.path)
	}
	return s, nil
}

// Get returns the custom instructions for an agent, empty when none are
// set.
func (s *Store) Get(agent string) string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.prompts[agent]
}

// Set stores the custom instructions for an agent and persists the file.
// An empty text removes the entry.
func (s *Store) Set(agent, text string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if text == "" {
		delete(s.prompts, agent)
	} else {
		s.prompts[agent] = text
	}
	return s.save()
}

// All returns a copy of every stored instruction.
func (s *Store) All() map[string]string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make(map[string]string, len(s.prompts))
	for k, v := range s.prompts {
		out[k] = v
	}
	return out
}

func (s *Store) save() error {
	data, err := json.MarshalIndent(s.prompts, "", "  ")
	if err != nil {
		return errors.Wrapf(err, "failed to serialize prompt store")
	}
	if err := os.MkdirAll(filepath.Dir(s.path), 0755); err != nil {
		return errors.Wrapf(err, "failed to create prompt store directory")
	}
	if err := os.WriteFile(s.path, data, 0644); err != nil {
		return errors.Wrapf(err, "failed to write prompt store")
	}
	return nil
}
