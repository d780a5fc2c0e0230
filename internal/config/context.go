package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sync"
	"time"

	"gopkg.in/yaml.v3"
)

// Context is the persisted CLI context: which registered account is active.
type Context struct {
	// AccountID is the currently active account.
	AccountID string `yaml:"account,omitempty"`
	// AccountHandle is the handle of the active account (for display).
	AccountHandle string `yaml:"account_handle,omitempty"`
	// UpdatedAt is when the context was last modified.
	UpdatedAt time.Time `yaml:"updated_at,omitempty"`
}

// IsEmpty returns true if no account is selected.
func (c *Context) IsEmpty() bool {
	return c.AccountID == ""
}

// Clear removes the active account.
func (c *Context) Clear() {
	c.AccountID = ""
	c.AccountHandle = ""
	c.UpdatedAt = time.Now()
}

// SetAccount selects the active account.
func (c *Context) SetAccount(id, handle string) {
	c.AccountID = id
	c.AccountHandle = handle
	c.UpdatedAt = time.Now()
}

func (c *Context) String() string {
	if c.IsEmpty() {
		return "(no account selected)"
	}
	name := c.AccountHandle
	if name == "" {
		name = shortID(c.AccountID)
	}
	return fmt.Sprintf("account:%s", name)
}

func shortID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}

// ContextStore persists the Context as YAML.
type ContextStore struct {
	path string
	mu   sync.RWMutex
}

// NewContextStore creates a store at path, or at ~/.config/convo/context.yaml
// when path is empty.
func NewContextStore(path string) *ContextStore {
	if path == "" {
		homeDir, _ := os.UserHomeDir()
		path = filepath.Join(homeDir, ".config", "convo", "context.yaml")
	}
	return &ContextStore{path: path}
}

// Load reads the context. A missing file yields an empty context.
func (s *ContextStore) Load() (*Context, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	saved := &Context{}
	data, err := os.ReadFile(s.path)
	if errors.Is(err, fs.ErrNotExist) {
		return saved, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read context file: %w", err)
	}
	if err := yaml.Unmarshal(data, saved); err != nil {
		return nil, fmt.Errorf("failed to parse context file %s: %w", s.path, err)
	}
	return saved, nil
}

// Save replaces the context file. The write goes through a temp file in the
// same directory so readers never observe a partial document.
func (s *ContextStore) Save(saved *Context) error {
	if saved == nil {
		saved = &Context{}
	}
	data, err := yaml.Marshal(saved)
	if err != nil {
		return fmt.Errorf("failed to serialize context: %w", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	dir := filepath.Dir(s.path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("failed to create context directory: %w", err)
	}
	tmp, err := os.CreateTemp(dir, ".context-*.yaml")
	if err != nil {
		return fmt.Errorf("failed to write context file: %w", err)
	}
	if _, err := tmp.Write(data); err != nil {
		_ = tmp.Close()
		_ = os.Remove(tmp.Name())
		return fmt.Errorf("failed to write context file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		_ = os.Remove(tmp.Name())
		return fmt.Errorf("failed to write context file: %w", err)
	}
	if err := os.Rename(tmp.Name(), s.path); err != nil {
		_ = os.Remove(tmp.Name())
		return fmt.Errorf("failed to replace context file: %w", err)
	}
	return nil
}
