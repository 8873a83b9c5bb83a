package prompt

import (
	"os"
	"path/filepath"
	"sync"
)

// TemplateStore loads templates once and serves them from memory after
// that. Entries are never invalidated. It is safe for concurrent use.
type TemplateStore struct {
	mu    sync.Mutex
	cache map[string]*Template
}

// NewTemplateStore creates an empty store.
func NewTemplateStore() *TemplateStore {
	return &TemplateStore{cache: make(map[string]*Template)}
}

// Load returns the template at path, parsing it on first use.
func (s *TemplateStore) Load(path string) (*Template, error) {
	key := filepath.Clean(path)

	s.mu.Lock()
	defer s.mu.Unlock()

	if t, ok := s.cache[key]; ok {
		return t, nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, &TemplateLoadError{Path: path, Err: err}
	}
	t, err := ParseTemplate(path, data)
	if err != nil {
		return nil, err
	}
	s.cache[key] = t
	return t, nil
}

// Len returns the number of cached templates.
func (s *TemplateStore) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.cache)
}

// NewPrompt renders the template at path with text.
func (s *TemplateStore) NewPrompt(path, text string) (*Prompt, error) {
	t, err := s.Load(path)
	if err != nil {
		return nil, err
	}
	return FromTemplate(t, text)
}

// FromTemplate renders t with text into a fresh prompt carrying its own
// copy of the template metadata.
func FromTemplate(t *Template, text string) (*Prompt, error) {
	system, user, err := t.Render(text)
	if err != nil {
		return nil, err
	}
	return New(system, user, t.Meta.Clone()), nil
}
