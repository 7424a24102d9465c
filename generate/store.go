package generate

import (
	"fmt"
	"sync"
	"time"
)

// TemplateStore manages template persistence and retrieval.
type TemplateStore interface {
	// Add a new template
	Add(t *Template) error

	// Get a template by ID
	Get(id string) (*Template, error)

	// List all active templates
	ListActive() ([]*Template, error)

	// Update an existing template
	Update(t *Template) error

	// Delete a template
	Delete(id string) error
}

// InMemoryTemplateStore implements TemplateStore using an in-memory
// map. Thread-safe with RWMutex.
type InMemoryTemplateStore struct {
	templates map[string]*Template
	mu        sync.RWMutex
}

// NewInMemoryTemplateStore creates a new in-memory template store
func NewInMemoryTemplateStore() *InMemoryTemplateStore {
	return &InMemoryTemplateStore{
		templates: make(map[string]*Template),
	}
}

// Add adds a new template to the store, setting its timestamps.
func (s *InMemoryTemplateStore) Add(t *Template) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.templates[t.ID]; exists {
		return fmt.Errorf("template with ID %s already exists", t.ID)
	}

	now := time.Now()
	t.CreatedAt = now
	t.UpdatedAt = now
	s.templates[t.ID] = t
	return nil
}

// Get retrieves a template by ID
func (s *InMemoryTemplateStore) Get(id string) (*Template, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	t, exists := s.templates[id]
	if !exists {
		return nil, fmt.Errorf("template with ID %s not found", id)
	}
	return t, nil
}

// ListActive returns all active templates
func (s *InMemoryTemplateStore) ListActive() ([]*Template, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var active []*Template
	for _, t := range s.templates {
		if t.Active {
			active = append(active, t)
		}
	}
	return active, nil
}

// Update updates an existing template, preserving CreatedAt.
func (s *InMemoryTemplateStore) Update(t *Template) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	existing, exists := s.templates[t.ID]
	if !exists {
		return fmt.Errorf("template with ID %s not found", t.ID)
	}

	t.CreatedAt = existing.CreatedAt
	t.UpdatedAt = time.Now()
	s.templates[t.ID] = t
	return nil
}

// Delete removes a template from the store
func (s *InMemoryTemplateStore) Delete(id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.templates[id]; !exists {
		return fmt.Errorf("template with ID %s not found", id)
	}

	delete(s.templates, id)
	return nil
}
