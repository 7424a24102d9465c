package generate

import (
	"fmt"
	"sync"
)

// Engine manages template compilation and record generation. Templates
// are compiled once at load time and kept in a program map; generation
// only reads it. Thread-safe for concurrent reads and compilation
// (RWMutex).
type Engine struct {
	store    TemplateStore
	cache    TemplateCache // cache for active templates list
	compiled map[string]*CompiledTemplate
	mu       sync.RWMutex
}

// NewEngine creates a new generation engine and compiles all active
// templates from the store.
func NewEngine(store TemplateStore) (*Engine, error) {
	en := &Engine{
		store:    store,
		cache:    NewInMemoryTemplateCache(DefaultCacheConfig()),
		compiled: make(map[string]*CompiledTemplate),
	}

	if err := en.CompileAllTemplates(); err != nil {
		return nil, fmt.Errorf("failed to compile templates: %w", err)
	}

	return en, nil
}

// CompileTemplate compiles a single template definition and caches the
// result under the template ID.
func (en *Engine) CompileTemplate(id string, def *Definition) error {
	ct, err := Compile(def)
	if err != nil {
		return fmt.Errorf("compile error: %w", err)
	}

	en.mu.Lock()
	en.compiled[id] = ct
	en.mu.Unlock()

	return nil
}

// CompileAllTemplates compiles all active templates from the store and
// populates the cache with the active templates list.
func (en *Engine) CompileAllTemplates() error {
	templates, err := en.store.ListActive()
	if err != nil {
		return err
	}

	for _, t := range templates {
		if err := en.CompileTemplate(t.ID, &t.Definition); err != nil {
			return fmt.Errorf("failed to compile template %s: %w", t.ID, err)
		}
	}

	en.cache.Set(templates)

	return nil
}

// Generate runs one batch against a stored template. A template not yet
// in the program map (added out of band, or inactive) is fetched and
// compiled on demand.
func (en *Engine) Generate(templateID string, count int, datasets map[string]*Dataset, opts Options) ([]Record, *Report, error) {
	en.mu.RLock()
	ct, exists := en.compiled[templateID]
	en.mu.RUnlock()

	if !exists {
		t, err := en.store.Get(templateID)
		if err != nil {
			return nil, nil, err
		}
		if err := en.CompileTemplate(t.ID, &t.Definition); err != nil {
			return nil, nil, err
		}
		en.mu.RLock()
		ct = en.compiled[templateID]
		en.mu.RUnlock()
	}

	return ct.Generate(count, datasets, opts)
}

// AddTemplate validates that a template compiles, then adds it to the
// store. The compiled program is removed again if the store rejects the
// template, so the program map never holds entries the store does not.
func (en *Engine) AddTemplate(t *Template) error {
	_, err := en.store.Get(t.ID)
	if err == nil {
		return fmt.Errorf("template with ID %s already exists", t.ID)
	}

	if err := en.CompileTemplate(t.ID, &t.Definition); err != nil {
		return fmt.Errorf("template validation failed: %w", err)
	}

	if err := en.store.Add(t); err != nil {
		en.mu.Lock()
		delete(en.compiled, t.ID)
		en.mu.Unlock()
		return err
	}

	// Invalidate cache since templates list changed
	en.cache.Invalidate()

	return nil
}

// UpdateTemplate validates the new definition, then updates the store
// and recompiles.
func (en *Engine) UpdateTemplate(t *Template) error {
	if err := en.CompileTemplate(t.ID, &t.Definition); err != nil {
		return fmt.Errorf("template validation failed: %w", err)
	}

	if err := en.store.Update(t); err != nil {
		return err
	}

	en.cache.Invalidate()

	return nil
}

// DeleteTemplate removes a template from the store and the program map.
func (en *Engine) DeleteTemplate(templateID string) error {
	if err := en.store.Delete(templateID); err != nil {
		return err
	}

	en.mu.Lock()
	delete(en.compiled, templateID)
	en.mu.Unlock()

	en.cache.Invalidate()

	return nil
}

// ListActive returns the active templates, served from cache when
// valid.
func (en *Engine) ListActive() ([]*Template, error) {
	templates := en.cache.Get()
	if templates == nil {
		var err error
		templates, err = en.store.ListActive()
		if err != nil {
			return nil, err
		}
		en.cache.Set(templates)
	}
	return templates, nil
}

// GetTemplate retrieves a template by ID from the store.
func (en *Engine) GetTemplate(id string) (*Template, error) {
	return en.store.Get(id)
}
