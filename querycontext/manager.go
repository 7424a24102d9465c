// Package querycontext loads and caches the datasets that query-context
// fields resolve against. Datasets come from direct row uploads or from
// SQL queries run against the service database; either way they are
// held in memory so a generation batch reads a stable snapshot.
package querycontext

import (
	"context"
	"database/sql"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/mboyle/fabricate/generate"
)

// Info summarizes one registered dataset.
type Info struct {
	Name      string    `json:"name"`
	RowCount  int       `json:"row_count"`
	Columns   []string  `json:"columns"`
	CreatedAt time.Time `json:"created_at"`
}

type entry struct {
	ds        *generate.Dataset
	createdAt time.Time
}

// Manager is the dataset registry. Thread-safe for concurrent access.
type Manager struct {
	db       *sql.DB // nil when the service runs without a database
	datasets map[string]*entry
	mu       sync.RWMutex
}

// NewManager creates a dataset manager. db may be nil; RegisterQuery
// then returns an error and only RegisterRows is available.
func NewManager(db *sql.DB) *Manager {
	return &Manager{
		db:       db,
		datasets: make(map[string]*entry),
	}
}

// RegisterRows registers a dataset from literal rows. Registering an
// existing name replaces the dataset.
func (m *Manager) RegisterRows(name string, columns []string, rows []map[string]any) error {
	if name == "" {
		return fmt.Errorf("dataset name is required")
	}
	if len(columns) == 0 {
		return fmt.Errorf("dataset %s has no columns", name)
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	m.datasets[name] = &entry{
		ds: &generate.Dataset{
			Name:    name,
			Columns: columns,
			Rows:    rows,
		},
		createdAt: time.Now(),
	}
	return nil
}

// RegisterQuery runs a SQL query against the service database and
// registers the result set under name. Column names and types come from
// the result set; byte slices are converted to strings so text columns
// compare naturally.
func (m *Manager) RegisterQuery(ctx context.Context, name, query string, args ...any) error {
	if name == "" {
		return fmt.Errorf("dataset name is required")
	}
	if m.db == nil {
		return fmt.Errorf("no database configured for query-backed datasets")
	}

	rows, err := m.db.QueryContext(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("failed to run dataset query %s: %w", name, err)
	}
	defer rows.Close()

	columns, err := rows.Columns()
	if err != nil {
		return fmt.Errorf("failed to read columns for dataset %s: %w", name, err)
	}

	var out []map[string]any
	for rows.Next() {
		vals := make([]any, len(columns))
		ptrs := make([]any, len(columns))
		for i := range vals {
			ptrs[i] = &vals[i]
		}
		if err := rows.Scan(ptrs...); err != nil {
			return fmt.Errorf("failed to scan row for dataset %s: %w", name, err)
		}

		row := make(map[string]any, len(columns))
		for i, col := range columns {
			v := vals[i]
			if b, ok := v.([]byte); ok {
				v = string(b)
			}
			row[col] = v
		}
		out = append(out, row)
	}
	if err := rows.Err(); err != nil {
		return fmt.Errorf("error iterating dataset query %s: %w", name, err)
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	m.datasets[name] = &entry{
		ds: &generate.Dataset{
			Name:    name,
			Columns: columns,
			Rows:    out,
		},
		createdAt: time.Now(),
	}
	return nil
}

// Get retrieves a registered dataset by name.
func (m *Manager) Get(name string) (*generate.Dataset, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	e, ok := m.datasets[name]
	if !ok {
		return nil, false
	}
	return e.ds, true
}

// List returns a summary of every registered dataset, sorted by name.
func (m *Manager) List() []Info {
	m.mu.RLock()
	defer m.mu.RUnlock()

	out := make([]Info, 0, len(m.datasets))
	for name, e := range m.datasets {
		out = append(out, Info{
			Name:      name,
			RowCount:  e.ds.Len(),
			Columns:   e.ds.Columns,
			CreatedAt: e.createdAt,
		})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

// Delete removes a registered dataset.
func (m *Manager) Delete(name string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.datasets[name]; !ok {
		return fmt.Errorf("dataset %s not found", name)
	}
	delete(m.datasets, name)
	return nil
}

// Snapshot returns the current datasets keyed by name, for handing to a
// generation batch. The map is a copy; the datasets themselves are
// shared and never mutated by the engine.
func (m *Manager) Snapshot() map[string]*generate.Dataset {
	m.mu.RLock()
	defer m.mu.RUnlock()

	out := make(map[string]*generate.Dataset, len(m.datasets))
	for name, e := range m.datasets {
		out[name] = e.ds
	}
	return out
}
