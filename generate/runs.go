package generate

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"sort"
	"sync"
	"time"
)

// Run is the audit record of one generation batch: which template ran,
// how many records it produced, and the degradation report.
type Run struct {
	ID          string    `json:"id"`
	TemplateID  string    `json:"template_id"`
	RecordCount int       `json:"record_count"`
	Report      *Report   `json:"report,omitempty"`
	CreatedAt   time.Time `json:"created_at"`
}

// RunStore persists generation run audit records.
type RunStore interface {
	// Add a completed run
	Add(run *Run) error

	// Get a run by ID
	Get(id string) (*Run, error)

	// ListByTemplate returns runs for a template, newest first
	ListByTemplate(templateID string) ([]*Run, error)

	// ListRecent returns the most recent runs across all templates,
	// newest first, capped at limit
	ListRecent(limit int) ([]*Run, error)
}

// InMemoryRunStore implements RunStore using an in-memory map.
type InMemoryRunStore struct {
	runs map[string]*Run
	mu   sync.RWMutex
}

// NewInMemoryRunStore creates a new in-memory run store
func NewInMemoryRunStore() *InMemoryRunStore {
	return &InMemoryRunStore{runs: make(map[string]*Run)}
}

// Add records a completed run
func (s *InMemoryRunStore) Add(run *Run) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.runs[run.ID]; exists {
		return fmt.Errorf("run with ID %s already exists", run.ID)
	}
	run.CreatedAt = time.Now()
	s.runs[run.ID] = run
	return nil
}

// Get retrieves a run by ID
func (s *InMemoryRunStore) Get(id string) (*Run, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	run, exists := s.runs[id]
	if !exists {
		return nil, fmt.Errorf("run with ID %s not found", id)
	}
	return run, nil
}

// ListByTemplate returns runs for a template, newest first
func (s *InMemoryRunStore) ListByTemplate(templateID string) ([]*Run, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []*Run
	for _, run := range s.runs {
		if run.TemplateID == templateID {
			out = append(out, run)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].CreatedAt.After(out[j].CreatedAt)
	})
	return out, nil
}

// ListRecent returns the most recent runs, newest first, capped at limit
func (s *InMemoryRunStore) ListRecent(limit int) ([]*Run, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]*Run, 0, len(s.runs))
	for _, run := range s.runs {
		out = append(out, run)
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].CreatedAt.After(out[j].CreatedAt)
	})
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

// PostgresRunStore implements RunStore backed by PostgreSQL. The
// degradation report is stored as JSONB.
type PostgresRunStore struct {
	db *sql.DB
}

// NewPostgresRunStore creates a new PostgreSQL-backed RunStore
func NewPostgresRunStore(db *sql.DB) *PostgresRunStore {
	return &PostgresRunStore{db: db}
}

// Add inserts a completed run
func (s *PostgresRunStore) Add(run *Run) error {
	report, err := json.Marshal(run.Report)
	if err != nil {
		return fmt.Errorf("failed to encode report: %w", err)
	}

	run.CreatedAt = time.Now()

	_, err = s.db.Exec(`
		INSERT INTO generation_runs (id, template_id, record_count, report, created_at)
		VALUES ($1, $2, $3, $4, $5)
	`, run.ID, run.TemplateID, run.RecordCount, report, run.CreatedAt)

	if err != nil {
		return fmt.Errorf("failed to insert run: %w", err)
	}
	return nil
}

// Get retrieves a run by ID
func (s *PostgresRunStore) Get(id string) (*Run, error) {
	var run Run
	var report []byte
	err := s.db.QueryRow(`
		SELECT id, template_id, record_count, report, created_at
		FROM generation_runs
		WHERE id = $1
	`, id).Scan(&run.ID, &run.TemplateID, &run.RecordCount, &report, &run.CreatedAt)

	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("run %s not found", id)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get run: %w", err)
	}

	if len(report) > 0 {
		run.Report = &Report{}
		if err := json.Unmarshal(report, run.Report); err != nil {
			return nil, fmt.Errorf("failed to decode report for run %s: %w", id, err)
		}
	}
	return &run, nil
}

// ListByTemplate returns runs for a template, newest first
func (s *PostgresRunStore) ListByTemplate(templateID string) ([]*Run, error) {
	rows, err := s.db.Query(`
		SELECT id, template_id, record_count, report, created_at
		FROM generation_runs
		WHERE template_id = $1
		ORDER BY created_at DESC
	`, templateID)
	if err != nil {
		return nil, fmt.Errorf("failed to list runs: %w", err)
	}
	defer rows.Close()

	var out []*Run
	for rows.Next() {
		var run Run
		var report []byte
		if err := rows.Scan(&run.ID, &run.TemplateID, &run.RecordCount,
			&report, &run.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan run: %w", err)
		}
		if len(report) > 0 {
			run.Report = &Report{}
			if err := json.Unmarshal(report, run.Report); err != nil {
				return nil, fmt.Errorf("failed to decode report for run %s: %w", run.ID, err)
			}
		}
		out = append(out, &run)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating runs: %w", err)
	}
	return out, nil
}

// ListRecent returns the most recent runs, newest first, capped at limit
func (s *PostgresRunStore) ListRecent(limit int) ([]*Run, error) {
	rows, err := s.db.Query(`
		SELECT id, template_id, record_count, report, created_at
		FROM generation_runs
		ORDER BY created_at DESC
		LIMIT $1
	`, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list runs: %w", err)
	}
	defer rows.Close()

	var out []*Run
	for rows.Next() {
		var run Run
		var report []byte
		if err := rows.Scan(&run.ID, &run.TemplateID, &run.RecordCount,
			&report, &run.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan run: %w", err)
		}
		if len(report) > 0 {
			run.Report = &Report{}
			if err := json.Unmarshal(report, run.Report); err != nil {
				return nil, fmt.Errorf("failed to decode report for run %s: %w", run.ID, err)
			}
		}
		out = append(out, &run)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating runs: %w", err)
	}
	return out, nil
}
