package generate

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	_ "github.com/lib/pq"
)

// PostgresTemplateStore implements TemplateStore backed by PostgreSQL.
// The definition is stored as JSONB.
type PostgresTemplateStore struct {
	db *sql.DB
}

// NewPostgresTemplateStore creates a new PostgreSQL-backed TemplateStore
func NewPostgresTemplateStore(db *sql.DB) *PostgresTemplateStore {
	return &PostgresTemplateStore{db: db}
}

// Add inserts a new template into the database
func (s *PostgresTemplateStore) Add(t *Template) error {
	var exists bool
	err := s.db.QueryRow(`
		SELECT EXISTS(SELECT 1 FROM templates WHERE id = $1)
	`, t.ID).Scan(&exists)
	if err != nil {
		return fmt.Errorf("failed to check template existence: %w", err)
	}
	if exists {
		return fmt.Errorf("template with ID %s already exists", t.ID)
	}

	def, err := json.Marshal(t.Definition)
	if err != nil {
		return fmt.Errorf("failed to encode definition: %w", err)
	}

	now := time.Now()
	t.CreatedAt = now
	t.UpdatedAt = now

	_, err = s.db.Exec(`
		INSERT INTO templates (id, name, definition, active, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6)
	`, t.ID, t.Name, def, t.Active, t.CreatedAt, t.UpdatedAt)

	if err != nil {
		return fmt.Errorf("failed to insert template: %w", err)
	}

	return nil
}

// Get retrieves a template by ID
func (s *PostgresTemplateStore) Get(id string) (*Template, error) {
	var t Template
	var def []byte
	err := s.db.QueryRow(`
		SELECT id, name, definition, active, created_at, updated_at
		FROM templates
		WHERE id = $1
	`, id).Scan(
		&t.ID,
		&t.Name,
		&def,
		&t.Active,
		&t.CreatedAt,
		&t.UpdatedAt,
	)

	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("template %s not found", id)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get template: %w", err)
	}

	if err := json.Unmarshal(def, &t.Definition); err != nil {
		return nil, fmt.Errorf("failed to decode definition for template %s: %w", id, err)
	}

	return &t, nil
}

// ListActive returns all active templates
func (s *PostgresTemplateStore) ListActive() ([]*Template, error) {
	rows, err := s.db.Query(`
		SELECT id, name, definition, active, created_at, updated_at
		FROM templates
		WHERE active = true
		ORDER BY created_at ASC
	`)
	if err != nil {
		return nil, fmt.Errorf("failed to list active templates: %w", err)
	}
	defer rows.Close()

	var templates []*Template
	for rows.Next() {
		var t Template
		var def []byte
		if err := rows.Scan(&t.ID, &t.Name, &def, &t.Active,
			&t.CreatedAt, &t.UpdatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan template: %w", err)
		}
		if err := json.Unmarshal(def, &t.Definition); err != nil {
			return nil, fmt.Errorf("failed to decode definition for template %s: %w", t.ID, err)
		}
		templates = append(templates, &t)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating templates: %w", err)
	}

	return templates, nil
}

// Update modifies an existing template
func (s *PostgresTemplateStore) Update(t *Template) error {
	existing, err := s.Get(t.ID)
	if err != nil {
		return err
	}

	def, err := json.Marshal(t.Definition)
	if err != nil {
		return fmt.Errorf("failed to encode definition: %w", err)
	}

	t.CreatedAt = existing.CreatedAt
	t.UpdatedAt = time.Now()

	result, err := s.db.Exec(`
		UPDATE templates
		SET name = $1, definition = $2, active = $3, updated_at = $4
		WHERE id = $5
	`, t.Name, def, t.Active, t.UpdatedAt, t.ID)

	if err != nil {
		return fmt.Errorf("failed to update template: %w", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if rowsAffected == 0 {
		return fmt.Errorf("template %s not found", t.ID)
	}

	return nil
}

// Delete removes a template from the database
func (s *PostgresTemplateStore) Delete(id string) error {
	result, err := s.db.Exec(`
		DELETE FROM templates
		WHERE id = $1
	`, id)

	if err != nil {
		return fmt.Errorf("failed to delete template: %w", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if rowsAffected == 0 {
		return fmt.Errorf("template %s not found", id)
	}

	return nil
}
