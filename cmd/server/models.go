package main

import (
	"github.com/mboyle/fabricate/generate"
	"github.com/mboyle/fabricate/querycontext"
)

// API request and response models

// CreateTemplateRequest represents the request body for creating a template
type CreateTemplateRequest struct {
	Name       string              `json:"name"`
	Definition generate.Definition `json:"definition"`
	Active     bool                `json:"active"`
}

// UpdateTemplateRequest represents the request body for updating a template
type UpdateTemplateRequest struct {
	Name       string              `json:"name"`
	Definition generate.Definition `json:"definition"`
	Active     bool                `json:"active"`
}

// TemplateResponse represents a template in API responses
type TemplateResponse struct {
	ID         string              `json:"id"`
	Name       string              `json:"name"`
	Definition generate.Definition `json:"definition"`
	Active     bool                `json:"active"`
	CreatedAt  string              `json:"created_at"`
	UpdatedAt  string              `json:"updated_at"`
}

// InlineDataset is a dataset supplied directly in a generate request,
// overriding any registered dataset of the same name for that batch.
type InlineDataset struct {
	Name    string           `json:"name"`
	Columns []string         `json:"columns"`
	Rows    []map[string]any `json:"rows"`
}

// GenerateRequest represents the request body for a generation batch
type GenerateRequest struct {
	TemplateID string          `json:"template_id"`
	Count      int             `json:"count"`
	Seed       *int64          `json:"seed,omitempty"`
	Datasets   []InlineDataset `json:"datasets,omitempty"`
}

// GenerateResponse represents the response for a generation batch
type GenerateResponse struct {
	RunID          string            `json:"run_id"`
	Records        []generate.Record `json:"records"`
	Report         *generate.Report  `json:"report,omitempty"`
	GenerationTime string            `json:"generation_time"`
}

// RegisterDatasetRequest represents the request body for registering a
// dataset: either literal rows, or a SQL query to run against the
// service database.
type RegisterDatasetRequest struct {
	Name    string           `json:"name"`
	Columns []string         `json:"columns,omitempty"`
	Rows    []map[string]any `json:"rows,omitempty"`
	Query   string           `json:"query,omitempty"`
}

// DatasetsListResponse represents the response for listing datasets
type DatasetsListResponse struct {
	Datasets []querycontext.Info `json:"datasets"`
}

// ErrorResponse represents an error response
type ErrorResponse struct {
	Error   string `json:"error"`
	Details string `json:"details,omitempty"`
}
