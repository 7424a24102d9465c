package main

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"math/rand"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/google/uuid"
	_ "github.com/lib/pq"

	"github.com/mboyle/fabricate/generate"
	"github.com/mboyle/fabricate/internal/logger"
	"github.com/mboyle/fabricate/querycontext"
)

// maxBatchSize caps a single generation request.
const maxBatchSize = 100000

// defaultRunListLimit caps the recent-runs listing when the client
// does not pass ?limit.
const defaultRunListLimit = 50

type Server struct {
	db       *sql.DB
	engine   *generate.Engine
	runs     generate.RunStore
	datasets *querycontext.Manager
	router   *chi.Mux
}

func NewServer(databaseURL string) (*Server, error) {
	db, err := sql.Open("postgres", databaseURL)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	store := generate.NewPostgresTemplateStore(db)
	engine, err := generate.NewEngine(store)
	if err != nil {
		return nil, fmt.Errorf("failed to create engine: %w", err)
	}

	s := &Server{
		db:       db,
		engine:   engine,
		runs:     generate.NewPostgresRunStore(db),
		datasets: querycontext.NewManager(db),
	}

	s.setupRoutes()

	return s, nil
}

// newServerWithStores wires a server around explicit stores. Used by
// tests and by deployments that run without PostgreSQL.
func newServerWithStores(store generate.TemplateStore, runs generate.RunStore, datasets *querycontext.Manager) (*Server, error) {
	engine, err := generate.NewEngine(store)
	if err != nil {
		return nil, fmt.Errorf("failed to create engine: %w", err)
	}

	s := &Server{
		engine:   engine,
		runs:     runs,
		datasets: datasets,
	}

	s.setupRoutes()

	return s, nil
}

func (s *Server) setupRoutes() {
	r := chi.NewRouter()

	// Middleware
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(60 * time.Second))

	// Health check
	r.Get("/api/v1/health", s.handleHealth)

	// Generation
	r.Post("/api/v1/generate", s.handleGenerate)

	// Template management
	r.Route("/api/v1/templates", func(r chi.Router) {
		r.Get("/", s.handleListTemplates)
		r.Post("/", s.handleCreateTemplate)
		r.Get("/{templateId}", s.handleGetTemplate)
		r.Put("/{templateId}", s.handleUpdateTemplate)
		r.Delete("/{templateId}", s.handleDeleteTemplate)
		r.Get("/{templateId}/runs", s.handleListRuns)
	})

	// Dataset management
	r.Route("/api/v1/datasets", func(r chi.Router) {
		r.Get("/", s.handleListDatasets)
		r.Post("/", s.handleRegisterDataset)
		r.Delete("/{name}", s.handleDeleteDataset)
	})

	// Run audit
	r.Get("/api/v1/runs", s.handleRecentRuns)
	r.Get("/api/v1/runs/{runId}", s.handleGetRun)

	s.router = r
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}

// Health check handler
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	if s.db != nil {
		if err := s.db.Ping(); err != nil {
			respondJSON(w, http.StatusServiceUnavailable, map[string]string{
				"status": "unhealthy",
				"error":  err.Error(),
			})
			return
		}
	}

	templates, _ := s.engine.ListActive()
	respondJSON(w, http.StatusOK, map[string]any{
		"status":          "healthy",
		"activeTemplates": len(templates),
	})
}

// Generation handler
func (s *Server) handleGenerate(w http.ResponseWriter, r *http.Request) {
	var req GenerateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid request body", err)
		return
	}

	if req.TemplateID == "" {
		respondError(w, http.StatusBadRequest, "template_id is required", nil)
		return
	}
	if req.Count <= 0 || req.Count > maxBatchSize {
		respondError(w, http.StatusBadRequest,
			fmt.Sprintf("count must be between 1 and %d", maxBatchSize), nil)
		return
	}

	if _, err := s.engine.GetTemplate(req.TemplateID); err != nil {
		respondError(w, http.StatusNotFound, "template not found", err)
		return
	}

	// Registered datasets first, inline datasets override by name.
	datasets := s.datasets.Snapshot()
	for _, in := range req.Datasets {
		datasets[in.Name] = &generate.Dataset{
			Name:    in.Name,
			Columns: in.Columns,
			Rows:    in.Rows,
		}
	}

	var opts generate.Options
	if req.Seed != nil {
		opts.Rand = rand.New(rand.NewSource(*req.Seed))
	}

	startTime := time.Now()
	records, report, err := s.engine.Generate(req.TemplateID, req.Count, datasets, opts)
	if err != nil {
		respondError(w, http.StatusInternalServerError, "generation failed", err)
		return
	}
	generationTime := time.Since(startTime)

	run := &generate.Run{
		ID:          uuid.New().String(),
		TemplateID:  req.TemplateID,
		RecordCount: len(records),
		Report:      report,
	}
	if err := s.runs.Add(run); err != nil {
		logger.Error("failed to record generation run", "run_id", run.ID, "error", err)
	}

	respondJSON(w, http.StatusOK, GenerateResponse{
		RunID:          run.ID,
		Records:        records,
		Report:         report,
		GenerationTime: generationTime.String(),
	})
}

// List templates handler
func (s *Server) handleListTemplates(w http.ResponseWriter, r *http.Request) {
	templates, err := s.engine.ListActive()
	if err != nil {
		respondError(w, http.StatusInternalServerError, "failed to list templates", err)
		return
	}

	out := make([]TemplateResponse, 0, len(templates))
	for _, t := range templates {
		out = append(out, templateResponse(t))
	}

	respondJSON(w, http.StatusOK, map[string]any{
		"templates": out,
	})
}

// Create template handler
func (s *Server) handleCreateTemplate(w http.ResponseWriter, r *http.Request) {
	var req CreateTemplateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid request body", err)
		return
	}

	if req.Name == "" {
		respondError(w, http.StatusBadRequest, "name is required", nil)
		return
	}

	t := &generate.Template{
		ID:         uuid.New().String(),
		Name:       req.Name,
		Definition: req.Definition,
		Active:     req.Active,
	}

	// Validates and compiles the definition before storing
	if err := s.engine.AddTemplate(t); err != nil {
		respondError(w, http.StatusBadRequest, "failed to add template", err)
		return
	}

	respondJSON(w, http.StatusCreated, templateResponse(t))
}

// Get template handler
func (s *Server) handleGetTemplate(w http.ResponseWriter, r *http.Request) {
	templateID := chi.URLParam(r, "templateId")

	t, err := s.engine.GetTemplate(templateID)
	if err != nil {
		respondError(w, http.StatusNotFound, "template not found", err)
		return
	}

	respondJSON(w, http.StatusOK, templateResponse(t))
}

// Update template handler
func (s *Server) handleUpdateTemplate(w http.ResponseWriter, r *http.Request) {
	templateID := chi.URLParam(r, "templateId")

	var req UpdateTemplateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid request body", err)
		return
	}

	t := &generate.Template{
		ID:         templateID,
		Name:       req.Name,
		Definition: req.Definition,
		Active:     req.Active,
	}

	if err := s.engine.UpdateTemplate(t); err != nil {
		respondError(w, http.StatusBadRequest, "failed to update template", err)
		return
	}

	respondJSON(w, http.StatusOK, templateResponse(t))
}

// Delete template handler
func (s *Server) handleDeleteTemplate(w http.ResponseWriter, r *http.Request) {
	templateID := chi.URLParam(r, "templateId")

	if err := s.engine.DeleteTemplate(templateID); err != nil {
		respondError(w, http.StatusNotFound, "template not found", err)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

// List datasets handler
func (s *Server) handleListDatasets(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, DatasetsListResponse{
		Datasets: s.datasets.List(),
	})
}

// Register dataset handler
func (s *Server) handleRegisterDataset(w http.ResponseWriter, r *http.Request) {
	var req RegisterDatasetRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid request body", err)
		return
	}

	if req.Name == "" {
		respondError(w, http.StatusBadRequest, "name is required", nil)
		return
	}

	var err error
	switch {
	case req.Query != "":
		err = s.datasets.RegisterQuery(r.Context(), req.Name, req.Query)
	case len(req.Rows) > 0 || len(req.Columns) > 0:
		err = s.datasets.RegisterRows(req.Name, req.Columns, req.Rows)
	default:
		respondError(w, http.StatusBadRequest, "either query or columns/rows is required", nil)
		return
	}
	if err != nil {
		respondError(w, http.StatusBadRequest, "failed to register dataset", err)
		return
	}

	ds, _ := s.datasets.Get(req.Name)
	respondJSON(w, http.StatusCreated, map[string]any{
		"name":      req.Name,
		"row_count": ds.Len(),
		"columns":   ds.Columns,
	})
}

// Delete dataset handler
func (s *Server) handleDeleteDataset(w http.ResponseWriter, r *http.Request) {
	name := chi.URLParam(r, "name")

	if err := s.datasets.Delete(name); err != nil {
		respondError(w, http.StatusNotFound, "dataset not found", err)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

// Get run handler
func (s *Server) handleGetRun(w http.ResponseWriter, r *http.Request) {
	runID := chi.URLParam(r, "runId")

	run, err := s.runs.Get(runID)
	if err != nil {
		respondError(w, http.StatusNotFound, "run not found", err)
		return
	}

	respondJSON(w, http.StatusOK, run)
}

// List runs handler
func (s *Server) handleListRuns(w http.ResponseWriter, r *http.Request) {
	templateID := chi.URLParam(r, "templateId")

	runs, err := s.runs.ListByTemplate(templateID)
	if err != nil {
		respondError(w, http.StatusInternalServerError, "failed to list runs", err)
		return
	}

	respondJSON(w, http.StatusOK, map[string]any{
		"runs": runs,
	})
}

// Recent runs handler
func (s *Server) handleRecentRuns(w http.ResponseWriter, r *http.Request) {
	limit := defaultRunListLimit
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n <= 0 {
			respondError(w, http.StatusBadRequest, "limit must be a positive integer", err)
			return
		}
		limit = n
	}

	runs, err := s.runs.ListRecent(limit)
	if err != nil {
		respondError(w, http.StatusInternalServerError, "failed to list runs", err)
		return
	}

	respondJSON(w, http.StatusOK, map[string]any{
		"runs": runs,
	})
}

// Helper functions
func templateResponse(t *generate.Template) TemplateResponse {
	return TemplateResponse{
		ID:         t.ID,
		Name:       t.Name,
		Definition: t.Definition,
		Active:     t.Active,
		CreatedAt:  t.CreatedAt.Format(time.RFC3339),
		UpdatedAt:  t.UpdatedAt.Format(time.RFC3339),
	}
}

func respondJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

func respondError(w http.ResponseWriter, status int, message string, err error) {
	response := map[string]string{
		"error": message,
	}
	if err != nil {
		response["details"] = err.Error()
	}
	respondJSON(w, status, response)
}

func main() {
	databaseURL := os.Getenv("DATABASE_URL")
	if databaseURL == "" {
		logger.Fatal("DATABASE_URL environment variable is required")
	}

	server, err := NewServer(databaseURL)
	if err != nil {
		logger.Fatal("failed to create server", "error", err)
	}
	defer server.db.Close()

	port := os.Getenv("PORT")
	if port == "" {
		port = "8080"
	}

	httpServer := &http.Server{
		Addr:         ":" + port,
		Handler:      server,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	// Graceful shutdown handling
	go func() {
		logger.Info("server starting", "port", port)
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal("server failed to start", "error", err)
		}
	}()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	<-sigChan

	logger.Info("shutting down server")
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := httpServer.Shutdown(ctx); err != nil {
		logger.Error("server shutdown error", "error", err)
	}

	logger.Info("server stopped")
}
