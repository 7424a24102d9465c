package main

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/mboyle/fabricate/generate"
	"github.com/mboyle/fabricate/querycontext"
)

func newTestServer(t *testing.T) *Server {
	t.Helper()
	s, err := newServerWithStores(
		generate.NewInMemoryTemplateStore(),
		generate.NewInMemoryRunStore(),
		querycontext.NewManager(nil),
	)
	if err != nil {
		t.Fatalf("failed to create server: %v", err)
	}
	return s
}

func doJSON(t *testing.T, s *Server, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			t.Fatalf("failed to encode request body: %v", err)
		}
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	s.ServeHTTP(rec, req)
	return rec
}

func decode(t *testing.T, rec *httptest.ResponseRecorder, into any) {
	t.Helper()
	if err := json.NewDecoder(rec.Body).Decode(into); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
}

func createTemplate(t *testing.T, s *Server, def generate.Definition) string {
	t.Helper()
	rec := doJSON(t, s, http.MethodPost, "/api/v1/templates/", CreateTemplateRequest{
		Name:       "orders",
		Definition: def,
		Active:     true,
	})
	if rec.Code != http.StatusCreated {
		t.Fatalf("create template returned %d: %s", rec.Code, rec.Body.String())
	}
	var resp TemplateResponse
	decode(t, rec, &resp)
	if resp.ID == "" {
		t.Fatal("create template returned no ID")
	}
	return resp.ID
}

func TestHealthEndpoint(t *testing.T) {
	s := newTestServer(t)

	rec := doJSON(t, s, http.MethodGet, "/api/v1/health", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("health returned %d", rec.Code)
	}

	var resp map[string]any
	decode(t, rec, &resp)
	if resp["status"] != "healthy" {
		t.Errorf("status = %v", resp["status"])
	}
}

func TestTemplateLifecycle(t *testing.T) {
	s := newTestServer(t)

	id := createTemplate(t, s, generate.Definition{
		SequenceFields: map[string]string{"OrderID": "ORD"},
	})

	rec := doJSON(t, s, http.MethodGet, "/api/v1/templates/"+id, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("get template returned %d", rec.Code)
	}

	rec = doJSON(t, s, http.MethodGet, "/api/v1/templates/", nil)
	var list struct {
		Templates []TemplateResponse `json:"templates"`
	}
	decode(t, rec, &list)
	if len(list.Templates) != 1 {
		t.Fatalf("list returned %d templates, want 1", len(list.Templates))
	}

	rec = doJSON(t, s, http.MethodPut, "/api/v1/templates/"+id, UpdateTemplateRequest{
		Name: "orders-v2",
		Definition: generate.Definition{
			SequenceFields: map[string]string{"OrderID": "INV"},
		},
		Active: true,
	})
	if rec.Code != http.StatusOK {
		t.Fatalf("update returned %d: %s", rec.Code, rec.Body.String())
	}

	rec = doJSON(t, s, http.MethodDelete, "/api/v1/templates/"+id, nil)
	if rec.Code != http.StatusNoContent {
		t.Fatalf("delete returned %d", rec.Code)
	}

	rec = doJSON(t, s, http.MethodGet, "/api/v1/templates/"+id, nil)
	if rec.Code != http.StatusNotFound {
		t.Errorf("get after delete returned %d, want 404", rec.Code)
	}
}

func TestCreateTemplateRejectsBadDefinition(t *testing.T) {
	s := newTestServer(t)

	rec := doJSON(t, s, http.MethodPost, "/api/v1/templates/", CreateTemplateRequest{
		Name: "broken",
		Definition: generate.Definition{
			RandomFields: []generate.RandomField{
				{FieldName: "X", FieldType: "nonsense(1)"},
			},
		},
		Active: true,
	})
	if rec.Code != http.StatusBadRequest {
		t.Errorf("create of a broken template returned %d, want 400", rec.Code)
	}
}

func TestGenerateEndpoint(t *testing.T) {
	s := newTestServer(t)

	id := createTemplate(t, s, generate.Definition{
		StaticFields:   map[string]any{"Status": "OPEN"},
		SequenceFields: map[string]string{"OrderID": "ORD"},
		ArrayLengths:   map[string]any{"Items": float64(2)},
		RandomFields: []generate.RandomField{
			{FieldName: "Items.SKU", FieldType: "string(8)"},
		},
		QueryContextFields: map[string]generate.QuerySpec{
			"CustomerID": {Query: "customers", Column: "id", Mode: "sequential"},
		},
	})

	seed := int64(7)
	req := GenerateRequest{
		TemplateID: id,
		Count:      3,
		Seed:       &seed,
		Datasets: []InlineDataset{
			{
				Name:    "customers",
				Columns: []string{"id"},
				Rows: []map[string]any{
					{"id": "C-1"}, {"id": "C-2"},
				},
			},
		},
	}

	rec := doJSON(t, s, http.MethodPost, "/api/v1/generate", req)
	if rec.Code != http.StatusOK {
		t.Fatalf("generate returned %d: %s", rec.Code, rec.Body.String())
	}

	var resp GenerateResponse
	decode(t, rec, &resp)
	if len(resp.Records) != 3 {
		t.Fatalf("got %d records, want 3", len(resp.Records))
	}
	if resp.RunID == "" {
		t.Error("response missing run_id")
	}

	wantIDs := []any{"C-1", "C-2", "C-1"}
	for i, r := range resp.Records {
		if r["Status"] != "OPEN" {
			t.Errorf("record %d Status = %v", i, r["Status"])
		}
		if r["CustomerID"] != wantIDs[i] {
			t.Errorf("record %d CustomerID = %v, want %v", i, r["CustomerID"], wantIDs[i])
		}
		items, ok := r["Items"].([]any)
		if !ok || len(items) != 2 {
			t.Errorf("record %d Items = %v", i, r["Items"])
		}
	}

	// The run is retrievable afterwards.
	runRec := doJSON(t, s, http.MethodGet, "/api/v1/runs/"+resp.RunID, nil)
	if runRec.Code != http.StatusOK {
		t.Errorf("get run returned %d", runRec.Code)
	}

	listRec := doJSON(t, s, http.MethodGet, "/api/v1/templates/"+id+"/runs", nil)
	var runList struct {
		Runs []generate.Run `json:"runs"`
	}
	decode(t, listRec, &runList)
	if len(runList.Runs) != 1 || runList.Runs[0].RecordCount != 3 {
		t.Errorf("run list = %v", runList.Runs)
	}

	recentRec := doJSON(t, s, http.MethodGet, "/api/v1/runs?limit=10", nil)
	if recentRec.Code != http.StatusOK {
		t.Fatalf("recent runs returned %d", recentRec.Code)
	}
	decode(t, recentRec, &runList)
	if len(runList.Runs) != 1 || runList.Runs[0].ID != resp.RunID {
		t.Errorf("recent runs = %v", runList.Runs)
	}

	badRec := doJSON(t, s, http.MethodGet, "/api/v1/runs?limit=0", nil)
	if badRec.Code != http.StatusBadRequest {
		t.Errorf("limit=0 returned %d, want 400", badRec.Code)
	}
}

func TestGenerateReportsDegradations(t *testing.T) {
	s := newTestServer(t)

	id := createTemplate(t, s, generate.Definition{
		QueryContextFields: map[string]generate.QuerySpec{
			"CustomerID": {Query: "absent", Column: "id", Mode: "random"},
		},
	})

	rec := doJSON(t, s, http.MethodPost, "/api/v1/generate", GenerateRequest{
		TemplateID: id,
		Count:      2,
	})
	if rec.Code != http.StatusOK {
		t.Fatalf("generate returned %d: %s", rec.Code, rec.Body.String())
	}

	var resp GenerateResponse
	decode(t, rec, &resp)
	if len(resp.Records) != 2 {
		t.Fatalf("got %d records, want 2", len(resp.Records))
	}
	if resp.Report == nil || resp.Report.Count(generate.DegradationLookupMiss) != 2 {
		t.Errorf("report = %+v, want 2 lookup misses", resp.Report)
	}
}

func TestGenerateValidation(t *testing.T) {
	s := newTestServer(t)

	rec := doJSON(t, s, http.MethodPost, "/api/v1/generate", GenerateRequest{Count: 5})
	if rec.Code != http.StatusBadRequest {
		t.Errorf("missing template_id returned %d, want 400", rec.Code)
	}

	rec = doJSON(t, s, http.MethodPost, "/api/v1/generate", GenerateRequest{TemplateID: "x", Count: 0})
	if rec.Code != http.StatusBadRequest {
		t.Errorf("zero count returned %d, want 400", rec.Code)
	}

	rec = doJSON(t, s, http.MethodPost, "/api/v1/generate", GenerateRequest{TemplateID: "missing", Count: 1})
	if rec.Code != http.StatusNotFound {
		t.Errorf("unknown template returned %d, want 404", rec.Code)
	}
}

func TestGenerateIsReproducibleWithSeed(t *testing.T) {
	s := newTestServer(t)

	id := createTemplate(t, s, generate.Definition{
		RandomFields: []generate.RandomField{
			{FieldName: "SKU", FieldType: "string(12)"},
			{FieldName: "ID", FieldType: "uuid"},
		},
	})

	seed := int64(1234)
	run := func() string {
		rec := doJSON(t, s, http.MethodPost, "/api/v1/generate", GenerateRequest{
			TemplateID: id,
			Count:      5,
			Seed:       &seed,
		})
		if rec.Code != http.StatusOK {
			t.Fatalf("generate returned %d", rec.Code)
		}
		var resp GenerateResponse
		decode(t, rec, &resp)
		out, _ := json.Marshal(resp.Records)
		return string(out)
	}

	if run() != run() {
		t.Error("same seed produced different batches")
	}
}

func TestDatasetEndpoints(t *testing.T) {
	s := newTestServer(t)

	rec := doJSON(t, s, http.MethodPost, "/api/v1/datasets/", RegisterDatasetRequest{
		Name:    "customers",
		Columns: []string{"id", "name"},
		Rows: []map[string]any{
			{"id": "C-1", "name": "Acme"},
		},
	})
	if rec.Code != http.StatusCreated {
		t.Fatalf("register returned %d: %s", rec.Code, rec.Body.String())
	}

	rec = doJSON(t, s, http.MethodGet, "/api/v1/datasets/", nil)
	var list DatasetsListResponse
	decode(t, rec, &list)
	if len(list.Datasets) != 1 || list.Datasets[0].RowCount != 1 {
		t.Errorf("dataset list = %v", list.Datasets)
	}

	// Registered datasets serve generation without inline data.
	id := createTemplate(t, s, generate.Definition{
		QueryContextFields: map[string]generate.QuerySpec{
			"CustomerID": {Query: "customers", Column: "id", Mode: "random"},
		},
	})
	genRec := doJSON(t, s, http.MethodPost, "/api/v1/generate", GenerateRequest{TemplateID: id, Count: 1})
	var resp GenerateResponse
	decode(t, genRec, &resp)
	if resp.Records[0]["CustomerID"] != "C-1" {
		t.Errorf("CustomerID = %v, want C-1", resp.Records[0]["CustomerID"])
	}

	rec = doJSON(t, s, http.MethodDelete, "/api/v1/datasets/customers", nil)
	if rec.Code != http.StatusNoContent {
		t.Fatalf("delete returned %d", rec.Code)
	}
	rec = doJSON(t, s, http.MethodDelete, "/api/v1/datasets/customers", nil)
	if rec.Code != http.StatusNotFound {
		t.Errorf("double delete returned %d, want 404", rec.Code)
	}
}

func TestRegisterDatasetValidation(t *testing.T) {
	s := newTestServer(t)

	rec := doJSON(t, s, http.MethodPost, "/api/v1/datasets/", RegisterDatasetRequest{
		Columns: []string{"id"},
	})
	if rec.Code != http.StatusBadRequest {
		t.Errorf("missing name returned %d, want 400", rec.Code)
	}

	rec = doJSON(t, s, http.MethodPost, "/api/v1/datasets/", RegisterDatasetRequest{
		Name: "empty",
	})
	if rec.Code != http.StatusBadRequest {
		t.Errorf("missing payload returned %d, want 400", rec.Code)
	}

	// Query-backed datasets need a database.
	rec = doJSON(t, s, http.MethodPost, "/api/v1/datasets/", RegisterDatasetRequest{
		Name:  "q",
		Query: "SELECT 1",
	})
	if rec.Code != http.StatusBadRequest {
		t.Errorf("query without database returned %d, want 400", rec.Code)
	}
}
