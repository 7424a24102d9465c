//go:build integration
// +build integration

package querycontext

import (
	"context"
	"database/sql"
	"fmt"
	"testing"
	"time"

	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"

	_ "github.com/lib/pq"
)

func setupTestDB(t *testing.T) (*sql.DB, func()) {
	ctx := context.Background()

	req := testcontainers.ContainerRequest{
		Image:        "postgres:15-alpine",
		ExposedPorts: []string{"5432/tcp"},
		Env: map[string]string{
			"POSTGRES_USER":     "test",
			"POSTGRES_PASSWORD": "test",
			"POSTGRES_DB":       "fabricate_test",
		},
		WaitingFor: wait.ForLog("database system is ready to accept connections").WithStartupTimeout(60 * time.Second),
	}

	postgresContainer, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: req,
		Started:          true,
	})
	if err != nil {
		t.Fatalf("Failed to start PostgreSQL container: %v", err)
	}

	host, err := postgresContainer.Host(ctx)
	if err != nil {
		t.Fatalf("Failed to get container host: %v", err)
	}
	port, err := postgresContainer.MappedPort(ctx, "5432")
	if err != nil {
		t.Fatalf("Failed to get container port: %v", err)
	}

	connStr := fmt.Sprintf("host=%s port=%s user=test password=test dbname=fabricate_test sslmode=disable", host, port.Port())

	var db *sql.DB
	for i := 0; i < 30; i++ {
		db, err = sql.Open("postgres", connStr)
		if err == nil {
			err = db.Ping()
			if err == nil {
				break
			}
		}
		time.Sleep(time.Second)
	}
	if err != nil {
		t.Fatalf("Failed to connect to database: %v", err)
	}

	cleanup := func() {
		db.Close()
		postgresContainer.Terminate(ctx)
	}

	return db, cleanup
}

func TestRegisterQueryScansResultSet(t *testing.T) {
	db, cleanup := setupTestDB(t)
	defer cleanup()

	_, err := db.Exec(`
		CREATE TABLE customers (
			id TEXT PRIMARY KEY,
			name TEXT NOT NULL,
			qty INTEGER NOT NULL
		);
		INSERT INTO customers (id, name, qty) VALUES
			('C-1', 'Acme', 10),
			('C-2', 'Globex', 20);
	`)
	if err != nil {
		t.Fatalf("Failed to seed table: %v", err)
	}

	m := NewManager(db)
	if err := m.RegisterQuery(context.Background(), "customers", "SELECT id, name, qty FROM customers ORDER BY id"); err != nil {
		t.Fatalf("RegisterQuery failed: %v", err)
	}

	ds, ok := m.Get("customers")
	if !ok {
		t.Fatal("dataset not registered")
	}
	if ds.Len() != 2 {
		t.Fatalf("Len = %d, want 2", ds.Len())
	}
	if len(ds.Columns) != 3 {
		t.Fatalf("Columns = %v", ds.Columns)
	}

	// Text columns must come back as strings, not raw bytes.
	if ds.Rows[0]["name"] != "Acme" {
		t.Errorf("name = %v (%T), want Acme as string", ds.Rows[0]["name"], ds.Rows[0]["name"])
	}
	if ds.Rows[1]["qty"] != int64(20) {
		t.Errorf("qty = %v (%T), want int64(20)", ds.Rows[1]["qty"], ds.Rows[1]["qty"])
	}
}

func TestRegisterQueryWithArgs(t *testing.T) {
	db, cleanup := setupTestDB(t)
	defer cleanup()

	_, err := db.Exec(`
		CREATE TABLE regions (code TEXT, tier INTEGER);
		INSERT INTO regions VALUES ('EU', 1), ('US', 1), ('APAC', 2);
	`)
	if err != nil {
		t.Fatalf("Failed to seed table: %v", err)
	}

	m := NewManager(db)
	if err := m.RegisterQuery(context.Background(), "tier1", "SELECT code FROM regions WHERE tier = $1 ORDER BY code", 1); err != nil {
		t.Fatalf("RegisterQuery failed: %v", err)
	}

	ds, _ := m.Get("tier1")
	if ds.Len() != 2 {
		t.Errorf("Len = %d, want 2", ds.Len())
	}

	if err := m.RegisterQuery(context.Background(), "bad", "SELECT * FROM missing_table"); err == nil {
		t.Error("query against a missing table should fail")
	}
}
